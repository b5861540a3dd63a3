package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"alertd/internal/crypto"
	"alertd/internal/repository"
	"alertd/internal/services"

	"github.com/spf13/viper"
)

// The worker runs the periodic sweeps (timeouts, escalation, delayed
// notifications, housekeeping) without serving the HTTP API. Run it
// standalone when the API is deployed with the scheduler disabled.
func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	initConfig()

	db, err := repository.NewDatabase()
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	checkInterval := viper.GetDuration("worker.check_interval")
	if checkInterval == 0 {
		checkInterval = 30 * time.Second
	}

	log.Printf("Starting alert worker with check interval: %v", checkInterval)

	cfg := services.ConfigFromViper()
	box := crypto.New(viper.GetString("notification.key"))

	alertRepo := repository.NewAlertRepository(db)
	blackoutRepo := repository.NewBlackoutRepository(db)
	channelRepo := repository.NewChannelRepository(db)
	ruleRepo := repository.NewNotificationRuleRepository(db)
	groupRepo := repository.NewNotificationGroupRepository(db)
	delayRepo := repository.NewDelayRepository(db)
	sendRepo := repository.NewNotificationHistoryRepository(db)
	escalationRepo := repository.NewEscalationRuleRepository(db)
	onCallRepo := repository.NewOnCallRepository(db)
	userRepo := repository.NewUserRepository(db)
	heartbeatRepo := repository.NewHeartbeatRepository(db)

	onCallService := services.NewOnCallService(onCallRepo, userRepo, groupRepo)
	ruleService := services.NewRuleService(ruleRepo, groupRepo, userRepo, onCallService)
	transports := services.NewTransports(box, channelRepo)
	dispatcher := services.NewDispatcher(ruleService, transports, channelRepo, delayRepo,
		sendRepo, alertRepo, ruleRepo)
	blackoutMatcher := services.NewBlackoutMatcher(blackoutRepo)
	alertService := services.NewAlertService(cfg, alertRepo, heartbeatRepo, blackoutMatcher, dispatcher)
	escalationService := services.NewEscalationService(escalationRepo, alertRepo, alertService)
	heartbeatService := services.NewHeartbeatService(cfg, heartbeatRepo)

	scheduler := services.NewScheduler(alertService, escalationService, ruleService, dispatcher,
		heartbeatService, blackoutRepo, checkInterval)
	if err := scheduler.Start(ctx); err != nil {
		log.Fatalf("Failed to start scheduler: %v", err)
	}

	log.Println("Alert worker started successfully")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down worker...")
	cancel()
	log.Println("Worker stopped")
}

func initConfig() {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AddConfigPath("/etc/alertd")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.ReadInConfig()
}
