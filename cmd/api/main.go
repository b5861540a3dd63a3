package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"alertd/internal/crypto"
	"alertd/internal/handlers"
	"alertd/internal/middleware"
	"alertd/internal/repository"
	"alertd/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/spf13/viper"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"golang.org/x/crypto/bcrypt"
)

// @title Alertd API
// @version 1.0
// @description Alert management engine with deduplication, correlation and notification rules
// @host localhost:8080
// @BasePath /api/v1
// @schemes http https

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	initConfig()

	db, err := repository.NewDatabase()
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	if err := runMigrations(db); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}
	seedDefaultUser(db)

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
	keyRepo := repository.NewKeyRepository(db)
	customerRepo := repository.NewCustomerRepository(db)
	permRepo := repository.NewPermRepository(db)
	noteRepo := repository.NewNoteRepository(db)
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
	userService := services.NewUserService(userRepo, viper.GetString("jwt.secret"),
		viper.GetDuration("jwt.ttl"))

	wsHandler := handlers.NewWebSocketHandler()
	go wsHandler.Run()
	alertService.Broadcast = wsHandler.BroadcastAlert

	alertHandler := handlers.NewAlertHandler(alertService, alertRepo, noteRepo)
	blackoutHandler := handlers.NewBlackoutHandler(blackoutRepo)
	notificationHandler := handlers.NewNotificationHandler(channelRepo, ruleRepo, groupRepo,
		delayRepo, sendRepo, alertRepo, ruleService, dispatcher, box)
	escalationHandler := handlers.NewEscalationHandler(escalationRepo, escalationService)
	onCallHandler := handlers.NewOnCallHandler(onCallRepo)
	heartbeatHandler := handlers.NewHeartbeatHandler(heartbeatService)
	adminHandler := handlers.NewAdminHandler(userService, keyRepo, customerRepo, permRepo)
	importExportHandler := handlers.NewImportExportHandler(alertService, alertRepo)

	router := initRouter(cfg, keyRepo, customerRepo, wsHandler, alertHandler, blackoutHandler,
		notificationHandler, escalationHandler, onCallHandler, heartbeatHandler, adminHandler,
		importExportHandler)

	scheduler := services.NewScheduler(alertService, escalationService, ruleService, dispatcher,
		heartbeatService, blackoutRepo, viper.GetDuration("worker.check_interval"))
	if err := scheduler.Start(ctx); err != nil {
		log.Printf("Failed to start background scheduler: %v", err)
	}

	addr := fmt.Sprintf("%s:%d", viper.GetString("app.host"), viper.GetInt("app.port"))

	srv := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	go func() {
		log.Printf("Starting API server on %s", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	log.Println("Server exited")
}

func initRouter(cfg *services.Config,
	keyRepo *repository.KeyRepository,
	customerRepo *repository.CustomerRepository,
	wsHandler *handlers.WebSocketHandler,
	alertHandler *handlers.AlertHandler,
	blackoutHandler *handlers.BlackoutHandler,
	notificationHandler *handlers.NotificationHandler,
	escalationHandler *handlers.EscalationHandler,
	onCallHandler *handlers.OnCallHandler,
	heartbeatHandler *handlers.HeartbeatHandler,
	adminHandler *handlers.AdminHandler,
	importExportHandler *handlers.ImportExportHandler) *gin.Engine {

	router := gin.New()
	router.Use(middleware.RecoveryMiddleware())
	router.Use(middleware.LoggerMiddleware())
	router.Use(middleware.CORSMiddleware())
	router.Use(middleware.RequestIDMiddleware())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	public := router.Group("/api/v1")
	{
		public.POST("/auth/login", adminHandler.Login)
	}

	api := router.Group("/api/v1")
	api.Use(middleware.Auth(viper.GetString("jwt.secret"), keyRepo, customerRepo, cfg.CustomerViews))
	{
		api.GET("/ws", wsHandler.HandleConnection)
		api.GET("/profile", adminHandler.Profile)

		api.POST("/alert", alertHandler.Receive)
		api.GET("/alert/:id", alertHandler.Get)
		api.PUT("/alert/:id/status", alertHandler.SetStatus)
		api.PUT("/alert/:id/action", alertHandler.Action)
		api.PUT("/alert/:id/tag", alertHandler.Tag)
		api.PUT("/alert/:id/untag", alertHandler.Untag)
		api.PUT("/alert/:id/tags", alertHandler.ReplaceTags)
		api.PUT("/alert/:id/attributes", alertHandler.UpdateAttributes)
		api.POST("/alert/:id/note", alertHandler.AddNote)
		api.GET("/alert/:id/notes", alertHandler.ListNotes)
		api.PUT("/alert/:id/note/:noteId", alertHandler.UpdateNote)
		api.DELETE("/alert/:id/note/:noteId", alertHandler.DeleteNote)
		api.DELETE("/alert/:id", alertHandler.Delete)

		api.GET("/alerts", alertHandler.List)
		api.GET("/alerts/count", alertHandler.Count)
		api.GET("/alerts/top10/count", alertHandler.Top10Count)
		api.GET("/alerts/top10/flapping", alertHandler.Top10Flapping)
		api.GET("/alerts/top10/standing", alertHandler.Top10Standing)
		api.GET("/alerts/history", alertHandler.History)
		api.GET("/alerts/history/count", alertHandler.HistoryCount)
		api.GET("/alerts/environments", alertHandler.Environments)
		api.GET("/alerts/services", alertHandler.Services)
		api.GET("/alerts/groups", alertHandler.Groups)
		api.GET("/alerts/tags", alertHandler.Tags)
		api.GET("/environments", alertHandler.Environments)
		api.GET("/services", alertHandler.Services)
		api.GET("/notes", alertHandler.ListAllNotes)

		api.POST("/blackouts", blackoutHandler.Create)
		api.GET("/blackouts", blackoutHandler.List)
		api.GET("/blackouts/:id", blackoutHandler.Get)
		api.PUT("/blackouts/:id", blackoutHandler.Update)
		api.DELETE("/blackouts/:id", blackoutHandler.Delete)

		api.POST("/notificationchannels", notificationHandler.CreateChannel)
		api.GET("/notificationchannels", notificationHandler.ListChannels)
		api.GET("/notificationchannels/:id", notificationHandler.GetChannel)
		api.PUT("/notificationchannels/:id", notificationHandler.UpdateChannel)
		api.DELETE("/notificationchannels/:id", notificationHandler.DeleteChannel)
		api.POST("/notificationchannels/:id/test", notificationHandler.TestChannel)

		api.POST("/notificationrules", notificationHandler.CreateRule)
		api.GET("/notificationrules", notificationHandler.ListRules)
		api.GET("/notificationrules/:id", notificationHandler.GetRule)
		api.PUT("/notificationrules/:id", notificationHandler.UpdateRule)
		api.DELETE("/notificationrules/:id", notificationHandler.DeleteRule)
		api.POST("/notificationrules/active", notificationHandler.ActiveRules)
		api.GET("/notificationrules/active", notificationHandler.ActiveRules)
		api.POST("/notificationrules/activestatus", notificationHandler.ActiveStatusRules)
		api.GET("/notificationrules/activestatus", notificationHandler.ActiveStatusRules)

		api.POST("/notificationgroups", notificationHandler.CreateGroup)
		api.GET("/notificationgroups", notificationHandler.ListGroups)
		api.GET("/notificationgroups/:id", notificationHandler.GetGroup)
		api.PUT("/notificationgroups/:id", notificationHandler.UpdateGroup)
		api.DELETE("/notificationgroups/:id", notificationHandler.DeleteGroup)

		api.GET("/notificationdelay", notificationHandler.ListDelays)
		api.POST("/notificationdelay/fire", notificationHandler.FireDelays)
		api.GET("/notificationdelay/fire", notificationHandler.FireDelays)
		api.GET("/notificationhistory", notificationHandler.ListHistory)
		api.GET("/notificationsends", notificationHandler.ListSends)
		api.POST("/notificationsends", notificationHandler.SendsByID)
		api.PUT("/notificationsends/:id/confirm", notificationHandler.ConfirmSend)

		api.POST("/escalationrules", escalationHandler.Create)
		api.GET("/escalationrules", escalationHandler.List)
		api.GET("/escalationrules/:id", escalationHandler.Get)
		api.PUT("/escalationrules/:id", escalationHandler.Update)
		api.DELETE("/escalationrules/:id", escalationHandler.Delete)
		api.POST("/escalate", escalationHandler.Run)
		api.GET("/escalate", escalationHandler.Run)

		api.POST("/oncalls", onCallHandler.Create)
		api.GET("/oncalls", onCallHandler.List)
		api.GET("/oncalls/:id", onCallHandler.Get)
		api.PUT("/oncalls/:id", onCallHandler.Update)
		api.DELETE("/oncalls/:id", onCallHandler.Delete)

		api.POST("/heartbeat", heartbeatHandler.Receive)
		api.GET("/heartbeats", heartbeatHandler.List)
		api.GET("/heartbeat/:id", heartbeatHandler.Get)
		api.DELETE("/heartbeat/:id", heartbeatHandler.Delete)

		api.POST("/import", importExportHandler.Import)
		api.GET("/export", importExportHandler.Export)

		admin := api.Group("")
		admin.Use(middleware.RequireRole(middleware.AdminRole))
		{
			admin.POST("/users", adminHandler.CreateUser)
			admin.GET("/users", adminHandler.ListUsers)
			admin.GET("/users/:id", adminHandler.GetUser)
			admin.PUT("/users/:id", adminHandler.UpdateUser)
			admin.DELETE("/users/:id", adminHandler.DeleteUser)

			admin.POST("/keys", adminHandler.CreateKey)
			admin.GET("/keys", adminHandler.ListKeys)
			admin.DELETE("/keys/:key", adminHandler.DeleteKey)

			admin.POST("/customers", adminHandler.CreateCustomer)
			admin.GET("/customers", adminHandler.ListCustomers)
			admin.DELETE("/customers/:id", adminHandler.DeleteCustomer)

			admin.POST("/perms", adminHandler.CreatePerm)
			admin.GET("/perms", adminHandler.ListPerms)
			admin.DELETE("/perms/:id", adminHandler.DeletePerm)
		}
	}

	return router
}

func initConfig() {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AddConfigPath("/etc/alertd")
	viper.AutomaticEnv()
	// So env vars like DATABASE_HOST (not DATABASE.HOST) override config keys like database.host
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.ReadInConfig()
}

func runMigrations(db *repository.Database) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS alerts (
			id UUID PRIMARY KEY,
			resource TEXT NOT NULL,
			event TEXT NOT NULL,
			environment TEXT NOT NULL,
			severity TEXT NOT NULL,
			correlate TEXT[],
			status TEXT NOT NULL,
			service TEXT[],
			"group" TEXT,
			value TEXT,
			text TEXT,
			tags TEXT[],
			attributes JSONB,
			origin TEXT,
			type TEXT,
			create_time TIMESTAMPTZ NOT NULL,
			timeout INT,
			raw_data TEXT,
			customer TEXT,
			duplicate_count INT DEFAULT 0,
			repeat BOOLEAN DEFAULT FALSE,
			previous_severity TEXT,
			trend_indication TEXT,
			receive_time TIMESTAMPTZ NOT NULL,
			last_receive_id UUID,
			last_receive_time TIMESTAMPTZ,
			update_time TIMESTAMPTZ,
			history JSONB DEFAULT '[]'
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS alerts_identity_key
			ON alerts (environment, resource, event, COALESCE(customer, ''))`,
		`CREATE INDEX IF NOT EXISTS alerts_status_idx ON alerts (status)`,
		`CREATE TABLE IF NOT EXISTS blackouts (
			id UUID PRIMARY KEY,
			priority INT NOT NULL,
			environment TEXT NOT NULL,
			service TEXT[],
			resource TEXT,
			event TEXT,
			"group" TEXT,
			tags TEXT[],
			origin TEXT,
			customer TEXT,
			start_time TIMESTAMPTZ NOT NULL,
			end_time TIMESTAMPTZ NOT NULL,
			duration INT,
			"user" TEXT,
			text TEXT,
			create_time TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS notification_channels (
			id UUID PRIMARY KEY,
			type TEXT NOT NULL,
			sender TEXT,
			host TEXT,
			platform_id TEXT,
			platform_partner_id TEXT,
			api_sid TEXT,
			api_token TEXT,
			customer TEXT,
			verify BOOLEAN,
			bearer TEXT,
			bearer_timeout TIMESTAMPTZ
		)`,
		`CREATE TABLE IF NOT EXISTS notification_rules (
			id UUID PRIMARY KEY,
			environment TEXT NOT NULL,
			channel_id UUID NOT NULL,
			receivers TEXT[],
			user_ids TEXT[],
			group_ids TEXT[],
			use_oncall BOOLEAN DEFAULT FALSE,
			resource TEXT,
			event TEXT,
			"group" TEXT,
			service TEXT[],
			tags JSONB DEFAULT '[]',
			excluded_tags JSONB DEFAULT '[]',
			triggers JSONB DEFAULT '[]',
			days TEXT[],
			start_time TEXT,
			end_time TEXT,
			delay_time INT,
			active BOOLEAN DEFAULT TRUE,
			reactivate TIMESTAMPTZ,
			customer TEXT,
			text TEXT,
			"user" TEXT,
			create_time TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS notification_groups (
			id UUID PRIMARY KEY,
			name TEXT NOT NULL,
			user_ids TEXT[],
			phone_numbers TEXT[],
			mails TEXT[],
			text TEXT,
			create_time TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS notification_delays (
			id UUID PRIMARY KEY,
			alert_id UUID NOT NULL,
			rule_id UUID NOT NULL,
			fire_at TIMESTAMPTZ NOT NULL,
			create_time TIMESTAMPTZ NOT NULL,
			UNIQUE(alert_id, rule_id)
		)`,
		`CREATE TABLE IF NOT EXISTS notification_history (
			id UUID PRIMARY KEY,
			sent BOOLEAN NOT NULL,
			message TEXT,
			channel_id UUID,
			rule_id UUID,
			alert_id UUID,
			receiver TEXT,
			sender TEXT,
			sent_time TIMESTAMPTZ NOT NULL,
			error TEXT,
			confirmed BOOLEAN DEFAULT FALSE,
			confirmed_time TIMESTAMPTZ
		)`,
		`CREATE TABLE IF NOT EXISTS escalation_rules (
			id UUID PRIMARY KEY,
			environment TEXT NOT NULL,
			time INT NOT NULL,
			resource TEXT,
			event TEXT,
			"group" TEXT,
			service TEXT[],
			tags JSONB DEFAULT '[]',
			excluded_tags JSONB DEFAULT '[]',
			triggers JSONB DEFAULT '[]',
			days TEXT[],
			start_time TEXT,
			end_time TEXT,
			active BOOLEAN DEFAULT TRUE,
			customer TEXT,
			"user" TEXT,
			create_time TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS on_calls (
			id UUID PRIMARY KEY,
			user_ids TEXT[],
			group_ids TEXT[],
			start_date TIMESTAMPTZ,
			end_date TIMESTAMPTZ,
			repeat_type TEXT,
			repeat_days TEXT[],
			repeat_weeks INT[],
			repeat_months TEXT[],
			start_time TEXT,
			end_time TEXT,
			customer TEXT,
			"user" TEXT,
			create_time TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS users (
			id UUID PRIMARY KEY,
			name TEXT,
			login TEXT UNIQUE NOT NULL,
			email TEXT,
			password TEXT NOT NULL,
			status TEXT DEFAULT 'active',
			roles TEXT[],
			text TEXT,
			email_verified BOOLEAN DEFAULT FALSE,
			phone_number TEXT,
			country TEXT,
			create_time TIMESTAMPTZ NOT NULL,
			last_login TIMESTAMPTZ,
			update_time TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS api_keys (
			key TEXT PRIMARY KEY,
			"user" TEXT NOT NULL,
			scopes TEXT[],
			text TEXT,
			expire_time TIMESTAMPTZ NOT NULL,
			count INT DEFAULT 0,
			last_used_time TIMESTAMPTZ,
			customer TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS customers (
			id UUID PRIMARY KEY,
			match TEXT NOT NULL,
			customer TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS perms (
			id UUID PRIMARY KEY,
			match TEXT UNIQUE NOT NULL,
			scopes TEXT[]
		)`,
		`CREATE TABLE IF NOT EXISTS notes (
			id UUID PRIMARY KEY,
			text TEXT NOT NULL,
			"user" TEXT,
			type TEXT,
			alert_id UUID,
			create_time TIMESTAMPTZ NOT NULL,
			update_time TIMESTAMPTZ
		)`,
		`CREATE TABLE IF NOT EXISTS heartbeats (
			id UUID PRIMARY KEY,
			origin TEXT NOT NULL,
			tags TEXT[],
			type TEXT,
			create_time TIMESTAMPTZ NOT NULL,
			timeout INT,
			receive_time TIMESTAMPTZ NOT NULL,
			customer TEXT,
			attributes JSONB
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS heartbeats_origin_key
			ON heartbeats (origin, COALESCE(customer, ''))`,
	}

	ctx := context.Background()
	for _, migration := range migrations {
		if _, err := db.Pool.Exec(ctx, migration); err != nil {
			return fmt.Errorf("running migration: %w", err)
		}
	}
	return nil
}

func seedDefaultUser(db *repository.Database) {
	ctx := context.Background()
	var n int
	if err := db.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM users`).Scan(&n); err != nil || n > 0 {
		return
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte("admin123"), bcrypt.DefaultCost)
	if err != nil {
		log.Printf("Failed to hash default password: %v", err)
		return
	}
	now := time.Now()
	_, err = db.Pool.Exec(ctx, `
		INSERT INTO users (id, name, login, email, password, status, roles, create_time, update_time)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, uuid.New(), "Admin", "admin", "admin@localhost", string(hashed), "active",
		[]string{"admin"}, now, now)
	if err != nil {
		log.Printf("Failed to seed default user: %v", err)
		return
	}
	log.Printf("Default user created: admin / admin123 (change password after first login)")
}
