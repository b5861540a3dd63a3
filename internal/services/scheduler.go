package services

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"alertd/internal/models"
	"alertd/internal/repository"
	pkgerrors "alertd/pkg/errors"
)

// Scheduler drives the periodic maintenance tasks: timeout sweeps,
// escalation scans, delayed notification firing, rule reactivation,
// heartbeat checks, blackout cleanup and retention housekeeping.
// Each tick runs at most one invocation of each task.
type Scheduler struct {
	alerts     *AlertService
	escalation *EscalationService
	rules      *RuleService
	dispatcher *Dispatcher
	heartbeats *HeartbeatService
	blackouts  *repository.BlackoutRepository

	interval time.Duration
	running  bool
	mu       sync.Mutex
}

func NewScheduler(alerts *AlertService, escalation *EscalationService, rules *RuleService, dispatcher *Dispatcher,
	heartbeats *HeartbeatService, blackouts *repository.BlackoutRepository, interval time.Duration) *Scheduler {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Scheduler{
		alerts:     alerts,
		escalation: escalation,
		rules:      rules,
		dispatcher: dispatcher,
		heartbeats: heartbeats,
		blackouts:  blackouts,
		interval:   interval,
	}
}

// Start launches the tick loop; it returns immediately and stops when
// the context is cancelled.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = true
	s.mu.Unlock()

	go s.loop(ctx)
	return nil
}

func (s *Scheduler) loop(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	log.Printf("scheduler: started with interval %v", s.interval)
	for {
		select {
		case <-ctx.Done():
			log.Println("scheduler: stopped")
			return
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick runs every task once. Tasks are idempotent; failures are
// logged and never abort the remaining tasks.
func (s *Scheduler) Tick(ctx context.Context) {
	now := time.Now()

	if n, err := s.alerts.SweepExpired(ctx); err != nil {
		log.Printf("scheduler: expire sweep: %v", err)
	} else if n > 0 {
		log.Printf("scheduler: expired %d alerts", n)
	}

	if n, err := s.alerts.SweepUnshelve(ctx); err != nil {
		log.Printf("scheduler: unshelve sweep: %v", err)
	} else if n > 0 {
		log.Printf("scheduler: unshelved %d alerts", n)
	}

	if n, err := s.alerts.SweepUnack(ctx); err != nil {
		log.Printf("scheduler: unack sweep: %v", err)
	} else if n > 0 {
		log.Printf("scheduler: unacked %d alerts", n)
	}

	if escalated, err := s.escalation.Scan(ctx, now); err != nil {
		log.Printf("scheduler: escalation scan: %v", err)
	} else if len(escalated) > 0 {
		log.Printf("scheduler: escalated %d alerts", len(escalated))
	}

	if n, err := s.dispatcher.FireDue(ctx, now); err != nil {
		log.Printf("scheduler: delayed fire: %v", err)
	} else if n > 0 {
		log.Printf("scheduler: fired %d delayed notifications", n)
	}

	if n, err := s.rules.ReactivateDue(ctx, now); err != nil {
		log.Printf("scheduler: rule reactivation: %v", err)
	} else if n > 0 {
		log.Printf("scheduler: reactivated %d notification rules", n)
	}

	if err := s.checkHeartbeats(ctx); err != nil {
		log.Printf("scheduler: heartbeat check: %v", err)
	}

	if n, err := s.blackouts.DeleteExpired(ctx, now.Add(-s.alerts.cfg.DeleteExpiredAfter)); err != nil {
		log.Printf("scheduler: blackout cleanup: %v", err)
	} else if n > 0 {
		log.Printf("scheduler: removed %d expired blackouts", n)
	}

	if removed, err := s.alerts.Housekeeping(ctx); err != nil {
		log.Printf("scheduler: housekeeping: %v", err)
	} else if len(removed) > 0 {
		log.Printf("scheduler: housekeeping removed %d alerts", len(removed))
	}
}

// checkHeartbeats raises an alert for every origin whose heartbeat is
// slow or expired, through the normal ingest pipeline so dedup and
// notification rules apply.
func (s *Scheduler) checkHeartbeats(ctx context.Context) error {
	unhealthy, err := s.heartbeats.Unhealthy(ctx)
	if err != nil {
		return err
	}
	for _, hb := range unhealthy {
		event, severity := "HeartbeatFail", models.SeverityMajor
		if hb.Status == models.HeartbeatSlow {
			event, severity = "HeartbeatSlow", models.SeverityWarning
		}
		environment := "Production"
		if envs := s.alerts.cfg.AllowedEnvironments; len(envs) > 0 {
			environment = envs[0]
		}
		alert := &models.Alert{
			Resource:    hb.Origin,
			Event:       event,
			Environment: environment,
			Severity:    severity,
			Correlate:   []string{"HeartbeatFail", "HeartbeatSlow", "HeartbeatOK"},
			Service:     []string{"Heartbeat"},
			Group:       "System",
			Text:        fmt.Sprintf("heartbeat from %s is %s", hb.Origin, hb.Status),
			Tags:        hb.Tags,
			Customer:    hb.Customer,
		}
		if _, err := s.alerts.Receive(ctx, alert); err != nil {
			// soft refusals (blackout windows) are expected
			if coded := pkgerrors.FromError(err); coded.Code != 202 {
				log.Printf("scheduler: heartbeat alert for %s: %v", hb.Origin, err)
			}
		}
	}
	return nil
}
