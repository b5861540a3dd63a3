package services

import (
	"context"
	"log"
	"time"

	"alertd/internal/models"
	"alertd/internal/repository"
)

// EscalationService bumps the severity of open alerts that stayed
// unhandled past an escalation rule's time limit.
type EscalationService struct {
	rules  *repository.EscalationRuleRepository
	alerts *repository.AlertRepository
	svc    *AlertService
}

func NewEscalationService(rules *repository.EscalationRuleRepository, alerts *repository.AlertRepository, svc *AlertService) *EscalationService {
	return &EscalationService{rules: rules, alerts: alerts, svc: svc}
}

// Scan walks the active escalation rules, finds the open alerts each
// one covers that have been stale longer than the rule's time, and
// escalates them one severity step. Returns the escalated alerts.
func (s *EscalationService) Scan(ctx context.Context, now time.Time) ([]models.Alert, error) {
	rules, err := s.rules.ListActive(ctx)
	if err != nil {
		return nil, err
	}

	var escalated []models.Alert
	seen := map[string]bool{}
	for i := range rules {
		rule := &rules[i]
		cutoff := now.Add(-escalationAfter(rule, s.svc.cfg.EscalateTime))
		stale, err := s.alerts.ListStaleOpen(ctx, rule.Environment, cutoff, rule.Customer)
		if err != nil {
			return nil, err
		}
		for j := range stale {
			alert := &stale[j]
			if seen[alert.ID.String()] {
				continue
			}
			if !matchEscalationRule(rule, alert, now) {
				continue
			}
			updated, err := s.svc.Escalate(ctx, alert.ID, "escalation")
			if err != nil {
				log.Printf("escalation: alert %s: %v", alert.ID, err)
				continue
			}
			seen[alert.ID.String()] = true
			escalated = append(escalated, *updated)
		}
	}
	return escalated, nil
}

// escalationAfter is the rule's stale window, falling back to the
// configured default when the rule carries none.
func escalationAfter(rule *models.EscalationRule, fallback int) time.Duration {
	if rule.Time > 0 {
		return time.Duration(rule.Time) * time.Second
	}
	return time.Duration(fallback) * time.Second
}
