package services

import (
	"context"
	"time"

	"alertd/internal/models"
	"alertd/internal/repository"

	"github.com/google/uuid"
)

// RuleMatch pairs a firing rule with the trigger that matched, when
// the rule has triggers.
type RuleMatch struct {
	Rule    *models.NotificationRule
	Trigger *models.NotificationTrigger
}

// RuleService evaluates notification rules and resolves their
// effective targets.
type RuleService struct {
	rules  *repository.NotificationRuleRepository
	groups *repository.NotificationGroupRepository
	users  *repository.UserRepository
	onCall *OnCallService
}

func NewRuleService(rules *repository.NotificationRuleRepository, groups *repository.NotificationGroupRepository, users *repository.UserRepository, onCall *OnCallService) *RuleService {
	return &RuleService{rules: rules, groups: groups, users: users, onCall: onCall}
}

// SelectActive returns the rules firing for an alert update. A
// duplicate ingest (duplicate count incremented without a severity
// change) selects nothing.
func (s *RuleService) SelectActive(ctx context.Context, alert *models.Alert, now time.Time) ([]RuleMatch, error) {
	if alert.DuplicateCount > 0 {
		return nil, nil
	}
	return s.sel(ctx, alert, "", now)
}

// SelectActiveStatus returns the rules firing for an operator status
// change; each matched trigger must name the status explicitly.
func (s *RuleService) SelectActiveStatus(ctx context.Context, alert *models.Alert, status string, now time.Time) ([]RuleMatch, error) {
	return s.sel(ctx, alert, status, now)
}

func (s *RuleService) sel(ctx context.Context, alert *models.Alert, status string, now time.Time) ([]RuleMatch, error) {
	candidates, err := s.rules.Candidates(ctx, alert.Environment)
	if err != nil {
		return nil, err
	}
	var matches []RuleMatch
	for i := range candidates {
		rule := &candidates[i]
		if trigger, ok := matchNotificationRule(rule, alert, status, now); ok {
			matches = append(matches, RuleMatch{Rule: rule, Trigger: trigger})
		}
	}
	return matches, nil
}

// Targets resolves the contact set for a rule and alert: raw
// receivers, expanded users, expanded groups, and the on-call roster
// when the rule asks for it. The result is a set.
func (s *RuleService) Targets(ctx context.Context, rule *models.NotificationRule, alert *models.Alert) ([]models.NotificationInfo, error) {
	var targets []models.NotificationInfo

	for _, r := range rule.Receivers {
		// raw receivers are phone numbers or addresses depending on
		// the channel type; carry them in both positions
		targets = append(targets, models.NotificationInfo{PhoneNumber: r, Mail: r})
	}

	users, err := s.users.GetByIDs(ctx, rule.UserIDs)
	if err != nil {
		return nil, err
	}
	for i := range users {
		targets = append(targets, userTarget(&users[i]))
	}

	for _, gid := range rule.GroupIDs {
		id, err := uuid.Parse(gid)
		if err != nil {
			continue
		}
		group, err := s.groups.Get(ctx, id)
		if err != nil {
			continue
		}
		targets = append(targets, groupTargets(group)...)
		members, err := s.users.GetByIDs(ctx, group.UserIDs)
		if err != nil {
			return nil, err
		}
		for i := range members {
			targets = append(targets, userTarget(&members[i]))
		}
	}

	if rule.UseOnCall {
		onCall, err := s.onCall.Resolve(ctx, alert)
		if err != nil {
			return nil, err
		}
		targets = append(targets, onCall...)
	}
	return dedupeTargets(targets), nil
}

// ReactivateDue flips inactive rules whose reactivation timestamp has
// passed.
func (s *RuleService) ReactivateDue(ctx context.Context, now time.Time) (int64, error) {
	return s.rules.Reactivate(ctx, now)
}
