package services

import (
	"context"
	"time"

	"alertd/internal/models"
	"alertd/internal/repository"

	"github.com/google/uuid"
)

// OnCallService resolves who is contactable at a given instant.
type OnCallService struct {
	onCalls *repository.OnCallRepository
	users   *repository.UserRepository
	groups  *repository.NotificationGroupRepository
}

func NewOnCallService(onCalls *repository.OnCallRepository, users *repository.UserRepository, groups *repository.NotificationGroupRepository) *OnCallService {
	return &OnCallService{onCalls: onCalls, users: users, groups: groups}
}

// onCallCovers reports whether the schedule entry covers the instant:
// either its absolute date range does, or its list recurrence matches
// the weekday name, ISO week and month name. The time-of-day window
// applies to both forms.
func onCallCovers(o *models.OnCall, at time.Time) bool {
	if !inTimeOfDayWindow(o.StartTime, o.EndTime, at) {
		return false
	}

	if o.StartDate != nil && o.EndDate != nil {
		day := at.Truncate(24 * time.Hour)
		if !day.Before(o.StartDate.Truncate(24*time.Hour)) && !day.After(o.EndDate.Truncate(24*time.Hour)) {
			return true
		}
	}

	if o.RepeatType != nil && *o.RepeatType == "list" {
		if len(o.RepeatDays) > 0 && !contains(o.RepeatDays, at.Format("Mon")) {
			return false
		}
		if len(o.RepeatWeeks) > 0 {
			_, week := at.ISOWeek()
			if !containsInt(o.RepeatWeeks, week) {
				return false
			}
		}
		if len(o.RepeatMonths) > 0 && !contains(o.RepeatMonths, at.Format("Jan")) {
			return false
		}
		return true
	}
	return false
}

func containsInt(set []int, v int) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}

// Resolve returns the contact set for the alert's create time.
func (s *OnCallService) Resolve(ctx context.Context, alert *models.Alert) ([]models.NotificationInfo, error) {
	entries, err := s.onCalls.ListAll(ctx)
	if err != nil {
		return nil, err
	}

	var targets []models.NotificationInfo
	for i := range entries {
		o := &entries[i]
		if o.Customer != nil && (alert.Customer == nil || *o.Customer != *alert.Customer) {
			continue
		}
		if !onCallCovers(o, alert.CreateTime) {
			continue
		}
		expanded, err := s.expand(ctx, o.UserIDs, o.GroupIDs)
		if err != nil {
			return nil, err
		}
		targets = append(targets, expanded...)
	}
	return dedupeTargets(targets), nil
}

// expand turns user and group ids into contactable targets. Group
// phone numbers and mail addresses pair up by index; group member
// users contribute their own contact details.
func (s *OnCallService) expand(ctx context.Context, userIDs, groupIDs []string) ([]models.NotificationInfo, error) {
	var targets []models.NotificationInfo

	users, err := s.users.GetByIDs(ctx, userIDs)
	if err != nil {
		return nil, err
	}
	for i := range users {
		targets = append(targets, userTarget(&users[i]))
	}

	for _, gid := range groupIDs {
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
	return targets, nil
}

func userTarget(u *models.User) models.NotificationInfo {
	t := models.NotificationInfo{Mail: u.Email}
	if u.PhoneNumber != nil {
		t.PhoneNumber = *u.PhoneNumber
	}
	return t
}

func groupTargets(g *models.NotificationGroup) []models.NotificationInfo {
	n := len(g.PhoneNumbers)
	if len(g.Mails) > n {
		n = len(g.Mails)
	}
	targets := make([]models.NotificationInfo, 0, n)
	for i := 0; i < n; i++ {
		var t models.NotificationInfo
		if i < len(g.PhoneNumbers) {
			t.PhoneNumber = g.PhoneNumbers[i]
		}
		if i < len(g.Mails) {
			t.Mail = g.Mails[i]
		}
		targets = append(targets, t)
	}
	return targets
}

func dedupeTargets(targets []models.NotificationInfo) []models.NotificationInfo {
	seen := map[models.NotificationInfo]bool{}
	out := make([]models.NotificationInfo, 0, len(targets))
	for _, t := range targets {
		if !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	return out
}
