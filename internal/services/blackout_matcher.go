package services

import (
	"context"

	"alertd/internal/models"
	"alertd/internal/repository"
)

// BlackoutMatcher decides whether an alert falls inside an active
// maintenance window.
type BlackoutMatcher struct {
	blackouts *repository.BlackoutRepository
}

func NewBlackoutMatcher(blackouts *repository.BlackoutRepository) *BlackoutMatcher {
	return &BlackoutMatcher{blackouts: blackouts}
}

// Matches reports whether any blackout covering the alert's create
// time silences it.
func (m *BlackoutMatcher) Matches(ctx context.Context, alert *models.Alert) (bool, error) {
	rows, err := m.blackouts.ListWindowed(ctx, alert.Environment, alert.CreateTime)
	if err != nil {
		return false, err
	}
	for i := range rows {
		if blackoutMatches(&rows[i], alert) {
			return true, nil
		}
	}
	return false, nil
}

// blackoutMatches evaluates one row against the alert. Each of the
// six optional attributes is either wild (null scalar, empty set) or
// must match: scalars by equality, service and tags by being a subset
// of the alert's. Environment equality and the time window are the
// caller's responsibility.
func blackoutMatches(b *models.Blackout, alert *models.Alert) bool {
	if b.Environment != alert.Environment {
		return false
	}
	if b.Customer != nil && (alert.Customer == nil || *b.Customer != *alert.Customer) {
		return false
	}
	if b.Resource != nil && *b.Resource != "" && *b.Resource != alert.Resource {
		return false
	}
	if len(b.Service) > 0 && !subset(b.Service, alert.Service) {
		return false
	}
	if b.Event != nil && *b.Event != "" && *b.Event != alert.Event {
		return false
	}
	if b.Group != nil && *b.Group != "" && *b.Group != alert.Group {
		return false
	}
	if len(b.Tags) > 0 && !subset(b.Tags, alert.Tags) {
		return false
	}
	if b.Origin != nil && *b.Origin != "" && *b.Origin != alert.Origin {
		return false
	}
	return true
}
