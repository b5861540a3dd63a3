package models

import (
	"time"

	"github.com/google/uuid"
)

// Blackout is a maintenance window that silences matching alerts.
type Blackout struct {
	ID          uuid.UUID `json:"id"`
	Priority    int       `json:"priority"`
	Environment string    `json:"environment"`
	Service     []string  `json:"service"`
	Resource    *string   `json:"resource"`
	Event       *string   `json:"event"`
	Group       *string   `json:"group"`
	Tags        []string  `json:"tags"`
	Origin      *string   `json:"origin"`
	Customer    *string   `json:"customer"`
	StartTime   time.Time `json:"startTime"`
	EndTime     time.Time `json:"endTime"`
	Duration    int       `json:"duration"`
	User        string    `json:"user"`
	Text        string    `json:"text"`
	CreateTime  time.Time `json:"createTime"`
}

// DerivePriority scores how specific a blackout is: more constrained
// attributes rank higher. Used for display ordering only.
func (b *Blackout) DerivePriority() int {
	p := 1
	if b.Resource != nil && *b.Resource != "" {
		p += 4
	}
	if len(b.Service) > 0 {
		p += 3
	}
	if b.Event != nil && *b.Event != "" {
		p += 4
	}
	if b.Group != nil && *b.Group != "" {
		p += 2
	}
	if len(b.Tags) > 0 {
		p += 2
	}
	if b.Origin != nil && *b.Origin != "" {
		p += 2
	}
	return p
}

// WindowStatus reports whether the blackout is pending, active or
// expired at the given instant.
func (b *Blackout) WindowStatus(now time.Time) string {
	switch {
	case now.Before(b.StartTime):
		return "pending"
	case now.Before(b.EndTime):
		return "active"
	default:
		return "expired"
	}
}
