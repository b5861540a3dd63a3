package services

import (
	"context"
	"time"

	"alertd/internal/models"
	"alertd/internal/repository"

	"github.com/google/uuid"
)

// HeartbeatStatus is a heartbeat annotated with its derived health.
type HeartbeatStatus struct {
	models.Heartbeat
	Status  string `json:"status"`
	Latency int64  `json:"latency"`
	Since   int64  `json:"since"`
}

// HeartbeatService records origin liveness pings and classifies them.
type HeartbeatService struct {
	cfg        *Config
	heartbeats *repository.HeartbeatRepository
}

func NewHeartbeatService(cfg *Config, heartbeats *repository.HeartbeatRepository) *HeartbeatService {
	return &HeartbeatService{cfg: cfg, heartbeats: heartbeats}
}

// Receive records a ping; one row per (origin, customer).
func (s *HeartbeatService) Receive(ctx context.Context, hb *models.Heartbeat) (*models.Heartbeat, error) {
	if hb.ID == uuid.Nil {
		hb.ID = uuid.New()
	}
	if hb.Type == "" {
		hb.Type = "Heartbeat"
	}
	if hb.CreateTime.IsZero() {
		hb.CreateTime = time.Now()
	}
	hb.ReceiveTime = time.Now()
	return s.heartbeats.Upsert(ctx, hb)
}

func (s *HeartbeatService) Get(ctx context.Context, id uuid.UUID) (*models.Heartbeat, error) {
	return s.heartbeats.Get(ctx, id)
}

func (s *HeartbeatService) Delete(ctx context.Context, id uuid.UUID) error {
	return s.heartbeats.Delete(ctx, id)
}

// List returns all heartbeats with their derived statuses.
func (s *HeartbeatService) List(ctx context.Context) ([]HeartbeatStatus, error) {
	rows, err := s.heartbeats.List(ctx)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	out := make([]HeartbeatStatus, 0, len(rows))
	for i := range rows {
		hb := rows[i]
		out = append(out, HeartbeatStatus{
			Heartbeat: hb,
			Status:    hb.DeriveStatus(now, s.cfg.HeartbeatMaxLatency),
			Latency:   hb.LatencyMillis(),
			Since:     int64(now.Sub(hb.ReceiveTime).Seconds()),
		})
	}
	return out, nil
}

// Unhealthy returns the heartbeats that are slow or expired.
func (s *HeartbeatService) Unhealthy(ctx context.Context) ([]HeartbeatStatus, error) {
	all, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	var bad []HeartbeatStatus
	for _, hb := range all {
		if hb.Status != models.HeartbeatOK {
			bad = append(bad, hb)
		}
	}
	return bad, nil
}
