package services

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"alertd/internal/alarm"
	"alertd/internal/models"
	"alertd/internal/repository"
	"alertd/pkg/errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// heartbeatEvent is the reserved event name that makes an inbound
// alert count as a heartbeat instead.
const heartbeatEvent = "Heartbeat"

// AlertService owns the alert lifecycle: ingest with dedup and
// correlation, operator status changes and actions, bulk edits and
// the timeout sweeps.
type AlertService struct {
	cfg        *Config
	alerts     *repository.AlertRepository
	heartbeats *repository.HeartbeatRepository
	blackouts  *BlackoutMatcher
	dispatcher *Dispatcher

	// Broadcast, when set, is invoked after every committed alert
	// mutation so live listeners can follow along.
	Broadcast func(event string, alert *models.Alert)

	limiter *rateLimiter
}

func NewAlertService(cfg *Config, alerts *repository.AlertRepository, heartbeats *repository.HeartbeatRepository,
	blackouts *BlackoutMatcher, dispatcher *Dispatcher) *AlertService {
	return &AlertService{
		cfg:        cfg,
		alerts:     alerts,
		heartbeats: heartbeats,
		blackouts:  blackouts,
		dispatcher: dispatcher,
		limiter:    newRateLimiter(cfg.RateLimitCount, cfg.RateLimitWindow),
	}
}

func (s *AlertService) broadcast(event string, alert *models.Alert) {
	if s.Broadcast != nil {
		s.Broadcast(event, alert)
	}
}

// Receive runs the full ingest pipeline and returns the stored alert.
// Soft refusals (heartbeat masquerade, blackout drop, forwarding
// loop) surface as 202-coded errors; policy refusals as 403/429.
func (s *AlertService) Receive(ctx context.Context, alert *models.Alert) (*models.Alert, error) {
	now := time.Now()
	clientOrigin := alert.Origin
	s.applyDefaults(alert, now)

	if err := s.validate(alert); err != nil {
		return nil, err
	}
	if err := s.policyCheck(alert, clientOrigin); err != nil {
		return nil, err
	}
	if !s.limiter.allow(alert.Origin, now) {
		return nil, errors.ErrRateLimited(fmt.Sprintf("too many alerts from origin %q", alert.Origin))
	}

	if alert.Event == heartbeatEvent {
		if err := s.masqueradeHeartbeat(ctx, alert); err != nil {
			return nil, err
		}
		return nil, errors.ErrHeartbeatReceived("alert converted to heartbeat")
	}

	silenced, err := s.blackouts.Matches(ctx, alert)
	if err != nil {
		return nil, err
	}
	if silenced {
		if !s.cfg.BlackoutAccept {
			return nil, errors.ErrBlackoutPeriod("suppressed by blackout period")
		}
		alert.Status = models.StatusBlackout
	}

	stored, err := s.upsert(ctx, alert, now)
	if err != nil {
		return nil, err
	}

	s.broadcast("alert", stored)
	s.dispatcher.AlertReceived(ctx, stored)
	return stored, nil
}

func (s *AlertService) applyDefaults(alert *models.Alert, now time.Time) {
	if alert.ID == uuid.Nil {
		alert.ID = uuid.New()
	}
	if alert.Severity == "" {
		alert.Severity = models.DefaultNormalSeverity
	}
	if alert.Type == "" {
		alert.Type = "alert"
	}
	if alert.Origin == "" {
		alert.Origin = s.cfg.Origin
	}
	if alert.CreateTime.IsZero() {
		alert.CreateTime = now
	}
	if alert.Timeout == 0 {
		alert.Timeout = s.cfg.AlertTimeout
	}
	alert.ReceiveTime = now
}

func (s *AlertService) validate(alert *models.Alert) error {
	switch {
	case alert.Environment == "":
		return errors.ErrValidation("environment is required")
	case alert.Resource == "":
		return errors.ErrValidation("resource is required")
	case alert.Event == "":
		return errors.ErrValidation("event is required")
	}
	if !models.ValidSeverity(alert.Severity) {
		return errors.ErrValidation(fmt.Sprintf("severity %q is not valid", alert.Severity))
	}
	if alert.Status != "" && !models.ValidStatus(alert.Status) {
		return errors.ErrValidation(fmt.Sprintf("status %q is not valid", alert.Status))
	}
	return nil
}

// policyCheck enforces the environment allow-list, the origin
// blacklist, and detects alerts forwarded back to their own origin.
// The loop check runs against the origin the client sent; an alert
// that merely defaulted to the local origin is accepted.
func (s *AlertService) policyCheck(alert *models.Alert, clientOrigin string) error {
	if len(s.cfg.AllowedEnvironments) > 0 && !contains(s.cfg.AllowedEnvironments, alert.Environment) {
		return errors.ErrRejected(fmt.Sprintf("environment %q is not allowed", alert.Environment))
	}
	if contains(s.cfg.OriginBlacklist, alert.Origin) {
		return errors.ErrRejected(fmt.Sprintf("origin %q is blacklisted", alert.Origin))
	}
	if clientOrigin != "" && clientOrigin == s.cfg.Origin {
		return errors.ErrForwardingLoop(fmt.Sprintf("alert forwarded from own origin %q", clientOrigin))
	}
	return nil
}

func (s *AlertService) masqueradeHeartbeat(ctx context.Context, alert *models.Alert) error {
	hb := &models.Heartbeat{
		ID:          uuid.New(),
		Origin:      alert.Origin,
		Tags:        alert.Tags,
		Type:        "Heartbeat",
		CreateTime:  alert.CreateTime,
		Timeout:     alert.Timeout,
		ReceiveTime: alert.ReceiveTime,
		Customer:    alert.Customer,
		Attributes:  alert.Attributes,
	}
	_, err := s.heartbeats.Upsert(ctx, hb)
	return err
}

// upsert decides duplicate, correlate or create under a row lock on
// the alert identity so concurrent ingests for the same identity
// serialise.
func (s *AlertService) upsert(ctx context.Context, alert *models.Alert, now time.Time) (*models.Alert, error) {
	tx, err := s.alerts.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	existing, err := s.alerts.FindIdentityForUpdate(ctx, tx, alert.Environment, alert.Resource, alert.Event, alert.Customer)
	if err != nil {
		return nil, err
	}

	var stored *models.Alert
	switch {
	case existing == nil:
		stored, err = s.create(ctx, tx, alert, now)
	case existing.Event == alert.Event && existing.Severity == alert.Severity:
		stored, err = s.deduplicate(ctx, tx, existing, alert, now)
	default:
		stored, err = s.correlate(ctx, tx, existing, alert, now)
	}
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return stored, nil
}

func (s *AlertService) create(ctx context.Context, tx pgx.Tx, alert *models.Alert, now time.Time) (*models.Alert, error) {
	severity, status, err := alarm.Transition(alert, "", "")
	if err != nil {
		return nil, err
	}
	if alert.Status == models.StatusBlackout {
		status = models.StatusBlackout
	}
	alert.Severity = severity
	alert.Status = status
	alert.DuplicateCount = 0
	alert.Repeat = false
	alert.PreviousSeverity = models.DefaultPreviousSeverity
	alert.TrendIndication = models.Trend(models.DefaultPreviousSeverity, severity)
	alert.LastReceiveID = alert.ID
	alert.LastReceiveTime = now
	alert.UpdateTime = now
	alert.History = []models.HistoryRecord{{
		ID:         alert.ID.String(),
		Event:      alert.Event,
		Severity:   alert.Severity,
		Status:     alert.Status,
		Value:      alert.Value,
		Text:       alert.Text,
		Type:       models.ChangeNew,
		UpdateTime: now,
		Timeout:    alert.Timeout,
	}}

	if err := s.alerts.InsertTx(ctx, tx, alert); err != nil {
		return nil, err
	}
	return alert, nil
}

func (s *AlertService) deduplicate(ctx context.Context, tx pgx.Tx, existing, incoming *models.Alert, now time.Time) (*models.Alert, error) {
	_, status, err := alarm.Transition(incoming, existing.Status, "")
	if err != nil {
		return nil, err
	}

	valueChanged := existing.Value != incoming.Value

	existing.DuplicateCount++
	existing.Repeat = true
	existing.Value = incoming.Value
	existing.Text = incoming.Text
	existing.Timeout = incoming.Timeout
	existing.RawData = incoming.RawData
	existing.Tags = models.MergeTags(existing.Tags, incoming.Tags)
	existing.Attributes = models.MergeAttributes(existing.Attributes, incoming.Attributes)
	existing.LastReceiveID = incoming.ID
	existing.LastReceiveTime = now
	existing.UpdateTime = now

	if record := dedupHistory(existing, incoming, status, valueChanged, now); record != nil {
		existing.History = models.PrependHistory(existing.History, *record, s.cfg.HistoryLimit)
	}
	existing.Status = status

	if err := s.alerts.UpdateTx(ctx, tx, existing); err != nil {
		return nil, err
	}
	return existing, nil
}

// dedupHistory is the history entry a duplicate ingest records: a
// status entry when the machine moved the alert, a value entry when
// only the measured value changed, nothing otherwise.
func dedupHistory(existing, incoming *models.Alert, status string, valueChanged bool, now time.Time) *models.HistoryRecord {
	record := models.HistoryRecord{
		ID:         incoming.ID.String(),
		Event:      existing.Event,
		Severity:   existing.Severity,
		Status:     status,
		Value:      incoming.Value,
		Text:       incoming.Text,
		UpdateTime: now,
		Timeout:    existing.Timeout,
	}
	switch {
	case status != existing.Status:
		record.Type = models.ChangeStatus
	case valueChanged:
		record.Type = models.ChangeValue
	default:
		return nil
	}
	return &record
}

func (s *AlertService) correlate(ctx context.Context, tx pgx.Tx, existing, incoming *models.Alert, now time.Time) (*models.Alert, error) {
	_, status, err := alarm.Transition(incoming, existing.Status, "")
	if err != nil {
		return nil, err
	}

	existing.PreviousSeverity = existing.Severity
	existing.TrendIndication = models.Trend(existing.Severity, incoming.Severity)
	existing.Event = incoming.Event
	existing.Severity = incoming.Severity
	existing.Status = status
	existing.Value = incoming.Value
	existing.Text = incoming.Text
	existing.Timeout = incoming.Timeout
	existing.RawData = incoming.RawData
	existing.DuplicateCount = 0
	existing.Repeat = false
	existing.Tags = models.MergeTags(existing.Tags, incoming.Tags)
	existing.Attributes = models.MergeAttributes(existing.Attributes, incoming.Attributes)
	if len(incoming.Correlate) > 0 {
		existing.Correlate = incoming.Correlate
	}
	existing.LastReceiveID = incoming.ID
	existing.LastReceiveTime = now
	existing.UpdateTime = now
	existing.History = models.PrependHistory(existing.History, models.HistoryRecord{
		ID:         incoming.ID.String(),
		Event:      incoming.Event,
		Severity:   incoming.Severity,
		Status:     status,
		Value:      incoming.Value,
		Text:       incoming.Text,
		Type:       models.ChangeSeverity,
		UpdateTime: now,
		Timeout:    existing.Timeout,
	}, s.cfg.HistoryLimit)

	if err := s.alerts.UpdateTx(ctx, tx, existing); err != nil {
		return nil, err
	}
	return existing, nil
}

// Get returns one alert.
func (s *AlertService) Get(ctx context.Context, id uuid.UUID) (*models.Alert, error) {
	return s.alerts.Get(ctx, id)
}

// SetStatus forces the alert into the given status, bypassing the
// state machine. Used by operators and the sweeps.
func (s *AlertService) SetStatus(ctx context.Context, id uuid.UUID, status, text, user string, timeout int) (*models.Alert, error) {
	return s.setStatus(ctx, id, status, text, user, timeout, models.ChangeStatus)
}

func (s *AlertService) setStatus(ctx context.Context, id uuid.UUID, status, text, user string, timeout int, changeType string) (*models.Alert, error) {
	if !models.ValidStatus(status) {
		return nil, errors.ErrValidation(fmt.Sprintf("status %q is not valid", status))
	}
	alert, err := s.mutate(ctx, id, func(alert *models.Alert, now time.Time) error {
		if timeout > 0 {
			alert.Timeout = timeout
		}
		alert.History = models.PrependHistory(alert.History, models.HistoryRecord{
			ID:         alert.LastReceiveID.String(),
			Event:      alert.Event,
			Severity:   alert.Severity,
			Status:     status,
			Text:       text,
			Type:       changeType,
			UpdateTime: now,
			User:       user,
			Timeout:    alert.Timeout,
		}, s.cfg.HistoryLimit)
		alert.Status = status
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.broadcast("status", alert)
	s.dispatcher.StatusChanged(ctx, alert, status)
	return alert, nil
}

// Action applies an operator action through the state machine.
func (s *AlertService) Action(ctx context.Context, id uuid.UUID, action, text, user string, timeout int) (*models.Alert, error) {
	return s.action(ctx, id, action, text, user, timeout, models.ChangeAction)
}

func (s *AlertService) action(ctx context.Context, id uuid.UUID, action, text, user string, timeout int, changeType string) (*models.Alert, error) {
	var changedStatus string
	alert, err := s.mutate(ctx, id, func(alert *models.Alert, now time.Time) error {
		severity, status, err := alarm.Transition(alert, alert.Status, action)
		if err != nil {
			return err
		}

		effectiveTimeout := timeout
		if effectiveTimeout == 0 {
			switch status {
			case models.StatusShelved:
				effectiveTimeout = s.cfg.ShelveTimeout
			case models.StatusAck:
				effectiveTimeout = s.cfg.AckTimeout
			default:
				effectiveTimeout = alert.Timeout
			}
		}

		if status != alert.Status {
			changedStatus = status
		}
		if severity != alert.Severity {
			alert.PreviousSeverity = alert.Severity
			alert.TrendIndication = models.Trend(alert.Severity, severity)
		}
		alert.History = models.PrependHistory(alert.History, models.HistoryRecord{
			ID:         alert.LastReceiveID.String(),
			Event:      alert.Event,
			Severity:   severity,
			Status:     status,
			Text:       text,
			Type:       changeType,
			UpdateTime: now,
			User:       user,
			Timeout:    effectiveTimeout,
		}, s.cfg.HistoryLimit)
		alert.Severity = severity
		alert.Status = status
		alert.Timeout = effectiveTimeout
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.broadcast("action", alert)
	if changedStatus != "" {
		s.dispatcher.StatusChanged(ctx, alert, changedStatus)
	}
	return alert, nil
}

// Escalate bumps the alert one severity step up via the escalate
// action through the state machine.
func (s *AlertService) Escalate(ctx context.Context, id uuid.UUID, user string) (*models.Alert, error) {
	return s.Action(ctx, id, models.ActionEscalate, "escalated stale alert", user, 0)
}

// Tag unions tags into the alert's set.
func (s *AlertService) Tag(ctx context.Context, id uuid.UUID, tags []string) (*models.Alert, error) {
	return s.mutate(ctx, id, func(alert *models.Alert, now time.Time) error {
		alert.Tags = models.MergeTags(alert.Tags, tags)
		return nil
	})
}

// Untag removes tags from the alert's set.
func (s *AlertService) Untag(ctx context.Context, id uuid.UUID, tags []string) (*models.Alert, error) {
	return s.mutate(ctx, id, func(alert *models.Alert, now time.Time) error {
		alert.Tags = models.SubtractTags(alert.Tags, tags)
		return nil
	})
}

// ReplaceTags overwrites the alert's tag set.
func (s *AlertService) ReplaceTags(ctx context.Context, id uuid.UUID, tags []string) (*models.Alert, error) {
	return s.mutate(ctx, id, func(alert *models.Alert, now time.Time) error {
		alert.Tags = tags
		return nil
	})
}

// UpdateAttributes merges attributes into the alert; nil values
// delete their key.
func (s *AlertService) UpdateAttributes(ctx context.Context, id uuid.UUID, attributes map[string]interface{}) (*models.Alert, error) {
	return s.mutate(ctx, id, func(alert *models.Alert, now time.Time) error {
		alert.Attributes = models.MergeAttributes(alert.Attributes, attributes)
		return nil
	})
}

// AddNote records an operator note in the alert's history.
func (s *AlertService) AddNote(ctx context.Context, id uuid.UUID, text, user string) (*models.Alert, error) {
	return s.mutate(ctx, id, func(alert *models.Alert, now time.Time) error {
		alert.History = models.PrependHistory(alert.History, models.HistoryRecord{
			ID:         alert.LastReceiveID.String(),
			Event:      alert.Event,
			Severity:   alert.Severity,
			Status:     alert.Status,
			Text:       text,
			Type:       models.ChangeNote,
			UpdateTime: now,
			User:       user,
			Timeout:    alert.Timeout,
		}, s.cfg.HistoryLimit)
		return nil
	})
}

// Delete removes the alert and its pending delayed notifications.
func (s *AlertService) Delete(ctx context.Context, id uuid.UUID) error {
	if err := s.alerts.Delete(ctx, id); err != nil {
		return err
	}
	if err := s.dispatcher.delays.DeleteByAlert(ctx, id); err != nil {
		log.Printf("alerts: clearing delays for deleted alert %s: %v", id, err)
	}
	return nil
}

// FlapDetect reports whether the alert's identity flapped: more than
// the configured number of severity changes inside the window.
func (s *AlertService) FlapDetect(ctx context.Context, alert *models.Alert) (bool, error) {
	n, err := s.alerts.FlappingCount(ctx, alert.Environment, alert.Resource, alert.Event, alert.Customer, s.cfg.FlapWindow)
	if err != nil {
		return false, err
	}
	return n > s.cfg.FlapCount, nil
}

// mutate applies fn to the alert under a row lock and persists it.
func (s *AlertService) mutate(ctx context.Context, id uuid.UUID, fn func(*models.Alert, time.Time) error) (*models.Alert, error) {
	tx, err := s.alerts.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	alert, err := s.alerts.GetForUpdate(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	if err := fn(alert, now); err != nil {
		return nil, err
	}
	alert.UpdateTime = now
	if err := s.alerts.UpdateTx(ctx, tx, alert); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return alert, nil
}

// SweepExpired expires alerts past their effective timeout.
func (s *AlertService) SweepExpired(ctx context.Context) (int, error) {
	candidates, err := s.alerts.ListExpiredCandidates(ctx, s.cfg.AlertTimeout)
	if err != nil {
		return 0, err
	}
	var expired int
	for i := range candidates {
		_, err := s.setStatus(ctx, candidates[i].ID, models.StatusExpired, "timeout expired", "system", 0, models.ChangeExpired)
		if err != nil {
			log.Printf("sweep: expiring alert %s: %v", candidates[i].ID, err)
			continue
		}
		expired++
	}
	return expired, nil
}

// SweepUnshelve releases shelved alerts whose shelve timer elapsed.
func (s *AlertService) SweepUnshelve(ctx context.Context) (int, error) {
	return s.sweepTimedAction(ctx, models.StatusShelved, s.cfg.ShelveTimeout, models.ActionUnshelve)
}

// SweepUnack reopens acknowledged alerts whose ack timer elapsed.
func (s *AlertService) SweepUnack(ctx context.Context) (int, error) {
	if s.cfg.AckTimeout <= 0 {
		return 0, nil
	}
	return s.sweepTimedAction(ctx, models.StatusAck, s.cfg.AckTimeout, models.ActionUnack)
}

// sweepTimedAction applies the action to every alert sitting in the
// status longer than the timeout recorded on its latest matching
// history entry.
func (s *AlertService) sweepTimedAction(ctx context.Context, status string, defaultTimeout int, action string) (int, error) {
	alerts, err := s.alerts.ListByStatus(ctx, status)
	if err != nil {
		return 0, err
	}
	now := time.Now()
	var swept int
	for i := range alerts {
		alert := &alerts[i]
		since, timeout := lastStatusChange(alert, status, defaultTimeout)
		if timeout <= 0 || now.Before(since.Add(time.Duration(timeout)*time.Second)) {
			continue
		}
		if _, err := s.action(ctx, alert.ID, action, "timeout expired", "system", 0, models.ChangeTimeout); err != nil {
			log.Printf("sweep: %s alert %s: %v", action, alert.ID, err)
			continue
		}
		swept++
	}
	return swept, nil
}

// lastStatusChange finds when the alert entered the status and the
// timeout recorded at that point. History is newest first.
func lastStatusChange(alert *models.Alert, status string, defaultTimeout int) (time.Time, int) {
	for _, rec := range alert.History {
		if rec.Status == status {
			timeout := rec.Timeout
			if timeout == 0 {
				timeout = defaultTimeout
			}
			return rec.UpdateTime, timeout
		}
	}
	return alert.UpdateTime, defaultTimeout
}

// Housekeeping deletes closed and expired alerts past the retention
// thresholds. Returns the ids removed.
func (s *AlertService) Housekeeping(ctx context.Context) ([]uuid.UUID, error) {
	now := time.Now()
	removed, err := s.alerts.DeleteClosedExpired(ctx, now.Add(-s.cfg.DeleteExpiredAfter))
	if err != nil {
		return nil, err
	}
	info, err := s.alerts.DeleteInformational(ctx, now.Add(-s.cfg.DeleteInfoAfter))
	if err != nil {
		return removed, err
	}
	removed = append(removed, info...)
	for _, id := range removed {
		if err := s.dispatcher.delays.DeleteByAlert(ctx, id); err != nil {
			log.Printf("housekeeping: clearing delays for alert %s: %v", id, err)
		}
	}
	return removed, nil
}

// rateLimiter is a fixed-window per-origin counter. A zero limit
// disables it.
type rateLimiter struct {
	mu     sync.Mutex
	limit  int
	window time.Duration
	counts map[string]int
	reset  time.Time
}

func newRateLimiter(limit int, window time.Duration) *rateLimiter {
	return &rateLimiter{limit: limit, window: window, counts: map[string]int{}}
}

func (l *rateLimiter) allow(origin string, now time.Time) bool {
	if l.limit <= 0 {
		return true
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if now.After(l.reset) {
		l.counts = map[string]int{}
		l.reset = now.Add(l.window)
	}
	l.counts[origin]++
	return l.counts[origin] <= l.limit
}
