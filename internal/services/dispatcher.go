package services

import (
	"context"
	"log"
	"strings"
	"time"

	"alertd/internal/models"
	"alertd/internal/repository"

	"github.com/google/uuid"
)

// Dispatcher turns alert and status events into notifications: it
// selects firing rules, defers the delayed ones, and fans the rest out
// to their channels in the background. Every transport attempt is
// recorded in the notification history.
type Dispatcher struct {
	rules      *RuleService
	transports *Transports
	channels   *repository.ChannelRepository
	delays     *repository.DelayRepository
	history    *repository.NotificationHistoryRepository
	alerts     *repository.AlertRepository
	ruleRepo   *repository.NotificationRuleRepository

	sendTimeout time.Duration
}

func NewDispatcher(rules *RuleService, transports *Transports, channels *repository.ChannelRepository,
	delays *repository.DelayRepository, history *repository.NotificationHistoryRepository,
	alerts *repository.AlertRepository, ruleRepo *repository.NotificationRuleRepository) *Dispatcher {
	return &Dispatcher{
		rules:       rules,
		transports:  transports,
		channels:    channels,
		delays:      delays,
		history:     history,
		alerts:      alerts,
		ruleRepo:    ruleRepo,
		sendTimeout: time.Minute,
	}
}

// AlertReceived handles a processed inbound alert. Pending delayed
// notifications for the alert are discarded first; repeats notify
// nobody.
func (d *Dispatcher) AlertReceived(ctx context.Context, alert *models.Alert) {
	if err := d.delays.DeleteByAlert(ctx, alert.ID); err != nil {
		log.Printf("dispatcher: clearing delays for alert %s: %v", alert.ID, err)
	}
	if alert.Repeat {
		return
	}
	d.dispatch(ctx, alert, "")
}

// StatusChanged handles an operator-driven status change.
func (d *Dispatcher) StatusChanged(ctx context.Context, alert *models.Alert, status string) {
	if err := d.delays.DeleteByAlert(ctx, alert.ID); err != nil {
		log.Printf("dispatcher: clearing delays for alert %s: %v", alert.ID, err)
	}
	d.dispatch(ctx, alert, status)
}

func (d *Dispatcher) dispatch(ctx context.Context, alert *models.Alert, status string) {
	now := time.Now()
	var matches []RuleMatch
	var err error
	if status == "" {
		matches, err = d.rules.SelectActive(ctx, alert, now)
	} else {
		matches, err = d.rules.SelectActiveStatus(ctx, alert, status, now)
	}
	if err != nil {
		log.Printf("dispatcher: selecting rules for alert %s: %v", alert.ID, err)
		return
	}

	var immediate []RuleMatch
	for _, match := range matches {
		if match.Rule.DelayTime != nil && *match.Rule.DelayTime > 0 {
			delay := &models.DelayedNotification{
				ID:         uuid.New(),
				AlertID:    alert.ID,
				RuleID:     match.Rule.ID,
				FireAt:     now.Add(time.Duration(*match.Rule.DelayTime) * time.Second),
				CreateTime: now,
			}
			if err := d.delays.Upsert(ctx, delay); err != nil {
				log.Printf("dispatcher: delaying rule %s for alert %s: %v", match.Rule.ID, alert.ID, err)
			}
			continue
		}
		immediate = append(immediate, match)
	}
	if len(immediate) == 0 {
		return
	}

	alertCopy := *alert
	go d.sendAll(&alertCopy, immediate, status)
}

// sendAll runs in the background with its own deadline; the request
// that produced the event has already returned.
func (d *Dispatcher) sendAll(alert *models.Alert, matches []RuleMatch, status string) {
	ctx, cancel := context.WithTimeout(context.Background(), d.sendTimeout)
	defer cancel()
	for _, match := range matches {
		d.sendRule(ctx, alert, match.Rule, match.Trigger, status)
	}
}

func (d *Dispatcher) sendRule(ctx context.Context, alert *models.Alert, rule *models.NotificationRule, trigger *models.NotificationTrigger, status string) {
	channel, err := d.channels.Get(ctx, rule.ChannelID)
	if err != nil {
		log.Printf("dispatcher: rule %s: loading channel %s: %v", rule.ID, rule.ChannelID, err)
		return
	}
	targets, err := d.rules.Targets(ctx, rule, alert)
	if err != nil {
		log.Printf("dispatcher: rule %s: resolving targets: %v", rule.ID, err)
		return
	}
	if len(targets) == 0 {
		return
	}

	rendered := alert
	if status != "" {
		copied := *alert
		copied.Status = status
		rendered = &copied
	}
	message := renderMessage(messageTemplate(rule, trigger), rendered)

	results := d.transports.Send(ctx, channel, message, targets)
	for _, result := range results {
		d.record(ctx, alert.ID, rule.ID, channel, message, result)
	}
}

func (d *Dispatcher) record(ctx context.Context, alertID, ruleID uuid.UUID, channel *models.NotificationChannel, message string, result SendResult) {
	entry := &models.NotificationHistory{
		ID:        uuid.New(),
		Sent:      result.Sent,
		Message:   message,
		ChannelID: channel.ID,
		RuleID:    ruleID,
		AlertID:   alertID,
		Receiver:  strings.Join(result.Receivers, ","),
		Sender:    channel.Sender,
		SentTime:  time.Now(),
	}
	if result.ProviderID != "" {
		if id, err := uuid.Parse(result.ProviderID); err == nil {
			entry.ID = id
		}
	}
	if result.Error != "" {
		entry.Error = &result.Error
		log.Printf("dispatcher: send failed via channel %s to %s: %s", channel.ID, entry.Receiver, result.Error)
	}
	if err := d.history.Create(ctx, entry); err != nil {
		log.Printf("dispatcher: recording notification history: %v", err)
	}
}

// FireDue sends every delayed notification whose timer has elapsed.
// Entries are claimed atomically so concurrent workers never double
// send. Returns the number of entries fired.
func (d *Dispatcher) FireDue(ctx context.Context, now time.Time) (int, error) {
	due, err := d.delays.PopDue(ctx, now)
	if err != nil {
		return 0, err
	}
	for _, delay := range due {
		alert, err := d.alerts.Get(ctx, delay.AlertID)
		if err != nil {
			log.Printf("dispatcher: delayed fire: alert %s: %v", delay.AlertID, err)
			continue
		}
		rule, err := d.ruleRepo.Get(ctx, delay.RuleID)
		if err != nil {
			log.Printf("dispatcher: delayed fire: rule %s: %v", delay.RuleID, err)
			continue
		}
		trigger := selectTrigger(rule, alert, "")
		alertCopy := *alert
		ruleCopy := *rule
		go func() {
			sendCtx, cancel := context.WithTimeout(context.Background(), d.sendTimeout)
			defer cancel()
			d.sendRule(sendCtx, &alertCopy, &ruleCopy, trigger, "")
		}()
	}
	return len(due), nil
}

// TestChannel sends a canned message through a channel so operators
// can verify its configuration. Attempts are recorded like any other
// send, keyed to the zero alert id.
func (d *Dispatcher) TestChannel(ctx context.Context, channel *models.NotificationChannel, text string, targets []models.NotificationInfo) []SendResult {
	message := text
	if message == "" {
		message = "test message for verifying a notification channel"
	}
	results := d.transports.Send(ctx, channel, message, targets)
	for _, result := range results {
		d.record(ctx, uuid.Nil, uuid.Nil, channel, message, result)
	}
	return results
}

// selectTrigger picks the first trigger matching the alert's severity
// transition, mirroring the selection done when the rule first fired.
func selectTrigger(rule *models.NotificationRule, alert *models.Alert, status string) *models.NotificationTrigger {
	for i := range rule.Triggers {
		if triggerMatches(rule.Triggers[i], alert, status) {
			return &rule.Triggers[i]
		}
	}
	return nil
}
