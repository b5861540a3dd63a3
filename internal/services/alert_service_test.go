package services

import (
	"testing"
	"time"

	"alertd/internal/models"
	"alertd/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPolicyCheckDefaultedOrigin(t *testing.T) {
	cfg := &Config{Origin: "alertd", AlertTimeout: 86400}
	svc := NewAlertService(cfg, nil, nil, nil, nil)

	// a client that sends no origin gets the local default and is
	// still accepted
	alert := &models.Alert{Environment: "Production", Resource: "web01", Event: "NodeDown", Severity: models.SeverityMinor}
	svc.applyDefaults(alert, time.Now())
	assert.Equal(t, "alertd", alert.Origin)
	assert.NoError(t, svc.policyCheck(alert, ""))

	// a client that explicitly claims our own origin is a loop
	forwarded := &models.Alert{Environment: "Production", Resource: "web01", Event: "NodeDown", Severity: models.SeverityMinor, Origin: "alertd"}
	svc.applyDefaults(forwarded, time.Now())
	err := svc.policyCheck(forwarded, "alertd")
	var coded *errors.CodeError
	require.ErrorAs(t, err, &coded)
	assert.Equal(t, 202, coded.Code)
}

func TestPolicyCheckBlacklistAndEnvironment(t *testing.T) {
	cfg := &Config{
		Origin:              "alertd",
		AllowedEnvironments: []string{"Production", "Development"},
		OriginBlacklist:     []string{"chatty/agent"},
	}
	svc := NewAlertService(cfg, nil, nil, nil, nil)

	bad := &models.Alert{Environment: "Staging", Origin: "zabbix"}
	err := svc.policyCheck(bad, "zabbix")
	var coded *errors.CodeError
	require.ErrorAs(t, err, &coded)
	assert.Equal(t, 403, coded.Code)

	noisy := &models.Alert{Environment: "Production", Origin: "chatty/agent"}
	err = svc.policyCheck(noisy, "chatty/agent")
	require.ErrorAs(t, err, &coded)
	assert.Equal(t, 403, coded.Code)
}

func TestRateLimiterDisabled(t *testing.T) {
	l := newRateLimiter(0, time.Minute)
	now := time.Now()
	for i := 0; i < 100; i++ {
		assert.True(t, l.allow("zabbix", now))
	}
}

func TestRateLimiterPerOriginWindow(t *testing.T) {
	l := newRateLimiter(2, time.Minute)
	now := time.Now()

	assert.True(t, l.allow("zabbix", now))
	assert.True(t, l.allow("zabbix", now))
	assert.False(t, l.allow("zabbix", now))

	// other origins keep their own budget
	assert.True(t, l.allow("prometheus", now))

	// the window rolling over resets the counters
	later := now.Add(2 * time.Minute)
	assert.True(t, l.allow("zabbix", later))
}

func TestLastStatusChange(t *testing.T) {
	entered := time.Date(2024, 3, 5, 10, 0, 0, 0, time.UTC)
	alert := &models.Alert{
		UpdateTime: time.Date(2024, 3, 5, 12, 0, 0, 0, time.UTC),
		History: []models.HistoryRecord{
			{Status: models.StatusShelved, UpdateTime: entered, Timeout: 600},
			{Status: models.StatusOpen, UpdateTime: entered.Add(-time.Hour)},
			{Status: models.StatusShelved, UpdateTime: entered.Add(-2 * time.Hour), Timeout: 300},
		},
	}

	// newest matching record wins
	at, timeout := lastStatusChange(alert, models.StatusShelved, 7200)
	assert.Equal(t, entered, at)
	assert.Equal(t, 600, timeout)

	// zero recorded timeout falls back to the default
	at, timeout = lastStatusChange(alert, models.StatusOpen, 7200)
	assert.Equal(t, entered.Add(-time.Hour), at)
	assert.Equal(t, 7200, timeout)

	// no record: the alert's update time stands in
	at, timeout = lastStatusChange(alert, models.StatusAck, 7200)
	assert.Equal(t, alert.UpdateTime, at)
	assert.Equal(t, 7200, timeout)
}

func TestDedupHistory(t *testing.T) {
	now := time.Now()
	existing := &models.Alert{Event: "HttpError", Severity: models.SeverityMajor, Status: models.StatusOpen, Value: "503", Timeout: 600}
	incoming := &models.Alert{Value: "504", Text: "bad gateway"}

	// the machine moved the alert: a status entry, even if the value
	// changed too
	rec := dedupHistory(existing, incoming, models.StatusUnack, true, now)
	if assert.NotNil(t, rec) {
		assert.Equal(t, models.ChangeStatus, rec.Type)
		assert.Equal(t, models.StatusUnack, rec.Status)
		assert.Equal(t, "504", rec.Value)
	}

	// same status, new value: a value entry
	rec = dedupHistory(existing, incoming, models.StatusOpen, true, now)
	if assert.NotNil(t, rec) {
		assert.Equal(t, models.ChangeValue, rec.Type)
		assert.Equal(t, models.StatusOpen, rec.Status)
	}

	// plain repeat: nothing to record
	assert.Nil(t, dedupHistory(existing, incoming, models.StatusOpen, false, now))
}
