package alarm

import (
	"testing"

	"alertd/internal/models"
	"alertd/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAlert(severity string) *models.Alert {
	return &models.Alert{
		Resource:    "web01",
		Event:       "HttpError",
		Environment: "Production",
		Severity:    severity,
	}
}

func TestTransitionNewAlarm(t *testing.T) {
	severity, status, err := Transition(newAlert(models.SeverityMajor), "", "")
	require.NoError(t, err)
	assert.Equal(t, models.SeverityMajor, severity)
	assert.Equal(t, models.StatusOpen, status)
}

func TestTransitionNormalStaysClosed(t *testing.T) {
	severity, status, err := Transition(newAlert(models.SeverityNormal), "", "")
	require.NoError(t, err)
	assert.Equal(t, models.SeverityNormal, severity)
	assert.Equal(t, models.StatusClosed, status)
}

func TestTransitionProcessReturnsToNormal(t *testing.T) {
	_, status, err := Transition(newAlert(models.SeverityNormal), models.StatusOpen, "")
	require.NoError(t, err)
	assert.Equal(t, models.StatusUnack, status)

	_, status, err = Transition(newAlert(models.SeverityNormal), models.StatusAck, "")
	require.NoError(t, err)
	assert.Equal(t, models.StatusClosed, status)
}

func TestTransitionReAlarmWhileAcked(t *testing.T) {
	alert := newAlert(models.SeverityCritical)
	alert.PreviousSeverity = models.SeverityMinor
	_, status, err := Transition(alert, models.StatusAck, "")
	require.NoError(t, err)
	assert.Equal(t, models.StatusOpen, status)
}

func TestTransitionAckStaysAckedWithoutEscalation(t *testing.T) {
	alert := newAlert(models.SeverityMinor)
	alert.PreviousSeverity = models.SeverityMinor
	_, status, err := Transition(alert, models.StatusAck, "")
	require.NoError(t, err)
	assert.Equal(t, models.StatusAck, status)
}

func TestTransitionOperatorActions(t *testing.T) {
	cases := []struct {
		name       string
		severity   string
		current    string
		action     string
		wantStatus string
	}{
		{"shelve from open", models.SeverityMajor, models.StatusOpen, models.ActionShelve, models.StatusShelved},
		{"unshelve while raised", models.SeverityMajor, models.StatusShelved, models.ActionUnshelve, models.StatusOpen},
		{"unshelve after return", models.SeverityNormal, models.StatusShelved, models.ActionUnshelve, models.StatusClosed},
		{"ack open alarm", models.SeverityMajor, models.StatusOpen, models.ActionAck, models.StatusAck},
		{"ack rtn-unack closes", models.SeverityNormal, models.StatusUnack, models.ActionAck, models.StatusClosed},
		{"unack returns to open", models.SeverityMajor, models.StatusAck, models.ActionUnack, models.StatusOpen},
		{"reopen closed", models.SeverityMajor, models.StatusClosed, models.ActionOpen, models.StatusUnack},
		{"open from ack", models.SeverityMajor, models.StatusAck, models.ActionOpen, models.StatusOpen},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			alert := newAlert(tc.severity)
			_, status, err := Transition(alert, tc.current, tc.action)
			require.NoError(t, err)
			assert.Equal(t, tc.wantStatus, status)
		})
	}
}

func TestTransitionClose(t *testing.T) {
	severity, status, err := Transition(newAlert(models.SeverityCritical), models.StatusOpen, models.ActionClose)
	require.NoError(t, err)
	assert.Equal(t, models.SeverityNormal, severity)
	assert.Equal(t, models.StatusClosed, status)
}

func TestTransitionEscalate(t *testing.T) {
	severity, status, err := Transition(newAlert(models.SeverityMinor), models.StatusOpen, models.ActionEscalate)
	require.NoError(t, err)
	assert.Equal(t, models.SeverityMajor, severity)
	assert.Equal(t, models.StatusOpen, status)

	// already at the top of the scale: severity and status hold
	severity, status, err = Transition(newAlert(models.SeveritySecurity), models.StatusOpen, models.ActionEscalate)
	require.NoError(t, err)
	assert.Equal(t, models.SeveritySecurity, severity)
	assert.Equal(t, models.StatusOpen, status)
}

func TestTransitionOpenWhenAlreadyOpen(t *testing.T) {
	_, _, err := Transition(newAlert(models.SeverityMajor), models.StatusOpen, models.ActionOpen)
	require.Error(t, err)
	var ce *errors.CodeError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, 409, ce.Code)
}

func TestTransitionExternalStatusWins(t *testing.T) {
	alert := newAlert(models.SeverityMajor)
	alert.Status = models.StatusShelved
	_, status, err := Transition(alert, models.StatusOpen, "")
	require.NoError(t, err)
	assert.Equal(t, models.StatusShelved, status)
}

func TestTransitionExternalStatusIgnoredDuringAction(t *testing.T) {
	alert := newAlert(models.SeverityMajor)
	alert.Status = models.StatusShelved
	_, status, err := Transition(alert, models.StatusOpen, models.ActionAck)
	require.NoError(t, err)
	assert.Equal(t, models.StatusAck, status)
}

func TestTransitionSuppressedReturns(t *testing.T) {
	_, status, err := Transition(newAlert(models.SeverityNormal), models.StatusDsupr, "")
	require.NoError(t, err)
	assert.Equal(t, models.StatusClosed, status)

	_, status, err = Transition(newAlert(models.SeverityMajor), models.StatusOosrv, "")
	require.NoError(t, err)
	assert.Equal(t, models.StatusOpen, status)
}

func TestTransitionInvalidSeverity(t *testing.T) {
	_, _, err := Transition(newAlert("catastrophic"), "", "")
	require.Error(t, err)
	var ce *errors.CodeError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, 400, ce.Code)
}

func TestTransitionInvalidExternalStatus(t *testing.T) {
	alert := newAlert(models.SeverityMajor)
	alert.Status = "sleeping"
	_, _, err := Transition(alert, "", "")
	require.Error(t, err)
}

func TestIsSuppressed(t *testing.T) {
	assert.True(t, IsSuppressed(&models.Alert{Status: models.StatusDsupr}))
	assert.True(t, IsSuppressed(&models.Alert{Status: models.StatusOosrv}))
	assert.False(t, IsSuppressed(&models.Alert{Status: models.StatusOpen}))
}
