// Package alarm implements the ANSI/ISA 18.2 alarm state machine.
//
// See Management of Alarm Systems for the Process Industries,
// https://www.isa.org/store/ansi/isa-182-2016/46962105
package alarm

import (
	"fmt"
	"log"

	"alertd/internal/models"

	"alertd/pkg/errors"
)

// DefaultStatus is the resting state of the machine.
const DefaultStatus = models.StatusClosed

// Transition applies the state machine to an alert update or operator
// action and returns the resulting (severity, status). currentStatus
// is the stored status of the correlated alert, or empty for a new
// alert. action is empty for unprompted (monitor-driven) updates.
func Transition(alert *models.Alert, currentStatus, action string) (string, string, error) {
	state := currentStatus
	if state == "" {
		state = DefaultStatus
	}

	severity := alert.Severity
	previousSeverity := alert.PreviousSeverity
	if previousSeverity == "" {
		previousSeverity = models.DefaultPreviousSeverity
	}

	if !models.ValidSeverity(severity) {
		return "", "", errors.ErrValidation(fmt.Sprintf("severity %q is not valid", severity))
	}

	next := func(rule, status string) (string, string, error) {
		log.Printf("state transition: rule %s: state=%s => severity=%s, status=%s", rule, state, severity, status)
		return severity, status, nil
	}

	// An inbound alert that carries its own status wins over the
	// machine when no operator action is in play.
	if action == "" && alert.Status != "" && alert.Status != models.StatusUnknown && alert.Status != DefaultStatus {
		if !models.ValidStatus(alert.Status) {
			return "", "", errors.ErrValidation(fmt.Sprintf("status %q is not valid", alert.Status))
		}
		return next("External State Change, Any (*) -> Any (*)", alert.Status)
	}

	switch action {
	case models.ActionShelve:
		return next("Operator Shelve, Any (*) -> Shelve (E)", models.StatusShelved)

	case models.ActionUnshelve:
		if severity == models.DefaultNormalSeverity {
			return next("Operator Unshelve, Shelve (E) -> Normal (A)", models.StatusClosed)
		}
		return next("Operator Unshelve, Shelve (E) -> Unack (B)", models.StatusOpen)

	case models.ActionOpen:
		if state == models.StatusOpen {
			return "", "", errors.ErrInvalidAction(fmt.Sprintf("alert is already in %s status", state))
		}
		if state == models.StatusClosed {
			return next("Operator Open, Any (*) -> Open", models.StatusUnack)
		}
		return next("Operator Open, Any (*) -> Open", models.StatusOpen)

	case models.ActionAck:
		if state == models.StatusOpen {
			return next("Operator Ack, Unack (B) -> Ack (C)", models.StatusAck)
		}
		if state == models.StatusUnack {
			return next("Operator Ack, RTN Unack (D) -> Normal (A)", models.StatusClosed)
		}

	case models.ActionUnack:
		if state == models.StatusAck {
			return next("Operator Unack, Ack (C) -> Unack (B)", models.StatusOpen)
		}

	case models.ActionClose:
		severity = models.DefaultNormalSeverity
		return next("Operator Close, Any (*) -> Normal (A)", DefaultStatus)

	case models.ActionEscalate:
		// bump one severity step and let the severity-driven rules
		// settle the status
		severity = models.NextSeverityUp(severity)
	}

	if state == models.StatusUnack {
		if severity != models.DefaultNormalSeverity {
			return next("Alarm Occurs, RTN Unack (D) -> Unack (B)", models.StatusOpen)
		}
	}

	if state == models.StatusClosed {
		if severity != models.DefaultNormalSeverity {
			return next("Alarm Occurs, Normal (A) -> Unack (B)", models.StatusOpen)
		}
	}

	if state == models.StatusAck {
		if severity == models.DefaultNormalSeverity {
			return next("Process RTN, Ack (C) -> Normal (A)", models.StatusClosed)
		}
		if models.Trend(previousSeverity, severity) == models.TrendMoreSevere &&
			previousSeverity != models.DefaultPreviousSeverity {
			return next("Re-Alarm, Ack (C) -> Unack (B)", models.StatusOpen)
		}
	}

	if state == models.StatusOpen {
		if severity == models.DefaultNormalSeverity {
			return next("Process RTN, Unack (B) -> RTN Unack (D)", models.StatusUnack)
		}
	}

	if state == models.StatusDsupr {
		if severity == models.DefaultNormalSeverity {
			return next("Return from Suppressed-by-design (F) -> Normal (A)", models.StatusClosed)
		}
		return next("Return from Suppressed-by-design (F) -> Unack (B)", models.StatusOpen)
	}

	if state == models.StatusOosrv {
		if severity == models.DefaultNormalSeverity {
			return next("Return from Out-of-service (G) -> Normal (A)", models.StatusClosed)
		}
		return next("Return from Out-of-service (G) -> Unack (B)", models.StatusOpen)
	}

	return next("NOOP", state)
}

// IsSuppressed reports whether the alert sits in a suppressed state.
func IsSuppressed(alert *models.Alert) bool {
	return alert.Status == models.StatusDsupr || alert.Status == models.StatusOosrv
}
