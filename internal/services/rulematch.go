package services

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"alertd/internal/models"
)

// contains reports set membership.
func contains(set []string, v string) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}

// subset reports whether every element of sub is in super.
func subset(sub, super []string) bool {
	for _, s := range sub {
		if !contains(super, s) {
			return false
		}
	}
	return true
}

// intersects reports whether the two sets share an element.
func intersects(a, b []string) bool {
	for _, s := range a {
		if contains(b, s) {
			return true
		}
	}
	return false
}

// tagIncludes: all must be a subset of the alert tags, and any (when
// given) must intersect them.
func tagIncludes(t models.AdvancedTag, tags []string) bool {
	if !subset(t.All, tags) {
		return false
	}
	return len(t.Any) == 0 || intersects(t.Any, tags)
}

// tagExcludes: an empty predicate never excludes; otherwise the
// specified parts must both hold against the alert tags.
func tagExcludes(t models.AdvancedTag, tags []string) bool {
	if len(t.All) == 0 && len(t.Any) == 0 {
		return false
	}
	switch {
	case len(t.All) == 0:
		return intersects(t.Any, tags)
	case len(t.Any) == 0:
		return subset(t.All, tags)
	default:
		return subset(t.All, tags) && intersects(t.Any, tags)
	}
}

// tagsInclude: an empty list always includes; otherwise any predicate
// passing is enough.
func tagsInclude(list []models.AdvancedTag, tags []string) bool {
	if len(list) == 0 {
		return true
	}
	for _, t := range list {
		if tagIncludes(t, tags) {
			return true
		}
	}
	return false
}

// tagsExclude: an empty list never excludes; any predicate matching
// rejects.
func tagsExclude(list []models.AdvancedTag, tags []string) bool {
	for _, t := range list {
		if tagExcludes(t, tags) {
			return true
		}
	}
	return false
}

// parseHHMM parses a wall-clock "HH:MM" bound.
func parseHHMM(s string) (int, int, error) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid time of day %q", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, 0, fmt.Errorf("invalid hour in %q", s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, 0, fmt.Errorf("invalid minute in %q", s)
	}
	return h, m, nil
}

// inTimeOfDayWindow checks optional HH:MM bounds against the clock
// time of now. A nil or malformed bound does not constrain.
func inTimeOfDayWindow(start, end *string, now time.Time) bool {
	minutes := now.Hour()*60 + now.Minute()
	if start != nil && *start != "" {
		if h, m, err := parseHHMM(*start); err == nil && minutes < h*60+m {
			return false
		}
	}
	if end != nil && *end != "" {
		if h, m, err := parseHHMM(*end); err == nil && minutes >= h*60+m {
			return false
		}
	}
	return true
}

// dayMatches checks an optional weekday-code set ("Mon".."Sun").
func dayMatches(days []string, now time.Time) bool {
	if len(days) == 0 {
		return true
	}
	return contains(days, now.Format("Mon"))
}

// scalarMatches: an unset rule attribute is wild; otherwise it must
// equal the alert's.
func scalarMatches(ruleValue *string, alertValue string) bool {
	return ruleValue == nil || *ruleValue == "" || *ruleValue == alertValue
}

// triggerMatches evaluates one severity-transition trigger. When
// status is non-empty the trigger must name it; otherwise an empty
// trigger status list matches any alert status.
func triggerMatches(t models.NotificationTrigger, alert *models.Alert, status string) bool {
	if len(t.FromSeverity) > 0 && !contains(t.FromSeverity, alert.PreviousSeverity) {
		return false
	}
	if len(t.ToSeverity) > 0 && !contains(t.ToSeverity, alert.Severity) {
		return false
	}
	if status != "" {
		return contains(t.Status, status)
	}
	return len(t.Status) == 0 || contains(t.Status, alert.Status)
}

// matchNotificationRule decides whether a rule fires for the alert
// and returns the matched trigger, if any. status carries the
// operator status for the strict status-required selection path.
func matchNotificationRule(rule *models.NotificationRule, alert *models.Alert, status string, now time.Time) (*models.NotificationTrigger, bool) {
	if !rule.Active {
		return nil, false
	}
	if rule.Environment != alert.Environment {
		return nil, false
	}
	if !inTimeOfDayWindow(rule.StartTime, rule.EndTime, now) || !dayMatches(rule.Days, now) {
		return nil, false
	}
	if !scalarMatches(rule.Resource, alert.Resource) ||
		!scalarMatches(rule.Event, alert.Event) ||
		!scalarMatches(rule.Group, alert.Group) {
		return nil, false
	}
	if len(rule.Service) > 0 && !subset(rule.Service, alert.Service) {
		return nil, false
	}
	if !tagsInclude(rule.Tags, alert.Tags) || tagsExclude(rule.ExcludedTags, alert.Tags) {
		return nil, false
	}
	if rule.Customer != nil && alert.Customer != nil && *rule.Customer != *alert.Customer {
		return nil, false
	}
	if len(rule.Triggers) == 0 {
		return nil, true
	}
	for i := range rule.Triggers {
		if triggerMatches(rule.Triggers[i], alert, status) {
			return &rule.Triggers[i], true
		}
	}
	return nil, false
}

// matchEscalationRule applies the same algebra for escalation; the
// trigger status predicate is ignored.
func matchEscalationRule(rule *models.EscalationRule, alert *models.Alert, now time.Time) bool {
	if !rule.Active || rule.Environment != alert.Environment {
		return false
	}
	if !inTimeOfDayWindow(rule.StartTime, rule.EndTime, now) || !dayMatches(rule.Days, now) {
		return false
	}
	if !scalarMatches(rule.Resource, alert.Resource) ||
		!scalarMatches(rule.Event, alert.Event) ||
		!scalarMatches(rule.Group, alert.Group) {
		return false
	}
	if len(rule.Service) > 0 && !subset(rule.Service, alert.Service) {
		return false
	}
	if !tagsInclude(rule.Tags, alert.Tags) || tagsExclude(rule.ExcludedTags, alert.Tags) {
		return false
	}
	if rule.Customer != nil && alert.Customer != nil && *rule.Customer != *alert.Customer {
		return false
	}
	if len(rule.Triggers) == 0 {
		return true
	}
	for _, t := range rule.Triggers {
		if len(t.FromSeverity) > 0 && !contains(t.FromSeverity, alert.PreviousSeverity) {
			continue
		}
		if len(t.ToSeverity) > 0 && !contains(t.ToSeverity, alert.Severity) {
			continue
		}
		return true
	}
	return false
}
