package services

import (
	"testing"
	"time"

	"alertd/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strptr(s string) *string { return &s }

// Tuesday 2024-03-05 14:30 UTC.
var tuesdayAfternoon = time.Date(2024, 3, 5, 14, 30, 0, 0, time.UTC)

func matchableAlert() *models.Alert {
	return &models.Alert{
		Resource:         "web01",
		Event:            "HttpError",
		Environment:      "Production",
		Severity:         models.SeverityMajor,
		PreviousSeverity: models.SeverityNormal,
		Status:           models.StatusOpen,
		Service:          []string{"web", "frontend"},
		Tags:             []string{"datacenter:eu", "team:sre"},
	}
}

func baseRule() *models.NotificationRule {
	return &models.NotificationRule{
		Environment: "Production",
		Active:      true,
	}
}

func TestMatchNotificationRuleEnvironmentAndActive(t *testing.T) {
	alert := matchableAlert()

	_, ok := matchNotificationRule(baseRule(), alert, "", tuesdayAfternoon)
	assert.True(t, ok)

	inactive := baseRule()
	inactive.Active = false
	_, ok = matchNotificationRule(inactive, alert, "", tuesdayAfternoon)
	assert.False(t, ok)

	wrongEnv := baseRule()
	wrongEnv.Environment = "Development"
	_, ok = matchNotificationRule(wrongEnv, alert, "", tuesdayAfternoon)
	assert.False(t, ok)
}

func TestMatchNotificationRuleScalars(t *testing.T) {
	alert := matchableAlert()

	rule := baseRule()
	rule.Resource = strptr("web01")
	rule.Event = strptr("HttpError")
	_, ok := matchNotificationRule(rule, alert, "", tuesdayAfternoon)
	assert.True(t, ok)

	rule.Event = strptr("DiskFull")
	_, ok = matchNotificationRule(rule, alert, "", tuesdayAfternoon)
	assert.False(t, ok)

	// empty string is as wild as nil
	rule.Event = strptr("")
	_, ok = matchNotificationRule(rule, alert, "", tuesdayAfternoon)
	assert.True(t, ok)
}

func TestMatchNotificationRuleService(t *testing.T) {
	alert := matchableAlert()

	rule := baseRule()
	rule.Service = []string{"web"}
	_, ok := matchNotificationRule(rule, alert, "", tuesdayAfternoon)
	assert.True(t, ok)

	rule.Service = []string{"web", "db"}
	_, ok = matchNotificationRule(rule, alert, "", tuesdayAfternoon)
	assert.False(t, ok)
}

func TestMatchNotificationRuleTagAlgebra(t *testing.T) {
	alert := matchableAlert()

	cases := []struct {
		name     string
		tags     []models.AdvancedTag
		excluded []models.AdvancedTag
		want     bool
	}{
		{"no predicates", nil, nil, true},
		{"all subset", []models.AdvancedTag{{All: []string{"datacenter:eu"}}}, nil, true},
		{"all missing", []models.AdvancedTag{{All: []string{"datacenter:us"}}}, nil, false},
		{"any intersects", []models.AdvancedTag{{Any: []string{"team:sre", "team:net"}}}, nil, true},
		{"any disjoint", []models.AdvancedTag{{Any: []string{"team:net"}}}, nil, false},
		{"all and any", []models.AdvancedTag{{All: []string{"datacenter:eu"}, Any: []string{"team:sre"}}}, nil, true},
		{"second predicate saves", []models.AdvancedTag{{All: []string{"nope"}}, {All: []string{"team:sre"}}}, nil, true},
		{"excluded all", nil, []models.AdvancedTag{{All: []string{"team:sre"}}}, false},
		{"excluded any", nil, []models.AdvancedTag{{Any: []string{"team:sre", "other"}}}, false},
		{"excluded miss", nil, []models.AdvancedTag{{All: []string{"team:net"}}}, true},
		{"empty exclusion never excludes", nil, []models.AdvancedTag{{}}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rule := baseRule()
			rule.Tags = tc.tags
			rule.ExcludedTags = tc.excluded
			_, ok := matchNotificationRule(rule, alert, "", tuesdayAfternoon)
			assert.Equal(t, tc.want, ok)
		})
	}
}

func TestMatchNotificationRuleTimeWindow(t *testing.T) {
	alert := matchableAlert()

	rule := baseRule()
	rule.StartTime = strptr("09:00")
	rule.EndTime = strptr("17:00")
	_, ok := matchNotificationRule(rule, alert, "", tuesdayAfternoon)
	assert.True(t, ok)

	rule.EndTime = strptr("14:30")
	_, ok = matchNotificationRule(rule, alert, "", tuesdayAfternoon)
	assert.False(t, ok, "end bound is exclusive")

	rule.StartTime = strptr("15:00")
	rule.EndTime = nil
	_, ok = matchNotificationRule(rule, alert, "", tuesdayAfternoon)
	assert.False(t, ok)
}

func TestMatchNotificationRuleDays(t *testing.T) {
	alert := matchableAlert()

	rule := baseRule()
	rule.Days = []string{"Tue", "Wed"}
	_, ok := matchNotificationRule(rule, alert, "", tuesdayAfternoon)
	assert.True(t, ok)

	rule.Days = []string{"Sat", "Sun"}
	_, ok = matchNotificationRule(rule, alert, "", tuesdayAfternoon)
	assert.False(t, ok)
}

func TestMatchNotificationRuleTriggers(t *testing.T) {
	alert := matchableAlert()

	rule := baseRule()
	rule.Triggers = []models.NotificationTrigger{
		{FromSeverity: []string{models.SeverityNormal}, ToSeverity: []string{models.SeverityMajor}, Text: "raised"},
	}
	trigger, ok := matchNotificationRule(rule, alert, "", tuesdayAfternoon)
	require.True(t, ok)
	require.NotNil(t, trigger)
	assert.Equal(t, "raised", trigger.Text)

	rule.Triggers = []models.NotificationTrigger{
		{ToSeverity: []string{models.SeverityCritical}},
	}
	trigger, ok = matchNotificationRule(rule, alert, "", tuesdayAfternoon)
	assert.False(t, ok)
	assert.Nil(t, trigger)

	// no triggers matches with a nil trigger
	rule.Triggers = nil
	trigger, ok = matchNotificationRule(rule, alert, "", tuesdayAfternoon)
	assert.True(t, ok)
	assert.Nil(t, trigger)
}

func TestTriggerMatchesStatusSelection(t *testing.T) {
	alert := matchableAlert()

	withStatus := models.NotificationTrigger{Status: []string{"ack", "shelved"}}
	noStatus := models.NotificationTrigger{}

	// operator-status path requires the trigger to name the status
	assert.True(t, triggerMatches(withStatus, alert, "ack"))
	assert.False(t, triggerMatches(withStatus, alert, "closed"))
	assert.False(t, triggerMatches(noStatus, alert, "ack"))

	// unprompted path: empty status list is wild, otherwise the
	// alert's own status must be listed
	assert.True(t, triggerMatches(noStatus, alert, ""))
	assert.False(t, triggerMatches(withStatus, alert, ""))
	alert.Status = "ack"
	assert.True(t, triggerMatches(withStatus, alert, ""))
}

func TestSelectTrigger(t *testing.T) {
	alert := matchableAlert()
	rule := baseRule()
	rule.Triggers = []models.NotificationTrigger{
		{ToSeverity: []string{models.SeverityCritical}, Text: "first"},
		{ToSeverity: []string{models.SeverityMajor}, Text: "second"},
	}
	trigger := selectTrigger(rule, alert, "")
	require.NotNil(t, trigger)
	assert.Equal(t, "second", trigger.Text)

	assert.Nil(t, selectTrigger(rule, alert, "shelved"))
}

func TestMatchNotificationRuleCustomer(t *testing.T) {
	alert := matchableAlert()
	alert.Customer = strptr("acme")

	rule := baseRule()
	rule.Customer = strptr("acme")
	_, ok := matchNotificationRule(rule, alert, "", tuesdayAfternoon)
	assert.True(t, ok)

	rule.Customer = strptr("globex")
	_, ok = matchNotificationRule(rule, alert, "", tuesdayAfternoon)
	assert.False(t, ok)
}

func TestMatchEscalationRule(t *testing.T) {
	alert := matchableAlert()

	rule := &models.EscalationRule{Environment: "Production", Active: true}
	assert.True(t, matchEscalationRule(rule, alert, tuesdayAfternoon))

	rule.Triggers = []models.NotificationTrigger{
		{ToSeverity: []string{models.SeverityMajor}, Status: []string{"shelved"}},
	}
	// escalation ignores the trigger status predicate
	assert.True(t, matchEscalationRule(rule, alert, tuesdayAfternoon))

	rule.Triggers = []models.NotificationTrigger{
		{FromSeverity: []string{models.SeverityCritical}},
	}
	assert.False(t, matchEscalationRule(rule, alert, tuesdayAfternoon))

	rule.Triggers = nil
	rule.ExcludedTags = []models.AdvancedTag{{All: []string{"team:sre"}}}
	assert.False(t, matchEscalationRule(rule, alert, tuesdayAfternoon))
}

func TestParseHHMM(t *testing.T) {
	h, m, err := parseHHMM("08:45")
	require.NoError(t, err)
	assert.Equal(t, 8, h)
	assert.Equal(t, 45, m)

	for _, bad := range []string{"25:00", "10:61", "noon", "10"} {
		_, _, err := parseHHMM(bad)
		assert.Error(t, err, bad)
	}
}

func TestEscalationAfter(t *testing.T) {
	rule := &models.EscalationRule{Time: 900}
	assert.Equal(t, 900*time.Second, escalationAfter(rule, 1800))

	// a rule without its own window uses the configured default
	rule.Time = 0
	assert.Equal(t, 1800*time.Second, escalationAfter(rule, 1800))
}
