package services

import (
	"strings"
	"testing"
	"time"

	"alertd/internal/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func messageAlert() *models.Alert {
	return &models.Alert{
		ID:               uuid.MustParse("7f4bdc70-e94a-4435-a03f-414b56e3c62b"),
		Resource:         "web01",
		Event:            "HttpError",
		Environment:      "Production",
		Severity:         models.SeverityMajor,
		PreviousSeverity: models.SeverityNormal,
		Status:           models.StatusOpen,
		Service:          []string{"web", "frontend"},
		Group:            "Web",
		Value:            "503",
		Text:             "5xx rate above threshold",
		Origin:           "prometheus",
		Type:             "alert",
		CreateTime:       time.Date(2024, 3, 5, 14, 30, 0, 0, time.UTC),
		Attributes: map[string]interface{}{
			"region": "eu-west-1",
			"probe":  map[string]interface{}{"city": "Dublin"},
			"ips":    []interface{}{"10.0.0.1", "10.0.0.2"},
		},
	}
}

func TestMessageTemplateSelection(t *testing.T) {
	rule := &models.NotificationRule{Text: "rule text"}

	assert.Equal(t, "rule text", messageTemplate(rule, nil))
	assert.Equal(t, defaultMessageTemplate, messageTemplate(&models.NotificationRule{}, nil))

	trigger := &models.NotificationTrigger{Text: "escalated: %(default)s"}
	assert.Equal(t, "escalated: rule text", messageTemplate(rule, trigger))

	// an empty trigger text falls back to the rule
	assert.Equal(t, "rule text", messageTemplate(rule, &models.NotificationTrigger{}))
}

func TestRenderMessageDefaultTemplate(t *testing.T) {
	got := renderMessage(defaultMessageTemplate, messageAlert())
	assert.Equal(t, "Production: Major alert for web,frontend - web01 is HttpError", got)
}

func TestRenderMessageTokens(t *testing.T) {
	alert := messageAlert()
	cases := []struct {
		template string
		want     string
	}{
		{"%(status)s", "open"},
		{"%(severity)s", "Major"},
		{"%(previousSeverity)s", "Normal"},
		{"%(service)s", "web,frontend"},
		{"%(service[1])s", "frontend"},
		{"%(attributes.region)s", "eu-west-1"},
		{"%(attributes.probe.city)s", "Dublin"},
		{"%(attributes.ips[0])s", "10.0.0.1"},
		{"%(value)s on %(resource)s", "503 on web01"},
		{"%(createTime)s", "2024-03-05 14:30:00"},
		{"%(nonsense)s", "%(nonsense)s"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, renderMessage(tc.template, alert), tc.template)
	}
}

func TestRenderMessageCustomer(t *testing.T) {
	alert := messageAlert()
	assert.Equal(t, "%(customer)s", renderMessage("%(customer)s", alert))

	alert.Customer = strptr("acme")
	assert.Equal(t, "acme", renderMessage("%(customer)s", alert))
}

func TestTruncateMessage(t *testing.T) {
	short := "all fine"
	assert.Equal(t, short, truncateMessage(short, 100))

	long := strings.Repeat("word ", 100)
	got := truncateMessage(long, 50)
	assert.LessOrEqual(t, len(got), 50)
	assert.True(t, strings.HasSuffix(got, " ..."))
	assert.NotContains(t, strings.TrimSuffix(got, " ..."), "  ")
}

func TestSpeechFriendly(t *testing.T) {
	cases := []struct{ in, want string }{
		{"web01 - HttpError", "web01. HttpError"},
		{"disk_usage", "disk usage"},
		{"eu-west", "eu west"},
		{"14:30", "14.30"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, speechFriendly(tc.in), tc.in)
	}
}

func TestCapitalize(t *testing.T) {
	assert.Equal(t, "", capitalize(""))
	assert.Equal(t, "Major", capitalize("major"))
	assert.Equal(t, "OK", capitalize("OK"))
}
