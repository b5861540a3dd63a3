package services

import (
	"fmt"
	"regexp"
	"strings"

	"alertd/internal/models"
)

// defaultMessageTemplate is used when neither the trigger nor the
// rule carry text.
const defaultMessageTemplate = "%(environment)s: %(severity)s alert for %(service)s - %(resource)s is %(event)s"

var messageToken = regexp.MustCompile(`%\(([^)]+)\)s`)

// messageTemplate picks the effective template: the matched trigger's
// text (with %(default)s standing for the rule's text), then the
// rule's text, then the system default.
func messageTemplate(rule *models.NotificationRule, trigger *models.NotificationTrigger) string {
	if trigger != nil && trigger.Text != "" {
		return strings.ReplaceAll(trigger.Text, "%(default)s", rule.Text)
	}
	if rule.Text != "" {
		return rule.Text
	}
	return defaultMessageTemplate
}

// renderMessage substitutes %(name)s tokens from the alert. List
// values flatten to comma-separated strings and expose name[i]
// tokens; map attributes expose dotted sub-keys; severity renders
// capitalised.
func renderMessage(template string, alert *models.Alert) string {
	tokens := messageTokens(alert)
	return messageToken.ReplaceAllStringFunc(template, func(m string) string {
		name := messageToken.FindStringSubmatch(m)[1]
		if v, ok := tokens[name]; ok {
			return v
		}
		return m
	})
}

func messageTokens(alert *models.Alert) map[string]string {
	tokens := map[string]string{
		"id":               alert.ID.String(),
		"environment":      alert.Environment,
		"resource":         alert.Resource,
		"event":            alert.Event,
		"severity":         capitalize(alert.Severity),
		"previousSeverity": capitalize(alert.PreviousSeverity),
		"status":           alert.Status,
		"group":            alert.Group,
		"value":            alert.Value,
		"text":             alert.Text,
		"origin":           alert.Origin,
		"type":             alert.Type,
		"createTime":       alert.CreateTime.Format("2006-01-02 15:04:05"),
	}
	if alert.Customer != nil {
		tokens["customer"] = *alert.Customer
	}
	addListTokens(tokens, "service", alert.Service)
	addListTokens(tokens, "tags", alert.Tags)
	addListTokens(tokens, "correlate", alert.Correlate)
	for k, v := range alert.Attributes {
		addValueTokens(tokens, "attributes."+k, v)
	}
	return tokens
}

func addListTokens(tokens map[string]string, name string, values []string) {
	tokens[name] = strings.Join(values, ",")
	for i, v := range values {
		tokens[fmt.Sprintf("%s[%d]", name, i)] = v
	}
}

// addValueTokens flattens attribute values: maps get dotted sub-keys,
// lists get indexed tokens.
func addValueTokens(tokens map[string]string, name string, value interface{}) {
	switch v := value.(type) {
	case map[string]interface{}:
		var parts []string
		for k, sub := range v {
			addValueTokens(tokens, name+"."+k, sub)
			parts = append(parts, fmt.Sprintf("%v", sub))
		}
		tokens[name] = strings.Join(parts, ",")
	case []interface{}:
		var parts []string
		for i, sub := range v {
			addValueTokens(tokens, fmt.Sprintf("%s[%d]", name, i), sub)
			parts = append(parts, fmt.Sprintf("%v", sub))
		}
		tokens[name] = strings.Join(parts, ",")
	default:
		tokens[name] = fmt.Sprintf("%v", value)
	}
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// smsMaxLength is the vendor limit for one concatenated SMS payload.
const smsMaxLength = 1600

// truncateMessage bounds a message, cutting on whitespace and
// marking the cut with a trailing " ...".
func truncateMessage(msg string, max int) string {
	if len(msg) <= max {
		return msg
	}
	cut := msg[:max-4]
	if i := strings.LastIndexAny(cut, " \t\n"); i > 0 {
		cut = cut[:i]
	}
	return cut + " ..."
}

// speech-unfriendly characters and their spoken substitutes; order
// matters for the dash forms.
var speechSubstitutes = []struct{ from, to string }{
	{"_", " "},
	{" - ", ". "},
	{" -", "."},
	{"-", " "},
	{":", "."},
}

// speechFriendly rewrites a message so a TwiML <Say> reads naturally.
func speechFriendly(msg string) string {
	for _, sub := range speechSubstitutes {
		msg = strings.ReplaceAll(msg, sub.from, sub.to)
	}
	return msg
}
