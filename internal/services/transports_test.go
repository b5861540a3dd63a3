package services

import (
	"testing"

	"alertd/internal/models"

	"github.com/stretchr/testify/assert"
)

func TestTwilioErrorText(t *testing.T) {
	// vendor JSON carries the error code and message
	text := twilioErrorText(400, []byte(`{"code":21211,"message":"Invalid 'To' phone number"}`))
	assert.Equal(t, "got status code 400 with error code 21211: Invalid 'To' phone number", text)

	// a proxy answering HTML still surfaces the status and body
	text = twilioErrorText(502, []byte("<html><body>Bad Gateway</body></html>\n"))
	assert.Equal(t, "got status code 502: <html><body>Bad Gateway</body></html>", text)

	text = twilioErrorText(503, nil)
	assert.Equal(t, "got status code 503: ", text)
}

func TestSplitTargets(t *testing.T) {
	phones, mails := splitTargets([]models.NotificationInfo{
		{PhoneNumber: "+4711", Mail: "ops@example.com"},
		{PhoneNumber: "+4711", Mail: "OPS@example.com"},
		{PhoneNumber: "+4722"},
		{Mail: "oncall@example.com"},
	})
	assert.Equal(t, []string{"+4711", "+4722"}, phones)
	assert.Equal(t, []string{"ops@example.com", "oncall@example.com"}, mails)
}
