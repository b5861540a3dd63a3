package services

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/smtp"
	"net/url"
	"strings"
	"time"

	"alertd/internal/crypto"
	"alertd/internal/models"
	"alertd/internal/repository"
)

const (
	twilioBaseURL     = "https://api.twilio.com/2010-04-01/Accounts"
	sendgridMailURL   = "https://api.sendgrid.com/v3/mail/send"
	myLinkTokenURL    = "https://sso.linkmobility.com/auth/realms/CPaaS/protocol/openid-connect/token"
	myLinkSendURL     = "https://api.linkmobility.com/sms/v1"
	bearerGracePeriod = 600 * time.Second
)

// linkMobilityEnvelope is the per-message XML session document; the
// RCV line repeats per receiver.
const linkMobilityEnvelope = `<?xml version="1.0"?>
<SESSION>
<CLIENT>%s</CLIENT>
<PW>%s</PW>
<MSGLST>
<MSG>
<TEXT>%s</TEXT>
<SND>%s</SND>
%s
</MSG>
</MSGLST>
</SESSION>`

// SendResult is one delivery attempt against one receiver set.
type SendResult struct {
	Receivers  []string
	Sent       bool
	ProviderID string
	Error      string
}

// Transports sends messages through the configured provider APIs.
type Transports struct {
	client   *http.Client
	box      *crypto.Box
	channels *repository.ChannelRepository
}

func NewTransports(box *crypto.Box, channels *repository.ChannelRepository) *Transports {
	return &Transports{
		client:   &http.Client{Timeout: 30 * time.Second},
		box:      box,
		channels: channels,
	}
}

// credentials opens the channel's sealed API sid and token.
func (t *Transports) credentials(channel *models.NotificationChannel) (sid, token string, err error) {
	if sid, err = t.box.Decrypt(channel.APISid); err != nil {
		return "", "", fmt.Errorf("channel %s: opening api sid: %w", channel.ID, err)
	}
	if token, err = t.box.Decrypt(channel.APIToken); err != nil {
		return "", "", fmt.Errorf("channel %s: opening api token: %w", channel.ID, err)
	}
	return sid, token, nil
}

// Send dispatches one rendered message to the given targets over the
// channel's transport, returning one result per attempted receiver
// batch. Phone-based transports attempt each number individually.
func (t *Transports) Send(ctx context.Context, channel *models.NotificationChannel, message string, targets []models.NotificationInfo) []SendResult {
	phones, mails := splitTargets(targets)

	switch channel.Type {
	case models.ChannelTwilioSMS:
		var results []SendResult
		for _, number := range phones {
			results = append(results, t.twilioSMS(ctx, channel, message, number))
		}
		return results
	case models.ChannelTwilioCall:
		var results []SendResult
		for _, number := range phones {
			// a call is preceded by the same message as an SMS
			results = append(results, t.twilioSMS(ctx, channel, message, number))
			results = append(results, t.twilioCall(ctx, channel, message, number))
		}
		return results
	case models.ChannelSendgrid:
		return []SendResult{t.sendgrid(ctx, channel, message, mails)}
	case models.ChannelSMTP:
		return []SendResult{t.smtpMail(channel, message, mails)}
	case models.ChannelLinkMobilityXML:
		return []SendResult{t.linkMobilityXML(ctx, channel, message, phones)}
	case models.ChannelMyLink:
		return t.myLink(ctx, channel, message, phones)
	default:
		return []SendResult{{
			Receivers: append(phones, mails...),
			Error:     fmt.Sprintf("unsupported channel type %q", channel.Type),
		}}
	}
}

func splitTargets(targets []models.NotificationInfo) (phones, mails []string) {
	seenPhone := map[string]bool{}
	seenMail := map[string]bool{}
	for _, target := range targets {
		if target.PhoneNumber != "" && !seenPhone[target.PhoneNumber] {
			seenPhone[target.PhoneNumber] = true
			phones = append(phones, target.PhoneNumber)
		}
		if target.Mail != "" {
			mail := strings.ToLower(target.Mail)
			if !seenMail[mail] {
				seenMail[mail] = true
				mails = append(mails, mail)
			}
		}
	}
	return phones, mails
}

// --- twilio ---

func (t *Transports) twilioSMS(ctx context.Context, channel *models.NotificationChannel, message, number string) SendResult {
	return t.twilioPost(ctx, channel, "Messages.json", url.Values{
		"Body": {truncateMessage(message, smsMaxLength)},
		"From": {channel.Sender},
		"To":   {number},
	}, number)
}

func (t *Transports) twilioCall(ctx context.Context, channel *models.NotificationChannel, message, number string) SendResult {
	twiml := fmt.Sprintf("<Response><Pause/><Say>%s</Say></Response>", speechFriendly(message))
	return t.twilioPost(ctx, channel, "Calls.json", url.Values{
		"Twiml": {twiml},
		"From":  {channel.Sender},
		"To":    {number},
	}, number)
}

func (t *Transports) twilioPost(ctx context.Context, channel *models.NotificationChannel, endpoint string, form url.Values, number string) SendResult {
	result := SendResult{Receivers: []string{number}}
	sid, token, err := t.credentials(channel)
	if err != nil {
		result.Error = err.Error()
		return result
	}

	reqURL := fmt.Sprintf("%s/%s/%s", twilioBaseURL, sid, endpoint)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, strings.NewReader(form.Encode()))
	if err != nil {
		result.Error = err.Error()
		return result
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(sid, token)

	resp, err := t.client.Do(req)
	if err != nil {
		result.Error = err.Error()
		return result
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		result.Error = err.Error()
		return result
	}
	if resp.StatusCode != http.StatusCreated {
		result.Error = twilioErrorText(resp.StatusCode, raw)
		return result
	}

	var body struct {
		Sid string `json:"sid"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		result.Error = fmt.Sprintf("decoding twilio response: %v", err)
		return result
	}
	result.Sent = true
	result.ProviderID = body.Sid
	return result
}

// twilioErrorText formats a failed response, keeping the raw body
// when the vendor (or a proxy in front of it) did not answer JSON.
func twilioErrorText(status int, raw []byte) string {
	var body struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &body); err == nil && body.Message != "" {
		return fmt.Sprintf("got status code %d with error code %d: %s", status, body.Code, body.Message)
	}
	return fmt.Sprintf("got status code %d: %s", status, strings.TrimSpace(string(raw)))
}

// --- sendgrid ---

func (t *Transports) sendgrid(ctx context.Context, channel *models.NotificationChannel, message string, mails []string) SendResult {
	result := SendResult{Receivers: mails}
	token, err := t.box.Decrypt(channel.APIToken)
	if err != nil {
		result.Error = fmt.Sprintf("channel %s: opening api token: %v", channel.ID, err)
		return result
	}

	type address struct {
		Email string `json:"email"`
	}
	to := make([]address, 0, len(mails))
	for _, mail := range mails {
		to = append(to, address{Email: mail})
	}
	payload := map[string]interface{}{
		"personalizations": []map[string]interface{}{{"to": to}},
		"from":             address{Email: channel.Sender},
		"subject":          "Alert Notification",
		"content":          []map[string]string{{"type": "text/html", "value": message}},
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		result.Error = err.Error()
		return result
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, sendgridMailURL, bytes.NewReader(raw))
	if err != nil {
		result.Error = err.Error()
		return result
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := t.client.Do(req)
	if err != nil {
		result.Error = err.Error()
		return result
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted {
		var body struct {
			Errors []struct {
				Message string `json:"message"`
			} `json:"errors"`
		}
		detail := ""
		if err := json.NewDecoder(resp.Body).Decode(&body); err == nil && len(body.Errors) > 0 {
			detail = ": " + body.Errors[0].Message
		}
		result.Error = fmt.Sprintf("got status code %d%s", resp.StatusCode, detail)
		return result
	}
	result.Sent = true
	return result
}

// --- smtp ---

func (t *Transports) smtpMail(channel *models.NotificationChannel, message string, mails []string) SendResult {
	result := SendResult{Receivers: mails}
	if channel.Host == nil || *channel.Host == "" {
		result.Error = "smtp channel has no host"
		return result
	}
	user, password, err := t.credentials(channel)
	if err != nil {
		result.Error = err.Error()
		return result
	}

	host := *channel.Host
	hostname := host
	if i := strings.Index(host, ":"); i >= 0 {
		hostname = host[:i]
	} else {
		host += ":465"
	}

	conn, err := tls.Dial("tcp", host, &tls.Config{ServerName: hostname})
	if err != nil {
		result.Error = err.Error()
		return result
	}
	client, err := smtp.NewClient(conn, hostname)
	if err != nil {
		conn.Close()
		result.Error = err.Error()
		return result
	}
	defer client.Close()

	if err := client.Auth(smtp.PlainAuth("", user, password, hostname)); err != nil {
		result.Error = err.Error()
		return result
	}
	if err := client.Mail(channel.Sender); err != nil {
		result.Error = err.Error()
		return result
	}
	for _, mail := range mails {
		if err := client.Rcpt(mail); err != nil {
			result.Error = err.Error()
			return result
		}
	}
	w, err := client.Data()
	if err != nil {
		result.Error = err.Error()
		return result
	}
	body := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: Alert Notification\r\n\r\n%s",
		channel.Sender, strings.Join(mails, ", "), message)
	if _, err := io.WriteString(w, body); err != nil {
		result.Error = err.Error()
		return result
	}
	if err := w.Close(); err != nil {
		result.Error = err.Error()
		return result
	}
	if err := client.Quit(); err != nil {
		result.Error = err.Error()
		return result
	}
	result.Sent = true
	return result
}

// --- link mobility xml ---

func (t *Transports) linkMobilityXML(ctx context.Context, channel *models.NotificationChannel, message string, phones []string) SendResult {
	result := SendResult{Receivers: phones}
	if channel.Host == nil || *channel.Host == "" {
		result.Error = "link_mobility_xml channel has no host"
		return result
	}
	user, password, err := t.credentials(channel)
	if err != nil {
		result.Error = err.Error()
		return result
	}

	var receivers strings.Builder
	for _, number := range phones {
		fmt.Fprintf(&receivers, "<RCV>%s</RCV>\n", strings.ReplaceAll(number, "+", ""))
	}
	envelope := fmt.Sprintf(linkMobilityEnvelope, user, password, message, channel.Sender,
		strings.TrimRight(receivers.String(), "\n"))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, *channel.Host, strings.NewReader(envelope))
	if err != nil {
		result.Error = err.Error()
		return result
	}
	req.Header.Set("Content-Type", "application/xml")

	client := t.client
	if channel.Verify != nil && !*channel.Verify {
		client = &http.Client{
			Timeout:   t.client.Timeout,
			Transport: &http.Transport{TLSClientConfig: &tls.Config{InsecureSkipVerify: true}},
		}
	}
	resp, err := client.Do(req)
	if err != nil {
		result.Error = err.Error()
		return result
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		result.Error = err.Error()
		return result
	}
	// the gateway reports per-message outcome in the body, not the
	// status code
	if strings.Contains(string(raw), "FAIL") {
		result.Error = string(raw)
		return result
	}
	result.Sent = true
	return result
}

// --- my link ---

// myLinkBearer returns a usable OAuth bearer for the channel,
// refreshing and persisting it when it is missing or expires within
// the grace period.
func (t *Transports) myLinkBearer(ctx context.Context, channel *models.NotificationChannel) (string, error) {
	if channel.Bearer != nil && channel.BearerTimeout != nil &&
		channel.BearerTimeout.After(time.Now().Add(bearerGracePeriod)) {
		return *channel.Bearer, nil
	}

	sid, token, err := t.credentials(channel)
	if err != nil {
		return "", err
	}
	form := url.Values{
		"client_id":     {sid},
		"client_secret": {token},
		"grant_type":    {"client_credentials"},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, myLinkTokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := t.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var body struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("decoding token response: %w", err)
	}
	if resp.StatusCode != http.StatusOK || body.AccessToken == "" {
		return "", fmt.Errorf("token request failed with status %d", resp.StatusCode)
	}

	timeout := time.Now().Add(time.Duration(body.ExpiresIn) * time.Second)
	if err := t.channels.UpdateBearer(ctx, channel.ID, body.AccessToken, timeout); err != nil {
		return "", err
	}
	channel.Bearer = &body.AccessToken
	channel.BearerTimeout = &timeout
	return body.AccessToken, nil
}

func (t *Transports) myLink(ctx context.Context, channel *models.NotificationChannel, message string, phones []string) []SendResult {
	fail := func(err string) []SendResult {
		results := make([]SendResult, 0, len(phones))
		for _, number := range phones {
			results = append(results, SendResult{Receivers: []string{number}, Error: err})
		}
		return results
	}

	bearer, err := t.myLinkBearer(ctx, channel)
	if err != nil {
		return fail(err.Error())
	}

	type options struct {
		Sender string `json:"sms.sender"`
	}
	type content struct {
		Text    string  `json:"text"`
		Options options `json:"options"`
	}
	type sms struct {
		Recipient string  `json:"recipient"`
		Content   content `json:"content"`
	}
	payload := make([]sms, 0, len(phones))
	for _, number := range phones {
		payload = append(payload, sms{
			Recipient: number,
			Content:   content{Text: message, Options: options{Sender: channel.Sender}},
		})
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return fail(err.Error())
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, myLinkSendURL, bytes.NewReader(raw))
	if err != nil {
		return fail(err.Error())
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+bearer)

	resp, err := t.client.Do(req)
	if err != nil {
		return fail(err.Error())
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fail(err.Error())
	}
	if resp.StatusCode != http.StatusAccepted {
		return fail(fmt.Sprintf("got status code %d: %s", resp.StatusCode, string(body)))
	}

	var accepted struct {
		Messages []struct {
			Recipient string `json:"recipient"`
			MessageID string `json:"messageId"`
		} `json:"messages"`
	}
	if err := json.Unmarshal(body, &accepted); err != nil {
		return fail(fmt.Sprintf("decoding response: %v", err))
	}
	results := make([]SendResult, 0, len(accepted.Messages))
	for _, msg := range accepted.Messages {
		results = append(results, SendResult{
			Receivers:  []string{msg.Recipient},
			Sent:       true,
			ProviderID: msg.MessageID,
		})
	}
	return results
}
