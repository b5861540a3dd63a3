package models

import (
	"time"

	"github.com/google/uuid"
)

// Notification channel types.
const (
	ChannelTwilioSMS       = "twilio_sms"
	ChannelTwilioCall      = "twilio_call"
	ChannelSendgrid        = "sendgrid"
	ChannelSMTP            = "smtp"
	ChannelLinkMobilityXML = "link_mobility_xml"
	ChannelMyLink          = "my_link"
)

// NotificationChannel is a configured transport. ApiToken and ApiSid
// are stored encrypted and never serialised back to clients.
type NotificationChannel struct {
	ID                uuid.UUID  `json:"id"`
	Type              string     `json:"type"`
	Sender            string     `json:"sender"`
	Host              *string    `json:"host"`
	PlatformID        *string    `json:"platformId"`
	PlatformPartnerID *string    `json:"platformPartnerId"`
	APISid            string     `json:"-"`
	APIToken          string     `json:"-"`
	Customer          *string    `json:"customer"`
	Verify            *bool      `json:"verify"`
	Bearer            *string    `json:"-"`
	BearerTimeout     *time.Time `json:"-"`
}

// AdvancedTag is an {all, any} predicate over an alert's tag set.
type AdvancedTag struct {
	All []string `json:"all"`
	Any []string `json:"any"`
}

// NotificationTrigger gates a rule on a severity transition and,
// optionally, an alert status.
type NotificationTrigger struct {
	FromSeverity []string `json:"from_severity"`
	ToSeverity   []string `json:"to_severity"`
	Status       []string `json:"status"`
	Text         string   `json:"text"`
}

// NotificationRule selects alerts and routes them to a channel.
type NotificationRule struct {
	ID           uuid.UUID             `json:"id"`
	Environment  string                `json:"environment"`
	ChannelID    uuid.UUID             `json:"channelId"`
	Receivers    []string              `json:"receivers"`
	UserIDs      []string              `json:"userIds"`
	GroupIDs     []string              `json:"groupIds"`
	UseOnCall    bool                  `json:"useOnCall"`
	Resource     *string               `json:"resource"`
	Event        *string               `json:"event"`
	Group        *string               `json:"group"`
	Service      []string              `json:"service"`
	Tags         []AdvancedTag         `json:"tags"`
	ExcludedTags []AdvancedTag         `json:"excludedTags"`
	Triggers     []NotificationTrigger `json:"triggers"`
	Days         []string              `json:"days"`
	StartTime    *string               `json:"startTime"`
	EndTime      *string               `json:"endTime"`
	DelayTime    *int                  `json:"delayTime"`
	Active       bool                  `json:"active"`
	Reactivate   *time.Time            `json:"reactivate"`
	Customer     *string               `json:"customer"`
	Text         string                `json:"text"`
	User         string                `json:"user"`
	CreateTime   time.Time             `json:"createTime"`
}

// EscalationRule bumps the severity of stale open alerts.
type EscalationRule struct {
	ID           uuid.UUID             `json:"id"`
	Environment  string                `json:"environment"`
	Time         int                   `json:"time"`
	Resource     *string               `json:"resource"`
	Event        *string               `json:"event"`
	Group        *string               `json:"group"`
	Service      []string              `json:"service"`
	Tags         []AdvancedTag         `json:"tags"`
	ExcludedTags []AdvancedTag         `json:"excludedTags"`
	Triggers     []NotificationTrigger `json:"triggers"`
	Days         []string              `json:"days"`
	StartTime    *string               `json:"startTime"`
	EndTime      *string               `json:"endTime"`
	Active       bool                  `json:"active"`
	Customer     *string               `json:"customer"`
	User         string                `json:"user"`
	CreateTime   time.Time             `json:"createTime"`
}

// NotificationGroup is a named set of contacts. PhoneNumbers and
// Mails pair up by index.
type NotificationGroup struct {
	ID           uuid.UUID `json:"id"`
	Name         string    `json:"name"`
	UserIDs      []string  `json:"userIds"`
	PhoneNumbers []string  `json:"phoneNumbers"`
	Mails        []string  `json:"mails"`
	Text         string    `json:"text"`
	CreateTime   time.Time `json:"createTime"`
}

// OnCall is a schedule entry: either an absolute date range or a
// list-based recurrence on weekday, ISO week and month.
type OnCall struct {
	ID           uuid.UUID  `json:"id"`
	UserIDs      []string   `json:"userIds"`
	GroupIDs     []string   `json:"groupIds"`
	StartDate    *time.Time `json:"startDate"`
	EndDate      *time.Time `json:"endDate"`
	RepeatType   *string    `json:"repeatType"`
	RepeatDays   []string   `json:"repeatDays"`
	RepeatWeeks  []int      `json:"repeatWeeks"`
	RepeatMonths []string   `json:"repeatMonths"`
	StartTime    *string    `json:"startTime"`
	EndTime      *string    `json:"endTime"`
	Customer     *string    `json:"customer"`
	User         string     `json:"user"`
	CreateTime   time.Time  `json:"createTime"`
}

// NotificationInfo is one resolved target.
type NotificationInfo struct {
	PhoneNumber string `json:"phoneNumber"`
	Mail        string `json:"mail"`
}

// DelayedNotification is a pending dispatch; one per (alert, rule).
type DelayedNotification struct {
	ID         uuid.UUID `json:"id"`
	AlertID    uuid.UUID `json:"alertId"`
	RuleID     uuid.UUID `json:"ruleId"`
	FireAt     time.Time `json:"fireAt"`
	CreateTime time.Time `json:"createTime"`
}

// NotificationHistory records one transport attempt.
type NotificationHistory struct {
	ID            uuid.UUID  `json:"id"`
	Sent          bool       `json:"sent"`
	Message       string     `json:"message"`
	ChannelID     uuid.UUID  `json:"channelId"`
	RuleID        uuid.UUID  `json:"ruleId"`
	AlertID       uuid.UUID  `json:"alertId"`
	Receiver      string     `json:"receiver"`
	Sender        string     `json:"sender"`
	SentTime      time.Time  `json:"sentTime"`
	Error         *string    `json:"error"`
	Confirmed     *bool      `json:"confirmed"`
	ConfirmedTime *time.Time `json:"confirmedTime"`
}
