package models

import (
	"time"

	"github.com/google/uuid"
)

// User is an operator account.
type User struct {
	ID            uuid.UUID  `json:"id"`
	Name          string     `json:"name"`
	Login         string     `json:"login"`
	Email         string     `json:"email"`
	Password      string     `json:"-"`
	Status        string     `json:"status"`
	Roles         []string   `json:"roles"`
	Text          string     `json:"text"`
	EmailVerified bool       `json:"email_verified"`
	PhoneNumber   *string    `json:"phoneNumber"`
	Country       *string    `json:"country"`
	CreateTime    time.Time  `json:"createTime"`
	LastLogin     *time.Time `json:"lastLogin"`
	UpdateTime    time.Time  `json:"updateTime"`
}

// APIKey authorises programmatic access, optionally customer-scoped.
type APIKey struct {
	Key          string     `json:"key"`
	User         string     `json:"user"`
	Scopes       []string   `json:"scopes"`
	Text         string     `json:"text"`
	ExpireTime   time.Time  `json:"expireTime"`
	Count        int        `json:"count"`
	LastUsedTime *time.Time `json:"lastUsedTime"`
	Customer     *string    `json:"customer"`
}

// Customer maps a login or domain pattern to a customer name.
type Customer struct {
	ID       uuid.UUID `json:"id"`
	Match    string    `json:"match"`
	Customer string    `json:"customer"`
}

// Permission maps a role to API scopes.
type Permission struct {
	ID     uuid.UUID `json:"id"`
	Match  string    `json:"match"`
	Scopes []string  `json:"scopes"`
}

// Note is an operator annotation attached to an alert.
type Note struct {
	ID         uuid.UUID  `json:"id"`
	Text       string     `json:"text"`
	User       string     `json:"user"`
	Type       string     `json:"type"`
	AlertID    *uuid.UUID `json:"alertId"`
	CreateTime time.Time  `json:"createTime"`
	UpdateTime *time.Time `json:"updateTime"`
}

// Heartbeat is a liveness signal from an origin, upserted on receipt.
type Heartbeat struct {
	ID          uuid.UUID              `json:"id"`
	Origin      string                 `json:"origin"`
	Tags        []string               `json:"tags"`
	Type        string                 `json:"type"`
	CreateTime  time.Time              `json:"createTime"`
	Timeout     int                    `json:"timeout"`
	ReceiveTime time.Time              `json:"receiveTime"`
	Customer    *string                `json:"customer"`
	Attributes  map[string]interface{} `json:"attributes"`
}

// LatencyMillis is receive minus create time in milliseconds.
func (h *Heartbeat) LatencyMillis() int64 {
	return h.ReceiveTime.Sub(h.CreateTime).Milliseconds()
}

// DeriveStatus classifies the heartbeat against its timeout and the
// allowed latency at the given instant.
func (h *Heartbeat) DeriveStatus(now time.Time, maxLatency time.Duration) string {
	if h.Timeout > 0 && now.Sub(h.ReceiveTime) > time.Duration(h.Timeout)*time.Second {
		return HeartbeatExpired
	}
	if h.ReceiveTime.Sub(h.CreateTime) > maxLatency {
		return HeartbeatSlow
	}
	return HeartbeatOK
}
