package models

import (
	"time"

	"github.com/google/uuid"
)

// Alert is the canonical deduplicated alert resource.
type Alert struct {
	ID                uuid.UUID              `json:"id"`
	Resource          string                 `json:"resource"`
	Event             string                 `json:"event"`
	Environment       string                 `json:"environment"`
	Severity          string                 `json:"severity"`
	Correlate         []string               `json:"correlate"`
	Status            string                 `json:"status"`
	Service           []string               `json:"service"`
	Group             string                 `json:"group"`
	Value             string                 `json:"value"`
	Text              string                 `json:"text"`
	Tags              []string               `json:"tags"`
	Attributes        map[string]interface{} `json:"attributes"`
	Origin            string                 `json:"origin"`
	Type              string                 `json:"type"`
	CreateTime        time.Time              `json:"createTime"`
	Timeout           int                    `json:"timeout"`
	RawData           string                 `json:"rawData"`
	Customer          *string                `json:"customer"`
	DuplicateCount    int                    `json:"duplicateCount"`
	Repeat            bool                   `json:"repeat"`
	PreviousSeverity  string                 `json:"previousSeverity"`
	TrendIndication   string                 `json:"trendIndication"`
	ReceiveTime       time.Time              `json:"receiveTime"`
	LastReceiveID     uuid.UUID              `json:"lastReceiveId"`
	LastReceiveTime   time.Time              `json:"lastReceiveTime"`
	UpdateTime        time.Time              `json:"updateTime"`
	History           []HistoryRecord        `json:"history"`
}

// HistoryRecord is one entry in an alert's bounded change log,
// newest first.
type HistoryRecord struct {
	ID         string    `json:"id"`
	Event      string    `json:"event"`
	Severity   string    `json:"severity,omitempty"`
	Status     string    `json:"status,omitempty"`
	Value      string    `json:"value,omitempty"`
	Text       string    `json:"text,omitempty"`
	Type       string    `json:"type"`
	UpdateTime time.Time `json:"updateTime"`
	User       string    `json:"user,omitempty"`
	Timeout    int       `json:"timeout,omitempty"`
}

// AlertHistoryItem is a flattened history row for /alerts/history.
type AlertHistoryItem struct {
	ID          uuid.UUID `json:"id"`
	Resource    string    `json:"resource"`
	Event       string    `json:"event"`
	Environment string    `json:"environment"`
	Severity    string    `json:"severity,omitempty"`
	Status      string    `json:"status,omitempty"`
	Service     []string  `json:"service"`
	Group       string    `json:"group"`
	Value       string    `json:"value,omitempty"`
	Text        string    `json:"text"`
	Tags        []string  `json:"tags"`
	Origin      string    `json:"origin"`
	Customer    *string   `json:"customer"`
	Type        string    `json:"type"`
	UpdateTime  time.Time `json:"updateTime"`
	User        string    `json:"user,omitempty"`
	Timeout     int       `json:"timeout,omitempty"`
}

// MergeTags unions incoming tags into the alert's tag set.
func MergeTags(existing, incoming []string) []string {
	seen := make(map[string]bool, len(existing))
	out := make([]string, 0, len(existing)+len(incoming))
	for _, t := range existing {
		if !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	for _, t := range incoming {
		if !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	return out
}

// SubtractTags removes the given tags from the set.
func SubtractTags(existing, remove []string) []string {
	drop := make(map[string]bool, len(remove))
	for _, t := range remove {
		drop[t] = true
	}
	out := make([]string, 0, len(existing))
	for _, t := range existing {
		if !drop[t] {
			out = append(out, t)
		}
	}
	return out
}

// MergeAttributes overlays incoming attributes onto existing ones.
// A nil incoming value deletes the key.
func MergeAttributes(existing, incoming map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(existing)+len(incoming))
	for k, v := range existing {
		out[k] = v
	}
	for k, v := range incoming {
		if v == nil {
			delete(out, k)
			continue
		}
		out[k] = v
	}
	return out
}

// PrependHistory puts rec at the front and trims to limit.
func PrependHistory(history []HistoryRecord, rec HistoryRecord, limit int) []HistoryRecord {
	out := make([]HistoryRecord, 0, len(history)+1)
	out = append(out, rec)
	out = append(out, history...)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}
