package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMergeTags(t *testing.T) {
	got := MergeTags([]string{"a", "b"}, []string{"b", "c"})
	assert.Equal(t, []string{"a", "b", "c"}, got)

	assert.Equal(t, []string{"a"}, MergeTags(nil, []string{"a", "a"}))
	assert.Empty(t, MergeTags(nil, nil))
}

func TestSubtractTags(t *testing.T) {
	got := SubtractTags([]string{"a", "b", "c"}, []string{"b", "x"})
	assert.Equal(t, []string{"a", "c"}, got)

	assert.Equal(t, []string{"a"}, SubtractTags([]string{"a"}, nil))
}

func TestMergeAttributes(t *testing.T) {
	existing := map[string]interface{}{"region": "eu", "ip": "10.0.0.1"}
	incoming := map[string]interface{}{"region": "us", "rack": "r7", "ip": nil}

	got := MergeAttributes(existing, incoming)
	assert.Equal(t, map[string]interface{}{"region": "us", "rack": "r7"}, got)

	// inputs are not mutated
	assert.Equal(t, "10.0.0.1", existing["ip"])
}

func TestPrependHistory(t *testing.T) {
	var history []HistoryRecord
	for i := 0; i < 5; i++ {
		history = PrependHistory(history, HistoryRecord{Event: "e", Type: ChangeStatus}, 3)
	}
	assert.Len(t, history, 3)

	history = PrependHistory(history, HistoryRecord{Event: "newest"}, 3)
	assert.Equal(t, "newest", history[0].Event)
	assert.Len(t, history, 3)

	// zero limit keeps everything
	unbounded := PrependHistory(history, HistoryRecord{}, 0)
	assert.Len(t, unbounded, 4)
}

func TestTrend(t *testing.T) {
	assert.Equal(t, TrendMoreSevere, Trend(SeverityNormal, SeverityMajor))
	assert.Equal(t, TrendLessSevere, Trend(SeverityCritical, SeverityWarning))
	assert.Equal(t, TrendNoChange, Trend(SeverityMinor, SeverityMinor))
	// aliases share a rank
	assert.Equal(t, TrendNoChange, Trend(SeverityNormal, SeverityOk))
}

func TestNextSeverityUp(t *testing.T) {
	assert.Equal(t, SeverityMinor, NextSeverityUp(SeverityWarning))
	assert.Equal(t, SeverityCritical, NextSeverityUp(SeverityMajor))
	// already at the top
	assert.Equal(t, SeveritySecurity, NextSeverityUp(SeveritySecurity))
}

func TestValidStatus(t *testing.T) {
	for _, s := range []string{StatusOpen, StatusAck, StatusShelved, StatusBlackout, StatusExpired, StatusAssign} {
		assert.True(t, ValidStatus(s), s)
	}
	assert.False(t, ValidStatus("sleeping"))
}

func TestValidSeverity(t *testing.T) {
	assert.True(t, ValidSeverity(SeverityCritical))
	assert.False(t, ValidSeverity("catastrophic"))
}

func TestHeartbeatDeriveStatus(t *testing.T) {
	now := time.Now()

	hb := &Heartbeat{
		CreateTime:  now.Add(-time.Second),
		ReceiveTime: now,
		Timeout:     60,
	}
	assert.Equal(t, HeartbeatOK, hb.DeriveStatus(now, 2*time.Second))

	hb.CreateTime = now.Add(-10 * time.Second)
	assert.Equal(t, HeartbeatSlow, hb.DeriveStatus(now, 2*time.Second))

	hb.ReceiveTime = now.Add(-90 * time.Second)
	assert.Equal(t, HeartbeatExpired, hb.DeriveStatus(now, 2*time.Second))

	// zero timeout never expires, but high latency still reads slow
	hb.Timeout = 0
	hb.CreateTime = now.Add(-100 * time.Second)
	assert.Equal(t, HeartbeatSlow, hb.DeriveStatus(now, 2*time.Second))
}

func TestHeartbeatLatencyMillis(t *testing.T) {
	now := time.Now()
	hb := &Heartbeat{CreateTime: now, ReceiveTime: now.Add(1500 * time.Millisecond)}
	assert.Equal(t, int64(1500), hb.LatencyMillis())
}
