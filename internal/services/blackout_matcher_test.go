package services

import (
	"testing"

	"alertd/internal/models"

	"github.com/stretchr/testify/assert"
)

func blackoutAlert() *models.Alert {
	return &models.Alert{
		Resource:    "web01",
		Event:       "HttpError",
		Environment: "Production",
		Group:       "Web",
		Origin:      "zabbix/eu",
		Service:     []string{"web", "frontend"},
		Tags:        []string{"datacenter:eu", "team:sre"},
	}
}

func TestBlackoutMatchesWildcard(t *testing.T) {
	b := &models.Blackout{Environment: "Production"}
	assert.True(t, blackoutMatches(b, blackoutAlert()))

	b.Environment = "Development"
	assert.False(t, blackoutMatches(b, blackoutAlert()))
}

func TestBlackoutMatchesScalars(t *testing.T) {
	cases := []struct {
		name string
		mod  func(*models.Blackout)
		want bool
	}{
		{"resource match", func(b *models.Blackout) { b.Resource = strptr("web01") }, true},
		{"resource miss", func(b *models.Blackout) { b.Resource = strptr("db01") }, false},
		{"event match", func(b *models.Blackout) { b.Event = strptr("HttpError") }, true},
		{"event miss", func(b *models.Blackout) { b.Event = strptr("DiskFull") }, false},
		{"group match", func(b *models.Blackout) { b.Group = strptr("Web") }, true},
		{"group miss", func(b *models.Blackout) { b.Group = strptr("Database") }, false},
		{"origin match", func(b *models.Blackout) { b.Origin = strptr("zabbix/eu") }, true},
		{"origin miss", func(b *models.Blackout) { b.Origin = strptr("zabbix/us") }, false},
		{"empty scalar is wild", func(b *models.Blackout) { b.Resource = strptr("") }, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			b := &models.Blackout{Environment: "Production"}
			tc.mod(b)
			assert.Equal(t, tc.want, blackoutMatches(b, blackoutAlert()))
		})
	}
}

func TestBlackoutMatchesSets(t *testing.T) {
	b := &models.Blackout{Environment: "Production", Service: []string{"web"}}
	assert.True(t, blackoutMatches(b, blackoutAlert()))

	b.Service = []string{"web", "db"}
	assert.False(t, blackoutMatches(b, blackoutAlert()))

	b = &models.Blackout{Environment: "Production", Tags: []string{"datacenter:eu"}}
	assert.True(t, blackoutMatches(b, blackoutAlert()))

	b.Tags = []string{"datacenter:eu", "team:net"}
	assert.False(t, blackoutMatches(b, blackoutAlert()))
}

func TestBlackoutMatchesCustomer(t *testing.T) {
	alert := blackoutAlert()
	alert.Customer = strptr("acme")

	b := &models.Blackout{Environment: "Production", Customer: strptr("acme")}
	assert.True(t, blackoutMatches(b, alert))

	b.Customer = strptr("globex")
	assert.False(t, blackoutMatches(b, alert))

	// customer-scoped blackout never silences an unscoped alert
	assert.False(t, blackoutMatches(b, blackoutAlert()))
}

func TestBlackoutMatchesCombined(t *testing.T) {
	b := &models.Blackout{
		Environment: "Production",
		Resource:    strptr("web01"),
		Service:     []string{"web"},
		Tags:        []string{"team:sre"},
	}
	assert.True(t, blackoutMatches(b, blackoutAlert()))

	b.Event = strptr("DiskFull")
	assert.False(t, blackoutMatches(b, blackoutAlert()))
}
