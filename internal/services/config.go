package services

import (
	"time"

	"alertd/internal/models"

	"github.com/spf13/viper"
)

// Config carries the alert engine settings, read once at startup.
type Config struct {
	Origin              string
	HistoryLimit        int
	AlertTimeout        int
	ShelveTimeout       int
	AckTimeout          int
	EscalateTime        int
	FlapWindow          time.Duration
	FlapCount           int
	HeartbeatMaxLatency time.Duration
	CustomerViews       bool
	BlackoutAccept      bool
	DeleteExpiredAfter  time.Duration
	DeleteInfoAfter     time.Duration
	RateLimitCount      int
	RateLimitWindow     time.Duration
	AllowedEnvironments []string
	OriginBlacklist     []string
}

// ConfigFromViper applies defaults and reads overrides. Severity,
// status and color map overrides are applied to the model tables.
func ConfigFromViper() *Config {
	viper.SetDefault("alert.origin", "alertd")
	viper.SetDefault("alert.history_limit", 100)
	viper.SetDefault("alert.timeout", 86400)
	viper.SetDefault("alert.shelve_timeout", 7200)
	viper.SetDefault("alert.ack_timeout", 0)
	viper.SetDefault("alert.escalate_time", 1800)
	viper.SetDefault("alert.flap_window", 1800)
	viper.SetDefault("alert.flap_count", 2)
	viper.SetDefault("alert.heartbeat_max_latency", 2000)
	viper.SetDefault("alert.customer_views", false)
	viper.SetDefault("alert.blackout_accept", true)
	viper.SetDefault("alert.delete_expired_after", 7200)
	viper.SetDefault("alert.delete_info_after", 43200)
	viper.SetDefault("alert.rate_limit_count", 0)
	viper.SetDefault("alert.rate_limit_window", 60)

	if m := viper.GetStringMap("alert.severity_map"); len(m) > 0 {
		models.SeverityMap = map[string]int{}
		for k := range m {
			models.SeverityMap[k] = viper.GetInt("alert.severity_map." + k)
		}
	}
	if m := viper.GetStringMapString("alert.color_map"); len(m) > 0 {
		models.ColorMap = m
	}
	if s := viper.GetString("alert.default_normal_severity"); s != "" {
		models.DefaultNormalSeverity = s
	}
	if s := viper.GetString("alert.default_inform_severity"); s != "" {
		models.DefaultInformSeverity = s
	}
	if s := viper.GetString("alert.default_previous_severity"); s != "" {
		models.DefaultPreviousSeverity = s
	}

	return &Config{
		Origin:              viper.GetString("alert.origin"),
		HistoryLimit:        viper.GetInt("alert.history_limit"),
		AlertTimeout:        viper.GetInt("alert.timeout"),
		ShelveTimeout:       viper.GetInt("alert.shelve_timeout"),
		AckTimeout:          viper.GetInt("alert.ack_timeout"),
		EscalateTime:        viper.GetInt("alert.escalate_time"),
		FlapWindow:          time.Duration(viper.GetInt("alert.flap_window")) * time.Second,
		FlapCount:           viper.GetInt("alert.flap_count"),
		HeartbeatMaxLatency: time.Duration(viper.GetInt("alert.heartbeat_max_latency")) * time.Millisecond,
		CustomerViews:       viper.GetBool("alert.customer_views"),
		BlackoutAccept:      viper.GetBool("alert.blackout_accept"),
		DeleteExpiredAfter:  time.Duration(viper.GetInt("alert.delete_expired_after")) * time.Second,
		DeleteInfoAfter:     time.Duration(viper.GetInt("alert.delete_info_after")) * time.Second,
		RateLimitCount:      viper.GetInt("alert.rate_limit_count"),
		RateLimitWindow:     time.Duration(viper.GetInt("alert.rate_limit_window")) * time.Second,
		AllowedEnvironments: viper.GetStringSlice("alert.allowed_environments"),
		OriginBlacklist:     viper.GetStringSlice("alert.origin_blacklist"),
	}
}
