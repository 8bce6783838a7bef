// v2
// internal/config/config.go
package config

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config carries every recognized option of the accounting service.
// Defaults reflect the mine's standing targets; a .properties file and then
// the environment may override them.
type Config struct {
	BindAddr string
	LogFile  string

	// Kafka ingestion
	Brokers []string
	Topic   string
	GroupID string

	// stores
	ReadingsPath string
	ShiftsPath   string

	// accounting
	TimezoneOffsetHours int
	DailyTargetTonnes   float64
	ShiftTargetTonnes   float64
	HourlyTargetTonnes  float64

	// classification
	GapThreshold      time.Duration
	LargeGapThreshold time.Duration
	ResetEpsilon      float64
	ResetTolerance    float64
	SpikeThreshold    float64 // live dashboard threshold; audit paths pass their own
	AuditSpike        float64

	BucketSize time.Duration

	// corrections
	AnomalyDifference float64 // stored shift differences above this get flagged

	// maintenance and holiday dates excluded from monthly averaging
	ExcludedDates map[string]bool

	CacheTTL time.Duration
}

func defaults() Config {
	return Config{
		BindAddr:            ":8086",
		LogFile:             "./prodacct.log",
		Brokers:             []string{"kafka:9092"},
		Topic:               "meter.readings",
		GroupID:             "prodacct",
		ReadingsPath:        "/app/data/readings.jsonl",
		ShiftsPath:          "/app/data/shifts.jsonl",
		TimezoneOffsetHours: 5,
		DailyTargetTonnes:   1200,
		ShiftTargetTonnes:   600,
		HourlyTargetTonnes:  50,
		GapThreshold:        15 * time.Minute,
		LargeGapThreshold:   60 * time.Minute,
		ResetEpsilon:        10,
		ResetTolerance:      10,
		SpikeThreshold:      100,
		AuditSpike:          20,
		BucketSize:          30 * time.Minute,
		AnomalyDifference:   10000,
		ExcludedDates:       map[string]bool{},
		CacheTTL:            30 * time.Second,
	}
}

// Load builds the config: defaults, then the properties file named by
// ACCT_PROPERTIES (if readable), then env overrides.
func Load() Config {
	cfg := defaults()
	path := strings.TrimSpace(os.Getenv("ACCT_PROPERTIES"))
	if path == "" {
		path = "/app/prodacct.properties"
	}
	if err := cfg.loadProperties(path); err != nil && !os.IsNotExist(err) {
		slog.Warn("properties file not applied", slog.String("path", path), slog.String("err", err.Error()))
	}
	cfg.applyEnv()
	return cfg
}

func (c *Config) loadProperties(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, ";") {
			continue
		}
		kv := strings.SplitN(line, "=", 2)
		if len(kv) != 2 {
			continue
		}
		c.apply(strings.ToLower(strings.TrimSpace(kv[0])), strings.TrimSpace(kv[1]))
	}
	return sc.Err()
}

func (c *Config) applyEnv() {
	for _, e := range [...]struct{ env, key string }{
		{"ACCT_BIND_ADDR", "bind_addr"},
		{"ACCT_LOGFILE", "log_file"},
		{"ACCT_BROKERS", "brokers"},
		{"ACCT_TOPIC", "topic"},
		{"ACCT_GROUP_ID", "group_id"},
		{"ACCT_READINGS_PATH", "readings_path"},
		{"ACCT_SHIFTS_PATH", "shifts_path"},
		{"ACCT_TZ_OFFSET_HOURS", "timezone_offset_hours"},
		{"ACCT_DAILY_TARGET", "daily_target_tonnes"},
		{"ACCT_SHIFT_TARGET", "shift_target_tonnes"},
		{"ACCT_HOURLY_TARGET", "hourly_target_tonnes"},
		{"ACCT_GAP_MINUTES", "gap_threshold_minutes"},
		{"ACCT_LARGE_GAP_MINUTES", "large_gap_threshold_minutes"},
		{"ACCT_RESET_EPSILON", "reset_epsilon_tonnes"},
		{"ACCT_RESET_TOLERANCE", "reset_tolerance_tonnes"},
		{"ACCT_SPIKE_THRESHOLD", "spike_threshold_tonnes"},
		{"ACCT_AUDIT_SPIKE", "audit_spike_tonnes"},
		{"ACCT_BUCKET_MINUTES", "bucket_size_minutes"},
		{"ACCT_ANOMALY_DIFFERENCE", "anomaly_difference_tonnes"},
		{"ACCT_EXCLUDED_DATES", "excluded_dates"},
		{"ACCT_CACHE_TTL", "cache_ttl"},
	} {
		if v := strings.TrimSpace(os.Getenv(e.env)); v != "" {
			c.apply(e.key, v)
		}
	}
}

func (c *Config) apply(key, v string) {
	switch key {
	case "bind_addr":
		c.BindAddr = v
	case "log_file":
		c.LogFile = v
	case "brokers":
		if out := splitList(v); len(out) > 0 {
			c.Brokers = out
		}
	case "topic":
		c.Topic = v
	case "group_id":
		c.GroupID = v
	case "readings_path":
		c.ReadingsPath = v
	case "shifts_path":
		c.ShiftsPath = v
	case "timezone_offset_hours":
		if n, err := strconv.Atoi(v); err == nil {
			c.TimezoneOffsetHours = n
		}
	case "daily_target_tonnes":
		setFloat(&c.DailyTargetTonnes, v)
	case "shift_target_tonnes":
		setFloat(&c.ShiftTargetTonnes, v)
	case "hourly_target_tonnes":
		setFloat(&c.HourlyTargetTonnes, v)
	case "gap_threshold_minutes":
		setMinutes(&c.GapThreshold, v)
	case "large_gap_threshold_minutes":
		setMinutes(&c.LargeGapThreshold, v)
	case "reset_epsilon_tonnes":
		setFloat(&c.ResetEpsilon, v)
	case "reset_tolerance_tonnes":
		setFloat(&c.ResetTolerance, v)
	case "spike_threshold_tonnes":
		setFloat(&c.SpikeThreshold, v)
	case "audit_spike_tonnes":
		setFloat(&c.AuditSpike, v)
	case "bucket_size_minutes":
		if n, err := strconv.Atoi(v); err == nil && (n == 15 || n == 30) {
			c.BucketSize = time.Duration(n) * time.Minute
		}
	case "anomaly_difference_tonnes":
		setFloat(&c.AnomalyDifference, v)
	case "excluded_dates":
		for _, d := range splitList(v) {
			c.ExcludedDates[d] = true
		}
	case "cache_ttl":
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			c.CacheTTL = d
		}
	}
}

// Validate rejects option combinations the engine cannot run with.
func (c Config) Validate() error {
	if c.BucketSize != 15*time.Minute && c.BucketSize != 30*time.Minute {
		return fmt.Errorf("bucket size must be 15 or 30 minutes, got %s", c.BucketSize)
	}
	if c.LargeGapThreshold < c.GapThreshold {
		return fmt.Errorf("large gap threshold %s below gap threshold %s", c.LargeGapThreshold, c.GapThreshold)
	}
	if c.DailyTargetTonnes <= 0 || c.ShiftTargetTonnes <= 0 || c.HourlyTargetTonnes <= 0 {
		return fmt.Errorf("targets must be positive")
	}
	return nil
}

func setFloat(dst *float64, v string) {
	if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
		*dst = f
	}
}

func setMinutes(dst *time.Duration, v string) {
	if n, err := strconv.Atoi(v); err == nil && n > 0 {
		*dst = time.Duration(n) * time.Minute
	}
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
