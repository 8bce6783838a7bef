// v1
// internal/config/config_test.go
package config

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("ACCT_PROPERTIES", filepath.Join(t.TempDir(), "missing.properties"))
	cfg := Load()
	if cfg.BindAddr != ":8086" || cfg.TimezoneOffsetHours != 5 {
		t.Fatalf("defaults: addr %s offset %d", cfg.BindAddr, cfg.TimezoneOffsetHours)
	}
	if cfg.DailyTargetTonnes != 1200 || cfg.ShiftTargetTonnes != 600 || cfg.HourlyTargetTonnes != 50 {
		t.Fatalf("default targets: %+v", cfg)
	}
	if cfg.GapThreshold != 15*time.Minute || cfg.LargeGapThreshold != 60*time.Minute {
		t.Fatalf("default gaps: %s / %s", cfg.GapThreshold, cfg.LargeGapThreshold)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults must validate: %v", err)
	}
}

func TestLoadPropertiesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prodacct.properties")
	body := `# accounting overrides
bind_addr = :9090
daily_target_tonnes = 1500
gap_threshold_minutes = 10
brokers = kafka-1:9092, kafka-2:9092
excluded_dates = 2024-01-01, 2024-03-22
bucket_size_minutes = 15

; malformed lines are skipped
not a property
bucket_size_minutes = 20
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	t.Setenv("ACCT_PROPERTIES", path)

	cfg := Load()
	if cfg.BindAddr != ":9090" {
		t.Fatalf("bind addr = %s", cfg.BindAddr)
	}
	if cfg.DailyTargetTonnes != 1500 {
		t.Fatalf("daily target = %.1f", cfg.DailyTargetTonnes)
	}
	if cfg.GapThreshold != 10*time.Minute {
		t.Fatalf("gap threshold = %s", cfg.GapThreshold)
	}
	if len(cfg.Brokers) != 2 || cfg.Brokers[1] != "kafka-2:9092" {
		t.Fatalf("brokers = %v", cfg.Brokers)
	}
	if !cfg.ExcludedDates["2024-01-01"] || !cfg.ExcludedDates["2024-03-22"] {
		t.Fatalf("excluded dates = %v", cfg.ExcludedDates)
	}
	// 20 is not a legal bucket size; the earlier 15 stands
	if cfg.BucketSize != 15*time.Minute {
		t.Fatalf("bucket size = %s", cfg.BucketSize)
	}
}

func TestLoadReportsUnreadableProperties(t *testing.T) {
	// a directory opens fine but cannot be scanned, so the file exists yet
	// fails to load; that must be reported, not swallowed
	t.Setenv("ACCT_PROPERTIES", t.TempDir())

	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, nil)))
	t.Cleanup(func() { slog.SetDefault(prev) })

	cfg := Load()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults must survive a bad properties file: %v", err)
	}
	if !strings.Contains(buf.String(), "properties file not applied") {
		t.Fatalf("load error not reported, log: %s", buf.String())
	}
}

func TestEnvOverridesProperties(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prodacct.properties")
	if err := os.WriteFile(path, []byte("daily_target_tonnes = 1500\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	t.Setenv("ACCT_PROPERTIES", path)
	t.Setenv("ACCT_DAILY_TARGET", "1800")
	t.Setenv("ACCT_TZ_OFFSET_HOURS", "6")
	t.Setenv("ACCT_CACHE_TTL", "90s")

	cfg := Load()
	if cfg.DailyTargetTonnes != 1800 {
		t.Fatalf("daily target = %.1f, want env value 1800", cfg.DailyTargetTonnes)
	}
	if cfg.TimezoneOffsetHours != 6 {
		t.Fatalf("offset = %d, want 6", cfg.TimezoneOffsetHours)
	}
	if cfg.CacheTTL != 90*time.Second {
		t.Fatalf("cache ttl = %s", cfg.CacheTTL)
	}
}

func TestValidate(t *testing.T) {
	cfg := defaults()
	cfg.BucketSize = 20 * time.Minute
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for bucket size 20m")
	}

	cfg = defaults()
	cfg.LargeGapThreshold = 10 * time.Minute
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for large gap below gap")
	}

	cfg = defaults()
	cfg.ShiftTargetTonnes = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for zero shift target")
	}
}
