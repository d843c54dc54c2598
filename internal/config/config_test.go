package config

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/star/orbitrack/internal/propagation"
	"github.com/star/orbitrack/internal/proximity"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

// capture returns a logger writing JSON lines into buf.
func capture(buf *strings.Builder) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

func TestDefaults(t *testing.T) {
	cfg, err := Load(testLogger())
	if err != nil {
		t.Fatal(err)
	}

	if cfg.HTTPAddr != ":8080" {
		t.Errorf("addr = %q", cfg.HTTPAddr)
	}
	if cfg.ClockMultiplier != 10 {
		t.Errorf("multiplier = %v, want 10", cfg.ClockMultiplier)
	}
	if cfg.FreshnessHorizon != 30 {
		t.Errorf("horizon = %v, want 30", cfg.FreshnessHorizon)
	}
	if cfg.Session.ScanInterval != 2*time.Second {
		t.Errorf("scan interval = %v, want 2s", cfg.Session.ScanInterval)
	}
	if cfg.Propagation.Backend != propagation.BackendGoSatellite {
		t.Errorf("backend = %q", cfg.Propagation.Backend)
	}
	if cfg.Propagation.Workers != runtime.NumCPU() {
		t.Errorf("workers = %d, want %d", cfg.Propagation.Workers, runtime.NumCPU())
	}
	if cfg.Proximity.Mode != proximity.ModeGround || cfg.Proximity.MaxObjects != proximity.MaxObjects {
		t.Errorf("proximity = %+v", cfg.Proximity)
	}
	if cfg.Stream.Interval != time.Second {
		t.Errorf("stream interval = %v, want 1s", cfg.Stream.Interval)
	}
	if cfg.Auth.Enabled || cfg.Tracing.Enabled {
		t.Error("auth and tracing should default to disabled")
	}
	if cfg.CatalogRefreshAge != 0 {
		t.Errorf("refresh age = %v, want disabled", cfg.CatalogRefreshAge)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("ORBITRACK_CLOCK_MULTIPLIER", "-60")
	t.Setenv("ORBITRACK_FRESHNESS_HORIZON_DAYS", "14.5")
	t.Setenv("ORBITRACK_SCAN_INTERVAL", "500ms")
	t.Setenv("ORBITRACK_SCAN_MODE", "slant")
	t.Setenv("ORBITRACK_PROPAGATION_BACKEND", "akhenakh")
	t.Setenv("ORBITRACK_STREAM_KEEPALIVE_INTERVAL", "15")
	t.Setenv("ORBITRACK_LOG_LEVEL", "debug")

	cfg, err := Load(testLogger())
	if err != nil {
		t.Fatal(err)
	}

	if cfg.ClockMultiplier != -60 {
		t.Errorf("multiplier = %v, want -60", cfg.ClockMultiplier)
	}
	if cfg.FreshnessHorizon != 14.5 {
		t.Errorf("horizon = %v, want 14.5", cfg.FreshnessHorizon)
	}
	if cfg.Session.ScanInterval != 500*time.Millisecond {
		t.Errorf("scan interval = %v", cfg.Session.ScanInterval)
	}
	if cfg.Proximity.Mode != proximity.ModeSlant {
		t.Errorf("mode = %q", cfg.Proximity.Mode)
	}
	if cfg.Propagation.Backend != propagation.BackendAkhenakh {
		t.Errorf("backend = %q", cfg.Propagation.Backend)
	}
	if cfg.Stream.KeepaliveInterval != 15*time.Second {
		t.Errorf("keepalive = %v, want 15s", cfg.Stream.KeepaliveInterval)
	}
	if cfg.LogLevel != slog.LevelDebug {
		t.Errorf("log level = %v", cfg.LogLevel)
	}
}

func TestInvalidValuesKeepDefaults(t *testing.T) {
	tests := []struct {
		env   string
		value string
		check func(Config) bool
	}{
		{"ORBITRACK_CLOCK_MULTIPLIER", "0", func(c Config) bool { return c.ClockMultiplier == 10 }},
		{"ORBITRACK_CLOCK_MULTIPLIER", "fast", func(c Config) bool { return c.ClockMultiplier == 10 }},
		{"ORBITRACK_CLOCK_MULTIPLIER", "1e12", func(c Config) bool { return c.ClockMultiplier == 10 }},
		{"ORBITRACK_FRESHNESS_HORIZON_DAYS", "-3", func(c Config) bool { return c.FreshnessHorizon == 30 }},
		{"ORBITRACK_SCAN_INTERVAL", "soon", func(c Config) bool { return c.Session.ScanInterval == 2*time.Second }},
		{"ORBITRACK_SCAN_MAX_OBJECTS", "0", func(c Config) bool { return c.Proximity.MaxObjects == proximity.MaxObjects }},
		{"ORBITRACK_SCAN_MODE", "manhattan", func(c Config) bool { return c.Proximity.Mode == proximity.ModeGround }},
		{"ORBITRACK_PROPAGATION_BACKEND", "sdp4", func(c Config) bool { return c.Propagation.Backend == propagation.BackendGoSatellite }},
		{"ORBITRACK_PASSES_MIN_ELEVATION", "95", func(c Config) bool { return c.Session.PassMinElevation == 0 }},
		{"ORBITRACK_TRACING_SAMPLE_RATIO", "2", func(c Config) bool { return c.Tracing.SampleRatio == 1 }},
		{"ORBITRACK_LOG_LEVEL", "loud", func(c Config) bool { return c.LogLevel == slog.LevelInfo }},
	}

	for _, tt := range tests {
		t.Run(tt.env+"="+tt.value, func(t *testing.T) {
			t.Setenv(tt.env, tt.value)

			var buf strings.Builder
			cfg, err := Load(capture(&buf))
			if err != nil {
				t.Fatal(err)
			}
			if !tt.check(cfg) {
				t.Errorf("%s=%s did not fall back to the default", tt.env, tt.value)
			}
			if !strings.Contains(buf.String(), tt.env) {
				t.Errorf("expected a warning naming %s, got %s", tt.env, buf.String())
			}
		})
	}
}

func TestAuthRequiresToken(t *testing.T) {
	t.Setenv("ORBITRACK_AUTH_ENABLED", "true")
	if _, err := Load(testLogger()); err == nil {
		t.Fatal("expected error when auth is enabled without a token")
	}

	t.Setenv("ORBITRACK_AUTH_TOKEN", "s3cret")
	cfg, err := Load(testLogger())
	if err != nil {
		t.Fatal(err)
	}
	if !cfg.Auth.Enabled || cfg.Auth.Token != "s3cret" {
		t.Errorf("auth = %+v", cfg.Auth)
	}

	t.Setenv("ORBITRACK_AUTH_ENABLED", "maybe")
	if _, err := Load(testLogger()); err == nil {
		t.Error("expected error for non-boolean auth flag")
	}
}

func TestConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "orbitrack.yaml")
	body := `
http:
  addr: ":9090"
clock:
  multiplier: 120
scan:
  interval: 5s
tle:
  file: /data/active.txt
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("ORBITRACK_CONFIG", path)
	// Environment wins over the file.
	t.Setenv("ORBITRACK_CLOCK_MULTIPLIER", "30")

	cfg, err := Load(testLogger())
	if err != nil {
		t.Fatal(err)
	}
	if cfg.HTTPAddr != ":9090" {
		t.Errorf("addr = %q, want :9090", cfg.HTTPAddr)
	}
	if cfg.Session.ScanInterval != 5*time.Second {
		t.Errorf("scan interval = %v, want 5s", cfg.Session.ScanInterval)
	}
	if cfg.TLE.File != "/data/active.txt" {
		t.Errorf("tle file = %q", cfg.TLE.File)
	}
	if cfg.ClockMultiplier != 30 {
		t.Errorf("multiplier = %v, want env override 30", cfg.ClockMultiplier)
	}
}

func TestMissingConfigFile(t *testing.T) {
	t.Setenv("ORBITRACK_CONFIG", filepath.Join(t.TempDir(), "nope.yaml"))
	if _, err := Load(testLogger()); err == nil {
		t.Error("expected error for a named but missing config file")
	}
}

func TestParseDuration(t *testing.T) {
	tests := []struct {
		in   string
		want time.Duration
	}{
		{"30", 30 * time.Second},
		{"2s", 2 * time.Second},
		{"1h30m", 90 * time.Minute},
		{" 250ms ", 250 * time.Millisecond},
	}
	for _, tt := range tests {
		got, err := parseDuration(tt.in)
		if err != nil || got != tt.want {
			t.Errorf("parseDuration(%q) = %v, %v; want %v", tt.in, got, err, tt.want)
		}
	}
}
