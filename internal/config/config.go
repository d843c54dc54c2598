// Package config loads orbitrack settings from defaults, an optional config
// file named by ORBITRACK_CONFIG, and ORBITRACK_* environment variables, in
// increasing order of precedence.
//
// Invalid values are logged and replaced by their defaults. Only settings
// that cannot be defaulted safely, such as auth without a token, are errors.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/star/orbitrack/internal/auth"
	"github.com/star/orbitrack/internal/freshness"
	"github.com/star/orbitrack/internal/observability"
	"github.com/star/orbitrack/internal/orbitpath"
	"github.com/star/orbitrack/internal/propagation"
	"github.com/star/orbitrack/internal/proximity"
	"github.com/star/orbitrack/internal/selection"
	"github.com/star/orbitrack/internal/session"
	"github.com/star/orbitrack/internal/simclock"
	"github.com/star/orbitrack/internal/stream"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "ORBITRACK"

// TLEConfig locates the element blob.
type TLEConfig struct {
	File     string // explicit TLE file, wins over the cache
	CacheDir string
	MaxFiles int
}

// Config is the full runtime configuration.
type Config struct {
	HTTPAddr          string
	LogLevel          slog.Level
	Auth              auth.Config
	TLE               TLEConfig
	Propagation       propagation.PropConfig
	FreshnessHorizon  float64 // days
	ClockMultiplier   float64
	Session           session.Config
	Selection         selection.Config
	Path              orbitpath.Config
	Proximity         proximity.Config
	Stream            stream.Config
	Tracing           observability.TracingConfig
	ShutdownTimeout   time.Duration
	CatalogRefreshAge time.Duration // reload from the cache when older than this; 0 disables
}

func setDefaults(v *viper.Viper) {
	path := orbitpath.DefaultConfig()
	sess := session.DefaultConfig()
	strm := stream.DefaultConfig()

	v.SetDefault("http.addr", ":8080")
	v.SetDefault("log.level", "info")
	v.SetDefault("auth.enabled", false)
	v.SetDefault("auth.token", "")
	v.SetDefault("tle.file", "")
	v.SetDefault("tle.cache_dir", "/tmp/orbitrack/tle")
	v.SetDefault("tle.max_files", 5)
	v.SetDefault("tle.refresh_age", "0s")
	v.SetDefault("propagation.backend", propagation.BackendGoSatellite)
	v.SetDefault("propagation.workers", runtime.NumCPU())
	v.SetDefault("freshness.horizon_days", freshness.DefaultHorizonDays)
	v.SetDefault("clock.multiplier", simclock.DefaultMultiplier)
	v.SetDefault("tick.interval", sess.TickInterval.String())
	v.SetDefault("scan.interval", sess.ScanInterval.String())
	v.SetDefault("scan.max_objects", proximity.MaxObjects)
	v.SetDefault("scan.mode", string(proximity.ModeGround))
	v.SetDefault("scan.parallel_threshold", 64)
	v.SetDefault("passes.horizon", sess.PassHorizon.String())
	v.SetDefault("passes.min_elevation", 0.0)
	v.SetDefault("selection.recenter_after", path.HistoryWindow.String())
	v.SetDefault("path.cache_capacity", path.CacheCapacity)
	v.SetDefault("stream.max_concurrent", strm.MaxConcurrentPerIP)
	v.SetDefault("stream.max_total", strm.MaxTotal)
	v.SetDefault("stream.interval", strm.Interval.String())
	v.SetDefault("stream.keepalive_interval", strm.KeepaliveInterval.String())
	v.SetDefault("stream.trust_proxy", false)
	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.service_name", "orbitrack")
	v.SetDefault("tracing.exporter", "stdout")
	v.SetDefault("tracing.endpoint", "localhost:4317")
	v.SetDefault("tracing.sample_ratio", 1.0)
	v.SetDefault("shutdown.timeout", "5s")
}

// Load reads the configuration. ORBITRACK_CONFIG may name a YAML, JSON or
// TOML file; a file that is named but unreadable is an error.
func Load(logger *slog.Logger) (Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path := os.Getenv(EnvPrefix + "_CONFIG"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("reading config file %s: %w", path, err)
		}
		logger.Info("config file loaded", "path", path)
	}

	l := loader{v: v, logger: logger}
	cfg := Config{
		HTTPAddr: v.GetString("http.addr"),
		LogLevel: l.level("log.level", slog.LevelInfo),
		TLE: TLEConfig{
			File:     v.GetString("tle.file"),
			CacheDir: v.GetString("tle.cache_dir"),
			MaxFiles: l.positiveInt("tle.max_files", 5),
		},
		Propagation: propagation.PropConfig{
			Backend: l.backend("propagation.backend"),
			Workers: l.positiveInt("propagation.workers", runtime.NumCPU()),
		},
		FreshnessHorizon: l.positiveFloat("freshness.horizon_days", freshness.DefaultHorizonDays),
		ClockMultiplier:  l.multiplier("clock.multiplier"),
		Session: session.Config{
			TickInterval:     l.duration("tick.interval", session.DefaultConfig().TickInterval),
			ScanInterval:     l.duration("scan.interval", session.DefaultConfig().ScanInterval),
			PassHorizon:      l.duration("passes.horizon", session.DefaultConfig().PassHorizon),
			PassMinElevation: l.elevation("passes.min_elevation"),
		},
		Selection: selection.Config{
			RecenterAfter: l.duration("selection.recenter_after", orbitpath.DefaultConfig().HistoryWindow),
		},
		Proximity: proximity.Config{
			MaxObjects:        l.positiveInt("scan.max_objects", proximity.MaxObjects),
			Mode:              l.mode("scan.mode"),
			ParallelThreshold: l.positiveInt("scan.parallel_threshold", 64),
		},
		Stream: stream.Config{
			MaxConcurrentPerIP: l.positiveInt("stream.max_concurrent", stream.DefaultConfig().MaxConcurrentPerIP),
			MaxTotal:           l.positiveInt("stream.max_total", stream.DefaultConfig().MaxTotal),
			Interval:           l.duration("stream.interval", stream.DefaultConfig().Interval),
			KeepaliveInterval:  l.duration("stream.keepalive_interval", stream.DefaultConfig().KeepaliveInterval),
			TrustProxy:         l.boolean("stream.trust_proxy", false),
		},
		Tracing: observability.TracingConfig{
			Enabled:     l.boolean("tracing.enabled", false),
			ServiceName: v.GetString("tracing.service_name"),
			Exporter:    v.GetString("tracing.exporter"),
			Endpoint:    v.GetString("tracing.endpoint"),
			SampleRatio: l.ratio("tracing.sample_ratio"),
		},
		ShutdownTimeout:   l.duration("shutdown.timeout", 5*time.Second),
		CatalogRefreshAge: l.optionalDuration("tle.refresh_age"),
	}
	cfg.Path = orbitpath.DefaultConfig()
	cfg.Path.CacheCapacity = l.positiveInt("path.cache_capacity", cfg.Path.CacheCapacity)

	authCfg, err := l.auth()
	if err != nil {
		return Config{}, err
	}
	cfg.Auth = authCfg

	logger.Info("config loaded",
		"http_addr", cfg.HTTPAddr,
		"log_level", cfg.LogLevel.String(),
		"auth_enabled", cfg.Auth.Enabled,
		"tle_file", cfg.TLE.File,
		"tle_cache_dir", cfg.TLE.CacheDir,
		"propagation_backend", cfg.Propagation.Backend,
		"workers", cfg.Propagation.Workers,
		"freshness_horizon_days", cfg.FreshnessHorizon,
		"clock_multiplier", cfg.ClockMultiplier,
		"scan_interval_ms", cfg.Session.ScanInterval.Milliseconds(),
		"scan_mode", string(cfg.Proximity.Mode),
		"tracing_enabled", cfg.Tracing.Enabled,
	)
	return cfg, nil
}

// loader reads one key at a time, warning and falling back on bad values.
type loader struct {
	v      *viper.Viper
	logger *slog.Logger
}

func (l loader) invalid(key string, raw any, def any) {
	l.logger.Warn("invalid config value, using default",
		"key", key,
		"env", EnvPrefix+"_"+strings.ToUpper(strings.ReplaceAll(key, ".", "_")),
		"value", raw,
		"default", def,
	)
}

func (l loader) positiveInt(key string, def int) int {
	raw := l.v.GetString(key)
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || n < 1 {
		l.invalid(key, raw, def)
		return def
	}
	return n
}

func (l loader) float(key string) (float64, string, bool) {
	raw := l.v.GetString(key)
	f, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, raw, false
	}
	return f, raw, true
}

func (l loader) positiveFloat(key string, def float64) float64 {
	f, raw, ok := l.float(key)
	if !ok || f <= 0 {
		l.invalid(key, raw, def)
		return def
	}
	return f
}

// multiplier accepts any rate the clock accepts; negative runs time backwards.
func (l loader) multiplier(key string) float64 {
	f, raw, ok := l.float(key)
	if !ok || simclock.ValidateMultiplier(f) != nil {
		l.invalid(key, raw, simclock.DefaultMultiplier)
		return simclock.DefaultMultiplier
	}
	return f
}

func (l loader) elevation(key string) float64 {
	f, raw, ok := l.float(key)
	if !ok || f < 0 || f >= 90 {
		l.invalid(key, raw, 0.0)
		return 0
	}
	return f
}

func (l loader) ratio(key string) float64 {
	f, raw, ok := l.float(key)
	if !ok || f < 0 || f > 1 {
		l.invalid(key, raw, 1.0)
		return 1
	}
	return f
}

func (l loader) boolean(key string, def bool) bool {
	raw := l.v.GetString(key)
	b, err := strconv.ParseBool(strings.TrimSpace(raw))
	if err != nil {
		l.invalid(key, raw, def)
		return def
	}
	return b
}

// parseDuration accepts Go duration strings ("2s", "1h30m") or a bare number
// of seconds.
func parseDuration(raw string) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if n, err := strconv.Atoi(raw); err == nil {
		return time.Duration(n) * time.Second, nil
	}
	return time.ParseDuration(raw)
}

func (l loader) duration(key string, def time.Duration) time.Duration {
	raw := l.v.GetString(key)
	d, err := parseDuration(raw)
	if err != nil || d <= 0 {
		l.invalid(key, raw, def.String())
		return def
	}
	return d
}

// optionalDuration is like duration but treats zero as "disabled".
func (l loader) optionalDuration(key string) time.Duration {
	raw := l.v.GetString(key)
	d, err := parseDuration(raw)
	if err != nil || d < 0 {
		l.invalid(key, raw, "0s")
		return 0
	}
	return d
}

func (l loader) level(key string, def slog.Level) slog.Level {
	raw := l.v.GetString(key)
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.TrimSpace(raw))); err != nil {
		l.invalid(key, raw, def.String())
		return def
	}
	return lvl
}

func (l loader) backend(key string) string {
	raw := l.v.GetString(key)
	if _, err := propagation.NewBuilder(raw); err != nil {
		l.invalid(key, raw, propagation.BackendGoSatellite)
		return propagation.BackendGoSatellite
	}
	if raw == "" {
		return propagation.BackendGoSatellite
	}
	return raw
}

func (l loader) mode(key string) proximity.Mode {
	raw := l.v.GetString(key)
	m, err := proximity.ParseMode(raw)
	if err != nil {
		l.invalid(key, raw, string(proximity.ModeGround))
		return proximity.ModeGround
	}
	return m
}

func (l loader) auth() (auth.Config, error) {
	cfg := auth.Config{}

	raw := l.v.GetString("auth.enabled")
	enabled, err := strconv.ParseBool(strings.TrimSpace(raw))
	if err != nil {
		return cfg, errors.New(EnvPrefix + "_AUTH_ENABLED must be a boolean value (true/false/1/0)")
	}
	cfg.Enabled = enabled

	if cfg.Enabled {
		cfg.Token = l.v.GetString("auth.token")
		if cfg.Token == "" {
			return cfg, errors.New(EnvPrefix + "_AUTH_TOKEN is required when auth is enabled")
		}
		l.logger.Info("auth enabled")
	}
	return cfg, nil
}
