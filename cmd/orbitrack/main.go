package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/star/orbitrack/internal/api"
	"github.com/star/orbitrack/internal/config"
	"github.com/star/orbitrack/internal/freshness"
	"github.com/star/orbitrack/internal/metrics"
	"github.com/star/orbitrack/internal/observability"
	"github.com/star/orbitrack/internal/orbitpath"
	"github.com/star/orbitrack/internal/passes"
	"github.com/star/orbitrack/internal/propagation"
	"github.com/star/orbitrack/internal/proximity"
	"github.com/star/orbitrack/internal/selection"
	"github.com/star/orbitrack/internal/session"
	"github.com/star/orbitrack/internal/simclock"
	"github.com/star/orbitrack/internal/stream"
	"github.com/star/orbitrack/internal/tle"
)

func main() {
	level := new(slog.LevelVar)
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))

	cfg, err := config.Load(logger)
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	level.Set(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := observability.InitTracing(ctx, cfg.Tracing, logger)
	if err != nil {
		logger.Error("tracing init failed", "error", err)
		os.Exit(1)
	}

	tleCache := tle.NewCache(cfg.TLE.CacheDir, cfg.TLE.MaxFiles)
	catalog := tle.LoadCatalog(cfg.TLE.File, tleCache, logger)
	store := tle.NewStore(catalog)

	build, err := propagation.NewBuilder(cfg.Propagation.Backend)
	if err != nil {
		logger.Error("invalid propagation backend", "error", err)
		os.Exit(1)
	}
	svc := propagation.NewService(build, logger)
	pool := propagation.NewWorkerPool(cfg.Propagation.Workers, logger)

	classifier := freshness.NewClassifier(cfg.FreshnessHorizon)
	sampler := orbitpath.NewSampler(cfg.Path, svc, logger)
	clock := simclock.New(classifier.Horizon(), simclock.WithMultiplier(cfg.ClockMultiplier))
	sel := selection.NewController(cfg.Selection, catalog, classifier, sampler, svc, logger)
	scanner := proximity.NewScanner(cfg.Proximity, svc, pool, logger)

	sess := session.New(cfg.Session, session.Components{
		Store:       store,
		Propagation: svc,
		Sampler:     sampler,
		Classifier:  classifier,
		Clock:       clock,
		Selection:   sel,
		Scanner:     scanner,
		Passes:      passes.NewPredictor(svc, logger),
	}, logger)

	streamHandler := stream.NewHandler(sess, cfg.Stream, logger)
	srv := api.NewServer(api.Config{
		Addr:       cfg.HTTPAddr,
		Auth:       cfg.Auth,
		TrustProxy: cfg.Stream.TrustProxy,
	}, logger, sess, streamHandler)

	go sess.Run(ctx)
	go watchCatalog(ctx, cfg, store, tleCache, sess, logger)

	go func() {
		logger.Info("starting server",
			"addr", cfg.HTTPAddr,
			"auth_enabled", cfg.Auth.Enabled,
			"catalog_source", catalog.Source,
			"catalog_count", catalog.Len(),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server listen error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.HTTPServer().Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}
	observability.ShutdownWithTimeout(shutdownCtx, shutdownTracing, logger)

	logger.Info("server stopped")
}

// watchCatalog keeps the catalog age gauge current and reloads the catalog
// on SIGHUP or, when CatalogRefreshAge is set, once it grows older than that.
func watchCatalog(ctx context.Context, cfg config.Config, store *tle.Store, cache *tle.Cache, sess *session.Session, logger *slog.Logger) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	// A cache snapshot keeps its own timestamp, so an old one stays old after
	// reloading; attempts are spaced by the refresh age.
	var lastAttempt time.Time

	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
			logger.Info("SIGHUP received, reloading catalog")
			reloadCatalog(cfg, store, cache, sess, logger)
		case <-ticker.C:
			age := store.AgeSeconds()
			if age < 0 {
				continue
			}
			metrics.SetCatalogAge(age)
			if cfg.CatalogRefreshAge > 0 && age > cfg.CatalogRefreshAge.Seconds() &&
				time.Since(lastAttempt) > cfg.CatalogRefreshAge {
				lastAttempt = time.Now()
				reloadCatalog(cfg, store, cache, sess, logger)
			}
		}
	}
}

// reloadCatalog swaps in a freshly loaded catalog. A load that falls back to
// the built-in record never replaces a real catalog.
func reloadCatalog(cfg config.Config, store *tle.Store, cache *tle.Cache, sess *session.Session, logger *slog.Logger) {
	next := tle.LoadCatalog(cfg.TLE.File, cache, logger)
	current := store.Get()
	if next.Source == tle.SourceFallback && current != nil && current.Source != tle.SourceFallback {
		metrics.IncCatalogReload("skipped")
		logger.Warn("catalog reload produced no records, keeping current catalog",
			"current_source", current.Source,
			"current_count", current.Len(),
		)
		return
	}
	removed := sess.Reload(next)
	metrics.IncCatalogReload("ok")
	logger.Debug("catalog reload complete", "invalidated_ids", removed)
}
