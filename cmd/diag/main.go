// Command diag inspects a TLE file offline: per-object freshness and
// position, proximity scans around a ground point and pass predictions.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/star/orbitrack/internal/freshness"
	"github.com/star/orbitrack/internal/propagation"
	"github.com/star/orbitrack/internal/tle"
)

var (
	tleFile     string
	backend     string
	atFlag      string
	horizonDays float64
	verbose     bool
)

var rootCmd = &cobra.Command{
	Use:   "diag",
	Short: "Offline diagnostics for orbitrack catalogs",
	Long: `
Load a TLE file and evaluate it without running the server.

Examples:
  # Freshness, position and history samples of the ISS right now
  diag object 25544 --tle active.txt

  # Objects within 500 km of Denver at a fixed instant
  diag scan --tle active.txt --lat 39.74 --lon -104.99 --radius 500 --at 2024-02-06T00:00:00Z

  # Passes of the ISS over Denver in the next 3 days
  diag passes 25544 --tle active.txt --lat 39.74 --lon -104.99 --hours 72
`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&tleFile, "tle", "", "TLE file to load (required)")
	rootCmd.PersistentFlags().StringVar(&backend, "backend", propagation.BackendGoSatellite, "SGP4 backend: go-satellite or akhenakh")
	rootCmd.PersistentFlags().StringVar(&atFlag, "at", "", "evaluation instant, RFC 3339 (default: now)")
	rootCmd.PersistentFlags().Float64Var(&horizonDays, "horizon-days", freshness.DefaultHorizonDays, "validity horizon from epoch, in days")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log catalog loading at debug level")
	rootCmd.MarkPersistentFlagRequired("tle")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// env is what every subcommand needs: the catalog, a propagation service
// and the evaluation instant.
type env struct {
	logger     *slog.Logger
	catalog    *tle.Catalog
	svc        *propagation.Service
	classifier freshness.Classifier
	at         time.Time
}

func loadEnv() (*env, error) {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	at := time.Now().UTC()
	if atFlag != "" {
		t, err := time.Parse(time.RFC3339, atFlag)
		if err != nil {
			return nil, fmt.Errorf("--at: %w", err)
		}
		at = t.UTC()
	}

	data, err := os.ReadFile(tleFile)
	if err != nil {
		return nil, fmt.Errorf("reading TLE file: %w", err)
	}
	catalog := tle.Load("file:"+tleFile, data, logger)
	if catalog.Source == tle.SourceFallback {
		return nil, fmt.Errorf("%s contained no usable records", tleFile)
	}

	build, err := propagation.NewBuilder(backend)
	if err != nil {
		return nil, err
	}

	return &env{
		logger:     logger,
		catalog:    catalog,
		svc:        propagation.NewService(build, logger),
		classifier: freshness.NewClassifier(horizonDays),
		at:         at,
	}, nil
}
