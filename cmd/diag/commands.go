package main

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/star/orbitrack/internal/orbitpath"
	"github.com/star/orbitrack/internal/passes"
	"github.com/star/orbitrack/internal/propagation"
	"github.com/star/orbitrack/internal/proximity"
	"github.com/star/orbitrack/internal/tle"
	"github.com/star/orbitrack/internal/transform"
)

var objectCmd = &cobra.Command{
	Use:   "object <norad_id>",
	Short: "Show freshness, position and history samples of one object",
	Args:  cobra.ExactArgs(1),
	RunE:  runObject,
}

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "List catalog objects within a radius of a ground point",
	RunE:  runScan,
}

var passesCmd = &cobra.Command{
	Use:   "passes <norad_id>",
	Short: "Predict passes of one object over a ground point",
	Args:  cobra.ExactArgs(1),
	RunE:  runPasses,
}

var (
	latDeg   float64
	lonDeg   float64
	altM     float64
	radiusKm float64
	scanMode string
	hours    float64
	minElev  float64
)

func init() {
	for _, cmd := range []*cobra.Command{scanCmd, passesCmd} {
		cmd.Flags().Float64Var(&latDeg, "lat", 0, "ground latitude, degrees")
		cmd.Flags().Float64Var(&lonDeg, "lon", 0, "ground longitude, degrees")
		cmd.Flags().Float64Var(&altM, "alt", 0, "ground altitude, meters")
		cmd.MarkFlagRequired("lat")
		cmd.MarkFlagRequired("lon")
	}
	scanCmd.Flags().Float64Var(&radiusKm, "radius", 500, "search radius, km")
	scanCmd.Flags().StringVar(&scanMode, "mode", string(proximity.ModeGround), "distance metric: ground or slant")
	passesCmd.Flags().Float64Var(&hours, "hours", passes.DefaultHorizon.Hours(), "prediction window, hours")
	passesCmd.Flags().Float64Var(&minElev, "min-elevation", 0, "minimum peak elevation, degrees")

	rootCmd.AddCommand(objectCmd, scanCmd, passesCmd)
}

func lookup(e *env, arg string) (tle.OrbitalElements, error) {
	id, err := strconv.Atoi(arg)
	if err != nil {
		return tle.OrbitalElements{}, fmt.Errorf("invalid norad_id %q", arg)
	}
	el, ok := e.catalog.Get(id)
	if !ok {
		return tle.OrbitalElements{}, fmt.Errorf("object %d not in %s", id, e.catalog.Source)
	}
	return el, nil
}

func runObject(cmd *cobra.Command, args []string) error {
	e, err := loadEnv()
	if err != nil {
		return err
	}
	el, err := lookup(e, args[0])
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fresh := e.classifier.Classify(el, e.at)
	fmt.Fprintf(out, "%s (NORAD %d)\n", el.Name, el.NORADID)
	fmt.Fprintf(out, "  epoch:     %s\n", el.Epoch.Format(time.RFC3339))
	fmt.Fprintf(out, "  instant:   %s\n", e.at.Format(time.RFC3339))
	fmt.Fprintf(out, "  freshness: %s, %.2f days, valid=%t\n", fresh.Label, fresh.AgeDays, fresh.Valid)

	st, err := e.svc.Propagate(el, e.at)
	switch {
	case errors.Is(err, propagation.ErrInvalidElements):
		fmt.Fprintf(out, "  position:  untrackable: %v\n", err)
		return nil
	case err != nil:
		fmt.Fprintf(out, "  position:  unavailable: %v\n", err)
	default:
		fmt.Fprintf(out, "  position:  lat %.4f lon %.4f alt %.1f km, %.3f km/s\n",
			st.Geodetic.LatDeg, st.Geodetic.LonDeg, st.Geodetic.AltKm, st.VelocityKmS)
	}

	if !fresh.Valid {
		fmt.Fprintln(out, "  history:   suppressed, elements outside the validity horizon")
		return nil
	}
	sampler := orbitpath.NewSampler(orbitpath.DefaultConfig(), e.svc, e.logger)
	path := sampler.SampleHistory(el, e.at)
	fmt.Fprintf(out, "  history:   %d of %d samples around %s\n",
		len(path.Samples), sampler.HistorySteps(), path.Center.Format(time.RFC3339))
	return nil
}

func runScan(cmd *cobra.Command, args []string) error {
	e, err := loadEnv()
	if err != nil {
		return err
	}
	mode, err := proximity.ParseMode(scanMode)
	if err != nil {
		return err
	}

	scanner := proximity.NewScanner(proximity.Config{Mode: mode}, e.svc,
		propagation.NewWorkerPool(runtime.NumCPU(), e.logger), e.logger)
	if err := scanner.SetTarget(proximity.GroundTarget{LatDeg: latDeg, LonDeg: lonDeg, AltM: altM, RadiusKm: radiusKm}); err != nil {
		return err
	}

	start := time.Now()
	results, _ := scanner.Scan(cmd.Context(), e.catalog.Entries(), e.at)
	elapsed := time.Since(start)

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%d objects within %.0f km (%s) at %s, scanned %d in %s\n",
		len(results), radiusKm, mode, e.at.Format(time.RFC3339), e.catalog.Len(), elapsed.Round(time.Millisecond))
	for _, r := range results {
		fmt.Fprintf(out, "  %6d  %-24s %8.1f km  lat %8.3f lon %9.3f alt %7.1f km\n",
			r.NORADID, r.Name, r.DistanceKm, r.Position.LatDeg, r.Position.LonDeg, r.Position.AltKm)
	}
	return nil
}

func runPasses(cmd *cobra.Command, args []string) error {
	e, err := loadEnv()
	if err != nil {
		return err
	}
	el, err := lookup(e, args[0])
	if err != nil {
		return err
	}
	if !transform.ValidLatLon(latDeg, lonDeg) {
		return fmt.Errorf("lat %.4f lon %.4f out of range", latDeg, lonDeg)
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
	defer cancel()

	events, err := passes.NewPredictor(e.svc, e.logger).Predict(ctx, passes.Request{
		Observer:     transform.NewObserverPosition(latDeg, lonDeg, altM),
		Elements:     el,
		Start:        e.at,
		Horizon:      time.Duration(hours * float64(time.Hour)),
		MinElevation: minElev,
	})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s (NORAD %d): %d passes from %s\n", el.Name, el.NORADID, len(events), e.at.Format(time.RFC3339))
	for i, p := range events {
		fmt.Fprintf(out, "  pass %d: start=%s max_el=%.1f az=%.0f dur=%.0fs\n",
			i, p.StartTime.Format(time.RFC3339), p.MaxElevation, p.AzimuthAtMax, p.DurationSeconds)
	}
	return nil
}
