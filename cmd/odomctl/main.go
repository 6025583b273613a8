package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-logr/logr"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/san-kum/odomctl/internal/config"
	"github.com/san-kum/odomctl/internal/logging"
	"github.com/san-kum/odomctl/internal/metrics"
)

var (
	dataDir     string
	configFile  string
	preset      string
	logLevel    string
	logDev      bool
	metricsAddr string

	odometryName string
	sourceName   string
	integrator   string
	period       time.Duration
	timeout      time.Duration
	noSave       bool

	// tune
	loopName   string
	metricName string
	kpRange    string
	kiRange    string
	kdRange    string
	tuneTime   time.Duration
	workers    int
	trials     int
	perturb    float64
	seed       int64

	// monitor
	monitorFor time.Duration

	// plot
	pngDir string
	width  int
)

// main registers the odomctl commands and runs the root command. It exits
// with status 1 when the command fails.
func main() {
	rootCmd := &cobra.Command{
		Use:           "odomctl",
		Short:         "skid-steer odometry and motion control",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&dataDir, "data", ".odomctl", "data directory")
	pf.StringVar(&configFile, "config", "", "config file path (yaml)")
	pf.StringVar(&preset, "preset", "", "preset as family/name, see 'presets'")
	pf.StringVar(&logLevel, "log-level", "info", "log level: trace, debug, info, warn, error")
	pf.BoolVar(&logDev, "log-dev", false, "human-readable development logs")
	pf.StringVar(&metricsAddr, "metrics-addr", "", "serve prometheus metrics on this address, e.g. :9090")

	driveCmd := &cobra.Command{
		Use:   "drive [meters]",
		Short: "drive straight by a distance",
		Args:  cobra.ExactArgs(1),
		RunE:  runMotion("drive"),
	}
	turnCmd := &cobra.Command{
		Use:   "turn [degrees]",
		Short: "turn in place, positive clockwise",
		Args:  cobra.ExactArgs(1),
		RunE:  runMotion("turn"),
	}
	missionCmd := &cobra.Command{
		Use:   "mission [file]",
		Short: "run a yaml mission of drive, turn and wait steps",
		Args:  cobra.ExactArgs(1),
		RunE:  runMission,
	}
	monitorCmd := &cobra.Command{
		Use:   "monitor",
		Short: "print the pose estimate until interrupted",
		RunE:  runMonitor,
	}
	monitorCmd.Flags().DurationVar(&monitorFor, "for", 0, "stop after this long (0 runs until interrupted)")

	for _, c := range []*cobra.Command{driveCmd, turnCmd, missionCmd, monitorCmd} {
		f := c.Flags()
		f.StringVar(&odometryName, "odometry", "arc", "pose engine: arc or heading")
		f.StringVar(&sourceName, "source", "sim", "drivetrain: sim or serial")
		f.StringVar(&integrator, "integrator", "rk4", "simulation integrator: rk4 or euler")
		f.DurationVar(&period, "period", config.DefaultPeriod, "control and odometry period")
		f.DurationVar(&timeout, "timeout", 15*time.Second, "give up on a motion after this long")
		f.BoolVar(&noSave, "no-save", false, "do not store the recorded run")
	}

	tuneCmd := &cobra.Command{
		Use:   "tune",
		Short: "grid-search loop gains against the simulator",
		RunE:  runTune,
	}
	tf := tuneCmd.Flags()
	tf.StringVar(&loopName, "loop", "distance", "loop to tune: distance or angle")
	tf.StringVar(&metricName, "metric", "itae", "metric to minimise")
	tf.StringVar(&kpRange, "kp", "0.5:8:16", "kp range as min:max:steps or a single value")
	tf.StringVar(&kiRange, "ki", "0", "ki range as min:max:steps or a single value")
	tf.StringVar(&kdRange, "kd", "0:0.4:5", "kd range as min:max:steps or a single value")
	tf.DurationVar(&tuneTime, "time", 3*time.Second, "simulated duration of each response")
	tf.IntVar(&workers, "workers", 4, "parallel evaluations")
	tf.IntVar(&trials, "trials", 0, "monte carlo trials to check the best gains")
	tf.Float64Var(&perturb, "perturb", 0.2, "relative plant perturbation for monte carlo")
	tf.Int64Var(&seed, "seed", 0, "monte carlo seed (0 uses the clock)")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "list recorded runs",
		RunE:  listRuns,
	}
	reportCmd := &cobra.Command{
		Use:   "report [run_id]",
		Short: "show the summary and step-response analysis of a run",
		Args:  cobra.ExactArgs(1),
		RunE:  reportRun,
	}
	plotCmd := &cobra.Command{
		Use:   "plot [run_id]",
		Short: "plot a run in the terminal or as images",
		Args:  cobra.ExactArgs(1),
		RunE:  plotRun,
	}
	plotCmd.Flags().StringVar(&pngDir, "png", "", "write response.png and path.png to this directory")
	plotCmd.Flags().IntVar(&width, "width", 72, "terminal plot width")

	exportCmd := &cobra.Command{
		Use:   "export [run_id]",
		Short: "export a run and its trajectory as json",
		Args:  cobra.ExactArgs(1),
		RunE:  exportRun,
	}

	presetsCmd := &cobra.Command{
		Use:   "presets [family]",
		Short: "list preset families or the presets of one family",
		Args:  cobra.MaximumNArgs(1),
		RunE:  listPresets,
	}

	configCmd := &cobra.Command{
		Use:   "config [path]",
		Short: "write the effective configuration as yaml (stdout when no path)",
		Args:  cobra.MaximumNArgs(1),
		RunE:  dumpConfig,
	}

	rootCmd.AddCommand(driveCmd, turnCmd, missionCmd, monitorCmd, tuneCmd, listCmd, reportCmd, plotCmd, exportCmd, presetsCmd, configCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// loadConfig resolves the configuration: defaults, then the preset, then
// the config file, then any flag the user set explicitly.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.DefaultConfig()

	if preset != "" {
		family, name, ok := strings.Cut(preset, "/")
		if !ok {
			return nil, fmt.Errorf("preset must be family/name, got %q", preset)
		}
		p := config.GetPreset(family, name)
		if p == nil {
			return nil, fmt.Errorf("unknown preset: %s (available: %v)", preset, config.ListPresets(family))
		}
		cfg = p
	}

	if configFile != "" {
		loaded, err := config.Load(configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
		cfg = loaded
	}

	flags := cmd.Flags()
	if flags.Changed("odometry") {
		cfg.Odometry = odometryName
	}
	if flags.Changed("source") {
		cfg.Source = sourceName
	}
	if flags.Changed("integrator") {
		cfg.Integrator = integrator
	}
	if flags.Changed("period") {
		cfg.Period = period
	}
	if flags.Changed("log-level") {
		cfg.Log.Level = logLevel
	}
	if flags.Changed("log-dev") {
		cfg.Log.Development = logDev
	}
	if flags.Changed("metrics-addr") {
		cfg.MetricsAddr = metricsAddr
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// setup loads the configuration, builds the logger and starts the metrics
// endpoint. The returned stop function shuts the endpoint down.
func setup(cmd *cobra.Command) (*config.Config, logr.Logger, func(), error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, logr.Discard(), nil, err
	}
	log, err := logging.New(cfg.Log.Level, cfg.Log.Development)
	if err != nil {
		return nil, logr.Discard(), nil, err
	}
	stop := serveMetrics(cfg.MetricsAddr, log)
	return cfg, log, stop, nil
}

func serveMetrics(addr string, log logr.Logger) func() {
	if addr == "" {
		return func() {}
	}
	metrics.Register(prometheus.DefaultRegisterer)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error(err, "metrics server stopped", "addr", addr)
		}
	}()
	log.Info("serving metrics", "addr", addr)

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
