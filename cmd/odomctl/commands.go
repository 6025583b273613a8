package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/go-logr/logr"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/san-kum/odomctl/internal/analysis"
	"github.com/san-kum/odomctl/internal/automation"
	"github.com/san-kum/odomctl/internal/config"
	"github.com/san-kum/odomctl/internal/control"
	"github.com/san-kum/odomctl/internal/dynamo"
	"github.com/san-kum/odomctl/internal/experiment"
	"github.com/san-kum/odomctl/internal/optim"
	"github.com/san-kum/odomctl/internal/storage"
	"github.com/san-kum/odomctl/internal/units"
	"github.com/san-kum/odomctl/internal/viz"
)

func openStore() (*storage.Store, error) {
	st := storage.New(dataDir)
	if err := st.Init(); err != nil {
		return nil, err
	}
	return st, nil
}

func buildRig(ctx context.Context, cfg *config.Config, log logr.Logger) (*experiment.Rig, error) {
	openCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return experiment.Build(openCtx, cfg, experiment.NewRegistry(), log)
}

func saveRun(st *storage.Store, run *experiment.Run) error {
	if noSave || run == nil {
		return nil
	}
	id, err := st.Save(run.Meta, run.Trajectory)
	if err != nil {
		return fmt.Errorf("saving run: %w", err)
	}
	run.Meta.ID = id
	return nil
}

func runMotion(kind string) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		amount, err := strconv.ParseFloat(args[0], 64)
		if err != nil {
			return fmt.Errorf("invalid %s amount %q: %w", kind, args[0], err)
		}
		target := amount
		if kind == experiment.KindTurn {
			target = units.Degrees(amount)
		}

		cfg, log, stop, err := setup(cmd)
		if err != nil {
			return err
		}
		defer stop()

		st, err := openStore()
		if err != nil {
			return err
		}

		ctx, cancel := signalContext()
		defer cancel()

		rig, err := buildRig(ctx, cfg, log)
		if err != nil {
			return err
		}
		defer rig.Close()

		motionCtx, cancelMotion := context.WithTimeout(ctx, timeout)
		defer cancelMotion()

		run, runErr := rig.Execute(motionCtx, kind, target)
		if err := saveRun(st, run); err != nil {
			return err
		}
		if run != nil {
			fmt.Println(viz.RunSummary(run.Meta))
		}
		return runErr
	}
}

func runMission(cmd *cobra.Command, args []string) error {
	mission, err := automation.LoadMission(args[0])
	if err != nil {
		return err
	}

	cfg, log, stop, err := setup(cmd)
	if err != nil {
		return err
	}
	defer stop()

	st, err := openStore()
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	rig, err := buildRig(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer rig.Close()

	fmt.Printf("mission %s: %d steps\n", mission.Name, len(mission.Steps))
	results, runErr := automation.RunMission(ctx, mission, rig, log)

	runs := make([]storage.RunMetadata, 0, len(results))
	for _, r := range results {
		if r.Run == nil {
			continue
		}
		if err := saveRun(st, r.Run); err != nil {
			return err
		}
		runs = append(runs, r.Run.Meta)
	}
	fmt.Println(viz.RunTable(runs))
	fmt.Printf("final pose: %s\n", rig.Chassis().Pose())
	return runErr
}

func runMonitor(cmd *cobra.Command, args []string) error {
	cfg, log, stop, err := setup(cmd)
	if err != nil {
		return err
	}
	defer stop()

	ctx, cancel := signalContext()
	defer cancel()
	if monitorFor > 0 {
		ctx, cancel = context.WithTimeout(ctx, monitorFor)
		defer cancel()
	}

	rig, err := buildRig(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer rig.Close()

	ticker := time.NewTicker(10 * cfg.Period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			fmt.Println(rig.Chassis().Pose())
		}
	}
}

// parseRange parses "min:max:steps" or a single value.
func parseRange(s string) ([]float64, error) {
	parts := strings.Split(s, ":")
	switch len(parts) {
	case 1:
		v, err := strconv.ParseFloat(parts[0], 64)
		if err != nil {
			return nil, err
		}
		return []float64{v}, nil
	case 3:
		lo, err1 := strconv.ParseFloat(parts[0], 64)
		hi, err2 := strconv.ParseFloat(parts[1], 64)
		n, err3 := strconv.Atoi(parts[2])
		if err := errors.Join(err1, err2, err3); err != nil {
			return nil, fmt.Errorf("invalid range %q: %w", s, err)
		}
		if n < 1 {
			return nil, fmt.Errorf("invalid range %q: steps must be positive", s)
		}
		return optim.Linspace(lo, hi, n), nil
	}
	return nil, fmt.Errorf("invalid range %q: want min:max:steps", s)
}

func runTune(cmd *cobra.Command, args []string) error {
	cfg, log, stop, err := setup(cmd)
	if err != nil {
		return err
	}
	defer stop()

	scales, err := cfg.Chassis.Scales()
	if err != nil {
		return err
	}
	reg := experiment.NewRegistry()
	if _, err := reg.GetIntegrator(cfg.Integrator); err != nil {
		return err
	}

	names := []string{"kp", "ki", "kd"}
	ranges := make([][]float64, len(names))
	for i, s := range []string{kpRange, kiRange, kdRange} {
		if ranges[i], err = parseRange(s); err != nil {
			return err
		}
	}

	params := cfg.Sim.Params
	params.WheelTrack = scales.WheelTrack
	problem := optim.Problem{
		Loop:   loopName,
		Target: 0.5,
		Params: params,
		NewIntegrator: func() dynamo.Integrator {
			integ, _ := reg.GetIntegrator(cfg.Integrator)
			return integ
		},
		Period:   cfg.Period,
		Duration: tuneTime,
		Metric:   metricName,
	}
	base := cfg.DistancePID
	if loopName == optim.LoopAngle {
		problem.Target = units.Degrees(90)
		base = cfg.AnglePID
	}

	gs, err := optim.NewGridSearch(names, ranges, workers)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	start := time.Now()
	res, err := gs.Search(ctx, base, func(ctx context.Context, g control.Gains) (float64, error) {
		return optim.Cost(ctx, problem, g)
	})
	if err != nil {
		return err
	}
	log.Info("search finished", "evaluated", res.Evaluated, "failed", res.Failed, "elapsed", time.Since(start))

	best := res.Best
	fmt.Printf("best %s gains by %s: kp=%.4f ki=%.4f kd=%.4f (cost %.6f)\n",
		loopName, metricName, best.Gains.Kp, best.Gains.Ki, best.Gains.Kd, best.Cost)

	resp, err := optim.Simulate(ctx, problem, best.Gains)
	if err == nil {
		if m, err := analysis.StepResponse(resp.Times, resp.Targets, resp.Inputs, resp.Outputs); err == nil {
			printMetrics(m.Map())
		}
	}

	if trials > 0 {
		mc, err := automation.RunMonteCarlo(ctx, automation.MonteCarloConfig{
			Problem:      problem,
			Gains:        best.Gains,
			Perturbation: perturb,
			NumTrials:    trials,
			Seed:         seed,
			Tolerance:    0.02 * problem.Target,
		}, log)
		if err != nil {
			return err
		}
		stable, unstable := automation.MonteCarloStats(mc)
		fmt.Printf("monte carlo: %d stable, %d unstable of %d trials (+/-%.0f%% plant)\n",
			stable, unstable, len(mc), perturb*100)
		fmt.Println(viz.ProgressBar(float64(stable)/float64(len(mc)), 40))
	}
	return nil
}

func printMetrics(m map[string]float64) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	for _, name := range analysis.MetricNames() {
		fmt.Fprintf(w, "  %s\t%.6f\n", name, m[name])
	}
	w.Flush()
}

func listRuns(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir)
	runs, err := st.List()
	if err != nil {
		return err
	}
	fmt.Println(viz.RunTable(runs))
	return nil
}

func loadRun(id string) (*storage.RunMetadata, []storage.Point, error) {
	st := storage.New(dataDir)
	meta, err := st.Load(id)
	if err != nil {
		return nil, nil, err
	}
	traj, err := st.LoadTrajectory(id)
	if err != nil {
		return nil, nil, err
	}
	return meta, traj, nil
}

func reportRun(cmd *cobra.Command, args []string) error {
	meta, traj, err := loadRun(args[0])
	if err != nil {
		return err
	}
	fmt.Println(viz.RunSummary(*meta))

	times, targets, inputs, outputs := storage.Columns(traj)
	m, err := analysis.StepResponse(times, targets, inputs, outputs)
	if err != nil {
		return fmt.Errorf("analysing %s: %w", meta.ID, err)
	}
	fmt.Printf("\nsamples: %d\n", len(traj))
	printMetrics(m.Map())

	if meta.Period > 0 {
		errs := make([]float64, len(traj))
		for i := range traj {
			errs[i] = targets[i] - inputs[i]
		}
		if freq, mag := analysis.DominantFrequency(errs, meta.Period.Seconds()); freq > 0 {
			fmt.Printf("dominant error oscillation: %.3f hz (magnitude %.4f)\n", freq, mag)
		}
	}
	return nil
}

func plotRun(cmd *cobra.Command, args []string) error {
	meta, traj, err := loadRun(args[0])
	if err != nil {
		return err
	}

	if pngDir == "" {
		fmt.Println(viz.Report(*meta, traj, width))
		return nil
	}

	if err := os.MkdirAll(pngDir, 0755); err != nil {
		return err
	}
	resp := filepath.Join(pngDir, "response.png")
	if err := viz.SaveResponsePNG(resp, meta.ID, traj); err != nil {
		return err
	}
	path := filepath.Join(pngDir, "path.png")
	if err := viz.SavePathPNG(path, meta.ID, traj); err != nil {
		return err
	}
	fmt.Printf("wrote %s and %s\n", resp, path)
	return nil
}

func exportRun(cmd *cobra.Command, args []string) error {
	meta, traj, err := loadRun(args[0])
	if err != nil {
		return err
	}
	return storage.ExportJSON(os.Stdout, *meta, traj)
}

func listPresets(cmd *cobra.Command, args []string) error {
	if len(args) == 0 {
		for _, f := range config.ListFamilies() {
			fmt.Printf("%s: %s\n", f, strings.Join(config.ListPresets(f), ", "))
		}
		return nil
	}
	presets := config.ListPresets(args[0])
	if len(presets) == 0 {
		fmt.Printf("no presets for family: %s\n", args[0])
		return nil
	}
	fmt.Printf("presets for %s:\n", args[0])
	for _, p := range presets {
		fmt.Printf("  %s/%s\n", args[0], p)
	}
	return nil
}

func dumpConfig(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if len(args) == 1 {
		return config.Save(args[0], cfg)
	}
	enc := yaml.NewEncoder(os.Stdout)
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		return err
	}
	return enc.Close()
}
