// Package experiment assembles a chassis controller from a configuration
// and runs recorded motions on it.
package experiment

import (
	"context"
	"fmt"
	"io"
	"math"
	"time"

	"github.com/go-logr/logr"
	"go.uber.org/multierr"

	"github.com/san-kum/odomctl/internal/analysis"
	"github.com/san-kum/odomctl/internal/chassis"
	"github.com/san-kum/odomctl/internal/config"
	"github.com/san-kum/odomctl/internal/storage"
)

// Motion kinds.
const (
	KindDrive = "drive"
	KindTurn  = "turn"
)

// Rig is an opened drivetrain with its chassis controller.
type Rig struct {
	cfg     *config.Config
	hw      *Hardware
	chassis *chassis.Controller
	log     logr.Logger
}

// Build validates cfg and opens the drivetrain, pose engine and controller
// it names. ctx bounds the time spent opening hardware.
func Build(ctx context.Context, cfg *config.Config, reg *Registry, log logr.Logger) (*Rig, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	scales, err := cfg.Chassis.Scales()
	if err != nil {
		return nil, err
	}
	integ, err := reg.GetIntegrator(cfg.Integrator)
	if err != nil {
		return nil, err
	}
	newPose, err := reg.GetOdometry(cfg.Odometry)
	if err != nil {
		return nil, err
	}
	open, err := reg.GetSource(cfg.Source)
	if err != nil {
		return nil, err
	}

	hw, err := open(ctx, cfg, scales, integ, log)
	if err != nil {
		return nil, fmt.Errorf("experiment: opening %s source: %w", cfg.Source, err)
	}

	pose, err := newPose(hw.Model, scales, cfg.Period, log.WithName("odometry"))
	if err != nil {
		return nil, multierr.Append(err, hw.Close())
	}

	ctrl, err := chassis.New(hw.Model, pose, chassis.Config{
		Scales:         scales,
		DistanceGains:  cfg.DistancePID,
		AngleGains:     cfg.AnglePID,
		DistanceSettle: cfg.Settle.Distance,
		AngleSettle:    cfg.Settle.Angle,
		Period:         cfg.Period,
	}, log.WithName("chassis"))
	if err != nil {
		if closer, ok := pose.(io.Closer); ok {
			err = multierr.Append(err, closer.Close())
		}
		return nil, multierr.Append(err, hw.Close())
	}

	log.Info("rig ready", "source", cfg.Source, "odometry", cfg.Odometry, "period", cfg.Period)
	return &Rig{cfg: cfg, hw: hw, chassis: ctrl, log: log}, nil
}

func (r *Rig) Chassis() *chassis.Controller { return r.chassis }
func (r *Rig) Hardware() *Hardware          { return r.hw }

// Close stops the controller, then the drivetrain.
func (r *Rig) Close() error {
	return multierr.Combine(r.chassis.Close(), r.hw.Close())
}

// Run is one recorded motion.
type Run struct {
	Meta       storage.RunMetadata
	Trajectory []storage.Point
}

// Execute performs one motion of the given kind while recording it. The
// run is returned even when the motion fails, with the failure noted in its
// metadata.
func (r *Rig) Execute(ctx context.Context, kind string, target float64) (*Run, error) {
	var move func(context.Context, float64) error
	switch kind {
	case KindDrive:
		move = r.chassis.MoveDistance
	case KindTurn:
		move = r.chassis.TurnAngle
	default:
		return nil, fmt.Errorf("experiment: unknown motion %q", kind)
	}

	rec := NewRecorder(r.chassis, r.cfg.Period, nil, nil)
	start := time.Now()
	rec.Start()
	err := move(ctx, target)
	traj := rec.Stop()

	run := &Run{
		Meta: storage.RunMetadata{
			Kind:       kind,
			Timestamp:  start,
			Odometry:   r.cfg.Odometry,
			Integrator: r.cfg.Integrator,
			Source:     r.cfg.Source,
			Target:     target,
			Period:     r.cfg.Period,
			FinalPose:  r.chassis.Pose(),
			Metrics:    Summarize(traj),
		},
		Trajectory: traj,
	}
	if err != nil {
		run.Meta.Error = err.Error()
	}
	r.log.Info("motion finished", "kind", kind, "target", target, "samples", len(traj),
		"elapsed", time.Since(start), "error", run.Meta.Error)
	return run, err
}

// Summarize computes the step metrics of a trajectory. Undefined metrics
// are omitted.
func Summarize(traj []storage.Point) map[string]float64 {
	times, targets, inputs, outputs := storage.Columns(traj)
	m, err := analysis.StepResponse(times, targets, inputs, outputs)
	if err != nil {
		return nil
	}
	out := make(map[string]float64)
	for name, v := range m.Map() {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		out[name] = v
	}
	return out
}
