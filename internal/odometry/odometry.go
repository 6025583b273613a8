package odometry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-logr/logr"

	"github.com/san-kum/odomctl/internal/logging"
	"github.com/san-kum/odomctl/internal/metrics"
	"github.com/san-kum/odomctl/internal/timeutil"
)

// DefaultPeriod is the sampling period used by Run callers and by
// HeadingOdometry.
const DefaultPeriod = 10 * time.Millisecond

// SensorModel reports accumulated encoder ticks: left, right and optionally
// middle.
type SensorModel interface {
	GetSensorVals() ([]int32, error)
}

// SensorFunc adapts a function to SensorModel.
type SensorFunc func() ([]int32, error)

func (f SensorFunc) GetSensorVals() ([]int32, error) { return f() }

// PoseIntegrator is implemented by every odometry engine.
type PoseIntegrator interface {
	State(mode StateMode) OdomState
	SetState(state OdomState, mode StateMode)
	Scales() ChassisScales
	SetScales(scales ChassisScales) error
}

type Option func(*options)

type options struct {
	log    logr.Logger
	period time.Duration
}

func WithLogger(log logr.Logger) Option {
	return func(o *options) { o.log = log }
}

// WithPeriod sets the sampling period of HeadingOdometry.
func WithPeriod(period time.Duration) Option {
	return func(o *options) {
		if period > 0 {
			o.period = period
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{log: logr.Discard(), period: DefaultPeriod}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// tickBaseline remembers the previous encoder snapshot.
type tickBaseline struct {
	last []int32
}

// diff returns the tick deltas since the previous snapshot and stores ticks
// as the new baseline. Counters are allowed to wrap.
func (b *tickBaseline) diff(ticks []int32) ([]float64, error) {
	if len(ticks) < 2 || len(ticks) > 3 {
		return nil, fmt.Errorf("%w: got %d", ErrTickCount, len(ticks))
	}
	if b.last == nil {
		b.last = make([]int32, len(ticks))
	}
	if len(b.last) != len(ticks) {
		return nil, fmt.Errorf("%w: got %d, previously %d", ErrTickCount, len(ticks), len(b.last))
	}

	d := make([]float64, len(ticks))
	for i, t := range ticks {
		d[i] = float64(t - b.last[i])
	}
	copy(b.last, ticks)
	return d, nil
}

// Odometry is the arc-integration engine. Step is driven externally, either
// by the caller or by Run. All methods are safe for concurrent use.
type Odometry struct {
	model SensorModel
	timer timeutil.Timer
	rate  timeutil.Rate
	log   logr.Logger

	mu     sync.Mutex
	scales ChassisScales
	state  OdomState
	ticks  tickBaseline
}

// NewOdometry returns an engine at the origin. rate is only used by Run and
// may be nil, in which case Run paces itself on the wall clock.
func NewOdometry(model SensorModel, scales ChassisScales, timer timeutil.Timer, rate timeutil.Rate, opts ...Option) (*Odometry, error) {
	if err := scales.Validate(); err != nil {
		return nil, err
	}
	if rate == nil {
		rate = timeutil.NewRate(nil)
	}
	o := buildOptions(opts)
	return &Odometry{
		model:  model,
		timer:  timer,
		rate:   rate,
		log:    o.log,
		scales: scales,
	}, nil
}

// Step reads the encoders and folds the motion since the previous Step into
// the pose. When no time has elapsed since the previous Step it does
// nothing.
func (o *Odometry) Step() error {
	if o.timer.GetDt() == 0 {
		metrics.OdometrySkippedSteps.Inc()
		return nil
	}

	ticks, err := o.model.GetSensorVals()
	if err != nil {
		return fmt.Errorf("odometry: reading encoders: %w", err)
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	diff, err := o.ticks.diff(ticks)
	if err != nil {
		return err
	}

	delta := ArcStep(o.scales, o.state.Theta, diff)
	o.state.X += delta.X
	o.state.Y += delta.Y
	o.state.Theta += delta.Theta

	metrics.OdometrySteps.WithLabelValues("arc").Inc()
	metrics.SetPose(o.state.X, o.state.Y, o.state.Theta)
	return nil
}

// Run calls Step every period until ctx is done. Step errors are logged and
// do not stop the loop.
func (o *Odometry) Run(ctx context.Context, period time.Duration) error {
	o.log.V(logging.DEBUG).Info("odometry started", "period", period)
	for {
		if err := o.Step(); err != nil {
			o.log.Error(err, "odometry step failed")
		}
		if err := o.rate.DelayUntil(ctx, period); err != nil && ctx.Err() != nil {
			o.log.V(logging.DEBUG).Info("odometry stopped", "state", o.State(FrameTransformation).String())
			return nil
		}
	}
}

func (o *Odometry) State(mode StateMode) OdomState {
	o.mu.Lock()
	defer o.mu.Unlock()
	return convert(o.state, mode)
}

// SetState overwrites the pose. The tick baseline is kept.
func (o *Odometry) SetState(state OdomState, mode StateMode) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.state = convert(state, mode)
	o.log.V(logging.DEBUG).Info("state set", "state", o.state.String())
}

func (o *Odometry) Scales() ChassisScales {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.scales
}

// SetScales replaces the chassis geometry from the next Step on.
func (o *Odometry) SetScales(scales ChassisScales) error {
	if err := scales.Validate(); err != nil {
		return err
	}
	o.mu.Lock()
	o.scales = scales
	o.mu.Unlock()
	return nil
}
