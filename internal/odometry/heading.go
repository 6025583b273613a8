package odometry

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/go-logr/logr"

	"github.com/san-kum/odomctl/internal/metrics"
	"github.com/san-kum/odomctl/internal/timeutil"
	"github.com/san-kum/odomctl/internal/units"
)

// HeadingOdometry is the heading-increment estimator. It samples the
// encoders on its own goroutine, started by the constructor and stopped by
// Close. Only two-wheel snapshots are used; a middle value is ignored.
type HeadingOdometry struct {
	model  SensorModel
	rate   timeutil.Rate
	period time.Duration
	log    logr.Logger

	mu     sync.Mutex
	scales ChassisScales
	state  OdomState
	ticks  tickBaseline

	cancel    context.CancelFunc
	done      chan struct{}
	closeOnce sync.Once
}

func NewHeadingOdometry(model SensorModel, scales ChassisScales, rate timeutil.Rate, opts ...Option) (*HeadingOdometry, error) {
	if err := validateHeading(scales); err != nil {
		return nil, err
	}
	if rate == nil {
		rate = timeutil.NewRate(nil)
	}
	o := buildOptions(opts)

	ctx, cancel := context.WithCancel(context.Background())
	h := &HeadingOdometry{
		model:  model,
		rate:   rate,
		period: o.period,
		log:    o.log,
		scales: scales,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go h.loop(ctx)
	return h, nil
}

func validateHeading(scales ChassisScales) error {
	if err := scales.Validate(); err != nil {
		return err
	}
	if scales.Turn == 0 {
		return fmt.Errorf("%w: turn=0", ErrInvalidScales)
	}
	return nil
}

func (h *HeadingOdometry) loop(ctx context.Context) {
	defer close(h.done)
	for {
		if err := h.step(); err != nil {
			h.log.Error(err, "odometry step failed")
		}
		if err := h.rate.DelayUntil(ctx, h.period); err != nil && ctx.Err() != nil {
			return
		}
	}
}

func (h *HeadingOdometry) step() error {
	ticks, err := h.model.GetSensorVals()
	if err != nil {
		return fmt.Errorf("odometry: reading encoders: %w", err)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	diff, err := h.ticks.diff(ticks)
	if err != nil {
		return err
	}
	dL, dR := diff[0], diff[1]

	h.state.Theta = units.WrapAngle(h.state.Theta + (dR-dL)/h.scales.Turn)
	dist := (dL + dR) / 2 / h.scales.Straight
	h.state.X += dist * math.Cos(h.state.Theta)
	h.state.Y += dist * math.Sin(h.state.Theta)

	metrics.OdometrySteps.WithLabelValues("heading").Inc()
	metrics.SetPose(h.state.X, h.state.Y, h.state.Theta)
	return nil
}

func (h *HeadingOdometry) State(mode StateMode) OdomState {
	h.mu.Lock()
	defer h.mu.Unlock()
	return convert(h.state, mode)
}

// SetState overwrites the pose. The tick baseline is kept.
func (h *HeadingOdometry) SetState(state OdomState, mode StateMode) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.state = convert(state, mode)
}

func (h *HeadingOdometry) Scales() ChassisScales {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.scales
}

func (h *HeadingOdometry) SetScales(scales ChassisScales) error {
	if err := validateHeading(scales); err != nil {
		return err
	}
	h.mu.Lock()
	h.scales = scales
	h.mu.Unlock()
	return nil
}

// Close stops the sampling goroutine and waits for it to exit.
func (h *HeadingOdometry) Close() error {
	h.closeOnce.Do(func() {
		h.cancel()
		<-h.done
	})
	return nil
}
