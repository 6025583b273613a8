// Package chassis drives a skid-steer base to relative distance and angle
// targets with two asynchronous PID loops while odometry tracks its pose.
package chassis

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/go-logr/logr"
	"go.uber.org/multierr"

	"github.com/san-kum/odomctl/internal/control"
	"github.com/san-kum/odomctl/internal/odometry"
	"github.com/san-kum/odomctl/internal/timeutil"
)

var ErrBusy = errors.New("chassis: another motion is in progress")

// Config of a Controller.
type Config struct {
	Scales         odometry.ChassisScales
	DistanceGains  control.Gains
	AngleGains     control.Gains
	DistanceSettle control.SettleConfig
	AngleSettle    control.SettleConfig
	Period         time.Duration
	// Clock drives the loop timers. Nil means the wall clock.
	Clock timeutil.Clock
}

// Sample is a snapshot of the controller for telemetry.
type Sample struct {
	Pose odometry.OdomState
	// Mode is "distance", "angle" or "" when idle.
	Mode   string
	Target float64
	Input  float64
	Output float64
}

// runner is implemented by pose engines that need an external driver.
type runner interface {
	Run(ctx context.Context, period time.Duration) error
}

// Controller moves the chassis by relative amounts. Distances are in metres,
// angles in radians with positive clockwise.
//
// The Controller owns the pose engine it is given and closes it on Close.
type Controller struct {
	model  SkidSteerModel
	pose   odometry.PoseIntegrator
	scales odometry.ChassisScales
	period time.Duration
	log    logr.Logger

	mix      *mixer
	distance *control.AsyncWrapper
	angle    *control.AsyncWrapper

	baseMu   sync.Mutex
	baseL    int32
	baseR    int32
	mode     string
	moveLock sync.Mutex

	cancel    context.CancelFunc
	odomDone  chan struct{}
	closeOnce sync.Once
	closeErr  error
}

func New(model SkidSteerModel, pose odometry.PoseIntegrator, cfg Config, log logr.Logger) (*Controller, error) {
	if err := cfg.Scales.Validate(); err != nil {
		return nil, err
	}
	if cfg.Period <= 0 {
		cfg.Period = control.DefaultPeriod
	}

	c := &Controller{
		model:    model,
		pose:     pose,
		scales:   cfg.Scales,
		period:   cfg.Period,
		log:      log,
		mix:      &mixer{model: model},
		odomDone: make(chan struct{}),
	}

	c.distance = c.newLoop("distance", cfg.Clock, cfg.DistanceGains, cfg.DistanceSettle, c.distanceTravelled, c.mix.setDistance)
	c.angle = c.newLoop("angle", cfg.Clock, cfg.AngleGains, cfg.AngleSettle, c.angleTurned, c.mix.setAngle)

	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	go func() {
		defer close(c.odomDone)
		if r, ok := pose.(runner); ok {
			if err := r.Run(ctx, cfg.Period); err != nil {
				log.Error(err, "odometry stopped")
			}
		}
	}()
	return c, nil
}

func (c *Controller) newLoop(name string, clock timeutil.Clock, gains control.Gains, settle control.SettleConfig, in func() (float64, error), out func(float64) error) *control.AsyncWrapper {
	ts := control.NewTimeSource(clock, settle)

	law := control.NewPID(gains, ts.NewTimer())
	law.SetOutputLimits(-1, 1)
	w := control.NewAsyncWrapper(control.InputFunc(in), control.OutputFunc(out), law, ts,
		control.WithPeriod(c.period), control.WithName(name), control.WithLogger(c.log))
	w.SetDisable(true)
	return w
}

func (c *Controller) ticks() (int32, int32, error) {
	vals, err := c.model.GetSensorVals()
	if err != nil {
		return 0, 0, err
	}
	if len(vals) < 2 {
		return 0, 0, fmt.Errorf("%w: got %d", odometry.ErrTickCount, len(vals))
	}
	return vals[0], vals[1], nil
}

func (c *Controller) deltas() (float64, float64, error) {
	l, r, err := c.ticks()
	if err != nil {
		return 0, 0, err
	}
	c.baseMu.Lock()
	defer c.baseMu.Unlock()
	return float64(l-c.baseL) / c.scales.Straight, float64(r-c.baseR) / c.scales.Straight, nil
}

func (c *Controller) distanceTravelled() (float64, error) {
	dl, dr, err := c.deltas()
	return (dl + dr) / 2, err
}

func (c *Controller) angleTurned() (float64, error) {
	dl, dr, err := c.deltas()
	return (dl - dr) / c.scales.WheelTrack, err
}

func (c *Controller) rebase(mode string) error {
	l, r, err := c.ticks()
	if err != nil {
		return fmt.Errorf("chassis: reading encoders: %w", err)
	}
	c.baseMu.Lock()
	c.baseL, c.baseR, c.mode = l, r, mode
	c.baseMu.Unlock()
	return nil
}

// MoveDistance drives straight by meters (negative is backwards) and blocks
// until both loops have settled or ctx ends. Heading is held by the angle
// loop during the move.
func (c *Controller) MoveDistance(ctx context.Context, meters float64) error {
	if !c.moveLock.TryLock() {
		return ErrBusy
	}
	defer c.moveLock.Unlock()

	if err := c.rebase("distance"); err != nil {
		return err
	}
	c.log.Info("moving", "distance", meters)

	c.distance.SetTarget(meters)
	c.angle.SetTarget(0)
	c.distance.SetDisable(false)
	c.angle.SetDisable(false)
	defer c.idle()

	return c.waitSettled(ctx, c.distance, c.angle)
}

// TurnAngle turns in place by radians and blocks until the angle loop has
// settled or ctx ends.
func (c *Controller) TurnAngle(ctx context.Context, radians float64) error {
	if !c.moveLock.TryLock() {
		return ErrBusy
	}
	defer c.moveLock.Unlock()

	if err := c.rebase("angle"); err != nil {
		return err
	}
	c.log.Info("turning", "angle", radians)

	c.distance.SetDisable(true)
	c.angle.SetTarget(radians)
	c.angle.SetDisable(false)
	defer c.idle()

	return c.waitSettled(ctx, c.angle)
}

// waitSettled returns once every loop reports settled at the same time.
func (c *Controller) waitSettled(ctx context.Context, loops ...*control.AsyncWrapper) error {
	for {
		settled := true
		for _, w := range loops {
			if err := w.WaitUntilSettled(ctx); err != nil {
				return fmt.Errorf("chassis: waiting for %s: %w", c.Mode(), err)
			}
		}
		for _, w := range loops {
			settled = settled && w.IsSettled()
		}
		if settled {
			return nil
		}
	}
}

func (c *Controller) idle() {
	c.distance.SetDisable(true)
	c.angle.SetDisable(true)
	c.baseMu.Lock()
	c.mode = ""
	c.baseMu.Unlock()
}

// Stop disables both loops and stops the motors.
func (c *Controller) Stop() {
	c.idle()
	c.model.Stop()
}

func (c *Controller) Mode() string {
	c.baseMu.Lock()
	defer c.baseMu.Unlock()
	return c.mode
}

func (c *Controller) Pose() odometry.OdomState {
	return c.pose.State(odometry.FrameTransformation)
}

func (c *Controller) SetPose(s odometry.OdomState) {
	c.pose.SetState(s, odometry.FrameTransformation)
}

// Snapshot returns the pose and the state of the active loop. Input is
// measured at call time.
func (c *Controller) Snapshot() Sample {
	s := Sample{Pose: c.Pose(), Mode: c.Mode()}
	var (
		w       *control.AsyncWrapper
		measure func() (float64, error)
	)
	switch s.Mode {
	case "distance":
		w, measure = c.distance, c.distanceTravelled
	case "angle":
		w, measure = c.angle, c.angleTurned
	default:
		return s
	}
	s.Target = w.Target()
	s.Output = w.Output()
	in, err := measure()
	if err != nil {
		in = s.Target - w.Error()
	}
	s.Input = in
	return s
}

// Close stops the loops, the motors and the pose engine.
func (c *Controller) Close() error {
	c.closeOnce.Do(func() {
		c.Stop()
		err := multierr.Combine(c.distance.Close(), c.angle.Close())
		c.cancel()
		<-c.odomDone
		if closer, ok := c.pose.(io.Closer); ok {
			err = multierr.Append(err, closer.Close())
		}
		c.closeErr = err
	})
	return c.closeErr
}
