package sim

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/go-logr/logr"

	"github.com/san-kum/odomctl/internal/dynamo"
	"github.com/san-kum/odomctl/internal/models"
	"github.com/san-kum/odomctl/internal/timeutil"
)

// DefaultDrivePeriod is the integration step of a Drive.
const DefaultDrivePeriod = 5 * time.Millisecond

// DriveConfig describes a simulated drivetrain.
type DriveConfig struct {
	Params models.SkidSteerParams
	// TicksPerMeter converts simulated wheel travel into encoder ticks.
	TicksPerMeter float64
	Period        time.Duration
	Integrator    dynamo.Integrator
	Rate          timeutil.Rate
	Log           logr.Logger
}

// Drive is a skid-steer drivetrain integrated in real time on its own
// goroutine. It stands in for the motor and encoder hardware: commands go
// in through SetLeft/SetRight and encoder ticks come out of GetSensorVals.
type Drive struct {
	model      *models.SkidSteer
	integrator dynamo.Integrator
	rate       timeutil.Rate
	period     time.Duration
	tpm        float64
	log        logr.Logger

	mu    sync.Mutex
	x     dynamo.State
	u     dynamo.Control
	t     float64
	steps int
	err   error

	cancel    context.CancelFunc
	done      chan struct{}
	closeOnce sync.Once
}

func NewDrive(cfg DriveConfig) (*Drive, error) {
	if cfg.TicksPerMeter <= 0 {
		return nil, fmt.Errorf("sim: ticks per meter must be positive, got %f", cfg.TicksPerMeter)
	}
	if cfg.Params.WheelTrack <= 0 || cfg.Params.TimeConstant <= 0 {
		return nil, fmt.Errorf("sim: invalid drive parameters %+v", cfg.Params)
	}
	if cfg.Period <= 0 {
		cfg.Period = DefaultDrivePeriod
	}
	if cfg.Rate == nil {
		cfg.Rate = timeutil.NewRate(nil)
	}
	if cfg.Log.GetSink() == nil {
		cfg.Log = logr.Discard()
	}
	if cfg.Integrator == nil {
		return nil, fmt.Errorf("sim: drive needs an integrator")
	}

	model := models.NewSkidSteer(cfg.Params)
	ctx, cancel := context.WithCancel(context.Background())
	d := &Drive{
		model:      model,
		integrator: cfg.Integrator,
		rate:       cfg.Rate,
		period:     cfg.Period,
		tpm:        cfg.TicksPerMeter,
		log:        cfg.Log,
		x:          model.InitialState(),
		u:          dynamo.Control{0, 0},
		cancel:     cancel,
		done:       make(chan struct{}),
	}
	go d.loop(ctx)
	return d, nil
}

func (d *Drive) loop(ctx context.Context) {
	defer close(d.done)
	dt := d.period.Seconds()
	for {
		if err := d.rate.DelayUntil(ctx, d.period); err != nil && ctx.Err() != nil {
			return
		}
		d.advance(dt)
	}
}

func (d *Drive) advance(dt float64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return
	}
	next := d.integrator.Step(d.model, d.x, d.u, d.t, dt)
	if !next.IsValid() {
		d.err = &dynamo.SimError{Step: d.steps, Time: d.t, Wrapped: dynamo.ErrInvalidState}
		d.log.Error(d.err, "drive simulation halted")
		return
	}
	d.x = next
	d.t += dt
	d.steps++
}

// GetSensorVals returns accumulated left and right encoder ticks.
func (d *Drive) GetSensorVals() ([]int32, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return nil, d.err
	}
	return []int32{
		toTicks(d.x[models.IdxDistLeft] * d.tpm),
		toTicks(d.x[models.IdxDistRight] * d.tpm),
	}, nil
}

func toTicks(v float64) int32 {
	return int32(math.Round(v))
}

// SetLeft sets the normalised left command in [-1, 1].
func (d *Drive) SetLeft(v float64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.u[0] = v
	return nil
}

// SetRight sets the normalised right command in [-1, 1].
func (d *Drive) SetRight(v float64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.u[1] = v
	return nil
}

func (d *Drive) Stop() {
	d.mu.Lock()
	d.u[0], d.u[1] = 0, 0
	d.mu.Unlock()
}

// Commands returns the current left and right commands.
func (d *Drive) Commands() (left, right float64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.u[0], d.u[1]
}

// TruePose returns the simulated ground-truth pose.
func (d *Drive) TruePose() (x, y, theta float64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.x[models.IdxX], d.x[models.IdxY], d.x[models.IdxTheta]
}

// Elapsed returns simulated time in seconds.
func (d *Drive) Elapsed() float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.t
}

func (d *Drive) Err() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.err
}

// Close stops the simulation goroutine and waits for it to exit.
func (d *Drive) Close() error {
	d.closeOnce.Do(func() {
		d.cancel()
		<-d.done
	})
	return nil
}
