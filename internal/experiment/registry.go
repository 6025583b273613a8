package experiment

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/go-logr/logr"

	"github.com/san-kum/odomctl/internal/chassis"
	"github.com/san-kum/odomctl/internal/config"
	"github.com/san-kum/odomctl/internal/dynamo"
	"github.com/san-kum/odomctl/internal/integrators"
	"github.com/san-kum/odomctl/internal/odometry"
	"github.com/san-kum/odomctl/internal/serialenc"
	"github.com/san-kum/odomctl/internal/sim"
	"github.com/san-kum/odomctl/internal/timeutil"
)

// OdometryFactory builds a pose engine reading from model.
type OdometryFactory func(model odometry.SensorModel, scales odometry.ChassisScales, period time.Duration, log logr.Logger) (odometry.PoseIntegrator, error)

// SourceFactory opens the drivetrain named by cfg.Source.
type SourceFactory func(ctx context.Context, cfg *config.Config, scales odometry.ChassisScales, integ dynamo.Integrator, log logr.Logger) (*Hardware, error)

// Hardware is an opened drivetrain.
type Hardware struct {
	Model chassis.SkidSteerModel
	// Drive is set when the drivetrain is simulated.
	Drive *sim.Drive
	close func() error
}

func (h *Hardware) Close() error {
	if h.close == nil {
		return nil
	}
	return h.close()
}

type Registry struct {
	integrators map[string]func() dynamo.Integrator
	odometry    map[string]OdometryFactory
	sources     map[string]SourceFactory
}

func NewRegistry() *Registry {
	r := &Registry{
		integrators: make(map[string]func() dynamo.Integrator),
		odometry:    make(map[string]OdometryFactory),
		sources:     make(map[string]SourceFactory),
	}

	r.integrators["euler"] = func() dynamo.Integrator { return integrators.NewEuler() }
	r.integrators["rk4"] = func() dynamo.Integrator { return integrators.NewRK4() }

	r.odometry["arc"] = func(model odometry.SensorModel, scales odometry.ChassisScales, period time.Duration, log logr.Logger) (odometry.PoseIntegrator, error) {
		return odometry.NewOdometry(model, scales, timeutil.NewTimer(nil), nil,
			odometry.WithLogger(log), odometry.WithPeriod(period))
	}
	r.odometry["heading"] = func(model odometry.SensorModel, scales odometry.ChassisScales, period time.Duration, log logr.Logger) (odometry.PoseIntegrator, error) {
		return odometry.NewHeadingOdometry(model, scales, nil,
			odometry.WithLogger(log), odometry.WithPeriod(period))
	}

	r.sources["sim"] = openSim
	r.sources["serial"] = openSerial

	return r
}

func openSim(_ context.Context, cfg *config.Config, scales odometry.ChassisScales, integ dynamo.Integrator, log logr.Logger) (*Hardware, error) {
	params := cfg.Sim.Params
	params.WheelTrack = scales.WheelTrack
	drive, err := sim.NewDrive(sim.DriveConfig{
		Params:        params,
		TicksPerMeter: scales.Straight,
		Period:        cfg.Sim.Period,
		Integrator:    integ,
		Log:           log.WithName("sim"),
	})
	if err != nil {
		return nil, err
	}
	return &Hardware{Model: drive, Drive: drive, close: drive.Close}, nil
}

// openSerial opens the encoder link and waits for its first frame.
func openSerial(ctx context.Context, cfg *config.Config, _ odometry.ChassisScales, _ dynamo.Integrator, log logr.Logger) (*Hardware, error) {
	src, err := serialenc.Open(cfg.Sensor, log.WithName("serial"))
	if err != nil {
		return nil, err
	}
	select {
	case <-src.Ready():
	case <-src.Done():
		src.Close()
		return nil, fmt.Errorf("experiment: serial link closed before the first frame: %w", src.Err())
	case <-ctx.Done():
		src.Close()
		return nil, fmt.Errorf("experiment: waiting for the first frame: %w", ctx.Err())
	}
	return &Hardware{Model: chassis.NewCommandModel(src, src.WriteCommand, log.WithName("drive")), close: src.Close}, nil
}

func (r *Registry) GetIntegrator(name string) (dynamo.Integrator, error) {
	fn, ok := r.integrators[name]
	if !ok {
		return nil, fmt.Errorf("unknown integrator: %s", name)
	}
	return fn(), nil
}

func (r *Registry) GetOdometry(name string) (OdometryFactory, error) {
	fn, ok := r.odometry[name]
	if !ok {
		return nil, fmt.Errorf("unknown odometry: %s", name)
	}
	return fn, nil
}

func (r *Registry) GetSource(name string) (SourceFactory, error) {
	fn, ok := r.sources[name]
	if !ok {
		return nil, fmt.Errorf("unknown source: %s", name)
	}
	return fn, nil
}

func sortedKeys[V any](m map[string]V) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

func (r *Registry) ListIntegrators() []string { return sortedKeys(r.integrators) }
func (r *Registry) ListOdometry() []string    { return sortedKeys(r.odometry) }
func (r *Registry) ListSources() []string     { return sortedKeys(r.sources) }
