package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/san-kum/odomctl/internal/control"
	"github.com/san-kum/odomctl/internal/models"
	"github.com/san-kum/odomctl/internal/odometry"
	"github.com/san-kum/odomctl/internal/serialenc"
	"github.com/san-kum/odomctl/internal/units"
)

const (
	DefaultWheelDiameter = 4.1 * units.MetersPerInch
	DefaultWheelTrack    = 11.375 * units.MetersPerInch
	DefaultGearset       = "green"
	DefaultPeriod        = 10 * time.Millisecond
	DefaultSimPeriod     = 5 * time.Millisecond
)

var ErrInvalidConfig = errors.New("config: invalid configuration")

type Config struct {
	// Odometry selects the pose engine: "arc" or "heading".
	Odometry string `yaml:"odometry"`
	// Integrator selects the simulation integrator: "rk4" or "euler".
	Integrator string `yaml:"integrator"`
	// Source selects the encoder feed: "sim" or "serial".
	Source string `yaml:"source"`
	// Period is the sampling period of controllers and odometry.
	Period time.Duration `yaml:"period"`

	Chassis     ChassisConfig         `yaml:"chassis"`
	DistancePID control.Gains         `yaml:"distance_pid"`
	AnglePID    control.Gains         `yaml:"angle_pid"`
	Settle      SettleConfig          `yaml:"settle"`
	Sim         SimConfig             `yaml:"sim"`
	Sensor      serialenc.PortOptions `yaml:"sensor"`
	Log         LogConfig             `yaml:"log"`
	MetricsAddr string                `yaml:"metrics_addr"`
}

// ChassisConfig holds the drivetrain geometry. Lengths are in metres.
type ChassisConfig struct {
	WheelDiameter       float64 `yaml:"wheel_diameter"`
	WheelTrack          float64 `yaml:"wheel_track"`
	MiddleWheelDistance float64 `yaml:"middle_wheel_distance"`
	// Gearset names the motor cartridge ("red", "green", "blue"). It is
	// ignored when TicksPerRev is set.
	Gearset     string  `yaml:"gearset"`
	TicksPerRev float64 `yaml:"ticks_per_rev"`
}

type SettleConfig struct {
	Distance control.SettleConfig `yaml:"distance"`
	Angle    control.SettleConfig `yaml:"angle"`
}

// SimConfig describes the simulated drivetrain. Its wheel track is taken
// from the chassis geometry.
type SimConfig struct {
	Params models.SkidSteerParams `yaml:"params"`
	Period time.Duration          `yaml:"period"`
}

type LogConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

func DefaultConfig() *Config {
	return &Config{
		Odometry:   "arc",
		Integrator: "rk4",
		Source:     "sim",
		Period:     DefaultPeriod,
		Chassis: ChassisConfig{
			WheelDiameter: DefaultWheelDiameter,
			WheelTrack:    DefaultWheelTrack,
			Gearset:       DefaultGearset,
		},
		DistancePID: control.Gains{Kp: 4, Kd: 0.1},
		AnglePID:    control.Gains{Kp: 1.5, Kd: 0.05},
		Settle: SettleConfig{
			Distance: control.SettleConfig{Error: 0.01, Derivative: 0.001, Time: 250 * time.Millisecond},
			Angle:    control.SettleConfig{Error: units.Degrees(1), Derivative: units.Degrees(0.1), Time: 250 * time.Millisecond},
		},
		Sim: SimConfig{
			Params: models.DefaultSkidSteerParams(),
			Period: DefaultSimPeriod,
		},
		Sensor: serialenc.PortOptions{Device: "/dev/ttyACM0", BaudRate: 115200},
		Log:    LogConfig{Level: "info"},
	}
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	return cfg, nil
}

func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// ResolveTPR resolves the encoder resolution from TicksPerRev or Gearset.
func (c ChassisConfig) ResolveTPR() (float64, error) {
	if c.TicksPerRev > 0 {
		return c.TicksPerRev, nil
	}
	tpr, ok := units.TicksPerRev(c.Gearset)
	if !ok {
		return 0, fmt.Errorf("%w: unknown gearset %q", ErrInvalidConfig, c.Gearset)
	}
	return tpr, nil
}

// Scales converts the geometry into odometry scales.
func (c ChassisConfig) Scales() (odometry.ChassisScales, error) {
	tpr, err := c.ResolveTPR()
	if err != nil {
		return odometry.ChassisScales{}, err
	}
	scales := odometry.ScalesFromWheel(c.WheelDiameter, c.WheelTrack, tpr)
	scales.MiddleWheelDistance = c.MiddleWheelDistance
	if err := scales.Validate(); err != nil {
		return odometry.ChassisScales{}, err
	}
	return scales, nil
}

func oneOf(v string, allowed ...string) bool {
	for _, a := range allowed {
		if v == a {
			return true
		}
	}
	return false
}

func validSettle(s control.SettleConfig) bool {
	return s.Error >= 0 && s.Derivative >= 0 && s.Time >= 0 &&
		!math.IsNaN(s.Error) && !math.IsNaN(s.Derivative)
}

// Validate reports every problem found, not only the first.
func (c *Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalidConfig}, args...)...))
	}

	if !oneOf(c.Odometry, "arc", "heading") {
		add("odometry must be arc or heading, got %q", c.Odometry)
	}
	if !oneOf(c.Integrator, "rk4", "euler") {
		add("integrator must be rk4 or euler, got %q", c.Integrator)
	}
	if !oneOf(c.Source, "sim", "serial") {
		add("source must be sim or serial, got %q", c.Source)
	}
	if c.Period <= 0 {
		add("period must be positive, got %v", c.Period)
	}
	if _, err := c.Chassis.Scales(); err != nil {
		errs = append(errs, err)
	}
	if !validSettle(c.Settle.Distance) || !validSettle(c.Settle.Angle) {
		add("settle tolerances must not be negative")
	}
	if c.Source == "sim" {
		p := c.Sim.Params
		if p.MaxVelocity <= 0 || p.TimeConstant <= 0 {
			add("sim params must be positive, got %+v", p)
		}
		if c.Sim.Period <= 0 {
			add("sim period must be positive, got %v", c.Sim.Period)
		}
	}
	if c.Source == "serial" {
		if c.Sensor.Device == "" {
			add("sensor device is required for the serial source")
		}
		if _, err := c.Sensor.Normalize(); err != nil {
			add("sensor: %v", err)
		}
	}
	if !oneOf(c.Log.Level, "trace", "debug", "info", "warn", "error") {
		add("log level must be one of trace, debug, info, warn, error; got %q", c.Log.Level)
	}
	return errors.Join(errs...)
}
