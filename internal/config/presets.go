package config

import (
	"slices"

	"github.com/san-kum/odomctl/internal/units"
)

func preset(edit func(*Config)) *Config {
	cfg := DefaultConfig()
	edit(cfg)
	return cfg
}

// Presets holds named configurations grouped by drivetrain family.
var Presets = map[string]map[string]*Config{
	"v5": {
		"green-4in": preset(func(c *Config) {
			c.Chassis.WheelDiameter = 4.1 * units.MetersPerInch
			c.Chassis.WheelTrack = 11.375 * units.MetersPerInch
			c.Chassis.Gearset = "green"
		}),
		"blue-3.25in": preset(func(c *Config) {
			c.Chassis.WheelDiameter = 3.25 * units.MetersPerInch
			c.Chassis.WheelTrack = 12.5 * units.MetersPerInch
			c.Chassis.Gearset = "blue"
			c.Sim.Params.MaxVelocity = 2.6
		}),
		"red-4in": preset(func(c *Config) {
			c.Chassis.WheelDiameter = 4.1 * units.MetersPerInch
			c.Chassis.WheelTrack = 14 * units.MetersPerInch
			c.Chassis.Gearset = "red"
			c.Sim.Params.MaxVelocity = 0.55
		}),
		"serial": preset(func(c *Config) {
			c.Source = "serial"
		}),
	},
	"sim": {
		"default": preset(func(c *Config) {}),
		"sluggish": preset(func(c *Config) {
			c.Sim.Params.TimeConstant = 0.3
			c.DistancePID.Kd = 0.4
		}),
		"legacy": preset(func(c *Config) {
			c.Odometry = "heading"
		}),
		"euler": preset(func(c *Config) {
			c.Integrator = "euler"
			c.Sim.Period = 2 * DefaultSimPeriod
		}),
	},
}

// GetPreset returns a copy of the named preset, or nil when it does not
// exist.
func GetPreset(family, name string) *Config {
	familyPresets, ok := Presets[family]
	if !ok {
		return nil
	}
	cfg, ok := familyPresets[name]
	if !ok {
		return nil
	}
	c := *cfg
	return &c
}

// ListPresets returns the preset names of a family in sorted order.
func ListPresets(family string) []string {
	familyPresets, ok := Presets[family]
	if !ok {
		return nil
	}
	names := make([]string, 0, len(familyPresets))
	for name := range familyPresets {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// ListFamilies returns the preset families in sorted order.
func ListFamilies() []string {
	families := make([]string, 0, len(Presets))
	for f := range Presets {
		families = append(families, f)
	}
	slices.Sort(families)
	return families
}
