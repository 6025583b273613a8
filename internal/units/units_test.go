package units

import (
	"math"
	"testing"
)

func TestWrapAngle(t *testing.T) {
	tests := []struct {
		in, want float64
	}{
		{0, 0},
		{math.Pi / 2, math.Pi / 2},
		{math.Pi, math.Pi},
		{-math.Pi, -math.Pi},
		{3 * math.Pi / 2, -math.Pi / 2},
		{-3 * math.Pi / 2, math.Pi / 2},
		{5 * math.Pi, math.Pi},
	}

	for _, tt := range tests {
		got := WrapAngle(tt.in)
		if math.Abs(math.Abs(got)-math.Abs(tt.want)) > 1e-9 && math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("WrapAngle(%f): expected %f, got %f", tt.in, tt.want, got)
		}
		if got < -math.Pi || got > math.Pi {
			t.Errorf("WrapAngle(%f) = %f outside [-pi, pi]", tt.in, got)
		}
	}
}

func TestConversions(t *testing.T) {
	if got := Inches(1); got != MetersPerInch {
		t.Errorf("expected %f, got %f", MetersPerInch, got)
	}
	if got := ToDegrees(Degrees(90)); math.Abs(got-90) > 1e-12 {
		t.Errorf("degree round trip: expected 90, got %f", got)
	}
}

func TestStraightScale(t *testing.T) {
	d := Inches(4)
	scale := StraightScale(d, GreenTPR)
	travel := GreenTPR / scale
	if math.Abs(travel-math.Pi*d) > 1e-12 {
		t.Errorf("one revolution should travel %f m, got %f", math.Pi*d, travel)
	}
}

func TestTicksPerRev(t *testing.T) {
	if tpr, ok := TicksPerRev("green"); !ok || tpr != 900 {
		t.Errorf("expected green=900, got %f (%v)", tpr, ok)
	}
	if _, ok := TicksPerRev("purple"); ok {
		t.Error("expected unknown gearset to be rejected")
	}
}
