package control

import (
	"math"

	"github.com/san-kum/odomctl/internal/timeutil"
)

// Gains of a PID law. Bias is added to every output.
type Gains struct {
	Kp   float64 `yaml:"kp"`
	Ki   float64 `yaml:"ki"`
	Kd   float64 `yaml:"kd"`
	Bias float64 `yaml:"bias"`
}

// PID is a positional PID law. Sample time is measured with the injected
// timer on every Step; a zero dt leaves the integral and derivative terms
// untouched for that sample.
//
// Not safe for concurrent use.
type PID struct {
	gains Gains
	timer timeutil.Timer

	target   float64
	err      float64
	prevErr  float64
	integral float64
	output   float64
	first    bool

	outMin, outMax           float64
	integralMin, integralMax float64
	resetOnSignChange        bool
}

func NewPID(gains Gains, timer timeutil.Timer) *PID {
	return &PID{
		gains:       gains,
		timer:       timer,
		first:       true,
		outMin:      math.Inf(-1),
		outMax:      math.Inf(1),
		integralMin: math.Inf(-1),
		integralMax: math.Inf(1),
	}
}

func (p *PID) SetTarget(target float64) { p.target = target }
func (p *PID) Target() float64          { return p.target }
func (p *PID) Error() float64           { return p.err }
func (p *PID) Output() float64          { return p.output }
func (p *PID) Gains() Gains             { return p.gains }
func (p *PID) SetGains(g Gains)         { p.gains = g }

// SetOutputLimits bounds the output. The arguments may be given in either
// order.
func (p *PID) SetOutputLimits(a, b float64) {
	p.outMin, p.outMax = math.Min(a, b), math.Max(a, b)
	p.output = clampRange(p.output, p.outMin, p.outMax)
}

// SetIntegralLimits bounds the accumulated error integral (anti-windup).
func (p *PID) SetIntegralLimits(a, b float64) {
	p.integralMin, p.integralMax = math.Min(a, b), math.Max(a, b)
	p.integral = clampRange(p.integral, p.integralMin, p.integralMax)
}

// SetIntegratorReset makes the integral clear whenever the error changes sign.
func (p *PID) SetIntegratorReset(enabled bool) {
	p.resetOnSignChange = enabled
}

func (p *PID) Step(input float64) float64 {
	dt := p.timer.GetDt().Seconds()
	p.err = p.target - input

	out := p.gains.Kp*p.err + p.gains.Bias

	switch {
	case p.first:
		// baseline only: the timer interval and previous error start here
		p.first = false
	case dt > 0:
		if p.resetOnSignChange && math.Signbit(p.err) != math.Signbit(p.prevErr) {
			p.integral = 0
		}
		p.integral = clampRange(p.integral+p.err*dt, p.integralMin, p.integralMax)
		out += p.gains.Kd * (p.err - p.prevErr) / dt
	}
	p.prevErr = p.err

	if p.gains.Ki != 0 {
		out += p.gains.Ki * p.integral
	}

	p.output = clampRange(out, p.outMin, p.outMax)
	return p.output
}

// Reset clears integral and derivative state.
func (p *PID) Reset() {
	p.integral = 0
	p.prevErr = 0
	p.err = 0
	p.output = 0
	p.first = true
}

func clampRange(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
