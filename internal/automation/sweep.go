package automation

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/go-logr/logr"

	"github.com/san-kum/odomctl/internal/analysis"
	"github.com/san-kum/odomctl/internal/control"
	"github.com/san-kum/odomctl/internal/logging"
	"github.com/san-kum/odomctl/internal/optim"
)

// GainSweep varies one gain of a loop across a range and records the step
// metrics of each simulated response.
type GainSweep struct {
	Problem  optim.Problem
	Base     control.Gains
	Gain     string
	Min, Max float64
	NumSteps int
}

type SweepResult struct {
	Value   float64
	Metrics analysis.StepMetrics
}

func setGain(g control.Gains, name string, v float64) (control.Gains, error) {
	switch name {
	case "kp":
		g.Kp = v
	case "ki":
		g.Ki = v
	case "kd":
		g.Kd = v
	case "bias":
		g.Bias = v
	default:
		return g, fmt.Errorf("automation: unknown gain %q", name)
	}
	return g, nil
}

// RunSweep executes a gain sweep.
func RunSweep(ctx context.Context, sweep GainSweep, log logr.Logger) ([]SweepResult, error) {
	if sweep.NumSteps < 1 {
		return nil, fmt.Errorf("automation: sweep needs at least one step")
	}
	results := make([]SweepResult, 0, sweep.NumSteps)

	for i, v := range optim.Linspace(sweep.Min, sweep.Max, sweep.NumSteps) {
		gains, err := setGain(sweep.Base, sweep.Gain, v)
		if err != nil {
			return nil, err
		}
		resp, err := optim.Simulate(ctx, sweep.Problem, gains)
		if err != nil {
			return results, fmt.Errorf("sweep %s=%.4f: %w", sweep.Gain, v, err)
		}
		m, err := analysis.StepResponse(resp.Times, resp.Targets, resp.Inputs, resp.Outputs)
		if err != nil {
			return results, err
		}
		results = append(results, SweepResult{Value: v, Metrics: m})
		log.V(logging.DEBUG).Info("sweep point", "index", i+1, "of", sweep.NumSteps, sweep.Gain, v, "iae", m.IAE)
	}

	return results, nil
}

// MonteCarloConfig perturbs the simulated plant to check how robust a set
// of gains is.
type MonteCarloConfig struct {
	Problem optim.Problem
	Gains   control.Gains
	// Perturbation is the relative spread applied to the plant's maximum
	// velocity and time constant, e.g. 0.2 for +/-20%.
	Perturbation float64
	NumTrials    int
	Seed         int64
	// Tolerance is the largest final error counted as settled.
	Tolerance float64
}

type MonteCarloResult struct {
	TrialID      int
	MaxVelocity  float64
	TimeConstant float64
	FinalError   float64
	Overshoot    float64
	// Stable is true when the response ended within tolerance of the target.
	Stable bool
}

// RunMonteCarlo executes the trials. A zero seed uses the current time.
func RunMonteCarlo(ctx context.Context, cfg MonteCarloConfig, log logr.Logger) ([]MonteCarloResult, error) {
	results := make([]MonteCarloResult, 0, cfg.NumTrials)

	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed))

	for trial := 0; trial < cfg.NumTrials; trial++ {
		p := cfg.Problem
		p.Params.MaxVelocity *= 1 + (rng.Float64()-0.5)*2*cfg.Perturbation
		p.Params.TimeConstant *= 1 + (rng.Float64()-0.5)*2*cfg.Perturbation

		resp, err := optim.Simulate(ctx, p, cfg.Gains)
		res := MonteCarloResult{
			TrialID:      trial,
			MaxVelocity:  p.Params.MaxVelocity,
			TimeConstant: p.Params.TimeConstant,
		}
		if err != nil {
			if ctx.Err() != nil {
				return results, ctx.Err()
			}
			results = append(results, res)
			continue
		}

		n := len(resp.Inputs)
		res.FinalError = resp.Targets[n-1] - resp.Inputs[n-1]
		if m, err := analysis.StepResponse(resp.Times, resp.Targets, resp.Inputs, resp.Outputs); err == nil {
			res.Overshoot = m.Overshoot
		}
		res.Stable = res.FinalError <= cfg.Tolerance && res.FinalError >= -cfg.Tolerance
		results = append(results, res)

		if (trial+1)%10 == 0 {
			log.Info("monte carlo progress", "done", trial+1, "of", cfg.NumTrials)
		}
	}

	return results, nil
}

// MonteCarloStats counts stable and unstable trials.
func MonteCarloStats(results []MonteCarloResult) (stableCount int, unstableCount int) {
	for _, r := range results {
		if r.Stable {
			stableCount++
		} else {
			unstableCount++
		}
	}
	return
}
