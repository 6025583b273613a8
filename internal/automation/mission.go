// Package automation runs scripted missions on a chassis and sweeps loop
// gains or plant parameters against the simulator.
package automation

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/go-logr/logr"
	"gopkg.in/yaml.v3"

	"github.com/san-kum/odomctl/internal/experiment"
	"github.com/san-kum/odomctl/internal/units"
)

var ErrInvalidMission = errors.New("automation: invalid mission")

// Step actions.
const (
	ActionDrive = "drive"
	ActionTurn  = "turn"
	ActionWait  = "wait"
)

// DefaultStepTimeout bounds a drive or turn step that sets no timeout.
const DefaultStepTimeout = 10 * time.Second

// Mission is a scripted sequence of motions.
type Mission struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Steps       []Step `yaml:"steps"`
}

// Step is a single mission step. Distance is in metres, Angle in degrees
// with positive clockwise.
type Step struct {
	Action   string        `yaml:"action"`
	Distance float64       `yaml:"distance,omitempty"`
	Angle    float64       `yaml:"angle,omitempty"`
	Duration time.Duration `yaml:"duration,omitempty"`
	Timeout  time.Duration `yaml:"timeout,omitempty"`
	// ContinueOnError carries on with the next step when this one fails.
	ContinueOnError bool `yaml:"continue_on_error,omitempty"`
}

func (s Step) String() string {
	switch s.Action {
	case ActionDrive:
		return fmt.Sprintf("drive %.3fm", s.Distance)
	case ActionTurn:
		return fmt.Sprintf("turn %.1fdeg", s.Angle)
	case ActionWait:
		return fmt.Sprintf("wait %v", s.Duration)
	}
	return s.Action
}

// LoadMission loads and validates a mission from a YAML file.
func LoadMission(path string) (*Mission, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var mission Mission
	if err := yaml.Unmarshal(data, &mission); err != nil {
		return nil, fmt.Errorf("automation: parsing %s: %w", path, err)
	}
	if err := mission.Validate(); err != nil {
		return nil, err
	}
	return &mission, nil
}

func (m *Mission) Validate() error {
	if len(m.Steps) == 0 {
		return fmt.Errorf("%w: no steps", ErrInvalidMission)
	}
	for i, s := range m.Steps {
		switch s.Action {
		case ActionDrive, ActionTurn:
		case ActionWait:
			if s.Duration <= 0 {
				return fmt.Errorf("%w: step %d: wait needs a positive duration", ErrInvalidMission, i+1)
			}
		default:
			return fmt.Errorf("%w: step %d: unknown action %q", ErrInvalidMission, i+1, s.Action)
		}
		if s.Timeout < 0 {
			return fmt.Errorf("%w: step %d: negative timeout", ErrInvalidMission, i+1)
		}
	}
	return nil
}

// Executor performs recorded motions; experiment.Rig implements it.
type Executor interface {
	Execute(ctx context.Context, kind string, target float64) (*experiment.Run, error)
}

// StepResult is the outcome of one step. Run is nil for wait steps.
type StepResult struct {
	Index int
	Step  Step
	Run   *experiment.Run
	Err   error
}

// RunMission executes the steps in order. It stops at the first failing
// step unless that step allows continuing, and returns the results so far
// together with the error.
func RunMission(ctx context.Context, mission *Mission, exec Executor, log logr.Logger) ([]StepResult, error) {
	results := make([]StepResult, 0, len(mission.Steps))

	for i, step := range mission.Steps {
		log.Info("running step", "step", i+1, "of", len(mission.Steps), "action", step.String())

		res := StepResult{Index: i, Step: step}
		res.Run, res.Err = runStep(ctx, step, exec)
		results = append(results, res)

		if res.Err == nil {
			continue
		}
		if ctx.Err() != nil || !step.ContinueOnError {
			return results, fmt.Errorf("step %d (%s): %w", i+1, step, res.Err)
		}
		log.Error(res.Err, "step failed, continuing", "step", i+1)
	}

	return results, nil
}

func runStep(ctx context.Context, step Step, exec Executor) (*experiment.Run, error) {
	if step.Action == ActionWait {
		t := time.NewTimer(step.Duration)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-t.C:
			return nil, nil
		}
	}

	timeout := step.Timeout
	if timeout == 0 {
		timeout = DefaultStepTimeout
	}
	stepCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if step.Action == ActionTurn {
		return exec.Execute(stepCtx, experiment.KindTurn, units.Degrees(step.Angle))
	}
	return exec.Execute(stepCtx, experiment.KindDrive, step.Distance)
}
