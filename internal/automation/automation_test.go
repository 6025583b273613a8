package automation

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-logr/logr"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/san-kum/odomctl/internal/control"
	"github.com/san-kum/odomctl/internal/dynamo"
	"github.com/san-kum/odomctl/internal/experiment"
	"github.com/san-kum/odomctl/internal/integrators"
	"github.com/san-kum/odomctl/internal/models"
	"github.com/san-kum/odomctl/internal/optim"
	"github.com/san-kum/odomctl/internal/storage"
)

const missionYAML = `
name: square
description: drive a half square
steps:
  - action: drive
    distance: 0.5
    timeout: 3s
  - action: turn
    angle: 90
  - action: wait
    duration: 10ms
  - action: drive
    distance: -0.25
`

func writeMission(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "mission.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestLoadMission(t *testing.T) {
	m, err := LoadMission(writeMission(t, missionYAML))
	require.NoError(t, err)

	want := &Mission{
		Name:        "square",
		Description: "drive a half square",
		Steps: []Step{
			{Action: ActionDrive, Distance: 0.5, Timeout: 3 * time.Second},
			{Action: ActionTurn, Angle: 90},
			{Action: ActionWait, Duration: 10 * time.Millisecond},
			{Action: ActionDrive, Distance: -0.25},
		},
	}
	if diff := cmp.Diff(want, m); diff != "" {
		t.Errorf("mission mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadMissionInvalid(t *testing.T) {
	tests := map[string]string{
		"no steps":       "name: empty\n",
		"unknown action": "steps:\n  - action: strafe\n",
		"wait duration":  "steps:\n  - action: wait\n",
		"timeout":        "steps:\n  - action: drive\n    timeout: -1s\n",
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := LoadMission(writeMission(t, body))
			assert.ErrorIs(t, err, ErrInvalidMission)
		})
	}
}

type call struct {
	Kind     string
	Target   float64
	Deadline bool
}

type fakeExecutor struct {
	calls []call
	fail  map[int]error
}

func (f *fakeExecutor) Execute(ctx context.Context, kind string, target float64) (*experiment.Run, error) {
	_, hasDeadline := ctx.Deadline()
	f.calls = append(f.calls, call{Kind: kind, Target: target, Deadline: hasDeadline})
	run := &experiment.Run{Meta: storage.RunMetadata{Kind: kind, Target: target}}
	if err := f.fail[len(f.calls)]; err != nil {
		return run, err
	}
	return run, nil
}

func TestRunMission(t *testing.T) {
	m, err := LoadMission(writeMission(t, missionYAML))
	require.NoError(t, err)
	exec := &fakeExecutor{}

	results, err := RunMission(context.Background(), m, exec, logr.Discard())
	require.NoError(t, err)
	require.Len(t, results, 4)
	assert.Nil(t, results[2].Run)

	require.Len(t, exec.calls, 3)
	assert.Equal(t, call{experiment.KindDrive, 0.5, true}, exec.calls[0])
	assert.Equal(t, experiment.KindTurn, exec.calls[1].Kind)
	assert.InDelta(t, math.Pi/2, exec.calls[1].Target, 1e-12)
	assert.Equal(t, -0.25, exec.calls[2].Target)
}

func TestRunMissionStopsOnFailure(t *testing.T) {
	boom := errors.New("stalled")
	m := &Mission{Steps: []Step{
		{Action: ActionDrive, Distance: 1},
		{Action: ActionTurn, Angle: 45},
	}}
	exec := &fakeExecutor{fail: map[int]error{1: boom}}

	results, err := RunMission(context.Background(), m, exec, logr.Discard())
	assert.ErrorIs(t, err, boom)
	assert.Len(t, results, 1)
	assert.Len(t, exec.calls, 1)
}

func TestRunMissionContinueOnError(t *testing.T) {
	boom := errors.New("stalled")
	m := &Mission{Steps: []Step{
		{Action: ActionDrive, Distance: 1, ContinueOnError: true},
		{Action: ActionTurn, Angle: 45},
	}}
	exec := &fakeExecutor{fail: map[int]error{1: boom}}

	results, err := RunMission(context.Background(), m, exec, logr.Discard())
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.ErrorIs(t, results[0].Err, boom)
	assert.NoError(t, results[1].Err)
}

func TestRunMissionWaitCancelled(t *testing.T) {
	m := &Mission{Steps: []Step{{Action: ActionWait, Duration: time.Hour, ContinueOnError: true}}}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := RunMission(ctx, m, &fakeExecutor{}, logr.Discard())
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func sweepProblem() optim.Problem {
	return optim.Problem{
		Loop:          optim.LoopDistance,
		Target:        0.3,
		Params:        models.DefaultSkidSteerParams(),
		NewIntegrator: func() dynamo.Integrator { return integrators.NewRK4() },
		Period:        10 * time.Millisecond,
		Duration:      3 * time.Second,
	}
}

func TestRunSweep(t *testing.T) {
	results, err := RunSweep(context.Background(), GainSweep{
		Problem:  sweepProblem(),
		Gain:     "kp",
		Min:      1,
		Max:      4,
		NumSteps: 4,
	}, logr.Discard())
	require.NoError(t, err)
	require.Len(t, results, 4)

	assert.Equal(t, 1.0, results[0].Value)
	assert.Equal(t, 4.0, results[3].Value)
	for i := 1; i < len(results); i++ {
		assert.Less(t, results[i].Metrics.IAE, results[i-1].Metrics.IAE, "higher kp should track faster")
	}

	_, err = RunSweep(context.Background(), GainSweep{Problem: sweepProblem(), Gain: "kz", NumSteps: 1}, logr.Discard())
	assert.Error(t, err)
}

func TestRunMonteCarlo(t *testing.T) {
	cfg := MonteCarloConfig{
		Problem:      sweepProblem(),
		Gains:        control.Gains{Kp: 4, Kd: 0.1},
		Perturbation: 0.2,
		NumTrials:    5,
		Seed:         42,
		Tolerance:    0.01,
	}
	results, err := RunMonteCarlo(context.Background(), cfg, logr.Discard())
	require.NoError(t, err)
	require.Len(t, results, 5)

	stable, unstable := MonteCarloStats(results)
	assert.Equal(t, 5, stable)
	assert.Zero(t, unstable)

	nominal := models.DefaultSkidSteerParams()
	for _, r := range results {
		assert.InEpsilon(t, nominal.MaxVelocity, r.MaxVelocity, 0.2)
		assert.InEpsilon(t, nominal.TimeConstant, r.TimeConstant, 0.2)
	}

	again, err := RunMonteCarlo(context.Background(), cfg, logr.Discard())
	require.NoError(t, err)
	assert.Equal(t, results, again)
}
