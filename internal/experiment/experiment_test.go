package experiment

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-logr/logr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	testclock "k8s.io/utils/clock/testing"

	"github.com/san-kum/odomctl/internal/chassis"
	"github.com/san-kum/odomctl/internal/config"
	"github.com/san-kum/odomctl/internal/odometry"
	"github.com/san-kum/odomctl/internal/storage"
	"github.com/san-kum/odomctl/internal/timeutil"
)

func TestRegistryNames(t *testing.T) {
	reg := NewRegistry()
	assert.Equal(t, []string{"euler", "rk4"}, reg.ListIntegrators())
	assert.Equal(t, []string{"arc", "heading"}, reg.ListOdometry())
	assert.Equal(t, []string{"serial", "sim"}, reg.ListSources())

	_, err := reg.GetIntegrator("verlet")
	assert.Error(t, err)
	_, err = reg.GetOdometry("gps")
	assert.Error(t, err)
	_, err = reg.GetSource("can")
	assert.Error(t, err)
}

type fakeSnapshots struct {
	n atomic.Int32
}

func (f *fakeSnapshots) Snapshot() chassis.Sample {
	n := f.n.Add(1)
	if n == 1 {
		return chassis.Sample{}
	}
	return chassis.Sample{
		Pose:   odometry.OdomState{X: float64(n) / 10},
		Mode:   "distance",
		Target: 1,
		Input:  float64(n) / 10,
		Output: 0.5,
	}
}

func TestRecorderSamplesActiveMotion(t *testing.T) {
	clock := testclock.NewFakeClock(time.Unix(0, 0))
	rate := timeutil.NewManualRate()
	src := &fakeSnapshots{}

	rec := NewRecorder(src, 10*time.Millisecond, clock, rate)
	rec.Start()
	rate.WaitParked()
	for i := 0; i < 3; i++ {
		clock.Step(10 * time.Millisecond)
		rate.Step()
	}
	points := rec.Stop()

	require.Len(t, points, 3, "idle sample should be dropped")
	assert.InDelta(t, 0.01, points[0].Time, 1e-12)
	assert.InDelta(t, 0.03, points[2].Time, 1e-12)
	assert.Equal(t, storage.Point{Time: points[1].Time, X: 0.3, Target: 1, Input: 0.3, Output: 0.5}, points[1])
}

func TestSummarizeDropsUndefinedMetrics(t *testing.T) {
	traj := []storage.Point{
		{Time: 0, Target: 1, Input: 0},
		{Time: 1, Target: 1, Input: 0.01},
	}
	m := Summarize(traj)
	assert.NotContains(t, m, "rise_time")
	assert.NotContains(t, m, "settling_time")
	assert.Contains(t, m, "iae")

	assert.Nil(t, Summarize(nil))
}

func TestBuildRejectsInvalidConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Odometry = "gps"
	_, err := Build(context.Background(), cfg, NewRegistry(), logr.Discard())
	assert.ErrorIs(t, err, config.ErrInvalidConfig)
}

func TestExecuteOnSimulatedDrive(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Settle.Distance.Time = 100 * time.Millisecond
	cfg.Settle.Angle.Time = 100 * time.Millisecond

	rig, err := Build(context.Background(), cfg, NewRegistry(), logr.Discard())
	require.NoError(t, err)
	defer func() { assert.NoError(t, rig.Close()) }()
	require.NotNil(t, rig.Hardware().Drive)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	run, err := rig.Execute(ctx, KindDrive, 0.25)
	require.NoError(t, err)
	assert.Equal(t, KindDrive, run.Meta.Kind)
	assert.Equal(t, 0.25, run.Meta.Target)
	assert.Empty(t, run.Meta.Error)
	require.NotEmpty(t, run.Trajectory)
	assert.InDelta(t, 0.25, run.Trajectory[len(run.Trajectory)-1].Input, 0.02)
	assert.Contains(t, run.Meta.Metrics, "iae")

	_, err = rig.Execute(ctx, "spin", 1)
	assert.Error(t, err)
}
