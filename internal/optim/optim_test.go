package optim

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/san-kum/odomctl/internal/control"
	"github.com/san-kum/odomctl/internal/dynamo"
	"github.com/san-kum/odomctl/internal/integrators"
	"github.com/san-kum/odomctl/internal/models"
)

func testProblem(loop string, target float64) Problem {
	return Problem{
		Loop:          loop,
		Target:        target,
		Params:        models.DefaultSkidSteerParams(),
		NewIntegrator: func() dynamo.Integrator { return integrators.NewRK4() },
		Period:        10 * time.Millisecond,
		Duration:      3 * time.Second,
		Metric:        "itae",
	}
}

func TestSimulateDistanceConverges(t *testing.T) {
	resp, err := Simulate(context.Background(), testProblem(LoopDistance, 0.3), control.Gains{Kp: 4})
	if err != nil {
		t.Fatal(err)
	}
	if len(resp.Times) != 300 {
		t.Fatalf("expected 300 samples, got %d", len(resp.Times))
	}
	final := resp.Inputs[len(resp.Inputs)-1]
	if math.Abs(final-0.3) > 0.005 {
		t.Errorf("expected to reach 0.3, got %f", final)
	}
	for i, out := range resp.Outputs {
		if math.Abs(out) > 1 {
			t.Fatalf("output %d exceeds limit: %f", i, out)
		}
	}
}

func TestSimulateAngleConverges(t *testing.T) {
	resp, err := Simulate(context.Background(), testProblem(LoopAngle, math.Pi/2), control.Gains{Kp: 1.5, Kd: 0.05})
	if err != nil {
		t.Fatal(err)
	}
	final := resp.Inputs[len(resp.Inputs)-1]
	if math.Abs(final-math.Pi/2) > 0.02 {
		t.Errorf("expected to reach pi/2, got %f", final)
	}
}

func TestSimulateRejectsBadProblem(t *testing.T) {
	p := testProblem("lateral", 1)
	if _, err := Simulate(context.Background(), p, control.Gains{}); err == nil {
		t.Error("expected error for unknown loop")
	}
	p = testProblem(LoopDistance, 1)
	p.NewIntegrator = nil
	if _, err := Simulate(context.Background(), p, control.Gains{}); err == nil {
		t.Error("expected error without integrator")
	}
}

func TestLinspace(t *testing.T) {
	got := Linspace(0, 1, 5)
	want := []float64{0, 0.25, 0.5, 0.75, 1}
	for i := range want {
		if math.Abs(got[i]-want[i]) > 1e-12 {
			t.Errorf("index %d: expected %f, got %f", i, want[i], got[i])
		}
	}
	if got := Linspace(2, 3, 1); len(got) != 1 || got[0] != 2 {
		t.Errorf("single point: got %v", got)
	}
}

func TestNewGridSearchValidation(t *testing.T) {
	if _, err := NewGridSearch([]string{"kp"}, nil, 1); err == nil {
		t.Error("expected error for mismatched ranges")
	}
	if _, err := NewGridSearch([]string{"kx"}, [][]float64{{1}}, 1); err == nil {
		t.Error("expected error for unknown gain")
	}
	if _, err := NewGridSearch([]string{"kp"}, [][]float64{{}}, 1); err == nil {
		t.Error("expected error for empty range")
	}
}

func TestGridSearchFindsMinimum(t *testing.T) {
	gs, err := NewGridSearch([]string{"kp", "kd"}, [][]float64{{1, 2, 3}, {0, 0.5}}, 4)
	if err != nil {
		t.Fatal(err)
	}
	cost := func(_ context.Context, g control.Gains) (float64, error) {
		return (g.Kp-2)*(g.Kp-2) + g.Kd + g.Ki, nil
	}

	res, err := gs.Search(context.Background(), control.Gains{Ki: 0.1}, cost)
	if err != nil {
		t.Fatal(err)
	}
	want := control.Gains{Kp: 2, Ki: 0.1, Kd: 0}
	if res.Best.Gains != want {
		t.Errorf("expected %+v, got %+v", want, res.Best.Gains)
	}
	if math.Abs(res.Best.Cost-0.1) > 1e-12 {
		t.Errorf("expected cost 0.1, got %f", res.Best.Cost)
	}
	if res.Evaluated != 6 || res.Failed != 0 {
		t.Errorf("expected 6 evaluated and 0 failed, got %d/%d", res.Evaluated, res.Failed)
	}
}

func TestGridSearchSkipsFailures(t *testing.T) {
	gs, err := NewGridSearch([]string{"kp"}, [][]float64{{1, 2}}, 2)
	if err != nil {
		t.Fatal(err)
	}
	cost := func(_ context.Context, g control.Gains) (float64, error) {
		if g.Kp == 1 {
			return 0, errors.New("diverged")
		}
		return 5, nil
	}

	res, err := gs.Search(context.Background(), control.Gains{}, cost)
	if err != nil {
		t.Fatal(err)
	}
	if res.Failed != 1 || res.Best.Gains.Kp != 2 {
		t.Errorf("expected kp=2 with one failure, got %+v", res)
	}
}

func TestGridSearchCancelled(t *testing.T) {
	gs, err := NewGridSearch([]string{"kp"}, [][]float64{Linspace(0, 1, 10)}, 2)
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = gs.Search(ctx, control.Gains{}, func(context.Context, control.Gains) (float64, error) { return 0, nil })
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestTuneDistanceGain(t *testing.T) {
	p := testProblem(LoopDistance, 0.3)
	gs, err := NewGridSearch([]string{"kp"}, [][]float64{{0.5, 4}}, 2)
	if err != nil {
		t.Fatal(err)
	}
	res, err := gs.Search(context.Background(), control.Gains{}, func(ctx context.Context, g control.Gains) (float64, error) {
		return Cost(ctx, p, g)
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.Best.Gains.Kp != 4 {
		t.Errorf("expected the faster gain to win, got %+v", res.Best)
	}
}
