package optim

import (
	"context"
	"fmt"
	"math"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/san-kum/odomctl/internal/control"
)

// Gain parameter names accepted by GridSearch.
var paramNames = []string{"kp", "ki", "kd", "bias"}

type GridSearch struct {
	paramNames []string
	ranges     [][]float64
	workers    int
}

// NewGridSearch searches the cartesian product of ranges. params[i] names
// the gain varied over ranges[i]; gains not named keep their base value.
func NewGridSearch(params []string, ranges [][]float64, workers int) (*GridSearch, error) {
	if len(params) != len(ranges) {
		return nil, fmt.Errorf("optim: %d params but %d ranges", len(params), len(ranges))
	}
	for i, name := range params {
		if !validParam(name) {
			return nil, fmt.Errorf("optim: unknown gain %q", name)
		}
		if len(ranges[i]) == 0 {
			return nil, fmt.Errorf("optim: empty range for %s", name)
		}
	}
	if workers <= 0 {
		workers = 1
	}
	return &GridSearch{paramNames: params, ranges: ranges, workers: workers}, nil
}

func validParam(name string) bool {
	for _, n := range paramNames {
		if n == name {
			return true
		}
	}
	return false
}

// Linspace returns n evenly spaced values from lo to hi inclusive.
func Linspace(lo, hi float64, n int) []float64 {
	if n <= 1 {
		return []float64{lo}
	}
	out := make([]float64, n)
	step := (hi - lo) / float64(n-1)
	for i := range out {
		out[i] = lo + float64(i)*step
	}
	out[n-1] = hi
	return out
}

func apply(base control.Gains, params map[string]float64) control.Gains {
	g := base
	for name, v := range params {
		switch name {
		case "kp":
			g.Kp = v
		case "ki":
			g.Ki = v
		case "kd":
			g.Kd = v
		case "bias":
			g.Bias = v
		}
	}
	return g
}

// Candidate is one evaluated point of the grid.
type Candidate struct {
	Gains control.Gains
	Cost  float64
}

// Result of a search. Best has Cost +Inf when no candidate could be scored.
type Result struct {
	Best      Candidate
	Evaluated int
	Failed    int
}

// grid enumerates every combination in order.
func (g *GridSearch) grid() []map[string]float64 {
	points := []map[string]float64{{}}
	for i, name := range g.paramNames {
		next := make([]map[string]float64, 0, len(points)*len(g.ranges[i]))
		for _, p := range points {
			for _, v := range g.ranges[i] {
				q := make(map[string]float64, len(p)+1)
				for k, val := range p {
					q[k] = val
				}
				q[name] = v
				next = append(next, q)
			}
		}
		points = next
	}
	return points
}

// Search scores every grid point with cost, in parallel. Candidates whose
// cost fails are counted and skipped. Ties keep the earlier grid point.
func (g *GridSearch) Search(ctx context.Context, base control.Gains, cost func(context.Context, control.Gains) (float64, error)) (Result, error) {
	points := g.grid()
	costs := make([]float64, len(points))
	ok := make([]bool, len(points))

	var (
		mu     sync.Mutex
		failed int
	)
	eg, egctx := errgroup.WithContext(ctx)
	eg.SetLimit(g.workers)
	for i, p := range points {
		eg.Go(func() error {
			if err := egctx.Err(); err != nil {
				return err
			}
			c, err := cost(egctx, apply(base, p))
			if err != nil || math.IsNaN(c) {
				if ctxErr := egctx.Err(); ctxErr != nil {
					return ctxErr
				}
				mu.Lock()
				failed++
				mu.Unlock()
				return nil
			}
			costs[i], ok[i] = c, true
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return Result{}, err
	}

	res := Result{Best: Candidate{Gains: base, Cost: math.Inf(1)}, Evaluated: len(points), Failed: failed}
	for i, p := range points {
		if ok[i] && costs[i] < res.Best.Cost {
			res.Best = Candidate{Gains: apply(base, p), Cost: costs[i]}
		}
	}
	return res, nil
}
