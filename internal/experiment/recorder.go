package experiment

import (
	"context"
	"sync"
	"time"

	"github.com/san-kum/odomctl/internal/chassis"
	"github.com/san-kum/odomctl/internal/storage"
	"github.com/san-kum/odomctl/internal/timeutil"
)

// Snapshotter is the part of chassis.Controller the recorder samples.
type Snapshotter interface {
	Snapshot() chassis.Sample
}

// Recorder samples a Snapshotter at a fixed period while a motion runs.
// Samples taken while the chassis is idle are dropped.
type Recorder struct {
	src    Snapshotter
	period time.Duration
	clock  timeutil.Clock
	rate   timeutil.Rate

	mu     sync.Mutex
	points []storage.Point

	cancel context.CancelFunc
	done   chan struct{}
}

// NewRecorder returns a stopped recorder. Nil clock and rate use the wall
// clock.
func NewRecorder(src Snapshotter, period time.Duration, clock timeutil.Clock, rate timeutil.Rate) *Recorder {
	if rate == nil {
		rate = timeutil.NewRate(clock)
	}
	return &Recorder{src: src, period: period, clock: clock, rate: rate}
}

// Start begins sampling. Time zero is the moment Start is called.
func (r *Recorder) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel
	r.done = make(chan struct{})
	timer := timeutil.NewTimer(r.clock)
	go func() {
		defer close(r.done)
		for {
			r.sample(timer.Millis())
			if err := r.rate.DelayUntil(ctx, r.period); err != nil && ctx.Err() != nil {
				return
			}
		}
	}()
}

func (r *Recorder) sample(elapsed time.Duration) {
	s := r.src.Snapshot()
	if s.Mode == "" {
		return
	}
	r.mu.Lock()
	r.points = append(r.points, storage.Point{
		Time:   elapsed.Seconds(),
		X:      s.Pose.X,
		Y:      s.Pose.Y,
		Theta:  s.Pose.Theta,
		Target: s.Target,
		Input:  s.Input,
		Output: s.Output,
	})
	r.mu.Unlock()
}

// Stop ends sampling and returns everything recorded.
func (r *Recorder) Stop() []storage.Point {
	if r.cancel != nil {
		r.cancel()
		<-r.done
	}
	return r.Points()
}

func (r *Recorder) Points() []storage.Point {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]storage.Point, len(r.points))
	copy(out, r.points)
	return out
}
