package control

import (
	"context"
	"errors"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-logr/logr"

	"github.com/san-kum/odomctl/internal/logging"
	"github.com/san-kum/odomctl/internal/metrics"
	"github.com/san-kum/odomctl/internal/timeutil"
)

// DefaultPeriod is the sampling period of an AsyncWrapper.
const DefaultPeriod = 10 * time.Millisecond

var ErrClosed = errors.New("control: controller closed")

type Option func(*AsyncWrapper)

func WithPeriod(period time.Duration) Option {
	return func(w *AsyncWrapper) {
		if period > 0 {
			w.period = period
		}
	}
}

func WithLogger(log logr.Logger) Option {
	return func(w *AsyncWrapper) { w.log = log }
}

// WithName labels the controller in logs and metrics.
func WithName(name string) Option {
	return func(w *AsyncWrapper) {
		if name != "" {
			w.name = name
		}
	}
}

// AsyncWrapper runs an IterativeController on its own goroutine at a fixed
// period, reading from input and writing to output. The goroutine starts in
// the constructor and stops on Close.
//
// The law, the settled detector and the rate are owned by the loop. The
// caller keeps ownership of input and output and must keep them usable
// until Close returns.
type AsyncWrapper struct {
	input   ControllerInput
	output  ControllerOutput
	law     IterativeController
	settled *SettledUtil
	rate    timeutil.Rate
	period  time.Duration
	name    string
	log     logr.Logger

	// mu guards target, disabled, closed and gen, and serialises every
	// write to output.
	mu       sync.Mutex
	target   float64
	disabled bool
	closed   bool
	gen      uint64

	isSettled atomic.Bool
	lastErr   atomic.Uint64
	lastOut   atomic.Uint64
	resetReq  atomic.Bool

	cancel    context.CancelFunc
	done      chan struct{}
	closeOnce sync.Once
}

func NewAsyncWrapper(input ControllerInput, output ControllerOutput, law IterativeController, ts TimeSource, opts ...Option) *AsyncWrapper {
	w := &AsyncWrapper{
		input:   input,
		output:  output,
		law:     law,
		settled: ts.NewSettled(),
		rate:    ts.NewRate(),
		period:  DefaultPeriod,
		name:    "controller",
		log:     logr.Discard(),
		target:  law.Target(),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.log = w.log.WithValues("controller", w.name)

	ctx, cancel := context.WithCancel(context.Background())
	w.cancel = cancel
	go w.run(ctx)
	return w
}

// NewAsyncPosPID assembles a positional PID law and runs it asynchronously.
func NewAsyncPosPID(input ControllerInput, output ControllerOutput, ts TimeSource, gains Gains, opts ...Option) *AsyncWrapper {
	return NewAsyncWrapper(input, output, NewPID(gains, ts.NewTimer()), ts, opts...)
}

func (w *AsyncWrapper) run(ctx context.Context) {
	defer close(w.done)
	w.log.V(logging.DEBUG).Info("control loop started", "period", w.period)
	for {
		w.sample()
		if err := w.rate.DelayUntil(ctx, w.period); err != nil && ctx.Err() != nil {
			w.log.V(logging.DEBUG).Info("control loop stopped")
			return
		}
	}
}

func (w *AsyncWrapper) sample() {
	in, err := w.input.ControllerGet()
	if err != nil {
		w.log.Error(err, "reading controller input")
		metrics.ControllerInputErrors.WithLabelValues(w.name).Inc()
		return
	}

	w.mu.Lock()
	target, disabled, gen := w.target, w.disabled, w.gen
	w.mu.Unlock()

	if w.resetReq.Swap(false) {
		w.law.Reset()
		w.settled.Reset()
	}

	var e float64
	if disabled {
		e = target - in
	} else {
		w.law.SetTarget(target)
		out := w.law.Step(in)
		e = w.law.Error()
		w.write(out)
	}

	settled := w.settled.IsSettled(e)
	w.lastErr.Store(math.Float64bits(e))

	w.mu.Lock()
	if w.gen == gen {
		w.isSettled.Store(settled)
	}
	w.mu.Unlock()

	metrics.ObserveController(w.name, e, settled)
	w.log.V(logging.TRACE).Info("sample", "target", target, "input", in, "error", e, "settled", settled)
}

func (w *AsyncWrapper) write(out float64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.disabled || w.closed {
		return
	}
	w.setOutputLocked(out)
}

func (w *AsyncWrapper) setOutputLocked(out float64) {
	if err := w.output.ControllerSet(out); err != nil {
		w.log.Error(err, "writing controller output", "value", out)
		metrics.ControllerOutputErrors.WithLabelValues(w.name).Inc()
		return
	}
	w.lastOut.Store(math.Float64bits(out))
	metrics.ControllerOutput.WithLabelValues(w.name).Set(out)
}

// SetTarget hands a new target to the loop. It applies from the next sample
// and clears the settled flag.
func (w *AsyncWrapper) SetTarget(target float64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.target = target
	w.gen++
	w.isSettled.Store(false)
}

func (w *AsyncWrapper) Target() float64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.target
}

// SetDisable stops or resumes closed-loop output. Disabling writes a neutral
// zero to the output immediately; re-enabling resets the law before its next
// step.
func (w *AsyncWrapper) SetDisable(disabled bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.setDisableLocked(disabled)
}

func (w *AsyncWrapper) FlipDisable() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.setDisableLocked(!w.disabled)
}

func (w *AsyncWrapper) setDisableLocked(disabled bool) {
	if w.closed || w.disabled == disabled {
		return
	}
	w.disabled = disabled
	if disabled {
		w.setOutputLocked(0)
	} else {
		w.resetReq.Store(true)
	}
	w.log.V(logging.DEBUG).Info("controller state changed", "disabled", disabled)
}

func (w *AsyncWrapper) IsDisabled() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.disabled
}

// IsSettled reports whether the loop has converged on the current target.
// A disabled controller always reports settled.
func (w *AsyncWrapper) IsSettled() bool {
	return w.IsDisabled() || w.isSettled.Load()
}

// Error returns target - input as of the last sample.
func (w *AsyncWrapper) Error() float64 {
	return math.Float64frombits(w.lastErr.Load())
}

// Output returns the last value written to the output.
func (w *AsyncWrapper) Output() float64 {
	return math.Float64frombits(w.lastOut.Load())
}

// Reset clears the law and the settled detector before the next sample.
func (w *AsyncWrapper) Reset() {
	w.mu.Lock()
	w.gen++
	w.isSettled.Store(false)
	w.mu.Unlock()
	w.resetReq.Store(true)
}

// WaitUntilSettled blocks until IsSettled reports true, ctx ends or the
// controller is closed.
func (w *AsyncWrapper) WaitUntilSettled(ctx context.Context) error {
	ticker := time.NewTicker(w.period)
	defer ticker.Stop()
	for {
		if w.IsSettled() {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.done:
			return ErrClosed
		case <-ticker.C:
		}
	}
}

// Close stops the loop and waits for it to exit. The output is never
// written after Close returns. Close is safe to call more than once.
func (w *AsyncWrapper) Close() error {
	w.closeOnce.Do(func() {
		w.mu.Lock()
		w.closed = true
		w.mu.Unlock()
		w.cancel()
		<-w.done
	})
	return nil
}
