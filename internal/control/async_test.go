package control

import (
	"context"
	"errors"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/onsi/ginkgo/v2"
	"github.com/onsi/gomega"
	"k8s.io/utils/clock"
	testclock "k8s.io/utils/clock/testing"

	"github.com/san-kum/odomctl/internal/timeutil"
)

type fakeInput struct {
	value atomic.Uint64
	fail  atomic.Bool
	reads atomic.Int64
}

func (f *fakeInput) Set(v float64) { f.value.Store(math.Float64bits(v)) }

func (f *fakeInput) ControllerGet() (float64, error) {
	f.reads.Add(1)
	if f.fail.Load() {
		return 0, errors.New("encoder unplugged")
	}
	return math.Float64frombits(f.value.Load()), nil
}

type recordingOutput struct {
	mu     sync.Mutex
	writes []float64
}

func (r *recordingOutput) ControllerSet(v float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.writes = append(r.writes, v)
	return nil
}

func (r *recordingOutput) Writes() []float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]float64(nil), r.writes...)
}

func (r *recordingOutput) Last() float64 {
	w := r.Writes()
	if len(w) == 0 {
		return math.NaN()
	}
	return w[len(w)-1]
}

func manualTimeSource(rate *timeutil.ManualRate, clock *testclock.FakeClock, settle SettleConfig) TimeSource {
	return TimeSource{
		NewTimer:   func() timeutil.Timer { return timeutil.NewConstantTimer(10 * time.Millisecond) },
		NewRate:    func() timeutil.Rate { return rate },
		NewSettled: func() *SettledUtil { return NewSettledUtil(timeutil.NewTimer(clock), settle) },
	}
}

var _ = ginkgo.Describe("AsyncWrapper", func() {
	var (
		input   *fakeInput
		output  *recordingOutput
		rate    *timeutil.ManualRate
		clock   *testclock.FakeClock
		wrapper *AsyncWrapper
	)

	step := func() {
		clock.Step(10 * time.Millisecond)
		rate.Step()
	}

	ginkgo.BeforeEach(func() {
		input = &fakeInput{}
		output = &recordingOutput{}
		rate = timeutil.NewManualRate()
		clock = testclock.NewFakeClock(time.Unix(0, 0))
		ts := manualTimeSource(rate, clock, SettleConfig{Error: 0.5, Derivative: 0.5, Time: 20 * time.Millisecond})

		wrapper = NewAsyncPosPID(input, output, ts, Gains{Kp: 1}, WithName("test"))
		rate.WaitParked()
	})

	ginkgo.AfterEach(func() {
		gomega.Expect(wrapper.Close()).To(gomega.Succeed())
	})

	ginkgo.It("starts enabled and not settled", func() {
		gomega.Expect(wrapper.IsDisabled()).To(gomega.BeFalse())
		gomega.Expect(wrapper.IsSettled()).To(gomega.BeFalse())
	})

	ginkgo.It("writes the law output for the current target", func() {
		input.Set(2)
		wrapper.SetTarget(5)
		step()

		gomega.Expect(output.Last()).To(gomega.Equal(3.0))
		gomega.Expect(wrapper.Output()).To(gomega.Equal(3.0))
		gomega.Expect(wrapper.Error()).To(gomega.Equal(3.0))
		gomega.Expect(wrapper.Target()).To(gomega.Equal(5.0))
	})

	ginkgo.It("writes a neutral output when disabled and holds it across target changes", func() {
		input.Set(1)
		wrapper.SetTarget(4)
		step()
		gomega.Expect(output.Last()).To(gomega.Equal(3.0))

		wrapper.SetDisable(true)
		gomega.Expect(output.Last()).To(gomega.Equal(0.0))
		n := len(output.Writes())

		wrapper.SetTarget(10)
		step()
		step()
		gomega.Expect(output.Writes()).To(gomega.HaveLen(n))
		gomega.Expect(wrapper.IsDisabled()).To(gomega.BeTrue())
	})

	ginkgo.It("resumes output on the sample after re-enabling", func() {
		input.Set(1)
		wrapper.SetDisable(true)
		wrapper.SetTarget(2)
		step()

		wrapper.FlipDisable()
		gomega.Expect(wrapper.IsDisabled()).To(gomega.BeFalse())
		step()
		gomega.Expect(output.Last()).To(gomega.Equal(1.0))
	})

	ginkgo.It("keeps tracking the error while disabled", func() {
		input.Set(1)
		wrapper.SetDisable(true)
		wrapper.SetTarget(3)
		step()
		gomega.Expect(wrapper.Error()).To(gomega.Equal(2.0))
		gomega.Expect(wrapper.IsSettled()).To(gomega.BeTrue())
	})

	ginkgo.It("settles once the error stays in tolerance for the dwell time", func() {
		input.Set(1)
		wrapper.SetTarget(1)
		gomega.Expect(wrapper.IsSettled()).To(gomega.BeFalse())

		for range 5 {
			step()
		}
		gomega.Expect(wrapper.IsSettled()).To(gomega.BeTrue())

		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		gomega.Expect(wrapper.WaitUntilSettled(ctx)).To(gomega.Succeed())

		wrapper.SetTarget(8)
		gomega.Expect(wrapper.IsSettled()).To(gomega.BeFalse())
	})

	ginkgo.It("skips samples whose input cannot be read", func() {
		input.Set(1)
		wrapper.SetTarget(2)
		step()
		n := len(output.Writes())

		input.fail.Store(true)
		step()
		step()
		gomega.Expect(output.Writes()).To(gomega.HaveLen(n))

		input.fail.Store(false)
		step()
		gomega.Expect(output.Writes()).To(gomega.HaveLen(n + 1))
	})

	ginkgo.It("stops writing after Close and tolerates repeated Close", func() {
		input.Set(0)
		wrapper.SetTarget(1)
		step()
		gomega.Expect(wrapper.Close()).To(gomega.Succeed())
		gomega.Expect(wrapper.Close()).To(gomega.Succeed())
		n := len(output.Writes())

		wrapper.SetDisable(true)
		wrapper.SetTarget(3)
		gomega.Consistently(func() []float64 { return output.Writes() }, 30*time.Millisecond, 5*time.Millisecond).
			Should(gomega.HaveLen(n))

		err := wrapper.WaitUntilSettled(context.Background())
		gomega.Expect(err).To(gomega.MatchError(ErrClosed))
	})

	ginkgo.It("returns the context error when waiting times out", func() {
		input.Set(0)
		wrapper.SetTarget(100)
		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()
		gomega.Expect(wrapper.WaitUntilSettled(ctx)).To(gomega.MatchError(context.DeadlineExceeded))
	})
})

var _ = ginkgo.Describe("AsyncWrapper with integral action", func() {
	ginkgo.It("resets the law when re-enabled between two samples", func() {
		input := &fakeInput{}
		output := &recordingOutput{}
		rate := timeutil.NewManualRate()
		clock := testclock.NewFakeClock(time.Unix(0, 0))
		ts := manualTimeSource(rate, clock, DefaultSettleConfig())

		w := NewAsyncPosPID(input, output, ts, Gains{Ki: 1}, WithName("integral"))
		defer w.Close()
		rate.WaitParked()

		w.SetTarget(1)
		for i := 0; i < 10; i++ {
			rate.Step()
		}
		gomega.Expect(w.Output()).To(gomega.BeNumerically("~", 0.1, 1e-9))

		w.SetDisable(true)
		w.SetDisable(false)
		n := len(output.Writes())
		rate.Step()

		gomega.Expect(output.Writes()).To(gomega.HaveLen(n + 1))
		gomega.Expect(output.Last()).To(gomega.Equal(0.0))

		rate.Step()
		gomega.Expect(output.Last()).To(gomega.BeNumerically("~", 0.01, 1e-12))
	})
})

var _ = ginkgo.Describe("AsyncWrapper on the real clock", func() {
	ginkgo.It("drives a simple plant to its target", func() {
		var mu sync.Mutex
		position := 0.0

		in := InputFunc(func() (float64, error) {
			mu.Lock()
			defer mu.Unlock()
			return position, nil
		})
		out := OutputFunc(func(v float64) error {
			mu.Lock()
			defer mu.Unlock()
			position += 0.5 * v
			return nil
		})

		ts := NewTimeSource(clock.RealClock{}, SettleConfig{Error: 0.01, Derivative: 0.01, Time: 20 * time.Millisecond})
		w := NewAsyncPosPID(in, out, ts, Gains{Kp: 0.5}, WithPeriod(time.Millisecond))
		defer w.Close()

		w.SetTarget(2)
		gomega.Eventually(w.IsSettled, 2*time.Second, 5*time.Millisecond).Should(gomega.BeTrue())
		gomega.Expect(math.Abs(w.Error())).To(gomega.BeNumerically("<", 0.01))
	})
})
