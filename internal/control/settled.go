package control

import (
	"math"
	"time"

	"github.com/san-kum/odomctl/internal/timeutil"
)

// Defaults for SettledUtil.
const (
	DefaultAtTargetError      = 50.0
	DefaultAtTargetDerivative = 5.0
	DefaultAtTargetTime       = 250 * time.Millisecond
)

// SettleConfig holds the tolerances of a SettledUtil.
type SettleConfig struct {
	Error      float64       `yaml:"error"`
	Derivative float64       `yaml:"derivative"`
	Time       time.Duration `yaml:"time"`
}

func DefaultSettleConfig() SettleConfig {
	return SettleConfig{
		Error:      DefaultAtTargetError,
		Derivative: DefaultAtTargetDerivative,
		Time:       DefaultAtTargetTime,
	}
}

// SettledUtil debounces convergence: the error magnitude and its per-sample
// change must both stay inside tolerance for at least the dwell time before
// IsSettled reports true. Any excursion restarts the dwell.
//
// Not safe for concurrent use.
type SettledUtil struct {
	timer timeutil.Timer
	cfg   SettleConfig

	lastError float64
	inBand    bool
	enteredAt time.Duration
}

func NewSettledUtil(timer timeutil.Timer, cfg SettleConfig) *SettledUtil {
	return &SettledUtil{timer: timer, cfg: cfg}
}

func (s *SettledUtil) Config() SettleConfig { return s.cfg }

// IsSettled records err as the newest sample and reports whether the loop
// has converged.
func (s *SettledUtil) IsSettled(err float64) bool {
	now := s.timer.Millis()
	change := math.Abs(err - s.lastError)
	s.lastError = err

	if math.Abs(err) > s.cfg.Error || change > s.cfg.Derivative || math.IsNaN(err) {
		s.inBand = false
		return false
	}
	if !s.inBand {
		s.inBand = true
		s.enteredAt = now
	}
	return now-s.enteredAt >= s.cfg.Time
}

// Reset forgets the dwell window and the last error.
func (s *SettledUtil) Reset() {
	s.lastError = 0
	s.inBand = false
	s.enteredAt = 0
}
