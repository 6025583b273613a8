package chassis

import (
	"sync"

	"go.uber.org/multierr"
)

// mixer combines the distance and angle controller outputs into wheel
// commands: left = distance + angle, right = distance - angle.
type mixer struct {
	model SkidSteerModel

	mu       sync.Mutex
	distance float64
	angle    float64
}

func (m *mixer) setDistance(v float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.distance = v
	return m.applyLocked()
}

func (m *mixer) setAngle(v float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.angle = v
	return m.applyLocked()
}

func (m *mixer) applyLocked() error {
	return multierr.Append(
		m.model.SetLeft(m.distance+m.angle),
		m.model.SetRight(m.distance-m.angle),
	)
}
