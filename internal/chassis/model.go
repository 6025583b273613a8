package chassis

import (
	"sync"

	"github.com/go-logr/logr"

	"github.com/san-kum/odomctl/internal/metrics"
	"github.com/san-kum/odomctl/internal/odometry"
)

// SkidSteerModel is the drivetrain as seen by the controller: encoder ticks
// in, normalised left/right commands out.
type SkidSteerModel interface {
	odometry.SensorModel
	SetLeft(v float64) error
	SetRight(v float64) error
	Stop()
}

// CommandModel adapts an encoder source and a function that sends both
// wheel commands at once, such as a serial link, to SkidSteerModel.
type CommandModel struct {
	odometry.SensorModel
	send func(left, right float64) error
	log  logr.Logger

	mu          sync.Mutex
	left, right float64
}

func NewCommandModel(sensor odometry.SensorModel, send func(left, right float64) error, log logr.Logger) *CommandModel {
	return &CommandModel{SensorModel: sensor, send: send, log: log}
}

func (m *CommandModel) SetLeft(v float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.left = v
	return m.send(m.left, m.right)
}

func (m *CommandModel) SetRight(v float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.right = v
	return m.send(m.left, m.right)
}

func (m *CommandModel) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.left, m.right = 0, 0
	if err := m.send(0, 0); err != nil {
		m.log.Error(err, "stop command failed")
		metrics.DriveStopErrors.Inc()
	}
}
