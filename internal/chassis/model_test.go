package chassis

import (
	"errors"
	"testing"

	"github.com/go-logr/logr"
	"github.com/go-logr/logr/funcr"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/san-kum/odomctl/internal/metrics"
	"github.com/san-kum/odomctl/internal/odometry"
)

type sentCommand struct{ left, right float64 }

func TestCommandModel(t *testing.T) {
	var sent []sentCommand
	sensor := odometry.SensorFunc(func() ([]int32, error) { return []int32{1, 2}, nil })
	m := NewCommandModel(sensor, func(l, r float64) error {
		sent = append(sent, sentCommand{l, r})
		return nil
	}, logr.Discard())

	require.NoError(t, m.SetLeft(0.5))
	require.NoError(t, m.SetRight(-0.25))
	m.Stop()

	assert.Equal(t, []sentCommand{{0.5, 0}, {0.5, -0.25}, {0, 0}}, sent)

	ticks, err := m.GetSensorVals()
	require.NoError(t, err)
	assert.Equal(t, []int32{1, 2}, ticks)
}

func TestCommandModelStopFailureIsReported(t *testing.T) {
	var logged []string
	log := funcr.New(func(prefix, args string) { logged = append(logged, args) }, funcr.Options{})
	sensor := odometry.SensorFunc(func() ([]int32, error) { return []int32{0, 0}, nil })
	m := NewCommandModel(sensor, func(l, r float64) error {
		return errors.New("port closed")
	}, log)

	before := testutil.ToFloat64(metrics.DriveStopErrors)
	m.Stop()

	assert.Equal(t, before+1, testutil.ToFloat64(metrics.DriveStopErrors))
	require.Len(t, logged, 1)
	assert.Contains(t, logged[0], "stop command failed")
	assert.Contains(t, logged[0], "port closed")
}

type recordingModel struct {
	left, right float64
	failLeft    error
}

func (m *recordingModel) GetSensorVals() ([]int32, error) { return []int32{0, 0}, nil }
func (m *recordingModel) SetLeft(v float64) error         { m.left = v; return m.failLeft }
func (m *recordingModel) SetRight(v float64) error        { m.right = v; return nil }
func (m *recordingModel) Stop()                           { m.left, m.right = 0, 0 }

func TestMixer(t *testing.T) {
	model := &recordingModel{}
	mix := &mixer{model: model}

	require.NoError(t, mix.setDistance(0.5))
	assert.Equal(t, 0.5, model.left)
	assert.Equal(t, 0.5, model.right)

	require.NoError(t, mix.setAngle(0.2))
	assert.InDelta(t, 0.7, model.left, 1e-12)
	assert.InDelta(t, 0.3, model.right, 1e-12)

	model.failLeft = errors.New("motor fault")
	err := mix.setDistance(0)
	assert.ErrorIs(t, err, model.failLeft)
	assert.InDelta(t, -0.2, model.right, 1e-12, "right side is still driven when the left fails")
}
