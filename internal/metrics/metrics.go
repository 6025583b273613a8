// Package metrics holds the prometheus collectors updated by the control and
// odometry loops. Collectors are always updated; Register exposes them on a
// registry.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "odomctl"

var (
	ControllerSamples = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "controller",
			Name:      "samples_total",
			Help:      "Number of control loop samples taken.",
		},
		[]string{"controller"},
	)
	ControllerInputErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "controller",
			Name:      "input_errors_total",
			Help:      "Number of samples skipped because the input could not be read.",
		},
		[]string{"controller"},
	)
	ControllerOutputErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "controller",
			Name:      "output_errors_total",
			Help:      "Number of failed writes to the output sink.",
		},
		[]string{"controller"},
	)
	ControllerOutput = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "controller",
			Name:      "output",
			Help:      "Last value written to the output sink.",
		},
		[]string{"controller"},
	)
	ControllerError = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "controller",
			Name:      "error",
			Help:      "Last control error (target - input).",
		},
		[]string{"controller"},
	)
	ControllerSettled = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "controller",
			Name:      "settled",
			Help:      "1 when the controller is settled, 0 otherwise.",
		},
		[]string{"controller"},
	)

	OdometrySteps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "odometry",
			Name:      "steps_total",
			Help:      "Number of pose updates applied.",
		},
		[]string{"variant"},
	)
	OdometrySkippedSteps = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "odometry",
			Name:      "skipped_steps_total",
			Help:      "Number of steps skipped because no time had elapsed.",
		},
	)
	OdometryNaNClamps = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "odometry",
			Name:      "nan_clamps_total",
			Help:      "Number of pose delta components clamped from NaN to zero.",
		},
	)
	OdometryPose = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "odometry",
			Name:      "pose",
			Help:      "Current pose estimate (x, y in metres, theta in radians).",
		},
		[]string{"axis"},
	)

	DriveStopErrors = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "drive",
			Name:      "stop_errors_total",
			Help:      "Number of stop commands the drivetrain failed to accept.",
		},
	)

	SensorFrameErrors = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sensor",
			Name:      "frame_errors_total",
			Help:      "Number of malformed encoder frames discarded.",
		},
	)
)

var registerMetrics sync.Once

// Register adds all collectors to reg. Only the first call has any effect.
func Register(reg prometheus.Registerer) {
	registerMetrics.Do(func() {
		reg.MustRegister(
			ControllerSamples,
			ControllerInputErrors,
			ControllerOutputErrors,
			ControllerOutput,
			ControllerError,
			ControllerSettled,
			OdometrySteps,
			OdometrySkippedSteps,
			OdometryNaNClamps,
			OdometryPose,
			DriveStopErrors,
			SensorFrameErrors,
		)
	})
}

// SetPose publishes a pose estimate.
func SetPose(x, y, theta float64) {
	OdometryPose.WithLabelValues("x").Set(x)
	OdometryPose.WithLabelValues("y").Set(y)
	OdometryPose.WithLabelValues("theta").Set(theta)
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// ObserveController publishes one controller sample.
func ObserveController(name string, err float64, settled bool) {
	ControllerSamples.WithLabelValues(name).Inc()
	ControllerError.WithLabelValues(name).Set(err)
	ControllerSettled.WithLabelValues(name).Set(boolToFloat(settled))
}
