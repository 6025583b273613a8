package chassis

import (
	"context"
	"math"
	"time"

	"github.com/go-logr/logr"
	"github.com/onsi/ginkgo/v2"
	"github.com/onsi/gomega"

	"github.com/san-kum/odomctl/internal/control"
	"github.com/san-kum/odomctl/internal/integrators"
	"github.com/san-kum/odomctl/internal/models"
	"github.com/san-kum/odomctl/internal/odometry"
	"github.com/san-kum/odomctl/internal/sim"
	"github.com/san-kum/odomctl/internal/timeutil"
	"github.com/san-kum/odomctl/internal/units"
)

func testScales() odometry.ChassisScales {
	return odometry.ScalesFromWheel(units.Inches(4.1), units.Inches(11.375), units.GreenTPR)
}

func testConfig() Config {
	return Config{
		Scales:         testScales(),
		DistanceGains:  control.Gains{Kp: 4, Kd: 0.1},
		AngleGains:     control.Gains{Kp: 1.5, Kd: 0.05},
		DistanceSettle: control.SettleConfig{Error: 0.01, Derivative: 0.001, Time: 100 * time.Millisecond},
		AngleSettle:    control.SettleConfig{Error: units.Degrees(1), Derivative: units.Degrees(0.2), Time: 100 * time.Millisecond},
		Period:         5 * time.Millisecond,
	}
}

func newSimDrive() *sim.Drive {
	params := models.DefaultSkidSteerParams()
	params.WheelTrack = testScales().WheelTrack
	drive, err := sim.NewDrive(sim.DriveConfig{
		Params:        params,
		TicksPerMeter: testScales().Straight,
		Period:        2 * time.Millisecond,
		Integrator:    integrators.NewRK4(),
	})
	gomega.Expect(err).NotTo(gomega.HaveOccurred())
	return drive
}

var _ = ginkgo.Describe("Controller", func() {
	var (
		drive *sim.Drive
		odom  *odometry.Odometry
		ctrl  *Controller
	)

	ginkgo.BeforeEach(func() {
		var err error
		drive = newSimDrive()
		odom, err = odometry.NewOdometry(drive, testScales(), timeutil.NewTimer(nil), nil)
		gomega.Expect(err).NotTo(gomega.HaveOccurred())

		ctrl, err = New(drive, odom, testConfig(), logr.Discard())
		gomega.Expect(err).NotTo(gomega.HaveOccurred())
	})

	ginkgo.AfterEach(func() {
		gomega.Expect(ctrl.Close()).To(gomega.Succeed())
		gomega.Expect(drive.Close()).To(gomega.Succeed())
	})

	ginkgo.It("is idle with the motors stopped after construction", func() {
		gomega.Expect(ctrl.Mode()).To(gomega.BeEmpty())
		l, r := drive.Commands()
		gomega.Expect(l).To(gomega.BeZero())
		gomega.Expect(r).To(gomega.BeZero())
	})

	ginkgo.It("moves a distance and tracks it with odometry", func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		gomega.Expect(ctrl.MoveDistance(ctx, 0.3)).To(gomega.Succeed())

		x, y, theta := drive.TruePose()
		gomega.Expect(x).To(gomega.BeNumerically("~", 0.3, 0.02))
		gomega.Expect(y).To(gomega.BeNumerically("~", 0, 0.01))
		gomega.Expect(theta).To(gomega.BeNumerically("~", 0, units.Degrees(2)))

		gomega.Eventually(func() float64 { return ctrl.Pose().X }, time.Second, 10*time.Millisecond).
			Should(gomega.BeNumerically("~", x, 0.005))
		gomega.Expect(ctrl.Mode()).To(gomega.BeEmpty())
	})

	ginkgo.It("turns in place", func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		gomega.Expect(ctrl.TurnAngle(ctx, math.Pi/2)).To(gomega.Succeed())

		x, y, theta := drive.TruePose()
		gomega.Expect(theta).To(gomega.BeNumerically("~", math.Pi/2, units.Degrees(3)))
		gomega.Expect(math.Hypot(x, y)).To(gomega.BeNumerically("<", 0.01))

		gomega.Eventually(func() float64 { return ctrl.Pose().Theta }, time.Second, 10*time.Millisecond).
			Should(gomega.BeNumerically("~", theta, units.Degrees(1)))
	})

	ginkgo.It("reports the active loop and rejects overlapping motions", func() {
		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() { done <- ctrl.MoveDistance(ctx, 2) }()

		gomega.Eventually(ctrl.Mode, time.Second, time.Millisecond).Should(gomega.Equal("distance"))
		gomega.Expect(ctrl.TurnAngle(context.Background(), 1)).To(gomega.MatchError(ErrBusy))

		gomega.Eventually(func() float64 { return ctrl.Snapshot().Input }, time.Second, 5*time.Millisecond).
			Should(gomega.BeNumerically(">", 0.05))
		s := ctrl.Snapshot()
		gomega.Expect(s.Mode).To(gomega.Equal("distance"))
		gomega.Expect(s.Target).To(gomega.Equal(2.0))

		cancel()
		gomega.Eventually(done, time.Second).Should(gomega.Receive(gomega.MatchError(context.Canceled)))
	})

	ginkgo.It("stops the motors when a motion times out", func() {
		ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
		defer cancel()

		err := ctrl.MoveDistance(ctx, 5)
		gomega.Expect(err).To(gomega.MatchError(context.DeadlineExceeded))
		gomega.Expect(ctrl.Mode()).To(gomega.BeEmpty())

		l, r := drive.Commands()
		gomega.Expect(l).To(gomega.BeZero())
		gomega.Expect(r).To(gomega.BeZero())
	})

	ginkgo.It("can be closed more than once", func() {
		gomega.Expect(ctrl.Close()).To(gomega.Succeed())
		gomega.Expect(ctrl.Close()).To(gomega.Succeed())
	})
})

var _ = ginkgo.Describe("Controller with heading odometry", func() {
	ginkgo.It("closes the pose engine it owns", func() {
		drive := newSimDrive()
		defer drive.Close()

		heading, err := odometry.NewHeadingOdometry(drive, testScales(), nil)
		gomega.Expect(err).NotTo(gomega.HaveOccurred())

		ctrl, err := New(drive, heading, testConfig(), logr.Discard())
		gomega.Expect(err).NotTo(gomega.HaveOccurred())

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		gomega.Expect(ctrl.MoveDistance(ctx, 0.2)).To(gomega.Succeed())
		gomega.Eventually(func() float64 { return ctrl.Pose().X }, time.Second, 10*time.Millisecond).
			Should(gomega.BeNumerically("~", 0.2, 0.02))

		gomega.Expect(ctrl.Close()).To(gomega.Succeed())
		gomega.Expect(heading.Close()).To(gomega.Succeed())
	})
})
