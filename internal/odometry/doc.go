// Package odometry estimates the 2-D pose of a skid-steer robot from
// incremental wheel-encoder ticks.
//
// Two engines implement [PoseIntegrator]:
//
//   - [Odometry] integrates each tick delta along an arc. It is stepped by
//     the caller (or by Run) and reads its sample time from a Timer.
//   - [HeadingOdometry] is the older heading-increment estimator. It samples
//     on its own goroutine every 10 ms and wraps its heading to [-π, π].
//
// Poses use x forward and theta positive clockwise. [StateMode] converts to
// and from the Cartesian convention where x and y are swapped.
//
// Neither engine touches its tick baseline on SetState; the pose and the
// encoder bookkeeping are independent.
package odometry
