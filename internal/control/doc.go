// Package control turns discrete control laws into self-scheduled,
// goroutine-safe closed-loop controllers.
//
//   - [IterativeController]: a pure per-sample law with no scheduling
//   - [PID]: the positional PID law
//   - [SettledUtil]: debounced convergence detection
//   - [AsyncWrapper]: runs a law on its own goroutine at a fixed period
//
// # Usage
//
//	ts := control.DefaultTimeSource()
//	pid := control.NewAsyncPosPID(input, output, ts, control.Gains{Kp: 1.5})
//	defer pid.Close()
//	pid.SetTarget(1.0)
//	err := pid.WaitUntilSettled(ctx)
//
// # Thread Safety
//
// AsyncWrapper methods may be called from any goroutine. The wrapped law is
// only ever touched by the wrapper's loop. Input and output collaborators are
// shared with the caller, who must keep them usable until Close returns.
package control
