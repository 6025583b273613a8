// Package analysis characterises recorded closed-loop step responses.
//
// The package works on parallel sample columns (time, target, measured input
// and controller output) as produced by storage.Columns:
//
//   - [StepResponse]: rise time, overshoot, settling time and error statistics
//   - [Evaluate]: a single named metric, used as a tuning cost
//   - [DominantFrequency]: the strongest oscillation in a signal
//
// # Tuning Cost
//
// Any name listed by [MetricNames] can be minimised by the gain tuner:
//
//	cost, err := analysis.Evaluate("itae", times, targets, inputs, outputs)
//	if err != nil {
//	    return err
//	}
package analysis
