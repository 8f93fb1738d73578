package mxnet

import "time"

// Hook provides callbacks around predict execution for observability.
// Implement this interface to add metrics, logging, or tracing.
type Hook interface {
	// BeforePredict is called before a predict call starts.
	BeforePredict(info *PredictInfo)

	// AfterPredict is called after a predict call completes (or fails).
	// Duration, Error, and Outputs are populated.
	AfterPredict(info *PredictInfo)
}

// PredictInfo contains information about one predict execution. Fields are
// progressively populated: Inputs is set before the call, Duration, Error
// and Outputs are set after.
type PredictInfo struct {
	// Inputs is the number of input buffers or arrays supplied.
	Inputs int
	// Outputs is the number of outputs produced, zero on failure.
	Outputs int
	// Duration is how long the call took.
	Duration time.Duration
	// Error is the call's error, nil on success.
	Error error
}

type hookFunc struct {
	fn func(*PredictInfo)
}

func (h *hookFunc) BeforePredict(_ *PredictInfo)   {}
func (h *hookFunc) AfterPredict(info *PredictInfo) { h.fn(info) }

// AfterPredictHook creates a Hook that calls fn after every predict call.
// This is a convenience for the common case where you only need AfterPredict.
func AfterPredictHook(fn func(*PredictInfo)) Hook {
	return &hookFunc{fn: fn}
}
