package mxnet

import (
	"errors"
	"fmt"
)

var (
	// ErrDisposed is returned when an operation is attempted on a proxy
	// whose native handle has already been released.
	ErrDisposed = errors.New("resource has been disposed")

	// ErrPredictorClosed is returned when an operation is attempted on a
	// closed predictor.
	ErrPredictorClosed = errors.New("predictor is closed")

	// ErrRuntimeClosed is returned when an operation is attempted on a
	// closed runtime.
	ErrRuntimeClosed = errors.New("runtime is closed")

	// ErrReclaimerStopped indicates the background reclaimer terminated
	// unexpectedly. Native resources abandoned without an explicit Dispose
	// are no longer reclaimed while this condition holds.
	ErrReclaimerStopped = errors.New("background reclaimer has stopped")
)

// NativeError represents an error reported by the MXNet C API.
type NativeError struct {
	// Op is the C API function that failed.
	Op string
	// Message is the message retrieved from MXGetLastError.
	Message string
}

func (e *NativeError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("mxnet: %s failed", e.Op)
	}
	return fmt.Sprintf("mxnet: %s failed: %s", e.Op, e.Message)
}

// ShapeError reports a mismatch between caller-supplied shapes or buffers
// and the predictor's input descriptors. It is returned before any native
// call is made; no predictor state is mutated.
type ShapeError struct {
	Reason string
}

func (e *ShapeError) Error() string {
	return "mxnet: shape mismatch: " + e.Reason
}

func shapeErrorf(format string, args ...any) *ShapeError {
	return &ShapeError{Reason: fmt.Sprintf(format, args...)}
}

// RebindError reports a failed attempt to rebind a predictor's graph to a
// new batch extent. The predictor remains bound at its previous extent.
type RebindError struct {
	// Extent is the batch extent the rebind attempted to reach.
	Extent int64
	// Err is the underlying native error.
	Err error
}

func (e *RebindError) Error() string {
	return fmt.Sprintf("mxnet: failed to rebind graph to batch extent %d: %v", e.Extent, e.Err)
}

func (e *RebindError) Unwrap() error {
	return e.Err
}

// ReleaseError reports a native free that failed during disposal or reclaim.
// The underlying resource is presumed leaked.
type ReleaseError struct {
	// Kind is the resource kind ("ndarray", "graph").
	Kind string
	// Err is the underlying native error.
	Err error
}

func (e *ReleaseError) Error() string {
	return fmt.Sprintf("mxnet: failed to release %s handle: %v", e.Kind, e.Err)
}

func (e *ReleaseError) Unwrap() error {
	return e.Err
}
