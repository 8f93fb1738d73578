package mxnet

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nswamy/incubator-mxnet/internal/cstrings"
	"github.com/nswamy/incubator-mxnet/mxnet/internal/api"
	"github.com/nswamy/incubator-mxnet/mxnet/internal/api/libmxnet"
)

// Config configures a Runtime.
type Config struct {
	// LibraryPath overrides the MXNet shared library path.
	// If empty, the default system library name is used.
	LibraryPath string

	// ReclaimInterval is how often the background reclaimer frees native
	// handles whose proxies were abandoned without an explicit Dispose.
	// Zero means the default of 5 seconds.
	ReclaimInterval time.Duration

	// Logger receives release failures and reclaimer diagnostics.
	// If nil, slog.Default() is used.
	Logger *slog.Logger
}

func (c *Config) libraryPath() string {
	if c != nil {
		return c.LibraryPath
	}
	return ""
}

func (c *Config) reclaimInterval() time.Duration {
	if c != nil && c.ReclaimInterval > 0 {
		return c.ReclaimInterval
	}
	return defaultReclaimInterval
}

func (c *Config) logger() *slog.Logger {
	if c != nil && c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}

// Runtime owns the loaded MXNet library, the tracking registries for each
// native resource kind, and the background reclaimer that frees handles
// whose proxies were abandoned.
//
// A Runtime is safe for concurrent use. Close it when done; closing stops
// the reclaimer after a final reclaim pass.
type Runtime struct {
	funcs  api.Funcs
	logger *slog.Logger

	arrays *resourceRegistry
	graphs *resourceRegistry

	reclaimer      *reclaimer
	startReclaimer sync.Once
	started        atomic.Bool
	closed         atomic.Bool
}

// NewRuntime loads the MXNet shared library and prepares the resource
// tracking machinery. The reclaimer goroutine starts on first use.
func NewRuntime(config *Config) (*Runtime, error) {
	funcs, err := libmxnet.Load(config.libraryPath())
	if err != nil {
		return nil, fmt.Errorf("failed to create runtime: %w", err)
	}
	return newRuntime(funcs, config), nil
}

// newRuntime wires a Runtime around an arbitrary native function table.
func newRuntime(funcs api.Funcs, config *Config) *Runtime {
	r := &Runtime{
		funcs:  funcs,
		logger: config.logger(),
	}
	r.arrays = newResourceRegistry("ndarray", func(h uintptr) error {
		return r.statusError(funcs.NDArrayFree(api.NDArrayHandle(h)), "MXNDArrayFree")
	}, r.logger)
	r.graphs = newResourceRegistry("graph", func(h uintptr) error {
		return r.statusError(funcs.PredFree(api.PredictorHandle(h)), "MXPredFree")
	}, r.logger)
	r.reclaimer = newReclaimer(config.reclaimInterval(), []*resourceRegistry{r.arrays, r.graphs}, r.logger)
	return r
}

// ensureReclaimer starts the background reclaimer on first registration.
func (r *Runtime) ensureReclaimer() {
	r.startReclaimer.Do(func() {
		r.started.Store(true)
		r.reclaimer.start()
	})
}

// lastError builds a NativeError for the given C API function from the
// thread-local message of the native library.
func (r *Runtime) lastError(op string) *NativeError {
	return &NativeError{
		Op:      op,
		Message: cstrings.GoString(r.funcs.GetLastError()),
	}
}

// statusError converts a native status code to an error, or nil on success.
func (r *Runtime) statusError(status api.Status, op string) error {
	if status == api.StatusOK {
		return nil
	}
	return r.lastError(op)
}

// Reclaim runs one reclaim cycle immediately instead of waiting for the
// next tick: it requests a garbage collection pass and drains every
// registry. It is safe to call concurrently with the background reclaimer.
func (r *Runtime) Reclaim() {
	r.reclaimer.reclaim()
}

// Err reports the runtime's standing fault condition: it returns
// ErrReclaimerStopped if the background reclaimer has terminated
// unexpectedly (abandoned handles are no longer freed), and nil otherwise.
func (r *Runtime) Err() error {
	if r.started.Load() && !r.reclaimer.healthy.Load() {
		return ErrReclaimerStopped
	}
	return nil
}

// Stats returns a snapshot of the tracking registries' counters, one entry
// per resource kind.
func (r *Runtime) Stats() []RegistryStats {
	return []RegistryStats{
		r.arrays.stats(),
		r.graphs.stats(),
	}
}

// Close stops the background reclaimer after a final reclaim pass.
// It is safe to call Close multiple times.
//
// Close does not free handles whose proxies are still reachable; dispose
// those explicitly.
func (r *Runtime) Close() {
	if !r.closed.CompareAndSwap(false, true) {
		return
	}
	if r.started.Load() {
		r.reclaimer.shutdown()
	}
}
