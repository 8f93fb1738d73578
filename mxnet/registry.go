package mxnet

import (
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"
)

// notificationBuffer is the capacity of a registry's notification channel.
// Cleanup callbacks must never block, so notifications that do not fit are
// diverted to the locked overflow queue instead.
const notificationBuffer = 1024

// resourceRegistry tracks the native handle behind every live proxy of one
// resource kind and guarantees the handle is freed at most once, whichever
// of the two disposal paths runs first: an explicit Dispose, or a reclaim
// after the garbage collector finds the proxy unreachable.
//
// Each registered proxy gets a cleanup record (via runtime.AddCleanup) that
// posts the entry id onto the notification channel once the proxy becomes
// unreachable. The record deliberately captures only the registry and the
// id, never the proxy, so it does not keep the proxy alive. The background
// reclaimer drains the channel periodically and frees any handle whose
// entry is still present.
//
// All methods are safe for concurrent use.
type resourceRegistry struct {
	kind   string
	free   func(uintptr) error
	logger *slog.Logger

	mu       sync.Mutex
	entries  map[uint64]uintptr
	overflow []uint64

	nextID        atomic.Uint64
	notifications chan uint64

	reclaimed       atomic.Int64
	releaseFailures atomic.Int64
}

func newResourceRegistry(kind string, free func(uintptr) error, logger *slog.Logger) *resourceRegistry {
	return &resourceRegistry{
		kind:          kind,
		free:          free,
		logger:        logger,
		entries:       make(map[uint64]uintptr),
		notifications: make(chan uint64, notificationBuffer),
	}
}

// register records that owner wraps handle and installs the unreachability
// record. It returns the entry id used for explicit disposal. It is a
// generic function rather than a method because runtime.AddCleanup needs
// the owner's concrete pointer type and methods cannot have type parameters.
func register[T any](r *resourceRegistry, owner *T, handle uintptr) uint64 {
	id := r.nextID.Add(1)

	r.mu.Lock()
	r.entries[id] = handle
	r.mu.Unlock()

	runtime.AddCleanup(owner, func(id uint64) { r.notifyUnreachable(id) }, id)
	return id
}

func (r *resourceRegistry) notifyUnreachable(id uint64) {
	select {
	case r.notifications <- id:
	default:
		r.mu.Lock()
		r.overflow = append(r.overflow, id)
		r.mu.Unlock()
	}
}

// dispose removes the entry and frees its handle. Calling it for an entry
// that has already been disposed or reclaimed is a no-op.
func (r *resourceRegistry) dispose(id uint64) error {
	r.mu.Lock()
	handle, ok := r.entries[id]
	if !ok {
		r.mu.Unlock()
		return nil
	}
	delete(r.entries, id)
	err := r.free(handle)
	r.mu.Unlock()

	if err != nil {
		r.releaseFailures.Add(1)
		relErr := &ReleaseError{Kind: r.kind, Err: err}
		r.logger.Error("failed to release native handle",
			slog.String("kind", r.kind),
			slog.String("error", err.Error()),
		)
		return relErr
	}
	return nil
}

// drain processes every pending unreachability notification, freeing the
// handles of entries that were never explicitly disposed. It returns the
// number of handles reclaimed. Release failures are logged and counted but
// do not abort the drain.
func (r *resourceRegistry) drain() int {
	r.mu.Lock()
	pending := r.overflow
	r.overflow = nil
	r.mu.Unlock()

	for {
		select {
		case id := <-r.notifications:
			pending = append(pending, id)
		default:
			released := 0
			for _, id := range pending {
				r.mu.Lock()
				handle, ok := r.entries[id]
				if !ok {
					r.mu.Unlock()
					continue
				}
				delete(r.entries, id)
				err := r.free(handle)
				r.mu.Unlock()

				if err != nil {
					r.releaseFailures.Add(1)
					r.logger.Error("failed to reclaim native handle",
						slog.String("kind", r.kind),
						slog.String("error", err.Error()),
					)
					continue
				}
				released++
			}
			r.reclaimed.Add(int64(released))
			return released
		}
	}
}

// live returns the number of handles currently tracked.
func (r *resourceRegistry) live() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// stats returns a snapshot of the registry's counters.
func (r *resourceRegistry) stats() RegistryStats {
	return RegistryStats{
		Kind:            r.kind,
		Live:            r.live(),
		Reclaimed:       r.reclaimed.Load(),
		ReleaseFailures: r.releaseFailures.Load(),
	}
}

// RegistryStats is a snapshot of one tracking registry's counters.
type RegistryStats struct {
	// Kind is the resource kind the registry tracks.
	Kind string
	// Live is the number of native handles currently tracked.
	Live int
	// Reclaimed is the total number of handles freed by the background
	// reclaimer rather than by an explicit Dispose.
	Reclaimed int64
	// ReleaseFailures is the total number of native frees that reported an
	// error. Each such resource is presumed leaked.
	ReleaseFailures int64
}
