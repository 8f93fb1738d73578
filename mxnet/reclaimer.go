package mxnet

import (
	"log/slog"
	"runtime"
	"sync/atomic"
	"time"
)

// defaultReclaimInterval is how often the background reclaimer runs when
// the Config does not override it.
const defaultReclaimInterval = 5 * time.Second

// reclaimer is the single background task that periodically surfaces and
// frees native handles whose proxies have become unreachable. One instance
// exists per Runtime; it is started lazily on first proxy registration and
// stopped by Runtime.Close.
//
// Each tick it requests a garbage collection pass so unreachable proxies
// reach the registries' notification channels promptly, then drains every
// registry. The forced collection is a latency optimization only;
// correctness does not depend on it.
type reclaimer struct {
	interval   time.Duration
	registries []*resourceRegistry
	logger     *slog.Logger

	stop    chan struct{}
	done    chan struct{}
	healthy atomic.Bool
}

func newReclaimer(interval time.Duration, registries []*resourceRegistry, logger *slog.Logger) *reclaimer {
	if interval <= 0 {
		interval = defaultReclaimInterval
	}
	r := &reclaimer{
		interval:   interval,
		registries: registries,
		logger:     logger,
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
	}
	r.healthy.Store(true)
	return r
}

func (r *reclaimer) start() {
	go r.run()
}

func (r *reclaimer) run() {
	defer close(r.done)
	defer func() {
		if v := recover(); v != nil {
			// The reclaim loop died: abandoned handles silently stop being
			// freed from here on. Latch the fault so operators can see it.
			r.healthy.Store(false)
			r.logger.Error("background reclaimer terminated unexpectedly",
				slog.Any("panic", v),
			)
		}
	}()

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.reclaim()
		case <-r.stop:
			// Final pass so handles already notified are not stranded.
			r.reclaim()
			return
		}
	}
}

// reclaim runs one collection-and-drain cycle.
func (r *reclaimer) reclaim() {
	runtime.GC()
	for _, reg := range r.registries {
		if n := reg.drain(); n > 0 {
			r.logger.Debug("reclaimed abandoned native handles",
				slog.String("kind", reg.kind),
				slog.Int("count", n),
			)
		}
	}
}

// shutdown stops the reclaim loop and waits for it to finish.
func (r *reclaimer) shutdown() {
	select {
	case <-r.done:
		// Loop already exited (possibly after a panic).
	default:
		close(r.stop)
		<-r.done
	}
}
