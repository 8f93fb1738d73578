package mxnet

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"
)

// PredictorPool manages a pool of predictors for one model. While a single
// Predictor already supports concurrent callers, every call serializes on
// its bound graph; a pool trades memory for throughput by binding the model
// n times and letting callers borrow an idle predictor per call.
//
// Example:
//
//	pool, err := mxnet.NewPredictorPool(rt, model, descs, 8, nil)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer pool.Close()
//
//	// Safe to call from many goroutines:
//	outputs, err := pool.Predict(ctx, inputs)
type PredictorPool struct {
	predictors chan *Predictor
	closed     atomic.Bool
	hooks      []Hook

	// metrics
	totalRuns    atomic.Int64
	totalErrors  atomic.Int64
	totalLatency atomic.Int64 // nanoseconds
}

// PoolConfig configures predictor pool behavior.
type PoolConfig struct {
	// PredictorOptions are applied to every predictor in the pool.
	PredictorOptions []PredictorOption

	// Hooks are called around every predict invocation.
	Hooks []Hook
}

// NewPredictorPool creates a pool of n predictors bound to the same model
// artifacts and descriptor set.
func NewPredictorPool(r *Runtime, model ModelArtifacts, descs []DataDesc, n int, config *PoolConfig) (*PredictorPool, error) {
	if n <= 0 {
		return nil, fmt.Errorf("pool size must be positive, got %d", n)
	}

	var opts []PredictorOption
	var hooks []Hook
	if config != nil {
		opts = config.PredictorOptions
		hooks = config.Hooks
	}

	pool := &PredictorPool{
		predictors: make(chan *Predictor, n),
		hooks:      hooks,
	}

	for i := 0; i < n; i++ {
		p, err := NewPredictor(r, model, descs, opts...)
		if err != nil {
			pool.Close()
			return nil, fmt.Errorf("failed to create predictor %d: %w", i, err)
		}
		pool.predictors <- p
	}

	return pool, nil
}

// Predict borrows a predictor, runs the flat-buffer predict path, and
// returns the predictor to the pool. It blocks until a predictor is
// available or ctx is cancelled. Safe for concurrent use.
func (p *PredictorPool) Predict(ctx context.Context, inputs [][]float32) ([][]float32, error) {
	pred, err := p.borrow(ctx)
	if err != nil {
		return nil, err
	}
	defer p.giveBack(pred)

	info := &PredictInfo{Inputs: len(inputs)}
	for _, h := range p.hooks {
		h.BeforePredict(info)
	}

	start := time.Now()
	outputs, err := pred.Predict(ctx, inputs)
	p.record(info, len(outputs), time.Since(start), err)
	return outputs, err
}

// PredictBatch borrows a predictor, runs the native-array predict path, and
// returns the predictor to the pool. Output ownership follows
// Predictor.PredictBatch: the caller must dispose the returned arrays.
func (p *PredictorPool) PredictBatch(ctx context.Context, inputs []*NDArray) ([]*NDArray, error) {
	pred, err := p.borrow(ctx)
	if err != nil {
		return nil, err
	}
	defer p.giveBack(pred)

	info := &PredictInfo{Inputs: len(inputs)}
	for _, h := range p.hooks {
		h.BeforePredict(info)
	}

	start := time.Now()
	outputs, err := pred.PredictBatch(ctx, inputs)
	p.record(info, len(outputs), time.Since(start), err)
	return outputs, err
}

func (p *PredictorPool) borrow(ctx context.Context) (*Predictor, error) {
	if p.closed.Load() {
		return nil, fmt.Errorf("predictor pool is closed")
	}
	select {
	case pred := <-p.predictors:
		return pred, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (p *PredictorPool) giveBack(pred *Predictor) {
	if p.closed.Load() {
		pred.Close()
		return
	}
	p.predictors <- pred
}

func (p *PredictorPool) record(info *PredictInfo, outputs int, elapsed time.Duration, err error) {
	info.Duration = elapsed
	info.Error = err
	info.Outputs = outputs

	p.totalRuns.Add(1)
	p.totalLatency.Add(int64(elapsed))
	if err != nil {
		p.totalErrors.Add(1)
	}

	for _, h := range p.hooks {
		h.AfterPredict(info)
	}
}

// Size returns the total number of predictors in the pool.
func (p *PredictorPool) Size() int {
	return cap(p.predictors)
}

// Available returns the number of idle predictors currently available.
func (p *PredictorPool) Available() int {
	return len(p.predictors)
}

// Stats returns pool usage statistics.
func (p *PredictorPool) Stats() PoolStats {
	return PoolStats{
		TotalRuns:           p.totalRuns.Load(),
		TotalErrors:         p.totalErrors.Load(),
		TotalLatency:        time.Duration(p.totalLatency.Load()),
		PoolSize:            cap(p.predictors),
		AvailablePredictors: len(p.predictors),
	}
}

// PoolStats contains pool usage statistics.
type PoolStats struct {
	TotalRuns           int64
	TotalErrors         int64
	TotalLatency        time.Duration
	PoolSize            int
	AvailablePredictors int
}

// AvgLatency returns the average predict latency, or 0 if no calls have
// completed.
func (s PoolStats) AvgLatency() time.Duration {
	if s.TotalRuns == 0 {
		return 0
	}
	return s.TotalLatency / time.Duration(s.TotalRuns)
}

// Close drains the pool and closes all predictors.
func (p *PredictorPool) Close() {
	if !p.closed.CompareAndSwap(false, true) {
		return
	}

	close(p.predictors)
	for pred := range p.predictors {
		pred.Close()
	}
}
