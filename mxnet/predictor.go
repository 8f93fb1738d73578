package mxnet

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"sync"
)

// ModelArtifacts locates a serialized model on disk. Discovery and
// existence checks are the caller's concern; both files are expected to
// exist by the time NewPredictor runs.
type ModelArtifacts struct {
	// SymbolPath is the path of the serialized symbol graph (JSON).
	SymbolPath string

	// ParamsPath is the path of the serialized parameter blob.
	ParamsPath string
}

// PredictorOption configures a Predictor at construction.
type PredictorOption func(*predictorConfig)

type predictorConfig struct {
	device Device
}

// WithDevice selects the device the predictor executes on.
// The default is the CPU.
func WithDevice(device Device) PredictorOption {
	return func(c *predictorConfig) {
		c.device = device
	}
}

// Predictor runs batched inference against a model, rebinding its native
// graph on demand whenever the incoming batch extent differs from the one
// currently bound.
//
// A Predictor is safe for concurrent use: any number of goroutines may call
// Predict and PredictBatch against the same instance. Each call holds the
// predictor's critical section from extent inspection through graph
// execution, so the graph is never executed against shape-mismatched
// buffers.
type Predictor struct {
	runtime    *Runtime
	device     Device
	symbolJSON []byte
	params     []byte
	descs      []DataDesc // canonical: batch extent normalized to 1
	batchAxis  int

	mu     sync.Mutex
	graph  *boundGraph
	extent int64
	closed bool
}

// NewPredictor loads the model artifacts and binds an initial graph at
// batch extent 1.
//
// The descriptor set is canonicalized first: descriptors that designate a
// batch axis must agree on the axis and its extent, and the extent is
// normalized to 1 for the initial binding regardless of what they declare.
// If no descriptor designates a batch axis, a leading axis of extent 1 is
// prepended to every input ("CHW" becomes "NCHW"); note this changes the
// logical rank of every input, and subsequent rebind decisions treat that
// synthesized axis as the batch axis.
func NewPredictor(r *Runtime, model ModelArtifacts, descs []DataDesc, opts ...PredictorOption) (*Predictor, error) {
	if r.closed.Load() {
		return nil, ErrRuntimeClosed
	}

	config := &predictorConfig{device: CPU()}
	for _, opt := range opts {
		opt(config)
	}

	canonical, batchAxis, err := normalizeDescriptors(descs)
	if err != nil {
		return nil, err
	}

	symbolJSON, err := os.ReadFile(model.SymbolPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read symbol file: %w", err)
	}
	params, err := os.ReadFile(model.ParamsPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read params file: %w", err)
	}

	graph, err := newBoundGraph(r, symbolJSON, params, config.device, canonical, 1)
	if err != nil {
		return nil, err
	}

	return &Predictor{
		runtime:    r,
		device:     config.device,
		symbolJSON: symbolJSON,
		params:     params,
		descs:      canonical,
		batchAxis:  batchAxis,
		graph:      graph,
		extent:     1,
	}, nil
}

// Descriptors returns the canonicalized descriptor set the predictor was
// constructed with, including any synthesized batch axis.
func (p *Predictor) Descriptors() []DataDesc {
	out := make([]DataDesc, len(p.descs))
	for i, d := range p.descs {
		d.Shape = slices.Clone(d.Shape)
		out[i] = d
	}
	return out
}

// BoundBatchExtent returns the batch extent the graph is currently bound to.
func (p *Predictor) BoundBatchExtent() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.extent
}

// Predict runs inference over one batch element per input, supplied as flat
// float32 buffers in descriptor order. Each buffer must hold exactly one
// batch element's worth of data (the product of the descriptor's non-batch
// dimensions); violations fail with a ShapeError before any native call.
//
// The predictor is rebound to batch extent 1 for the call if needed and
// restored to its previous extent afterwards. Intermediate native arrays
// created for the inputs are disposed before returning.
//
// It returns one flat buffer per graph output, in output order. ctx is
// checked before any work starts; the native execution itself is not
// cancellable, and abandoning the call does not retract it.
func (p *Predictor) Predict(ctx context.Context, inputs [][]float32) ([][]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(inputs) != len(p.descs) {
		return nil, shapeErrorf("got %d input buffers, model expects %d", len(inputs), len(p.descs))
	}
	for i, d := range p.descs {
		if want := d.elementsPerBatch(); int64(len(inputs[i])) != want {
			return nil, shapeErrorf("input %q has %d elements, expected %d for one batch element",
				d.Name, len(inputs[i]), want)
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, ErrPredictorClosed
	}

	arrays := make([]*NDArray, 0, len(inputs))
	defer func() {
		for _, a := range arrays {
			a.Dispose()
		}
	}()
	for i, d := range p.descs {
		a, err := newNDArrayWithDType(p.runtime, inputs[i], d.shapeSansBatch(), d.DType, CPU())
		if err != nil {
			return nil, err
		}
		arrays = append(arrays, a)
	}

	prev := p.extent
	if prev != 1 {
		if err := p.rebindLocked(1); err != nil {
			return nil, err
		}
	}

	outputs, err := p.executeLocked(arrays)

	if prev != 1 {
		if restoreErr := p.rebindLocked(prev); restoreErr != nil {
			// The predictor stays consistently bound at extent 1; the next
			// call at the previous extent will rebind again.
			p.runtime.logger.Warn("failed to restore batch extent after predict",
				slog.Int64("extent", prev),
				slog.String("error", restoreErr.Error()),
			)
		}
	}
	return outputs, err
}

// PredictBatch runs inference over a batch of native arrays, one per input
// descriptor. All inputs must share the same batch extent; the remaining
// dimensions must match the descriptor's non-batch shape. If the shared
// extent differs from the currently bound one, the graph is rebound to it
// first and stays there (steady-state batched traffic does not bounce the
// binding back).
//
// The caller retains ownership of the input arrays. The returned output
// arrays are newly allocated and owned by the caller, who must dispose
// them.
func (p *Predictor) PredictBatch(ctx context.Context, inputs []*NDArray) ([]*NDArray, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	batch, err := p.validateBatch(inputs)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, ErrPredictorClosed
	}

	if batch != p.extent {
		if err := p.rebindLocked(batch); err != nil {
			return nil, err
		}
	}

	if err := p.setInputsLocked(inputs); err != nil {
		return nil, err
	}
	if err := p.graph.forward(); err != nil {
		return nil, err
	}

	n, err := p.graph.outputCount()
	if err != nil {
		return nil, err
	}
	outputs := make([]*NDArray, 0, n)
	for i := range n {
		data, shape, err := p.graph.getOutput(i)
		if err == nil {
			var a *NDArray
			a, err = NewNDArray(p.runtime, data, shape)
			if err == nil {
				outputs = append(outputs, a)
				continue
			}
		}
		for _, a := range outputs {
			a.Dispose()
		}
		return nil, err
	}
	return outputs, nil
}

// validateBatch checks the arity, batch extents and per-element shapes of a
// native-array input set and returns the shared batch extent.
func (p *Predictor) validateBatch(inputs []*NDArray) (int64, error) {
	if len(inputs) != len(p.descs) {
		return 0, shapeErrorf("got %d input arrays, model expects %d", len(inputs), len(p.descs))
	}

	batch := int64(0)
	for i, d := range p.descs {
		a := inputs[i]
		if err := a.ensureUsable(); err != nil {
			return 0, err
		}

		axis := d.BatchAxis()
		shape := a.shape
		if axis < 0 {
			if !slices.Equal(shape, d.Shape) {
				return 0, shapeErrorf("input %q has shape %v, expected %v", d.Name, shape, d.Shape)
			}
			continue
		}
		if len(shape) != len(d.Shape) {
			return 0, shapeErrorf("input %q has rank %d, expected %d", d.Name, len(shape), len(d.Shape))
		}
		if batch == 0 {
			batch = shape[axis]
		} else if shape[axis] != batch {
			return 0, shapeErrorf("input %q has batch extent %d, others have %d", d.Name, shape[axis], batch)
		}
		want := d.withBatchExtent(shape[axis]).Shape
		if !slices.Equal(shape, want) {
			return 0, shapeErrorf("input %q has shape %v, expected %v", d.Name, shape, want)
		}
	}
	if batch == 0 {
		return 0, shapeErrorf("no input designates a batch axis")
	}
	return batch, nil
}

// rebindLocked replaces the bound graph with one bound at extent. On
// failure the current graph and extent are untouched (replace-or-fail).
// The old graph is not disposed here: its handle is released through the
// tracking registry once nothing references it, the same as any proxy.
func (p *Predictor) rebindLocked(extent int64) error {
	next, err := p.graph.rebind(extent)
	if err != nil {
		return err
	}
	p.graph = next
	p.extent = extent
	return nil
}

// executeLocked feeds the input arrays to the bound graph, runs it, and
// copies every output into a flat buffer.
func (p *Predictor) executeLocked(inputs []*NDArray) ([][]float32, error) {
	if err := p.setInputsLocked(inputs); err != nil {
		return nil, err
	}
	if err := p.graph.forward(); err != nil {
		return nil, err
	}

	n, err := p.graph.outputCount()
	if err != nil {
		return nil, err
	}
	outputs := make([][]float32, n)
	for i := range n {
		data, _, err := p.graph.getOutput(i)
		if err != nil {
			return nil, err
		}
		outputs[i] = data
	}
	return outputs, nil
}

func (p *Predictor) setInputsLocked(inputs []*NDArray) error {
	for i, d := range p.descs {
		data, err := inputs[i].Data()
		if err != nil {
			return err
		}
		if err := p.graph.setInput(d.Name, data); err != nil {
			return err
		}
	}
	return nil
}

// Close releases the predictor's bound graph. It is safe to call Close
// multiple times. In-flight calls finish before Close acquires the
// critical section.
func (p *Predictor) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	return p.graph.dispose()
}
