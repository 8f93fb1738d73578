package mxnet

import (
	"fmt"
	"sync/atomic"
	"unsafe"

	"github.com/nswamy/incubator-mxnet/internal/cstrings"
	"github.com/nswamy/incubator-mxnet/mxnet/internal/api"
)

// boundGraph is a native computation graph bound to concrete buffers at a
// fixed batch extent. It is replaced, never mutated, when the extent
// changes: rebind produces a new boundGraph from the old handle and the
// caller drops the old one, whose handle is then reclaimed through the
// graph registry like any other proxy.
//
// Access must be serialized by the owning Predictor's critical section.
type boundGraph struct {
	runtime *Runtime
	handle  api.PredictorHandle
	extent  int64
	descs   []DataDesc // batched at extent

	regID      uint64
	numOutputs int // 0 until discovered

	disposed atomic.Bool
}

// newBoundGraph binds the symbol graph and parameters at the given
// descriptor set, whose batch axes must already carry extent.
func newBoundGraph(r *Runtime, symbolJSON, params []byte, device Device, descs []DataDesc, extent int64) (*boundGraph, error) {
	keyPtrs, indPtr, shapeData := shapeCSR(descs)

	var paramPtr unsafe.Pointer
	if len(params) > 0 {
		paramPtr = unsafe.Pointer(&params[0])
	}
	symbolCStr := cstrings.CString(string(symbolJSON))

	var handle api.PredictorHandle
	status := r.funcs.PredCreate(&symbolCStr[0], paramPtr, int32(len(params)),
		int32(device.Type), int32(device.ID),
		uint32(len(descs)), &keyPtrs[0], &indPtr[0], &shapeData[0], &handle)
	if err := r.statusError(status, "MXPredCreate"); err != nil {
		return nil, fmt.Errorf("failed to bind graph: %w", err)
	}

	return wrapBoundGraph(r, handle, descs, extent), nil
}

// rebind produces a new boundGraph bound at extent, recomputing every
// descriptor's shape with the batch axis replaced. The native layer is
// asked for a fresh binding; buffers of the old graph are reused only where
// shapes are unchanged. On failure the receiver is untouched and remains
// valid.
func (g *boundGraph) rebind(extent int64) (*boundGraph, error) {
	if err := g.ensureUsable(); err != nil {
		return nil, err
	}

	descs := make([]DataDesc, len(g.descs))
	for i, d := range g.descs {
		descs[i] = d.withBatchExtent(extent)
	}
	keyPtrs, indPtr, shapeData := shapeCSR(descs)

	var handle api.PredictorHandle
	status := g.runtime.funcs.PredReshape(uint32(len(descs)), &keyPtrs[0], &indPtr[0], &shapeData[0],
		g.handle, &handle)
	if err := g.runtime.statusError(status, "MXPredReshape"); err != nil {
		return nil, &RebindError{Extent: extent, Err: err}
	}

	return wrapBoundGraph(g.runtime, handle, descs, extent), nil
}

func wrapBoundGraph(r *Runtime, handle api.PredictorHandle, descs []DataDesc, extent int64) *boundGraph {
	g := &boundGraph{
		runtime: r,
		handle:  handle,
		extent:  extent,
		descs:   descs,
	}
	g.regID = register(r.graphs, g, uintptr(handle))
	r.ensureReclaimer()
	return g
}

// setInput copies one input buffer into the graph's bound argument buffer.
func (g *boundGraph) setInput(name string, data []float32) error {
	if err := g.ensureUsable(); err != nil {
		return err
	}
	key := cstrings.CString(name)
	status := g.runtime.funcs.PredSetInput(g.handle, &key[0], &data[0], uint32(len(data)))
	if err := g.runtime.statusError(status, "MXPredSetInput"); err != nil {
		return fmt.Errorf("failed to set input %q: %w", name, err)
	}
	return nil
}

// forward executes the graph against its currently bound buffers.
func (g *boundGraph) forward() error {
	if err := g.ensureUsable(); err != nil {
		return err
	}
	status := g.runtime.funcs.PredForward(g.handle)
	if err := g.runtime.statusError(status, "MXPredForward"); err != nil {
		return fmt.Errorf("failed to execute graph: %w", err)
	}
	return nil
}

// outputCount discovers the number of graph outputs by probing output
// shapes until the native layer rejects the index. The count is cached.
func (g *boundGraph) outputCount() (int, error) {
	if g.numOutputs > 0 {
		return g.numOutputs, nil
	}
	if err := g.ensureUsable(); err != nil {
		return 0, err
	}

	n := 0
	for {
		var shapeData unsafe.Pointer
		var ndim uint32
		status := g.runtime.funcs.PredGetOutputShape(g.handle, uint32(n), &shapeData, &ndim)
		if status != api.StatusOK {
			break
		}
		n++
	}
	if n == 0 {
		return 0, g.runtime.lastError("MXPredGetOutputShape")
	}
	g.numOutputs = n
	return n, nil
}

// outputShape returns the shape of output index at the current binding.
func (g *boundGraph) outputShape(index int) ([]int64, error) {
	if err := g.ensureUsable(); err != nil {
		return nil, err
	}

	var shapeData unsafe.Pointer
	var ndim uint32
	status := g.runtime.funcs.PredGetOutputShape(g.handle, uint32(index), &shapeData, &ndim)
	if err := g.runtime.statusError(status, "MXPredGetOutputShape"); err != nil {
		return nil, fmt.Errorf("failed to get output shape %d: %w", index, err)
	}

	dims := unsafe.Slice((*uint32)(shapeData), ndim)
	shape := make([]int64, ndim)
	for i, d := range dims {
		shape[i] = int64(d)
	}
	return shape, nil
}

// getOutput copies output index into a fresh float32 buffer and returns it
// with its shape.
func (g *boundGraph) getOutput(index int) ([]float32, []int64, error) {
	shape, err := g.outputShape(index)
	if err != nil {
		return nil, nil, err
	}

	out := make([]float32, shapeProduct(shape))
	status := g.runtime.funcs.PredGetOutput(g.handle, uint32(index), &out[0], uint32(len(out)))
	if err := g.runtime.statusError(status, "MXPredGetOutput"); err != nil {
		return nil, nil, fmt.Errorf("failed to get output %d: %w", index, err)
	}
	return out, shape, nil
}

// dispose releases the native graph immediately. Safe to call repeatedly.
func (g *boundGraph) dispose() error {
	if !g.disposed.CompareAndSwap(false, true) {
		return nil
	}
	return g.runtime.graphs.dispose(g.regID)
}

func (g *boundGraph) ensureUsable() error {
	if g.disposed.Load() {
		return ErrDisposed
	}
	return nil
}

// shapeCSR lowers a descriptor set into the CSR form the C predict API
// expects: per-input name pointers, an index pointer with one entry per
// input plus a terminator, and the concatenated dimension data.
func shapeCSR(descs []DataDesc) ([]*byte, []uint32, []uint32) {
	keyPtrs := make([]*byte, len(descs))
	indPtr := make([]uint32, len(descs)+1)
	var shapeData []uint32

	for i, d := range descs {
		key := cstrings.CString(d.Name)
		keyPtrs[i] = &key[0]
		shapeData = append(shapeData, shapeToUint32(d.Shape)...)
		indPtr[i+1] = uint32(len(shapeData))
	}
	return keyPtrs, indPtr, shapeData
}
