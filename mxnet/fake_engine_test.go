package mxnet

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
	"unsafe"

	"github.com/nswamy/incubator-mxnet/mxnet/internal/api"
)

// fakeEngine is an in-memory stand-in for libmxnet. Its model has one graph
// with two outputs, both shaped like the first input: output 0 is the
// elementwise transform 2*x+1 of the first input, output 1 is a copy of it.
// It validates buffer sizes against the bound shapes the way the native
// library would, and counts create/reshape/free calls so tests can assert
// on the bind contract.
type fakeEngine struct {
	mu         sync.Mutex
	lastErr    []byte
	nextHandle uintptr

	arrays map[api.NDArrayHandle]*fakeArray
	graphs map[api.PredictorHandle]*fakeGraph

	createCalls  int
	reshapeCalls int
	forwardCalls int
	graphFrees   int
	arrayFrees   int
	doubleFrees  int

	failNextReshape  bool
	failArrayFree    bool
	panicOnArrayFree bool
}

type fakeArray struct {
	shape []uint32
	dtype int32
	data  []byte
}

type fakeGraph struct {
	keys      []string
	shapes    map[string][]uint32
	inputs    map[string][]float32
	outputs   [][]float32
	outShapes [][]uint32
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{
		lastErr: []byte{0},
		arrays:  make(map[api.NDArrayHandle]*fakeArray),
		graphs:  make(map[api.PredictorHandle]*fakeGraph),
	}
}

var _ api.Funcs = (*fakeEngine)(nil)

func (e *fakeEngine) fail(format string, args ...any) api.Status {
	e.lastErr = append([]byte(fmt.Sprintf(format, args...)), 0)
	return 1
}

func (e *fakeEngine) GetLastError() unsafe.Pointer {
	e.mu.Lock()
	defer e.mu.Unlock()
	return unsafe.Pointer(&e.lastErr[0])
}

func goStrings(keys **byte, n uint32) []string {
	ptrs := unsafe.Slice(keys, n)
	out := make([]string, n)
	for i, p := range ptrs {
		b := p
		var buf []byte
		for j := 0; ; j++ {
			c := *(*byte)(unsafe.Add(unsafe.Pointer(b), j))
			if c == 0 {
				break
			}
			buf = append(buf, c)
		}
		out[i] = string(buf)
	}
	return out
}

func csrShapes(keys []string, indPtr *uint32, shapeData *uint32) map[string][]uint32 {
	ind := unsafe.Slice(indPtr, len(keys)+1)
	data := unsafe.Slice(shapeData, ind[len(keys)])
	shapes := make(map[string][]uint32, len(keys))
	for i, k := range keys {
		dims := data[ind[i]:ind[i+1]]
		shapes[k] = append([]uint32(nil), dims...)
	}
	return shapes
}

func product(dims []uint32) int {
	n := 1
	for _, d := range dims {
		n *= int(d)
	}
	return n
}

func elemSize(dtype int32) int {
	switch DType(dtype) {
	case DTypeFloat64, DTypeInt64:
		return 8
	case DTypeFloat16:
		return 2
	case DTypeUint8, DTypeInt8:
		return 1
	default:
		return 4
	}
}

func (e *fakeEngine) newGraph(keys []string, shapes map[string][]uint32) api.PredictorHandle {
	e.nextHandle++
	h := api.PredictorHandle(e.nextHandle)
	first := shapes[keys[0]]
	e.graphs[h] = &fakeGraph{
		keys:      keys,
		shapes:    shapes,
		inputs:    make(map[string][]float32),
		outShapes: [][]uint32{append([]uint32(nil), first...), append([]uint32(nil), first...)},
	}
	return h
}

func (e *fakeEngine) PredCreate(symbolJSON *byte, _ unsafe.Pointer, _ int32, _ int32, _ int32,
	numInputs uint32, inputKeys **byte, shapeIndPtr *uint32, shapeData *uint32,
	out *api.PredictorHandle) api.Status {
	e.mu.Lock()
	defer e.mu.Unlock()

	if symbolJSON == nil || *symbolJSON == 0 {
		return e.fail("empty symbol graph")
	}
	e.createCalls++
	keys := goStrings(inputKeys, numInputs)
	*out = e.newGraph(keys, csrShapes(keys, shapeIndPtr, shapeData))
	return api.StatusOK
}

func (e *fakeEngine) PredReshape(numInputs uint32, inputKeys **byte, shapeIndPtr *uint32, shapeData *uint32,
	handle api.PredictorHandle, out *api.PredictorHandle) api.Status {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.reshapeCalls++
	if e.failNextReshape {
		e.failNextReshape = false
		return e.fail("infer shape failed for requested extents")
	}
	if _, ok := e.graphs[handle]; !ok {
		return e.fail("invalid predictor handle")
	}
	keys := goStrings(inputKeys, numInputs)
	*out = e.newGraph(keys, csrShapes(keys, shapeIndPtr, shapeData))
	return api.StatusOK
}

func (e *fakeEngine) PredGetOutputShape(handle api.PredictorHandle, index uint32, shapeData *unsafe.Pointer, ndim *uint32) api.Status {
	e.mu.Lock()
	defer e.mu.Unlock()

	g, ok := e.graphs[handle]
	if !ok {
		return e.fail("invalid predictor handle")
	}
	if int(index) >= len(g.outShapes) {
		return e.fail("output index %d out of range", index)
	}
	shape := g.outShapes[index]
	*shapeData = unsafe.Pointer(&shape[0])
	*ndim = uint32(len(shape))
	return api.StatusOK
}

func (e *fakeEngine) PredSetInput(handle api.PredictorHandle, key *byte, data *float32, size uint32) api.Status {
	e.mu.Lock()
	defer e.mu.Unlock()

	g, ok := e.graphs[handle]
	if !ok {
		return e.fail("invalid predictor handle")
	}
	name := goStrings(&key, 1)[0]
	shape, ok := g.shapes[name]
	if !ok {
		return e.fail("unknown input %q", name)
	}
	if int(size) != product(shape) {
		return e.fail("input %q has %d elements, bound shape %v requires %d", name, size, shape, product(shape))
	}
	g.inputs[name] = append([]float32(nil), unsafe.Slice(data, size)...)
	return api.StatusOK
}

func (e *fakeEngine) PredForward(handle api.PredictorHandle) api.Status {
	e.mu.Lock()
	defer e.mu.Unlock()

	g, ok := e.graphs[handle]
	if !ok {
		return e.fail("invalid predictor handle")
	}
	first, ok := g.inputs[g.keys[0]]
	if !ok {
		return e.fail("input %q not set", g.keys[0])
	}
	e.forwardCalls++

	transformed := make([]float32, len(first))
	for i, v := range first {
		transformed[i] = 2*v + 1
	}
	g.outputs = [][]float32{transformed, append([]float32(nil), first...)}
	return api.StatusOK
}

func (e *fakeEngine) PredGetOutput(handle api.PredictorHandle, index uint32, data *float32, size uint32) api.Status {
	e.mu.Lock()
	defer e.mu.Unlock()

	g, ok := e.graphs[handle]
	if !ok {
		return e.fail("invalid predictor handle")
	}
	if g.outputs == nil {
		return e.fail("forward has not run")
	}
	if int(index) >= len(g.outputs) {
		return e.fail("output index %d out of range", index)
	}
	out := g.outputs[index]
	if int(size) != len(out) {
		return e.fail("output buffer has %d elements, output has %d", size, len(out))
	}
	copy(unsafe.Slice(data, size), out)
	return api.StatusOK
}

func (e *fakeEngine) PredFree(handle api.PredictorHandle) api.Status {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.graphs[handle]; !ok {
		e.doubleFrees++
		return e.fail("invalid predictor handle")
	}
	delete(e.graphs, handle)
	e.graphFrees++
	return api.StatusOK
}

func (e *fakeEngine) NDArrayCreate(shape *uint32, ndim uint32, _ int32, _ int32, _ int32, dtype int32, out *api.NDArrayHandle) api.Status {
	e.mu.Lock()
	defer e.mu.Unlock()

	dims := append([]uint32(nil), unsafe.Slice(shape, ndim)...)
	e.nextHandle++
	h := api.NDArrayHandle(e.nextHandle)
	e.arrays[h] = &fakeArray{
		shape: dims,
		dtype: dtype,
		data:  make([]byte, product(dims)*elemSize(dtype)),
	}
	*out = h
	return api.StatusOK
}

func (e *fakeEngine) NDArraySyncCopyFromCPU(handle api.NDArrayHandle, data unsafe.Pointer, size uintptr) api.Status {
	e.mu.Lock()
	defer e.mu.Unlock()

	a, ok := e.arrays[handle]
	if !ok {
		return e.fail("invalid ndarray handle")
	}
	if int(size)*elemSize(a.dtype) != len(a.data) {
		return e.fail("copy of %d elements does not match array size", size)
	}
	copy(a.data, unsafe.Slice((*byte)(data), len(a.data)))
	return api.StatusOK
}

func (e *fakeEngine) NDArraySyncCopyToCPU(handle api.NDArrayHandle, data unsafe.Pointer, size uintptr) api.Status {
	e.mu.Lock()
	defer e.mu.Unlock()

	a, ok := e.arrays[handle]
	if !ok {
		return e.fail("invalid ndarray handle")
	}
	if int(size)*elemSize(a.dtype) != len(a.data) {
		return e.fail("copy of %d elements does not match array size", size)
	}
	copy(unsafe.Slice((*byte)(data), len(a.data)), a.data)
	return api.StatusOK
}

func (e *fakeEngine) NDArrayGetShape(handle api.NDArrayHandle, ndim *uint32, shapeData *unsafe.Pointer) api.Status {
	e.mu.Lock()
	defer e.mu.Unlock()

	a, ok := e.arrays[handle]
	if !ok {
		return e.fail("invalid ndarray handle")
	}
	*ndim = uint32(len(a.shape))
	*shapeData = unsafe.Pointer(&a.shape[0])
	return api.StatusOK
}

func (e *fakeEngine) NDArrayGetDType(handle api.NDArrayHandle, dtype *int32) api.Status {
	e.mu.Lock()
	defer e.mu.Unlock()

	a, ok := e.arrays[handle]
	if !ok {
		return e.fail("invalid ndarray handle")
	}
	*dtype = a.dtype
	return api.StatusOK
}

func (e *fakeEngine) NDArrayFree(handle api.NDArrayHandle) api.Status {
	e.mu.Lock()
	if e.panicOnArrayFree {
		e.mu.Unlock()
		panic("ndarray free exploded")
	}
	defer e.mu.Unlock()

	if _, ok := e.arrays[handle]; !ok {
		e.doubleFrees++
		return e.fail("invalid ndarray handle")
	}
	if e.failArrayFree {
		return e.fail("release refused")
	}
	delete(e.arrays, handle)
	e.arrayFrees++
	return api.StatusOK
}

func (e *fakeEngine) liveArrays() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.arrays)
}

func (e *fakeEngine) liveGraphs() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.graphs)
}

func (e *fakeEngine) counters() (create, reshape, forward int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.createCalls, e.reshapeCalls, e.forwardCalls
}

func (e *fakeEngine) frees() (graphs, arrays, double int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.graphFrees, e.arrayFrees, e.doubleFrees
}

func (e *fakeEngine) setFailNextReshape() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.failNextReshape = true
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestRuntime wires a Runtime around a fresh fake engine.
func newTestRuntime(t *testing.T) (*Runtime, *fakeEngine) {
	t.Helper()
	engine := newFakeEngine()
	rt := newRuntime(engine, &Config{
		ReclaimInterval: 10 * time.Millisecond,
		Logger:          testLogger(),
	})
	t.Cleanup(rt.Close)
	return rt, engine
}

// writeTestModel writes placeholder model artifacts to a temp directory.
func writeTestModel(t *testing.T) ModelArtifacts {
	t.Helper()
	dir := t.TempDir()
	symbolPath := filepath.Join(dir, "model-symbol.json")
	paramsPath := filepath.Join(dir, "model-0000.params")
	if err := os.WriteFile(symbolPath, []byte(`{"nodes": []}`), 0o644); err != nil {
		t.Fatalf("Failed to write symbol file: %v", err)
	}
	if err := os.WriteFile(paramsPath, []byte{0x12, 0x01, 0xC0, 0xDE}, 0o644); err != nil {
		t.Fatalf("Failed to write params file: %v", err)
	}
	return ModelArtifacts{SymbolPath: symbolPath, ParamsPath: paramsPath}
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, d time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}
