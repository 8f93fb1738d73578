package mxnet

import (
	"fmt"
	"sync/atomic"
	"unsafe"

	"github.com/x448/float16"

	"github.com/nswamy/incubator-mxnet/mxnet/internal/api"
)

// NDArray wraps one native MXNet array handle.
//
// An NDArray is NOT safe for concurrent use. Do not share across goroutines.
//
// Dispose releases the native memory immediately and is safe to call more
// than once. An NDArray that is abandoned without Dispose is freed by the
// runtime's background reclaimer once the garbage collector finds it
// unreachable; explicit disposal is still strongly recommended to release
// native memory promptly. Any operation on a disposed NDArray returns
// ErrDisposed without touching the stale handle.
//
// NDArrays are not copyable by value; use Copy to duplicate one into a new
// native allocation.
type NDArray struct {
	runtime *Runtime
	handle  api.NDArrayHandle
	shape   []int64
	dtype   DType
	device  Device
	regID   uint64

	disposed atomic.Bool
}

// NewNDArray allocates a float32 array of the given shape on the CPU and
// copies data into it. The length of data must equal the shape product.
func NewNDArray(r *Runtime, data []float32, shape []int64) (*NDArray, error) {
	return newNDArrayWithDType(r, data, shape, DTypeFloat32, CPU())
}

// NewNDArrayFloat16 allocates a float16 array of the given shape on the CPU
// from float32 data, converting each element to half precision.
func NewNDArrayFloat16(r *Runtime, data []float32, shape []int64) (*NDArray, error) {
	return newNDArrayWithDType(r, data, shape, DTypeFloat16, CPU())
}

func newNDArrayWithDType(r *Runtime, data []float32, shape []int64, dtype DType, device Device) (*NDArray, error) {
	if r.closed.Load() {
		return nil, ErrRuntimeClosed
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("data cannot be empty")
	}
	if n := shapeProduct(shape); n != int64(len(data)) {
		return nil, shapeErrorf("buffer has %d elements, shape %v requires %d", len(data), shape, n)
	}

	a, err := newEmptyNDArray(r, shape, dtype, device)
	if err != nil {
		return nil, err
	}
	if err := a.copyFrom(data); err != nil {
		a.Dispose()
		return nil, err
	}
	return a, nil
}

// newEmptyNDArray allocates an array without initializing its contents and
// registers it with the runtime's tracking registry before returning.
func newEmptyNDArray(r *Runtime, shape []int64, dtype DType, device Device) (*NDArray, error) {
	dims := shapeToUint32(shape)
	var handle api.NDArrayHandle
	status := r.funcs.NDArrayCreate(&dims[0], uint32(len(dims)),
		int32(device.Type), int32(device.ID), 0, int32(dtype), &handle)
	if err := r.statusError(status, "MXNDArrayCreateEx"); err != nil {
		return nil, fmt.Errorf("failed to create ndarray: %w", err)
	}

	a := &NDArray{
		runtime: r,
		handle:  handle,
		shape:   append([]int64(nil), shape...),
		dtype:   dtype,
		device:  device,
	}
	a.regID = register(r.arrays, a, uintptr(handle))
	r.ensureReclaimer()
	return a, nil
}

// copyFrom copies float32 data into the array, converting to the array's
// element type as needed.
func (a *NDArray) copyFrom(data []float32) error {
	if err := a.ensureUsable(); err != nil {
		return err
	}

	var src unsafe.Pointer
	switch a.dtype {
	case DTypeFloat32:
		src = unsafe.Pointer(&data[0])
	case DTypeFloat16:
		half := make([]uint16, len(data))
		for i, v := range data {
			half[i] = float16.Fromfloat32(v).Bits()
		}
		src = unsafe.Pointer(&half[0])
	default:
		return fmt.Errorf("unsupported element type %d for data copy", a.dtype)
	}

	status := a.runtime.funcs.NDArraySyncCopyFromCPU(a.handle, src, uintptr(len(data)))
	if err := a.runtime.statusError(status, "MXNDArraySyncCopyFromCPU"); err != nil {
		return fmt.Errorf("failed to copy data into ndarray: %w", err)
	}
	return nil
}

// Shape returns the array's shape.
func (a *NDArray) Shape() []int64 {
	return append([]int64(nil), a.shape...)
}

// DType returns the array's element type.
func (a *NDArray) DType() DType {
	return a.dtype
}

// Size returns the total number of elements.
func (a *NDArray) Size() int64 {
	return shapeProduct(a.shape)
}

// Data copies the array's contents to a float32 slice, converting from the
// array's element type as needed. Only float32 and float16 arrays are
// supported on this path.
func (a *NDArray) Data() ([]float32, error) {
	if err := a.ensureUsable(); err != nil {
		return nil, err
	}

	n := a.Size()
	switch a.dtype {
	case DTypeFloat32:
		out := make([]float32, n)
		status := a.runtime.funcs.NDArraySyncCopyToCPU(a.handle, unsafe.Pointer(&out[0]), uintptr(n))
		if err := a.runtime.statusError(status, "MXNDArraySyncCopyToCPU"); err != nil {
			return nil, fmt.Errorf("failed to copy ndarray data: %w", err)
		}
		return out, nil
	case DTypeFloat16:
		half := make([]uint16, n)
		status := a.runtime.funcs.NDArraySyncCopyToCPU(a.handle, unsafe.Pointer(&half[0]), uintptr(n))
		if err := a.runtime.statusError(status, "MXNDArraySyncCopyToCPU"); err != nil {
			return nil, fmt.Errorf("failed to copy ndarray data: %w", err)
		}
		out := make([]float32, n)
		for i, bits := range half {
			out[i] = float16.Frombits(bits).Float32()
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported element type %d for data copy", a.dtype)
	}
}

// Copy duplicates the array into a newly allocated native handle.
func (a *NDArray) Copy() (*NDArray, error) {
	data, err := a.Data()
	if err != nil {
		return nil, err
	}
	return newNDArrayWithDType(a.runtime, data, a.shape, a.dtype, a.device)
}

// Dispose releases the native array immediately and removes it from the
// tracking registry. It is safe to call Dispose multiple times; second and
// later calls are no-ops.
func (a *NDArray) Dispose() error {
	if !a.disposed.CompareAndSwap(false, true) {
		return nil
	}
	return a.runtime.arrays.dispose(a.regID)
}

func (a *NDArray) ensureUsable() error {
	if a.disposed.Load() {
		return ErrDisposed
	}
	return nil
}

func shapeProduct(shape []int64) int64 {
	n := int64(1)
	for _, dim := range shape {
		n *= dim
	}
	return n
}

func shapeToUint32(shape []int64) []uint32 {
	dims := make([]uint32, len(shape))
	for i, d := range shape {
		dims[i] = uint32(d)
	}
	return dims
}
