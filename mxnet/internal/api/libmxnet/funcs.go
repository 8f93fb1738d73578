// Package libmxnet implements the api.Funcs interface on top of the MXNet
// shared library (libmxnet), loaded at runtime via purego without cgo.
package libmxnet

import (
	"fmt"
	"unsafe"

	"github.com/ebitengine/purego"

	"github.com/nswamy/incubator-mxnet/mxnet/internal/api"
)

// Funcs contains cached function pointers to MXNet C API functions.
type Funcs struct {
	getLastError func() unsafe.Pointer

	predCreate         func(*byte, unsafe.Pointer, int32, int32, int32, uint32, **byte, *uint32, *uint32, *api.PredictorHandle) api.Status
	predReshape        func(uint32, **byte, *uint32, *uint32, api.PredictorHandle, *api.PredictorHandle) api.Status
	predGetOutputShape func(api.PredictorHandle, uint32, *unsafe.Pointer, *uint32) api.Status
	predSetInput       func(api.PredictorHandle, *byte, *float32, uint32) api.Status
	predForward        func(api.PredictorHandle) api.Status
	predGetOutput      func(api.PredictorHandle, uint32, *float32, uint32) api.Status
	predFree           func(api.PredictorHandle) api.Status

	ndarrayCreate          func(*uint32, uint32, int32, int32, int32, int32, *api.NDArrayHandle) api.Status
	ndarraySyncCopyFromCPU func(api.NDArrayHandle, unsafe.Pointer, uintptr) api.Status
	ndarraySyncCopyToCPU   func(api.NDArrayHandle, unsafe.Pointer, uintptr) api.Status
	ndarrayGetShape        func(api.NDArrayHandle, *uint32, *unsafe.Pointer) api.Status
	ndarrayGetDType        func(api.NDArrayHandle, *int32) api.Status
	ndarrayFree            func(api.NDArrayHandle) api.Status
}

var _ api.Funcs = (*Funcs)(nil)

// Load opens the MXNet shared library at libraryPath (or a default system
// location when empty) and resolves the C API symbols used by the binding.
func Load(libraryPath string) (*Funcs, error) {
	handle, err := openLibrary(libraryPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load MXNet library: %w", err)
	}

	f := &Funcs{}
	purego.RegisterLibFunc(&f.getLastError, handle, "MXGetLastError")

	purego.RegisterLibFunc(&f.predCreate, handle, "MXPredCreate")
	purego.RegisterLibFunc(&f.predReshape, handle, "MXPredReshape")
	purego.RegisterLibFunc(&f.predGetOutputShape, handle, "MXPredGetOutputShape")
	purego.RegisterLibFunc(&f.predSetInput, handle, "MXPredSetInput")
	purego.RegisterLibFunc(&f.predForward, handle, "MXPredForward")
	purego.RegisterLibFunc(&f.predGetOutput, handle, "MXPredGetOutput")
	purego.RegisterLibFunc(&f.predFree, handle, "MXPredFree")

	purego.RegisterLibFunc(&f.ndarrayCreate, handle, "MXNDArrayCreateEx")
	purego.RegisterLibFunc(&f.ndarraySyncCopyFromCPU, handle, "MXNDArraySyncCopyFromCPU")
	purego.RegisterLibFunc(&f.ndarraySyncCopyToCPU, handle, "MXNDArraySyncCopyToCPU")
	purego.RegisterLibFunc(&f.ndarrayGetShape, handle, "MXNDArrayGetShape")
	purego.RegisterLibFunc(&f.ndarrayGetDType, handle, "MXNDArrayGetDType")
	purego.RegisterLibFunc(&f.ndarrayFree, handle, "MXNDArrayFree")

	return f, nil
}

// GetLastError returns the thread-local message for the most recent failure.
func (f *Funcs) GetLastError() unsafe.Pointer {
	return f.getLastError()
}

func (f *Funcs) PredCreate(symbolJSON *byte, paramBytes unsafe.Pointer, paramSize int32,
	devType int32, devID int32,
	numInputs uint32, inputKeys **byte, shapeIndPtr *uint32, shapeData *uint32,
	out *api.PredictorHandle) api.Status {
	return f.predCreate(symbolJSON, paramBytes, paramSize, devType, devID, numInputs, inputKeys, shapeIndPtr, shapeData, out)
}

func (f *Funcs) PredReshape(numInputs uint32, inputKeys **byte, shapeIndPtr *uint32, shapeData *uint32,
	handle api.PredictorHandle, out *api.PredictorHandle) api.Status {
	return f.predReshape(numInputs, inputKeys, shapeIndPtr, shapeData, handle, out)
}

func (f *Funcs) PredGetOutputShape(handle api.PredictorHandle, index uint32, shapeData *unsafe.Pointer, ndim *uint32) api.Status {
	return f.predGetOutputShape(handle, index, shapeData, ndim)
}

func (f *Funcs) PredSetInput(handle api.PredictorHandle, key *byte, data *float32, size uint32) api.Status {
	return f.predSetInput(handle, key, data, size)
}

func (f *Funcs) PredForward(handle api.PredictorHandle) api.Status {
	return f.predForward(handle)
}

func (f *Funcs) PredGetOutput(handle api.PredictorHandle, index uint32, data *float32, size uint32) api.Status {
	return f.predGetOutput(handle, index, data, size)
}

func (f *Funcs) PredFree(handle api.PredictorHandle) api.Status {
	return f.predFree(handle)
}

func (f *Funcs) NDArrayCreate(shape *uint32, ndim uint32, devType int32, devID int32,
	delayAlloc int32, dtype int32, out *api.NDArrayHandle) api.Status {
	return f.ndarrayCreate(shape, ndim, devType, devID, delayAlloc, dtype, out)
}

func (f *Funcs) NDArraySyncCopyFromCPU(handle api.NDArrayHandle, data unsafe.Pointer, size uintptr) api.Status {
	return f.ndarraySyncCopyFromCPU(handle, data, size)
}

func (f *Funcs) NDArraySyncCopyToCPU(handle api.NDArrayHandle, data unsafe.Pointer, size uintptr) api.Status {
	return f.ndarraySyncCopyToCPU(handle, data, size)
}

func (f *Funcs) NDArrayGetShape(handle api.NDArrayHandle, ndim *uint32, shapeData *unsafe.Pointer) api.Status {
	return f.ndarrayGetShape(handle, ndim, shapeData)
}

func (f *Funcs) NDArrayGetDType(handle api.NDArrayHandle, dtype *int32) api.Status {
	return f.ndarrayGetDType(handle, dtype)
}

func (f *Funcs) NDArrayFree(handle api.NDArrayHandle) api.Status {
	return f.ndarrayFree(handle)
}
