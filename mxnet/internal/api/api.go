package api

import "unsafe"

// Status is the return code of an MXNet C API call. Zero means success;
// any other value indicates failure and the message is available through
// GetLastError.
type Status int32

// StatusOK is the success return code.
const StatusOK Status = 0

// PredictorHandle is an opaque pointer to a native predictor: a computation
// graph bound to concrete buffers at a fixed set of input shapes.
type PredictorHandle uintptr

// NDArrayHandle is an opaque pointer to a native n-dimensional array.
type NDArrayHandle uintptr

// Funcs is the MXNet C API surface used by this binding.
//
// All functions are synchronous. The native library is only safe for
// single-threaded use per handle; callers must serialize access to a given
// handle externally.
type Funcs interface {
	// GetLastError returns the message (as a C string) describing the most
	// recent failure on the calling thread.
	GetLastError() unsafe.Pointer

	// Predictor (bound graph) API.
	//
	// Input shapes are passed in CSR form: shapeIndPtr has numInputs+1
	// entries and shapeData holds the concatenated dimensions, so input i
	// owns shapeData[shapeIndPtr[i]:shapeIndPtr[i+1]].
	PredCreate(symbolJSON *byte, paramBytes unsafe.Pointer, paramSize int32,
		devType int32, devID int32,
		numInputs uint32, inputKeys **byte, shapeIndPtr *uint32, shapeData *uint32,
		out *PredictorHandle) Status
	PredReshape(numInputs uint32, inputKeys **byte, shapeIndPtr *uint32, shapeData *uint32,
		handle PredictorHandle, out *PredictorHandle) Status
	PredGetOutputShape(handle PredictorHandle, index uint32, shapeData *unsafe.Pointer, ndim *uint32) Status
	PredSetInput(handle PredictorHandle, key *byte, data *float32, size uint32) Status
	PredForward(handle PredictorHandle) Status
	PredGetOutput(handle PredictorHandle, index uint32, data *float32, size uint32) Status
	PredFree(handle PredictorHandle) Status

	// NDArray API.
	NDArrayCreate(shape *uint32, ndim uint32, devType int32, devID int32,
		delayAlloc int32, dtype int32, out *NDArrayHandle) Status
	NDArraySyncCopyFromCPU(handle NDArrayHandle, data unsafe.Pointer, size uintptr) Status
	NDArraySyncCopyToCPU(handle NDArrayHandle, data unsafe.Pointer, size uintptr) Status
	NDArrayGetShape(handle NDArrayHandle, ndim *uint32, shapeData *unsafe.Pointer) Status
	NDArrayGetDType(handle NDArrayHandle, dtype *int32) Status
	NDArrayFree(handle NDArrayHandle) Status
}
