package mxnet

// DType identifies the element type of an NDArray or input descriptor.
// The values match the dtype codes of the MXNet C API.
type DType int32

// Element types supported by MXNet.
const (
	// DTypeFloat32 indicates 32-bit floating point elements.
	DTypeFloat32 DType = 0
	// DTypeFloat64 indicates 64-bit floating point elements.
	DTypeFloat64 DType = 1
	// DTypeFloat16 indicates IEEE 754 half-precision elements.
	DTypeFloat16 DType = 2
	// DTypeUint8 indicates unsigned 8-bit integer elements.
	DTypeUint8 DType = 3
	// DTypeInt32 indicates signed 32-bit integer elements.
	DTypeInt32 DType = 4
	// DTypeInt8 indicates signed 8-bit integer elements.
	DTypeInt8 DType = 5
	// DTypeInt64 indicates signed 64-bit integer elements.
	DTypeInt64 DType = 6
)

// DeviceType identifies the kind of device a computation runs on.
// The values match the device type codes of the MXNet C API.
type DeviceType int32

// Device types supported by MXNet.
const (
	// DeviceCPU indicates execution on the CPU.
	DeviceCPU DeviceType = 1
	// DeviceGPU indicates execution on a GPU.
	DeviceGPU DeviceType = 2
	// DeviceCPUPinned indicates CPU memory pinned for fast device transfer.
	DeviceCPUPinned DeviceType = 3
)

// Device specifies where a predictor executes.
type Device struct {
	// Type is the device kind. The zero value is invalid; use CPU() or GPU().
	Type DeviceType

	// ID is the device ordinal, meaningful for GPU devices.
	ID int
}

// CPU returns the CPU device.
func CPU() Device {
	return Device{Type: DeviceCPU}
}

// GPU returns the GPU device with the given ordinal.
func GPU(id int) Device {
	return Device{Type: DeviceGPU, ID: id}
}

// batchAxisMarker is the layout character that designates the batch axis.
const batchAxisMarker = 'N'
