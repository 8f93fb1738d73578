//go:build darwin

package libmxnet

const defaultLibraryName = "libmxnet.dylib"
