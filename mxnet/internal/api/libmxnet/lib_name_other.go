//go:build !darwin && !windows

package libmxnet

const defaultLibraryName = "libmxnet.so"
