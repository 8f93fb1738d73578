//go:build windows

package libmxnet

import (
	"golang.org/x/sys/windows"
)

const defaultLibraryName = "libmxnet.dll"

func openLibrary(path string) (uintptr, error) {
	if path == "" {
		path = defaultLibraryName
	}
	handle, err := windows.LoadLibrary(path)
	if err != nil {
		return 0, err
	}
	return uintptr(handle), nil
}
