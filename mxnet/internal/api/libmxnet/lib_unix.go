//go:build darwin || linux || freebsd

package libmxnet

import (
	"github.com/ebitengine/purego"
)

func openLibrary(path string) (uintptr, error) {
	if path == "" {
		path = defaultLibraryName
	}
	return purego.Dlopen(path, purego.RTLD_NOW|purego.RTLD_GLOBAL)
}
