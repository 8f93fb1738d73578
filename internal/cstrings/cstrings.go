// Package cstrings provides helpers for converting between Go strings and
// null-terminated C strings passed across the purego boundary.
package cstrings

import "unsafe"

// GoString converts a null-terminated C string to a Go string.
// It returns the empty string for a nil pointer.
func GoString(p unsafe.Pointer) string {
	if p == nil {
		return ""
	}

	b := (*byte)(p)
	n := 0
	for *(*byte)(unsafe.Add(unsafe.Pointer(b), n)) != 0 {
		n++
	}
	if n == 0 {
		return ""
	}
	return string(unsafe.Slice(b, n))
}

// CString converts a Go string to a null-terminated byte slice suitable for
// passing to C functions expecting const char*.
func CString(s string) []byte {
	return append([]byte(s), 0)
}
