// Package mxnet provides Go bindings for the MXNet C predict API using purego.
//
// This package allows you to load serialized MXNet models and run inference
// in pure Go, without requiring cgo. It uses the purego library to call into
// the native MXNet shared library (libmxnet).
//
// Native resources (arrays and bound computation graphs) are wrapped in
// managed proxy objects. Every proxy should be released explicitly via its
// Dispose or Close method; as a safety net, a background reclaimer owned by
// the Runtime frees the native handle of any proxy the garbage collector has
// found unreachable.
package mxnet
