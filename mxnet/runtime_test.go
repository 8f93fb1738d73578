package mxnet

import (
	"errors"
	"testing"
)

func TestRuntimeCloseIdempotent(t *testing.T) {
	engine := newFakeEngine()
	rt := newRuntime(engine, &Config{Logger: testLogger()})

	rt.Close()
	rt.Close()
}

func TestRuntimeErrNilWhenHealthy(t *testing.T) {
	rt, _ := newTestRuntime(t)

	// Before any resource exists the reclaimer has not started.
	if err := rt.Err(); err != nil {
		t.Errorf("Expected nil before first use, got %v", err)
	}

	a, err := NewNDArray(rt, []float32{1}, []int64{1})
	if err != nil {
		t.Fatalf("Failed to create array: %v", err)
	}
	defer a.Dispose()

	if err := rt.Err(); err != nil {
		t.Errorf("Expected nil while reclaimer runs, got %v", err)
	}
}

func TestRuntimeStats(t *testing.T) {
	rt, _ := newTestRuntime(t)

	a, err := NewNDArray(rt, []float32{1, 2}, []int64{2})
	if err != nil {
		t.Fatalf("Failed to create array: %v", err)
	}
	defer a.Dispose()

	stats := rt.Stats()
	if len(stats) != 2 {
		t.Fatalf("Expected 2 registry entries, got %d", len(stats))
	}
	if stats[0].Kind != "ndarray" || stats[1].Kind != "graph" {
		t.Errorf("Unexpected kinds: %q, %q", stats[0].Kind, stats[1].Kind)
	}
	if stats[0].Live != 1 {
		t.Errorf("Expected 1 live array, got %d", stats[0].Live)
	}
	if stats[1].Live != 0 {
		t.Errorf("Expected 0 live graphs, got %d", stats[1].Live)
	}
}

func TestRuntimeClosedRejectsNewResources(t *testing.T) {
	engine := newFakeEngine()
	rt := newRuntime(engine, &Config{Logger: testLogger()})
	rt.Close()

	if _, err := NewNDArray(rt, []float32{1}, []int64{1}); !errors.Is(err, ErrRuntimeClosed) {
		t.Errorf("NewNDArray: expected ErrRuntimeClosed, got %v", err)
	}

	descs := []DataDesc{{Name: "data", Shape: []int64{4}, Layout: "C"}}
	if _, err := NewPredictor(rt, writeTestModel(t), descs); !errors.Is(err, ErrRuntimeClosed) {
		t.Errorf("NewPredictor: expected ErrRuntimeClosed, got %v", err)
	}
}
