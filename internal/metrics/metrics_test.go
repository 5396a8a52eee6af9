package metrics

import (
	"errors"
	"testing"
	"time"
)

// captureBackend records every sample it receives.
type captureBackend struct {
	counters []sample
	histos   []sample
	flushes  int
	closes   int
	flushErr error
}

type sample struct {
	name   string
	value  float64
	labels Labels
}

func (c *captureBackend) IncCounter(name string, delta float64, labels Labels) {
	c.counters = append(c.counters, sample{name, delta, labels})
}

func (c *captureBackend) ObserveHistogram(name string, value float64, labels Labels) {
	c.histos = append(c.histos, sample{name, value, labels})
}

func (c *captureBackend) Flush() error { c.flushes++; return c.flushErr }
func (c *captureBackend) Close() error { c.closes++; return nil }

// install wires a capture backend for one test and removes it afterwards.
// The backend is package-global state, so these tests do not run in
// parallel.
func install(t *testing.T) *captureBackend {
	t.Helper()
	b := &captureBackend{}
	SetBackend(b)
	t.Cleanup(func() { SetBackend(nil) })
	return b
}

// TestNoBackendIsANoOp: every helper must be safe to call before a
// backend is installed, because library code records unconditionally.
func TestNoBackendIsANoOp(t *testing.T) {
	SetBackend(nil)

	IncCounter("cpstats_runs_total", 1, nil)
	ObserveHistogram("cpstats_run_duration_seconds", 0.5, nil)
	RecordExtraction("leetcode", "success", time.Second)
	RecordRun("success", time.Second)
	RecordObjects("raw_listed", 4)

	if err := Flush(); err != nil {
		t.Fatalf("Flush without backend: %v", err)
	}
	if err := Close(); err != nil {
		t.Fatalf("Close without backend: %v", err)
	}
}

// TestRecordExtraction checks the metric names and labels the rest of
// the codebase relies on when building dashboards.
func TestRecordExtraction(t *testing.T) {
	b := install(t)

	RecordExtraction("codeforces", "error", 250*time.Millisecond)

	if len(b.counters) != 1 {
		t.Fatalf("counters = %v, want 1 sample", b.counters)
	}
	c := b.counters[0]
	if c.name != "cpstats_extract_total" || c.value != 1 {
		t.Errorf("counter = %+v", c)
	}
	if c.labels["platform"] != "codeforces" || c.labels["status"] != "error" {
		t.Errorf("counter labels = %v", c.labels)
	}

	if len(b.histos) != 1 {
		t.Fatalf("histograms = %v, want 1 sample", b.histos)
	}
	h := b.histos[0]
	if h.name != "cpstats_extract_duration_seconds" || h.value != 0.25 {
		t.Errorf("histogram = %+v", h)
	}
	if h.labels["platform"] != "codeforces" {
		t.Errorf("histogram labels = %v", h.labels)
	}
}

// TestRecordRun checks the run-level counter and duration pair.
func TestRecordRun(t *testing.T) {
	b := install(t)

	RecordRun("success", 2*time.Second)

	if len(b.counters) != 1 || b.counters[0].name != "cpstats_runs_total" {
		t.Fatalf("counters = %v", b.counters)
	}
	if b.counters[0].labels["status"] != "success" {
		t.Errorf("run labels = %v", b.counters[0].labels)
	}
	if len(b.histos) != 1 || b.histos[0].name != "cpstats_run_duration_seconds" || b.histos[0].value != 2 {
		t.Fatalf("histograms = %v", b.histos)
	}
}

// TestRecordObjects drops non-positive counts so callers can pass raw
// tallies without guarding.
func TestRecordObjects(t *testing.T) {
	b := install(t)

	RecordObjects("raw_deleted", 3)
	RecordObjects("delete_failed", 0)
	RecordObjects("summary_written", -1)

	if len(b.counters) != 1 {
		t.Fatalf("counters = %v, want only the positive count", b.counters)
	}
	c := b.counters[0]
	if c.name != "cpstats_objects_total" || c.value != 3 || c.labels["kind"] != "raw_deleted" {
		t.Errorf("counter = %+v", c)
	}
}

// TestFlushAndCloseDelegate: once a backend is installed the package
// functions forward to it, including errors.
func TestFlushAndCloseDelegate(t *testing.T) {
	b := install(t)
	b.flushErr = errors.New("intake unreachable")

	if err := Flush(); !errors.Is(err, b.flushErr) {
		t.Fatalf("Flush error = %v", err)
	}
	if err := Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if b.flushes != 1 || b.closes != 1 {
		t.Fatalf("flushes = %d, closes = %d", b.flushes, b.closes)
	}
}
