// Package metrics is a small facade over a pluggable metrics backend.
//
// Library code records samples through the package-level helpers. A
// process installs a concrete backend once at startup with SetBackend;
// until then every helper is a cheap no-op, so callers never check
// whether metrics are configured.
//
// Metric names used by the recorders:
//
//	cpstats_runs_total               counter, label status
//	cpstats_run_duration_seconds     histogram
//	cpstats_extract_total            counter, labels platform + status
//	cpstats_extract_duration_seconds histogram, label platform
//	cpstats_objects_total            counter, label kind
package metrics

import (
	"sync"
	"time"
)

// Labels carries the tag key/values attached to one metric sample.
type Labels map[string]string

// Backend is the sink all samples flow to.
type Backend interface {
	IncCounter(name string, delta float64, labels Labels)
	ObserveHistogram(name string, value float64, labels Labels)
	Flush() error
	Close() error
}

var (
	mu      sync.RWMutex
	backend Backend
)

// SetBackend installs the process-wide backend. Passing nil uninstalls it.
func SetBackend(b Backend) {
	mu.Lock()
	defer mu.Unlock()
	backend = b
}

func current() Backend {
	mu.RLock()
	defer mu.RUnlock()
	return backend
}

// IncCounter adds delta to a named counter.
func IncCounter(name string, delta float64, labels Labels) {
	if b := current(); b != nil {
		b.IncCounter(name, delta, labels)
	}
}

// ObserveHistogram records one sample of a named distribution.
func ObserveHistogram(name string, value float64, labels Labels) {
	if b := current(); b != nil {
		b.ObserveHistogram(name, value, labels)
	}
}

// Flush pushes buffered samples out to the backend's sink.
func Flush() error {
	if b := current(); b != nil {
		return b.Flush()
	}
	return nil
}

// Close flushes and shuts the backend down.
func Close() error {
	if b := current(); b != nil {
		return b.Close()
	}
	return nil
}

// RecordExtraction counts one platform extraction and its duration.
// Status is "success" or "error", matching the report records.
func RecordExtraction(platform, status string, dur time.Duration) {
	IncCounter("cpstats_extract_total", 1, Labels{"platform": platform, "status": status})
	ObserveHistogram("cpstats_extract_duration_seconds", dur.Seconds(), Labels{"platform": platform})
}

// RecordRun counts one report run and its end-to-end duration.
func RecordRun(status string, dur time.Duration) {
	IncCounter("cpstats_runs_total", 1, Labels{"status": status})
	ObserveHistogram("cpstats_run_duration_seconds", dur.Seconds(), nil)
}

// RecordObjects counts stored-object traffic of one kind, for example
// raw snapshots listed or deleted.
func RecordObjects(kind string, n int) {
	if n <= 0 {
		return
	}
	IncCounter("cpstats_objects_total", float64(n), Labels{"kind": kind})
}
