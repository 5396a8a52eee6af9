// Package datadog implements a Datadog backend for the internal/metrics
// package.
//
// Samples are buffered in memory and submitted as series on Flush. A
// background loop flushes periodically so long spool runs produce a time
// series instead of a single spike at exit, and Close performs one final
// flush for short-lived invocations.
//
// Concurrency model:
//   - worker goroutines call IncCounter/ObserveHistogram at any time
//   - Flush snapshots+resets buffers under a mutex, then submits out-of-lock
//   - the flush loop calls Flush() periodically; Close() stops the loop
//
// Credentials come from DD_API_KEY. Without a key the backend still
// aggregates but drops each snapshot on flush, so a misconfigured worker
// keeps processing reports instead of failing.
package datadog

import (
	"context"
	"log"
	"net/http"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	dd "github.com/DataDog/datadog-api-client-go/v2/api/datadog"
	"github.com/DataDog/datadog-api-client-go/v2/api/datadogV2"

	"cpstats/internal/metrics"
)

// Options controls Datadog backend configuration.
type Options struct {
	// JobName becomes tag "job:<name>" on every metric.
	// If empty, defaults to "cpstats".
	JobName string

	// Tags are extra Datadog tags (e.g. []string{"env:prod", "service:cpstats"}).
	Tags []string

	// FlushEvery controls how often buffered metrics are submitted.
	// If <= 0, defaults to 60 seconds.
	FlushEvery time.Duration

	// The following fields are unexported test seams. Production code
	// never sets them; unit tests use them to avoid real submission and
	// nondeterministic clocks.
	now       func() time.Time
	newTicker func(d time.Duration) *time.Ticker
	submitter metricsSubmitter
}

// metricsSubmitter is the minimal surface needed to submit metrics. The
// SDK exposes a concrete *datadogV2.MetricsApi; depending on this
// interface instead lets tests substitute a fake.
type metricsSubmitter interface {
	SubmitMetrics(ctx context.Context, body datadogV2.MetricPayload, params ...datadogV2.SubmitMetricsOptionalParameters) (datadogV2.IntakePayloadAccepted, *http.Response, error)
}

// Backend implements metrics.Backend for Datadog.
type Backend struct {
	// api is nil when DD_API_KEY is missing; flushes then drop their
	// snapshot instead of submitting.
	api metricsSubmitter
	ctx context.Context

	flushEvery time.Duration
	stopCh     chan struct{}
	doneCh     chan struct{}

	baseTags []string

	now       func() time.Time
	newTicker func(d time.Duration) *time.Ticker

	mu sync.Mutex

	runCounts     map[string]float64   // status -> count
	runDur        []float64            // run duration samples
	extractCounts map[string]float64   // platform+status -> count
	extractDur    map[string][]float64 // platform -> duration samples
	objectCounts  map[string]float64   // kind -> count
}

func resolveEnvTag() string {
	if v := strings.TrimSpace(os.Getenv("ENV")); v != "" {
		return "env:" + v
	}
	if v := strings.TrimSpace(os.Getenv("DD_ENV")); v != "" {
		return "env:" + v
	}
	return "env:unknown"
}

// NewBackend constructs a Datadog backend using the official client.
//
// Edge cases:
//   - If opts.FlushEvery <= 0, defaults to 60s.
//   - If opts.JobName is empty, defaults to "cpstats".
//   - Environment tag selection uses ENV then DD_ENV, otherwise env:unknown.
//   - A missing DD_API_KEY logs a warning and disables submission; the
//     backend still aggregates so callers need no special casing.
func NewBackend(parent context.Context, opts Options) (*Backend, error) {
	job := opts.JobName
	if job == "" {
		job = "cpstats"
	}

	flushEvery := opts.FlushEvery
	if flushEvery <= 0 {
		flushEvery = 60 * time.Second
	}

	baseTags := make([]string, 0, 2+len(opts.Tags))
	baseTags = append(baseTags, resolveEnvTag(), "job:"+job)
	baseTags = append(baseTags, opts.Tags...)

	nowFn := opts.now
	if nowFn == nil {
		nowFn = time.Now
	}
	newTicker := opts.newTicker
	if newTicker == nil {
		newTicker = time.NewTicker
	}

	submitter := opts.submitter
	if submitter == nil {
		if strings.TrimSpace(os.Getenv("DD_API_KEY")) == "" {
			log.Printf("datadog: DD_API_KEY is not set; metrics will be aggregated and dropped")
		} else {
			cfg := dd.NewConfiguration()
			client := dd.NewAPIClient(cfg)
			submitter = datadogV2.NewMetricsApi(client)
		}
	}

	b := &Backend{
		api:        submitter,
		ctx:        dd.NewDefaultContext(parent),
		flushEvery: flushEvery,
		stopCh:     make(chan struct{}),
		doneCh:     make(chan struct{}),

		baseTags: baseTags,

		now:       nowFn,
		newTicker: newTicker,

		runCounts:     make(map[string]float64),
		extractCounts: make(map[string]float64),
		extractDur:    make(map[string][]float64),
		objectCounts:  make(map[string]float64),
	}

	go b.loop()
	return b, nil
}

func (b *Backend) loop() {
	defer close(b.doneCh)

	t := b.newTicker(b.flushEvery)
	defer t.Stop()

	for {
		select {
		case <-t.C:
			_ = b.Flush()
		case <-b.stopCh:
			return
		}
	}
}

// Close stops the background flush loop and performs one final Flush.
// Close must be called at most once; a second call panics on the closed
// stop channel, matching the usual close-once contract.
func (b *Backend) Close() error {
	close(b.stopCh)
	<-b.doneCh
	return b.Flush()
}

// IncCounter implements metrics.Backend.
func (b *Backend) IncCounter(name string, delta float64, labels metrics.Labels) {
	if delta <= 0 {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	switch name {
	case "cpstats_runs_total":
		b.runCounts[labelOr(labels, "status", "unknown")] += delta

	case "cpstats_extract_total":
		platform := labelOr(labels, "platform", "unknown")
		status := labelOr(labels, "status", "unknown")
		b.extractCounts[platformStatusKey(platform, status)] += delta

	case "cpstats_objects_total":
		kind := labels["kind"]
		if kind == "" {
			return
		}
		b.objectCounts[kind] += delta

	default:
		// Unknown counters are ignored.
	}
}

// ObserveHistogram implements metrics.Backend.
func (b *Backend) ObserveHistogram(name string, value float64, labels metrics.Labels) {
	if value < 0 {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	switch name {
	case "cpstats_run_duration_seconds":
		b.runDur = append(b.runDur, value)

	case "cpstats_extract_duration_seconds":
		platform := labelOr(labels, "platform", "unknown")
		b.extractDur[platform] = append(b.extractDur[platform], value)

	default:
		// Unknown histograms are ignored.
	}
}

// snapshot is the detached buffer state used to build one flush payload.
// Flush must reset buffers under the lock but submit out of lock, so the
// two phases exchange this value.
type snapshot struct {
	runCounts     map[string]float64
	runDur        []float64
	extractCounts map[string]float64
	extractDur    map[string][]float64
	objectCounts  map[string]float64
}

func (b *Backend) snapshotAndReset() snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()

	s := snapshot{
		runCounts:     b.runCounts,
		runDur:        b.runDur,
		extractCounts: b.extractCounts,
		extractDur:    b.extractDur,
		objectCounts:  b.objectCounts,
	}

	b.runCounts = make(map[string]float64)
	b.runDur = nil
	b.extractCounts = make(map[string]float64)
	b.extractDur = make(map[string][]float64)
	b.objectCounts = make(map[string]float64)

	return s
}

func (s snapshot) isEmpty() bool {
	return len(s.runCounts) == 0 &&
		len(s.runDur) == 0 &&
		len(s.extractCounts) == 0 &&
		len(s.extractDur) == 0 &&
		len(s.objectCounts) == 0
}

// Flush submits buffered metrics and resets the local buffers. Buffers
// are reset even when submission fails or is disabled, keeping the hot
// path from growing without bound.
func (b *Backend) Flush() error {
	snap := b.snapshotAndReset()
	if snap.isEmpty() {
		return nil
	}
	if b.api == nil {
		return nil
	}

	payload := datadogV2.MetricPayload{Series: b.buildSeries(snap, b.now().Unix())}
	_, _, err := b.api.SubmitMetrics(b.ctx, payload, *datadogV2.NewSubmitMetricsOptionalParameters())
	return err
}

// buildSeries constructs the Datadog series for a snapshot at a fixed
// timestamp. It is pure, which keeps the naming and tagging contract easy
// to test.
func (b *Backend) buildSeries(s snapshot, nowUnix int64) []datadogV2.MetricSeries {
	series := make([]datadogV2.MetricSeries, 0,
		len(s.runCounts)+len(s.extractCounts)+len(s.objectCounts)+16)

	for status, v := range s.runCounts {
		tags := withTags(b.baseTags, "status:"+status)
		series = append(series, countSeries("cpstats.runs.total", v, tags, nowUnix))
	}

	for k, v := range s.extractCounts {
		platform, status := splitPlatformStatusKey(k)
		tags := withTags(b.baseTags, "platform:"+platform, "status:"+status)
		series = append(series, countSeries("cpstats.extract.total", v, tags, nowUnix))
	}

	for kind, v := range s.objectCounts {
		tags := withTags(b.baseTags, "kind:"+kind)
		series = append(series, countSeries("cpstats.objects.total", v, tags, nowUnix))
	}

	addDistribution(&series, "cpstats.run.duration_seconds", s.runDur, b.baseTags, nowUnix)
	for platform, samples := range s.extractDur {
		tags := withTags(b.baseTags, "platform:"+platform)
		addDistribution(&series, "cpstats.extract.duration_seconds", samples, tags, nowUnix)
	}

	return series
}

// addDistribution appends p50/p95/max gauges plus a sample count for one
// sample set. It sorts a copy and leaves the input untouched; empty
// sample sets produce nothing.
func addDistribution(series *[]datadogV2.MetricSeries, prefix string, samples []float64, tags []string, nowUnix int64) {
	if len(samples) == 0 {
		return
	}
	cp := append([]float64(nil), samples...)
	sort.Float64s(cp)

	*series = append(*series, gaugeSeries(prefix+".p50", percentileNearestRank(cp, 0.50), tags, nowUnix))
	*series = append(*series, gaugeSeries(prefix+".p95", percentileNearestRank(cp, 0.95), tags, nowUnix))
	*series = append(*series, gaugeSeries(prefix+".max", cp[len(cp)-1], tags, nowUnix))
	*series = append(*series, gaugeSeries(prefix+".count", float64(len(cp)), tags, nowUnix))
}

func countSeries(metric string, value float64, tags []string, nowUnix int64) datadogV2.MetricSeries {
	return datadogV2.MetricSeries{
		Metric: metric,
		Type:   datadogV2.METRICINTAKETYPE_COUNT.Ptr(),
		Points: []datadogV2.MetricPoint{
			{Timestamp: dd.PtrInt64(nowUnix), Value: dd.PtrFloat64(value)},
		},
		Tags: tags,
	}
}

func gaugeSeries(metric string, value float64, tags []string, nowUnix int64) datadogV2.MetricSeries {
	return datadogV2.MetricSeries{
		Metric: metric,
		Type:   datadogV2.METRICINTAKETYPE_GAUGE.Ptr(),
		Points: []datadogV2.MetricPoint{
			{Timestamp: dd.PtrInt64(nowUnix), Value: dd.PtrFloat64(value)},
		},
		Tags: tags,
	}
}

func platformStatusKey(platform, status string) string {
	return platform + "\x00" + status
}

func splitPlatformStatusKey(k string) (platform, status string) {
	parts := strings.SplitN(k, "\x00", 2)
	if len(parts) == 2 {
		return parts[0], parts[1]
	}
	return k, "unknown"
}

func labelOr(labels metrics.Labels, key, fallback string) string {
	if v := labels[key]; v != "" {
		return v
	}
	return fallback
}

func withTags(base []string, extras ...string) []string {
	out := make([]string, 0, len(base)+len(extras))
	out = append(out, base...)
	out = append(out, extras...)
	return out
}

func percentileNearestRank(s []float64, p float64) float64 {
	n := len(s)
	if n == 0 {
		return 0
	}
	if p <= 0 {
		return s[0]
	}
	if p >= 1 {
		return s[n-1]
	}
	idx := int(p*float64(n-1) + 0.5)
	if idx < 0 {
		idx = 0
	}
	if idx >= n {
		idx = n - 1
	}
	return s[idx]
}

var _ metrics.Backend = (*Backend)(nil)

// ParseTagsCSV parses comma-separated tags like "env:prod,service:cpstats".
func ParseTagsCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
