// Command aggregate_stats builds per-person summary reports from stored
// profile snapshots.
//
// It runs in one of three modes:
//
//	aggregate_stats -event note.json   one run, driven by a stored-object notification
//	aggregate_stats -report <id>       one run for a report unit by id
//	aggregate_stats -spool             watch a directory of notification files
//
// Every completed run emits one JSON line on stdout; operational logging
// goes to stderr. A YAML config file (-config) supplies defaults and
// command-line flags override it.
//
// Exit codes:
//   - 0: success, including runs that found nothing to aggregate.
//   - 1: runtime failure (storage fault, unreadable event).
//   - 2: usage or configuration error.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"cpstats/internal/blobstore"
	_ "cpstats/internal/blobstore/all"
	"cpstats/internal/config"
	"cpstats/internal/event"
	_ "cpstats/internal/extract/all"
	"cpstats/internal/metrics"
	"cpstats/internal/metrics/datadog"
	"cpstats/internal/runner"
)

// runRecord is emitted as JSONL to stdout for each report run.
//
// This output is intended for machine parsing. Additive changes are safe;
// renames/removals are breaking changes for downstream log consumers.
type runRecord struct {
	Timestamp      string `json:"ts"`
	ReportID       string `json:"report_id"`
	FilesProcessed int    `json:"files_processed"`
	FilesDeleted   int    `json:"files_deleted"`
	Succeeded      int    `json:"succeeded"`
	Failed         int    `json:"failed"`
	SummaryKey     string `json:"summary_key,omitempty"`
	NoInputs       bool   `json:"no_inputs,omitempty"`
	DurationMs     int64  `json:"duration_ms"`
	Error          string `json:"error,omitempty"`
}

// deps are external seams for testability.
//
// When to use:
//   - Unit tests: inject a fake store and backend factory, capture
//     stdout/stderr, and replace Sleep so spool scans do not wait.
type deps struct {
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer

	// OpenStore opens the blob store named by the effective config.
	OpenStore func(ctx context.Context, cfg blobstore.Config) (blobstore.Store, error)

	// NewMetricsBackend is consulted only when the datadog backend is
	// selected.
	NewMetricsBackend func(ctx context.Context, opts datadog.Options) (metrics.Backend, error)

	Now   func() time.Time
	Sleep func(d time.Duration)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	code := run(ctx, os.Args[1:], deps{
		Stdin:     os.Stdin,
		Stdout:    os.Stdout,
		Stderr:    os.Stderr,
		OpenStore: blobstore.Open,
		NewMetricsBackend: func(ctx context.Context, opts datadog.Options) (metrics.Backend, error) {
			return datadog.NewBackend(ctx, opts)
		},
		Now:   time.Now,
		Sleep: time.Sleep,
	})
	stop()
	os.Exit(code)
}

// runConfig is the effective configuration after the config file and the
// command line are merged. Flags win over file values.
type runConfig struct {
	Config *config.Config

	EventPath string
	ReportID  string
	Spool     bool
	Verbose   bool
}

// run executes the worker and returns an exit code.
//
// Exit codes:
//   - 0: success (a run with no inputs is still a success).
//   - 1: runtime failure.
//   - 2: configuration/usage error.
func run(ctx context.Context, args []string, d deps) int {
	if d.Stdin == nil {
		d.Stdin = bytes.NewReader(nil)
	}
	if d.Stdout == nil {
		d.Stdout = io.Discard
	}
	if d.Stderr == nil {
		d.Stderr = io.Discard
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.Sleep == nil {
		d.Sleep = time.Sleep
	}
	if d.OpenStore == nil {
		fmt.Fprintln(d.Stderr, "internal error: OpenStore is nil")
		return 2
	}

	rc, err := parseFlags(args)
	if err != nil {
		fmt.Fprintln(d.Stderr, err.Error())
		return 2
	}

	cfg := rc.Config
	issues := cfg.Validate()
	for _, issue := range issues {
		fmt.Fprintln(d.Stderr, issue)
	}
	if config.HasErrors(issues) {
		return 2
	}

	logf := func(string, ...any) {}
	if rc.Verbose {
		logf = log.New(d.Stderr, "", log.LstdFlags).Printf
	}

	switch cfg.Metrics.Backend {
	case "", "none":
		// Keep the package-level no-op.
	case "datadog":
		if d.NewMetricsBackend == nil {
			fmt.Fprintln(d.Stderr, "internal error: NewMetricsBackend is nil")
			return 2
		}
		backend, err := d.NewMetricsBackend(ctx, datadog.Options{
			JobName:    "aggregate_stats",
			Tags:       datadog.ParseTagsCSV(cfg.Metrics.Tags),
			FlushEvery: cfg.Metrics.FlushEvery.Std(),
		})
		if err != nil {
			fmt.Fprintf(d.Stderr, "init metrics: %v\n", err)
			return 1
		}
		metrics.SetBackend(backend)
		defer func() {
			metrics.SetBackend(nil)
			if err := backend.Close(); err != nil {
				fmt.Fprintf(d.Stderr, "close metrics: %v\n", err)
			}
		}()
	}

	store, err := d.OpenStore(ctx, blobstore.Config{Kind: cfg.Store.Kind, DSN: cfg.Store.DSN})
	if err != nil {
		fmt.Fprintf(d.Stderr, "open store: %v\n", err)
		return 1
	}
	defer store.Close()
	logf("stage=open_store kind=%s bucket=%s", cfg.Store.Kind, cfg.Bucket)

	r := &runner.Runner{
		Store:   store,
		Bucket:  cfg.Bucket,
		KeepRaw: cfg.KeepRaw,
		Logf:    logf,
	}
	enc := json.NewEncoder(d.Stdout)

	switch {
	case rc.EventPath != "":
		return runEvent(ctx, r, rc.EventPath, d, enc, logf)
	case rc.ReportID != "":
		logf("stage=report id=%s", rc.ReportID)
		sum, err := r.ProcessReport(ctx, rc.ReportID)
		if err != nil {
			fmt.Fprintf(d.Stderr, "process report: %v\n", err)
		}
		_ = enc.Encode(buildRecord(d.Now(), rc.ReportID, sum, err))
		if err != nil {
			return 1
		}
		return 0
	default:
		return runSpool(ctx, r, rc, d, enc, logf)
	}
}

// parseFlags parses command arguments, loads the config file when one is
// named, and applies explicit flags over it.
//
// Errors:
//   - Returns an error for invalid/missing flags or an unreadable file.
//   - Does not exit the process (caller decides exit code).
func parseFlags(args []string) (runConfig, error) {
	fs := flag.NewFlagSet("aggregate_stats", flag.ContinueOnError)

	// Capture help/usage text instead of writing to stdout.
	var usageBuf strings.Builder
	fs.SetOutput(&usageBuf)
	fs.Usage = func() {
		fmt.Fprintf(&usageBuf, "Usage of %s:\n", fs.Name())
		fs.PrintDefaults()
	}

	var (
		configPath = fs.String("config", "", "Path to YAML config file")

		eventPath = fs.String("event", "", "Process one notification file (\"-\" reads stdin)")
		reportID  = fs.String("report", "", "Process one report unit by id")
		spool     = fs.Bool("spool", false, "Watch the spool directory for notification files")

		storeKind = fs.String("store", "", "Blob store kind (fs|sqlite|postgres|mssql)")
		dsn       = fs.String("dsn", "", "Blob store DSN (for fs: the root directory)")
		bucket    = fs.String("bucket", "", "Bucket holding the snapshots")
		keepRaw   = fs.Bool("keep-raw", false, "Keep raw snapshots after the summary is written")

		spoolDir = fs.String("spool-dir", "", "Spool directory (with -spool)")
		workers  = fs.Int("workers", 0, "Concurrent report runs in spool mode")
		interval = fs.Duration("interval", 0, "Pause between spool scans")

		metricsBackend = fs.String("metrics", "", "Metrics backend (none|datadog)")
		metricsTags    = fs.String("metrics-tags", "", "Extra metric tags CSV (e.g. env:prod,region:eu)")
		metricsFlush   = fs.Duration("metrics-flush", 0, "Datadog flush interval")

		verbose = fs.Bool("v", false, "Verbose operational logging on stderr")
	)

	if err := fs.Parse(args); err != nil {
		// When -h / -help is passed, flag.Parse returns flag.ErrHelp.
		// Return the captured usage text so caller prints it.
		if errors.Is(err, flag.ErrHelp) {
			return runConfig{}, errors.New(usageBuf.String())
		}
		return runConfig{}, fmt.Errorf("%v\n\n%s", err, usageBuf.String())
	}

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			return runConfig{}, err
		}
		cfg = loaded
	}

	// Only flags the user actually set override the file.
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "store":
			cfg.Store.Kind = *storeKind
		case "dsn":
			cfg.Store.DSN = *dsn
		case "bucket":
			cfg.Bucket = *bucket
		case "keep-raw":
			cfg.KeepRaw = *keepRaw
		case "spool-dir":
			cfg.Spool.Dir = *spoolDir
		case "workers":
			cfg.Spool.Workers = *workers
		case "interval":
			cfg.Spool.Interval = config.Duration(*interval)
		case "metrics":
			cfg.Metrics.Backend = *metricsBackend
		case "metrics-tags":
			cfg.Metrics.Tags = *metricsTags
		case "metrics-flush":
			cfg.Metrics.FlushEvery = config.Duration(*metricsFlush)
		}
	})

	modes := 0
	if *eventPath != "" {
		modes++
	}
	if *reportID != "" {
		modes++
	}
	if *spool {
		modes++
	}
	if modes != 1 {
		return runConfig{}, errors.New("exactly one of -event, -report or -spool is required")
	}
	if *spool && cfg.Spool.Dir == "" {
		return runConfig{}, errors.New("-spool needs a directory: set -spool-dir or spool.dir in the config file")
	}

	return runConfig{
		Config:    cfg,
		EventPath: *eventPath,
		ReportID:  *reportID,
		Spool:     *spool,
		Verbose:   *verbose,
	}, nil
}

// runEvent processes the single notification named by -event.
func runEvent(ctx context.Context, r *runner.Runner, path string, d deps, enc *json.Encoder, logf func(string, ...any)) int {
	var src io.Reader = d.Stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			fmt.Fprintf(d.Stderr, "open event: %v\n", err)
			return 1
		}
		defer f.Close()
		src = f
	}

	n, err := event.Parse(src)
	if err != nil {
		fmt.Fprintf(d.Stderr, "parse event: %v\n", err)
		return 1
	}

	evt := n.First()
	run := *r
	if evt.Bucket != "" {
		run.Bucket = evt.Bucket
	}
	logf("stage=event key=%s bucket=%s", evt.Key, run.Bucket)

	sum, err := run.ProcessKey(ctx, evt.Key)
	if err != nil {
		fmt.Fprintf(d.Stderr, "process event: %v\n", err)
	}
	_ = enc.Encode(buildRecord(d.Now(), "", sum, err))
	if err != nil {
		return 1
	}
	return 0
}

// runSpool watches the spool directory until ctx is cancelled. Each
// notification file triggers one report run; the file is removed only
// after its run succeeds. A file that failed once is skipped for the life
// of the process so a poison notification cannot wedge the loop.
func runSpool(ctx context.Context, r *runner.Runner, rc runConfig, d deps, enc *json.Encoder, logf func(string, ...any)) int {
	dir := rc.Config.Spool.Dir
	interval := rc.Config.Spool.Interval.Std()
	workers := rc.Config.Spool.Workers
	if workers < 1 {
		workers = 1
	}

	// One goroutine owns the encoder; workers hand it finished records.
	records := make(chan runRecord, 64)
	var logWG sync.WaitGroup
	logWG.Add(1)
	go func() {
		defer logWG.Done()
		for rec := range records {
			_ = enc.Encode(rec)
		}
	}()

	failed := make(map[string]bool)
	logf("stage=spool_start dir=%s workers=%d interval=%s", dir, workers, interval)

	code := 0
	for {
		files, err := spoolFiles(dir, failed)
		if err != nil {
			fmt.Fprintf(d.Stderr, "scan spool: %v\n", err)
			code = 1
			break
		}
		if len(files) > 0 {
			logf("stage=spool_scan files=%d", len(files))
			processSpoolBatch(ctx, r, d, files, workers, failed, records, logf)
		}
		if !waitInterval(ctx, interval, d.Sleep) {
			break
		}
	}

	close(records)
	logWG.Wait()
	logf("stage=spool_stop")
	return code
}

// spoolFiles lists the notification files eligible for this scan.
// os.ReadDir returns entries sorted by name, so runs happen in a stable
// order.
func spoolFiles(dir string, failed map[string]bool) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") || failed[e.Name()] {
			continue
		}
		files = append(files, filepath.Join(dir, e.Name()))
	}
	return files, nil
}

// processSpoolBatch fans one scan's files over a bounded worker pool and
// waits for the batch to finish.
func processSpoolBatch(ctx context.Context, r *runner.Runner, d deps, files []string, workers int, failed map[string]bool, records chan<- runRecord, logf func(string, ...any)) {
	jobs := make(chan string)

	var mu sync.Mutex // guards failed during the batch
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for path := range jobs {
				rec, ok := processSpoolFile(ctx, r, d, path, logf)
				records <- rec
				if !ok {
					mu.Lock()
					failed[filepath.Base(path)] = true
					mu.Unlock()
				}
			}
		}()
	}

	// Producer.
	go func() {
		defer close(jobs)
		for _, path := range files {
			select {
			case <-ctx.Done():
				return
			case jobs <- path:
			}
		}
	}()

	wg.Wait()
}

// processSpoolFile runs the report named by one notification file and
// removes the file once the run succeeded. The boolean result reports
// whether the file was fully retired; false means it must not be picked
// up again.
func processSpoolFile(ctx context.Context, r *runner.Runner, d deps, path string, logf func(string, ...any)) (runRecord, bool) {
	name := filepath.Base(path)

	data, err := os.ReadFile(path)
	if err != nil {
		logf("stage=spool_read file=%s err=%v", name, err)
		return buildRecord(d.Now(), "", nil, fmt.Errorf("read %s: %w", name, err)), false
	}
	n, err := event.Parse(bytes.NewReader(data))
	if err != nil {
		logf("stage=spool_parse file=%s err=%v", name, err)
		return buildRecord(d.Now(), "", nil, fmt.Errorf("parse %s: %w", name, err)), false
	}

	evt := n.First()
	run := *r
	if evt.Bucket != "" {
		run.Bucket = evt.Bucket
	}
	logf("stage=spool_run file=%s key=%s", name, evt.Key)

	sum, err := run.ProcessKey(ctx, evt.Key)
	rec := buildRecord(d.Now(), "", sum, err)
	if err != nil {
		logf("stage=spool_fail file=%s err=%v", name, err)
		return rec, false
	}

	if err := os.Remove(path); err != nil {
		// The run itself succeeded; a file that cannot be released must
		// not be retried every scan.
		logf("stage=spool_remove file=%s err=%v", name, err)
		return rec, false
	}
	return rec, true
}

// waitInterval pauses between spool scans. The sleep runs on its own
// goroutine so cancellation takes effect immediately. Returns false once
// ctx is done.
func waitInterval(ctx context.Context, d time.Duration, sleep func(time.Duration)) bool {
	done := make(chan struct{})
	go func() {
		sleep(d)
		close(done)
	}()
	select {
	case <-ctx.Done():
		return false
	case <-done:
		return ctx.Err() == nil
	}
}

// buildRecord converts one run outcome into its stdout log line.
// fallbackID names the report when the run never got far enough to
// produce a summary.
func buildRecord(now time.Time, fallbackID string, sum *runner.RunSummary, runErr error) runRecord {
	rec := runRecord{
		Timestamp: now.UTC().Format("2006-01-02T15:04:05.000Z"),
		ReportID:  fallbackID,
	}
	if sum != nil {
		rec.ReportID = sum.ReportID
		rec.FilesProcessed = sum.FilesProcessed
		rec.FilesDeleted = sum.FilesDeleted
		rec.Succeeded = sum.Succeeded
		rec.Failed = sum.Failed
		rec.SummaryKey = sum.SummaryKey
		rec.NoInputs = sum.NoInputs
		rec.DurationMs = sum.Duration.Milliseconds()
	}
	if runErr != nil {
		rec.Error = runErr.Error()
	}
	return rec
}
