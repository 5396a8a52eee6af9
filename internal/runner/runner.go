// Package runner drives one report unit end to end: list the raw
// snapshots, extract every known platform, write the aggregated summary,
// then clean up the raw objects.
package runner

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"time"

	"cpstats/internal/blobstore"
	"cpstats/internal/event"
	"cpstats/internal/extract"
	"cpstats/internal/metrics"
	"cpstats/internal/report"
	"cpstats/internal/snapshot"
)

// Runner processes report units against one blob store bucket.
// The zero value is not usable; Store and Bucket must be set.
type Runner struct {
	Store  blobstore.Store
	Bucket string

	// KeepRaw leaves the raw snapshots in place after a summary is
	// written. Default is to delete them.
	KeepRaw bool

	// Logf receives progress lines. Defaults to log.Printf.
	Logf func(format string, args ...any)

	// now is a test seam; nil means time.Now.
	now func() time.Time
}

// RunSummary describes what one run did.
type RunSummary struct {
	ReportID   string
	SummaryKey string

	// Platforms are the platform ids that made it into the report, sorted.
	Platforms []string

	// FilesProcessed counts every snapshot object under the raw prefix,
	// including ones whose platform is unknown.
	FilesProcessed int
	FilesDeleted   int
	DeleteFailures int

	// Succeeded and Failed split the report records by status.
	Succeeded int
	Failed    int

	// NoInputs is set when there was nothing to aggregate. No summary is
	// written and nothing is deleted in that case.
	NoInputs bool

	Duration time.Duration
}

// ProcessKey derives the report id from one snapshot key and processes
// that report unit. It is the entry point for storage notifications.
func (r *Runner) ProcessKey(ctx context.Context, key string) (*RunSummary, error) {
	reportID, err := event.ReportID(key)
	if err != nil {
		return nil, err
	}
	return r.ProcessReport(ctx, reportID)
}

// ProcessReport aggregates every raw snapshot under <reportID>/raw/ into
// <reportID>/summary.json.
//
// Failure policy:
//   - a broken store (list, summary write, summary verify) fails the run
//   - a broken snapshot (read, gunzip, charset) degrades to an error
//     record inside the report
//   - a failed raw deletion is logged and counted, never fatal
func (r *Runner) ProcessReport(ctx context.Context, reportID string) (*RunSummary, error) {
	start := r.clock()()
	rawPrefix := reportID + "/raw/"

	fail := func(err error) (*RunSummary, error) {
		metrics.RecordRun("error", r.clock()().Sub(start))
		return nil, err
	}

	listed, err := r.Store.List(ctx, r.Bucket, rawPrefix)
	if err != nil {
		return fail(fmt.Errorf("list raw snapshots %s/%s: %w", r.Bucket, rawPrefix, err))
	}

	var gzKeys []string
	for _, key := range listed {
		if snapshot.IsSnapshotKey(key) {
			gzKeys = append(gzKeys, key)
		}
	}
	r.logf("found %d snapshots under %s/%s", len(gzKeys), r.Bucket, rawPrefix)
	metrics.RecordObjects("raw_listed", len(gzKeys))

	if len(gzKeys) == 0 {
		metrics.RecordRun("no_inputs", r.clock()().Sub(start))
		return &RunSummary{
			ReportID: reportID,
			NoInputs: true,
			Duration: r.clock()().Sub(start),
		}, nil
	}

	inputs := map[string]report.Input{}
	for _, key := range gzKeys {
		platform := snapshot.PlatformFromKey(key)
		if !extract.Known(platform) {
			r.logf("skipping unknown platform %q (%s)", platform, key)
			continue
		}
		raw, err := r.Store.Get(ctx, r.Bucket, key)
		if err != nil {
			r.logf("reading %s failed: %v", key, err)
			inputs[platform] = report.Input{Err: err}
			continue
		}
		html, err := snapshot.Decode(raw)
		if err != nil {
			r.logf("decoding %s failed: %v", key, err)
			inputs[platform] = report.Input{Err: err}
			continue
		}
		inputs[platform] = report.Input{HTML: html}
	}

	rep, err := report.Build(inputs)
	if errors.Is(err, report.ErrNoInputs) {
		r.logf("nothing to aggregate for report %s", reportID)
		metrics.RecordRun("no_inputs", r.clock()().Sub(start))
		return &RunSummary{
			ReportID:       reportID,
			FilesProcessed: len(gzKeys),
			NoInputs:       true,
			Duration:       r.clock()().Sub(start),
		}, nil
	}
	if err != nil {
		return fail(fmt.Errorf("build report %s: %w", reportID, err))
	}

	summary := &RunSummary{
		ReportID:       reportID,
		FilesProcessed: len(gzKeys),
	}
	for platform, rec := range rep {
		summary.Platforms = append(summary.Platforms, platform)
		if rec.Status == extract.StatusSuccess {
			summary.Succeeded++
		} else {
			summary.Failed++
		}
	}
	sort.Strings(summary.Platforms)

	body, err := report.Encode(rep)
	if err != nil {
		return fail(fmt.Errorf("encode report %s: %w", reportID, err))
	}

	summaryKey := reportID + "/summary.json"
	if err := r.Store.Put(ctx, r.Bucket, summaryKey, body, "application/json"); err != nil {
		return fail(fmt.Errorf("write summary %s/%s: %w", r.Bucket, summaryKey, err))
	}
	metrics.RecordObjects("summary_written", 1)

	info, err := r.Store.Stat(ctx, r.Bucket, summaryKey)
	if err != nil {
		return fail(fmt.Errorf("verify summary %s/%s: %w", r.Bucket, summaryKey, err))
	}
	r.logf("stored summary %s (%d bytes, %d platforms)", summaryKey, info.Size, len(summary.Platforms))
	summary.SummaryKey = summaryKey

	if r.KeepRaw {
		r.logf("keeping %d raw snapshots under %s", len(gzKeys), rawPrefix)
	} else {
		r.deleteRaw(ctx, rawPrefix, gzKeys, summary)
	}

	summary.Duration = r.clock()().Sub(start)
	metrics.RecordRun("success", summary.Duration)
	return summary, nil
}

// deleteRaw removes the processed snapshot objects. Every listed snapshot
// is deleted, including ones whose platform was unknown, so a report unit
// never accumulates stale uploads.
func (r *Runner) deleteRaw(ctx context.Context, rawPrefix string, gzKeys []string, summary *RunSummary) {
	for _, key := range gzKeys {
		if err := r.Store.Delete(ctx, r.Bucket, key); err != nil {
			r.logf("deleting %s failed: %v", key, err)
			summary.DeleteFailures++
			continue
		}
		summary.FilesDeleted++
	}
	metrics.RecordObjects("raw_deleted", summary.FilesDeleted)
	metrics.RecordObjects("delete_failed", summary.DeleteFailures)

	remaining, err := r.Store.List(ctx, r.Bucket, rawPrefix)
	if err != nil {
		r.logf("re-listing %s failed: %v", rawPrefix, err)
		return
	}
	if len(remaining) == 0 {
		r.logf("raw prefix %s is empty", rawPrefix)
	} else {
		r.logf("raw prefix %s still holds %d objects", rawPrefix, len(remaining))
	}
}

func (r *Runner) logf(format string, args ...any) {
	if r.Logf != nil {
		r.Logf(format, args...)
		return
	}
	log.Printf(format, args...)
}

func (r *Runner) clock() func() time.Time {
	if r.now != nil {
		return r.now
	}
	return time.Now
}
