// Package report aggregates per-platform extraction records into a single
// report document.
package report

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"cpstats/internal/extract"
	"cpstats/internal/metrics"
)

// ErrNoInputs reports that Build had nothing to aggregate: no inputs at
// all, or none belonging to a registered platform. Callers use errors.Is
// to tell this apart from a report whose entries are all error records,
// which is still a report.
var ErrNoInputs = errors.New("report: no inputs")

// Input is one platform's materialized snapshot. Err carries upstream
// faults (storage read, decompression, charset decoding) that happened
// before any markup existed; such an input becomes an error record without
// running the platform's extractor.
type Input struct {
	HTML string
	Err  error
}

// Report maps platform ids to their extraction records and marshals as the
// summary wire object.
type Report map[string]*extract.Result

// Build runs each registered platform's extractor over its input and
// collects the records. Platform ids missing from the registry are skipped;
// the caller decides whether those deserve a log line.
func Build(inputs map[string]Input) (Report, error) {
	rep := Report{}
	for platform, in := range inputs {
		if !extract.Known(platform) {
			continue
		}
		if in.Err != nil {
			rep[platform] = extract.LoadError(in.Err.Error())
			metrics.RecordExtraction(platform, extract.StatusError, 0)
			continue
		}
		start := time.Now()
		rec, err := extract.Run(platform, in.HTML)
		if err != nil {
			return nil, fmt.Errorf("extract %s: %w", platform, err)
		}
		metrics.RecordExtraction(platform, rec.Status, time.Since(start))
		rep[platform] = rec
	}
	if len(rep) == 0 {
		return nil, ErrNoInputs
	}
	return rep, nil
}

// Encode renders the report as 4-space-indented JSON. Map keys sort, record
// fields keep a fixed order, absent fields are omitted: the same inputs
// always encode to the same bytes.
func Encode(r Report) ([]byte, error) {
	return json.MarshalIndent(r, "", "    ")
}
