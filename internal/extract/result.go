package extract

import (
	"bytes"
	"encoding/json"
	"sort"
	"strconv"
)

// Record status values.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Result is one platform's extracted statistics, JSON-ready.
//
// Common fields are pointers so that "value not found on the page" is
// omitted from the wire format entirely; the report contract has no nulls.
// PlatformSpecific carries platform-unique values with no fixed schema.
// Extra carries additional top-level integer fields with dynamic names
// (GeeksForGeeks difficulty labels outside easy/medium/hard); MarshalJSON
// splices them into the object alongside the fixed fields.
//
// This output is intended for machine parsing. Additive changes are safe;
// renames/removals are breaking changes for downstream report consumers.
type Result struct {
	Source  string `json:"source,omitempty"`
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`

	Rating               *int `json:"rating,omitempty"`
	RatingMax            *int `json:"rating_max,omitempty"`
	RankGlobal           *int `json:"rank_global,omitempty"`
	RankCountry          *int `json:"rank_country,omitempty"`
	ProblemsSolvedTotal  *int `json:"problems_solved_total,omitempty"`
	ProblemsSolvedEasy   *int `json:"problems_solved_easy,omitempty"`
	ProblemsSolvedMedium *int `json:"problems_solved_medium,omitempty"`
	ProblemsSolvedHard   *int `json:"problems_solved_hard,omitempty"`
	ContestsAttended     *int `json:"contests_attended,omitempty"`
	StreakCurrent        *int `json:"streak_current,omitempty"`
	StreakMax            *int `json:"streak_max,omitempty"`

	Extra map[string]int `json:"-"`

	PlatformSpecific map[string]any `json:"platform_specific,omitempty"`
}

// Success returns a fresh success record for source with an empty
// platform_specific map ready for writes.
func Success(source string) *Result {
	return &Result{
		Source:           source,
		Status:           StatusSuccess,
		PlatformSpecific: map[string]any{},
	}
}

// MissingContent is the record for an empty snapshot: a fixed
// platform-named message and nothing else, not even the source field.
func MissingContent(source string) *Result {
	return &Result{
		Status:  StatusError,
		Message: "Missing HTML content for " + source + ".",
	}
}

// Fault degrades the whole record to an error. No data fields survive;
// extraction is all-or-nothing at the record level.
func Fault(source, cause string) *Result {
	return &Result{
		Source:  source,
		Status:  StatusError,
		Message: "Failed to parse " + source + " HTML: " + cause,
	}
}

// LoadError is the record for a snapshot that could not be materialized at
// all (storage read or decompression fault before markup existed). It
// mirrors MissingContent's shape: status and message only.
func LoadError(cause string) *Result {
	return &Result{
		Status:  StatusError,
		Message: cause,
	}
}

// AddExtra records a dynamically named top-level integer field.
func (r *Result) AddExtra(name string, value int) {
	if r.Extra == nil {
		r.Extra = map[string]int{}
	}
	r.Extra[name] = value
}

// MarshalJSON emits the fixed fields in declaration order and then any
// Extra fields, sorted by name, before the closing brace. Output is
// deterministic for a given record.
func (r *Result) MarshalJSON() ([]byte, error) {
	type plain Result
	base, err := json.Marshal((*plain)(r))
	if err != nil || len(r.Extra) == 0 {
		return base, err
	}

	names := make([]string, 0, len(r.Extra))
	for name := range r.Extra {
		names = append(names, name)
	}
	sort.Strings(names)

	var b bytes.Buffer
	b.Grow(len(base) + 32*len(names))
	b.Write(base[:len(base)-1]) // reopen the object
	for _, name := range names {
		b.WriteByte(',')
		nb, err := json.Marshal(name)
		if err != nil {
			return nil, err
		}
		b.Write(nb)
		b.WriteByte(':')
		b.Write(strconv.AppendInt(nil, int64(r.Extra[name]), 10))
	}
	b.WriteByte('}')
	return b.Bytes(), nil
}
