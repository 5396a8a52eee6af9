// Package extract turns saved profile-page markup into Result records.
//
// Each supported platform registers a parse function from its package init;
// the registry is a closed set, so adding a platform is a code change, not
// configuration. All parsing runs behind a shared fault boundary: an empty
// snapshot yields the fixed missing-content record, and any panic inside a
// parse function degrades that platform's record to an error instead of
// failing the report.
package extract

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"cpstats/internal/htmltext"

	"github.com/PuerkitoBio/goquery"
)

// Func parses a document into an already-initialized success record.
//
// Implementations read fields best-effort: a value missing from the page
// leaves its field absent. They never return errors; a genuinely broken
// invariant may panic and the boundary converts it to an error record.
type Func func(doc *goquery.Document, rec *Result)

// Extractor extracts one platform's statistics from snapshot markup.
type Extractor interface {
	// Platform returns the registry id, e.g. "leetcode".
	Platform() string
	// Source returns the display name recorded in results, e.g. "LeetCode".
	Source() string
	// Extract parses markup into a record. It never fails: faults and
	// missing content come back as error records.
	Extract(htmlContent string) *Result
}

var (
	registryMu sync.RWMutex
	registry   = map[string]*extractor{}
)

// Register registers a platform parse function under a platform id.
//
// When to use:
//   - Call Register from an init() function in a platform package.
//   - The platform string becomes the lookup key used by New.
//
// Panics:
//   - If platform or source is empty.
//   - If fn is nil.
//   - If platform is already registered. This is intentional to fail fast
//     on ambiguous registrations.
func Register(platform, source string, fn Func) {
	registryMu.Lock()
	defer registryMu.Unlock()

	if platform == "" {
		panic("extract: Register called with empty platform")
	}
	if source == "" {
		panic("extract: Register called with empty source")
	}
	if fn == nil {
		panic("extract: Register called with nil parse func")
	}
	if _, exists := registry[platform]; exists {
		panic(fmt.Sprintf("extract: parser already registered for platform=%q", platform))
	}

	registry[platform] = &extractor{platform: platform, source: source, parse: fn}
}

// Known reports whether a platform id has a registered extractor.
func Known(platform string) bool {
	registryMu.RLock()
	defer registryMu.RUnlock()
	_, ok := registry[platform]
	return ok
}

// Platforms returns the registered platform ids, sorted.
func Platforms() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	out := make([]string, 0, len(registry))
	for p := range registry {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// New returns the extractor registered for platform.
//
// Errors:
//   - If platform is empty or unregistered. The error names the known
//     platforms to make misconfigured inputs easy to diagnose.
func New(platform string) (Extractor, error) {
	registryMu.RLock()
	e := registry[platform]
	registryMu.RUnlock()

	if e == nil {
		return nil, fmt.Errorf("unsupported platform=%q (known: %s)", platform, strings.Join(Platforms(), ", "))
	}
	return e, nil
}

// Run resolves the extractor for platform and applies it to htmlContent.
func Run(platform, htmlContent string) (*Result, error) {
	e, err := New(platform)
	if err != nil {
		return nil, err
	}
	return e.Extract(htmlContent), nil
}

type extractor struct {
	platform string
	source   string
	parse    Func
}

func (e *extractor) Platform() string { return e.platform }
func (e *extractor) Source() string   { return e.source }

// Extract applies the platform parse function behind the fault boundary.
//
// Behavior:
//   - Blank markup (empty or whitespace-only) returns the fixed
//     missing-content record without touching the parser.
//   - A panic anywhere in the parse function converts the whole record to
//     an error; partially extracted fields are dropped.
func (e *extractor) Extract(htmlContent string) (rec *Result) {
	if strings.TrimSpace(htmlContent) == "" {
		return MissingContent(e.source)
	}

	defer func() {
		if r := recover(); r != nil {
			rec = Fault(e.source, fmt.Sprintf("%v", r))
		}
	}()

	doc, err := htmltext.Parse(htmlContent)
	if err != nil {
		return Fault(e.source, err.Error())
	}

	rec = Success(e.source)
	e.parse(doc, rec)
	return rec
}
