// Package numclean normalizes noisy scraped text into integers.
//
// Profile pages decorate numbers freely: thousands separators ("1,672"),
// rank ornaments ("4★"), surrounding words ("Rank: 23"), and placeholder
// sentinels for values a user has not published ("__", "?"). Every numeric
// field pulled from a snapshot passes through this package so the stripping
// rules live in exactly one place.
package numclean

import (
	"strconv"
	"strings"
)

// blankSentinels are placeholders platforms render when a profile value is
// not published. They mean "absent", never zero.
var blankSentinels = map[string]bool{
	"__": true,
	"?":  true,
}

// Int normalizes s into an integer.
//
// Behavior:
//   - Surrounding whitespace is trimmed.
//   - Blank sentinels ("__", "?") report absence.
//   - Every rune other than an ASCII digit or '-' is stripped, so "1,672",
//     "Rank: 23" and "4★" normalize to 1672, 23 and 4. Stripping is purely
//     character-class based; callers slice composite strings first (e.g.
//     splitting "Solved: 120 / 500" on ':' or '/').
//   - An empty remainder, or one that still does not parse as base-10
//     (a stray interior or lone '-'), reports absence.
//
// Int is total: it never panics and has no error path. The second return
// value is false when the value is absent.
func Int(s string) (int, bool) {
	s = strings.TrimSpace(s)
	if s == "" || blankSentinels[s] {
		return 0, false
	}

	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if (r >= '0' && r <= '9') || r == '-' {
			b.WriteRune(r)
		}
	}

	cleaned := b.String()
	if cleaned == "" {
		return 0, false
	}

	n, err := strconv.Atoi(cleaned)
	if err != nil {
		return 0, false
	}
	return n, true
}

// IntFrom chains Int behind lookups that already report presence, e.g.
//
//	if n, ok := numclean.IntFrom(doc.Text(".rating")); ok { ... }
//
// When ok is false the value is absent without inspecting s.
func IntFrom(s string, ok bool) (int, bool) {
	if !ok {
		return 0, false
	}
	return Int(s)
}
