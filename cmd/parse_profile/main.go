// Command parse_profile runs one platform extractor against a single
// snapshot. It exists for poking at extraction behavior outside the
// pipeline: checking what a saved page yields, which fields came out
// empty, and what a CSS selector would match.
//
//	parse_profile -platform leetcode -in page.gz
//	gunzip -c page.gz | parse_profile -platform leetcode -coverage
//	parse_profile -selector "div.profile li" -in page.html
//
// The record is printed as JSON on stdout. A snapshot the extractor cannot
// parse still produces a record (status "error"), so that path exits 0;
// only I/O faults exit 1 and usage mistakes exit 2.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"

	"cpstats/internal/extract"
	_ "cpstats/internal/extract/all"
	"cpstats/internal/htmltext"
	"cpstats/internal/snapshot"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

// run is the testable entrypoint for this command.
//
// Exit codes:
//   - 0 on success, including records with status "error"
//   - 1 on operational errors (unreadable input, corrupt gzip)
//   - 2 on invalid usage (bad flags, unknown platform, bad selector)
func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	var (
		platform string
		inPath   string
		forceGz  bool
		pretty   bool
		list     bool
		selector string
		coverage bool
	)

	fs := flag.NewFlagSet("parse_profile", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&platform, "platform", "", "platform id of the extractor to run (see -list)")
	fs.StringVar(&inPath, "in", "", "path to the snapshot (reads stdin if omitted)")
	fs.BoolVar(&forceGz, "gz", false, "require gzip input instead of auto-detecting")
	fs.BoolVar(&pretty, "pretty", true, "indent the JSON record")
	fs.BoolVar(&list, "list", false, "print the registered platform ids and exit")
	fs.StringVar(&selector, "selector", "", "print markup matching this CSS selector instead of extracting")
	fs.BoolVar(&coverage, "coverage", false, "print per-field presence instead of the record")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	if list {
		for _, id := range extract.Platforms() {
			fmt.Fprintln(stdout, id)
		}
		return 0
	}

	if platform == "" && selector == "" {
		fmt.Fprintln(stderr, "missing required -platform (or use -selector / -list)")
		return 2
	}
	if platform != "" && !extract.Known(platform) {
		fmt.Fprintf(stderr, "unknown platform %q; known: %s\n", platform, strings.Join(extract.Platforms(), ", "))
		return 2
	}

	raw, err := readInput(inPath, stdin)
	if err != nil {
		fmt.Fprintf(stderr, "read input: %v\n", err)
		return 1
	}
	if forceGz && !snapshot.IsGzip(raw) {
		fmt.Fprintln(stderr, "input does not start with a gzip header (drop -gz for plain HTML)")
		return 1
	}
	htmlContent, err := snapshot.Decode(raw)
	if err != nil {
		fmt.Fprintf(stderr, "decode snapshot: %v\n", err)
		return 1
	}

	if selector != "" {
		return runSelector(htmlContent, selector, stdout, stderr)
	}

	rec, err := extract.Run(platform, htmlContent)
	if err != nil {
		fmt.Fprintf(stderr, "extract: %v\n", err)
		return 2
	}

	if coverage {
		for _, line := range coverageLines(rec) {
			fmt.Fprintln(stdout, line)
		}
		return 0
	}

	var out []byte
	if pretty {
		out, err = json.MarshalIndent(rec, "", "  ")
	} else {
		out, err = json.Marshal(rec)
	}
	if err != nil {
		fmt.Fprintf(stderr, "encode record: %v\n", err)
		return 1
	}
	fmt.Fprintln(stdout, string(out))
	return 0
}

// readInput returns the snapshot bytes from the named file, or stdin when
// no file is given.
func readInput(path string, stdin io.Reader) ([]byte, error) {
	if path == "" {
		return io.ReadAll(stdin)
	}
	return os.ReadFile(path)
}

// runSelector prints the outer markup of every node matching the CSS
// selector, one truncated line each, with the match count on stderr.
// The selector is compiled up front so a bad pattern is reported as a
// usage error instead of a panic inside goquery.
func runSelector(htmlContent, selector string, stdout, stderr io.Writer) int {
	matcher, err := cascadia.Compile(selector)
	if err != nil {
		fmt.Fprintf(stderr, "bad selector %q: %v\n", selector, err)
		return 2
	}
	doc, err := htmltext.Parse(htmlContent)
	if err != nil {
		fmt.Fprintf(stderr, "parse html: %v\n", err)
		return 1
	}

	count := 0
	doc.FindMatcher(matcher).Each(func(_ int, s *goquery.Selection) {
		count++
		markup, err := goquery.OuterHtml(s)
		if err != nil {
			markup = fmt.Sprintf("<!-- render error: %v -->", err)
		}
		fmt.Fprintln(stdout, truncate(oneLine(markup), 200))
	})
	fmt.Fprintf(stderr, "%d match(es)\n", count)
	return 0
}

// coverageLines reports which record fields the extractor populated, one
// "field=<name> present=<bool>" line per fixed field. Dynamic fields
// (extras and platform_specific entries) appear only when present, sorted
// by name.
func coverageLines(rec *extract.Result) []string {
	type field struct {
		name    string
		present bool
	}
	fields := []field{
		{"rating", rec.Rating != nil},
		{"rating_max", rec.RatingMax != nil},
		{"rank_global", rec.RankGlobal != nil},
		{"rank_country", rec.RankCountry != nil},
		{"problems_solved_total", rec.ProblemsSolvedTotal != nil},
		{"problems_solved_easy", rec.ProblemsSolvedEasy != nil},
		{"problems_solved_medium", rec.ProblemsSolvedMedium != nil},
		{"problems_solved_hard", rec.ProblemsSolvedHard != nil},
		{"contests_attended", rec.ContestsAttended != nil},
		{"streak_current", rec.StreakCurrent != nil},
		{"streak_max", rec.StreakMax != nil},
	}

	lines := make([]string, 0, len(fields)+len(rec.Extra)+len(rec.PlatformSpecific)+1)
	lines = append(lines, "status="+rec.Status)
	for _, f := range fields {
		lines = append(lines, fmt.Sprintf("field=%s present=%t", f.name, f.present))
	}

	var extras []string
	for name := range rec.Extra {
		extras = append(extras, name)
	}
	sort.Strings(extras)
	for _, name := range extras {
		lines = append(lines, fmt.Sprintf("field=%s present=true", name))
	}

	var specific []string
	for name := range rec.PlatformSpecific {
		specific = append(specific, name)
	}
	sort.Strings(specific)
	for _, name := range specific {
		lines = append(lines, fmt.Sprintf("field=platform_specific.%s present=true", name))
	}
	return lines
}

// oneLine collapses markup onto a single line for terminal output.
func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	cut := n
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
