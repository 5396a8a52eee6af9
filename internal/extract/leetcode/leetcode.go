// Package leetcode extracts profile statistics from saved LeetCode pages.
//
// LeetCode renders with utility-class markup, so the selectors below pin
// exact class combinations (colons and brackets escaped for cascadia).
// Adapting to a markup change means editing one selector constant.
package leetcode

import (
	"sort"
	"strconv"
	"strings"
	"time"

	"cpstats/internal/extract"
	"cpstats/internal/htmltext"
	"cpstats/internal/numclean"

	"github.com/PuerkitoBio/goquery"
)

const (
	selRating     = `div.text-label-1.dark\:text-dark-label-1.flex.items-center.text-2xl`
	selRankGlobal = `div.text-label-1.dark\:text-dark-label-1.font-medium.leading-\[22px\]`
	selTopPct     = `div.absolute.left-0.top-0 div.text-label-1.dark\:text-dark-label-1.text-2xl`
	selContests   = `div.hidden.md\:block div.text-label-1.dark\:text-dark-label-1.font-medium`

	selDifficulty    = `.flex.h-full.w-\[90px\].flex-none.flex-col.gap-2`
	selProgressChart = `.relative.aspect-\[1\/1\]`
	selActivityRow   = `div.lc-md\:flex-row`

	selHeatmapSvg      = `div.lc-md\:flex.hidden.h-auto.w-full.flex-1.items-center.justify-center svg`
	selHeatmapDateCell = `g.month g.week rect[data-date]`
	selHeatmapFillCell = `g.month g.week rect.cursor-pointer`
)

// badgePath marks badge images; the same fragment appears in inline-svg
// <image xlink:href> and plain <img src> variants of the badge strip.
const badgePath = "/static/images/badges/"

func init() {
	extract.Register("leetcode", "LeetCode", parse)
}

func parse(doc *goquery.Document, rec *extract.Result) {
	root := doc.Selection

	if n, ok := numclean.IntFrom(htmltext.TextOf(root, selRating)); ok {
		rec.Rating = &n
	}
	if n, ok := numclean.IntFrom(htmltext.FirstChildText(root.Find(selRankGlobal))); ok {
		rec.RankGlobal = &n
	}
	if v, ok := htmltext.TextOf(root, selTopPct); ok {
		rec.PlatformSpecific["top_percentage"] = v
	}
	if n, ok := numclean.IntFrom(htmltext.TextOf(root, selContests)); ok {
		rec.ContestsAttended = &n
	}

	rec.PlatformSpecific["badges"] = countBadges(root)

	parseDifficulties(root, rec)
	parseProgressChart(root, rec)
	parseActivityRow(root, rec)
	parseHeatmap(root, rec)
}

// countBadges counts badge images across both markup variants. The first
// match is the "most recent badge" banner duplicating one of the strip
// images, so N matches mean N-1 badges; no matches mean zero.
func countBadges(root *goquery.Selection) int {
	attrs := []string{"xlink:href", "src"}
	n := 0
	root.Find("image, img").Each(func(_ int, s *goquery.Selection) {
		if htmltext.AttrAnyContains(s, attrs, badgePath) {
			n++
		}
	})
	if n == 0 {
		return 0
	}
	return n - 1
}

// parseDifficulties reads the solved-problems breakdown. The container has
// one direct child per difficulty, each reading like "886/3672" in its
// second div. Exactly three children mean Easy/Medium/Hard in order; any
// other count means the layout changed and all four fields stay absent.
// The total is the sum of the three, counting an unreadable group as zero.
func parseDifficulties(root *goquery.Selection, rec *extract.Result) {
	container := root.Find(selDifficulty).First()
	if container.Length() == 0 {
		return
	}
	groups := container.ChildrenFiltered("div")
	if groups.Length() != 3 {
		return
	}

	vals := make([]*int, 3)
	groups.Each(func(i int, g *goquery.Selection) {
		raw, ok := htmltext.Text(g.Find("div").Eq(1))
		if !ok {
			return
		}
		solved := strings.TrimSpace(strings.SplitN(raw, "/", 2)[0])
		if n, ok := numclean.Int(solved); ok {
			vals[i] = &n
		}
	})

	rec.ProblemsSolvedEasy, rec.ProblemsSolvedMedium, rec.ProblemsSolvedHard = vals[0], vals[1], vals[2]

	total := 0
	for _, v := range vals {
		if v != nil {
			total += *v
		}
	}
	rec.ProblemsSolvedTotal = &total
}

// parseProgressChart reads the submissions donut: the count span just
// before the "submissions" label and the value div just before the
// "Acceptance" label. The acceptance rate stays a string ("98.5%").
func parseProgressChart(root *goquery.Selection, rec *extract.Result) {
	chart := root.Find(selProgressChart).First()
	if chart.Length() == 0 {
		return
	}

	subs := htmltext.WithOwnTextContainsFold(chart, "div", "submission")
	if n, ok := numclean.IntFrom(htmltext.PrevSiblingText(subs, "span")); ok {
		rec.PlatformSpecific["total_submissions"] = n
	}

	acc := htmltext.WithOwnTextContains(chart, "div", "Acceptance")
	if v, ok := htmltext.PrevSiblingText(acc, "div"); ok {
		rec.PlatformSpecific["acceptance_rate"] = v
	}
}

// parseActivityRow reads the labeled totals next to the calendar. The
// values sit immediately after their label spans in the minified markup.
func parseActivityRow(root *goquery.Selection, rec *extract.Result) {
	row := root.Find(selActivityRow).First()
	if row.Length() == 0 {
		return
	}

	days := htmltext.WithOwnTextEquals(row, "span", "Total active days:")
	if n, ok := numclean.IntFrom(htmltext.NextSiblingText(days)); ok {
		rec.PlatformSpecific["total_active_days"] = n
	}

	streak := htmltext.WithOwnTextEquals(row, "span", "Max streak:")
	if n, ok := numclean.IntFrom(htmltext.NextSiblingText(streak)); ok {
		rec.StreakMax = &n
	}
}

// parseHeatmap derives streaks from the activity calendar. Two generations
// of the markup are in the wild: cells carrying data-date/data-count, and
// older cells where activity is a green fill. No svg at all means the
// profile simply has no calendar; the streaks are then explicit zeros, and
// a labeled max streak from parseActivityRow takes precedence over the
// calculated one.
func parseHeatmap(root *goquery.Selection, rec *extract.Result) {
	svg := root.Find(selHeatmapSvg).First()
	if svg.Length() == 0 {
		svg = root.Find("svg").First()
	}
	if svg.Length() == 0 {
		zero := 0
		rec.StreakCurrent = &zero
		if rec.StreakMax == nil {
			rec.StreakMax = &zero
		}
		return
	}

	var current, longest int
	if dateCells := svg.Find(selHeatmapDateCell); dateCells.Length() > 0 {
		current, longest = streaksFromDateCells(dateCells)
	} else {
		current, longest = streaksFromFillCells(svg.Find(selHeatmapFillCell))
	}

	rec.StreakCurrent = &current
	if rec.StreakMax == nil {
		rec.StreakMax = &longest
	}
}

// streaksFromDateCells computes streaks from data-date/data-count cells.
//
// The longest streak is the longest run of positive counts over the
// date-sorted cells; a zero-count cell breaks a run, a calendar gap between
// cells does not (rendered weeks are contiguous in practice). The current
// streak walks back from the latest cell one calendar day at a time while
// positive-count cells exist. Malformed cells are skipped: a bad date drops
// the cell, a bad count reads as zero.
func streaksFromDateCells(cells *goquery.Selection) (current, longest int) {
	counts := map[string]int{}
	var last time.Time
	haveLast := false

	cells.Each(func(_ int, c *goquery.Selection) {
		raw, _ := c.Attr("data-date")
		raw = strings.TrimSpace(raw)
		if raw == "" {
			return
		}
		day, err := time.Parse("2006-01-02", raw)
		if err != nil {
			return
		}
		n := 0
		if v, ok := c.Attr("data-count"); ok {
			if parsed, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
				n = parsed
			}
		}
		counts[raw] = n
		if !haveLast || day.After(last) {
			last = day
			haveLast = true
		}
	})

	if len(counts) == 0 {
		return 0, 0
	}

	dates := make([]string, 0, len(counts))
	for d := range counts {
		dates = append(dates, d)
	}
	sort.Strings(dates) // ISO dates sort chronologically

	streak := 0
	for _, d := range dates {
		if counts[d] > 0 {
			streak++
		} else {
			streak = 0
		}
		if streak > longest {
			longest = streak
		}
	}

	for day := last; ; day = day.AddDate(0, 0, -1) {
		n, ok := counts[day.Format("2006-01-02")]
		if !ok || n <= 0 {
			break
		}
		current++
	}

	return current, longest
}

// streaksFromFillCells computes streaks from fill-encoded cells. A cell is
// an active day when its fill starts with the green custom-property
// prefix; document order is chronological.
func streaksFromFillCells(cells *goquery.Selection) (current, longest int) {
	var active []bool
	cells.Each(func(_ int, c *goquery.Selection) {
		fill, _ := c.Attr("fill")
		active = append(active, strings.HasPrefix(strings.TrimSpace(fill), "var(--green"))
	})

	streak := 0
	for _, a := range active {
		if a {
			streak++
		} else {
			streak = 0
		}
		if streak > longest {
			longest = streak
		}
	}
	for i := len(active) - 1; i >= 0; i-- {
		if !active[i] {
			break
		}
		current++
	}
	return current, longest
}
