// Package geeksforgeeks extracts profile statistics from saved
// GeeksForGeeks pages.
//
// The profile is a CSS-modules build, so class names carry generated
// suffixes that change only when the component is rebuilt. The selectors
// pin the full hashed names.
package geeksforgeeks

import (
	"regexp"
	"strings"

	"cpstats/internal/extract"
	"cpstats/internal/htmltext"
	"cpstats/internal/numclean"

	"github.com/PuerkitoBio/goquery"
)

const (
	selStreak    = `.circularProgressBar_head_mid_streakCnt__MFOF1`
	selScoreCard = `.scoreCard_head__nxXR8`
	selScore     = `.scoreCard_head_left--score__oSi_x`
	selNavItem   = `.problemNavbar_head_nav__a4K6P`
)

// difficultyLabel matches navbar tabs like "EASY (158)". The label is
// uppercase in the markup; mixed-case strings are not difficulty tabs.
var difficultyLabel = regexp.MustCompile(`([A-Z]+)\s*\((\d+)\)`)

func init() {
	extract.Register("geeksforgeeks", "GeeksForGeeks", parse)
}

func parse(doc *goquery.Document, rec *extract.Result) {
	root := doc.Selection

	// The streak dial writes the count as the leading text node with the
	// unit in a nested element.
	if v, ok := htmltext.FirstChildText(root.Find(selStreak)); ok {
		if n, ok := numclean.Int(v); ok {
			rec.StreakCurrent = &n
		}
	}

	parseScoreCards(root, rec)
	parseDifficultyNav(root, rec)
}

// parseScoreCards reads the headline cards. Their order is fixed in the
// profile layout: coding score, problems solved, contest rating. Fewer
// than three cards means the layout changed and nothing is read.
func parseScoreCards(root *goquery.Selection, rec *extract.Result) {
	cards := root.Find(selScoreCard)
	if cards.Length() < 3 {
		return
	}
	if n, ok := numclean.IntFrom(htmltext.Text(cards.Eq(1).Find(selScore))); ok {
		rec.ProblemsSolvedTotal = &n
	}
	if n, ok := numclean.IntFrom(htmltext.Text(cards.Eq(2).Find(selScore))); ok {
		rec.Rating = &n
	}
}

// parseDifficultyNav reads the per-difficulty tabs. Easy, medium and hard
// land in the shared fields; GeeksForGeeks-only tiers like SCHOOL and
// BASIC keep the same problems_solved_* naming as extra fields.
func parseDifficultyNav(root *goquery.Selection, rec *extract.Result) {
	root.Find(selNavItem).Each(func(_ int, item *goquery.Selection) {
		m := difficultyLabel.FindStringSubmatch(item.Text())
		if m == nil {
			return
		}
		n, ok := numclean.Int(m[2])
		if !ok {
			return
		}
		switch tier := strings.ToLower(m[1]); tier {
		case "easy":
			rec.ProblemsSolvedEasy = &n
		case "medium":
			rec.ProblemsSolvedMedium = &n
		case "hard":
			rec.ProblemsSolvedHard = &n
		default:
			rec.AddExtra("problems_solved_"+tier, n)
		}
	})
}
