// Package codechef extracts profile statistics from saved CodeChef pages.
package codechef

import (
	"strings"

	"cpstats/internal/extract"
	"cpstats/internal/htmltext"
	"cpstats/internal/numclean"

	"github.com/PuerkitoBio/goquery"
)

const (
	selStars        = `.user-details-container .rating`
	selContestCount = `.contest-participated-count b`
	selRatingHeader = `.rating-header`
	selRatingNumber = `.rating-number`
	selRatingRanks  = `.rating-ranks ul`
)

func init() {
	extract.Register("codechef", "CodeChef", parse)
}

func parse(doc *goquery.Document, rec *extract.Result) {
	root := doc.Selection

	// "4★" with the star dropped; kept as a string since it labels a tier,
	// not a quantity.
	if v, ok := htmltext.TextOf(root, selStars); ok {
		rec.PlatformSpecific["contest_rank_stars"] = strings.ReplaceAll(v, "★", "")
	}

	if n, ok := numclean.IntFrom(htmltext.TextOf(root, selContestCount)); ok {
		rec.ContestsAttended = &n
	}

	// The solved total renders as a single heading, "Total Problems
	// Solved: 1297"; the count follows the last colon.
	heading := htmltext.WithOwnTextContains(root, "h3", "Total Problems Solved")
	if v, ok := htmltext.Text(heading); ok {
		parts := strings.Split(v, ":")
		if n, ok := numclean.Int(parts[len(parts)-1]); ok {
			rec.ProblemsSolvedTotal = &n
		}
	}

	parseRatingHeader(root, rec)
	parseRanks(root, rec)
}

// parseRatingHeader reads the big rating block. The rating number's leading
// text node is the value; a trailing <small> holds a provisional marker
// that must not leak into the number. The division label sits in a sibling
// div as "(Div 2)".
func parseRatingHeader(root *goquery.Selection, rec *extract.Result) {
	header := root.Find(selRatingHeader).First()
	if header.Length() == 0 {
		return
	}

	if v, ok := htmltext.FirstChildText(header.Find(selRatingNumber)); ok {
		if n, ok := numclean.Int(v); ok {
			rec.Rating = &n
		}
	}

	division := htmltext.WithOwnTextContains(header, "div", "(Div")
	if v, ok := htmltext.Text(division); ok {
		v = strings.ReplaceAll(v, "(", "")
		v = strings.ReplaceAll(v, ")", "")
		rec.PlatformSpecific["division"] = v
	}
}

// parseRanks reads the global and country ranks from the ranks list.
// Inactive profiles print a word instead of a number there, which reads as
// absent.
func parseRanks(root *goquery.Selection, rec *extract.Result) {
	list := root.Find(selRatingRanks).First()
	if list.Length() == 0 {
		return
	}

	list.Find("li").Each(func(_ int, li *goquery.Selection) {
		v, ok := htmltext.Text(li.Find("strong"))
		if !ok {
			return
		}
		n, ok := numclean.Int(v)
		if !ok {
			return
		}
		switch text := li.Text(); {
		case strings.Contains(text, "Global Rank"):
			rec.RankGlobal = &n
		case strings.Contains(text, "Country Rank"):
			rec.RankCountry = &n
		}
	})
}
