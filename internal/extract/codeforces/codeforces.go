// Package codeforces extracts profile statistics from saved Codeforces
// pages.
package codeforces

import (
	"strings"

	"cpstats/internal/extract"
	"cpstats/internal/htmltext"
	"cpstats/internal/numclean"

	"github.com/PuerkitoBio/goquery"
)

const (
	selInfo               = `div.info`
	selActivityFooter     = `div._UserActivityFrame_footer`
	selActivityCounter    = `div._UserActivityFrame_counter`
	selCounterValue       = `div._UserActivityFrame_counterValue`
	selCounterDescription = `div._UserActivityFrame_counterDescription`
)

func init() {
	extract.Register("codeforces", "Codeforces", parse)
}

func parse(doc *goquery.Document, rec *extract.Result) {
	root := doc.Selection
	parseInfoList(root, rec)
	parseActivityCounters(root, rec)
}

// parseInfoList walks the profile info list. Codeforces labels values
// inline, e.g. "Contest rating: 1843 (max. candidate master, 1910)", so
// each li is classified by its text and unpacked by span position.
func parseInfoList(root *goquery.Selection, rec *extract.Result) {
	info := root.Find(selInfo).First()
	if info.Length() == 0 {
		return
	}

	info.Find("li").Each(func(_ int, li *goquery.Selection) {
		switch text := li.Text(); {
		case strings.Contains(text, "Contest rating:"):
			if n, ok := numclean.IntFrom(htmltext.Text(li.Find("span.user-gray"))); ok {
				rec.Rating = &n
			}
			parseMaxRating(li, rec)
		case strings.Contains(text, "Contribution:"):
			if n, ok := numclean.IntFrom(htmltext.Text(li.Find("span"))); ok {
				rec.PlatformSpecific["contribution"] = n
			}
		}
	})
}

// parseMaxRating reads the parenthesized best-ever part of the rating line:
// the rank title span followed by the numeric span. The title keeps its
// wording but drops the trailing comma.
func parseMaxRating(li *goquery.Selection, rec *extract.Result) {
	smaller := li.Find("span.smaller").First()
	if smaller.Length() == 0 {
		return
	}
	maxRank := smaller.Find("span.user-gray").First()
	if maxRank.Length() == 0 {
		return
	}

	if v, ok := htmltext.Text(maxRank); ok {
		rec.PlatformSpecific["max_rank"] = strings.ReplaceAll(v, ",", "")
	}
	value := htmltext.NextSiblingMatching(maxRank, "span")
	if n, ok := numclean.IntFrom(htmltext.Text(value)); ok {
		rec.RatingMax = &n
	}
}

// parseActivityCounters reads the problem-solving counters under the
// activity graph. Each counter pairs a value ("1,578 problems") with a
// description that identifies it.
func parseActivityCounters(root *goquery.Selection, rec *extract.Result) {
	footer := root.Find(selActivityFooter).First()
	if footer.Length() == 0 {
		return
	}

	footer.Find(selActivityCounter).Each(func(_ int, counter *goquery.Selection) {
		value, haveValue := htmltext.Text(counter.Find(selCounterValue))
		description, haveDescription := htmltext.Text(counter.Find(selCounterDescription))
		if !haveValue || !haveDescription {
			return
		}
		n, ok := numclean.Int(value)
		if !ok {
			return
		}
		switch {
		case strings.Contains(description, "solved for all time"):
			rec.ProblemsSolvedTotal = &n
		case strings.Contains(description, "in a row max"):
			rec.StreakMax = &n
		}
	})
}
