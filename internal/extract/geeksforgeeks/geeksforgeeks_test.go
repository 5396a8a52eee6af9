package geeksforgeeks

import (
	"testing"

	"cpstats/internal/extract"
)

func runGeeksForGeeks(t *testing.T, html string) *extract.Result {
	t.Helper()
	rec, err := extract.Run("geeksforgeeks", html)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	return rec
}

const fullProfile = `<html><body>
<div class="circularProgressBar_head_mid_streakCnt__MFOF1">12<span>/1400 days</span></div>
<div class="scoreCard_head__nxXR8"><div class="scoreCard_head_left--score__oSi_x">2150</div></div>
<div class="scoreCard_head__nxXR8"><div class="scoreCard_head_left--score__oSi_x">389</div></div>
<div class="scoreCard_head__nxXR8"><div class="scoreCard_head_left--score__oSi_x">1624</div></div>
<div class="problemNavbar_head_nav__a4K6P">SCHOOL (5)</div>
<div class="problemNavbar_head_nav__a4K6P">BASIC (41)</div>
<div class="problemNavbar_head_nav__a4K6P">EASY (158)</div>
<div class="problemNavbar_head_nav__a4K6P">MEDIUM (163)</div>
<div class="problemNavbar_head_nav__a4K6P">HARD (22)</div>
</body></html>`

func TestParse_FullProfile(t *testing.T) {
	// A complete profile: the streak count without its "/1400 days" unit,
	// the problems and rating cards read by position (the first card is
	// the coding score and is not extracted), the shared difficulty tiers,
	// and the site-specific tiers as extra fields.
	t.Parallel()

	rec := runGeeksForGeeks(t, fullProfile)

	if rec.Status != extract.StatusSuccess || rec.Source != "GeeksForGeeks" {
		t.Fatalf("unexpected record header: %+v", rec)
	}
	if rec.StreakCurrent == nil || *rec.StreakCurrent != 12 {
		t.Fatalf("streak_current: expected 12, got %#v", rec.StreakCurrent)
	}
	if rec.ProblemsSolvedTotal == nil || *rec.ProblemsSolvedTotal != 389 {
		t.Fatalf("problems_solved_total: expected 389, got %#v", rec.ProblemsSolvedTotal)
	}
	if rec.Rating == nil || *rec.Rating != 1624 {
		t.Fatalf("rating: expected 1624, got %#v", rec.Rating)
	}
	if rec.ProblemsSolvedEasy == nil || *rec.ProblemsSolvedEasy != 158 {
		t.Fatalf("problems_solved_easy: expected 158, got %#v", rec.ProblemsSolvedEasy)
	}
	if rec.ProblemsSolvedMedium == nil || *rec.ProblemsSolvedMedium != 163 {
		t.Fatalf("problems_solved_medium: expected 163, got %#v", rec.ProblemsSolvedMedium)
	}
	if rec.ProblemsSolvedHard == nil || *rec.ProblemsSolvedHard != 22 {
		t.Fatalf("problems_solved_hard: expected 22, got %#v", rec.ProblemsSolvedHard)
	}
	if rec.Extra["problems_solved_school"] != 5 {
		t.Fatalf("problems_solved_school: expected 5, got %#v", rec.Extra["problems_solved_school"])
	}
	if rec.Extra["problems_solved_basic"] != 41 {
		t.Fatalf("problems_solved_basic: expected 41, got %#v", rec.Extra["problems_solved_basic"])
	}
}

func TestParse_MissingContent(t *testing.T) {
	t.Parallel()

	rec := runGeeksForGeeks(t, "\t")
	if rec.Status != extract.StatusError || rec.Message != "Missing HTML content for GeeksForGeeks." {
		t.Fatalf("unexpected record: %+v", rec)
	}
}

func TestParse_TwoCardsReadNothing(t *testing.T) {
	// Score cards are read by position, so a layout with fewer than three
	// cards cannot be trusted and yields no card-backed fields.
	t.Parallel()

	html := `<html><body>
<div class="scoreCard_head__nxXR8"><div class="scoreCard_head_left--score__oSi_x">2150</div></div>
<div class="scoreCard_head__nxXR8"><div class="scoreCard_head_left--score__oSi_x">389</div></div>
</body></html>`

	rec := runGeeksForGeeks(t, html)
	if rec.ProblemsSolvedTotal != nil {
		t.Fatalf("problems_solved_total: expected absent, got %d", *rec.ProblemsSolvedTotal)
	}
	if rec.Rating != nil {
		t.Fatalf("rating: expected absent, got %d", *rec.Rating)
	}
}

func TestParse_NavSkipsNonDifficultyTabs(t *testing.T) {
	// Only uppercase "LABEL (n)" tabs are difficulty counts; anything
	// mixed-case or without a parenthesized number is ignored.
	t.Parallel()

	html := `<html><body>
<div class="problemNavbar_head_nav__a4K6P">Fundamental (3)</div>
<div class="problemNavbar_head_nav__a4K6P">EASY</div>
<div class="problemNavbar_head_nav__a4K6P">HARD (7)</div>
</body></html>`

	rec := runGeeksForGeeks(t, html)
	if rec.ProblemsSolvedEasy != nil {
		t.Fatalf("problems_solved_easy: expected absent, got %d", *rec.ProblemsSolvedEasy)
	}
	if rec.ProblemsSolvedHard == nil || *rec.ProblemsSolvedHard != 7 {
		t.Fatalf("problems_solved_hard: expected 7, got %#v", rec.ProblemsSolvedHard)
	}
	if len(rec.Extra) != 0 {
		t.Fatalf("expected no extra fields, got %#v", rec.Extra)
	}
}

func TestParse_PlaceholderStreakReadsAsAbsent(t *testing.T) {
	// New accounts render "__" in the streak dial before any activity.
	t.Parallel()

	html := `<html><body><div class="circularProgressBar_head_mid_streakCnt__MFOF1">__<span>days</span></div></body></html>`

	rec := runGeeksForGeeks(t, html)
	if rec.StreakCurrent != nil {
		t.Fatalf("streak_current: expected absent, got %d", *rec.StreakCurrent)
	}
}
