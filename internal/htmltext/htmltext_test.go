package htmltext

import (
	"testing"

	"github.com/PuerkitoBio/goquery"
)

// mustParse parses markup or fails the test; the lookup helpers are the
// subject under test, not the parser.
func mustParse(t *testing.T, markup string) *goquery.Document {
	t.Helper()
	doc, err := Parse(markup)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	return doc
}

func TestText_PresenceSemantics(t *testing.T) {
	// This test pins the three-way contract: missing node is absent, a
	// present node with text yields it trimmed, and a present-but-empty
	// node is present with "" (absence tracks nodes, not content).
	t.Parallel()

	doc := mustParse(t, `<div class="a">  1,672  </div><div class="b"></div>`)

	if v, ok := TextOf(doc.Selection, ".a"); !ok || v != "1,672" {
		t.Fatalf("expected (%q, true), got (%q, %v)", "1,672", v, ok)
	}
	if v, ok := TextOf(doc.Selection, ".b"); !ok || v != "" {
		t.Fatalf("expected present empty text, got (%q, %v)", v, ok)
	}
	if _, ok := TextOf(doc.Selection, ".missing"); ok {
		t.Fatalf("expected absent for missing selector")
	}
}

func TestFirstChildText_OnlyLeadingTextNode(t *testing.T) {
	// Values like <div>1672<small>?</small></div> must yield only the
	// leading text node; an element-first child means the shape is not the
	// one the rule expects and the field stays absent.
	t.Parallel()

	doc := mustParse(t, `
		<div class="rating">1672<small>?</small></div>
		<div class="wrapped"><small>?</small>1672</div>
		<div class="empty"></div>`)

	if v, ok := FirstChildText(doc.Find(".rating")); !ok || v != "1672" {
		t.Fatalf("expected (%q, true), got (%q, %v)", "1672", v, ok)
	}
	if _, ok := FirstChildText(doc.Find(".wrapped")); ok {
		t.Fatalf("element-first child must be absent")
	}
	if _, ok := FirstChildText(doc.Find(".empty")); ok {
		t.Fatalf("childless element must be absent")
	}
	if _, ok := FirstChildText(doc.Find(".missing")); ok {
		t.Fatalf("missing selector must be absent")
	}
}

func TestNextSiblingText_TextAndElementSiblings(t *testing.T) {
	// Labels on minified profile pages are followed either by a bare text
	// node or by a value span. Both shapes must yield the value; a label
	// with nothing after it is absent.
	t.Parallel()

	doc := mustParse(t, `<div>`+
		`<span class="lbl-a">Total active days:</span> 46 `+
		`<div class="row"><span class="lbl-b">Max streak:</span><span class="val">16</span></div>`+
		`<p><span class="lbl-c">Tail:</span></p>`+
		`</div>`)

	if v, ok := NextSiblingText(doc.Find(".lbl-a")); !ok || v != "46" {
		t.Fatalf("text sibling: expected (%q, true), got (%q, %v)", "46", v, ok)
	}
	if v, ok := NextSiblingText(doc.Find(".lbl-b")); !ok || v != "16" {
		t.Fatalf("element sibling: expected (%q, true), got (%q, %v)", "16", v, ok)
	}
	if _, ok := NextSiblingText(doc.Find(".lbl-c")); ok {
		t.Fatalf("trailing label must be absent")
	}
}

func TestPrevSiblingText_NearestMatchWins(t *testing.T) {
	// find-previous-sibling semantics: the NEAREST preceding sibling that
	// matches the selector, not the first in document order.
	t.Parallel()

	doc := mustParse(t, `<div>`+
		`<span>7,000,000</span>`+
		`<span>7,464</span>`+
		`<div class="needle">submissions</div>`+
		`</div>`)

	v, ok := PrevSiblingText(doc.Find(".needle"), "span")
	if !ok || v != "7,464" {
		t.Fatalf("expected nearest span %q, got (%q, %v)", "7,464", v, ok)
	}
}

func TestOwnTextPredicates(t *testing.T) {
	// Own-text matching must see only direct text children: the container
	// div's subtree contains "submission" but its own text does not, so
	// only the leaf matches. Full-text matching is the opposite and is
	// pinned here for contrast.
	t.Parallel()

	doc := mustParse(t, `<div class="chart">`+
		`<span>7,464</span><div class="leaf">1,234 Submissions</div>`+
		`</div>`)

	leaf := WithOwnTextContainsFold(doc.Selection, "div", "submission")
	if leaf.Length() == 0 || !leaf.HasClass("leaf") {
		t.Fatalf("own-text match should be the leaf div, got %d nodes", leaf.Length())
	}

	full := WithTextContains(doc.Selection, "div", "Submissions")
	if full.Length() == 0 || !full.HasClass("chart") {
		t.Fatalf("full-text match should be the outer div (document order)")
	}

	if got := WithOwnTextContains(doc.Selection, "div", "submission"); got.Length() != 0 {
		t.Fatalf("case-sensitive own-text contains must not match %q", "Submissions")
	}
}

func TestWithOwnTextEquals_TrimsBeforeComparing(t *testing.T) {
	t.Parallel()

	doc := mustParse(t, `<span class="x"> Max streak: </span><span>Max streak: 16</span>`)

	got := WithOwnTextEquals(doc.Selection, "span", "Max streak:")
	if got.Length() == 0 || !got.HasClass("x") {
		t.Fatalf("expected exact-label span, got %d nodes", got.Length())
	}
}

func TestNextSiblingMatching_SkipsNonMatches(t *testing.T) {
	t.Parallel()

	doc := mustParse(t, `<li><span class="a">expert,</span><i>sep</i><span class="b">1581</span></li>`)

	got := NextSiblingMatching(doc.Find(".a"), "span")
	if got.Length() == 0 || !got.HasClass("b") {
		t.Fatalf("expected following span .b")
	}
	if got := NextSiblingMatching(doc.Find(".b"), "span"); got.Length() != 0 {
		t.Fatalf("no following span expected after .b")
	}
}

func TestAttrAnyContains_NamespacedAttributes(t *testing.T) {
	// Badge images inside inline SVG carry xlink:href; plain <img> carries
	// src. Both spellings must be found regardless of how the parser
	// recorded the namespace.
	t.Parallel()

	doc := mustParse(t, `<div>`+
		`<svg><image xlink:href="/static/images/badges/2024-04.png"></image></svg>`+
		`<img class="plain" src="/static/images/badges/dcc.png">`+
		`<img class="other" src="/static/images/avatar.png">`+
		`</div>`)

	attrs := []string{"xlink:href", "href", "src"}

	n := 0
	doc.Find("image, img").Each(func(_ int, s *goquery.Selection) {
		if AttrAnyContains(s, attrs, "/static/images/badges/") {
			n++
		}
	})
	if n != 2 {
		t.Fatalf("expected 2 badge images, got %d", n)
	}
}
