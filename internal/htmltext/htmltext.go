// Package htmltext provides absence-tolerant text lookups over parsed HTML.
//
// Platform extractors read dozens of small values out of snapshot markup.
// The lookups here share one contract: a missing node, an empty selection,
// or a node of unexpected shape yields ("", false) and never an error. That
// keeps per-field absence cheap and pushes all "is it there?" decisions to
// the caller, which either records the value or moves on.
//
// Selectors are standard CSS (cascadia). Utility-class selectors with ':',
// '[', ']' or '/' in class names must be escaped, e.g.
// `div.lc-md\:flex-row` or `.aspect-\[1\/1\]`.
package htmltext

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// Parse parses an HTML document from a string.
//
// The underlying parser is error-tolerant; Parse fails only on reader-level
// problems, which cannot happen for in-memory strings in practice. Callers
// should still check the error to keep the fault path honest.
func Parse(htmlContent string) (*goquery.Document, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(htmlContent))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	return doc, nil
}

// Text returns the trimmed text of the first node in s.
//
// The boolean reports whether a node exists at all; a present node with
// empty text returns ("", true).
func Text(s *goquery.Selection) (string, bool) {
	if s == nil || s.Length() == 0 {
		return "", false
	}
	return strings.TrimSpace(s.First().Text()), true
}

// TextOf is Text over root.Find(selector).
func TextOf(root *goquery.Selection, selector string) (string, bool) {
	return Text(root.Find(selector))
}

// FirstChildText returns the trimmed data of the first child node of the
// first element in s, provided that child is a text node.
//
// This reads values like the "1672" in <div>1672<small>?</small></div>
// where only the leading text node is wanted. An element whose first child
// is not a text node (or that has no children) reports absence.
func FirstChildText(s *goquery.Selection) (string, bool) {
	if s == nil || s.Length() == 0 {
		return "", false
	}
	child := s.Get(0).FirstChild
	if child == nil || child.Type != html.TextNode {
		return "", false
	}
	return strings.TrimSpace(child.Data), true
}

// NextSiblingText returns the trimmed text of the node immediately
// following the first element in s.
//
// A text-node sibling yields its own data; an element sibling yields its
// subtree text. There is no whitespace skipping: in pretty-printed markup
// the immediate sibling is often an indentation text node, which trims to
// "" (present but empty). Minified profile pages place the value directly
// after its label, which is the layout this helper targets.
func NextSiblingText(s *goquery.Selection) (string, bool) {
	if s == nil || s.Length() == 0 {
		return "", false
	}
	sib := s.Get(0).NextSibling
	if sib == nil {
		return "", false
	}
	switch sib.Type {
	case html.TextNode:
		return strings.TrimSpace(sib.Data), true
	case html.ElementNode:
		return strings.TrimSpace(nodeText(sib)), true
	default:
		return "", false
	}
}

// PrevSiblingText returns the trimmed text of the nearest preceding sibling
// of s's first element that matches selector.
func PrevSiblingText(s *goquery.Selection, selector string) (string, bool) {
	if s == nil || s.Length() == 0 {
		return "", false
	}
	return Text(s.First().PrevAllFiltered(selector).First())
}

// NextSiblingMatching returns the nearest following sibling of s's first
// element that matches selector. The returned selection may be empty.
func NextSiblingMatching(s *goquery.Selection, selector string) *goquery.Selection {
	return s.First().NextAllFiltered(selector).First()
}

// WithOwnTextEquals returns the first element under root matching selector
// whose own text (direct text children only, trimmed) equals label.
//
// "Own text" deliberately ignores descendant elements so that label spans
// like <span>Max streak:</span> match while their containers do not.
func WithOwnTextEquals(root *goquery.Selection, selector, label string) *goquery.Selection {
	return firstWhere(root, selector, func(s *goquery.Selection) bool {
		return strings.TrimSpace(ownText(s)) == label
	})
}

// WithOwnTextContains returns the first element under root matching
// selector whose own text contains substr (case-sensitive).
func WithOwnTextContains(root *goquery.Selection, selector, substr string) *goquery.Selection {
	return firstWhere(root, selector, func(s *goquery.Selection) bool {
		return strings.Contains(ownText(s), substr)
	})
}

// WithOwnTextContainsFold is WithOwnTextContains with ASCII case folding.
func WithOwnTextContainsFold(root *goquery.Selection, selector, substr string) *goquery.Selection {
	needle := strings.ToLower(substr)
	return firstWhere(root, selector, func(s *goquery.Selection) bool {
		return strings.Contains(strings.ToLower(ownText(s)), needle)
	})
}

// WithTextContains returns the first element under root matching selector
// whose full subtree text contains substr (case-sensitive).
func WithTextContains(root *goquery.Selection, selector, substr string) *goquery.Selection {
	return firstWhere(root, selector, func(s *goquery.Selection) bool {
		return strings.Contains(s.Text(), substr)
	})
}

// firstWhere returns the first match of selector under root for which pred
// holds. The returned selection is empty when nothing qualifies, so callers
// can chain further navigation without nil checks.
func firstWhere(root *goquery.Selection, selector string, pred func(*goquery.Selection) bool) *goquery.Selection {
	matches := root.Find(selector)
	found := matches.FilterFunction(func(_ int, s *goquery.Selection) bool {
		return pred(s)
	})
	return found.First()
}

// ownText concatenates the direct text-node children of s's first element.
func ownText(s *goquery.Selection) string {
	if s.Length() == 0 {
		return ""
	}
	var b strings.Builder
	for c := s.Get(0).FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.TextNode {
			b.WriteString(c.Data)
		}
	}
	return b.String()
}

// nodeText collects the subtree text of n.
func nodeText(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return b.String()
}

// AttrAnyContains reports whether any of the named attributes of s's first
// element contains substr. Attribute names are compared against both the
// plain key and the namespaced "ns:key" form, so foreign-content attributes
// like xlink:href match either way the parser recorded them.
func AttrAnyContains(s *goquery.Selection, attrs []string, substr string) bool {
	if s == nil || s.Length() == 0 {
		return false
	}
	for _, a := range s.Get(0).Attr {
		key := a.Key
		if a.Namespace != "" {
			key = a.Namespace + ":" + a.Key
		}
		for _, want := range attrs {
			if key != want && a.Key != want {
				continue
			}
			if strings.Contains(a.Val, substr) {
				return true
			}
		}
	}
	return false
}
