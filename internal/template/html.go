// Package template extracts {{token}} placeholders from report templates and
// derives the page summary used to prompt the contract builder.
package template

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"golang.org/x/net/html"

	"github.com/AlfRonDon/NeuraReport-sub002/internal/contract"
)

// Token namespace prefixes. Tokens without a recognized prefix are treated as
// scalars.
const (
	PrefixHeader = "header."
	PrefixRow    = "row."
	PrefixTotal  = "total."
)

var tokenPattern = regexp.MustCompile(`\{\{\s*([A-Za-z_][\w.]*)\s*\}\}`)

// ExtractHTMLTokens walks the parsed HTML document and collects every
// {{token}} placeholder from text nodes and attribute values, classified by
// namespace prefix into the schema the contract builder consumes. Tokens are
// deduplicated in first-seen order.
func ExtractHTMLTokens(source string) (*contract.TokenSets, error) {
	doc, err := html.Parse(strings.NewReader(source))
	if err != nil {
		return nil, fmt.Errorf("parsing template html: %w", err)
	}

	var ordered []string
	seen := map[string]bool{}
	collect := func(text string) {
		for _, m := range tokenPattern.FindAllStringSubmatch(text, -1) {
			if !seen[m[1]] {
				seen[m[1]] = true
				ordered = append(ordered, m[1])
			}
		}
	}

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			collect(n.Data)
		}
		for _, attr := range n.Attr {
			collect(attr.Val)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	return Classify(ordered), nil
}

// Classify splits token names into scalars, row tokens, and totals by their
// namespace prefix. The prefix is kept in the token name; the split only
// decides which contract section each token belongs to.
func Classify(tokens []string) *contract.TokenSets {
	sets := &contract.TokenSets{
		Scalars:   []string{},
		RowTokens: []string{},
		Totals:    []string{},
	}
	for _, tok := range tokens {
		switch {
		case strings.HasPrefix(tok, PrefixRow):
			sets.RowTokens = append(sets.RowTokens, tok)
		case strings.HasPrefix(tok, PrefixTotal):
			sets.Totals = append(sets.Totals, tok)
		default:
			// header.-prefixed and bare tokens are both per-report scalars.
			sets.Scalars = append(sets.Scalars, tok)
		}
	}
	return sets
}

// SortedTokenNames returns all token names of a set, sorted. Used for stable
// prompt construction and diagnostics.
func SortedTokenNames(sets *contract.TokenSets) []string {
	if sets == nil {
		return nil
	}
	out := sets.All()
	sort.Strings(out)
	return out
}
