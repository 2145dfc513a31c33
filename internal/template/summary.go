package template

import (
	"fmt"
	"regexp"
	"strings"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
)

// DefaultSummaryBudget bounds the page summary fed into the build prompt and
// the input signature. Large templates get truncated, not rejected.
const DefaultSummaryBudget = 4000

var excessiveNewlines = regexp.MustCompile(`\n{3,}`)

// PageSummary converts the rendered template HTML to markdown and truncates
// it to budget characters. A budget <= 0 uses DefaultSummaryBudget.
func PageSummary(source string, budget int) (string, error) {
	if budget <= 0 {
		budget = DefaultSummaryBudget
	}
	md, err := htmltomarkdown.ConvertString(source)
	if err != nil {
		return "", fmt.Errorf("converting template to markdown: %w", err)
	}
	md = excessiveNewlines.ReplaceAllString(strings.TrimSpace(md), "\n\n")

	runes := []rune(md)
	if len(runes) > budget {
		md = string(runes[:budget])
	}
	return md, nil
}
