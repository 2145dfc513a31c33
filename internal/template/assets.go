package template

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/AlfRonDon/NeuraReport-sub002/internal/contract"
)

// File names recognized inside a template directory.
const (
	FinalHTMLFile = "final.html"
	DraftHTMLFile = "template.html"
	WorkbookFile  = "template.xlsx"
)

// Assets is everything a contract build needs from the template directory.
type Assets struct {
	HTML    string
	Summary string
	Schema  *contract.TokenSets
}

// LoadAssets reads the rendered template HTML (final.html, falling back to
// template.html), extracts its token schema, merges tokens from an optional
// template.xlsx workbook, and derives the page summary.
func LoadAssets(dir string, summaryBudget int) (*Assets, error) {
	var source []byte
	var err error
	for _, name := range []string{FinalHTMLFile, DraftHTMLFile} {
		source, err = os.ReadFile(filepath.Join(dir, name))
		if err == nil {
			break
		}
	}
	if err != nil {
		return nil, fmt.Errorf("no template html in %s: %w", dir, err)
	}

	schema, err := ExtractHTMLTokens(string(source))
	if err != nil {
		return nil, err
	}

	workbook := filepath.Join(dir, WorkbookFile)
	if _, statErr := os.Stat(workbook); statErr == nil {
		extra, err := ExtractExcelTokens(workbook)
		if err != nil {
			return nil, err
		}
		schema = mergeTokenSets(schema, extra)
	}

	summary, err := PageSummary(string(source), summaryBudget)
	if err != nil {
		return nil, err
	}

	return &Assets{HTML: string(source), Summary: summary, Schema: schema}, nil
}

func mergeTokenSets(a, b *contract.TokenSets) *contract.TokenSets {
	merge := func(base, extra []string) []string {
		seen := make(map[string]bool, len(base))
		for _, t := range base {
			seen[t] = true
		}
		for _, t := range extra {
			if !seen[t] {
				seen[t] = true
				base = append(base, t)
			}
		}
		return base
	}
	return &contract.TokenSets{
		Scalars:   merge(a.Scalars, b.Scalars),
		RowTokens: merge(a.RowTokens, b.RowTokens),
		Totals:    merge(a.Totals, b.Totals),
	}
}
