package contract

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/AlfRonDon/NeuraReport-sub002/internal/llm"
)

// systemPrompt pins the response schema. The builder issues exactly one call
// and expects a single JSON object back; everything else is a parse failure.
const systemPrompt = `You map report-template tokens to SQL expressions over a fixed database catalog.
Respond with a single JSON object and nothing else. Required keys:
  overview_md          non-empty markdown summary of the mapping decisions
  contract             object with: tokens {scalars,row_tokens,totals}, mapping,
                       join {parent_table,parent_key,child_table,child_key},
                       date_columns, filters, reshape_rules, row_computed,
                       totals_math, formatters, order_by {rows}, row_order, notes
  step5_requirements   object describing datasets, parameters, transformations
  assumptions          list of strings
  warnings             list of strings
Mapping values are a "table.column" reference, "PARAM:name", "UNRESOLVED",
or a SQL expression over catalog columns only. Never emit subqueries, DML, or
the legacy DERIVED:/TABLE_COLUMNS[/COLUMN_EXP[ wrappers. If parent and child
share key column names, you may leave parent_key empty and set child_key only.`

// buildPrompt assembles the single user message from all build inputs. Each
// section is embedded as JSON so the model sees exact token and column names.
func buildPrompt(in BuildInputs) (llm.Request, error) {
	var sb strings.Builder

	writeSection := func(title string, v any) error {
		data, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return wrapBuildError("llm", err, "encoding prompt section %s", title)
		}
		fmt.Fprintf(&sb, "## %s\n%s\n\n", title, data)
		return nil
	}

	sections := []struct {
		title string
		value any
	}{
		{"Token schema", in.schemaOrDefault()},
		{"Database catalog (allow-list)", in.Catalog},
		{"Auto-mapping proposal", in.AutoMappingProposal},
		{"Mapping override (user-designated, binding)", in.MappingOverride},
		{"Key tokens (required filters)", NormalizeKeyTokens(in.KeyTokens)},
	}
	for _, s := range sections {
		if err := writeSection(s.title, s.value); err != nil {
			return llm.Request{}, err
		}
	}

	if in.DialectHint != "" {
		fmt.Fprintf(&sb, "## SQL dialect\n%s\n\n", in.DialectHint)
	}
	if strings.TrimSpace(in.UserInstructions) != "" {
		fmt.Fprintf(&sb, "## User instructions\n%s\n\n", strings.TrimSpace(in.UserInstructions))
	}
	if strings.TrimSpace(in.PageSummary) != "" {
		fmt.Fprintf(&sb, "## Page summary\n%s\n\n", strings.TrimSpace(in.PageSummary))
	}
	fmt.Fprintf(&sb, "## Rendered template HTML\n%s\n", in.FinalTemplateHTML)

	return llm.Request{
		System:      systemPrompt,
		Messages:    []llm.Message{{Role: "user", Content: sb.String()}},
		Description: "contract build (prompt " + PromptVersion + ")",
	}, nil
}
