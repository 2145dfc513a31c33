package charts

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/AlfRonDon/NeuraReport-sub002/internal/discovery"
	"github.com/AlfRonDon/NeuraReport-sub002/internal/llm"
)

const suggestSystemPrompt = `You propose charts for a per-batch metrics dataset.
Respond with a JSON array of chart objects. Each object has:
  type: one of "bar", "line", "pie", "scatter"
  x_field: a field name from the provided catalog
  y_fields: list of numeric field names from the catalog
  aggregation: one of "sum", "avg", "count", "none" (optional)
  title, description: short strings (optional)
Use only field names from the catalog. Respond with the JSON array only.`

// Suggester asks the model for chart proposals and normalizes whatever comes
// back. Proposal failures degrade to deterministic fallback charts rather
// than erroring: chart suggestion is advisory and must not fail a discovery
// response.
type Suggester struct {
	client llm.Client
	logger *slog.Logger
}

// NewSuggester returns a Suggester. A nil logger discards log output.
func NewSuggester(client llm.Client, logger *slog.Logger) *Suggester {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Suggester{client: client, logger: logger}
}

// Suggest proposes charts for the given field catalog and sample metrics.
// The returned list is never empty when the catalog contains fields that
// could support any chart at all.
func (s *Suggester) Suggest(ctx context.Context, catalog []discovery.Field, stats discovery.Stats, sample []discovery.MetricRow) []Spec {
	if s.client == nil {
		return FallbackCharts(catalog)
	}

	resp, err := s.client.Complete(ctx, llm.Request{
		System:      suggestSystemPrompt,
		Messages:    []llm.Message{{Role: "user", Content: s.buildPrompt(catalog, stats, sample)}},
		Description: "chart suggestion",
	})
	if err != nil {
		s.logger.Warn("chart suggestion call failed, using fallback charts", "error", err)
		return FallbackCharts(catalog)
	}

	items, err := parseProposal(resp)
	if err != nil {
		s.logger.Warn("chart proposal unparseable, using fallback charts",
			"error", err, "response", llm.Snippet(resp, 200))
		return FallbackCharts(catalog)
	}
	return NormalizeProposal(items, catalog)
}

func (s *Suggester) buildPrompt(catalog []discovery.Field, stats discovery.Stats, sample []discovery.MetricRow) string {
	var b strings.Builder
	b.WriteString("Field catalog:\n")
	for _, f := range catalog {
		fmt.Fprintf(&b, "  %s (%s): %s\n", f.Name, f.Type, f.Description)
	}
	fmt.Fprintf(&b, "\nDataset: %d batches, rows %d..%d (avg %.1f).\n",
		stats.Batches, stats.RowsMin, stats.RowsMax, stats.RowsAvg)
	if len(sample) > 0 {
		if raw, err := json.Marshal(sample); err == nil {
			b.WriteString("\nSample metrics:\n")
			b.Write(raw)
			b.WriteString("\n")
		}
	}
	b.WriteString("\nPropose up to 4 charts.")
	return b.String()
}

// parseProposal extracts the JSON chart array from a model response,
// tolerating code fences and a wrapping {"charts": [...]} object.
func parseProposal(resp string) ([]any, error) {
	text := strings.TrimSpace(resp)
	if fenced := llm.ExtractFenced(text); fenced != "" {
		text = fenced
	}

	var items []any
	if err := json.Unmarshal([]byte(text), &items); err == nil {
		return items, nil
	}

	var wrapped map[string]any
	if err := json.Unmarshal([]byte(text), &wrapped); err == nil {
		for _, key := range []string{"charts", "suggestions"} {
			if list, ok := wrapped[key].([]any); ok {
				return list, nil
			}
		}
	}

	// Fall back to the outermost array literal.
	start := strings.Index(text, "[")
	end := strings.LastIndex(text, "]")
	if start >= 0 && end > start {
		if err := json.Unmarshal([]byte(text[start:end+1]), &items); err == nil {
			return items, nil
		}
	}
	return nil, fmt.Errorf("no JSON chart array in response")
}
