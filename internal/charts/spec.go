// Package charts validates and repairs model-proposed chart specifications
// against a known field catalog, and synthesizes deterministic fallback charts
// when a proposal yields nothing usable.
package charts

import (
	"fmt"
	"strings"

	"github.com/AlfRonDon/NeuraReport-sub002/internal/discovery"
)

// Chart types accepted after alias resolution.
const (
	TypeBar     = "bar"
	TypeLine    = "line"
	TypePie     = "pie"
	TypeScatter = "scatter"
)

// Aggregations accepted on a chart spec.
const (
	AggSum   = "sum"
	AggAvg   = "avg"
	AggCount = "count"
	AggNone  = "none"
)

// Spec is one validated, render-ready chart.
type Spec struct {
	ID              string         `json:"id"`
	Type            string         `json:"type"`
	XField          string         `json:"x_field"`
	YFields         []string       `json:"y_fields"`
	GroupField      string         `json:"group_field,omitempty"`
	Aggregation     string         `json:"aggregation,omitempty"`
	ChartTemplateID string         `json:"chart_template_id,omitempty"`
	Title           string         `json:"title,omitempty"`
	Description     string         `json:"description,omitempty"`
	Style           map[string]any `json:"style,omitempty"`
}

// typeAliases maps the loose names models emit onto canonical chart types.
var typeAliases = map[string]string{
	"bar":          TypeBar,
	"barchart":     TypeBar,
	"bar_chart":    TypeBar,
	"column":       TypeBar,
	"histogram":    TypeBar,
	"line":         TypeLine,
	"linechart":    TypeLine,
	"line_chart":   TypeLine,
	"trend":        TypeLine,
	"area":         TypeLine,
	"pie":          TypePie,
	"piechart":     TypePie,
	"pie_chart":    TypePie,
	"donut":        TypePie,
	"doughnut":     TypePie,
	"scatter":      TypeScatter,
	"scatterplot":  TypeScatter,
	"scatter_plot": TypeScatter,
	"xy":           TypeScatter,
}

var validAggregations = map[string]bool{
	AggSum: true, AggAvg: true, AggCount: true, AggNone: true,
}

// FieldLookup resolves field names case-insensitively against the catalog.
type FieldLookup struct {
	byLower map[string]discovery.Field
}

// NewFieldLookup builds a lookup over the discovery field catalog.
func NewFieldLookup(catalog []discovery.Field) *FieldLookup {
	byLower := make(map[string]discovery.Field, len(catalog))
	for _, f := range catalog {
		byLower[strings.ToLower(f.Name)] = f
	}
	return &FieldLookup{byLower: byLower}
}

// Resolve returns the canonical field for name, matching case-insensitively.
func (l *FieldLookup) Resolve(name string) (discovery.Field, bool) {
	f, ok := l.byLower[strings.ToLower(strings.TrimSpace(name))]
	return f, ok
}

// NormalizeChartSuggestion validates one proposed chart object field by field
// and repairs what it can. A chart that cannot be repaired into a valid spec
// returns nil, never an error: the caller filters nils, so a batch of N
// proposals yields at most N specs.
func NormalizeChartSuggestion(item map[string]any, idx int, lookup *FieldLookup) *Spec {
	if item == nil || lookup == nil {
		return nil
	}

	rawType := strings.ToLower(strings.TrimSpace(stringField(item, "type", "chart_type")))
	chartType, ok := typeAliases[rawType]
	if !ok {
		return nil
	}

	xName := stringField(item, "x_field", "x", "xField")
	xField, ok := lookup.Resolve(xName)
	if !ok {
		return nil
	}

	var yFields []string
	for _, y := range stringListField(item, "y_fields", "y", "yFields", "y_field") {
		f, ok := lookup.Resolve(y)
		if !ok {
			continue
		}
		if chartType != TypeScatter && f.Type != discovery.FieldNumeric {
			continue
		}
		yFields = append(yFields, f.Name)
	}
	if len(yFields) == 0 {
		return nil
	}

	agg := strings.ToLower(strings.TrimSpace(stringField(item, "aggregation", "agg")))
	if agg == "" || !validAggregations[agg] {
		agg = AggSum
	}

	switch chartType {
	case TypePie:
		// Pie charts carry exactly one numeric slice value over a
		// categorical x-field.
		if xField.Type == discovery.FieldNumeric || xField.Type == discovery.FieldDatetime {
			return nil
		}
		yFields = yFields[:1]
	case TypeLine, TypeScatter:
		if xField.Type != discovery.FieldNumeric && xField.Type != discovery.FieldDatetime {
			return nil
		}
	}

	spec := &Spec{
		ID:          stringField(item, "id"),
		Type:        chartType,
		XField:      xField.Name,
		YFields:     yFields,
		Aggregation: agg,
		Title:       stringField(item, "title"),
		Description: stringField(item, "description"),
	}
	if spec.ID == "" {
		spec.ID = fmt.Sprintf("chart_%d", idx+1)
	}
	if g, ok := lookup.Resolve(stringField(item, "group_field", "groupField", "series")); ok {
		spec.GroupField = g.Name
	}
	if tmplID := stringField(item, "chart_template_id", "template_id"); tmplID != "" {
		if tmpl, ok := TemplateByID(tmplID); ok && tmpl.Accepts(spec, lookup) {
			spec.ChartTemplateID = tmpl.ID
		}
	}
	if style, ok := item["style"].(map[string]any); ok && len(style) > 0 {
		spec.Style = style
	}
	return spec
}

// NormalizeProposal runs NormalizeChartSuggestion over every item of a parsed
// proposal list, dropping everything unrepairable. When the whole proposal
// yields zero valid charts, deterministic fallback charts are synthesized from
// the catalog so the caller never gets an empty list while the data could
// support any visualization at all.
func NormalizeProposal(items []any, catalog []discovery.Field) []Spec {
	lookup := NewFieldLookup(catalog)

	var specs []Spec
	for i, raw := range items {
		item, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		if spec := NormalizeChartSuggestion(item, i, lookup); spec != nil {
			specs = append(specs, *spec)
		}
	}
	if len(specs) == 0 {
		specs = FallbackCharts(catalog)
	}
	return specs
}

func stringField(item map[string]any, keys ...string) string {
	for _, k := range keys {
		if v, ok := item[k]; ok {
			if s, ok := v.(string); ok && strings.TrimSpace(s) != "" {
				return strings.TrimSpace(s)
			}
		}
	}
	return ""
}

func stringListField(item map[string]any, keys ...string) []string {
	for _, k := range keys {
		v, ok := item[k]
		if !ok || v == nil {
			continue
		}
		switch t := v.(type) {
		case string:
			if strings.TrimSpace(t) != "" {
				return []string{t}
			}
		case []any:
			var out []string
			for _, e := range t {
				if s, ok := e.(string); ok && strings.TrimSpace(s) != "" {
					out = append(out, s)
				}
			}
			if len(out) > 0 {
				return out
			}
		case []string:
			if len(t) > 0 {
				return t
			}
		}
	}
	return nil
}
