package charts

import (
	"fmt"

	"github.com/AlfRonDon/NeuraReport-sub002/internal/discovery"
)

// Template is one reusable chart shape with structural preconditions a spec
// must satisfy before it may claim the template.
type Template struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Type        string `json:"type"`
	Description string `json:"description"`
}

// The fixed template catalog.
var templates = []Template{
	{
		ID:          "top_n_categories",
		Name:        "Top categories",
		Type:        TypeBar,
		Description: "Compare an aggregated metric across categories, largest first.",
	},
	{
		ID:          "time_series_trend",
		Name:        "Trend over time",
		Type:        TypeLine,
		Description: "Track one or more metrics against a datetime axis.",
	},
	{
		ID:          "distribution_histogram",
		Name:        "Distribution",
		Type:        TypeBar,
		Description: "Show how a numeric metric is distributed across its range.",
	},
}

// Templates returns the template catalog in stable order.
func Templates() []Template {
	out := make([]Template, len(templates))
	copy(out, templates)
	return out
}

// TemplateByID looks a template up by id.
func TemplateByID(id string) (Template, bool) {
	for _, t := range templates {
		if t.ID == id {
			return t, true
		}
	}
	return Template{}, false
}

// Accepts reports whether spec satisfies the template's structural
// preconditions: the chart type matches and the bound fields have the kinds
// the template shape requires.
func (t Template) Accepts(spec *Spec, lookup *FieldLookup) bool {
	if spec == nil || spec.Type != t.Type {
		return false
	}
	x, ok := lookup.Resolve(spec.XField)
	if !ok {
		return false
	}
	switch t.ID {
	case "top_n_categories":
		return x.Type != discovery.FieldNumeric && x.Type != discovery.FieldDatetime
	case "time_series_trend":
		return x.Type == discovery.FieldDatetime
	case "distribution_histogram":
		return x.Type == discovery.FieldNumeric
	default:
		return false
	}
}

// FallbackCharts deterministically synthesizes up to three charts from the
// field catalog: a time-series when a datetime and a numeric field exist, a
// category bar chart when a categorical and a numeric field exist, and a
// distribution when any numeric field exists. Returns an empty slice only
// when the catalog could not support any visualization.
func FallbackCharts(catalog []discovery.Field) []Spec {
	var firstNumeric, firstDatetime, firstCategorical string
	for _, f := range catalog {
		switch f.Type {
		case discovery.FieldNumeric:
			if firstNumeric == "" {
				firstNumeric = f.Name
			}
		case discovery.FieldDatetime:
			if firstDatetime == "" {
				firstDatetime = f.Name
			}
		default:
			if firstCategorical == "" {
				firstCategorical = f.Name
			}
		}
	}

	var specs []Spec
	if firstDatetime != "" && firstNumeric != "" {
		specs = append(specs, Spec{
			ID:              fmt.Sprintf("fallback_%d", len(specs)+1),
			Type:            TypeLine,
			XField:          firstDatetime,
			YFields:         []string{firstNumeric},
			Aggregation:     AggSum,
			ChartTemplateID: "time_series_trend",
			Title:           fmt.Sprintf("%s over %s", firstNumeric, firstDatetime),
		})
	}
	if firstCategorical != "" && firstNumeric != "" {
		specs = append(specs, Spec{
			ID:              fmt.Sprintf("fallback_%d", len(specs)+1),
			Type:            TypeBar,
			XField:          firstCategorical,
			YFields:         []string{firstNumeric},
			Aggregation:     AggSum,
			ChartTemplateID: "top_n_categories",
			Title:           fmt.Sprintf("%s by %s", firstNumeric, firstCategorical),
		})
	}
	if firstNumeric != "" {
		specs = append(specs, Spec{
			ID:              fmt.Sprintf("fallback_%d", len(specs)+1),
			Type:            TypeBar,
			XField:          firstNumeric,
			YFields:         []string{firstNumeric},
			Aggregation:     AggCount,
			ChartTemplateID: "distribution_histogram",
			Title:           fmt.Sprintf("Distribution of %s", firstNumeric),
		})
	}
	return specs
}
