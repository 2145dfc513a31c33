package discovery

import (
	"math"
)

// Field types used across the field catalog, discovery schema, and chart
// normalization.
const (
	FieldNumeric     = "numeric"
	FieldDatetime    = "datetime"
	FieldCategorical = "categorical"
)

// Field describes one derived or source field available for chart binding or
// query construction. Built fresh from batch data on every discovery call.
type Field struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Description string `json:"description"`
	Source      string `json:"source"`
}

// Stats summarizes the numeric spread of a batch list.
type Stats struct {
	Batches   int     `json:"batches"`
	RowsMin   int     `json:"rows_min"`
	RowsMax   int     `json:"rows_max"`
	RowsAvg   float64 `json:"rows_avg"`
	ParentMin int     `json:"parent_min"`
	ParentMax int     `json:"parent_max"`
	ParentAvg float64 `json:"parent_avg"`
}

// BatchMeta is optional per-batch metadata looked up by batch id when
// flattening metrics.
type BatchMeta struct {
	Time     string `json:"time,omitempty"`
	Category string `json:"category,omitempty"`
}

// MetricRow is one flattened per-batch record. Values are kept loosely typed
// so binning and grouping can address fields by name.
type MetricRow map[string]any

// BuildFieldCatalogAndStats computes min/max/avg over rows and parent across
// all batches and returns the fixed seven-entry field catalog describing what
// discovery can expose, whether or not time/category metadata is populated
// for this particular dataset.
func BuildFieldCatalogAndStats(batches []Batch) ([]Field, Stats) {
	catalog := []Field{
		{Name: "batch_index", Type: FieldNumeric, Description: "1-based position of the batch in discovery order", Source: "derived"},
		{Name: "batch_id", Type: FieldCategorical, Description: "composite batch key as a string", Source: "discovery"},
		{Name: "rows", Type: FieldNumeric, Description: "detail row count for the batch", Source: "discovery"},
		{Name: "parent", Type: FieldNumeric, Description: "parent row count for the batch", Source: "discovery"},
		{Name: "rows_per_parent", Type: FieldNumeric, Description: "detail rows per parent row", Source: "derived"},
		{Name: "time", Type: FieldDatetime, Description: "batch timestamp from metadata, when available", Source: "metadata"},
		{Name: "category", Type: FieldCategorical, Description: "batch category from metadata, when available", Source: "metadata"},
	}

	stats := Stats{Batches: len(batches)}
	if len(batches) == 0 {
		return catalog, stats
	}

	stats.RowsMin = math.MaxInt
	stats.ParentMin = math.MaxInt
	var rowsSum, parentSum int
	for _, b := range batches {
		rowsSum += b.Rows
		parentSum += b.Parent
		stats.RowsMin = min(stats.RowsMin, b.Rows)
		stats.RowsMax = max(stats.RowsMax, b.Rows)
		stats.ParentMin = min(stats.ParentMin, b.Parent)
		stats.ParentMax = max(stats.ParentMax, b.Parent)
	}
	stats.RowsAvg = float64(rowsSum) / float64(len(batches))
	stats.ParentAvg = float64(parentSum) / float64(len(batches))
	return catalog, stats
}

// BuildBatchMetrics produces one flattened record per batch, truncated to
// limit when limit > 0. rows_per_parent divides by max(parent, 1) so a
// zero-parent batch never divides by zero.
func BuildBatchMetrics(batches []Batch, metadata map[string]BatchMeta, limit int) []MetricRow {
	out := make([]MetricRow, 0, len(batches))
	for i, b := range batches {
		if limit > 0 && len(out) >= limit {
			break
		}
		row := MetricRow{
			"batch_index":     i + 1,
			"batch_id":        b.ID,
			"rows":            b.Rows,
			"parent":          b.Parent,
			"rows_per_parent": float64(b.Rows) / float64(max(b.Parent, 1)),
		}
		if meta, ok := metadata[b.ID]; ok {
			if meta.Time != "" {
				row["time"] = meta.Time
			}
			if meta.Category != "" {
				row["category"] = meta.Category
			}
		}
		out = append(out, row)
	}
	return out
}

// numericValue extracts a float64 from a loosely typed metric cell.
// Returns false for missing or non-numeric values; callers skip those rows
// rather than failing, since this layer runs after discovery has already
// succeeded.
func numericValue(row MetricRow, field string) (float64, bool) {
	v, ok := row[field]
	if !ok {
		return 0, false
	}
	switch t := v.(type) {
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case float64:
		return t, true
	case float32:
		return float64(t), true
	default:
		return 0, false
	}
}
