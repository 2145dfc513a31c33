package discovery

import (
	"fmt"
	"sort"
)

// Bucket is one equal-width bin over a numeric metric.
type Bucket struct {
	Lo       float64  `json:"lo"`
	Hi       float64  `json:"hi"`
	Count    int      `json:"count"`
	Sum      float64  `json:"sum"`
	BatchIDs []string `json:"batch_ids"`
}

// Group is one group-by bucket over a field's raw value.
type Group struct {
	Key      string   `json:"key"`
	Value    float64  `json:"value"`
	Count    int      `json:"count"`
	BatchIDs []string `json:"batch_ids"`
}

// ResampleSupport is the ready-to-render support structure covering every
// bucketable field.
type ResampleSupport struct {
	NumericBins    map[string][]Bucket `json:"numeric_bins"`
	CategoryGroups map[string][]Group  `json:"category_groups"`
}

// BinNumericMetric splits field's value range into bucketCount equal-width
// buckets, returning per-bucket count, sum, and contributing batch ids. Rows
// without a numeric value for field are skipped. A single distinct value
// still yields valid, non-overlapping buckets (all rows land in the first).
// For the rows that are counted, bucket counts sum to the row count and
// bucket sums sum to the field total.
func BinNumericMetric(metrics []MetricRow, field string, bucketCount int) []Bucket {
	if bucketCount < 1 {
		bucketCount = 1
	}

	type point struct {
		value float64
		id    string
	}
	var points []point
	lo, hi := 0.0, 0.0
	for i, row := range metrics {
		v, ok := numericValue(row, field)
		if !ok {
			continue
		}
		if len(points) == 0 {
			lo, hi = v, v
		} else {
			lo = min(lo, v)
			hi = max(hi, v)
		}
		points = append(points, point{value: v, id: batchIDOf(row, i)})
	}
	if len(points) == 0 {
		return []Bucket{}
	}

	width := (hi - lo) / float64(bucketCount)
	buckets := make([]Bucket, bucketCount)
	for i := range buckets {
		buckets[i].Lo = lo + width*float64(i)
		buckets[i].Hi = lo + width*float64(i+1)
		buckets[i].BatchIDs = []string{}
	}
	// Close the last bucket exactly at the observed maximum.
	buckets[bucketCount-1].Hi = hi

	for _, pt := range points {
		idx := 0
		if width > 0 {
			idx = int((pt.value - lo) / width)
			if idx >= bucketCount {
				idx = bucketCount - 1
			}
		}
		buckets[idx].Count++
		buckets[idx].Sum += pt.value
		buckets[idx].BatchIDs = append(buckets[idx].BatchIDs, pt.id)
	}
	return buckets
}

// Aggregations accepted by GroupMetricsByField.
const (
	AggSum   = "sum"
	AggAvg   = "avg"
	AggCount = "count"
)

// GroupMetricsByField groups rows by the stringified raw value of field and
// computes the requested aggregation over metricField. Rows missing field are
// skipped; rows missing metricField contribute to count only. Groups are
// returned sorted by key.
func GroupMetricsByField(metrics []MetricRow, field, metricField, aggregation string) []Group {
	type acc struct {
		sum    float64
		summed int
		count  int
		ids    []string
	}
	accs := make(map[string]*acc)
	for i, row := range metrics {
		raw, ok := row[field]
		if !ok || raw == nil {
			continue
		}
		key := fmt.Sprintf("%v", raw)
		a := accs[key]
		if a == nil {
			a = &acc{}
			accs[key] = a
		}
		a.count++
		a.ids = append(a.ids, batchIDOf(row, i))
		if v, ok := numericValue(row, metricField); ok {
			a.sum += v
			a.summed++
		}
	}

	keys := make([]string, 0, len(accs))
	for k := range accs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]Group, 0, len(keys))
	for _, k := range keys {
		a := accs[k]
		g := Group{Key: k, Count: a.count, BatchIDs: a.ids}
		switch aggregation {
		case AggAvg:
			if a.summed > 0 {
				g.Value = a.sum / float64(a.summed)
			}
		case AggCount:
			g.Value = float64(a.count)
		default: // sum
			g.Value = a.sum
		}
		out = append(out, g)
	}
	return out
}

// BuildResampleSupport orchestrates binning and grouping into one structure
// covering every bucketable field in the schema. defaultMetric falls back to
// the schema default; bucketCount defaults to 10.
func BuildResampleSupport(catalog []Field, metrics []MetricRow, schema *Schema, defaultMetric string, bucketCount int) ResampleSupport {
	if schema == nil {
		s := BuildSchema(catalog)
		schema = &s
	}
	if defaultMetric == "" {
		defaultMetric = schema.DefaultMetric
	}
	if bucketCount < 1 {
		bucketCount = 10
	}

	support := ResampleSupport{
		NumericBins:    map[string][]Bucket{},
		CategoryGroups: map[string][]Group{},
	}
	for _, dim := range schema.Dimensions {
		switch {
		case dim.Kind == KindNumeric && dim.Bucketable:
			support.NumericBins[dim.Name] = BinNumericMetric(metrics, dim.Name, bucketCount)
		case dim.Kind == KindCategorical:
			support.CategoryGroups[dim.Name] = GroupMetricsByField(metrics, dim.Name, defaultMetric, AggSum)
		case dim.Kind == KindTemporal:
			// Temporal dimensions group by raw timestamp value; finer
			// calendar bucketing happens client-side.
			support.CategoryGroups[dim.Name] = GroupMetricsByField(metrics, dim.Name, defaultMetric, AggSum)
		}
	}
	return support
}

// batchIDOf returns the row's batch id, or its position as a fallback so a
// malformed row never aborts shaping.
func batchIDOf(row MetricRow, index int) string {
	if id, ok := row["batch_id"].(string); ok && id != "" {
		return id
	}
	return fmt.Sprintf("%d", index+1)
}
