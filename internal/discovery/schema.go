package discovery

// Dimension kinds in a discovery schema.
const (
	KindTemporal    = "temporal"
	KindCategorical = "categorical"
	KindNumeric     = "numeric"
)

// Dimension is a field usable for grouping or resampling. Temporal and
// numeric dimensions are bucketable; categorical dimensions group by raw
// value only.
type Dimension struct {
	Name       string `json:"name"`
	Kind       string `json:"kind"`
	Bucketable bool   `json:"bucketable"`
}

// Schema classifies the field catalog into bucketable metrics and dimensions
// for ad-hoc charting, with sensible defaults picked for both.
type Schema struct {
	Metrics          []string    `json:"metrics"`
	Dimensions       []Dimension `json:"dimensions"`
	DefaultMetric    string      `json:"default_metric,omitempty"`
	DefaultDimension string      `json:"default_dimension,omitempty"`
}

// BuildSchema classifies each catalog field. Numeric fields become metrics
// and numeric dimensions; datetime fields become temporal dimensions;
// everything else is categorical. The default dimension is the first temporal
// field (falling back to the first dimension); the default metric is the
// first numeric field.
func BuildSchema(catalog []Field) Schema {
	schema := Schema{Metrics: []string{}, Dimensions: []Dimension{}}
	for _, f := range catalog {
		switch f.Type {
		case FieldNumeric:
			schema.Metrics = append(schema.Metrics, f.Name)
			schema.Dimensions = append(schema.Dimensions, Dimension{Name: f.Name, Kind: KindNumeric, Bucketable: true})
			if schema.DefaultMetric == "" {
				schema.DefaultMetric = f.Name
			}
		case FieldDatetime:
			schema.Dimensions = append(schema.Dimensions, Dimension{Name: f.Name, Kind: KindTemporal, Bucketable: true})
			if schema.DefaultDimension == "" {
				schema.DefaultDimension = f.Name
			}
		default:
			schema.Dimensions = append(schema.Dimensions, Dimension{Name: f.Name, Kind: KindCategorical, Bucketable: false})
		}
	}
	if schema.DefaultDimension == "" && len(schema.Dimensions) > 0 {
		schema.DefaultDimension = schema.Dimensions[0].Name
	}
	return schema
}
