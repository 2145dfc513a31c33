// Package contract builds, validates, and persists report contracts: the
// artifact binding template tokens to SQL expressions, join/date rules, and
// reshape rules for an arbitrary parent/child schema.
package contract

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-viper/mapstructure/v2"
)

// Mapping values with special meaning.
const (
	// Unresolved marks a token the model could not bind to any source.
	Unresolved = "UNRESOLVED"
	// ParamPrefix marks a runtime-parameter passthrough, e.g. "PARAM:plant".
	ParamPrefix = "PARAM:"
)

// KeyRef is a join key: one column name or an ordered composite of columns.
// The zero value means "no key declared". JSON accepts both a bare string
// and a list of strings; a single column marshals back as a bare string.
type KeyRef []string

// IsEmpty reports whether no key column is declared.
func (k KeyRef) IsEmpty() bool {
	for _, c := range k {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

// Columns returns the non-blank column names in declaration order.
func (k KeyRef) Columns() []string {
	out := make([]string, 0, len(k))
	for _, c := range k {
		c = strings.TrimSpace(c)
		if c != "" {
			out = append(out, c)
		}
	}
	return out
}

// UnmarshalJSON accepts "col", ["a","b"], null, or a number (coerced to its
// string form, matching the normalizer's string coercion of join keys).
func (k *KeyRef) UnmarshalJSON(data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*k = keyRefFromAny(v)
	return nil
}

// MarshalJSON writes a single column as a bare string, composites as lists,
// and an empty key as "".
func (k KeyRef) MarshalJSON() ([]byte, error) {
	cols := k.Columns()
	switch len(cols) {
	case 0:
		return json.Marshal("")
	case 1:
		return json.Marshal(cols[0])
	default:
		return json.Marshal(cols)
	}
}

// keyRefFromAny normalizes a scalar-or-list join key value once, so no
// downstream code re-checks the dynamic shape.
func keyRefFromAny(v any) KeyRef {
	switch t := v.(type) {
	case nil:
		return nil
	case string:
		if strings.TrimSpace(t) == "" {
			return nil
		}
		return KeyRef{strings.TrimSpace(t)}
	case []string:
		var out KeyRef
		for _, s := range t {
			if strings.TrimSpace(s) != "" {
				out = append(out, strings.TrimSpace(s))
			}
		}
		return out
	case []any:
		var out KeyRef
		for _, e := range t {
			s := strings.TrimSpace(coerceString(e))
			if s != "" {
				out = append(out, s)
			}
		}
		return out
	default:
		s := strings.TrimSpace(coerceString(v))
		if s == "" {
			return nil
		}
		return KeyRef{s}
	}
}

// coerceString renders a scalar as its string form; nil becomes "".
func coerceString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		// JSON numbers decode as float64; keep integers undecorated.
		if t == float64(int64(t)) {
			return fmt.Sprintf("%d", int64(t))
		}
		return fmt.Sprintf("%v", t)
	case bool:
		if t {
			return "true"
		}
		return "false"
	default:
		return fmt.Sprintf("%v", t)
	}
}

// TokenSets classifies template tokens into the three disjoint classes.
type TokenSets struct {
	Scalars   []string `json:"scalars" mapstructure:"scalars"`
	RowTokens []string `json:"row_tokens" mapstructure:"row_tokens"`
	Totals    []string `json:"totals" mapstructure:"totals"`
}

// All returns every token name across the three classes.
func (t TokenSets) All() []string {
	out := make([]string, 0, len(t.Scalars)+len(t.RowTokens)+len(t.Totals))
	out = append(out, t.Scalars...)
	out = append(out, t.RowTokens...)
	out = append(out, t.Totals...)
	return out
}

// Join declares how detail rows attach to report batches. ChildTable may be
// empty (parent-only reports). ParentKey may be empty with ChildKey set; the
// parent key is then inferred to equal the child key.
type Join struct {
	ParentTable string `json:"parent_table" mapstructure:"parent_table"`
	ParentKey   KeyRef `json:"parent_key" mapstructure:"parent_key"`
	ChildTable  string `json:"child_table" mapstructure:"child_table"`
	ChildKey    KeyRef `json:"child_key" mapstructure:"child_key"`
}

// ReshapeRule describes how source columns are unpivoted or otherwise
// transformed into row-token columns. Purpose is always non-empty in a
// normalized contract.
type ReshapeRule struct {
	Purpose string   `json:"purpose" mapstructure:"purpose"`
	Kind    string   `json:"kind,omitempty" mapstructure:"kind"`
	Table   string   `json:"table,omitempty" mapstructure:"table"`
	Columns []string `json:"columns,omitempty" mapstructure:"columns"`
	SQL     string   `json:"sql,omitempty" mapstructure:"sql"`
}

// OrderBy carries the generated datasets' ordering.
type OrderBy struct {
	Rows []string `json:"rows" mapstructure:"rows"`
}

// Contract is the typed form of the persisted contract payload. It is decoded
// from the normalized LLM payload immediately after JSON parsing, so all
// downstream code operates on this struct, never on raw maps.
type Contract struct {
	Tokens      TokenSets         `json:"tokens" mapstructure:"tokens"`
	Mapping     map[string]string `json:"mapping" mapstructure:"mapping"`
	Join        Join              `json:"join" mapstructure:"join"`
	DateColumns map[string]string `json:"date_columns" mapstructure:"date_columns"`
	Filters     map[string]string `json:"filters" mapstructure:"filters"`
	Reshape     []ReshapeRule     `json:"reshape_rules" mapstructure:"reshape_rules"`
	RowComputed map[string]string `json:"row_computed" mapstructure:"row_computed"`
	TotalsMath  map[string]string `json:"totals_math" mapstructure:"totals_math"`
	Formatters  map[string]string `json:"formatters" mapstructure:"formatters"`
	OrderBy     OrderBy           `json:"order_by" mapstructure:"order_by"`
	RowOrder    []string          `json:"row_order" mapstructure:"row_order"`
	Notes       []string          `json:"notes" mapstructure:"notes"`

	// Compatibility aliases backfilled by the normalizer; consumers written
	// against the older payload shape read these instead of Tokens/Mapping.
	HeaderTokens []string          `json:"header_tokens,omitempty" mapstructure:"header_tokens"`
	RowTokenList []string          `json:"row_tokens,omitempty" mapstructure:"row_tokens"`
	Totals       map[string]string `json:"totals,omitempty" mapstructure:"totals"`
}

// Unresolved returns the tokens whose mapping is missing or UNRESOLVED.
// A contract is ready only when this list is empty.
func (c *Contract) Unresolved() []string {
	var out []string
	for _, name := range c.Tokens.All() {
		v, ok := c.Mapping[name]
		if !ok || strings.TrimSpace(v) == "" || strings.TrimSpace(v) == Unresolved {
			out = append(out, name)
		}
	}
	return out
}

// keyRefDecodeHook lets mapstructure decode string-or-list join keys into
// KeyRef without per-site type switches.
func keyRefDecodeHook(_ reflect.Type, to reflect.Type, data any) (any, error) {
	if to != reflect.TypeOf(KeyRef{}) {
		return data, nil
	}
	return keyRefFromAny(data), nil
}

// Decode converts a normalized payload map into the typed Contract,
// rejecting anything that does not fit the schema.
func Decode(payload map[string]any) (*Contract, error) {
	var c Contract
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &c,
		TagName:          "mapstructure",
		WeaklyTypedInput: true,
		DecodeHook:       keyRefDecodeHook,
	})
	if err != nil {
		return nil, wrapBuildError("parse", err, "creating payload decoder")
	}
	if err := dec.Decode(payload); err != nil {
		return nil, wrapBuildError("parse", err, "decoding contract payload")
	}
	return &c, nil
}
