package contract

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizePayload_FillsMissingSections(t *testing.T) {
	payload, err := NormalizePayload(map[string]any{})
	require.NoError(t, err)

	join, ok := payload["join"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "", join["parent_table"])
	assert.Equal(t, "", join["parent_key"])
	assert.Equal(t, "", join["child_table"])
	assert.Equal(t, "", join["child_key"])

	assert.NotNil(t, payload["mapping"])
	assert.NotNil(t, payload["date_columns"])
	assert.NotNil(t, payload["reshape_rules"])
}

func TestNormalizePayload_CoercesJoinKeysToStrings(t *testing.T) {
	payload, err := NormalizePayload(map[string]any{
		"join": map[string]any{
			"parent_table": "orders",
			"parent_key":   101,
			"child_table":  nil,
			"child_key":    []any{"plant_id", 7},
		},
	})
	require.NoError(t, err)

	join := payload["join"].(map[string]any)
	assert.Equal(t, "orders", join["parent_table"])
	assert.Equal(t, "101", join["parent_key"])
	assert.Equal(t, "", join["child_table"])
	assert.Equal(t, []any{"plant_id", "7"}, join["child_key"])
}

func TestNormalizePayload_OutputIsJSONSerializable(t *testing.T) {
	payload, err := NormalizePayload(map[string]any{
		"mapping": map[string]any{"a": 1, "b": true},
		"notes":   "single note",
	})
	require.NoError(t, err)
	_, err = json.Marshal(payload)
	require.NoError(t, err)

	mapping := payload["mapping"].(map[string]string)
	assert.Equal(t, "1", mapping["a"])
	assert.Equal(t, "true", mapping["b"])
	assert.Equal(t, []string{"single note"}, payload["notes"])
}

func TestNormalizePayload_DropsPurposelessReshapeRules(t *testing.T) {
	payload, err := NormalizePayload(map[string]any{
		"reshape_rules": []any{
			map[string]any{"purpose": "unpivot bins", "kind": "union_all"},
			map[string]any{"kind": "union_all"},
			map[string]any{"purpose": "   "},
			"not even an object",
		},
	})
	require.NoError(t, err)
	rules := payload["reshape_rules"].([]any)
	require.Len(t, rules, 1)
	assert.Equal(t, "unpivot bins", rules[0].(map[string]any)["purpose"])
}

func TestAugmentForCompat_Aliases(t *testing.T) {
	payload, err := NormalizePayload(map[string]any{
		"tokens": map[string]any{
			"scalars":    []any{"plant", "date"},
			"row_tokens": []any{"qty"},
			"totals":     []any{"total_qty", "total_unmapped"},
		},
		"mapping": map[string]any{
			"plant":     "orders.plant_id",
			"qty":       "order_items.qty",
			"total_qty": "SUM(order_items.qty)",
		},
	})
	require.NoError(t, err)
	payload = AugmentForCompat(payload)

	assert.Equal(t, []string{"plant", "date"}, payload["header_tokens"])
	assert.Equal(t, []string{"qty"}, payload["row_tokens"])

	totals := payload["totals"].(map[string]string)
	assert.Equal(t, "SUM(order_items.qty)", totals["total_qty"])
	// Unmapped totals default to the empty string, never a missing key.
	v, ok := totals["total_unmapped"]
	assert.True(t, ok)
	assert.Equal(t, "", v)
}

func TestAugmentForCompat_RowOrderDefaults(t *testing.T) {
	// Neither order_by.rows nor row_order present: both default to ROWID.
	payload, err := NormalizePayload(map[string]any{})
	require.NoError(t, err)
	payload = AugmentForCompat(payload)
	assert.Equal(t, []string{"ROWID"}, payload["row_order"])
	assert.Equal(t, map[string]any{"rows": []string{"ROWID"}}, payload["order_by"])

	// order_by.rows present: row_order mirrors it.
	payload, err = NormalizePayload(map[string]any{
		"order_by": map[string]any{"rows": []any{"orders.start_ts"}},
	})
	require.NoError(t, err)
	payload = AugmentForCompat(payload)
	assert.Equal(t, []string{"orders.start_ts"}, payload["row_order"])

	// row_order present without order_by: order_by.rows mirrors it.
	payload, err = NormalizePayload(map[string]any{
		"row_order": []any{"order_items.line_no"},
	})
	require.NoError(t, err)
	payload = AugmentForCompat(payload)
	ob := payload["order_by"].(map[string]any)
	assert.Equal(t, []string{"order_items.line_no"}, ob["rows"])
}

func TestDecode_TypedContract(t *testing.T) {
	payload, err := NormalizePayload(map[string]any{
		"tokens": map[string]any{
			"scalars":    []any{"plant"},
			"row_tokens": []any{"qty"},
		},
		"mapping": map[string]any{"plant": "orders.plant_id", "qty": "UNRESOLVED"},
		"join": map[string]any{
			"parent_table": "orders",
			"parent_key":   []any{"plant_id", "batch_no"},
			"child_table":  "order_items",
			"child_key":    []any{"plant_id", "batch_no"},
		},
		"date_columns": map[string]any{"orders": "start_ts"},
	})
	require.NoError(t, err)
	payload = AugmentForCompat(payload)

	c, err := Decode(payload)
	require.NoError(t, err)

	assert.Equal(t, "orders", c.Join.ParentTable)
	assert.Equal(t, []string{"plant_id", "batch_no"}, c.Join.ParentKey.Columns())
	assert.Equal(t, []string{"plant_id", "batch_no"}, c.Join.ChildKey.Columns())
	assert.Equal(t, "start_ts", c.DateColumns["orders"])
	assert.Equal(t, []string{"qty"}, c.Unresolved())
	assert.Equal(t, []string{"ROWID"}, c.RowOrder)
}

func TestKeyRef_JSONRoundTrip(t *testing.T) {
	type wrapper struct {
		Key KeyRef `json:"key"`
	}

	var w wrapper
	require.NoError(t, json.Unmarshal([]byte(`{"key":"plant_id"}`), &w))
	assert.Equal(t, []string{"plant_id"}, w.Key.Columns())

	require.NoError(t, json.Unmarshal([]byte(`{"key":["a","b"]}`), &w))
	assert.Equal(t, []string{"a", "b"}, w.Key.Columns())

	require.NoError(t, json.Unmarshal([]byte(`{"key":null}`), &w))
	assert.True(t, w.Key.IsEmpty())

	require.NoError(t, json.Unmarshal([]byte(`{"key":42}`), &w))
	assert.Equal(t, []string{"42"}, w.Key.Columns())

	out, err := json.Marshal(wrapper{Key: KeyRef{"a", "b"}})
	require.NoError(t, err)
	assert.JSONEq(t, `{"key":["a","b"]}`, string(out))

	out, err = json.Marshal(wrapper{Key: KeyRef{"solo"}})
	require.NoError(t, err)
	assert.JSONEq(t, `{"key":"solo"}`, string(out))
}
