package contract

import (
	"encoding/json"
	"strings"
)

// NormalizePayload reshapes a raw model-produced payload into the canonical
// contract schema. It round-trips through JSON (guaranteeing the result is
// JSON-serializable), fills missing sections with empty values, and forces
// the join block's four fields to be present with string-typed values. The
// input map is not modified.
//
// The payload shape drifted across prompt versions; downstream consumers were
// written against both old and new key names, so AugmentForCompat backfills
// the legacy aliases too. Callers always run both.
func NormalizePayload(raw map[string]any) (map[string]any, error) {
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, wrapBuildError("normalize", err, "payload is not JSON-serializable")
	}
	var payload map[string]any
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, wrapBuildError("normalize", err, "payload round-trip failed")
	}
	if payload == nil {
		payload = map[string]any{}
	}

	payload["tokens"] = normalizeTokens(payload["tokens"])
	payload["mapping"] = normalizeStringMap(payload["mapping"])
	payload["join"] = normalizeJoin(payload["join"])
	payload["date_columns"] = normalizeStringMap(payload["date_columns"])
	payload["filters"] = normalizeStringMap(payload["filters"])
	payload["reshape_rules"] = normalizeReshapeRules(payload["reshape_rules"])
	payload["row_computed"] = normalizeStringMap(payload["row_computed"])
	payload["totals_math"] = normalizeStringMap(payload["totals_math"])
	payload["formatters"] = normalizeStringMap(payload["formatters"])
	payload["notes"] = normalizeStringList(payload["notes"])
	return payload, nil
}

// AugmentForCompat backfills the legacy top-level keys from the canonical
// tokens/mapping structure:
//
//   - header_tokens: alias of tokens.scalars
//   - row_tokens:    alias of tokens.row_tokens
//   - totals:        tokens.totals names mapped through mapping ("" when unmapped)
//
// It also guarantees row_order is non-empty, preferring order_by.rows and
// defaulting both to ["ROWID"]. The two lists mirror each other afterwards.
func AugmentForCompat(payload map[string]any) map[string]any {
	tokens, _ := payload["tokens"].(map[string]any)
	mapping := normalizeStringMap(payload["mapping"])

	scalars := normalizeStringList(tokens["scalars"])
	rowTokens := normalizeStringList(tokens["row_tokens"])
	totalNames := normalizeStringList(tokens["totals"])

	payload["header_tokens"] = scalars
	payload["row_tokens"] = rowTokens

	totals := make(map[string]string, len(totalNames))
	for _, name := range totalNames {
		totals[name] = mapping[name]
	}
	payload["totals"] = totals

	rowOrder := normalizeStringList(payload["row_order"])
	orderBy, _ := payload["order_by"].(map[string]any)
	orderRows := normalizeStringList(orderBy["rows"])

	switch {
	case len(orderRows) == 0 && len(rowOrder) > 0:
		orderRows = rowOrder
	case len(rowOrder) == 0 && len(orderRows) > 0:
		rowOrder = orderRows
	case len(rowOrder) == 0 && len(orderRows) == 0:
		rowOrder = []string{"ROWID"}
		orderRows = []string{"ROWID"}
	}
	payload["row_order"] = rowOrder
	payload["order_by"] = map[string]any{"rows": orderRows}
	return payload
}

func normalizeTokens(v any) map[string]any {
	m, _ := v.(map[string]any)
	out := map[string]any{
		"scalars":    normalizeStringList(m["scalars"]),
		"row_tokens": normalizeStringList(m["row_tokens"]),
		"totals":     normalizeStringList(m["totals"]),
	}
	return out
}

// normalizeJoin guarantees the four join fields exist. Table names become
// scalar strings; keys keep their scalar-or-list shape but every element is
// coerced to a string (models occasionally emit numeric key parts).
func normalizeJoin(v any) map[string]any {
	m, _ := v.(map[string]any)
	out := map[string]any{
		"parent_table": "",
		"parent_key":   "",
		"child_table":  "",
		"child_key":    "",
	}
	if m == nil {
		return out
	}
	out["parent_table"] = strings.TrimSpace(coerceString(m["parent_table"]))
	out["child_table"] = strings.TrimSpace(coerceString(m["child_table"]))
	out["parent_key"] = normalizeJoinKey(m["parent_key"])
	out["child_key"] = normalizeJoinKey(m["child_key"])
	return out
}

func normalizeJoinKey(v any) any {
	key := keyRefFromAny(v)
	cols := key.Columns()
	switch len(cols) {
	case 0:
		return ""
	case 1:
		return cols[0]
	default:
		anyCols := make([]any, len(cols))
		for i, c := range cols {
			anyCols[i] = c
		}
		return anyCols
	}
}

func normalizeStringMap(v any) map[string]string {
	out := map[string]string{}
	switch m := v.(type) {
	case map[string]any:
		for k, val := range m {
			out[k] = coerceString(val)
		}
	case map[string]string:
		for k, val := range m {
			out[k] = val
		}
	}
	return out
}

func normalizeStringList(v any) []string {
	out := []string{}
	switch l := v.(type) {
	case []any:
		for _, e := range l {
			s := strings.TrimSpace(coerceString(e))
			if s != "" {
				out = append(out, s)
			}
		}
	case []string:
		for _, e := range l {
			e = strings.TrimSpace(e)
			if e != "" {
				out = append(out, e)
			}
		}
	case string:
		s := strings.TrimSpace(l)
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

// normalizeReshapeRules keeps only rules carrying a non-empty purpose; a rule
// without one is meaningless to the SQL generator and is dropped with the
// payload rather than persisted half-formed.
func normalizeReshapeRules(v any) []any {
	list, _ := v.([]any)
	out := []any{}
	for _, e := range list {
		rule, ok := e.(map[string]any)
		if !ok {
			continue
		}
		if strings.TrimSpace(coerceString(rule["purpose"])) == "" {
			continue
		}
		out = append(out, rule)
	}
	return out
}
