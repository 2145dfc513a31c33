package contract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testCatalog() *Catalog {
	return NewCatalog([]string{
		"orders.plant_id",
		"orders.batch_no",
		"orders.start_ts",
		"order_items.qty",
		"order_items.line_no",
	})
}

func TestValidateFragment_RoundTrip(t *testing.T) {
	cat := testCatalog()
	exprs := []string{
		"orders.plant_id",
		"SUM(order_items.qty)",
		"COALESCE(orders.batch_no, 'n/a')",
		"orders.plant_id || '|' || orders.batch_no",
	}
	for _, expr := range exprs {
		got, err := ValidateFragment("tok", expr, cat)
		require.NoError(t, err, "expr: %s", expr)
		assert.Equal(t, expr, got)
	}

	// Trimming is the only permitted change.
	got, err := ValidateFragment("tok", "  orders.start_ts  ", cat)
	require.NoError(t, err)
	assert.Equal(t, "orders.start_ts", got)
}

func TestValidateFragment_UnknownColumnOnKnownTable(t *testing.T) {
	cat := testCatalog()
	_, err := ValidateFragment("tok", "orders.plnt_id", cat)
	require.Error(t, err)
	var be *BuildError
	require.ErrorAs(t, err, &be)
	assert.Equal(t, "tok", be.Token)
	assert.Contains(t, be.Error(), "orders.plnt_id")
}

func TestValidateFragment_UnknownTableNotFlagged(t *testing.T) {
	// Tables absent from the catalog may be reshape aliases or CTEs.
	cat := testCatalog()
	got, err := ValidateFragment("tok", "unpivoted.bin_value + order_items.qty", cat)
	require.NoError(t, err)
	assert.Equal(t, "unpivoted.bin_value + order_items.qty", got)
}

func TestValidateFragment_LegacyWrappers(t *testing.T) {
	cat := testCatalog()
	cases := []string{
		"DERIVED: orders.plant_id",
		"  derived: something",
		"TABLE_COLUMNS[orders]",
		"table_columns[orders]",
		"COLUMN_EXP[orders.qty]",
		"  column_exp[x]  ",
	}
	for _, expr := range cases {
		_, err := ValidateFragment("tok", expr, cat)
		assert.Error(t, err, "expr: %q", expr)
	}
}

func TestValidateFragment_EmptyAndSubquery(t *testing.T) {
	cat := testCatalog()

	_, err := ValidateFragment("tok", "   ", cat)
	assert.Error(t, err)

	_, err = ValidateFragment("tok", "(SELECT MAX(qty) FROM order_items)", cat)
	assert.Error(t, err)

	_, err = ValidateFragment("tok", "orders.plant_id; DROP TABLE orders", cat)
	assert.Error(t, err)

	// SELECT inside a string literal is content, not a subquery.
	got, err := ValidateFragment("tok", "'SELECT label' || orders.batch_no", cat)
	require.NoError(t, err)
	assert.Contains(t, got, "orders.batch_no")

	// Identifiers merely containing "select" are fine.
	_, err = ValidateFragment("tok", "orders.plant_id + selected_qty", cat)
	assert.NoError(t, err)
}

func TestValidateFragment_DecimalLiteralsIgnored(t *testing.T) {
	cat := testCatalog()
	_, err := ValidateFragment("tok", "order_items.qty * 1.5", cat)
	assert.NoError(t, err)
}

func TestValidateContractSQL_SharedPass(t *testing.T) {
	cat := testCatalog()
	c := &Contract{
		Tokens: TokenSets{
			Scalars:   []string{"plant"},
			RowTokens: []string{"qty"},
			Totals:    []string{"total_qty"},
		},
		Mapping: map[string]string{
			"plant":     "orders.plant_id",
			"qty":       "order_items.qty",
			"total_qty": "SUM(order_items.qty)",
			"ghost":     "orders.batch_no",
		},
		Totals:      map[string]string{"total_qty": "SUM(order_items.qty)"},
		RowComputed: map[string]string{"qty_x2": " order_items.qty * 2 "},
		TotalsMath:  map[string]string{"grand": "SUM(order_items.qty)"},
	}

	report, err := validateContractSQL(c, cat)
	require.NoError(t, err)

	// Trimming happens in place across all four sections.
	assert.Equal(t, "order_items.qty * 2", c.RowComputed["qty_x2"])
	// "ghost" is mapped but not a declared token.
	assert.Equal(t, []string{"ghost"}, report.UnknownTokens)
	assert.InDelta(t, 100.0, report.TokenCoverage, 0.001)
}

func TestValidateContractSQL_FailureNamesToken(t *testing.T) {
	cat := testCatalog()
	c := &Contract{
		Tokens:  TokenSets{Scalars: []string{"plant"}},
		Mapping: map[string]string{"plant": "orders.nope"},
	}
	_, err := validateContractSQL(c, cat)
	require.Error(t, err)
	var be *BuildError
	require.ErrorAs(t, err, &be)
	assert.Equal(t, "plant", be.Token)
}

func TestValidateContractSQL_PassthroughsSkipped(t *testing.T) {
	cat := testCatalog()
	c := &Contract{
		Tokens: TokenSets{Scalars: []string{"plant", "site", "missing"}},
		Mapping: map[string]string{
			"plant":   "PARAM:plant",
			"site":    Unresolved,
			"missing": "",
		},
	}
	report, err := validateContractSQL(c, cat)
	require.NoError(t, err)
	// PARAM counts as resolved; UNRESOLVED and empty do not.
	assert.InDelta(t, 100.0/3.0, report.TokenCoverage, 0.001)
}

func TestValidateContractSQL_EmptyComputedValuesSkipped(t *testing.T) {
	cat := testCatalog()
	c := &Contract{
		Tokens:      TokenSets{Totals: []string{"total.qty"}},
		Totals:      map[string]string{"total.qty": ""},
		TotalsMath:  map[string]string{"total.qty": "   "},
		RowComputed: map[string]string{"row.derived": ""},
	}
	// Empty values mean "not yet mapped" in every section, including the
	// computed ones; they are trimmed and kept, never validated as SQL.
	_, err := validateContractSQL(c, cat)
	require.NoError(t, err)
	assert.Equal(t, "", c.TotalsMath["total.qty"])
	assert.Equal(t, "", c.RowComputed["row.derived"])
}

func TestValidateContractSQL_UnknownTableAdvisory(t *testing.T) {
	cat := testCatalog()
	c := &Contract{
		Tokens:  TokenSets{RowTokens: []string{"v"}},
		Mapping: map[string]string{"v": "unpivoted.bin_value"},
	}
	report, err := validateContractSQL(c, cat)
	require.NoError(t, err)
	assert.Equal(t, []string{"unpivoted.bin_value"}, report.UnknownColumns)
}
