package discovery

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AlfRonDon/NeuraReport-sub002/internal/contract"
	"github.com/AlfRonDon/NeuraReport-sub002/internal/dbx"
	"github.com/AlfRonDon/NeuraReport-sub002/internal/testutil"
)

func openTestDB(t *testing.T, ddl ...string) *sql.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "source.db")
	db, err := dbx.Open(context.Background(), dbx.Target{Dialect: dbx.DialectSQLite, DSN: path})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	for _, stmt := range ddl {
		_, err := db.Exec(stmt)
		require.NoError(t, err, "ddl: %s", stmt)
	}
	return db
}

func TestDiscoverBatches_NoChildTable(t *testing.T) {
	db := openTestDB(t,
		`CREATE TABLE recipes (id INTEGER, start_time TEXT, plant TEXT)`,
		`INSERT INTO recipes VALUES (1, '2025-01-05', 'P1')`,
		`INSERT INTO recipes VALUES (2, '2024-12-31', 'P1')`,
	)

	c := &contract.Contract{
		Join:        contract.Join{ParentTable: "recipes", ParentKey: contract.KeyRef{"id"}},
		DateColumns: map[string]string{"recipes": "start_time"},
	}
	eng := New(db, dbx.DialectSQLite, testutil.NewTestLogger(t))

	res, err := eng.DiscoverBatches(context.Background(), c, Params{
		StartDate: "2025-01-01",
		EndDate:   "2025-12-31",
	})
	require.NoError(t, err)

	// No child table: batch rows equal parent rows.
	require.Equal(t, 1, res.BatchesCount)
	assert.Equal(t, Batch{ID: "1", Rows: 1, Parent: 1}, res.Batches[0])
	assert.Equal(t, 1, res.RowsTotal)
}

func TestDiscoverBatches_CompositeKeysWithChild(t *testing.T) {
	db := openTestDB(t,
		`CREATE TABLE orders (plant_id INTEGER, batch_no TEXT, start_ts TEXT)`,
		`CREATE TABLE order_items (plant_id INTEGER, batch_no TEXT, line_no INTEGER, start_ts TEXT)`,
		`INSERT INTO orders VALUES (101, 'A', '2025-02-01')`,
		`INSERT INTO orders VALUES (101, 'B', '2025-02-02')`,
		`INSERT INTO orders VALUES (101, 'C', '2024-06-01')`,
		`INSERT INTO order_items VALUES (101, 'A', 1, '2025-02-01')`,
		`INSERT INTO order_items VALUES (101, 'A', 2, '2025-02-01')`,
		`INSERT INTO order_items VALUES (101, 'B', 1, '2025-02-02')`,
		`INSERT INTO order_items VALUES (101, 'C', 1, '2024-06-01')`,
	)

	c := &contract.Contract{
		Join: contract.Join{
			ParentTable: "orders",
			ParentKey:   contract.KeyRef{"plant_id", "batch_no"},
			ChildTable:  "order_items",
			ChildKey:    contract.KeyRef{"plant_id", "batch_no"},
		},
		DateColumns: map[string]string{"orders": "start_ts", "order_items": "start_ts"},
	}
	eng := New(db, dbx.DialectSQLite, testutil.NewTestLogger(t))

	res, err := eng.DiscoverBatches(context.Background(), c, Params{
		StartDate: "2025-01-01",
		EndDate:   "2025-12-31",
	})
	require.NoError(t, err)

	assert.Equal(t, 2, res.BatchesCount)
	assert.Equal(t, 3, res.RowsTotal)
	require.Len(t, res.Batches, 2)
	assert.Equal(t, Batch{ID: "101|A", Rows: 2, Parent: 1}, res.Batches[0])
	assert.Equal(t, Batch{ID: "101|B", Rows: 1, Parent: 1}, res.Batches[1])
}

func TestDiscoverBatches_ParentKeyInferredFromChildKey(t *testing.T) {
	db := openTestDB(t,
		`CREATE TABLE orders (plant_id INTEGER, batch_no TEXT, start_ts TEXT)`,
		`CREATE TABLE order_items (plant_id INTEGER, batch_no TEXT, qty INTEGER)`,
		`INSERT INTO orders VALUES (7, 'X', '2025-03-01')`,
		`INSERT INTO order_items VALUES (7, 'X', 5)`,
		`INSERT INTO order_items VALUES (7, 'X', 6)`,
	)

	// parent_key blank: the child key's columns are assumed to exist on the
	// parent verbatim.
	c := &contract.Contract{
		Join: contract.Join{
			ParentTable: "orders",
			ChildTable:  "order_items",
			ChildKey:    contract.KeyRef{"plant_id", "batch_no"},
		},
		DateColumns: map[string]string{"orders": "start_ts"},
	}
	eng := New(db, dbx.DialectSQLite, testutil.NewTestLogger(t))

	res, err := eng.DiscoverBatches(context.Background(), c, Params{
		StartDate: "2025-01-01",
		EndDate:   "2025-12-31",
	})
	require.NoError(t, err)

	require.Equal(t, 1, res.BatchesCount)
	assert.Equal(t, Batch{ID: "7|X", Rows: 2, Parent: 1}, res.Batches[0])
}

func TestDiscoverBatches_RowIdentityFallback(t *testing.T) {
	db := openTestDB(t,
		`CREATE TABLE readings (start_ts TEXT, metric REAL)`,
		`INSERT INTO readings VALUES ('2025-01-10', 1.5)`,
		`INSERT INTO readings VALUES ('2025-01-11', 2.5)`,
		`INSERT INTO readings VALUES ('2023-01-01', 9.9)`,
	)

	c := &contract.Contract{
		Join:        contract.Join{ParentTable: "readings"},
		DateColumns: map[string]string{"readings": "start_ts"},
	}
	eng := New(db, dbx.DialectSQLite, testutil.NewTestLogger(t))

	res, err := eng.DiscoverBatches(context.Background(), c, Params{
		StartDate: "2025-01-01",
		EndDate:   "2025-12-31",
	})
	require.NoError(t, err)

	require.Equal(t, 2, res.BatchesCount)
	assert.Equal(t, Batch{ID: "1", Rows: 1, Parent: 1}, res.Batches[0])
	assert.Equal(t, Batch{ID: "2", Rows: 1, Parent: 1}, res.Batches[1])
	assert.Equal(t, 2, res.RowsTotal)
}

func TestDiscoverBatches_KeyValueFilters(t *testing.T) {
	db := openTestDB(t,
		`CREATE TABLE orders (plant_id INTEGER, batch_no TEXT, start_ts TEXT)`,
		`INSERT INTO orders VALUES (101, 'A', '2025-02-01')`,
		`INSERT INTO orders VALUES (202, 'B', '2025-02-01')`,
	)

	c := &contract.Contract{
		Join:        contract.Join{ParentTable: "orders", ParentKey: contract.KeyRef{"plant_id", "batch_no"}},
		DateColumns: map[string]string{"orders": "start_ts"},
	}
	eng := New(db, dbx.DialectSQLite, testutil.NewTestLogger(t))

	res, err := eng.DiscoverBatches(context.Background(), c, Params{
		StartDate: "2025-01-01",
		EndDate:   "2025-12-31",
		KeyValues: map[string]string{"plant_id": "101"},
	})
	require.NoError(t, err)

	require.Equal(t, 1, res.BatchesCount)
	assert.Equal(t, "101|A", res.Batches[0].ID)
}

func TestDiscoverBatches_TableWithoutDateColumnNotFiltered(t *testing.T) {
	// A join leg with no declared date column is a static reference table:
	// always in range.
	db := openTestDB(t,
		`CREATE TABLE plants (plant_id INTEGER)`,
		`INSERT INTO plants VALUES (1)`,
		`INSERT INTO plants VALUES (2)`,
	)

	c := &contract.Contract{
		Join: contract.Join{ParentTable: "plants", ParentKey: contract.KeyRef{"plant_id"}},
	}
	eng := New(db, dbx.DialectSQLite, testutil.NewTestLogger(t))

	res, err := eng.DiscoverBatches(context.Background(), c, Params{
		StartDate: "2025-01-01",
		EndDate:   "2025-12-31",
	})
	require.NoError(t, err)
	assert.Equal(t, 2, res.BatchesCount)
}

func TestDiscoverBatches_DuplicateParentKeys(t *testing.T) {
	db := openTestDB(t,
		`CREATE TABLE orders (plant_id INTEGER, start_ts TEXT)`,
		`INSERT INTO orders VALUES (1, '2025-02-01')`,
		`INSERT INTO orders VALUES (1, '2025-02-02')`,
	)

	c := &contract.Contract{
		Join:        contract.Join{ParentTable: "orders", ParentKey: contract.KeyRef{"plant_id"}},
		DateColumns: map[string]string{"orders": "start_ts"},
	}
	eng := New(db, dbx.DialectSQLite, testutil.NewTestLogger(t))

	res, err := eng.DiscoverBatches(context.Background(), c, Params{StartDate: "2025-01-01", EndDate: "2025-12-31"})
	require.NoError(t, err)

	// Duplicate logical keys on the parent collapse into one batch with
	// parent count 2.
	require.Equal(t, 1, res.BatchesCount)
	assert.Equal(t, Batch{ID: "1", Rows: 2, Parent: 2}, res.Batches[0])
}

func TestDiscoverBatches_FailsLoudly(t *testing.T) {
	db := openTestDB(t, `CREATE TABLE t (a INTEGER)`)
	eng := New(db, dbx.DialectSQLite, testutil.NewTestLogger(t))

	// Missing parent table is a programming error, not an empty result.
	_, err := eng.DiscoverBatches(context.Background(), &contract.Contract{}, Params{})
	assert.Error(t, err)

	// Malformed identifiers in the join block are rejected before any query.
	bad := &contract.Contract{
		Join: contract.Join{ParentTable: "t", ParentKey: contract.KeyRef{`a"; DROP TABLE t; --`}},
	}
	_, err = eng.DiscoverBatches(context.Background(), bad, Params{})
	assert.Error(t, err)

	// A nonexistent table propagates the database error uncaught.
	missing := &contract.Contract{
		Join: contract.Join{ParentTable: "no_such_table", ParentKey: contract.KeyRef{"a"}},
	}
	_, err = eng.DiscoverBatches(context.Background(), missing, Params{})
	assert.Error(t, err)
}

func TestDiscoverBatches_EmptyRangeIsValidResult(t *testing.T) {
	db := openTestDB(t,
		`CREATE TABLE orders (plant_id INTEGER, start_ts TEXT)`,
		`INSERT INTO orders VALUES (1, '2020-01-01')`,
	)
	c := &contract.Contract{
		Join:        contract.Join{ParentTable: "orders", ParentKey: contract.KeyRef{"plant_id"}},
		DateColumns: map[string]string{"orders": "start_ts"},
	}
	eng := New(db, dbx.DialectSQLite, testutil.NewTestLogger(t))

	res, err := eng.DiscoverBatches(context.Background(), c, Params{StartDate: "2025-01-01", EndDate: "2025-12-31"})
	require.NoError(t, err)
	assert.Equal(t, 0, res.BatchesCount)
	assert.Empty(t, res.Batches)
}
