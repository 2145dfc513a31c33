package dbx

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
)

// Catalog returns the ordered "table.column" allow-list for every user table
// in the database. Internal bookkeeping tables (sqlite_*, pg_*) are excluded.
// The result is recomputed whenever the contract builder runs; it is
// immutable per database snapshot.
func Catalog(ctx context.Context, db *sql.DB, dialect string) ([]string, error) {
	tables, err := listTables(ctx, db, dialect)
	if err != nil {
		return nil, err
	}

	var out []string
	for _, table := range tables {
		cols, err := listColumns(ctx, db, dialect, table)
		if err != nil {
			return nil, err
		}
		for _, col := range cols {
			out = append(out, table+"."+col)
		}
	}
	return out, nil
}

// Signature computes the database fingerprint: a hash over the schema (table
// and column names) plus per-table row counts. A changed signature
// invalidates cached contracts built against the previous snapshot.
func Signature(ctx context.Context, db *sql.DB, dialect string) (string, error) {
	tables, err := listTables(ctx, db, dialect)
	if err != nil {
		return "", err
	}

	h := sha256.New()
	for _, table := range tables {
		cols, err := listColumns(ctx, db, dialect, table)
		if err != nil {
			return "", err
		}
		var count int64
		// Table names come from the engine's own metadata, not user input.
		row := db.QueryRowContext(ctx, fmt.Sprintf(`SELECT COUNT(*) FROM "%s"`, table))
		if err := row.Scan(&count); err != nil {
			return "", fmt.Errorf("counting rows in %s: %w", table, err)
		}
		fmt.Fprintf(h, "%s(%s)=%d\n", table, strings.Join(cols, ","), count)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func listTables(ctx context.Context, db *sql.DB, dialect string) ([]string, error) {
	var query string
	switch strings.ToLower(dialect) {
	case DialectPostgres:
		query = `SELECT table_name FROM information_schema.tables
			WHERE table_schema = 'public' AND table_type = 'BASE TABLE'`
	default:
		query = `SELECT name FROM sqlite_master
			WHERE type = 'table' AND name NOT LIKE 'sqlite_%'`
	}
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("listing tables: %w", err)
	}
	defer rows.Close()

	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scanning table name: %w", err)
		}
		tables = append(tables, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating tables: %w", err)
	}
	sort.Strings(tables)
	return tables, nil
}

func listColumns(ctx context.Context, db *sql.DB, dialect, table string) ([]string, error) {
	switch strings.ToLower(dialect) {
	case DialectPostgres:
		rows, err := db.QueryContext(ctx,
			`SELECT column_name FROM information_schema.columns
			 WHERE table_schema = 'public' AND table_name = $1
			 ORDER BY ordinal_position`, table)
		if err != nil {
			return nil, fmt.Errorf("listing columns of %s: %w", table, err)
		}
		defer rows.Close()
		var cols []string
		for rows.Next() {
			var name string
			if err := rows.Scan(&name); err != nil {
				return nil, fmt.Errorf("scanning column of %s: %w", table, err)
			}
			cols = append(cols, name)
		}
		return cols, rows.Err()
	default:
		rows, err := db.QueryContext(ctx, fmt.Sprintf(`PRAGMA table_info("%s")`, table))
		if err != nil {
			return nil, fmt.Errorf("listing columns of %s: %w", table, err)
		}
		defer rows.Close()
		var cols []string
		for rows.Next() {
			var (
				cid     int
				name    string
				ctype   string
				notNull int
				dflt    sql.NullString
				pk      int
			)
			if err := rows.Scan(&cid, &name, &ctype, &notNull, &dflt, &pk); err != nil {
				return nil, fmt.Errorf("scanning column of %s: %w", table, err)
			}
			cols = append(cols, name)
		}
		return cols, rows.Err()
	}
}
