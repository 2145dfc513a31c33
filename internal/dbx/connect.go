// Package dbx opens report source databases and introspects them into the
// column catalog and database signature the contract pipeline consumes.
package dbx

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	// Database drivers registered for the supported targets.
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

// Dialects supported as discovery targets. The dialect also serves as the
// contract builder's dialect_hint.
const (
	DialectSQLite   = "sqlite"
	DialectPostgres = "postgres"
)

// Target identifies a source database.
type Target struct {
	// Dialect is "sqlite" or "postgres".
	Dialect string `koanf:"dialect" json:"dialect"`
	// DSN is the file path for sqlite, or a connection string for postgres.
	DSN string `koanf:"dsn" json:"dsn"`
}

// OpenReadOnly opens the target for discovery queries. SQLite files are
// opened with mode=ro; the discovery layer never writes to the source
// database regardless of driver capability.
func OpenReadOnly(ctx context.Context, t Target) (*sql.DB, error) {
	var driver, dsn string
	switch strings.ToLower(strings.TrimSpace(t.Dialect)) {
	case DialectSQLite, "":
		driver = "sqlite"
		dsn = t.DSN
		if !strings.HasPrefix(dsn, "file:") {
			dsn = "file:" + dsn
		}
		if !strings.Contains(dsn, "mode=") {
			sep := "?"
			if strings.Contains(dsn, "?") {
				sep = "&"
			}
			dsn += sep + "mode=ro"
		}
	case DialectPostgres:
		driver = "pgx"
		dsn = t.DSN
	default:
		return nil, fmt.Errorf("unsupported dialect %q", t.Dialect)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("opening %s database: %w", t.Dialect, err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("pinging %s database: %w", t.Dialect, err)
	}
	return db, nil
}

// Open opens the target read-write. Used only by test fixtures and tooling;
// production paths go through OpenReadOnly.
func Open(ctx context.Context, t Target) (*sql.DB, error) {
	var driver string
	switch strings.ToLower(strings.TrimSpace(t.Dialect)) {
	case DialectSQLite, "":
		driver = "sqlite"
	case DialectPostgres:
		driver = "pgx"
	default:
		return nil, fmt.Errorf("unsupported dialect %q", t.Dialect)
	}
	db, err := sql.Open(driver, t.DSN)
	if err != nil {
		return nil, fmt.Errorf("opening %s database: %w", t.Dialect, err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("pinging %s database: %w", t.Dialect, err)
	}
	return db, nil
}
