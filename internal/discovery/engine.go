// Package discovery enumerates report batches against a live database using
// a contract's join and date-column metadata, and derives chart-ready metrics
// from the results.
package discovery

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/AlfRonDon/NeuraReport-sub002/internal/contract"
	"github.com/AlfRonDon/NeuraReport-sub002/internal/dbx"
)

// Batch is one instance of a repeating report unit. ID is the |-joined
// string form of the composite key, or a 1-based decimal row counter in the
// ROWID fallback case.
type Batch struct {
	ID     string `json:"id"`
	Rows   int    `json:"rows"`
	Parent int    `json:"parent"`
}

// Result is the outcome of one discovery call. Batches are ephemeral:
// recomputed every call, never persisted.
type Result struct {
	Batches      []Batch `json:"batches"`
	BatchesCount int     `json:"batches_count"`
	RowsTotal    int     `json:"rows_total"`
}

// Params bound one discovery call. StartDate/EndDate form an inclusive
// ISO-8601 range; KeyValues are equality filters on parent columns.
type Params struct {
	StartDate string            `json:"start_date"`
	EndDate   string            `json:"end_date"`
	KeyValues map[string]string `json:"key_values,omitempty"`
}

// identPattern is the only identifier shape discovery will interpolate.
// A contract that reaches this layer has already passed catalog validation,
// so a malformed table or column name is a programming error and fails loudly.
var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Engine runs batch discovery over a read-only database handle.
type Engine struct {
	db      *sql.DB
	dialect string
	logger  *slog.Logger
}

// New creates an Engine over db. The dialect decides the placeholder style
// of generated queries ($n for postgres, ? otherwise); it must match the
// driver behind db. The engine never writes to db.
func New(db *sql.DB, dialect string, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Engine{db: db, dialect: dialect, logger: logger}
}

// placeholder renders the n-th (1-based) bind parameter for the engine's
// dialect. pgx does not translate ?, so postgres queries use $n.
func (e *Engine) placeholder(n int) string {
	if e.dialect == dbx.DialectPostgres {
		return "$" + strconv.Itoa(n)
	}
	return "?"
}

// DiscoverBatches enumerates distinct parent batches within the date range
// and key-value filters, counting parent rows and child detail rows per
// batch.
//
// Key resolution precedence: an empty parent_key with a non-empty child_key
// uses the child key's columns on the parent side too (the contract
// convention assumes the child table embeds the parent's key columns
// verbatim). When neither key is declared, every parent row is its own batch,
// keyed by a 1-based scan counter.
func (e *Engine) DiscoverBatches(ctx context.Context, c *contract.Contract, p Params) (*Result, error) {
	join := c.Join
	parentTable := strings.TrimSpace(join.ParentTable)
	if parentTable == "" {
		return nil, fmt.Errorf("discovery: contract join has no parent_table")
	}
	if err := checkIdent(parentTable); err != nil {
		return nil, err
	}

	parentKey := join.ParentKey.Columns()
	childKey := join.ChildKey.Columns()
	if len(parentKey) == 0 && len(childKey) > 0 {
		parentKey = childKey
	}
	childTable := strings.TrimSpace(join.ChildTable)

	e.logger.Debug("discovering batches",
		"parent_table", parentTable,
		"child_table", childTable,
		"parent_key", strings.Join(parentKey, "|"),
		"start", p.StartDate,
		"end", p.EndDate)

	if len(parentKey) == 0 {
		return e.discoverByRowIdentity(ctx, c, parentTable, p)
	}
	for _, col := range parentKey {
		if err := checkIdent(col); err != nil {
			return nil, err
		}
	}

	parents, order, err := e.parentCounts(ctx, c, parentTable, parentKey, p)
	if err != nil {
		return nil, err
	}

	var childCounts map[string]int
	if childTable != "" {
		if err := checkIdent(childTable); err != nil {
			return nil, err
		}
		useChildKey := childKey
		if len(useChildKey) == 0 {
			// Same convention as the parent side: identical column names.
			useChildKey = parentKey
		}
		for _, col := range useChildKey {
			if err := checkIdent(col); err != nil {
				return nil, err
			}
		}
		childCounts, err = e.childCounts(ctx, c, childTable, useChildKey, p)
		if err != nil {
			return nil, err
		}
	}

	result := &Result{Batches: make([]Batch, 0, len(order))}
	for _, id := range order {
		parent := parents[id]
		rows := parent
		if childTable != "" {
			rows = childCounts[id]
		}
		result.Batches = append(result.Batches, Batch{ID: id, Rows: rows, Parent: parent})
		result.RowsTotal += rows
	}
	result.BatchesCount = len(result.Batches)
	return result, nil
}

// parentCounts groups parent rows by the batch key, returning per-key counts
// and the key order (ascending by key string, stable across calls).
func (e *Engine) parentCounts(ctx context.Context, c *contract.Contract, table string, key []string, p Params) (map[string]int, []string, error) {
	where, args, err := e.filterClause(c, table, p, true)
	if err != nil {
		return nil, nil, err
	}

	cols := quoteAll(key)
	query := fmt.Sprintf("SELECT %s, COUNT(*) FROM %s%s GROUP BY %s",
		strings.Join(cols, ", "), quoteIdent(table), where, strings.Join(cols, ", "))

	rows, err := e.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, nil, fmt.Errorf("discovery: parent scan on %s: %w", table, err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	var order []string
	scan := make([]any, len(key)+1)
	vals := make([]any, len(key))
	var count int
	for i := range vals {
		scan[i] = &vals[i]
	}
	scan[len(key)] = &count

	for rows.Next() {
		if err := rows.Scan(scan...); err != nil {
			return nil, nil, fmt.Errorf("discovery: scanning parent row: %w", err)
		}
		id := batchID(vals)
		if _, seen := counts[id]; !seen {
			order = append(order, id)
		}
		counts[id] += count
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("discovery: iterating parent rows: %w", err)
	}
	sort.Strings(order)
	return counts, order, nil
}

// childCounts groups child rows by the join key within the child table's own
// date filter.
func (e *Engine) childCounts(ctx context.Context, c *contract.Contract, table string, key []string, p Params) (map[string]int, error) {
	where, args, err := e.filterClause(c, table, p, false)
	if err != nil {
		return nil, err
	}

	cols := quoteAll(key)
	query := fmt.Sprintf("SELECT %s, COUNT(*) FROM %s%s GROUP BY %s",
		strings.Join(cols, ", "), quoteIdent(table), where, strings.Join(cols, ", "))

	rows, err := e.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("discovery: child scan on %s: %w", table, err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	scan := make([]any, len(key)+1)
	vals := make([]any, len(key))
	var count int
	for i := range vals {
		scan[i] = &vals[i]
	}
	scan[len(key)] = &count

	for rows.Next() {
		if err := rows.Scan(scan...); err != nil {
			return nil, fmt.Errorf("discovery: scanning child row: %w", err)
		}
		counts[batchID(vals)] += count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("discovery: iterating child rows: %w", err)
	}
	return counts, nil
}

// discoverByRowIdentity is the terminal fallback when no key metadata exists:
// every parent row passing the filters is its own batch, identified by a
// 1-based scan counter. Never silently empty when rows match.
func (e *Engine) discoverByRowIdentity(ctx context.Context, c *contract.Contract, table string, p Params) (*Result, error) {
	where, args, err := e.filterClause(c, table, p, true)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf("SELECT COUNT(*) FROM %s%s", quoteIdent(table), where)
	var total int
	if err := e.db.QueryRowContext(ctx, query, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("discovery: row-identity scan on %s: %w", table, err)
	}

	result := &Result{Batches: make([]Batch, 0, total)}
	for i := 1; i <= total; i++ {
		result.Batches = append(result.Batches, Batch{ID: strconv.Itoa(i), Rows: 1, Parent: 1})
	}
	result.BatchesCount = total
	result.RowsTotal = total
	return result, nil
}

// filterClause builds the WHERE clause for table: the inclusive date range
// when the contract declares a date column for the table (a table without one
// is not date-filtered; static reference tables have no temporal dimension),
// plus the key-value equality filters on the parent leg.
func (e *Engine) filterClause(c *contract.Contract, table string, p Params, includeKeyValues bool) (string, []any, error) {
	var conds []string
	var args []any

	if dateCol := strings.TrimSpace(c.DateColumns[table]); dateCol != "" {
		if err := checkIdent(dateCol); err != nil {
			return "", nil, err
		}
		if p.StartDate != "" {
			args = append(args, p.StartDate)
			conds = append(conds, quoteIdent(dateCol)+" >= "+e.placeholder(len(args)))
		}
		if p.EndDate != "" {
			args = append(args, p.EndDate)
			conds = append(conds, quoteIdent(dateCol)+" <= "+e.placeholder(len(args)))
		}
	}

	if includeKeyValues && len(p.KeyValues) > 0 {
		cols := make([]string, 0, len(p.KeyValues))
		for col := range p.KeyValues {
			cols = append(cols, col)
		}
		sort.Strings(cols)
		for _, col := range cols {
			if err := checkIdent(col); err != nil {
				return "", nil, err
			}
			args = append(args, p.KeyValues[col])
			conds = append(conds, quoteIdent(col)+" = "+e.placeholder(len(args)))
		}
	}

	if len(conds) == 0 {
		return "", nil, nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args, nil
}

// batchID renders scanned key values as the |-joined batch identity string.
func batchID(vals []any) string {
	parts := make([]string, len(vals))
	for i, v := range vals {
		parts[i] = valueString(v)
	}
	return strings.Join(parts, "|")
}

// valueString renders one scanned column value in its canonical string form,
// shared by parent and child scans so composite ids always align.
func valueString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case []byte:
		return string(t)
	case string:
		return t
	case int64:
		return strconv.FormatInt(t, 10)
	case float64:
		if t == float64(int64(t)) {
			return strconv.FormatInt(int64(t), 10)
		}
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		if t {
			return "1"
		}
		return "0"
	default:
		return fmt.Sprintf("%v", t)
	}
}

func checkIdent(name string) error {
	if !identPattern.MatchString(name) {
		return fmt.Errorf("discovery: invalid identifier %q in contract join metadata", name)
	}
	return nil
}

func quoteIdent(name string) string {
	return `"` + name + `"`
}

func quoteAll(names []string) []string {
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = quoteIdent(n)
	}
	return out
}
