package contract

import (
	"regexp"
	"sort"
	"strings"

	"github.com/AlfRonDon/NeuraReport-sub002/pkg/sqlsafe"
)

// legacyWrappers are pre-contract conventions for derived expressions. They
// are rejected outright; auto-translating them would hide schema drift.
var legacyWrappers = []string{"DERIVED:", "TABLE_COLUMNS[", "COLUMN_EXP["}

// columnRefPattern matches table.column references. The identifier must start
// with a letter or underscore, so decimal literals like 1.5 never match.
var columnRefPattern = regexp.MustCompile(`\b([A-Za-z_][A-Za-z0-9_]*)\.([A-Za-z_][A-Za-z0-9_]*)\b`)

// Catalog is the allow-list of "table.column" strings permitted in generated
// SQL, plus a derived set of known table names.
type Catalog struct {
	pairs  map[string]struct{}
	tables map[string]struct{}
	list   []string
}

// NewCatalog builds a Catalog from "table.column" entries. Entries are
// matched case-insensitively; order is preserved for List.
func NewCatalog(entries []string) *Catalog {
	c := &Catalog{
		pairs:  make(map[string]struct{}, len(entries)),
		tables: make(map[string]struct{}),
	}
	for _, e := range entries {
		e = strings.TrimSpace(e)
		if e == "" {
			continue
		}
		c.list = append(c.list, e)
		lower := strings.ToLower(e)
		c.pairs[lower] = struct{}{}
		if i := strings.IndexByte(lower, '.'); i > 0 {
			c.tables[lower[:i]] = struct{}{}
		}
	}
	return c
}

// List returns the catalog entries in their original order.
func (c *Catalog) List() []string { return c.list }

// HasPair reports whether table.column is allow-listed.
func (c *Catalog) HasPair(table, column string) bool {
	_, ok := c.pairs[strings.ToLower(table)+"."+strings.ToLower(column)]
	return ok
}

// HasTable reports whether any catalog entry belongs to table.
func (c *Catalog) HasTable(table string) bool {
	_, ok := c.tables[strings.ToLower(table)]
	return ok
}

// ValidateFragment checks one SQL expression bound to token against the
// catalog and returns the trimmed expression. It raises a BuildError for:
// legacy wrapper syntax, an empty expression, an embedded SELECT or statement
// separator, or a reference to a column that does not exist on a known table.
//
// References to tables entirely absent from the catalog are not flagged here;
// they may be aliases or CTEs introduced by reshape rules. Only misspelled
// columns on known tables are hard failures.
func ValidateFragment(token, expr string, catalog *Catalog) (string, error) {
	trimmed := strings.TrimSpace(expr)
	upper := strings.ToUpper(trimmed)
	for _, w := range legacyWrappers {
		if strings.Contains(upper, w) {
			return "", tokenErrorf("validate", token, "legacy wrapper syntax %q is no longer accepted", w)
		}
	}
	if trimmed == "" {
		return "", tokenErrorf("validate", token, "empty SQL expression")
	}

	scrubbed := sqlsafe.Scrub(trimmed)
	if strings.ContainsRune(scrubbed, ';') {
		return "", tokenErrorf("validate", token, "statement separator is not allowed in an expression")
	}
	if containsWord(scrubbed, "SELECT") {
		return "", tokenErrorf("validate", token, "subqueries are not allowed in an expression")
	}

	for _, m := range columnRefPattern.FindAllStringSubmatch(scrubbed, -1) {
		table, column := m[1], m[2]
		if catalog.HasTable(table) && !catalog.HasPair(table, column) {
			return "", tokenErrorf("validate", token, "column %s.%s is not in the schema catalog", table, column)
		}
	}
	return trimmed, nil
}

// containsWord reports whether upper-cased word appears in s as a whole word.
func containsWord(s, word string) bool {
	upper := strings.ToUpper(s)
	for i := 0; ; {
		j := strings.Index(upper[i:], word)
		if j < 0 {
			return false
		}
		j += i
		beforeOK := j == 0 || !isWordByte(upper[j-1])
		after := j + len(word)
		afterOK := after >= len(upper) || !isWordByte(upper[after])
		if beforeOK && afterOK {
			return true
		}
		i = j + len(word)
	}
}

func isWordByte(b byte) bool {
	return b == '_' || (b >= '0' && b <= '9') || (b >= 'A' && b <= 'Z') || (b >= 'a' && b <= 'z')
}

// ValidationReport carries advisory findings surfaced alongside a build.
// These never block persistence; only ValidateFragment failures do.
type ValidationReport struct {
	UnknownTokens  []string `json:"unknown_tokens"`
	UnknownColumns []string `json:"unknown_columns"`
	TokenCoverage  float64  `json:"token_coverage"`
}

// validateContractSQL runs the shared normalization pass over the four SQL
// sections of a contract: mapping, totals, row_computed, totals_math. Each
// value is trimmed in place; any hard failure aborts with the offending
// token named. It returns the advisory report.
func validateContractSQL(c *Contract, catalog *Catalog) (*ValidationReport, error) {
	report := &ValidationReport{
		UnknownTokens:  []string{},
		UnknownColumns: []string{},
	}

	known := make(map[string]struct{})
	for _, name := range c.Tokens.All() {
		known[name] = struct{}{}
	}

	unknownCols := make(map[string]struct{})
	sections := []map[string]string{c.Mapping, c.Totals, c.RowComputed, c.TotalsMath}
	for _, section := range sections {
		for token, expr := range section {
			trimmed := strings.TrimSpace(expr)
			// Passthroughs and unresolved markers carry no SQL to validate.
			if trimmed == Unresolved || strings.HasPrefix(trimmed, ParamPrefix) {
				section[token] = trimmed
				continue
			}
			if trimmed == "" {
				// Empty values in any section are kept as-is and skipped:
				// they mean "not yet mapped" (compat augmentation defaults
				// totals to ""), so only non-empty fragments face the hard
				// SQL-safety checks.
				section[token] = trimmed
				continue
			}
			validated, err := ValidateFragment(token, trimmed, catalog)
			if err != nil {
				return nil, err
			}
			section[token] = validated
			collectUnknownTables(validated, catalog, unknownCols)
		}
	}

	for token := range c.Mapping {
		if _, ok := known[token]; !ok {
			report.UnknownTokens = append(report.UnknownTokens, token)
		}
	}
	sort.Strings(report.UnknownTokens)

	for ref := range unknownCols {
		report.UnknownColumns = append(report.UnknownColumns, ref)
	}
	sort.Strings(report.UnknownColumns)

	total := len(c.Tokens.All())
	if total > 0 {
		report.TokenCoverage = float64(total-len(c.Unresolved())) / float64(total) * 100
	}
	return report, nil
}

// collectUnknownTables records table.column references whose table is absent
// from the catalog. These are surfaced as advisories: they are usually CTE or
// reshape aliases, but a typo in a table name also lands here.
func collectUnknownTables(expr string, catalog *Catalog, into map[string]struct{}) {
	for _, m := range columnRefPattern.FindAllStringSubmatch(sqlsafe.Scrub(expr), -1) {
		if !catalog.HasTable(m[1]) {
			into[m[1]+"."+m[2]] = struct{}{}
		}
	}
}
