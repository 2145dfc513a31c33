// Package sqlsafe classifies SQL fragments without executing them.
// It provides write-intent detection and read-only statement checks that
// ignore keyword lookalikes inside string literals and comments.
package sqlsafe

import "strings"

// writeKeywords are statement keywords that mutate database state.
// Order does not matter; the first match by position in the input wins.
var writeKeywords = map[string]struct{}{
	"INSERT":   {},
	"UPDATE":   {},
	"DELETE":   {},
	"DROP":     {},
	"ALTER":    {},
	"CREATE":   {},
	"TRUNCATE": {},
	"REPLACE":  {},
	"MERGE":    {},
	"GRANT":    {},
	"REVOKE":   {},
	"COMMENT":  {},
	"RENAME":   {},
	"VACUUM":   {},
	"ATTACH":   {},
	"DETACH":   {},
}

// Scrub returns sql with every character that sits inside a string literal,
// line comment, or block comment replaced by a space. The result has the same
// length as the input, so byte positions survive scrubbing.
//
// The scanner tracks four mutually exclusive states: single-quoted string,
// double-quoted string, "--" line comment, and "/* */" block comment.
// Doubled quotes ('' and "") are treated as escapes, per SQL rules.
func Scrub(sql string) string {
	if sql == "" {
		return ""
	}

	const (
		stateNone = iota
		stateSingle
		stateDouble
		stateLine
		stateBlock
	)

	out := []byte(sql)
	state := stateNone
	for i := 0; i < len(sql); i++ {
		c := sql[i]
		switch state {
		case stateNone:
			switch {
			case c == '\'':
				state = stateSingle
				out[i] = ' '
			case c == '"':
				state = stateDouble
				out[i] = ' '
			case c == '-' && i+1 < len(sql) && sql[i+1] == '-':
				state = stateLine
				out[i] = ' '
			case c == '/' && i+1 < len(sql) && sql[i+1] == '*':
				state = stateBlock
				out[i] = ' '
			}
		case stateSingle:
			if c == '\'' {
				if i+1 < len(sql) && sql[i+1] == '\'' {
					// Escaped quote: consume both, stay inside the literal.
					out[i] = ' '
					i++
					out[i] = ' '
					continue
				}
				state = stateNone
			}
			out[i] = ' '
		case stateDouble:
			if c == '"' {
				if i+1 < len(sql) && sql[i+1] == '"' {
					out[i] = ' '
					i++
					out[i] = ' '
					continue
				}
				state = stateNone
			}
			out[i] = ' '
		case stateLine:
			if c == '\n' {
				state = stateNone
				// Keep the newline so line boundaries survive.
				continue
			}
			out[i] = ' '
		case stateBlock:
			if c == '*' && i+1 < len(sql) && sql[i+1] == '/' {
				out[i] = ' '
				i++
				out[i] = ' '
				state = stateNone
				continue
			}
			out[i] = ' '
		}
	}
	return string(out)
}

// WriteOp returns the first write-intent keyword found in sql outside of
// string literals and comments, and whether one was found. Empty input
// returns ("", false). WriteOp never fails; callers must fail closed and
// only execute statements where WriteOp reports none AND IsSelectOrWith
// reports true.
func WriteOp(sql string) (string, bool) {
	if strings.TrimSpace(sql) == "" {
		return "", false
	}
	for _, word := range splitWords(Scrub(sql)) {
		upper := strings.ToUpper(word)
		if _, ok := writeKeywords[upper]; ok {
			return upper, true
		}
	}
	return "", false
}

// IsSelectOrWith reports whether sql, after scrubbing literals and comments
// and trimming leading whitespace, begins with SELECT or WITH
// (case-insensitive). The keyword must open the statement itself:
// "(SELECT 1)" and ";SELECT 1" do not qualify. Empty input returns false.
func IsSelectOrWith(sql string) bool {
	s := strings.TrimSpace(Scrub(sql))
	i := 0
	for i < len(s) && isWordByte(s[i]) {
		i++
	}
	first := strings.ToUpper(s[:i])
	return first == "SELECT" || first == "WITH"
}

func isWordByte(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' || c == '_'
}

// splitWords breaks scrubbed SQL into identifier-ish words. Anything that is
// not a letter, digit, or underscore is a separator.
func splitWords(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		switch {
		case r >= 'a' && r <= 'z':
			return false
		case r >= 'A' && r <= 'Z':
			return false
		case r >= '0' && r <= '9':
			return false
		case r == '_':
			return false
		}
		return true
	})
}
