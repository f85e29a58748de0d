// Package sql inspects and builds the SQL text that flows between the model and
// the warehouse.
package sql

import (
	"errors"
	"regexp"
	"strings"
)

// ErrNoTableName is returned when a statement carries no CREATE TABLE target.
var ErrNoTableName = errors.New("invalid CREATE TABLE query")

// ErrQualifiedTableName is returned when the CREATE TABLE target names a
// schema. Tables are always created in the warehouse schema.
var ErrQualifiedTableName = errors.New("schema-qualified table name")

// createPrefix is the exact prefix every extracted statement starts with.
const createPrefix = "CREATE TABLE "

var (
	createKeywordPattern = regexp.MustCompile(`(?i)CREATE\s+TABLE\s+`)
	validCreatePattern   = regexp.MustCompile(`^CREATE TABLE .+;\s*$`)
	tableNamePattern     = regexp.MustCompile(`(?i)CREATE\s+TABLE\s+(?:IF\s+NOT\s+EXISTS\s+)?("?)(\w+)("?)(\s*\.)?`)
	newlinePattern       = regexp.MustCompile(`\r\n|\r|\n`)
)

// ExtractCreateStatement returns the last CREATE TABLE statement in raw that is
// terminated by a semicolon. Models often think aloud with an earlier draft, so
// only the final occurrence is trusted. The result always begins with
// "CREATE TABLE ".
func ExtractCreateStatement(raw string) (string, bool) {
	matches := createKeywordPattern.FindAllStringIndex(raw, -1)
	for i := len(matches) - 1; i >= 0; i-- {
		start, bodyStart := matches[i][0], matches[i][1]
		end := strings.IndexByte(raw[start:], ';')
		if end < 0 {
			continue
		}
		body := raw[bodyStart : start+end+1]
		return createPrefix + body, true
	}
	return "", false
}

// IsValidCreateTable is a syntactic smoke test, not a parser: the statement must
// start with CREATE TABLE, end with a single terminator, and contain no other
// statement separator outside string literals.
func IsValidCreateTable(text string) bool {
	collapsed := strings.TrimSpace(newlinePattern.ReplaceAllString(text, " "))
	if !validCreatePattern.MatchString(collapsed) {
		return false
	}
	body := stripTrailingSemicolon(collapsed)
	return !hasSemicolonOutsideStrings(body)
}

// ExtractTableName returns the target table of a CREATE TABLE statement.
// Unquoted identifiers are folded to lower case the way Postgres stores them.
// A schema-qualified target is ErrQualifiedTableName.
func ExtractTableName(text string) (string, error) {
	m := tableNamePattern.FindStringSubmatch(text)
	if m == nil {
		return "", ErrNoTableName
	}
	if m[4] != "" {
		return "", ErrQualifiedTableName
	}
	name := m[2]
	if m[1] == `"` && m[3] == `"` {
		return name, nil
	}
	return strings.ToLower(name), nil
}

// ColumnSpec names one column of a programmatically built table.
type ColumnSpec struct {
	Name string
	Type string // text, integer, money, date, boolean
}

var columnTypes = map[string]string{
	"text":    "TEXT",
	"integer": "INTEGER",
	"money":   "NUMERIC(12,2)",
	"date":    "DATE",
	"boolean": "BOOLEAN",
}

// ColumnType maps the abstract column vocabulary onto Postgres types.
// Unknown types fall back to TEXT.
func ColumnType(abstract string) string {
	if t, ok := columnTypes[strings.ToLower(strings.TrimSpace(abstract))]; ok {
		return t
	}
	return "TEXT"
}

// BuildCreateStatement renders a CREATE TABLE statement for the non-LLM path.
func BuildCreateStatement(table string, columns []ColumnSpec) string {
	defs := make([]string, 0, len(columns))
	for _, c := range columns {
		defs = append(defs, c.Name+" "+ColumnType(c.Type))
	}

	var sb strings.Builder
	sb.WriteString(createPrefix)
	sb.WriteString(table)
	sb.WriteString(" (")
	sb.WriteString(strings.Join(defs, ", "))
	sb.WriteString(");")
	return sb.String()
}

// stripTrailingSemicolon removes one trailing terminator and surrounding whitespace.
func stripTrailingSemicolon(statement string) string {
	statement = strings.TrimRight(statement, " \t\n\r")
	statement = strings.TrimSuffix(statement, ";")
	return strings.TrimRight(statement, " \t\n\r")
}

// hasSemicolonOutsideStrings reports whether statement contains a semicolon
// that is not inside a single- or double-quoted literal.
func hasSemicolonOutsideStrings(statement string) bool {
	const (
		stateNormal = iota
		stateSingleQuote
		stateDoubleQuote
	)

	state := stateNormal
	var prev rune
	for _, r := range statement {
		switch state {
		case stateNormal:
			switch r {
			case ';':
				return true
			case '\'':
				state = stateSingleQuote
			case '"':
				state = stateDoubleQuote
			}
		case stateSingleQuote:
			// '' re-enters on the next quote, which keeps us inside the literal
			if r == '\'' && prev != '\\' {
				state = stateNormal
			}
		case stateDoubleQuote:
			if r == '"' && prev != '\\' {
				state = stateNormal
			}
		}
		prev = r
	}
	return false
}
