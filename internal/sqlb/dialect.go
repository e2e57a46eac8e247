package sqlb

import (
	"strconv"
	"strings"
)

// PlaceholderStyle selects how bind parameters are written.
type PlaceholderStyle int

const (
	// Question writes every parameter as "?" (sqlite, mysql).
	Question PlaceholderStyle = iota
	// Dollar writes numbered parameters "$1", "$2", ... (postgres).
	Dollar
)

// Dialect captures the differences between SQL engines that matter to the
// statements this package emits.
type Dialect struct {
	Name        string
	Placeholder PlaceholderStyle
	QuoteChar   byte
	// Returning is true when INSERT ... RETURNING hands back generated keys.
	// Dialects without it fall back to sql.Result.LastInsertId.
	Returning bool
	// EmptyInsert is the statement tail used when inserting a row with no
	// explicit columns.
	EmptyInsert string
}

var (
	SQLite = Dialect{
		Name:        "sqlite",
		Placeholder: Question,
		QuoteChar:   '"',
		EmptyInsert: "DEFAULT VALUES",
	}

	Postgres = Dialect{
		Name:        "postgres",
		Placeholder: Dollar,
		QuoteChar:   '"',
		Returning:   true,
		EmptyInsert: "DEFAULT VALUES",
	}

	MySQL = Dialect{
		Name:        "mysql",
		Placeholder: Question,
		QuoteChar:   '`',
		EmptyInsert: "() VALUES ()",
	}
)

// FormatPlaceholder returns the bind marker for the n-th (1-based) argument.
func (d Dialect) FormatPlaceholder(n int) string {
	if d.Placeholder == Dollar {
		return "$" + strconv.Itoa(n)
	}
	return "?"
}

// Quote quotes an identifier. Qualified names ("schema.table") are quoted
// per part and "*" is left alone.
func (d Dialect) Quote(ident string) string {
	if ident == "*" {
		return ident
	}
	q := string(d.QuoteChar)
	parts := strings.Split(ident, ".")
	for i, p := range parts {
		if p == "*" {
			continue
		}
		parts[i] = q + strings.ReplaceAll(p, q, q+q) + q
	}
	return strings.Join(parts, ".")
}
