// Package sqlb is a small fluent SQL builder over database/sql.
//
// A Builder is selected with a table name and refined with chainable calls
// that never mutate the receiver: each call returns a new Builder, so a base
// query can be shared and extended safely. Terminal methods (First, Get,
// Count, Insert, Update, Delete) compile the statement for the configured
// Dialect and run it through an Executor (*sql.DB, *sql.Tx or *sql.Conn).
//
//	rows, err := sqlb.New(db, sqlb.SQLite, "snippets", logger).
//		Where("owner_id", 7).
//		WhereNull("deleted_at").
//		OrderBy("created_at", "desc").
//		Limit(20).
//		Get(ctx)
//
// Errors reported by the driver are returned unchanged.
package sqlb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strings"
)

// Row is one result row keyed by column name.
type Row = map[string]any

// Executor is the subset of *sql.DB / *sql.Tx / *sql.Conn the builder needs.
type Executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Builder is the chainable query contract consumed by the model layer.
type Builder interface {
	Table() string
	Dialect() Dialect

	Select(columns ...string) Builder
	Where(column string, value any) Builder
	WhereMap(criteria map[string]any) Builder
	WhereOp(column, op string, value any) Builder
	WhereIn(column string, values ...any) Builder
	WhereNull(column string) Builder
	WhereNotNull(column string) Builder
	OrderBy(column, direction string) Builder
	Limit(n int) Builder
	Offset(n int) Builder

	// First returns the first matching row, or nil when there is none.
	First(ctx context.Context) (Row, error)
	Get(ctx context.Context) ([]Row, error)
	Count(ctx context.Context) (int64, error)
	// Insert writes one row and returns the value of the returning column
	// (nil when returning is empty).
	Insert(ctx context.Context, fields Row, returning string) (any, error)
	Update(ctx context.Context, fields Row) (int64, error)
	Delete(ctx context.Context) (int64, error)
}

// ErrNoFields is returned by Update when there is nothing to SET.
var ErrNoFields = errors.New("sqlb: update without fields")

var operators = map[string]bool{
	"=": true, "!=": true, "<>": true,
	">": true, ">=": true, "<": true, "<=": true,
	"LIKE": true, "NOT LIKE": true,
}

type condition struct {
	column string
	op     string
	value  any
	values []any
}

type order struct {
	column string
	desc   bool
}

type builder struct {
	exec    Executor
	dialect Dialect
	logger  *slog.Logger

	table   string
	columns []string
	wheres  []condition
	orders  []order
	limit   int
	offset  int

	// err records an invalid chain call; it surfaces at the terminal.
	err error
}

// New selects table on exec. A nil logger discards debug output.
func New(exec Executor, d Dialect, table string, logger *slog.Logger) Builder {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &builder{exec: exec, dialect: d, logger: logger, table: table}
}

func (b *builder) Table() string    { return b.table }
func (b *builder) Dialect() Dialect { return b.dialect }

func (b *builder) clone() *builder {
	c := *b
	c.columns = slices.Clone(b.columns)
	c.wheres = slices.Clone(b.wheres)
	c.orders = slices.Clone(b.orders)
	return &c
}

func (b *builder) Select(columns ...string) Builder {
	c := b.clone()
	c.columns = append(c.columns, columns...)
	return c
}

// Where adds "column = value", or "column IS NULL" when value is nil.
func (b *builder) Where(column string, value any) Builder {
	c := b.clone()
	if value == nil {
		c.wheres = append(c.wheres, condition{column: column, op: "IS NULL"})
	} else {
		c.wheres = append(c.wheres, condition{column: column, op: "=", value: value})
	}
	return c
}

// WhereMap adds one equality per key, in sorted key order.
func (b *builder) WhereMap(criteria map[string]any) Builder {
	var next Builder = b.clone()
	for _, k := range slices.Sorted(maps.Keys(criteria)) {
		next = next.Where(k, criteria[k])
	}
	return next
}

func (b *builder) WhereOp(column, op string, value any) Builder {
	c := b.clone()
	op = strings.ToUpper(strings.TrimSpace(op))
	if !operators[op] {
		c.err = fmt.Errorf("sqlb: unsupported operator %q", op)
		return c
	}
	c.wheres = append(c.wheres, condition{column: column, op: op, value: value})
	return c
}

func (b *builder) WhereIn(column string, values ...any) Builder {
	c := b.clone()
	c.wheres = append(c.wheres, condition{column: column, op: "IN", values: values})
	return c
}

func (b *builder) WhereNull(column string) Builder {
	c := b.clone()
	c.wheres = append(c.wheres, condition{column: column, op: "IS NULL"})
	return c
}

func (b *builder) WhereNotNull(column string) Builder {
	c := b.clone()
	c.wheres = append(c.wheres, condition{column: column, op: "IS NOT NULL"})
	return c
}

func (b *builder) OrderBy(column, direction string) Builder {
	c := b.clone()
	c.orders = append(c.orders, order{column: column, desc: strings.EqualFold(direction, "desc")})
	return c
}

func (b *builder) Limit(n int) Builder {
	c := b.clone()
	c.limit = n
	return c
}

func (b *builder) Offset(n int) Builder {
	c := b.clone()
	c.offset = n
	return c
}

func (b *builder) First(ctx context.Context) (Row, error) {
	rows, err := b.Limit(1).Get(ctx)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

func (b *builder) Get(ctx context.Context) ([]Row, error) {
	if b.err != nil {
		return nil, b.err
	}
	query, args := b.selectSQL()
	b.log(query, args)

	rows, err := b.exec.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	return scanRows(rows)
}

func (b *builder) Count(ctx context.Context) (int64, error) {
	if b.err != nil {
		return 0, b.err
	}
	c := newCompiler(b.dialect)
	query := "SELECT COUNT(*) FROM " + b.dialect.Quote(b.table) + c.where(b.wheres)
	b.log(query, c.args)

	var n int64
	if err := b.exec.QueryRowContext(ctx, query, c.args...).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func (b *builder) Insert(ctx context.Context, fields Row, returning string) (any, error) {
	if b.err != nil {
		return nil, b.err
	}
	useReturning := returning != "" && b.dialect.Returning
	query, args := b.insertSQL(fields, returning, useReturning)
	b.log(query, args)

	if useReturning {
		var id any
		if err := b.exec.QueryRowContext(ctx, query, args...).Scan(&id); err != nil {
			return nil, err
		}
		return normalize(id, ""), nil
	}

	res, err := b.exec.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	if returning == "" {
		return nil, nil
	}
	// A caller-supplied key (string ids, natural keys) is authoritative;
	// LastInsertId would only report the rowid.
	if v, ok := fields[returning]; ok && v != nil {
		return v, nil
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("sqlb: reading generated key of %s: %w", b.table, err)
	}
	return id, nil
}

func (b *builder) Update(ctx context.Context, fields Row) (int64, error) {
	if b.err != nil {
		return 0, b.err
	}
	if len(fields) == 0 {
		return 0, ErrNoFields
	}
	query, args := b.updateSQL(fields)
	b.log(query, args)

	res, err := b.exec.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (b *builder) Delete(ctx context.Context) (int64, error) {
	if b.err != nil {
		return 0, b.err
	}
	c := newCompiler(b.dialect)
	query := "DELETE FROM " + b.dialect.Quote(b.table) + c.where(b.wheres)
	b.log(query, c.args)

	res, err := b.exec.ExecContext(ctx, query, c.args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (b *builder) log(query string, args []any) {
	b.logger.Debug("executing query",
		slog.String("dialect", b.dialect.Name),
		slog.String("query", query),
		slog.Int("args", len(args)),
	)
}
