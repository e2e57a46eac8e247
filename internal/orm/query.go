package orm

import (
	"context"

	"github.com/sakif/activerecord/internal/apperror"
	"github.com/sakif/activerecord/internal/sqlb"
)

// Query wraps an sqlb.Builder. Chain methods replace the wrapped builder
// and return the same *Query. When a model type is bound, First and Get
// convert rows into models and First reports a not-found error on no row.
type Query struct {
	db    *DB
	model *Type
	b     sqlb.Builder
	err   error
}

// SetModel binds t and selects its table, discarding earlier conditions.
func (q *Query) SetModel(t *Type) *Query {
	q.model = t
	b, err := t.builder()
	if err != nil {
		q.err = err
		return q
	}
	q.b = b
	return q
}

// Model returns the bound type, or nil for a raw table query.
func (q *Query) Model() *Type { return q.model }

// Builder exposes the wrapped builder.
func (q *Query) Builder() sqlb.Builder { return q.b }

// Err reports a connection error recorded when the query was created.
func (q *Query) Err() error { return q.err }

func (q *Query) chain(fn func(sqlb.Builder) sqlb.Builder) *Query {
	if q.err == nil {
		q.b = fn(q.b)
	}
	return q
}

// Select limits the selected columns.
func (q *Query) Select(columns ...string) *Query {
	return q.chain(func(b sqlb.Builder) sqlb.Builder { return b.Select(columns...) })
}

// Where adds column = value, or IS NULL when value is nil.
func (q *Query) Where(column string, value any) *Query {
	return q.chain(func(b sqlb.Builder) sqlb.Builder { return b.Where(column, value) })
}

// WhereMap adds one Where per entry, in key order.
func (q *Query) WhereMap(criteria map[string]any) *Query {
	return q.chain(func(b sqlb.Builder) sqlb.Builder { return b.WhereMap(criteria) })
}

// WhereOp adds a comparison such as ">" or "LIKE".
func (q *Query) WhereOp(column, op string, value any) *Query {
	return q.chain(func(b sqlb.Builder) sqlb.Builder { return b.WhereOp(column, op, value) })
}

// WhereIn adds column IN (values...).
func (q *Query) WhereIn(column string, values ...any) *Query {
	return q.chain(func(b sqlb.Builder) sqlb.Builder { return b.WhereIn(column, values...) })
}

// WhereNull adds column IS NULL.
func (q *Query) WhereNull(column string) *Query {
	return q.chain(func(b sqlb.Builder) sqlb.Builder { return b.WhereNull(column) })
}

// WhereNotNull adds column IS NOT NULL.
func (q *Query) WhereNotNull(column string) *Query {
	return q.chain(func(b sqlb.Builder) sqlb.Builder { return b.WhereNotNull(column) })
}

// OrderBy appends a sort; direction is "asc" or "desc".
func (q *Query) OrderBy(column, direction string) *Query {
	return q.chain(func(b sqlb.Builder) sqlb.Builder { return b.OrderBy(column, direction) })
}

// Limit caps the number of rows.
func (q *Query) Limit(n int) *Query {
	return q.chain(func(b sqlb.Builder) sqlb.Builder { return b.Limit(n) })
}

// Offset skips n rows.
func (q *Query) Offset(n int) *Query {
	return q.chain(func(b sqlb.Builder) sqlb.Builder { return b.Offset(n) })
}

// First returns the first matching model. It requires a bound type; use
// Row for raw table queries.
func (q *Query) First(ctx context.Context) (*Model, error) {
	if err := q.bound(); err != nil {
		return nil, err
	}
	row, err := q.b.First(ctx)
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, q.model.notFound()
	}
	return q.model.NewFromRow(row), nil
}

// Find narrows the query to one row and loads it. A map is used as
// criteria; any other value is matched against the bound type's primary key.
func (q *Query) Find(ctx context.Context, idOrCriteria any) (*Model, error) {
	if err := q.bound(); err != nil {
		return nil, err
	}
	if criteria, ok := idOrCriteria.(map[string]any); ok {
		return q.WhereMap(criteria).First(ctx)
	}
	return q.Where(q.model.primaryKey, idOrCriteria).First(ctx)
}

// Get returns every matching model. An empty result is not an error.
func (q *Query) Get(ctx context.Context) ([]*Model, error) {
	if err := q.bound(); err != nil {
		return nil, err
	}
	rows, err := q.b.Get(ctx)
	if err != nil {
		return nil, err
	}
	models := make([]*Model, len(rows))
	for i, row := range rows {
		models[i] = q.model.NewFromRow(row)
	}
	return models, nil
}

// Row returns the first matching row unconverted, or nil.
func (q *Query) Row(ctx context.Context) (sqlb.Row, error) {
	if q.err != nil {
		return nil, q.err
	}
	return q.b.First(ctx)
}

// Rows returns every matching row unconverted.
func (q *Query) Rows(ctx context.Context) ([]sqlb.Row, error) {
	if q.err != nil {
		return nil, q.err
	}
	return q.b.Get(ctx)
}

// Count returns the number of matching rows.
func (q *Query) Count(ctx context.Context) (int64, error) {
	if q.err != nil {
		return 0, q.err
	}
	return q.b.Count(ctx)
}

// Insert passes through to the builder and returns the generated key.
func (q *Query) Insert(ctx context.Context, fields sqlb.Row, returning string) (any, error) {
	if q.err != nil {
		return nil, q.err
	}
	return q.b.Insert(ctx, fields, returning)
}

// Update writes fields to every matching row and returns the affected count.
func (q *Query) Update(ctx context.Context, fields sqlb.Row) (int64, error) {
	if q.err != nil {
		return 0, q.err
	}
	return q.b.Update(ctx, fields)
}

// Delete removes every matching row and returns the affected count.
func (q *Query) Delete(ctx context.Context) (int64, error) {
	if q.err != nil {
		return 0, q.err
	}
	return q.b.Delete(ctx)
}

func (q *Query) bound() error {
	if q.err != nil {
		return q.err
	}
	if q.model == nil {
		return apperror.Configuration("query on " + q.b.Table() + " is not bound to a model")
	}
	return nil
}
