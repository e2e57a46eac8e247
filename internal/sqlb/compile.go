package sqlb

import (
	"maps"
	"slices"
	"strconv"
	"strings"
)

// compiler accumulates bind arguments while statement fragments are written,
// so placeholders are numbered correctly for Dollar dialects.
type compiler struct {
	d    Dialect
	args []any
}

func newCompiler(d Dialect) *compiler {
	return &compiler{d: d}
}

func (c *compiler) bind(v any) string {
	c.args = append(c.args, v)
	return c.d.FormatPlaceholder(len(c.args))
}

func (c *compiler) where(conds []condition) string {
	if len(conds) == 0 {
		return ""
	}
	parts := make([]string, 0, len(conds))
	for _, cond := range conds {
		col := c.d.Quote(cond.column)
		switch cond.op {
		case "IS NULL", "IS NOT NULL":
			parts = append(parts, col+" "+cond.op)
		case "IN":
			if len(cond.values) == 0 {
				parts = append(parts, "1 = 0")
				continue
			}
			marks := make([]string, len(cond.values))
			for i, v := range cond.values {
				marks[i] = c.bind(v)
			}
			parts = append(parts, col+" IN ("+strings.Join(marks, ", ")+")")
		default:
			parts = append(parts, col+" "+cond.op+" "+c.bind(cond.value))
		}
	}
	return " WHERE " + strings.Join(parts, " AND ")
}

func (b *builder) selectSQL() (string, []any) {
	c := newCompiler(b.dialect)

	cols := "*"
	if len(b.columns) > 0 {
		quoted := make([]string, len(b.columns))
		for i, col := range b.columns {
			quoted[i] = b.dialect.Quote(col)
		}
		cols = strings.Join(quoted, ", ")
	}

	var sb strings.Builder
	sb.WriteString("SELECT " + cols + " FROM " + b.dialect.Quote(b.table))
	sb.WriteString(c.where(b.wheres))

	if len(b.orders) > 0 {
		parts := make([]string, len(b.orders))
		for i, o := range b.orders {
			dir := "ASC"
			if o.desc {
				dir = "DESC"
			}
			parts[i] = b.dialect.Quote(o.column) + " " + dir
		}
		sb.WriteString(" ORDER BY " + strings.Join(parts, ", "))
	}
	if b.limit > 0 {
		sb.WriteString(" LIMIT " + strconv.Itoa(b.limit))
	}
	if b.offset > 0 {
		sb.WriteString(" OFFSET " + strconv.Itoa(b.offset))
	}
	return sb.String(), c.args
}

func (b *builder) insertSQL(fields Row, returning string, useReturning bool) (string, []any) {
	c := newCompiler(b.dialect)
	query := "INSERT INTO " + b.dialect.Quote(b.table)

	if len(fields) == 0 {
		query += " " + b.dialect.EmptyInsert
	} else {
		keys := slices.Sorted(maps.Keys(fields))
		cols := make([]string, len(keys))
		marks := make([]string, len(keys))
		for i, k := range keys {
			cols[i] = b.dialect.Quote(k)
			marks[i] = c.bind(fields[k])
		}
		query += " (" + strings.Join(cols, ", ") + ") VALUES (" + strings.Join(marks, ", ") + ")"
	}

	if useReturning {
		query += " RETURNING " + b.dialect.Quote(returning)
	}
	return query, c.args
}

func (b *builder) updateSQL(fields Row) (string, []any) {
	c := newCompiler(b.dialect)

	keys := slices.Sorted(maps.Keys(fields))
	sets := make([]string, len(keys))
	for i, k := range keys {
		sets[i] = b.dialect.Quote(k) + " = " + c.bind(fields[k])
	}
	query := "UPDATE " + b.dialect.Quote(b.table) + " SET " + strings.Join(sets, ", ")
	return query + c.where(b.wheres), c.args
}
