package sqlb

import (
	"bytes"
	"database/sql"
	"fmt"
	"strings"
)

// scanRows reads every remaining row into a map. Text values some drivers
// deliver as []byte (mysql) are converted to string; binary columns keep
// their bytes.
func scanRows(rows *sql.Rows) ([]Row, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("sqlb: reading columns: %w", err)
	}

	typeNames := make([]string, len(cols))
	if types, err := rows.ColumnTypes(); err == nil {
		for i, ct := range types {
			typeNames[i] = ct.DatabaseTypeName()
		}
	}

	out := make([]Row, 0)
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("sqlb: scanning row: %w", err)
		}

		row := make(Row, len(cols))
		for i, col := range cols {
			row[col] = normalize(values[i], typeNames[i])
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func normalize(v any, typeName string) any {
	b, ok := v.([]byte)
	if !ok {
		return v
	}
	if isBinary(typeName) {
		return bytes.Clone(b)
	}
	return string(b)
}

func isBinary(typeName string) bool {
	t := strings.ToUpper(typeName)
	return strings.Contains(t, "BLOB") || strings.Contains(t, "BINARY") || t == "BYTEA"
}
