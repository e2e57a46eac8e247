package orm

import (
	"bytes"
	"context"
	"encoding/json"
	"maps"
	"reflect"
	"slices"
	"time"

	"github.com/sakif/activerecord/internal/apperror"
	"github.com/sakif/activerecord/internal/sqlb"
)

// Model is one row of a Type.
//
// A Model is not safe for concurrent mutation.
type Model struct {
	t *Type

	// original holds the last persisted values; empty while fresh.
	original map[string]any
	props    map[string]any
	fresh    bool
}

// Type returns the model's type.
func (m *Model) Type() *Type { return m.t }

// IsFresh reports whether the model has not been inserted yet.
func (m *Model) IsFresh() bool { return m.fresh }

// Fill assigns attrs through the setters, honoring the mass-assignment
// rules. On a totally guarded fresh model a rejected key is an error;
// otherwise it is skipped.
func (m *Model) Fill(attrs map[string]any) error {
	for _, key := range slices.Sorted(maps.Keys(attrs)) {
		if m.fillable(key) {
			if err := m.Set(key, attrs[key]); err != nil {
				return err
			}
			continue
		}
		if m.fresh && m.t.totallyGuarded() {
			return apperror.MassAssignment(key)
		}
	}
	return nil
}

func (m *Model) fillable(key string) bool {
	if m.fresh && key == m.t.primaryKey {
		return false
	}
	return m.t.isFillable(key)
}

// Get reads a column. Timestamp columns are coerced to time.Time, then the
// registered getter, if any, sees the value.
func (m *Model) Get(name string) any {
	v := m.props[name]
	if v != nil && m.t.isTimestamp(name) {
		v = coerceTime(v)
	}
	if getter, ok := m.t.getters[name]; ok {
		return getter(m, v)
	}
	return v
}

// Raw returns the stored value of a column without coercion or getters.
func (m *Model) Raw(name string) any { return m.props[name] }

// Set writes a column through its setter, if one is registered.
func (m *Model) Set(name string, value any) error {
	if setter, ok := m.t.setters[name]; ok {
		v, err := setter(m, value)
		if err != nil {
			return err
		}
		value = v
	}
	m.props[name] = value
	return nil
}

// Has reports whether the model carries a value slot for name.
func (m *Model) Has(name string) bool {
	_, ok := m.props[name]
	return ok
}

// Key returns the primary key value, or nil while fresh.
func (m *Model) Key() any {
	if v, ok := m.original[m.t.primaryKey]; ok {
		return v
	}
	return m.props[m.t.primaryKey]
}

// Original returns a copy of the last persisted values.
func (m *Model) Original() map[string]any { return cloneMap(m.original) }

// Props returns a copy of the current values.
func (m *Model) Props() map[string]any { return cloneMap(m.props) }

// Dirty returns the columns whose current value differs from the persisted
// one, including columns that were never persisted.
func (m *Model) Dirty() map[string]any {
	dirty := map[string]any{}
	for k, v := range m.props {
		if old, ok := m.original[k]; ok && sameValue(old, v) {
			continue
		}
		dirty[k] = v
	}
	return dirty
}

// IsDirty reports whether Save would write anything.
func (m *Model) IsDirty() bool { return len(m.Dirty()) > 0 }

// Trashed reports whether a soft-deleted model carries a deletion time.
func (m *Model) Trashed() bool {
	return m.t.softDeletes && m.props[m.t.timestamps.DeletedAt] != nil
}

// Query returns a query scoped to this row.
func (m *Model) Query() *Query {
	return m.t.Query().Where(m.t.primaryKey, m.Key())
}

// Save inserts a fresh model or updates a persisted one with its dirty
// columns.
func (m *Model) Save(ctx context.Context) error {
	if m.fresh {
		return m.insert(ctx, m.Dirty())
	}
	return m.update(ctx, m.Dirty())
}

// Update fills attrs and saves.
func (m *Model) Update(ctx context.Context, attrs map[string]any) error {
	if err := m.Fill(attrs); err != nil {
		return err
	}
	return m.Save(ctx)
}

func (m *Model) insert(ctx context.Context, fields sqlb.Row) error {
	b, err := m.t.builder()
	if err != nil {
		return err
	}
	if m.t.newKey != nil {
		if _, ok := fields[m.t.primaryKey]; !ok {
			fields[m.t.primaryKey] = m.t.newKey()
		}
	}
	if m.t.stamped {
		now := m.t.db.now()
		stamp(fields, m.t.timestamps.CreatedAt, now)
		stamp(fields, m.t.timestamps.UpdatedAt, now)
	}

	id, err := b.Insert(ctx, fields, m.t.primaryKey)
	if err != nil {
		return err
	}

	original := cloneMap(fields)
	if id != nil {
		original[m.t.primaryKey] = id
	}
	m.original = original
	m.props = cloneMap(original)
	m.fresh = false
	return nil
}

func (m *Model) update(ctx context.Context, fields sqlb.Row) error {
	if m.t.stamped {
		stamp(fields, m.t.timestamps.UpdatedAt, m.t.db.now())
	}
	if len(fields) == 0 {
		return nil
	}
	b, err := m.t.builder()
	if err != nil {
		return err
	}

	n, err := b.Where(m.t.primaryKey, m.Key()).Update(ctx, fields)
	if err != nil {
		return err
	}
	if n == 0 {
		return m.t.notFound()
	}

	for k, v := range fields {
		m.original[k] = v
		m.props[k] = v
	}
	return nil
}

// Destroy soft-deletes the row when the type uses soft deletes, otherwise it
// deletes the row.
func (m *Model) Destroy(ctx context.Context) error {
	if m.t.softDeletes {
		if err := m.requirePersisted(); err != nil {
			return err
		}
		return m.update(ctx, sqlb.Row{m.t.timestamps.DeletedAt: m.t.db.now()})
	}
	return m.ForceDelete(ctx)
}

// ForceDelete removes the row regardless of soft deletes. The model becomes
// fresh again: the primary key and managed timestamps are dropped, so a later
// Save inserts a new row with a newly assigned key.
func (m *Model) ForceDelete(ctx context.Context) error {
	if err := m.requirePersisted(); err != nil {
		return err
	}
	b, err := m.t.builder()
	if err != nil {
		return err
	}
	n, err := b.Where(m.t.primaryKey, m.Key()).Delete(ctx)
	if err != nil {
		return err
	}
	if n == 0 {
		return m.t.notFound()
	}
	delete(m.props, m.t.primaryKey)
	if m.t.stamped {
		delete(m.props, m.t.timestamps.CreatedAt)
		delete(m.props, m.t.timestamps.UpdatedAt)
		delete(m.props, m.t.timestamps.DeletedAt)
	}
	m.original = map[string]any{}
	m.fresh = true
	return nil
}

// Restore clears the deletion time of a soft-deleted model.
func (m *Model) Restore(ctx context.Context) error {
	if !m.t.softDeletes {
		return apperror.ValidationFailed(m.t.timestamps.DeletedAt, m.t.name+" does not use soft deletes")
	}
	if err := m.requirePersisted(); err != nil {
		return err
	}
	return m.update(ctx, sqlb.Row{m.t.timestamps.DeletedAt: nil})
}

func (m *Model) requirePersisted() error {
	if m.fresh {
		return apperror.ValidationFailed(m.t.primaryKey, m.t.name+" has not been persisted")
	}
	return nil
}

// ToMap serializes the model: every visible column through Get, plus the
// appended columns.
func (m *Model) ToMap() map[string]any {
	out := make(map[string]any, len(m.props)+len(m.t.appends))
	for k := range m.props {
		if slices.Contains(m.t.hidden, k) {
			continue
		}
		out[k] = m.Get(k)
	}
	for _, k := range m.t.appends {
		out[k] = m.Get(k)
	}
	return out
}

func (m *Model) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.ToMap())
}

// stamp sets key to now unless fields already carries it.
func stamp(fields sqlb.Row, key string, now time.Time) {
	if _, ok := fields[key]; !ok {
		fields[key] = now
	}
}

func cloneMap(src map[string]any) map[string]any {
	dst := make(map[string]any, len(src))
	maps.Copy(dst, src)
	return dst
}

// sameValue compares column values. Integers and floats compare by value
// across widths, since drivers scan int64 where callers set int.
func sameValue(a, b any) bool {
	switch x := a.(type) {
	case time.Time:
		y, ok := b.(time.Time)
		return ok && x.Equal(y)
	case []byte:
		y, ok := b.([]byte)
		return ok && bytes.Equal(x, y)
	}

	va, vb := reflect.ValueOf(a), reflect.ValueOf(b)
	if va.IsValid() && vb.IsValid() {
		switch {
		case isInt(va) && isInt(vb):
			return va.Int() == vb.Int()
		case isUint(va) && isUint(vb):
			return va.Uint() == vb.Uint()
		case isFloat(va) && isFloat(vb):
			return va.Float() == vb.Float()
		}
	}
	return reflect.DeepEqual(a, b)
}

func isInt(v reflect.Value) bool {
	switch v.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return true
	}
	return false
}

func isUint(v reflect.Value) bool {
	switch v.Kind() {
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return true
	}
	return false
}

func isFloat(v reflect.Value) bool {
	return v.Kind() == reflect.Float32 || v.Kind() == reflect.Float64
}
