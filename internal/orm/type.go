package orm

import (
	"context"
	"log/slog"
	"slices"
	"strings"
	"sync/atomic"
	"unicode"

	"github.com/jinzhu/inflection"
	"github.com/rs/xid"
	"golang.org/x/sync/errgroup"

	"github.com/sakif/activerecord/internal/apperror"
	"github.com/sakif/activerecord/internal/sqlb"
)

// Getter transforms a column value on read. value is nil when the column is
// absent, which lets getters back appended virtual columns.
type Getter func(m *Model, value any) any

// Setter transforms a value before it is stored in the model.
type Setter func(m *Model, value any) (any, error)

// Timestamps names the managed timestamp columns.
type Timestamps struct {
	CreatedAt string
	UpdatedAt string
	DeletedAt string
}

// Config declares a model type.
type Config struct {
	// Name identifies the type in errors and logs. Required.
	Name string
	// Table defaults to the plural snake_case form of Name.
	Table string
	// PrimaryKey defaults to "id".
	PrimaryKey string
	// NewKey, when set, generates the primary key on insert. Without it the
	// database assigns the key.
	NewKey func() any

	// Timestamps overrides the column names; empty fields keep the
	// defaults created_at, updated_at and deleted_at.
	Timestamps        Timestamps
	DisableTimestamps bool
	SoftDeletes       bool

	// Fillable lists the columns assignable through Fill. Guarded lists
	// columns that are not; nil means ["*"]. Unguarded disables both.
	Fillable  []string
	Guarded   []string
	Unguarded bool

	// Hidden columns are left out of ToMap. Append columns are added to it
	// through their getters.
	Hidden []string
	Append []string

	Getters map[string]Getter
	Setters map[string]Setter
}

// Type is a resolved model declaration. It is safe for concurrent use.
type Type struct {
	db *DB

	name        string
	table       string
	primaryKey  string
	newKey      func() any
	timestamps  Timestamps
	stamped     bool
	softDeletes bool

	fillable  []string
	guarded   []string
	guardAll  bool
	unguarded bool

	hidden  []string
	appends []string

	getters map[string]Getter
	setters map[string]Setter

	// withTrashed is consumed by the next Query call.
	withTrashed atomic.Bool
}

// Define resolves cfg into a Type bound to db.
func (db *DB) Define(cfg Config) *Type {
	if cfg.Name == "" {
		panic("orm: Define requires a Name")
	}
	t := &Type{
		db:          db,
		name:        cfg.Name,
		table:       cfg.Table,
		primaryKey:  cfg.PrimaryKey,
		newKey:      cfg.NewKey,
		timestamps:  cfg.Timestamps,
		stamped:     !cfg.DisableTimestamps,
		softDeletes: cfg.SoftDeletes,
		fillable:    slices.Clone(cfg.Fillable),
		guarded:     slices.Clone(cfg.Guarded),
		unguarded:   cfg.Unguarded,
		hidden:      slices.Clone(cfg.Hidden),
		appends:     slices.Clone(cfg.Append),
		getters:     make(map[string]Getter, len(cfg.Getters)),
		setters:     make(map[string]Setter, len(cfg.Setters)),
	}
	if t.table == "" {
		t.table = inflection.Plural(snakeCase(cfg.Name))
	}
	if t.primaryKey == "" {
		t.primaryKey = "id"
	}
	if t.timestamps.CreatedAt == "" {
		t.timestamps.CreatedAt = "created_at"
	}
	if t.timestamps.UpdatedAt == "" {
		t.timestamps.UpdatedAt = "updated_at"
	}
	if t.timestamps.DeletedAt == "" {
		t.timestamps.DeletedAt = "deleted_at"
	}
	if t.guarded == nil {
		t.guarded = []string{"*"}
	}
	t.guardAll = slices.Contains(t.guarded, "*")
	for k, fn := range cfg.Getters {
		t.getters[k] = fn
	}
	for k, fn := range cfg.Setters {
		t.setters[k] = fn
	}
	return t
}

// Name returns the type name used in errors and logs.
func (t *Type) Name() string { return t.name }

// Table returns the resolved table name.
func (t *Type) Table() string { return t.table }

// PrimaryKey returns the primary key column.
func (t *Type) PrimaryKey() string { return t.primaryKey }

// isFillable reports whether key may be set through Fill.
func (t *Type) isFillable(key string) bool {
	if t.unguarded {
		return true
	}
	if slices.Contains(t.fillable, key) {
		return true
	}
	return len(t.fillable) == 0 && !t.guardAll && !slices.Contains(t.guarded, key)
}

// totallyGuarded reports whether rejected keys are errors rather than
// silently dropped.
func (t *Type) totallyGuarded() bool {
	return !t.unguarded && len(t.fillable) == 0 && len(t.guarded) == 1 && t.guarded[0] == "*"
}

func (t *Type) isTimestamp(key string) bool {
	if !t.stamped {
		return false
	}
	return key == t.timestamps.CreatedAt || key == t.timestamps.UpdatedAt || key == t.timestamps.DeletedAt
}

// builder returns an unscoped builder on the type's table.
func (t *Type) builder() (sqlb.Builder, error) {
	conn, err := t.db.connector()
	if err != nil {
		return nil, err
	}
	return conn.Table(t.table), nil
}

// Query starts a query bound to the type. With soft deletes on, trashed rows
// are filtered out unless WithTrashed was called just before. The flag is
// reset by every call.
func (t *Type) Query() *Query {
	return t.query(t.withTrashed.Swap(false))
}

// Unscoped starts a query that includes soft-deleted rows. It touches no
// shared state and is safe for concurrent callers.
func (t *Type) Unscoped() *Query {
	return t.query(true)
}

func (t *Type) query(includeTrashed bool) *Query {
	q := (&Query{db: t.db}).SetModel(t)
	if t.softDeletes && !includeTrashed {
		q = q.WhereNull(t.timestamps.DeletedAt)
	}
	return q
}

// WithTrashed makes the next Query include soft-deleted rows. The flag lives
// on the type, so concurrent callers sharing a type can consume each other's;
// prefer Unscoped there.
func (t *Type) WithTrashed() *Type {
	t.withTrashed.Store(true)
	return t
}

// All is Query under the name callers expect for "every row".
func (t *Type) All() *Query { return t.Query() }

// First returns the first row of the default scope.
func (t *Type) First(ctx context.Context) (*Model, error) {
	return t.All().First(ctx)
}

// Where starts a query with an equality condition.
func (t *Type) Where(column string, value any) *Query {
	return t.All().Where(column, value)
}

// WhereMap starts a query with one equality condition per entry.
func (t *Type) WhereMap(criteria map[string]any) *Query {
	return t.All().WhereMap(criteria)
}

// Find loads one row. A map is used as criteria; any other value is matched
// against the primary key.
func (t *Type) Find(ctx context.Context, idOrCriteria any) (*Model, error) {
	return t.Query().Find(ctx, idOrCriteria)
}

// New builds a fresh instance and fills it from attrs.
func (t *Type) New(attrs map[string]any) (*Model, error) {
	if _, err := t.db.connector(); err != nil {
		return nil, err
	}
	m := &Model{
		t:        t,
		original: map[string]any{},
		props:    map[string]any{},
		fresh:    true,
	}
	if err := m.Fill(attrs); err != nil {
		return nil, err
	}
	return m, nil
}

// NewFromRow wraps a stored row. Guarding and setters are skipped, so the
// instance starts clean.
func (t *Type) NewFromRow(row sqlb.Row) *Model {
	original := make(map[string]any, len(row))
	for k, v := range row {
		original[k] = v
	}
	return &Model{t: t, original: original, props: cloneMap(original)}
}

// Create builds and inserts one instance.
func (t *Type) Create(ctx context.Context, attrs map[string]any) (*Model, error) {
	m, err := t.New(attrs)
	if err != nil {
		return nil, err
	}
	if err := m.Save(ctx); err != nil {
		return nil, err
	}
	return m, nil
}

// CreateMany inserts every element concurrently and returns the instances in
// input order. Any failure fails the batch; rows already inserted stay.
func (t *Type) CreateMany(ctx context.Context, batch []map[string]any) ([]*Model, error) {
	batchID := xid.New().String()
	models := make([]*Model, len(batch))

	var g errgroup.Group
	for i, attrs := range batch {
		g.Go(func() error {
			m, err := t.Create(ctx, attrs)
			if err != nil {
				return err
			}
			models[i] = m
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.db.logger.Warn("batch create failed",
			slog.String("batch", batchID),
			slog.String("model", t.name),
			slog.Int("size", len(batch)),
			slog.String("error", err.Error()),
		)
		return nil, err
	}

	t.db.logger.Info("batch created",
		slog.String("batch", batchID),
		slog.String("model", t.name),
		slog.Int("size", len(batch)),
	)
	return models, nil
}

func (t *Type) notFound() error {
	return apperror.ModelNotFound(t.name)
}

// snakeCase converts a Go type name to snake_case: "HTTPLog" -> "http_log".
func snakeCase(s string) string {
	runes := []rune(s)
	var b strings.Builder
	for i, r := range runes {
		if unicode.IsUpper(r) {
			if i > 0 {
				prev := runes[i-1]
				nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
				if unicode.IsLower(prev) || unicode.IsDigit(prev) || (unicode.IsUpper(prev) && nextLower) {
					b.WriteByte('_')
				}
			}
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
