// Package orm is an active-record layer over the sqlb query builder.
//
// A model type is declared once with Define and then used for both
// type-level queries and per-row instances:
//
//	var Snippet = orm.Define(orm.Config{
//		Name:        "Snippet",
//		SoftDeletes: true,
//		Fillable:    []string{"name", "code"},
//		Hidden:      []string{"owner_token"},
//	})
//
//	s, err := Snippet.Create(ctx, map[string]any{"name": "hello", "code": "print(1)"})
//	s.Set("name", "renamed")
//	err = s.Save(ctx) // UPDATE "snippets" SET "name" = ?, "updated_at" = ? WHERE "id" = ?
//
// Every instance keeps the last persisted column values ("original") next to
// the current ones ("props"). Save writes only the columns that differ.
//
// With soft deletes on, type-level queries skip trashed rows. Unscoped
// returns a query that includes them; WithTrashed does the same for the
// next Query call only.
//
// Connections are injected through New. A DB created without a connector
// falls back to the process-wide database.Instance at the moment a model is
// constructed or queried.
package orm

import (
	"log/slog"
	"time"

	"github.com/sakif/activerecord/internal/apperror"
	"github.com/sakif/activerecord/internal/database"
	"github.com/sakif/activerecord/internal/sqlb"
)

// Connector hands out table-scoped builders. *database.Connection
// implements it.
type Connector interface {
	Table(name string) sqlb.Builder
}

// DB ties model types to a connection, a logger and a clock.
type DB struct {
	conn   Connector
	logger *slog.Logger
	now    func() time.Time
}

// Option configures a DB.
type Option func(*DB)

// WithLogger sets the logger used for model-level events.
func WithLogger(logger *slog.Logger) Option {
	return func(db *DB) {
		if logger != nil {
			db.logger = logger
		}
	}
}

// WithClock replaces time.Now for timestamp stamping.
func WithClock(now func() time.Time) Option {
	return func(db *DB) {
		if now != nil {
			db.now = now
		}
	}
}

// New returns a DB on conn. A nil conn resolves database.Instance lazily.
func New(conn Connector, opts ...Option) *DB {
	db := &DB{
		conn:   conn,
		logger: slog.New(slog.DiscardHandler),
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(db)
	}
	return db
}

// Default is the DB used by the package-level Define. It always resolves the
// process-wide connection.
var Default = New(nil)

// Define declares a model type on Default.
func Define(cfg Config) *Type {
	return Default.Define(cfg)
}

func (db *DB) connector() (Connector, error) {
	if db.conn != nil {
		return db.conn, nil
	}
	// A nil *Connection stored in the interface would not compare equal to nil.
	if inst := database.Instance(); inst != nil {
		return inst, nil
	}
	return nil, apperror.MissingConnection("")
}

// Table starts a raw query on name. Results are not converted to models.
func (db *DB) Table(name string) *Query {
	conn, err := db.connector()
	if err != nil {
		return &Query{db: db, err: err}
	}
	return &Query{db: db, b: conn.Table(name)}
}
