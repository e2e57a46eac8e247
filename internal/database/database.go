// Package database opens the SQL connection the model layer runs on and
// keeps the optional process-wide active connection.
//
// A Connection pairs a *sql.DB pool with the sqlb.Dialect of its engine and
// hands out table-scoped builders:
//
//	conn, err := database.Open(ctx, database.Config{
//		Driver:     "sqlite",
//		Connection: "data/app.db",
//	}, logger)
//	rows, err := conn.Table("snippets").WhereNull("deleted_at").Get(ctx)
//
// Supported drivers and the database/sql drivers they map to:
//
//	sqlite   -> "sqlite" (modernc.org/sqlite, pure Go)
//	postgres -> "pgx"    (github.com/jackc/pgx/v5/stdlib)
//	mysql    -> "mysql"  (github.com/go-sql-driver/mysql)
package database

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"time"

	"github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"github.com/sakif/activerecord/internal/apperror"
	"github.com/sakif/activerecord/internal/sqlb"
)

// DefaultDriver is used when Config.Driver is empty.
const DefaultDriver = "sqlite"

// PoolConfig tunes the database/sql pool. Zero values keep the
// database/sql defaults, except for sqlite (see Open).
type PoolConfig struct {
	MaxOpen     int           `koanf:"max_open"`
	MaxIdle     int           `koanf:"max_idle"`
	MaxLifetime time.Duration `koanf:"max_lifetime"`
}

// Config describes one connection.
type Config struct {
	Driver     string     `koanf:"driver"`
	Connection string     `koanf:"connection"`
	Pool       PoolConfig `koanf:"pool"`
}

type engine struct {
	driverName string
	dialect    sqlb.Dialect
}

var engines = map[string]engine{
	"sqlite":   {driverName: "sqlite", dialect: sqlb.SQLite},
	"postgres": {driverName: "pgx", dialect: sqlb.Postgres},
	"mysql":    {driverName: "mysql", dialect: sqlb.MySQL},
}

// Drivers returns the supported driver names, sorted.
func Drivers() []string {
	return slices.Sorted(maps.Keys(engines))
}

// UnknownDriverError is returned when Config.Driver names no supported engine.
type UnknownDriverError struct {
	Driver    string
	Available []string
}

func (e *UnknownDriverError) Error() string {
	return fmt.Sprintf("unknown database driver %q (available: %v)", e.Driver, e.Available)
}

// Is makes the error match apperror.ErrConfiguration.
func (e *UnknownDriverError) Is(target error) bool {
	return target == apperror.ErrConfiguration
}

// Connection is an open pool plus the dialect used to talk to it.
type Connection struct {
	DB      *sql.DB
	driver  string
	dialect sqlb.Dialect
	logger  *slog.Logger
}

// NewConnection wraps an already opened pool. Useful with sqlmock or when the
// caller manages the *sql.DB itself.
func NewConnection(db *sql.DB, d sqlb.Dialect, logger *slog.Logger) *Connection {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Connection{DB: db, driver: d.Name, dialect: d, logger: logger}
}

// Open builds and pings a connection from cfg.
//
// sqlite pools default to a single open connection: every ":memory:"
// connection is its own database, and a single writer avoids
// "database is locked" errors on files.
func Open(ctx context.Context, cfg Config, logger *slog.Logger) (*Connection, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if cfg.Connection == "" {
		return nil, apperror.MissingConnection("")
	}

	driver := cfg.Driver
	if driver == "" {
		driver = DefaultDriver
	}
	eng, ok := engines[driver]
	if !ok {
		return nil, &UnknownDriverError{Driver: driver, Available: Drivers()}
	}

	dsn := cfg.Connection
	if driver == "mysql" {
		var err error
		if dsn, err = normalizeMySQLDSN(dsn); err != nil {
			return nil, err
		}
	}

	logger.Debug("opening database", slog.String("driver", driver))

	db, err := sql.Open(eng.driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("database: opening %s: %w", driver, err)
	}

	pool := cfg.Pool
	if driver == "sqlite" && pool.MaxOpen == 0 {
		pool.MaxOpen = 1
	}
	applyPool(db, pool)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("database: pinging %s: %w", driver, err)
	}

	if driver == "sqlite" {
		for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA foreign_keys=ON"} {
			if _, err := db.ExecContext(ctx, pragma); err != nil {
				_ = db.Close()
				return nil, fmt.Errorf("database: %s: %w", pragma, err)
			}
		}
	}

	return &Connection{DB: db, driver: driver, dialect: eng.dialect, logger: logger}, nil
}

func applyPool(db *sql.DB, pool PoolConfig) {
	if pool.MaxOpen > 0 {
		db.SetMaxOpenConns(pool.MaxOpen)
	}
	if pool.MaxIdle > 0 {
		db.SetMaxIdleConns(pool.MaxIdle)
	}
	if pool.MaxLifetime > 0 {
		db.SetConnMaxLifetime(pool.MaxLifetime)
	}
}

// normalizeMySQLDSN turns on parseTime (DATETIME columns scan as time.Time)
// and clientFoundRows (UPDATE reports matched rows, not changed rows).
func normalizeMySQLDSN(dsn string) (string, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return "", apperror.Configuration(fmt.Sprintf("invalid mysql connection string: %v", err))
	}
	cfg.ParseTime = true
	cfg.ClientFoundRows = true
	return cfg.FormatDSN(), nil
}

// Table returns a builder selecting name.
func (c *Connection) Table(name string) sqlb.Builder {
	return sqlb.New(c.DB, c.dialect, name, c.logger)
}

func (c *Connection) Driver() string        { return c.driver }
func (c *Connection) Dialect() sqlb.Dialect { return c.dialect }

// Close closes the pool.
func (c *Connection) Close() error {
	if c.DB == nil {
		return nil
	}
	c.logger.Debug("closing database connection", slog.String("driver", c.driver))
	return c.DB.Close()
}
