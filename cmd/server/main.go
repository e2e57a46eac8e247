// Command server exposes the snippet and user models over HTTP.
//
// Configuration comes from an optional YAML file (-config, or the
// ACTIVERECORD_CONFIG variable) layered under ACTIVERECORD_* environment
// variables. See internal/config for the keys.
package main

import (
	"context"
	"crypto/rand"
	"flag"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/sakif/activerecord/internal/auth"
	"github.com/sakif/activerecord/internal/config"
	"github.com/sakif/activerecord/internal/database"
	"github.com/sakif/activerecord/internal/model"
	"github.com/sakif/activerecord/internal/server"
)

func main() {
	configPath := flag.String("config", os.Getenv("ACTIVERECORD_CONFIG"), "path to a YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}

	level, _ := cfg.Level()
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))

	ctx := context.Background()

	if err := ensureDataDir(cfg.Database); err != nil {
		logger.Error("failed to create database directory", slog.String("error", err.Error()))
		os.Exit(1)
	}

	conn, err := database.CreateInstance(ctx, cfg.Database, logger)
	if err != nil {
		logger.Error("failed to open database", slog.String("error", err.Error()))
		os.Exit(1)
	}

	if err := bootstrapSchema(ctx, cfg, conn); err != nil {
		logger.Error("failed to apply schema", slog.String("error", err.Error()))
		_ = conn.Close()
		os.Exit(1)
	}

	secret := cfg.Auth.JWTSecret
	if secret == "" {
		logger.Warn("auth.jwt_secret not set, login tokens will not survive a restart")
		secret = rand.Text()
	}
	tokens, err := auth.NewTokenService(secret, cfg.Auth.TokenTTL)
	if err != nil {
		logger.Error("failed to configure tokens", slog.String("error", err.Error()))
		_ = conn.Close()
		os.Exit(1)
	}

	srv := server.New(server.Config{Port: cfg.Server.Port}, conn, tokens, logger)

	// Start blocks until SIGINT or SIGTERM.
	if err := srv.Start(); err != nil {
		logger.Error("server error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

// ensureDataDir creates the parent directory of a file-backed sqlite database.
func ensureDataDir(cfg database.Config) error {
	driver := cfg.Driver
	if driver == "" {
		driver = database.DefaultDriver
	}
	if driver != "sqlite" || cfg.Connection == "" || strings.Contains(cfg.Connection, ":memory:") {
		return nil
	}
	path := strings.TrimPrefix(cfg.Connection, "file:")
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	return os.MkdirAll(filepath.Dir(path), 0o755)
}

// bootstrapSchema runs the configured schema file. Without one, sqlite
// databases get the bundled schema; other drivers are expected to be
// migrated already.
func bootstrapSchema(ctx context.Context, cfg *config.Config, conn *database.Connection) error {
	schema, err := cfg.ReadSchema()
	if err != nil {
		return err
	}
	if schema == "" && conn.Driver() == "sqlite" {
		schema = model.SQLiteSchema
	}
	if schema == "" {
		return nil
	}
	_, err = conn.DB.ExecContext(ctx, schema)
	return err
}
