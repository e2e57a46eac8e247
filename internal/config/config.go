// Package config loads server configuration from layered sources.
//
// Sources, lowest precedence first:
//
//  1. Built-in defaults
//  2. YAML file (optional; path given to Load)
//  3. Environment variables with the ACTIVERECORD_ prefix, where a double
//     underscore separates nesting levels:
//
//	ACTIVERECORD_SERVER__PORT=9000
//	ACTIVERECORD_DATABASE__DRIVER=postgres
//	ACTIVERECORD_DATABASE__CONNECTION=postgres://app@localhost/app
//	ACTIVERECORD_DATABASE__POOL__MAX_OPEN=20
//	ACTIVERECORD_AUTH__JWT_SECRET=$(openssl rand -hex 32)
//	ACTIVERECORD_AUTH__TOKEN_TTL=1h
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/sakif/activerecord/internal/apperror"
	"github.com/sakif/activerecord/internal/auth"
	"github.com/sakif/activerecord/internal/database"
)

// EnvPrefix marks the environment variables read by Load.
const EnvPrefix = "ACTIVERECORD_"

// Config is the full server configuration.
type Config struct {
	Server   ServerConfig    `koanf:"server"`
	Database database.Config `koanf:"database"`
	Auth     AuthConfig      `koanf:"auth"`
	// LogLevel is one of debug, info, warn, error.
	LogLevel string `koanf:"log_level"`
	// SchemaFile, when set, is executed against the database at startup.
	SchemaFile string `koanf:"schema_file"`
}

type ServerConfig struct {
	Port int `koanf:"port"`
}

// AuthConfig configures login tokens. An empty JWTSecret makes the server
// sign with a random per-process secret, so tokens die with the process.
type AuthConfig struct {
	JWTSecret string        `koanf:"jwt_secret"`
	TokenTTL  time.Duration `koanf:"token_ttl"`
}

func defaults() map[string]any {
	return map[string]any{
		"server.port":         8080,
		"database.driver":     database.DefaultDriver,
		"database.connection": "data/activerecord.db",
		"log_level":           "info",
		"auth.token_ttl":      "15m",
	}
}

// Load reads defaults, then path (skipped when empty), then the environment.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("loading defaults: %w", err)
	}

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("loading environment: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// envKey maps ACTIVERECORD_DATABASE__POOL__MAX_OPEN to database.pool.max_open.
func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	return strings.ReplaceAll(s, "__", ".")
}

// Validate checks values that would otherwise fail late.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return apperror.Configuration(fmt.Sprintf("invalid server port %d", c.Server.Port))
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	if c.Auth.JWTSecret != "" && len(c.Auth.JWTSecret) < auth.MinSecretLength {
		return apperror.Configuration(
			fmt.Sprintf("auth.jwt_secret must be at least %d characters", auth.MinSecretLength))
	}
	if c.Auth.TokenTTL <= 0 {
		return apperror.Configuration(fmt.Sprintf("invalid auth.token_ttl %s", c.Auth.TokenTTL))
	}
	return nil
}

// Level parses LogLevel.
func (c *Config) Level() (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, apperror.Configuration(fmt.Sprintf("invalid log level %q", c.LogLevel))
	}
	return lvl, nil
}

// ReadSchema returns the contents of SchemaFile, or "" when none is set.
func (c *Config) ReadSchema() (string, error) {
	if c.SchemaFile == "" {
		return "", nil
	}
	b, err := os.ReadFile(c.SchemaFile)
	if err != nil {
		return "", fmt.Errorf("reading schema file: %w", err)
	}
	return string(b), nil
}
