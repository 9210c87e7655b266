// Package config loads formforge settings.
//
// Values are resolved in order: built-in defaults, the YAML config file,
// then FORMFORGE_* environment variables. A .env file, if present, is
// loaded into the environment first.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the complete application configuration.
type Config struct {
	Database DatabaseConfig `yaml:"database"`
	Session  SessionConfig  `yaml:"session"`
	Redis    RedisConfig    `yaml:"redis"`
	HTTP     HTTPConfig     `yaml:"http"`
	Registry RegistryConfig `yaml:"registry"`
	Log      LogConfig      `yaml:"log"`
}

type DatabaseConfig struct {
	Driver string `yaml:"driver"` // sqlite3 | postgres
	DSN    string `yaml:"dsn"`
}

type SessionConfig struct {
	Backend string        `yaml:"backend"` // memory | file | redis
	Dir     string        `yaml:"dir"`
	TTL     time.Duration `yaml:"ttl"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
}

type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

// RegistryConfig lists extra CUE files with field and action types.
type RegistryConfig struct {
	Files []string `yaml:"files"`
}

type LogConfig struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // text | json
}

// Session backends.
const (
	SessionMemory = "memory"
	SessionFile   = "file"
	SessionRedis  = "redis"
)

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Database: DatabaseConfig{Driver: "sqlite3", DSN: "formforge.db"},
		Session:  SessionConfig{Backend: SessionFile, Dir: ".formforge/sessions", TTL: 24 * time.Hour},
		Redis:    RedisConfig{Addr: "localhost:6379", Prefix: "formforge:session"},
		HTTP:     HTTPConfig{Addr: ":8080"},
		Log:      LogConfig{Level: "info", Format: "text"},
	}
}

// Load reads the config file at path (optional when empty or missing and
// not explicitly required), applies environment overrides and validates.
func Load(path string, required bool) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist) && !required:
		case err != nil:
			return nil, fmt.Errorf("failed to read config file: %w", err)
		default:
			if err := decode(data, cfg); err != nil {
				return nil, err
			}
		}
	}

	if err := applyEnv(cfg, os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// LoadDotEnv loads .env files into the process environment without
// overriding variables that are already set. Missing files are ignored.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to load %s: %w", p, err)
		}
	}
	return nil
}

// decode parses YAML with strict field validation (catches typos like
// "databse:").
func decode(data []byte, cfg *Config) error {
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // Reject unknown fields
	if err := decoder.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("failed to parse config: %w", err)
	}
	return nil
}

// applyEnv overrides cfg from FORMFORGE_* variables.
func applyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	strs := map[string]*string{
		"FORMFORGE_DB_DRIVER":       &cfg.Database.Driver,
		"FORMFORGE_DB_DSN":          &cfg.Database.DSN,
		"FORMFORGE_SESSION_BACKEND": &cfg.Session.Backend,
		"FORMFORGE_SESSION_DIR":     &cfg.Session.Dir,
		"FORMFORGE_REDIS_ADDR":      &cfg.Redis.Addr,
		"FORMFORGE_REDIS_PASSWORD":  &cfg.Redis.Password,
		"FORMFORGE_REDIS_PREFIX":    &cfg.Redis.Prefix,
		"FORMFORGE_HTTP_ADDR":       &cfg.HTTP.Addr,
		"FORMFORGE_LOG_LEVEL":       &cfg.Log.Level,
		"FORMFORGE_LOG_FORMAT":      &cfg.Log.Format,
	}
	for name, dst := range strs {
		if v, ok := lookup(name); ok {
			*dst = v
		}
	}

	if v, ok := lookup("FORMFORGE_REDIS_DB"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("FORMFORGE_REDIS_DB: %w", err)
		}
		cfg.Redis.DB = n
	}
	if v, ok := lookup("FORMFORGE_SESSION_TTL"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("FORMFORGE_SESSION_TTL: %w", err)
		}
		cfg.Session.TTL = d
	}
	if v, ok := lookup("FORMFORGE_REGISTRY_FILES"); ok {
		cfg.Registry.Files = splitList(v)
	}
	return nil
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Validate checks enumerated values.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "sqlite3", "postgres":
	default:
		return fmt.Errorf("database.driver: unsupported %q", c.Database.Driver)
	}
	if c.Database.DSN == "" {
		return errors.New("database.dsn is required")
	}

	switch c.Session.Backend {
	case SessionMemory, SessionRedis:
	case SessionFile:
		if c.Session.Dir == "" {
			return errors.New("session.dir is required for the file backend")
		}
	default:
		return fmt.Errorf("session.backend: unsupported %q", c.Session.Backend)
	}

	if _, err := c.Log.SlogLevel(); err != nil {
		return err
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("log.format: unsupported %q", c.Log.Format)
	}
	return nil
}

// SlogLevel parses Level.
func (l LogConfig) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(l.Level)); err != nil {
		return 0, fmt.Errorf("log.level: %w", err)
	}
	return level, nil
}

// NewLogger builds the configured logger writing to w. verbose forces
// debug level.
func (l LogConfig) NewLogger(w io.Writer, verbose bool) *slog.Logger {
	level, err := l.SlogLevel()
	if err != nil {
		level = slog.LevelInfo
	}
	if verbose {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}
	if l.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
