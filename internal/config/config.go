package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/roach88/archetype/internal/ir"
)

// DefaultFile is the config file looked up when none is given.
const DefaultFile = "archetype.yaml"

// Environment overrides, applied after the file.
const (
	EnvDB     = "ARCHETYPE_DB"     // storage path
	EnvDriver = "ARCHETYPE_DRIVER" // storage driver
)

// Storage drivers.
const (
	DriverSQLite = "sqlite"
	DriverBolt   = "bbolt"
)

// Config is the archetype configuration.
type Config struct {
	Storage           Storage `yaml:"storage"`
	DefaultRole       string  `yaml:"default_role"`
	LogLevel          string  `yaml:"log_level"`
	CacheSize         int     `yaml:"cache_size"`
	MigrationAttempts int     `yaml:"migration_attempts"`
}

// Storage selects the repository backend.
type Storage struct {
	Driver string `yaml:"driver"`
	Path   string `yaml:"path"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		Storage:           Storage{Driver: DriverSQLite, Path: "archetype.db"},
		DefaultRole:       string(ir.RolePublic),
		LogLevel:          "info",
		CacheSize:         128,
		MigrationAttempts: 3,
	}
}

// Load reads path over the defaults, applies environment overrides and
// validates the result. A missing file is not an error; an empty path
// means DefaultFile.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultFile
	}
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		// defaults only
	case err != nil:
		return nil, fmt.Errorf("failed to read config: %w", err)
	default:
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}

	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Save writes cfg as YAML, creating parent directories.
func Save(path string, cfg *Config) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create config dir: %w", err)
		}
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv(EnvDB); v != "" {
		c.Storage.Path = v
	}
	if v := os.Getenv(EnvDriver); v != "" {
		c.Storage.Driver = v
	}
}

// Validate checks every setting and returns the first problem.
func (c *Config) Validate() error {
	c.Storage.Driver = strings.ToLower(strings.TrimSpace(c.Storage.Driver))
	switch c.Storage.Driver {
	case DriverSQLite, DriverBolt:
	default:
		return fmt.Errorf("storage.driver must be %q or %q, got %q", DriverSQLite, DriverBolt, c.Storage.Driver)
	}
	if strings.TrimSpace(c.Storage.Path) == "" {
		return errors.New("storage.path is required")
	}
	if _, err := c.Role(); err != nil {
		return fmt.Errorf("default_role: %w", err)
	}
	if _, err := c.Level(); err != nil {
		return fmt.Errorf("log_level: %w", err)
	}
	if c.CacheSize < 1 {
		return fmt.Errorf("cache_size must be positive, got %d", c.CacheSize)
	}
	if c.MigrationAttempts < 1 {
		return fmt.Errorf("migration_attempts must be positive, got %d", c.MigrationAttempts)
	}
	return nil
}

// Role returns the default role.
func (c *Config) Role() (ir.Role, error) {
	return ir.ParseRole(strings.ToUpper(c.DefaultRole))
}

// Level returns the slog level named by LogLevel.
func (c *Config) Level() (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo, err
	}
	return l, nil
}
