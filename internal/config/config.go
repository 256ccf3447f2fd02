// Package config loads pagecache configuration.
//
// Configuration comes from a single YAML file named by the --config flag or
// the PAGECACHE_CONFIG environment variable. Values missing from the file
// keep their defaults, and command-line flags override both.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/pagecache/internal/cache"
	"github.com/roach88/pagecache/internal/store"
)

// EnvVar names the environment variable holding the config file path.
const EnvVar = "PAGECACHE_CONFIG"

// Config is the complete pagecache configuration.
type Config struct {
	Database DatabaseConfig `yaml:"database"`
	Cache    CacheConfig    `yaml:"cache"`
	Log      LogConfig      `yaml:"log"`

	// Schemas is a directory of CUE type declarations registered whenever
	// the cache is opened. Empty disables it.
	Schemas string `yaml:"schemas"`
}

// DatabaseConfig configures the SQLite backing store.
type DatabaseConfig struct {
	// Path is the database file. ${HOME} and ${VAR:-default} are expanded.
	Path string `yaml:"path"`

	// MaxOpenConns bounds the connection pool.
	MaxOpenConns int `yaml:"max_open_conns"`

	// BusyTimeout is how long a writer waits for the database lock.
	BusyTimeout time.Duration `yaml:"busy_timeout"`

	// CompressThreshold is the blob size above which blobs are stored
	// zstd-compressed. Negative disables compression.
	CompressThreshold int `yaml:"compress_threshold"`
}

// CacheConfig configures cache operations.
type CacheConfig struct {
	OpTimeout       time.Duration `yaml:"op_timeout"`
	BulkWorkers     int           `yaml:"bulk_workers"`
	MaxLineageDepth int           `yaml:"max_lineage_depth"`
}

// LogConfig configures logging.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Database: DatabaseConfig{
			Path:              "pagecache.db",
			MaxOpenConns:      store.DefaultMaxOpenConns,
			BusyTimeout:       store.DefaultBusyTimeout,
			CompressThreshold: store.DefaultCompressThreshold,
		},
		Cache: CacheConfig{
			OpTimeout:       cache.DefaultOpTimeout,
			BulkWorkers:     cache.DefaultBulkWorkers,
			MaxLineageDepth: cache.DefaultMaxLineageDepth,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load loads the file named by PAGECACHE_CONFIG, or returns the defaults
// when the variable is unset.
func Load() (*Config, error) {
	path := os.Getenv(EnvVar)
	if path == "" {
		return Default(), nil
	}
	return LoadFile(path)
}

// LoadFile loads configuration from path over the defaults.
func LoadFile(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.expandVariables()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) expandVariables() {
	c.Database.Path = expandVars(c.Database.Path)
	c.Schemas = expandVars(c.Schemas)
}

var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

// expandVars expands ${VAR} and ${VAR:-default} from the environment.
func expandVars(s string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if value := os.Getenv(parts[1]); value != "" {
			return value
		}
		return parts[2]
	})
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error
	if c.Database.Path == "" {
		errs = append(errs, errors.New("database.path is required"))
	}
	if c.Database.MaxOpenConns < 1 {
		errs = append(errs, fmt.Errorf("database.max_open_conns must be positive, got %d", c.Database.MaxOpenConns))
	}
	if c.Database.BusyTimeout < 0 {
		errs = append(errs, fmt.Errorf("database.busy_timeout must not be negative, got %s", c.Database.BusyTimeout))
	}
	if c.Cache.BulkWorkers < 1 {
		errs = append(errs, fmt.Errorf("cache.bulk_workers must be positive, got %d", c.Cache.BulkWorkers))
	}
	if c.Cache.MaxLineageDepth < 1 {
		errs = append(errs, fmt.Errorf("cache.max_lineage_depth must be positive, got %d", c.Cache.MaxLineageDepth))
	}
	if _, err := ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// ParseLevel converts a level name to a slog level.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("log.level: unknown level %q", s)
	}
}

// StoreOptions returns the backing store options.
func (c *Config) StoreOptions() store.Options {
	return store.Options{
		MaxOpenConns:      c.Database.MaxOpenConns,
		BusyTimeout:       c.Database.BusyTimeout,
		CompressThreshold: c.Database.CompressThreshold,
	}
}

// CacheOptions returns the cache options, logging to logger.
func (c *Config) CacheOptions(logger *slog.Logger) []cache.Option {
	return []cache.Option{
		cache.WithOpTimeout(c.Cache.OpTimeout),
		cache.WithBulkWorkers(c.Cache.BulkWorkers),
		cache.WithMaxLineageDepth(c.Cache.MaxLineageDepth),
		cache.WithLogger(logger),
	}
}
