package cli

import (
	"context"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/roach88/pagecache/internal/cache"
	"github.com/roach88/pagecache/internal/config"
	"github.com/roach88/pagecache/internal/schema"
	"github.com/roach88/pagecache/internal/store"
)

// loadConfig loads the config file named by --config, or by
// PAGECACHE_CONFIG, and applies flag overrides.
func loadConfig(opts *RootOptions) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if opts.Config != "" {
		cfg, err = config.LoadFile(opts.Config)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, err
	}
	if opts.Database != "" {
		cfg.Database.Path = opts.Database
	}
	return cfg, nil
}

// newLogger logs to w at the configured level, or at debug with --verbose.
func newLogger(cfg *config.Config, opts *RootOptions, w io.Writer) *slog.Logger {
	level, err := config.ParseLevel(cfg.Log.Level)
	if err != nil {
		level = slog.LevelInfo
	}
	if opts.Verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// openCache opens the configured database and hydrates its type registry.
// Types persisted by earlier runs are loaded first, then the configured
// schemas directory, if any, is registered.
func openCache(ctx context.Context, opts *RootOptions, cmd *cobra.Command) (*cache.Cache, *slog.Logger, error) {
	cfg, err := loadConfig(opts)
	if err != nil {
		return nil, nil, WrapExitError(ExitCommandError, "failed to load config", err)
	}
	logger := newLogger(cfg, opts, cmd.ErrOrStderr())

	logger.Debug("opening database", "path", cfg.Database.Path)
	st, err := store.Open(cfg.Database.Path, cfg.StoreOptions())
	if err != nil {
		return nil, nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}

	reg := schema.NewRegistry(st)
	if err := reg.Load(ctx); err != nil {
		st.Close()
		return nil, nil, WrapExitError(ExitCommandError, "failed to load page types", err)
	}
	c := cache.New(st, reg, cfg.CacheOptions(logger)...)

	if cfg.Schemas != "" {
		if _, err := registerDir(ctx, c, cfg.Schemas); err != nil {
			c.Close()
			return nil, nil, WrapExitError(ExitCommandError, "failed to register schemas", err)
		}
	}
	logger.Debug("database ready", "types", len(reg.Types()))
	return c, logger, nil
}

// runWithCache opens the cache, runs fn and closes the cache.
func runWithCache(opts *RootOptions, cmd *cobra.Command, fn func(ctx context.Context, c *cache.Cache, f *OutputFormatter) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	c, logger, err := openCache(ctx, opts, cmd)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := c.Close(); closeErr != nil {
			logger.Error("error closing database", "error", closeErr)
		}
	}()
	return fn(ctx, c, newFormatter(opts, cmd))
}

// registerDir compiles the CUE declarations in dir and registers each type.
func registerDir(ctx context.Context, c *cache.Cache, dir string) ([]schema.Schema, error) {
	schemas, err := schema.LoadDir(dir)
	if err != nil {
		return nil, err
	}
	for _, sc := range schemas {
		if err := c.Register(ctx, sc); err != nil {
			return nil, err
		}
	}
	return schemas, nil
}
