package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/pagecache/internal/cache"
	"github.com/roach88/pagecache/internal/store"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pagecache.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "pagecache.db", cfg.Database.Path)
	assert.Equal(t, store.DefaultBusyTimeout, cfg.Database.BusyTimeout)
	assert.Equal(t, cache.DefaultBulkWorkers, cfg.Cache.BulkWorkers)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoadFile_OverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
database:
  path: /tmp/pages.db
  busy_timeout: 2s
  compress_threshold: -1
cache:
  op_timeout: 250ms
  bulk_workers: 3
log:
  level: debug
schemas: ./schemas
`)
	cfg, err := LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, "/tmp/pages.db", cfg.Database.Path)
	assert.Equal(t, 2*time.Second, cfg.Database.BusyTimeout)
	assert.Equal(t, -1, cfg.Database.CompressThreshold)
	assert.Equal(t, store.DefaultMaxOpenConns, cfg.Database.MaxOpenConns, "unset keys keep defaults")
	assert.Equal(t, 250*time.Millisecond, cfg.Cache.OpTimeout)
	assert.Equal(t, 3, cfg.Cache.BulkWorkers)
	assert.Equal(t, cache.DefaultMaxLineageDepth, cfg.Cache.MaxLineageDepth)
	assert.Equal(t, "./schemas", cfg.Schemas)

	level, err := ParseLevel(cfg.Log.Level)
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, level)
}

func TestLoadFile_ExpandsVariables(t *testing.T) {
	t.Setenv("PAGECACHE_TEST_DIR", "/data")
	path := writeConfig(t, `
database:
  path: ${PAGECACHE_TEST_DIR}/pages.db
schemas: ${PAGECACHE_TEST_UNSET:-/etc/pagecache/schemas}
`)
	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "/data/pages.db", cfg.Database.Path)
	assert.Equal(t, "/etc/pagecache/schemas", cfg.Schemas)
}

func TestLoadFile_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"bad yaml", "database: [", "parse config"},
		{"bad duration", "cache:\n  op_timeout: soon\n", "parse config"},
		{"zero workers", "cache:\n  bulk_workers: -1\n", "cache.bulk_workers"},
		{"empty path", "database:\n  path: \"\"\n", "database.path is required"},
		{"bad level", "log:\n  level: loud\n", "unknown level"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadFile(writeConfig(t, tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}

	_, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read config")
}

func TestLoad_FromEnvironment(t *testing.T) {
	t.Setenv(EnvVar, "")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)

	t.Setenv(EnvVar, writeConfig(t, "cache:\n  bulk_workers: 5\n"))
	cfg, err = Load()
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.Cache.BulkWorkers)
}

func TestValidate_CollectsAllErrors(t *testing.T) {
	cfg := Default()
	cfg.Database.Path = ""
	cfg.Cache.MaxLineageDepth = 0
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database.path")
	assert.Contains(t, err.Error(), "cache.max_lineage_depth")
}

func TestStoreOptions(t *testing.T) {
	cfg := Default()
	cfg.Database.CompressThreshold = 128
	opts := cfg.StoreOptions()
	assert.Equal(t, 128, opts.CompressThreshold)
	assert.Equal(t, cfg.Database.BusyTimeout, opts.BusyTimeout)
	assert.Len(t, cfg.CacheOptions(slog.Default()), 4)
}
