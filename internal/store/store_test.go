package store

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpen_CreatesNewDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	s, err := Open(path, Options{})
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer s.Close()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Error("database file was not created")
	}
}

func TestOpen_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	for i := 0; i < 3; i++ {
		s, err := Open(path, Options{})
		if err != nil {
			t.Fatalf("Open() iteration %d failed: %v", i, err)
		}
		s.Close()
	}

	s, err := Open(path, Options{})
	require.NoError(t, err)
	defer s.Close()

	for _, table := range []string{"page_types", "latest_versions"} {
		var name string
		err := s.db.QueryRow(
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?",
			table,
		).Scan(&name)
		assert.NoError(t, err, "table %q not found after idempotent opens", table)
	}
}

func TestOpen_Pragmas(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	assert.NoError(t, s.verifyPragma(ctx, "journal_mode", "wal"))
	assert.NoError(t, s.verifyPragma(ctx, "foreign_keys", "1"))
	assert.NoError(t, s.verifyPragma(ctx, "synchronous", "1"))
	assert.NoError(t, s.verifyPragma(ctx, "busy_timeout", "5000"))
}

func TestOpen_SetsUserVersion(t *testing.T) {
	s := createTestStore(t)

	var version int
	require.NoError(t, s.db.QueryRow("PRAGMA user_version").Scan(&version))
	assert.Equal(t, currentSchemaVersion, version)

	has, err := hasColumn(s.db, "page_types", "invalid_when")
	require.NoError(t, err)
	assert.True(t, has)
}

func TestOpen_MigratesVersionZeroDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path, Options{})
	require.NoError(t, err)

	// Rebuild page_types as it looked before v1.
	_, err = s.db.Exec(`
		DROP TABLE page_types;
		CREATE TABLE page_types (
			type TEXT PRIMARY KEY,
			signature TEXT NOT NULL,
			fields TEXT NOT NULL,
			table_name TEXT NOT NULL UNIQUE COLLATE NOCASE
		) WITHOUT ROWID;
		PRAGMA user_version = 0;
	`)
	require.NoError(t, err)
	s.Close()

	s, err = Open(path, Options{})
	require.NoError(t, err)
	defer s.Close()

	has, err := hasColumn(s.db, "page_types", "invalid_when")
	require.NoError(t, err)
	assert.True(t, has)
}

func TestDSN(t *testing.T) {
	got := dsn("/tmp/x.db", Options{BusyTimeout: 250 * time.Millisecond})
	assert.True(t, strings.HasPrefix(got, "/tmp/x.db?"))
	for _, want := range []string{
		"_busy_timeout=250",
		"_foreign_keys=on",
		"_journal_mode=WAL",
		"_synchronous=NORMAL",
		"_txlock=immediate",
	} {
		assert.Contains(t, got, want)
	}
}

func TestOptionsDefaults(t *testing.T) {
	o := Options{}.withDefaults()
	assert.Equal(t, DefaultMaxOpenConns, o.MaxOpenConns)
	assert.Equal(t, DefaultBusyTimeout, o.BusyTimeout)
	assert.Equal(t, DefaultCompressThreshold, o.CompressThreshold)

	o = Options{CompressThreshold: -1}.withDefaults()
	assert.Equal(t, -1, o.CompressThreshold)
}

func TestClose_NilDB(t *testing.T) {
	var s Store
	assert.NoError(t, s.Close())
}
