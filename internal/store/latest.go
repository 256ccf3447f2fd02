package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/roach88/pagecache/internal/page"
)

// ResolveLatest returns the highest version ever stored for the logical
// document root/typeName:id. It reads the index at call time; nothing is
// cached. Returns ErrCodeNotFound if no version was stored.
func (s *Store) ResolveLatest(ctx context.Context, root, typeName, id string) (int64, error) {
	key := page.URI{Root: root, Type: typeName, ID: id}
	var version int64
	err := s.db.QueryRowContext(ctx, `
		SELECT version FROM latest_versions
		WHERE root = ? AND type = ? AND id = ?
	`, root, typeName, id).Scan(&version)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, page.NewError(page.ErrCodeNotFound, key.String(), "no stored version")
	}
	if err != nil {
		return 0, mapError("resolve latest", key.String(), err)
	}
	return version, nil
}

// advanceLatest raises the index entry for uri's document to uri.Version if
// that is higher. The index never regresses.
func advanceLatest(ctx context.Context, tx *sql.Tx, uri page.URI) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO latest_versions (root, type, id, version)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(root, type, id) DO UPDATE SET version = max(version, excluded.version)
	`, uri.Root, uri.Type, uri.ID, uri.Version)
	return err
}
