package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/pagecache/internal/page"
	"github.com/roach88/pagecache/internal/query"
	"github.com/roach88/pagecache/internal/schema"
)

// InsertPage writes p and advances the latest-version index in one
// transaction. It returns true when a new row was created.
//
// A page with a parent is only ever inserted: if the row already exists
// (typically because a concurrent writer won the race after both passed
// provenance checks) the call fails with ErrCodeDuplicateChild wrapping
// ErrCodeConflict. A page without a parent replaces an existing parentless
// row (last write wins, validity reset) and returns false; it may not
// replace a row that carries a parent.
func (s *Store) InsertPage(ctx context.Context, sc schema.Schema, p page.Page) (bool, error) {
	key := p.URI.String()
	if p.URI.IsLatest() {
		return false, page.NewError(page.ErrCodeFormat, key, "cannot store a page under a latest URI")
	}
	if err := p.URI.Validate(); err != nil {
		return false, err
	}
	if err := sc.Validate(p); err != nil {
		return false, err
	}
	vals, err := s.encodeRow(sc, p)
	if err != nil {
		return false, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, mapError("insert page: begin tx", key, err)
	}
	defer tx.Rollback()

	table := query.QuoteIdent(TableName(sc.Type))
	var existingParent sql.NullString
	err = tx.QueryRowContext(ctx,
		"SELECT parent_uri FROM "+table+" WHERE root = ? AND id = ? AND version = ?",
		p.URI.Root, p.URI.ID, p.URI.Version,
	).Scan(&existingParent)
	exists := err == nil
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return false, mapError("insert page: select", key, err)
	}

	switch {
	case exists && p.Parent != nil:
		return false, duplicateChild(key, page.NewError(page.ErrCodeConflict, key, "row already stored"))
	case exists && existingParent.Valid:
		return false, page.NewError(page.ErrCodeDuplicateChild, key,
			"page is already stored as a child of %s", existingParent.String)
	}

	cols := rowColumns(sc)
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = query.QuoteIdent(c)
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", ")

	if exists {
		// Parentless overwrite of a parentless row.
		_, err = tx.ExecContext(ctx,
			"REPLACE INTO "+table+" ("+strings.Join(quoted, ", ")+") VALUES ("+placeholders+")",
			vals...)
		if err != nil {
			return false, mapError("insert page: replace", key, err)
		}
	} else {
		_, err = tx.ExecContext(ctx,
			"INSERT INTO "+table+" ("+strings.Join(quoted, ", ")+") VALUES ("+placeholders+")",
			vals...)
		if isKeyViolation(err) {
			return false, duplicateChild(key, mapError("insert page", key, err))
		}
		if err != nil {
			return false, mapError("insert page: insert", key, err)
		}
	}

	if err := advanceLatest(ctx, tx, p.URI); err != nil {
		return false, mapError("insert page: advance latest", key, err)
	}

	if err := tx.Commit(); err != nil {
		return false, mapError("insert page: commit", key, err)
	}
	return !exists, nil
}

func duplicateChild(uri string, cause error) error {
	return page.WrapError(page.ErrCodeDuplicateChild, uri, "page already stored", cause)
}

// DeletePage removes one concrete row. It does not cascade to children and
// does not move the latest-version index. Returns false if nothing was
// deleted.
func (s *Store) DeletePage(ctx context.Context, sc schema.Schema, uri page.URI) (bool, error) {
	if uri.IsLatest() {
		return false, page.NewError(page.ErrCodeFormat, uri.String(), "delete needs a concrete version")
	}
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM "+query.QuoteIdent(TableName(sc.Type))+" WHERE root = ? AND id = ? AND version = ?",
		uri.Root, uri.ID, uri.Version)
	if err != nil {
		return false, mapError("delete page", uri.String(), err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete page: rows affected: %w", err)
	}
	return n > 0, nil
}

// SetValid sets the validity flag of one concrete row. Returns false if the
// row does not exist.
func (s *Store) SetValid(ctx context.Context, sc schema.Schema, uri page.URI, valid bool) (bool, error) {
	if uri.IsLatest() {
		return false, page.NewError(page.ErrCodeFormat, uri.String(), "validity change needs a concrete version")
	}
	flag := int64(0)
	if valid {
		flag = 1
	}
	res, err := s.db.ExecContext(ctx,
		"UPDATE "+query.QuoteIdent(TableName(sc.Type))+" SET valid = ? WHERE root = ? AND id = ? AND version = ?",
		flag, uri.Root, uri.ID, uri.Version)
	if err != nil {
		return false, mapError("set valid", uri.String(), err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("set valid: rows affected: %w", err)
	}
	return n > 0, nil
}

// InvalidatePrefix marks every version of one logical document invalid and
// returns the number of rows affected.
func (s *Store) InvalidatePrefix(ctx context.Context, sc schema.Schema, root, id string) (int, error) {
	res, err := s.db.ExecContext(ctx,
		"UPDATE "+query.QuoteIdent(TableName(sc.Type))+" SET valid = 0 WHERE root = ? AND id = ?",
		root, id)
	if err != nil {
		key := page.URI{Root: root, Type: sc.Type, ID: id}
		return 0, mapError("invalidate prefix", key.String(), err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("invalidate prefix: rows affected: %w", err)
	}
	return int(n), nil
}
