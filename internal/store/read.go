package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/roach88/pagecache/internal/page"
	"github.com/roach88/pagecache/internal/query"
	"github.com/roach88/pagecache/internal/schema"
)

// ReadPage returns the row stored under a concrete URI regardless of its
// validity flag. Returns ErrCodeNotFound if the row does not exist and
// ErrCodeDataCorruption if it fails to decode or verify.
func (s *Store) ReadPage(ctx context.Context, sc schema.Schema, uri page.URI) (page.Page, error) {
	if uri.IsLatest() {
		return page.Page{}, page.NewError(page.ErrCodeFormat, uri.String(), "read needs a concrete version")
	}
	cols := rowColumns(sc)
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = query.QuoteIdent(c)
	}
	row := s.db.QueryRowContext(ctx,
		"SELECT "+strings.Join(quoted, ", ")+" FROM "+query.QuoteIdent(TableName(sc.Type))+
			" WHERE root = ? AND id = ? AND version = ?",
		uri.Root, uri.ID, uri.Version)

	p, err := scanPage(row, sc)
	if errors.Is(err, sql.ErrNoRows) {
		return page.Page{}, page.NewError(page.ErrCodeNotFound, uri.String(), "page not stored")
	}
	if err != nil {
		return page.Page{}, mapError("read page", uri.String(), err)
	}
	return p, nil
}

// HasPage reports whether a row exists under a concrete URI, valid or not.
func (s *Store) HasPage(ctx context.Context, sc schema.Schema, uri page.URI) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		"SELECT 1 FROM "+query.QuoteIdent(TableName(sc.Type))+" WHERE root = ? AND id = ? AND version = ?",
		uri.Root, uri.ID, uri.Version).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, mapError("has page", uri.String(), err)
	}
	return true, nil
}

// FindPages returns the valid pages of sc's type matching pred, ordered by
// root, id and version. A nil predicate matches every page.
//
// Returns an empty slice (not nil) when nothing matches.
func (s *Store) FindPages(ctx context.Context, sc schema.Schema, pred query.Predicate) ([]page.Page, error) {
	stmt, err := query.NewSQLCompiler(sc).Compile(query.Select{
		Table:     TableName(sc.Type),
		Columns:   rowColumns(sc),
		Filter:    pred,
		ValidOnly: true,
	})
	if err != nil {
		return nil, err
	}
	return s.queryPages(ctx, sc, stmt)
}

// ReadChildren returns the valid pages of the given types whose parent is
// exactly parent. Results are grouped by type in the order of schemas.
func (s *Store) ReadChildren(ctx context.Context, schemas []schema.Schema, parent page.URI) ([]page.Page, error) {
	children := []page.Page{}
	for _, sc := range schemas {
		if sc.Type == parent.Type {
			continue
		}
		stmt, err := query.NewSQLCompiler(sc).Compile(query.Select{
			Table:     TableName(sc.Type),
			Columns:   rowColumns(sc),
			Filter:    query.Eq("parent", page.Ref(parent)),
			ValidOnly: true,
		})
		if err != nil {
			return nil, err
		}
		pages, err := s.queryPages(ctx, sc, stmt)
		if err != nil {
			return nil, err
		}
		children = append(children, pages...)
	}
	return children, nil
}

func (s *Store) queryPages(ctx context.Context, sc schema.Schema, stmt *query.Statement) ([]page.Page, error) {
	rows, err := s.db.QueryContext(ctx, stmt.SQL, stmt.Args...)
	if err != nil {
		return nil, mapError("query "+sc.Type, "", err)
	}
	defer rows.Close()

	pages := []page.Page{}
	for rows.Next() {
		p, err := scanPage(rows, sc)
		if err != nil {
			return nil, mapError("scan "+sc.Type, "", err)
		}
		if stmt.Accepts(p) {
			pages = append(pages, p)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, mapError("iterate "+sc.Type, "", err)
	}
	return pages, nil
}
