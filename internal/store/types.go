package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/pagecache/internal/page"
	"github.com/roach88/pagecache/internal/query"
	"github.com/roach88/pagecache/internal/schema"
)

// TableName returns the table holding pages of typeName.
func TableName(typeName string) string {
	return "pages_" + typeName
}

// EnsureType creates the table for s on first use and records its
// signature. A later call with the same signature only refreshes the stored
// invalidation rule; a different signature fails with ErrCodeSchemaConflict.
//
// Type names that differ only by case would share a table and are rejected
// as conflicts.
func (s *Store) EnsureType(ctx context.Context, sc schema.Schema) error {
	if err := sc.Check(); err != nil {
		return err
	}
	fields, err := json.Marshal(sc.SortedFields())
	if err != nil {
		return fmt.Errorf("ensure type %s: marshal fields: %w", sc.Type, err)
	}
	rule, err := page.MarshalCanonicalAttributes(sc.InvalidWhen)
	if err != nil {
		return fmt.Errorf("ensure type %s: marshal invalid_when: %w", sc.Type, err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return mapError("ensure type: begin tx", "", err)
	}
	defer tx.Rollback()

	var existing string
	err = tx.QueryRowContext(ctx, `SELECT signature FROM page_types WHERE type = ?`, sc.Type).Scan(&existing)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		_, err = tx.ExecContext(ctx, `
			INSERT INTO page_types (type, signature, fields, invalid_when, table_name)
			VALUES (?, ?, ?, ?, ?)
		`, sc.Type, sc.Signature(), string(fields), string(rule), TableName(sc.Type))
		if isKeyViolation(err) {
			return page.NewError(page.ErrCodeSchemaConflict, "",
				"type %s collides with an existing type table %s", sc.Type, TableName(sc.Type))
		}
		if err != nil {
			return mapError("ensure type: insert", "", err)
		}
	case err != nil:
		return mapError("ensure type: select", "", err)
	case existing != sc.Signature():
		return page.NewError(page.ErrCodeSchemaConflict, "",
			"type %s already stored as %s, got %s", sc.Type, existing, sc.Signature())
	default:
		if _, err := tx.ExecContext(ctx, `UPDATE page_types SET invalid_when = ? WHERE type = ?`,
			string(rule), sc.Type); err != nil {
			return mapError("ensure type: update", "", err)
		}
	}

	for _, stmt := range tableDDL(sc) {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return mapError("ensure type: create table", "", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return mapError("ensure type: commit", "", err)
	}
	return nil
}

// LoadTypes returns every stored schema ordered by type name.
func (s *Store) LoadTypes(ctx context.Context) ([]schema.Schema, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT type, fields, invalid_when
		FROM page_types
		ORDER BY type COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, mapError("load types", "", err)
	}
	defer rows.Close()

	types := []schema.Schema{}
	for rows.Next() {
		var typeName, fields, rule string
		if err := rows.Scan(&typeName, &fields, &rule); err != nil {
			return nil, mapError("load types: scan", "", err)
		}
		sc := schema.Schema{Type: typeName}
		if err := json.Unmarshal([]byte(fields), &sc.Fields); err != nil {
			return nil, corruption("", "type %s: fields: %v", typeName, err)
		}
		sc.InvalidWhen, err = page.UnmarshalCanonicalAttributes([]byte(rule))
		if err != nil {
			return nil, corruption("", "type %s: invalid_when: %v", typeName, err)
		}
		if len(sc.InvalidWhen) == 0 {
			sc.InvalidWhen = nil
		}
		types = append(types, sc)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError("load types: iterate", "", err)
	}
	return types, nil
}

// tableDDL returns the statements creating the page table for sc.
func tableDDL(sc schema.Schema) []string {
	table := TableName(sc.Type)

	var b strings.Builder
	fmt.Fprintf(&b, "CREATE TABLE IF NOT EXISTS %s (\n", query.QuoteIdent(table))
	b.WriteString("    root TEXT NOT NULL,\n")
	b.WriteString("    id TEXT NOT NULL,\n")
	b.WriteString("    version INTEGER NOT NULL CHECK (version > 0),\n")
	b.WriteString("    parent_uri TEXT,\n")
	b.WriteString("    valid INTEGER NOT NULL DEFAULT 1,\n")
	b.WriteString("    checksum BLOB NOT NULL,\n")
	for _, f := range sc.SortedFields() {
		fmt.Fprintf(&b, "    %s %s", query.QuoteIdent(f.Column()), columnType(f.Kind))
		if !f.Optional {
			b.WriteString(" NOT NULL")
		}
		b.WriteString(",\n")
	}
	b.WriteString("    PRIMARY KEY (root, id, version)\n)")

	index := fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s(parent_uri)",
		query.QuoteIdent(table+"_parent"), query.QuoteIdent(table))
	return []string{b.String(), index}
}

// columnType is the SQLite storage class for each kind.
func columnType(kind page.Kind) string {
	switch kind {
	case page.KindInt, page.KindBool, page.KindTime:
		return "INTEGER"
	case page.KindBlob:
		return "BLOB"
	default:
		return "TEXT"
	}
}
