package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/mattn/go-sqlite3"

	"github.com/roach88/pagecache/internal/page"
)

// mapError translates driver and context failures into page errors.
// Deadlines and lock contention become ErrCodeTimeout; key constraint
// violations become ErrCodeConflict. Anything else is wrapped with op.
func mapError(op, uri string, err error) error {
	if err == nil {
		return nil
	}
	var pe *page.Error
	if errors.As(err, &pe) {
		return fmt.Errorf("%s: %w", op, err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return page.WrapError(page.ErrCodeTimeout, uri, op, err)
	}
	var se sqlite3.Error
	if errors.As(err, &se) {
		switch {
		case se.Code == sqlite3.ErrBusy, se.Code == sqlite3.ErrLocked:
			return page.WrapError(page.ErrCodeTimeout, uri, op, err)
		case se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey,
			se.ExtendedCode == sqlite3.ErrConstraintUnique:
			return page.WrapError(page.ErrCodeConflict, uri, op, err)
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}

// isKeyViolation reports whether err is a primary key or unique violation.
func isKeyViolation(err error) bool {
	var se sqlite3.Error
	if !errors.As(err, &se) {
		return false
	}
	return se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey ||
		se.ExtendedCode == sqlite3.ErrConstraintUnique
}

func corruption(uri string, format string, args ...any) error {
	return page.NewError(page.ErrCodeDataCorruption, uri, format, args...)
}
