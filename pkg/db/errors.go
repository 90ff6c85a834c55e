package db

import (
	"errors"
	"strings"

	pkgerrors "github.com/oneman/oneman-backend/pkg/errors"
)

// ErrVersionConflict signals that a compare-and-swap update matched no row
// because another writer bumped the version first.
var ErrVersionConflict = errors.New("row version changed concurrently")

const pgUniqueViolation = "23505"

// IsUniqueViolation reports whether err is a unique constraint violation on
// Postgres or sqlite. When constraintName is provided it must appear in the
// error text as well.
func IsUniqueViolation(err error, constraintName string) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	if constraintName != "" && !strings.Contains(msg, constraintName) {
		return false
	}
	if pkgerrors.PGCode(err) == pgUniqueViolation {
		return true
	}
	return strings.Contains(msg, "duplicate key value") || strings.Contains(msg, "UNIQUE constraint failed")
}
