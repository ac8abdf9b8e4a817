package db

import (
	"database/sql"
	"errors"
	"strings"

	"github.com/charmbracelet/log"
	"go.mongodb.org/mongo-driver/mongo"
)

var (
	// ErrNotFound is returned when a lookup matches nothing.
	ErrNotFound = errors.New("record not found")
	// ErrDuplicate is returned when an insert violates a unique constraint.
	ErrDuplicate = errors.New("duplicate record")
)

// dbLog returns the default logger with the store prefix, so level changes
// made after startup apply.
func dbLog() *log.Logger { return log.Default().WithPrefix("db") }

// mapError folds driver errors onto ErrNotFound and ErrDuplicate. Unique
// violations are recognised by message so this file does not need the
// driver packages: MySQL 1062, Postgres 23505, SQLite "UNIQUE constraint".
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) || errors.Is(err, mongo.ErrNoDocuments) {
		return ErrNotFound
	}
	if mongo.IsDuplicateKeyError(err) {
		return ErrDuplicate
	}
	le := strings.ToLower(err.Error())
	if strings.Contains(le, "duplicate") || strings.Contains(le, "unique") ||
		strings.Contains(le, "23505") || strings.Contains(le, "1062") {
		return ErrDuplicate
	}
	return err
}
