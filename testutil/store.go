// Package testutil holds helpers shared by package tests.
package testutil

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"recipebox/db"
)

var dsnName = strings.NewReplacer("/", "_", " ", "_", "#", "_")

// NewStore opens a migrated in-memory sqlite store private to t and closes
// it when the test ends.
func NewStore(t *testing.T) db.Store {
	t.Helper()

	dsn := "file:" + dsnName.Replace(t.Name()) + "?mode=memory&cache=shared"
	s, err := db.Open(context.Background(), db.Options{Type: "sqlite", DSN: dsn})
	if err != nil {
		t.Fatalf("open test store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// NewFileStore opens a migrated sqlite store in a file under t.TempDir with
// the default connection pool, so transactions really run concurrently.
func NewFileStore(t *testing.T) db.Store {
	t.Helper()

	dsn := filepath.Join(t.TempDir(), "recipebox.db")
	s, err := db.Open(context.Background(), db.Options{Type: "sqlite", DSN: dsn})
	if err != nil {
		t.Fatalf("open file store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}
