// Package storetest provides a throwaway SQLite-backed store for tests.
package storetest

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"work-pipeline/internal/infra/store"
)

// Schema mirrors the production tables closely enough for the gateway's statements.
const Schema = `
CREATE TABLE IF NOT EXISTS works (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	work_code TEXT NOT NULL UNIQUE,
	add_up_to INTEGER NOT NULL,
	done BOOLEAN NOT NULL DEFAULT 0,
	updated_on TIMESTAMP NOT NULL,
	created_on TIMESTAMP NOT NULL
);
CREATE TABLE IF NOT EXISTS events (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	work_code TEXT NOT NULL,
	variable TEXT NOT NULL,
	value TEXT NOT NULL,
	created_on TIMESTAMP NOT NULL
);
`

// New opens a fresh SQLite file in t.TempDir with the schema applied.
func New(t testing.TB) *store.Store {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "pipeline.db") + "?_busy_timeout=5000"
	s, err := store.Open(context.Background(), string(store.DialectSQLite), dsn, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("open sqlite store: %v", err)
	}
	if _, err := s.DB().Exec(Schema); err != nil {
		t.Fatalf("apply schema: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}
