// Package testutil provides shared helpers for tests that need a real
// SQLite database.
package testutil

import (
	"path/filepath"
	"testing"

	"github.com/Blockzilla101/sqlite-orm/internal/store"
)

// TempStore opens a SQLite database in a per-test temp directory and
// closes it on cleanup. Returns the store and its file path.
func TempStore(t *testing.T) (*store.Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	st, err := store.Open(path)
	if err != nil {
		t.Fatalf("open temp store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st, path
}

// MemoryStore opens an in-memory SQLite database, closed on cleanup.
func MemoryStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(":memory:")
	if err != nil {
		t.Fatalf("open memory store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}
