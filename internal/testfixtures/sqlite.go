package testfixtures

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/inscribcordoba/attendance/internal/persistence"
	"github.com/inscribcordoba/attendance/internal/persistence/sqlite"
)

// SQLiteHarness exposes a migrated SQLite backend in a temporary directory.
type SQLiteHarness struct {
	Backend *sqlite.Backend
	Store   *persistence.Store

	cleanup func()
}

// Close releases resources associated with the harness.
func (h *SQLiteHarness) Close() {
	if h != nil && h.cleanup != nil {
		h.cleanup()
		h.cleanup = nil
	}
}

// NewSQLiteHarness opens and migrates a fresh database. Close is registered
// with tb.Cleanup.
func NewSQLiteHarness(tb testing.TB) *SQLiteHarness {
	tb.Helper()

	path := filepath.Join(tb.TempDir(), "attendance.db")
	backend, err := sqlite.Open(context.Background(), sqlite.DefaultConfig(path), nil)
	if err != nil {
		tb.Fatalf("failed to open sqlite backend: %v", err)
	}

	harness := &SQLiteHarness{
		Backend: backend,
		Store:   persistence.NewStore(backend, persistence.DefaultKey, nil),
		cleanup: func() {
			_ = backend.Close()
		},
	}
	tb.Cleanup(harness.Close)
	return harness
}
