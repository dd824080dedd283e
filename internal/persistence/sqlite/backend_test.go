package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/inscribcordoba/attendance/internal/persistence"
)

func openTestBackend(t *testing.T) *Backend {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "nested", "attendance.db")
	backend, err := Open(context.Background(), DefaultConfig(dsn), nil)
	if err != nil {
		t.Fatalf("Open returned error: %v", err)
	}
	t.Cleanup(func() {
		if err := backend.Close(); err != nil {
			t.Errorf("Close returned error: %v", err)
		}
	})
	return backend
}

func TestBackend_ReadWrite(t *testing.T) {
	ctx := context.Background()

	t.Run("reports missing keys as not found", func(t *testing.T) {
		backend := openTestBackend(t)

		data, found, err := backend.Read(ctx, "absent")
		if err != nil {
			t.Fatalf("Read returned error: %v", err)
		}
		if found || data != nil {
			t.Fatalf("expected no data, got found=%v data=%q", found, data)
		}
	})

	t.Run("overwrites existing values", func(t *testing.T) {
		backend := openTestBackend(t)

		if err := backend.Write(ctx, "state", []byte(`{"a":1}`)); err != nil {
			t.Fatalf("first Write returned error: %v", err)
		}
		if err := backend.Write(ctx, "state", []byte(`{"a":2}`)); err != nil {
			t.Fatalf("second Write returned error: %v", err)
		}

		data, found, err := backend.Read(ctx, "state")
		if err != nil || !found {
			t.Fatalf("Read failed: found=%v err=%v", found, err)
		}
		if string(data) != `{"a":2}` {
			t.Fatalf("unexpected stored value %q", data)
		}
	})
}

func TestMigrate_IsIdempotent(t *testing.T) {
	ctx := context.Background()
	backend := openTestBackend(t)

	if err := Migrate(ctx, backend.pool, nil); err != nil {
		t.Fatalf("second Migrate returned error: %v", err)
	}

	var count int
	if err := backend.pool.DB().QueryRowContext(ctx, `SELECT COUNT(*) FROM schema_migrations`).Scan(&count); err != nil {
		t.Fatalf("count query failed: %v", err)
	}
	if count != len(migrations) {
		t.Fatalf("expected %d applied migrations, got %d", len(migrations), count)
	}
}

func TestBackend_WithStore(t *testing.T) {
	ctx := context.Background()
	store := persistence.NewStore(openTestBackend(t), "", nil)

	snap := persistence.EmptySnapshot()
	snap.Courses = append(snap.Courses, persistence.Course{ID: 1, EventNumber: 4521, Name: "Excel", Dates: []persistence.Date{"2024-03-01"}})
	if err := store.Save(ctx, persistence.DashboardFields, snap); err != nil {
		t.Fatalf("Save returned error: %v", err)
	}

	loaded, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if len(loaded.Courses) != 1 || loaded.Courses[0].EventNumber != 4521 {
		t.Fatalf("unexpected courses %+v", loaded.Courses)
	}
	if loaded.NextCourseID != 2 {
		t.Fatalf("expected next course id 2, got %d", loaded.NextCourseID)
	}
}
