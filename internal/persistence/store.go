package persistence

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
)

// DefaultKey is the storage key shared by the dashboard and the kiosk.
const DefaultKey = "inscribCordobaState"

// FieldSet selects the top level snapshot fields a client owns when saving.
type FieldSet uint8

const (
	FieldCourses FieldSet = 1 << iota
	FieldParticipants
	FieldNextCourseID
	FieldNextParticipantID
)

const (
	// DashboardFields is owned by the operator dashboard.
	DashboardFields = FieldCourses | FieldParticipants | FieldNextCourseID | FieldNextParticipantID
	// KioskFields is owned by the self-registration kiosk.
	KioskFields = FieldParticipants | FieldNextParticipantID
)

var fieldKeys = []struct {
	field FieldSet
	key   string
}{
	{FieldCourses, "courses"},
	{FieldParticipants, "participants"},
	{FieldNextCourseID, "nextCourseId"},
	{FieldNextParticipantID, "nextParticipantId"},
}

// Has reports whether every field in other is part of the set.
func (f FieldSet) Has(other FieldSet) bool {
	return f&other == other
}

func (f FieldSet) String() string {
	switch f {
	case DashboardFields:
		return "dashboard"
	case KioskFields:
		return "kiosk"
	}
	var out string
	for _, fk := range fieldKeys {
		if f.Has(fk.field) {
			if out != "" {
				out += ","
			}
			out += fk.key
		}
	}
	return out
}

// Store loads and merges the shared snapshot document held by a Backend.
//
// Save re-reads the stored document and overwrites only the fields owned by
// the caller. The read-merge-write sequence is serialized inside this process
// only; two processes saving the same field set concurrently keep the last
// write.
type Store struct {
	backend Backend
	key     string
	logger  *slog.Logger
	mu      sync.Mutex
}

// NewStore constructs a store. An empty key selects DefaultKey.
func NewStore(backend Backend, key string, logger *slog.Logger) *Store {
	if key == "" {
		key = DefaultKey
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{backend: backend, key: key, logger: logger}
}

// Key returns the storage key used by the store.
func (s *Store) Key() string { return s.key }

// Load returns the stored snapshot, or an empty one when nothing is stored.
func (s *Store) Load(ctx context.Context) (Snapshot, error) {
	data, found, err := s.backend.Read(ctx, s.key)
	if err != nil {
		return Snapshot{}, fmt.Errorf("%w: read %s: %v", ErrUnavailable, s.key, err)
	}
	if !found || len(data) == 0 {
		return EmptySnapshot(), nil
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return Snapshot{}, fmt.Errorf("%w: %v", ErrCorruptState, err)
	}
	snap.normalize()
	if orphans := snap.OrphanCourseIDs(); len(orphans) > 0 {
		s.logger.WarnContext(ctx, "participants reference unknown courses", "key", s.key, "course_ids", orphans)
	}
	return snap, nil
}

// Save merges the owned fields of snap into the stored document.
func (s *Store) Save(ctx context.Context, fields FieldSet, snap Snapshot) error {
	if fields == 0 {
		return fmt.Errorf("%w: empty field set", ErrUnavailable)
	}
	snap.normalize()

	encoded, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("persistence: encode snapshot: %w", err)
	}
	var incoming map[string]json.RawMessage
	if err := json.Unmarshal(encoded, &incoming); err != nil {
		return fmt.Errorf("persistence: encode snapshot: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current, found, err := s.backend.Read(ctx, s.key)
	if err != nil {
		return fmt.Errorf("%w: read %s: %v", ErrUnavailable, s.key, err)
	}

	merged := map[string]json.RawMessage{}
	if found && len(current) > 0 {
		if err := json.Unmarshal(current, &merged); err != nil {
			return fmt.Errorf("%w: stored document unreadable: %v", ErrUnavailable, err)
		}
		if merged == nil {
			merged = map[string]json.RawMessage{}
		}
	}
	for _, fk := range fieldKeys {
		if fields.Has(fk.field) {
			merged[fk.key] = incoming[fk.key]
		}
	}

	out, err := json.Marshal(merged)
	if err != nil {
		return fmt.Errorf("persistence: encode merged document: %w", err)
	}
	if err := s.backend.Write(ctx, s.key, out); err != nil {
		return fmt.Errorf("%w: write %s: %v", ErrUnavailable, s.key, err)
	}
	return nil
}

// Open loads a working copy owned by a client with the given field set.
func (s *Store) Open(ctx context.Context, fields FieldSet) (*Workspace, error) {
	snap, err := s.Load(ctx)
	if err != nil {
		return nil, err
	}
	return &Workspace{store: s, fields: fields, Snapshot: snap}, nil
}

// Workspace is one client's in-memory copy of the shared snapshot.
type Workspace struct {
	store  *Store
	fields FieldSet

	Snapshot Snapshot
}

// NewWorkspace wraps an existing snapshot. It is mostly useful in tests.
func NewWorkspace(store *Store, fields FieldSet, snap Snapshot) *Workspace {
	snap.normalize()
	return &Workspace{store: store, fields: fields, Snapshot: snap}
}

// Fields returns the field set the workspace persists.
func (w *Workspace) Fields() FieldSet { return w.fields }

// Save persists the owned fields of the working copy.
func (w *Workspace) Save(ctx context.Context) error {
	if w.store == nil {
		return fmt.Errorf("%w: workspace has no store", ErrUnavailable)
	}
	return w.store.Save(ctx, w.fields, w.Snapshot)
}
