package testfixtures

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/inscribcordoba/attendance/internal/persistence"
)

var (
	courseCounter      uint64
	participantCounter uint64
)

// ---------------------------- Course fixtures ----------------------------

// CourseOption configures the generated course fixture.
type CourseOption func(*persistence.Course)

// NewCourse returns a deterministic published course. The id and event
// number come from a package counter unless overridden.
func NewCourse(opts ...CourseOption) persistence.Course {
	idx := int(atomic.AddUint64(&courseCounter, 1))
	course := persistence.Course{
		ID:          idx,
		EventNumber: 4500 + idx,
		Name:        fmt.Sprintf("Curso %03d", idx),
		Instructors: "Docente de prueba",
		Status:      persistence.CourseStatusPublished,
		Room:        "Sala de gestión",
		Capacity:    60,
		Dates:       []persistence.Date{"2024-03-01", "2024-03-02"},
	}
	for _, opt := range opts {
		opt(&course)
	}
	return course
}

// WithCourseID overrides the course id.
func WithCourseID(id int) CourseOption {
	return func(c *persistence.Course) { c.ID = id }
}

// WithEventNumber overrides the event number.
func WithEventNumber(number int) CourseOption {
	return func(c *persistence.Course) { c.EventNumber = number }
}

// WithCourseName overrides the course name.
func WithCourseName(name string) CourseOption {
	return func(c *persistence.Course) { c.Name = name }
}

// WithDates replaces the session dates.
func WithDates(dates ...persistence.Date) CourseOption {
	return func(c *persistence.Course) { c.Dates = append([]persistence.Date(nil), dates...) }
}

// WithCapacity overrides the room capacity.
func WithCapacity(capacity int) CourseOption {
	return func(c *persistence.Course) { c.Capacity = capacity }
}

// ------------------------- Participant fixtures --------------------------

// ParticipantOption configures the generated participant fixture.
type ParticipantOption func(*persistence.Participant)

// NewParticipant returns an enrolled, absent participant for course.
func NewParticipant(course persistence.Course, opts ...ParticipantOption) persistence.Participant {
	idx := int(atomic.AddUint64(&participantCounter, 1))
	p := persistence.Participant{
		ID:             idx,
		IdentityNumber: fmt.Sprintf("27%08d4", idx),
		Name:           fmt.Sprintf("Participante %03d", idx),
		Affiliation:    "Ministerio de Educación",
		Locality:       "Córdoba",
		Phone:          "3510000000",
		Role:           "Administrativo",
		PublicEmployee: persistence.FlagYes,
		Attendance:     persistence.NewAttendance(course.Dates),
	}
	for _, opt := range opts {
		opt(&p)
	}
	return p
}

// WithParticipantID overrides the participant id.
func WithParticipantID(id int) ParticipantOption {
	return func(p *persistence.Participant) { p.ID = id }
}

// WithIdentity overrides the CUIL and name.
func WithIdentity(cuil, name string) ParticipantOption {
	return func(p *persistence.Participant) {
		p.IdentityNumber = cuil
		p.Name = name
	}
}

// PresentOn marks the participant present on the given dates.
func PresentOn(dates ...persistence.Date) ParticipantOption {
	return func(p *persistence.Participant) {
		for _, d := range dates {
			p.Attendance[d] = persistence.MarkPresent
		}
	}
}

// --------------------------- Snapshot fixtures ---------------------------

// SnapshotBuilder assembles a consistent snapshot with repaired counters.
type SnapshotBuilder struct {
	snap persistence.Snapshot
}

// NewSnapshot starts an empty snapshot.
func NewSnapshot() *SnapshotBuilder {
	return &SnapshotBuilder{snap: persistence.EmptySnapshot()}
}

// WithCourse adds course and its roster.
func (b *SnapshotBuilder) WithCourse(course persistence.Course, participants ...persistence.Participant) *SnapshotBuilder {
	b.snap.Courses = append(b.snap.Courses, course)
	b.snap.Participants[course.ID] = append(b.snap.Participants[course.ID], participants...)
	if course.ID >= b.snap.NextCourseID {
		b.snap.NextCourseID = course.ID + 1
	}
	for _, p := range participants {
		if p.ID >= b.snap.NextParticipantID {
			b.snap.NextParticipantID = p.ID + 1
		}
	}
	return b
}

// Build returns a deep copy of the assembled snapshot.
func (b *SnapshotBuilder) Build() persistence.Snapshot {
	return b.snap.Clone()
}

// SampleCourse is the single-session course used by the enrollment scenario:
// event 4521 on 2024-03-01 with one enrolled participant.
func SampleCourse() (persistence.Course, persistence.Participant) {
	course := NewCourse(
		WithCourseID(1),
		WithEventNumber(4521),
		WithCourseName("Excel avanzado"),
		WithDates("2024-03-01"),
	)
	p := NewParticipant(course, WithParticipantID(1), WithIdentity("27111111114", "Ana Gómez"))
	return course, p
}

// SampleSnapshot wraps SampleCourse in a snapshot.
func SampleSnapshot() persistence.Snapshot {
	course, p := SampleCourse()
	return NewSnapshot().WithCourse(course, p).Build()
}

// NewMemoryStore returns a store over a memory backend seeded with snap.
func NewMemoryStore(tb testing.TB, snap persistence.Snapshot) (*persistence.Store, *persistence.MemoryBackend) {
	tb.Helper()
	backend := persistence.NewMemoryBackend()
	data, err := json.Marshal(snap)
	if err != nil {
		tb.Fatalf("marshal snapshot: %v", err)
	}
	if err := backend.Write(context.Background(), persistence.DefaultKey, data); err != nil {
		tb.Fatalf("seed backend: %v", err)
	}
	return persistence.NewStore(backend, persistence.DefaultKey, nil), backend
}

// StoredBytes reads the raw document for byte-for-byte comparisons.
func StoredBytes(tb testing.TB, backend persistence.Backend) []byte {
	tb.Helper()
	data, _, err := backend.Read(context.Background(), persistence.DefaultKey)
	if err != nil {
		tb.Fatalf("read backend: %v", err)
	}
	return data
}
