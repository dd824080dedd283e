package application

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/inscribcordoba/attendance/internal/identity"
	"github.com/inscribcordoba/attendance/internal/persistence"
)

var testZone = time.FixedZone("ART", -3*60*60)

type stubLookup struct {
	mu     sync.Mutex
	person identity.Person
	err    error
	calls  int
	block  chan struct{}
}

func (s *stubLookup) Lookup(ctx context.Context, identityNumber string) (identity.Person, error) {
	s.mu.Lock()
	s.calls++
	block := s.block
	s.mu.Unlock()
	if block != nil {
		<-block
	}
	if s.err != nil {
		return identity.Person{}, s.err
	}
	return s.person, nil
}

func (s *stubLookup) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type failingBackend struct {
	inner   *persistence.MemoryBackend
	failing bool
}

func (f *failingBackend) Read(ctx context.Context, key string) ([]byte, bool, error) {
	return f.inner.Read(ctx, key)
}

func (f *failingBackend) Write(ctx context.Context, key string, data []byte) error {
	if f.failing {
		return errors.New("quota exceeded")
	}
	return f.inner.Write(ctx, key, data)
}

type recordingRecorder struct {
	mu       sync.Mutex
	outcomes []Outcome
	lookups  []string
	saves    int
	imports  []string
}

func (r *recordingRecorder) ObserveAttendance(o Outcome) {
	r.mu.Lock()
	r.outcomes = append(r.outcomes, o)
	r.mu.Unlock()
}

func (r *recordingRecorder) ObserveLookup(result string, _ time.Duration) {
	r.mu.Lock()
	r.lookups = append(r.lookups, result)
	r.mu.Unlock()
}

func (r *recordingRecorder) ObserveSave(string, error) {
	r.mu.Lock()
	r.saves++
	r.mu.Unlock()
}

func (r *recordingRecorder) ObserveImport(source string, _ error) {
	r.mu.Lock()
	r.imports = append(r.imports, source)
	r.mu.Unlock()
}

func sampleSnapshot() persistence.Snapshot {
	snap := persistence.EmptySnapshot()
	snap.Courses = []persistence.Course{{
		ID:          1,
		EventNumber: 4521,
		Name:        "Excel avanzado",
		Status:      persistence.CourseStatusPublished,
		Capacity:    16,
		Dates:       []persistence.Date{"2024-03-01"},
	}}
	snap.Participants[1] = []persistence.Participant{{
		ID:             1,
		IdentityNumber: "27111111114",
		Name:           "Ana Gómez",
		PublicEmployee: persistence.FlagYes,
		Attendance:     map[persistence.Date]persistence.Mark{"2024-03-01": persistence.MarkAbsent},
	}}
	snap.NextCourseID = 2
	snap.NextParticipantID = 2
	return snap
}

type attendanceHarness struct {
	svc      *AttendanceService
	lookup   *stubLookup
	backend  *failingBackend
	store    *persistence.Store
	recorder *recordingRecorder
	now      time.Time
}

func newAttendanceHarness(t *testing.T, today string) *attendanceHarness {
	t.Helper()
	d, err := persistence.ParseDate(today)
	if err != nil {
		t.Fatalf("bad date: %v", err)
	}
	day := d.Time()
	h := &attendanceHarness{
		lookup:   &stubLookup{person: identity.Person{Name: "Juan Pérez", IdentityNumber: "20123456789"}},
		backend:  &failingBackend{inner: persistence.NewMemoryBackend()},
		recorder: &recordingRecorder{},
		now:      time.Date(day.Year(), day.Month(), day.Day(), 10, 0, 0, 0, testZone),
	}
	data, _ := json.Marshal(sampleSnapshot())
	if err := h.backend.inner.Write(context.Background(), persistence.DefaultKey, data); err != nil {
		t.Fatalf("seed: %v", err)
	}
	h.store = persistence.NewStore(h.backend, persistence.DefaultKey, nil)
	counter := 0
	h.svc = NewAttendanceService(AttendanceDeps{
		Lookup: h.lookup,
		IDGenerator: func() string {
			counter++
			return "p-" + strconv.Itoa(counter)
		},
		Now:      func() time.Time { return h.now },
		Location: testZone,
		Recorder: h.recorder,
	})
	return h
}

func (h *attendanceHarness) open(t *testing.T, fields persistence.FieldSet) *persistence.Workspace {
	t.Helper()
	ws, err := h.store.Open(context.Background(), fields)
	if err != nil {
		t.Fatalf("Open returned error: %v", err)
	}
	return ws
}

func (h *attendanceHarness) stored(t *testing.T) []byte {
	t.Helper()
	data, _, err := h.backend.inner.Read(context.Background(), persistence.DefaultKey)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	return data
}

var confirmYes = ConfirmFunc(func(context.Context, Proposal) (bool, error) { return true, nil })
var confirmNo = ConfirmFunc(func(context.Context, Proposal) (bool, error) { return false, nil })

func TestRecordAttendanceEnrollsWalkUp(t *testing.T) {
	h := newAttendanceHarness(t, "2024-03-01")
	ws := h.open(t, persistence.KioskFields)

	result, err := h.svc.RecordAttendance(context.Background(), ws, AttendanceRequest{CourseID: 1, IdentityNumber: "20123456789"}, confirmYes)
	if err != nil {
		t.Fatalf("RecordAttendance returned error: %v", err)
	}
	if result.Outcome != OutcomeEnrolledAndMarked {
		t.Fatalf("expected EnrolledAndMarked, got %s", result.Outcome)
	}

	p := result.Participant
	if p.ID != 2 {
		t.Fatalf("expected id 2 from the counter, got %d", p.ID)
	}
	if p.Attendance["2024-03-01"] != persistence.MarkPresent {
		t.Fatalf("expected attendance marked, got %v", p.Attendance)
	}
	if p.Affiliation != WalkUpAffiliation || p.Role != NotAvailable || p.PublicEmployee != persistence.FlagNo {
		t.Fatalf("unexpected walk-up defaults %+v", p)
	}
	if p.Locality != NotAvailable || p.Phone != NotAvailable {
		t.Fatalf("expected N/A contact fields, got %+v", p)
	}

	stored, err := h.store.Load(context.Background())
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if len(stored.Participants[1]) != 2 || stored.NextParticipantID != 3 {
		t.Fatalf("expected enrollment persisted, got %d participants next=%d", len(stored.Participants[1]), stored.NextParticipantID)
	}
	if h.lookup.callCount() != 1 {
		t.Fatalf("expected one lookup, got %d", h.lookup.callCount())
	}
}

func TestRecordAttendanceNoSessionSkipsLookup(t *testing.T) {
	h := newAttendanceHarness(t, "2024-03-02")
	ws := h.open(t, persistence.KioskFields)
	before := h.stored(t)

	_, err := h.svc.RecordAttendance(context.Background(), ws, AttendanceRequest{CourseID: 1, IdentityNumber: "20123456789"}, confirmYes)
	if !errors.Is(err, ErrNoSessionToday) {
		t.Fatalf("expected ErrNoSessionToday, got %v", err)
	}
	if h.lookup.callCount() != 0 {
		t.Fatalf("lookup must not run on a day without session")
	}
	if !bytes.Equal(before, h.stored(t)) {
		t.Fatalf("state changed on a day without session")
	}
}

func TestRecordAttendanceInvalidIdentity(t *testing.T) {
	h := newAttendanceHarness(t, "2024-03-01")
	ws := h.open(t, persistence.KioskFields)

	for _, raw := range []string{"", "123", "2012345678a", "201234567890"} {
		_, err := h.svc.Resolve(context.Background(), ws, AttendanceRequest{CourseID: 1, IdentityNumber: raw})
		if !errors.Is(err, ErrInvalidIdentity) {
			t.Fatalf("%q: expected ErrInvalidIdentity, got %v", raw, err)
		}
	}
	if _, err := h.svc.Resolve(context.Background(), ws, AttendanceRequest{CourseID: 9, IdentityNumber: "20123456789"}); !errors.Is(err, ErrCourseNotFound) {
		t.Fatalf("expected ErrCourseNotFound, got %v", err)
	}
}

func TestRecordAttendanceMarksEnrolledParticipant(t *testing.T) {
	h := newAttendanceHarness(t, "2024-03-01")
	ws := h.open(t, persistence.KioskFields)

	result, err := h.svc.RecordAttendance(context.Background(), ws, AttendanceRequest{CourseID: 1, IdentityNumber: "27-11111111-4"}, confirmYes)
	if err != nil {
		t.Fatalf("RecordAttendance returned error: %v", err)
	}
	if result.Outcome != OutcomeMarked {
		t.Fatalf("expected Marked, got %s", result.Outcome)
	}
	if h.lookup.callCount() != 0 {
		t.Fatalf("enrolled participants must not be looked up")
	}

	// Marking twice is idempotent and leaves the stored document untouched.
	before := h.stored(t)
	ws = h.open(t, persistence.KioskFields)
	result, err = h.svc.RecordAttendance(context.Background(), ws, AttendanceRequest{CourseID: 1, IdentityNumber: "27111111114"}, confirmYes)
	if err != nil {
		t.Fatalf("second RecordAttendance returned error: %v", err)
	}
	if result.Outcome != OutcomeAlreadyPresent {
		t.Fatalf("expected AlreadyPresent, got %s", result.Outcome)
	}
	if !bytes.Equal(before, h.stored(t)) {
		t.Fatalf("AlreadyPresent must not write")
	}
}

func TestRecordAttendanceCancelled(t *testing.T) {
	h := newAttendanceHarness(t, "2024-03-01")
	ws := h.open(t, persistence.KioskFields)
	before := h.stored(t)

	result, err := h.svc.RecordAttendance(context.Background(), ws, AttendanceRequest{CourseID: 1, IdentityNumber: "20123456789"}, confirmNo)
	if err != nil {
		t.Fatalf("RecordAttendance returned error: %v", err)
	}
	if result.Outcome != OutcomeCancelled {
		t.Fatalf("expected Cancelled, got %s", result.Outcome)
	}
	if ws.Snapshot.NextParticipantID != 2 {
		t.Fatalf("cancelled enrollment must not allocate an id")
	}
	if !bytes.Equal(before, h.stored(t)) {
		t.Fatalf("cancelled enrollment must not write")
	}
}

func TestRecordAttendanceLookupFailureIsAtomic(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		match error
	}{
		{name: "unavailable", err: identity.ErrServiceUnavailable, match: identity.ErrServiceUnavailable},
		{name: "rejected", err: &identity.RejectedError{Code: "3", Message: "CUIL inexistente"}, match: identity.ErrLookupRejected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newAttendanceHarness(t, "2024-03-01")
			h.lookup.err = tt.err
			ws := h.open(t, persistence.KioskFields)

			_, err := h.svc.RecordAttendance(context.Background(), ws, AttendanceRequest{CourseID: 1, IdentityNumber: "20123456789"}, confirmYes)
			if !errors.Is(err, ErrLookupFailed) || !errors.Is(err, tt.match) {
				t.Fatalf("expected lookup failure wrapping %v, got %v", tt.match, err)
			}
			if len(ws.Snapshot.Participants[1]) != 1 || ws.Snapshot.NextParticipantID != 2 {
				t.Fatalf("lookup failure must not enroll")
			}
		})
	}
}

func TestCommitPersistenceFailure(t *testing.T) {
	h := newAttendanceHarness(t, "2024-03-01")
	ws := h.open(t, persistence.KioskFields)
	h.backend.failing = true

	result, err := h.svc.RecordAttendance(context.Background(), ws, AttendanceRequest{CourseID: 1, IdentityNumber: "27111111114"}, confirmYes)
	if !errors.Is(err, ErrPersistenceUnavailable) {
		t.Fatalf("expected ErrPersistenceUnavailable, got %v", err)
	}
	if result.Outcome != OutcomePersistenceFailed {
		t.Fatalf("expected PersistenceFailed, got %s", result.Outcome)
	}
	if !ws.Snapshot.Participants[1][0].IsPresent("2024-03-01") {
		t.Fatalf("in-memory mark should stand after a failed save")
	}
}

func TestCommitRechecksCurrentState(t *testing.T) {
	h := newAttendanceHarness(t, "2024-03-01")
	ws := h.open(t, persistence.KioskFields)

	first, err := h.svc.Resolve(context.Background(), ws, AttendanceRequest{CourseID: 1, IdentityNumber: "20123456789"})
	if err != nil || first.Outcome != OutcomeAwaitingConfirmation {
		t.Fatalf("unexpected resolve %v %v", first.Outcome, err)
	}
	if first.Proposal.Kind != ProposalEnroll || first.Proposal.Person == nil {
		t.Fatalf("expected enroll proposal, got %+v", first.Proposal)
	}

	if _, err := h.svc.Commit(context.Background(), ws, *first.Proposal, true); err != nil {
		t.Fatalf("Commit returned error: %v", err)
	}
	again, err := h.svc.Commit(context.Background(), ws, *first.Proposal, true)
	if err != nil {
		t.Fatalf("second Commit returned error: %v", err)
	}
	if again.Outcome != OutcomeAlreadyPresent {
		t.Fatalf("expected AlreadyPresent on replay, got %s", again.Outcome)
	}
	if len(ws.Snapshot.Participants[1]) != 2 {
		t.Fatalf("replayed proposal must not enroll twice")
	}
}

func TestConfirmProposal(t *testing.T) {
	h := newAttendanceHarness(t, "2024-03-01")
	ws := h.open(t, persistence.KioskFields)

	resolved, err := h.svc.Resolve(context.Background(), ws, AttendanceRequest{CourseID: 1, IdentityNumber: "27111111114"})
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if resolved.Proposal.Kind != ProposalMark {
		t.Fatalf("expected mark proposal, got %s", resolved.Proposal.Kind)
	}

	ws = h.open(t, persistence.KioskFields)
	result, err := h.svc.ConfirmProposal(context.Background(), ws, resolved.Proposal.ID, true)
	if err != nil {
		t.Fatalf("ConfirmProposal returned error: %v", err)
	}
	if result.Outcome != OutcomeMarked {
		t.Fatalf("expected Marked, got %s", result.Outcome)
	}
	if _, err := h.svc.ConfirmProposal(context.Background(), ws, resolved.Proposal.ID, true); !errors.Is(err, ErrProposalNotFound) {
		t.Fatalf("expected ErrProposalNotFound for a consumed proposal, got %v", err)
	}
}

func TestConfirmProposalRequiresResolvingClient(t *testing.T) {
	h := newAttendanceHarness(t, "2024-03-01")
	dashboard := h.open(t, persistence.DashboardFields)

	resolved, err := h.svc.Resolve(context.Background(), dashboard, AttendanceRequest{CourseID: 1, IdentityNumber: "27111111114"})
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if resolved.Proposal.Owner != persistence.DashboardFields {
		t.Fatalf("expected dashboard owned proposal, got %s", resolved.Proposal.Owner)
	}

	kiosk := h.open(t, persistence.KioskFields)
	if _, err := h.svc.ConfirmProposal(context.Background(), kiosk, resolved.Proposal.ID, true); !errors.Is(err, ErrProposalNotFound) {
		t.Fatalf("expected ErrProposalNotFound from the kiosk, got %v", err)
	}

	result, err := h.svc.ConfirmProposal(context.Background(), dashboard, resolved.Proposal.ID, true)
	if err != nil {
		t.Fatalf("ConfirmProposal returned error: %v", err)
	}
	if result.Outcome != OutcomeMarked {
		t.Fatalf("expected Marked, got %s", result.Outcome)
	}
}

func (h *attendanceHarness) seed(t *testing.T, snap persistence.Snapshot) {
	t.Helper()
	data, err := json.Marshal(snap)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if err := h.backend.inner.Write(context.Background(), persistence.DefaultKey, data); err != nil {
		t.Fatalf("seed: %v", err)
	}
}

func TestResolveMatchesDashedStoredIdentity(t *testing.T) {
	h := newAttendanceHarness(t, "2024-03-01")
	snap := sampleSnapshot()
	snap.Participants[1][0].IdentityNumber = "27-11111111-4"
	h.seed(t, snap)

	ws := h.open(t, persistence.KioskFields)
	resolved, err := h.svc.Resolve(context.Background(), ws, AttendanceRequest{CourseID: 1, IdentityNumber: "27111111114"})
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if resolved.Outcome != OutcomeAwaitingConfirmation || resolved.Proposal.Kind != ProposalMark {
		t.Fatalf("expected a mark proposal, got %s/%+v", resolved.Outcome, resolved.Proposal)
	}
	if h.lookup.callCount() != 0 {
		t.Fatalf("enrolled participant must not trigger a lookup")
	}

	result, err := h.svc.RecordAttendance(context.Background(), ws, AttendanceRequest{CourseID: 1, IdentityNumber: "27111111114"}, confirmYes)
	if err != nil {
		t.Fatalf("RecordAttendance returned error: %v", err)
	}
	if result.Outcome != OutcomeMarked {
		t.Fatalf("expected Marked, got %s", result.Outcome)
	}
	if got := len(ws.Snapshot.Participants[1]); got != 1 {
		t.Fatalf("expected no duplicate enrollment, got %d participants", got)
	}
	if h.lookup.callCount() != 0 {
		t.Fatalf("expected zero lookups, got %d", h.lookup.callCount())
	}
}

func TestCommitDropsAttendanceOutsideCourseDates(t *testing.T) {
	h := newAttendanceHarness(t, "2024-03-01")
	snap := sampleSnapshot()
	snap.Participants[1][0].Attendance["2024-02-01"] = persistence.MarkPresent
	h.seed(t, snap)

	ws := h.open(t, persistence.KioskFields)
	result, err := h.svc.RecordAttendance(context.Background(), ws, AttendanceRequest{CourseID: 1, IdentityNumber: "27111111114"}, confirmYes)
	if err != nil {
		t.Fatalf("RecordAttendance returned error: %v", err)
	}
	if result.Outcome != OutcomeMarked {
		t.Fatalf("expected Marked, got %s", result.Outcome)
	}
	attendance := ws.Snapshot.Participants[1][0].Attendance
	if len(attendance) != 1 || attendance["2024-03-01"] != persistence.MarkPresent {
		t.Fatalf("expected only the course date to remain, got %v", attendance)
	}
}

func TestResolveRejectsConcurrentLookup(t *testing.T) {
	h := newAttendanceHarness(t, "2024-03-01")
	h.lookup.block = make(chan struct{})
	ws := h.open(t, persistence.KioskFields)
	other := h.open(t, persistence.KioskFields)

	done := make(chan error, 1)
	go func() {
		_, err := h.svc.Resolve(context.Background(), other, AttendanceRequest{CourseID: 1, IdentityNumber: "20123456789"})
		done <- err
	}()

	deadline := time.Now().Add(2 * time.Second)
	for h.lookup.callCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("lookup never started")
		}
		time.Sleep(time.Millisecond)
	}

	_, err := h.svc.Resolve(context.Background(), ws, AttendanceRequest{CourseID: 1, IdentityNumber: "20123456789"})
	if !errors.Is(err, ErrLookupInProgress) {
		t.Fatalf("expected ErrLookupInProgress, got %v", err)
	}

	close(h.lookup.block)
	if err := <-done; err != nil {
		t.Fatalf("first Resolve returned error: %v", err)
	}
}

func TestMarkPresent(t *testing.T) {
	h := newAttendanceHarness(t, "2024-03-05")
	ws := h.open(t, persistence.DashboardFields)

	result, err := h.svc.MarkPresent(context.Background(), ws, 1, 1, "2024-03-01")
	if err != nil {
		t.Fatalf("MarkPresent returned error: %v", err)
	}
	if result.Outcome != OutcomeMarked {
		t.Fatalf("expected Marked, got %s", result.Outcome)
	}

	result, err = h.svc.MarkPresent(context.Background(), ws, 1, 1, "2024-03-01")
	if err != nil || result.Outcome != OutcomeAlreadyPresent {
		t.Fatalf("expected AlreadyPresent, got %s %v", result.Outcome, err)
	}
	if _, err := h.svc.MarkPresent(context.Background(), ws, 1, 1, "2024-03-02"); !errors.Is(err, ErrNoSessionToday) {
		t.Fatalf("expected ErrNoSessionToday, got %v", err)
	}
	if _, err := h.svc.MarkPresent(context.Background(), ws, 1, 99, "2024-03-01"); !errors.Is(err, ErrParticipantNotFound) {
		t.Fatalf("expected ErrParticipantNotFound, got %v", err)
	}
}

func TestAttendanceRecorderObservations(t *testing.T) {
	h := newAttendanceHarness(t, "2024-03-01")
	ws := h.open(t, persistence.KioskFields)

	if _, err := h.svc.RecordAttendance(context.Background(), ws, AttendanceRequest{CourseID: 1, IdentityNumber: "20123456789"}, confirmYes); err != nil {
		t.Fatalf("RecordAttendance returned error: %v", err)
	}

	h.recorder.mu.Lock()
	defer h.recorder.mu.Unlock()
	if len(h.recorder.lookups) != 1 || h.recorder.lookups[0] != "ok" {
		t.Fatalf("unexpected lookups %v", h.recorder.lookups)
	}
	last := h.recorder.outcomes[len(h.recorder.outcomes)-1]
	if last != OutcomeEnrolledAndMarked {
		t.Fatalf("unexpected last outcome %s", last)
	}
	if h.recorder.saves != 1 {
		t.Fatalf("expected one save, got %d", h.recorder.saves)
	}
}
