package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/inscribcordoba/attendance/internal/identity"
	"github.com/inscribcordoba/attendance/internal/persistence"
	"github.com/inscribcordoba/attendance/internal/roster"
)

// AttendanceDeps wires an AttendanceService.
type AttendanceDeps struct {
	Lookup      identity.Lookuper
	Proposals   *ProposalCache
	IDGenerator func() string
	Now         func() time.Time
	Location    *time.Location
	Recorder    Recorder
	Logger      *slog.Logger
}

// AttendanceService records attendance for a course session. Unknown
// identity numbers are looked up and enrolled after confirmation.
type AttendanceService struct {
	lookup      identity.Lookuper
	proposals   *ProposalCache
	idGenerator func() string
	now         func() time.Time
	location    *time.Location
	recorder    Recorder
	logger      *slog.Logger

	mu       sync.Mutex
	inflight map[string]struct{}
}

// NewAttendanceService constructs the service, filling defaults for optional dependencies.
func NewAttendanceService(deps AttendanceDeps) *AttendanceService {
	if deps.Proposals == nil {
		deps.Proposals = NewProposalCache(0, 0, deps.Now)
	}
	if deps.IDGenerator == nil {
		var counter uint64
		var mu sync.Mutex
		deps.IDGenerator = func() string {
			mu.Lock()
			defer mu.Unlock()
			counter++
			return "proposal-" + strconv.FormatUint(counter, 10)
		}
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Location == nil {
		deps.Location = time.Local
	}
	return &AttendanceService{
		lookup:      deps.Lookup,
		proposals:   deps.Proposals,
		idGenerator: deps.IDGenerator,
		now:         deps.Now,
		location:    deps.Location,
		recorder:    defaultRecorder(deps.Recorder),
		logger:      defaultLogger(deps.Logger),
		inflight:    make(map[string]struct{}),
	}
}

func (s *AttendanceService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "AttendanceService", operation, attrs...)
}

// Today returns the current calendar date in the service location.
func (s *AttendanceService) Today() persistence.Date {
	return persistence.DateOf(s.now().In(s.location))
}

// Resolve classifies an attendance request without mutating state. When a
// change is needed it returns OutcomeAwaitingConfirmation and a proposal that
// Commit or ConfirmProposal applies.
func (s *AttendanceService) Resolve(ctx context.Context, ws *persistence.Workspace, req AttendanceRequest) (result AttendanceResult, err error) {
	if s == nil {
		err = fmt.Errorf("AttendanceService is nil")
		return
	}

	logger := s.loggerWith(ctx, "Resolve", "course_id", req.CourseID)
	defer func() {
		s.logResult(ctx, logger, result, err)
	}()

	if ws == nil {
		err = fmt.Errorf("workspace is nil")
		return
	}

	number, ok := roster.NormalizeIdentity(req.IdentityNumber)
	if !ok {
		err = ErrInvalidIdentity
		return
	}
	logger = logger.With("cuil", number)

	date := req.Date
	if date == "" {
		date = s.Today()
	}

	course, ok := ws.Snapshot.Course(req.CourseID)
	if !ok {
		err = ErrCourseNotFound
		return
	}
	if !course.HasDate(date) {
		err = ErrNoSessionToday
		return
	}

	proposal := Proposal{
		CourseID:       course.ID,
		CourseName:     course.Name,
		Date:           date,
		IdentityNumber: number,
		Owner:          ws.Fields(),
		CreatedAt:      s.now(),
	}

	if idx := ws.Snapshot.ParticipantIndex(course.ID, number); idx >= 0 {
		participant := ws.Snapshot.Participants[course.ID][idx]
		if participant.IsPresent(date) {
			result = AttendanceResult{Outcome: OutcomeAlreadyPresent, Participant: &participant}
			return
		}
		proposal.ID = s.idGenerator()
		proposal.Kind = ProposalMark
		proposal.ParticipantID = participant.ID
		proposal.ParticipantName = participant.Name
		s.proposals.Store(proposal)
		result = AttendanceResult{Outcome: OutcomeAwaitingConfirmation, Proposal: &proposal, Participant: &participant}
		return
	}

	if s.lookup == nil {
		err = fmt.Errorf("%w: %w", ErrLookupFailed, identity.ErrServiceUnavailable)
		return
	}

	release, acquired := s.acquire(course.ID, number)
	if !acquired {
		err = ErrLookupInProgress
		return
	}
	defer release()

	start := s.now()
	person, lookupErr := s.lookup.Lookup(ctx, number)
	s.recorder.ObserveLookup(lookupResult(lookupErr), s.now().Sub(start))
	if lookupErr != nil {
		err = fmt.Errorf("%w: %w", ErrLookupFailed, lookupErr)
		return
	}

	proposal.ID = s.idGenerator()
	proposal.Kind = ProposalEnroll
	proposal.ParticipantName = person.Name
	proposal.Person = &person
	s.proposals.Store(proposal)
	result = AttendanceResult{Outcome: OutcomeAwaitingConfirmation, Proposal: &proposal}
	return
}

// Commit applies a proposal once the attendee has answered. The workspace is
// re-checked first so a participant enrolled or marked meanwhile is not
// duplicated.
func (s *AttendanceService) Commit(ctx context.Context, ws *persistence.Workspace, proposal Proposal, confirmed bool) (result AttendanceResult, err error) {
	if s == nil {
		err = fmt.Errorf("AttendanceService is nil")
		return
	}

	logger := s.loggerWith(ctx, "Commit",
		"course_id", proposal.CourseID,
		"proposal_id", proposal.ID,
		"kind", string(proposal.Kind),
	)
	defer func() {
		s.logResult(ctx, logger, result, err)
	}()

	if !confirmed {
		result = AttendanceResult{Outcome: OutcomeCancelled, Proposal: &proposal}
		return
	}
	if ws == nil {
		err = fmt.Errorf("workspace is nil")
		return
	}

	course, ok := ws.Snapshot.Course(proposal.CourseID)
	if !ok {
		err = ErrCourseNotFound
		return
	}
	if !course.HasDate(proposal.Date) {
		err = ErrNoSessionToday
		return
	}

	var participant persistence.Participant
	idx := ws.Snapshot.ParticipantIndex(course.ID, proposal.IdentityNumber)
	switch {
	case idx >= 0:
		list := ws.Snapshot.Participants[course.ID]
		if list[idx].IsPresent(proposal.Date) {
			participant = list[idx]
			result = AttendanceResult{Outcome: OutcomeAlreadyPresent, Proposal: &proposal, Participant: &participant}
			return
		}
		ensureAttendance(&list[idx], course.Dates)
		list[idx].Attendance[proposal.Date] = persistence.MarkPresent
		participant = list[idx]
		result.Outcome = OutcomeMarked
	case proposal.Kind == ProposalEnroll && proposal.Person != nil:
		participant = s.newWalkUp(&ws.Snapshot, course, proposal)
		ws.Snapshot.Participants[course.ID] = append(ws.Snapshot.Participants[course.ID], participant)
		result.Outcome = OutcomeEnrolledAndMarked
	default:
		err = ErrParticipantNotFound
		return
	}
	result.Proposal = &proposal
	result.Participant = &participant

	if saveErr := s.save(ctx, ws); saveErr != nil {
		result.Outcome = OutcomePersistenceFailed
		err = saveErr
	}
	return
}

// ConfirmProposal commits or cancels a proposal previously returned by Resolve.
func (s *AttendanceService) ConfirmProposal(ctx context.Context, ws *persistence.Workspace, proposalID string, confirmed bool) (AttendanceResult, error) {
	proposal, ok := s.proposals.TakeOwned(proposalID, ws.Fields())
	if !ok {
		s.loggerWith(ctx, "ConfirmProposal", "proposal_id", proposalID).
			WarnContext(ctx, "proposal not found", "error_kind", ErrorKind(ErrProposalNotFound))
		return AttendanceResult{}, ErrProposalNotFound
	}
	return s.Commit(ctx, ws, proposal, confirmed)
}

// RecordAttendance runs Resolve, asks confirmer when a change is proposed and commits the answer.
func (s *AttendanceService) RecordAttendance(ctx context.Context, ws *persistence.Workspace, req AttendanceRequest, confirmer Confirmer) (AttendanceResult, error) {
	result, err := s.Resolve(ctx, ws, req)
	if err != nil || result.Outcome != OutcomeAwaitingConfirmation {
		return result, err
	}

	proposal, _ := s.proposals.Take(result.Proposal.ID)
	if proposal.ID == "" {
		proposal = *result.Proposal
	}
	confirmed := false
	if confirmer != nil {
		confirmed, err = confirmer.Confirm(ctx, proposal)
		if err != nil {
			return result, err
		}
	}
	return s.Commit(ctx, ws, proposal, confirmed)
}

// MarkPresent marks a known participant present on any session date of the course.
func (s *AttendanceService) MarkPresent(ctx context.Context, ws *persistence.Workspace, courseID, participantID int, date persistence.Date) (result AttendanceResult, err error) {
	logger := s.loggerWith(ctx, "MarkPresent",
		"course_id", courseID,
		"participant_id", participantID,
		"date", string(date),
	)
	defer func() {
		s.logResult(ctx, logger, result, err)
	}()

	if ws == nil {
		err = fmt.Errorf("workspace is nil")
		return
	}
	course, ok := ws.Snapshot.Course(courseID)
	if !ok {
		err = ErrCourseNotFound
		return
	}
	if !course.HasDate(date) {
		err = ErrNoSessionToday
		return
	}

	list := ws.Snapshot.Participants[courseID]
	for i := range list {
		if list[i].ID != participantID {
			continue
		}
		if list[i].IsPresent(date) {
			participant := list[i]
			result = AttendanceResult{Outcome: OutcomeAlreadyPresent, Participant: &participant}
			return
		}
		ensureAttendance(&list[i], course.Dates)
		list[i].Attendance[date] = persistence.MarkPresent
		participant := list[i]
		result = AttendanceResult{Outcome: OutcomeMarked, Participant: &participant}
		if saveErr := s.save(ctx, ws); saveErr != nil {
			result.Outcome = OutcomePersistenceFailed
			err = saveErr
		}
		return
	}
	err = ErrParticipantNotFound
	return
}

func (s *AttendanceService) newWalkUp(snap *persistence.Snapshot, course persistence.Course, proposal Proposal) persistence.Participant {
	person := *proposal.Person
	participant := persistence.Participant{
		ID:             snap.NextParticipantID,
		IdentityNumber: proposal.IdentityNumber,
		Name:           orNotAvailable(person.Name),
		Affiliation:    WalkUpAffiliation,
		Locality:       orNotAvailable(person.Locality),
		Phone:          orNotAvailable(person.Phone),
		Role:           NotAvailable,
		PublicEmployee: persistence.FlagNo,
		Attendance:     persistence.NewAttendance(course.Dates),
	}
	participant.Attendance[proposal.Date] = persistence.MarkPresent
	snap.NextParticipantID++
	return participant
}

func (s *AttendanceService) save(ctx context.Context, ws *persistence.Workspace) error {
	err := ws.Save(ctx)
	s.recorder.ObserveSave(ws.Fields().String(), err)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrPersistenceUnavailable, err)
	}
	return nil
}

func (s *AttendanceService) acquire(courseID int, number string) (func(), bool) {
	key := strconv.Itoa(courseID) + "|" + number
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.inflight[key]; busy {
		return nil, false
	}
	s.inflight[key] = struct{}{}
	return func() {
		s.mu.Lock()
		delete(s.inflight, key)
		s.mu.Unlock()
	}, true
}

func (s *AttendanceService) logResult(ctx context.Context, logger *slog.Logger, result AttendanceResult, err error) {
	if result.Outcome != "" {
		s.recorder.ObserveAttendance(result.Outcome)
	}
	if err != nil {
		logger.WarnContext(ctx, "attendance request failed", "error", err, "error_kind", ErrorKind(err), "outcome", string(result.Outcome))
		return
	}
	logger.InfoContext(ctx, "attendance request handled", "outcome", string(result.Outcome))
}

// ensureAttendance makes the attendance keys match the course dates exactly.
func ensureAttendance(p *persistence.Participant, dates []persistence.Date) {
	if p.Attendance == nil {
		p.Attendance = persistence.NewAttendance(dates)
		return
	}
	scheduled := make(map[persistence.Date]bool, len(dates))
	for _, d := range dates {
		scheduled[d] = true
		if _, ok := p.Attendance[d]; !ok {
			p.Attendance[d] = persistence.MarkAbsent
		}
	}
	for d := range p.Attendance {
		if !scheduled[d] {
			delete(p.Attendance, d)
		}
	}
}

func lookupResult(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, identity.ErrLookupRejected):
		return "rejected"
	default:
		return "unavailable"
	}
}

func orNotAvailable(value string) string {
	if value == "" {
		return NotAvailable
	}
	return value
}
