package application

import (
	"context"
	"time"

	"github.com/inscribcordoba/attendance/internal/identity"
	"github.com/inscribcordoba/attendance/internal/persistence"
	"github.com/inscribcordoba/attendance/internal/roster"
)

// Outcome classifies the result of an attendance request.
type Outcome string

const (
	OutcomeMarked               Outcome = "marked"
	OutcomeEnrolledAndMarked    Outcome = "enrolled_and_marked"
	OutcomeAlreadyPresent       Outcome = "already_present"
	OutcomeAwaitingConfirmation Outcome = "awaiting_confirmation"
	OutcomeCancelled            Outcome = "cancelled"
	OutcomePersistenceFailed    Outcome = "persistence_failed"
)

// ProposalKind tells Commit which mutation a proposal asks for.
type ProposalKind string

const (
	ProposalMark   ProposalKind = "mark"
	ProposalEnroll ProposalKind = "enroll"
)

// Defaults applied to participants enrolled on the day of a session.
const (
	WalkUpAffiliation = "Inscripto en el día"
	NotAvailable      = identity.NotAvailable
)

// AttendanceRequest identifies who is asking to be marked present where.
// An empty Date means today in the service location.
type AttendanceRequest struct {
	CourseID       int
	Date           persistence.Date
	IdentityNumber string
}

// Proposal is a pending mutation awaiting a yes/no confirmation.
type Proposal struct {
	ID              string
	Kind            ProposalKind
	CourseID        int
	CourseName      string
	Date            persistence.Date
	IdentityNumber  string
	ParticipantID   int
	ParticipantName string
	Person          *identity.Person
	// Owner is the field set of the workspace that resolved the proposal.
	// Only a workspace with the same field set may answer it.
	Owner           persistence.FieldSet
	CreatedAt       time.Time
}

// AttendanceResult reports the outcome of Resolve or Commit.
type AttendanceResult struct {
	Outcome     Outcome
	Proposal    *Proposal
	Participant *persistence.Participant
}

// Confirmer is the yes/no gate between Resolve and Commit.
type Confirmer interface {
	Confirm(ctx context.Context, proposal Proposal) (bool, error)
}

// ConfirmFunc adapts a function to Confirmer.
type ConfirmFunc func(ctx context.Context, proposal Proposal) (bool, error)

func (f ConfirmFunc) Confirm(ctx context.Context, proposal Proposal) (bool, error) {
	return f(ctx, proposal)
}

// CourseSummary is one line of the course list.
type CourseSummary struct {
	ID               int
	EventNumber      int
	Name             string
	Status           string
	Room             string
	Capacity         int
	StartDate        persistence.Date
	ParticipantCount int
}

// AttendanceStatus is the display state of one participant on one date.
type AttendanceStatus string

const (
	StatusPresent AttendanceStatus = "present"
	StatusAbsent  AttendanceStatus = "absent"
	StatusPending AttendanceStatus = "pending"
)

// ParticipantRow is a participant with per-date display states.
type ParticipantRow struct {
	Participant persistence.Participant
	Statuses    map[persistence.Date]AttendanceStatus
}

// CourseDetail is the course view with an optionally filtered roster.
type CourseDetail struct {
	Course       persistence.Course
	Participants []ParticipantRow
	Enrolled     int
	Capacity     int
	KioskURL     string
}

// TextPreview is the wizard view of a pasted roster.
type TextPreview struct {
	Entries   []roster.Entry
	Malformed int
}

// NewCourseInput is the wizard commit payload.
type NewCourseInput struct {
	EventNumber int
	Name        string
	Instructors string
	RoomCode    string
	Dates       []string
	Entries     []roster.Entry
}
