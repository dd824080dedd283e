package persistence

import (
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode"
)

const dateLayout = "2006-01-02"

// Date is a calendar day rendered as YYYY-MM-DD.
type Date string

// ParseDate validates value as a YYYY-MM-DD calendar date.
func ParseDate(value string) (Date, error) {
	value = strings.TrimSpace(value)
	t, err := time.Parse(dateLayout, value)
	if err != nil {
		return "", fmt.Errorf("invalid date %q: %w", value, err)
	}
	return Date(t.Format(dateLayout)), nil
}

// DateOf returns the calendar day of t in t's location.
func DateOf(t time.Time) Date {
	return Date(t.Format(dateLayout))
}

// Time returns midnight UTC of the date. The zero time is returned for invalid dates.
func (d Date) Time() time.Time {
	t, err := time.Parse(dateLayout, string(d))
	if err != nil {
		return time.Time{}
	}
	return t
}

// Valid reports whether the date is a well formed calendar day.
func (d Date) Valid() bool {
	_, err := time.Parse(dateLayout, string(d))
	return err == nil
}

func (d Date) String() string { return string(d) }

// Mark is the attendance value stored for one session date.
type Mark int

const (
	MarkAbsent  Mark = 0
	MarkPresent Mark = 1
)

// Flag is the S/N public employee marker kept in stored documents.
type Flag string

const (
	FlagYes Flag = "S"
	FlagNo  Flag = "N"
)

// CourseStatusPublished is the lifecycle status assigned to imported courses.
const CourseStatusPublished = "Publicado"

// Course is a scheduled training course with a fixed set of session dates.
type Course struct {
	ID          int    `json:"id"`
	EventNumber int    `json:"nroEvento"`
	Name        string `json:"name"`
	Instructors string `json:"docentes"`
	Status      string `json:"status"`
	Room        string `json:"sala"`
	Capacity    int    `json:"capacidad"`
	Dates       []Date `json:"dates"`
}

// HasDate reports whether date is one of the course sessions.
func (c Course) HasDate(date Date) bool {
	for _, d := range c.Dates {
		if d == date {
			return true
		}
	}
	return false
}

// Participant is an enrolled person and their attendance record for one course.
type Participant struct {
	ID             int           `json:"id"`
	IdentityNumber string        `json:"cuil"`
	Name           string        `json:"name"`
	Affiliation    string        `json:"reparticion"`
	Locality       string        `json:"localidad"`
	Phone          string        `json:"telefono"`
	Role           string        `json:"cargo"`
	PublicEmployee Flag          `json:"esEmpleadoPublico"`
	Attendance     map[Date]Mark `json:"attendance"`
	Note           string        `json:"nota"`
}

// IsPresent reports whether the participant is marked present on date.
func (p Participant) IsPresent(date Date) bool {
	return p.Attendance[date] == MarkPresent
}

// NewAttendance returns an attendance map with every date set to absent.
func NewAttendance(dates []Date) map[Date]Mark {
	attendance := make(map[Date]Mark, len(dates))
	for _, d := range dates {
		attendance[d] = MarkAbsent
	}
	return attendance
}

// Snapshot is the whole persisted state shared by the dashboard and the kiosk.
type Snapshot struct {
	Courses           []Course              `json:"courses"`
	Participants      map[int][]Participant `json:"participants"`
	NextCourseID      int                   `json:"nextCourseId"`
	NextParticipantID int                   `json:"nextParticipantId"`
}

// EmptySnapshot returns the state used when nothing has been stored yet.
func EmptySnapshot() Snapshot {
	return Snapshot{
		Courses:           []Course{},
		Participants:      map[int][]Participant{},
		NextCourseID:      1,
		NextParticipantID: 1,
	}
}

// Course returns the course with the provided id.
func (s *Snapshot) Course(id int) (Course, bool) {
	for _, c := range s.Courses {
		if c.ID == id {
			return c, true
		}
	}
	return Course{}, false
}

// CourseByEvent returns the course carrying the operator facing event number.
func (s *Snapshot) CourseByEvent(eventNumber int) (Course, bool) {
	for _, c := range s.Courses {
		if c.EventNumber == eventNumber {
			return c, true
		}
	}
	return Course{}, false
}

// ParticipantIndex locates a participant of courseID by identity number.
// Stored numbers may keep the dashes of older documents, so both sides are
// compared after CleanIdentity. It returns -1 when no participant matches.
func (s *Snapshot) ParticipantIndex(courseID int, identityNumber string) int {
	want := CleanIdentity(identityNumber)
	for i, p := range s.Participants[courseID] {
		if CleanIdentity(p.IdentityNumber) == want {
			return i
		}
	}
	return -1
}

// CleanIdentity drops the dashes, dots and whitespace people type inside a CUIL.
func CleanIdentity(raw string) string {
	return strings.Map(func(r rune) rune {
		if r == '-' || r == '.' || unicode.IsSpace(r) {
			return -1
		}
		return r
	}, raw)
}

// Clone returns a deep copy of the snapshot.
func (s Snapshot) Clone() Snapshot {
	out := Snapshot{
		NextCourseID:      s.NextCourseID,
		NextParticipantID: s.NextParticipantID,
		Courses:           make([]Course, len(s.Courses)),
		Participants:      make(map[int][]Participant, len(s.Participants)),
	}
	for i, c := range s.Courses {
		c.Dates = append([]Date(nil), c.Dates...)
		out.Courses[i] = c
	}
	for courseID, list := range s.Participants {
		cloned := make([]Participant, len(list))
		for i, p := range list {
			attendance := make(map[Date]Mark, len(p.Attendance))
			for d, m := range p.Attendance {
				attendance[d] = m
			}
			p.Attendance = attendance
			cloned[i] = p
		}
		out.Participants[courseID] = cloned
	}
	return out
}

// normalize fills nil collections and lifts counters above every id in use.
func (s *Snapshot) normalize() {
	if s.Courses == nil {
		s.Courses = []Course{}
	}
	if s.Participants == nil {
		s.Participants = map[int][]Participant{}
	}

	maxCourse := 0
	for _, c := range s.Courses {
		if c.ID > maxCourse {
			maxCourse = c.ID
		}
	}
	maxParticipant := 0
	for _, list := range s.Participants {
		for _, p := range list {
			if p.ID > maxParticipant {
				maxParticipant = p.ID
			}
		}
	}
	if s.NextCourseID <= maxCourse {
		s.NextCourseID = maxCourse + 1
	}
	if s.NextParticipantID <= maxParticipant {
		s.NextParticipantID = maxParticipant + 1
	}
}

// OrphanCourseIDs lists participant keys that do not reference an existing course.
func (s *Snapshot) OrphanCourseIDs() []int {
	var orphans []int
	for courseID := range s.Participants {
		if _, ok := s.Course(courseID); !ok {
			orphans = append(orphans, courseID)
		}
	}
	sort.Ints(orphans)
	return orphans
}
