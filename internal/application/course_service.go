package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/inscribcordoba/attendance/internal/persistence"
	"github.com/inscribcordoba/attendance/internal/roster"
)

// CourseDeps wires a CourseService.
type CourseDeps struct {
	Rooms         roster.RoomCatalog
	PublicBaseURL string
	Now           func() time.Time
	Location      *time.Location
	Recorder      Recorder
	Logger        *slog.Logger
}

// CourseService implements the dashboard operations on courses and rosters.
type CourseService struct {
	rooms    roster.RoomCatalog
	baseURL  string
	now      func() time.Time
	location *time.Location
	recorder Recorder
	logger   *slog.Logger
}

// NewCourseService constructs a CourseService.
func NewCourseService(deps CourseDeps) *CourseService {
	if len(deps.Rooms.Rooms) == 0 && deps.Rooms.ExternalCapacity == 0 {
		deps.Rooms = roster.DefaultRoomCatalog()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Location == nil {
		deps.Location = time.Local
	}
	return &CourseService{
		rooms:    deps.Rooms,
		baseURL:  strings.TrimRight(deps.PublicBaseURL, "/"),
		now:      deps.Now,
		location: deps.Location,
		recorder: defaultRecorder(deps.Recorder),
		logger:   defaultLogger(deps.Logger),
	}
}

func (s *CourseService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "CourseService", operation, attrs...)
}

func (s *CourseService) today() persistence.Date {
	return persistence.DateOf(s.now().In(s.location))
}

// ImportSheet creates a course and its roster from an import sheet.
func (s *CourseService) ImportSheet(ctx context.Context, ws *persistence.Workspace, sheet roster.Sheet, roomCode string) (course persistence.Course, err error) {
	logger := s.loggerWith(ctx, "ImportSheet", "room", roomCode)
	defer func() {
		s.recorder.ObserveImport("sheet", err)
		if err != nil {
			logger.ErrorContext(ctx, "sheet import failed", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "sheet imported",
			"course_id", course.ID,
			"event_number", course.EventNumber,
			"participants", len(ws.Snapshot.Participants[course.ID]),
		)
	}()

	if ws == nil {
		err = fmt.Errorf("workspace is nil")
		return
	}
	if sheet == nil {
		err = fmt.Errorf("sheet is nil")
		return
	}

	imported, err := roster.ParseSheet(sheet)
	if err != nil {
		if errors.Is(err, roster.ErrInvalidDate) {
			vErr := &ValidationError{}
			vErr.add("dates", err.Error())
			err = vErr
		}
		return
	}

	vErr := &ValidationError{}
	room, roomErr := s.rooms.Resolve(roomCode)
	if roomErr != nil {
		vErr.add("room", "room code must be SG, SI1, SI2 or SE(<name>)")
	}
	seen := make(map[string]int, len(imported.Participants))
	for _, p := range imported.Participants {
		field := fmt.Sprintf("row %d", p.Row)
		if !p.ValidIdentity {
			vErr.add(field, fmt.Sprintf("CUIL %q must have 11 digits", p.RawIdentity))
			continue
		}
		if first, dup := seen[p.IdentityNumber]; dup {
			vErr.add(field, fmt.Sprintf("CUIL %s repeats row %d", p.IdentityNumber, first))
			continue
		}
		seen[p.IdentityNumber] = p.Row
	}
	if vErr.HasErrors() {
		err = vErr
		return
	}

	if _, exists := ws.Snapshot.CourseByEvent(imported.EventNumber); exists {
		err = ErrDuplicateEvent
		return
	}

	participants := make([]persistence.Participant, 0, len(imported.Participants))
	for _, p := range imported.Participants {
		participants = append(participants, persistence.Participant{
			IdentityNumber: p.IdentityNumber,
			Name:           p.Name,
			Affiliation:    p.Affiliation,
			Locality:       p.Locality,
			Phone:          p.Phone,
			Role:           p.Role,
			PublicEmployee: persistence.FlagYes,
		})
	}

	course = s.addCourse(&ws.Snapshot, persistence.Course{
		EventNumber: imported.EventNumber,
		Name:        imported.Name,
		Instructors: imported.Instructors,
		Room:        room.Name,
		Capacity:    room.Capacity,
		Dates:       imported.Dates,
	}, participants)

	err = s.save(ctx, ws)
	return
}

// PreviewText parses a pasted roster for review before CreateCourse.
func (s *CourseService) PreviewText(ctx context.Context, input string) TextPreview {
	entries := roster.ParseText(input)
	preview := TextPreview{Entries: entries}
	for _, e := range entries {
		if e.Malformed {
			preview.Malformed++
		}
	}
	s.loggerWith(ctx, "PreviewText").DebugContext(ctx, "text roster parsed",
		"entries", len(entries),
		"malformed", preview.Malformed,
	)
	return preview
}

// CreateCourse creates a course from the manual wizard. Malformed or repeated
// roster entries reject the whole request.
func (s *CourseService) CreateCourse(ctx context.Context, ws *persistence.Workspace, input NewCourseInput) (course persistence.Course, err error) {
	logger := s.loggerWith(ctx, "CreateCourse", "event_number", input.EventNumber)
	defer func() {
		s.recorder.ObserveImport("text", err)
		if err != nil {
			logger.ErrorContext(ctx, "course creation failed", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "course created", "course_id", course.ID)
	}()

	if ws == nil {
		err = fmt.Errorf("workspace is nil")
		return
	}

	vErr := &ValidationError{}
	if input.EventNumber <= 0 {
		vErr.add("eventNumber", "event number must be a positive number")
	}
	name := strings.TrimSpace(input.Name)
	if name == "" {
		vErr.add("name", "name is required")
	}
	room, roomErr := s.rooms.Resolve(input.RoomCode)
	if roomErr != nil {
		vErr.add("room", "room code must be SG, SI1, SI2 or SE(<name>)")
	}

	dates := make([]persistence.Date, 0, len(input.Dates))
	seenDates := make(map[persistence.Date]struct{}, len(input.Dates))
	for i, raw := range input.Dates {
		d, parseErr := persistence.ParseDate(strings.TrimSpace(raw))
		if parseErr != nil {
			vErr.add(fmt.Sprintf("dates[%d]", i), "date must use YYYY-MM-DD")
			continue
		}
		if _, dup := seenDates[d]; dup {
			vErr.add(fmt.Sprintf("dates[%d]", i), "date is repeated")
			continue
		}
		seenDates[d] = struct{}{}
		dates = append(dates, d)
	}

	seen := make(map[string]int, len(input.Entries))
	for _, e := range input.Entries {
		field := "line " + strconv.Itoa(e.Line)
		if e.Malformed {
			vErr.add(field, e.Problem)
			continue
		}
		if first, dup := seen[e.IdentityNumber]; dup {
			vErr.add(field, fmt.Sprintf("CUIL %s repeats line %d", e.IdentityNumber, first))
			continue
		}
		seen[e.IdentityNumber] = e.Line
	}
	if vErr.HasErrors() {
		err = vErr
		return
	}

	if _, exists := ws.Snapshot.CourseByEvent(input.EventNumber); exists {
		err = ErrDuplicateEvent
		return
	}

	participants := make([]persistence.Participant, 0, len(input.Entries))
	for _, e := range input.Entries {
		participants = append(participants, persistence.Participant{
			IdentityNumber: e.IdentityNumber,
			Name:           e.Name,
			Affiliation:    NotAvailable,
			Locality:       NotAvailable,
			Phone:          NotAvailable,
			Role:           NotAvailable,
			PublicEmployee: persistence.FlagNo,
		})
	}

	course = s.addCourse(&ws.Snapshot, persistence.Course{
		EventNumber: input.EventNumber,
		Name:        name,
		Instructors: strings.TrimSpace(input.Instructors),
		Room:        room.Name,
		Capacity:    room.Capacity,
		Dates:       dates,
	}, participants)

	err = s.save(ctx, ws)
	return
}

// addCourse assigns ids from the snapshot counters and appends the course.
func (s *CourseService) addCourse(snap *persistence.Snapshot, course persistence.Course, participants []persistence.Participant) persistence.Course {
	course.ID = snap.NextCourseID
	snap.NextCourseID++
	course.Status = persistence.CourseStatusPublished
	if course.Dates == nil {
		course.Dates = []persistence.Date{}
	}

	for i := range participants {
		participants[i].ID = snap.NextParticipantID
		snap.NextParticipantID++
		participants[i].Attendance = persistence.NewAttendance(course.Dates)
	}

	snap.Courses = append(snap.Courses, course)
	if snap.Participants == nil {
		snap.Participants = make(map[int][]persistence.Participant)
	}
	snap.Participants[course.ID] = participants
	return course
}

// ListCourses summarizes every course in creation order.
func (s *CourseService) ListCourses(ctx context.Context, ws *persistence.Workspace) []CourseSummary {
	summaries := make([]CourseSummary, 0, len(ws.Snapshot.Courses))
	for _, c := range ws.Snapshot.Courses {
		summary := CourseSummary{
			ID:               c.ID,
			EventNumber:      c.EventNumber,
			Name:             c.Name,
			Status:           c.Status,
			Room:             c.Room,
			Capacity:         c.Capacity,
			ParticipantCount: len(ws.Snapshot.Participants[c.ID]),
		}
		if len(c.Dates) > 0 {
			summary.StartDate = c.Dates[0]
		}
		summaries = append(summaries, summary)
	}
	s.loggerWith(ctx, "ListCourses").DebugContext(ctx, "courses listed", "count", len(summaries))
	return summaries
}

// TodayCourses lists the courses with a session today, for the kiosk picker.
func (s *CourseService) TodayCourses(ctx context.Context, ws *persistence.Workspace) []CourseSummary {
	today := s.today()
	var result []CourseSummary
	for _, summary := range s.ListCourses(ctx, ws) {
		course, _ := ws.Snapshot.Course(summary.ID)
		if course.HasDate(today) {
			result = append(result, summary)
		}
	}
	return result
}

// CourseDetail returns the course with its roster. filter matches a
// case-insensitive substring of the name or a substring of the CUIL.
func (s *CourseService) CourseDetail(ctx context.Context, ws *persistence.Workspace, courseID int, filter string) (CourseDetail, error) {
	course, ok := ws.Snapshot.Course(courseID)
	if !ok {
		s.loggerWith(ctx, "CourseDetail", "course_id", courseID).
			WarnContext(ctx, "course not found", "error_kind", ErrorKind(ErrCourseNotFound))
		return CourseDetail{}, ErrCourseNotFound
	}

	all := ws.Snapshot.Participants[courseID]
	detail := CourseDetail{
		Course:       course,
		Participants: make([]ParticipantRow, 0, len(all)),
		Enrolled:     len(all),
		Capacity:     course.Capacity,
		KioskURL:     s.KioskURL(courseID),
	}

	today := s.today()
	term := strings.ToLower(strings.TrimSpace(filter))
	for _, p := range all {
		if term != "" && !strings.Contains(strings.ToLower(p.Name), term) && !strings.Contains(p.IdentityNumber, term) {
			continue
		}
		row := ParticipantRow{Participant: p, Statuses: make(map[persistence.Date]AttendanceStatus, len(course.Dates))}
		for _, d := range course.Dates {
			switch {
			case p.IsPresent(d):
				row.Statuses[d] = StatusPresent
			case d > today:
				row.Statuses[d] = StatusPending
			default:
				row.Statuses[d] = StatusAbsent
			}
		}
		detail.Participants = append(detail.Participants, row)
	}
	return detail, nil
}

// SaveNote stores the grade note of one participant.
func (s *CourseService) SaveNote(ctx context.Context, ws *persistence.Workspace, courseID, participantID int, note string) error {
	return s.SaveNotes(ctx, ws, courseID, map[int]string{participantID: note})
}

// SaveNotes stores several notes in one write. Unknown participant ids fail
// the whole call before anything is changed.
func (s *CourseService) SaveNotes(ctx context.Context, ws *persistence.Workspace, courseID int, notes map[int]string) (err error) {
	logger := s.loggerWith(ctx, "SaveNotes", "course_id", courseID, "count", len(notes))
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "notes not saved", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "notes saved")
	}()

	if _, ok := ws.Snapshot.Course(courseID); !ok {
		return ErrCourseNotFound
	}
	list := ws.Snapshot.Participants[courseID]
	index := make(map[int]int, len(list))
	for i, p := range list {
		index[p.ID] = i
	}
	for id := range notes {
		if _, ok := index[id]; !ok {
			return fmt.Errorf("%w: id %d", ErrParticipantNotFound, id)
		}
	}
	for id, note := range notes {
		list[index[id]].Note = strings.TrimSpace(note)
	}
	return s.save(ctx, ws)
}

// Export builds the attendance report of a course.
func (s *CourseService) Export(ctx context.Context, ws *persistence.Workspace, courseID int) (roster.Report, error) {
	course, ok := ws.Snapshot.Course(courseID)
	if !ok {
		return roster.Report{}, ErrCourseNotFound
	}
	report := roster.BuildReport(course, ws.Snapshot.Participants[courseID])
	s.loggerWith(ctx, "Export", "course_id", courseID).InfoContext(ctx, "report built", "rows", len(report.Rows))
	return report, nil
}

// KioskURL returns the self-registration link for a course.
func (s *CourseService) KioskURL(courseID int) string {
	return fmt.Sprintf("%s/asistencia?curso=%d", s.baseURL, courseID)
}

// Reset replaces the whole state with an empty snapshot.
func (s *CourseService) Reset(ctx context.Context, ws *persistence.Workspace) error {
	logger := s.loggerWith(ctx, "Reset")
	if !ws.Fields().Has(persistence.DashboardFields) {
		logger.WarnContext(ctx, "reset refused for non dashboard workspace", "fields", ws.Fields().String())
		return ErrUnauthorized
	}
	ws.Snapshot = persistence.EmptySnapshot()
	if err := s.save(ctx, ws); err != nil {
		logger.ErrorContext(ctx, "reset failed", "error", err, "error_kind", ErrorKind(err))
		return err
	}
	logger.WarnContext(ctx, "state reset")
	return nil
}

func (s *CourseService) save(ctx context.Context, ws *persistence.Workspace) error {
	err := ws.Save(ctx)
	s.recorder.ObserveSave(ws.Fields().String(), err)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrPersistenceUnavailable, err)
	}
	return nil
}
