package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/inscribcordoba/attendance/internal/application"
	"github.com/inscribcordoba/attendance/internal/persistence"
	"github.com/inscribcordoba/attendance/internal/roster"
)

const maxWorkbookBytes = 10 << 20

type workspaceOpener interface {
	Open(ctx context.Context, fields persistence.FieldSet) (*persistence.Workspace, error)
}

type courseService interface {
	ImportSheet(ctx context.Context, ws *persistence.Workspace, sheet roster.Sheet, roomCode string) (persistence.Course, error)
	PreviewText(ctx context.Context, input string) application.TextPreview
	CreateCourse(ctx context.Context, ws *persistence.Workspace, input application.NewCourseInput) (persistence.Course, error)
	ListCourses(ctx context.Context, ws *persistence.Workspace) []application.CourseSummary
	TodayCourses(ctx context.Context, ws *persistence.Workspace) []application.CourseSummary
	CourseDetail(ctx context.Context, ws *persistence.Workspace, courseID int, filter string) (application.CourseDetail, error)
	SaveNote(ctx context.Context, ws *persistence.Workspace, courseID, participantID int, note string) error
	SaveNotes(ctx context.Context, ws *persistence.Workspace, courseID int, notes map[int]string) error
	Export(ctx context.Context, ws *persistence.Workspace, courseID int) (roster.Report, error)
	KioskURL(courseID int) string
	Reset(ctx context.Context, ws *persistence.Workspace) error
}

// CourseHandler serves the dashboard course endpoints. Every request works
// on a fresh dashboard workspace.
type CourseHandler struct {
	service   courseService
	store     workspaceOpener
	responder responder
	logger    *slog.Logger
}

func NewCourseHandler(service courseService, store workspaceOpener, logger *slog.Logger) *CourseHandler {
	base := loggerOr(logger)
	return &CourseHandler{service: service, store: store, responder: newResponder(base), logger: base}
}

func (h *CourseHandler) log(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	if h == nil {
		return slog.Default()
	}
	return scopedLogger(ctx, h.logger, "CourseHandler", operation, attrs...)
}

func (h *CourseHandler) ready(w http.ResponseWriter) bool {
	if h == nil || h.service == nil || h.store == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return false
	}
	return true
}

// open loads the dashboard workspace, answering the request itself on failure.
func (h *CourseHandler) open(w http.ResponseWriter, r *http.Request, operation string) (*persistence.Workspace, bool) {
	ws, err := h.store.Open(r.Context(), persistence.DashboardFields)
	if err != nil {
		h.log(r.Context(), operation).ErrorContext(r.Context(), "failed to load state", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return nil, false
	}
	return ws, true
}

func (h *CourseHandler) List(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	ws, ok := h.open(w, r, "List")
	if !ok {
		return
	}

	courses := h.service.ListCourses(r.Context(), ws)
	h.responder.writeJSON(r.Context(), w, http.StatusOK, courseListResponse{Courses: toCourseSummaryDTOs(courses)})
}

func (h *CourseHandler) Import(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	room := r.URL.Query().Get("room")
	logger := h.log(r.Context(), "Import", "room", room)

	r.Body = http.MaxBytesReader(w, r.Body, maxWorkbookBytes)
	file, header, err := r.FormFile("file")
	if err != nil {
		logger.WarnContext(r.Context(), "workbook missing from request", "error", err, "error_kind", "bad_request")
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errMissingWorkbook)
		return
	}
	defer file.Close()

	workbook, err := roster.OpenWorkbook(file)
	if err != nil {
		logger.WarnContext(r.Context(), "workbook unreadable", "file", header.Filename, "error", err, "error_kind", "bad_request")
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errMissingWorkbook)
		return
	}
	defer workbook.Close()

	ws, ok := h.open(w, r, "Import")
	if !ok {
		return
	}
	course, err := h.service.ImportSheet(r.Context(), ws, workbook, room)
	if err != nil {
		logger.ErrorContext(r.Context(), "import failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.With("course_id", course.ID).InfoContext(r.Context(), "course imported", "file", header.Filename)
	h.responder.writeJSON(r.Context(), w, http.StatusCreated, courseResponse{
		Course:   toCourseDTO(course),
		Enrolled: len(ws.Snapshot.Participants[course.ID]),
	})
}

func (h *CourseHandler) Preview(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	var req previewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.log(r.Context(), "Preview", "error_kind", "bad_request").WarnContext(r.Context(), "failed to decode preview request", "error", err)
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	preview := h.service.PreviewText(r.Context(), req.Text)
	h.responder.writeJSON(r.Context(), w, http.StatusOK, previewResponse{
		Entries:   toEntryDTOs(preview.Entries),
		Malformed: preview.Malformed,
	})
}

func (h *CourseHandler) Create(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	var req createCourseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.log(r.Context(), "Create", "error_kind", "bad_request").WarnContext(r.Context(), "failed to decode course request", "error", err)
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}
	logger := h.log(r.Context(), "Create", "event_number", req.EventNumber)

	ws, ok := h.open(w, r, "Create")
	if !ok {
		return
	}
	input := application.NewCourseInput{
		EventNumber: req.EventNumber,
		Name:        req.Name,
		Instructors: req.Instructors,
		RoomCode:    req.Room,
		Dates:       req.Dates,
		Entries:     h.service.PreviewText(r.Context(), req.Text).Entries,
	}
	course, err := h.service.CreateCourse(r.Context(), ws, input)
	if err != nil {
		logger.ErrorContext(r.Context(), "course creation failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.With("course_id", course.ID).InfoContext(r.Context(), "course created")
	h.responder.writeJSON(r.Context(), w, http.StatusCreated, courseResponse{
		Course:   toCourseDTO(course),
		Enrolled: len(ws.Snapshot.Participants[course.ID]),
	})
}

func (h *CourseHandler) Detail(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	courseID, ok := h.courseID(w, r, "Detail")
	if !ok {
		return
	}
	ws, ok := h.open(w, r, "Detail")
	if !ok {
		return
	}

	detail, err := h.service.CourseDetail(r.Context(), ws, courseID, r.URL.Query().Get("q"))
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, toCourseDetailDTO(detail))
}

func (h *CourseHandler) Export(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	courseID, ok := h.courseID(w, r, "Export")
	if !ok {
		return
	}
	ws, ok := h.open(w, r, "Export")
	if !ok {
		return
	}

	report, err := h.service.Export(r.Context(), ws, courseID)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": report.FileName}))
	if err := report.WriteXLSX(w); err != nil {
		h.log(r.Context(), "Export", "course_id", courseID).ErrorContext(r.Context(), "failed to write workbook", "error", err)
	}
}

func (h *CourseHandler) KioskLink(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	courseID, ok := h.courseID(w, r, "KioskLink")
	if !ok {
		return
	}
	ws, ok := h.open(w, r, "KioskLink")
	if !ok {
		return
	}
	if _, exists := ws.Snapshot.Course(courseID); !exists {
		h.responder.handleServiceError(r.Context(), w, application.ErrCourseNotFound)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, kioskLinkResponse{URL: h.service.KioskURL(courseID)})
}

func (h *CourseHandler) SaveNote(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	courseID, ok := h.courseID(w, r, "SaveNote")
	if !ok {
		return
	}
	participantID, err := strconv.Atoi(chi.URLParam(r, "participantID"))
	if err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidParticipant)
		return
	}
	var req noteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}
	ws, ok := h.open(w, r, "SaveNote")
	if !ok {
		return
	}

	if err := h.service.SaveNote(r.Context(), ws, courseID, participantID, req.Note); err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusNoContent, nil)
}

func (h *CourseHandler) SaveNotes(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	courseID, ok := h.courseID(w, r, "SaveNotes")
	if !ok {
		return
	}
	var req notesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}
	ws, ok := h.open(w, r, "SaveNotes")
	if !ok {
		return
	}

	if err := h.service.SaveNotes(r.Context(), ws, courseID, req.Notes); err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusNoContent, nil)
}

func (h *CourseHandler) Reset(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	ws, ok := h.open(w, r, "Reset")
	if !ok {
		return
	}
	if err := h.service.Reset(r.Context(), ws); err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusNoContent, nil)
}

func (h *CourseHandler) courseID(w http.ResponseWriter, r *http.Request, operation string) (int, bool) {
	return parseCourseID(w, r, h.responder, h.log(r.Context(), operation))
}

func parseCourseID(w http.ResponseWriter, r *http.Request, resp responder, logger *slog.Logger) (int, bool) {
	raw := strings.TrimSpace(chi.URLParam(r, "courseID"))
	id, err := strconv.Atoi(raw)
	if err != nil || id <= 0 {
		logger.WarnContext(r.Context(), "invalid course id", "course_id", raw, "error_kind", "bad_request")
		resp.writeError(r.Context(), w, http.StatusBadRequest, errInvalidCourseID)
		return 0, false
	}
	return id, true
}

type previewRequest struct {
	Text string `json:"text"`
}

type createCourseRequest struct {
	EventNumber int      `json:"nroEvento"`
	Name        string   `json:"name"`
	Instructors string   `json:"docentes"`
	Room        string   `json:"sala"`
	Dates       []string `json:"dates"`
	Text        string   `json:"text"`
}

type noteRequest struct {
	Note string `json:"nota"`
}

type notesRequest struct {
	Notes map[int]string `json:"notas"`
}

type courseDTO struct {
	ID          int      `json:"id"`
	EventNumber int      `json:"nroEvento"`
	Name        string   `json:"name"`
	Instructors string   `json:"docentes"`
	Status      string   `json:"status"`
	Room        string   `json:"sala"`
	Capacity    int      `json:"capacidad"`
	Dates       []string `json:"dates"`
}

type courseSummaryDTO struct {
	ID           int    `json:"id"`
	EventNumber  int    `json:"nroEvento"`
	Name         string `json:"name"`
	Status       string `json:"status"`
	Room         string `json:"sala"`
	Capacity     int    `json:"capacidad"`
	StartDate    string `json:"startDate,omitempty"`
	Participants int    `json:"participants"`
}

type participantDTO struct {
	ID             int               `json:"id"`
	IdentityNumber string            `json:"cuil"`
	Name           string            `json:"name"`
	Affiliation    string            `json:"reparticion"`
	Locality       string            `json:"localidad"`
	Phone          string            `json:"telefono"`
	Role           string            `json:"cargo"`
	PublicEmployee string            `json:"esEmpleadoPublico"`
	Note           string            `json:"nota"`
	Attendance     map[string]string `json:"attendance,omitempty"`
}

type entryDTO struct {
	Line           int    `json:"line"`
	Name           string `json:"name"`
	IdentityNumber string `json:"cuil"`
	Malformed      bool   `json:"malformed"`
	Problem        string `json:"problem,omitempty"`
}

type courseListResponse struct {
	Courses []courseSummaryDTO `json:"courses"`
}

type courseResponse struct {
	Course   courseDTO `json:"course"`
	Enrolled int       `json:"enrolled"`
}

type courseDetailResponse struct {
	Course       courseDTO        `json:"course"`
	Participants []participantDTO `json:"participants"`
	Enrolled     int              `json:"enrolled"`
	Capacity     int              `json:"capacidad"`
	KioskURL     string           `json:"kioskUrl"`
}

type previewResponse struct {
	Entries   []entryDTO `json:"entries"`
	Malformed int        `json:"malformed"`
}

type kioskLinkResponse struct {
	URL string `json:"url"`
}

func toCourseDTO(c persistence.Course) courseDTO {
	dates := make([]string, 0, len(c.Dates))
	for _, d := range c.Dates {
		dates = append(dates, d.String())
	}
	return courseDTO{
		ID:          c.ID,
		EventNumber: c.EventNumber,
		Name:        c.Name,
		Instructors: c.Instructors,
		Status:      c.Status,
		Room:        c.Room,
		Capacity:    c.Capacity,
		Dates:       dates,
	}
}

func toCourseSummaryDTOs(courses []application.CourseSummary) []courseSummaryDTO {
	out := make([]courseSummaryDTO, 0, len(courses))
	for _, c := range courses {
		out = append(out, courseSummaryDTO{
			ID:           c.ID,
			EventNumber:  c.EventNumber,
			Name:         c.Name,
			Status:       c.Status,
			Room:         c.Room,
			Capacity:     c.Capacity,
			StartDate:    c.StartDate.String(),
			Participants: c.ParticipantCount,
		})
	}
	return out
}

func toParticipantDTO(p persistence.Participant) participantDTO {
	return participantDTO{
		ID:             p.ID,
		IdentityNumber: p.IdentityNumber,
		Name:           p.Name,
		Affiliation:    p.Affiliation,
		Locality:       p.Locality,
		Phone:          p.Phone,
		Role:           p.Role,
		PublicEmployee: string(p.PublicEmployee),
		Note:           p.Note,
	}
}

func toCourseDetailDTO(detail application.CourseDetail) courseDetailResponse {
	resp := courseDetailResponse{
		Course:       toCourseDTO(detail.Course),
		Participants: make([]participantDTO, 0, len(detail.Participants)),
		Enrolled:     detail.Enrolled,
		Capacity:     detail.Capacity,
		KioskURL:     detail.KioskURL,
	}
	for _, row := range detail.Participants {
		dto := toParticipantDTO(row.Participant)
		dto.Attendance = make(map[string]string, len(row.Statuses))
		for date, status := range row.Statuses {
			dto.Attendance[date.String()] = string(status)
		}
		resp.Participants = append(resp.Participants, dto)
	}
	return resp
}

func toEntryDTOs(entries []roster.Entry) []entryDTO {
	out := make([]entryDTO, 0, len(entries))
	for _, e := range entries {
		out = append(out, entryDTO{
			Line:           e.Line,
			Name:           e.Name,
			IdentityNumber: e.IdentityNumber,
			Malformed:      e.Malformed,
			Problem:        e.Problem,
		})
	}
	return out
}
