package http

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/inscribcordoba/attendance/internal/application"
	"github.com/inscribcordoba/attendance/internal/persistence"
)

type attendanceService interface {
	Resolve(ctx context.Context, ws *persistence.Workspace, req application.AttendanceRequest) (application.AttendanceResult, error)
	ConfirmProposal(ctx context.Context, ws *persistence.Workspace, proposalID string, confirmed bool) (application.AttendanceResult, error)
	MarkPresent(ctx context.Context, ws *persistence.Workspace, courseID, participantID int, date persistence.Date) (application.AttendanceResult, error)
}

// AttendanceHandler serves the two step attendance flow. The same handler
// type backs the dashboard and the kiosk; fields decides which part of the
// shared state its saves may overwrite.
type AttendanceHandler struct {
	service   attendanceService
	store     workspaceOpener
	fields    persistence.FieldSet
	responder responder
	logger    *slog.Logger
}

func NewAttendanceHandler(service attendanceService, store workspaceOpener, fields persistence.FieldSet, logger *slog.Logger) *AttendanceHandler {
	base := loggerOr(logger)
	return &AttendanceHandler{service: service, store: store, fields: fields, responder: newResponder(base), logger: base}
}

func (h *AttendanceHandler) log(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	if h == nil {
		return slog.Default()
	}
	attrs = append(attrs, "client", h.fields.String())
	return scopedLogger(ctx, h.logger, "AttendanceHandler", operation, attrs...)
}

func (h *AttendanceHandler) ready(w http.ResponseWriter) bool {
	if h == nil || h.service == nil || h.store == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return false
	}
	return true
}

func (h *AttendanceHandler) open(w http.ResponseWriter, r *http.Request, operation string) (*persistence.Workspace, bool) {
	ws, err := h.store.Open(r.Context(), h.fields)
	if err != nil {
		h.log(r.Context(), operation).ErrorContext(r.Context(), "failed to load state", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return nil, false
	}
	return ws, true
}

// Resolve handles the CUIL entry step. The kiosk always records today; the
// dashboard may name another session date.
func (h *AttendanceHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	logger := h.log(r.Context(), "Resolve")
	courseID, ok := parseCourseID(w, r, h.responder, logger)
	if !ok {
		return
	}

	var req attendanceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.WarnContext(r.Context(), "failed to decode attendance request", "error", err, "error_kind", "bad_request")
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	request := application.AttendanceRequest{CourseID: courseID, IdentityNumber: req.IdentityNumber}
	if req.Date != "" && h.fields.Has(persistence.DashboardFields) {
		date, err := persistence.ParseDate(req.Date)
		if err != nil {
			h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidDate)
			return
		}
		request.Date = date
	}

	ws, ok := h.open(w, r, "Resolve")
	if !ok {
		return
	}
	result, err := h.service.Resolve(r.Context(), ws, request)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, toAttendanceResponse(result))
}

func (h *AttendanceHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	h.answer(w, r, true)
}

func (h *AttendanceHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	h.answer(w, r, false)
}

func (h *AttendanceHandler) answer(w http.ResponseWriter, r *http.Request, confirmed bool) {
	if !h.ready(w) {
		return
	}
	proposalID := chi.URLParam(r, "proposalID")
	ws, ok := h.open(w, r, "Answer")
	if !ok {
		return
	}

	result, err := h.service.ConfirmProposal(r.Context(), ws, proposalID, confirmed)
	if err != nil && result.Outcome != application.OutcomePersistenceFailed {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	if err != nil {
		resp := toAttendanceResponse(result)
		_, code, message := classify(err)
		resp.ErrorCode, resp.Message = code, message
		h.responder.writeJSON(r.Context(), w, http.StatusServiceUnavailable, resp)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, toAttendanceResponse(result))
}

// MarkPresent lets the operator tick a participant on any session date.
func (h *AttendanceHandler) MarkPresent(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	logger := h.log(r.Context(), "MarkPresent")
	courseID, ok := parseCourseID(w, r, h.responder, logger)
	if !ok {
		return
	}
	participantID, err := strconv.Atoi(chi.URLParam(r, "participantID"))
	if err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidParticipant)
		return
	}
	date, err := persistence.ParseDate(chi.URLParam(r, "date"))
	if err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidDate)
		return
	}

	ws, ok := h.open(w, r, "MarkPresent")
	if !ok {
		return
	}
	result, err := h.service.MarkPresent(r.Context(), ws, courseID, participantID, date)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, toAttendanceResponse(result))
}

type attendanceRequest struct {
	IdentityNumber string `json:"cuil"`
	Date           string `json:"date,omitempty"`
}

type proposalDTO struct {
	ID        string `json:"id"`
	Kind      string `json:"kind"`
	CourseID  int    `json:"courseId"`
	Course    string `json:"course"`
	Date      string `json:"date"`
	CUIL      string `json:"cuil"`
	Name      string `json:"name"`
	Formatted string `json:"cuilFormateado,omitempty"`
	Locality  string `json:"localidad,omitempty"`
	Phone     string `json:"telefono,omitempty"`
}

type attendanceResponse struct {
	Outcome     string          `json:"outcome"`
	Message     string          `json:"message"`
	ErrorCode   string          `json:"error_code,omitempty"`
	Proposal    *proposalDTO    `json:"proposal,omitempty"`
	Participant *participantDTO `json:"participant,omitempty"`
}

func toAttendanceResponse(result application.AttendanceResult) attendanceResponse {
	resp := attendanceResponse{Outcome: string(result.Outcome), Message: outcomeMessage(result)}
	if p := result.Proposal; p != nil && result.Outcome == application.OutcomeAwaitingConfirmation {
		dto := &proposalDTO{
			ID:       p.ID,
			Kind:     string(p.Kind),
			CourseID: p.CourseID,
			Course:   p.CourseName,
			Date:     p.Date.String(),
			CUIL:     p.IdentityNumber,
			Name:     p.ParticipantName,
		}
		if p.Person != nil {
			dto.Formatted = p.Person.FormattedIdentity
			dto.Locality = p.Person.Locality
			dto.Phone = p.Person.Phone
		}
		resp.Proposal = dto
	}
	if result.Participant != nil {
		dto := toParticipantDTO(*result.Participant)
		resp.Participant = &dto
	}
	return resp
}

func outcomeMessage(result application.AttendanceResult) string {
	name := ""
	if result.Participant != nil {
		name = result.Participant.Name
	} else if result.Proposal != nil {
		name = result.Proposal.ParticipantName
	}

	switch result.Outcome {
	case application.OutcomeMarked:
		return "¡Asistencia registrada!"
	case application.OutcomeEnrolledAndMarked:
		return fmt.Sprintf("%s ha sido inscripto y su asistencia fue registrada.", name)
	case application.OutcomeAlreadyPresent:
		return fmt.Sprintf("%s ya tiene la asistencia marcada como 'Presente' para hoy.", name)
	case application.OutcomeAwaitingConfirmation:
		if result.Proposal != nil && result.Proposal.Kind == application.ProposalEnroll {
			return fmt.Sprintf("Se encontró a %s. ¿Inscribir y dar Presente?", name)
		}
		return fmt.Sprintf("¿Dar Presente a %s?", name)
	case application.OutcomeCancelled:
		return "Operación cancelada."
	case application.OutcomePersistenceFailed:
		return "No se pudieron guardar los datos. Intente nuevamente."
	default:
		return ""
	}
}
