package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/inscribcordoba/attendance/internal/application"
	"github.com/inscribcordoba/attendance/internal/identity"
	"github.com/inscribcordoba/attendance/internal/persistence"
)

var (
	errBadRequestBody     = errors.New("Formato de solicitud inválido.")
	errInvalidCourseID    = errors.New("Identificador de curso inválido.")
	errInvalidParticipant = errors.New("Identificador de asistente inválido.")
	errInvalidDate        = errors.New("La fecha debe tener el formato AAAA-MM-DD.")
	errMissingWorkbook    = errors.New("Debe adjuntar la planilla del curso (.xlsx).")
)

type responder struct {
	logger *slog.Logger
}

func newResponder(logger *slog.Logger) responder {
	return responder{logger: loggerOr(logger)}
}

func (r responder) writeJSON(ctx context.Context, w http.ResponseWriter, status int, payload any) {
	if w == nil {
		return
	}

	if status == http.StatusNoContent || payload == nil {
		w.WriteHeader(status)
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		r.loggerFor(ctx).ErrorContext(ctx, "failed to encode response", "error", err)
	}
}

func (r responder) writeError(ctx context.Context, w http.ResponseWriter, status int, err error) {
	message := localizedStatusMessage(status)
	if err != nil {
		if msg := strings.TrimSpace(err.Error()); msg != "" {
			message = msg
		}
		r.loggerFor(ctx).WarnContext(ctx, "request failed", "status", status, "error", err)
	}

	r.writeJSON(ctx, w, status, errorResponse{Message: message})
}

// handleServiceError maps application errors to a status code and an operator facing message.
func (r responder) handleServiceError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		r.writeError(ctx, w, http.StatusInternalServerError, errors.New("unknown error"))
		return
	}

	status, code, message := classify(err)
	resp := errorResponse{ErrorCode: code, Message: message}

	var vErr *application.ValidationError
	if errors.As(err, &vErr) {
		resp.Errors = localizeValidationErrors(vErr)
	}
	r.writeJSON(ctx, w, status, resp)
}

func classify(err error) (int, string, string) {
	var vErr *application.ValidationError
	switch {
	case errors.As(err, &vErr):
		return http.StatusUnprocessableEntity, "VALIDATION", "Los datos ingresados tienen errores."
	case errors.Is(err, application.ErrUnauthorized):
		return http.StatusForbidden, "FORBIDDEN", "No tiene permiso para realizar esta operación."
	case errors.Is(err, application.ErrInvalidIdentity):
		return http.StatusBadRequest, "INVALID_CUIL", "Debes ingresar un CUIL válido de 11 dígitos."
	case errors.Is(err, application.ErrMissingEventNumber):
		return http.StatusBadRequest, "MISSING_EVENT_NUMBER", "La planilla no tiene número de evento en la celda C4."
	case errors.Is(err, application.ErrCourseNotFound):
		return http.StatusNotFound, "COURSE_NOT_FOUND", "El curso no existe."
	case errors.Is(err, application.ErrParticipantNotFound):
		return http.StatusNotFound, "PARTICIPANT_NOT_FOUND", "El asistente no está inscripto en el curso."
	case errors.Is(err, application.ErrProposalNotFound):
		return http.StatusNotFound, "PROPOSAL_EXPIRED", "La confirmación venció. Vuelva a ingresar el CUIL."
	case errors.Is(err, application.ErrNoSessionToday):
		return http.StatusConflict, "NO_SESSION_TODAY", "La fecha no es una fecha de cursado para este curso."
	case errors.Is(err, application.ErrDuplicateEvent):
		return http.StatusConflict, "DUPLICATE_EVENT", "Ya existe un curso con ese número de evento."
	case errors.Is(err, application.ErrLookupInProgress):
		return http.StatusConflict, "LOOKUP_IN_PROGRESS", "Ya se está consultando este CUIL. Espere un momento."
	case errors.Is(err, identity.ErrLookupRejected):
		return http.StatusBadGateway, "LOOKUP_REJECTED", lookupRejectedMessage(err)
	case errors.Is(err, identity.ErrServiceUnavailable), errors.Is(err, application.ErrLookupFailed):
		return http.StatusServiceUnavailable, "LOOKUP_UNAVAILABLE", "No se pudo consultar el sistema externo. Intente nuevamente."
	case errors.Is(err, application.ErrPersistenceUnavailable), errors.Is(err, persistence.ErrUnavailable):
		return http.StatusServiceUnavailable, "PERSISTENCE_UNAVAILABLE", "No se pudieron guardar los datos. Intente nuevamente."
	case errors.Is(err, application.ErrCorruptState):
		return http.StatusInternalServerError, "CORRUPT_STATE", "No se pudieron cargar los datos de los cursos. Vuelva al panel principal e intente de nuevo."
	default:
		return http.StatusInternalServerError, "INTERNAL", localizedStatusMessage(http.StatusInternalServerError)
	}
}

func lookupRejectedMessage(err error) string {
	var rejected *identity.RejectedError
	if errors.As(err, &rejected) && strings.TrimSpace(rejected.Message) != "" {
		return "No se pudo completar la operación: " + rejected.Message
	}
	return "El sistema externo no encontró el CUIL ingresado."
}

func (r responder) loggerFor(ctx context.Context) *slog.Logger {
	if logger := LoggerFromContext(ctx); logger != nil {
		return logger
	}
	return r.logger
}

func localizedStatusMessage(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "La solicitud no es válida."
	case http.StatusUnauthorized:
		return "Debe iniciar sesión como operador."
	case http.StatusForbidden:
		return "No tiene permiso para realizar esta operación."
	case http.StatusNotFound:
		return "El recurso solicitado no existe."
	case http.StatusConflict:
		return "La operación entra en conflicto con el estado actual."
	case http.StatusUnprocessableEntity:
		return "Los datos ingresados tienen errores."
	default:
		return "Ocurrió un error interno en el servidor."
	}
}

func localizeValidationErrors(vErr *application.ValidationError) map[string]string {
	if vErr == nil || len(vErr.FieldErrors) == 0 {
		return nil
	}

	translated := make(map[string]string, len(vErr.FieldErrors))
	for field, msg := range vErr.FieldErrors {
		translated[field] = translateValidationMessage(msg)
	}
	return translated
}

func translateValidationMessage(message string) string {
	switch message {
	case "event number must be a positive number":
		return "El número de evento debe ser un número positivo."
	case "name is required":
		return "El nombre del curso es obligatorio."
	case "room code must be SG, SI1, SI2 or SE(<name>)":
		return "Código de sala inválido. Use SG, SI1, SI2 o SE(Nombre sala)."
	case "date must use YYYY-MM-DD":
		return "La fecha debe tener el formato AAAA-MM-DD."
	case "date is repeated":
		return "La fecha está repetida."
	case "missing name":
		return "Falta el nombre."
	case "missing identity number":
		return "Falta el CUIL."
	case "identity number must have 11 digits":
		return "El CUIL debe tener 11 dígitos."
	case "missing name; missing identity number":
		return "Faltan el nombre y el CUIL."
	case "missing name; identity number must have 11 digits":
		return "Falta el nombre y el CUIL debe tener 11 dígitos."
	default:
		switch {
		case strings.Contains(message, " repeats "):
			return "CUIL repetido: " + message
		case strings.HasSuffix(message, "must have 11 digits"):
			return "CUIL inválido: " + message
		}
		return message
	}
}

type errorResponse struct {
	ErrorCode string            `json:"error_code,omitempty"`
	Message   string            `json:"message"`
	Errors    map[string]string `json:"errors,omitempty"`
}
