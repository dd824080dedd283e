package http

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/inscribcordoba/attendance/internal/application"
	"github.com/inscribcordoba/attendance/internal/persistence"
)

type todayLister interface {
	TodayCourses(ctx context.Context, ws *persistence.Workspace) []application.CourseSummary
}

// KioskHandler serves the read side of the self-registration kiosk.
type KioskHandler struct {
	courses   todayLister
	store     workspaceOpener
	responder responder
	logger    *slog.Logger
}

func NewKioskHandler(courses todayLister, store workspaceOpener, logger *slog.Logger) *KioskHandler {
	base := loggerOr(logger)
	return &KioskHandler{courses: courses, store: store, responder: newResponder(base), logger: base}
}

// Courses lists the courses with a session today.
func (h *KioskHandler) Courses(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.courses == nil || h.store == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	ws, err := h.store.Open(r.Context(), persistence.KioskFields)
	if err != nil {
		scopedLogger(r.Context(), h.logger, "KioskHandler", "Courses").
			ErrorContext(r.Context(), "failed to load state", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	courses := h.courses.TodayCourses(r.Context(), ws)
	h.responder.writeJSON(r.Context(), w, http.StatusOK, courseListResponse{Courses: toCourseSummaryDTOs(courses)})
}
