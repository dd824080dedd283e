package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

type RouterConfig struct {
	Courses             *CourseHandler
	DashboardAttendance *AttendanceHandler
	KioskAttendance     *AttendanceHandler
	Kiosk               *KioskHandler
	// Operator guards every /api route when set.
	Operator   func(http.Handler) http.Handler
	Metrics    http.Handler
	Middleware []func(http.Handler) http.Handler
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()
	for _, mw := range cfg.Middleware {
		if mw != nil {
			r.Use(mw)
		}
	}
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok"))
	})
	if cfg.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", cfg.Metrics)
	}

	r.Route("/api", func(api chi.Router) {
		if cfg.Operator != nil {
			api.Use(cfg.Operator)
		}
		c, a := cfg.Courses, cfg.DashboardAttendance
		if c != nil {
			api.Get("/courses", c.List)
			api.Post("/courses", c.Create)
			api.Post("/courses/import", c.Import)
			api.Post("/courses/preview", c.Preview)
			api.Delete("/state", c.Reset)
		}
		api.Route("/courses/{courseID}", func(course chi.Router) {
			if c != nil {
				course.Get("/", c.Detail)
				course.Get("/export", c.Export)
				course.Get("/kiosk-link", c.KioskLink)
				course.Put("/notes", c.SaveNotes)
				course.Put("/participants/{participantID}/note", c.SaveNote)
			}
			if a != nil {
				course.Post("/attendance", a.Resolve)
				course.Post("/participants/{participantID}/attendance/{date}", a.MarkPresent)
			}
		})
		if a != nil {
			api.Post("/proposals/{proposalID}/confirm", a.Confirm)
			api.Post("/proposals/{proposalID}/cancel", a.Cancel)
		}
	})

	r.Route("/kiosk", func(kiosk chi.Router) {
		if k := cfg.Kiosk; k != nil {
			kiosk.Get("/courses", k.Courses)
		}
		if a := cfg.KioskAttendance; a != nil {
			kiosk.Post("/courses/{courseID}/attendance", a.Resolve)
			kiosk.Post("/proposals/{proposalID}/confirm", a.Confirm)
			kiosk.Post("/proposals/{proposalID}/cancel", a.Cancel)
		}
	})

	return r
}
