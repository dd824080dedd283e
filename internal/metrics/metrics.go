package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/inscribcordoba/attendance/internal/application"
)

// Metrics records attendance service measurements. It implements
// application.Recorder.
type Metrics struct {
	// Attendance requests by outcome
	AttendanceOutcome *prometheus.CounterVec

	// Identity lookup latency by result: ok, rejected, unavailable
	LookupLatency *prometheus.HistogramVec

	// Store writes by owner (dashboard, kiosk) and status
	Saves *prometheus.CounterVec

	// Roster imports by source (sheet, text) and status
	Imports *prometheus.CounterVec
}

// New registers the attendance metrics with reg. A nil reg uses the default registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &Metrics{
		AttendanceOutcome: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "attendance_requests_total",
			Help: "Attendance requests by outcome",
		}, []string{"outcome"}),

		LookupLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "attendance_identity_lookup_duration_seconds",
			Help:    "Duration of identity service lookups by result",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20},
		}, []string{"result"}),

		Saves: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "attendance_store_saves_total",
			Help: "Snapshot saves by owner and status",
		}, []string{"owner", "status"}),

		Imports: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "attendance_roster_imports_total",
			Help: "Roster imports by source and status",
		}, []string{"source", "status"}),
	}
}

// ObserveAttendance counts an attendance outcome.
func (m *Metrics) ObserveAttendance(outcome application.Outcome) {
	if m != nil {
		m.AttendanceOutcome.WithLabelValues(string(outcome)).Inc()
	}
}

// ObserveLookup records the duration of one identity lookup.
func (m *Metrics) ObserveLookup(result string, d time.Duration) {
	if m != nil {
		m.LookupLatency.WithLabelValues(result).Observe(d.Seconds())
	}
}

// ObserveSave counts a store write.
func (m *Metrics) ObserveSave(owner string, err error) {
	if m != nil {
		m.Saves.WithLabelValues(owner, status(err)).Inc()
	}
}

// ObserveImport counts a roster import.
func (m *Metrics) ObserveImport(source string, err error) {
	if m != nil {
		m.Imports.WithLabelValues(source, status(err)).Inc()
	}
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

var _ application.Recorder = (*Metrics)(nil)
