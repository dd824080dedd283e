package application

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/inscribcordoba/attendance/internal/logging"
)

func decodeRecord(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("log output is not one JSON record: %v (%q)", err, buf.String())
	}
	return record
}

func TestServiceLoggerUsesContextLogger(t *testing.T) {
	var fromCtx, base bytes.Buffer
	ctx := logging.ContextWithLogger(context.Background(), slog.New(slog.NewJSONHandler(&fromCtx, nil)))

	serviceLogger(ctx, slog.New(slog.NewJSONHandler(&base, nil)), "AttendanceService", "Resolve", "course_id", 3).Info("resolved")

	if base.Len() != 0 {
		t.Fatalf("base logger should stay silent inside a request, got %q", base.String())
	}
	record := decodeRecord(t, &fromCtx)
	if record["service"] != "AttendanceService" || record["operation"] != "Resolve" {
		t.Fatalf("missing service scope: %v", record)
	}
	if record["course_id"] != float64(3) {
		t.Fatalf("missing caller attribute: %v", record)
	}
}

func TestServiceLoggerFallsBackToBase(t *testing.T) {
	var base bytes.Buffer
	serviceLogger(context.Background(), slog.New(slog.NewJSONHandler(&base, nil)), "CourseService", "").Info("saved")

	record := decodeRecord(t, &base)
	if record["service"] != "CourseService" {
		t.Fatalf("missing service: %v", record)
	}
	if _, ok := record["operation"]; ok {
		t.Fatalf("empty operation should be omitted: %v", record)
	}
	if defaultLogger(nil) != slog.Default() {
		t.Fatalf("nil logger should resolve to slog.Default")
	}
}
