// Package http exposes the attendance services over HTTP.
//
// Two clients share one stored state. Dashboard routes under /api open a
// workspace owning every field and may be guarded by operator basic auth;
// kiosk routes under /kiosk own only the participant list and its counter,
// so a kiosk save never overwrites course edits.
//
//   - GET /api/courses, POST /api/courses (wizard), POST /api/courses/import?room=
//     (multipart "file"), POST /api/courses/preview
//   - GET /api/courses/{courseID}?q=, GET .../export, GET .../kiosk-link,
//     PUT .../notes, PUT .../participants/{participantID}/note
//   - POST /api/courses/{courseID}/attendance and
//     POST .../participants/{participantID}/attendance/{date}
//   - POST /api/proposals/{proposalID}/confirm|cancel, DELETE /api/state
//   - GET /kiosk/courses, POST /kiosk/courses/{courseID}/attendance,
//     POST /kiosk/proposals/{proposalID}/confirm|cancel
//   - GET /healthz, GET /metrics
//
// Attendance is a two step exchange: the first call answers
// "awaiting_confirmation" with a proposal, and the client confirms or
// cancels it by id. Request and response DTOs live next to their handlers.
package http
