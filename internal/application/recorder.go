package application

import "time"

// Recorder receives service level measurements.
type Recorder interface {
	ObserveAttendance(outcome Outcome)
	ObserveLookup(result string, duration time.Duration)
	ObserveSave(owner string, err error)
	ObserveImport(source string, err error)
}

type nopRecorder struct{}

func (nopRecorder) ObserveAttendance(Outcome) {}
func (nopRecorder) ObserveLookup(string, time.Duration) {}
func (nopRecorder) ObserveSave(string, error) {}
func (nopRecorder) ObserveImport(string, error) {}

func defaultRecorder(r Recorder) Recorder {
	if r != nil {
		return r
	}
	return nopRecorder{}
}
