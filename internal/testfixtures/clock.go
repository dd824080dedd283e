package testfixtures

import (
	"sync"
	"time"

	"github.com/inscribcordoba/attendance/internal/persistence"
)

// Cordoba is a fixed UTC-3 zone so fixtures do not depend on the tz database.
var Cordoba = time.FixedZone("ART", -3*60*60)

var referenceTime = time.Date(2024, time.March, 1, 10, 15, 30, 0, Cordoba)

// ReferenceTime returns the canonical baseline timestamp used by fixtures:
// the morning of the first session of the sample course.
func ReferenceTime() time.Time {
	return referenceTime
}

// Clock provides a controllable time source for tests.
type Clock struct {
	mu      sync.Mutex
	current time.Time
}

// NewClock returns a clock initialised to start, or ReferenceTime when start is zero.
func NewClock(start time.Time) *Clock {
	if start.IsZero() {
		start = ReferenceTime()
	}
	return &Clock{current: start}
}

// Now returns the current instant tracked by the clock.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// NowFunc exposes Now as a function suitable for dependency injection.
func (c *Clock) NowFunc() func() time.Time {
	if c == nil {
		return time.Now
	}
	return c.Now
}

// Today returns the calendar date of the clock in the Cordoba zone.
func (c *Clock) Today() persistence.Date {
	return persistence.DateOf(c.Now().In(Cordoba))
}

// SetDate moves the clock to 10:00 on date, keeping the Cordoba zone.
func (c *Clock) SetDate(date persistence.Date) {
	t := date.Time()
	c.Set(time.Date(t.Year(), t.Month(), t.Day(), 10, 0, 0, 0, Cordoba))
}

// Set updates the clock to the provided time.
func (c *Clock) Set(t time.Time) {
	c.mu.Lock()
	c.current = t
	c.mu.Unlock()
}

// Advance moves the clock forward by d and returns the updated time.
func (c *Clock) Advance(d time.Duration) time.Time {
	c.mu.Lock()
	c.current = c.current.Add(d)
	updated := c.current
	c.mu.Unlock()
	return updated
}
