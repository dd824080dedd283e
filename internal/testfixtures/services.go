package testfixtures

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/inscribcordoba/attendance/internal/application"
	"github.com/inscribcordoba/attendance/internal/identity"
	"github.com/inscribcordoba/attendance/internal/roster"
)

// LookupStub is a scripted identity.Lookuper that records its calls.
type LookupStub struct {
	mu      sync.Mutex
	people  map[string]identity.Person
	err     error
	calls   []string
	release chan struct{}
}

// NewLookupStub returns a stub that knows the given people.
func NewLookupStub(people ...identity.Person) *LookupStub {
	stub := &LookupStub{people: make(map[string]identity.Person)}
	for _, p := range people {
		stub.people[p.IdentityNumber] = p
	}
	return stub
}

// FailWith makes every following lookup fail with err.
func (s *LookupStub) FailWith(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

// Block makes lookups wait until the returned function is called.
func (s *LookupStub) Block() func() {
	ch := make(chan struct{})
	s.mu.Lock()
	s.release = ch
	s.mu.Unlock()
	var once sync.Once
	return func() { once.Do(func() { close(ch) }) }
}

// Lookup implements identity.Lookuper.
func (s *LookupStub) Lookup(ctx context.Context, identityNumber string) (identity.Person, error) {
	s.mu.Lock()
	s.calls = append(s.calls, identityNumber)
	release, err := s.release, s.err
	person, ok := s.people[identityNumber]
	s.mu.Unlock()

	if release != nil {
		select {
		case <-release:
		case <-ctx.Done():
			return identity.Person{}, identity.ErrServiceUnavailable
		}
	}
	if err != nil {
		return identity.Person{}, err
	}
	if !ok {
		return identity.Person{}, &identity.RejectedError{Code: "1", Message: "CUIL inexistente"}
	}
	return person, nil
}

// Calls returns the identity numbers looked up so far.
func (s *LookupStub) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

// ServiceFactory assists tests with constructing application services using
// deterministic identifiers and clocks.
type ServiceFactory struct {
	Clock       *Clock
	ProposalIDs *ProposalIDs
	Lookup      *LookupStub
	Logger      *slog.Logger
}

// ServiceFactoryOption configures a ServiceFactory instance.
type ServiceFactoryOption func(*ServiceFactory)

// NewServiceFactory constructs a ServiceFactory with defaults.
func NewServiceFactory(opts ...ServiceFactoryOption) *ServiceFactory {
	factory := &ServiceFactory{
		Clock:       NewClock(time.Time{}),
		ProposalIDs: NewProposalIDs(""),
		Lookup:      NewLookupStub(),
	}
	for _, opt := range opts {
		opt(factory)
	}
	return factory
}

// WithClock overrides the clock used by the factory.
func WithClock(clock *Clock) ServiceFactoryOption {
	return func(factory *ServiceFactory) {
		factory.Clock = clock
	}
}

// WithLookup overrides the identity lookup stub.
func WithLookup(stub *LookupStub) ServiceFactoryOption {
	return func(factory *ServiceFactory) {
		factory.Lookup = stub
	}
}

// NewAttendanceService builds an attendance service wired to the factory clock and stub.
func (f *ServiceFactory) NewAttendanceService(recorder application.Recorder) *application.AttendanceService {
	return application.NewAttendanceService(application.AttendanceDeps{
		Lookup:      f.Lookup,
		Proposals:   application.NewProposalCache(time.Minute, 64, f.Clock.NowFunc()),
		IDGenerator: f.ProposalIDs.Issue,
		Now:         f.Clock.NowFunc(),
		Location:    Cordoba,
		Recorder:    recorder,
		Logger:      f.Logger,
	})
}

// NewCourseService builds a course service with the default room catalog.
func (f *ServiceFactory) NewCourseService(recorder application.Recorder) *application.CourseService {
	return application.NewCourseService(application.CourseDeps{
		Rooms:         roster.DefaultRoomCatalog(),
		PublicBaseURL: "https://inscribcordoba.test",
		Now:           f.Clock.NowFunc(),
		Location:      Cordoba,
		Recorder:      recorder,
		Logger:        f.Logger,
	})
}
