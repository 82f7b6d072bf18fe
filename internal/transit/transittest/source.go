// Package transittest provides an in-memory transit.Source for tests.
package transittest

import (
	"context"
	"sync"
	"time"

	"stringline-viewer/internal/servicedate"
	"stringline-viewer/internal/transit"
)

// Source serves canned datasets and counts calls per method.
type Source struct {
	mu sync.Mutex

	configs  []transit.Configuration
	rng      transit.ServiceDateRange
	stations []transit.Station
	routes   []transit.Route
	details  map[int]transit.ConfigurationDetails
	events   map[transit.Identity][]transit.Event
	err      error
	calls    map[string]int

	// StringlinesHook runs before Stringlines returns; a non-nil error is
	// returned to the caller. Tests use it to block or fail a fetch.
	StringlinesHook func(ctx context.Context, id transit.Identity) error
}

// New returns a Source with configurations 300 "Red" (three stations) and
// 400 "Blue".
func New() *Source {
	return &Source{
		configs: []transit.Configuration{{ID: 300, Name: "Red"}, {ID: 400, Name: "Blue"}},
		rng: transit.ServiceDateRange{
			Min: servicedate.Date{Year: 2024, Month: time.January, Day: 1},
			Max: servicedate.Date{Year: 2024, Month: time.December, Day: 31},
		},
		stations: []transit.Station{
			{StopID: "RICH", StopName: "Richmond"},
			{StopID: "MCAR", StopName: "MacArthur"},
			{StopID: "MLBR", StopName: "Millbrae"},
		},
		routes: []transit.Route{{ShortName: "Red", Color: "ff0000", TextColor: "ffffff"}},
		details: map[int]transit.ConfigurationDetails{
			300: {ID: 300, Name: "Red", Stations: []string{"RICH", "MCAR", "MLBR"}},
			400: {ID: 400, Name: "Blue", Stations: []string{"MCAR"}},
		},
		events: map[transit.Identity][]transit.Event{},
		calls:  map[string]int{},
	}
}

// SetEvents replaces the events served for id.
func (s *Source) SetEvents(id transit.Identity, events []transit.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events[id] = events
}

// SetErr makes every call fail with err; nil restores normal behaviour.
func (s *Source) SetErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

func (s *Source) SetRange(r transit.ServiceDateRange) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rng = r
}

// Calls returns how many times method was invoked.
func (s *Source) Calls(method string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[method]
}

func (s *Source) enter(method string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls[method]++
	return s.err
}

func (s *Source) Configurations(ctx context.Context) ([]transit.Configuration, error) {
	if err := s.enter("Configurations"); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]transit.Configuration(nil), s.configs...), nil
}

func (s *Source) ServiceDateRange(ctx context.Context) (transit.ServiceDateRange, error) {
	if err := s.enter("ServiceDateRange"); err != nil {
		return transit.ServiceDateRange{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rng, nil
}

func (s *Source) Stations(ctx context.Context, d servicedate.Date) ([]transit.Station, error) {
	if err := s.enter("Stations"); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]transit.Station(nil), s.stations...), nil
}

func (s *Source) Routes(ctx context.Context, d servicedate.Date) ([]transit.Route, error) {
	if err := s.enter("Routes"); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]transit.Route(nil), s.routes...), nil
}

func (s *Source) ConfigurationDetails(ctx context.Context, configurationID int) (transit.ConfigurationDetails, error) {
	if err := s.enter("ConfigurationDetails"); err != nil {
		return transit.ConfigurationDetails{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.details[configurationID]
	if !ok {
		return transit.ConfigurationDetails{}, transit.ErrNotFound
	}
	return d, nil
}

func (s *Source) Stringlines(ctx context.Context, configurationID int, d servicedate.Date) ([]transit.Event, error) {
	if err := s.enter("Stringlines"); err != nil {
		return nil, err
	}
	id := transit.Identity{ConfigurationID: configurationID, ServiceDate: d}
	if s.StringlinesHook != nil {
		if err := s.StringlinesHook(ctx, id); err != nil {
			return nil, err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]transit.Event(nil), s.events[id]...), nil
}
