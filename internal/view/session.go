package view

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"stringline-viewer/internal/clock"
	"stringline-viewer/internal/metrics"
	"stringline-viewer/internal/refresh"
	"stringline-viewer/internal/servicedate"
	"stringline-viewer/internal/transit"
)

// ErrClosed is returned by Show after Close.
var ErrClosed = errors.New("session closed")

// Surface renders datasets. Calls are serialized by the Session.
type Surface interface {
	Update(dataset string, rows any) error
	Fail(err error)
}

// Mounter is implemented by surfaces that need the full snapshot before the
// first dataset of a new identity.
type Mounter interface {
	Mount(s Snapshot) error
}

// Beginner is implemented by surfaces that address their output by
// identity. Begin is called as soon as Show switches identity, before any
// failure or dataset of the new identity is delivered.
type Beginner interface {
	Begin(id transit.Identity)
}

// Session is one mounted chart. Show switches what it displays; every timer
// and fetch started for the previous identity is stopped first, and late
// results for a superseded identity are dropped.
type Session struct {
	src      transit.Source
	calc     *servicedate.Calculator
	policies refresh.Policies
	surface  Surface
	clock    clock.Clock
	metrics  *metrics.Collector
	log      zerolog.Logger

	// showMu serializes Show, SetVisible and Close.
	showMu sync.Mutex

	// mu guards the fields below and every push into surface.
	mu        sync.Mutex
	current   *Lifetime
	refetch   *task
	visible   bool
	fetchedAt time.Time // last committed stringline fetch; zero until loaded
	mounted   bool      // the current identity's snapshot reached the surface
	closed    bool
}

type SessionOption func(*Session)

func WithSessionMetrics(m *metrics.Collector) SessionOption {
	return func(s *Session) { s.metrics = m }
}

func WithSessionLogger(l zerolog.Logger) SessionOption {
	return func(s *Session) { s.log = l }
}

// WithHidden starts the session in the background state.
func WithHidden() SessionOption {
	return func(s *Session) { s.visible = false }
}

func NewSession(src transit.Source, calc *servicedate.Calculator, p refresh.Policies, surface Surface, opts ...SessionOption) *Session {
	s := &Session{
		src:      src,
		calc:     calc,
		policies: p,
		surface:  surface,
		clock:    calc.Clock(),
		log:      zerolog.Nop(),
		visible:  true,
	}
	for _, o := range opts {
		o(s)
	}
	s.metrics.SessionOpened()
	return s
}

// Current returns the identity on display.
func (s *Session) Current() (transit.Identity, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return transit.Identity{}, false
	}
	return s.current.Identity(), true
}

// Show displays id. It returns once the previous identity's tasks have
// stopped; loading id continues in the background.
func (s *Session) Show(id transit.Identity) error {
	s.showMu.Lock()
	defer s.showMu.Unlock()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	s.mu.Unlock()

	s.detach()

	lt := NewLifetime(context.Background(), id)
	s.mu.Lock()
	s.current = lt
	s.fetchedAt = time.Time{}
	s.mounted = false
	if b, ok := s.surface.(Beginner); ok {
		b.Begin(id)
	}
	s.mu.Unlock()

	s.log.Debug().Stringer("identity", id).Msg("show")
	lt.Go(func(ctx context.Context) { s.load(ctx, lt) })
	lt.spawn(func(ctx context.Context, _ *task) { s.nowMarkLoop(ctx, lt) })
	return nil
}

// SetVisible pauses interval re-fetching while the view is in the
// background. Becoming visible revalidates stale data and resumes it.
func (s *Session) SetVisible(visible bool) {
	s.showMu.Lock()
	defer s.showMu.Unlock()

	s.mu.Lock()
	if s.visible == visible || s.closed {
		s.mu.Unlock()
		return
	}
	s.visible = visible
	lt, fetchedAt := s.current, s.fetchedAt
	s.mu.Unlock()

	if !visible {
		s.stopRefetch()
		return
	}
	if lt == nil || fetchedAt.IsZero() {
		return
	}
	p := s.policies.Stringlines(s.calc, lt.Identity().ServiceDate)
	if !p.Live() {
		return
	}
	s.startRefetch(lt, p, p.IsStale(fetchedAt, s.clock.Now()))
}

// Close unmounts the chart; no task survives it. Close is idempotent.
func (s *Session) Close() {
	s.showMu.Lock()
	defer s.showMu.Unlock()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	s.detach()
	s.metrics.SessionClosed()
}

// detach releases the current lifetime, waiting for all of its tasks.
func (s *Session) detach() {
	s.mu.Lock()
	old := s.current
	s.current = nil
	s.refetch = nil
	s.mu.Unlock()
	if old != nil {
		old.Release()
	}
}

// commit runs fn under the surface lock if lt is still the lifetime on
// display.
func (s *Session) commit(lt *Lifetime, fn func()) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current != lt || !lt.Alive() {
		s.metrics.SupersededResult()
		return false
	}
	fn()
	return true
}

func (s *Session) push(dataset string, rows any) {
	if err := s.surface.Update(dataset, rows); err != nil {
		s.log.Warn().Err(err).Str("dataset", dataset).Msg("surface update failed")
	}
}

func (s *Session) load(ctx context.Context, lt *Lifetime) {
	id := lt.Identity()
	snap, err := Load(ctx, s.src, s.calc, s.policies, id)
	if err != nil {
		if ctx.Err() != nil {
			s.metrics.SupersededResult()
			return
		}
		s.log.Error().Err(err).Stringer("identity", id).Msg("load failed")
		s.commit(lt, func() { s.surface.Fail(err) })
		return
	}

	ok := s.commit(lt, func() {
		if m, isMounter := s.surface.(Mounter); isMounter {
			if err := m.Mount(snap); err != nil {
				s.log.Warn().Err(err).Msg("surface mount failed")
			}
		}
		for _, ds := range snap.Datasets() {
			s.push(ds.Name, ds.Rows)
		}
		s.fetchedAt = s.clock.Now()
		s.mounted = true
	})
	if !ok || !snap.Policy.Live() {
		return
	}
	s.mu.Lock()
	visible := s.visible
	s.mu.Unlock()
	if visible {
		s.startRefetch(lt, snap.Policy, false)
	}
}

func (s *Session) nowMarkLoop(ctx context.Context, lt *Lifetime) {
	tk := s.clock.NewTicker(s.policies.NowMarkInterval)
	defer tk.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-tk.C():
			s.metrics.NowMarkTick()
			rows := NowMark(s.calc)
			// the marker only makes sense on a chart that has been mounted
			s.commit(lt, func() {
				if s.mounted {
					s.push(DatasetNowMark, rows)
				}
			})
		}
	}
}

// startRefetch starts the interval re-fetch of lt unless one is running.
// With immediate set the first fetch happens right away.
func (s *Session) startRefetch(lt *Lifetime, p refresh.Policy, immediate bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current != lt || s.refetch != nil || !s.visible {
		return
	}
	s.refetch = lt.spawn(func(ctx context.Context, t *task) {
		s.refetchLoop(ctx, lt, t, p.Interval, immediate)
	})
}

func (s *Session) stopRefetch() {
	s.mu.Lock()
	t := s.refetch
	s.refetch = nil
	s.mu.Unlock()
	if t != nil {
		t.stop()
	}
}

func (s *Session) refetchLoop(ctx context.Context, lt *Lifetime, self *task, interval time.Duration, immediate bool) {
	id := lt.Identity()
	if immediate {
		s.refetchOnce(ctx, lt)
	}
	tk := s.clock.NewTicker(interval)
	defer tk.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-tk.C():
			s.metrics.RefetchTick()
			if !s.calc.IsCurrentServiceDay(id.ServiceDate) {
				s.log.Info().Stringer("identity", id).Msg("service day ended, stopping refresh")
				s.mu.Lock()
				if s.refetch == self {
					s.refetch = nil
				}
				s.mu.Unlock()
				return
			}
			s.refetchOnce(ctx, lt)
		}
	}
}

// refetchOnce reads fresh stringline data. Failures are logged and retried
// on the next tick; the last good data stays on the chart.
func (s *Session) refetchOnce(ctx context.Context, lt *Lifetime) {
	id := lt.Identity()
	evs, err := transit.RefetchStringlines(ctx, s.src, id.ConfigurationID, id.ServiceDate)
	if err != nil {
		if ctx.Err() == nil {
			s.log.Warn().Err(err).Stringer("identity", id).Msg("refresh failed")
		}
		return
	}
	if evs == nil {
		evs = []transit.Event{}
	}
	s.commit(lt, func() {
		s.push(DatasetStringlines, evs)
		s.fetchedAt = s.clock.Now()
	})
}
