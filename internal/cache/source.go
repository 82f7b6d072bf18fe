package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"stringline-viewer/internal/clock"
	"stringline-viewer/internal/metrics"
	"stringline-viewer/internal/refresh"
	"stringline-viewer/internal/servicedate"
	"stringline-viewer/internal/transit"
)

// Query names, also used as metric labels.
const (
	QueryConfigurations       = "configurations"
	QueryServiceDateRange     = "service_date_range"
	QueryStations             = "stations"
	QueryRoutes               = "routes"
	QueryConfigurationDetails = "configuration_details"
	QueryStringlines          = "stringlines"
)

const defaultFetchTimeout = 30 * time.Second

// Source wraps a transit.Source and serves results from a Store while they
// are fresh under the query's refresh policy.
type Source struct {
	src      transit.Source
	store    Store
	calc     *servicedate.Calculator
	policies refresh.Policies
	clock    clock.Clock
	metrics  *metrics.Collector
	log      zerolog.Logger

	group        singleflight.Group
	fetchTimeout time.Duration
}

var (
	_ transit.Source    = (*Source)(nil)
	_ transit.Refetcher = (*Source)(nil)
)

type Option func(*Source)

func WithMetrics(m *metrics.Collector) Option { return func(s *Source) { s.metrics = m } }
func WithLogger(l zerolog.Logger) Option      { return func(s *Source) { s.log = l } }

// WithFetchTimeout bounds a shared upstream read.
func WithFetchTimeout(d time.Duration) Option {
	return func(s *Source) {
		if d > 0 {
			s.fetchTimeout = d
		}
	}
}

func NewSource(src transit.Source, store Store, calc *servicedate.Calculator, p refresh.Policies, opts ...Option) *Source {
	s := &Source{
		src:          src,
		store:        store,
		calc:         calc,
		policies:     p,
		clock:        calc.Clock(),
		log:          zerolog.Nop(),
		fetchTimeout: defaultFetchTimeout,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Source) Configurations(ctx context.Context) ([]transit.Configuration, error) {
	return cached(ctx, s, QueryConfigurations, QueryConfigurations, refresh.Fixed(s.policies.Configurations), false,
		s.src.Configurations)
}

func (s *Source) ServiceDateRange(ctx context.Context) (transit.ServiceDateRange, error) {
	return cached(ctx, s, QueryServiceDateRange, QueryServiceDateRange, refresh.Fixed(s.policies.ServiceDateRange), false,
		s.src.ServiceDateRange)
}

func (s *Source) Stations(ctx context.Context, d servicedate.Date) ([]transit.Station, error) {
	return cached(ctx, s, QueryStations, QueryStations+":"+d.String(), refresh.Fixed(s.policies.Stations), false,
		func(ctx context.Context) ([]transit.Station, error) { return s.src.Stations(ctx, d) })
}

func (s *Source) Routes(ctx context.Context, d servicedate.Date) ([]transit.Route, error) {
	return cached(ctx, s, QueryRoutes, QueryRoutes+":"+d.String(), refresh.Fixed(s.policies.Routes), false,
		func(ctx context.Context) ([]transit.Route, error) { return s.src.Routes(ctx, d) })
}

// ConfigurationDetails does not cache ErrNotFound.
func (s *Source) ConfigurationDetails(ctx context.Context, configurationID int) (transit.ConfigurationDetails, error) {
	key := QueryConfigurationDetails + ":" + strconv.Itoa(configurationID)
	return cached(ctx, s, QueryConfigurationDetails, key, refresh.Fixed(s.policies.ConfigurationDetails), false,
		func(ctx context.Context) (transit.ConfigurationDetails, error) {
			return s.src.ConfigurationDetails(ctx, configurationID)
		})
}

func (s *Source) Stringlines(ctx context.Context, configurationID int, d servicedate.Date) ([]transit.Event, error) {
	return s.stringlines(ctx, configurationID, d, false)
}

// RefetchStringlines always reads through to the wrapped source and stores
// the result.
func (s *Source) RefetchStringlines(ctx context.Context, configurationID int, d servicedate.Date) ([]transit.Event, error) {
	return s.stringlines(ctx, configurationID, d, true)
}

func (s *Source) stringlines(ctx context.Context, configurationID int, d servicedate.Date, force bool) ([]transit.Event, error) {
	key := fmt.Sprintf("%s:%d:%s", QueryStringlines, configurationID, d)
	return cached(ctx, s, QueryStringlines, key, s.policies.Stringlines(s.calc, d), force,
		func(ctx context.Context) ([]transit.Event, error) { return s.src.Stringlines(ctx, configurationID, d) })
}

func cached[T any](ctx context.Context, s *Source, query, key string, p refresh.Policy, force bool, fetch func(context.Context) (T, error)) (T, error) {
	var zero T
	if !force {
		e, ok, err := s.store.Get(ctx, key)
		if err != nil {
			s.log.Warn().Err(err).Str("key", key).Msg("cache read failed")
		}
		if ok && !p.IsStale(e.FetchedAt, s.clock.Now()) {
			var v T
			if err := json.Unmarshal(e.Data, &v); err == nil {
				s.metrics.CacheHit(query)
				return v, nil
			}
			s.log.Warn().Str("key", key).Msg("discarding undecodable cache entry")
		}
		s.metrics.CacheMiss(query)
	}

	// Concurrent callers for the same key share one upstream read. The read
	// is detached from any single caller so one caller leaving does not fail
	// the others; each caller still returns as soon as its own ctx ends.
	flight := "fetch:" + key
	if force {
		flight = "refetch:" + key
	}
	ch := s.group.DoChan(flight, func() (any, error) {
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.fetchTimeout)
		defer cancel()
		start := s.clock.Now()
		v, err := fetch(fctx)
		s.metrics.ObserveFetch(query, metrics.Outcome(err, transit.ErrNotFound), s.clock.Now().Sub(start))
		if err != nil {
			return nil, err
		}
		s.put(fctx, key, p, v, start)
		return v, nil
	})
	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case r := <-ch:
		if r.Err != nil {
			return zero, r.Err
		}
		return r.Val.(T), nil
	}
}

// put stores v as fetched at started, unless the store already holds the
// result of a fetch that started later. Plain reads and forced refetches of
// one key run in separate flights and may complete out of order.
func (s *Source) put(ctx context.Context, key string, p refresh.Policy, v any, started time.Time) {
	if e, ok, err := s.store.Get(ctx, key); err == nil && ok && e.FetchedAt.After(started) {
		s.log.Debug().Str("key", key).Msg("dropping result older than cached entry")
		return
	}
	data, err := json.Marshal(v)
	if err != nil {
		s.log.Warn().Err(err).Str("key", key).Msg("cache encode failed")
		return
	}
	var ttl time.Duration
	if p.StaleTime != refresh.Forever {
		ttl = p.StaleTime
	}
	if err := s.store.Set(ctx, key, Entry{Data: data, FetchedAt: started}, ttl); err != nil {
		s.log.Warn().Err(err).Str("key", key).Msg("cache write failed")
	}
}
