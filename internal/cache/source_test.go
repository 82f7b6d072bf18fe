package cache

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stringline-viewer/internal/clock"
	"stringline-viewer/internal/metrics"
	"stringline-viewer/internal/refresh"
	"stringline-viewer/internal/servicedate"
	"stringline-viewer/internal/transit"
	"stringline-viewer/internal/transit/transittest"
)

var (
	liveDay = servicedate.NewDate(2024, time.March, 9)
	pastDay = servicedate.NewDate(2024, time.March, 1)
)

type fixture struct {
	fc      *clock.Fake
	src     *transittest.Source
	store   *MemoryStore
	metrics *metrics.Collector
	cache   *Source
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	loc, err := time.LoadLocation(servicedate.DefaultZone)
	require.NoError(t, err)
	fc := clock.NewFake(time.Date(2024, 3, 9, 12, 0, 0, 0, loc))
	calc, err := servicedate.New(loc, servicedate.DefaultDayStart, fc)
	require.NoError(t, err)

	f := &fixture{fc: fc, src: transittest.New(), store: NewMemoryStore(fc, 0)}
	f.metrics = metrics.NewCollector(refresh.Defaults())
	f.cache = NewSource(f.src, f.store, calc, refresh.Defaults(), WithMetrics(f.metrics))
	return f
}

func TestLiveStringlinesGoStaleAfterOneMinute(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := transit.Identity{ConfigurationID: 300, ServiceDate: liveDay}
	f.src.SetEvents(id, []transit.Event{{TripID: "T1", StopID: "MCAR"}})

	got, err := f.cache.Stringlines(ctx, 300, liveDay)
	require.NoError(t, err)
	require.Len(t, got, 1)

	f.fc.Advance(59 * time.Second)
	_, err = f.cache.Stringlines(ctx, 300, liveDay)
	require.NoError(t, err)
	assert.Equal(t, 1, f.src.Calls("Stringlines"))

	f.fc.Advance(time.Second)
	_, err = f.cache.Stringlines(ctx, 300, liveDay)
	require.NoError(t, err)
	assert.Equal(t, 2, f.src.Calls("Stringlines"))

	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.CacheHits.WithLabelValues(QueryStringlines)))
	assert.Equal(t, 2.0, testutil.ToFloat64(f.metrics.CacheMisses.WithLabelValues(QueryStringlines)))
	assert.Equal(t, 2.0, testutil.ToFloat64(f.metrics.Fetches.WithLabelValues(QueryStringlines, metrics.OutcomeOK)))
}

func TestPastStringlinesNeverStale(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.cache.Stringlines(ctx, 300, pastDay)
	require.NoError(t, err)
	f.fc.Advance(72 * time.Hour)
	_, err = f.cache.Stringlines(ctx, 300, pastDay)
	require.NoError(t, err)
	assert.Equal(t, 1, f.src.Calls("Stringlines"))
}

func TestRefetchBypassesFreshness(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := transit.Identity{ConfigurationID: 300, ServiceDate: liveDay}

	_, err := f.cache.Stringlines(ctx, 300, liveDay)
	require.NoError(t, err)

	f.src.SetEvents(id, []transit.Event{{TripID: "T2"}})
	got, err := transit.RefetchStringlines(ctx, f.cache, 300, liveDay)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "T2", got[0].TripID)
	assert.Equal(t, 2, f.src.Calls("Stringlines"))

	// the refetched value now serves readers
	got, err = f.cache.Stringlines(ctx, 300, liveDay)
	require.NoError(t, err)
	assert.Equal(t, "T2", got[0].TripID)
	assert.Equal(t, 2, f.src.Calls("Stringlines"))
}

func TestSlowReadDoesNotOverwriteNewerRefetch(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := transit.Identity{ConfigurationID: 300, ServiceDate: liveDay}
	f.src.SetEvents(id, []transit.Event{{TripID: "old"}})

	release := make(chan struct{})
	var first sync.Once
	f.src.StringlinesHook = func(ctx context.Context, _ transit.Identity) error {
		slow := false
		first.Do(func() { slow = true })
		if slow {
			<-release
			// the upstream answers with what it had when the read began
			f.src.SetEvents(id, []transit.Event{{TripID: "old"}})
		}
		return nil
	}

	done := make(chan []transit.Event, 1)
	go func() {
		got, err := f.cache.Stringlines(ctx, 300, liveDay)
		assert.NoError(t, err)
		done <- got
	}()
	require.Eventually(t, func() bool { return f.src.Calls("Stringlines") == 1 }, time.Second, time.Millisecond)

	f.fc.Advance(10 * time.Second)
	f.src.SetEvents(id, []transit.Event{{TripID: "new"}})
	got, err := f.cache.RefetchStringlines(ctx, 300, liveDay)
	require.NoError(t, err)
	assert.Equal(t, "new", got[0].TripID)

	close(release)
	assert.Equal(t, "old", (<-done)[0].TripID)

	got, err = f.cache.Stringlines(ctx, 300, liveDay)
	require.NoError(t, err)
	assert.Equal(t, "new", got[0].TripID)
	assert.Equal(t, 2, f.src.Calls("Stringlines"))
}

func TestFixedPolicies(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.cache.Stations(ctx, liveDay)
	require.NoError(t, err)
	_, err = f.cache.Routes(ctx, liveDay)
	require.NoError(t, err)
	_, err = f.cache.Configurations(ctx)
	require.NoError(t, err)
	rng, err := f.cache.ServiceDateRange(ctx)
	require.NoError(t, err)
	assert.Equal(t, servicedate.NewDate(2024, time.January, 1), rng.Min)

	f.fc.Advance(2 * time.Minute)
	_, _ = f.cache.Stations(ctx, liveDay)
	_, _ = f.cache.Routes(ctx, liveDay)
	_, _ = f.cache.Configurations(ctx)
	_, _ = f.cache.ServiceDateRange(ctx)
	assert.Equal(t, 1, f.src.Calls("Stations"))
	assert.Equal(t, 1, f.src.Calls("Routes"))
	assert.Equal(t, 1, f.src.Calls("Configurations"))
	assert.Equal(t, 2, f.src.Calls("ServiceDateRange"))

	f.fc.Advance(24 * time.Hour)
	_, _ = f.cache.Stations(ctx, liveDay)
	assert.Equal(t, 2, f.src.Calls("Stations"))
}

func TestStationsKeyedByServiceDate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, _ = f.cache.Stations(ctx, liveDay)
	_, _ = f.cache.Stations(ctx, pastDay)
	assert.Equal(t, 2, f.src.Calls("Stations"))
}

func TestNotFoundIsNotCached(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.cache.ConfigurationDetails(ctx, 999)
	assert.ErrorIs(t, err, transit.ErrNotFound)
	_, err = f.cache.ConfigurationDetails(ctx, 999)
	assert.ErrorIs(t, err, transit.ErrNotFound)
	assert.Equal(t, 2, f.src.Calls("ConfigurationDetails"))
	assert.Equal(t, 2.0, testutil.ToFloat64(f.metrics.Fetches.WithLabelValues(QueryConfigurationDetails, metrics.OutcomeNotFound)))

	cd, err := f.cache.ConfigurationDetails(ctx, 300)
	require.NoError(t, err)
	assert.Equal(t, []string{"RICH", "MCAR", "MLBR"}, cd.Stations)
}

func TestUpstreamErrorPropagates(t *testing.T) {
	f := newFixture(t)
	boom := errors.New("upstream down")
	f.src.SetErr(boom)
	_, err := f.cache.Routes(context.Background(), liveDay)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, f.store.Len())
}

func TestCallerCancellationReturnsPromptly(t *testing.T) {
	f := newFixture(t)
	release := make(chan struct{})
	f.src.StringlinesHook = func(ctx context.Context, id transit.Identity) error {
		select {
		case <-release:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := f.cache.Stringlines(ctx, 300, liveDay)
		done <- err
	}()
	require.Eventually(t, func() bool { return f.src.Calls("Stringlines") == 1 }, time.Second, time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("cancelled caller did not return")
	}
}
