package view

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stringline-viewer/internal/clock"
	"stringline-viewer/internal/refresh"
	"stringline-viewer/internal/servicedate"
	"stringline-viewer/internal/transit"
	"stringline-viewer/internal/transit/transittest"
)

func TestLoadBuildsSnapshot(t *testing.T) {
	fc := clock.NewFake(pacificTime(t, 2024, 3, 9, 12, 0, 0))
	calc, err := servicedate.New(fc.Now().Location(), servicedate.DefaultDayStart, fc)
	require.NoError(t, err)
	src := transittest.New()
	src.SetEvents(liveID, []transit.Event{{TripID: "T1", StopID: "MCAR"}})

	snap, err := Load(context.Background(), src, calc, refresh.Defaults(), liveID)
	require.NoError(t, err)

	assert.Equal(t, "Red Line on 2024-03-09", snap.Title)
	assert.Equal(t, []transit.StationSort{{StopID: "RICH", SortOrder: 0}, {StopID: "MCAR", SortOrder: 1}, {StopID: "MLBR", SortOrder: 2}}, snap.StationSort)
	assert.Len(t, snap.StationNames, 3)
	assert.Len(t, snap.Routes, 1)
	assert.Len(t, snap.Stringlines, 1)
	assert.Equal(t, "2024-03-09T03:00:00", snap.Range.Start.String())
	assert.Equal(t, "2024-03-10T02:59:59", snap.Range.End.String())
	assert.Equal(t, refresh.Policy{StaleTime: time.Minute, Interval: time.Minute}, snap.Policy)
	assert.Equal(t, []NowMarkRow{{DT: "2024-03-09 12:00:00"}}, snap.NowMark)

	b, err := json.Marshal(snap)
	require.NoError(t, err)
	var m map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(b, &m))
	assert.JSONEq(t, `{"staleTimeMs":60000,"intervalMs":60000}`, string(m["policy"]))
	assert.JSONEq(t, `{"start":"2024-03-09T03:00:00","end":"2024-03-10T02:59:59"}`, string(m["range"]))
}

func TestLoadEmptyStringlinesIsEmptySlice(t *testing.T) {
	fc := clock.NewFake(pacificTime(t, 2024, 3, 9, 12, 0, 0))
	calc, err := servicedate.New(fc.Now().Location(), servicedate.DefaultDayStart, fc)
	require.NoError(t, err)

	snap, err := Load(context.Background(), transittest.New(), calc, refresh.Defaults(), pastID)
	require.NoError(t, err)
	assert.NotNil(t, snap.Stringlines)
	assert.Equal(t, refresh.Policy{StaleTime: refresh.Forever, Interval: refresh.Disabled}, snap.Policy)
}

func TestLifetimeRelease(t *testing.T) {
	lt := NewLifetime(context.Background(), liveID)
	assert.True(t, lt.Alive())

	stopped := make(chan struct{})
	require.True(t, lt.Go(func(ctx context.Context) {
		<-ctx.Done()
		close(stopped)
	}))

	lt.Release()
	select {
	case <-stopped:
	default:
		t.Fatal("Release returned before task stopped")
	}
	assert.False(t, lt.Alive())
	assert.False(t, lt.Go(func(context.Context) { t.Error("ran after release") }))
	lt.Release()
}

func TestTaskStopsIndependently(t *testing.T) {
	lt := NewLifetime(context.Background(), liveID)
	defer lt.Release()

	tk := lt.spawn(func(ctx context.Context, _ *task) { <-ctx.Done() })
	require.NotNil(t, tk)
	tk.stop()
	assert.True(t, lt.Alive())
}
