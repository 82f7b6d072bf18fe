package publisher

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"slices"
	"sync"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stringline-viewer/internal/clock"
	"stringline-viewer/internal/refresh"
	"stringline-viewer/internal/servicedate"
	"stringline-viewer/internal/transit"
	"stringline-viewer/internal/transit/transittest"
	"stringline-viewer/internal/view"
)

type message struct {
	subject string
	body    string
}

type fakePublisher struct {
	mu   sync.Mutex
	msgs []message
}

func (f *fakePublisher) subjects() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.msgs))
	for i, m := range f.msgs {
		out[i] = m.subject
	}
	return out
}

func (f *fakePublisher) Publish(subject string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.msgs = append(f.msgs, message{subject, string(b)})
	return nil
}

var testID = transit.Identity{ConfigurationID: 300, ServiceDate: servicedate.NewDate(2024, time.March, 9)}

func TestSubjectToken(t *testing.T) {
	assert.Equal(t, "a_b_c", subjectToken(" a.b c "))
	assert.Equal(t, "_", subjectToken(""))
	assert.Equal(t, "x_y_", subjectToken("x*y>"))
}

func TestSurfacePublishesDatasets(t *testing.T) {
	fp := &fakePublisher{}
	s := NewSurface(fp, "stringline", testID)

	require.NoError(t, s.Update(view.DatasetNowMark, []view.NowMarkRow{{DT: "2024-03-09 12:00:00"}}))
	s.Fail(fmt.Errorf("load: %w", transit.ErrNotFound))

	require.Len(t, fp.msgs, 2)
	assert.Equal(t, "stringline.300.2024-03-09.nowMark", fp.msgs[0].subject)
	assert.JSONEq(t, `[{"dt":"2024-03-09 12:00:00"}]`, fp.msgs[0].body)
	assert.Equal(t, "stringline.300.2024-03-09.error", fp.msgs[1].subject)
	assert.JSONEq(t, `{"notFound":true,"message":"Configuration not found."}`, fp.msgs[1].body)
}

func TestSurfaceMountSwitchesIdentity(t *testing.T) {
	fp := &fakePublisher{}
	s := NewSurface(fp, "stringline", testID)
	next := transit.Identity{ConfigurationID: 400, ServiceDate: servicedate.NewDate(2024, time.March, 8)}

	require.NoError(t, s.Mount(view.Snapshot{Identity: next, Title: "Blue Line on 2024-03-08"}))
	require.NoError(t, s.Update(view.DatasetStringlines, []transit.Event{}))

	require.Len(t, fp.msgs, 2)
	assert.Equal(t, "stringline.400.2024-03-08.chart", fp.msgs[0].subject)
	assert.Contains(t, fp.msgs[0].body, `"title":"Blue Line on 2024-03-08"`)
	assert.Equal(t, "stringline.400.2024-03-08.stringlineData", fp.msgs[1].subject)
}

func TestSurfaceGenericFailure(t *testing.T) {
	fp := &fakePublisher{}
	s := NewSurface(fp, "stringline", testID)
	s.Fail(errors.New("backend request failed"))
	require.Len(t, fp.msgs, 1)
	assert.JSONEq(t, `{"notFound":false,"message":"backend request failed"}`, fp.msgs[0].body)
}

func TestSessionFailureAfterSwitchUsesNewSubjects(t *testing.T) {
	loc, err := time.LoadLocation(servicedate.DefaultZone)
	require.NoError(t, err)
	fc := clock.NewFake(time.Date(2024, 3, 10, 12, 0, 0, 0, loc))
	calc, err := servicedate.New(loc, servicedate.DefaultDayStart, fc)
	require.NoError(t, err)
	src := transittest.New()

	fp := &fakePublisher{}
	surface := NewSurface(fp, "stringline", testID)
	session := view.NewSession(src, calc, refresh.Defaults(), surface)
	defer session.Close()

	require.NoError(t, session.Show(testID))
	require.Eventually(t, func() bool {
		return slices.Contains(fp.subjects(), "stringline.300.2024-03-09.nowMark")
	}, 2*time.Second, time.Millisecond)
	before := len(fp.subjects())

	src.SetErr(errors.New("backend request failed"))
	next := transit.Identity{ConfigurationID: 300, ServiceDate: servicedate.NewDate(2024, time.March, 10)}
	require.NoError(t, session.Show(next))
	require.Eventually(t, func() bool {
		return slices.Contains(fp.subjects(), "stringline.300.2024-03-10.error")
	}, 2*time.Second, time.Millisecond)

	require.Eventually(t, func() bool { return fc.ActiveTickers() == 1 }, 2*time.Second, time.Millisecond)
	fc.Advance(time.Minute)
	time.Sleep(20 * time.Millisecond)

	after := fp.subjects()[before:]
	assert.Equal(t, []string{"stringline.300.2024-03-10.error"}, after)
}

// TestNATSPublisherRoundTrip runs against a live server when NATS_URL is set.
func TestNATSPublisherRoundTrip(t *testing.T) {
	url := os.Getenv("NATS_URL")
	if url == "" {
		t.Skip("NATS_URL not set")
	}
	p, err := NewNATSPublisher(url, WithSubjectLogging(true), WithPublisherLogger(zerolog.Nop()))
	require.NoError(t, err)
	defer p.Close()

	sub, err := nats.Connect(url)
	require.NoError(t, err)
	defer sub.Close()
	ch := make(chan *nats.Msg, 1)
	s, err := sub.ChanSubscribe("stringline-test.>", ch)
	require.NoError(t, err)
	defer s.Unsubscribe()
	require.NoError(t, sub.Flush())

	surface := NewSurface(p, "stringline-test", testID)
	require.NoError(t, surface.Update(view.DatasetNowMark, []view.NowMarkRow{{DT: "x"}}))

	select {
	case m := <-ch:
		assert.Equal(t, "stringline-test.300.2024-03-09.nowMark", m.Subject)
		assert.JSONEq(t, `[{"dt":"x"}]`, string(m.Data))
		assert.Equal(t, "application/json", m.Header.Get("Content-Type"))
	case <-time.After(5 * time.Second):
		t.Fatal("no message received")
	}
}
