package transit_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stringline-viewer/internal/servicedate"
	"stringline-viewer/internal/transit"
	"stringline-viewer/internal/transit/transittest"
)

type refetching struct {
	*transittest.Source
	refetches int
}

func (r *refetching) RefetchStringlines(ctx context.Context, id int, d servicedate.Date) ([]transit.Event, error) {
	r.refetches++
	return r.Source.Stringlines(ctx, id, d)
}

func TestRefetchStringlinesPrefersRefetcher(t *testing.T) {
	d := servicedate.Date{Year: 2024, Month: time.May, Day: 1}

	plain := transittest.New()
	_, err := transit.RefetchStringlines(context.Background(), plain, 300, d)
	require.NoError(t, err)
	assert.Equal(t, 1, plain.Calls("Stringlines"))

	r := &refetching{Source: transittest.New()}
	_, err = transit.RefetchStringlines(context.Background(), r, 300, d)
	require.NoError(t, err)
	assert.Equal(t, 1, r.refetches)
}

func TestParseConfigurationID(t *testing.T) {
	id, err := transit.ParseConfigurationID("300")
	require.NoError(t, err)
	assert.Equal(t, 300, id)

	for _, bad := range []string{"", "abc", "-1", "3.5"} {
		_, err := transit.ParseConfigurationID(bad)
		assert.Error(t, err, bad)
	}
}

func TestIdentityString(t *testing.T) {
	id := transit.Identity{ConfigurationID: 300, ServiceDate: servicedate.Date{Year: 2024, Month: time.March, Day: 9}}
	assert.Equal(t, "300/2024-03-09", id.String())
}
