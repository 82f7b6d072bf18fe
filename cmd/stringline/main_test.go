package main

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stringline-viewer/internal/clock"
	"stringline-viewer/internal/servicedate"
)

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestServiceDateCommand(t *testing.T) {
	out, err := runCLI(t, "service-date", "2024-03-09T11:00:00Z")
	require.NoError(t, err)

	var got map[string]json.RawMessage
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.JSONEq(t, `"2024-03-09T03:00:00-08:00"`, string(got["instant"]))
	assert.JSONEq(t, `"2024-03-09"`, string(got["serviceDate"]))
	assert.JSONEq(t, `false`, string(got["live"]))
	assert.JSONEq(t, `{"start":"2024-03-09T03:00:00","end":"2024-03-10T02:59:59"}`, string(got["range"]))
	assert.JSONEq(t, `{"staleTimeMs":null,"intervalMs":false}`, string(got["policy"]))
}

func TestServiceDateCommandBeforeDayStart(t *testing.T) {
	out, err := runCLI(t, "service-date", "2024-03-09T10:59:59Z")
	require.NoError(t, err)
	assert.Contains(t, out, `"serviceDate": "2024-03-08"`)

	out, err = runCLI(t, "service-date", "--day-start", "04:00:00", "2024-03-09T11:30:00Z")
	require.NoError(t, err)
	assert.Contains(t, out, `"serviceDate": "2024-03-08"`)
}

func TestServiceDateCommandErrors(t *testing.T) {
	_, err := runCLI(t, "service-date", "yesterday")
	assert.ErrorContains(t, err, "invalid instant")

	_, err = runCLI(t, "service-date", "--zone", "Mars/Olympus", "2024-03-09T11:00:00Z")
	assert.ErrorContains(t, err, "invalid zone")

	_, err = runCLI(t, "service-date", "a", "b")
	assert.Error(t, err)
}

func TestResolveDate(t *testing.T) {
	loc, err := time.LoadLocation(servicedate.DefaultZone)
	require.NoError(t, err)
	calc, err := servicedate.New(loc, servicedate.DefaultDayStart, clock.NewFake(time.Date(2024, 3, 12, 1, 0, 0, 0, loc)))
	require.NoError(t, err)

	d, follow, err := resolveDate(calc, "today")
	require.NoError(t, err)
	assert.True(t, follow)
	assert.Equal(t, servicedate.NewDate(2024, time.March, 11), d)

	d, follow, err = resolveDate(calc, "2024-02-29")
	require.NoError(t, err)
	assert.False(t, follow)
	assert.Equal(t, servicedate.NewDate(2024, time.February, 29), d)

	_, _, err = resolveDate(calc, "2024-02-30")
	assert.ErrorIs(t, err, servicedate.ErrInvalidDate)
}
