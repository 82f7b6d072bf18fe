// Package servicedate maps instants to transit service dates. A service day
// runs from the day-start boundary (03:00:00 by default) in the reference
// time zone until one second before the same boundary on the next calendar
// day.
package servicedate

import (
	"fmt"
	"time"

	"stringline-viewer/internal/clock"
)

const (
	DefaultZone     = "US/Pacific"
	DefaultDayStart = 3 * time.Hour

	nowMarkLayout = "2006-01-02 15:04:05"
)

// Calculator holds the reference zone, day-start boundary and clock.
type Calculator struct {
	loc      *time.Location
	dayStart time.Duration
	clock    clock.Clock
}

// New builds a Calculator. A nil loc means UTC, a nil clk the real clock.
func New(loc *time.Location, dayStart time.Duration, clk clock.Clock) (*Calculator, error) {
	if dayStart < 0 || dayStart >= 24*time.Hour {
		return nil, fmt.Errorf("day start %s outside [00:00:00, 24:00:00)", dayStart)
	}
	if loc == nil {
		loc = time.UTC
	}
	if clk == nil {
		clk = clock.Real()
	}
	return &Calculator{loc: loc, dayStart: dayStart.Truncate(time.Second), clock: clk}, nil
}

// ParseDayStart parses an HH:MM:SS boundary into an offset from midnight.
func ParseDayStart(s string) (time.Duration, error) {
	t, err := time.Parse("15:04:05", s)
	if err != nil {
		return 0, fmt.Errorf("invalid day start %q: %w", s, err)
	}
	return time.Duration(t.Hour())*time.Hour +
		time.Duration(t.Minute())*time.Minute +
		time.Duration(t.Second())*time.Second, nil
}

// Location is the reference zone service dates are computed in.
func (c *Calculator) Location() *time.Location { return c.loc }

// Clock is the time source behind CurrentServiceDate; schedulers share it so
// a fake clock drives both.
func (c *Calculator) Clock() clock.Clock { return c.clock }

// DayStart is the local time of day at which a service day begins.
func (c *Calculator) DayStart() time.Duration { return c.dayStart }

// ToServiceDate returns the local calendar date of i, or the day before
// when the local time of day is earlier than the boundary.
func (c *Calculator) ToServiceDate(i time.Time) Date {
	local := i.In(c.loc)
	d := DateOf(local)
	if timeOfDay(local) < c.dayStart {
		return d.AddDays(-1)
	}
	return d
}

// CurrentServiceDate is the service date of the clock's current instant.
func (c *Calculator) CurrentServiceDate() Date {
	return c.ToServiceDate(c.clock.Now())
}

// IsCurrentServiceDay reports whether d is the service date in progress,
// i.e. whether its data can still change.
func (c *Calculator) IsCurrentServiceDay(d Date) bool {
	return d == c.CurrentServiceDate()
}

// TimeRange returns [d @ boundary, d+1 @ boundary-1s] as wall-clock values.
func (c *Calculator) TimeRange(d Date) Range {
	return Range{
		Start: d.At(c.dayStart),
		End:   d.At(c.dayStart + 24*time.Hour - time.Second),
	}
}

// StartInstant is the absolute instant at which service day d begins.
func (c *Calculator) StartInstant(d Date) time.Time {
	return c.TimeRange(d).Start.In(c.loc)
}

// NowMark formats the current instant as reference-zone wall-clock time.
func (c *Calculator) NowMark() string {
	return c.clock.Now().In(c.loc).Format(nowMarkLayout)
}

// LocalDate projects t onto its calendar date in loc. No service-day
// boundary is applied; it adapts date-picker input to a Date.
func LocalDate(t time.Time, loc *time.Location) Date {
	if loc == nil {
		loc = time.Local
	}
	return DateOf(t.In(loc))
}

// ParsePicked reads a date-picker value. A plain calendar date is taken as
// is; a date-time (RFC 3339, or zone-less as produced by datetime-local
// inputs, read in loc) is projected onto its calendar date in loc.
func ParsePicked(s string, loc *time.Location) (Date, error) {
	if d, err := Parse(s); err == nil {
		return d, nil
	}
	if loc == nil {
		loc = time.Local
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return LocalDate(t, loc), nil
	}
	for _, layout := range []string{"2006-01-02T15:04:05", "2006-01-02T15:04"} {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return LocalDate(t, loc), nil
		}
	}
	return Date{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
}

// CheckRange validates a picked date against the servable range and returns
// a field-level message, or "" when the date is acceptable.
func CheckRange(d, first, last Date) string {
	if d.Before(first) {
		return "Date is before the allowable range."
	}
	if d.After(last) {
		return "Date is after the allowable range."
	}
	return ""
}

func timeOfDay(t time.Time) time.Duration {
	return time.Duration(t.Hour())*time.Hour +
		time.Duration(t.Minute())*time.Minute +
		time.Duration(t.Second())*time.Second +
		time.Duration(t.Nanosecond())
}
