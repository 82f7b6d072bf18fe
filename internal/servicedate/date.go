package servicedate

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidDate is returned for strings that are not ISO calendar dates.
var ErrInvalidDate = errors.New("invalid ISO calendar date")

const isoDate = "2006-01-02"

// Date is a calendar date without a time zone.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

// NewDate normalizes out-of-range months and days the way time.Date does.
func NewDate(year int, month time.Month, day int) Date {
	return DateOf(time.Date(year, month, day, 0, 0, 0, 0, time.UTC))
}

// DateOf returns the calendar date of t in t's own location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Year: y, Month: m, Day: d}
}

// Parse accepts exactly YYYY-MM-DD.
func Parse(s string) (Date, error) {
	t, err := time.Parse(isoDate, s)
	if err != nil {
		return Date{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	return DateOf(t), nil
}

func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, int(d.Month), d.Day)
}

func (d Date) IsZero() bool { return d == Date{} }

func (d Date) AddDays(n int) Date { return NewDate(d.Year, d.Month, d.Day+n) }

// Compare returns -1, 0 or +1.
func (d Date) Compare(o Date) int {
	switch {
	case d.Year != o.Year:
		return cmpInt(d.Year, o.Year)
	case d.Month != o.Month:
		return cmpInt(int(d.Month), int(o.Month))
	default:
		return cmpInt(d.Day, o.Day)
	}
}

func (d Date) Before(o Date) bool { return d.Compare(o) < 0 }
func (d Date) After(o Date) bool  { return d.Compare(o) > 0 }

// At returns the zone-naive date-time offset from midnight of d. Offsets of
// 24h or more roll over into following days.
func (d Date) At(offset time.Duration) DateTime {
	offset = offset.Truncate(time.Second)
	if offset >= 24*time.Hour {
		d = d.AddDays(int(offset / (24 * time.Hour)))
		offset %= 24 * time.Hour
	}
	h := int(offset / time.Hour)
	m := int(offset % time.Hour / time.Minute)
	s := int(offset % time.Minute / time.Second)
	return DateTime{Date: d, Hour: h, Minute: m, Second: s}
}

func (d Date) MarshalText() ([]byte, error) { return []byte(d.String()), nil }

func (d *Date) UnmarshalText(b []byte) error {
	p, err := Parse(string(b))
	if err != nil {
		return err
	}
	*d = p
	return nil
}

// DateTime is a wall-clock date and time of day with no zone attached.
type DateTime struct {
	Date
	Hour   int
	Minute int
	Second int
}

func (dt DateTime) String() string {
	return fmt.Sprintf("%sT%02d:%02d:%02d", dt.Date.String(), dt.Hour, dt.Minute, dt.Second)
}

// In interprets the wall-clock value in loc.
func (dt DateTime) In(loc *time.Location) time.Time {
	return time.Date(dt.Year, dt.Month, dt.Day, dt.Hour, dt.Minute, dt.Second, 0, loc)
}

// Sub is plain wall-clock arithmetic; DST transitions do not apply.
func (dt DateTime) Sub(o DateTime) time.Duration {
	return dt.In(time.UTC).Sub(o.In(time.UTC))
}

func (dt DateTime) MarshalText() ([]byte, error) { return []byte(dt.String()), nil }

// Range bounds a service day on the chart time axis.
type Range struct {
	Start DateTime `json:"start"`
	End   DateTime `json:"end"`
}

func (r Range) Duration() time.Duration { return r.End.Sub(r.Start) }

func cmpInt(a, b int) int {
	if a < b {
		return -1
	}
	if a > b {
		return 1
	}
	return 0
}
