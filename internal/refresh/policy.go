// Package refresh decides how long fetched datasets stay fresh and whether
// they are re-fetched on a fixed cadence.
package refresh

import (
	"encoding/json"
	"math"
	"time"

	"stringline-viewer/internal/servicedate"
)

const (
	// Forever marks data that never goes stale.
	Forever time.Duration = math.MaxInt64
	// Disabled turns off interval re-fetching.
	Disabled time.Duration = 0
)

// Policy pairs a stale time with a re-fetch interval.
type Policy struct {
	StaleTime time.Duration
	Interval  time.Duration
}

// Live reports whether the policy re-fetches on an interval.
func (p Policy) Live() bool { return p.Interval > Disabled }

// IsStale reports whether data fetched at fetchedAt is outdated at now.
func (p Policy) IsStale(fetchedAt, now time.Time) bool {
	if p.StaleTime == Forever {
		return false
	}
	return now.Sub(fetchedAt) >= p.StaleTime
}

// MarshalJSON renders {"staleTimeMs": n|null, "intervalMs": n|false}; null
// stands for an infinite stale time.
func (p Policy) MarshalJSON() ([]byte, error) {
	out := struct {
		StaleTimeMs *int64 `json:"staleTimeMs"`
		IntervalMs  any    `json:"intervalMs"`
	}{IntervalMs: false}
	if p.StaleTime != Forever {
		ms := p.StaleTime.Milliseconds()
		out.StaleTimeMs = &ms
	}
	if p.Live() {
		out.IntervalMs = p.Interval.Milliseconds()
	}
	return json.Marshal(out)
}

// Policies holds every cadence and stale time used by the viewer.
type Policies struct {
	LiveStaleTime   time.Duration
	LiveInterval    time.Duration
	NowMarkInterval time.Duration

	Configurations       time.Duration
	ServiceDateRange     time.Duration
	Stations             time.Duration
	Routes               time.Duration
	ConfigurationDetails time.Duration
}

func Defaults() Policies {
	return Policies{
		LiveStaleTime:        time.Minute,
		LiveInterval:         time.Minute,
		NowMarkInterval:      time.Minute,
		Configurations:       5 * time.Minute,
		ServiceDateRange:     time.Minute,
		Stations:             24 * time.Hour,
		Routes:               24 * time.Hour,
		ConfigurationDetails: 5 * time.Minute,
	}
}

// Stringlines returns the policy for stringline events of service date d:
// bounded staleness with interval re-fetch on the current service day,
// immutable otherwise.
func (p Policies) Stringlines(calc *servicedate.Calculator, d servicedate.Date) Policy {
	return p.ForLiveness(calc.IsCurrentServiceDay(d))
}

func (p Policies) ForLiveness(live bool) Policy {
	if live {
		return Policy{StaleTime: p.LiveStaleTime, Interval: p.LiveInterval}
	}
	return Policy{StaleTime: Forever, Interval: Disabled}
}

// Fixed is a non-polling policy with the given stale time.
func Fixed(stale time.Duration) Policy {
	return Policy{StaleTime: stale, Interval: Disabled}
}
