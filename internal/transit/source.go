// Package transit defines the stringline data model and the Source that
// supplies it.
package transit

import (
	"context"
	"errors"
	"strconv"

	"stringline-viewer/internal/servicedate"
)

// ErrNotFound marks a configuration id with no matching details.
var ErrNotFound = errors.New("configuration not found")

// Source reads stringline datasets. Implementations must honour ctx
// cancellation so that superseded requests stop early.
type Source interface {
	Configurations(ctx context.Context) ([]Configuration, error)
	ServiceDateRange(ctx context.Context) (ServiceDateRange, error)
	Stations(ctx context.Context, d servicedate.Date) ([]Station, error)
	Routes(ctx context.Context, d servicedate.Date) ([]Route, error)
	// ConfigurationDetails returns ErrNotFound for an unknown id.
	ConfigurationDetails(ctx context.Context, configurationID int) (ConfigurationDetails, error)
	Stringlines(ctx context.Context, configurationID int, d servicedate.Date) ([]Event, error)
}

// Refetcher is implemented by caching sources that can bypass freshness for
// interval-driven re-fetches.
type Refetcher interface {
	RefetchStringlines(ctx context.Context, configurationID int, d servicedate.Date) ([]Event, error)
}

// RefetchStringlines forces a fresh read when src supports it.
func RefetchStringlines(ctx context.Context, src Source, configurationID int, d servicedate.Date) ([]Event, error) {
	if r, ok := src.(Refetcher); ok {
		return r.RefetchStringlines(ctx, configurationID, d)
	}
	return src.Stringlines(ctx, configurationID, d)
}

// ParseConfigurationID parses the numeric id carried in URLs.
func ParseConfigurationID(s string) (int, error) {
	id, err := strconv.Atoi(s)
	if err != nil || id < 0 {
		return 0, errors.New("configuration must be a non-negative integer")
	}
	return id, nil
}

func itoa(i int) string { return strconv.Itoa(i) }
