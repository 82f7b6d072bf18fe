// Package api reads stringline datasets from the backend REST API.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"stringline-viewer/internal/servicedate"
	"stringline-viewer/internal/transit"
)

// HTTPDoer is the subset of *http.Client the client needs.
type HTTPDoer interface {
	Do(*http.Request) (*http.Response, error)
}

// StatusError is returned for any non-2xx backend response.
type StatusError struct {
	Endpoint string
	Code     int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("backend request failed: %s returned %d", e.Endpoint, e.Code)
}

// Client implements transit.Source over HTTP.
type Client struct {
	base   *url.URL
	client HTTPDoer
}

var _ transit.Source = (*Client)(nil)

// NewClient builds a client. Endpoint names are resolved relative to
// baseURL, so a base with a path needs a trailing slash.
func NewClient(baseURL string, client HTTPDoer) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse API base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("API base url must be http(s): %q", baseURL)
	}
	if client == nil {
		client = NewDefaultHTTPClient(10 * time.Second)
	}
	return &Client{base: u, client: client}, nil
}

// NewDefaultHTTPClient returns *http.Client with timeout.
func NewDefaultHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{Timeout: timeout}
}

func (c *Client) endpoint(name string, params url.Values) string {
	u := c.base.ResolveReference(&url.URL{Path: name})
	if len(params) > 0 {
		u.RawQuery = params.Encode()
	}
	return u.String()
}

func (c *Client) get(ctx context.Context, name string, params url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint(name, params), nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return &StatusError{Endpoint: name, Code: resp.StatusCode}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", name, err)
	}
	return nil
}

func dateParams(d servicedate.Date) url.Values {
	return url.Values{"service_date": {d.String()}}
}

func (c *Client) Configurations(ctx context.Context) ([]transit.Configuration, error) {
	var out []transit.Configuration
	if err := c.get(ctx, "bart_stringline_configurations", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ServiceDateRange reads the single-row range endpoint.
func (c *Client) ServiceDateRange(ctx context.Context) (transit.ServiceDateRange, error) {
	var rows []transit.ServiceDateRange
	if err := c.get(ctx, "bart_service_date_range", nil, &rows); err != nil {
		return transit.ServiceDateRange{}, err
	}
	if len(rows) == 0 {
		return transit.ServiceDateRange{}, errors.New("bart_service_date_range: empty response")
	}
	return rows[0], nil
}

func (c *Client) Stations(ctx context.Context, d servicedate.Date) ([]transit.Station, error) {
	var out []transit.Station
	if err := c.get(ctx, "bart_stops_for_service_date", dateParams(d), &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Routes(ctx context.Context, d servicedate.Date) ([]transit.Route, error) {
	var out []transit.Route
	if err := c.get(ctx, "bart_routes_for_service_date", dateParams(d), &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ConfigurationDetails returns transit.ErrNotFound when the backend has no
// row for id.
func (c *Client) ConfigurationDetails(ctx context.Context, configurationID int) (transit.ConfigurationDetails, error) {
	var rows []transit.ConfigurationDetails
	params := url.Values{"configuration_id": {strconv.Itoa(configurationID)}}
	if err := c.get(ctx, "bart_stringline_configuration_details", params, &rows); err != nil {
		return transit.ConfigurationDetails{}, err
	}
	if len(rows) == 0 {
		return transit.ConfigurationDetails{}, fmt.Errorf("configuration %d: %w", configurationID, transit.ErrNotFound)
	}
	return rows[0], nil
}

func (c *Client) Stringlines(ctx context.Context, configurationID int, d servicedate.Date) ([]transit.Event, error) {
	params := dateParams(d)
	params.Set("configuration_id", strconv.Itoa(configurationID))
	var out []transit.Event
	if err := c.get(ctx, "bart_stringlines", params, &out); err != nil {
		return nil, err
	}
	return out, nil
}
