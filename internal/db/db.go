package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"stringline-viewer/internal/servicedate"
	"stringline-viewer/internal/transit"
)

func Open(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)
	return db, nil
}

func Ping(ctx context.Context, db *sql.DB) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return db.PingContext(ctx)
}

// Relations the viewer reads. Views and set-returning functions share the
// names of the REST endpoints.
var Relations = []string{
	"bart_stringline_configurations",
	"bart_service_date_range",
	"bart_stops_for_service_date",
	"bart_routes_for_service_date",
	"bart_stringline_configuration_details",
	"bart_stringlines",
}

// Source implements transit.Source directly against Postgres.
type Source struct {
	db *sql.DB
}

var _ transit.Source = (*Source)(nil)

func NewSource(db *sql.DB) *Source { return &Source{db: db} }

func (s *Source) Configurations(ctx context.Context) ([]transit.Configuration, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name FROM bart_stringline_configurations ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query configurations: %w", err)
	}
	defer rows.Close()
	var out []transit.Configuration
	for rows.Next() {
		var c transit.Configuration
		if err := rows.Scan(&c.ID, &c.Name); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *Source) ServiceDateRange(ctx context.Context) (transit.ServiceDateRange, error) {
	q := `SELECT min_service_date::text, max_service_date::text FROM bart_service_date_range LIMIT 1`
	var minS, maxS sql.NullString
	if err := s.db.QueryRowContext(ctx, q).Scan(&minS, &maxS); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return transit.ServiceDateRange{}, errors.New("service date range is empty")
		}
		return transit.ServiceDateRange{}, fmt.Errorf("query service date range: %w", err)
	}
	if !minS.Valid || !maxS.Valid {
		return transit.ServiceDateRange{}, errors.New("service date range is empty")
	}
	var rng transit.ServiceDateRange
	var err error
	if rng.Min, err = servicedate.Parse(minS.String); err != nil {
		return transit.ServiceDateRange{}, err
	}
	if rng.Max, err = servicedate.Parse(maxS.String); err != nil {
		return transit.ServiceDateRange{}, err
	}
	return rng, nil
}

func (s *Source) Stations(ctx context.Context, d servicedate.Date) ([]transit.Station, error) {
	q := `SELECT stop_id, COALESCE(stop_name, '') FROM bart_stops_for_service_date($1::date)`
	rows, err := s.db.QueryContext(ctx, q, d.String())
	if err != nil {
		return nil, fmt.Errorf("query stations: %w", err)
	}
	defer rows.Close()
	var out []transit.Station
	for rows.Next() {
		var st transit.Station
		if err := rows.Scan(&st.StopID, &st.StopName); err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

func (s *Source) Routes(ctx context.Context, d servicedate.Date) ([]transit.Route, error) {
	q := `SELECT route_short_name, COALESCE(route_color, ''), COALESCE(route_text_color, '')
          FROM bart_routes_for_service_date($1::date)`
	rows, err := s.db.QueryContext(ctx, q, d.String())
	if err != nil {
		return nil, fmt.Errorf("query routes: %w", err)
	}
	defer rows.Close()
	var out []transit.Route
	for rows.Next() {
		var r transit.Route
		if err := rows.Scan(&r.ShortName, &r.Color, &r.TextColor); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Source) ConfigurationDetails(ctx context.Context, configurationID int) (transit.ConfigurationDetails, error) {
	// stations is a text[]; to_json keeps the scan driver-agnostic
	q := `SELECT id, name, COALESCE(to_json(stations)::text, '[]')
          FROM bart_stringline_configuration_details WHERE id = $1`
	var cd transit.ConfigurationDetails
	var stations string
	err := s.db.QueryRowContext(ctx, q, configurationID).Scan(&cd.ID, &cd.Name, &stations)
	if errors.Is(err, sql.ErrNoRows) {
		return transit.ConfigurationDetails{}, fmt.Errorf("configuration %d: %w", configurationID, transit.ErrNotFound)
	}
	if err != nil {
		return transit.ConfigurationDetails{}, fmt.Errorf("query configuration details: %w", err)
	}
	if cd.Stations, err = decodeStations(stations); err != nil {
		return transit.ConfigurationDetails{}, err
	}
	return cd, nil
}

func (s *Source) Stringlines(ctx context.Context, configurationID int, d servicedate.Date) ([]transit.Event, error) {
	q := `SELECT trip_id, COALESCE(vehicle_label, ''), stop_id, event_time,
                 COALESCE(trip_headsign, ''), COALESCE(route_short_name, ''), COALESCE(direction_id, 0),
                 COALESCE(feed_header_timestamp::text, ''), COALESCE(is_future, false)
          FROM bart_stringlines($1, $2::date)`
	rows, err := s.db.QueryContext(ctx, q, configurationID, d.String())
	if err != nil {
		return nil, fmt.Errorf("query stringlines: %w", err)
	}
	defer rows.Close()
	var out []transit.Event
	for rows.Next() {
		var e transit.Event
		if err := rows.Scan(&e.TripID, &e.VehicleLabel, &e.StopID, &e.EventTime,
			&e.TripHeadsign, &e.RouteShortName, &e.DirectionID, &e.FeedHeaderTimestamp, &e.IsFuture); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func decodeStations(raw string) ([]string, error) {
	var out []string
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, fmt.Errorf("decode stations: %w", err)
	}
	if out == nil {
		out = []string{}
	}
	return out, nil
}

// MissingRelations lists which of names exist neither as a table/view nor as a
// function in schema.
func MissingRelations(ctx context.Context, db *sql.DB, schema string, names ...string) ([]string, error) {
	found := make(map[string]bool, len(names))
	if len(names) == 0 {
		return nil, nil
	}
	q := `SELECT table_name FROM information_schema.tables
          WHERE table_schema = $1 AND table_name = ANY($2)
          UNION
          SELECT routine_name FROM information_schema.routines
          WHERE routine_schema = $1 AND routine_name = ANY($2)`
	rows, err := db.QueryContext(ctx, q, schema, names)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		found[name] = true
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	var missing []string
	for _, n := range names {
		if !found[n] {
			missing = append(missing, n)
		}
	}
	return missing, nil
}
