package transit

import (
	"time"

	"stringline-viewer/internal/servicedate"
)

// Configuration is a selectable track configuration.
type Configuration struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// ConfigurationDetails lists the stations of a configuration in chart order.
type ConfigurationDetails struct {
	ID       int      `json:"id"`
	Name     string   `json:"name"`
	Stations []string `json:"stations"`
}

// ServiceDateRange is the span of service dates the backend can serve.
type ServiceDateRange struct {
	Min servicedate.Date `json:"min_service_date"`
	Max servicedate.Date `json:"max_service_date"`
}

type Station struct {
	StopID   string `json:"stop_id"`
	StopName string `json:"stop_name"`
}

type Route struct {
	ShortName string `json:"route_short_name"`
	Color     string `json:"route_color"`     // hex without '#'
	TextColor string `json:"route_text_color"` // hex without '#'
}

// Event is one observed or predicted stop event of a trip.
type Event struct {
	TripID              string    `json:"trip_id"`
	VehicleLabel        string    `json:"vehicle_label"`
	StopID              string    `json:"stop_id"`
	EventTime           time.Time `json:"event_time"`
	TripHeadsign        string    `json:"trip_headsign"`
	RouteShortName      string    `json:"route_short_name"`
	DirectionID         int       `json:"direction_id"`
	FeedHeaderTimestamp string    `json:"feed_header_timestamp"`
	IsFuture            bool      `json:"is_future"`
}

// StationSort maps a stop to its position on the station axis.
type StationSort struct {
	StopID    string `json:"stop_id"`
	SortOrder int    `json:"sort_order"`
}

// Identity is what a chart displays: one configuration on one service date.
type Identity struct {
	ConfigurationID int              `json:"configuration"`
	ServiceDate     servicedate.Date `json:"serviceDate"`
}

func (id Identity) String() string {
	return itoa(id.ConfigurationID) + "/" + id.ServiceDate.String()
}
