// Package view drives a mounted stringline chart: it loads the datasets for
// one configuration and service date, pushes them into a Surface, and keeps
// them current while that identity stays on screen.
package view

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"stringline-viewer/internal/refresh"
	"stringline-viewer/internal/servicedate"
	"stringline-viewer/internal/transit"
)

// Dataset names understood by the chart.
const (
	DatasetStringlines  = "stringlineData"
	DatasetStationNames = "stationNames"
	DatasetStationSort  = "stationSort"
	DatasetNowMark      = "nowMark"
)

// NowMarkRow positions the current-time rule on the chart.
type NowMarkRow struct {
	DT string `json:"dt"`
}

// Snapshot is everything needed to draw one chart.
type Snapshot struct {
	Identity     transit.Identity             `json:"identity"`
	Title        string                       `json:"title"`
	Details      transit.ConfigurationDetails `json:"configuration"`
	Range        servicedate.Range            `json:"range"`
	Policy       refresh.Policy               `json:"policy"`
	Routes       []transit.Route              `json:"routes"`
	StationNames []transit.Station            `json:"stationNames"`
	StationSort  []transit.StationSort        `json:"stationSort"`
	Stringlines  []transit.Event              `json:"stringlineData"`
	NowMark      []NowMarkRow                 `json:"nowMark"`
}

// Datasets returns the chart datasets in push order.
func (s Snapshot) Datasets() []Dataset {
	return []Dataset{
		{Name: DatasetStationNames, Rows: s.StationNames},
		{Name: DatasetStationSort, Rows: s.StationSort},
		{Name: DatasetStringlines, Rows: s.Stringlines},
		{Name: DatasetNowMark, Rows: s.NowMark},
	}
}

type Dataset struct {
	Name string
	Rows any
}

// StationSort orders stations by their position in the configuration.
func StationSort(details transit.ConfigurationDetails) []transit.StationSort {
	out := make([]transit.StationSort, len(details.Stations))
	for i, stop := range details.Stations {
		out[i] = transit.StationSort{StopID: stop, SortOrder: i}
	}
	return out
}

func NowMark(calc *servicedate.Calculator) []NowMarkRow {
	return []NowMarkRow{{DT: calc.NowMark()}}
}

// Load fetches the four chart datasets concurrently. A missing configuration
// yields an error wrapping transit.ErrNotFound.
func Load(ctx context.Context, src transit.Source, calc *servicedate.Calculator, p refresh.Policies, id transit.Identity) (Snapshot, error) {
	snap := Snapshot{
		Identity: id,
		Range:    calc.TimeRange(id.ServiceDate),
		Policy:   p.Stringlines(calc, id.ServiceDate),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		v, err := src.Stations(gctx, id.ServiceDate)
		if err != nil {
			return fmt.Errorf("load station names: %w", err)
		}
		snap.StationNames = v
		return nil
	})
	g.Go(func() error {
		v, err := src.Routes(gctx, id.ServiceDate)
		if err != nil {
			return fmt.Errorf("load routes: %w", err)
		}
		snap.Routes = v
		return nil
	})
	g.Go(func() error {
		v, err := src.ConfigurationDetails(gctx, id.ConfigurationID)
		if err != nil {
			if errors.Is(err, transit.ErrNotFound) {
				return err
			}
			return fmt.Errorf("load configuration details: %w", err)
		}
		if v.Name == "" && len(v.Stations) == 0 {
			return fmt.Errorf("configuration %d: %w", id.ConfigurationID, transit.ErrNotFound)
		}
		snap.Details = v
		return nil
	})
	g.Go(func() error {
		v, err := src.Stringlines(gctx, id.ConfigurationID, id.ServiceDate)
		if err != nil {
			return fmt.Errorf("load stringline data: %w", err)
		}
		snap.Stringlines = v
		return nil
	})
	if err := g.Wait(); err != nil {
		return Snapshot{}, err
	}

	snap.Title = fmt.Sprintf("%s Line on %s", snap.Details.Name, id.ServiceDate)
	snap.StationSort = StationSort(snap.Details)
	snap.NowMark = NowMark(calc)
	if snap.StationNames == nil {
		snap.StationNames = []transit.Station{}
	}
	if snap.Routes == nil {
		snap.Routes = []transit.Route{}
	}
	if snap.Stringlines == nil {
		snap.Stringlines = []transit.Event{}
	}
	return snap, nil
}

// Failure is the client-facing form of a load error.
type Failure struct {
	NotFound bool   `json:"notFound"`
	Message  string `json:"message"`
}

func FailureOf(err error) Failure {
	if errors.Is(err, transit.ErrNotFound) {
		return Failure{NotFound: true, Message: "Configuration not found."}
	}
	return Failure{Message: err.Error()}
}

// Chart is the part of a Snapshot that shapes the chart itself rather than
// feeding one of its datasets.
type Chart struct {
	Identity transit.Identity  `json:"identity"`
	Title    string            `json:"title"`
	Range    servicedate.Range `json:"range"`
	Policy   refresh.Policy    `json:"policy"`
	Routes   []transit.Route   `json:"routes"`
}

func (s Snapshot) Chart() Chart {
	return Chart{Identity: s.Identity, Title: s.Title, Range: s.Range, Policy: s.Policy, Routes: s.Routes}
}
