package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"stringline-viewer/internal/clock"
	"stringline-viewer/internal/refresh"
	"stringline-viewer/internal/servicedate"
)

type serviceDateReport struct {
	Instant     string            `json:"instant"`
	ServiceDate servicedate.Date  `json:"serviceDate"`
	Live        bool              `json:"live"`
	Range       servicedate.Range `json:"range"`
	Policy      refresh.Policy    `json:"policy"`
}

func newServiceDateCmd() *cobra.Command {
	var zone, dayStart string
	cmd := &cobra.Command{
		Use:   "service-date [RFC3339 instant]",
		Short: "Print the service date, time range and refresh policy of an instant",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			loc, err := time.LoadLocation(zone)
			if err != nil {
				return fmt.Errorf("invalid zone: %w", err)
			}
			start, err := servicedate.ParseDayStart(dayStart)
			if err != nil {
				return err
			}
			calc, err := servicedate.New(loc, start, clock.Real())
			if err != nil {
				return err
			}
			at := calc.Clock().Now()
			if len(args) == 1 {
				if at, err = time.Parse(time.RFC3339, args[0]); err != nil {
					return fmt.Errorf("invalid instant: %w", err)
				}
			}

			d := calc.ToServiceDate(at)
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(serviceDateReport{
				Instant:     at.In(loc).Format(time.RFC3339),
				ServiceDate: d,
				Live:        calc.IsCurrentServiceDay(d),
				Range:       calc.TimeRange(d),
				Policy:      refresh.Defaults().Stringlines(calc, d),
			})
		},
	}
	cmd.Flags().StringVar(&zone, "zone", servicedate.DefaultZone, "reference time zone of the service day")
	cmd.Flags().StringVar(&dayStart, "day-start", "03:00:00", "local time at which a service day begins")
	return cmd
}
