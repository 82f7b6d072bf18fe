package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"stringline-viewer/internal/config"
	"stringline-viewer/internal/logging"
	"stringline-viewer/internal/publisher"
	"stringline-viewer/internal/servicedate"
	"stringline-viewer/internal/transit"
	"stringline-viewer/internal/view"
)

const today = "today"

type watchFlags struct {
	configuration int
	serviceDate   string
}

func newWatchCmd() *cobra.Command {
	var f watchFlags
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Publish one stringline chart and its live updates to NATS",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runWatch(cmd, f)
		},
	}
	cmd.Flags().IntVar(&f.configuration, "configuration", -1, "configuration id (default from DEFAULT_CONFIGURATION)")
	cmd.Flags().StringVar(&f.serviceDate, "service-date", today, `service date as YYYY-MM-DD, or "today" to follow the current service day`)
	return cmd
}

// resolveDate maps the --service-date flag to a date; follow reports whether
// the watch should move along with the current service day.
func resolveDate(calc *servicedate.Calculator, s string) (d servicedate.Date, follow bool, err error) {
	if s == today {
		return calc.CurrentServiceDate(), true, nil
	}
	d, err = servicedate.Parse(s)
	return d, false, err
}

func runWatch(cmd *cobra.Command, f watchFlags) error {
	logging.Setup()
	log := logging.New("watch")

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	cfgID := f.configuration
	if cfgID < 0 {
		cfgID = cfg.DefaultConfiguration
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	d, err := buildDeps(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer d.Close()

	date, follow, err := resolveDate(d.calc, f.serviceDate)
	if err != nil {
		return err
	}

	if cfg.MetricsAddr != "" {
		srv := d.metrics.Serve(cfg.MetricsAddr, log)
		defer srv.Close()
	}

	pub, err := publisher.NewNATSPublisher(cfg.NATSURL,
		publisher.WithPublisherMetrics(d.metrics),
		publisher.WithPublisherLogger(logging.New("publisher")),
		publisher.WithSubjectLogging(cfg.LogNATSSubjects),
	)
	if err != nil {
		return fmt.Errorf("nats: %w", err)
	}
	defer pub.Close()

	id := transit.Identity{ConfigurationID: cfgID, ServiceDate: date}
	surface := publisher.NewSurface(pub, cfg.NATSSubjectPrefix, id)
	session := view.NewSession(d.source, d.calc, cfg.Policies, surface,
		view.WithSessionMetrics(d.metrics),
		view.WithSessionLogger(logging.New("session")),
	)
	defer session.Close()

	if err := session.Show(id); err != nil {
		return err
	}
	log.Info().Str("subject", surface.Subject("*")).Stringer("identity", id).Msg("watching")

	if !follow {
		<-ctx.Done()
		return nil
	}

	// Move to the next service day once the current one ends.
	ticker := d.calc.Clock().NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C():
			if cur := d.calc.CurrentServiceDate(); cur != id.ServiceDate {
				id.ServiceDate = cur
				log.Info().Stringer("identity", id).Msg("service day rolled over")
				if err := session.Show(id); err != nil {
					return err
				}
			}
		}
	}
}
