package main

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"stringline-viewer/internal/api"
	"stringline-viewer/internal/cache"
	"stringline-viewer/internal/clock"
	"stringline-viewer/internal/config"
	"stringline-viewer/internal/db"
	"stringline-viewer/internal/metrics"
	"stringline-viewer/internal/servicedate"
	"stringline-viewer/internal/transit"
)

// deps holds what serve and watch share: the calculator and a cached source.
type deps struct {
	calc    *servicedate.Calculator
	source  transit.Source
	metrics *metrics.Collector
	closers []func() error
}

func (d *deps) Close() {
	for i := len(d.closers) - 1; i >= 0; i-- {
		_ = d.closers[i]()
	}
}

func buildDeps(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*deps, error) {
	calc, err := servicedate.New(cfg.ServiceLocation, cfg.ServiceDayStart, clock.Real())
	if err != nil {
		return nil, err
	}
	d := &deps{calc: calc, metrics: metrics.NewCollector(cfg.Policies)}

	var upstream transit.Source
	switch cfg.DataSource {
	case config.SourcePostgres:
		sqlDB, err := openDatabase(ctx, cfg, log)
		if err != nil {
			return nil, err
		}
		d.closers = append(d.closers, sqlDB.Close)
		upstream = db.NewSource(sqlDB)
	default:
		client, err := api.NewClient(cfg.APIBaseURL, api.NewDefaultHTTPClient(cfg.HTTPTimeout))
		if err != nil {
			return nil, err
		}
		upstream = client
		log.Info().Str("base_url", cfg.APIBaseURL).Msg("using query API")
	}

	var store cache.Store
	if cfg.RedisAddr != "" {
		rc, err := cache.NewRedisClient(ctx, cfg.RedisAddr, cfg.RedisPassword)
		if err != nil {
			d.Close()
			return nil, err
		}
		d.closers = append(d.closers, rc.Close)
		store = cache.NewRedisStore(rc)
		log.Info().Str("addr", cfg.RedisAddr).Msg("using redis query cache")
	} else {
		store = cache.NewMemoryStore(calc.Clock(), cfg.CacheMaxEntries)
	}

	d.source = cache.NewSource(upstream, store, calc, cfg.Policies,
		cache.WithMetrics(d.metrics),
		cache.WithLogger(log.With().Str("component", "cache").Logger()),
		cache.WithFetchTimeout(cfg.HTTPTimeout+5*time.Second),
	)
	return d, nil
}

func openDatabase(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*sql.DB, error) {
	dsn := cfg.DatabaseURL
	if cfg.DatabaseName != "" {
		var err error
		if dsn, err = db.WithDBName(dsn, cfg.DatabaseName); err != nil {
			return nil, fmt.Errorf("compose DSN: %w", err)
		}
	}
	sqlDB, err := db.Open(dsn)
	if err != nil {
		return nil, fmt.Errorf("db open: %w", err)
	}
	if err := db.Ping(ctx, sqlDB); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("db ping: %w", err)
	}
	missing, err := db.MissingRelations(ctx, sqlDB, "public", db.Relations...)
	if err != nil {
		log.Warn().Err(err).Msg("schema check failed")
	} else if len(missing) > 0 {
		log.Warn().Strs("missing", missing).Msg("database lacks stringline relations")
	}
	return sqlDB, nil
}
