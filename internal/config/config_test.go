package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// inTempDir keeps godotenv from picking up a developer's .env file.
func inTempDir(t *testing.T) {
	t.Helper()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { _ = os.Chdir(wd) })
}

func TestLoadDefaults(t *testing.T) {
	inTempDir(t)
	t.Setenv("DATA_SOURCE", "")
	t.Setenv("API_BASE_URL", "https://api.example.test/")
	for _, k := range []string{"SERVICE_TZ", "SERVICE_DAY_START", "LIVE_STALE_SEC", "LIVE_REFRESH_INTERVAL_SEC",
		"NOW_MARK_INTERVAL_SEC", "DEFAULT_CONFIGURATION", "LISTEN_ADDR", "REDIS_ADDR", "METRICS_ADDR", "CACHE_MAX_ENTRIES"} {
		t.Setenv(k, "")
	}

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, SourceAPI, cfg.DataSource)
	assert.Equal(t, "https://api.example.test/", cfg.APIBaseURL)
	assert.Equal(t, "US/Pacific", cfg.ServiceLocation.String())
	assert.Equal(t, 3*time.Hour, cfg.ServiceDayStart)
	assert.Equal(t, 300, cfg.DefaultConfiguration)
	assert.Equal(t, time.Minute, cfg.Policies.LiveStaleTime)
	assert.Equal(t, time.Minute, cfg.Policies.LiveInterval)
	assert.Equal(t, time.Minute, cfg.Policies.NowMarkInterval)
	assert.Equal(t, 24*time.Hour, cfg.Policies.Stations)
	assert.Equal(t, ":8080", cfg.ListenAddr)
	assert.Equal(t, 10*time.Second, cfg.HTTPTimeout)
	assert.Empty(t, cfg.RedisAddr)
	assert.Equal(t, 4096, cfg.CacheMaxEntries)
}

func TestLoadOverrides(t *testing.T) {
	inTempDir(t)
	t.Setenv("DATA_SOURCE", "postgres")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("PG_DSN", "")
	t.Setenv("PGDATABASE", "lake")
	t.Setenv("PGUSER", "viewer")
	t.Setenv("PGPASSWORD", "p@ss")
	t.Setenv("PGHOST", "db")
	t.Setenv("PGPORT", "")
	t.Setenv("PGSSLMODE", "")
	t.Setenv("SERVICE_TZ", "America/New_York")
	t.Setenv("SERVICE_DAY_START", "04:00:00")
	t.Setenv("LIVE_REFRESH_INTERVAL_SEC", "30")
	t.Setenv("DEFAULT_CONFIGURATION", "400")
	t.Setenv("LOG_NATS_SUBJECTS", "yes")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "postgres://viewer:p%40ss@db:5432/lake?sslmode=disable", cfg.DatabaseURL)
	assert.Equal(t, "America/New_York", cfg.ServiceLocation.String())
	assert.Equal(t, 4*time.Hour, cfg.ServiceDayStart)
	assert.Equal(t, 30*time.Second, cfg.Policies.LiveInterval)
	assert.Equal(t, 400, cfg.DefaultConfiguration)
	assert.True(t, cfg.LogNATSSubjects)
	assert.Empty(t, cfg.DatabaseName)
}

func TestLoadDatabaseURLWithName(t *testing.T) {
	inTempDir(t)
	t.Setenv("DATA_SOURCE", "postgres")
	t.Setenv("DATABASE_URL", "postgres://viewer@db/postgres")
	t.Setenv("PGDATABASE", "lake")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "postgres://viewer@db/postgres", cfg.DatabaseURL)
	assert.Equal(t, "lake", cfg.DatabaseName)
}

func TestLoadFromDotEnv(t *testing.T) {
	inTempDir(t)
	t.Setenv("DATA_SOURCE", "")
	t.Setenv("API_BASE_URL", "")
	require.NoError(t, os.Unsetenv("API_BASE_URL"))
	require.NoError(t, os.WriteFile(filepath.Join(".", ".env"), []byte("API_BASE_URL=http://from-dotenv.test/\n"), 0o644))
	t.Cleanup(func() { _ = os.Unsetenv("API_BASE_URL") })

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "http://from-dotenv.test/", cfg.APIBaseURL)
}

func TestLoadErrors(t *testing.T) {
	cases := map[string]map[string]string{
		"missing api url":   {"DATA_SOURCE": "api", "API_BASE_URL": ""},
		"unknown source":    {"DATA_SOURCE": "sqlite", "API_BASE_URL": "http://x"},
		"bad zone":          {"API_BASE_URL": "http://x", "SERVICE_TZ": "Mars/Olympus"},
		"bad day start":     {"API_BASE_URL": "http://x", "SERVICE_DAY_START": "3"},
		"bad interval":      {"API_BASE_URL": "http://x", "LIVE_REFRESH_INTERVAL_SEC": "0"},
		"bad configuration": {"API_BASE_URL": "http://x", "DEFAULT_CONFIGURATION": "red"},
		"bad cache size":    {"API_BASE_URL": "http://x", "CACHE_MAX_ENTRIES": "0"},
		"postgres no db":    {"DATA_SOURCE": "postgres", "DATABASE_URL": "", "PG_DSN": "", "PGDATABASE": ""},
	}
	for name, env := range cases {
		t.Run(name, func(t *testing.T) {
			inTempDir(t)
			for _, k := range []string{"DATA_SOURCE", "SERVICE_TZ", "SERVICE_DAY_START", "LIVE_REFRESH_INTERVAL_SEC", "DEFAULT_CONFIGURATION", "CACHE_MAX_ENTRIES"} {
				t.Setenv(k, "")
			}
			for k, v := range env {
				t.Setenv(k, v)
			}
			_, err := Load()
			assert.Error(t, err)
		})
	}
}
