package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"stringline-viewer/internal/refresh"
	"stringline-viewer/internal/servicedate"
)

const (
	SourceAPI      = "api"
	SourcePostgres = "postgres"
)

type Config struct {
	DataSource  string
	APIBaseURL  string
	DatabaseURL string
	// DatabaseName overrides the database in DatabaseURL when set
	DatabaseName string
	HTTPTimeout time.Duration

	ServiceLocation *time.Location
	ServiceDayStart time.Duration
	DisplayLocation *time.Location

	DefaultConfiguration int
	Policies             refresh.Policies

	ListenAddr    string
	MetricsAddr   string
	RedisAddr     string
	RedisPassword string

	// CacheMaxEntries bounds the in-memory query cache used without Redis
	CacheMaxEntries int

	NATSURL           string
	NATSSubjectPrefix string
	LogNATSSubjects   bool
}

func Load() (*Config, error) {
	// Load .env into environment (ignore if missing)
	_ = godotenv.Load()

	cfg := &Config{Policies: refresh.Defaults()}

	cfg.DataSource = strings.ToLower(getenvDefault("DATA_SOURCE", SourceAPI))
	switch cfg.DataSource {
	case SourceAPI:
		cfg.APIBaseURL = strings.TrimSpace(os.Getenv("API_BASE_URL"))
		if cfg.APIBaseURL == "" {
			return nil, errors.New("API_BASE_URL must be set when DATA_SOURCE=api")
		}
	case SourcePostgres:
		dsn, err := databaseURL()
		if err != nil {
			return nil, err
		}
		cfg.DatabaseURL = dsn
		if firstNonEmpty(os.Getenv("DATABASE_URL"), os.Getenv("PG_DSN")) != "" {
			cfg.DatabaseName = strings.TrimSpace(os.Getenv("PGDATABASE"))
		}
	default:
		return nil, fmt.Errorf("invalid DATA_SOURCE: %q", cfg.DataSource)
	}

	var err error
	if cfg.HTTPTimeout, err = seconds("HTTP_TIMEOUT_SEC", 10); err != nil {
		return nil, err
	}

	// Reference time zone of the service day
	tzName := getenvDefault("SERVICE_TZ", servicedate.DefaultZone)
	if cfg.ServiceLocation, err = time.LoadLocation(tzName); err != nil {
		return nil, fmt.Errorf("invalid SERVICE_TZ: %v", err)
	}
	cfg.ServiceDayStart = servicedate.DefaultDayStart
	if v := os.Getenv("SERVICE_DAY_START"); v != "" {
		if cfg.ServiceDayStart, err = servicedate.ParseDayStart(v); err != nil {
			return nil, fmt.Errorf("invalid SERVICE_DAY_START: %v", err)
		}
	}

	// Zone of date-picker input; defaults to the process local zone
	if v := os.Getenv("DISPLAY_TZ"); v != "" {
		if cfg.DisplayLocation, err = time.LoadLocation(v); err != nil {
			return nil, fmt.Errorf("invalid DISPLAY_TZ: %v", err)
		}
	} else {
		cfg.DisplayLocation = time.Local
	}

	cfg.DefaultConfiguration = 300
	if v := os.Getenv("DEFAULT_CONFIGURATION"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("invalid DEFAULT_CONFIGURATION: %q", v)
		}
		cfg.DefaultConfiguration = n
	}

	if cfg.Policies.LiveStaleTime, err = seconds("LIVE_STALE_SEC", 60); err != nil {
		return nil, err
	}
	if cfg.Policies.LiveInterval, err = seconds("LIVE_REFRESH_INTERVAL_SEC", 60); err != nil {
		return nil, err
	}
	if cfg.Policies.NowMarkInterval, err = seconds("NOW_MARK_INTERVAL_SEC", 60); err != nil {
		return nil, err
	}

	cfg.ListenAddr = getenvDefault("LISTEN_ADDR", ":8080")
	// Separate metrics listener (e.g., ":9102"). Empty serves /metrics on ListenAddr.
	cfg.MetricsAddr = os.Getenv("METRICS_ADDR")

	cfg.RedisAddr = strings.TrimSpace(os.Getenv("REDIS_ADDR"))
	cfg.RedisPassword = os.Getenv("REDIS_PASSWORD")
	cfg.CacheMaxEntries = 4096
	if v := os.Getenv("CACHE_MAX_ENTRIES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("invalid CACHE_MAX_ENTRIES: %q", v)
		}
		cfg.CacheMaxEntries = n
	}

	cfg.NATSURL = getenvDefault("NATS_URL", "nats://127.0.0.1:4222")
	cfg.NATSSubjectPrefix = getenvDefault("NATS_SUBJECT_PREFIX", "stringline")
	cfg.LogNATSSubjects = parseBool(os.Getenv("LOG_NATS_SUBJECTS"))

	return cfg, nil
}

// databaseURL prefers DATABASE_URL / PG_DSN, else builds a DSN from PG* vars.
func databaseURL() (string, error) {
	if dsn := firstNonEmpty(os.Getenv("DATABASE_URL"), os.Getenv("PG_DSN")); dsn != "" {
		return dsn, nil
	}
	db := os.Getenv("PGDATABASE")
	if db == "" {
		return "", errors.New("PGDATABASE or DATABASE_URL must be set when DATA_SOURCE=postgres")
	}
	host := getenvDefault("PGHOST", "127.0.0.1")
	port := getenvDefault("PGPORT", "5432")
	user := getenvDefault("PGUSER", "postgres")
	pass := os.Getenv("PGPASSWORD")
	sslmode := getenvDefault("PGSSLMODE", "disable")
	if pass != "" {
		return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", urlEscape(user), urlEscape(pass), host, port, db, sslmode), nil
	}
	return fmt.Sprintf("postgres://%s@%s:%s/%s?sslmode=%s", urlEscape(user), host, port, db, sslmode), nil
}

func seconds(key string, def int) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return time.Duration(def) * time.Second, nil
	}
	sec, err := strconv.Atoi(v)
	if err != nil || sec <= 0 {
		return 0, fmt.Errorf("invalid %s: %q", key, v)
	}
	return time.Duration(sec) * time.Second, nil
}

func parseBool(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "t", "yes", "y", "on":
		return true
	default:
		return false
	}
}

func getenvDefault(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func urlEscape(s string) string {
	// Minimal escape for DSN user/pass with special chars
	r := strings.NewReplacer("@", "%40", ":", "%3A", "/", "%2F", "?", "%3F", "#", "%23")
	return r.Replace(s)
}
