package db

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

var errEmptyDSN = errors.New("empty DSN")

// WithDBName points dsn at database. URL DSNs (postgres:// or postgresql://,
// or a bare host that gets the postgres scheme) have their path replaced;
// keyword/value DSNs get their dbname set. Quoted keyword values are not
// supported.
func WithDBName(dsn, database string) (string, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return "", errEmptyDSN
	}
	database = strings.TrimPrefix(strings.TrimSpace(database), "/")
	if database == "" {
		return "", errors.New("empty database name")
	}

	if !strings.Contains(dsn, "://") && strings.Contains(dsn, "=") {
		return keywordDSN(dsn, database), nil
	}
	if !strings.Contains(dsn, "://") {
		dsn = "postgres://" + dsn
	}
	u, err := url.Parse(dsn)
	if err != nil {
		return "", fmt.Errorf("parse DSN: %w", err)
	}
	if u.Scheme != "postgres" && u.Scheme != "postgresql" {
		return "", fmt.Errorf("unsupported DSN scheme %q", u.Scheme)
	}
	u.Path = "/" + database
	u.RawPath = ""
	return u.String(), nil
}

func keywordDSN(dsn, database string) string {
	fields := strings.Fields(dsn)
	out := make([]string, 0, len(fields)+1)
	for _, f := range fields {
		if strings.HasPrefix(f, "dbname=") {
			continue
		}
		out = append(out, f)
	}
	return strings.Join(append(out, "dbname="+database), " ")
}
