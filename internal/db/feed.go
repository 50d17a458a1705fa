package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// LatestFeedDSN points dsn at the most recently imported GTFS database for
// city. Imports are recorded in public.latest_successful_imports of the
// cluster's postgres database.
func LatestFeedDSN(ctx context.Context, dsn, city string) (string, error) {
	city = strings.TrimSpace(city)
	if city == "" {
		return "", errors.New("city is required")
	}
	metaDSN, err := withDatabase(dsn, "postgres")
	if err != nil {
		return "", err
	}
	meta, err := Open(metaDSN)
	if err != nil {
		return "", err
	}
	defer meta.Close()

	const q = `SELECT db_name FROM public.latest_successful_imports
WHERE db_name ILIKE '%' || $1 || '%'
ORDER BY imported_at DESC
LIMIT 1`
	var name sql.NullString
	if err := meta.QueryRowContext(ctx, q, city).Scan(&name); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", fmt.Errorf("no feed imported for city %q", city)
		}
		return "", fmt.Errorf("resolve feed for %q: %w", city, err)
	}
	if !name.Valid || name.String == "" {
		return "", fmt.Errorf("empty db_name for city %q", city)
	}
	return withDatabase(dsn, name.String)
}

// withDatabase swaps the database of a postgres URL DSN. A DSN without a
// scheme is read as postgres://.
func withDatabase(dsn, name string) (string, error) {
	if dsn == "" {
		return "", errors.New("empty DSN")
	}
	if !strings.Contains(dsn, "://") {
		dsn = "postgres://" + dsn
	}
	u, err := url.Parse(dsn)
	if err != nil {
		return "", err
	}
	if u.Scheme != "postgres" && u.Scheme != "postgresql" {
		return "", fmt.Errorf("unsupported DSN scheme %q", u.Scheme)
	}
	u.Path = "/" + strings.TrimPrefix(name, "/")
	return u.String(), nil
}
