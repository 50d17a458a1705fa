package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"bus-tracker/internal/transit"

	_ "github.com/jackc/pgx/v5/stdlib"
)

func Open(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(30 * time.Minute)
	return db, nil
}

func Ping(ctx context.Context, db *sql.DB) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return db.PingContext(ctx)
}

// FetchStops returns every stop of a GTFS feed ordered by name.
func FetchStops(ctx context.Context, db *sql.DB) ([]transit.Stop, error) {
	q, err := stopsQuery(ctx, db, "")
	if err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx, q+" ORDER BY stop_name, stop_id")
	if err != nil {
		return nil, fmt.Errorf("query stops: %w", err)
	}
	defer rows.Close()

	var stops []transit.Stop
	for rows.Next() {
		s, err := scanStop(rows)
		if err != nil {
			return nil, err
		}
		stops = append(stops, s)
	}
	return stops, rows.Err()
}

// FindStop looks a stop up by stop_id or by stop_code, the value printed on
// the stop's QR sticker. It returns sql.ErrNoRows when neither matches.
func FindStop(ctx context.Context, db *sql.DB, key string) (transit.Stop, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return transit.Stop{}, errors.New("stop key is required")
	}
	q, err := stopsQuery(ctx, db, "WHERE stop_id = $1 OR stop_code = $1")
	if err != nil {
		return transit.Stop{}, err
	}
	// An exact id match beats a code match.
	q += " ORDER BY (stop_id = $1) DESC LIMIT 1"
	s, err := scanStop(db.QueryRowContext(ctx, q, key))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return transit.Stop{}, err
		}
		return transit.Stop{}, fmt.Errorf("query stop %q: %w", key, err)
	}
	return s, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanStop(r scanner) (transit.Stop, error) {
	var s transit.Stop
	if err := r.Scan(&s.ID, &s.Code, &s.Name, &s.Address, &s.Location.Lat, &s.Location.Lng); err != nil {
		return transit.Stop{}, err
	}
	return s, nil
}

func stopsQuery(ctx context.Context, db *sql.DB, where string) (string, error) {
	// Prefer stop_lat/stop_lon, but support PostGIS stop_loc geography as fallback
	latlonExists, err := hasColumns(ctx, db, "public", "stops", "stop_lat", "stop_lon")
	if err != nil {
		return "", fmt.Errorf("introspect stops columns: %w", err)
	}
	if latlonExists["stop_lat"] && latlonExists["stop_lon"] {
		return buildStopsQuery(false, where), nil
	}
	locExists, err := hasColumns(ctx, db, "public", "stops", "stop_loc")
	if err != nil {
		return "", fmt.Errorf("introspect stops stop_loc: %w", err)
	}
	if !locExists["stop_loc"] {
		return "", fmt.Errorf("stops table missing expected columns (stop_lat/lon or stop_loc)")
	}
	return buildStopsQuery(true, where), nil
}

func buildStopsQuery(postgis bool, where string) string {
	lat, lon := "COALESCE(stop_lat, 0)", "COALESCE(stop_lon, 0)"
	if postgis {
		lat, lon = "COALESCE(ST_Y(stop_loc::geometry), 0)", "COALESCE(ST_X(stop_loc::geometry), 0)"
	}
	q := fmt.Sprintf(`SELECT stop_id,
       COALESCE(stop_code, ''),
       COALESCE(stop_name, ''),
       COALESCE(stop_desc, ''),
       %s,
       %s
FROM stops`, lat, lon)
	if where != "" {
		q += " " + where
	}
	return q
}

// hasColumns returns a map of requested column names to existence for the given table.
func hasColumns(ctx context.Context, db *sql.DB, schema, table string, cols ...string) (map[string]bool, error) {
	res := make(map[string]bool, len(cols))
	if len(cols) == 0 {
		return res, nil
	}
	// Initialize to false
	for _, c := range cols {
		res[c] = false
	}
	q := `SELECT column_name FROM information_schema.columns
          WHERE table_schema = $1 AND table_name = $2 AND column_name = ANY($3)`
	rows, err := db.QueryContext(ctx, q, schema, table, cols)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		res[name] = true
	}
	return res, rows.Err()
}
