// Package stops resolves the key printed on a stop's QR sticker to a stop and
// serves the browsable stop list.
package stops

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"bus-tracker/internal/api"
	"bus-tracker/internal/db"
	"bus-tracker/internal/geo"
	"bus-tracker/internal/transit"
)

var ErrNotFound = errors.New("stop not found")

type Directory interface {
	List(ctx context.Context) ([]transit.Stop, error)
	// Lookup accepts a stop id or a stop code.
	Lookup(ctx context.Context, key string) (transit.Stop, error)
}

// APIDirectory reads stops from the arrivals backend.
type APIDirectory struct {
	client *api.Client
}

func NewAPIDirectory(c *api.Client) *APIDirectory { return &APIDirectory{client: c} }

func (d *APIDirectory) List(ctx context.Context) ([]transit.Stop, error) {
	return d.client.Stops(ctx)
}

func (d *APIDirectory) Lookup(ctx context.Context, key string) (transit.Stop, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return transit.Stop{}, ErrNotFound
	}
	s, err := d.client.StopByID(ctx, key)
	if err == nil {
		return *s, nil
	}
	var herr *api.HTTPError
	if !errors.As(err, &herr) || (herr.StatusCode != http.StatusNotFound && herr.StatusCode != http.StatusBadRequest) {
		return transit.Stop{}, err
	}
	// Not an id; codes are only searchable through the full list.
	all, err := d.client.Stops(ctx)
	if err != nil {
		return transit.Stop{}, err
	}
	if s, ok := findByCode(all, key); ok {
		return s, nil
	}
	return transit.Stop{}, fmt.Errorf("%w: %s", ErrNotFound, key)
}

// PGDirectory reads stops from a GTFS feed loaded into Postgres.
type PGDirectory struct {
	db *sql.DB
}

func NewPGDirectory(conn *sql.DB) *PGDirectory { return &PGDirectory{db: conn} }

func (d *PGDirectory) List(ctx context.Context) ([]transit.Stop, error) {
	return db.FetchStops(ctx, d.db)
}

func (d *PGDirectory) Lookup(ctx context.Context, key string) (transit.Stop, error) {
	s, err := db.FindStop(ctx, d.db, key)
	if errors.Is(err, sql.ErrNoRows) {
		return transit.Stop{}, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return s, err
}

func findByCode(all []transit.Stop, key string) (transit.Stop, bool) {
	for _, s := range all {
		if s.ID == key || strings.EqualFold(s.Code, key) {
			return s, true
		}
	}
	return transit.Stop{}, false
}

// Filter keeps the stops whose name, code or address contains q, ignoring
// case. An empty q keeps everything.
func Filter(all []transit.Stop, q string) []transit.Stop {
	q = strings.ToLower(strings.TrimSpace(q))
	if q == "" {
		return all
	}
	out := make([]transit.Stop, 0, len(all))
	for _, s := range all {
		if strings.Contains(strings.ToLower(s.Name), q) ||
			strings.Contains(strings.ToLower(s.Code), q) ||
			strings.Contains(strings.ToLower(s.Address), q) {
			out = append(out, s)
		}
	}
	return out
}

type Nearby struct {
	transit.Stop
	DistanceKm float64 `json:"distanceKm"`
}

// Nearest returns up to n stops ordered by distance from p.
func Nearest(all []transit.Stop, p transit.GeoPoint, n int) []Nearby {
	out := make([]Nearby, 0, len(all))
	for _, s := range all {
		out = append(out, Nearby{Stop: s, DistanceKm: geo.DistanceKm(p, s.Location)})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].DistanceKm < out[j].DistanceKm })
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out
}
