// Package api is the HTTP client for the arrivals backend.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"bus-tracker/internal/transit"
)

// MaxErrorBodySize caps how much of an error body is kept in HTTPError.
const MaxErrorBodySize = 500

// HTTPError is a non-2xx response from the backend.
type HTTPError struct {
	StatusCode int
	Body       string
	URL        string
}

func (e *HTTPError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("%s (status %d): %s", http.StatusText(e.StatusCode), e.StatusCode, e.Body)
	}
	return fmt.Sprintf("%s (status %d)", http.StatusText(e.StatusCode), e.StatusCode)
}

type Client struct {
	baseURL string
	http    *http.Client
	now     func() time.Time
}

// NewClient returns a client for baseURL (e.g. "https://host/api"). timeout
// bounds every request, including body read.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		now:     time.Now,
	}
}

// BusesForStop fetches the stop with its approaching buses. Passenger query
// parameters are only sent when passenger is non-nil.
func (c *Client) BusesForStop(ctx context.Context, stopID string, passenger *transit.GeoPoint) (*transit.Snapshot, error) {
	q := url.Values{}
	if passenger != nil {
		q.Set("passengerLat", strconv.FormatFloat(passenger.Lat, 'f', -1, 64))
		q.Set("passengerLng", strconv.FormatFloat(passenger.Lng, 'f', -1, 64))
	}
	var w wireStopArrivals
	if err := c.get(ctx, "/buses/stop/"+url.PathEscape(stopID), q, &w); err != nil {
		return nil, fmt.Errorf("buses for stop %s: %w", stopID, err)
	}
	snap := &transit.Snapshot{
		Stop:      w.Stop.toStop(),
		Buses:     make([]transit.BusArrival, 0, len(w.Buses)),
		FetchedAt: c.now(),
	}
	for _, b := range w.Buses {
		snap.Buses = append(snap.Buses, b.toArrival())
	}
	if w.Passenger != nil {
		snap.Passenger = &transit.PassengerWalkInfo{
			WalkingDistanceKm: w.Passenger.WalkingDistanceKm,
			WalkingMinutes:    max(w.Passenger.WalkingMinutes, 0),
		}
	}
	return snap, nil
}

func (c *Client) Stops(ctx context.Context) ([]transit.Stop, error) {
	var ws []wireStop
	if err := c.get(ctx, "/stops", nil, &ws); err != nil {
		return nil, fmt.Errorf("list stops: %w", err)
	}
	out := make([]transit.Stop, 0, len(ws))
	for _, w := range ws {
		out = append(out, w.toStop())
	}
	return out, nil
}

func (c *Client) StopByID(ctx context.Context, id string) (*transit.Stop, error) {
	var w wireStop
	if err := c.get(ctx, "/stops/"+url.PathEscape(id), nil, &w); err != nil {
		return nil, fmt.Errorf("get stop %s: %w", id, err)
	}
	s := w.toStop()
	return &s, nil
}

func (c *Client) Buses(ctx context.Context) ([]transit.LiveBus, error) {
	var ws []wireBus
	if err := c.get(ctx, "/buses", nil, &ws); err != nil {
		return nil, fmt.Errorf("list buses: %w", err)
	}
	out := make([]transit.LiveBus, 0, len(ws))
	for _, w := range ws {
		out = append(out, w.toLiveBus())
	}
	return out, nil
}

func (c *Client) Routes(ctx context.Context) ([]transit.Route, error) {
	var ws []wireRoute
	if err := c.get(ctx, "/routes", nil, &ws); err != nil {
		return nil, fmt.Errorf("list routes: %w", err)
	}
	out := make([]transit.Route, 0, len(ws))
	for _, w := range ws {
		out = append(out, transit.Route{ID: w.ID, Number: w.RouteNumber, Name: w.RouteName, Stops: w.Stops})
	}
	return out, nil
}

func (c *Client) get(ctx context.Context, path string, q url.Values, out any) error {
	u := c.baseURL + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, MaxErrorBodySize+1))
		body := string(bytes.TrimSpace(b))
		if len(body) > MaxErrorBodySize {
			body = body[:MaxErrorBodySize] + "..."
		}
		return &HTTPError{StatusCode: resp.StatusCode, Body: body, URL: u}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}
