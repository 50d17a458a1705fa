package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bus-tracker/internal/transit"
)

const stopArrivalsBody = `{
  "stop": {"_id": "s1", "name": "Central", "stopCode": "CEN-01", "address": "Anna Salai",
           "location": {"type": "Point", "coordinates": [80.2707, 13.0827]}},
  "buses": [
    {"_id": "b1", "busNumber": "21G", "routeNumber": "21", "routeName": "Broadway - Tambaram",
     "currentLocation": {"type": "Point", "coordinates": [80.25, 13.07]},
     "speed": 32.5, "etaMinutes": 1, "distanceKm": 0.8, "stopsAway": 1, "totalJourneyMinutes": 6,
     "routePolyline": [
       {"lat": 13.06, "lng": 80.24, "name": "A", "isPassed": true},
       {"lat": 13.08, "lng": 80.27, "name": "Central", "isScannedStop": true}
     ]},
    {"_id": "b2", "busNumber": "23C", "routeNumber": "23", "routeName": "Besant Nagar",
     "currentLocation": {"type": "Point", "coordinates": [80.2]},
     "etaMinutes": 7}
  ],
  "passenger": {"walkingDistanceKm": 0.4, "walkingMinutes": 5}
}`

func TestBusesForStop_WithoutPassenger(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/buses/stop/s1", r.URL.Path)
		gotQuery = r.URL.RawQuery
		_, _ = w.Write([]byte(stopArrivalsBody))
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"/api/", time.Second)
	snap, err := c.BusesForStop(context.Background(), "s1", nil)
	require.NoError(t, err)

	assert.Empty(t, gotQuery, "passenger params must be omitted entirely")
	assert.Equal(t, "Central", snap.Stop.Name)
	assert.Equal(t, "CEN-01", snap.Stop.Code)
	assert.Equal(t, transit.GeoPoint{Lat: 13.0827, Lng: 80.2707}, snap.Stop.Location)
	require.Len(t, snap.Buses, 2)

	b := snap.Buses[0]
	require.NotNil(t, b.CurrentLocation)
	assert.Equal(t, transit.GeoPoint{Lat: 13.07, Lng: 80.25}, *b.CurrentLocation)
	assert.Equal(t, 32.5, b.SpeedKmh)
	require.Len(t, b.RoutePolyline, 2)
	assert.True(t, b.RoutePolyline[0].IsPassed)
	assert.True(t, b.RoutePolyline[1].IsScannedStop)

	assert.Nil(t, snap.Buses[1].CurrentLocation, "malformed coordinates decode as absent")
	require.NotNil(t, snap.Passenger)
	assert.Equal(t, 5, snap.Passenger.WalkingMinutes)
}

func TestBusesForStop_WithPassenger(t *testing.T) {
	var lat, lng string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		lat = r.URL.Query().Get("passengerLat")
		lng = r.URL.Query().Get("passengerLng")
		_, _ = w.Write([]byte(`{"stop": {"_id": "s1"}, "buses": []}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second)
	snap, err := c.BusesForStop(context.Background(), "s1", &transit.GeoPoint{Lat: 13.05, Lng: 80.2})
	require.NoError(t, err)
	assert.Equal(t, "13.05", lat)
	assert.Equal(t, "80.2", lng)
	assert.Empty(t, snap.Buses)
	assert.Nil(t, snap.Passenger)
}

func TestBusesForStop_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, strings.Repeat("x", 800), http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second)
	_, err := c.BusesForStop(context.Background(), "s1", nil)
	require.Error(t, err)

	var httpErr *HTTPError
	require.True(t, errors.As(err, &httpErr))
	assert.Equal(t, http.StatusBadGateway, httpErr.StatusCode)
	assert.LessOrEqual(t, len(httpErr.Body), MaxErrorBodySize+3)
}

func TestBusesForStop_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	c := NewClient(srv.URL, 50*time.Millisecond)
	_, err := c.BusesForStop(context.Background(), "s1", nil)
	require.Error(t, err)
}

func TestStopsAndRoutes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/stops":
			_, _ = w.Write([]byte(`[{"_id": "s1", "name": "Central", "stopCode": "CEN-01"}, {"_id": "s2", "name": "Egmore"}]`))
		case "/stops/s2":
			_, _ = w.Write([]byte(`{"_id": "s2", "name": "Egmore"}`))
		case "/routes":
			_, _ = w.Write([]byte(`[{"_id": "r1", "routeNumber": "21", "routeName": "Broadway", "stops": ["s1", "s2"]}]`))
		case "/buses":
			_, _ = w.Write([]byte(`[{"_id": "b1", "busNumber": "21G", "speed": -3}]`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second)
	ctx := context.Background()

	stops, err := c.Stops(ctx)
	require.NoError(t, err)
	require.Len(t, stops, 2)
	assert.Equal(t, "CEN-01", stops[0].Code)

	s, err := c.StopByID(ctx, "s2")
	require.NoError(t, err)
	assert.Equal(t, "Egmore", s.Name)

	routes, err := c.Routes(ctx)
	require.NoError(t, err)
	require.Len(t, routes, 1)
	assert.Equal(t, []string{"s1", "s2"}, routes[0].Stops)

	buses, err := c.Buses(ctx)
	require.NoError(t, err)
	require.Len(t, buses, 1)
	assert.Zero(t, buses[0].SpeedKmh)

	_, err = c.StopByID(ctx, "missing")
	var httpErr *HTTPError
	assert.True(t, errors.As(err, &httpErr))
}
