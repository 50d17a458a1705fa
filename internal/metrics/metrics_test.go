package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollector_Exposition(t *testing.T) {
	c := NewCollector(10*time.Second, 8*time.Second)
	c.Fetches.WithLabelValues("manual").Inc()
	c.FetchErrors.WithLabelValues("scheduled").Inc()
	c.LocationEvents.WithLabelValues("denied").Inc()
	c.ApproachingBuses.Set(3)

	srv := httptest.NewServer(c.Handler())
	defer srv.Close()
	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	out := string(body)
	assert.Contains(t, out, `tracker_fetches_total{trigger="manual"} 1`)
	assert.Contains(t, out, `tracker_fetch_errors_total{trigger="scheduled"} 1`)
	assert.Contains(t, out, `tracker_location_events_total{event="denied"} 1`)
	assert.Contains(t, out, "tracker_approaching_buses 3")
	assert.Contains(t, out, "tracker_refresh_period_seconds 10")
	assert.Contains(t, out, "tracker_fetch_timeout_seconds 8")
}

func TestCollector_OwnRegistry(t *testing.T) {
	a := NewCollector(time.Second, time.Second)
	b := NewCollector(time.Second, time.Second)
	assert.NotSame(t, a.Registry(), b.Registry(), "collectors never share the default registry")
}
