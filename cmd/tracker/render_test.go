package main

import (
	"bytes"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"bus-tracker/internal/arrivals"
	"bus-tracker/internal/tracking"
	"bus-tracker/internal/transit"
)

func sampleView() tracking.ViewModel {
	bus := transit.BusArrival{BusNumber: "21G", RouteNumber: "21", RouteName: "Broadway", ETAMinutes: 3, StopsAway: 1}
	a := arrivals.Reduce(bus, nil, false)
	second := arrivals.Reduce(transit.BusArrival{BusNumber: "23C", ETAMinutes: 9}, nil, false)
	return tracking.ViewModel{
		Stop:      &transit.Stop{Name: "Central", Code: "CEN-01"},
		Countdown: 10,
		Buses: []tracking.BusTab{
			{Index: 0, IsNext: true, Arrival: a},
			{Index: 1, Arrival: second},
		},
		ShowTabs: true,
		Selected: &tracking.SelectedBus{Label: "Next Bus", Arrival: a},
	}
}

func TestFormatView(t *testing.T) {
	out := formatView(sampleView())
	assert.Contains(t, out, "== Central [CEN-01] ==")
	assert.Contains(t, out, "[21G (Next)]  23C")
	assert.Contains(t, out, "Next Bus: 21G  21 - Broadway")
	assert.Contains(t, out, "3 min away (warning)")
	assert.Contains(t, out, "1 stop ")

	assert.Equal(t, "Loading arrivals...\n", formatView(tracking.ViewModel{Loading: true}))
	fatal := formatView(tracking.ViewModel{Fatal: true, ErrorMessage: transit.ErrNetwork.Message()})
	assert.True(t, strings.HasPrefix(fatal, "Could not reach server."))
	assert.Contains(t, formatView(tracking.ViewModel{NoBuses: true}), "No buses approaching")
}

func TestRenderer_SkipsCountdownOnlyChanges(t *testing.T) {
	var buf bytes.Buffer
	r := newRenderer(&buf)
	v := sampleView()
	r.Render(v)
	first := buf.Len()
	assert.Positive(t, first)

	v.Countdown = 9
	r.Render(v)
	assert.Equal(t, first, buf.Len())

	v.SelectedIndex = 1
	r.Render(v)
	assert.Greater(t, buf.Len(), first)
}

func TestRenderer_ConcurrentRendersEndOnLastPrinted(t *testing.T) {
	var buf bytes.Buffer
	r := newRenderer(&buf)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v := sampleView()
			v.SelectedIndex = i % 2
			r.Render(v)
		}(i)
	}
	wg.Wait()

	r.mu.Lock()
	defer r.mu.Unlock()
	assert.True(t, strings.HasSuffix(buf.String(), r.last), "the remembered view is the one on screen")
}

func TestProgressBar(t *testing.T) {
	assert.Equal(t, "[#####-----] 50%", progressBar(50, 10))
	assert.Equal(t, "[##########] 100%", progressBar(100, 10))
	assert.Equal(t, "[----------] 0%", progressBar(0, 10))
}
