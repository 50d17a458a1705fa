package main

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"bus-tracker/internal/tracking"
)

// renderer prints the view whenever something other than the countdown
// changes.
type renderer struct {
	mu   sync.Mutex
	w    io.Writer
	last string
}

func newRenderer(w io.Writer) *renderer { return &renderer{w: w} }

func (r *renderer) Render(v tracking.ViewModel) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := formatView(v)
	if s == r.last {
		return
	}
	r.last = s
	fmt.Fprint(r.w, s)
}

func formatView(v tracking.ViewModel) string {
	var b strings.Builder
	switch {
	case v.Loading:
		b.WriteString("Loading arrivals...\n")
		return b.String()
	case v.Fatal:
		fmt.Fprintf(&b, "%s\nPress Retry (POST /api/retry) to try again.\n", v.ErrorMessage)
		return b.String()
	}

	if v.Stop != nil {
		fmt.Fprintf(&b, "== %s", v.Stop.Name)
		if v.Stop.Code != "" {
			fmt.Fprintf(&b, " [%s]", v.Stop.Code)
		}
		b.WriteString(" ==\n")
	}
	if v.ErrorMessage != "" {
		fmt.Fprintf(&b, "! %s\n", v.ErrorMessage)
	}
	if n := v.Location.Notice; n != "" {
		fmt.Fprintf(&b, "* %s\n", n)
	}
	if v.Passenger != nil {
		fmt.Fprintf(&b, "You are %.2f km away, about %d min walk\n", v.Passenger.WalkingDistanceKm, v.Passenger.WalkingMinutes)
	}

	if v.NoBuses {
		b.WriteString("No buses approaching this stop right now.\n")
		return b.String()
	}
	if v.ShowTabs {
		tabs := make([]string, 0, len(v.Buses))
		for _, t := range v.Buses {
			label := t.Bus.BusNumber
			if t.IsNext {
				label += " (Next)"
			}
			if t.Index == v.SelectedIndex {
				label = "[" + label + "]"
			}
			tabs = append(tabs, label)
		}
		b.WriteString(strings.Join(tabs, "  ") + "\n")
	}

	if sel := v.Selected; sel != nil {
		a := sel.Arrival
		fmt.Fprintf(&b, "%s: %s  %s - %s\n", sel.Label, a.Bus.BusNumber, a.Bus.RouteNumber, a.Bus.RouteName)
		fmt.Fprintf(&b, "  %s %s (%s)  %.1f km  %d %s  %.0f km/h\n",
			a.ShortETA, a.ArrivalWord, a.Urgency, a.Bus.DistanceKm, a.Bus.StopsAway, a.StopsLabel, a.Bus.SpeedKmh)
		fmt.Fprintf(&b, "  %s\n", progressBar(a.Progress, 30))
		if j := a.Journey; j != nil {
			fmt.Fprintf(&b, "  walk %d min + ride %d min = %d min (%s)\n", j.WalkMinutes, j.RideMinutes, j.TotalMinutes, j.Urgency)
		}
		if m := sel.Map; m.HasRoute {
			fmt.Fprintf(&b, "  route: %d passed, %d ahead\n", len(m.Passed), len(m.Ahead))
		}
	}
	return b.String()
}

func progressBar(pct float64, width int) string {
	filled := int(pct / 100 * float64(width))
	filled = min(max(filled, 0), width)
	return "[" + strings.Repeat("#", filled) + strings.Repeat("-", width-filled) + fmt.Sprintf("] %.0f%%", pct)
}
