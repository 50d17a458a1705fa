package tracking

import (
	"fmt"
	"time"

	"bus-tracker/internal/arrivals"
	"bus-tracker/internal/location"
	"bus-tracker/internal/refresh"
	"bus-tracker/internal/route"
	"bus-tracker/internal/transit"
)

// ViewModel is everything the presentation layer needs for one stop and one
// selected bus.
type ViewModel struct {
	SessionID string `json:"sessionId"`
	StopID    string `json:"stopId"`

	Stop    *transit.Stop `json:"stop,omitempty"`
	Loading bool          `json:"loading"`

	// Fatal means the arrivals fetch failed with nothing to show; the view
	// should offer Retry.
	Fatal        bool              `json:"fatal"`
	Error        transit.ErrorKind `json:"error,omitempty"`
	ErrorMessage string            `json:"errorMessage,omitempty"`

	Countdown     int        `json:"countdown"`
	PeriodSeconds int        `json:"periodSeconds"`
	LastRefresh   *time.Time `json:"lastRefresh,omitempty"`
	Refreshing    bool       `json:"refreshing"`

	Buses         []BusTab     `json:"buses"`
	ShowTabs      bool         `json:"showTabs"`
	NoBuses       bool         `json:"noBuses"`
	SelectedIndex int          `json:"selectedIndex"`
	Selected      *SelectedBus `json:"selected,omitempty"`

	Location  LocationView               `json:"location"`
	Passenger *transit.PassengerWalkInfo `json:"passenger,omitempty"`
}

type BusTab struct {
	Index  int  `json:"index"`
	IsNext bool `json:"isNext"`
	arrivals.Arrival
}

type SelectedBus struct {
	Label   string           `json:"label"`
	Arrival arrivals.Arrival `json:"arrival"`
	Map     route.MapView    `json:"map"`
}

type LocationView struct {
	Status    location.Status   `json:"status"`
	Tracking  bool              `json:"tracking"`
	Coord     *transit.GeoPoint `json:"coord,omitempty"`
	AccuracyM float64           `json:"accuracy,omitempty"`
	Error     transit.ErrorKind `json:"error,omitempty"`
	Notice    string            `json:"notice,omitempty"`
}

// BusLabel is the heading for the bus at index i.
func BusLabel(i int) string {
	if i == 0 {
		return "Next Bus"
	}
	return fmt.Sprintf("Bus %d", i+1)
}

// clampIndex returns i when it addresses one of n buses and 0 otherwise.
func clampIndex(i, n int) int {
	if i < 0 || i >= n {
		return 0
	}
	return i
}

// BuildView combines the scheduler and tracker states with the selected
// index. Passenger-dependent fields are only filled while location is
// Granted.
func BuildView(rs refresh.State, ls location.State, selected int) ViewModel {
	granted := ls.Status == location.Granted && ls.Coord != nil
	v := ViewModel{
		StopID:        rs.StopID,
		Loading:       rs.Loading,
		Fatal:         rs.Fatal,
		Error:         rs.LastError,
		ErrorMessage:  rs.LastError.Message(),
		Countdown:     rs.Countdown,
		PeriodSeconds: int(refresh.Period / time.Second),
		Refreshing:    rs.ManualInFlight,
		Buses:         []BusTab{},
		Location: LocationView{
			Status: ls.Status,
			Error:  ls.Err,
			Notice: ls.Notice(),
		},
	}
	if !rs.LastRefresh.IsZero() {
		t := rs.LastRefresh
		v.LastRefresh = &t
	}
	if granted {
		c := *ls.Coord
		v.Location.Tracking = true
		v.Location.Coord = &c
		v.Location.AccuracyM = ls.AccuracyM
	}
	if rs.Data == nil {
		return v
	}

	stop := rs.Data.Stop
	v.Stop = &stop
	var walk *transit.PassengerWalkInfo
	if granted && rs.Data.Passenger != nil {
		w := *rs.Data.Passenger
		walk = &w
		v.Passenger = walk
	}

	reduced := arrivals.ReduceAll(rs.Data.Buses, walk, granted)
	for i, a := range reduced {
		v.Buses = append(v.Buses, BusTab{Index: i, IsNext: i == 0, Arrival: a})
	}
	v.ShowTabs = len(reduced) > 1
	v.NoBuses = len(reduced) == 0
	if v.NoBuses {
		return v
	}

	idx := clampIndex(selected, len(reduced))
	v.SelectedIndex = idx
	bus := rs.Data.Buses[idx]
	v.Selected = &SelectedBus{
		Label:   BusLabel(idx),
		Arrival: reduced[idx],
		Map: route.Build(route.Input{
			Route:     bus.RoutePolyline,
			Bus:       bus.CurrentLocation,
			Passenger: v.Location.Coord,
			Tracking:  granted,
		}),
	}
	return v
}
