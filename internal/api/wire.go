package api

import (
	"encoding/json"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"bus-tracker/internal/geo"
	"bus-tracker/internal/transit"
)

// Records as served by the backend. Locations are stored as GeoJSON points
// ([lng, lat]); ids use the `_id` key.

type wireStop struct {
	ID       string          `json:"_id"`
	Name     string          `json:"name"`
	StopCode string          `json:"stopCode"`
	Address  string          `json:"address"`
	Location json.RawMessage `json:"location"`
}

type wireRoutePoint struct {
	Lat           float64 `json:"lat"`
	Lng           float64 `json:"lng"`
	Name          string  `json:"name"`
	IsPassed      bool    `json:"isPassed"`
	IsScannedStop bool    `json:"isScannedStop"`
}

type wireBus struct {
	ID                  string           `json:"_id"`
	BusNumber           string           `json:"busNumber"`
	BusName             string           `json:"busName"`
	RouteNumber         string           `json:"routeNumber"`
	RouteName           string           `json:"routeName"`
	CurrentLocation     json.RawMessage  `json:"currentLocation"`
	Speed               float64          `json:"speed"`
	ETAMinutes          int              `json:"etaMinutes"`
	DistanceKm          float64          `json:"distanceKm"`
	StopsAway           int              `json:"stopsAway"`
	TotalJourneyMinutes int              `json:"totalJourneyMinutes"`
	RoutePolyline       []wireRoutePoint `json:"routePolyline"`
}

type wirePassenger struct {
	WalkingDistanceKm float64 `json:"walkingDistanceKm"`
	WalkingMinutes    int     `json:"walkingMinutes"`
}

type wireStopArrivals struct {
	Stop      wireStop       `json:"stop"`
	Buses     []wireBus      `json:"buses"`
	Passenger *wirePassenger `json:"passenger"`
}

type wireRoute struct {
	ID          string   `json:"_id"`
	RouteNumber string   `json:"routeNumber"`
	RouteName   string   `json:"routeName"`
	Stops       []string `json:"stops"`
}

// decodePoint reads a GeoJSON Point. Missing, malformed or non-point
// geometries yield nil.
func decodePoint(raw json.RawMessage) *transit.GeoPoint {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	var shape struct {
		Coordinates []float64 `json:"coordinates"`
	}
	if err := json.Unmarshal(raw, &shape); err != nil || len(shape.Coordinates) != 2 {
		return nil
	}
	g, err := geojson.UnmarshalGeometry(raw)
	if err != nil || g == nil {
		return nil
	}
	pt, ok := g.Geometry().(orb.Point)
	if !ok {
		return nil
	}
	p := geo.FromOrb(pt)
	return &p
}

func (w wireStop) toStop() transit.Stop {
	s := transit.Stop{
		ID:      w.ID,
		Name:    w.Name,
		Code:    w.StopCode,
		Address: w.Address,
	}
	if p := decodePoint(w.Location); p != nil {
		s.Location = *p
	}
	return s
}

func (w wireBus) toArrival() transit.BusArrival {
	b := transit.BusArrival{
		ID:                  w.ID,
		BusNumber:           w.BusNumber,
		BusName:             w.BusName,
		RouteNumber:         w.RouteNumber,
		RouteName:           w.RouteName,
		CurrentLocation:     decodePoint(w.CurrentLocation),
		SpeedKmh:            nonNegative(w.Speed),
		ETAMinutes:          max(w.ETAMinutes, 0),
		DistanceKm:          nonNegative(w.DistanceKm),
		StopsAway:           max(w.StopsAway, 0),
		TotalJourneyMinutes: max(w.TotalJourneyMinutes, 0),
	}
	if len(w.RoutePolyline) > 0 {
		b.RoutePolyline = make([]transit.RoutePoint, 0, len(w.RoutePolyline))
		for _, p := range w.RoutePolyline {
			b.RoutePolyline = append(b.RoutePolyline, transit.RoutePoint(p))
		}
	}
	return b
}

func (w wireBus) toLiveBus() transit.LiveBus {
	return transit.LiveBus{
		ID:              w.ID,
		BusNumber:       w.BusNumber,
		BusName:         w.BusName,
		RouteNumber:     w.RouteNumber,
		CurrentLocation: decodePoint(w.CurrentLocation),
		SpeedKmh:        nonNegative(w.Speed),
	}
}

func nonNegative(f float64) float64 {
	if f < 0 {
		return 0
	}
	return f
}
