// Package route reduces a bus route polyline and live positions into the
// point sets a map view consumes.
package route

import (
	"bus-tracker/internal/geo"
	"bus-tracker/internal/transit"
)

const (
	DefaultZoom  = 13
	FitMaxZoom   = 15
	FitPaddingPx = 48
)

// FallbackCenter is used only when there is nothing else to center on.
var FallbackCenter = transit.GeoPoint{Lat: 13.0827, Lng: 80.2707}

type MarkerKind string

const (
	MarkerScanned  MarkerKind = "scanned"
	MarkerPassed   MarkerKind = "passed"
	MarkerUpcoming MarkerKind = "upcoming"
)

type Marker struct {
	Point transit.GeoPoint `json:"point"`
	Name  string           `json:"name"`
	Kind  MarkerKind       `json:"kind"`
}

type Input struct {
	Route     []transit.RoutePoint
	Bus       *transit.GeoPoint
	Passenger *transit.GeoPoint
	// Tracking reports whether the passenger coordinate is live; a stale
	// coordinate is not shown.
	Tracking bool
}

type MapView struct {
	HasRoute bool `json:"hasRoute"`

	Passed     []transit.GeoPoint `json:"passed"`
	Ahead      []transit.GeoPoint `json:"ahead"`
	DrawPassed bool               `json:"drawPassed"`
	DrawAhead  bool               `json:"drawAhead"`

	ScannedStop *transit.RoutePoint `json:"scannedStop,omitempty"`
	Bus         *transit.GeoPoint   `json:"bus,omitempty"`
	Passenger   *transit.GeoPoint   `json:"passenger,omitempty"`
	WalkLine    []transit.GeoPoint  `json:"walkLine,omitempty"`

	BoundPoints []transit.GeoPoint `json:"boundPoints"`
	Fit         bool               `json:"fit"`
	Bounds      *geo.Bounds        `json:"bounds,omitempty"`
	Center      transit.GeoPoint   `json:"center"`
	Zoom        int                `json:"zoom"`

	FitMaxZoom   int `json:"fitMaxZoom,omitempty"`
	FitPaddingPx int `json:"fitPaddingPx,omitempty"`

	Markers []Marker `json:"markers"`
	Strip   []Marker `json:"strip"`
}

// Partition splits the polyline on IsPassed, preserving order.
func Partition(points []transit.RoutePoint) (passed, ahead []transit.GeoPoint) {
	for _, p := range points {
		if p.IsPassed {
			passed = append(passed, p.Point())
		} else {
			ahead = append(ahead, p.Point())
		}
	}
	return passed, ahead
}

// DrawableLine reports whether a point sequence can be rendered as a line.
func DrawableLine(points []transit.GeoPoint) bool { return len(points) >= 2 }

// ScannedStop returns the point the view is anchored to, or nil.
func ScannedStop(points []transit.RoutePoint) *transit.RoutePoint {
	for i := range points {
		if points[i].IsScannedStop {
			p := points[i]
			return &p
		}
	}
	return nil
}

func Build(in Input) MapView {
	passed, ahead := Partition(in.Route)
	v := MapView{
		HasRoute:    len(in.Route) > 0,
		Passed:      passed,
		Ahead:       ahead,
		DrawPassed:  DrawableLine(passed),
		DrawAhead:   DrawableLine(ahead),
		ScannedStop: ScannedStop(in.Route),
		Bus:         in.Bus,
		Zoom:        DefaultZoom,
	}
	var passenger *transit.GeoPoint
	if in.Tracking && in.Passenger != nil {
		passenger = in.Passenger
	}
	v.Passenger = passenger

	v.BoundPoints = make([]transit.GeoPoint, 0, len(in.Route)+2)
	for _, p := range in.Route {
		v.BoundPoints = append(v.BoundPoints, p.Point())
	}
	if in.Bus != nil {
		v.BoundPoints = append(v.BoundPoints, *in.Bus)
	}
	if passenger != nil {
		v.BoundPoints = append(v.BoundPoints, *passenger)
	}

	// Center is the initial view; with Fit set the map then fits Bounds.
	v.Center = center(passenger, v.ScannedStop, v.BoundPoints)
	if len(v.BoundPoints) >= 2 {
		if b, ok := geo.Bound(v.BoundPoints); ok {
			v.Fit = true
			v.Bounds = &b
			v.FitMaxZoom = FitMaxZoom
			v.FitPaddingPx = FitPaddingPx
		}
	}

	if passenger != nil && v.ScannedStop != nil {
		v.WalkLine = []transit.GeoPoint{*passenger, v.ScannedStop.Point()}
	}

	v.Markers = make([]Marker, 0, len(in.Route))
	for _, p := range in.Route {
		v.Markers = append(v.Markers, Marker{Point: p.Point(), Name: p.Name, Kind: kindOf(p)})
	}
	v.Strip = v.Markers
	return v
}

// center picks the initial view center.
func center(passenger *transit.GeoPoint, scanned *transit.RoutePoint, bound []transit.GeoPoint) transit.GeoPoint {
	switch {
	case passenger != nil:
		return *passenger
	case scanned != nil:
		return scanned.Point()
	case len(bound) > 0:
		return bound[0]
	default:
		return FallbackCenter
	}
}

func kindOf(p transit.RoutePoint) MarkerKind {
	switch {
	case p.IsScannedStop:
		return MarkerScanned
	case p.IsPassed:
		return MarkerPassed
	default:
		return MarkerUpcoming
	}
}
