package transit

import "time"

// GeoPoint is a WGS84 coordinate in degrees.
type GeoPoint struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

type Stop struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Code     string   `json:"code"`
	Address  string   `json:"address,omitempty"`
	Location GeoPoint `json:"location"`
}

// RoutePoint is one stop along a bus route, ordered origin to destination.
type RoutePoint struct {
	Lat           float64 `json:"lat"`
	Lng           float64 `json:"lng"`
	Name          string  `json:"name"`
	IsPassed      bool    `json:"isPassed"`
	IsScannedStop bool    `json:"isScannedStop"`
}

func (p RoutePoint) Point() GeoPoint { return GeoPoint{Lat: p.Lat, Lng: p.Lng} }

type BusArrival struct {
	ID                  string       `json:"id"`
	BusNumber           string       `json:"busNumber"`
	BusName             string       `json:"busName,omitempty"`
	RouteNumber         string       `json:"routeNumber"`
	RouteName           string       `json:"routeName"`
	CurrentLocation     *GeoPoint    `json:"currentLocation,omitempty"`
	SpeedKmh            float64      `json:"speedKmh"`
	ETAMinutes          int          `json:"etaMinutes"`
	DistanceKm          float64      `json:"distanceKm"`
	StopsAway           int          `json:"stopsAway"`
	TotalJourneyMinutes int          `json:"totalJourneyMinutes"` // only meaningful when a passenger coordinate was sent
	RoutePolyline       []RoutePoint `json:"routePolyline"`
}

type PassengerWalkInfo struct {
	WalkingDistanceKm float64 `json:"walkingDistanceKm"`
	WalkingMinutes    int     `json:"walkingMinutes"`
}

// Snapshot is the result of one arrivals fetch for a stop. It is replaced
// wholesale on every refresh and never mutated.
type Snapshot struct {
	Stop      Stop               `json:"stop"`
	Buses     []BusArrival       `json:"buses"`
	Passenger *PassengerWalkInfo `json:"passenger,omitempty"`
	FetchedAt time.Time          `json:"fetchedAt"`
}

// LiveBus is a record from the global bus feed.
type LiveBus struct {
	ID              string    `json:"id"`
	BusNumber       string    `json:"busNumber"`
	BusName         string    `json:"busName,omitempty"`
	RouteNumber     string    `json:"routeNumber,omitempty"`
	CurrentLocation *GeoPoint `json:"currentLocation,omitempty"`
	SpeedKmh        float64   `json:"speedKmh"`
}

type Route struct {
	ID     string   `json:"id"`
	Number string   `json:"number"`
	Name   string   `json:"name"`
	Stops  []string `json:"stops,omitempty"`
}

type ErrorKind string

const (
	ErrNone                     ErrorKind = ""
	ErrNetwork                  ErrorKind = "network_error"
	ErrLocationPermissionDenied ErrorKind = "location_permission_denied"
	ErrLocationUnsupported      ErrorKind = "location_unsupported"
	ErrLocationTimeout          ErrorKind = "location_timeout"
)

// Message returns the user-facing text for an error kind.
func (k ErrorKind) Message() string {
	switch k {
	case ErrNetwork:
		return "Could not reach server. Check your connection."
	case ErrLocationPermissionDenied:
		return "Location permission denied. Walking time is unavailable."
	case ErrLocationUnsupported:
		return "Location is not available on this device."
	case ErrLocationTimeout:
		return "Could not get your location in time."
	default:
		return ""
	}
}
