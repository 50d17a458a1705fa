// Package arrivals derives presentation values from raw bus arrival records.
// Every helper is total over int: negative minutes are treated as zero.
package arrivals

import (
	"fmt"

	"bus-tracker/internal/transit"
)

type Urgency string

const (
	Critical Urgency = "critical"
	Warning  Urgency = "warning"
	Normal   Urgency = "normal"
)

// ProgressHorizonMinutes is the ETA at which the progress bar bottoms out.
const ProgressHorizonMinutes = 30

const minProgress = 5.0

func UrgencyFor(eta int) Urgency {
	switch {
	case eta <= 2:
		return Critical
	case eta <= 5:
		return Warning
	default:
		return Normal
	}
}

func ShortETA(eta int) string {
	eta = max(eta, 0)
	switch eta {
	case 0:
		return "Now!"
	case 1:
		return "1 min"
	default:
		return fmt.Sprintf("%d min", eta)
	}
}

func LongETA(eta int) string {
	eta = max(eta, 0)
	switch eta {
	case 0:
		return "Arriving now"
	case 1:
		return "1 min away"
	default:
		return fmt.Sprintf("%d mins away", eta)
	}
}

// ProgressPercent maps 0 minutes to 100% and ProgressHorizonMinutes or more
// to a 5% floor.
func ProgressPercent(eta int) float64 {
	eta = max(eta, 0)
	pct := 100 - float64(eta)/ProgressHorizonMinutes*100
	return min(max(pct, minProgress), 100)
}

// Journey is the walk + ride breakdown for a passenger with a known position.
type Journey struct {
	WalkMinutes       int     `json:"walkMinutes"`
	WalkingDistanceKm float64 `json:"walkingDistanceKm"`
	RideMinutes       int     `json:"rideMinutes"`
	TotalMinutes      int     `json:"totalMinutes"`
	Urgency           Urgency `json:"urgency"`
}

type Arrival struct {
	Bus         transit.BusArrival `json:"bus"`
	Urgency     Urgency            `json:"urgency"`
	ShortETA    string             `json:"shortEta"`
	LongETA     string             `json:"longEta"`
	ArrivalWord string             `json:"arrivalWord"`
	Progress    float64            `json:"progressPercent"`
	StopsLabel  string             `json:"stopsLabel"`
	Journey     *Journey           `json:"journey,omitempty"`
}

// Reduce derives the presentation values for one bus. The journey is only
// attached when the passenger position is known and the backend supplied
// walk info; its total comes from upstream and is not recomputed.
func Reduce(bus transit.BusArrival, walk *transit.PassengerWalkInfo, hasPassenger bool) Arrival {
	eta := max(bus.ETAMinutes, 0)
	a := Arrival{
		Bus:         bus,
		Urgency:     UrgencyFor(eta),
		ShortETA:    ShortETA(eta),
		LongETA:     LongETA(eta),
		ArrivalWord: "away",
		Progress:    ProgressPercent(eta),
		StopsLabel:  "stops",
	}
	if eta == 0 {
		a.ArrivalWord = "arriving"
	}
	if bus.StopsAway == 1 {
		a.StopsLabel = "stop"
	}
	if hasPassenger && walk != nil {
		total := max(bus.TotalJourneyMinutes, 0)
		a.Journey = &Journey{
			WalkMinutes:       max(walk.WalkingMinutes, 0),
			WalkingDistanceKm: walk.WalkingDistanceKm,
			RideMinutes:       eta,
			TotalMinutes:      total,
			Urgency:           UrgencyFor(total),
		}
	}
	return a
}

// ReduceAll reduces a whole bus list, preserving order.
func ReduceAll(buses []transit.BusArrival, walk *transit.PassengerWalkInfo, hasPassenger bool) []Arrival {
	out := make([]Arrival, 0, len(buses))
	for _, b := range buses {
		out = append(out, Reduce(b, walk, hasPassenger))
	}
	return out
}
