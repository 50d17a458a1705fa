package arrivals

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bus-tracker/internal/transit"
)

func TestUrgencyFor_Boundaries(t *testing.T) {
	cases := []struct {
		eta  int
		want Urgency
	}{
		{-1, Critical},
		{0, Critical},
		{2, Critical},
		{3, Warning},
		{5, Warning},
		{6, Normal},
		{45, Normal},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, UrgencyFor(tc.eta), "UrgencyFor(%d)", tc.eta)
	}
}

func TestShortAndLongETA(t *testing.T) {
	assert.Equal(t, "Now!", ShortETA(0))
	assert.Equal(t, "1 min", ShortETA(1))
	assert.Equal(t, "7 min", ShortETA(7))
	assert.Equal(t, "Now!", ShortETA(-4))

	assert.Equal(t, "Arriving now", LongETA(0))
	assert.Equal(t, "1 min away", LongETA(1))
	assert.Equal(t, "12 mins away", LongETA(12))
}

func TestProgressPercent(t *testing.T) {
	assert.Equal(t, 100.0, ProgressPercent(0))
	assert.Equal(t, 50.0, ProgressPercent(15))
	assert.Equal(t, 5.0, ProgressPercent(30))
	assert.Equal(t, 5.0, ProgressPercent(60))
	assert.Equal(t, 5.0, ProgressPercent(29))
	assert.InDelta(t, 90.0, ProgressPercent(3), 1e-9)
	assert.Equal(t, 100.0, ProgressPercent(-2))
}

func TestReduce_WithoutPassenger(t *testing.T) {
	bus := transit.BusArrival{BusNumber: "21G", ETAMinutes: 0, StopsAway: 1, TotalJourneyMinutes: 9}
	a := Reduce(bus, &transit.PassengerWalkInfo{WalkingMinutes: 4}, false)

	assert.Equal(t, Critical, a.Urgency)
	assert.Equal(t, "Now!", a.ShortETA)
	assert.Equal(t, "arriving", a.ArrivalWord)
	assert.Equal(t, "stop", a.StopsLabel)
	assert.Nil(t, a.Journey, "journey requires a passenger coordinate")
}

func TestReduce_WithPassenger(t *testing.T) {
	bus := transit.BusArrival{BusNumber: "21G", ETAMinutes: 4, StopsAway: 3, TotalJourneyMinutes: 11}
	walk := &transit.PassengerWalkInfo{WalkingDistanceKm: 0.6, WalkingMinutes: 7}

	a := Reduce(bus, walk, true)
	require.NotNil(t, a.Journey)
	assert.Equal(t, 4, a.Journey.RideMinutes)
	assert.Equal(t, 7, a.Journey.WalkMinutes)
	assert.Equal(t, 11, a.Journey.TotalMinutes, "total comes from upstream")
	assert.Equal(t, Normal, a.Journey.Urgency)
	assert.Equal(t, Warning, a.Urgency)
	assert.Equal(t, "stops", a.StopsLabel)
	assert.Equal(t, "away", a.ArrivalWord)

	assert.Nil(t, Reduce(bus, nil, true).Journey, "no walk info, no journey")
}

func TestReduceAll(t *testing.T) {
	buses := []transit.BusArrival{{ETAMinutes: 1}, {ETAMinutes: 7}}
	got := ReduceAll(buses, nil, false)
	require.Len(t, got, 2)
	assert.Equal(t, []Urgency{Critical, Normal}, []Urgency{got[0].Urgency, got[1].Urgency})
	assert.Equal(t, []string{"1 min", "7 min"}, []string{got[0].ShortETA, got[1].ShortETA})
}
