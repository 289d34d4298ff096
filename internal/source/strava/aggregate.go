package strava

import (
	"math"
	"time"

	"github.com/shopspring/decimal"

	"github.com/igorvidecnik/databox-integration/internal/daterange"
	"github.com/igorvidecnik/databox-integration/internal/record"
)

// Category labels counted per day, matched exactly against the activity sport.
const (
	sportRun  = "Run"
	sportRide = "Ride"
	sportWalk = "Walk"
	sportSwim = "Swim"
)

// Day is one day of aggregated activity in output units.
type Day struct {
	Date           daterange.Date
	Activities     int
	Runs           int
	Rides          int
	Walks          int
	Swims          int
	DistanceKm     float64
	MovingTimeMin  int
	ElapsedTimeMin int
	ElevationGainM float64
	Calories       int
}

func (d Day) RecordDate() string { return d.Date.String() }

func (d Day) Cells() []record.Cell {
	return []record.Cell{
		{Name: "activities", Value: d.Activities},
		{Name: "runs", Value: d.Runs},
		{Name: "rides", Value: d.Rides},
		{Name: "walks", Value: d.Walks},
		{Name: "swims", Value: d.Swims},
		{Name: "distance_km", Value: d.DistanceKm},
		{Name: "moving_time_min", Value: d.MovingTimeMin},
		{Name: "elapsed_time_min", Value: d.ElapsedTimeMin},
		{Name: "elevation_gain_m", Value: d.ElevationGainM},
		{Name: "calories", Value: d.Calories},
	}
}

// bucket accumulates raw units for a single day.
type bucket struct {
	activities, runs, rides, walks, swims int
	distanceM, movingS, elapsedS          float64
	elevationM, kcal                      float64
}

func (b *bucket) add(a Activity, kcal float64) {
	b.activities++
	switch a.Sport() {
	case sportRun:
		b.runs++
	case sportRide:
		b.rides++
	case sportWalk:
		b.walks++
	case sportSwim:
		b.swims++
	}
	b.distanceM += float64(a.Distance)
	b.movingS += float64(a.MovingTime)
	b.elapsedS += float64(a.ElapsedTime)
	b.elevationM += float64(a.TotalElevationGain)
	b.kcal += kcal
}

func (b *bucket) day(d daterange.Date) Day {
	return Day{
		Date:           d,
		Activities:     b.activities,
		Runs:           b.runs,
		Rides:          b.rides,
		Walks:          b.walks,
		Swims:          b.swims,
		DistanceKm:     round(b.distanceM/1000, 3),
		MovingTimeMin:  int(round(b.movingS/60, 0)),
		ElapsedTimeMin: int(round(b.elapsedS/60, 0)),
		ElevationGainM: round(b.elevationM, 1),
		Calories:       int(round(b.kcal, 0)),
	}
}

// buckets is an ordered day → accumulator map built fresh for each call.
type buckets struct {
	days  []daterange.Date
	index map[daterange.Date]*bucket
}

func newBuckets(rng daterange.Range) *buckets {
	days := rng.Days()
	bs := &buckets{days: days, index: make(map[daterange.Date]*bucket, len(days))}
	for _, d := range days {
		bs.index[d] = &bucket{}
	}
	return bs
}

// Aggregate folds activities into one Day per date of rng, ascending.
// Activities whose local day falls outside rng are dropped.
func Aggregate(activities []Activity, rng daterange.Range, loc *time.Location, model EnergyModel, now func() time.Time) []Day {
	bs := newBuckets(rng)
	for _, a := range activities {
		b, ok := bs.index[localDay(a, loc, now)]
		if !ok {
			continue
		}
		b.add(a, model.Energy(a))
	}

	out := make([]Day, 0, len(bs.days))
	for _, d := range bs.days {
		out = append(out, bs.index[d].day(d))
	}
	return out
}

// localDay attributes an activity to a calendar day in loc.
// start_date_local is already wall-clock time (Strava suffixes it with Z), so
// its date is taken as-is; start_date is UTC and is converted.
func localDay(a Activity, loc *time.Location, now func() time.Time) daterange.Date {
	if t, err := time.Parse(time.RFC3339, a.StartDateLocal); err == nil {
		return daterange.Of(t)
	}
	if t, err := time.Parse(time.RFC3339, a.StartDate); err == nil {
		return daterange.Of(t.In(loc))
	}
	return daterange.Of(now().In(loc))
}

func round(v float64, places int32) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	f, _ := decimal.NewFromFloat(v).Round(places).Float64()
	return f
}
