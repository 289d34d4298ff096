package strava

// hrCapFactor bounds heart-rate estimates relative to the MET estimate so a
// noisy strap cannot produce runaway totals.
const hrCapFactor = 1.6

// defaultMET applies to sports without a specific intensity coefficient.
const defaultMET = 6.0

// metBySport holds static intensity coefficients (metabolic equivalents).
var metBySport = map[string]float64{
	"Run":              9.8,
	"TrailRun":         10.0,
	"VirtualRun":       9.8,
	"Ride":             7.5,
	"VirtualRide":      7.0,
	"MountainBikeRide": 8.5,
	"GravelRide":       8.0,
	"EBikeRide":        4.0,
	"Walk":             3.5,
	"Hike":             6.0,
	"Swim":             8.0,
	"Rowing":           7.0,
	"WeightTraining":   5.0,
	"Yoga":             2.5,
}

// EnergyModel estimates energy expenditure for activities that do not report
// calories. A model without a positive weight estimates zero.
type EnergyModel struct {
	WeightKg float64
	AgeYears float64
}

// Estimate returns kilocalories for an activity of the given sport, duration
// (seconds) and average heart rate (0 when unknown).
func (m EnergyModel) Estimate(sport string, durationS, avgHR float64) float64 {
	if m.WeightKg <= 0 || durationS <= 0 {
		return 0
	}
	minutes := durationS / 60

	met, ok := metBySport[sport]
	if !ok {
		met = defaultMET
	}
	metKcal := met * m.WeightKg * minutes / 60

	if avgHR <= 0 {
		return metKcal
	}

	// Keytel et al. (2005), kJ/min converted to kcal/min.
	perMin := (-55.0969 + 0.6309*avgHR + 0.1988*m.WeightKg + 0.2017*m.AgeYears) / 4.184
	hrKcal := max(perMin, 0) * minutes
	return min(hrKcal, hrCapFactor*metKcal)
}

// Energy returns the activity's kilocalories: the reported value when
// positive, otherwise the model's estimate.
func (m EnergyModel) Energy(a Activity) float64 {
	if a.Calories > 0 {
		return float64(a.Calories)
	}
	hr := 0.0
	if a.HasHeartrate || a.AverageHeartrate > 0 {
		hr = float64(a.AverageHeartrate)
	}
	return m.Estimate(a.Sport(), a.Duration(), hr)
}
