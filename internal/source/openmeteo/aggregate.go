package openmeteo

import (
	"github.com/igorvidecnik/databox-integration/internal/daterange"
	"github.com/igorvidecnik/databox-integration/internal/record"
)

type archiveResponse struct {
	Daily Daily `json:"daily"`
}

// Daily is the column-oriented daily block of an archive response. Each
// slice is parallel to Time; missing observations are nil.
type Daily struct {
	Time               []string   `json:"time"`
	TemperatureMax     []*float64 `json:"temperature_2m_max"`
	TemperatureMin     []*float64 `json:"temperature_2m_min"`
	TemperatureMean    []*float64 `json:"temperature_2m_mean"`
	PrecipitationSum   []*float64 `json:"precipitation_sum"`
	RainSum            []*float64 `json:"rain_sum"`
	SnowfallSum        []*float64 `json:"snowfall_sum"`
	PrecipitationHours []*float64 `json:"precipitation_hours"`
	WindSpeedMax       []*float64 `json:"wind_speed_10m_max"`
}

// Day is one day of weather. Nil fields mean the archive had no value.
type Day struct {
	Date               daterange.Date
	TemperatureMax     *float64
	TemperatureMin     *float64
	TemperatureMean    *float64
	PrecipitationMM    *float64
	RainMM             *float64
	SnowfallCM         *float64
	PrecipitationHours *float64
	WindSpeedMaxKMH    *float64
}

func (d Day) RecordDate() string { return d.Date.String() }

func (d Day) Cells() []record.Cell {
	return []record.Cell{
		{Name: "temperature_max_c", Value: d.TemperatureMax},
		{Name: "temperature_min_c", Value: d.TemperatureMin},
		{Name: "temperature_mean_c", Value: d.TemperatureMean},
		{Name: "precipitation_mm", Value: d.PrecipitationMM},
		{Name: "rain_mm", Value: d.RainMM},
		{Name: "snowfall_cm", Value: d.SnowfallCM},
		{Name: "precipitation_hours", Value: d.PrecipitationHours},
		{Name: "wind_speed_max_kmh", Value: d.WindSpeedMaxKMH},
	}
}

// Aggregate returns one Day per date of rng, ascending. Rows the upstream
// returned outside rng are ignored and missing dates are left all nil.
func Aggregate(daily Daily, rng daterange.Range) []Day {
	byDate := make(map[daterange.Date]Day, len(daily.Time))
	for i, s := range daily.Time {
		d, err := daterange.Parse(s)
		if err != nil || !rng.Contains(d) {
			continue
		}
		byDate[d] = Day{
			Date:               d,
			TemperatureMax:     at(daily.TemperatureMax, i),
			TemperatureMin:     at(daily.TemperatureMin, i),
			TemperatureMean:    at(daily.TemperatureMean, i),
			PrecipitationMM:    at(daily.PrecipitationSum, i),
			RainMM:             at(daily.RainSum, i),
			SnowfallCM:         at(daily.SnowfallSum, i),
			PrecipitationHours: at(daily.PrecipitationHours, i),
			WindSpeedMaxKMH:    at(daily.WindSpeedMax, i),
		}
	}

	days := rng.Days()
	out := make([]Day, 0, len(days))
	for _, d := range days {
		day, ok := byDate[d]
		if !ok {
			day = Day{Date: d}
		}
		out = append(out, day)
	}
	return out
}

// at tolerates columns shorter than the time axis.
func at(col []*float64, i int) *float64 {
	if i >= len(col) {
		return nil
	}
	return col[i]
}
