// Package strava fetches athlete activities from the Strava API and folds
// them into one record per local calendar day.
package strava

import (
	"bytes"
	"encoding/json"
	"math"

	"github.com/spf13/cast"
)

// Number is a tolerant JSON number: null, missing, non-finite and other
// non-numeric payloads decode to zero instead of failing the page.
type Number float64

func (n *Number) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*n = 0
		return nil
	}
	var raw any
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		*n = 0
		return nil
	}
	f, err := cast.ToFloat64E(raw)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		f = 0
	}
	*n = Number(f)
	return nil
}

// Activity is the subset of a Strava SummaryActivity the aggregator reads.
type Activity struct {
	ID                 int64  `json:"id"`
	Name               string `json:"name"`
	Type               string `json:"type"`
	SportType          string `json:"sport_type"`
	StartDate          string `json:"start_date"`
	StartDateLocal     string `json:"start_date_local"`
	Distance           Number `json:"distance"`
	MovingTime         Number `json:"moving_time"`
	ElapsedTime        Number `json:"elapsed_time"`
	TotalElevationGain Number `json:"total_elevation_gain"`
	HasHeartrate       bool   `json:"has_heartrate"`
	AverageHeartrate   Number `json:"average_heartrate"`
	Calories           Number `json:"calories"`
}

// Sport returns the most specific activity category available.
func (a Activity) Sport() string {
	if a.SportType != "" {
		return a.SportType
	}
	return a.Type
}

// Duration returns the activity's duration in seconds, preferring moving time.
func (a Activity) Duration() float64 {
	if a.MovingTime > 0 {
		return float64(a.MovingTime)
	}
	return float64(a.ElapsedTime)
}
