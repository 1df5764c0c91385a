package models

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// TimestampLayout is the wall-clock format used by the dashboard
const TimestampLayout = "2006-01-02 15:04:05"

// Reading is one enriched poll result. It is built once per successful poll
// and never modified afterwards.
type Reading struct {
	ID            string    `json:"id"`
	Timestamp     time.Time `json:"timestamp"`
	RawPPM        float64   `json:"raw_ppm"`        // Unprocessed sensor value
	CalibratedPPM float64   `json:"ml_ppm"`         // Model output
	AQI           float64   `json:"aqi"`            // Device supplied or derived
	GasPercentage float64   `json:"gas_percentage"` // 0-100
	IP            string    `json:"ip"`
	MAC           string    `json:"mac"`
}

// MarshalJSON renders the timestamp in the dashboard layout
func (r Reading) MarshalJSON() ([]byte, error) {
	type alias Reading
	return json.Marshal(&struct {
		alias
		Timestamp string `json:"timestamp"`
	}{
		alias:     alias(r),
		Timestamp: r.Timestamp.Format(TimestampLayout),
	})
}

func (r Reading) String() string {
	return fmt.Sprintf("Reading{time=%s, raw=%.2f ppm, calibrated=%.2f ppm, aqi=%.2f, gas=%.2f%%, ip=%s, mac=%s}",
		r.Timestamp.Format(TimestampLayout), r.RawPPM, r.CalibratedPPM, r.AQI, r.GasPercentage, r.IP, r.MAC)
}

// SensorPayload is the JSON document served by the sensor on /data.
// Every field except MAC is optional.
type SensorPayload struct {
	MAC           string     `json:"mac"`
	RawPPM        *FlexFloat `json:"raw_ppm,omitempty"`
	CalibratedPPM *FlexFloat `json:"ml_ppm,omitempty"`
	AQI           *FlexFloat `json:"aqi,omitempty"`
	GasPercentage *FlexFloat `json:"gas_percentage,omitempty"`
	IP            string     `json:"ip,omitempty"`
}

// FlexFloat decodes a JSON number or a numeric string.
// The firmware has shipped both encodings.
type FlexFloat float64

// UnmarshalJSON implements json.Unmarshaler
func (f *FlexFloat) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if s == "null" {
		return nil
	}
	if unquoted, err := strconv.Unquote(s); err == nil {
		s = strings.TrimSpace(unquoted)
	}

	value, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("invalid numeric value %s: %w", string(data), err)
	}
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return fmt.Errorf("non-finite numeric value %s", string(data))
	}
	*f = FlexFloat(value)
	return nil
}

// Float returns the value and whether it was present
func (f *FlexFloat) Float() (float64, bool) {
	if f == nil {
		return 0, false
	}
	return float64(*f), true
}
