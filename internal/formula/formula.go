// Package formula reproduces the sensor firmware's derived values so that
// readings stay comparable when the device omits them.
package formula

import "math"

// MaxGasPPM is the concentration treated as full scale
const MaxGasPPM = 10000.0

// aqiBand maps concentrations in [Low, High) onto [IndexLow, IndexLow+Slope*(High-Low))
type aqiBand struct {
	Low      float64
	High     float64
	IndexLow float64
	Slope    float64
}

// aqiBands mirrors the firmware table. The last band is open ended.
var aqiBands = []aqiBand{
	{Low: 0, High: 50, IndexLow: 0, Slope: 50.0 / 50.0},
	{Low: 50, High: 100, IndexLow: 50, Slope: 50.0 / 50.0},
	{Low: 100, High: 150, IndexLow: 100, Slope: 50.0 / 50.0},
	{Low: 150, High: 200, IndexLow: 150, Slope: 50.0 / 50.0},
	{Low: 200, High: 300, IndexLow: 200, Slope: 100.0 / 100.0},
	{Low: 300, High: math.Inf(1), IndexLow: 300, Slope: 200.0 / 200.0},
}

// AirQualityIndex converts a gas concentration (ppm) to an air-quality index
func AirQualityIndex(ppm float64) float64 {
	// Below the first breakpoint the first band applies, negatives included
	if ppm < aqiBands[0].High {
		return aqiBands[0].Slope * ppm
	}
	for _, band := range aqiBands[1:] {
		if ppm < band.High {
			return band.IndexLow + band.Slope*(ppm-band.Low)
		}
	}
	last := aqiBands[len(aqiBands)-1]
	return last.IndexLow + last.Slope*(ppm-last.Low)
}

// GasPercentage expresses a concentration as a share of MaxGasPPM, capped at 100
func GasPercentage(ppm float64) float64 {
	return math.Min(100.0, (ppm/MaxGasPPM)*100.0)
}
