package ml

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"
)

// StandardScaler standardizes features to zero mean and unit variance
type StandardScaler struct {
	Mean  []float64 `json:"mean"`
	Scale []float64 `json:"scale"`
}

// Fitted reports whether the scaler holds statistics
func (s *StandardScaler) Fitted() bool {
	return s != nil && len(s.Mean) > 0 && len(s.Mean) == len(s.Scale)
}

// Fit computes per-feature population mean and standard deviation.
// Features with zero variance get a scale of 1.
func (s *StandardScaler) Fit(samples [][]float64) error {
	if len(samples) == 0 {
		return fmt.Errorf("scaler: %w", ErrEmptyTrainingSet)
	}

	numFeatures := len(samples[0])
	mean := make([]float64, numFeatures)
	scale := make([]float64, numFeatures)
	column := make([]float64, len(samples))

	for j := 0; j < numFeatures; j++ {
		for i, sample := range samples {
			if len(sample) != numFeatures {
				return fmt.Errorf("scaler: sample %d has %d features, want %d: %w",
					i, len(sample), numFeatures, ErrFeatureMismatch)
			}
			column[i] = sample[j]
		}

		m := stat.Mean(column, nil)
		// stat.Variance is the unbiased estimate; rescale to the population variance
		variance := 0.0
		if n := float64(len(column)); n > 1 {
			variance = stat.Variance(column, nil) * (n - 1) / n
		}

		std := math.Sqrt(variance)
		if std == 0 || math.IsNaN(std) {
			std = 1
		}
		mean[j] = m
		scale[j] = std
	}

	s.Mean = mean
	s.Scale = scale
	return nil
}

// Transform standardizes a single sample
func (s *StandardScaler) Transform(sample []float64) ([]float64, error) {
	if !s.Fitted() {
		return nil, fmt.Errorf("scaler: %w", ErrNotFitted)
	}
	if len(sample) != len(s.Mean) {
		return nil, fmt.Errorf("scaler: got %d features, fitted on %d: %w",
			len(sample), len(s.Mean), ErrFeatureMismatch)
	}

	out := make([]float64, len(sample))
	for j, v := range sample {
		out[j] = (v - s.Mean[j]) / s.Scale[j]
	}
	return out, nil
}

// FitTransform fits the scaler and returns the standardized samples
func (s *StandardScaler) FitTransform(samples [][]float64) ([][]float64, error) {
	if err := s.Fit(samples); err != nil {
		return nil, err
	}

	out := make([][]float64, len(samples))
	for i, sample := range samples {
		scaled, err := s.Transform(sample)
		if err != nil {
			return nil, err
		}
		out[i] = scaled
	}
	return out, nil
}
