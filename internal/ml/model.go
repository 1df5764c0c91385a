package ml

import (
	"errors"
	"fmt"
	"log"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"enviroscan-backend/internal/observability"
)

// MinCalibratedPPM is the floor applied to every fitted prediction
const MinCalibratedPPM = 1.0

// ModelConfig holds calibration model configuration
type ModelConfig struct {
	MinSamples int // Pairs required before the first fit
	MaxSamples int // Retained pairs after a fit, most recent first
	Forest     ForestConfig
}

// DefaultModelConfig returns default configuration
func DefaultModelConfig() ModelConfig {
	return ModelConfig{
		MinSamples: 20,
		MaxSamples: 1000,
		Forest:     DefaultForestConfig(),
	}
}

// ModelStatus is a point-in-time view of the model
type ModelStatus struct {
	Trained  bool      `json:"trained"`
	Samples  int       `json:"samples"`
	FitID    string    `json:"fit_id,omitempty"`
	FittedAt time.Time `json:"fitted_at,omitempty"`
}

// Model maps raw concentration to calibrated concentration. It passes
// values through until the first fit, then predicts through the fitted
// scaler and forest. Predict and Train are serialized by one mutex.
type Model struct {
	config  ModelConfig
	store   ArtifactStore
	metrics *observability.Metrics

	mu       sync.Mutex
	trained  bool
	scaler   *StandardScaler
	forest   *RandomForest
	fitID    string
	fittedAt time.Time
	features [][]float64
	targets  []float64
}

// NewModel creates a model and loads persisted artifacts when present.
// A nil store disables persistence.
func NewModel(config ModelConfig, store ArtifactStore, metrics *observability.Metrics) *Model {
	if config.MinSamples < 1 {
		config.MinSamples = 1
	}
	if config.MaxSamples < config.MinSamples {
		config.MaxSamples = config.MinSamples
	}

	m := &Model{
		config:  config,
		store:   store,
		metrics: metrics,
	}
	m.loadModel()
	return m
}

// loadModel enters the trained state when both artifacts are available
func (m *Model) loadModel() {
	if m.store == nil {
		return
	}

	artifacts, err := m.store.Load()
	switch {
	case errors.Is(err, ErrArtifactsNotFound):
		log.Println("No ML model or scaler found; will train with new data")
		return
	case err != nil:
		log.Printf("Warning: ignoring stored ML artifacts: %v", err)
		return
	}

	m.scaler = artifacts.Scaler
	m.forest = artifacts.Forest
	m.fitID = artifacts.FitID
	m.fittedAt = artifacts.FittedAt
	m.trained = true
	m.metrics.SetModelState(true, 0)
	log.Printf("Loaded existing ML model and scaler (fit %s, %d samples)", artifacts.FitID, artifacts.Samples)
}

// Predict returns the calibrated concentration for a raw reading
func (m *Model) Predict(rawPPM float64) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.trained {
		return rawPPM
	}

	scaled, err := m.scaler.Transform([]float64{rawPPM})
	if err != nil {
		return m.predictionFault(rawPPM, err)
	}
	predicted, err := m.forest.Predict(scaled)
	if err != nil {
		return m.predictionFault(rawPPM, err)
	}
	return math.Max(MinCalibratedPPM, predicted)
}

func (m *Model) predictionFault(rawPPM float64, err error) float64 {
	log.Printf("Warning: calibration model unusable, returning raw PPM: %v", err)
	m.metrics.RecordModelFault()
	return rawPPM
}

// Train records a (raw, calibrated) pair and refits on the retained set
// once it holds at least MinSamples pairs. The returned error reports a
// failed fit or a failed save; the pair is retained either way.
func (m *Model) Train(rawPPM, calibratedPPM float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.features = append(m.features, []float64{rawPPM})
	m.targets = append(m.targets, calibratedPPM)

	if len(m.features) < m.config.MinSamples {
		m.metrics.SetModelState(m.trained, len(m.features))
		return nil
	}

	err := m.fit()
	// Truncate on failure too, or a failing fit would let the set grow unbounded
	m.truncate()
	m.metrics.SetModelState(m.trained, len(m.features))
	return err
}

// fit replaces scaler and forest together, then persists them
func (m *Model) fit() error {
	scaler := &StandardScaler{}
	scaled, err := scaler.FitTransform(m.features)
	if err != nil {
		return fmt.Errorf("failed to fit scaler: %w", err)
	}

	forest := NewRandomForest(m.config.Forest)
	if err := forest.Fit(scaled, m.targets); err != nil {
		return fmt.Errorf("failed to fit regressor: %w", err)
	}

	m.scaler = scaler
	m.forest = forest
	m.fitID = uuid.NewString()
	m.fittedAt = time.Now()
	m.trained = true
	m.metrics.RecordFit(len(m.features))

	return m.saveModel()
}

func (m *Model) saveModel() error {
	if m.store == nil || !m.trained {
		return nil
	}

	err := m.store.Save(&Artifacts{
		FitID:    m.fitID,
		Samples:  len(m.features),
		FittedAt: m.fittedAt,
		Forest:   m.forest,
		Scaler:   m.scaler,
	})
	if err != nil {
		return fmt.Errorf("failed to save ML artifacts: %w", err)
	}
	return nil
}

// truncate keeps the most recent MaxSamples pairs
func (m *Model) truncate() {
	excess := len(m.features) - m.config.MaxSamples
	if excess <= 0 {
		return
	}
	m.features = append([][]float64(nil), m.features[excess:]...)
	m.targets = append([]float64(nil), m.targets[excess:]...)
}

// IsTrained reports whether predictions go through the fitted model
func (m *Model) IsTrained() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.trained
}

// TrainingSetSize returns the number of retained pairs
func (m *Model) TrainingSetSize() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.features)
}

// Status returns a snapshot of the model state
func (m *Model) Status() ModelStatus {
	m.mu.Lock()
	defer m.mu.Unlock()

	return ModelStatus{
		Trained:  m.trained,
		Samples:  len(m.features),
		FitID:    m.fitID,
		FittedAt: m.fittedAt,
	}
}
