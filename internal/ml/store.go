package ml

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"
)

// ErrArtifactsNotFound is returned by Load when either artifact is missing
var ErrArtifactsNotFound = fmt.Errorf("model artifacts: %w", os.ErrNotExist)

// Artifacts is one fitted (regressor, scaler) pair
type Artifacts struct {
	FitID    string
	Samples  int
	FittedAt time.Time
	Forest   *RandomForest
	Scaler   *StandardScaler
}

// ArtifactStore persists fitted artifacts
type ArtifactStore interface {
	Load() (*Artifacts, error)
	Save(artifacts *Artifacts) error
}

type modelFile struct {
	FitID    string        `json:"fit_id"`
	Samples  int           `json:"samples"`
	FittedAt time.Time     `json:"fitted_at"`
	Forest   *RandomForest `json:"forest"`
}

type scalerFile struct {
	FitID    string          `json:"fit_id"`
	Samples  int             `json:"samples"`
	FittedAt time.Time       `json:"fitted_at"`
	Scaler   *StandardScaler `json:"scaler"`
}

// FileStore keeps the regressor and the scaler in two JSON files
type FileStore struct {
	ModelPath  string
	ScalerPath string
}

// NewFileStore creates a store for the given artifact paths
func NewFileStore(modelPath, scalerPath string) *FileStore {
	return &FileStore{ModelPath: modelPath, ScalerPath: scalerPath}
}

// Load reads both artifacts and checks that they come from the same fit
func (s *FileStore) Load() (*Artifacts, error) {
	if !fileExists(s.ModelPath) || !fileExists(s.ScalerPath) {
		return nil, ErrArtifactsNotFound
	}

	var model modelFile
	if err := readJSON(s.ModelPath, &model); err != nil {
		return nil, fmt.Errorf("failed to read model: %w", err)
	}
	var scaler scalerFile
	if err := readJSON(s.ScalerPath, &scaler); err != nil {
		return nil, fmt.Errorf("failed to read scaler: %w", err)
	}

	if model.FitID == "" || model.FitID != scaler.FitID {
		return nil, fmt.Errorf("fit ids %q and %q: %w", model.FitID, scaler.FitID, ErrArtifactMismatch)
	}
	if !model.Forest.Fitted() || !scaler.Scaler.Fitted() {
		return nil, fmt.Errorf("unfitted artifact: %w", ErrArtifactMismatch)
	}
	if model.Forest.NumFeatures != len(scaler.Scaler.Mean) {
		return nil, fmt.Errorf("regressor expects %d features, scaler has %d: %w",
			model.Forest.NumFeatures, len(scaler.Scaler.Mean), ErrArtifactMismatch)
	}

	return &Artifacts{
		FitID:    model.FitID,
		Samples:  model.Samples,
		FittedAt: model.FittedAt,
		Forest:   model.Forest,
		Scaler:   scaler.Scaler,
	}, nil
}

// Save writes both artifacts. Each file is replaced atomically and both
// carry the fit id, so Load never pairs artifacts of different fits.
func (s *FileStore) Save(artifacts *Artifacts) error {
	if artifacts == nil || !artifacts.Forest.Fitted() || !artifacts.Scaler.Fitted() {
		return fmt.Errorf("refusing to save: %w", ErrNotFitted)
	}

	modelData, err := json.Marshal(modelFile{
		FitID:    artifacts.FitID,
		Samples:  artifacts.Samples,
		FittedAt: artifacts.FittedAt,
		Forest:   artifacts.Forest,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal model: %w", err)
	}
	scalerData, err := json.Marshal(scalerFile{
		FitID:    artifacts.FitID,
		Samples:  artifacts.Samples,
		FittedAt: artifacts.FittedAt,
		Scaler:   artifacts.Scaler,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal scaler: %w", err)
	}

	modelTmp, err := writeTemp(s.ModelPath, modelData)
	if err != nil {
		return fmt.Errorf("failed to write model: %w", err)
	}
	scalerTmp, err := writeTemp(s.ScalerPath, scalerData)
	if err != nil {
		os.Remove(modelTmp)
		return fmt.Errorf("failed to write scaler: %w", err)
	}

	if err := os.Rename(modelTmp, s.ModelPath); err != nil {
		os.Remove(modelTmp)
		os.Remove(scalerTmp)
		return fmt.Errorf("failed to replace model: %w", err)
	}
	if err := os.Rename(scalerTmp, s.ScalerPath); err != nil {
		os.Remove(scalerTmp)
		return fmt.Errorf("failed to replace scaler: %w", err)
	}

	log.Printf("Saved ML model to %s and scaler to %s (fit %s, %d samples)",
		s.ModelPath, s.ScalerPath, artifacts.FitID, artifacts.Samples)
	return nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

// writeTemp writes data next to path and returns the temporary file name
func writeTemp(path string, data []byte) (string, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}

	f, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return "", err
	}
	name := f.Name()

	_, writeErr := f.Write(data)
	syncErr := f.Sync()
	closeErr := f.Close()
	if err := errors.Join(writeErr, syncErr, closeErr); err != nil {
		os.Remove(name)
		return "", err
	}
	return name, nil
}
