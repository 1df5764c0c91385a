package ml

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fittedArtifacts(t *testing.T, fitID string) *Artifacts {
	t.Helper()

	scaler := &StandardScaler{}
	X, err := scaler.FitTransform([][]float64{{10}, {20}, {30}})
	require.NoError(t, err)

	forest := NewRandomForest(ForestConfig{NumTrees: 3, Seed: 42})
	require.NoError(t, forest.Fit(X, []float64{11, 21, 31}))

	return &Artifacts{
		FitID:    fitID,
		Samples:  3,
		FittedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		Forest:   forest,
		Scaler:   scaler,
	}
}

func TestFileStore_MissingArtifacts(t *testing.T) {
	store := tempStore(t)

	_, err := store.Load()
	assert.ErrorIs(t, err, ErrArtifactsNotFound)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestFileStore_SaveLoad(t *testing.T) {
	store := tempStore(t)
	saved := fittedArtifacts(t, "fit-1")

	require.NoError(t, store.Save(saved))

	loaded, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, "fit-1", loaded.FitID)
	assert.Equal(t, 3, loaded.Samples)
	assert.True(t, saved.FittedAt.Equal(loaded.FittedAt))
	assert.Equal(t, saved.Scaler, loaded.Scaler)

	entries, err := os.ReadDir(filepath.Dir(store.ModelPath))
	require.NoError(t, err)
	assert.Len(t, entries, 2, "temporary files left behind")
}

func TestFileStore_OneArtifactMissing(t *testing.T) {
	store := tempStore(t)
	require.NoError(t, store.Save(fittedArtifacts(t, "fit-1")))
	require.NoError(t, os.Remove(store.ScalerPath))

	_, err := store.Load()
	assert.ErrorIs(t, err, ErrArtifactsNotFound)
}

func TestFileStore_RejectsArtifactsFromDifferentFits(t *testing.T) {
	dir := t.TempDir()
	first := NewFileStore(filepath.Join(dir, "model.json"), filepath.Join(dir, "scaler.json"))
	require.NoError(t, first.Save(fittedArtifacts(t, "fit-1")))

	// A second fit that only got as far as writing its model
	other := NewFileStore(filepath.Join(dir, "model.json"), filepath.Join(dir, "other-scaler.json"))
	require.NoError(t, other.Save(fittedArtifacts(t, "fit-2")))

	_, err := first.Load()
	assert.ErrorIs(t, err, ErrArtifactMismatch)
}

func TestFileStore_RefusesUnfitted(t *testing.T) {
	store := tempStore(t)

	err := store.Save(&Artifacts{FitID: "x", Forest: NewRandomForest(DefaultForestConfig()), Scaler: &StandardScaler{}})
	assert.ErrorIs(t, err, ErrNotFitted)

	_, statErr := os.Stat(store.ModelPath)
	assert.True(t, os.IsNotExist(statErr))
}

func TestFileStore_CorruptFile(t *testing.T) {
	store := tempStore(t)
	require.NoError(t, store.Save(fittedArtifacts(t, "fit-1")))
	require.NoError(t, os.WriteFile(store.ModelPath, []byte("{not json"), 0o644))

	_, err := store.Load()
	assert.Error(t, err)
}
