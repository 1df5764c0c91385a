package ml

import "errors"

var (
	// ErrNotFitted is returned when a scaler or forest is used before fitting
	ErrNotFitted = errors.New("not fitted")

	// ErrFeatureMismatch is returned when a sample's width differs from the fitted width
	ErrFeatureMismatch = errors.New("feature count mismatch")

	// ErrEmptyTrainingSet is returned when fitting on no samples
	ErrEmptyTrainingSet = errors.New("empty training set")

	// ErrArtifactMismatch is returned when the stored model and scaler come from different fits
	ErrArtifactMismatch = errors.New("model and scaler artifacts do not match")
)
