package models

import (
	"errors"
	"fmt"
)

var (
	// ErrProductNotFound means no series matches the requested product/retailer.
	ErrProductNotFound = errors.New("product not found")
	// ErrInsufficientData means the series is too short to build features or fit a model.
	ErrInsufficientData = errors.New("insufficient data")
	// ErrDatasetUnavailable means the upstream store could not be reached.
	ErrDatasetUnavailable = errors.New("dataset unavailable")
	// ErrInvalidInput means a caller-supplied argument is out of range.
	ErrInvalidInput = errors.New("invalid input")
)

// Pipeline stages named in StageError.
const (
	StageCatalogLookup   = "catalog_lookup"
	StageLoadSeries      = "load_series"
	StageFeatureBuilding = "feature_building"
	StageModelFitting    = "model_fitting"
	StageRanking         = "ranking"
)

// StageError tags an error with the stage that produced it.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string { return fmt.Sprintf("%s: %v", e.Stage, e.Err) }

func (e *StageError) Unwrap() error { return e.Err }

// StageErrorf wraps a sentinel (or any error) with a stage and formatted detail.
func StageErrorf(stage string, err error, format string, args ...any) error {
	return &StageError{Stage: stage, Err: fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)}
}
