package store

import (
	"errors"
	"fmt"
)

var (
	// ErrDimensionMismatch is returned when a vector's length differs from the store dimension.
	ErrDimensionMismatch = errors.New("dimension mismatch")

	// ErrModelMismatch is returned when vectors come from a different embedding model than the store holds.
	// The store must be reset before vectors from another model can be added.
	ErrModelMismatch = errors.New("embedding model mismatch")

	// ErrLengthMismatch is returned when the number of vectors and texts differ.
	ErrLengthMismatch = errors.New("vectors and texts length mismatch")

	// ErrInvalidVector is returned when a vector contains NaN or Inf components.
	ErrInvalidVector = errors.New("vector contains non-finite values")

	// ErrCorruptState marks persisted state that was discarded on load.
	// It is carried by LoadReport.Cause and never returned from Load.
	ErrCorruptState = errors.New("corrupt persisted state")
)

// DimensionMismatchError reports the expected and actual vector length.
type DimensionMismatchError struct {
	Expected int
	Actual   int
}

func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d", e.Expected, e.Actual)
}

func (e *DimensionMismatchError) Unwrap() error { return ErrDimensionMismatch }

// ModelMismatchError reports the store's model and the offending model.
type ModelMismatchError struct {
	Store string
	Got   string
}

func (e *ModelMismatchError) Error() string {
	return fmt.Sprintf("embedding model mismatch: store holds %q, got %q (reset the store to switch models)", e.Store, e.Got)
}

func (e *ModelMismatchError) Unwrap() error { return ErrModelMismatch }
