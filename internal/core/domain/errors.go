package domain

import "errors"

// Errors reported by storage adapters.
var (
	ErrNotFound          = errors.New("not found")
	ErrInsufficientUnits = errors.New("insufficient units")
	ErrConflict          = errors.New("conflict")
	ErrDuplicate         = errors.New("duplicate")
)

var ErrInvalidUnits = errors.New("units must be positive")
