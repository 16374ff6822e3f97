package domain

import "errors"

var (
	// ErrNotFound is returned when a document does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when a write violates a uniqueness constraint.
	ErrConflict = errors.New("conflict")
	// ErrInvalidInput is returned for malformed requests and payloads.
	ErrInvalidInput = errors.New("invalid input")
)
