package domain

import "errors"

// Sentinel errors. Stores and engines wrap these so the HTTP layer can map
// them with errors.Is.
var (
	ErrInvalidInput = errors.New("invalid input")
	ErrNotFound     = errors.New("not found")
	ErrStorage      = errors.New("storage failure")
	ErrGeneration   = errors.New("text generation failed")
)
