package domain

import "errors"

var (
	// ErrNotFound is returned when an operation references a missing incident.
	ErrNotFound = errors.New("not found")
	// ErrInvalidInput marks records or requests rejected by validation.
	ErrInvalidInput = errors.New("invalid input")
)

// RecordError describes a single rejected pipeline record.
type RecordError struct {
	Index  int    `json:"index"`
	Key    string `json:"key,omitempty"`
	Reason string `json:"reason"`
}
