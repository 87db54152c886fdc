package models

import "errors"

// Error kinds surfaced by the marketplace core. Callers match them with
// errors.Is; the wrapped message carries the detail.
var (
	ErrValidation   = errors.New("validation error")
	ErrNotFound     = errors.New("not found")
	ErrUnauthorized = errors.New("unauthorized")
	ErrInvalidState = errors.New("invalid state")
)
