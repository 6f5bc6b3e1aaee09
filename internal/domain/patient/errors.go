package patient

import "errors"

var (
	// ErrNotFound is returned when no record matches the given id or
	// patient code.
	ErrNotFound = errors.New("patient not found")

	// ErrConflict is returned when a create collides with an existing
	// patient code. The existing record is left untouched.
	ErrConflict = errors.New("patient code already exists")

	// ErrValidation is returned for malformed or incomplete commands,
	// always before any mutation is performed.
	ErrValidation = errors.New("validation failed")
)
