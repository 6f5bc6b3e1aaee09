package user

import "errors"

var (
	// ErrNotFound is returned when no user or token matches the lookup.
	ErrNotFound = errors.New("user not found")

	// ErrConflict is returned when a username is already taken.
	ErrConflict = errors.New("username already exists")

	// ErrValidation is returned for malformed signup or reset input.
	ErrValidation = errors.New("validation failed")

	// ErrInvalidCredentials is returned for a failed login. It deliberately
	// does not distinguish unknown username from wrong password.
	ErrInvalidCredentials = errors.New("invalid credentials")
)
