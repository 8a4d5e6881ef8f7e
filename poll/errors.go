package poll

import "errors"

var (
	// ErrNotFound means a poll, question or option id (or an access
	// code) did not resolve.
	ErrNotFound = errors.New("poll or question not found")
	// ErrValidation means the input was malformed: too few options,
	// empty vote selection, missing required fields.
	ErrValidation = errors.New("invalid input")
	// ErrConflict means the access code is already taken.
	ErrConflict = errors.New("access code already exists")
	// ErrUnauthorized means a password or admin credential mismatch.
	ErrUnauthorized = errors.New("invalid credentials")
)
