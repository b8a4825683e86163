package domain

import "errors"

// Sentinel errors classifying mutation failures. Callers wrap them with
// fmt.Errorf("%w: ...") and decide behavior via errors.Is; the HTTP layer
// maps them to status codes and the client maps status codes back.
var (
	// ErrValidation indicates a malformed or missing field, rejected
	// before any state mutation.
	ErrValidation = errors.New("validation failed")

	// ErrNotFound indicates a section, card or comment id that does not
	// resolve.
	ErrNotFound = errors.New("not found")

	// ErrForbidden indicates an ownership violation, e.g. editing a
	// comment authored by someone else.
	ErrForbidden = errors.New("forbidden")
)
