package chat

import "errors"

var (
	// ErrSessionNotFound is returned when an operation names an unknown session
	ErrSessionNotFound = errors.New("session not found")

	// ErrInvalidTransition is returned when a lifecycle transition is
	// attempted from the wrong state. The session is left unchanged.
	ErrInvalidTransition = errors.New("invalid session transition")

	// ErrTokenInvalid is returned for a resume token that matches no session
	ErrTokenInvalid = errors.New("resume token invalid")

	// ErrTokenExpired is returned for a resume token past its expiry
	ErrTokenExpired = errors.New("resume token expired")

	// ErrAlreadyRated is returned when a closed session is rated twice
	ErrAlreadyRated = errors.New("session already rated")

	// ErrInvalidRating is returned for a rating outside 1-5
	ErrInvalidRating = errors.New("rating must be between 1 and 5")
)
