package domain

import "errors"

var (
	// ErrUnexpectedResponseFormat is returned when a backend payload matches
	// none of the accepted envelope shapes.
	ErrUnexpectedResponseFormat = errors.New("unexpected response format")
	// ErrUnknownSubject is returned for subjects outside the supported set.
	ErrUnknownSubject = errors.New("unknown subject")
	// ErrPaperNotFound indicates the requested paper is unknown.
	ErrPaperNotFound = errors.New("paper not found")
	// ErrQuestionNotFound indicates a question number outside the paper.
	ErrQuestionNotFound = errors.New("question not found")
	// ErrSessionNotFound is returned when a session ID matches no live session.
	ErrSessionNotFound = errors.New("quiz session not found")
	// ErrSessionClosed is returned when acting on a torn-down session.
	ErrSessionClosed = errors.New("quiz session closed")
	// ErrInvalidTransition is returned for operations not valid in the
	// session's current state.
	ErrInvalidTransition = errors.New("invalid session state transition")
	// ErrUnauthorized indicates the bearer credential could not be obtained.
	ErrUnauthorized = errors.New("unauthorized: no credential available")
	// ErrResultNotFound indicates no result summary matched the session.
	ErrResultNotFound = errors.New("result summary not found")
	// ErrAttemptNotFound indicates an unknown attempt record ID.
	ErrAttemptNotFound = errors.New("attempt record not found")
)
