package dbg

import "errors"

// Errors for session and thread operations.
var (
	// ErrThreadNotFound is returned when a command references a thread id
	// that is not (or no longer) present in the session.
	ErrThreadNotFound = errors.New("thread not found")

	// ErrThreadNotPaused is returned when an operation requires the
	// target thread to be suspended.
	ErrThreadNotPaused = errors.New("thread is not paused")

	// ErrSessionTerminated is returned when operating on a terminated
	// session.
	ErrSessionTerminated = errors.New("session is terminated")
)
