package rpc

import "errors"

// Errors for channel operations.
var (
	// ErrNotConnected is returned when calling before a successful
	// Connect.
	ErrNotConnected = errors.New("not connected")

	// ErrConnectionFailed is returned when the retry budget for the
	// initial connection is exhausted.
	ErrConnectionFailed = errors.New("connection failed")

	// ErrConnectionLost is returned when an established channel breaks
	// mid-call.
	ErrConnectionLost = errors.New("connection lost")

	// ErrServerClosed is returned by Serve after Close.
	ErrServerClosed = errors.New("server closed")
)
