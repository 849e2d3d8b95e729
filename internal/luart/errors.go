package luart

import "errors"

// Errors for runtime operations.
var (
	// ErrNoFrame is returned when evaluating against a frame that is no
	// longer on the Lua stack.
	ErrNoFrame = errors.New("frame is no longer on the stack")

	// ErrAlreadyRunning is returned when Run is called twice on the same
	// runtime.
	ErrAlreadyRunning = errors.New("runtime is already running a script")
)
