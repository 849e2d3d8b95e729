// Package trace defines the contract between the debug engine and the
// debuggee runtime: the event stream a runtime must deliver and the frame
// model the engine steps through. The engine is runtime-agnostic; any
// interpreter that can report call/line/return/exception events against
// frames with caller back-links can be debugged.
package trace

// EventKind identifies the kind of trace event delivered by the runtime.
type EventKind int

const (
	// EventCall is delivered when execution enters a new frame.
	EventCall EventKind = iota
	// EventLine is delivered before each executable line.
	EventLine
	// EventReturn is delivered when a frame returns to its caller.
	EventReturn
	// EventException is delivered when an error escapes the current frame.
	EventException
)

// String returns a human-readable name for the event kind.
func (k EventKind) String() string {
	switch k {
	case EventCall:
		return "call"
	case EventLine:
		return "line"
	case EventReturn:
		return "return"
	case EventException:
		return "exception"
	default:
		return "unknown"
	}
}

// Frame is one active invocation in the debuggee. A frame's identity is its
// pointer: the runtime must deliver the same *Frame for the lifetime of one
// invocation so the engine can remember it as a step target.
type Frame struct {
	// File is the source path (or chunk name) of the running code.
	File string

	// Line is the current line, updated as the frame advances.
	Line int

	// Func is the function name, best effort.
	Func string

	// Back is the caller's frame, nil at the root of a thread.
	Back *Frame

	// Bindings exposes the frame's variables for evaluation. May be nil
	// when the runtime cannot expose them.
	Bindings Bindings
}

// Bindings gives native eval access to a frame's variable context. Both
// methods run in the debuggee's own language; implementations are only
// required to work while the owning thread is suspended.
type Bindings interface {
	// Eval evaluates a read-only expression and returns its value
	// converted to a plain Go value.
	Eval(expr string) (interface{}, error)

	// Exec executes a statement, which may have side effects including
	// rebinding frame variables.
	Exec(stmt string) error
}

// ExceptionInfo is the arg payload of an EventException event.
type ExceptionInfo struct {
	Type  string
	Value string
}

// ThreadInfo identifies a debuggee execution thread.
type ThreadInfo struct {
	ID   int64
	Name string
}

// Func is a per-thread trace callback. It is invoked by the runtime on the
// thread's own goroutine for every event and may block it (that is how the
// engine suspends execution). The return value is the callback to use for
// the thread's subsequent events; returning nil stops tracing the thread.
type Func func(frame *Frame, kind EventKind, arg interface{}) Func

// Hook is the global trace entry point. The runtime calls it for the first
// event of every newly observed thread; the returned Func (if non-nil)
// handles that thread's subsequent events directly, avoiding re-dispatch
// through the global hook on every line.
type Hook func(thread ThreadInfo, frame *Frame, kind EventKind, arg interface{}) Func

// Runtime executes a script, reporting trace events to hook. Run returns
// once the script and everything it spawned have finished.
type Runtime interface {
	Run(scriptPath string, hook Hook) error
}
