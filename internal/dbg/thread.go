package dbg

import (
	"path/filepath"
	"sync"

	"github.com/dmoreno/luadbg/internal/trace"
)

// ThreadState represents the execution state of a debuggee thread.
type ThreadState int32

const (
	// ThreadRunning means the thread is executing debuggee code.
	ThreadRunning ThreadState = iota
	// ThreadPaused means the thread is blocked inside its own trace
	// callback, not progressing execution.
	ThreadPaused
	// ThreadTerminated is terminal; the thread's origin frame returned or
	// the session stopped it.
	ThreadTerminated
)

// String returns a string representation of the state.
func (s ThreadState) String() string {
	switch s {
	case ThreadRunning:
		return "running"
	case ThreadPaused:
		return "paused"
	case ThreadTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// StepMode is the thread's current instruction for where to pause next.
type StepMode int

const (
	// StepNone runs until a breakpoint or termination.
	StepNone StepMode = iota
	// StepInto stops at the very next line, anywhere.
	StepInto
	// StepOver stops at the next line in the remembered frame.
	StepOver
	// StepOut stops when the remembered frame returns.
	StepOut
)

// StackEntry is one frame of a thread's stack as reported to the controller.
type StackEntry struct {
	File string `json:"file"`
	Line int    `json:"line"`
}

// EvalError is the captured result of a failed evaluate/execute request. It
// is returned as a value, not propagated as a channel fault, so the
// controller can display it like any other evaluation result.
type EvalError struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// Error implements the error interface.
func (e EvalError) Error() string { return e.Message }

// Thread controls one traced debuggee thread. It owns the thread's stepping
// mode, current frame, and pause/resume state machine. State transitions are
// guarded by a single mutex because the RPC goroutine and the traced
// goroutine touch them concurrently.
type Thread struct {
	id      int64
	name    string
	session *Session

	mu      sync.Mutex
	cond    *sync.Cond // signaled on state changes and queued calls
	state   ThreadState
	mode    StepMode
	origin  *trace.Frame // frame present when the thread was first observed
	current *trace.Frame
	stop    *trace.Frame // frame a step-over/step-out must land on
	calls   []func()     // closures to run on the debuggee goroutine while paused

	// bpCall remembers a breakpoint stop on a call event so the line event
	// that follows at the same position does not suspend a second time.
	bpCall     *trace.Frame
	bpCallLine int
}

func newThread(id int64, name string, frame *trace.Frame, session *Session) *Thread {
	t := &Thread{
		id:      id,
		name:    name,
		session: session,
		state:   ThreadRunning,
		mode:    StepNone,
		origin:  frame,
		current: frame,
	}
	t.cond = sync.NewCond(&t.mu)

	session.putEvent(Event{Type: EventThreadStarted, ThreadID: id})
	return t
}

// ID returns the thread id.
func (t *Thread) ID() int64 { return t.id }

// Name returns the thread name.
func (t *Thread) Name() string { return t.name }

// State returns the current thread state.
func (t *Thread) State() ThreadState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// traceDispatch handles one trace event on the thread's own goroutine. It
// returns itself so the runtime keeps delivering events here, or nil once
// the thread is terminated.
func (t *Thread) traceDispatch(frame *trace.Frame, kind trace.EventKind, arg interface{}) trace.Func {
	// A return from the origin frame means the thread is done.
	if kind == trace.EventReturn {
		t.mu.Lock()
		ended := frame == t.origin
		t.mu.Unlock()
		if ended {
			t.Stop()
		}
	}

	if t.State() == ThreadTerminated {
		return nil
	}

	if kind == trace.EventException {
		info, _ := arg.(trace.ExceptionInfo)
		t.session.putEvent(Event{
			Type:     EventExceptionRaised,
			ThreadID: t.id,
			File:     frame.File,
			Line:     frame.Line,
			ExcType:  info.Type,
			ExcValue: info.Value,
		})
	}

	t.mu.Lock()
	t.current = frame
	stopAt := t.stopFrameAt(frame, kind)
	if stopAt != nil {
		t.state = ThreadPaused
	}
	t.mu.Unlock()

	if stopAt != nil {
		t.session.putEvent(Event{
			Type:     EventThreadSuspended,
			ThreadID: t.id,
			File:     stopAt.File,
			Line:     stopAt.Line,
		})
		t.wait()
	}
	return t.traceDispatch
}

// stopFrameAt returns the frame to suspend on for the given event, or nil
// when execution should continue. On returns the stop frame is the caller,
// not the returning frame. Breakpoints are checked last but apply to call
// and line events in every mode, so a breakpoint always wins over a coarser
// step in progress. A returning or raising frame already stopped at its line
// event and is not re-checked. A runtime may report a function entry at its
// first executable line; when a breakpoint already stopped that call event,
// the line event following at the same position is one arrival, not a second
// stop. Caller must hold t.mu.
func (t *Thread) stopFrameAt(frame *trace.Frame, kind trace.EventKind) *trace.Frame {
	dedupe, dedupeLine := t.bpCall, t.bpCallLine
	t.bpCall = nil

	switch kind {
	case trace.EventReturn:
		if t.mode == StepInto {
			t.current = frame.Back
			return frame.Back
		}
		if (t.mode == StepOver || t.mode == StepOut) && frame == t.stop {
			t.current = frame.Back
			return frame.Back
		}
	case trace.EventLine:
		if t.mode == StepInto {
			return frame
		}
		if t.mode == StepOver && frame == t.stop {
			return frame
		}
	}

	if kind != trace.EventCall && kind != trace.EventLine {
		return nil
	}
	if kind == trace.EventLine && frame == dedupe && frame.Line == dedupeLine {
		return nil
	}
	if t.session.breakpoints.IsBreakpoint(frame.File, frame.Line) {
		if kind == trace.EventCall {
			t.bpCall = frame
			t.bpCallLine = frame.Line
		}
		return frame
	}
	return nil
}

// wait blocks the debuggee goroutine until the thread leaves the PAUSED
// state, servicing marshaled calls in the meantime. The debuggee's call
// stack stays intact while stopped. There is no timeout; the thread waits
// indefinitely for a resume/step/stop command.
func (t *Thread) wait() {
	t.mu.Lock()
	for t.state == ThreadPaused || len(t.calls) > 0 {
		if len(t.calls) > 0 {
			calls := t.calls
			t.calls = nil
			t.mu.Unlock()
			for _, fn := range calls {
				fn()
			}
			t.mu.Lock()
			continue
		}
		t.cond.Wait()
	}
	t.mu.Unlock()
}

// runPaused marshals fn onto the paused debuggee goroutine and waits for it
// to run. Only the debuggee goroutine may touch the runtime's interpreter
// state, so evaluation requests from the RPC goroutine go through here.
func (t *Thread) runPaused(fn func()) error {
	done := make(chan struct{})

	t.mu.Lock()
	if t.state != ThreadPaused {
		t.mu.Unlock()
		return ErrThreadNotPaused
	}
	t.calls = append(t.calls, func() {
		defer close(done)
		fn()
	})
	t.cond.Broadcast()
	t.mu.Unlock()

	<-done
	return nil
}

// Resume continues execution, stopping only at breakpoints.
func (t *Thread) Resume() {
	t.command(StepNone, nil)
}

// StepOver continues until the next line in the current frame.
func (t *Thread) StepOver() {
	t.mu.Lock()
	current := t.current
	t.mu.Unlock()
	t.command(StepOver, current)
}

// StepInto continues until the very next line, in or within the current
// frame.
func (t *Thread) StepInto() {
	t.command(StepInto, nil)
}

// StepOut continues until the current frame returns to its caller.
func (t *Thread) StepOut() {
	t.mu.Lock()
	current := t.current
	t.mu.Unlock()
	t.command(StepOut, current)
}

func (t *Thread) command(mode StepMode, stop *trace.Frame) {
	t.mu.Lock()
	if t.state == ThreadTerminated {
		t.mu.Unlock()
		return
	}
	t.mode = mode
	t.stop = stop
	t.state = ThreadRunning
	t.cond.Broadcast()
	t.mu.Unlock()
}

// Stop terminates the thread. Frame references are released so the runtime
// can reclaim them, the thread is removed from its session, and a
// ThreadEnded event is emitted. Safe to call from any goroutine and
// idempotent.
func (t *Thread) Stop() {
	t.mu.Lock()
	if t.state == ThreadTerminated {
		t.mu.Unlock()
		return
	}
	t.state = ThreadTerminated
	t.mode = StepNone
	t.origin = nil
	t.current = nil
	t.stop = nil
	t.bpCall = nil
	t.cond.Broadcast()
	t.mu.Unlock()

	t.session.putEvent(Event{Type: EventThreadEnded, ThreadID: t.id})
	t.session.removeThread(t.id)
}

// Stack walks the current frame's back-links to the root and returns one
// entry per frame, outermost first. Frames belonging to the engine's own
// ignore-listed files are skipped.
func (t *Thread) Stack() []StackEntry {
	t.mu.Lock()
	frame := t.current
	t.mu.Unlock()

	var stack []StackEntry
	for ; frame != nil; frame = frame.Back {
		base := filepath.Base(frame.File)
		if t.session.isIgnored(base) {
			continue
		}
		// prepend: outermost frame first
		stack = append([]StackEntry{{File: base, Line: frame.Line}}, stack...)
	}
	return stack
}

// Evaluate evaluates a read-only expression against the current frame's
// variable bindings. Failures of any kind are captured and returned as an
// EvalError value; Evaluate never returns a Go error to the caller.
func (t *Thread) Evaluate(expr string) interface{} {
	var result interface{}
	err := t.runPaused(func() {
		bindings := t.currentBindings()
		if bindings == nil {
			result = EvalError{Kind: "no_frame", Message: "no frame bindings available"}
			return
		}
		v, err := bindings.Eval(expr)
		if err != nil {
			result = EvalError{Kind: "evaluation", Message: err.Error()}
			return
		}
		result = v
	})
	if err != nil {
		return EvalError{Kind: "state", Message: err.Error()}
	}
	return result
}

// Execute runs a statement in the current frame's binding context. The
// statement may have side effects, including rebinding frame variables.
// Returns an empty string on success or a captured EvalError.
func (t *Thread) Execute(stmt string) interface{} {
	var result interface{} = ""
	err := t.runPaused(func() {
		bindings := t.currentBindings()
		if bindings == nil {
			result = EvalError{Kind: "no_frame", Message: "no frame bindings available"}
			return
		}
		if err := bindings.Exec(stmt); err != nil {
			result = EvalError{Kind: "evaluation", Message: err.Error()}
		}
	})
	if err != nil {
		return EvalError{Kind: "state", Message: err.Error()}
	}
	return result
}

func (t *Thread) currentBindings() trace.Bindings {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.current == nil {
		return nil
	}
	return t.current.Bindings
}
