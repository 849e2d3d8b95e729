package luart

import (
	lua "github.com/yuin/gopher-lua"

	"github.com/dmoreno/luadbg/internal/trace"
)

// tracer tracks one debuggee thread: the stack of trace frames mirrored from
// its LState and the engine callback tracing it. All methods run on the
// goroutine executing the LState.
type tracer struct {
	rt   *Runtime
	L    *lua.LState
	info trace.ThreadInfo

	frames   []*trace.Frame // innermost last
	fn       trace.Func
	seen     bool
	suppress bool // evaluation in progress; marker hits are not trace events
}

// depth returns the number of Lua frames on the stack, excluding the marker
// function's own frame at level 0.
func (t *tracer) depth() int {
	n := 0
	for {
		if _, ok := t.L.GetStack(n); !ok {
			break
		}
		n++
	}
	return n - 1
}

// sync is the per-statement marker hit. It reconciles the mirrored frame
// stack against the real one, emitting return events for frames that
// unwound and call events for frames that appeared, then a line event for
// the statement about to execute.
func (t *tracer) sync(line int) {
	if t.suppress {
		return
	}
	d := t.depth()

	for len(t.frames) > d {
		t.popReturn()
	}
	for len(t.frames) < d {
		f := t.frameAt(d - len(t.frames))
		t.frames = append(t.frames, f)
		t.emit(f, trace.EventCall, nil)
	}

	if len(t.frames) == 0 {
		return
	}
	top := t.frames[len(t.frames)-1]
	top.Line = line
	t.emit(top, trace.EventLine, nil)
}

// popReturn removes the innermost mirrored frame and emits its return event.
// The pop happens first so frame levels stay consistent for evaluation
// during the event.
func (t *tracer) popReturn() {
	f := t.frames[len(t.frames)-1]
	t.frames = t.frames[:len(t.frames)-1]
	t.emit(f, trace.EventReturn, nil)
}

// frameAt builds a trace frame for the Lua frame at the given stack level.
func (t *tracer) frameAt(level int) *trace.Frame {
	f := &trace.Frame{
		File: "?",
		Func: "?",
	}
	if len(t.frames) > 0 {
		f.Back = t.frames[len(t.frames)-1]
	}
	f.Bindings = &frameBindings{t: t, idx: len(t.frames), frame: f}

	d, ok := t.L.GetStack(level)
	if !ok {
		return f
	}
	if _, err := t.L.GetInfo("nSl", d, lua.LNil); err != nil {
		return f
	}
	f.File = d.Source
	f.Line = d.CurrentLine
	// A function frame enters at its declaration line; the first line event
	// then moves it to the first executable statement.
	if d.LineDefined > 0 {
		f.Line = d.LineDefined
	}
	switch {
	case d.Name != "":
		f.Func = d.Name
	case d.What != "":
		f.Func = d.What
	}
	return f
}

// emit delivers one event. The first event of the thread goes to the
// discovery hook, which hands back the function tracing the rest; a nil
// return detaches tracing for good.
func (t *tracer) emit(frame *trace.Frame, kind trace.EventKind, arg interface{}) {
	if !t.seen {
		t.seen = true
		hook := t.rt.hookFn()
		if hook == nil {
			return
		}
		t.fn = hook(t.info, frame, kind, arg)
		return
	}
	if t.fn == nil {
		return
	}
	t.fn = t.fn(frame, kind, arg)
}

// finish unwinds the mirrored stack after the chunk returned or errored. An
// error first surfaces as an exception event on the innermost frame; the
// origin frame's return event is what tells the engine the thread ended.
func (t *tracer) finish(err error) {
	if err != nil && len(t.frames) > 0 {
		top := t.frames[len(t.frames)-1]
		t.emit(top, trace.EventException, exceptionInfo(err))
	}
	for len(t.frames) > 0 {
		t.popReturn()
	}
}

// exceptionInfo maps a gopher-lua error to the trace exception payload.
func exceptionInfo(err error) trace.ExceptionInfo {
	if apiErr, ok := err.(*lua.ApiError); ok {
		return trace.ExceptionInfo{
			Type:  apiErrorType(apiErr.Type),
			Value: apiErr.Object.String(),
		}
	}
	return trace.ExceptionInfo{Type: "error", Value: err.Error()}
}

func apiErrorType(t lua.ApiErrorType) string {
	switch t {
	case lua.ApiErrorSyntax:
		return "syntax"
	case lua.ApiErrorRun:
		return "runtime"
	case lua.ApiErrorError:
		return "error"
	case lua.ApiErrorPanic:
		return "panic"
	default:
		return "unknown"
	}
}
