package luart

import (
	"strings"

	lua "github.com/yuin/gopher-lua"

	"github.com/dmoreno/luadbg/internal/trace"
)

// Chunk names for evaluated code. The engine keeps these on its ignore list
// so evaluation never traces itself.
const (
	evalChunkName = "<eval>"
	execChunkName = "<exec>"
)

// frameBindings evaluates code against one suspended frame. It runs only on
// the goroutine owning the LState, while that goroutine is blocked inside
// the line marker; the engine guarantees this by marshaling evaluation onto
// the suspended thread.
type frameBindings struct {
	t     *tracer
	idx   int
	frame *trace.Frame
}

// Eval evaluates an expression in the frame's scope and returns its value.
// Multiple results come back as a slice.
func (b *frameBindings) Eval(expr string) (interface{}, error) {
	results, err := b.run("return "+expr, evalChunkName)
	if err != nil {
		return nil, err
	}
	switch len(results) {
	case 0:
		return nil, nil
	case 1:
		return toGoValue(results[0]), nil
	default:
		out := make([]interface{}, len(results))
		for i, r := range results {
			out[i] = toGoValue(r)
		}
		return out, nil
	}
}

// Exec runs a statement in the frame's scope. Assignments to existing locals
// are written back into the frame; assignments to new names land in globals.
func (b *frameBindings) Exec(stmt string) error {
	_, err := b.run(stmt, execChunkName)
	return err
}

// level returns the frame's current Lua stack level, or false if the frame
// has unwound since the bindings were captured.
func (b *frameBindings) level() (int, bool) {
	frames := b.t.frames
	if b.idx >= len(frames) || frames[b.idx] != b.frame {
		return 0, false
	}
	return len(frames) - b.idx, true
}

// run compiles src, executes it with the frame's locals as environment, and
// writes mutated locals back into the frame.
func (b *frameBindings) run(src, chunkName string) ([]lua.LValue, error) {
	level, ok := b.level()
	if !ok {
		return nil, ErrNoFrame
	}
	L := b.t.L

	d, ok := L.GetStack(level)
	if !ok {
		return nil, ErrNoFrame
	}

	// Locals become the chunk environment; reads of unknown names and
	// writes to new names fall through to globals.
	env := L.NewTable()
	slots := make(map[string]int)
	for i := 1; ; i++ {
		name, val := L.GetLocal(d, i)
		if name == "" {
			break
		}
		if strings.HasPrefix(name, "(") {
			continue
		}
		env.RawSetString(name, val)
		slots[name] = i
	}
	globals := L.Get(lua.GlobalsIndex)
	mt := L.NewTable()
	mt.RawSetString("__index", globals)
	mt.RawSetString("__newindex", globals)
	L.SetMetatable(env, mt)

	fn, err := L.Load(strings.NewReader(src), chunkName)
	if err != nil {
		return nil, err
	}
	L.SetFEnv(fn, env)

	// Evaluated code may call instrumented script functions; their marker
	// hits must not feed back into the trace stream while this frame is
	// suspended inside its own marker.
	b.t.suppress = true
	defer func() { b.t.suppress = false }()

	base := L.GetTop()
	L.Push(fn)
	if err := L.PCall(0, lua.MultRet, nil); err != nil {
		L.SetTop(base)
		return nil, err
	}

	results := make([]lua.LValue, 0, L.GetTop()-base)
	for i := base + 1; i <= L.GetTop(); i++ {
		results = append(results, L.Get(i))
	}
	L.SetTop(base)

	for name, slot := range slots {
		L.SetLocal(d, slot, env.RawGetString(name))
	}
	return results, nil
}
