package luart

import (
	"fmt"
	"path/filepath"
	"sync"

	lua "github.com/yuin/gopher-lua"
	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/dmoreno/luadbg/internal/trace"
)

// Runtime executes one Lua script under tracing. The main chunk is debuggee
// thread 1 ("main"); the spawn builtin and coroutines each get their own
// thread id and trace stream, keyed by the LState that runs them.
type Runtime struct {
	log *zap.Logger

	mu      sync.Mutex
	hook    trace.Hook
	tracers map[*lua.LState]*tracer
	nextID  atomic.Int64
	running atomic.Bool
	wg      sync.WaitGroup
}

// RuntimeOption configures a Runtime.
type RuntimeOption func(*Runtime)

// WithRuntimeLogger sets the runtime logger.
func WithRuntimeLogger(log *zap.Logger) RuntimeOption {
	return func(r *Runtime) { r.log = log }
}

// New creates a Lua runtime.
func New(opts ...RuntimeOption) *Runtime {
	r := &Runtime{
		log:     zap.NewNop(),
		tracers: make(map[*lua.LState]*tracer),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes the script at scriptPath, delivering trace events to hook.
// The script's own directory is prepended to package.path so sibling modules
// resolve. Run returns once the main chunk and every spawned thread have
// finished. Not reentrant.
func (r *Runtime) Run(scriptPath string, hook trace.Hook) error {
	if !r.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer r.running.Store(false)

	abs, err := filepath.Abs(scriptPath)
	if err != nil {
		return fmt.Errorf("resolve script path: %w", err)
	}
	proto, err := instrumentFile(abs)
	if err != nil {
		return err
	}

	r.mu.Lock()
	r.hook = hook
	r.tracers = make(map[*lua.LState]*tracer)
	r.mu.Unlock()

	L := lua.NewState()
	defer L.Close()

	r.installBuiltins(L)
	prependPackagePath(L, filepath.Dir(abs))

	L.Push(L.NewFunctionFromProto(proto))
	runErr := L.PCall(0, lua.MultRet, nil)
	r.finish(L, runErr)

	// spawned threads share the parent state's registry; it must outlive
	// them
	r.wg.Wait()

	if runErr != nil {
		return fmt.Errorf("script error: %w", runErr)
	}
	return nil
}

// installBuiltins registers the trace marker and the spawn builtin on the
// root state; spawned states inherit them through the shared globals.
func (r *Runtime) installBuiltins(L *lua.LState) {
	L.SetGlobal(markerGlobal, L.NewFunction(r.markerFn))
	L.SetGlobal("spawn", L.NewFunction(r.spawnFn))
}

// prependPackagePath puts dir first on package.path.
func prependPackagePath(L *lua.LState, dir string) {
	pkg := L.GetGlobal("package")
	if pkg == lua.LNil {
		return
	}
	old := L.GetField(pkg, "path")
	L.SetField(pkg, "path", lua.LString(filepath.Join(dir, "?.lua")+";"+lua.LVAsString(old)))
}

// markerFn is the injected line marker. It runs on the goroutine executing
// the instrumented chunk and may block there while the engine holds the
// thread suspended.
func (r *Runtime) markerFn(L *lua.LState) int {
	line := L.CheckInt(1)
	r.tracerFor(L).sync(line)
	return 0
}

// spawnFn runs a Lua function on its own goroutine as a new debuggee
// thread: spawn(fn).
func (r *Runtime) spawnFn(L *lua.LState) int {
	fn := L.CheckFunction(1)
	co, _ := L.NewThread()

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		co.Push(fn)
		err := co.PCall(0, 0, nil)
		r.finish(co, err)
		if err != nil {
			r.log.Debug("spawned thread error", zap.Error(err))
		}
	}()
	return 0
}

// tracerFor returns the tracer owning L, creating one on first sight. A new
// LState means a new debuggee thread (the main chunk, a spawn, or a
// coroutine).
func (r *Runtime) tracerFor(L *lua.LState) *tracer {
	r.mu.Lock()
	defer r.mu.Unlock()

	if t, ok := r.tracers[L]; ok {
		return t
	}
	id := r.nextID.Inc()
	name := "main"
	if id > 1 {
		name = fmt.Sprintf("thread-%d", id)
	}
	t := &tracer{
		rt:   r,
		L:    L,
		info: trace.ThreadInfo{ID: id, Name: name},
	}
	r.tracers[L] = t
	return t
}

// finish unwinds a thread's remaining frames once its chunk has returned or
// errored, so the engine observes the origin frame's return.
func (r *Runtime) finish(L *lua.LState, err error) {
	r.mu.Lock()
	t, ok := r.tracers[L]
	delete(r.tracers, L)
	r.mu.Unlock()

	if ok {
		t.finish(err)
	}
}

func (r *Runtime) hookFn() trace.Hook {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.hook
}
