package dbg

import (
	"sync"

	"go.uber.org/zap"

	"github.com/dmoreno/luadbg/internal/trace"
)

// SessionState represents the state of a debug session.
type SessionState int32

const (
	// SessionInitialized is the state before any command.
	SessionInitialized SessionState = iota
	// SessionPaused means the session is waiting for a start command.
	SessionPaused
	// SessionRunning means the debuggee is executing.
	SessionRunning
	// SessionTerminated means the debuggee finished or was stopped.
	SessionTerminated
)

// String returns a string representation of the state.
func (s SessionState) String() string {
	switch s {
	case SessionInitialized:
		return "initialized"
	case SessionPaused:
		return "paused"
	case SessionRunning:
		return "running"
	case SessionTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// defaultIgnored are chunk names generated by the engine itself. Calls into
// them are never traced and their frames never appear in stack listings.
var defaultIgnored = []string{"<eval>", "<exec>", "[G]"}

// Session owns one debug run: the set of thread controllers, the breakpoint
// registry, and the outbound event queue. It installs the global trace hook
// that discovers new threads and routes trace callbacks to the right
// controller. All mutable state lives on the Session so multiple independent
// sessions can coexist in one process.
type Session struct {
	runtime     trace.Runtime
	breakpoints *Breakpoints
	events      *EventQueue
	log         *zap.Logger

	mu      sync.Mutex
	cond    *sync.Cond // signaled on state changes and thread removal
	state   SessionState
	threads map[int64]*Thread
	nextID  int64 // fallback ids for runtimes that do not assign them

	ignored map[string]struct{}
}

// Option configures a Session.
type Option func(*Session)

// WithLogger sets the session logger. Defaults to a no-op logger.
func WithLogger(log *zap.Logger) Option {
	return func(s *Session) { s.log = log }
}

// WithIgnoredFiles adds file base names (or chunk names) whose frames the
// engine skips when tracing and when building stacks.
func WithIgnoredFiles(names ...string) Option {
	return func(s *Session) {
		for _, n := range names {
			s.ignored[n] = struct{}{}
		}
	}
}

// New creates a session over the given runtime. The session starts paused
// and waits for an explicit start command before the script runs.
func New(runtime trace.Runtime, opts ...Option) *Session {
	s := &Session{
		runtime:     runtime,
		breakpoints: NewBreakpoints(),
		events:      &EventQueue{},
		log:         zap.NewNop(),
		state:       SessionPaused,
		threads:     make(map[int64]*Thread),
		ignored:     make(map[string]struct{}),
	}
	for _, name := range defaultIgnored {
		s.ignored[name] = struct{}{}
	}
	for _, opt := range opts {
		opt(s)
	}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// State returns the current session state.
func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Start transitions the session to RUNNING, releasing Run to execute the
// script. No-op if already running or terminated.
func (s *Session) Start() {
	s.mu.Lock()
	if s.state == SessionRunning || s.state == SessionTerminated {
		s.mu.Unlock()
		return
	}
	s.state = SessionRunning
	s.cond.Broadcast()
	s.mu.Unlock()

	s.log.Info("session started")
}

// Stop terminates the session and every live thread, even if the underlying
// program has not finished. Further trace callbacks see the terminated state
// and return immediately.
func (s *Session) Stop() {
	s.mu.Lock()
	if s.state == SessionTerminated {
		s.mu.Unlock()
		return
	}
	s.state = SessionTerminated
	threads := make([]*Thread, 0, len(s.threads))
	for _, t := range s.threads {
		threads = append(threads, t)
	}
	s.cond.Broadcast()
	s.mu.Unlock()

	for _, t := range threads {
		t.Stop()
	}
	s.log.Info("session stopped", zap.Int("threads", len(threads)))
}

// ResumeAll resumes every live thread; used for an unconditional "run to
// completion" command.
func (s *Session) ResumeAll() {
	s.mu.Lock()
	if s.state != SessionTerminated {
		s.state = SessionRunning
	}
	threads := make([]*Thread, 0, len(s.threads))
	for _, t := range s.threads {
		threads = append(threads, t)
	}
	s.mu.Unlock()

	for _, t := range threads {
		t.Resume()
	}
}

// Run blocks until the session is started, executes the script under the
// trace hook, waits for every debuggee thread to end, and leaves the session
// terminated. An EndOfProgram event is queued once the run is over.
func (s *Session) Run(scriptPath string) error {
	s.mu.Lock()
	for s.state != SessionRunning && s.state != SessionTerminated {
		s.cond.Wait()
	}
	if s.state == SessionTerminated {
		s.mu.Unlock()
		return ErrSessionTerminated
	}
	s.mu.Unlock()

	s.log.Info("running script", zap.String("path", scriptPath))
	err := s.runtime.Run(scriptPath, s.traceDispatch)

	s.mu.Lock()
	for len(s.threads) > 0 {
		s.cond.Wait()
	}
	s.state = SessionTerminated
	s.mu.Unlock()

	s.putEvent(Event{Type: EventEndOfProgram})
	s.log.Info("script finished", zap.Error(err))
	return err
}

// traceDispatch is the global trace hook. The first event of a new thread
// creates its controller (which emits ThreadStarted) and hands the runtime
// the controller's own dispatch, so subsequent events on that thread bypass
// the session.
func (s *Session) traceDispatch(ti trace.ThreadInfo, frame *trace.Frame, kind trace.EventKind, arg interface{}) trace.Func {
	if s.State() == SessionTerminated {
		return nil
	}
	if kind == trace.EventCall && s.isIgnored(frame.File) {
		// do not trace into the engine's own chunks
		return nil
	}

	s.mu.Lock()
	id := ti.ID
	if id == 0 {
		s.nextID++
		id = s.nextID
	}
	t, ok := s.threads[id]
	if !ok {
		t = newThread(id, ti.Name, frame, s)
		s.threads[id] = t
	}
	s.mu.Unlock()

	return t.traceDispatch
}

// GetThread returns the controller for a live thread id.
func (s *Session) GetThread(id int64) (*Thread, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.threads[id]
	if !ok {
		return nil, ErrThreadNotFound
	}
	return t, nil
}

// Threads returns a snapshot of the live thread controllers.
func (s *Session) Threads() []*Thread {
	s.mu.Lock()
	defer s.mu.Unlock()
	threads := make([]*Thread, 0, len(s.threads))
	for _, t := range s.threads {
		threads = append(threads, t)
	}
	return threads
}

// removeThread drops a terminated thread from the registry and wakes Run's
// wait-for-empty loop.
func (s *Session) removeThread(id int64) {
	s.mu.Lock()
	delete(s.threads, id)
	s.cond.Broadcast()
	s.mu.Unlock()
}

// SetBreakpoint marks path:line as a breakpoint. Relative paths are
// normalized to absolute form.
func (s *Session) SetBreakpoint(path string, line int) {
	s.breakpoints.Set(path, line)
	s.log.Debug("breakpoint set", zap.String("file", path), zap.Int("line", line))
}

// ClearBreakpoint removes the breakpoint at path:line.
func (s *Session) ClearBreakpoint(path string, line int) {
	s.breakpoints.Clear(path, line)
}

// ClearAllBreakpoints removes every breakpoint.
func (s *Session) ClearAllBreakpoints() {
	s.breakpoints.ClearAll()
}

// IsBreakpoint reports whether path:line is a breakpoint.
func (s *Session) IsBreakpoint(path string, line int) bool {
	return s.breakpoints.IsBreakpoint(path, line)
}

// Events drains and returns all currently queued events without blocking.
func (s *Session) Events() []Event {
	return s.events.Drain()
}

func (s *Session) putEvent(e Event) {
	s.events.Put(e)
	s.log.Debug("event", zap.String("type", string(e.Type)), zap.Int64("thread", e.ThreadID))
}

func (s *Session) isIgnored(name string) bool {
	_, ok := s.ignored[name]
	return ok
}
