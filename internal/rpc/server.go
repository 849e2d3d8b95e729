package rpc

import (
	"encoding/json"
	"fmt"
	"net"
	"sync"

	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/dmoreno/luadbg/internal/dbg"
	"github.com/dmoreno/luadbg/internal/serialize"
)

// handler executes one remote operation against the session.
type handler func(args []json.RawMessage) (interface{}, *Fault)

// Server is the slave side of the control channel. It exposes session and
// thread operations as named remote procedures behind an explicit allow-list
// and serializes all access to the session: requests are handled one at a
// time, and the method table is the only path into the engine.
type Server struct {
	session *dbg.Session
	log     *zap.Logger
	depth   int

	ln     net.Listener
	seq    atomic.Int64
	closed atomic.Bool

	mu      sync.Mutex // serializes request dispatch
	methods map[string]handler
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithServerLogger sets the server logger.
func WithServerLogger(log *zap.Logger) ServerOption {
	return func(s *Server) { s.log = log }
}

// WithSerializeDepth sets how many levels evaluate/execute results are
// expanded before transport.
func WithSerializeDepth(depth int) ServerOption {
	return func(s *Server) { s.depth = depth }
}

// NewServer creates a server over the given session.
func NewServer(session *dbg.Session, opts ...ServerOption) *Server {
	s := &Server{
		session: session,
		log:     zap.NewNop(),
		depth:   serialize.DefaultDepth,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.methods = map[string]handler{
		"ping":                s.ping,
		"start":               s.start,
		"stop":                s.stop,
		"resume":              s.threadCommand((*dbg.Thread).Resume),
		"resumeAll":           s.resumeAll,
		"stepOver":            s.threadCommand((*dbg.Thread).StepOver),
		"stepInto":            s.threadCommand((*dbg.Thread).StepInto),
		"stepOut":             s.threadCommand((*dbg.Thread).StepOut),
		"getStack":            s.getStack,
		"setBreakpoint":       s.setBreakpoint,
		"clearBreakpoint":     s.clearBreakpoint,
		"clearAllBreakpoints": s.clearAllBreakpoints,
		"evaluate":            s.evaluate,
		"execute":             s.execute,
		"listThreads":         s.listThreads,
		"getMessages":         s.getMessages,
	}
	return s
}

// Listen binds the server to addr (host:port; port 0 picks a free one).
func (s *Server) Listen(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	s.ln = ln
	s.log.Info("control channel listening", zap.String("addr", ln.Addr().String()))
	return nil
}

// Addr returns the bound listen address. Valid after Listen.
func (s *Server) Addr() net.Addr {
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// Serve accepts controller connections until Close. Connections are served
// one at a time; the channel is a single logical pipe.
func (s *Server) Serve() error {
	if s.ln == nil {
		return fmt.Errorf("serve: %w", ErrNotConnected)
	}
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			if s.closed.Load() {
				return ErrServerClosed
			}
			return fmt.Errorf("accept: %w", err)
		}
		s.serveConn(conn)
	}
}

// serveConn handles requests from one controller connection until it drops.
func (s *Server) serveConn(conn net.Conn) {
	defer conn.Close()
	transport := NewSocketTransportFromConn(conn)

	for {
		msg, err := transport.Receive()
		if err != nil {
			if !s.closed.Load() {
				s.log.Debug("controller disconnected", zap.Error(err))
			}
			return
		}

		var req Request
		if err := json.Unmarshal(msg.Content, &req); err != nil {
			s.log.Warn("malformed request", zap.Error(err))
			return
		}

		resp := s.dispatch(&req)
		content, err := json.Marshal(resp)
		if err != nil {
			s.log.Error("marshal response", zap.Error(err))
			return
		}
		if err := transport.Send(&Message{Content: content}); err != nil {
			return
		}
	}
}

// Close stops accepting connections.
func (s *Server) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	if s.ln != nil {
		return s.ln.Close()
	}
	return nil
}

// dispatch routes one request through the allow-list. Any method name not in
// the table fails with an unsupported_method fault; the table is the
// complete remote surface.
func (s *Server) dispatch(req *Request) *Response {
	s.mu.Lock()
	defer s.mu.Unlock()

	resp := &Response{
		Seq:        s.seq.Inc(),
		Type:       TypeResponse,
		RequestSeq: req.Seq,
	}

	h, ok := s.methods[req.Method]
	if !ok {
		resp.Error = &Fault{
			Kind:    FaultUnsupportedMethod,
			Message: fmt.Sprintf("method %q is not supported", req.Method),
		}
		return resp
	}

	result, fault := h(req.Args)
	if fault != nil {
		resp.Error = fault
		s.log.Debug("request faulted",
			zap.String("method", req.Method),
			zap.String("kind", fault.Kind))
		return resp
	}

	content, err := json.Marshal(result)
	if err != nil {
		resp.Error = &Fault{Kind: FaultInternal, Message: err.Error()}
		return resp
	}
	resp.Success = true
	resp.Result = content
	return resp
}

// Exported operations.

func (s *Server) ping(args []json.RawMessage) (interface{}, *Fault) {
	return Version, nil
}

func (s *Server) start(args []json.RawMessage) (interface{}, *Fault) {
	s.session.Start()
	return "OK", nil
}

func (s *Server) stop(args []json.RawMessage) (interface{}, *Fault) {
	s.session.Stop()
	return "OK", nil
}

func (s *Server) resumeAll(args []json.RawMessage) (interface{}, *Fault) {
	s.session.ResumeAll()
	return "OK", nil
}

// threadCommand wraps a per-thread control command as a handler returning
// the acted-on thread id.
func (s *Server) threadCommand(cmd func(*dbg.Thread)) handler {
	return func(args []json.RawMessage) (interface{}, *Fault) {
		t, fault := s.argThread(args, 0)
		if fault != nil {
			return nil, fault
		}
		cmd(t)
		return t.ID(), nil
	}
}

func (s *Server) getStack(args []json.RawMessage) (interface{}, *Fault) {
	t, fault := s.argThread(args, 0)
	if fault != nil {
		return nil, fault
	}
	return t.Stack(), nil
}

func (s *Server) setBreakpoint(args []json.RawMessage) (interface{}, *Fault) {
	file, fault := argString(args, 0)
	if fault != nil {
		return nil, fault
	}
	line, fault := argInt(args, 1)
	if fault != nil {
		return nil, fault
	}
	s.session.SetBreakpoint(file, line)
	return BreakpointAck{File: file, Line: line}, nil
}

func (s *Server) clearBreakpoint(args []json.RawMessage) (interface{}, *Fault) {
	file, fault := argString(args, 0)
	if fault != nil {
		return nil, fault
	}
	line, fault := argInt(args, 1)
	if fault != nil {
		return nil, fault
	}
	s.session.ClearBreakpoint(file, line)
	return "OK", nil
}

func (s *Server) clearAllBreakpoints(args []json.RawMessage) (interface{}, *Fault) {
	s.session.ClearAllBreakpoints()
	return "OK", nil
}

func (s *Server) evaluate(args []json.RawMessage) (interface{}, *Fault) {
	t, fault := s.argThread(args, 0)
	if fault != nil {
		return nil, fault
	}
	expr, fault := argString(args, 1)
	if fault != nil {
		return nil, fault
	}
	result := t.Evaluate(expr)
	return serialize.Serialize(expr, expr, result, s.depth), nil
}

func (s *Server) execute(args []json.RawMessage) (interface{}, *Fault) {
	t, fault := s.argThread(args, 0)
	if fault != nil {
		return nil, fault
	}
	stmt, fault := argString(args, 1)
	if fault != nil {
		return nil, fault
	}
	result := t.Execute(stmt)
	return serialize.Serialize(stmt, stmt, result, s.depth), nil
}

func (s *Server) listThreads(args []json.RawMessage) (interface{}, *Fault) {
	threads := s.session.Threads()
	list := make([]ThreadDescriptor, 0, len(threads))
	for _, t := range threads {
		list = append(list, ThreadDescriptor{
			ID:    t.ID(),
			Name:  t.Name(),
			State: t.State().String(),
		})
	}
	return list, nil
}

func (s *Server) getMessages(args []json.RawMessage) (interface{}, *Fault) {
	return s.session.Events(), nil
}

// Argument decoding.

func (s *Server) argThread(args []json.RawMessage, i int) (*dbg.Thread, *Fault) {
	id, fault := argInt64(args, i)
	if fault != nil {
		return nil, fault
	}
	t, err := s.session.GetThread(id)
	if err != nil {
		return nil, &Fault{
			Kind:    FaultThreadNotFound,
			Message: fmt.Sprintf("thread %d: %v", id, err),
		}
	}
	return t, nil
}

func argInt64(args []json.RawMessage, i int) (int64, *Fault) {
	var v int64
	if fault := decodeArg(args, i, &v); fault != nil {
		return 0, fault
	}
	return v, nil
}

func argInt(args []json.RawMessage, i int) (int, *Fault) {
	var v int
	if fault := decodeArg(args, i, &v); fault != nil {
		return 0, fault
	}
	return v, nil
}

func argString(args []json.RawMessage, i int) (string, *Fault) {
	var v string
	if fault := decodeArg(args, i, &v); fault != nil {
		return "", fault
	}
	return v, nil
}

func decodeArg(args []json.RawMessage, i int, out interface{}) *Fault {
	if i >= len(args) {
		return &Fault{
			Kind:    FaultInvalidArgs,
			Message: fmt.Sprintf("missing argument %d", i),
		}
	}
	if err := json.Unmarshal(args[i], out); err != nil {
		return &Fault{
			Kind:    FaultInvalidArgs,
			Message: fmt.Sprintf("argument %d: %v", i, err),
		}
	}
	return nil
}
