package rpc

import (
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmoreno/luadbg/internal/dbg"
	"github.com/dmoreno/luadbg/internal/trace"
)

const scriptFile = "/tmp/script.lua"

// scriptedRuntime replays a fixed trace: main runs lines 2 and 3, calls f
// (line 10), and returns.
type scriptedRuntime struct {
	bindings trace.Bindings
}

func (r *scriptedRuntime) Run(scriptPath string, hook trace.Hook) error {
	main := &trace.Frame{File: scriptFile, Line: 1, Func: "main", Bindings: r.bindings}
	f := &trace.Frame{File: scriptFile, Line: 10, Func: "f", Back: main, Bindings: r.bindings}

	type ev struct {
		frame *trace.Frame
		kind  trace.EventKind
		line  int
	}
	events := []ev{
		{main, trace.EventCall, 0},
		{main, trace.EventLine, 2},
		{main, trace.EventLine, 3},
		{f, trace.EventCall, 0},
		{f, trace.EventLine, 10},
		{f, trace.EventReturn, 0},
		{main, trace.EventLine, 4},
		{main, trace.EventReturn, 0},
	}

	var fn trace.Func
	for i, e := range events {
		if e.kind == trace.EventLine {
			e.frame.Line = e.line
		}
		if i == 0 {
			fn = hook(trace.ThreadInfo{ID: 1, Name: "main"}, e.frame, e.kind, nil)
			continue
		}
		if fn == nil {
			return nil
		}
		fn = fn(e.frame, e.kind, nil)
	}
	return nil
}

// mapBindings resolves expressions from a fixed map.
type mapBindings struct {
	mu   sync.Mutex
	vals map[string]interface{}
}

func (b *mapBindings) Eval(expr string) (interface{}, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	v, ok := b.vals[expr]
	if !ok {
		return nil, fmt.Errorf("undefined: %s", expr)
	}
	return v, nil
}

func (b *mapBindings) Exec(stmt string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.vals["executed"] = stmt
	return nil
}

// startServer wires a session over the scripted runtime, serves it on a free
// loopback port, and returns a connected client.
func startServer(t *testing.T) (*Client, *dbg.Session, chan error) {
	t.Helper()

	bindings := &mapBindings{vals: map[string]interface{}{
		"x":   int64(42),
		"tbl": map[string]interface{}{"k": "v"},
	}}
	session := dbg.New(&scriptedRuntime{bindings: bindings})
	server := NewServer(session)
	require.NoError(t, server.Listen("127.0.0.1:0"))
	go server.Serve()
	t.Cleanup(func() { server.Close() })

	runDone := make(chan error, 1)
	go func() { runDone <- session.Run(scriptFile) }()
	t.Cleanup(session.Stop)

	client := NewClient(server.Addr().String(), WithRetryDelay(time.Millisecond))
	require.NoError(t, client.Connect(3))
	t.Cleanup(func() { client.Close() })
	return client, session, runDone
}

// waitSuspended polls getMessages until a thread_suspended event arrives.
func waitSuspended(t *testing.T, client *Client) dbg.Event {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		events, err := client.Messages()
		require.NoError(t, err)
		for _, e := range events {
			if e.Type == dbg.EventThreadSuspended {
				return e
			}
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("no thread_suspended event")
	return dbg.Event{}
}

func TestServerEndToEnd(t *testing.T) {
	client, _, runDone := startServer(t)

	version, err := client.Ping()
	require.NoError(t, err)
	assert.Equal(t, Version, version)

	require.NoError(t, client.SetBreakpoint(scriptFile, 3))
	require.NoError(t, client.Start())

	e := waitSuspended(t, client)
	assert.Equal(t, int64(1), e.ThreadID)
	assert.Equal(t, 3, e.Line)

	stack, err := client.Stack(1)
	require.NoError(t, err)
	require.Len(t, stack, 1)
	assert.Equal(t, "script.lua", stack[0].File)
	assert.Equal(t, 3, stack[0].Line)

	threads, err := client.ListThreads()
	require.NoError(t, err)
	require.Len(t, threads, 1)
	assert.Equal(t, "main", threads[0].Name)
	assert.Equal(t, "paused", threads[0].State)

	value, err := client.Evaluate(1, "x")
	require.NoError(t, err)
	assert.Equal(t, "42", value.Repr)
	assert.Equal(t, "x", value.Expr)

	// expansion of a structured result
	value, err = client.Evaluate(1, "tbl")
	require.NoError(t, err)
	assert.True(t, value.HasChildren)
	require.Len(t, value.Children, 1)
	assert.Equal(t, `(tbl)["k"]`, value.Children[0].Expr)

	// a failed evaluation is a value, not a channel fault
	value, err = client.Evaluate(1, "missing")
	require.NoError(t, err)
	assert.Contains(t, value.Repr, "undefined")

	_, err = client.Execute(1, "x = 9")
	require.NoError(t, err)

	require.NoError(t, client.StepInto(1))
	e = waitSuspended(t, client)
	assert.Equal(t, 10, e.Line)

	require.NoError(t, client.Resume(1))
	select {
	case err := <-runDone:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("session did not finish")
	}

	events, err := client.Messages()
	require.NoError(t, err)
	var types []dbg.EventType
	for _, e := range events {
		types = append(types, e.Type)
	}
	assert.Contains(t, types, dbg.EventThreadEnded)
	assert.Contains(t, types, dbg.EventEndOfProgram)
}

func TestServerStop(t *testing.T) {
	client, _, runDone := startServer(t)

	require.NoError(t, client.SetBreakpoint(scriptFile, 2))
	require.NoError(t, client.Start())
	waitSuspended(t, client)

	require.NoError(t, client.Stop())
	select {
	case err := <-runDone:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("session did not finish after stop")
	}
}

func TestServerThreadNotFound(t *testing.T) {
	client, _, _ := startServer(t)

	err := client.Resume(99)
	var fault *Fault
	require.ErrorAs(t, err, &fault)
	assert.Equal(t, FaultThreadNotFound, fault.Kind)
}

func TestDispatchUnknownMethod(t *testing.T) {
	s := NewServer(dbg.New(&scriptedRuntime{}))

	resp := s.dispatch(&Request{Seq: 7, Type: TypeRequest, Method: "shutdownHost"})
	assert.False(t, resp.Success)
	assert.Equal(t, int64(7), resp.RequestSeq)
	require.NotNil(t, resp.Error)
	assert.Equal(t, FaultUnsupportedMethod, resp.Error.Kind)
}

func TestDispatchInvalidArgs(t *testing.T) {
	s := NewServer(dbg.New(&scriptedRuntime{}))

	// missing line argument
	file, _ := json.Marshal("a.lua")
	resp := s.dispatch(&Request{Seq: 1, Type: TypeRequest, Method: "setBreakpoint",
		Args: []json.RawMessage{file}})
	require.NotNil(t, resp.Error)
	assert.Equal(t, FaultInvalidArgs, resp.Error.Kind)

	// wrong argument type
	resp = s.dispatch(&Request{Seq: 2, Type: TypeRequest, Method: "resume",
		Args: []json.RawMessage{json.RawMessage(`"one"`)}})
	require.NotNil(t, resp.Error)
	assert.Equal(t, FaultInvalidArgs, resp.Error.Kind)
}
