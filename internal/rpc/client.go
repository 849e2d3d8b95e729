package rpc

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/atomic"

	"github.com/dmoreno/luadbg/internal/dbg"
	"github.com/dmoreno/luadbg/internal/serialize"
)

// DefaultRetryDelay is the pause between connection attempts.
const DefaultRetryDelay = 500 * time.Millisecond

// Client is the master side of the control channel: a proxy used by the
// external controller. The channel is a single logical half-duplex pipe, so
// every call holds one in-flight lock; concurrent callers are serialized
// rather than interleaved.
type Client struct {
	addr       string
	clock      clock.Clock
	retryDelay time.Duration

	mu        sync.Mutex // single in-flight call
	transport Transport
	seq       atomic.Int64
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithClock injects the clock used for retry pacing; tests use a mock.
func WithClock(c clock.Clock) ClientOption {
	return func(cl *Client) { cl.clock = c }
}

// WithRetryDelay sets the pause between connection attempts.
func WithRetryDelay(d time.Duration) ClientOption {
	return func(cl *Client) { cl.retryDelay = d }
}

// NewClient creates a client for the engine at addr. Call Connect before
// issuing requests.
func NewClient(addr string, opts ...ClientOption) *Client {
	c := &Client{
		addr:       addr,
		clock:      clock.New(),
		retryDelay: DefaultRetryDelay,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Connect dials the engine, retrying up to maxAttempts times with a fixed
// delay, and verifies liveness with a ping. There is no timeout beyond the
// bounded retry count.
func (c *Client) Connect(maxAttempts int) error {
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			c.clock.Sleep(c.retryDelay)
		}

		transport, err := NewSocketTransport(c.addr)
		if err != nil {
			lastErr = err
			continue
		}

		c.mu.Lock()
		c.transport = transport
		c.mu.Unlock()

		if _, err := c.Ping(); err != nil {
			transport.Close()
			c.mu.Lock()
			c.transport = nil
			c.mu.Unlock()
			lastErr = err
			continue
		}
		return nil
	}
	return fmt.Errorf("%w after %d attempts: %v", ErrConnectionFailed, maxAttempts, lastErr)
}

// Close closes the channel.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.transport == nil {
		return nil
	}
	err := c.transport.Close()
	c.transport = nil
	return err
}

// call performs one request/response round trip. Transport failures are
// surfaced as ErrConnectionLost, remote faults as *Fault.
func (c *Client) call(method string, result interface{}, args ...interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.transport == nil {
		return ErrNotConnected
	}

	encoded := make([]json.RawMessage, 0, len(args))
	for i, arg := range args {
		raw, err := json.Marshal(arg)
		if err != nil {
			return fmt.Errorf("marshal argument %d: %w", i, err)
		}
		encoded = append(encoded, raw)
	}

	req := Request{
		Seq:    c.seq.Inc(),
		Type:   TypeRequest,
		Method: method,
		Args:   encoded,
	}
	content, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	if err := c.transport.Send(&Message{Content: content}); err != nil {
		return fmt.Errorf("%w: %v", ErrConnectionLost, err)
	}
	msg, err := c.transport.Receive()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrConnectionLost, err)
	}

	var resp Response
	if err := json.Unmarshal(msg.Content, &resp); err != nil {
		return fmt.Errorf("%w: malformed response: %v", ErrConnectionLost, err)
	}
	if resp.RequestSeq != req.Seq {
		return fmt.Errorf("%w: response for request %d, expected %d",
			ErrConnectionLost, resp.RequestSeq, req.Seq)
	}
	if !resp.Success {
		if resp.Error != nil {
			return resp.Error
		}
		return fmt.Errorf("%w: failed response without fault", ErrConnectionLost)
	}
	if result != nil {
		if err := json.Unmarshal(resp.Result, result); err != nil {
			return fmt.Errorf("unmarshal result: %w", err)
		}
	}
	return nil
}

// Ping returns the engine's protocol version.
func (c *Client) Ping() (string, error) {
	var version string
	err := c.call("ping", &version)
	return version, err
}

// Start starts the debug session; the debuggee begins executing.
func (c *Client) Start() error {
	return c.call("start", nil)
}

// Stop terminates the session and every debuggee thread.
func (c *Client) Stop() error {
	return c.call("stop", nil)
}

// Resume resumes one thread, stopping only at breakpoints.
func (c *Client) Resume(threadID int64) error {
	return c.call("resume", nil, threadID)
}

// ResumeAll resumes every thread.
func (c *Client) ResumeAll() error {
	return c.call("resumeAll", nil)
}

// StepOver steps to the next line in the thread's current frame.
func (c *Client) StepOver(threadID int64) error {
	return c.call("stepOver", nil, threadID)
}

// StepInto steps to the very next line, entering calls.
func (c *Client) StepInto(threadID int64) error {
	return c.call("stepInto", nil, threadID)
}

// StepOut runs until the thread's current frame returns.
func (c *Client) StepOut(threadID int64) error {
	return c.call("stepOut", nil, threadID)
}

// Stack returns the thread's stack, outermost frame first.
func (c *Client) Stack(threadID int64) ([]dbg.StackEntry, error) {
	var stack []dbg.StackEntry
	err := c.call("getStack", &stack, threadID)
	return stack, err
}

// SetBreakpoint marks file:line (1-based) as a breakpoint. A front end using
// 0-based lines must convert at its own edge.
func (c *Client) SetBreakpoint(file string, line int) error {
	return c.call("setBreakpoint", nil, file, line)
}

// ClearBreakpoint removes the breakpoint at file:line.
func (c *Client) ClearBreakpoint(file string, line int) error {
	return c.call("clearBreakpoint", nil, file, line)
}

// ClearAllBreakpoints removes every breakpoint.
func (c *Client) ClearAllBreakpoints() error {
	return c.call("clearAllBreakpoints", nil)
}

// Evaluate evaluates an expression in the thread's current frame and returns
// the serialized result. Evaluation failures come back as serialized error
// values, not as call errors.
func (c *Client) Evaluate(threadID int64, expr string) (*serialize.Value, error) {
	var value serialize.Value
	if err := c.call("evaluate", &value, threadID, expr); err != nil {
		return nil, err
	}
	return &value, nil
}

// Execute runs a statement in the thread's current frame.
func (c *Client) Execute(threadID int64, stmt string) (*serialize.Value, error) {
	var value serialize.Value
	if err := c.call("execute", &value, threadID, stmt); err != nil {
		return nil, err
	}
	return &value, nil
}

// ListThreads returns the live threads.
func (c *Client) ListThreads() ([]ThreadDescriptor, error) {
	var threads []ThreadDescriptor
	err := c.call("listThreads", &threads)
	return threads, err
}

// Messages drains and returns all queued engine events. It never blocks
// waiting for new events.
func (c *Client) Messages() ([]dbg.Event, error) {
	var events []dbg.Event
	err := c.call("getMessages", &events)
	return events, err
}
