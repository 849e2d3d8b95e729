// Package rpc implements the remote control channel between the debugger
// engine (slave side, in-process with the debuggee) and an external
// controller (master side). Requests carry a method name plus positional
// arguments; each request is answered by exactly one response over a single
// half-duplex connection.
package rpc

import "encoding/json"

// Protocol version returned by ping.
const Version = "0.2"

// Message type discriminators.
const (
	TypeRequest  = "request"
	TypeResponse = "response"
)

// Request is one remote procedure call.
type Request struct {
	Seq    int64             `json:"seq"`
	Type   string            `json:"type"`
	Method string            `json:"method"`
	Args   []json.RawMessage `json:"args,omitempty"`
}

// Response answers one request. Exactly one of Result and Error is set,
// depending on Success.
type Response struct {
	Seq        int64           `json:"seq"`
	Type       string          `json:"type"`
	RequestSeq int64           `json:"request_seq"`
	Success    bool            `json:"success"`
	Result     json.RawMessage `json:"result,omitempty"`
	Error      *Fault          `json:"error,omitempty"`
}

// Fault kinds surfaced to the remote caller.
const (
	FaultUnsupportedMethod = "unsupported_method"
	FaultThreadNotFound    = "thread_not_found"
	FaultInvalidArgs       = "invalid_args"
	FaultInternal          = "internal"
)

// Fault is a protocol-level failure propagated to the caller. Faults are
// never mapped to a successful response.
type Fault struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// Error implements the error interface so the master can return faults
// directly.
func (f *Fault) Error() string {
	return f.Kind + ": " + f.Message
}

// ThreadDescriptor describes one live thread in listThreads results.
type ThreadDescriptor struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	State string `json:"state"`
}

// BreakpointAck acknowledges a setBreakpoint request.
type BreakpointAck struct {
	File string `json:"file"`
	Line int    `json:"line"`
}
