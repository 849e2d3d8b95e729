// Package dbg implements the debugging engine: the per-thread execution
// state machine, stepping and breakpoint matching, the suspend/resume
// protocol, and the session that owns them. The engine consumes trace events
// from a runtime (package trace) and is controlled remotely through the rpc
// package.
package dbg
