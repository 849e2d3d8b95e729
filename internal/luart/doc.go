// Package luart is the gopher-lua debuggee runtime adapter. It executes a
// Lua script under line-level tracing and reports call/line/return/exception
// events through the trace contract.
//
// gopher-lua has no native debug hook, so the adapter compiles the script
// through its parser, injects a line-marker call before every statement
// (including bodies of nested function literals), and compiles the mutated
// AST. Each marker hit measures the Lua stack depth; depth deltas against
// the previous hit synthesize the call and return events between line
// events.
//
// An LState is not goroutine-safe and is owned by the goroutine executing
// it. Evaluation against a suspended frame therefore always runs on the
// suspended goroutine itself (the engine marshals evaluation requests onto
// it); the adapter never touches an LState from another goroutine.
package luart
