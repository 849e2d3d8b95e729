// Package cli is the interactive controller shell. It drives a debug engine
// over the control channel.
package cli

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/peterh/liner"

	"github.com/dmoreno/luadbg/internal/rpc"
	"github.com/dmoreno/luadbg/internal/serialize"
)

const prompt = "luadbg> "

// REPL is an interactive prompt over one connected client. An empty line
// repeats the last command, the way debugger shells usually do.
type REPL struct {
	client *rpc.Client
	liner  *liner.State
	out    io.Writer

	last   string
	thread int64
	done   bool
}

// NewREPL wraps a connected client.
func NewREPL(client *rpc.Client, out io.Writer) *REPL {
	return &REPL{
		client: client,
		out:    out,
		thread: 1,
	}
}

// Run reads and executes commands until quit or EOF.
func (r *REPL) Run() error {
	r.liner = liner.NewLiner()
	defer r.liner.Close()
	r.liner.SetCompleter(r.complete)
	r.liner.SetTabCompletionStyle(liner.TabPrints)

	fmt.Fprintln(r.out, `type "help" for commands`)
	for !r.done {
		line, err := r.liner.Prompt(prompt)
		if err != nil {
			if err == io.EOF || err == liner.ErrPromptAborted {
				return nil
			}
			return err
		}

		line = strings.TrimSpace(line)
		if line != "" {
			r.last = line
			r.liner.AppendHistory(line)
		} else {
			line = r.last
		}
		if line == "" {
			continue
		}

		if err := r.dispatch(strings.Fields(line)); err != nil {
			fmt.Fprintf(r.out, "error: %v\n", err)
		}
	}
	return nil
}

type command struct {
	name    string
	aliases []string
	usage   string
	help    string
	run     func(r *REPL, args []string) error
}

var commands []command

func init() {
	commands = []command{
		{"help", []string{"h"}, "help", "show this help",
			func(r *REPL, _ []string) error { r.printHelp(); return nil }},
		{"ping", nil, "ping", "check the engine and print its protocol version",
			(*REPL).cmdPing},
		{"start", nil, "start", "start debuggee execution",
			func(r *REPL, _ []string) error { return r.client.Start() }},
		{"stop", nil, "stop", "terminate the session",
			func(r *REPL, _ []string) error { return r.client.Stop() }},
		{"break", []string{"b"}, "break <file> <line>", "set a breakpoint",
			(*REPL).cmdBreak},
		{"clear", nil, "clear <file> <line>", "clear a breakpoint",
			(*REPL).cmdClear},
		{"clearall", nil, "clearall", "clear every breakpoint",
			func(r *REPL, _ []string) error { return r.client.ClearAllBreakpoints() }},
		{"continue", []string{"c"}, "continue [thread]", "resume a thread",
			func(r *REPL, args []string) error { return r.control(args, r.client.Resume) }},
		{"continueall", []string{"ca"}, "continueall", "resume every thread",
			func(r *REPL, _ []string) error { return r.drained(r.client.ResumeAll()) }},
		{"next", []string{"n"}, "next [thread]", "step over",
			func(r *REPL, args []string) error { return r.control(args, r.client.StepOver) }},
		{"step", []string{"s"}, "step [thread]", "step into",
			func(r *REPL, args []string) error { return r.control(args, r.client.StepInto) }},
		{"out", []string{"o"}, "out [thread]", "step out",
			func(r *REPL, args []string) error { return r.control(args, r.client.StepOut) }},
		{"stack", []string{"bt"}, "stack [thread]", "print a thread's stack",
			(*REPL).cmdStack},
		{"print", []string{"p"}, "print <expr>", "evaluate an expression in the current frame",
			(*REPL).cmdPrint},
		{"exec", []string{"x"}, "exec <stmt>", "execute a statement in the current frame",
			(*REPL).cmdExec},
		{"threads", []string{"t"}, "threads", "list live threads",
			(*REPL).cmdThreads},
		{"thread", nil, "thread <id>", "select the thread control commands target",
			(*REPL).cmdThread},
		{"events", []string{"e"}, "events", "drain and print queued engine events",
			func(r *REPL, _ []string) error { return r.drainEvents() }},
		{"quit", []string{"q", "exit"}, "quit", "leave the shell",
			func(r *REPL, _ []string) error { r.done = true; return nil }},
	}
}

func (r *REPL) dispatch(fields []string) error {
	name, args := fields[0], fields[1:]
	for _, c := range commands {
		if c.name == name || contains(c.aliases, name) {
			return c.run(r, args)
		}
	}
	return fmt.Errorf("unknown command %q; try help", name)
}

func (r *REPL) complete(line string) []string {
	var out []string
	for _, c := range commands {
		if strings.HasPrefix(c.name, line) {
			out = append(out, c.name)
		}
		for _, a := range c.aliases {
			if strings.HasPrefix(a, line) {
				out = append(out, a)
			}
		}
	}
	sort.Strings(out)
	return out
}

func (r *REPL) printHelp() {
	for _, c := range commands {
		name := c.usage
		if len(c.aliases) > 0 {
			name += " (" + strings.Join(c.aliases, ", ") + ")"
		}
		fmt.Fprintf(r.out, "  %-28s %s\n", name, c.help)
	}
}

func (r *REPL) cmdPing(_ []string) error {
	version, err := r.client.Ping()
	if err != nil {
		return err
	}
	fmt.Fprintf(r.out, "protocol version %s\n", version)
	return nil
}

func (r *REPL) cmdBreak(args []string) error {
	file, line, err := fileLineArgs(args)
	if err != nil {
		return err
	}
	return r.client.SetBreakpoint(file, line)
}

func (r *REPL) cmdClear(args []string) error {
	file, line, err := fileLineArgs(args)
	if err != nil {
		return err
	}
	return r.client.ClearBreakpoint(file, line)
}

// control runs one resume/step call against the selected or named thread and
// then prints whatever events the move produced.
func (r *REPL) control(args []string, fn func(int64) error) error {
	tid, err := r.threadArg(args)
	if err != nil {
		return err
	}
	return r.drained(fn(tid))
}

func (r *REPL) cmdStack(args []string) error {
	tid, err := r.threadArg(args)
	if err != nil {
		return err
	}
	stack, err := r.client.Stack(tid)
	if err != nil {
		return err
	}
	for i, entry := range stack {
		fmt.Fprintf(r.out, "#%d %s:%d\n", len(stack)-1-i, entry.File, entry.Line)
	}
	return nil
}

func (r *REPL) cmdPrint(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: print <expr>")
	}
	value, err := r.client.Evaluate(r.thread, strings.Join(args, " "))
	if err != nil {
		return err
	}
	r.printValue(value, 0)
	return nil
}

func (r *REPL) cmdExec(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: exec <stmt>")
	}
	value, err := r.client.Execute(r.thread, strings.Join(args, " "))
	if err != nil {
		return err
	}
	// success comes back as an empty string marker; only errors are worth
	// showing
	if value.Type != "string" || value.Repr != `""` {
		r.printValue(value, 0)
	}
	return nil
}

func (r *REPL) cmdThreads(_ []string) error {
	threads, err := r.client.ListThreads()
	if err != nil {
		return err
	}
	for _, t := range threads {
		marker := " "
		if t.ID == r.thread {
			marker = "*"
		}
		fmt.Fprintf(r.out, "%s %d %s (%s)\n", marker, t.ID, t.Name, t.State)
	}
	return nil
}

func (r *REPL) cmdThread(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: thread <id>")
	}
	tid, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("bad thread id %q", args[0])
	}
	r.thread = tid
	return nil
}

func (r *REPL) threadArg(args []string) (int64, error) {
	if len(args) == 0 {
		return r.thread, nil
	}
	tid, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("bad thread id %q", args[0])
	}
	return tid, nil
}

// drained prints queued events after a successful control call.
func (r *REPL) drained(err error) error {
	if err != nil {
		return err
	}
	return r.drainEvents()
}

func (r *REPL) drainEvents() error {
	events, err := r.client.Messages()
	if err != nil {
		return err
	}
	for _, ev := range events {
		switch {
		case ev.File != "":
			fmt.Fprintf(r.out, "[%s] thread %d at %s:%d\n", ev.Type, ev.ThreadID, ev.File, ev.Line)
		case ev.ExcType != "":
			fmt.Fprintf(r.out, "[%s] thread %d: %s: %s\n", ev.Type, ev.ThreadID, ev.ExcType, ev.ExcValue)
		case ev.ThreadID != 0:
			fmt.Fprintf(r.out, "[%s] thread %d\n", ev.Type, ev.ThreadID)
		default:
			fmt.Fprintf(r.out, "[%s]\n", ev.Type)
		}
	}
	return nil
}

func (r *REPL) printValue(v *serialize.Value, indent int) {
	pad := strings.Repeat("  ", indent)
	fmt.Fprintf(r.out, "%s%s %s = %s\n", pad, v.Name, v.Type, v.Repr)
	for _, child := range v.Children {
		r.printValue(child, indent+1)
	}
}

func fileLineArgs(args []string) (string, int, error) {
	if len(args) != 2 {
		return "", 0, fmt.Errorf("usage: <file> <line>")
	}
	line, err := strconv.Atoi(args[1])
	if err != nil || line < 1 {
		return "", 0, fmt.Errorf("bad line %q", args[1])
	}
	return args[0], line, nil
}

func contains(ss []string, s string) bool {
	for _, v := range ss {
		if v == s {
			return true
		}
	}
	return false
}
