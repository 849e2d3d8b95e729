package dbg

import (
	"path/filepath"
	"strings"
	"sync"
)

// Breakpoints maps absolute source paths to sets of 1-based line numbers.
// Paths are normalized on every operation so callers may pass relative
// paths; lookups and insertions agree as long as both resolve to the same
// file.
type Breakpoints struct {
	mu    sync.RWMutex
	lines map[string]map[int]struct{}
}

// NewBreakpoints creates an empty registry.
func NewBreakpoints() *Breakpoints {
	return &Breakpoints{lines: make(map[string]map[int]struct{})}
}

// Set marks path:line as a breakpoint. Setting the same breakpoint twice is
// a no-op.
func (b *Breakpoints) Set(path string, line int) {
	path = normalizePath(path)

	b.mu.Lock()
	defer b.mu.Unlock()
	set, ok := b.lines[path]
	if !ok {
		set = make(map[int]struct{})
		b.lines[path] = set
	}
	set[line] = struct{}{}
}

// IsBreakpoint reports whether path:line is a breakpoint.
func (b *Breakpoints) IsBreakpoint(path string, line int) bool {
	path = normalizePath(path)

	b.mu.RLock()
	defer b.mu.RUnlock()
	set, ok := b.lines[path]
	if !ok {
		return false
	}
	_, ok = set[line]
	return ok
}

// Clear removes the breakpoint at path:line if present.
func (b *Breakpoints) Clear(path string, line int) {
	path = normalizePath(path)

	b.mu.Lock()
	defer b.mu.Unlock()
	set, ok := b.lines[path]
	if !ok {
		return
	}
	delete(set, line)
	if len(set) == 0 {
		delete(b.lines, path)
	}
}

// ClearAll removes every breakpoint.
func (b *Breakpoints) ClearAll() {
	b.mu.Lock()
	b.lines = make(map[string]map[int]struct{})
	b.mu.Unlock()
}

// Count returns the total number of breakpoints across all files.
func (b *Breakpoints) Count() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	n := 0
	for _, set := range b.lines {
		n += len(set)
	}
	return n
}

// normalizePath resolves path to an absolute, canonical form. Synthetic
// chunk names such as "<eval>" or "[G]" are not file paths and pass through
// untouched, so set and lookup agree on them regardless of the working
// directory.
func normalizePath(path string) string {
	if strings.HasPrefix(path, "<") || strings.HasPrefix(path, "[") {
		return path
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return filepath.Clean(path)
	}
	return abs
}
