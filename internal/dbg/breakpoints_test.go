package dbg

import (
	"os"
	"path/filepath"
	"testing"
)

// chdir is t.Chdir for toolchains predating Go 1.24.
func chdir(t *testing.T, dir string) {
	t.Helper()
	old, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Chdir(old) })
}

func TestBreakpointsSetAndClear(t *testing.T) {
	b := NewBreakpoints()

	b.Set("/a/b.lua", 3)
	if !b.IsBreakpoint("/a/b.lua", 3) {
		t.Error("breakpoint not found after set")
	}
	if b.IsBreakpoint("/a/b.lua", 4) {
		t.Error("wrong line reported as breakpoint")
	}
	if b.IsBreakpoint("/a/c.lua", 3) {
		t.Error("wrong file reported as breakpoint")
	}

	// setting twice is idempotent
	b.Set("/a/b.lua", 3)
	if b.Count() != 1 {
		t.Errorf("count = %d, want 1", b.Count())
	}

	b.Clear("/a/b.lua", 3)
	if b.IsBreakpoint("/a/b.lua", 3) {
		t.Error("breakpoint survived clear")
	}
	// clearing a missing breakpoint is a no-op
	b.Clear("/a/b.lua", 3)
	b.Clear("/nope.lua", 1)
}

func TestBreakpointsClearAll(t *testing.T) {
	b := NewBreakpoints()
	b.Set("/a/b.lua", 1)
	b.Set("/a/b.lua", 2)
	b.Set("/a/c.lua", 9)

	if b.Count() != 3 {
		t.Fatalf("count = %d, want 3", b.Count())
	}
	b.ClearAll()
	if b.Count() != 0 {
		t.Errorf("count after clear all = %d, want 0", b.Count())
	}
	if b.IsBreakpoint("/a/b.lua", 1) {
		t.Error("breakpoint survived clear all")
	}
}

func TestBreakpointsChunkNames(t *testing.T) {
	b := NewBreakpoints()
	b.Set("<eval>", 1)
	b.Set("[G]", 2)

	if !b.IsBreakpoint("<eval>", 1) {
		t.Error("chunk name breakpoint not found after set")
	}
	chdir(t, t.TempDir())
	if !b.IsBreakpoint("<eval>", 1) || !b.IsBreakpoint("[G]", 2) {
		t.Error("chunk name lookup depends on the working directory")
	}
}

func TestBreakpointsNormalizeRelativePath(t *testing.T) {
	b := NewBreakpoints()
	b.Set("script.lua", 7)

	cwd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if !b.IsBreakpoint(filepath.Join(cwd, "script.lua"), 7) {
		t.Error("relative and absolute paths did not normalize to the same key")
	}
}
