package luart

import (
	"errors"
	"testing"

	lua "github.com/yuin/gopher-lua"

	"github.com/dmoreno/luadbg/internal/trace"
)

func TestEvalUnwoundFrame(t *testing.T) {
	L := lua.NewState()
	defer L.Close()

	tr := &tracer{L: L}
	frame := &trace.Frame{}
	b := &frameBindings{t: tr, idx: 0, frame: frame}

	// the tracer never mirrored this frame, so it counts as unwound
	if _, err := b.Eval("1"); !errors.Is(err, ErrNoFrame) {
		t.Errorf("eval = %v, want ErrNoFrame", err)
	}
	if err := b.Exec("x = 1"); !errors.Is(err, ErrNoFrame) {
		t.Errorf("exec = %v, want ErrNoFrame", err)
	}
}

func TestEvalReplacedFrameSlot(t *testing.T) {
	L := lua.NewState()
	defer L.Close()

	tr := &tracer{L: L}
	old := &trace.Frame{}
	tr.frames = []*trace.Frame{{}} // a different frame occupies slot 0 now
	b := &frameBindings{t: tr, idx: 0, frame: old}

	if _, err := b.Eval("1"); !errors.Is(err, ErrNoFrame) {
		t.Errorf("eval = %v, want ErrNoFrame", err)
	}
}
