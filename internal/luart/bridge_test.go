package luart

import (
	"reflect"
	"testing"

	lua "github.com/yuin/gopher-lua"
)

func TestToGoValueScalars(t *testing.T) {
	tests := []struct {
		name     string
		input    lua.LValue
		expected interface{}
	}{
		{"nil", lua.LNil, nil},
		{"true", lua.LTrue, true},
		{"false", lua.LFalse, false},
		{"integer", lua.LNumber(42), int64(42)},
		{"float", lua.LNumber(3.25), 3.25},
		{"string", lua.LString("hello"), "hello"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := toGoValue(tt.input)
			if !reflect.DeepEqual(got, tt.expected) {
				t.Errorf("toGoValue(%v) = %v (%T), want %v (%T)",
					tt.input, got, got, tt.expected, tt.expected)
			}
		})
	}
}

func TestToGoValueArrayTable(t *testing.T) {
	L := lua.NewState()
	defer L.Close()

	tbl := L.NewTable()
	tbl.RawSetInt(1, lua.LString("a"))
	tbl.RawSetInt(2, lua.LNumber(2))

	got, ok := toGoValue(tbl).([]interface{})
	if !ok {
		t.Fatalf("array table converted to %T", toGoValue(tbl))
	}
	if len(got) != 2 || got[0] != "a" || got[1] != int64(2) {
		t.Errorf("got %v, want [a 2]", got)
	}
}

func TestToGoValueMapTable(t *testing.T) {
	L := lua.NewState()
	defer L.Close()

	tbl := L.NewTable()
	tbl.RawSetString("k", lua.LString("v"))
	tbl.RawSetInt(1, lua.LNumber(1)) // mixed keys force map form

	got, ok := toGoValue(tbl).(map[string]interface{})
	if !ok {
		t.Fatalf("mixed table converted to %T", toGoValue(tbl))
	}
	if got["k"] != "v" || got["1"] != int64(1) {
		t.Errorf("got %v", got)
	}
}

func TestToGoValueNestedTable(t *testing.T) {
	L := lua.NewState()
	defer L.Close()

	inner := L.NewTable()
	inner.RawSetString("deep", lua.LNumber(7))
	outer := L.NewTable()
	outer.RawSetString("inner", inner)

	got := toGoValue(outer).(map[string]interface{})
	innerGot, ok := got["inner"].(map[string]interface{})
	if !ok {
		t.Fatalf("inner = %T", got["inner"])
	}
	if innerGot["deep"] != int64(7) {
		t.Errorf("deep = %v, want 7", innerGot["deep"])
	}
}

func TestToGoValueCyclicTable(t *testing.T) {
	L := lua.NewState()
	defer L.Close()

	tbl := L.NewTable()
	tbl.RawSetString("self", tbl)

	got := toGoValue(tbl).(map[string]interface{})
	if _, recursed := got["self"].(map[string]interface{}); recursed {
		t.Error("cycle was not broken")
	}
	if got["self"] == nil {
		t.Error("cycle entry dropped entirely")
	}
}

func TestToGoValueFunction(t *testing.T) {
	L := lua.NewState()
	defer L.Close()

	fn := L.NewFunction(func(*lua.LState) int { return 0 })
	got, ok := toGoValue(fn).(string)
	if !ok || got == "" {
		t.Errorf("function converted to %v, want printed identity", got)
	}
}
