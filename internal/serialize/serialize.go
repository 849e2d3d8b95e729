// Package serialize converts runtime values into depth-bounded trees of
// wire-safe records for transport to a remote controller.
package serialize

import (
	"fmt"
	"reflect"
	"sort"
	"strconv"
)

// DefaultDepth is how many levels below the root are expanded.
const DefaultDepth = 1

// Value is one node of a serialized value tree. Expr is the expression text
// that reproduces this value, so a controller can re-evaluate any child
// without the engine keeping object references alive.
type Value struct {
	Name        string   `json:"name"`
	Expr        string   `json:"expr"`
	Type        string   `json:"type"`
	Repr        string   `json:"value"`
	HasChildren bool     `json:"has_children"`
	Children    []*Value `json:"children,omitempty"`
}

// Serialize converts v into a Value tree expanded at most depth levels below
// the root. The tree is acyclic by construction of the depth bound; no cycle
// detection is performed beyond it.
func Serialize(name, expr string, v interface{}, depth int) *Value {
	out := &Value{
		Name: name,
		Expr: expr,
		Type: typeName(v),
		Repr: repr(v),
	}

	if v == nil {
		return out
	}

	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Ptr || rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			return out
		}
		rv = rv.Elem()
	}

	if isPlain(rv.Kind()) {
		return out
	}
	out.HasChildren = true
	if depth == 0 {
		return out
	}

	switch rv.Kind() {
	case reflect.Map:
		out.Children = mapChildren(expr, rv, depth-1)
	case reflect.Slice, reflect.Array:
		out.Children = sequenceChildren(expr, rv, depth-1)
	case reflect.Struct:
		out.Children = structChildren(expr, rv, depth-1)
	}
	return out
}

// isPlain reports whether a kind is a scalar with no expandable children.
func isPlain(k reflect.Kind) bool {
	switch k {
	case reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr,
		reflect.Float32, reflect.Float64,
		reflect.Complex64, reflect.Complex128,
		reflect.String,
		reflect.Chan, reflect.Func, reflect.UnsafePointer,
		reflect.Invalid:
		return true
	default:
		return false
	}
}

func mapChildren(expr string, rv reflect.Value, depth int) []*Value {
	keys := rv.MapKeys()
	type entry struct {
		key  string
		name string
		val  interface{}
	}
	entries := make([]entry, 0, len(keys))
	for _, k := range keys {
		val, ok := extract(rv.MapIndex(k))
		if !ok {
			continue
		}
		ki, ok := extract(k)
		if !ok {
			continue
		}
		entries = append(entries, entry{
			key:  keyRepr(ki),
			name: fmt.Sprintf("%v", ki),
			val:  val,
		})
	}
	// map iteration order is random; sort for a stable tree
	sort.Slice(entries, func(i, j int) bool { return entries[i].key < entries[j].key })

	children := make([]*Value, 0, len(entries))
	for _, e := range entries {
		childExpr := fmt.Sprintf("(%s)[%s]", expr, e.key)
		children = append(children, Serialize(e.name, childExpr, e.val, depth))
	}
	return children
}

func sequenceChildren(expr string, rv reflect.Value, depth int) []*Value {
	children := make([]*Value, 0, rv.Len())
	for i := 0; i < rv.Len(); i++ {
		val, ok := extract(rv.Index(i))
		if !ok {
			continue
		}
		childExpr := fmt.Sprintf("(%s)[%d]", expr, i)
		children = append(children, Serialize(strconv.Itoa(i), childExpr, val, depth))
	}
	return children
}

func structChildren(expr string, rv reflect.Value, depth int) []*Value {
	rt := rv.Type()
	children := make([]*Value, 0, rt.NumField())
	for i := 0; i < rt.NumField(); i++ {
		field := rt.Field(i)
		if field.PkgPath != "" {
			// unexported
			continue
		}
		val, ok := extract(rv.Field(i))
		if !ok {
			continue
		}
		childExpr := fmt.Sprintf("(%s).%s", expr, field.Name)
		children = append(children, Serialize(field.Name, childExpr, val, depth))
	}
	return children
}

// extract pulls a plain interface value out of a reflect.Value. A failure to
// introspect one child must not abort the whole serialization, so any panic
// is contained here and the child is skipped.
func extract(rv reflect.Value) (v interface{}, ok bool) {
	defer func() {
		if recover() != nil {
			v, ok = nil, false
		}
	}()
	if !rv.IsValid() || !rv.CanInterface() {
		return nil, false
	}
	return rv.Interface(), true
}

func typeName(v interface{}) string {
	if v == nil {
		return "nil"
	}
	return fmt.Sprintf("%T", v)
}

// repr builds a debug-oriented string form of v.
func repr(v interface{}) string {
	switch s := v.(type) {
	case nil:
		return "nil"
	case string:
		return strconv.Quote(s)
	case error:
		return s.Error()
	default:
		return fmt.Sprintf("%v", v)
	}
}

// keyRepr renders a map key the way it appears in an index expression.
func keyRepr(k interface{}) string {
	if s, ok := k.(string); ok {
		return strconv.Quote(s)
	}
	return fmt.Sprintf("%v", k)
}
