package luart

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"

	lua "github.com/yuin/gopher-lua"
	"github.com/yuin/gopher-lua/ast"
	"github.com/yuin/gopher-lua/parse"
)

// markerGlobal is the reserved global the instrumenter calls before every
// statement. The name is deliberately unlikely to collide with script code.
const markerGlobal = "__luadbg_line"

// instrumentFile parses, instruments, and compiles a Lua source file. The
// chunk is named by path so frames and breakpoints agree on the file name.
func instrumentFile(path string) (*lua.FunctionProto, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open script: %w", err)
	}
	defer f.Close()
	return instrumentSource(bufio.NewReader(f), path)
}

// instrumentSource parses and instruments Lua source from r, then compiles
// the mutated AST into a function prototype.
func instrumentSource(r io.Reader, name string) (*lua.FunctionProto, error) {
	chunk, err := parse.Parse(r, name)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", name, err)
	}
	proto, err := lua.Compile(instrumentBlock(chunk), name)
	if err != nil {
		return nil, fmt.Errorf("compile %s: %w", name, err)
	}
	return proto, nil
}

// instrumentBlock inserts a marker call before every statement of a block
// and recurses into nested blocks and function literals.
func instrumentBlock(stmts []ast.Stmt) []ast.Stmt {
	out := make([]ast.Stmt, 0, 2*len(stmts))
	for _, st := range stmts {
		out = append(out, markerStmt(st.Line()))
		out = append(out, instrumentStmt(st))
	}
	return out
}

// markerStmt builds the call __luadbg_line(line).
func markerStmt(line int) ast.Stmt {
	ident := &ast.IdentExpr{Value: markerGlobal}
	setPos(ident, line)
	arg := &ast.NumberExpr{Value: strconv.Itoa(line)}
	setPos(arg, line)
	call := &ast.FuncCallExpr{Func: ident, Args: []ast.Expr{arg}}
	setPos(call, line)
	stmt := &ast.FuncCallStmt{Expr: call}
	setPos(stmt, line)
	return stmt
}

func setPos(node ast.PositionHolder, line int) {
	node.SetLine(line)
	node.SetLastLine(line)
}

// instrumentStmt rewrites one statement in place, instrumenting every nested
// statement block and every expression that may contain a function literal.
func instrumentStmt(st ast.Stmt) ast.Stmt {
	switch s := st.(type) {
	case *ast.AssignStmt:
		instrumentExprs(s.Lhs)
		instrumentExprs(s.Rhs)
	case *ast.LocalAssignStmt:
		instrumentExprs(s.Exprs)
	case *ast.FuncCallStmt:
		instrumentExpr(s.Expr)
	case *ast.DoBlockStmt:
		s.Stmts = instrumentBlock(s.Stmts)
	case *ast.WhileStmt:
		instrumentExpr(s.Condition)
		s.Stmts = instrumentBlock(s.Stmts)
	case *ast.RepeatStmt:
		instrumentExpr(s.Condition)
		s.Stmts = instrumentBlock(s.Stmts)
	case *ast.IfStmt:
		instrumentExpr(s.Condition)
		s.Then = instrumentBlock(s.Then)
		s.Else = instrumentBlock(s.Else)
	case *ast.NumberForStmt:
		instrumentExpr(s.Init)
		instrumentExpr(s.Limit)
		instrumentExpr(s.Step)
		s.Stmts = instrumentBlock(s.Stmts)
	case *ast.GenericForStmt:
		instrumentExprs(s.Exprs)
		s.Stmts = instrumentBlock(s.Stmts)
	case *ast.FuncDefStmt:
		instrumentExpr(s.Func)
	case *ast.ReturnStmt:
		instrumentExprs(s.Exprs)
	}
	return st
}

func instrumentExprs(exprs []ast.Expr) {
	for _, e := range exprs {
		instrumentExpr(e)
	}
}

// instrumentExpr descends into an expression looking for function literals
// whose bodies need markers.
func instrumentExpr(expr ast.Expr) {
	switch e := expr.(type) {
	case *ast.FunctionExpr:
		e.Stmts = instrumentBlock(e.Stmts)
	case *ast.AttrGetExpr:
		instrumentExpr(e.Object)
		instrumentExpr(e.Key)
	case *ast.TableExpr:
		for _, field := range e.Fields {
			if field.Key != nil {
				instrumentExpr(field.Key)
			}
			instrumentExpr(field.Value)
		}
	case *ast.FuncCallExpr:
		if e.Func != nil {
			instrumentExpr(e.Func)
		}
		if e.Receiver != nil {
			instrumentExpr(e.Receiver)
		}
		instrumentExprs(e.Args)
	case *ast.LogicalOpExpr:
		instrumentExpr(e.Lhs)
		instrumentExpr(e.Rhs)
	case *ast.RelationalOpExpr:
		instrumentExpr(e.Lhs)
		instrumentExpr(e.Rhs)
	case *ast.StringConcatOpExpr:
		instrumentExpr(e.Lhs)
		instrumentExpr(e.Rhs)
	case *ast.ArithmeticOpExpr:
		instrumentExpr(e.Lhs)
		instrumentExpr(e.Rhs)
	case *ast.UnaryMinusOpExpr:
		instrumentExpr(e.Expr)
	case *ast.UnaryNotOpExpr:
		instrumentExpr(e.Expr)
	case *ast.UnaryLenOpExpr:
		instrumentExpr(e.Expr)
	}
}
