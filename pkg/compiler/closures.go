package compiler

import "kestrel/pkg/ast"

// Closure conversion starts from a per-function analysis: which names a
// function declares, which it references from enclosing functions, and
// which of its own bindings are captured by nested literals. Captured
// bindings move into the function's capture container; reads and writes
// in the defining function go through the container too, so closures and
// the enclosing activation observe one shared cell.

type fnInfo struct {
	declared map[string]bool
	free     map[string]bool
	captured map[string]bool
	suspends int // await/yield/yield* sites in this body (nested fns excluded)
}

func newFnInfo() *fnInfo {
	return &fnInfo{
		declared: make(map[string]bool),
		free:     make(map[string]bool),
		captured: make(map[string]bool),
	}
}

// analyzeFn computes the closure data of one function literal, memoized
// across the unit.
func analyzeFn(fn *ast.FunctionLiteral, memo map[*ast.FunctionLiteral]*fnInfo) *fnInfo {
	if info, ok := memo[fn]; ok {
		return info
	}
	info := newFnInfo()
	memo[fn] = info

	if !fn.IsArrow {
		info.declared["this"] = true
	}
	if fn.Name != nil {
		info.declared[canon(fn.Name.Value)] = true
	}
	for _, p := range fn.Parameters {
		info.declared[canon(p.Value)] = true
	}

	a := &analysis{info: info, memo: memo, refs: make(map[string]bool), childFree: make(map[string]bool)}
	a.block(fn.Body)
	a.finish()
	return info
}

type analysis struct {
	info      *fnInfo
	memo      map[*ast.FunctionLiteral]*fnInfo
	refs      map[string]bool
	childFree map[string]bool
}

func (a *analysis) finish() {
	for r := range a.refs {
		if !a.info.declared[r] {
			a.info.free[r] = true
		}
	}
	for f := range a.childFree {
		if a.info.declared[f] {
			a.info.captured[f] = true
		} else {
			a.info.free[f] = true
		}
	}
}

func (a *analysis) declare(name string) {
	a.info.declared[canon(name)] = true
}

func (a *analysis) ref(name string) {
	a.refs[canon(name)] = true
}

func (a *analysis) literal(fn *ast.FunctionLiteral) {
	child := analyzeFn(fn, a.memo)
	for name := range child.free {
		a.childFree[name] = true
	}
}

func (a *analysis) block(b *ast.BlockStatement) {
	if b == nil {
		return
	}
	for _, s := range b.Statements {
		a.stmt(s)
	}
}

func (a *analysis) stmt(s ast.Statement) {
	switch s := s.(type) {
	case *ast.ExpressionStatement:
		a.expr(s.Expression)
	case *ast.LetStatement:
		a.declare(s.Name.Value)
		a.expr(s.Value)
	case *ast.ReturnStatement:
		a.expr(s.Value)
	case *ast.BlockStatement:
		a.block(s)
	case *ast.IfStatement:
		a.expr(s.Condition)
		a.block(s.Consequence)
		if s.Alternative != nil {
			a.stmt(s.Alternative)
		}
	case *ast.WhileStatement:
		a.expr(s.Condition)
		a.block(s.Body)
	case *ast.ForStatement:
		if s.Init != nil {
			a.stmt(s.Init)
		}
		a.expr(s.Condition)
		a.expr(s.Update)
		a.block(s.Body)
	case *ast.ForOfStatement:
		a.declare(s.Name.Value)
		a.expr(s.Value)
		a.block(s.Body)
	case *ast.LabeledStatement:
		a.stmt(s.Body)
	case *ast.ThrowStatement:
		a.expr(s.Value)
	case *ast.TryStatement:
		a.block(s.Block)
		if s.CatchParam != nil {
			a.declare(s.CatchParam.Value)
		}
		a.block(s.Catch)
		a.block(s.Finally)
	case *ast.ClassDeclaration:
		a.declare(s.Name.Value)
		for _, f := range s.Fields {
			a.expr(f.Value)
		}
		for _, m := range s.Methods {
			a.literal(m.Fn)
		}
	case *ast.ImportDeclaration, *ast.BreakStatement, *ast.ContinueStatement:
	case *ast.ExportNamedDeclaration:
		if s.Declaration != nil {
			a.stmt(s.Declaration)
		}
	case *ast.ExportDefaultDeclaration:
		a.expr(s.Value)
	}
}

func (a *analysis) expr(e ast.Expression) {
	switch e := e.(type) {
	case nil:
	case *ast.Identifier:
		a.ref(e.Value)
	case *ast.ThisExpression:
		a.ref("this")
	case *ast.FunctionLiteral:
		if e.IsDeclaration && e.Name != nil {
			a.declare(e.Name.Value)
		}
		a.literal(e)
	case *ast.PrefixExpression:
		a.expr(e.Right)
	case *ast.InfixExpression:
		a.expr(e.Left)
		a.expr(e.Right)
	case *ast.TernaryExpression:
		a.expr(e.Condition)
		a.expr(e.Consequent)
		a.expr(e.Alternative)
	case *ast.AssignmentExpression:
		a.expr(e.Target)
		a.expr(e.Value)
	case *ast.UpdateExpression:
		a.expr(e.Target)
	case *ast.MemberExpression:
		a.expr(e.Object)
	case *ast.IndexExpression:
		a.expr(e.Object)
		a.expr(e.Index)
	case *ast.CallExpression:
		a.expr(e.Callee)
		for _, arg := range e.Arguments {
			a.expr(arg)
		}
	case *ast.NewExpression:
		a.expr(e.Callee)
		for _, arg := range e.Arguments {
			a.expr(arg)
		}
	case *ast.AwaitExpression:
		a.info.suspends++
		a.expr(e.Value)
	case *ast.YieldExpression:
		a.info.suspends++
		a.expr(e.Value)
	case *ast.TemplateLiteral:
		for _, x := range e.Exprs {
			a.expr(x)
		}
	case *ast.ArrayLiteral:
		for _, el := range e.Elements {
			a.expr(el)
		}
	case *ast.ObjectLiteral:
		for _, p := range e.Properties {
			a.expr(p.Value)
		}
	}
}
