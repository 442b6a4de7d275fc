package ast

import (
	"kestrel/pkg/errors"
	"kestrel/pkg/types"
)

// Construction helpers used by the parser bridge and by tests that build
// fixture trees directly. Hints are assigned where the node kind already
// determines the classification; everything else defaults to Unknown.

func At(line, col int) errors.Position {
	return errors.Position{Line: line, Column: col}
}

func Num(v float64) *NumberLiteral {
	n := &NumberLiteral{Value: v}
	n.SetHint(types.Number)
	return n
}

func Str(v string) *StringLiteral {
	n := &StringLiteral{Value: v}
	n.SetHint(types.String)
	return n
}

func Bool(v bool) *BooleanLiteral {
	n := &BooleanLiteral{Value: v}
	n.SetHint(types.Boolean)
	return n
}

func Null() *NullLiteral {
	n := &NullLiteral{}
	n.SetHint(types.Null)
	return n
}

func Undefined() *UndefinedLiteral { return &UndefinedLiteral{} }

func Ident(name string) *Identifier { return &Identifier{Value: name} }

// TypedIdent builds an identifier carrying a checker hint.
func TypedIdent(name string, h types.Hint) *Identifier {
	id := Ident(name)
	id.SetHint(h)
	return id
}

func Infix(op string, left, right Expression) *InfixExpression {
	return &InfixExpression{Operator: op, Left: left, Right: right}
}

func Prefix(op string, right Expression) *PrefixExpression {
	return &PrefixExpression{Operator: op, Right: right}
}

func Assign(target Expression, value Expression) *AssignmentExpression {
	return &AssignmentExpression{Operator: "=", Target: target, Value: value}
}

func CompoundAssign(op string, target Expression, value Expression) *AssignmentExpression {
	return &AssignmentExpression{Operator: op, Target: target, Value: value}
}

func Member(obj Expression, prop string) *MemberExpression {
	return &MemberExpression{Object: obj, Property: prop}
}

func Index(obj Expression, idx Expression) *IndexExpression {
	return &IndexExpression{Object: obj, Index: idx}
}

func Call(callee Expression, args ...Expression) *CallExpression {
	return &CallExpression{Callee: callee, Arguments: args}
}

func New(callee Expression, args ...Expression) *NewExpression {
	return &NewExpression{Callee: callee, Arguments: args}
}

func Await(v Expression) *AwaitExpression { return &AwaitExpression{Value: v} }

func Yield(v Expression) *YieldExpression { return &YieldExpression{Value: v} }

func YieldFrom(v Expression) *YieldExpression {
	return &YieldExpression{Value: v, Delegate: true}
}

func ExprStmt(e Expression) *ExpressionStatement {
	return &ExpressionStatement{Expression: e}
}

func Let(name string, value Expression) *LetStatement {
	return &LetStatement{Name: Ident(name), Value: value}
}

func Const(name string, value Expression) *LetStatement {
	return &LetStatement{Name: Ident(name), Value: value, IsConst: true}
}

func Return(v Expression) *ReturnStatement { return &ReturnStatement{Value: v} }

func Block(stmts ...Statement) *BlockStatement {
	return &BlockStatement{Statements: stmts}
}

func If(cond Expression, cons *BlockStatement, alt Statement) *IfStatement {
	return &IfStatement{Condition: cond, Consequence: cons, Alternative: alt}
}

func While(cond Expression, body *BlockStatement) *WhileStatement {
	return &WhileStatement{Condition: cond, Body: body}
}

func For(init Statement, cond Expression, update Expression, body *BlockStatement) *ForStatement {
	return &ForStatement{Init: init, Condition: cond, Update: update, Body: body}
}

func ForOf(name string, value Expression, body *BlockStatement) *ForOfStatement {
	return &ForOfStatement{Name: Ident(name), Value: value, Body: body}
}

func Fn(name string, params []string, body *BlockStatement) *FunctionLiteral {
	fn := &FunctionLiteral{Body: body}
	if name != "" {
		fn.Name = Ident(name)
		fn.IsDeclaration = true
	}
	for _, p := range params {
		fn.Parameters = append(fn.Parameters, Ident(p))
	}
	return fn
}

// FnExpr builds an anonymous function expression.
func FnExpr(params []string, body *BlockStatement) *FunctionLiteral {
	fn := Fn("", params, body)
	return fn
}

// Arrow builds an arrow function expression.
func Arrow(params []string, body *BlockStatement) *FunctionLiteral {
	fn := Fn("", params, body)
	fn.IsArrow = true
	return fn
}

// AsyncFn builds an async function declaration.
func AsyncFn(name string, params []string, body *BlockStatement) *FunctionLiteral {
	fn := Fn(name, params, body)
	fn.IsAsync = true
	return fn
}

// GenFn builds a generator function declaration.
func GenFn(name string, params []string, body *BlockStatement) *FunctionLiteral {
	fn := Fn(name, params, body)
	fn.IsGenerator = true
	return fn
}

// FnStmt wraps a function declaration as a statement.
func FnStmt(fn *FunctionLiteral) *ExpressionStatement {
	return &ExpressionStatement{Expression: fn}
}

func Prog(name string, stmts ...Statement) *Program {
	return &Program{Name: name, Statements: stmts}
}
