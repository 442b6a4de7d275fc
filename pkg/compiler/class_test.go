package compiler_test

import (
	"testing"

	"kestrel/pkg/ast"
)

func classMethod(name string, static bool, params []string, body *ast.BlockStatement) *ast.ClassMethod {
	return &ast.ClassMethod{Name: name, Static: static, Fn: ast.FnExpr(params, body)}
}

// pointClass is:
//
//	class Point {
//	  x; y;
//	  constructor(x, y) { this.x = x; this.y = y; }
//	  norm2() { return this.x * this.x + this.y * this.y; }
//	}
func pointClass() *ast.ClassDeclaration {
	return &ast.ClassDeclaration{
		Name: ast.Ident("Point"),
		Fields: []*ast.ClassField{
			{Name: "x"},
			{Name: "y"},
		},
		Methods: []*ast.ClassMethod{
			classMethod("constructor", false, []string{"x", "y"}, ast.Block(
				ast.ExprStmt(ast.Assign(ast.Member(&ast.ThisExpression{}, "x"), ast.Ident("x"))),
				ast.ExprStmt(ast.Assign(ast.Member(&ast.ThisExpression{}, "y"), ast.Ident("y"))),
			)),
			classMethod("norm2", false, nil, ast.Block(
				ast.Return(ast.Infix("+",
					ast.Infix("*", ast.Member(&ast.ThisExpression{}, "x"), ast.Member(&ast.ThisExpression{}, "x")),
					ast.Infix("*", ast.Member(&ast.ThisExpression{}, "y"), ast.Member(&ast.ThisExpression{}, "y")),
				)),
			)),
		},
	}
}

func TestClassConstructorAndMethods(t *testing.T) {
	p := ast.Prog("main",
		pointClass(),
		ast.Let("p", ast.New(ast.Ident("Point"), ast.Num(3), ast.Num(4))),
		exportLet("n2", ast.Call(ast.Member(ast.Ident("p"), "norm2"))),
		exportLet("x", ast.Member(ast.Ident("p"), "x")),
	)
	m, _ := run(t, build(t, "main", p))
	wantNum(t, slot(t, m, "main", "n2"), 25)
	wantNum(t, slot(t, m, "main", "x"), 3)
}

func TestClassFieldInitializers(t *testing.T) {
	// class Box { v = 10; doubled = 0; constructor() { this.doubled = this.v * 2; } }
	box := &ast.ClassDeclaration{
		Name: ast.Ident("Box"),
		Fields: []*ast.ClassField{
			{Name: "v", Value: ast.Num(10)},
			{Name: "doubled", Value: ast.Num(0)},
		},
		Methods: []*ast.ClassMethod{
			classMethod("constructor", false, nil, ast.Block(
				ast.ExprStmt(ast.Assign(ast.Member(&ast.ThisExpression{}, "doubled"),
					ast.Infix("*", ast.Member(&ast.ThisExpression{}, "v"), ast.Num(2)))),
			)),
		},
	}
	p := ast.Prog("main",
		box,
		ast.Let("b", ast.New(ast.Ident("Box"))),
		exportLet("v", ast.Member(ast.Ident("b"), "v")),
		exportLet("d", ast.Member(ast.Ident("b"), "doubled")),
	)
	m, _ := run(t, build(t, "main", p))
	wantNum(t, slot(t, m, "main", "v"), 10)
	wantNum(t, slot(t, m, "main", "d"), 20)
}

func TestClassStatics(t *testing.T) {
	// class C { static count = 0; static bump() { C.count = C.count + 1; return C.count; } }
	c := &ast.ClassDeclaration{
		Name: ast.Ident("C"),
		Fields: []*ast.ClassField{
			{Name: "count", Static: true, Value: ast.Num(0)},
		},
		Methods: []*ast.ClassMethod{
			classMethod("bump", true, nil, ast.Block(
				ast.ExprStmt(ast.Assign(ast.Member(ast.Ident("C"), "count"),
					ast.Infix("+", ast.Member(ast.Ident("C"), "count"), ast.Num(1)))),
				ast.Return(ast.Member(ast.Ident("C"), "count")),
			)),
		},
	}
	p := ast.Prog("main",
		c,
		ast.ExprStmt(ast.Call(ast.Member(ast.Ident("C"), "bump"))),
		ast.ExprStmt(ast.Call(ast.Member(ast.Ident("C"), "bump"))),
		exportLet("third", ast.Call(ast.Member(ast.Ident("C"), "bump"))),
		exportLet("count", ast.Member(ast.Ident("C"), "count")),
	)
	m, _ := run(t, build(t, "main", p))
	wantNum(t, slot(t, m, "main", "third"), 3)
	wantNum(t, slot(t, m, "main", "count"), 3)
}

func TestClassPrivateFields(t *testing.T) {
	// class Cell { #v; constructor(v) { this.#v = v; } read() { return this.#v; } }
	cell := &ast.ClassDeclaration{
		Name: ast.Ident("Cell"),
		Fields: []*ast.ClassField{
			{Name: "v", Private: true},
		},
		Methods: []*ast.ClassMethod{
			classMethod("constructor", false, []string{"v"}, ast.Block(
				ast.ExprStmt(ast.Assign(
					&ast.MemberExpression{Object: &ast.ThisExpression{}, Property: "v", Private: true},
					ast.Ident("v"))),
			)),
			classMethod("read", false, nil, ast.Block(
				ast.Return(&ast.MemberExpression{Object: &ast.ThisExpression{}, Property: "v", Private: true}),
			)),
		},
	}
	p := ast.Prog("main",
		cell,
		ast.Let("c", ast.New(ast.Ident("Cell"), ast.Num(5))),
		exportLet("got", ast.Call(ast.Member(ast.Ident("c"), "read"))),
	)
	m, _ := run(t, build(t, "main", p))
	wantNum(t, slot(t, m, "main", "got"), 5)
}

// TestClassAsValue: a class binding used as an ordinary value still
// constructs through `new` on the variable.
func TestClassAsValue(t *testing.T) {
	p := ast.Prog("main",
		pointClass(),
		ast.Let("ctor", ast.Ident("Point")),
		ast.Let("p", ast.New(ast.Ident("ctor"), ast.Num(1), ast.Num(2))),
		exportLet("y", ast.Member(ast.Ident("p"), "y")),
	)
	m, _ := run(t, build(t, "main", p))
	wantNum(t, slot(t, m, "main", "y"), 2)
}

// TestMethodAsValue: a method fetched off an instance stays bound to it.
func TestMethodAsValue(t *testing.T) {
	p := ast.Prog("main",
		pointClass(),
		ast.Let("p", ast.New(ast.Ident("Point"), ast.Num(3), ast.Num(4))),
		ast.Let("f", ast.Member(ast.Ident("p"), "norm2")),
		exportLet("n2", ast.Call(ast.Ident("f"))),
	)
	m, _ := run(t, build(t, "main", p))
	wantNum(t, slot(t, m, "main", "n2"), 25)
}

// TestClassAsyncMethod: an async method sees this across suspension.
func TestClassAsyncMethod(t *testing.T) {
	// class A { v = 21; async twice() { let x = await this.v; return x + x; } }
	a := &ast.ClassDeclaration{
		Name: ast.Ident("A"),
		Fields: []*ast.ClassField{
			{Name: "v", Value: ast.Num(21)},
		},
		Methods: []*ast.ClassMethod{
			{Name: "twice", Fn: func() *ast.FunctionLiteral {
				fn := ast.FnExpr(nil, ast.Block(
					ast.Let("x", ast.Await(ast.Member(&ast.ThisExpression{}, "v"))),
					ast.Return(ast.Infix("+", ast.Ident("x"), ast.Ident("x"))),
				))
				fn.IsAsync = true
				return fn
			}()},
		},
	}
	goFn := ast.AsyncFn("go", nil, ast.Block(
		ast.ExprStmt(ast.Assign(ast.Ident("out"),
			ast.Await(ast.Call(ast.Member(ast.Ident("obj"), "twice"))))),
	))
	p := ast.Prog("main",
		a,
		ast.Let("obj", ast.New(ast.Ident("A"))),
		ast.Let("out", ast.Num(0)),
		ast.FnStmt(goFn),
		ast.ExprStmt(ast.Call(ast.Ident("go"))),
		&ast.ExportNamedDeclaration{Specifiers: []ast.ExportSpecifier{{Local: "out", Exported: "out"}}},
	)
	m, _ := run(t, build(t, "main", p))
	wantNum(t, slot(t, m, "main", "out"), 42)
}

// TestClassMethodGenerator: a generator method iterates per instance.
func TestClassMethodGenerator(t *testing.T) {
	// class R { n = 3; *upTo() { let i = 1; while (i <= this.n) { yield i; i = i + 1; } } }
	r := &ast.ClassDeclaration{
		Name: ast.Ident("R"),
		Fields: []*ast.ClassField{
			{Name: "n", Value: ast.Num(3)},
		},
		Methods: []*ast.ClassMethod{
			{Name: "upTo", Fn: func() *ast.FunctionLiteral {
				fn := ast.FnExpr(nil, ast.Block(
					ast.Let("i", ast.Num(1)),
					ast.While(ast.Infix("<=", ast.Ident("i"), ast.Member(&ast.ThisExpression{}, "n")), ast.Block(
						ast.ExprStmt(ast.Yield(ast.Ident("i"))),
						ast.ExprStmt(ast.Assign(ast.Ident("i"), ast.Infix("+", ast.Ident("i"), ast.Num(1)))),
					)),
				))
				fn.IsGenerator = true
				return fn
			}()},
		},
	}
	p := ast.Prog("main",
		r,
		ast.Let("obj", ast.New(ast.Ident("R"))),
		ast.Let("out", &ast.ArrayLiteral{}),
		ast.ForOf("x", ast.Call(ast.Member(ast.Ident("obj"), "upTo")), ast.Block(
			pushStmt("out", ast.Ident("x")),
		)),
		exportLet("got", ast.Ident("out")),
	)
	m, _ := run(t, build(t, "main", p))
	wantElems(t, slot(t, m, "main", "got"), []string{"1", "2", "3"})
}
