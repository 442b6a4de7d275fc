package compiler_test

import (
	"io"
	"testing"

	"kestrel/pkg/ast"
	"kestrel/pkg/compiler"
	"kestrel/pkg/driver"
	"kestrel/pkg/il"
	"kestrel/pkg/source"
	"kestrel/pkg/vm"
)

// agrees maps the compile-time shadow onto observed physical kinds. A
// tracked raw type must see exactly its raw kind; tracked strings and
// nulls their reference kind; everything else is an unknown boxed value
// and must never physically be raw.
func agrees(st compiler.StackType, k vm.Kind) bool {
	switch st {
	case compiler.StDouble:
		return k == vm.KindRawNumber
	case compiler.StBoolean:
		return k == vm.KindRawBool
	case compiler.StString:
		return k == vm.KindString
	case compiler.StNull:
		return k == vm.KindNull
	default:
		return k != vm.KindRawNumber && k != vm.KindRawBool
	}
}

// shadowFixture exercises every emission path that makes raw/boxed
// decisions: arithmetic, logic, strings, closures, exceptions, classes,
// generators and async suspension.
func shadowFixture() *ast.Program {
	point := &ast.ClassDeclaration{
		Name:   ast.Ident("P"),
		Fields: []*ast.ClassField{{Name: "v", Value: ast.Num(2)}},
		Methods: []*ast.ClassMethod{
			{Name: "scale", Fn: ast.FnExpr([]string{"k"}, ast.Block(
				ast.Return(ast.Infix("*", ast.Member(&ast.ThisExpression{}, "v"), ast.Ident("k"))),
			))},
		},
	}
	gen := ast.GenFn("seq", []string{"n"}, ast.Block(
		ast.Let("i", ast.Num(0)),
		ast.While(ast.Infix("<", ast.Ident("i"), ast.Ident("n")), ast.Block(
			ast.ExprStmt(ast.Yield(ast.Ident("i"))),
			ast.ExprStmt(ast.Assign(ast.Ident("i"), ast.Infix("+", ast.Ident("i"), ast.Num(1)))),
		)),
	))
	adder := ast.Fn("adder", []string{"a"}, ast.Block(
		ast.Return(ast.Arrow([]string{"b"}, ast.Block(
			ast.Return(ast.Infix("+", ast.Ident("a"), ast.Ident("b"))),
		))),
	))
	work := ast.AsyncFn("work", nil, ast.Block(
		ast.Let("v", ast.Await(ast.Num(20))),
		ast.ExprStmt(ast.Assign(ast.Ident("asyncOut"), ast.Infix("+", ast.Ident("v"), ast.Await(ast.Num(22))))),
	))
	return ast.Prog("main",
		point,
		ast.FnStmt(gen),
		ast.FnStmt(adder),
		ast.FnStmt(work),
		ast.Let("asyncOut", ast.Num(0)),
		ast.Let("logic", ast.Infix("||", ast.Infix("&&", ast.Num(1), ast.Str("x")), ast.Str("y"))),
		ast.Let("pick", &ast.TernaryExpression{
			Condition:   ast.Infix("<", ast.Num(1), ast.Num(2)),
			Consequent:  ast.Str("lo"),
			Alternative: ast.Num(0),
		}),
		ast.Let("concat", ast.Infix("+", ast.Str("a"), ast.Num(1))),
		ast.Let("sum", ast.Num(0)),
		ast.ForOf("x", ast.Call(ast.Ident("seq"), ast.Num(4)), ast.Block(
			ast.ExprStmt(ast.CompoundAssign("+=", ast.Ident("sum"), ast.Ident("x"))),
		)),
		ast.Let("plus5", ast.Call(ast.Ident("adder"), ast.Num(5))),
		ast.Let("twelve", ast.Call(ast.Ident("plus5"), ast.Num(7))),
		ast.Let("scaled", ast.Call(ast.Member(ast.New(ast.Ident("P")), "scale"), ast.Num(3))),
		&ast.TryStatement{
			Block:      ast.Block(&ast.ThrowStatement{Value: ast.Num(1)}),
			CatchParam: ast.Ident("e"),
			Catch:      ast.Block(ast.ExprStmt(ast.Assign(ast.Ident("sum"), ast.Infix("+", ast.Ident("sum"), ast.Ident("e"))))),
			Finally:    ast.Block(ast.ExprStmt(ast.Assign(ast.Ident("sum"), ast.Infix("+", ast.Ident("sum"), ast.Num(1))))),
		},
		ast.ExprStmt(ast.Call(ast.Ident("work"))),
		exportLet("json", ast.Call(ast.Member(ast.Ident("JSON"), "stringify"), &ast.ObjectLiteral{
			Properties: []ast.ObjectProperty{{Key: "s", Value: ast.Ident("sum")}},
		})),
	)
}

// TestShadowMatchesExecution replays the fixture under instrumentation
// and checks, instruction by instruction, that the recorded compile-time
// stack shadow agrees with the physical top of stack. Return opcodes
// trace after the value transfers to the caller, so they carry no
// comparable top.
func TestShadowMatchesExecution(t *testing.T) {
	d, err := driver.New()
	if err != nil {
		t.Fatalf("driver.New: %v", err)
	}
	prog := shadowFixture()
	if diags := d.CompileProgram([]driver.Input{{
		Unit: source.NewUnit("main.ks", "", ""),
		Prog: prog,
	}}); len(diags) > 0 {
		t.Fatalf("compile: %v", diags)
	}
	linked, lerr := d.Link("main")
	if lerr != nil {
		t.Fatalf("link: %v", lerr)
	}
	shadows := d.Shadow()

	m := vm.New(linked)
	m.Stdout = io.Discard
	compared := 0
	m.Instrument = func(tr vm.Trace) {
		if !tr.HasTop || tr.Op == il.OpReturn || tr.Op == il.OpReturnUndef {
			return
		}
		sh, ok := shadows[tr.Method]
		if !ok {
			return // runtime helpers and linker-synthesized methods
		}
		if tr.PC >= len(sh) {
			t.Errorf("method M%d: pc %d beyond shadow length %d", tr.Method, tr.PC, len(sh))
			return
		}
		if !agrees(sh[tr.PC], tr.Top) {
			t.Errorf("method M%d pc %d (%s): shadow %s, physical %s",
				tr.Method, tr.PC, tr.Op, sh[tr.PC], tr.Top)
		}
		compared++
	}
	if _, err := m.Run(); err != nil {
		t.Fatalf("run: %v", err)
	}
	if compared == 0 {
		t.Fatal("instrumentation observed no comparable instructions")
	}
}
