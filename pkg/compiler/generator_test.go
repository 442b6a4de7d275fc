package compiler_test

import (
	"fmt"
	"testing"

	"kestrel/pkg/ast"
)

// twoStep is `function* g() { let a = yield 1; yield 2; }`.
func twoStep() *ast.FunctionLiteral {
	return ast.GenFn("g", nil, ast.Block(
		ast.Let("a", ast.Yield(ast.Num(1))),
		ast.ExprStmt(ast.Yield(ast.Num(2))),
	))
}

// recordResult binds one iterator result under name, then appends its
// value and done fields. Binding first keeps the protocol call single.
func recordResult(log, name string, r ast.Expression) []ast.Statement {
	return []ast.Statement{
		ast.Let(name, r),
		pushStmt(log, ast.Member(ast.Ident(name), "value")),
		pushStmt(log, ast.Member(ast.Ident(name), "done")),
	}
}

// TestGeneratorProtocol drives the iterator by hand: two yields, the
// completing call, and one call past exhaustion.
func TestGeneratorProtocol(t *testing.T) {
	stmts := []ast.Statement{
		ast.Let("log", &ast.ArrayLiteral{}),
		ast.FnStmt(twoStep()),
		ast.Let("it", ast.Call(ast.Ident("g"))),
	}
	for i := 0; i < 4; i++ {
		r := ast.Call(ast.Member(ast.Ident("it"), "next"))
		stmts = append(stmts, recordResult("log", fmt.Sprintf("r%d", i), r)...)
	}
	stmts = append(stmts, exportLet("got", ast.Ident("log")))
	m, _ := run(t, build(t, "main", ast.Prog("main", stmts...)))
	wantElems(t, slot(t, m, "main", "got"), []string{
		"1", "false",
		"2", "false",
		"undefined", "true",
		"undefined", "true",
	})
}

// TestGeneratorReturnForcesCompletion: return(v) completes a suspended
// generator with {v, true} exactly once; later calls report exhaustion
// with undefined values.
func TestGeneratorReturnForcesCompletion(t *testing.T) {
	stmts := []ast.Statement{
		ast.Let("log", &ast.ArrayLiteral{}),
		ast.FnStmt(twoStep()),
		ast.Let("it", ast.Call(ast.Ident("g"))),
	}
	stmts = append(stmts, recordResult("log", "r0", ast.Call(ast.Member(ast.Ident("it"), "next")))...)
	stmts = append(stmts, recordResult("log", "r1", ast.Call(ast.Member(ast.Ident("it"), "return"), ast.Num(99)))...)
	stmts = append(stmts, recordResult("log", "r2", ast.Call(ast.Member(ast.Ident("it"), "next")))...)
	stmts = append(stmts, recordResult("log", "r3", ast.Call(ast.Member(ast.Ident("it"), "return"), ast.Num(7)))...)
	stmts = append(stmts, exportLet("got", ast.Ident("log")))
	m, _ := run(t, build(t, "main", ast.Prog("main", stmts...)))
	wantElems(t, slot(t, m, "main", "got"), []string{
		"1", "false",
		"99", "true",
		"undefined", "true",
		"7", "true",
	})
}

// TestGeneratorThrowBeforeStart: throw on a never-started generator
// completes it and rethrows to the caller.
func TestGeneratorThrowBeforeStart(t *testing.T) {
	p := ast.Prog("main",
		ast.Let("caught", ast.Str("")),
		ast.Let("after", ast.Undefined()),
		ast.FnStmt(twoStep()),
		ast.Let("it", ast.Call(ast.Ident("g"))),
		&ast.TryStatement{
			Block: ast.Block(
				ast.ExprStmt(ast.Call(ast.Member(ast.Ident("it"), "throw"), ast.Str("boom"))),
			),
			CatchParam: ast.Ident("e"),
			Catch: ast.Block(
				ast.ExprStmt(ast.Assign(ast.Ident("caught"), ast.Ident("e"))),
			),
		},
		ast.ExprStmt(ast.Assign(ast.Ident("after"),
			ast.Member(ast.Call(ast.Member(ast.Ident("it"), "next")), "done"))),
		&ast.ExportNamedDeclaration{Specifiers: []ast.ExportSpecifier{
			{Local: "caught", Exported: "caught"},
			{Local: "after", Exported: "after"},
		}},
	)
	m, _ := run(t, build(t, "main", p))
	wantStr(t, slot(t, m, "main", "caught"), "boom")
	if v := slot(t, m, "main", "after"); !v.Truthy() {
		t.Fatalf("generator not exhausted after throw, done = %s", v.Display())
	}
}

// TestGeneratorThrowAtYield: an injected exception surfaces at the
// suspended yield, where a try/catch inside the body can handle it.
func TestGeneratorThrowAtYield(t *testing.T) {
	// function* g2() {
	//   try { yield 1; } catch (e) { yield e; }
	//   yield 2;
	// }
	g2 := ast.GenFn("g2", nil, ast.Block(
		&ast.TryStatement{
			Block:      ast.Block(ast.ExprStmt(ast.Yield(ast.Num(1)))),
			CatchParam: ast.Ident("e"),
			Catch:      ast.Block(ast.ExprStmt(ast.Yield(ast.Ident("e")))),
		},
		ast.ExprStmt(ast.Yield(ast.Num(2))),
	))
	stmts := []ast.Statement{
		ast.Let("log", &ast.ArrayLiteral{}),
		ast.FnStmt(g2),
		ast.Let("it", ast.Call(ast.Ident("g2"))),
	}
	stmts = append(stmts, recordResult("log", "r0", ast.Call(ast.Member(ast.Ident("it"), "next")))...)
	stmts = append(stmts, recordResult("log", "r1", ast.Call(ast.Member(ast.Ident("it"), "throw"), ast.Str("oops")))...)
	stmts = append(stmts, recordResult("log", "r2", ast.Call(ast.Member(ast.Ident("it"), "next")))...)
	stmts = append(stmts, exportLet("got", ast.Ident("log")))
	m, _ := run(t, build(t, "main", ast.Prog("main", stmts...)))
	wantElems(t, slot(t, m, "main", "got"), []string{
		"1", "false",
		"oops", "false",
		"2", "false",
	})
}

// TestGeneratorDelegation: yield* re-yields every value of the inner
// iterator before the outer generator continues.
func TestGeneratorDelegation(t *testing.T) {
	inner := ast.GenFn("inner", nil, ast.Block(
		ast.ExprStmt(ast.Yield(ast.Num(1))),
		ast.ExprStmt(ast.Yield(ast.Num(2))),
	))
	outer := ast.GenFn("outer", nil, ast.Block(
		ast.ExprStmt(ast.YieldFrom(ast.Call(ast.Ident("inner")))),
		ast.ExprStmt(ast.Yield(ast.Num(3))),
	))
	p := ast.Prog("main",
		ast.FnStmt(inner),
		ast.FnStmt(outer),
		ast.Let("out", &ast.ArrayLiteral{}),
		ast.ForOf("x", ast.Call(ast.Ident("outer")), ast.Block(
			pushStmt("out", ast.Ident("x")),
		)),
		exportLet("got", ast.Ident("out")),
	)
	m, _ := run(t, build(t, "main", p))
	wantElems(t, slot(t, m, "main", "got"), []string{"1", "2", "3"})
}

// TestGeneratorReturnRunsFinally: a forced return at a yield suspended
// inside try/finally runs the finally before the machine completes.
func TestGeneratorReturnRunsFinally(t *testing.T) {
	// function* g4() { try { yield 1; } finally { log.push("fin"); } yield 2; }
	g4 := ast.GenFn("g4", nil, ast.Block(
		&ast.TryStatement{
			Block:   ast.Block(ast.ExprStmt(ast.Yield(ast.Num(1)))),
			Finally: ast.Block(pushStmt("log", ast.Str("fin"))),
		},
		ast.ExprStmt(ast.Yield(ast.Num(2))),
	))
	stmts := []ast.Statement{
		ast.Let("log", &ast.ArrayLiteral{}),
		ast.FnStmt(g4),
		ast.Let("it", ast.Call(ast.Ident("g4"))),
	}
	stmts = append(stmts, recordResult("log", "r0", ast.Call(ast.Member(ast.Ident("it"), "next")))...)
	stmts = append(stmts, recordResult("log", "r1", ast.Call(ast.Member(ast.Ident("it"), "return"), ast.Num(5)))...)
	stmts = append(stmts, exportLet("got", ast.Ident("log")))
	m, _ := run(t, build(t, "main", ast.Prog("main", stmts...)))
	wantElems(t, slot(t, m, "main", "got"), []string{
		"1", "false",
		"fin",
		"5", "true",
	})
}

// TestDelegationForwardsInjectedValue: next(v) during yield* hands v to
// the suspended delegate, not the outer machine.
func TestDelegationForwardsInjectedValue(t *testing.T) {
	// function* inner() { let a = yield 1; yield a; }
	// function* outer() { yield* inner(); }
	inner := ast.GenFn("inner", nil, ast.Block(
		ast.Let("a", ast.Yield(ast.Num(1))),
		ast.ExprStmt(ast.Yield(ast.Ident("a"))),
	))
	outer := ast.GenFn("outer", nil, ast.Block(
		ast.ExprStmt(ast.YieldFrom(ast.Call(ast.Ident("inner")))),
	))
	stmts := []ast.Statement{
		ast.Let("log", &ast.ArrayLiteral{}),
		ast.FnStmt(inner),
		ast.FnStmt(outer),
		ast.Let("it", ast.Call(ast.Ident("outer"))),
	}
	stmts = append(stmts, recordResult("log", "r0", ast.Call(ast.Member(ast.Ident("it"), "next")))...)
	stmts = append(stmts, recordResult("log", "r1", ast.Call(ast.Member(ast.Ident("it"), "next"), ast.Num(42)))...)
	stmts = append(stmts, exportLet("got", ast.Ident("log")))
	m, _ := run(t, build(t, "main", ast.Prog("main", stmts...)))
	wantElems(t, slot(t, m, "main", "got"), []string{
		"1", "false",
		"42", "false",
	})
}

// TestDelegationForwardsReturn: return(v) during yield* finishes the
// delegate first, so its finally observes the forced completion.
func TestDelegationForwardsReturn(t *testing.T) {
	// function* inner() { try { yield 1; } finally { log.push("fin"); } }
	// function* outer() { yield* inner(); yield 2; }
	inner := ast.GenFn("inner", nil, ast.Block(
		&ast.TryStatement{
			Block:   ast.Block(ast.ExprStmt(ast.Yield(ast.Num(1)))),
			Finally: ast.Block(pushStmt("log", ast.Str("fin"))),
		},
	))
	outer := ast.GenFn("outer", nil, ast.Block(
		ast.ExprStmt(ast.YieldFrom(ast.Call(ast.Ident("inner")))),
		ast.ExprStmt(ast.Yield(ast.Num(2))),
	))
	stmts := []ast.Statement{
		ast.Let("log", &ast.ArrayLiteral{}),
		ast.FnStmt(inner),
		ast.FnStmt(outer),
		ast.Let("it", ast.Call(ast.Ident("outer"))),
	}
	stmts = append(stmts, recordResult("log", "r0", ast.Call(ast.Member(ast.Ident("it"), "next")))...)
	stmts = append(stmts, recordResult("log", "r1", ast.Call(ast.Member(ast.Ident("it"), "return"), ast.Num(9)))...)
	stmts = append(stmts, exportLet("got", ast.Ident("log")))
	m, _ := run(t, build(t, "main", ast.Prog("main", stmts...)))
	wantElems(t, slot(t, m, "main", "got"), []string{
		"1", "false",
		"fin",
		"9", "true",
	})
}

// TestDelegationForwardsThrow: throw(v) during yield* surfaces inside
// the delegate, where its own catch can turn it into another yield.
func TestDelegationForwardsThrow(t *testing.T) {
	// function* inner() { try { yield 1; } catch (e) { yield e; } }
	// function* outer() { yield* inner(); yield 2; }
	inner := ast.GenFn("inner", nil, ast.Block(
		&ast.TryStatement{
			Block:      ast.Block(ast.ExprStmt(ast.Yield(ast.Num(1)))),
			CatchParam: ast.Ident("e"),
			Catch:      ast.Block(ast.ExprStmt(ast.Yield(ast.Ident("e")))),
		},
	))
	outer := ast.GenFn("outer", nil, ast.Block(
		ast.ExprStmt(ast.YieldFrom(ast.Call(ast.Ident("inner")))),
		ast.ExprStmt(ast.Yield(ast.Num(2))),
	))
	stmts := []ast.Statement{
		ast.Let("log", &ast.ArrayLiteral{}),
		ast.FnStmt(inner),
		ast.FnStmt(outer),
		ast.Let("it", ast.Call(ast.Ident("outer"))),
	}
	stmts = append(stmts, recordResult("log", "r0", ast.Call(ast.Member(ast.Ident("it"), "next")))...)
	stmts = append(stmts, recordResult("log", "r1", ast.Call(ast.Member(ast.Ident("it"), "throw"), ast.Str("oops")))...)
	stmts = append(stmts, recordResult("log", "r2", ast.Call(ast.Member(ast.Ident("it"), "next")))...)
	stmts = append(stmts, recordResult("log", "r3", ast.Call(ast.Member(ast.Ident("it"), "next")))...)
	stmts = append(stmts, exportLet("got", ast.Ident("log")))
	m, _ := run(t, build(t, "main", ast.Prog("main", stmts...)))
	wantElems(t, slot(t, m, "main", "got"), []string{
		"1", "false",
		"oops", "false",
		"2", "false",
		"undefined", "true",
	})
}

// TestGeneratorDelegatesOverArray: yield* accepts any iterable, not
// just generator objects.
func TestGeneratorDelegatesOverArray(t *testing.T) {
	g := ast.GenFn("g3", nil, ast.Block(
		ast.ExprStmt(ast.YieldFrom(&ast.ArrayLiteral{Elements: []ast.Expression{
			ast.Str("a"), ast.Str("b"),
		}})),
	))
	p := ast.Prog("main",
		ast.FnStmt(g),
		ast.Let("out", &ast.ArrayLiteral{}),
		ast.ForOf("x", ast.Call(ast.Ident("g3")), ast.Block(
			pushStmt("out", ast.Ident("x")),
		)),
		exportLet("got", ast.Ident("out")),
	)
	m, _ := run(t, build(t, "main", p))
	wantElems(t, slot(t, m, "main", "got"), []string{"a", "b"})
}
