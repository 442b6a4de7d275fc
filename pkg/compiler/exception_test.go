package compiler_test

import (
	"testing"

	"kestrel/pkg/ast"
)

func tryCatch(body, catch *ast.BlockStatement, param string) *ast.TryStatement {
	return &ast.TryStatement{Block: body, CatchParam: ast.Ident(param), Catch: catch}
}

func TestTryCatchFinallyOrdering(t *testing.T) {
	// try { log.push("t"); throw "boom"; log.push("skipped"); }
	// catch (e) { log.push(e); }
	// finally { log.push("f"); }
	// log.push("after");
	p := ast.Prog("main",
		ast.Let("log", &ast.ArrayLiteral{}),
		&ast.TryStatement{
			Block: ast.Block(
				pushStmt("log", ast.Str("t")),
				&ast.ThrowStatement{Value: ast.Str("boom")},
				pushStmt("log", ast.Str("skipped")),
			),
			CatchParam: ast.Ident("e"),
			Catch:      ast.Block(pushStmt("log", ast.Ident("e"))),
			Finally:    ast.Block(pushStmt("log", ast.Str("f"))),
		},
		pushStmt("log", ast.Str("after")),
		exportLet("got", ast.Ident("log")),
	)
	m, _ := run(t, build(t, "main", p))
	wantElems(t, slot(t, m, "main", "got"), []string{"t", "boom", "f", "after"})
}

func TestFinallyRunsWithoutException(t *testing.T) {
	p := ast.Prog("main",
		ast.Let("log", &ast.ArrayLiteral{}),
		&ast.TryStatement{
			Block:   ast.Block(pushStmt("log", ast.Str("t"))),
			Finally: ast.Block(pushStmt("log", ast.Str("f"))),
		},
		exportLet("got", ast.Ident("log")),
	)
	m, _ := run(t, build(t, "main", p))
	wantElems(t, slot(t, m, "main", "got"), []string{"t", "f"})
}

// TestFinallyRunsOnUnwind: an uncaught exception still runs the finally
// before propagating to the caller.
func TestFinallyRunsOnUnwind(t *testing.T) {
	f := ast.Fn("f", nil, ast.Block(
		&ast.TryStatement{
			Block:   ast.Block(&ast.ThrowStatement{Value: ast.Str("e")}),
			Finally: ast.Block(pushStmt("log", ast.Str("fin"))),
		},
	))
	p := ast.Prog("main",
		ast.Let("log", &ast.ArrayLiteral{}),
		ast.FnStmt(f),
		tryCatch(
			ast.Block(ast.ExprStmt(ast.Call(ast.Ident("f")))),
			ast.Block(pushStmt("log", ast.Ident("e"))),
			"e",
		),
		exportLet("got", ast.Ident("log")),
	)
	m, _ := run(t, build(t, "main", p))
	wantElems(t, slot(t, m, "main", "got"), []string{"fin", "e"})
}

// TestDeferredReturnThroughFinally: a return inside try parks its value,
// runs the finally, and only then leaves the frame.
func TestDeferredReturnThroughFinally(t *testing.T) {
	g := ast.Fn("g", nil, ast.Block(
		&ast.TryStatement{
			Block: ast.Block(
				pushStmt("log", ast.Str("t")),
				ast.Return(ast.Num(1)),
			),
			Finally: ast.Block(pushStmt("log", ast.Str("f"))),
		},
		pushStmt("log", ast.Str("unreached")),
	))
	p := ast.Prog("main",
		ast.Let("log", &ast.ArrayLiteral{}),
		ast.FnStmt(g),
		exportLet("r", ast.Call(ast.Ident("g"))),
		exportLet("got", ast.Ident("log")),
	)
	m, _ := run(t, build(t, "main", p))
	wantNum(t, slot(t, m, "main", "r"), 1)
	wantElems(t, slot(t, m, "main", "got"), []string{"t", "f"})
}

// TestDeferredReturnChainsFinallies: the parked return crosses every
// enclosing finally, innermost first.
func TestDeferredReturnChainsFinallies(t *testing.T) {
	g := ast.Fn("g", nil, ast.Block(
		&ast.TryStatement{
			Block: ast.Block(
				&ast.TryStatement{
					Block:   ast.Block(ast.Return(ast.Str("inner"))),
					Finally: ast.Block(pushStmt("log", ast.Str("f1"))),
				},
			),
			Finally: ast.Block(pushStmt("log", ast.Str("f2"))),
		},
	))
	p := ast.Prog("main",
		ast.Let("log", &ast.ArrayLiteral{}),
		ast.FnStmt(g),
		exportLet("r", ast.Call(ast.Ident("g"))),
		exportLet("got", ast.Ident("log")),
	)
	m, _ := run(t, build(t, "main", p))
	wantStr(t, slot(t, m, "main", "r"), "inner")
	wantElems(t, slot(t, m, "main", "got"), []string{"f1", "f2"})
}

// TestCatchRethrow: a handler may rethrow; the new exception propagates
// to the enclosing frame.
func TestCatchRethrow(t *testing.T) {
	f := ast.Fn("f", nil, ast.Block(
		tryCatch(
			ast.Block(&ast.ThrowStatement{Value: ast.Str("x")}),
			ast.Block(&ast.ThrowStatement{Value: ast.Infix("+", ast.Ident("e"), ast.Str("!"))}),
			"e",
		),
	))
	p := ast.Prog("main",
		ast.Let("caught", ast.Str("")),
		ast.FnStmt(f),
		tryCatch(
			ast.Block(ast.ExprStmt(ast.Call(ast.Ident("f")))),
			ast.Block(ast.ExprStmt(ast.Assign(ast.Ident("caught"), ast.Ident("e")))),
			"e",
		),
		&ast.ExportNamedDeclaration{Specifiers: []ast.ExportSpecifier{{Local: "caught", Exported: "caught"}}},
	)
	m, _ := run(t, build(t, "main", p))
	wantStr(t, slot(t, m, "main", "caught"), "x!")
}

// TestBreakRunsFinally: break leaving a protected region runs its
// finally on the way out.
func TestBreakRunsFinally(t *testing.T) {
	p := ast.Prog("main",
		ast.Let("log", &ast.ArrayLiteral{}),
		ast.While(ast.Bool(true), ast.Block(
			&ast.TryStatement{
				Block:   ast.Block(&ast.BreakStatement{}),
				Finally: ast.Block(pushStmt("log", ast.Str("fb"))),
			},
		)),
		pushStmt("log", ast.Str("out")),
		exportLet("got", ast.Ident("log")),
	)
	m, _ := run(t, build(t, "main", p))
	wantElems(t, slot(t, m, "main", "got"), []string{"fb", "out"})
}

// TestThrowNonString: any value can travel as an exception.
func TestThrowNonString(t *testing.T) {
	p := ast.Prog("main",
		ast.Let("caught", ast.Num(0)),
		tryCatch(
			ast.Block(&ast.ThrowStatement{Value: ast.Num(41)}),
			ast.Block(ast.ExprStmt(ast.Assign(ast.Ident("caught"), ast.Infix("+", ast.Ident("e"), ast.Num(1))))),
			"e",
		),
		&ast.ExportNamedDeclaration{Specifiers: []ast.ExportSpecifier{{Local: "caught", Exported: "caught"}}},
	)
	m, _ := run(t, build(t, "main", p))
	wantNum(t, slot(t, m, "main", "caught"), 42)
}
