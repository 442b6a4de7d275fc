package compiler_test

import (
	"fmt"
	"testing"

	"kestrel/pkg/ast"
	"kestrel/pkg/vm"
)

// TestAsyncSuspensionOrder checks the scheduling contract for a varying
// number of suspension points: the body runs synchronously up to the
// first await, top-level code resumes, and each settled continuation
// runs from the microtask queue in order.
func TestAsyncSuspensionOrder(t *testing.T) {
	for _, n := range []int{0, 1, 2, 5} {
		t.Run(fmt.Sprintf("awaits=%d", n), func(t *testing.T) {
			body := []ast.Statement{pushStmt("log", ast.Str("s"))}
			want := []string{"s", "after"}
			for i := 1; i <= n; i++ {
				body = append(body,
					ast.ExprStmt(ast.Await(ast.Num(0))),
					pushStmt("log", ast.Num(float64(i))),
				)
				want = append(want, fmt.Sprint(i))
			}
			work := ast.AsyncFn("work", nil, ast.Block(body...))
			p := ast.Prog("main",
				ast.Let("log", &ast.ArrayLiteral{}),
				ast.FnStmt(work),
				ast.ExprStmt(ast.Call(ast.Ident("work"))),
				pushStmt("log", ast.Str("after")),
				exportLet("got", ast.Ident("log")),
			)
			m, _ := run(t, build(t, "main", p))
			wantElems(t, slot(t, m, "main", "got"), want)
		})
	}
}

// TestAsyncResultRoundTrip threads a value through a chain of awaits.
func TestAsyncResultRoundTrip(t *testing.T) {
	// async function twice(v) { return v + v; }
	// async function go() { out = await twice(await twice(3)); }
	twice := ast.AsyncFn("twice", []string{"v"}, ast.Block(
		ast.Return(ast.Infix("+", ast.Ident("v"), ast.Ident("v"))),
	))
	goFn := ast.AsyncFn("go", nil, ast.Block(
		ast.ExprStmt(ast.Assign(ast.Ident("out"),
			ast.Await(ast.Call(ast.Ident("twice"),
				ast.Await(ast.Call(ast.Ident("twice"), ast.Num(3))))))),
	))
	p := ast.Prog("main",
		ast.Let("out", ast.Num(0)),
		ast.FnStmt(twice),
		ast.FnStmt(goFn),
		ast.ExprStmt(ast.Call(ast.Ident("go"))),
		&ast.ExportNamedDeclaration{Specifiers: []ast.ExportSpecifier{{Local: "out", Exported: "out"}}},
	)
	m, _ := run(t, build(t, "main", p))
	wantNum(t, slot(t, m, "main", "out"), 12)
}

// TestAsyncErrorPropagates checks that a throw inside an async body
// rejects its future and that await rethrows the rejection at the call
// site, where an ordinary try/catch picks it up.
func TestAsyncErrorPropagates(t *testing.T) {
	boom := ast.AsyncFn("boom", nil, ast.Block(
		&ast.ThrowStatement{Value: ast.Str("bad")},
	))
	trap := ast.AsyncFn("trap", nil, ast.Block(
		&ast.TryStatement{
			Block: ast.Block(
				ast.ExprStmt(ast.Await(ast.Call(ast.Ident("boom")))),
				ast.ExprStmt(ast.Assign(ast.Ident("caught"), ast.Str("not reached"))),
			),
			CatchParam: ast.Ident("e"),
			Catch: ast.Block(
				ast.ExprStmt(ast.Assign(ast.Ident("caught"), ast.Ident("e"))),
			),
		},
	))
	p := ast.Prog("main",
		ast.Let("caught", ast.Str("")),
		ast.FnStmt(boom),
		ast.FnStmt(trap),
		ast.ExprStmt(ast.Call(ast.Ident("trap"))),
		&ast.ExportNamedDeclaration{Specifiers: []ast.ExportSpecifier{{Local: "caught", Exported: "caught"}}},
	)
	m, _ := run(t, build(t, "main", p))
	wantStr(t, slot(t, m, "main", "caught"), "bad")
}

// TestAsyncAwaitPlainValue checks that awaiting a non-future value
// wraps it into an already-settled future instead of faulting.
func TestAsyncAwaitPlainValue(t *testing.T) {
	goFn := ast.AsyncFn("go", nil, ast.Block(
		ast.ExprStmt(ast.Assign(ast.Ident("out"), ast.Await(ast.Str("plain")))),
	))
	p := ast.Prog("main",
		ast.Let("out", ast.Undefined()),
		ast.FnStmt(goFn),
		ast.ExprStmt(ast.Call(ast.Ident("go"))),
		&ast.ExportNamedDeclaration{Specifiers: []ast.ExportSpecifier{{Local: "out", Exported: "out"}}},
	)
	m, _ := run(t, build(t, "main", p))
	wantStr(t, slot(t, m, "main", "out"), "plain")
}

// TestAsyncCallReturnsFuture checks the caller-side view: an async call
// observed without await is a future value.
func TestAsyncCallReturnsFuture(t *testing.T) {
	f := ast.AsyncFn("f", nil, ast.Block(
		ast.Return(ast.Num(1)),
	))
	p := ast.Prog("main",
		ast.FnStmt(f),
		exportLet("fut", ast.Call(ast.Ident("f"))),
	)
	m, _ := run(t, build(t, "main", p))
	if v := slot(t, m, "main", "fut"); v.Kind() != vm.KindFuture {
		t.Fatalf("async call produced %s, want future", v.Kind())
	}
}
