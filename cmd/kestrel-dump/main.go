// kestrel-dump compiles a small built-in fixture program, prints the
// linked artifact (disassembly plus manifest) and executes it on the
// reference target. It is a smoke-test and debugging tool for the
// backend pipeline; real front ends hand the driver their own checked
// ASTs.
package main

import (
	"fmt"
	"os"

	"kestrel/pkg/ast"
	"kestrel/pkg/driver"
	"kestrel/pkg/errors"
	"kestrel/pkg/il"
	"kestrel/pkg/linker"
	"kestrel/pkg/source"
	"kestrel/pkg/vm"
)

// fixture is the demo batch:
//
//	// lib
//	export function* range(a, b) { let i = a; while (i < b) { yield i; i = i + 1; } }
//
//	// main
//	import {range} from "lib";
//	let squares = [];
//	for (x of range(1, 5)) { squares.push(x * x); }
//	async function report() { let v = await squares; console.log(JSON.stringify(v)); }
//	report();
func fixture() []driver.Input {
	lib := ast.Prog("lib",
		&ast.ExportNamedDeclaration{Declaration: ast.FnStmt(func() *ast.FunctionLiteral {
			fn := ast.GenFn("range", []string{"a", "b"}, ast.Block(
				ast.Let("i", ast.Ident("a")),
				ast.While(ast.Infix("<", ast.Ident("i"), ast.Ident("b")), ast.Block(
					ast.ExprStmt(ast.Yield(ast.Ident("i"))),
					ast.ExprStmt(ast.Assign(ast.Ident("i"), ast.Infix("+", ast.Ident("i"), ast.Num(1)))),
				)),
			))
			return fn
		}())},
	)
	main := ast.Prog("main",
		&ast.ImportDeclaration{Source: "lib", Specifiers: []ast.ImportSpecifier{
			{Kind: ast.ImportNamed, Imported: "range", Local: "range"},
		}},
		ast.Let("squares", &ast.ArrayLiteral{}),
		ast.ForOf("x", ast.Call(ast.Ident("range"), ast.Num(1), ast.Num(5)), ast.Block(
			ast.ExprStmt(ast.Call(ast.Member(ast.Ident("squares"), "push"),
				ast.Infix("*", ast.Ident("x"), ast.Ident("x")))),
		)),
		ast.FnStmt(func() *ast.FunctionLiteral {
			fn := ast.AsyncFn("report", nil, ast.Block(
				ast.Let("v", ast.Await(ast.Ident("squares"))),
				ast.ExprStmt(ast.Call(ast.Member(ast.Ident("console"), "log"),
					ast.Call(ast.Member(ast.Ident("JSON"), "stringify"), ast.Ident("v")))),
			))
			return fn
		}()),
		ast.ExprStmt(ast.Call(ast.Ident("report"))),
	)
	return []driver.Input{
		{Unit: source.NewUnit("lib.ks", "", ""), Prog: lib},
		{Unit: source.NewUnit("main.ks", "", ""), Prog: main},
	}
}

func main() {
	d, err := driver.New()
	if err != nil {
		fmt.Fprintf(os.Stderr, "driver: %v\n", err)
		os.Exit(1)
	}
	if diags := d.CompileProgram(fixture()); len(diags) > 0 {
		errors.DisplayErrors(os.Stderr, diags)
		os.Exit(1)
	}
	prog, lerr := d.Link("main")
	if lerr != nil {
		fmt.Fprintf(os.Stderr, "link: %v\n", lerr)
		os.Exit(1)
	}

	fmt.Println("--- Disassembly ---")
	fmt.Print(il.DisassembleProgram(prog))

	manifest, merr := linker.EncodeManifest(prog)
	if merr != nil {
		fmt.Fprintf(os.Stderr, "manifest: %v\n", merr)
		os.Exit(1)
	}
	fmt.Println("--- Manifest ---")
	fmt.Print(string(manifest))

	fmt.Println("--- Execution ---")
	machine := vm.New(prog)
	if _, rerr := machine.Run(); rerr != nil {
		fmt.Fprintf(os.Stderr, "run: %v\n", rerr)
		os.Exit(1)
	}
}
