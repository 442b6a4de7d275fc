package compiler_test

import (
	"testing"

	"kestrel/pkg/ast"
	"kestrel/pkg/vm"
)

func importNamed(src string, names ...string) ast.Statement {
	d := &ast.ImportDeclaration{Source: src}
	for _, n := range names {
		d.Specifiers = append(d.Specifiers, ast.ImportSpecifier{
			Kind: ast.ImportNamed, Imported: n, Local: n,
		})
	}
	return d
}

func TestImportExportAcrossModules(t *testing.T) {
	// lib: export let base = 40; export function add2(v) { return v + 2; }
	lib := ast.Prog("lib",
		exportLet("base", ast.Num(40)),
		exportFn(ast.Fn("add2", []string{"v"}, ast.Block(
			ast.Return(ast.Infix("+", ast.Ident("v"), ast.Num(2))),
		))),
	)
	// main: import {base, add2} from "lib"; export let got = add2(base);
	main := ast.Prog("main",
		importNamed("lib", "base", "add2"),
		exportLet("got", ast.Call(ast.Ident("add2"), ast.Ident("base"))),
	)
	m, _ := run(t, build(t, "main", lib, main))
	wantNum(t, slot(t, m, "main", "got"), 42)
}

func TestDefaultExport(t *testing.T) {
	dep := ast.Prog("dep",
		&ast.ExportDefaultDeclaration{Value: ast.Num(7)},
	)
	main := ast.Prog("main",
		&ast.ImportDeclaration{Source: "dep", Specifiers: []ast.ImportSpecifier{
			{Kind: ast.ImportDefault, Local: "seven"},
		}},
		exportLet("got", ast.Infix("+", ast.Ident("seven"), ast.Num(1))),
	)
	m, _ := run(t, build(t, "main", dep, main))
	wantNum(t, slot(t, m, "main", "got"), 8)
}

func TestNamespaceImport(t *testing.T) {
	// m: export let p = 1; export let q = 2; export default 9;
	mod := ast.Prog("m",
		exportLet("p", ast.Num(1)),
		exportLet("q", ast.Num(2)),
		&ast.ExportDefaultDeclaration{Value: ast.Num(9)},
	)
	// main: import * as ns from "m";
	main := ast.Prog("main",
		&ast.ImportDeclaration{Source: "m", Specifiers: []ast.ImportSpecifier{
			{Kind: ast.ImportNamespace, Local: "ns"},
		}},
		exportLet("np", ast.Member(ast.Ident("ns"), "p")),
		exportLet("nq", ast.Index(ast.Ident("ns"), ast.Str("q"))),
		exportLet("dflt", ast.Member(ast.Ident("ns"), "*default*")),
	)
	m, _ := run(t, build(t, "main", mod, main))
	wantNum(t, slot(t, m, "main", "np"), 1)
	wantNum(t, slot(t, m, "main", "nq"), 2)
	if v := slot(t, m, "main", "dflt"); v.Kind() != vm.KindUndefined {
		t.Errorf("default export leaked into namespace aggregate: %s", v.Display())
	}
}

// TestReExportSlotIdentity: a re-exported binding aliases the origin
// slot, so mutation through the origin module is visible through the
// re-exporter.
func TestReExportSlotIdentity(t *testing.T) {
	// a: export let x = 1; export function bump() { x = x + 1; }
	a := ast.Prog("a",
		exportLet("x", ast.Num(1)),
		exportFn(ast.Fn("bump", nil, ast.Block(
			ast.ExprStmt(ast.Assign(ast.Ident("x"), ast.Infix("+", ast.Ident("x"), ast.Num(1)))),
		))),
	)
	// b: export {x} from "a";
	b := ast.Prog("b",
		&ast.ExportNamedDeclaration{
			Source:     "a",
			Specifiers: []ast.ExportSpecifier{{Local: "x", Exported: "x"}},
		},
	)
	// main: import {bump} from "a"; import {x} from "b"; bump(); export let seen = x;
	main := ast.Prog("main",
		importNamed("a", "bump"),
		importNamed("b", "x"),
		ast.ExprStmt(ast.Call(ast.Ident("bump"))),
		exportLet("seen", ast.Ident("x")),
	)
	prog := build(t, "main", a, b, main)

	for _, mod := range prog.Modules {
		if mod.Name != "b" {
			continue
		}
		exp := mod.Exports["x"]
		if exp == nil || exp.From != "a" || exp.Imported != "x" {
			t.Fatalf("re-export record %+v, want From=a Imported=x", exp)
		}
	}

	m, _ := run(t, prog)
	wantNum(t, slot(t, m, "main", "seen"), 2)
	va := slot(t, m, "a", "x")
	vb := slot(t, m, "b", "x")
	wantNum(t, va, 2)
	wantNum(t, vb, 2)
}

// TestBootOrderRunsDependenciesFirst: a dependency's top-level code runs
// before the importer's, and the entry module always completes last.
func TestBootOrderRunsDependenciesFirst(t *testing.T) {
	// trace: export let log = [];
	trace := ast.Prog("trace",
		exportLet("log", &ast.ArrayLiteral{}),
	)
	dep := ast.Prog("dep",
		importNamed("trace", "log"),
		pushStmt("log", ast.Str("dep")),
		exportLet("ready", ast.Bool(true)),
	)
	main := ast.Prog("main",
		importNamed("trace", "log"),
		importNamed("dep", "ready"),
		pushStmt("log", ast.Str("main")),
		exportLet("got", ast.Ident("log")),
	)
	m, _ := run(t, build(t, "main", trace, dep, main))
	wantElems(t, slot(t, m, "main", "got"), []string{"dep", "main"})
}

// TestImportedFunctionValue: an exported function travels as a plain
// delegate value and is callable through the import binding.
func TestImportedFunctionValue(t *testing.T) {
	lib := ast.Prog("lib",
		exportFn(ast.Fn("greet", []string{"n"}, ast.Block(
			ast.Return(ast.Infix("+", ast.Str("hi "), ast.Ident("n"))),
		))),
	)
	main := ast.Prog("main",
		importNamed("lib", "greet"),
		ast.Let("f", ast.Ident("greet")),
		exportLet("got", ast.Call(ast.Ident("f"), ast.Str("kestrel"))),
	)
	m, _ := run(t, build(t, "main", lib, main))
	wantStr(t, slot(t, m, "main", "got"), "hi kestrel")
}

// TestExportRename: `export {local as alias}` binds the alias on the
// import side.
func TestExportRename(t *testing.T) {
	lib := ast.Prog("lib",
		ast.Let("inner", ast.Num(5)),
		&ast.ExportNamedDeclaration{Specifiers: []ast.ExportSpecifier{
			{Local: "inner", Exported: "outer"},
		}},
	)
	main := ast.Prog("main",
		&ast.ImportDeclaration{Source: "lib", Specifiers: []ast.ImportSpecifier{
			{Kind: ast.ImportNamed, Imported: "outer", Local: "v"},
		}},
		exportLet("got", ast.Ident("v")),
	)
	m, _ := run(t, build(t, "main", lib, main))
	wantNum(t, slot(t, m, "main", "got"), 5)
}
