package compiler_test

import (
	"testing"

	"kestrel/pkg/ast"
)

func stringify(args ...ast.Expression) ast.Expression {
	return ast.Call(ast.Member(ast.Ident("JSON"), "stringify"), args...)
}

func TestJSONStringifyScalars(t *testing.T) {
	p := ast.Prog("main",
		exportLet("num", stringify(ast.Num(5))),
		exportLet("frac", stringify(ast.Num(2.5))),
		exportLet("str", stringify(ast.Str("s"))),
		exportLet("quoted", stringify(ast.Str("a\"b"))),
		exportLet("yes", stringify(ast.Bool(true))),
		exportLet("no", stringify(ast.Bool(false))),
		exportLet("nul", stringify(ast.Null())),
	)
	m, _ := run(t, build(t, "main", p))
	wantStr(t, slot(t, m, "main", "num"), "5")
	wantStr(t, slot(t, m, "main", "frac"), "2.5")
	wantStr(t, slot(t, m, "main", "str"), `"s"`)
	wantStr(t, slot(t, m, "main", "quoted"), `"a\"b"`)
	wantStr(t, slot(t, m, "main", "yes"), "true")
	wantStr(t, slot(t, m, "main", "no"), "false")
	wantStr(t, slot(t, m, "main", "nul"), "null")
}

func TestJSONStringifyComposite(t *testing.T) {
	obj := &ast.ObjectLiteral{Properties: []ast.ObjectProperty{
		{Key: "b", Value: ast.Num(2)},
		{Key: "a", Value: ast.Str("one")},
	}}
	nested := &ast.ObjectLiteral{Properties: []ast.ObjectProperty{
		{Key: "xs", Value: &ast.ArrayLiteral{Elements: []ast.Expression{ast.Num(1), ast.Num(2)}}},
	}}
	p := ast.Prog("main",
		exportLet("obj", stringify(obj)),
		exportLet("arr", stringify(&ast.ArrayLiteral{Elements: []ast.Expression{
			ast.Num(1), ast.Str("a"), ast.Bool(true), ast.Null(),
		}})),
		exportLet("nested", stringify(nested)),
		exportLet("emptyObj", stringify(&ast.ObjectLiteral{})),
		exportLet("emptyArr", stringify(&ast.ArrayLiteral{})),
	)
	m, _ := run(t, build(t, "main", p))
	wantStr(t, slot(t, m, "main", "obj"), `{"b":2,"a":"one"}`)
	wantStr(t, slot(t, m, "main", "arr"), `[1,"a",true,null]`)
	wantStr(t, slot(t, m, "main", "nested"), `{"xs":[1,2]}`)
	wantStr(t, slot(t, m, "main", "emptyObj"), "{}")
	wantStr(t, slot(t, m, "main", "emptyArr"), "[]")
}

// TestJSONStringifySkipsUnencodable: undefined-valued keys drop out of
// objects; inside arrays the placeholder is null.
func TestJSONStringifySkipsUnencodable(t *testing.T) {
	obj := &ast.ObjectLiteral{Properties: []ast.ObjectProperty{
		{Key: "keep", Value: ast.Num(1)},
		{Key: "drop", Value: ast.Undefined()},
	}}
	p := ast.Prog("main",
		exportLet("obj", stringify(obj)),
		exportLet("arr", stringify(&ast.ArrayLiteral{Elements: []ast.Expression{
			ast.Num(1), ast.Undefined(),
		}})),
	)
	m, _ := run(t, build(t, "main", p))
	wantStr(t, slot(t, m, "main", "obj"), `{"keep":1}`)
	wantStr(t, slot(t, m, "main", "arr"), "[1,null]")
}

// TestJSONStringifyReplacerAllowlist: an array replacer keeps only the
// listed keys, in declaration order.
func TestJSONStringifyReplacerAllowlist(t *testing.T) {
	obj := &ast.ObjectLiteral{Properties: []ast.ObjectProperty{
		{Key: "a", Value: ast.Num(1)},
		{Key: "b", Value: ast.Num(2)},
		{Key: "c", Value: ast.Num(3)},
	}}
	allow := &ast.ArrayLiteral{Elements: []ast.Expression{ast.Str("a"), ast.Str("c")}}
	p := ast.Prog("main",
		exportLet("got", stringify(obj, allow)),
	)
	m, _ := run(t, build(t, "main", p))
	wantStr(t, slot(t, m, "main", "got"), `{"a":1,"c":3}`)
}

// TestJSONStringifyReplacerFunction: a function replacer maps every
// (key, value) pair before encoding; a member mapped to undefined is
// dropped, an array element mapped to undefined renders as null.
func TestJSONStringifyReplacerFunction(t *testing.T) {
	// let rep = (k, v) => { if (k == "a") return 0; if (k == "b") return undefined; return v; };
	rep := ast.Arrow([]string{"k", "v"}, ast.Block(
		ast.If(ast.Infix("==", ast.Ident("k"), ast.Str("a")), ast.Block(ast.Return(ast.Num(0))), nil),
		ast.If(ast.Infix("==", ast.Ident("k"), ast.Str("b")), ast.Block(ast.Return(ast.Undefined())), nil),
		ast.Return(ast.Ident("v")),
	))
	obj := &ast.ObjectLiteral{Properties: []ast.ObjectProperty{
		{Key: "a", Value: ast.Num(1)},
		{Key: "b", Value: ast.Num(2)},
		{Key: "c", Value: ast.Str("s")},
	}}
	// Array elements see their index as the key.
	first := ast.Arrow([]string{"k", "v"}, ast.Block(
		ast.If(ast.Infix("==", ast.Ident("k"), ast.Str("0")), ast.Block(ast.Return(ast.Num(9))), nil),
		ast.Return(ast.Ident("v")),
	))
	hole := ast.Arrow([]string{"k", "v"}, ast.Block(
		ast.If(ast.Infix("==", ast.Ident("k"), ast.Str("1")), ast.Block(ast.Return(ast.Undefined())), nil),
		ast.Return(ast.Ident("v")),
	))
	p := ast.Prog("main",
		ast.Let("rep", rep),
		exportLet("obj", stringify(obj, ast.Ident("rep"))),
		exportLet("arr", stringify(&ast.ArrayLiteral{Elements: []ast.Expression{
			ast.Num(1), ast.Num(2),
		}}, first)),
		exportLet("holed", stringify(&ast.ArrayLiteral{Elements: []ast.Expression{
			ast.Num(1), ast.Num(2),
		}}, hole)),
	)
	m, _ := run(t, build(t, "main", p))
	wantStr(t, slot(t, m, "main", "obj"), `{"a":0,"c":"s"}`)
	wantStr(t, slot(t, m, "main", "arr"), "[9,2]")
	wantStr(t, slot(t, m, "main", "holed"), "[1,null]")
}

func TestJSONStringifyIndent(t *testing.T) {
	obj := &ast.ObjectLiteral{Properties: []ast.ObjectProperty{
		{Key: "a", Value: ast.Num(1)},
		{Key: "b", Value: &ast.ArrayLiteral{Elements: []ast.Expression{ast.Num(2), ast.Num(3)}}},
	}}
	p := ast.Prog("main",
		exportLet("two", stringify(obj, ast.Null(), ast.Num(2))),
		exportLet("dash", stringify(&ast.ObjectLiteral{Properties: []ast.ObjectProperty{
			{Key: "a", Value: ast.Num(1)},
		}}, ast.Null(), ast.Str("--"))),
		// Gap strings cap at ten characters, like the ten-space numeric cap.
		exportLet("capped", stringify(&ast.ObjectLiteral{Properties: []ast.ObjectProperty{
			{Key: "a", Value: ast.Num(1)},
		}}, ast.Null(), ast.Str("............"))),
	)
	m, _ := run(t, build(t, "main", p))
	wantStr(t, slot(t, m, "main", "two"),
		"{\n  \"a\": 1,\n  \"b\": [\n    2,\n    3\n  ]\n}")
	wantStr(t, slot(t, m, "main", "dash"), "{\n--\"a\": 1\n}")
	wantStr(t, slot(t, m, "main", "capped"), "{\n..........\"a\": 1\n}")
}
