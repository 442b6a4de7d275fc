package compiler

import (
	"strings"

	"github.com/dlclark/regexp2"

	"kestrel/pkg/ast"
	"kestrel/pkg/il"
)

// compileRegex validates the pattern at compile time, then emits the
// construction call. An invalid pattern is a unit-local error; the
// platform-side constructor never sees one.
func (c *Compiler) compileRegex(e *ast.RegexLiteral) {
	var opts regexp2.RegexOptions
	for _, f := range e.Flags {
		switch f {
		case 'i':
			opts |= regexp2.IgnoreCase
		case 'm':
			opts |= regexp2.Multiline
		case 's':
			opts |= regexp2.Singleline
		case 'g', 'u':
			// Valid flags with no compile-time analogue.
		default:
			c.errorf(e.Pos(), "unknown regex flag %q", string(f))
		}
	}
	if _, err := regexp2.Compile(e.Pattern, opts); err != nil {
		c.errorf(e.Pos(), "invalid regular expression: %v", err)
		c.ins(il.OpLoadUndef, 0, 0)
		return
	}
	c.loadStr(e.Pattern)
	c.loadStr(e.Flags)
	c.sys("Sys.Regex.new", 2)
}

// compileTemplate lowers `a${b}c` into left-to-right concatenation over
// stringified parts.
func (c *Compiler) compileTemplate(e *ast.TemplateLiteral) {
	if len(e.Exprs) == 0 {
		c.loadStr(strings.Join(e.Quasis, ""))
		return
	}
	c.loadStr(e.Quasis[0])
	for i, x := range e.Exprs {
		c.compileAsString(x)
		c.ins(il.OpConcat, 0, 0)
		if q := e.Quasis[i+1]; q != "" {
			c.loadStr(q)
			c.ins(il.OpConcat, 0, 0)
		}
	}
}

func (c *Compiler) compileArrayLiteral(e *ast.ArrayLiteral) {
	for _, el := range e.Elements {
		c.compileExpression(el)
		c.ensureBoxed()
	}
	c.ins(il.OpNewArray, int32(len(e.Elements)), 0)
}

// compileObjectLiteral allocates a free-form object and populates its
// extension properties in declaration order.
func (c *Compiler) compileObjectLiteral(e *ast.ObjectLiteral) {
	c.ins(il.OpNewPlain, 0, 0)
	for _, p := range e.Properties {
		c.ins(il.OpDup, 0, 0)
		c.loadStr(canon(p.Key))
		c.compileExpression(p.Value)
		c.ensureBoxed()
		c.sys("Sys.Obj.extSet", 3)
		c.ins(il.OpPop, 0, 0)
	}
}
