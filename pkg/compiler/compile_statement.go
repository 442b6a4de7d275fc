package compiler

import (
	"kestrel/pkg/ast"
	"kestrel/pkg/il"
)

func (c *Compiler) compileStatement(s ast.Statement) {
	if c.failed() {
		return
	}
	c.b.SetLine(s.Pos().Line)
	switch s := s.(type) {
	case *ast.ExpressionStatement:
		if fl, ok := s.Expression.(*ast.FunctionLiteral); ok && fl.IsDeclaration && fl.Name != nil {
			c.compileFunctionDecl(fl)
			return
		}
		c.compileExpression(s.Expression)
		c.ins(il.OpPop, 0, 0)
	case *ast.LetStatement:
		c.compileLet(s)
	case *ast.ReturnStatement:
		c.compileReturn(s)
	case *ast.BlockStatement:
		c.compileBlock(s)
	case *ast.IfStatement:
		c.compileIf(s)
	case *ast.WhileStatement:
		c.compileWhile(s)
	case *ast.ForStatement:
		c.compileFor(s)
	case *ast.ForOfStatement:
		c.compileForOf(s)
	case *ast.BreakStatement:
		c.compileBreak(s.Label, s, true)
	case *ast.ContinueStatement:
		c.compileBreak(s.Label, s, false)
	case *ast.LabeledStatement:
		c.pendingLabel = s.Label
		c.compileStatement(s.Body)
		c.pendingLabel = ""
	case *ast.ThrowStatement:
		c.compileExpression(s.Value)
		c.ensureBoxed()
		c.ins(il.OpThrow, 0, 0)
	case *ast.TryStatement:
		c.compileTry(s)
	case *ast.ClassDeclaration:
		if c.fn == nil {
			c.compileClassBody(s)
			return
		}
		c.errorf(s.Pos(), "class declarations are only supported at top level")
	case *ast.ImportDeclaration:
		if c.fn != nil {
			c.errorf(s.Pos(), "imports are only supported at top level")
		}
	case *ast.ExportNamedDeclaration, *ast.ExportDefaultDeclaration:
		c.errorf(s.Pos(), "exports are only supported at top level")
	default:
		c.errorf(s.Pos(), "unsupported statement kind %T", s)
	}
}

func (c *Compiler) compileLet(s *ast.LetStatement) {
	if s.Value != nil {
		c.compileExpression(s.Value)
		c.ensureBoxed()
	} else {
		c.ins(il.OpLoadUndef, 0, 0)
	}
	// Top-level bindings already own a slot from the declaration pass.
	sym, ok := c.root.slotDecls[s]
	if !ok {
		sym = c.defineVar(s.Name.Value, s.IsConst)
	}
	c.storeNamed(sym)
}

func (c *Compiler) compileIf(s *ast.IfStatement) {
	elseL := c.b.NewLabel()
	c.compileCondition(s.Condition)
	c.jumpIfFalse(elseL)
	c.compileBlock(s.Consequence)
	if s.Alternative == nil {
		c.b.Bind(elseL)
		return
	}
	end := c.b.NewLabel()
	c.jump(end)
	c.b.Bind(elseL)
	c.compileStatement(s.Alternative)
	c.b.Bind(end)
}

func (c *Compiler) takeLabel() string {
	l := c.pendingLabel
	c.pendingLabel = ""
	return l
}

func (c *Compiler) pushLoop(label string, brk, cont il.Label) *loopContext {
	ctx := &loopContext{label: label, brk: brk, cont: cont, tryDepth: len(c.trys)}
	c.loops = append(c.loops, ctx)
	return ctx
}

func (c *Compiler) popLoop() {
	c.loops = c.loops[:len(c.loops)-1]
}

func (c *Compiler) compileWhile(s *ast.WhileStatement) {
	start := c.b.NewLabel()
	brk := c.b.NewLabel()
	c.pushLoop(c.takeLabel(), brk, start)
	c.b.Bind(start)
	c.compileCondition(s.Condition)
	c.jumpIfFalse(brk)
	c.compileBlock(s.Body)
	c.jump(start)
	c.b.Bind(brk)
	c.popLoop()
}

func (c *Compiler) compileFor(s *ast.ForStatement) {
	c.scope = NewEnclosedSymbolTable(c.scope)
	if s.Init != nil {
		c.compileStatement(s.Init)
	}
	start := c.b.NewLabel()
	cont := c.b.NewLabel()
	brk := c.b.NewLabel()
	c.pushLoop(c.takeLabel(), brk, cont)
	c.b.Bind(start)
	if s.Condition != nil {
		c.compileCondition(s.Condition)
		c.jumpIfFalse(brk)
	}
	c.compileBlock(s.Body)
	c.b.Bind(cont)
	if s.Update != nil {
		c.compileExpression(s.Update)
		c.ins(il.OpPop, 0, 0)
	}
	c.jump(start)
	c.b.Bind(brk)
	c.popLoop()
	c.scope = c.scope.Outer
}

// compileForOf drives the pull-based iteration protocol: getIterator
// normalizes arrays, strings and iterator-shaped objects (generator
// machines included), then each round trips through next().
func (c *Compiler) compileForOf(s *ast.ForOfStatement) {
	c.scope = NewEnclosedSymbolTable(c.scope)
	c.compileExpression(s.Value)
	c.ensureBoxed()
	c.rt("getIterator", 1)
	itT := c.newTemp()
	c.storeTemp(itT)
	sym := c.defineVar(s.Name.Value, false)
	resT := c.newTemp()

	start := c.b.NewLabel()
	brk := c.b.NewLabel()
	c.pushLoop(c.takeLabel(), brk, start)
	c.b.Bind(start)
	c.loadTemp(itT)
	c.loadStr("next")
	c.rt("getProp", 2)
	c.callDyn(0)
	c.storeTemp(resT)
	c.loadTemp(resT)
	c.loadStr("done")
	c.rt("getProp", 2)
	c.rt("truthy", 1)
	c.jumpIfTrue(brk)
	c.loadTemp(resT)
	c.loadStr("value")
	c.rt("getProp", 2)
	c.storeNamed(sym)
	c.compileBlock(s.Body)
	c.jump(start)
	c.b.Bind(brk)
	c.popLoop()
	c.freeTemp(resT)
	c.freeTemp(itT)
	c.scope = c.scope.Outer
}

func (c *Compiler) findLoop(label string) *loopContext {
	if len(c.loops) == 0 {
		return nil
	}
	if label == "" {
		return c.loops[len(c.loops)-1]
	}
	for i := len(c.loops) - 1; i >= 0; i-- {
		if c.loops[i].label == label {
			return c.loops[i]
		}
	}
	return nil
}

// compileBreak emits break/continue, running the inline finallies of
// every protected region the jump leaves.
func (c *Compiler) compileBreak(label string, s ast.Statement, isBreak bool) {
	ctx := c.findLoop(label)
	if ctx == nil {
		if label != "" {
			c.errorf(s.Pos(), "undefined label %q", label)
		} else {
			c.errorf(s.Pos(), "break outside loop")
		}
		return
	}
	for i := len(c.trys) - 1; i >= ctx.tryDepth; i-- {
		if fin := c.trys[i].node.Finally; fin != nil {
			c.finallyDepth++
			c.compileBlock(fin)
			c.finallyDepth--
		}
	}
	if isBreak {
		c.jump(ctx.brk)
	} else {
		c.jump(ctx.cont)
	}
}
