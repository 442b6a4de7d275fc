package compiler

import (
	"kestrel/pkg/ast"
	"kestrel/pkg/il"
)

// Exception lowering. A try statement becomes one or two protected
// regions over the body pcs plus out-of-line handler code:
//
//	body            [start, end)
//	jump exit
//	catch code      (finally region still covers it)
//	jump exit
//	finally copy    unwind path, ends in END_FINALLY
//	exit:
//	finally inline  normal completion path
//	return epilogue when a deferred return passed through
//
// Returns that cross a finally cannot leave the frame directly; they
// park the value in a temp, set a flag and jump to the innermost
// finally-carrying exit, which chains outward until the frame really
// returns.

func (c *Compiler) compileTry(s *ast.TryStatement) {
	exit := c.b.NewLabel()
	tctx := &tryContext{node: s, exit: exit}
	c.trys = append(c.trys, tctx)

	start := c.b.Here()
	c.compileBlock(s.Block)
	end := c.b.Here()
	c.jump(exit)

	catchPC := -1
	catchEnd := end
	var catchSlot int32 = -1
	if s.Catch != nil {
		catchSlot = int32(c.locals.Temp())
		catchPC = c.b.Here()
		c.scope = NewEnclosedSymbolTable(c.scope)
		if s.CatchParam != nil {
			c.loadLocal(catchSlot)
			sym := c.defineVar(s.CatchParam.Value, false)
			c.storeNamed(sym)
		}
		c.compileBlock(s.Catch)
		c.scope = c.scope.Outer
		catchEnd = c.b.Here()
		c.jump(exit)
		c.locals.Release(int(catchSlot))
	}

	c.trys = c.trys[:len(c.trys)-1]

	finPC := -1
	if s.Finally != nil {
		finPC = c.b.Here()
		c.finallyDepth++
		c.compileBlock(s.Finally)
		c.finallyDepth--
		c.ins(il.OpEndFinally, 0, 0)
	}

	if s.Catch != nil {
		c.b.Region(start, end, catchPC, -1, catchSlot)
	}
	if s.Finally != nil {
		c.b.Region(start, catchEnd, -1, finPC, -1)
	}

	c.b.Bind(exit)
	if s.Finally != nil {
		c.finallyDepth++
		c.compileBlock(s.Finally)
		c.finallyDepth--
	}
	if tctx.sawReturn {
		c.emitReturnEpilogue()
	}
}

// emitReturnEpilogue finishes a deferred return after the inline
// finally of a try exit: if the return flag is set, hand off to the
// next finally-carrying try outward, or really return.
func (c *Compiler) emitReturnEpilogue() {
	skip := c.b.NewLabel()
	c.loadTemp(c.retFlag)
	c.asBool()
	c.jumpIfFalse(skip)
	if outer := c.innermostFinallyTry(); outer != nil {
		outer.sawReturn = true
		c.jump(outer.exit)
	} else {
		c.loadTemp(c.retVal)
		c.emitReturnTop()
	}
	c.b.Bind(skip)
}

func (c *Compiler) innermostFinallyTry() *tryContext {
	for i := len(c.trys) - 1; i >= 0; i-- {
		if c.trys[i].node.Finally != nil {
			return c.trys[i]
		}
	}
	return nil
}

func (c *Compiler) ensureRetTemps() {
	if c.hasRetTemp {
		return
	}
	c.retVal = c.newTemp()
	c.retFlag = c.newTemp()
	c.hasRetTemp = true
}

func (c *Compiler) compileReturn(s *ast.ReturnStatement) {
	if c.fn == nil && c.machine == nil {
		c.errorf(s.Pos(), "return outside function")
		return
	}
	if s.Value != nil {
		c.compileExpression(s.Value)
		c.ensureBoxed()
	} else {
		c.ins(il.OpLoadUndef, 0, 0)
	}
	if t := c.innermostFinallyTry(); t != nil {
		c.ensureRetTemps()
		c.storeTemp(c.retVal)
		c.ins(il.OpLoadTrue, 0, 0)
		c.storeTemp(c.retFlag)
		t.sawReturn = true
		c.jump(t.exit)
		return
	}
	c.emitReturnTop()
}

// emitReturnTop returns the boxed value on top of the stack, routing
// through machine completion when emitting a step body.
func (c *Compiler) emitReturnTop() {
	if c.machine != nil {
		c.emitMachineReturn()
		return
	}
	c.ins(il.OpReturn, 0, 0)
}
