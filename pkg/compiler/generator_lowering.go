package compiler

import (
	"kestrel/pkg/ast"
	"kestrel/pkg/il"
)

// Generator lowering. The machine instance doubles as the iterator
// object: the thunk allocates it and binds next/return/throw wrapper
// delegates as extension properties, so both for..of and explicit
// protocol calls drive the same step method.

func (c *Compiler) lowerGenerator(fn *ast.FunctionLiteral, info *fnInfo, name string, shell *il.Method, needsRecv bool, classType il.TypeID) il.MethodID {
	var parent *containerInfo
	if needsRecv {
		parent = c.currentContainer()
	}
	mc := newMachineCtx(name+"$machine", false, needsRecv, classType != il.NoType, parent)
	for _, p := range fn.Parameters {
		mc.field(canon(p.Value))
	}
	selfName := ""
	if fn.Name != nil && !fn.IsDeclaration {
		selfName = canon(fn.Name.Value)
		mc.field(selfName)
	}

	mc.step = &il.Method{ID: il.NoMethod, Name: name + "$step", Owner: pendingOwner}
	mc.wNext = &il.Method{ID: il.NoMethod, Name: name + "$next", Owner: pendingOwner}
	mc.wRet = &il.Method{ID: il.NoMethod, Name: name + "$return", Owner: pendingOwner}
	mc.wThrow = &il.Method{ID: il.NoMethod, Name: name + "$throw", Owner: pendingOwner}
	c.cat.AddMethod(mc.step)
	c.cat.AddMethod(mc.wNext)
	c.cat.AddMethod(mc.wRet)
	c.cat.AddMethod(mc.wThrow)
	mc.ownerPatches = append(mc.ownerPatches, mc.step, mc.wNext, mc.wRet, mc.wThrow)

	c.emitStepBody(fn, info, name, mc, selfName)
	if err := mc.seal(c.cat); err != nil {
		c.errorf(fn.Pos(), "internal: %v", err)
		return shell.ID
	}
	c.emitGenWrappers(fn, info, mc)
	c.emitMachineThunk(fn, info, shell, mc, needsRecv, classType, selfName)
	return shell.ID
}

// emitGenBindings attaches the protocol wrappers to a fresh machine
// instance inside the thunk.
func (c *Compiler) emitGenBindings(tc *Compiler, mSlot int32, mc *machineCtx) {
	bind := func(prop string, m *il.Method) {
		tc.loadLocal(mSlot)
		tc.loadStr(prop)
		tc.loadLocal(mSlot)
		tc.ins(il.OpNewDelegate, int32(m.ID), 0)
		tc.sys("Sys.Obj.extSet", 3)
		tc.ins(il.OpPop, 0, 0)
	}
	bind("next", mc.wNext)
	bind("return", mc.wRet)
	bind("throw", mc.wThrow)
}

// emitGenResult builds a {value, done} record from the two load
// callbacks, leaving it on the stack.
func (wc *Compiler) emitGenResult(loadValue, loadDone func()) {
	wc.ins(il.OpNewPlain, 0, 0)
	wc.ins(il.OpDup, 0, 0)
	wc.loadStr("value")
	loadValue()
	wc.ensureBoxed()
	wc.sys("Sys.Obj.extSet", 3)
	wc.ins(il.OpPop, 0, 0)
	wc.ins(il.OpDup, 0, 0)
	wc.loadStr("done")
	loadDone()
	wc.ensureBoxed()
	wc.sys("Sys.Obj.extSet", 3)
	wc.ins(il.OpPop, 0, 0)
}

func (c *Compiler) emitGenWrappers(fn *ast.FunctionLiteral, info *fnInfo, mc *machineCtx) {
	typ := int32(mc.typ)

	field := func(wc *Compiler, name string) func() {
		idx := mc.field(name)
		return func() {
			wc.loadLocal(0)
			wc.ins(il.OpLoadField, typ, idx)
		}
	}

	// next(v): advance, or report exhaustion.
	{
		wc := c.child(fn, info, mc.wNext.Name, mc.typ)
		wc.b.Method().NumParams = 1
		vSlot := int32(wc.locals.Alloc())
		loadCurrent := field(wc, fldCurrent)
		loadDone := field(wc, fldDone)

		runL := wc.b.NewLabel()
		loadDone()
		wc.ins(il.OpUnboxBool, 0, 0)
		wc.jumpIfFalse(runL)
		wc.emitGenResult(func() { wc.ins(il.OpLoadUndef, 0, 0) }, func() { wc.ins(il.OpLoadTrue, 0, 0) })
		wc.ins(il.OpReturn, 0, 0)

		wc.b.Bind(runL)
		wc.loadLocal(0)
		wc.loadNum(modeNext)
		wc.ins(il.OpBox, 0, 0)
		wc.ins(il.OpStoreField, typ, mc.field(fldMode))
		wc.loadLocal(0)
		wc.loadLocal(vSlot)
		wc.ins(il.OpStoreField, typ, mc.field(fldInjected))
		wc.loadLocal(0)
		wc.callMethod(mc.step.ID, 0)
		wc.ins(il.OpPop, 0, 0)
		wc.emitGenResult(loadCurrent, loadDone)
		wc.ins(il.OpReturn, 0, 0)
		wc.finish(mc.wNext)
	}

	// return(v): force completion; the step sees modeReturn at the
	// suspended yield. A generator that never started completes
	// immediately without entering the body.
	{
		wc := c.child(fn, info, mc.wRet.Name, mc.typ)
		wc.b.Method().NumParams = 1
		vSlot := int32(wc.locals.Alloc())
		loadV := func() { wc.loadLocal(vSlot) }
		loadTrue := func() { wc.ins(il.OpLoadTrue, 0, 0) }

		runL := wc.b.NewLabel()
		stepL := wc.b.NewLabel()
		field(wc, fldDone)()
		wc.ins(il.OpUnboxBool, 0, 0)
		wc.jumpIfFalse(runL)
		wc.emitGenResult(loadV, loadTrue)
		wc.ins(il.OpReturn, 0, 0)

		wc.b.Bind(runL)
		field(wc, fldState)()
		wc.ins(il.OpUnboxNum, 0, 0)
		wc.loadNum(stateInitial)
		wc.ins(il.OpEqNum, 0, 0)
		wc.jumpIfFalse(stepL)
		wc.loadLocal(0)
		wc.ins(il.OpLoadTrue, 0, 0)
		wc.ins(il.OpBox, 0, 0)
		wc.ins(il.OpStoreField, typ, mc.field(fldDone))
		wc.loadLocal(0)
		wc.loadNum(stateDone)
		wc.ins(il.OpBox, 0, 0)
		wc.ins(il.OpStoreField, typ, mc.field(fldState))
		wc.emitGenResult(loadV, loadTrue)
		wc.ins(il.OpReturn, 0, 0)

		wc.b.Bind(stepL)
		wc.loadLocal(0)
		wc.loadNum(modeReturn)
		wc.ins(il.OpBox, 0, 0)
		wc.ins(il.OpStoreField, typ, mc.field(fldMode))
		wc.loadLocal(0)
		wc.loadLocal(vSlot)
		wc.ins(il.OpStoreField, typ, mc.field(fldInjected))
		wc.loadLocal(0)
		wc.callMethod(mc.step.ID, 0)
		wc.ins(il.OpPop, 0, 0)
		wc.emitGenResult(field(wc, fldCurrent), field(wc, fldDone))
		wc.ins(il.OpReturn, 0, 0)
		wc.finish(mc.wRet)
	}

	// throw(v): inject at the suspended yield, or rethrow to the caller
	// when the generator is exhausted or never started.
	{
		wc := c.child(fn, info, mc.wThrow.Name, mc.typ)
		wc.b.Method().NumParams = 1
		vSlot := int32(wc.locals.Alloc())

		rethrowL := wc.b.NewLabel()
		stepL := wc.b.NewLabel()
		field(wc, fldDone)()
		wc.ins(il.OpUnboxBool, 0, 0)
		wc.jumpIfTrue(rethrowL)
		field(wc, fldState)()
		wc.ins(il.OpUnboxNum, 0, 0)
		wc.loadNum(stateInitial)
		wc.ins(il.OpEqNum, 0, 0)
		wc.jumpIfFalse(stepL)
		wc.loadLocal(0)
		wc.ins(il.OpLoadTrue, 0, 0)
		wc.ins(il.OpBox, 0, 0)
		wc.ins(il.OpStoreField, typ, mc.field(fldDone))
		wc.loadLocal(0)
		wc.loadNum(stateDone)
		wc.ins(il.OpBox, 0, 0)
		wc.ins(il.OpStoreField, typ, mc.field(fldState))
		wc.b.Bind(rethrowL)
		wc.loadLocal(vSlot)
		wc.ins(il.OpThrow, 0, 0)

		wc.b.Bind(stepL)
		wc.loadLocal(0)
		wc.loadNum(modeThrow)
		wc.ins(il.OpBox, 0, 0)
		wc.ins(il.OpStoreField, typ, mc.field(fldMode))
		wc.loadLocal(0)
		wc.loadLocal(vSlot)
		wc.ins(il.OpStoreField, typ, mc.field(fldInjected))
		wc.loadLocal(0)
		wc.callMethod(mc.step.ID, 0)
		wc.ins(il.OpPop, 0, 0)
		wc.emitGenResult(field(wc, fldCurrent), field(wc, fldDone))
		wc.ins(il.OpReturn, 0, 0)
		wc.finish(mc.wThrow)
	}
}

// emitGenReturn completes the generator with the boxed value on top of
// the stack; the active wrapper reads @current/@done afterwards.
func (c *Compiler) emitGenReturn() {
	mc := c.machine
	c.storeMachineField(mc.field(fldCurrent))
	c.loadLocal(0)
	c.ins(il.OpLoadTrue, 0, 0)
	c.ins(il.OpBox, 0, 0)
	c.storeContainerField(mc.asContainer(), mc.field(fldDone))
	c.setMachineNum(fldState, stateDone)
	c.ins(il.OpReturnUndef, 0, 0)
}

func (c *Compiler) compileYield(e *ast.YieldExpression) {
	if c.machine == nil || c.machine.isAsync {
		c.errorf(e.Pos(), "yield outside generator")
		c.ins(il.OpLoadUndef, 0, 0)
		return
	}
	if c.finallyDepth > 0 {
		c.stateError(e.Pos(), "yield inside finally is not supported")
		c.ins(il.OpLoadUndef, 0, 0)
		return
	}
	if e.Delegate {
		c.compileYieldFrom(e)
		return
	}
	if e.Value != nil {
		c.compileExpression(e.Value)
		c.ensureBoxed()
	} else {
		c.ins(il.OpLoadUndef, 0, 0)
	}
	c.emitYieldPoint()
}

// emitYieldPoint suspends with the boxed value on top of the stack and,
// on resume, dispatches the wrapper-recorded mode: continue with the
// injected value, complete, or rethrow at the yield site. A forced
// return routes through the enclosing finally chain before the machine
// completes.
func (c *Compiler) emitYieldPoint() {
	mc := c.machine
	c.storeMachineField(mc.field(fldCurrent))
	_, label, snap := c.suspend()
	c.ins(il.OpReturnUndef, 0, 0)

	c.b.Bind(label)
	c.restoreSpill(snap)

	nextL := c.b.NewLabel()
	retL := c.b.NewLabel()
	thrL := c.b.NewLabel()
	c.loadMachineField(mc.field(fldMode))
	c.ins(il.OpUnboxNum, 0, 0)
	c.switchOn([]il.Label{nextL, retL, thrL})
	c.jump(nextL)
	c.b.Bind(retL)
	c.loadMachineField(mc.field(fldInjected))
	c.emitGenReturnDeferred()
	c.b.Bind(thrL)
	c.loadMachineField(mc.field(fldInjected))
	c.ins(il.OpThrow, 0, 0)
	c.b.Bind(nextL)
	c.loadMachineField(mc.field(fldInjected))
}

// emitGenReturnDeferred completes the generator with the boxed value on
// top of the stack, parking it through the deferred-return chain when a
// finally-carrying try encloses the yield so the finallies run first.
func (c *Compiler) emitGenReturnDeferred() {
	if t := c.innermostFinallyTry(); t != nil {
		c.ensureRetTemps()
		c.storeTemp(c.retVal)
		c.ins(il.OpLoadTrue, 0, 0)
		c.storeTemp(c.retFlag)
		t.sawReturn = true
		c.jump(t.exit)
		return
	}
	c.emitGenReturn()
}

// compileYieldFrom drains a delegated iterator, re-yielding each value.
// While the delegation is active every protocol mode forwards to the
// delegate first: next(v) passes the injected value through, return and
// throw invoke the delegate's own methods when it carries them. The
// outer machine reacts only once the delegate completes or lacks the
// method. The delegate handle lives in a machine field so iteration
// survives the suspensions it causes.
func (c *Compiler) compileYieldFrom(e *ast.YieldExpression) {
	mc := c.machine
	c.compileExpression(e.Value)
	c.ensureBoxed()
	c.rt("getIterator", 1)
	c.storeMachineField(mc.field(fldDelegate))

	rT := c.newTemp()
	checkL := c.b.NewLabel()
	doneL := c.b.NewLabel()

	forward := func(method string, loadArg func()) {
		c.loadMachineField(mc.field(fldDelegate))
		c.loadStr(method)
		c.rt("getProp", 2)
		loadArg()
		c.callDyn(1)
		c.storeTemp(rT)
	}
	loadResultField := func(name string) {
		c.loadTemp(rT)
		c.loadStr(name)
		c.rt("getProp", 2)
	}
	loadInjected := func() { c.loadMachineField(mc.field(fldInjected)) }

	forward("next", func() { c.ins(il.OpLoadUndef, 0, 0) })

	// Loop head: exhausted delegates end the delegation; anything else
	// re-yields the delegate's value from the outer machine.
	c.b.Bind(checkL)
	loadResultField("done")
	c.rt("truthy", 1)
	c.jumpIfTrue(doneL)

	loadResultField("value")
	c.storeMachineField(mc.field(fldCurrent))
	_, label, snap := c.suspend()
	c.ins(il.OpReturnUndef, 0, 0)
	c.b.Bind(label)
	c.restoreSpill(snap)

	nextL := c.b.NewLabel()
	retL := c.b.NewLabel()
	thrL := c.b.NewLabel()
	c.loadMachineField(mc.field(fldMode))
	c.ins(il.OpUnboxNum, 0, 0)
	c.switchOn([]il.Label{nextL, retL, thrL})
	c.jump(nextL)

	// return(v): delegate.return(v) when present. A done result ends
	// the whole generator with the delegate's final value; a yielding
	// delegate keeps the delegation alive. Without a return method the
	// injected value completes the outer machine directly.
	c.b.Bind(retL)
	noRetL := c.b.NewLabel()
	c.loadMachineField(mc.field(fldDelegate))
	c.loadStr("return")
	c.rt("getProp", 2)
	c.rt("isNullish", 1)
	c.jumpIfTrue(noRetL)
	forward("return", loadInjected)
	loadResultField("done")
	c.rt("truthy", 1)
	c.jumpIfFalse(checkL)
	loadResultField("value")
	c.emitGenReturnDeferred()
	c.b.Bind(noRetL)
	loadInjected()
	c.emitGenReturnDeferred()

	// throw(v): delegate.throw(v) when present, else rethrow at the
	// delegation site.
	c.b.Bind(thrL)
	noThrL := c.b.NewLabel()
	c.loadMachineField(mc.field(fldDelegate))
	c.loadStr("throw")
	c.rt("getProp", 2)
	c.rt("isNullish", 1)
	c.jumpIfTrue(noThrL)
	forward("throw", loadInjected)
	c.jump(checkL)
	c.b.Bind(noThrL)
	loadInjected()
	c.ins(il.OpThrow, 0, 0)

	c.b.Bind(nextL)
	forward("next", loadInjected)
	c.jump(checkL)

	// The yield* expression evaluates to the delegate's final value.
	c.b.Bind(doneL)
	loadResultField("value")
	c.freeTemp(rT)
}
