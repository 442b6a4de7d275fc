package compiler

import (
	"kestrel/pkg/ast"
	"kestrel/pkg/il"
)

// Async lowering. An async function becomes three methods around one
// state-machine type:
//
//	thunk   what callers invoke: allocates the machine, runs the first
//	        step synchronously and returns the machine's future
//	step    the rewritten body: dispatches on @state, runs until the
//	        next await or completion
//	resume  the settle continuation: records (value, isError) in the
//	        inbox and re-enters step
//
// Declared variables and live operand-stack entries move into machine
// fields across suspension points, so a step invocation never depends
// on frame state of a previous one.

func (c *Compiler) lowerAsync(fn *ast.FunctionLiteral, info *fnInfo, name string, shell *il.Method, needsRecv bool, classType il.TypeID) il.MethodID {
	var parent *containerInfo
	if needsRecv {
		parent = c.currentContainer()
	}
	mc := newMachineCtx(name+"$machine", true, needsRecv, classType != il.NoType, parent)
	for _, p := range fn.Parameters {
		mc.field(canon(p.Value))
	}
	selfName := ""
	if fn.Name != nil && !fn.IsDeclaration {
		selfName = canon(fn.Name.Value)
		mc.field(selfName)
	}

	mc.step = &il.Method{ID: il.NoMethod, Name: name + "$step", Owner: pendingOwner}
	c.cat.AddMethod(mc.step)
	mc.resume = &il.Method{ID: il.NoMethod, Name: name + "$resume", Owner: pendingOwner}
	c.cat.AddMethod(mc.resume)
	mc.ownerPatches = append(mc.ownerPatches, mc.step, mc.resume)

	c.emitStepBody(fn, info, name, mc, selfName)
	if err := mc.seal(c.cat); err != nil {
		c.errorf(fn.Pos(), "internal: %v", err)
		return shell.ID
	}
	c.emitAsyncResume(fn, info, name, mc)
	c.emitMachineThunk(fn, info, shell, mc, needsRecv, classType, selfName)
	return shell.ID
}

// emitStepBody compiles the rewritten body shared by async functions and
// generators: state dispatch, the user statements, and the whole-body
// protected region that routes uncaught exceptions into the machine's
// completion protocol.
func (c *Compiler) emitStepBody(fn *ast.FunctionLiteral, info *fnInfo, name string, mc *machineCtx, selfName string) {
	sc := c.child(fn, info, name+"$step", pendingOwner)
	sc.machine = mc
	sc.recv = recvContainer
	sc.ownerCtr = mc.asContainer()

	for _, p := range fn.Parameters {
		pn := canon(p.Value)
		sc.fnScope.Define(&Symbol{Name: pn, Kind: SymMachine, Field: mc.field(pn)})
	}
	if selfName != "" {
		sc.fnScope.Define(&Symbol{Name: selfName, Kind: SymMachine, Field: mc.field(selfName), IsConst: true})
	}

	for i := 0; i < info.suspends; i++ {
		mc.stateLabels = append(mc.stateLabels, sc.b.NewLabel())
	}
	sc.loadMachineField(mc.field(fldState))
	sc.ins(il.OpUnboxNum, 0, 0)
	sc.switchOn(mc.stateLabels)

	start := sc.b.Here()
	sc.compileBlock(fn.Body)
	sc.ins(il.OpLoadUndef, 0, 0)
	sc.emitMachineReturn()
	end := sc.b.Here()

	errSlot := int32(sc.locals.Temp())
	handler := sc.b.Here()
	sc.emitMachineAbort(errSlot)
	sc.b.Region(start, end, handler, -1, errSlot)

	sc.finish(mc.step)
}

// emitMachineReturn completes the machine with the boxed value on top of
// the stack: resolve the future for async machines, deliver the final
// {value, done} pair for generators.
func (c *Compiler) emitMachineReturn() {
	mc := c.machine
	if !mc.isAsync {
		c.emitGenReturn()
		return
	}
	vT := c.newTemp()
	c.storeTemp(vT)
	c.setMachineNum(fldState, stateDone)
	c.loadMachineField(mc.field(fldFuture))
	c.loadTemp(vT)
	c.sys("Sys.Future.resolve", 2)
	c.ins(il.OpPop, 0, 0)
	c.freeTemp(vT)
	c.ins(il.OpReturnUndef, 0, 0)
}

// emitMachineAbort is the step's whole-body handler: an exception that
// escapes the user code finishes the machine. Async machines reject
// their future; generators flag completion and rethrow to the caller of
// the active wrapper.
func (c *Compiler) emitMachineAbort(errSlot int32) {
	mc := c.machine
	c.setMachineNum(fldState, stateDone)
	if mc.isAsync {
		c.loadMachineField(mc.field(fldFuture))
		c.loadLocal(errSlot)
		c.sys("Sys.Future.reject", 2)
		c.ins(il.OpPop, 0, 0)
		c.ins(il.OpReturnUndef, 0, 0)
		return
	}
	c.loadLocal(0)
	c.ins(il.OpLoadTrue, 0, 0)
	c.ins(il.OpBox, 0, 0)
	c.storeContainerField(mc.asContainer(), mc.field(fldDone))
	c.loadLocal(errSlot)
	c.ins(il.OpThrow, 0, 0)
}

// emitAsyncResume emits the settle continuation: (value, isError) land
// in the inbox fields, then the step runs again.
func (c *Compiler) emitAsyncResume(fn *ast.FunctionLiteral, info *fnInfo, name string, mc *machineCtx) {
	rc := c.child(fn, info, name+"$resume", mc.typ)
	rc.b.Method().NumParams = 2
	valSlot := int32(rc.locals.Alloc())
	errSlot := int32(rc.locals.Alloc())

	rc.loadLocal(0)
	rc.loadLocal(valSlot)
	rc.ins(il.OpStoreField, int32(mc.typ), mc.field(fldInbox))
	rc.loadLocal(0)
	rc.loadLocal(errSlot)
	rc.ins(il.OpStoreField, int32(mc.typ), mc.field(fldErrbox))
	rc.loadLocal(0)
	rc.callMethod(mc.step.ID, 0)
	rc.ins(il.OpPop, 0, 0)
	rc.ins(il.OpReturnUndef, 0, 0)
	rc.finish(mc.resume)
}

// emitMachineThunk fills the caller-visible shell: allocate the machine,
// seed its fields from the call, and either kick off execution (async)
// or hand back the machine as the iterator object (generator).
func (c *Compiler) emitMachineThunk(fn *ast.FunctionLiteral, info *fnInfo, shell *il.Method, mc *machineCtx, needsRecv bool, classType il.TypeID, selfName string) {
	tc := c.child(fn, info, shell.Name, shell.Owner)
	tc.b.Method().NumParams = len(fn.Parameters)
	paramSlots := make([]int32, len(fn.Parameters))
	for i := range fn.Parameters {
		paramSlots[i] = int32(tc.locals.Alloc())
	}
	mSlot := int32(tc.locals.Alloc())

	typ := int32(mc.typ)
	tc.ins(il.OpNewObject, typ, 0)
	tc.storeLocal(mSlot)

	tc.loadLocal(mSlot)
	tc.loadNum(stateInitial)
	tc.ins(il.OpBox, 0, 0)
	tc.ins(il.OpStoreField, typ, mc.field(fldState))

	if mc.isAsync {
		tc.loadLocal(mSlot)
		tc.sys("Sys.Future.new", 0)
		tc.ins(il.OpStoreField, typ, mc.field(fldFuture))
	} else {
		tc.loadLocal(mSlot)
		tc.ins(il.OpLoadFalse, 0, 0)
		tc.ins(il.OpBox, 0, 0)
		tc.ins(il.OpStoreField, typ, mc.field(fldDone))
		tc.loadLocal(mSlot)
		tc.loadNum(modeNext)
		tc.ins(il.OpBox, 0, 0)
		tc.ins(il.OpStoreField, typ, mc.field(fldMode))
	}

	for i, p := range fn.Parameters {
		tc.loadLocal(mSlot)
		tc.loadLocal(paramSlots[i])
		tc.ins(il.OpStoreField, typ, mc.field(canon(p.Value)))
	}
	if needsRecv {
		tc.loadLocal(mSlot)
		tc.loadLocal(0)
		tc.ins(il.OpStoreField, typ, mc.parentField)
	}
	if classType != il.NoType {
		tc.loadLocal(mSlot)
		tc.loadLocal(0)
		tc.ins(il.OpStoreField, typ, mc.field(fldThis))
	}
	if selfName != "" {
		tc.loadLocal(mSlot)
		if shell.Owner != il.NoType {
			tc.loadLocal(0)
		} else {
			tc.ins(il.OpLoadNull, 0, 0)
		}
		tc.ins(il.OpNewDelegate, int32(shell.ID), 0)
		tc.ins(il.OpStoreField, typ, mc.field(selfName))
	}

	if mc.isAsync {
		tc.loadLocal(mSlot)
		tc.callMethod(mc.step.ID, 0)
		tc.ins(il.OpPop, 0, 0)
		tc.loadLocal(mSlot)
		tc.ins(il.OpLoadField, typ, mc.field(fldFuture))
		tc.ins(il.OpReturn, 0, 0)
	} else {
		c.emitGenBindings(tc, mSlot, mc)
		tc.loadLocal(mSlot)
		tc.ins(il.OpReturn, 0, 0)
	}
	tc.finish(shell)
}

// --- suspension plumbing shared by await and yield ---

func (c *Compiler) loadMachineField(idx int32) {
	c.loadLocal(0)
	c.loadContainerField(c.machine.asContainer(), idx)
}

// storeMachineField pops the top of the stack into a machine field.
func (c *Compiler) storeMachineField(idx int32) {
	c.loadLocal(0)
	c.ins(il.OpSwap, 0, 0)
	c.storeContainerField(c.machine.asContainer(), idx)
}

func (c *Compiler) setMachineNum(field string, v float64) {
	c.loadLocal(0)
	c.loadNum(v)
	c.ins(il.OpBox, 0, 0)
	c.storeContainerField(c.machine.asContainer(), c.machine.field(field))
}

// suspendSpill parks every live operand-stack entry in a machine spill
// field (boxed) and returns the pre-spill type snapshot, top of stack
// first in spill slot 0.
func (c *Compiler) suspendSpill() []StackType {
	snap := c.st.save()
	mc := c.machine
	for i := 0; c.st.depth() > 0; i++ {
		c.ensureBoxed()
		c.storeMachineField(mc.spill(i))
	}
	return snap
}

// restoreSpill reloads the spilled entries bottom-up and re-establishes
// the raw representations the snapshot recorded.
func (c *Compiler) restoreSpill(snap []StackType) {
	mc := c.machine
	n := len(snap)
	for i := n - 1; i >= 0; i-- {
		c.loadMachineField(mc.spill(i))
		switch snap[n-1-i] {
		case StDouble:
			c.ins(il.OpUnboxNum, 0, 0)
		case StBoolean:
			c.ins(il.OpUnboxBool, 0, 0)
		case StString, StNull:
			c.st.setTop(snap[n-1-i])
		}
	}
}

// suspend emits the state handoff common to await and yield: record the
// active protected-region depth and the resume state, then leave the
// frame. The returned snapshot is restored at the bound resume label.
func (c *Compiler) suspend() (int, il.Label, []StackType) {
	snap := c.suspendSpill()
	c.setMachineNum(fldRegion, float64(len(c.trys)))
	k, label := c.machine.takeState()
	c.setMachineNum(fldState, float64(k))
	return k, label, snap
}

// compileAwait lowers `await e`: normalize the operand to a future,
// register the resume continuation and suspend. The resumed step pushes
// the settled value, rethrowing rejections at the await site.
func (c *Compiler) compileAwait(e *ast.AwaitExpression) {
	if c.machine == nil || !c.machine.isAsync {
		c.errorf(e.Pos(), "await outside async function")
		c.ins(il.OpLoadUndef, 0, 0)
		return
	}
	if c.finallyDepth > 0 {
		c.stateError(e.Pos(), "await inside finally is not supported")
		c.ins(il.OpLoadUndef, 0, 0)
		return
	}
	mc := c.machine

	c.compileExpression(e.Value)
	c.ensureBoxed()
	c.sys("Sys.Future.of", 1)
	awT := c.newTemp()
	c.storeTemp(awT)

	_, label, snap := c.suspend()

	c.loadTemp(awT)
	c.loadLocal(0)
	c.ins(il.OpNewDelegate, int32(mc.resume.ID), 0)
	c.sys("Sys.Future.onSettle", 2)
	c.ins(il.OpPop, 0, 0)
	c.freeTemp(awT)
	c.ins(il.OpReturnUndef, 0, 0)

	c.b.Bind(label)
	c.restoreSpill(snap)

	okL := c.b.NewLabel()
	c.loadMachineField(mc.field(fldErrbox))
	c.asBool()
	c.jumpIfFalse(okL)
	c.loadMachineField(mc.field(fldInbox))
	c.ins(il.OpThrow, 0, 0)
	c.b.Bind(okL)
	c.loadMachineField(mc.field(fldInbox))
}
