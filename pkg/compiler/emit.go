package compiler

import (
	"kestrel/pkg/ast"
	"kestrel/pkg/il"
)

// All emission funnels through the helpers in this file so the tracked
// stack state stays in lockstep with the instruction stream. rec records
// the tracked top after each instruction; the recorded shadow must agree
// with what a reference execution physically observes.

func (c *Compiler) rec() {
	c.shadow = append(c.shadow, c.st.top())
}

// ins applies the stack effect of op, emits it and records the shadow.
func (c *Compiler) ins(op il.OpCode, a, b int32) {
	st := c.st
	switch op {
	case il.OpNop:
	case il.OpLoadNum:
		st.push(StDouble)
	case il.OpLoadStr:
		st.push(StString)
	case il.OpLoadTrue, il.OpLoadFalse:
		st.push(StBoolean)
	case il.OpLoadNull:
		st.push(StNull)
	case il.OpLoadUndef:
		st.push(StUnknown)
	case il.OpDup:
		st.push(st.top())
	case il.OpPop:
		st.pop(1)
	case il.OpSwap:
		st.swap()
	case il.OpBox:
		st.setTop(StUnknown)
	case il.OpUnboxNum:
		st.setTop(StDouble)
	case il.OpUnboxBool:
		st.setTop(StBoolean)
	case il.OpAddNum, il.OpSubNum, il.OpMulNum, il.OpDivNum, il.OpRemNum, il.OpPowNum:
		st.pop(2)
		st.push(StDouble)
	case il.OpNegNum:
		st.setTop(StDouble)
	case il.OpEqNum, il.OpNeNum, il.OpLtNum, il.OpLeNum, il.OpGtNum, il.OpGeNum:
		st.pop(2)
		st.push(StBoolean)
	case il.OpNotBool:
		st.setTop(StBoolean)
	case il.OpConcat:
		st.pop(2)
		st.push(StString)
	case il.OpLoadLocal:
		st.push(StUnknown)
	case il.OpStoreLocal:
		st.pop(1)
	case il.OpLoadField:
		st.pop(1)
		st.push(StUnknown)
	case il.OpStoreField:
		st.pop(2)
	case il.OpLoadStatic:
		st.push(StUnknown)
	case il.OpStoreStatic:
		st.pop(1)
	case il.OpLoadSlot:
		st.push(StUnknown)
	case il.OpStoreSlot:
		st.pop(1)
	case il.OpNewObject, il.OpNewPlain:
		st.push(StUnknown)
	case il.OpNewArray:
		st.pop(int(a))
		st.push(StUnknown)
	case il.OpCallStatic:
		st.pop(int(b))
		st.push(StUnknown)
	case il.OpCallMethod, il.OpCallDyn:
		st.pop(int(b) + 1)
		st.push(StUnknown)
	case il.OpNewDelegate:
		st.setTop(StUnknown)
	case il.OpReturn:
		st.pop(1)
	case il.OpReturnUndef:
	case il.OpThrow:
		st.pop(1)
	case il.OpEndFinally:
	default:
		panic("compiler: untracked opcode " + op.String())
	}
	c.b.EmitAB(op, a, b)
	c.rec()
}

// --- constants and locals ---

func (c *Compiler) loadNum(v float64) {
	c.ins(il.OpLoadNum, c.b.Num(v), 0)
}

func (c *Compiler) loadStr(s string) {
	c.ins(il.OpLoadStr, c.b.Str(s), 0)
}

func (c *Compiler) loadLocal(slot int32)  { c.ins(il.OpLoadLocal, slot, 0) }
func (c *Compiler) storeLocal(slot int32) { c.ins(il.OpStoreLocal, slot, 0) }

func (c *Compiler) loadSlot(module, name string) {
	c.ins(il.OpLoadSlot, c.slotRef(module, name), 0)
}

func (c *Compiler) storeSlot(module, name string) {
	c.ins(il.OpStoreSlot, c.slotRef(module, name), 0)
}

// slotRef records the reference as an own-module slot name or as a
// foreign export name; the two resolve differently at link time.
func (c *Compiler) slotRef(module, name string) int32 {
	if module == c.moduleName {
		return c.b.OwnSlotRef(module, name)
	}
	return c.b.SlotRef(module, name)
}

// --- boxing ---

// ensureBoxed boxes the top of the stack when it holds a raw double or
// boolean. Strings, null and already-boxed values pass through, which
// makes repeated application idempotent.
func (c *Compiler) ensureBoxed() {
	if c.st.top().IsUnboxed() {
		c.ins(il.OpBox, 0, 0)
	}
}

// asNumber coerces the top of the stack to a raw double.
func (c *Compiler) asNumber() {
	if c.st.top() != StDouble {
		c.ins(il.OpUnboxNum, 0, 0)
	}
}

// asBool coerces the top of the stack to a raw boolean via truthiness.
func (c *Compiler) asBool() {
	if c.st.top() != StBoolean {
		c.ins(il.OpUnboxBool, 0, 0)
	}
}

// --- calls ---

// callStaticTyped emits a static call whose result type the compiler
// knows from the callee's contract (runtime helpers returning raw
// booleans or strings). Everything else reports StUnknown.
func (c *Compiler) callStaticTyped(id il.MethodID, argc int, result StackType) {
	c.st.pop(argc)
	c.st.push(result)
	c.b.EmitAB(il.OpCallStatic, int32(id), int32(argc))
	c.rec()
}

func (c *Compiler) callStatic(id il.MethodID, argc int) {
	c.callStaticTyped(id, argc, StUnknown)
}

func (c *Compiler) callMethod(id il.MethodID, argc int) {
	c.ins(il.OpCallMethod, int32(id), int32(argc))
}

func (c *Compiler) callDyn(argc int) {
	c.ins(il.OpCallDyn, 0, int32(argc))
}

// rt calls an emitted runtime helper. Result types follow the helper
// contracts: truthy/equals return raw booleans, toString returns a
// string reference.
func (c *Compiler) rt(name string, argc int) {
	id, err := c.cat.RuntimeMethod(name)
	if err != nil {
		c.fail(err)
		id = il.NoMethod
	}
	result := StUnknown
	switch name {
	case "truthy", "equals", "strEq", "isNullish":
		result = StBoolean
	case "toString", "typeOf":
		result = StString
	}
	c.callStaticTyped(id, argc, result)
}

// sys calls a platform primitive through its builtin descriptor.
// Intrinsics always return boxed values.
func (c *Compiler) sys(name string, argc int) {
	id, err := c.cat.Builtin(name)
	if err != nil {
		c.fail(err)
		id = il.NoMethod
	}
	c.callStatic(id, argc)
}

// --- control flow ---

func (c *Compiler) jump(l il.Label) {
	c.b.Jump(l)
	c.rec()
}

func (c *Compiler) jumpIfFalse(l il.Label) {
	c.st.pop(1)
	c.b.JumpIfFalse(l)
	c.rec()
}

func (c *Compiler) jumpIfTrue(l il.Label) {
	c.st.pop(1)
	c.b.JumpIfTrue(l)
	c.rec()
}

func (c *Compiler) switchOn(labels []il.Label) {
	c.st.pop(1)
	c.b.Switch(labels)
	c.rec()
}

func (c *Compiler) setLine(n ast.Node) {
	c.b.SetLine(n.Pos().Line)
}

// --- temporaries ---

// tempRef abstracts a compiler temporary. Inside state machines temps
// live in machine fields so they survive suspension; elsewhere they are
// plain local slots. Temps always hold boxed values.
type tempRef struct {
	slot    int32
	field   int32
	isField bool
}

func (c *Compiler) newTemp() tempRef {
	if c.machine != nil {
		return tempRef{field: c.machine.allocTemp(), isField: true}
	}
	return tempRef{slot: int32(c.locals.Temp())}
}

// storeTemp boxes and pops the top of the stack into the temp.
func (c *Compiler) storeTemp(t tempRef) {
	c.ensureBoxed()
	if t.isField {
		c.loadLocal(0)
		c.ins(il.OpSwap, 0, 0)
		c.storeContainerField(c.machine.asContainer(), t.field)
		return
	}
	c.storeLocal(t.slot)
}

func (c *Compiler) loadTemp(t tempRef) {
	if t.isField {
		c.loadLocal(0)
		c.loadContainerField(c.machine.asContainer(), t.field)
		return
	}
	c.loadLocal(t.slot)
}

func (c *Compiler) freeTemp(t tempRef) {
	if t.isField {
		c.machine.freeTemp(t.field)
		return
	}
	c.locals.Release(int(t.slot))
}
