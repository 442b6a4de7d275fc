package compiler

import (
	"kestrel/pkg/catalog"
	"kestrel/pkg/errors"
	"kestrel/pkg/il"
)

// The runtime support module: dynamic-semantics helpers emitted as IL
// into the artifact itself. Every program carries these; the platform
// only supplies the Sys.* primitives they bottom out in. Helper
// contracts the emitter relies on:
//
//	truthy, equals, strEq, isNullish   -> raw boolean
//	toString, typeOf                   -> string reference
//	everything else                    -> boxed value
//
// Helpers that hand out bound callables (array push, iterator next) are
// instance methods so delegate dispatch fills slot 0 with the target.

// EmitRuntime writes the helper module into the catalog. Exactly one
// caller per catalog wins the claim; later calls are no-ops.
func EmitRuntime(cat *catalog.Catalog) errors.KestrelError {
	if !cat.ClaimRuntimeEmission() {
		return nil
	}
	e := &runtimeEmitter{cat: cat, fns: make(map[string]*il.Method)}
	return e.emit()
}

type runtimeEmitter struct {
	cat  *catalog.Catalog
	err  errors.KestrelError
	fns  map[string]*il.Method
	iter *il.TypeDef
}

// registered is the set of helpers addressable through rt(); the rest
// are internal to the module.
var registeredHelpers = []string{
	"toString", "truthy", "add", "equals", "strEq", "isNullish",
	"typeOf", "getProp", "setProp", "getIterator", "jsonEncode",
}

func (e *runtimeEmitter) emit() errors.KestrelError {
	td, err := e.cat.DefineType("runtime::Iterator", il.RuntimeType,
		[]string{"@src", "@i", "@kind"}, nil)
	if err != nil {
		return &errors.TargetError{Msg: err.Error()}
	}
	e.iter = td

	// Shells first so the bodies can call each other freely.
	e.declare("toString", 1)
	e.declare("truthy", 1)
	e.declare("add", 2)
	e.declare("equals", 2)
	e.declare("strEq", 2)
	e.declare("isNullish", 1)
	e.declare("typeOf", 1)
	e.declare("getProp", 2)
	e.declare("setProp", 3)
	e.declare("getIterator", 1)
	e.declare("jsonEncode", 3)
	e.declare("jsonGap", 1)
	e.declare("jsonValue", 4)
	e.declare("jsonArray", 4)
	e.declare("jsonObject", 4)
	e.declare("jsonAllowed", 2)
	e.declareOwned("next", 0)
	e.declareOwned("push", 1)

	e.emitToString()
	e.emitTruthy()
	e.emitAdd()
	e.emitEquals()
	e.emitStrEq()
	e.emitIsNullish()
	e.emitTypeOf()
	e.emitGetProp()
	e.emitSetProp()
	e.emitGetIterator()
	e.emitIterNext()
	e.emitArrayPush()
	e.emitJSONEncode()
	e.emitJSONGap()
	e.emitJSONValue()
	e.emitJSONArray()
	e.emitJSONObject()
	e.emitJSONAllowed()

	for _, name := range registeredHelpers {
		e.cat.RegisterRuntimeMethod(name, e.fns[name].ID)
	}
	return e.err
}

func (e *runtimeEmitter) declare(name string, arity int) {
	m := &il.Method{
		ID: il.NoMethod, Name: "runtime::" + name,
		Owner: il.NoType, NumParams: arity,
	}
	e.cat.AddMethod(m)
	e.fns[name] = m
}

func (e *runtimeEmitter) declareOwned(name string, arity int) {
	m := &il.Method{
		ID: il.NoMethod, Name: name,
		Owner: e.iter.ID, NumParams: arity,
	}
	e.cat.AddMethod(m)
	e.fns[name] = m
}

// rtFn assembles one helper body. Parameter slots are reserved up
// front; tmp() grows the frame as scratch is needed.
type rtFn struct {
	e *runtimeEmitter
	b *il.Builder
}

func (e *runtimeEmitter) body(name string) *rtFn {
	m := e.fns[name]
	b := il.NewBuilder(m.Name, m.Owner)
	b.Method().NumParams = m.NumParams
	reserve := m.NumParams
	if m.Owner != il.NoType {
		reserve++
	}
	b.Locals(reserve)
	return &rtFn{e: e, b: b}
}

func (f *rtFn) finish(name string) {
	adopt(f.e.fns[name], f.b.Finish())
}

func (f *rtFn) op(op il.OpCode)       { f.b.Emit(op) }
func (f *rtFn) num(v float64)         { f.b.EmitA(il.OpLoadNum, f.b.Num(v)) }
func (f *rtFn) str(s string)          { f.b.EmitA(il.OpLoadStr, f.b.Str(s)) }
func (f *rtFn) load(slot int32)       { f.b.EmitA(il.OpLoadLocal, slot) }
func (f *rtFn) store(slot int32)      { f.b.EmitA(il.OpStoreLocal, slot) }
func (f *rtFn) tmp() int32            { return int32(f.b.Locals(1)) }
func (f *rtFn) ret()                  { f.op(il.OpReturn) }
func (f *rtFn) retStr(s string)       { f.str(s); f.ret() }

func (f *rtFn) sys(name string, argc int) {
	id, err := f.e.cat.Builtin(name)
	if err != nil {
		if f.e.err == nil {
			f.e.err = err
		}
		id = il.NoMethod
	}
	f.b.EmitAB(il.OpCallStatic, int32(id), int32(argc))
}

func (f *rtFn) call(name string, argc int) {
	f.b.EmitAB(il.OpCallStatic, int32(f.e.fns[name].ID), int32(argc))
}

// kind pushes the raw kind code of locals[slot].
func (f *rtFn) kind(slot int32) {
	f.load(slot)
	f.sys("Sys.Kind.of", 1)
	f.op(il.OpUnboxNum)
}

func (f *rtFn) loadIterField(name string) {
	f.b.EmitAB(il.OpLoadField, int32(f.e.iter.ID), f.e.iter.FieldIndex(name))
}

func (f *rtFn) storeIterField(name string) {
	f.b.EmitAB(il.OpStoreField, int32(f.e.iter.ID), f.e.iter.FieldIndex(name))
}

// incr bumps a boxed counter local by one.
func (f *rtFn) incr(slot int32) {
	f.load(slot)
	f.op(il.OpUnboxNum)
	f.num(1)
	f.op(il.OpAddNum)
	f.op(il.OpBox)
	f.store(slot)
}

// ltLocals pushes locals[a] < locals[b] for two boxed number locals.
func (f *rtFn) ltLocals(a, b int32) {
	f.load(a)
	f.op(il.OpUnboxNum)
	f.load(b)
	f.op(il.OpUnboxNum)
	f.op(il.OpLtNum)
}

// gapNonEmpty pushes whether the gap string in locals[slot] is non-empty.
func (f *rtFn) gapNonEmpty(slot int32) {
	f.load(slot)
	f.sys("Sys.Str.length", 1)
	f.op(il.OpUnboxNum)
	f.num(0)
	f.op(il.OpGtNum)
}

func (e *runtimeEmitter) emitToString() {
	f := e.body("toString")
	b := f.b
	numL, boolL, strL := b.NewLabel(), b.NewLabel(), b.NewLabel()
	nullL, undefL, objL := b.NewLabel(), b.NewLabel(), b.NewLabel()
	arrL, fnL, futL := b.NewLabel(), b.NewLabel(), b.NewLabel()

	f.kind(0)
	b.Switch([]il.Label{numL, boolL, strL, nullL, undefL, objL, arrL, fnL, futL})
	f.retStr("undefined")

	b.Bind(numL)
	f.load(0)
	f.sys("Sys.Num.toString", 1)
	f.ret()

	b.Bind(boolL)
	trueL := b.NewLabel()
	f.load(0)
	f.op(il.OpUnboxBool)
	b.JumpIfTrue(trueL)
	f.retStr("false")
	b.Bind(trueL)
	f.retStr("true")

	b.Bind(strL)
	f.load(0)
	f.ret()
	b.Bind(nullL)
	f.retStr("null")
	b.Bind(undefL)
	f.retStr("undefined")
	b.Bind(objL)
	f.retStr("[object Object]")
	b.Bind(fnL)
	f.retStr("function")
	b.Bind(futL)
	f.retStr("[object Future]")

	// Arrays render as comma-joined element strings.
	b.Bind(arrL)
	acc, i, n := f.tmp(), f.tmp(), f.tmp()
	f.load(0)
	f.sys("Sys.Arr.length", 1)
	f.store(n)
	f.str("")
	f.store(acc)
	f.num(0)
	f.op(il.OpBox)
	f.store(i)
	loop, done, first := b.NewLabel(), b.NewLabel(), b.NewLabel()
	b.Bind(loop)
	f.ltLocals(i, n)
	b.JumpIfFalse(done)
	f.load(i)
	f.op(il.OpUnboxNum)
	f.num(0)
	f.op(il.OpGtNum)
	b.JumpIfFalse(first)
	f.load(acc)
	f.str(",")
	f.op(il.OpConcat)
	f.store(acc)
	b.Bind(first)
	f.load(acc)
	f.load(0)
	f.load(i)
	f.sys("Sys.Arr.get", 2)
	f.call("toString", 1)
	f.op(il.OpConcat)
	f.store(acc)
	f.incr(i)
	b.Jump(loop)
	b.Bind(done)
	f.load(acc)
	f.ret()

	f.finish("toString")
}

func (e *runtimeEmitter) emitTruthy() {
	f := e.body("truthy")
	b := f.b
	numL, boolL, strL := b.NewLabel(), b.NewLabel(), b.NewLabel()
	trueL, falseL := b.NewLabel(), b.NewLabel()

	f.kind(0)
	b.Switch([]il.Label{numL, boolL, strL, falseL, falseL, trueL, trueL, trueL, trueL})
	b.Jump(falseL)

	b.Bind(numL)
	f.load(0)
	f.sys("Sys.Num.isNaN", 1)
	f.op(il.OpUnboxBool)
	b.JumpIfTrue(falseL)
	f.load(0)
	f.op(il.OpUnboxNum)
	f.num(0)
	f.op(il.OpNeNum)
	f.ret()

	b.Bind(boolL)
	f.load(0)
	f.op(il.OpUnboxBool)
	f.ret()

	b.Bind(strL)
	f.gapNonEmpty(0)
	f.ret()

	b.Bind(trueL)
	f.op(il.OpLoadTrue)
	f.ret()
	b.Bind(falseL)
	f.op(il.OpLoadFalse)
	f.ret()

	f.finish("truthy")
}

func (e *runtimeEmitter) emitAdd() {
	f := e.body("add")
	b := f.b
	concatL := b.NewLabel()

	f.kind(0)
	f.num(il.KindCodeNumber)
	f.op(il.OpEqNum)
	b.JumpIfFalse(concatL)
	f.kind(1)
	f.num(il.KindCodeNumber)
	f.op(il.OpEqNum)
	b.JumpIfFalse(concatL)
	f.load(0)
	f.op(il.OpUnboxNum)
	f.load(1)
	f.op(il.OpUnboxNum)
	f.op(il.OpAddNum)
	f.op(il.OpBox)
	f.ret()

	b.Bind(concatL)
	f.load(0)
	f.call("toString", 1)
	f.load(1)
	f.call("toString", 1)
	f.op(il.OpConcat)
	f.ret()

	f.finish("add")
}

func (e *runtimeEmitter) emitEquals() {
	f := e.body("equals")
	b := f.b
	k := f.tmp()
	numL, boolL, strL := b.NewLabel(), b.NewLabel(), b.NewLabel()
	sameL, refL, falseL := b.NewLabel(), b.NewLabel(), b.NewLabel()

	f.kind(0)
	f.op(il.OpBox)
	f.store(k)
	f.kind(1)
	f.load(k)
	f.op(il.OpUnboxNum)
	f.op(il.OpNeNum)
	b.JumpIfTrue(falseL)

	f.load(k)
	f.op(il.OpUnboxNum)
	b.Switch([]il.Label{numL, boolL, strL, sameL, sameL, refL, refL, refL, refL})
	b.Jump(falseL)

	b.Bind(numL)
	f.load(0)
	f.op(il.OpUnboxNum)
	f.load(1)
	f.op(il.OpUnboxNum)
	f.op(il.OpEqNum)
	f.ret()

	b.Bind(boolL)
	aTrue := b.NewLabel()
	f.load(0)
	f.op(il.OpUnboxBool)
	b.JumpIfTrue(aTrue)
	f.load(1)
	f.op(il.OpUnboxBool)
	f.op(il.OpNotBool)
	f.ret()
	b.Bind(aTrue)
	f.load(1)
	f.op(il.OpUnboxBool)
	f.ret()

	b.Bind(strL)
	f.load(0)
	f.load(1)
	f.sys("Sys.Str.eq", 2)
	f.op(il.OpUnboxBool)
	f.ret()

	// Both null or both undefined.
	b.Bind(sameL)
	f.op(il.OpLoadTrue)
	f.ret()

	b.Bind(refL)
	f.load(0)
	f.load(1)
	f.sys("Sys.Obj.refEq", 2)
	f.op(il.OpUnboxBool)
	f.ret()

	b.Bind(falseL)
	f.op(il.OpLoadFalse)
	f.ret()

	f.finish("equals")
}

func (e *runtimeEmitter) emitStrEq() {
	f := e.body("strEq")
	f.load(0)
	f.load(1)
	f.sys("Sys.Str.eq", 2)
	f.op(il.OpUnboxBool)
	f.ret()
	f.finish("strEq")
}

func (e *runtimeEmitter) emitIsNullish() {
	f := e.body("isNullish")
	b := f.b
	yes := b.NewLabel()
	f.kind(0)
	f.num(il.KindCodeNull)
	f.op(il.OpEqNum)
	b.JumpIfTrue(yes)
	f.kind(0)
	f.num(il.KindCodeUndefined)
	f.op(il.OpEqNum)
	f.ret()
	b.Bind(yes)
	f.op(il.OpLoadTrue)
	f.ret()
	f.finish("isNullish")
}

func (e *runtimeEmitter) emitTypeOf() {
	f := e.body("typeOf")
	b := f.b
	numL, boolL, strL := b.NewLabel(), b.NewLabel(), b.NewLabel()
	undefL, objL, fnL := b.NewLabel(), b.NewLabel(), b.NewLabel()

	f.kind(0)
	// null, object, array and future all answer "object".
	b.Switch([]il.Label{numL, boolL, strL, objL, undefL, objL, objL, fnL, objL})
	f.retStr("undefined")

	b.Bind(numL)
	f.retStr("number")
	b.Bind(boolL)
	f.retStr("boolean")
	b.Bind(strL)
	f.retStr("string")
	b.Bind(undefL)
	f.retStr("undefined")
	b.Bind(objL)
	f.retStr("object")
	b.Bind(fnL)
	f.retStr("function")

	f.finish("typeOf")
}

func (e *runtimeEmitter) emitGetProp() {
	f := e.body("getProp")
	b := f.b
	ks := f.tmp()
	strL, objL, arrL, undefL := b.NewLabel(), b.NewLabel(), b.NewLabel(), b.NewLabel()

	f.kind(0)
	b.Switch([]il.Label{undefL, undefL, strL, undefL, undefL, objL, arrL, undefL, undefL})
	b.Jump(undefL)

	// Objects: declared fields shadow extension properties.
	b.Bind(objL)
	haveKey, keyed, extL := b.NewLabel(), b.NewLabel(), b.NewLabel()
	f.kind(1)
	f.num(il.KindCodeString)
	f.op(il.OpEqNum)
	b.JumpIfTrue(haveKey)
	f.load(1)
	f.call("toString", 1)
	f.store(ks)
	b.Jump(keyed)
	b.Bind(haveKey)
	f.load(1)
	f.store(ks)
	b.Bind(keyed)
	f.load(0)
	f.load(ks)
	f.sys("Sys.Obj.hasField", 2)
	f.op(il.OpUnboxBool)
	b.JumpIfFalse(extL)
	f.load(0)
	f.load(ks)
	f.sys("Sys.Obj.getField", 2)
	f.ret()
	b.Bind(extL)
	f.load(0)
	f.load(ks)
	f.sys("Sys.Obj.extHas", 2)
	f.op(il.OpUnboxBool)
	b.JumpIfFalse(undefL)
	f.load(0)
	f.load(ks)
	f.sys("Sys.Obj.extGet", 2)
	f.ret()

	// Arrays: numeric index, "length", bound "push".
	b.Bind(arrL)
	byName, pushL := b.NewLabel(), b.NewLabel()
	f.kind(1)
	f.num(il.KindCodeNumber)
	f.op(il.OpEqNum)
	b.JumpIfFalse(byName)
	f.load(0)
	f.load(1)
	f.sys("Sys.Arr.get", 2)
	f.ret()
	b.Bind(byName)
	f.kind(1)
	f.num(il.KindCodeString)
	f.op(il.OpEqNum)
	b.JumpIfFalse(undefL)
	f.load(1)
	f.str("length")
	f.sys("Sys.Str.eq", 2)
	f.op(il.OpUnboxBool)
	b.JumpIfFalse(pushL)
	f.load(0)
	f.sys("Sys.Arr.length", 1)
	f.ret()
	b.Bind(pushL)
	f.load(1)
	f.str("push")
	f.sys("Sys.Str.eq", 2)
	f.op(il.OpUnboxBool)
	b.JumpIfFalse(undefL)
	f.load(0)
	f.b.EmitA(il.OpNewDelegate, int32(e.fns["push"].ID))
	f.ret()

	// Strings: numeric index yields a one-character string.
	b.Bind(strL)
	nameL := b.NewLabel()
	f.kind(1)
	f.num(il.KindCodeNumber)
	f.op(il.OpEqNum)
	b.JumpIfFalse(nameL)
	f.load(0)
	f.load(1)
	f.load(1)
	f.op(il.OpUnboxNum)
	f.num(1)
	f.op(il.OpAddNum)
	f.op(il.OpBox)
	f.sys("Sys.Str.substring", 3)
	f.ret()
	b.Bind(nameL)
	f.kind(1)
	f.num(il.KindCodeString)
	f.op(il.OpEqNum)
	b.JumpIfFalse(undefL)
	f.load(1)
	f.str("length")
	f.sys("Sys.Str.eq", 2)
	f.op(il.OpUnboxBool)
	b.JumpIfFalse(undefL)
	f.load(0)
	f.sys("Sys.Str.length", 1)
	f.ret()

	b.Bind(undefL)
	f.op(il.OpLoadUndef)
	f.ret()

	f.finish("getProp")
}

func (e *runtimeEmitter) emitSetProp() {
	f := e.body("setProp")
	b := f.b
	ks := f.tmp()
	objL, arrL, done := b.NewLabel(), b.NewLabel(), b.NewLabel()

	f.kind(0)
	b.Switch([]il.Label{done, done, done, done, done, objL, arrL, done, done})
	b.Jump(done)

	b.Bind(objL)
	haveKey, keyed, extL := b.NewLabel(), b.NewLabel(), b.NewLabel()
	f.kind(1)
	f.num(il.KindCodeString)
	f.op(il.OpEqNum)
	b.JumpIfTrue(haveKey)
	f.load(1)
	f.call("toString", 1)
	f.store(ks)
	b.Jump(keyed)
	b.Bind(haveKey)
	f.load(1)
	f.store(ks)
	b.Bind(keyed)
	f.load(0)
	f.load(ks)
	f.sys("Sys.Obj.hasField", 2)
	f.op(il.OpUnboxBool)
	b.JumpIfFalse(extL)
	f.load(0)
	f.load(ks)
	f.load(2)
	f.sys("Sys.Obj.setField", 3)
	f.op(il.OpPop)
	b.Jump(done)
	b.Bind(extL)
	f.load(0)
	f.load(ks)
	f.load(2)
	f.sys("Sys.Obj.extSet", 3)
	f.op(il.OpPop)
	b.Jump(done)

	b.Bind(arrL)
	f.kind(1)
	f.num(il.KindCodeNumber)
	f.op(il.OpEqNum)
	b.JumpIfFalse(done)
	f.load(0)
	f.load(1)
	f.load(2)
	f.sys("Sys.Arr.set", 3)
	f.op(il.OpPop)
	b.Jump(done)

	b.Bind(done)
	f.op(il.OpLoadUndef)
	f.ret()

	f.finish("setProp")
}

func (e *runtimeEmitter) emitGetIterator() {
	f := e.body("getIterator")
	b := f.b
	it := f.tmp()
	strI, objL, arrI, errL := b.NewLabel(), b.NewLabel(), b.NewLabel(), b.NewLabel()

	f.kind(0)
	b.Switch([]il.Label{errL, errL, strI, errL, errL, objL, arrI, errL, errL})
	b.Jump(errL)

	// Objects are assumed to carry their own "next" (generator machines
	// and user-written iterators).
	b.Bind(objL)
	f.load(0)
	f.ret()

	mk := func(kindCode float64) {
		f.b.EmitA(il.OpNewObject, int32(e.iter.ID))
		f.store(it)
		f.load(it)
		f.load(0)
		f.storeIterField("@src")
		f.load(it)
		f.num(0)
		f.op(il.OpBox)
		f.storeIterField("@i")
		f.load(it)
		f.num(kindCode)
		f.op(il.OpBox)
		f.storeIterField("@kind")
		f.load(it)
		f.str("next")
		f.load(it)
		f.b.EmitA(il.OpNewDelegate, int32(e.fns["next"].ID))
		f.sys("Sys.Obj.extSet", 3)
		f.op(il.OpPop)
		f.load(it)
		f.ret()
	}
	b.Bind(arrI)
	mk(0)
	b.Bind(strI)
	mk(1)

	b.Bind(errL)
	f.str("TypeError: value is not iterable")
	f.op(il.OpThrow)

	f.finish("getIterator")
}

func (e *runtimeEmitter) emitIterNext() {
	f := e.body("next")
	b := f.b
	n, v, r := f.tmp(), f.tmp(), f.tmp()
	strLen, haveLen, strGet := b.NewLabel(), b.NewLabel(), b.NewLabel()
	haveVal, doneL := b.NewLabel(), b.NewLabel()

	f.load(0)
	f.loadIterField("@kind")
	f.op(il.OpUnboxNum)
	f.num(0)
	f.op(il.OpEqNum)
	b.JumpIfFalse(strLen)
	f.load(0)
	f.loadIterField("@src")
	f.sys("Sys.Arr.length", 1)
	b.Jump(haveLen)
	b.Bind(strLen)
	f.load(0)
	f.loadIterField("@src")
	f.sys("Sys.Str.length", 1)
	b.Bind(haveLen)
	f.store(n)

	f.load(0)
	f.loadIterField("@i")
	f.op(il.OpUnboxNum)
	f.load(n)
	f.op(il.OpUnboxNum)
	f.op(il.OpLtNum)
	b.JumpIfFalse(doneL)

	f.load(0)
	f.loadIterField("@kind")
	f.op(il.OpUnboxNum)
	f.num(0)
	f.op(il.OpEqNum)
	b.JumpIfFalse(strGet)
	f.load(0)
	f.loadIterField("@src")
	f.load(0)
	f.loadIterField("@i")
	f.sys("Sys.Arr.get", 2)
	b.Jump(haveVal)
	b.Bind(strGet)
	f.load(0)
	f.loadIterField("@src")
	f.load(0)
	f.loadIterField("@i")
	f.load(0)
	f.loadIterField("@i")
	f.op(il.OpUnboxNum)
	f.num(1)
	f.op(il.OpAddNum)
	f.op(il.OpBox)
	f.sys("Sys.Str.substring", 3)
	b.Bind(haveVal)
	f.store(v)

	f.load(0)
	f.load(0)
	f.loadIterField("@i")
	f.op(il.OpUnboxNum)
	f.num(1)
	f.op(il.OpAddNum)
	f.op(il.OpBox)
	f.storeIterField("@i")

	f.iterResult(r, func() { f.load(v) }, false)
	b.Bind(doneL)
	f.iterResult(r, func() { f.op(il.OpLoadUndef) }, true)

	f.finish("next")
}

// iterResult builds {value, done} and returns it.
func (f *rtFn) iterResult(r int32, loadValue func(), done bool) {
	f.op(il.OpNewPlain)
	f.store(r)
	f.load(r)
	f.str("value")
	loadValue()
	f.sys("Sys.Obj.extSet", 3)
	f.op(il.OpPop)
	f.load(r)
	f.str("done")
	if done {
		f.op(il.OpLoadTrue)
	} else {
		f.op(il.OpLoadFalse)
	}
	f.op(il.OpBox)
	f.sys("Sys.Obj.extSet", 3)
	f.op(il.OpPop)
	f.load(r)
	f.ret()
}

func (e *runtimeEmitter) emitArrayPush() {
	f := e.body("push")
	f.load(0)
	f.load(1)
	f.sys("Sys.Arr.push", 2)
	f.ret()
	f.finish("push")
}

// --- JSON encoding ---

// jsonEncode(value, replacer, indent). An array replacer acts as a key
// allowlist; a function replacer maps each (key, value) pair before
// encoding, starting with the root under the empty key. Indent may be a
// count of spaces (clamped to 10) or a gap string (first ten chars).
// Cyclic values are not detected and recurse until the frame budget
// trips.
func (e *runtimeEmitter) emitJSONEncode() {
	f := e.body("jsonEncode")
	b := f.b
	g := f.tmp()
	f.load(2)
	f.call("jsonGap", 1)
	f.store(g)
	noFn := b.NewLabel()
	f.kind(1)
	f.num(il.KindCodeFunction)
	f.op(il.OpEqNum)
	b.JumpIfFalse(noFn)
	f.load(1)
	f.str("")
	f.load(0)
	f.b.EmitAB(il.OpCallDyn, 0, 2)
	f.store(0)
	b.Bind(noFn)
	f.load(0)
	f.load(1)
	f.load(g)
	f.str("")
	f.call("jsonValue", 4)
	f.ret()
	f.finish("jsonEncode")
}

func (e *runtimeEmitter) emitJSONGap() {
	f := e.body("jsonGap")
	b := f.b
	strL, numL := b.NewLabel(), b.NewLabel()

	f.kind(0)
	f.num(il.KindCodeString)
	f.op(il.OpEqNum)
	b.JumpIfTrue(strL)
	f.kind(0)
	f.num(il.KindCodeNumber)
	f.op(il.OpEqNum)
	b.JumpIfTrue(numL)
	f.retStr("")

	// String gaps are capped at their first ten characters, mirroring
	// the ten-space cap on numeric gaps.
	b.Bind(strL)
	shortL := b.NewLabel()
	f.load(0)
	f.sys("Sys.Str.length", 1)
	f.op(il.OpUnboxNum)
	f.num(10)
	f.op(il.OpGtNum)
	b.JumpIfFalse(shortL)
	f.load(0)
	f.num(0)
	f.op(il.OpBox)
	f.num(10)
	f.op(il.OpBox)
	f.sys("Sys.Str.substring", 3)
	f.ret()
	b.Bind(shortL)
	f.load(0)
	f.ret()

	b.Bind(numL)
	acc, i := f.tmp(), f.tmp()
	f.str("")
	f.store(acc)
	f.num(0)
	f.op(il.OpBox)
	f.store(i)
	loop, done := b.NewLabel(), b.NewLabel()
	b.Bind(loop)
	f.load(i)
	f.op(il.OpUnboxNum)
	f.load(0)
	f.op(il.OpUnboxNum)
	f.op(il.OpLtNum)
	b.JumpIfFalse(done)
	f.load(i)
	f.op(il.OpUnboxNum)
	f.num(10)
	f.op(il.OpLtNum)
	b.JumpIfFalse(done)
	f.load(acc)
	f.str(" ")
	f.op(il.OpConcat)
	f.store(acc)
	f.incr(i)
	b.Jump(loop)
	b.Bind(done)
	f.load(acc)
	f.ret()

	f.finish("jsonGap")
}

// jsonValue(v, replacer, gap, indent) renders one value at the given
// indentation. Unsupported kinds (undefined, functions, futures) render
// as null; object members of those kinds are dropped by jsonObject
// before this runs.
func (e *runtimeEmitter) emitJSONValue() {
	f := e.body("jsonValue")
	b := f.b
	numL, boolL, strL := b.NewLabel(), b.NewLabel(), b.NewLabel()
	nullL, objL, arrL := b.NewLabel(), b.NewLabel(), b.NewLabel()

	f.kind(0)
	b.Switch([]il.Label{numL, boolL, strL, nullL, nullL, objL, arrL, nullL, nullL})
	b.Jump(nullL)

	b.Bind(numL)
	f.load(0)
	f.sys("Sys.Num.isNaN", 1)
	f.op(il.OpUnboxBool)
	b.JumpIfTrue(nullL)
	f.load(0)
	f.sys("Sys.Num.toString", 1)
	f.ret()

	b.Bind(boolL)
	trueL := b.NewLabel()
	f.load(0)
	f.op(il.OpUnboxBool)
	b.JumpIfTrue(trueL)
	f.retStr("false")
	b.Bind(trueL)
	f.retStr("true")

	b.Bind(strL)
	f.load(0)
	f.sys("Sys.Str.quote", 1)
	f.ret()

	b.Bind(arrL)
	f.load(0)
	f.load(1)
	f.load(2)
	f.load(3)
	f.call("jsonArray", 4)
	f.ret()

	b.Bind(objL)
	f.load(0)
	f.load(1)
	f.load(2)
	f.load(3)
	f.call("jsonObject", 4)
	f.ret()

	b.Bind(nullL)
	f.retStr("null")

	f.finish("jsonValue")
}

func (e *runtimeEmitter) emitJSONArray() {
	f := e.body("jsonArray")
	b := f.b
	inner, n, i, acc, el := f.tmp(), f.tmp(), f.tmp(), f.tmp(), f.tmp()

	f.load(3)
	f.load(2)
	f.op(il.OpConcat)
	f.store(inner)
	f.load(0)
	f.sys("Sys.Arr.length", 1)
	f.store(n)
	f.num(0)
	f.op(il.OpBox)
	f.store(i)
	f.str("[")
	f.store(acc)

	loop, done, sep, flat := b.NewLabel(), b.NewLabel(), b.NewLabel(), b.NewLabel()
	b.Bind(loop)
	f.ltLocals(i, n)
	b.JumpIfFalse(done)
	f.load(i)
	f.op(il.OpUnboxNum)
	f.num(0)
	f.op(il.OpGtNum)
	b.JumpIfFalse(sep)
	f.load(acc)
	f.str(",")
	f.op(il.OpConcat)
	f.store(acc)
	b.Bind(sep)
	f.gapNonEmpty(2)
	b.JumpIfFalse(flat)
	f.load(acc)
	f.str("\n")
	f.op(il.OpConcat)
	f.load(inner)
	f.op(il.OpConcat)
	f.store(acc)
	b.Bind(flat)
	f.load(0)
	f.load(i)
	f.sys("Sys.Arr.get", 2)
	f.store(el)

	// A function replacer sees the element index as its key; elements
	// it maps to undefined still render as null.
	noFn := b.NewLabel()
	f.kind(1)
	f.num(il.KindCodeFunction)
	f.op(il.OpEqNum)
	b.JumpIfFalse(noFn)
	f.load(1)
	f.load(i)
	f.call("toString", 1)
	f.load(el)
	f.b.EmitAB(il.OpCallDyn, 0, 2)
	f.store(el)
	b.Bind(noFn)

	f.load(acc)
	f.load(el)
	f.load(1)
	f.load(2)
	f.load(inner)
	f.call("jsonValue", 4)
	f.op(il.OpConcat)
	f.store(acc)
	f.incr(i)
	b.Jump(loop)

	b.Bind(done)
	closeFlat := b.NewLabel()
	f.gapNonEmpty(2)
	b.JumpIfFalse(closeFlat)
	f.load(n)
	f.op(il.OpUnboxNum)
	f.num(0)
	f.op(il.OpGtNum)
	b.JumpIfFalse(closeFlat)
	f.load(acc)
	f.str("\n")
	f.op(il.OpConcat)
	f.load(3)
	f.op(il.OpConcat)
	f.store(acc)
	b.Bind(closeFlat)
	f.load(acc)
	f.str("]")
	f.op(il.OpConcat)
	f.ret()

	f.finish("jsonArray")
}

func (e *runtimeEmitter) emitJSONObject() {
	f := e.body("jsonObject")
	b := f.b
	inner, keys, n, i := f.tmp(), f.tmp(), f.tmp(), f.tmp()
	acc, cnt, key, v, kv := f.tmp(), f.tmp(), f.tmp(), f.tmp(), f.tmp()

	f.load(3)
	f.load(2)
	f.op(il.OpConcat)
	f.store(inner)
	f.load(0)
	f.sys("Sys.Obj.keys", 1)
	f.store(keys)
	f.load(keys)
	f.sys("Sys.Arr.length", 1)
	f.store(n)
	f.num(0)
	f.op(il.OpBox)
	f.store(i)
	f.num(0)
	f.op(il.OpBox)
	f.store(cnt)
	f.str("{")
	f.store(acc)

	loop, done, next := b.NewLabel(), b.NewLabel(), b.NewLabel()
	pass, sep, flatNL, flatSp := b.NewLabel(), b.NewLabel(), b.NewLabel(), b.NewLabel()
	b.Bind(loop)
	f.ltLocals(i, n)
	b.JumpIfFalse(done)
	f.load(keys)
	f.load(i)
	f.sys("Sys.Arr.get", 2)
	f.store(key)

	f.kind(1)
	f.num(il.KindCodeArray)
	f.op(il.OpEqNum)
	b.JumpIfFalse(pass)
	f.load(1)
	f.load(key)
	f.call("jsonAllowed", 2)
	b.JumpIfFalse(next)
	b.Bind(pass)

	f.load(0)
	f.load(key)
	f.call("getProp", 2)
	f.store(v)

	// A function replacer maps the pair before the drop checks, so a
	// mapping to undefined drops the member.
	noFn := b.NewLabel()
	f.kind(1)
	f.num(il.KindCodeFunction)
	f.op(il.OpEqNum)
	b.JumpIfFalse(noFn)
	f.load(1)
	f.load(key)
	f.load(v)
	f.b.EmitAB(il.OpCallDyn, 0, 2)
	f.store(v)
	b.Bind(noFn)

	f.load(v)
	f.sys("Sys.Kind.of", 1)
	f.store(kv)
	f.load(kv)
	f.op(il.OpUnboxNum)
	f.num(il.KindCodeUndefined)
	f.op(il.OpEqNum)
	b.JumpIfTrue(next)
	f.load(kv)
	f.op(il.OpUnboxNum)
	f.num(il.KindCodeFunction)
	f.op(il.OpEqNum)
	b.JumpIfTrue(next)

	f.load(cnt)
	f.op(il.OpUnboxNum)
	f.num(0)
	f.op(il.OpGtNum)
	b.JumpIfFalse(sep)
	f.load(acc)
	f.str(",")
	f.op(il.OpConcat)
	f.store(acc)
	b.Bind(sep)
	f.gapNonEmpty(2)
	b.JumpIfFalse(flatNL)
	f.load(acc)
	f.str("\n")
	f.op(il.OpConcat)
	f.load(inner)
	f.op(il.OpConcat)
	f.store(acc)
	b.Bind(flatNL)
	f.load(acc)
	f.load(key)
	f.sys("Sys.Str.quote", 1)
	f.op(il.OpConcat)
	f.str(":")
	f.op(il.OpConcat)
	f.store(acc)
	f.gapNonEmpty(2)
	b.JumpIfFalse(flatSp)
	f.load(acc)
	f.str(" ")
	f.op(il.OpConcat)
	f.store(acc)
	b.Bind(flatSp)
	f.load(acc)
	f.load(v)
	f.load(1)
	f.load(2)
	f.load(inner)
	f.call("jsonValue", 4)
	f.op(il.OpConcat)
	f.store(acc)
	f.incr(cnt)
	b.Bind(next)
	f.incr(i)
	b.Jump(loop)

	b.Bind(done)
	closeFlat := b.NewLabel()
	f.gapNonEmpty(2)
	b.JumpIfFalse(closeFlat)
	f.load(cnt)
	f.op(il.OpUnboxNum)
	f.num(0)
	f.op(il.OpGtNum)
	b.JumpIfFalse(closeFlat)
	f.load(acc)
	f.str("\n")
	f.op(il.OpConcat)
	f.load(3)
	f.op(il.OpConcat)
	f.store(acc)
	b.Bind(closeFlat)
	f.load(acc)
	f.str("}")
	f.op(il.OpConcat)
	f.ret()

	f.finish("jsonObject")
}

// jsonAllowed reports (raw boolean) whether key appears in an array
// replacer. Non-string entries are ignored.
func (e *runtimeEmitter) emitJSONAllowed() {
	f := e.body("jsonAllowed")
	b := f.b
	n, i := f.tmp(), f.tmp()
	loop, skip, yes, no := b.NewLabel(), b.NewLabel(), b.NewLabel(), b.NewLabel()

	f.load(0)
	f.sys("Sys.Arr.length", 1)
	f.store(n)
	f.num(0)
	f.op(il.OpBox)
	f.store(i)

	b.Bind(loop)
	f.ltLocals(i, n)
	b.JumpIfFalse(no)
	f.load(0)
	f.load(i)
	f.sys("Sys.Arr.get", 2)
	f.op(il.OpDup)
	f.sys("Sys.Kind.of", 1)
	f.op(il.OpUnboxNum)
	f.num(il.KindCodeString)
	f.op(il.OpEqNum)
	b.JumpIfFalse(skip)
	f.load(1)
	f.sys("Sys.Str.eq", 2)
	f.op(il.OpUnboxBool)
	b.JumpIfTrue(yes)
	f.incr(i)
	b.Jump(loop)
	b.Bind(skip)
	f.op(il.OpPop)
	f.incr(i)
	b.Jump(loop)

	b.Bind(no)
	f.op(il.OpLoadFalse)
	f.ret()
	b.Bind(yes)
	f.op(il.OpLoadTrue)
	f.ret()

	f.finish("jsonAllowed")
}
