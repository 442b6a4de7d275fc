package vm

import (
	"fmt"
	"io"
	"math"
	"os"

	"kestrel/pkg/il"
)

// Trace is delivered to the instrumentation hook after every executed
// instruction: the physical kind on top of the operand stack is what
// compile-time stack-type tracking must agree with.
type Trace struct {
	Method il.MethodID
	PC     int
	Op     il.OpCode
	Top    Kind
	HasTop bool
	Depth  int
}

// VM is the reference execution target: a managed, stack-based
// evaluator for il programs. It is test and tooling infrastructure; the
// emitted artifact itself never depends on the compiler process.
type VM struct {
	prog    *il.Program
	statics map[il.TypeID][]Value
	slots   [][]Value
	queue   []task
	Stdout  io.Writer

	// Instrument, when set, observes every executed instruction.
	Instrument func(Trace)
}

type task struct {
	fn    *Delegate
	val   Value
	isErr bool
}

// thrown carries a raised managed value through Go error returns.
type thrown struct {
	val Value
}

func (t *thrown) Error() string {
	return fmt.Sprintf("Runtime Error: uncaught %s", t.val.Display())
}

// Thrown extracts the managed value from an execution error, if the
// error represents a raised value.
func Thrown(err error) (Value, bool) {
	if t, ok := err.(*thrown); ok {
		return t.val, true
	}
	return Undefined, false
}

// New creates a VM for a linked program.
func New(p *il.Program) *VM {
	vm := &VM{
		prog:    p,
		statics: make(map[il.TypeID][]Value),
		slots:   make([][]Value, len(p.Modules)),
		Stdout:  os.Stdout,
	}
	for _, t := range p.Types {
		if len(t.StaticFields) > 0 {
			st := make([]Value, len(t.StaticFields))
			for i := range st {
				st[i] = Undefined
			}
			vm.statics[t.ID] = st
		}
	}
	for i, m := range p.Modules {
		vm.slots[i] = make([]Value, len(m.Slots))
		for j := range vm.slots[i] {
			vm.slots[i][j] = Undefined
		}
	}
	return vm
}

// Run executes the boot sequence (module inits in dependency order),
// then drains the microtask queue. The returned value is the entry
// module's completion value.
func (vm *VM) Run() (Value, error) {
	var last Value
	for _, id := range vm.prog.Boot {
		v, err := vm.Call(id, Undefined, nil)
		if err != nil {
			return Undefined, err
		}
		if id == vm.prog.Entry {
			last = v
		}
	}
	if err := vm.Drain(); err != nil {
		return Undefined, err
	}
	return last, nil
}

// Drain runs scheduled microtasks in FIFO order until the queue empties.
func (vm *VM) Drain() error {
	for len(vm.queue) > 0 {
		t := vm.queue[0]
		vm.queue = vm.queue[1:]
		if t.fn.Method == chainMethod {
			// Future chaining continuation: settle the outer future the
			// way the inner one settled.
			outer := t.fn.Target.Fut()
			vm.settleFuture(outer, t.val, t.isErr)
			continue
		}
		if _, err := vm.Call(t.fn.Method, t.fn.Target, []Value{t.val, Bool(t.isErr)}); err != nil {
			return err
		}
	}
	return nil
}

func (vm *VM) schedule(d *Delegate, v Value, isErr bool) {
	vm.queue = append(vm.queue, task{fn: d, val: v, isErr: isErr})
}

// Invoke calls a managed function value with the given arguments and
// then drains any microtasks it scheduled.
func (vm *VM) Invoke(fn Value, args ...Value) (Value, error) {
	if fn.Kind() != KindFunction {
		return Undefined, &thrown{val: String("TypeError: value is not callable")}
	}
	return vm.Call(fn.Fn().Method, fn.Fn().Target, args)
}

// ModuleSlot reads an exported value of a linked module, following
// re-export chains to the origin slot.
func (vm *VM) ModuleSlot(module, export string) (Value, bool) {
	for hops := 0; hops < 64; hops++ {
		idx := -1
		for i, m := range vm.prog.Modules {
			if m.Name == module {
				idx = i
				break
			}
		}
		if idx < 0 {
			return Undefined, false
		}
		exp, ok := vm.prog.Modules[idx].Exports[export]
		if !ok {
			return Undefined, false
		}
		if exp.From != "" {
			module, export = exp.From, exp.Imported
			continue
		}
		return vm.slots[idx][exp.Slot], true
	}
	return Undefined, false
}

// Call invokes a method handle directly.
func (vm *VM) Call(id il.MethodID, recv Value, args []Value) (Value, error) {
	m := vm.prog.MethodByID(id)
	if m == nil {
		return Undefined, fmt.Errorf("Runtime Error: invalid method handle M%d", id)
	}
	if m.Intrinsic != il.IntrNone {
		return vm.intrinsic(m.Intrinsic, args)
	}
	locals := make([]Value, m.NumLocals)
	for i := range locals {
		locals[i] = Undefined
	}
	base := 0
	if m.IsInstance() {
		locals[0] = recv
		base = 1
	}
	for i := 0; i < m.NumParams && i < len(args); i++ {
		locals[base+i] = args[i]
	}
	return vm.exec(m, locals)
}

// unwindRec tracks an in-flight exception travelling through an
// unwind-path finally block.
type unwindRec struct {
	err    Value
	region int
}

func (vm *VM) exec(m *il.Method, locals []Value) (Value, error) {
	stack := make([]Value, 0, 16)
	var unwinds []unwindRec
	pc := 0

	push := func(v Value) { stack = append(stack, v) }
	pop := func() Value {
		v := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		return v
	}

	// raise routes a managed exception: catch handler, unwind-path
	// finally, or propagation out of the frame. pastRegion < 0 starts a
	// fresh search; otherwise only regions strictly enclosing pastRegion
	// are considered (the unwind already passed through it).
	raise := func(at int, errv Value, pastRegion int) (int, bool) {
		best := -1
		for i, r := range m.Regions {
			if !r.Covers(at) {
				continue
			}
			if pastRegion >= 0 {
				pr := m.Regions[pastRegion]
				if !(r.Start <= pr.Start && r.End >= pr.End && i != pastRegion) {
					continue
				}
			}
			if best < 0 {
				best = i
				continue
			}
			b := m.Regions[best]
			if r.End-r.Start < b.End-b.Start {
				best = i
			}
		}
		if best < 0 {
			return 0, false
		}
		r := m.Regions[best]
		stack = stack[:0]
		if r.Handler >= 0 {
			locals[r.CatchSlot] = errv.Box()
			return r.Handler, true
		}
		unwinds = append(unwinds, unwindRec{err: errv, region: best})
		return r.Finally, true
	}

	for pc < len(m.Code) {
		ins := m.Code[pc]
		next := pc + 1
		var raised *Value

		switch ins.Op {
		case il.OpNop:
		case il.OpLoadNum:
			push(RawNumber(m.Nums[ins.A]))
		case il.OpLoadStr:
			push(String(m.Strs[ins.A]))
		case il.OpLoadTrue:
			push(RawBool(true))
		case il.OpLoadFalse:
			push(RawBool(false))
		case il.OpLoadNull:
			push(Null)
		case il.OpLoadUndef:
			push(Undefined)

		case il.OpDup:
			push(stack[len(stack)-1])
		case il.OpPop:
			pop()
		case il.OpSwap:
			n := len(stack)
			stack[n-1], stack[n-2] = stack[n-2], stack[n-1]

		case il.OpBox:
			push(pop().Box())
		case il.OpUnboxNum:
			push(RawNumber(pop().AsNumber()))
		case il.OpUnboxBool:
			push(RawBool(pop().Truthy()))

		case il.OpAddNum:
			b, a := pop(), pop()
			push(RawNumber(a.Num() + b.Num()))
		case il.OpSubNum:
			b, a := pop(), pop()
			push(RawNumber(a.Num() - b.Num()))
		case il.OpMulNum:
			b, a := pop(), pop()
			push(RawNumber(a.Num() * b.Num()))
		case il.OpDivNum:
			b, a := pop(), pop()
			push(RawNumber(a.Num() / b.Num()))
		case il.OpRemNum:
			b, a := pop(), pop()
			push(RawNumber(math.Mod(a.Num(), b.Num())))
		case il.OpPowNum:
			b, a := pop(), pop()
			push(RawNumber(math.Pow(a.Num(), b.Num())))
		case il.OpNegNum:
			push(RawNumber(-pop().Num()))

		case il.OpEqNum:
			b, a := pop(), pop()
			push(RawBool(a.Num() == b.Num()))
		case il.OpNeNum:
			b, a := pop(), pop()
			push(RawBool(a.Num() != b.Num()))
		case il.OpLtNum:
			b, a := pop(), pop()
			push(RawBool(a.Num() < b.Num()))
		case il.OpLeNum:
			b, a := pop(), pop()
			push(RawBool(a.Num() <= b.Num()))
		case il.OpGtNum:
			b, a := pop(), pop()
			push(RawBool(a.Num() > b.Num()))
		case il.OpGeNum:
			b, a := pop(), pop()
			push(RawBool(a.Num() >= b.Num()))
		case il.OpNotBool:
			push(RawBool(pop().Num() == 0))

		case il.OpConcat:
			b, a := pop(), pop()
			push(String(a.Str() + b.Str()))

		case il.OpLoadLocal:
			push(locals[ins.A])
		case il.OpStoreLocal:
			locals[ins.A] = pop()

		case il.OpLoadField:
			obj := pop()
			if obj.Kind() != KindObject {
				v := String("TypeError: field access on non-object")
				raised = &v
				break
			}
			push(obj.Obj().Fields[ins.B])
		case il.OpStoreField:
			val := pop()
			obj := pop()
			if obj.Kind() != KindObject {
				v := String("TypeError: field store on non-object")
				raised = &v
				break
			}
			obj.Obj().Fields[ins.B] = val

		case il.OpLoadStatic:
			push(vm.statics[il.TypeID(ins.A)][ins.B])
		case il.OpStoreStatic:
			vm.statics[il.TypeID(ins.A)][ins.B] = pop()

		case il.OpLoadSlot:
			ref := m.SlotRefs[ins.A]
			if ref.ModuleIdx < 0 {
				return Undefined, fmt.Errorf("Runtime Error: unlinked slot ref %s:%s", ref.Module, ref.Name)
			}
			push(vm.slots[ref.ModuleIdx][ref.Slot])
		case il.OpStoreSlot:
			ref := m.SlotRefs[ins.A]
			if ref.ModuleIdx < 0 {
				return Undefined, fmt.Errorf("Runtime Error: unlinked slot ref %s:%s", ref.Module, ref.Name)
			}
			vm.slots[ref.ModuleIdx][ref.Slot] = pop()

		case il.OpNewObject:
			t := vm.prog.TypeByID(il.TypeID(ins.A))
			push(ObjectVal(NewObject(t)))
		case il.OpNewPlain:
			push(ObjectVal(NewPlain()))
		case il.OpNewArray:
			n := int(ins.A)
			a := &Array{Elems: make([]Value, n)}
			for i := n - 1; i >= 0; i-- {
				a.Elems[i] = pop()
			}
			push(ArrayVal(a))

		case il.OpCallStatic, il.OpCallMethod:
			argc := int(ins.B)
			args := make([]Value, argc)
			for i := argc - 1; i >= 0; i-- {
				args[i] = pop()
			}
			recv := Undefined
			if ins.Op == il.OpCallMethod {
				recv = pop()
			}
			res, err := vm.Call(il.MethodID(ins.A), recv, args)
			if err != nil {
				if tv, ok := Thrown(err); ok {
					raised = &tv
					break
				}
				return Undefined, err
			}
			push(res)

		case il.OpCallDyn:
			argc := int(ins.B)
			args := make([]Value, argc)
			for i := argc - 1; i >= 0; i-- {
				args[i] = pop()
			}
			callee := pop()
			if callee.Kind() != KindFunction {
				v := String("TypeError: value is not callable")
				raised = &v
				break
			}
			res, err := vm.Call(callee.Fn().Method, callee.Fn().Target, args)
			if err != nil {
				if tv, ok := Thrown(err); ok {
					raised = &tv
					break
				}
				return Undefined, err
			}
			push(res)

		case il.OpNewDelegate:
			target := pop()
			push(FuncVal(&Delegate{Method: il.MethodID(ins.A), Target: target}))

		case il.OpJump:
			next = int(ins.A)
		case il.OpJumpIfFalse:
			if pop().Num() == 0 {
				next = int(ins.A)
			}
		case il.OpJumpIfTrue:
			if pop().Num() != 0 {
				next = int(ins.A)
			}
		case il.OpSwitch:
			idx := int(pop().Num())
			table := m.Tables[ins.A]
			if idx >= 0 && idx < len(table) {
				next = table[idx]
			}

		case il.OpReturn:
			vm.trace(m, pc, ins.Op, stack)
			return pop(), nil
		case il.OpReturnUndef:
			vm.trace(m, pc, ins.Op, stack)
			return Undefined, nil

		case il.OpThrow:
			v := pop()
			raised = &v

		case il.OpEndFinally:
			if len(unwinds) == 0 {
				return Undefined, fmt.Errorf("Runtime Error: END_FINALLY outside unwind in %s", m.Name)
			}
			u := unwinds[len(unwinds)-1]
			unwinds = unwinds[:len(unwinds)-1]
			// Continue unwinding past the finally's own region.
			if t, ok := raiseFrom(m, u, &stack, locals, &unwinds); ok {
				next = t
			} else {
				return Undefined, &thrown{val: u.err}
			}

		default:
			return Undefined, fmt.Errorf("Runtime Error: unknown opcode %d in %s", ins.Op, m.Name)
		}

		if raised != nil {
			if t, ok := raise(pc, *raised, -1); ok {
				next = t
			} else {
				return Undefined, &thrown{val: *raised}
			}
		}

		vm.trace(m, pc, ins.Op, stack)
		pc = next
	}
	return Undefined, nil
}

// raiseFrom resumes an unwind after a finally block completed: the
// exception continues looking for enclosing regions of the region whose
// finally just ran.
func raiseFrom(m *il.Method, u unwindRec, stack *[]Value, locals []Value, unwinds *[]unwindRec) (int, bool) {
	prev := m.Regions[u.region]
	at := prev.Start
	best := -1
	for i, r := range m.Regions {
		if !r.Covers(at) {
			continue
		}
		if !(r.Start <= prev.Start && r.End >= prev.End && i != u.region) {
			continue
		}
		if best < 0 {
			best = i
			continue
		}
		b := m.Regions[best]
		if r.End-r.Start < b.End-b.Start {
			best = i
		}
	}
	if best < 0 {
		return 0, false
	}
	r := m.Regions[best]
	*stack = (*stack)[:0]
	if r.Handler >= 0 {
		locals[r.CatchSlot] = u.err.Box()
		return r.Handler, true
	}
	*unwinds = append(*unwinds, unwindRec{err: u.err, region: best})
	return r.Finally, true
}

func (vm *VM) trace(m *il.Method, pc int, op il.OpCode, stack []Value) {
	if vm.Instrument == nil {
		return
	}
	tr := Trace{Method: m.ID, PC: pc, Op: op, Depth: len(stack)}
	if len(stack) > 0 {
		tr.Top = stack[len(stack)-1].Kind()
		tr.HasTop = true
	}
	vm.Instrument(tr)
}
