package il

import "fmt"

// Label is a forward-patchable jump target handle.
type Label int

// Builder assembles one Method: instruction append, constant-pool
// interning, label binding with forward patching, switch tables and
// protected-region records.
type Builder struct {
	m       *Method
	labels  []int // label -> pc, -1 while unbound
	patches []patch
	tables  []pendingTable
	line    int32
}

type patch struct {
	pc    int
	label Label
}

type pendingTable struct {
	idx    int
	labels []Label
}

// NewBuilder starts a method. Owner is NoType for static methods.
func NewBuilder(name string, owner TypeID) *Builder {
	return &Builder{
		m: &Method{
			ID:    NoMethod,
			Name:  name,
			Owner: owner,
		},
	}
}

// SetLine sets the sticky source line recorded on subsequent instructions.
func (b *Builder) SetLine(line int) { b.line = int32(line) }

// Here returns the pc of the next instruction to be emitted.
func (b *Builder) Here() int { return len(b.m.Code) }

// Emit appends an instruction with no operands.
func (b *Builder) Emit(op OpCode) {
	b.m.Code = append(b.m.Code, Instr{Op: op, Line: b.line})
}

// EmitA appends an instruction with one operand.
func (b *Builder) EmitA(op OpCode, a int32) {
	b.m.Code = append(b.m.Code, Instr{Op: op, A: a, Line: b.line})
}

// EmitAB appends an instruction with two operands.
func (b *Builder) EmitAB(op OpCode, a, bOp int32) {
	b.m.Code = append(b.m.Code, Instr{Op: op, A: a, B: bOp, Line: b.line})
}

// Num interns a numeric constant and returns its pool index.
func (b *Builder) Num(v float64) int32 {
	for i, n := range b.m.Nums {
		if n == v {
			return int32(i)
		}
	}
	b.m.Nums = append(b.m.Nums, v)
	return int32(len(b.m.Nums) - 1)
}

// Str interns a string constant and returns its pool index.
func (b *Builder) Str(s string) int32 {
	for i, t := range b.m.Strs {
		if t == s {
			return int32(i)
		}
	}
	b.m.Strs = append(b.m.Strs, s)
	return int32(len(b.m.Strs) - 1)
}

// SlotRef records a symbolic reference to an export of another module
// and returns its index. Name is the exporter-side export name.
func (b *Builder) SlotRef(module, name string) int32 {
	return b.slotRef(module, name, -2)
}

// OwnSlotRef records a reference to a storage slot of the method's own
// module. Name is the slot name itself; the linker resolves it without
// consulting the export table.
func (b *Builder) OwnSlotRef(module, name string) int32 {
	return b.slotRef(module, name, -1)
}

func (b *Builder) slotRef(module, name string, idx int32) int32 {
	for i, r := range b.m.SlotRefs {
		if r.Module == module && r.Name == name && r.ModuleIdx == idx {
			return int32(i)
		}
	}
	b.m.SlotRefs = append(b.m.SlotRefs, SlotRef{Module: module, Name: name, ModuleIdx: idx})
	return int32(len(b.m.SlotRefs) - 1)
}

// NewLabel creates an unbound label.
func (b *Builder) NewLabel() Label {
	b.labels = append(b.labels, -1)
	return Label(len(b.labels) - 1)
}

// Bind fixes a label to the current pc.
func (b *Builder) Bind(l Label) {
	if b.labels[l] != -1 {
		panic(fmt.Sprintf("il: label %d bound twice in %s", l, b.m.Name))
	}
	b.labels[l] = b.Here()
}

// Jump emits an unconditional jump to a label.
func (b *Builder) Jump(l Label) { b.emitJump(OpJump, l) }

// JumpIfFalse pops a raw boolean and jumps when false.
func (b *Builder) JumpIfFalse(l Label) { b.emitJump(OpJumpIfFalse, l) }

// JumpIfTrue pops a raw boolean and jumps when true.
func (b *Builder) JumpIfTrue(l Label) { b.emitJump(OpJumpIfTrue, l) }

func (b *Builder) emitJump(op OpCode, l Label) {
	b.patches = append(b.patches, patch{pc: b.Here(), label: l})
	b.EmitA(op, -1)
}

/// Switch emits a table dispatch: pops a raw double; index i in range
// jumps to labels[i], everything else falls through.
func (b *Builder) Switch(labels []Label) {
	idx := len(b.m.Tables)
	b.m.Tables = append(b.m.Tables, make([]int, len(labels)))
	b.tables = append(b.tables, pendingTable{idx: idx, labels: labels})
	b.EmitA(OpSwitch, int32(idx))
}

// Region records a protected range. Pass -1 for an absent handler or
// finally pc.
func (b *Builder) Region(start, end, handler, finally int, catchSlot int32) {
	b.m.Regions = append(b.m.Regions, Region{
		Start:     start,
		End:       end,
		Handler:   handler,
		Finally:   finally,
		CatchSlot: catchSlot,
	})
}

// Locals reserves local slots; returns the first reserved index.
func (b *Builder) Locals(n int) int {
	first := b.m.NumLocals
	b.m.NumLocals += n
	return first
}

// Finish resolves all pending labels and returns the method. The builder
// must not be reused.
func (b *Builder) Finish() *Method {
	for _, p := range b.patches {
		target := b.labels[p.label]
		if target < 0 {
			panic(fmt.Sprintf("il: unbound label %d in %s", p.label, b.m.Name))
		}
		b.m.Code[p.pc].A = int32(target)
	}
	for _, t := range b.tables {
		for i, l := range t.labels {
			target := b.labels[l]
			if target < 0 {
				panic(fmt.Sprintf("il: unbound switch label %d in %s", l, b.m.Name))
			}
			b.m.Tables[t.idx][i] = target
		}
	}
	return b.m
}

// Method exposes the under-construction method (used for region pc math).
func (b *Builder) Method() *Method { return b.m }
