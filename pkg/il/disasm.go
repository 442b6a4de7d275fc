package il

import (
	"fmt"
	"strings"
)

// Disassemble renders a method body for debugging output.
func Disassemble(m *Method) string {
	var sb strings.Builder
	owner := ""
	if m.Owner != NoType {
		owner = fmt.Sprintf(" owner=T%d", m.Owner)
	}
	fmt.Fprintf(&sb, "== %s (M%d)%s params=%d locals=%d ==\n", m.Name, m.ID, owner, m.NumParams, m.NumLocals)
	for pc, ins := range m.Code {
		fmt.Fprintf(&sb, "%04d  %-14s", pc, ins.Op.String())
		switch ins.Op {
		case OpLoadNum:
			fmt.Fprintf(&sb, " %v", m.Nums[ins.A])
		case OpLoadStr:
			fmt.Fprintf(&sb, " %q", m.Strs[ins.A])
		case OpLoadLocal, OpStoreLocal:
			fmt.Fprintf(&sb, " L%d", ins.A)
		case OpLoadField, OpStoreField, OpLoadStatic, OpStoreStatic:
			fmt.Fprintf(&sb, " T%d.%d", ins.A, ins.B)
		case OpLoadSlot, OpStoreSlot:
			r := m.SlotRefs[ins.A]
			fmt.Fprintf(&sb, " %s:%s", r.Module, r.Name)
		case OpNewObject:
			fmt.Fprintf(&sb, " T%d", ins.A)
		case OpNewArray:
			fmt.Fprintf(&sb, " n=%d", ins.A)
		case OpCallStatic, OpCallMethod:
			fmt.Fprintf(&sb, " M%d argc=%d", ins.A, ins.B)
		case OpCallDyn:
			fmt.Fprintf(&sb, " argc=%d", ins.B)
		case OpNewDelegate:
			fmt.Fprintf(&sb, " M%d", ins.A)
		case OpJump, OpJumpIfFalse, OpJumpIfTrue:
			fmt.Fprintf(&sb, " -> %04d", ins.A)
		case OpSwitch:
			fmt.Fprintf(&sb, " table=%v", m.Tables[ins.A])
		}
		sb.WriteByte('\n')
	}
	for i, r := range m.Regions {
		fmt.Fprintf(&sb, "region %d: [%04d,%04d) handler=%d finally=%d slot=L%d\n",
			i, r.Start, r.End, r.Handler, r.Finally, r.CatchSlot)
	}
	return sb.String()
}

// DisassembleProgram renders every method of a program.
func DisassembleProgram(p *Program) string {
	var sb strings.Builder
	for _, m := range p.Methods {
		if m.Intrinsic != IntrNone {
			continue
		}
		sb.WriteString(Disassemble(m))
		sb.WriteByte('\n')
	}
	return sb.String()
}
