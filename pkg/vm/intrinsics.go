package vm

import (
	"fmt"
	"math"
	"strings"

	"github.com/dlclark/regexp2"

	"kestrel/pkg/il"
)

// intrinsic implements the platform primitives (the managed target's own
// base library). All intrinsics accept and return boxed/reference values;
// emitted IL unboxes results where it needs raw operands.
func (vm *VM) intrinsic(id il.Intrinsic, args []Value) (Value, error) {
	arg := func(i int) Value {
		if i < len(args) {
			return args[i]
		}
		return Undefined
	}

	switch id {
	case il.IntrConsoleLog, il.IntrConsoleError:
		parts := make([]string, len(args))
		for i, a := range args {
			parts[i] = a.Display()
		}
		fmt.Fprintln(vm.Stdout, strings.Join(parts, " "))
		return Undefined, nil

	case il.IntrNumToStr:
		return String(FormatNumber(arg(0).AsNumber())), nil
	case il.IntrIsNaN:
		return Bool(math.IsNaN(arg(0).AsNumber())), nil
	case il.IntrMathFloor:
		return Number(math.Floor(arg(0).AsNumber())), nil
	case il.IntrMathAbs:
		return Number(math.Abs(arg(0).AsNumber())), nil

	case il.IntrStrLen:
		return Number(float64(len(arg(0).Str()))), nil
	case il.IntrStrCharCodeAt:
		s := arg(0).Str()
		i := int(arg(1).AsNumber())
		if i < 0 || i >= len(s) {
			return Number(math.NaN()), nil
		}
		return Number(float64(s[i])), nil
	case il.IntrStrFromCharCode:
		return String(string(rune(int(arg(0).AsNumber())))), nil
	case il.IntrStrSub:
		s := arg(0).Str()
		start := clampIdx(int(arg(1).AsNumber()), len(s))
		end := clampIdx(int(arg(2).AsNumber()), len(s))
		if start > end {
			start, end = end, start
		}
		return String(s[start:end]), nil
	case il.IntrStrQuote:
		return String(quoteJSON(arg(0).Str())), nil

	case il.IntrKindOf:
		return Number(float64(arg(0).KindCode())), nil

	case il.IntrStrEq:
		return Bool(arg(0).Str() == arg(1).Str()), nil
	case il.IntrRefEq:
		a, b := arg(0), arg(1)
		if a.Kind() != b.Kind() {
			return Bool(false), nil
		}
		switch a.Kind() {
		case KindObject:
			return Bool(a.Obj() == b.Obj()), nil
		case KindArray:
			return Bool(a.Arr() == b.Arr()), nil
		case KindFunction:
			return Bool(a.Fn() == b.Fn()), nil
		case KindFuture:
			return Bool(a.Fut() == b.Fut()), nil
		}
		return Bool(false), nil

	case il.IntrHasField:
		obj := arg(0)
		if obj.Kind() != KindObject || obj.Obj().Type == il.NoType {
			return Bool(false), nil
		}
		t := vm.prog.TypeByID(obj.Obj().Type)
		return Bool(t.FieldIndex(arg(1).Str()) >= 0), nil
	case il.IntrGetField:
		obj := arg(0)
		if obj.Kind() != KindObject || obj.Obj().Type == il.NoType {
			return Undefined, nil
		}
		t := vm.prog.TypeByID(obj.Obj().Type)
		idx := t.FieldIndex(arg(1).Str())
		if idx < 0 {
			return Undefined, nil
		}
		return obj.Obj().Fields[idx], nil
	case il.IntrSetField:
		obj := arg(0)
		if obj.Kind() != KindObject || obj.Obj().Type == il.NoType {
			return Bool(false), nil
		}
		t := vm.prog.TypeByID(obj.Obj().Type)
		idx := t.FieldIndex(arg(1).Str())
		if idx < 0 {
			return Bool(false), nil
		}
		obj.Obj().Fields[idx] = arg(2)
		return Bool(true), nil

	case il.IntrExtHas:
		if arg(0).Kind() != KindObject {
			return Bool(false), nil
		}
		return Bool(arg(0).Obj().ExtHas(arg(1).Str())), nil
	case il.IntrExtGet:
		if arg(0).Kind() != KindObject {
			return Undefined, nil
		}
		v, _ := arg(0).Obj().ExtGet(arg(1).Str())
		return v, nil
	case il.IntrExtSet:
		if arg(0).Kind() == KindObject {
			arg(0).Obj().ExtSet(arg(1).Str(), arg(2))
		}
		return Undefined, nil

	case il.IntrKeys:
		out := &Array{}
		if arg(0).Kind() == KindObject {
			o := arg(0).Obj()
			if o.Type != il.NoType {
				t := vm.prog.TypeByID(o.Type)
				for _, f := range t.Fields {
					out.Elems = append(out.Elems, String(f))
				}
			}
			for _, k := range o.ExtKeys() {
				out.Elems = append(out.Elems, String(k))
			}
		}
		return ArrayVal(out), nil

	case il.IntrArrLen:
		if arg(0).Kind() != KindArray {
			return Number(0), nil
		}
		return Number(float64(len(arg(0).Arr().Elems))), nil
	case il.IntrArrGet:
		if arg(0).Kind() != KindArray {
			return Undefined, nil
		}
		return arg(0).Arr().Get(int(arg(1).AsNumber())), nil
	case il.IntrArrSet:
		if arg(0).Kind() == KindArray {
			arg(0).Arr().Set(int(arg(1).AsNumber()), arg(2))
		}
		return Undefined, nil
	case il.IntrArrPush:
		if arg(0).Kind() == KindArray {
			a := arg(0).Arr()
			a.Elems = append(a.Elems, arg(1))
			return Number(float64(len(a.Elems))), nil
		}
		return Undefined, nil

	case il.IntrFutureNew:
		return FutureVal(NewFuture()), nil
	case il.IntrFutureOf:
		if arg(0).Kind() == KindFuture {
			return arg(0), nil
		}
		f := NewFuture()
		vm.resolveFuture(f, arg(0))
		return FutureVal(f), nil
	case il.IntrFutureResolve:
		if arg(0).Kind() == KindFuture {
			vm.resolveFuture(arg(0).Fut(), arg(1))
		}
		return Undefined, nil
	case il.IntrFutureReject:
		if arg(0).Kind() == KindFuture {
			vm.rejectFuture(arg(0).Fut(), arg(1))
		}
		return Undefined, nil
	case il.IntrFutureOnSettle:
		if arg(0).Kind() == KindFuture && arg(1).Kind() == KindFunction {
			vm.onSettle(arg(0).Fut(), arg(1).Fn())
		}
		return Undefined, nil

	case il.IntrRegexNew:
		pattern, flags := arg(0).Str(), arg(1).Str()
		var opts regexp2.RegexOptions
		if strings.Contains(flags, "i") {
			opts |= regexp2.IgnoreCase
		}
		if strings.Contains(flags, "m") {
			opts |= regexp2.Multiline
		}
		if strings.Contains(flags, "s") {
			opts |= regexp2.Singleline
		}
		if _, err := regexp2.Compile(pattern, opts); err != nil {
			return Undefined, &thrown{val: String("SyntaxError: invalid regular expression")}
		}
		o := NewPlain()
		o.ExtSet("source", String(pattern))
		o.ExtSet("flags", String(flags))
		return ObjectVal(o), nil
	}

	return Undefined, fmt.Errorf("Runtime Error: unknown intrinsic %d", id)
}

func clampIdx(i, n int) int {
	if i < 0 {
		return 0
	}
	if i > n {
		return n
	}
	return i
}

// quoteJSON escapes and quotes a string per the JSON grammar.
func quoteJSON(s string) string {
	var sb strings.Builder
	sb.WriteByte('"')
	for _, r := range s {
		switch r {
		case '"':
			sb.WriteString(`\"`)
		case '\\':
			sb.WriteString(`\\`)
		case '\n':
			sb.WriteString(`\n`)
		case '\r':
			sb.WriteString(`\r`)
		case '\t':
			sb.WriteString(`\t`)
		default:
			if r < 0x20 {
				fmt.Fprintf(&sb, `\u%04x`, r)
			} else {
				sb.WriteRune(r)
			}
		}
	}
	sb.WriteByte('"')
	return sb.String()
}
