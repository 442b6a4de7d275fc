package vm

import (
	"math"
	"strconv"

	"kestrel/pkg/il"
)

// Kind is the physical kind of a value on the operand stack. RawNumber
// and RawBool are the unboxed forms that exist only transiently between
// instructions; every store boundary boxes.
type Kind uint8

const (
	KindRawNumber Kind = iota
	KindRawBool
	KindNumber // boxed
	KindBool   // boxed
	KindString
	KindNull
	KindUndefined
	KindObject
	KindArray
	KindFunction
	KindFuture
)

func (k Kind) String() string {
	switch k {
	case KindRawNumber:
		return "raw-number"
	case KindRawBool:
		return "raw-bool"
	case KindNumber:
		return "number"
	case KindBool:
		return "bool"
	case KindString:
		return "string"
	case KindNull:
		return "null"
	case KindUndefined:
		return "undefined"
	case KindObject:
		return "object"
	case KindArray:
		return "array"
	case KindFunction:
		return "function"
	case KindFuture:
		return "future"
	}
	return "invalid"
}

// Value is one managed value. The zero value is undefined.
type Value struct {
	kind Kind
	num  float64
	str  string
	obj  *Object
	arr  *Array
	fn   *Delegate
	fut  *Future
}

var (
	Undefined = Value{kind: KindUndefined}
	Null      = Value{kind: KindNull}
)

func RawNumber(f float64) Value { return Value{kind: KindRawNumber, num: f} }
func RawBool(b bool) Value {
	v := Value{kind: KindRawBool}
	if b {
		v.num = 1
	}
	return v
}
func Number(f float64) Value { return Value{kind: KindNumber, num: f} }
func Bool(b bool) Value {
	v := Value{kind: KindBool}
	if b {
		v.num = 1
	}
	return v
}
func String(s string) Value       { return Value{kind: KindString, str: s} }
func ObjectVal(o *Object) Value   { return Value{kind: KindObject, obj: o} }
func ArrayVal(a *Array) Value     { return Value{kind: KindArray, arr: a} }
func FuncVal(d *Delegate) Value   { return Value{kind: KindFunction, fn: d} }
func FutureVal(f *Future) Value   { return Value{kind: KindFuture, fut: f} }

func (v Value) Kind() Kind { return v.kind }

func (v Value) IsNumeric() bool { return v.kind == KindRawNumber || v.kind == KindNumber }
func (v Value) IsBoolish() bool { return v.kind == KindRawBool || v.kind == KindBool }
func (v Value) IsString() bool  { return v.kind == KindString }

func (v Value) Num() float64    { return v.num }
func (v Value) BoolVal() bool   { return v.num != 0 }
func (v Value) Str() string     { return v.str }
func (v Value) Obj() *Object    { return v.obj }
func (v Value) Arr() *Array     { return v.arr }
func (v Value) Fn() *Delegate   { return v.fn }
func (v Value) Fut() *Future    { return v.fut }

// Box converts a raw value to its boxed form; boxed values pass through.
func (v Value) Box() Value {
	switch v.kind {
	case KindRawNumber:
		return Number(v.num)
	case KindRawBool:
		v.kind = KindBool
		return v
	default:
		return v
	}
}

// AsNumber coerces to a raw double: numbers pass through, booleans map
// to 0/1, everything else becomes NaN.
func (v Value) AsNumber() float64 {
	switch v.kind {
	case KindRawNumber, KindNumber:
		return v.num
	case KindRawBool, KindBool:
		return v.num
	default:
		return math.NaN()
	}
}

// Truthy implements the coercion rule: null, undefined, empty string,
// zero and NaN are falsy, everything else truthy.
func (v Value) Truthy() bool {
	switch v.kind {
	case KindNull, KindUndefined:
		return false
	case KindRawNumber, KindNumber:
		return v.num != 0 && !math.IsNaN(v.num)
	case KindRawBool, KindBool:
		return v.num != 0
	case KindString:
		return v.str != ""
	default:
		return true
	}
}

// KindCode returns the platform kind code (il.KindCode*).
func (v Value) KindCode() int {
	switch v.kind {
	case KindRawNumber, KindNumber:
		return il.KindCodeNumber
	case KindRawBool, KindBool:
		return il.KindCodeBoolean
	case KindString:
		return il.KindCodeString
	case KindNull:
		return il.KindCodeNull
	case KindUndefined:
		return il.KindCodeUndefined
	case KindObject:
		return il.KindCodeObject
	case KindArray:
		return il.KindCodeArray
	case KindFunction:
		return il.KindCodeFunction
	case KindFuture:
		return il.KindCodeFuture
	}
	return il.KindCodeUndefined
}

// FormatNumber renders a double the way the source language does:
// integral values print without a decimal point.
func FormatNumber(f float64) string {
	if math.IsNaN(f) {
		return "NaN"
	}
	if math.IsInf(f, 1) {
		return "Infinity"
	}
	if math.IsInf(f, -1) {
		return "-Infinity"
	}
	if f == math.Trunc(f) && math.Abs(f) < 1e21 {
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
	return strconv.FormatFloat(f, 'g', -1, 64)
}

// Display renders a value for host console output.
func (v Value) Display() string {
	switch v.kind {
	case KindRawNumber, KindNumber:
		return FormatNumber(v.num)
	case KindRawBool, KindBool:
		if v.num != 0 {
			return "true"
		}
		return "false"
	case KindString:
		return v.str
	case KindNull:
		return "null"
	case KindUndefined:
		return "undefined"
	case KindArray:
		out := "["
		for i, e := range v.arr.Elems {
			if i > 0 {
				out += ", "
			}
			out += e.Display()
		}
		return out + "]"
	case KindObject:
		return "[object]"
	case KindFunction:
		return "[function]"
	case KindFuture:
		return "[future]"
	}
	return "undefined"
}
