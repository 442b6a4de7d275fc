package vm

import "kestrel/pkg/il"

// Object is one heap instance: declared (typed, backed) members in the
// Fields slice, free-form extension properties in an ordered side-table.
// The side-table is explicit rather than name-convention scanning, so
// property enumeration order is insertion order and lookups never rely
// on reflection-style search.
type Object struct {
	Type   il.TypeID // il.NoType for free-form objects
	Fields []Value
	ext    *propTable
}

// NewObject allocates an instance of a declared type.
func NewObject(t *il.TypeDef) *Object {
	o := &Object{Type: t.ID, Fields: make([]Value, len(t.Fields))}
	for i := range o.Fields {
		o.Fields[i] = Undefined
	}
	return o
}

// NewPlain allocates a free-form object.
func NewPlain() *Object {
	return &Object{Type: il.NoType}
}

// propTable is the ordered extension-property side-table.
type propTable struct {
	keys []string
	vals map[string]Value
}

func (o *Object) ExtHas(name string) bool {
	if o.ext == nil {
		return false
	}
	_, ok := o.ext.vals[name]
	return ok
}

func (o *Object) ExtGet(name string) (Value, bool) {
	if o.ext == nil {
		return Undefined, false
	}
	v, ok := o.ext.vals[name]
	if !ok {
		return Undefined, false
	}
	return v, true
}

func (o *Object) ExtSet(name string, v Value) {
	if o.ext == nil {
		o.ext = &propTable{vals: make(map[string]Value)}
	}
	if _, ok := o.ext.vals[name]; !ok {
		o.ext.keys = append(o.ext.keys, name)
	}
	o.ext.vals[name] = v
}

// ExtKeys returns extension property names in insertion order.
func (o *Object) ExtKeys() []string {
	if o.ext == nil {
		return nil
	}
	return o.ext.keys
}

// Array is the managed growable array.
type Array struct {
	Elems []Value
}

// Set writes idx, growing the array with undefined padding when needed.
func (a *Array) Set(idx int, v Value) {
	for len(a.Elems) <= idx {
		a.Elems = append(a.Elems, Undefined)
	}
	a.Elems[idx] = v
}

// Get reads idx; out-of-range reads produce undefined.
func (a *Array) Get(idx int) Value {
	if idx < 0 || idx >= len(a.Elems) {
		return Undefined
	}
	return a.Elems[idx]
}

// Delegate is a bound callable: a method handle plus an optional bind
// target (the receiver for instance methods, undefined for static ones).
type Delegate struct {
	Method il.MethodID
	Target Value
}
