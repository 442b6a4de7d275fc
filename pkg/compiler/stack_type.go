package compiler

// StackType is the compile-time shadow of what physically sits on the
// evaluation stack. It is a fact about the emitted code, not a runtime
// value: after any emission helper runs, the tracked type of every slot
// must equal the true physical type, or later boxing decisions corrupt
// the output.
type StackType uint8

const (
	StUnknown StackType = iota // boxed/reference value of unknown shape
	StDouble                   // unboxed double
	StBoolean                  // unboxed boolean
	StString                   // string reference
	StNull                     // null reference
)

func (s StackType) String() string {
	switch s {
	case StDouble:
		return "double"
	case StBoolean:
		return "boolean"
	case StString:
		return "string"
	case StNull:
		return "null"
	default:
		return "unknown"
	}
}

// IsUnboxed reports whether the slot holds a raw (non-reference) value.
func (s StackType) IsUnboxed() bool { return s == StDouble || s == StBoolean }

// stackTracker mirrors the operand stack during emission.
type stackTracker struct {
	types []StackType
}

func newStackTracker() *stackTracker {
	return &stackTracker{}
}

func (t *stackTracker) push(s StackType) {
	t.types = append(t.types, s)
}

func (t *stackTracker) pop(n int) {
	if n > len(t.types) {
		panic("compiler: stack tracker underflow")
	}
	t.types = t.types[:len(t.types)-n]
}

// top returns the tracked type of the topmost slot; empty stacks report
// StUnknown.
func (t *stackTracker) top() StackType {
	if len(t.types) == 0 {
		return StUnknown
	}
	return t.types[len(t.types)-1]
}

func (t *stackTracker) depth() int { return len(t.types) }

// setTop replaces the tracked type of the topmost slot.
func (t *stackTracker) setTop(s StackType) {
	t.types[len(t.types)-1] = s
}

func (t *stackTracker) swap() {
	n := len(t.types)
	t.types[n-1], t.types[n-2] = t.types[n-2], t.types[n-1]
}

// save snapshots the tracker before a branching expression arm; restore
// rewinds to the snapshot so the other arm starts from the same state.
func (t *stackTracker) save() []StackType {
	return append([]StackType(nil), t.types...)
}

func (t *stackTracker) restore(snap []StackType) {
	t.types = append(t.types[:0], snap...)
}
