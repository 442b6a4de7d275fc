package types

// Hint is the per-expression static classification produced by the
// external type checker. The compiler consumes hints purely as an
// optimization signal: an absent or Unknown hint always routes through
// the safe dynamic path.
type Hint uint8

const (
	Unknown Hint = iota // No static information; use dynamic dispatch
	Number              // Statically a number; eligible for unboxed arithmetic
	Boolean             // Statically a boolean; eligible for unboxed tests
	String              // Statically a string; eligible for direct concat
	Null                // Statically null
	Reference           // Statically a reference value (object, array, function)
)

func (h Hint) String() string {
	switch h {
	case Number:
		return "number"
	case Boolean:
		return "boolean"
	case String:
		return "string"
	case Null:
		return "null"
	case Reference:
		return "reference"
	default:
		return "unknown"
	}
}

// IsNumeric reports whether the hint guarantees an unboxed numeric value.
func (h Hint) IsNumeric() bool { return h == Number }

// IsTextual reports whether the hint guarantees a string value.
func (h Hint) IsTextual() bool { return h == String }
