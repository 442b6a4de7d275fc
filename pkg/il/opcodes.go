package il

// OpCode defines the instruction set of the managed stack-based target.
type OpCode uint8

// Instructions are word-coded: one opcode plus up to two int32 operands.
// Values flow on the per-frame operand stack; operands are immediates
// (constant-pool indices, local slots, handles, jump targets).
const (
	OpNop OpCode = iota

	// Constants & literals
	OpLoadNum   // A=num pool idx: push unboxed double
	OpLoadStr   // A=str pool idx: push string
	OpLoadTrue  // push unboxed true
	OpLoadFalse // push unboxed false
	OpLoadNull  // push null
	OpLoadUndef // push undefined

	// Stack shuffling
	OpDup  // duplicate top
	OpPop  // discard top
	OpSwap // swap top two

	// Boxing. Unboxed doubles/booleans exist only transiently on the
	// operand stack; every store boundary boxes.
	OpBox       // unboxed double/boolean -> boxed reference
	OpUnboxNum  // boxed number -> unboxed double (coercing; non-numbers become NaN)
	OpUnboxBool // boxed boolean -> unboxed boolean (coercing via truthiness)

	// Unboxed arithmetic (operate on raw doubles)
	OpAddNum // pop b, a: push a+b
	OpSubNum
	OpMulNum
	OpDivNum
	OpRemNum
	OpPowNum
	OpNegNum // pop a: push -a

	// Unboxed comparison (raw doubles -> raw boolean)
	OpEqNum
	OpNeNum
	OpLtNum
	OpLeNum
	OpGtNum
	OpGeNum
	OpNotBool // pop raw bool: push !b

	OpConcat // pop b, a (strings): push a+b

	// Locals. Slot 0 is the receiver for instance methods; parameters
	// follow, then scratch slots.
	OpLoadLocal  // A=slot: push locals[A]
	OpStoreLocal // A=slot: pop into locals[A]

	// Instance fields. A=type handle, B=field index.
	OpLoadField  // pop obj: push obj.fields[B]
	OpStoreField // pop value, obj: obj.fields[B] = value

	// Static fields (per-class static member storage). A=type, B=field.
	OpLoadStatic
	OpStoreStatic

	// Module storage slots. A=index into the method's SlotRefs table;
	// the linker patches each ref to a (module, slot) pair.
	OpLoadSlot
	OpStoreSlot

	// Allocation
	OpNewObject // A=type handle: push fresh instance (fields undefined)
	OpNewPlain  // push fresh free-form object (extension properties only)
	OpNewArray  // A=count: pop count elems, push array

	// Calls. Arguments are pushed left to right.
	OpCallStatic // A=method, B=argc: pop argc args, push result
	OpCallMethod // A=method, B=argc: pop argc args then receiver, push result
	OpCallDyn    // B=argc: pop argc args, then callee function value, push result

	OpNewDelegate // A=method: pop bind target (null for static), push function value

	// Control flow. Jump targets are absolute instruction indices.
	OpJump        // A=target
	OpJumpIfFalse // A=target: pop raw bool, jump when false
	OpJumpIfTrue  // A=target: pop raw bool, jump when true
	OpSwitch      // A=jump table idx: pop raw double; in-range -> table target, else fall through

	OpReturn      // pop value, return it
	OpReturnUndef // return undefined

	OpThrow      // pop value, raise it
	OpEndFinally // end of an unwind-path finally block: resume pending unwind
)

var opNames = [...]string{
	OpNop:         "NOP",
	OpLoadNum:     "LOAD_NUM",
	OpLoadStr:     "LOAD_STR",
	OpLoadTrue:    "LOAD_TRUE",
	OpLoadFalse:   "LOAD_FALSE",
	OpLoadNull:    "LOAD_NULL",
	OpLoadUndef:   "LOAD_UNDEF",
	OpDup:         "DUP",
	OpPop:         "POP",
	OpSwap:        "SWAP",
	OpBox:         "BOX",
	OpUnboxNum:    "UNBOX_NUM",
	OpUnboxBool:   "UNBOX_BOOL",
	OpAddNum:      "ADD_NUM",
	OpSubNum:      "SUB_NUM",
	OpMulNum:      "MUL_NUM",
	OpDivNum:      "DIV_NUM",
	OpRemNum:      "REM_NUM",
	OpPowNum:      "POW_NUM",
	OpNegNum:      "NEG_NUM",
	OpEqNum:       "EQ_NUM",
	OpNeNum:       "NE_NUM",
	OpLtNum:       "LT_NUM",
	OpLeNum:       "LE_NUM",
	OpGtNum:       "GT_NUM",
	OpGeNum:       "GE_NUM",
	OpNotBool:     "NOT_BOOL",
	OpConcat:      "CONCAT",
	OpLoadLocal:   "LOAD_LOCAL",
	OpStoreLocal:  "STORE_LOCAL",
	OpLoadField:   "LOAD_FIELD",
	OpStoreField:  "STORE_FIELD",
	OpLoadStatic:  "LOAD_STATIC",
	OpStoreStatic: "STORE_STATIC",
	OpLoadSlot:    "LOAD_SLOT",
	OpStoreSlot:   "STORE_SLOT",
	OpNewObject:   "NEW_OBJECT",
	OpNewPlain:    "NEW_PLAIN",
	OpNewArray:    "NEW_ARRAY",
	OpCallStatic:  "CALL_STATIC",
	OpCallMethod:  "CALL_METHOD",
	OpCallDyn:     "CALL_DYN",
	OpNewDelegate: "NEW_DELEGATE",
	OpJump:        "JUMP",
	OpJumpIfFalse: "JUMP_IF_FALSE",
	OpJumpIfTrue:  "JUMP_IF_TRUE",
	OpSwitch:      "SWITCH",
	OpReturn:      "RETURN",
	OpReturnUndef: "RETURN_UNDEF",
	OpThrow:       "THROW",
	OpEndFinally:  "END_FINALLY",
}

func (op OpCode) String() string {
	if int(op) < len(opNames) && opNames[op] != "" {
		return opNames[op]
	}
	return "UNKNOWN"
}

// Instr is one word-coded instruction.
type Instr struct {
	Op   OpCode
	A    int32
	B    int32
	Line int32 // source line for diagnostics; 0 when synthetic
}
