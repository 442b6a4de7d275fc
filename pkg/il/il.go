package il

// TypeID and MethodID are program-wide handles assigned by the target
// type catalog. Field handles are indices within their owning TypeDef.
type TypeID int32
type MethodID int32

const (
	NoType   TypeID   = -1
	NoMethod MethodID = -1
)

// TypeKind records why a type exists; the execution target treats all
// kinds uniformly.
type TypeKind uint8

const (
	ClassType   TypeKind = iota // declared source class
	CaptureType                 // synthesized closure capture container
	MachineType                 // synthesized async/generator state machine
	RuntimeType                 // the self-hosted dynamic-semantics helper module
)

// TypeDef describes one target type: declared instance fields (backed
// storage, accessed by index) and static fields (per-class static member
// storage).
type TypeDef struct {
	ID           TypeID
	Name         string
	Kind         TypeKind
	Fields       []string
	StaticFields []string
}

// FieldIndex returns the slot of a declared instance field, or -1.
func (t *TypeDef) FieldIndex(name string) int32 {
	for i, f := range t.Fields {
		if f == name {
			return int32(i)
		}
	}
	return -1
}

// StaticIndex returns the slot of a static field, or -1.
func (t *TypeDef) StaticIndex(name string) int32 {
	for i, f := range t.StaticFields {
		if f == name {
			return int32(i)
		}
	}
	return -1
}

// Intrinsic identifies a platform-provided primitive (the managed
// target's own base library). User code never names intrinsics directly;
// they are reached through builtin descriptors and the emitted runtime
// helpers.
type Intrinsic uint16

const (
	IntrNone Intrinsic = iota

	// Host console
	IntrConsoleLog
	IntrConsoleError

	// Numeric primitives
	IntrNumToStr // canonical number formatting
	IntrIsNaN
	IntrMathFloor
	IntrMathAbs

	// String primitives
	IntrStrLen
	IntrStrCharCodeAt
	IntrStrFromCharCode
	IntrStrSub   // substring(s, start, end)
	IntrStrQuote // JSON-escape and quote a string

	// Value inspection
	IntrKindOf // small integer kind code, see KindCode* below

	// Declared-member and extension-property primitives
	IntrHasField // declared member present?
	IntrGetField // declared member by name
	IntrSetField // declared member by name -> bool
	IntrExtHas   // extension side-table present?
	IntrExtGet
	IntrExtSet
	IntrKeys // ordered own property names (declared then extension)

	// Array primitives
	IntrArrLen
	IntrArrGet
	IntrArrSet // grows the array when idx == len
	IntrArrPush

	// Asynchronous primitive
	IntrFutureNew      // fresh pending future
	IntrFutureOf       // identity for futures, else already-settled wrapper
	IntrFutureResolve  // (future, value)
	IntrFutureReject   // (future, error)
	IntrFutureOnSettle // (future, delegate): schedule delegate(value, isError)

	// Regex construction (pattern validated at compile time)
	IntrRegexNew // (pattern, flags) -> regex object

	IntrStrEq // string equality
	IntrRefEq // identity comparison; false for non-reference kinds
)

// Kind codes returned by IntrKindOf.
const (
	KindCodeNumber    = 0
	KindCodeBoolean   = 1
	KindCodeString    = 2
	KindCodeNull      = 3
	KindCodeUndefined = 4
	KindCodeObject    = 5
	KindCodeArray     = 6
	KindCodeFunction  = 7
	KindCodeFuture    = 8
)

// Region is one protected range of a method body. Instruction indices;
// End is exclusive. Handler < 0 means no catch; Finally < 0 means no
// finally. CatchSlot is the local receiving the thrown value.
type Region struct {
	Start     int
	End       int
	Handler   int
	Finally   int
	CatchSlot int32
}

// Covers reports whether pc lies inside the protected range.
func (r Region) Covers(pc int) bool { return pc >= r.Start && pc < r.End }

// SlotRef is a symbolic reference to a module storage slot. The compiler
// records names; the linker patches ModuleIdx/Slot. ModuleIdx -2 marks an
// unresolved ref, -1 refers to the method's own module.
type SlotRef struct {
	Module    string
	Name      string
	ModuleIdx int32
	Slot      int32
}

// Method is one compiled routine. Owner is NoType for static/free
// methods. Parameter values occupy locals [0..NumParams) for static
// methods and [1..NumParams] for instance methods (slot 0 = receiver).
type Method struct {
	ID        MethodID
	Name      string
	Owner     TypeID
	NumParams int
	NumLocals int
	Code      []Instr
	Nums      []float64
	Strs      []string
	Regions   []Region
	Tables    [][]int
	SlotRefs  []SlotRef
	Intrinsic Intrinsic // non-IntrNone for platform primitives; Code empty
}

// IsInstance reports whether the method takes a receiver in slot 0.
func (m *Method) IsInstance() bool { return m.Owner != NoType }

// Export describes one export-table entry of a module. From is non-empty
// for re-exports, which the linker resolves to the origin slot.
type Export struct {
	Name     string
	Slot     int32  // local slot (From == "")
	From     string // source module of a re-export
	Imported string // exporter-side name of a re-export
}

// DefaultExportKey is the reserved export-table key for default exports.
const DefaultExportKey = "*default*"

// NamespaceImport records that Slot of the importing module must be
// populated with an aggregate of all named exports of Source.
type NamespaceImport struct {
	Source string
	Slot   int32
}

// Module is one compiled unit: named storage slots, its export table and
// the init method holding the unit's top-level statements.
type Module struct {
	Name       string
	Slots      []string
	Exports    map[string]*Export
	Requires   []string
	Namespaces []NamespaceImport
	Init       MethodID
}

// SlotIndex returns the index of a named slot, or -1.
func (m *Module) SlotIndex(name string) int32 {
	for i, s := range m.Slots {
		if s == name {
			return int32(i)
		}
	}
	return -1
}

// Program is the finalized self-contained artifact.
type Program struct {
	Types    []*TypeDef
	Methods  []*Method
	Modules  []*Module
	Boot     []MethodID // init sequence in dependency order; last is the entry unit
	Entry    MethodID
	Manifest Manifest
}

// TypeByID returns the TypeDef for a handle, or nil.
func (p *Program) TypeByID(id TypeID) *TypeDef {
	if id < 0 || int(id) >= len(p.Types) {
		return nil
	}
	return p.Types[id]
}

// MethodByID returns the Method for a handle, or nil.
func (p *Program) MethodByID(id MethodID) *Method {
	if id < 0 || int(id) >= len(p.Methods) {
		return nil
	}
	return p.Methods[id]
}

// ModuleByName returns the module with the given name, or nil.
func (p *Program) ModuleByName(name string) *Module {
	for _, m := range p.Modules {
		if m.Name == name {
			return m
		}
	}
	return nil
}
