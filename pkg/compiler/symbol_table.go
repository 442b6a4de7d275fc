package compiler

import "kestrel/pkg/il"

// SymbolKind says where a resolved binding physically lives.
type SymbolKind uint8

const (
	// SymLocal lives in a local slot of the current method.
	SymLocal SymbolKind = iota
	// SymCaptured lives in the capture container of its defining function;
	// the defining function itself reaches it through its env slot, nested
	// literals reach it through the receiver's parent chain.
	SymCaptured
	// SymMachine lives in a field of the current async/generator state
	// machine (hoisted across suspension points).
	SymMachine
	// SymModuleSlot lives in a module storage slot of the defining unit.
	SymModuleSlot
	// SymImport refers to an export slot of another unit.
	SymImport
	// SymFunction is a statically-known function declaration.
	SymFunction
	// SymClass is a declared class.
	SymClass
)

// Symbol is one resolved binding.
type Symbol struct {
	Name    string
	Kind    SymbolKind
	Slot    int         // SymLocal: local slot; SymModuleSlot: slot index
	Field   int32       // SymCaptured / SymMachine: container field index
	Type    il.TypeID   // SymCaptured: container; SymClass: class type
	Method  il.MethodID // SymFunction: callable handle
	Wrap    il.MethodID // SymClass: constructor wrapper handle
	Module  string      // SymImport: source module name
	Import  string      // SymImport: exporter-side name
	Bound   bool        // SymFunction: delegate binds the current receiver
	IsConst bool
}

// SymbolTable is one lexical scope; scopes chain through Outer within a
// single function. Crossing function boundaries is the compiler's job,
// not the table's.
type SymbolTable struct {
	store map[string]*Symbol
	Outer *SymbolTable
}

func NewSymbolTable() *SymbolTable {
	return &SymbolTable{store: make(map[string]*Symbol)}
}

func NewEnclosedSymbolTable(outer *SymbolTable) *SymbolTable {
	return &SymbolTable{store: make(map[string]*Symbol), Outer: outer}
}

// Define inserts a binding into this scope, shadowing outer scopes.
func (s *SymbolTable) Define(sym *Symbol) *Symbol {
	s.store[sym.Name] = sym
	return sym
}

// DefineAs inserts a binding under a source name that may differ from
// the symbol's storage name (uniquified module slots).
func (s *SymbolTable) DefineAs(key string, sym *Symbol) *Symbol {
	s.store[key] = sym
	return sym
}

// Resolve walks the scope chain of the current function.
func (s *SymbolTable) Resolve(name string) (*Symbol, bool) {
	for t := s; t != nil; t = t.Outer {
		if sym, ok := t.store[name]; ok {
			return sym, true
		}
	}
	return nil, false
}

// DefinedHere reports whether the name is bound in this exact scope.
func (s *SymbolTable) DefinedHere(name string) bool {
	_, ok := s.store[name]
	return ok
}
