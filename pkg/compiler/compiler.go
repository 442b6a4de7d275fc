// Package compiler translates checked ASTs into il methods for the
// managed stack-based target. Each unit compiles independently against
// the shared type catalog; the linker later resolves cross-unit slot
// references and finalizes the artifact.
package compiler

import (
	"fmt"

	"golang.org/x/text/unicode/norm"

	"kestrel/pkg/ast"
	"kestrel/pkg/catalog"
	"kestrel/pkg/errors"
	"kestrel/pkg/il"
	"kestrel/pkg/source"
)

const debugCompiler = false

func debugPrintf(format string, args ...interface{}) {
	if debugCompiler {
		fmt.Printf(format, args...)
	}
}

// canon normalizes identifiers and member names to NFC so that bindings
// written with different codepoint sequences resolve to one symbol.
func canon(s string) string {
	return norm.NFC.String(s)
}

// receiver role of the method under compilation.
type recvKind uint8

const (
	recvNone      recvKind = iota // static method, no slot-0 receiver
	recvClass                     // instance method of a declared class
	recvContainer                 // receiver is a capture container or machine
)

// containerInfo describes one capture container: the synthesized type
// whose fields hold the variables shared between a function and the
// literals nested in it. Containers chain through a parent field so
// nested literals reach bindings of outer activations.
type containerInfo struct {
	typ         il.TypeID
	fields      map[string]int32
	parentField int32 // -1 when the chain ends here
	parent      *containerInfo
	machine     *machineCtx // non-nil when the container is a state machine
}

func (ci *containerInfo) fieldOf(name string) (int32, bool) {
	if ci.machine != nil {
		idx, ok := ci.machine.fieldIdx[name]
		return idx, ok
	}
	idx, ok := ci.fields[name]
	return idx, ok
}

type loopContext struct {
	label    string
	brk      il.Label
	cont     il.Label
	tryDepth int
}

type tryContext struct {
	node      *ast.TryStatement
	exit      il.Label
	sawReturn bool
}

// Compiler holds the emission context of one method. Nested function
// literals get their own Compiler linked through enclosing; unit-wide
// state (module tables, diagnostics, shadow traces) lives on the root.
type Compiler struct {
	cat        *catalog.Catalog
	unit       *source.Unit
	moduleName string
	module     *il.Module

	b      *il.Builder
	st     *stackTracker
	shadow []StackType
	locals *LocalAllocator

	scope   *SymbolTable // innermost block scope
	fnScope *SymbolTable // function root scope

	enclosing *Compiler
	root      *Compiler

	fn        *ast.FunctionLiteral // nil for the module init method
	info      *fnInfo
	recv      recvKind
	thisClass il.TypeID      // recvClass: the declaring class
	container *containerInfo // this function's own container, nil if none
	ownerCtr  *containerInfo // what slot 0 points at when recv == recvContainer
	envSlot   int            // local holding this function's container instance
	machine   *machineCtx    // non-nil while emitting a state-machine step body

	loops        []*loopContext
	trys         []*tryContext
	finallyDepth int
	retVal       tempRef
	retFlag      tempRef
	hasRetTemp   bool
	pendingLabel string

	generics map[string]bool

	// Root-only state.
	errs      []errors.KestrelError
	fatal     errors.KestrelError
	anon      int
	shadows   map[il.MethodID][]StackType
	exports   []pendingExport
	infos     map[*ast.FunctionLiteral]*fnInfo
	shells    map[*ast.FunctionLiteral]*il.Method
	classes   map[*ast.ClassDeclaration]*classInfo
	slotDecls map[*ast.LetStatement]*Symbol
}

type pendingExport struct {
	local    string
	exported string
	pos      errors.Position
}

// UnitResult is the output of compiling one unit: the module record and
// the per-method compile-time stack-type traces (instrumentation data
// for reference-execution verification).
type UnitResult struct {
	Module *il.Module
	Shadow map[il.MethodID][]StackType
}

// CompileUnit compiles one checked program against the shared catalog.
// Returned diagnostics may include unit-local CompileErrors; a fatal
// target-resolution error aborts the unit immediately.
func CompileUnit(cat *catalog.Catalog, unit *source.Unit, prog *ast.Program) (*UnitResult, []errors.KestrelError) {
	c := &Compiler{
		cat:        cat,
		unit:       unit,
		moduleName: prog.Name,
		module: &il.Module{
			Name:    prog.Name,
			Exports: make(map[string]*il.Export),
			Init:    il.NoMethod,
		},
		st:        newStackTracker(),
		locals:    newLocalAllocator(0),
		generics:  make(map[string]bool),
		shadows:   make(map[il.MethodID][]StackType),
		infos:     make(map[*ast.FunctionLiteral]*fnInfo),
		shells:    make(map[*ast.FunctionLiteral]*il.Method),
		classes:   make(map[*ast.ClassDeclaration]*classInfo),
		slotDecls: make(map[*ast.LetStatement]*Symbol),
		envSlot:   -1,
	}
	c.root = c
	c.fnScope = NewSymbolTable()
	c.scope = c.fnScope
	c.b = il.NewBuilder(prog.Name+"::init", il.NoType)

	c.declareTopLevel(prog)
	if c.fatal == nil {
		c.compileTopLevel(prog)
	}
	if c.fatal != nil {
		return nil, []errors.KestrelError{c.fatal}
	}
	if len(c.errs) > 0 {
		return nil, c.errs
	}
	return &UnitResult{Module: c.module, Shadow: c.shadows}, nil
}

// child creates the compiler for a nested function body.
func (c *Compiler) child(fn *ast.FunctionLiteral, info *fnInfo, name string, owner il.TypeID) *Compiler {
	reserved := 0
	if owner != il.NoType {
		reserved = 1
	}
	nc := &Compiler{
		cat:        c.cat,
		unit:       c.unit,
		moduleName: c.moduleName,
		module:     c.module,
		st:         newStackTracker(),
		locals:     newLocalAllocator(reserved),
		enclosing:  c,
		root:       c.root,
		fn:         fn,
		info:       info,
		generics:   c.generics,
		envSlot:    -1,
	}
	nc.fnScope = NewSymbolTable()
	nc.scope = nc.fnScope
	nc.b = il.NewBuilder(name, owner)
	if fn != nil {
		for _, tp := range fn.TypeParams {
			nc.generics[canon(tp)] = true
		}
	}
	return nc
}

// finish seals the current builder into a method and registers its
// shadow trace. When shell is non-nil the built method is adopted into
// the pre-registered handle.
func (c *Compiler) finish(shell *il.Method) il.MethodID {
	m := c.b.Finish()
	if c.locals.Count() > m.NumLocals {
		m.NumLocals = c.locals.Count()
	}
	var id il.MethodID
	if shell != nil {
		adopt(shell, m)
		id = shell.ID
	} else {
		id = c.cat.AddMethod(m)
	}
	c.root.shadows[id] = c.shadow
	return id
}

// adopt copies a built method body into a pre-registered shell so that
// forward references through the shell's handle stay valid.
func adopt(shell, m *il.Method) {
	shell.NumParams = m.NumParams
	shell.NumLocals = m.NumLocals
	shell.Code = m.Code
	shell.Nums = m.Nums
	shell.Strs = m.Strs
	shell.Regions = m.Regions
	shell.Tables = m.Tables
	shell.SlotRefs = m.SlotRefs
}

// --- diagnostics ---

func (c *Compiler) errorf(pos errors.Position, format string, args ...interface{}) {
	pos.Unit = c.unit
	c.root.errs = append(c.root.errs, &errors.CompileError{
		Position: pos,
		Msg:      fmt.Sprintf(format, args...),
	})
}

func (c *Compiler) stateError(pos errors.Position, format string, args ...interface{}) {
	pos.Unit = c.unit
	c.root.errs = append(c.root.errs, &errors.StateMachineError{
		Position: pos,
		Msg:      fmt.Sprintf(format, args...),
	})
}

// fail records a fatal target-resolution error; emission stops.
func (c *Compiler) fail(err errors.KestrelError) {
	if c.root.fatal == nil {
		c.root.fatal = err
	}
}

func (c *Compiler) failed() bool { return c.root.fatal != nil }

// --- binding definition ---

// defineVar binds a declared name in the current scope, routing it to a
// local slot, a capture-container field, a machine field or, inside the
// module init body, a module storage slot.
func (c *Compiler) defineVar(name string, isConst bool) *Symbol {
	name = canon(name)
	if c.machine != nil {
		idx := c.machine.field(name)
		return c.scope.Define(&Symbol{Name: name, Kind: SymMachine, Field: idx, IsConst: isConst})
	}
	if c.fn == nil {
		// Init-level bindings live in module slots so literals reference
		// them without capture. Shadowed names get uniquified slots.
		slotName := name
		if c.module.SlotIndex(slotName) >= 0 {
			c.root.anon++
			slotName = fmt.Sprintf("%s#%d", name, c.root.anon)
		}
		c.module.Slots = append(c.module.Slots, slotName)
		return c.scope.DefineAs(name, &Symbol{
			Name: slotName, Kind: SymModuleSlot,
			Slot: len(c.module.Slots) - 1, IsConst: isConst,
		})
	}
	if c.container != nil {
		if idx, ok := c.container.fieldOf(name); ok {
			return c.scope.Define(&Symbol{
				Name: name, Kind: SymCaptured, Field: idx,
				Type: c.container.typ, IsConst: isConst,
			})
		}
	}
	slot := c.locals.Alloc()
	return c.scope.Define(&Symbol{Name: name, Kind: SymLocal, Slot: slot, IsConst: isConst})
}

// lookupLocal resolves a name within the current function only.
func (c *Compiler) lookupLocal(name string) (*Symbol, bool) {
	return c.scope.Resolve(name)
}

// resolve finds a binding: current function scopes, then enclosing
// function chains (capture access through the receiver's parent chain),
// then module scope. The boolean reports whether anything was found;
// outer reports how many function boundaries were crossed (0 = local).
func (c *Compiler) resolve(name string) (*Symbol, bool, bool) {
	name = canon(name)
	if sym, ok := c.lookupLocal(name); ok {
		return sym, true, false
	}
	for e := c.enclosing; e != nil; e = e.enclosing {
		if sym, ok := e.lookupLocal(name); ok {
			return sym, true, true
		}
	}
	if sym, ok := c.root.fnScope.Resolve(name); ok {
		return sym, true, true
	}
	return nil, false, false
}

// loadChainTo emits receiver + parent-field loads until the container
// holding name is on top of the stack, then reports that container and
// the binding's field index. The caller must have established that the
// chain reaches the binding.
func (c *Compiler) loadChainTo(name string) (*containerInfo, int32, bool) {
	cur := c.ownerCtr
	if c.recv != recvContainer || cur == nil {
		return nil, -1, false
	}
	c.loadLocal(0)
	for cur != nil {
		if idx, ok := cur.fieldOf(name); ok {
			return cur, idx, true
		}
		if cur.parentField < 0 {
			return nil, -1, false
		}
		c.loadContainerField(cur, cur.parentField)
		cur = cur.parent
	}
	return nil, -1, false
}

// loadContainerField emits a LoadField against a container, patching the
// type operand later when the container is a still-open machine.
func (c *Compiler) loadContainerField(ci *containerInfo, field int32) {
	if ci.machine != nil && ci.machine.open {
		pc := c.b.Here()
		c.ins(il.OpLoadField, -1, field)
		ci.machine.addPatch(c.b.Method(), pc)
		return
	}
	c.ins(il.OpLoadField, int32(ci.typ), field)
}

func (c *Compiler) storeContainerField(ci *containerInfo, field int32) {
	if ci.machine != nil && ci.machine.open {
		pc := c.b.Here()
		c.ins(il.OpStoreField, -1, field)
		ci.machine.addPatch(c.b.Method(), pc)
		return
	}
	c.ins(il.OpStoreField, int32(ci.typ), field)
}

// loadOwnContainer pushes this function's container instance.
func (c *Compiler) loadOwnContainer() {
	if c.machine != nil {
		c.loadLocal(0)
		return
	}
	c.loadLocal(int32(c.envSlot))
}

// currentContainer returns the container a literal defined in this
// function should be owned by: the function's own container when it has
// one, otherwise the container its receiver points at.
func (c *Compiler) currentContainer() *containerInfo {
	if c.machine != nil {
		return c.machine.asContainer()
	}
	if c.container != nil {
		return c.container
	}
	if c.recv == recvContainer {
		return c.ownerCtr
	}
	return nil
}
