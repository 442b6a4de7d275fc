package compiler

import (
	"fmt"
	"sort"

	"kestrel/pkg/ast"
	"kestrel/pkg/il"
)

type paramCopy struct {
	slot int32
	name string
}

// capturesEnclosing reports whether a literal defined in this context
// reaches bindings of enclosing function activations. Frees that only
// resolve at module scope (slots, declarations, builtins) don't count.
func (c *Compiler) capturesEnclosing(info *fnInfo) bool {
	for name := range info.free {
		if name == "this" {
			if c.providesThis() {
				return true
			}
			continue
		}
		for e := c; e != nil; e = e.enclosing {
			sym, ok := e.lookupLocal(name)
			if !ok {
				continue
			}
			switch sym.Kind {
			case SymLocal, SymCaptured, SymMachine:
				return true
			}
			break // module-level binding shadows nothing capturable
		}
	}
	return false
}

func (c *Compiler) providesThis() bool {
	return c.recv != recvNone || c.machine != nil
}

// methodName builds a unique handle-friendly name for a nested literal.
func (c *Compiler) methodName(base string) string {
	c.root.anon++
	return fmt.Sprintf("%s::%s#%d", c.moduleName, base, c.root.anon)
}

// compileFunction compiles a literal into a method (or, for async and
// generator literals, into an entry thunk plus the machinery behind
// it). The returned flag reports whether the callable is an instance
// method of the definer's container; the caller binds the delegate
// accordingly.
func (c *Compiler) compileFunction(fn *ast.FunctionLiteral, name string, shell *il.Method) (il.MethodID, bool) {
	info := analyzeFn(fn, c.root.infos)
	if fn.IsAsync && fn.IsGenerator {
		c.errorf(fn.Pos(), "async generators are not supported")
		return il.NoMethod, false
	}

	needsRecv := c.capturesEnclosing(info)
	owner := il.NoType
	var ownerMachine *machineCtx
	if needsRecv {
		ci := c.currentContainer()
		if ci == nil {
			c.errorf(fn.Pos(), "internal: no capture environment for %q", name)
			needsRecv = false
		} else if ci.machine != nil && ci.machine.open {
			owner = pendingOwner
			ownerMachine = ci.machine
		} else {
			owner = ci.typ
		}
	}

	if shell == nil {
		shell = &il.Method{ID: il.NoMethod, Name: name, Owner: owner}
		c.cat.AddMethod(shell)
	} else {
		shell.Owner = owner
	}
	if ownerMachine != nil {
		ownerMachine.ownerPatches = append(ownerMachine.ownerPatches, shell)
	}

	if fn.IsAsync {
		return c.lowerAsync(fn, info, name, shell, needsRecv, il.NoType), needsRecv
	}
	if fn.IsGenerator {
		return c.lowerGenerator(fn, info, name, shell, needsRecv, il.NoType), needsRecv
	}

	nc := c.child(fn, info, name, owner)
	if needsRecv {
		nc.recv = recvContainer
		nc.ownerCtr = c.currentContainer()
	}
	copies := nc.setupParams(fn)
	nc.setupContainer(copies)
	nc.defineSelf(fn, shell, needsRecv)
	nc.compileBlock(fn.Body)
	nc.ins(il.OpReturnUndef, 0, 0)
	id := nc.finish(shell)
	return id, needsRecv
}

// compileFunctionValue emits a literal at an expression site, leaving
// the function value on the stack.
func (c *Compiler) compileFunctionValue(fn *ast.FunctionLiteral) {
	base := "fn"
	if fn.Name != nil {
		base = canon(fn.Name.Value)
	}
	id, bound := c.compileFunction(fn, c.methodName(base), nil)
	c.emitDelegate(id, bound)
}

// emitDelegate pushes a function value for a compiled method. Bound
// delegates target the definer's current container instance.
func (c *Compiler) emitDelegate(id il.MethodID, bound bool) {
	if bound {
		c.loadCurrentContainer()
	} else {
		c.ins(il.OpLoadNull, 0, 0)
	}
	c.ins(il.OpNewDelegate, int32(id), 0)
}

// loadCurrentContainer pushes the container instance literals defined
// here are owned by.
func (c *Compiler) loadCurrentContainer() {
	if c.machine != nil {
		c.loadLocal(0)
		return
	}
	if c.container != nil {
		c.loadLocal(int32(c.envSlot))
		return
	}
	c.loadLocal(0)
}

// setupParams allocates parameter slots. Captured parameters get their
// slot too (the call convention fills it) but bind through the
// container; the entry sequence copies them over.
func (nc *Compiler) setupParams(fn *ast.FunctionLiteral) []paramCopy {
	nc.b.Method().NumParams = len(fn.Parameters)
	var copies []paramCopy
	for _, p := range fn.Parameters {
		slot := nc.locals.Alloc()
		name := canon(p.Value)
		if nc.info.captured[name] {
			copies = append(copies, paramCopy{slot: int32(slot), name: name})
			continue
		}
		nc.fnScope.Define(&Symbol{Name: name, Kind: SymLocal, Slot: slot})
	}
	return copies
}

// setupContainer synthesizes the capture container when any binding of
// this function is captured by a nested literal, and emits the entry
// sequence that allocates it and seeds parent link, captured parameters
// and the lexical receiver.
func (nc *Compiler) setupContainer(copies []paramCopy) {
	if len(nc.info.captured) == 0 {
		return
	}
	names := make([]string, 0, len(nc.info.captured))
	for n := range nc.info.captured {
		names = append(names, n)
	}
	sort.Strings(names)

	parentField := int32(-1)
	if nc.recv == recvContainer {
		names = append(names, "@parent")
		parentField = int32(len(names) - 1)
	}
	nc.root.anon++
	typeName := fmt.Sprintf("%s$env%d", nc.b.Method().Name, nc.root.anon)
	t, err := nc.cat.DefineType(typeName, il.CaptureType, names, nil)
	if err != nil {
		nc.errorf(nc.fn.Pos(), "internal: %v", err)
		return
	}
	fields := make(map[string]int32, len(names))
	for i, n := range names {
		fields[n] = int32(i)
	}
	nc.container = &containerInfo{
		typ:         t.ID,
		fields:      fields,
		parentField: parentField,
		parent:      nc.ownerCtr,
	}
	nc.envSlot = nc.locals.Alloc()

	nc.ins(il.OpNewObject, int32(t.ID), 0)
	if parentField >= 0 {
		nc.ins(il.OpDup, 0, 0)
		nc.loadLocal(0)
		nc.ins(il.OpStoreField, int32(t.ID), parentField)
	}
	for _, pc := range copies {
		nc.ins(il.OpDup, 0, 0)
		nc.loadLocal(pc.slot)
		nc.ins(il.OpStoreField, int32(t.ID), fields[pc.name])
		nc.fnScope.Define(&Symbol{Name: pc.name, Kind: SymCaptured, Field: fields[pc.name], Type: t.ID})
	}
	if idx, ok := fields["this"]; ok {
		nc.ins(il.OpDup, 0, 0)
		if nc.recv == recvClass {
			nc.loadLocal(0)
		} else {
			nc.ins(il.OpLoadUndef, 0, 0)
		}
		nc.ins(il.OpStoreField, int32(t.ID), idx)
	}
	nc.storeLocal(int32(nc.envSlot))
}

// defineSelf makes a named function expression resolvable inside its
// own body.
func (nc *Compiler) defineSelf(fn *ast.FunctionLiteral, shell *il.Method, bound bool) {
	if fn.Name == nil || fn.IsDeclaration {
		return
	}
	nc.fnScope.Define(&Symbol{
		Name:   canon(fn.Name.Value),
		Kind:   SymFunction,
		Method: shell.ID,
		Bound:  bound,
	})
}

// compileBlock compiles statements in a fresh lexical scope. Static
// nested function declarations are hoisted so mutual recursion works;
// capturing declarations bind at their statement position.
func (c *Compiler) compileBlock(b *ast.BlockStatement) {
	if b == nil {
		return
	}
	c.scope = NewEnclosedSymbolTable(c.scope)
	c.hoistFunctions(b.Statements)
	for _, s := range b.Statements {
		if c.failed() {
			break
		}
		c.compileStatement(s)
	}
	c.scope = c.scope.Outer
}

func (c *Compiler) hoistFunctions(stmts []ast.Statement) {
	for _, s := range stmts {
		es, ok := s.(*ast.ExpressionStatement)
		if !ok {
			continue
		}
		fl, ok := es.Expression.(*ast.FunctionLiteral)
		if !ok || !fl.IsDeclaration || fl.Name == nil {
			continue
		}
		info := analyzeFn(fl, c.root.infos)
		if c.capturesEnclosing(info) {
			continue // binds like a let at its statement position
		}
		name := canon(fl.Name.Value)
		shell := &il.Method{ID: il.NoMethod, Name: c.methodName(name), Owner: il.NoType}
		c.cat.AddMethod(shell)
		c.root.shells[fl] = shell
		c.scope.Define(&Symbol{Name: name, Kind: SymFunction, Method: shell.ID})
	}
}

// compileFunctionDecl handles a declaration statement encountered in a
// block body.
func (c *Compiler) compileFunctionDecl(fl *ast.FunctionLiteral) {
	name := canon(fl.Name.Value)
	if shell, ok := c.root.shells[fl]; ok {
		c.compileFunction(fl, shell.Name, shell)
		return
	}
	id, bound := c.compileFunction(fl, c.methodName(name), nil)
	c.emitDelegate(id, bound)
	sym := c.defineVar(name, false)
	c.storeNamed(sym)
}
