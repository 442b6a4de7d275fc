package compiler

import (
	"fmt"

	"kestrel/pkg/ast"
	"kestrel/pkg/errors"
	"kestrel/pkg/il"
)

// Top-level declaration pass. Imports, function declarations and
// classes are registered before any body compiles, so top-level code
// can reference them in any order; exports are recorded and resolved
// once the init body is complete.

func (c *Compiler) declareTopLevel(prog *ast.Program) {
	for _, s := range prog.Statements {
		switch s := s.(type) {
		case *ast.ImportDeclaration:
			c.declareImport(s)
		case *ast.LetStatement:
			c.predeclareLet(s)
		case *ast.ExpressionStatement:
			if fl, ok := s.Expression.(*ast.FunctionLiteral); ok && fl.IsDeclaration && fl.Name != nil {
				c.declareFunction(fl)
			}
		case *ast.ClassDeclaration:
			c.declareClass(s)
		case *ast.ExportNamedDeclaration:
			c.declareExport(s)
		case *ast.ExportDefaultDeclaration:
		}
		if c.failed() {
			return
		}
	}
}

// predeclareLet reserves a module slot for a top-level binding before
// any body compiles, so earlier functions can reference bindings
// declared later in the unit. The init body stores into the reserved
// slot when the statement executes.
func (c *Compiler) predeclareLet(s *ast.LetStatement) {
	c.root.slotDecls[s] = c.defineVar(s.Name.Value, s.IsConst)
}

func (c *Compiler) addRequire(src string) {
	for _, r := range c.module.Requires {
		if r == src {
			return
		}
	}
	c.module.Requires = append(c.module.Requires, src)
}

// newModuleSlot appends a storage slot, uniquifying shadowed names.
func (c *Compiler) newModuleSlot(name string) (string, int) {
	slotName := name
	if c.module.SlotIndex(slotName) >= 0 {
		c.root.anon++
		slotName = fmt.Sprintf("%s#%d", name, c.root.anon)
	}
	c.module.Slots = append(c.module.Slots, slotName)
	return slotName, len(c.module.Slots) - 1
}

func (c *Compiler) declareImport(s *ast.ImportDeclaration) {
	c.addRequire(s.Source)
	for _, spec := range s.Specifiers {
		local := canon(spec.Local)
		switch spec.Kind {
		case ast.ImportNamed:
			c.fnScope.Define(&Symbol{
				Name: local, Kind: SymImport,
				Module: s.Source, Import: canon(spec.Imported), IsConst: true,
			})
		case ast.ImportDefault:
			c.fnScope.Define(&Symbol{
				Name: local, Kind: SymImport,
				Module: s.Source, Import: il.DefaultExportKey, IsConst: true,
			})
		case ast.ImportNamespace:
			slotName, idx := c.newModuleSlot(local)
			c.module.Namespaces = append(c.module.Namespaces, il.NamespaceImport{
				Source: s.Source, Slot: int32(idx),
			})
			c.fnScope.Define(&Symbol{
				Name: slotName, Kind: SymModuleSlot, Slot: idx, IsConst: true,
			})
		}
	}
}

// declareFunction hoists a top-level function declaration. Nothing at
// module scope is capturable, so every top-level declaration compiles
// as a free static method.
func (c *Compiler) declareFunction(fl *ast.FunctionLiteral) {
	name := canon(fl.Name.Value)
	shell := &il.Method{
		ID: il.NoMethod, Name: c.methodName(name),
		Owner: il.NoType, NumParams: len(fl.Parameters),
	}
	c.cat.AddMethod(shell)
	c.root.shells[fl] = shell
	c.fnScope.Define(&Symbol{Name: name, Kind: SymFunction, Method: shell.ID})
}

func (c *Compiler) declareExport(s *ast.ExportNamedDeclaration) {
	if s.Declaration != nil {
		switch d := s.Declaration.(type) {
		case *ast.LetStatement:
			c.predeclareLet(d)
			c.addPendingExport(canon(d.Name.Value), canon(d.Name.Value), s.Pos())
		case *ast.ExpressionStatement:
			if fl, ok := d.Expression.(*ast.FunctionLiteral); ok && fl.IsDeclaration && fl.Name != nil {
				c.declareFunction(fl)
				c.addPendingExport(canon(fl.Name.Value), canon(fl.Name.Value), s.Pos())
			}
		case *ast.ClassDeclaration:
			c.declareClass(d)
			c.addPendingExport(canon(d.Name.Value), canon(d.Name.Value), s.Pos())
		}
		return
	}
	if s.Source != "" {
		c.addRequire(s.Source)
		for _, spec := range s.Specifiers {
			exported := canon(spec.Exported)
			if _, dup := c.module.Exports[exported]; dup {
				c.errorf(s.Pos(), "duplicate export %q", exported)
				continue
			}
			c.module.Exports[exported] = &il.Export{
				Name: exported, From: s.Source, Imported: canon(spec.Local),
			}
		}
		return
	}
	for _, spec := range s.Specifiers {
		c.addPendingExport(canon(spec.Local), canon(spec.Exported), s.Pos())
	}
}

func (c *Compiler) addPendingExport(local, exported string, pos errors.Position) {
	c.root.exports = append(c.root.exports, pendingExport{local: local, exported: exported, pos: pos})
}

// --- init body emission ---

func (c *Compiler) compileTopLevel(prog *ast.Program) {
	for _, s := range prog.Statements {
		if c.failed() {
			break
		}
		switch s := s.(type) {
		case *ast.ImportDeclaration:
		case *ast.ExportNamedDeclaration:
			if s.Declaration != nil {
				c.compileStatement(s.Declaration)
			}
		case *ast.ExportDefaultDeclaration:
			c.compileDefaultExport(s)
		default:
			c.compileStatement(s)
		}
	}
	if c.failed() {
		return
	}
	c.resolveExports()
	c.ins(il.OpReturnUndef, 0, 0)
	c.module.Init = c.finish(nil)
}

func (c *Compiler) compileDefaultExport(s *ast.ExportDefaultDeclaration) {
	if _, dup := c.module.Exports[il.DefaultExportKey]; dup {
		c.errorf(s.Pos(), "duplicate default export")
		return
	}
	c.setLine(s)
	c.compileExpression(s.Value)
	c.ensureBoxed()
	slotName, idx := c.newModuleSlot(il.DefaultExportKey)
	c.storeSlot(c.moduleName, slotName)
	c.module.Exports[il.DefaultExportKey] = &il.Export{
		Name: il.DefaultExportKey, Slot: int32(idx),
	}
}

// resolveExports binds recorded export names now that every top-level
// binding exists. Functions and classes get a slot holding their
// delegate, so importers observe ordinary values.
func (c *Compiler) resolveExports() {
	for _, pe := range c.root.exports {
		if _, dup := c.module.Exports[pe.exported]; dup {
			c.errorf(pe.pos, "duplicate export %q", pe.exported)
			continue
		}
		sym, ok := c.fnScope.Resolve(pe.local)
		if !ok {
			c.errorf(pe.pos, "export of undeclared name %q", pe.local)
			continue
		}
		switch sym.Kind {
		case SymModuleSlot:
			c.module.Exports[pe.exported] = &il.Export{
				Name: pe.exported, Slot: int32(sym.Slot),
			}
		case SymFunction:
			slotName, idx := c.newModuleSlot(pe.exported)
			c.ins(il.OpLoadNull, 0, 0)
			c.ins(il.OpNewDelegate, int32(sym.Method), 0)
			c.storeSlot(c.moduleName, slotName)
			c.module.Exports[pe.exported] = &il.Export{Name: pe.exported, Slot: int32(idx)}
		case SymClass:
			slotName, idx := c.newModuleSlot(pe.exported)
			c.ins(il.OpLoadNull, 0, 0)
			c.ins(il.OpNewDelegate, int32(sym.Wrap), 0)
			c.storeSlot(c.moduleName, slotName)
			c.module.Exports[pe.exported] = &il.Export{Name: pe.exported, Slot: int32(idx)}
		case SymImport:
			c.module.Exports[pe.exported] = &il.Export{
				Name: pe.exported, From: sym.Module, Imported: sym.Import,
			}
		default:
			c.errorf(pe.pos, "cannot export %q", pe.local)
		}
	}
}
