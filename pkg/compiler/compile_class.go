package compiler

import (
	"fmt"

	"kestrel/pkg/ast"
	"kestrel/pkg/il"
)

// Class lowering. A declaration becomes a sealed TypeDef plus a family
// of methods:
//
//	instance methods  owned by the class type, receiver in slot 0
//	static methods    free methods named "Type::name"
//	$init             instance method running the field initializers
//	Type::$new        the constructor wrapper: allocates, runs $init,
//	                  binds instance-method delegates as extension
//	                  properties, then runs the user constructor
//
// `new C(...)` on a statically known class calls the wrapper directly;
// a class value used dynamically is a delegate to the wrapper, so
// construction through variables follows the same convention.

type classInfo struct {
	typ     il.TypeID
	wrap    *il.Method
	init    *il.Method
	ctor    *ast.ClassMethod
	ctorM   *il.Method
	methods map[*ast.ClassMethod]*il.Method
}

// declareClass registers the TypeDef and every method shell so that
// bodies compiled later can reference members in any order.
func (c *Compiler) declareClass(s *ast.ClassDeclaration) {
	name := canon(s.Name.Value)
	typeName := fmt.Sprintf("%s::%s", c.moduleName, name)

	var fields, statics []string
	for _, f := range s.Fields {
		fname := canon(f.Name)
		if f.Private {
			fname = "#" + fname
		}
		if f.Static {
			statics = append(statics, fname)
		} else {
			fields = append(fields, fname)
		}
	}
	td, err := c.cat.DefineType(typeName, il.ClassType, fields, statics)
	if err != nil {
		c.errorf(s.Pos(), "duplicate class %q", s.Name.Value)
		return
	}

	info := &classInfo{
		typ:     td.ID,
		methods: make(map[*ast.ClassMethod]*il.Method),
	}
	ctorArity := 0
	for _, m := range s.Methods {
		mname := canon(m.Name)
		if !m.Static && mname == "constructor" {
			info.ctor = m
			ctorArity = len(m.Fn.Parameters)
			info.ctorM = &il.Method{
				ID: il.NoMethod, Name: "constructor", Owner: td.ID,
				NumParams: ctorArity,
			}
			c.cat.AddMethod(info.ctorM)
			continue
		}
		shell := &il.Method{ID: il.NoMethod, NumParams: len(m.Fn.Parameters)}
		if m.Static {
			shell.Name = typeName + "::" + mname
			shell.Owner = il.NoType
		} else {
			shell.Name = mname
			shell.Owner = td.ID
		}
		c.cat.AddMethod(shell)
		info.methods[m] = shell
	}

	info.init = &il.Method{ID: il.NoMethod, Name: "$init", Owner: td.ID}
	c.cat.AddMethod(info.init)
	info.wrap = &il.Method{
		ID: il.NoMethod, Name: typeName + "::$new", Owner: il.NoType,
		NumParams: ctorArity,
	}
	c.cat.AddMethod(info.wrap)

	c.root.classes[s] = info
	c.fnScope.Define(&Symbol{
		Name: name, Kind: SymClass,
		Type: td.ID, Wrap: info.wrap.ID, IsConst: true,
	})
}

// compileClassBody emits every method of a declared class plus its
// static field initializers (which run at declaration position in the
// module init).
func (c *Compiler) compileClassBody(s *ast.ClassDeclaration) {
	info, ok := c.root.classes[s]
	if !ok {
		c.errorf(s.Pos(), "internal: class %q was never declared", s.Name.Value)
		return
	}
	td := c.cat.TypeByID(info.typ)

	c.emitClassInit(s, info)
	for _, m := range s.Methods {
		if m == info.ctor {
			c.compileClassMethod(m, info.ctorM, info)
			continue
		}
		c.compileClassMethod(m, info.methods[m], info)
	}
	c.emitClassWrapper(s, info)

	// Static field initializers.
	for _, f := range s.Fields {
		if !f.Static || f.Value == nil {
			continue
		}
		fname := canon(f.Name)
		if f.Private {
			fname = "#" + fname
		}
		c.setLine(s)
		c.compileExpression(f.Value)
		c.ensureBoxed()
		c.ins(il.OpStoreStatic, int32(info.typ), td.StaticIndex(fname))
	}
}

// emitClassInit builds $init: field initializers against a fresh
// instance, declaration order. Initializer literals may capture the
// receiver, so $init gets its own capture analysis.
func (c *Compiler) emitClassInit(s *ast.ClassDeclaration, info *classInfo) {
	fi := newFnInfo()
	fi.declared["this"] = true
	a := &analysis{info: fi, memo: c.root.infos, refs: make(map[string]bool), childFree: make(map[string]bool)}
	for _, f := range s.Fields {
		if !f.Static {
			a.expr(f.Value)
		}
	}
	a.finish()

	ic := c.child(&ast.FunctionLiteral{}, fi, "$init", info.typ)
	ic.recv = recvClass
	ic.thisClass = info.typ
	ic.setupContainer(nil)
	td := c.cat.TypeByID(info.typ)
	for _, f := range s.Fields {
		if f.Static || f.Value == nil {
			continue
		}
		fname := canon(f.Name)
		if f.Private {
			fname = "#" + fname
		}
		ic.loadLocal(0)
		ic.compileExpression(f.Value)
		ic.ensureBoxed()
		ic.ins(il.OpStoreField, int32(info.typ), td.FieldIndex(fname))
	}
	ic.ins(il.OpReturnUndef, 0, 0)
	ic.finish(info.init)
}

func (c *Compiler) compileClassMethod(m *ast.ClassMethod, shell *il.Method, info *classInfo) {
	fn := m.Fn
	fi := analyzeFn(fn, c.root.infos)
	if fn.IsAsync && fn.IsGenerator {
		c.errorf(m.Position, "async generators are not supported")
		return
	}
	thisType := il.NoType
	if !m.Static {
		thisType = info.typ
	}
	qname := c.cat.TypeByID(info.typ).Name + "." + canon(m.Name)
	if fn.IsAsync {
		c.lowerAsync(fn, fi, qname, shell, false, thisType)
		return
	}
	if fn.IsGenerator {
		c.lowerGenerator(fn, fi, qname, shell, false, thisType)
		return
	}

	nc := c.child(fn, fi, shell.Name, shell.Owner)
	if !m.Static {
		nc.recv = recvClass
		nc.thisClass = info.typ
	}
	copies := nc.setupParams(fn)
	nc.setupContainer(copies)
	nc.compileBlock(fn.Body)
	nc.ins(il.OpReturnUndef, 0, 0)
	nc.finish(shell)
}

// emitClassWrapper builds Type::$new.
func (c *Compiler) emitClassWrapper(s *ast.ClassDeclaration, info *classInfo) {
	wc := c.child(nil, nil, info.wrap.Name, il.NoType)
	arity := info.wrap.NumParams
	wc.b.Method().NumParams = arity
	paramSlots := make([]int32, arity)
	for i := range paramSlots {
		paramSlots[i] = int32(wc.locals.Alloc())
	}
	oSlot := int32(wc.locals.Alloc())

	wc.ins(il.OpNewObject, int32(info.typ), 0)
	wc.storeLocal(oSlot)
	wc.loadLocal(oSlot)
	wc.callMethod(info.init.ID, 0)
	wc.ins(il.OpPop, 0, 0)

	// Instance methods double as dynamic properties, so method values
	// fetched through variables or passed around stay callable.
	for _, m := range s.Methods {
		if m.Static || m == info.ctor {
			continue
		}
		shell := info.methods[m]
		wc.loadLocal(oSlot)
		wc.loadStr(canon(m.Name))
		wc.loadLocal(oSlot)
		wc.ins(il.OpNewDelegate, int32(shell.ID), 0)
		wc.sys("Sys.Obj.extSet", 3)
		wc.ins(il.OpPop, 0, 0)
	}

	if info.ctor != nil {
		wc.loadLocal(oSlot)
		for _, p := range paramSlots {
			wc.loadLocal(p)
		}
		wc.callMethod(info.ctorM.ID, arity)
		wc.ins(il.OpPop, 0, 0)
	}
	wc.loadLocal(oSlot)
	wc.ins(il.OpReturn, 0, 0)
	wc.finish(info.wrap)
}
