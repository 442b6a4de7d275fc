package compiler

import (
	"strings"

	"kestrel/pkg/ast"
	"kestrel/pkg/errors"
	"kestrel/pkg/il"
)

// Assignment lowering evaluates each target component exactly once:
// member/index objects and keys are computed into temporaries before
// the value, so compound forms and the final store see the same
// locations.

func (c *Compiler) compileAssignment(e *ast.AssignmentExpression) {
	op := strings.TrimSuffix(e.Operator, "=")
	switch target := e.Target.(type) {
	case *ast.Identifier:
		c.compileAssignIdent(target, op, e)
	case *ast.MemberExpression:
		c.compileAssignMember(target, op, e)
	case *ast.IndexExpression:
		c.compileAssignIndex(target, op, e)
	default:
		c.errorf(e.Pos(), "invalid assignment target %T", e.Target)
		c.ins(il.OpLoadUndef, 0, 0)
	}
}

func (c *Compiler) compileAssignIdent(target *ast.Identifier, op string, e *ast.AssignmentExpression) {
	if op == "" {
		c.compileExpression(e.Value)
		c.ensureBoxed()
		c.ins(il.OpDup, 0, 0)
		c.storeBinding(target.Value, e.Pos())
		return
	}
	c.compileIdentifier(target)
	c.applyBinary(op, e.Value, e.Pos())
	c.ensureBoxed()
	c.ins(il.OpDup, 0, 0)
	c.storeBinding(target.Value, e.Pos())
}

func (c *Compiler) compileAssignMember(target *ast.MemberExpression, op string, e *ast.AssignmentExpression) {
	// Declared-field fast paths keep typed stores direct; private fields
	// require one.
	if target.Private {
		idx, ok := c.privateField(target)
		if !ok {
			c.ins(il.OpLoadUndef, 0, 0)
			return
		}
		c.emitFieldAssign(c.thisClass, idx, op, e)
		return
	}
	if c.classStaticAssign(target, op, e) {
		return
	}
	if _, isThis := target.Object.(*ast.ThisExpression); isThis && c.recv == recvClass {
		td := c.cat.TypeByID(c.thisClass)
		if idx := td.FieldIndex(canon(target.Property)); idx >= 0 {
			c.emitFieldAssign(c.thisClass, idx, op, e)
			return
		}
	}

	objT := c.newTemp()
	c.compileExpression(target.Object)
	c.ensureBoxed()
	c.storeTemp(objT)

	if op == "" {
		c.compileExpression(e.Value)
		c.ensureBoxed()
	} else {
		c.loadTemp(objT)
		c.loadStr(canon(target.Property))
		c.rt("getProp", 2)
		c.applyBinary(op, e.Value, e.Pos())
		c.ensureBoxed()
	}
	valT := c.newTemp()
	c.storeTemp(valT)

	c.loadTemp(objT)
	c.loadStr(canon(target.Property))
	c.loadTemp(valT)
	c.rt("setProp", 3)
	c.ins(il.OpPop, 0, 0)
	c.loadTemp(valT)
	c.freeTemp(valT)
	c.freeTemp(objT)
}

// emitFieldAssign handles `this.f op= v` against a declared field.
func (c *Compiler) emitFieldAssign(typ il.TypeID, idx int32, op string, e *ast.AssignmentExpression) {
	if op == "" {
		c.compileExpression(e.Value)
		c.ensureBoxed()
	} else {
		c.loadLocal(0)
		c.ins(il.OpLoadField, int32(typ), idx)
		c.applyBinary(op, e.Value, e.Pos())
		c.ensureBoxed()
	}
	c.ins(il.OpDup, 0, 0)
	c.loadLocal(0)
	c.ins(il.OpSwap, 0, 0)
	c.ins(il.OpStoreField, int32(typ), idx)
}

// classStaticAssign handles ClassName.member op= v.
func (c *Compiler) classStaticAssign(target *ast.MemberExpression, op string, e *ast.AssignmentExpression) bool {
	id, ok := target.Object.(*ast.Identifier)
	if !ok {
		return false
	}
	sym, found, _ := c.resolve(canon(id.Value))
	if !found || sym.Kind != SymClass {
		return false
	}
	td := c.cat.TypeByID(sym.Type)
	idx := td.StaticIndex(canon(target.Property))
	if idx < 0 {
		c.errorf(e.Pos(), "unknown static member %q on class %q", target.Property, id.Value)
		c.ins(il.OpLoadUndef, 0, 0)
		return true
	}
	if op == "" {
		c.compileExpression(e.Value)
		c.ensureBoxed()
	} else {
		c.ins(il.OpLoadStatic, int32(sym.Type), idx)
		c.applyBinary(op, e.Value, e.Pos())
		c.ensureBoxed()
	}
	c.ins(il.OpDup, 0, 0)
	c.ins(il.OpStoreStatic, int32(sym.Type), idx)
	return true
}

func (c *Compiler) compileAssignIndex(target *ast.IndexExpression, op string, e *ast.AssignmentExpression) {
	objT := c.newTemp()
	keyT := c.newTemp()
	c.compileExpression(target.Object)
	c.ensureBoxed()
	c.storeTemp(objT)
	c.compileExpression(target.Index)
	c.ensureBoxed()
	c.storeTemp(keyT)

	if op == "" {
		c.compileExpression(e.Value)
		c.ensureBoxed()
	} else {
		c.loadTemp(objT)
		c.loadTemp(keyT)
		c.rt("getProp", 2)
		c.applyBinary(op, e.Value, e.Pos())
		c.ensureBoxed()
	}
	valT := c.newTemp()
	c.storeTemp(valT)

	c.loadTemp(objT)
	c.loadTemp(keyT)
	c.loadTemp(valT)
	c.rt("setProp", 3)
	c.ins(il.OpPop, 0, 0)
	c.loadTemp(valT)
	c.freeTemp(valT)
	c.freeTemp(keyT)
	c.freeTemp(objT)
}

// applyBinary folds `<top> op value` into a single result on the stack.
func (c *Compiler) applyBinary(op string, value ast.Expression, pos errors.Position) {
	switch op {
	case "+":
		if c.st.top() == StString || stringOperand(value) {
			c.toStringTop()
			c.compileAsString(value)
			c.ins(il.OpConcat, 0, 0)
			return
		}
		if c.st.top() == StDouble && numericOperand(value) {
			c.compileAsNumber(value)
			c.ins(il.OpAddNum, 0, 0)
			return
		}
		c.ensureBoxed()
		c.compileExpression(value)
		c.ensureBoxed()
		c.rt("add", 2)
	case "-", "*", "/", "%", "**":
		c.asNumber()
		c.compileAsNumber(value)
		c.ins(numOps[op], 0, 0)
	default:
		c.errorf(pos, "unsupported compound operator %q=", op)
	}
}

func (c *Compiler) toStringTop() {
	if c.st.top() != StString {
		c.ensureBoxed()
		c.rt("toString", 1)
	}
}

// compileUpdate lowers ++/-- with evaluate-once targets. The expression
// value is the old raw number for postfix forms, the new one for
// prefix.
func (c *Compiler) compileUpdate(e *ast.UpdateExpression) {
	op := il.OpAddNum
	if e.Operator == "--" {
		op = il.OpSubNum
	}
	switch target := e.Target.(type) {
	case *ast.Identifier:
		c.compileIdentifier(target)
		c.asNumber()
		if !e.Prefix {
			c.ins(il.OpDup, 0, 0)
			c.loadNum(1)
			c.ins(op, 0, 0)
			c.ensureBoxed()
			c.storeBinding(target.Value, e.Pos())
			return
		}
		c.loadNum(1)
		c.ins(op, 0, 0)
		c.ins(il.OpDup, 0, 0)
		c.ensureBoxed()
		c.storeBinding(target.Value, e.Pos())

	case *ast.MemberExpression, *ast.IndexExpression:
		objT := c.newTemp()
		keyT := c.newTemp()
		if m, ok := target.(*ast.MemberExpression); ok {
			c.compileExpression(m.Object)
			c.ensureBoxed()
			c.storeTemp(objT)
			c.loadStr(canon(m.Property))
			c.storeTemp(keyT)
		} else {
			ix := target.(*ast.IndexExpression)
			c.compileExpression(ix.Object)
			c.ensureBoxed()
			c.storeTemp(objT)
			c.compileExpression(ix.Index)
			c.ensureBoxed()
			c.storeTemp(keyT)
		}
		c.loadTemp(objT)
		c.loadTemp(keyT)
		c.rt("getProp", 2)
		c.asNumber()
		valT := c.newTemp()
		if !e.Prefix {
			c.ins(il.OpDup, 0, 0)
			c.loadNum(1)
			c.ins(op, 0, 0)
			c.ensureBoxed()
			c.storeTemp(valT)
		} else {
			c.loadNum(1)
			c.ins(op, 0, 0)
			c.ins(il.OpDup, 0, 0)
			c.ensureBoxed()
			c.storeTemp(valT)
		}
		c.loadTemp(objT)
		c.loadTemp(keyT)
		c.loadTemp(valT)
		c.rt("setProp", 3)
		c.ins(il.OpPop, 0, 0)
		c.freeTemp(valT)
		c.freeTemp(keyT)
		c.freeTemp(objT)

	default:
		c.errorf(e.Pos(), "invalid update target %T", e.Target)
		c.ins(il.OpLoadUndef, 0, 0)
	}
}
