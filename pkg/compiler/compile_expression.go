package compiler

import (
	"kestrel/pkg/ast"
	"kestrel/pkg/builtins"
	"kestrel/pkg/errors"
	"kestrel/pkg/il"
)

// compileExpression emits code leaving exactly one value on the stack.
// The tracked type of that value reflects what is physically there:
// consumers box, unbox or coerce based on it.
func (c *Compiler) compileExpression(e ast.Expression) {
	if c.failed() {
		return
	}
	c.setLine(e)
	switch e := e.(type) {
	case *ast.NumberLiteral:
		c.loadNum(e.Value)
	case *ast.StringLiteral:
		c.loadStr(e.Value)
	case *ast.BooleanLiteral:
		if e.Value {
			c.ins(il.OpLoadTrue, 0, 0)
		} else {
			c.ins(il.OpLoadFalse, 0, 0)
		}
	case *ast.NullLiteral:
		c.ins(il.OpLoadNull, 0, 0)
	case *ast.UndefinedLiteral:
		c.ins(il.OpLoadUndef, 0, 0)
	case *ast.RegexLiteral:
		c.compileRegex(e)
	case *ast.TemplateLiteral:
		c.compileTemplate(e)
	case *ast.ArrayLiteral:
		c.compileArrayLiteral(e)
	case *ast.ObjectLiteral:
		c.compileObjectLiteral(e)
	case *ast.FunctionLiteral:
		c.compileFunctionValue(e)
	case *ast.Identifier:
		c.compileIdentifier(e)
	case *ast.ThisExpression:
		c.compileThis()
	case *ast.PrefixExpression:
		c.compilePrefix(e)
	case *ast.InfixExpression:
		c.compileInfix(e)
	case *ast.TernaryExpression:
		c.compileTernary(e)
	case *ast.AssignmentExpression:
		c.compileAssignment(e)
	case *ast.UpdateExpression:
		c.compileUpdate(e)
	case *ast.MemberExpression:
		c.compileMember(e)
	case *ast.IndexExpression:
		c.compileIndexLoad(e)
	case *ast.CallExpression:
		c.compileCall(e)
	case *ast.NewExpression:
		c.compileNew(e)
	case *ast.AwaitExpression:
		c.compileAwait(e)
	case *ast.YieldExpression:
		c.compileYield(e)
	default:
		c.errorf(e.Pos(), "unsupported expression kind %T", e)
		c.ins(il.OpLoadUndef, 0, 0)
	}
}

// --- identifiers and receivers ---

func (c *Compiler) compileIdentifier(id *ast.Identifier) {
	name := canon(id.Value)
	sym, ok, outer := c.resolve(name)
	if !ok {
		if builtins.IsUserVisible(name) {
			mid, err := c.cat.Builtin(name)
			if err != nil {
				c.fail(err)
				return
			}
			c.ins(il.OpLoadNull, 0, 0)
			c.ins(il.OpNewDelegate, int32(mid), 0)
			return
		}
		c.errorf(id.Pos(), "unresolved identifier %q", id.Value)
		c.ins(il.OpLoadUndef, 0, 0)
		return
	}
	c.loadBinding(sym, outer, id.Pos())
}

func (c *Compiler) loadBinding(sym *Symbol, outer bool, pos errors.Position) {
	switch sym.Kind {
	case SymLocal:
		if outer {
			c.errorf(pos, "internal: uncaptured outer binding %q", sym.Name)
			c.ins(il.OpLoadUndef, 0, 0)
			return
		}
		c.loadLocal(int32(sym.Slot))
	case SymCaptured:
		if !outer {
			c.loadLocal(int32(c.envSlot))
			c.ins(il.OpLoadField, int32(sym.Type), sym.Field)
			return
		}
		c.loadViaChain(sym.Name, pos)
	case SymMachine:
		if !outer {
			c.loadLocal(0)
			c.loadContainerField(c.machine.asContainer(), sym.Field)
			return
		}
		c.loadViaChain(sym.Name, pos)
	case SymModuleSlot:
		c.loadSlot(c.moduleName, sym.Name)
	case SymImport:
		c.loadSlot(sym.Module, sym.Import)
	case SymFunction:
		if sym.Bound {
			c.loadLocal(0)
		} else {
			c.ins(il.OpLoadNull, 0, 0)
		}
		c.ins(il.OpNewDelegate, int32(sym.Method), 0)
	case SymClass:
		c.ins(il.OpLoadNull, 0, 0)
		c.ins(il.OpNewDelegate, int32(sym.Wrap), 0)
	}
}

func (c *Compiler) loadViaChain(name string, pos errors.Position) {
	ci, idx, ok := c.loadChainTo(name)
	if !ok {
		c.errorf(pos, "internal: capture chain does not reach %q", name)
		c.ins(il.OpLoadUndef, 0, 0)
		return
	}
	c.loadContainerField(ci, idx)
}

// storeNamed pops a boxed value into a binding of the current function.
func (c *Compiler) storeNamed(sym *Symbol) {
	switch sym.Kind {
	case SymLocal:
		c.storeLocal(int32(sym.Slot))
	case SymCaptured:
		c.loadLocal(int32(c.envSlot))
		c.ins(il.OpSwap, 0, 0)
		c.ins(il.OpStoreField, int32(sym.Type), sym.Field)
	case SymMachine:
		c.loadLocal(0)
		c.ins(il.OpSwap, 0, 0)
		c.storeContainerField(c.machine.asContainer(), sym.Field)
	case SymModuleSlot:
		c.storeSlot(c.moduleName, sym.Name)
	}
}

// storeBinding pops a boxed value into a named binding wherever it
// lives.
func (c *Compiler) storeBinding(name string, pos errors.Position) {
	name = canon(name)
	sym, ok, outer := c.resolve(name)
	if !ok {
		c.errorf(pos, "unresolved identifier %q", name)
		c.ins(il.OpPop, 0, 0)
		return
	}
	if sym.IsConst {
		c.errorf(pos, "cannot assign to constant %q", name)
		c.ins(il.OpPop, 0, 0)
		return
	}
	switch sym.Kind {
	case SymLocal, SymCaptured, SymMachine:
		if !outer {
			c.storeNamed(sym)
			return
		}
		ci, idx, chainOK := c.loadChainTo(name)
		if !chainOK {
			c.errorf(pos, "internal: capture chain does not reach %q", name)
			c.ins(il.OpPop, 0, 0)
			c.ins(il.OpPop, 0, 0)
			return
		}
		c.ins(il.OpSwap, 0, 0)
		c.storeContainerField(ci, idx)
	case SymModuleSlot:
		c.storeSlot(c.moduleName, sym.Name)
	case SymImport:
		c.errorf(pos, "cannot assign to import %q", name)
		c.ins(il.OpPop, 0, 0)
	default:
		c.errorf(pos, "cannot assign to %q", name)
		c.ins(il.OpPop, 0, 0)
	}
}

func (c *Compiler) compileThis() {
	if c.machine != nil {
		if idx, ok := c.machine.fieldIdx[fldThis]; ok {
			c.loadLocal(0)
			c.loadContainerField(c.machine.asContainer(), idx)
			return
		}
	}
	switch c.recv {
	case recvClass:
		c.loadLocal(0)
	case recvContainer:
		if c.fn != nil && !c.fn.IsArrow {
			c.ins(il.OpLoadUndef, 0, 0)
			return
		}
		if ci, idx, ok := c.loadChainTo("this"); ok {
			c.loadContainerField(ci, idx)
			return
		}
		c.ins(il.OpLoadUndef, 0, 0)
	default:
		c.ins(il.OpLoadUndef, 0, 0)
	}
}

// --- truthiness ---

// emitTruthy coerces the top of the stack to a raw boolean.
func (c *Compiler) emitTruthy() {
	switch c.st.top() {
	case StBoolean:
	case StDouble:
		c.ins(il.OpUnboxBool, 0, 0)
	case StNull:
		c.ins(il.OpPop, 0, 0)
		c.ins(il.OpLoadFalse, 0, 0)
	default:
		c.ensureBoxed()
		c.rt("truthy", 1)
	}
}

func (c *Compiler) compileCondition(e ast.Expression) {
	c.compileExpression(e)
	c.emitTruthy()
}

// --- operators ---

// numericOperand reports whether an operand is statically known to be
// numeric, enabling the unboxed fast path.
func numericOperand(e ast.Expression) bool {
	switch e := e.(type) {
	case *ast.NumberLiteral:
		return true
	case *ast.UpdateExpression:
		return true
	case *ast.PrefixExpression:
		return e.Operator == "-" || e.Operator == "+"
	case *ast.InfixExpression:
		switch e.Operator {
		case "-", "*", "/", "%", "**":
			return true
		case "+":
			return numericOperand(e.Left) && numericOperand(e.Right)
		}
		return false
	}
	return e.Hint().IsNumeric()
}

func stringOperand(e ast.Expression) bool {
	switch e.(type) {
	case *ast.StringLiteral, *ast.TemplateLiteral:
		return true
	}
	return e.Hint().IsTextual()
}

// compileAsNumber evaluates an expression into a raw double.
func (c *Compiler) compileAsNumber(e ast.Expression) {
	c.compileExpression(e)
	c.asNumber()
}

// compileAsString evaluates an expression into a string reference.
func (c *Compiler) compileAsString(e ast.Expression) {
	c.compileExpression(e)
	if c.st.top() != StString {
		c.ensureBoxed()
		c.rt("toString", 1)
	}
}

var numOps = map[string]il.OpCode{
	"-":  il.OpSubNum,
	"*":  il.OpMulNum,
	"/":  il.OpDivNum,
	"%":  il.OpRemNum,
	"**": il.OpPowNum,
}

var cmpOps = map[string]il.OpCode{
	"<":  il.OpLtNum,
	"<=": il.OpLeNum,
	">":  il.OpGtNum,
	">=": il.OpGeNum,
}

func (c *Compiler) compileInfix(e *ast.InfixExpression) {
	switch e.Operator {
	case "&&", "||", "??":
		c.compileLogical(e)
		return
	case "+":
		c.compileAdd(e)
		return
	case "==", "!=", "===", "!==":
		c.compileEquality(e)
		return
	}
	if op, ok := numOps[e.Operator]; ok {
		c.compileAsNumber(e.Left)
		c.compileAsNumber(e.Right)
		c.ins(op, 0, 0)
		return
	}
	if op, ok := cmpOps[e.Operator]; ok {
		c.compileAsNumber(e.Left)
		c.compileAsNumber(e.Right)
		c.ins(op, 0, 0)
		return
	}
	c.errorf(e.Pos(), "unsupported operator %q", e.Operator)
	c.ins(il.OpLoadUndef, 0, 0)
}

// compileAdd dispatches + on static knowledge: raw double addition when
// both sides are numeric, string concatenation when either side is
// textual, and the runtime add helper otherwise.
func (c *Compiler) compileAdd(e *ast.InfixExpression) {
	if stringOperand(e.Left) || stringOperand(e.Right) {
		c.compileAsString(e.Left)
		c.compileAsString(e.Right)
		c.ins(il.OpConcat, 0, 0)
		return
	}
	if numericOperand(e.Left) && numericOperand(e.Right) {
		c.compileAsNumber(e.Left)
		c.compileAsNumber(e.Right)
		c.ins(il.OpAddNum, 0, 0)
		return
	}
	c.compileExpression(e.Left)
	c.ensureBoxed()
	c.compileExpression(e.Right)
	c.ensureBoxed()
	c.rt("add", 2)
}

func (c *Compiler) compileEquality(e *ast.InfixExpression) {
	negate := e.Operator == "!=" || e.Operator == "!=="
	if numericOperand(e.Left) && numericOperand(e.Right) {
		c.compileAsNumber(e.Left)
		c.compileAsNumber(e.Right)
		if negate {
			c.ins(il.OpNeNum, 0, 0)
		} else {
			c.ins(il.OpEqNum, 0, 0)
		}
		return
	}
	c.compileExpression(e.Left)
	c.ensureBoxed()
	c.compileExpression(e.Right)
	c.ensureBoxed()
	c.rt("equals", 2)
	if negate {
		c.ins(il.OpNotBool, 0, 0)
	}
}

func (c *Compiler) compileLogical(e *ast.InfixExpression) {
	end := c.b.NewLabel()
	c.compileExpression(e.Left)
	c.ensureBoxed()
	c.ins(il.OpDup, 0, 0)
	switch e.Operator {
	case "&&":
		c.emitTruthy()
		c.jumpIfFalse(end)
	case "||":
		c.emitTruthy()
		c.jumpIfTrue(end)
	case "??":
		c.rt("isNullish", 1)
		c.jumpIfFalse(end)
	}
	c.ins(il.OpPop, 0, 0)
	c.compileExpression(e.Right)
	c.ensureBoxed()
	c.b.Bind(end)
}

func (c *Compiler) compilePrefix(e *ast.PrefixExpression) {
	switch e.Operator {
	case "-":
		c.compileAsNumber(e.Right)
		c.ins(il.OpNegNum, 0, 0)
	case "+":
		c.compileAsNumber(e.Right)
	case "!":
		c.compileCondition(e.Right)
		c.ins(il.OpNotBool, 0, 0)
	case "typeof":
		c.compileExpression(e.Right)
		c.ensureBoxed()
		c.rt("typeOf", 1)
	default:
		c.errorf(e.Pos(), "unsupported prefix operator %q", e.Operator)
		c.ins(il.OpLoadUndef, 0, 0)
	}
}

func (c *Compiler) compileTernary(e *ast.TernaryExpression) {
	elseL := c.b.NewLabel()
	end := c.b.NewLabel()
	c.compileCondition(e.Condition)
	c.jumpIfFalse(elseL)
	snap := c.st.save()
	c.compileExpression(e.Consequent)
	c.ensureBoxed()
	c.jump(end)
	c.st.restore(snap)
	c.b.Bind(elseL)
	c.compileExpression(e.Alternative)
	c.ensureBoxed()
	c.b.Bind(end)
}

// --- member and index access ---

// classStatics resolves ClassName.member when the object is a class
// binding; reports handled=false otherwise.
func (c *Compiler) classStaticLoad(e *ast.MemberExpression) bool {
	id, ok := e.Object.(*ast.Identifier)
	if !ok {
		return false
	}
	sym, found, _ := c.resolve(canon(id.Value))
	if !found || sym.Kind != SymClass {
		return false
	}
	td := c.cat.TypeByID(sym.Type)
	prop := canon(e.Property)
	if idx := td.StaticIndex(prop); idx >= 0 {
		c.ins(il.OpLoadStatic, int32(sym.Type), idx)
		return true
	}
	if mid, ok := c.cat.LookupMethod(il.NoType, td.Name+"::"+prop); ok {
		c.ins(il.OpLoadNull, 0, 0)
		c.ins(il.OpNewDelegate, int32(mid), 0)
		return true
	}
	c.errorf(e.Pos(), "unknown static member %q on class %q", e.Property, id.Value)
	c.ins(il.OpLoadUndef, 0, 0)
	return true
}

// builtinMember resolves console.log-style namespace members to their
// descriptor name, when the head is not shadowed by a user binding.
func (c *Compiler) builtinMember(e *ast.MemberExpression) (string, bool) {
	id, ok := e.Object.(*ast.Identifier)
	if !ok {
		return "", false
	}
	if _, found, _ := c.resolve(canon(id.Value)); found {
		return "", false
	}
	name := id.Value + "." + e.Property
	if _, ok := builtins.Lookup(name); ok && builtins.IsUserVisible(name) {
		return name, true
	}
	return "", false
}

func (c *Compiler) compileMember(e *ast.MemberExpression) {
	if e.Private {
		c.compilePrivateLoad(e)
		return
	}
	if name, ok := c.builtinMember(e); ok {
		mid, err := c.cat.Builtin(name)
		if err != nil {
			c.fail(err)
			return
		}
		c.ins(il.OpLoadNull, 0, 0)
		c.ins(il.OpNewDelegate, int32(mid), 0)
		return
	}
	if c.classStaticLoad(e) {
		return
	}
	if _, isThis := e.Object.(*ast.ThisExpression); isThis && c.recv == recvClass {
		td := c.cat.TypeByID(c.thisClass)
		prop := canon(e.Property)
		if idx := td.FieldIndex(prop); idx >= 0 {
			c.loadLocal(0)
			c.ins(il.OpLoadField, int32(c.thisClass), idx)
			return
		}
		if mid, ok := c.cat.LookupMethod(c.thisClass, prop); ok {
			c.loadLocal(0)
			c.ins(il.OpNewDelegate, int32(mid), 0)
			return
		}
	}
	c.compileExpression(e.Object)
	c.ensureBoxed()
	c.loadStr(canon(e.Property))
	c.rt("getProp", 2)
}

func (c *Compiler) compilePrivateLoad(e *ast.MemberExpression) {
	idx, ok := c.privateField(e)
	if !ok {
		c.ins(il.OpLoadUndef, 0, 0)
		return
	}
	c.loadLocal(0)
	c.ins(il.OpLoadField, int32(c.thisClass), idx)
}

// privateField validates a #name access: only on this, only inside the
// declaring class.
func (c *Compiler) privateField(e *ast.MemberExpression) (int32, bool) {
	if _, isThis := e.Object.(*ast.ThisExpression); !isThis || c.recv != recvClass {
		c.errorf(e.Pos(), "private field #%s is only accessible on this inside its class", e.Property)
		return -1, false
	}
	td := c.cat.TypeByID(c.thisClass)
	idx := td.FieldIndex("#" + canon(e.Property))
	if idx < 0 {
		c.errorf(e.Pos(), "undeclared private field #%s", e.Property)
		return -1, false
	}
	return idx, true
}

func (c *Compiler) compileIndexLoad(e *ast.IndexExpression) {
	c.compileExpression(e.Object)
	c.ensureBoxed()
	c.compileExpression(e.Index)
	c.ensureBoxed()
	c.rt("getProp", 2)
}

// --- calls ---

func (c *Compiler) compileArgs(args []ast.Expression) {
	for _, a := range args {
		c.compileExpression(a)
		c.ensureBoxed()
	}
}

// emitStaticCall pads or drops arguments to the callee's fixed arity.
// Extra arguments still evaluate for their side effects.
func (c *Compiler) emitStaticCall(id il.MethodID, params int, args []ast.Expression, method bool) {
	n := len(args)
	for i := 0; i < n && i < params; i++ {
		c.compileExpression(args[i])
		c.ensureBoxed()
	}
	for i := params; i < n; i++ {
		c.compileExpression(args[i])
		c.ins(il.OpPop, 0, 0)
	}
	for i := n; i < params; i++ {
		c.ins(il.OpLoadUndef, 0, 0)
	}
	if method {
		c.callMethod(id, params)
	} else {
		c.callStatic(id, params)
	}
}

func (c *Compiler) emitBuiltinCall(name string, args []ast.Expression, pos errors.Position) {
	d, _ := builtins.Lookup(name)
	mid, err := c.cat.Builtin(name)
	if err != nil {
		c.fail(err)
		return
	}
	if d.Arity < 0 {
		c.compileArgs(args)
		c.callStatic(mid, len(args))
		return
	}
	c.emitStaticCall(mid, d.Arity, args, false)
}

func (c *Compiler) compileCall(e *ast.CallExpression) {
	switch callee := e.Callee.(type) {
	case *ast.Identifier:
		name := canon(callee.Value)
		sym, found, _ := c.resolve(name)
		if found {
			switch sym.Kind {
			case SymFunction:
				m := c.cat.MethodByID(sym.Method)
				if sym.Bound {
					c.loadLocal(0)
					c.emitStaticCall(sym.Method, m.NumParams, e.Arguments, true)
					return
				}
				c.emitStaticCall(sym.Method, m.NumParams, e.Arguments, false)
				return
			case SymClass:
				c.errorf(e.Pos(), "class %q must be called with new", callee.Value)
				c.ins(il.OpLoadUndef, 0, 0)
				return
			}
			break // dynamic call on the bound value
		}
		if builtins.IsUserVisible(name) {
			c.emitBuiltinCall(name, e.Arguments, e.Pos())
			return
		}
	case *ast.MemberExpression:
		if callee.Private {
			break
		}
		if name, ok := c.builtinMember(callee); ok {
			c.emitBuiltinCall(name, e.Arguments, e.Pos())
			return
		}
		if id, ok := callee.Object.(*ast.Identifier); ok {
			if sym, found, _ := c.resolve(canon(id.Value)); found && sym.Kind == SymClass {
				td := c.cat.TypeByID(sym.Type)
				if mid, ok := c.cat.LookupMethod(il.NoType, td.Name+"::"+canon(callee.Property)); ok {
					m := c.cat.MethodByID(mid)
					c.emitStaticCall(mid, m.NumParams, e.Arguments, false)
					return
				}
			}
		}
		if _, isThis := callee.Object.(*ast.ThisExpression); isThis && c.recv == recvClass {
			if mid, ok := c.cat.LookupMethod(c.thisClass, canon(callee.Property)); ok {
				m := c.cat.MethodByID(mid)
				c.loadLocal(0)
				c.emitStaticCall(mid, m.NumParams, e.Arguments, true)
				return
			}
		}
	}
	// Dynamic fallback: fetch the callee value, then CALL_DYN.
	c.compileExpression(e.Callee)
	c.ensureBoxed()
	c.compileArgs(e.Arguments)
	c.callDyn(len(e.Arguments))
}

func (c *Compiler) compileNew(e *ast.NewExpression) {
	if id, ok := e.Callee.(*ast.Identifier); ok {
		if sym, found, _ := c.resolve(canon(id.Value)); found && sym.Kind == SymClass {
			m := c.cat.MethodByID(sym.Wrap)
			c.emitStaticCall(sym.Wrap, m.NumParams, e.Arguments, false)
			return
		}
	}
	// Dynamic class values follow the constructor-wrapper convention:
	// calling the value allocates and initializes.
	c.compileExpression(e.Callee)
	c.ensureBoxed()
	c.compileArgs(e.Arguments)
	c.callDyn(len(e.Arguments))
}
