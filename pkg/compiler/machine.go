package compiler

import (
	"fmt"

	"kestrel/pkg/catalog"
	"kestrel/pkg/il"
)

// pendingOwner marks methods owned by a machine type that has not been
// sealed yet; the id is patched in at seal time.
const pendingOwner il.TypeID = -2

// Reserved machine field names. The "@" prefix cannot collide with
// source identifiers.
const (
	fldState    = "@state"
	fldRegion   = "@region"
	fldFuture   = "@future"
	fldInbox    = "@inbox"
	fldErrbox   = "@errbox"
	fldCurrent  = "@current"
	fldDone     = "@done"
	fldMode     = "@mode"
	fldInjected = "@injected"
	fldDelegate = "@delegate"
	fldEnv      = "@env"
	fldThis     = "@this"
)

// Machine states below the resume-point range.
const (
	stateInitial = -1 // body not started
	stateDone    = -2 // completed (returned, threw, or future settled)
)

// Resume modes a generator wrapper stores before stepping.
const (
	modeNext   = 0
	modeReturn = 1
	modeThrow  = 2
)

type patchSite struct {
	m  *il.Method
	pc int
}

// machineCtx is the under-construction state machine of one async
// function or generator. Its field list grows during body emission
// (hoisted variables, spill slots, persistent temps); the TypeDef is
// sealed only once the step body is complete, after which recorded
// patch sites receive the real type handle.
type machineCtx struct {
	name    string
	isAsync bool

	fields      []string
	fieldIdx    map[string]int32
	parentField int32 // index of @env, -1 when the machine captures nothing

	open bool
	typ  il.TypeID

	patches      []patchSite
	ownerPatches []*il.Method

	tempFree  []int32
	spillBase []int32 // spill field indices, grown on demand

	stateLabels []il.Label
	nextState   int

	ctr *containerInfo

	step   *il.Method
	thunk  *il.Method
	resume *il.Method // async only
	wNext  *il.Method // generator only
	wRet   *il.Method
	wThrow *il.Method
}

// newMachineCtx reserves the fixed control fields. hasEnv links the
// machine into the enclosing capture chain; hasThis carries the lexical
// receiver of async/generator methods.
func newMachineCtx(name string, isAsync, hasEnv, hasThis bool, parent *containerInfo) *machineCtx {
	m := &machineCtx{
		name:        name,
		isAsync:     isAsync,
		fieldIdx:    make(map[string]int32),
		parentField: -1,
		open:        true,
		typ:         il.NoType,
	}
	m.field(fldState)
	m.field(fldRegion)
	if isAsync {
		m.field(fldFuture)
		m.field(fldInbox)
		m.field(fldErrbox)
	} else {
		m.field(fldCurrent)
		m.field(fldDone)
		m.field(fldMode)
		m.field(fldInjected)
		m.field(fldDelegate)
	}
	if hasEnv {
		m.parentField = m.field(fldEnv)
	}
	if hasThis {
		m.field(fldThis)
	}
	m.ctr = &containerInfo{
		typ:         il.NoType,
		parentField: m.parentField,
		parent:      parent,
		machine:     m,
	}
	return m
}

// field returns the index of a named machine field, adding it on first
// use.
func (m *machineCtx) field(name string) int32 {
	if idx, ok := m.fieldIdx[name]; ok {
		return idx
	}
	idx := int32(len(m.fields))
	m.fields = append(m.fields, name)
	m.fieldIdx[name] = idx
	return idx
}

func (m *machineCtx) asContainer() *containerInfo { return m.ctr }

// allocTemp hands out a persistent temp field (survives suspension).
func (m *machineCtx) allocTemp() int32 {
	if n := len(m.tempFree); n > 0 {
		idx := m.tempFree[n-1]
		m.tempFree = m.tempFree[:n-1]
		return idx
	}
	return m.field(fmt.Sprintf("@t%d", len(m.fields)))
}

func (m *machineCtx) freeTemp(idx int32) {
	m.tempFree = append(m.tempFree, idx)
}

// spill returns the field index of spill slot i, growing the set.
func (m *machineCtx) spill(i int) int32 {
	for len(m.spillBase) <= i {
		m.spillBase = append(m.spillBase, m.field(fmt.Sprintf("@sp%d", len(m.spillBase))))
	}
	return m.spillBase[i]
}

// addPatch records an instruction whose A operand must become the
// machine's type handle.
func (m *machineCtx) addPatch(method *il.Method, pc int) {
	m.patches = append(m.patches, patchSite{m: method, pc: pc})
}

// takeState allocates the next resume state; its label is bound at the
// resume point inside the step body.
func (m *machineCtx) takeState() (int, il.Label) {
	k := m.nextState
	m.nextState++
	return k, m.stateLabels[k]
}

// seal defines the machine TypeDef and patches every recorded site.
func (m *machineCtx) seal(cat *catalog.Catalog) error {
	t, err := cat.DefineType(m.name, il.MachineType, m.fields, nil)
	if err != nil {
		return err
	}
	m.typ = t.ID
	m.ctr.typ = t.ID
	m.open = false
	for _, p := range m.patches {
		p.m.Code[p.pc].A = int32(t.ID)
	}
	for _, om := range m.ownerPatches {
		om.Owner = t.ID
	}
	return nil
}
