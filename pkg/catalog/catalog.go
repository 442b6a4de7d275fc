// Package catalog is the target type catalog: a process-wide memoizing
// cache of target type/method/field handles used during emission.
// Entries are immutable once created and keyed by exact input, so
// concurrent lookup-or-insert from independently compiling units is
// safe. A missing required handle is internal inconsistency and fatal.
package catalog

import (
	"fmt"
	"sync"

	"kestrel/pkg/builtins"
	"kestrel/pkg/errors"
	"kestrel/pkg/il"
)

type methodKey struct {
	owner il.TypeID
	name  string
}

// Catalog owns the program-wide type and method tables.
type Catalog struct {
	mu        sync.RWMutex
	types     []*il.TypeDef
	typeIdx   map[string]il.TypeID
	methods   []*il.Method
	methodIdx map[methodKey]il.MethodID

	// Memoized builtin-descriptor resolutions.
	intrinsicIdx map[il.Intrinsic]il.MethodID

	// Runtime helper handles, registered by the self-hosting emitter.
	runtimeIdx     map[string]il.MethodID
	runtimeEmitted bool
}

// New creates an empty catalog for one artifact.
func New() *Catalog {
	return &Catalog{
		typeIdx:      make(map[string]il.TypeID),
		methodIdx:    make(map[methodKey]il.MethodID),
		intrinsicIdx: make(map[il.Intrinsic]il.MethodID),
		runtimeIdx:   make(map[string]il.MethodID),
	}
}

/// DefineType registers a new type. The field lists must be complete:
// entries are sealed on creation. Returns an error on duplicate names.
func (c *Catalog) DefineType(name string, kind il.TypeKind, fields, statics []string) (*il.TypeDef, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.typeIdx[name]; ok {
		return nil, fmt.Errorf("catalog: type %q already defined", name)
	}
	t := &il.TypeDef{
		ID:           il.TypeID(len(c.types)),
		Name:         name,
		Kind:         kind,
		Fields:       append([]string(nil), fields...),
		StaticFields: append([]string(nil), statics...),
	}
	c.types = append(c.types, t)
	c.typeIdx[name] = t.ID
	return t, nil
}

// LookupType resolves a type handle by name.
func (c *Catalog) LookupType(name string) (il.TypeID, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	id, ok := c.typeIdx[name]
	return id, ok
}

// MustType resolves a required type handle; a miss is fatal.
func (c *Catalog) MustType(name string) (il.TypeID, errors.KestrelError) {
	if id, ok := c.LookupType(name); ok {
		return id, nil
	}
	return il.NoType, &errors.TargetError{Msg: fmt.Sprintf("unresolved target type %q", name)}
}

// TypeByID returns the sealed TypeDef for a handle.
func (c *Catalog) TypeByID(id il.TypeID) *il.TypeDef {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if id < 0 || int(id) >= len(c.types) {
		return nil
	}
	return c.types[id]
}

// AddMethod registers a compiled method and assigns its handle.
func (c *Catalog) AddMethod(m *il.Method) il.MethodID {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.addMethodLocked(m)
}

func (c *Catalog) addMethodLocked(m *il.Method) il.MethodID {
	m.ID = il.MethodID(len(c.methods))
	c.methods = append(c.methods, m)
	c.methodIdx[methodKey{owner: m.Owner, name: m.Name}] = m.ID
	return m.ID
}

// LookupMethod resolves a method handle by owner and name.
func (c *Catalog) LookupMethod(owner il.TypeID, name string) (il.MethodID, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	id, ok := c.methodIdx[methodKey{owner: owner, name: name}]
	return id, ok
}

// MustMethod resolves a required method handle; a miss is fatal.
func (c *Catalog) MustMethod(owner il.TypeID, name string) (il.MethodID, errors.KestrelError) {
	if id, ok := c.LookupMethod(owner, name); ok {
		return id, nil
	}
	return il.NoMethod, &errors.TargetError{Msg: fmt.Sprintf("unresolved target method %q (owner T%d)", name, owner)}
}

// MethodByID returns the method for a handle.
func (c *Catalog) MethodByID(id il.MethodID) *il.Method {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if id < 0 || int(id) >= len(c.methods) {
		return nil
	}
	return c.methods[id]
}

// MustField resolves a declared-field handle on a type; a miss is fatal.
func (c *Catalog) MustField(t il.TypeID, name string) (int32, errors.KestrelError) {
	td := c.TypeByID(t)
	if td != nil {
		if idx := td.FieldIndex(name); idx >= 0 {
			return idx, nil
		}
	}
	return -1, &errors.TargetError{Msg: fmt.Sprintf("unresolved target field %q on T%d", name, t)}
}

// Builtin resolves a builtin descriptor to a callable method handle.
// Intrinsic descriptors are materialized lazily and memoized; runtime
// descriptors require the self-hosted runtime to have been emitted.
func (c *Catalog) Builtin(name string) (il.MethodID, errors.KestrelError) {
	d, ok := builtins.Lookup(name)
	if !ok {
		return il.NoMethod, &errors.TargetError{Msg: fmt.Sprintf("unresolved builtin %q", name)}
	}
	switch d.Kind {
	case builtins.RuntimeCall:
		return c.RuntimeMethod(d.Runtime)
	default:
		return c.intrinsicMethod(d), nil
	}
}

func (c *Catalog) intrinsicMethod(d builtins.Descriptor) il.MethodID {
	c.mu.Lock()
	defer c.mu.Unlock()
	if id, ok := c.intrinsicIdx[d.Intrinsic]; ok {
		return id
	}
	m := &il.Method{
		Name:      d.Name,
		Owner:     il.NoType,
		NumParams: d.Arity,
		Intrinsic: d.Intrinsic,
	}
	id := c.addMethodLocked(m)
	c.intrinsicIdx[d.Intrinsic] = id
	return id
}

// RegisterRuntimeMethod records a handle of the emitted runtime module.
func (c *Catalog) RegisterRuntimeMethod(name string, id il.MethodID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.runtimeIdx[name] = id
}

// RuntimeMethod resolves an emitted runtime helper by name.
func (c *Catalog) RuntimeMethod(name string) (il.MethodID, errors.KestrelError) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if id, ok := c.runtimeIdx[name]; ok {
		return id, nil
	}
	return il.NoMethod, &errors.TargetError{Msg: fmt.Sprintf("unresolved runtime helper %q", name)}
}

// ClaimRuntimeEmission returns true exactly once per catalog, so the
// runtime support module is written into the artifact a single time.
func (c *Catalog) ClaimRuntimeEmission() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.runtimeEmitted {
		return false
	}
	c.runtimeEmitted = true
	return true
}

// Types returns the sealed type table for program finalization.
func (c *Catalog) Types() []*il.TypeDef {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]*il.TypeDef(nil), c.types...)
}

// Methods returns the method table for program finalization.
func (c *Catalog) Methods() []*il.Method {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]*il.Method(nil), c.methods...)
}
