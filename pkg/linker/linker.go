// Package linker resolves cross-unit references and finalizes the
// artifact. Compiled units arrive with symbolic slot references; the
// linker patches them to (module, slot) pairs, synthesizes namespace
// aggregates, orders module initialization and seals the program with
// its manifest.
package linker

import (
	"fmt"
	"sort"

	"kestrel/pkg/catalog"
	"kestrel/pkg/errors"
	"kestrel/pkg/il"
)

// ArtifactVersion is stamped into every manifest this linker produces.
const ArtifactVersion = "0.1.0"

// reexport chains longer than this indicate a cycle.
const maxExportHops = 64

// Link patches every symbolic slot reference, builds namespace
// aggregates, computes the boot order and returns the finalized
// program. entry names the module whose init completes last.
func Link(cat *catalog.Catalog, modules []*il.Module, entry string) (*il.Program, errors.KestrelError) {
	l := &linker{
		cat:     cat,
		modules: modules,
		byName:  make(map[string]int, len(modules)),
	}
	for i, m := range modules {
		if _, dup := l.byName[m.Name]; dup {
			return nil, &errors.TargetError{Msg: fmt.Sprintf("duplicate module %q", m.Name)}
		}
		l.byName[m.Name] = i
	}
	entryIdx, ok := l.byName[entry]
	if !ok {
		return nil, &errors.TargetError{Msg: fmt.Sprintf("entry module %q not found", entry)}
	}

	if err := l.patchMethods(); err != nil {
		return nil, err
	}
	nsInits, err := l.namespaceInits()
	if err != nil {
		return nil, err
	}
	boot, err := l.bootOrder(entryIdx, nsInits)
	if err != nil {
		return nil, err
	}

	manifest, err := l.manifest(entry)
	if err != nil {
		return nil, err
	}
	return &il.Program{
		Types:    cat.Types(),
		Methods:  cat.Methods(),
		Modules:  modules,
		Boot:     boot,
		Entry:    modules[entryIdx].Init,
		Manifest: manifest,
	}, nil
}

type linker struct {
	cat     *catalog.Catalog
	modules []*il.Module
	byName  map[string]int
}

// patchMethods resolves every slot reference in the method table.
// Own-module refs (ModuleIdx -1) name a storage slot directly; import
// refs (-2) name an export and follow re-export chains to the origin
// slot, so a re-exported binding aliases the exporter's storage.
func (l *linker) patchMethods() errors.KestrelError {
	for _, m := range l.cat.Methods() {
		for i := range m.SlotRefs {
			ref := &m.SlotRefs[i]
			switch ref.ModuleIdx {
			case -1:
				idx, ok := l.byName[ref.Module]
				if !ok {
					return l.unresolved(m, ref)
				}
				slot := l.modules[idx].SlotIndex(ref.Name)
				if slot < 0 {
					return l.unresolved(m, ref)
				}
				ref.ModuleIdx, ref.Slot = int32(idx), slot
			case -2:
				idx, slot, err := l.resolveExport(ref.Module, ref.Name)
				if err != nil {
					return &errors.TargetError{Msg: fmt.Sprintf(
						"%s: %s (referenced by %s)", err.Message(), ref.Name, m.Name)}
				}
				ref.ModuleIdx, ref.Slot = idx, slot
			}
		}
	}
	return nil
}

func (l *linker) unresolved(m *il.Method, ref *il.SlotRef) errors.KestrelError {
	return &errors.TargetError{Msg: fmt.Sprintf(
		"unresolved slot %s:%s (referenced by %s)", ref.Module, ref.Name, m.Name)}
}

// resolveExport walks an export chain to the owning module and slot.
func (l *linker) resolveExport(module, name string) (int32, int32, errors.KestrelError) {
	for hops := 0; hops < maxExportHops; hops++ {
		idx, ok := l.byName[module]
		if !ok {
			return -1, -1, &errors.TargetError{Msg: fmt.Sprintf("unresolved module %q", module)}
		}
		exp, ok := l.modules[idx].Exports[name]
		if !ok {
			return -1, -1, &errors.TargetError{Msg: fmt.Sprintf(
				"module %q does not export %q", module, name)}
		}
		if exp.From != "" {
			module, name = exp.From, exp.Imported
			continue
		}
		return int32(idx), exp.Slot, nil
	}
	return -1, -1, &errors.TargetError{Msg: fmt.Sprintf(
		"re-export cycle through %q:%q", module, name)}
}

// namespaceInits synthesizes one method per module with namespace
// imports. The method builds an aggregate object of all named exports
// of each source module and stores it into the importing slot; it runs
// after the source inits so the aggregated values are seeded.
func (l *linker) namespaceInits() (map[int]il.MethodID, errors.KestrelError) {
	extSet, berr := l.cat.Builtin("Sys.Obj.extSet")
	inits := make(map[int]il.MethodID)
	for mi, mod := range l.modules {
		if len(mod.Namespaces) == 0 {
			continue
		}
		if berr != nil {
			return nil, berr
		}
		b := il.NewBuilder(mod.Name+"::nsinit", il.NoType)
		b.Locals(1)
		for _, ns := range mod.Namespaces {
			srcIdx, ok := l.byName[ns.Source]
			if !ok {
				return nil, &errors.TargetError{Msg: fmt.Sprintf(
					"unresolved module %q (namespace import in %q)", ns.Source, mod.Name)}
			}
			src := l.modules[srcIdx]
			names := make([]string, 0, len(src.Exports))
			for name := range src.Exports {
				if name != il.DefaultExportKey {
					names = append(names, name)
				}
			}
			sort.Strings(names)

			b.Emit(il.OpNewPlain)
			b.EmitA(il.OpStoreLocal, 0)
			for _, name := range names {
				omod, oslot, err := l.resolveExport(ns.Source, name)
				if err != nil {
					return nil, err
				}
				b.EmitA(il.OpLoadLocal, 0)
				b.EmitA(il.OpLoadStr, b.Str(name))
				b.EmitA(il.OpLoadSlot, resolvedRef(b, ns.Source, name, omod, oslot))
				b.EmitAB(il.OpCallStatic, int32(extSet), 3)
				b.Emit(il.OpPop)
			}
			b.EmitA(il.OpLoadLocal, 0)
			b.EmitA(il.OpStoreSlot, resolvedRef(b, mod.Name, nsSlotName(mod, ns.Slot), int32(mi), ns.Slot))
		}
		b.Emit(il.OpReturnUndef)
		inits[mi] = l.cat.AddMethod(b.Finish())
	}
	return inits, nil
}

func nsSlotName(m *il.Module, slot int32) string {
	if int(slot) < len(m.Slots) {
		return m.Slots[slot]
	}
	return "?"
}

// resolvedRef records a slot ref already carrying its final target.
func resolvedRef(b *il.Builder, module, name string, moduleIdx, slot int32) int32 {
	idx := b.SlotRef(module, name)
	ref := &b.Method().SlotRefs[idx]
	ref.ModuleIdx, ref.Slot = moduleIdx, slot
	return idx
}

// bootOrder lists init methods dependency-first. Modules unreachable
// from the entry still boot, ahead of the entry's dependency chain;
// the entry init always runs last. Namespace aggregate builders run
// right before their importing module's init.
func (l *linker) bootOrder(entryIdx int, nsInits map[int]il.MethodID) ([]il.MethodID, errors.KestrelError) {
	visited := make([]bool, len(l.modules))
	var order []int
	var missing errors.KestrelError

	var visit func(i int)
	visit = func(i int) {
		if visited[i] {
			return
		}
		visited[i] = true
		for _, req := range l.modules[i].Requires {
			j, ok := l.byName[req]
			if !ok {
				if missing == nil {
					missing = &errors.TargetError{Msg: fmt.Sprintf(
						"unresolved module %q (required by %q)", req, l.modules[i].Name)}
				}
				continue
			}
			visit(j)
		}
		order = append(order, i)
	}
	for i := range l.modules {
		if i != entryIdx {
			visit(i)
		}
	}
	visit(entryIdx)
	if missing != nil {
		return nil, missing
	}

	boot := make([]il.MethodID, 0, len(order))
	for _, i := range order {
		if ns, ok := nsInits[i]; ok {
			boot = append(boot, ns)
		}
		boot = append(boot, l.modules[i].Init)
	}
	return boot, nil
}

// manifest records the artifact identity and the entry module's export
// surface, each export mapped to the module owning its storage.
func (l *linker) manifest(entry string) (il.Manifest, errors.KestrelError) {
	m := il.Manifest{
		Name:    entry,
		Version: ArtifactVersion,
		Entry:   entry,
	}
	exports := l.modules[l.byName[entry]].Exports
	if len(exports) > 0 {
		m.Exports = make(map[string]string, len(exports))
		for name := range exports {
			idx, _, err := l.resolveExport(entry, name)
			if err != nil {
				return il.Manifest{}, err
			}
			m.Exports[name] = l.modules[idx].Name
		}
	}
	return m, nil
}

// EncodeManifest renders a linked program's manifest for embedding.
func EncodeManifest(p *il.Program) ([]byte, error) {
	return il.EncodeManifest(p.Manifest)
}
