// Package driver orchestrates compilation of a batch of units into a
// linked artifact: runtime emission (once per artifact), per-unit
// compilation with batch tolerance, then linking.
package driver

import (
	"kestrel/pkg/ast"
	"kestrel/pkg/catalog"
	"kestrel/pkg/compiler"
	"kestrel/pkg/errors"
	"kestrel/pkg/il"
	"kestrel/pkg/linker"
	"kestrel/pkg/source"
)

// Input is one unit awaiting compilation: its source metadata and the
// checked AST produced by the front end.
type Input struct {
	Unit *source.Unit
	Prog *ast.Program
}

// Driver accumulates compiled units against one shared catalog.
type Driver struct {
	cat     *catalog.Catalog
	modules []*il.Module
	shadows map[il.MethodID][]compiler.StackType
}

// New creates a driver with a fresh catalog and the runtime support
// module already emitted, so every compiled unit can bind its helpers.
func New() (*Driver, errors.KestrelError) {
	cat := catalog.New()
	if err := compiler.EmitRuntime(cat); err != nil {
		return nil, err
	}
	return &Driver{
		cat:     cat,
		shadows: make(map[il.MethodID][]compiler.StackType),
	}, nil
}

// Catalog exposes the shared catalog (tests inspect emitted methods).
func (d *Driver) Catalog() *catalog.Catalog { return d.cat }

// Shadow returns the accumulated compile-time stack-type traces of
// every successfully compiled unit.
func (d *Driver) Shadow() map[il.MethodID][]compiler.StackType { return d.shadows }

// CompileUnit compiles one unit and records its module on success.
// Unit-local diagnostics (invalid constructs, state-machine failures)
// are returned without affecting other units; a fatal target error is
// returned as-is and the caller must abort the batch.
func (d *Driver) CompileUnit(in Input) (*il.Module, []errors.KestrelError) {
	res, errs := compiler.CompileUnit(d.cat, in.Unit, in.Prog)
	if res == nil {
		return nil, errs
	}
	d.modules = append(d.modules, res.Module)
	for id, tr := range res.Shadow {
		d.shadows[id] = tr
	}
	return res.Module, errs
}

// CompileProgram compiles a batch. Units with unit-local errors yield
// no module but do not block siblings; the first fatal error stops the
// batch immediately.
func (d *Driver) CompileProgram(inputs []Input) []errors.KestrelError {
	var diags []errors.KestrelError
	for _, in := range inputs {
		_, errs := d.CompileUnit(in)
		diags = append(diags, errs...)
		for _, e := range errs {
			if errors.IsFatal(e) {
				return diags
			}
		}
	}
	return diags
}

// Link finalizes the artifact with the named module as entry.
func (d *Driver) Link(entry string) (*il.Program, errors.KestrelError) {
	return linker.Link(d.cat, d.modules, entry)
}
