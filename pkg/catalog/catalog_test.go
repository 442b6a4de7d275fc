package catalog

import (
	"fmt"
	"sync"
	"testing"

	"kestrel/pkg/il"
)

func TestDefineTypeAssignsSequentialHandles(t *testing.T) {
	c := New()
	a, err := c.DefineType("m::A", il.ClassType, []string{"x"}, nil)
	if err != nil {
		t.Fatalf("DefineType: %v", err)
	}
	b, err := c.DefineType("m::B", il.ClassType, nil, []string{"s"})
	if err != nil {
		t.Fatalf("DefineType: %v", err)
	}
	if a.ID == b.ID {
		t.Fatalf("duplicate type handle %d", a.ID)
	}
	if got := c.TypeByID(a.ID); got != a {
		t.Fatalf("TypeByID(%d) = %v", a.ID, got)
	}
	if id, ok := c.LookupType("m::B"); !ok || id != b.ID {
		t.Fatalf("LookupType = %d, %v", id, ok)
	}
	if _, err := c.DefineType("m::A", il.ClassType, nil, nil); err == nil {
		t.Fatal("duplicate DefineType did not fail")
	}
}

func TestMethodLookupIsOwnerScoped(t *testing.T) {
	c := New()
	ta, _ := c.DefineType("m::A", il.ClassType, nil, nil)
	tb, _ := c.DefineType("m::B", il.ClassType, nil, nil)
	ma := c.AddMethod(&il.Method{Name: "run", Owner: ta.ID})
	mb := c.AddMethod(&il.Method{Name: "run", Owner: tb.ID})
	free := c.AddMethod(&il.Method{Name: "run", Owner: il.NoType})

	if id, ok := c.LookupMethod(ta.ID, "run"); !ok || id != ma {
		t.Fatalf("A.run = %d, %v", id, ok)
	}
	if id, ok := c.LookupMethod(tb.ID, "run"); !ok || id != mb {
		t.Fatalf("B.run = %d, %v", id, ok)
	}
	if id, ok := c.LookupMethod(il.NoType, "run"); !ok || id != free {
		t.Fatalf("free run = %d, %v", id, ok)
	}
}

func TestMustMethodMissIsFatal(t *testing.T) {
	c := New()
	if _, err := c.MustMethod(il.NoType, "nope"); err == nil || err.Kind() != "Target" {
		t.Fatalf("MustMethod miss: %v", err)
	}
	if _, err := c.MustType("nope"); err == nil || err.Kind() != "Target" {
		t.Fatalf("MustType miss: %v", err)
	}
}

func TestBuiltinIsMemoized(t *testing.T) {
	c := New()
	a, err := c.Builtin("Math.floor")
	if err != nil {
		t.Fatalf("Builtin: %v", err)
	}
	b, err := c.Builtin("Math.floor")
	if err != nil {
		t.Fatalf("Builtin: %v", err)
	}
	if a != b {
		t.Fatalf("Math.floor resolved to %d then %d", a, b)
	}
	if _, err := c.Builtin("No.Such"); err == nil {
		t.Fatal("unknown builtin did not fail")
	}
}

func TestRuntimeMethodRegistration(t *testing.T) {
	c := New()
	if _, err := c.RuntimeMethod("toString"); err == nil {
		t.Fatal("unregistered runtime helper resolved")
	}
	id := c.AddMethod(&il.Method{Name: "runtime::toString", Owner: il.NoType})
	c.RegisterRuntimeMethod("toString", id)
	got, err := c.RuntimeMethod("toString")
	if err != nil || got != id {
		t.Fatalf("RuntimeMethod = %d, %v", got, err)
	}
}

func TestClaimRuntimeEmissionFiresOnce(t *testing.T) {
	c := New()
	if !c.ClaimRuntimeEmission() {
		t.Fatal("first claim refused")
	}
	if c.ClaimRuntimeEmission() {
		t.Fatal("second claim granted")
	}
}

// TestConcurrentUnits hammers the catalog the way parallel unit
// compilation does: interleaved type definitions, method adds and hot
// lookups. The race detector plus handle-uniqueness checks cover the
// contract.
func TestConcurrentUnits(t *testing.T) {
	c := New()
	const units = 8
	const perUnit = 50

	var wg sync.WaitGroup
	ids := make([][]il.MethodID, units)
	for u := 0; u < units; u++ {
		wg.Add(1)
		go func(u int) {
			defer wg.Done()
			ids[u] = make([]il.MethodID, 0, perUnit)
			for i := 0; i < perUnit; i++ {
				name := fmt.Sprintf("unit%d::T%d", u, i)
				td, err := c.DefineType(name, il.ClassType, []string{"f"}, nil)
				if err != nil {
					t.Errorf("DefineType %s: %v", name, err)
					return
				}
				id := c.AddMethod(&il.Method{Name: "go", Owner: td.ID})
				ids[u] = append(ids[u], id)
				if _, err := c.Builtin("console.log"); err != nil {
					t.Errorf("Builtin: %v", err)
					return
				}
				c.MethodByID(id)
				c.TypeByID(td.ID)
			}
		}(u)
	}
	wg.Wait()

	seen := make(map[il.MethodID]bool)
	for _, unit := range ids {
		for _, id := range unit {
			if seen[id] {
				t.Fatalf("method handle %d assigned twice", id)
			}
			seen[id] = true
		}
	}
	if total := len(c.Methods()); total < units*perUnit {
		t.Fatalf("method table holds %d entries, want at least %d", total, units*perUnit)
	}
}
