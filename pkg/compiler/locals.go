package compiler

// LocalAllocator manages local slots of the method under compilation.
// Slot 0 is reserved for the receiver of instance methods; parameters
// occupy the next slots. Temporaries are recycled through a free list.
type LocalAllocator struct {
	next int
	max  int
	free []int
}

// newLocalAllocator reserves the first `reserved` slots (receiver and
// parameters).
func newLocalAllocator(reserved int) *LocalAllocator {
	return &LocalAllocator{next: reserved, max: reserved}
}

// Alloc returns a fresh slot for a named binding. Named slots are never
// recycled: closures and diagnostics may outlive the scope.
func (la *LocalAllocator) Alloc() int {
	slot := la.next
	la.next++
	if la.next > la.max {
		la.max = la.next
	}
	return slot
}

// Temp returns a scratch slot, preferring recycled ones.
func (la *LocalAllocator) Temp() int {
	if n := len(la.free); n > 0 {
		slot := la.free[n-1]
		la.free = la.free[:n-1]
		return slot
	}
	return la.Alloc()
}

// Release returns a scratch slot to the free list.
func (la *LocalAllocator) Release(slot int) {
	la.free = append(la.free, slot)
}

// Count returns the total number of slots the method needs.
func (la *LocalAllocator) Count() int { return la.max }
