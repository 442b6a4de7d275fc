package vm

// FutureState tracks the lifecycle of the asynchronous primitive.
type FutureState uint8

const (
	FuturePending FutureState = iota
	FutureFulfilled
	FutureRejected
)

// Future is the underlying asynchronous primitive the lowered async
// state machines resume through. Continuations run as microtasks in
// FIFO order, which keeps side-effect ordering deterministic.
type Future struct {
	State  FutureState
	Result Value
	subs   []*Delegate
}

func NewFuture() *Future {
	return &Future{State: FuturePending}
}

// settle transitions the future and schedules registered continuations.
func (vm *VM) settleFuture(f *Future, v Value, rejected bool) {
	if f.State != FuturePending {
		return // settle wins once
	}
	if rejected {
		f.State = FutureRejected
	} else {
		f.State = FutureFulfilled
	}
	f.Result = v
	for _, d := range f.subs {
		vm.schedule(d, f.Result, f.State == FutureRejected)
	}
	f.subs = nil
}

// resolveFuture fulfills f with v. Resolving with another future chains:
// f settles the way the inner future settles.
func (vm *VM) resolveFuture(f *Future, v Value) {
	if v.Kind() == KindFuture && v.Fut() != f {
		inner := v.Fut()
		vm.onSettle(inner, &Delegate{Method: chainMethod, Target: FutureVal(f)})
		return
	}
	vm.settleFuture(f, v, false)
}

// rejectFuture rejects f with err.
func (vm *VM) rejectFuture(f *Future, err Value) {
	vm.settleFuture(f, err, true)
}

// onSettle registers a continuation: delegate(result, isError) runs as a
// microtask once f settles (immediately scheduled when already settled).
func (vm *VM) onSettle(f *Future, d *Delegate) {
	if f.State == FuturePending {
		f.subs = append(f.subs, d)
		return
	}
	vm.schedule(d, f.Result, f.State == FutureRejected)
}

// chainMethod is the reserved pseudo-handle for future chaining
// continuations; the scheduler special-cases it.
const chainMethod = -2
