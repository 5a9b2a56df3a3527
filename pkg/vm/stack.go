package vm

import "corevm/pkg/value"

// growRegs doubles the register stack until it can hold at least n
// slots, matching the amortized-growth discipline the original
// executor's value stack uses. Existing Values are copied as-is;
// AssignSlot's refcount ordering is not needed here since nothing is
// being overwritten, only relocated.
func (t *Thread) growRegs(n int) {
	if n <= len(t.Regs) {
		return
	}
	size := len(t.Regs)
	if size == 0 {
		size = initialRegStack
	}
	for size < n {
		size *= 2
	}
	grown := make([]value.Value, size)
	copy(grown, t.Regs[:t.RegTop])
	t.Regs = grown
}

func (t *Thread) growCalls(n int) {
	if n <= len(t.Calls) {
		return
	}
	size := len(t.Calls)
	if size == 0 {
		size = initialCallStack
	}
	for size < n {
		size *= 2
	}
	grown := make([]Activation, size)
	copy(grown, t.Calls[:t.CallTop])
	t.Calls = grown
}

func (t *Thread) growCatches(n int) {
	if n <= len(t.Catches) {
		return
	}
	size := len(t.Catches)
	if size == 0 {
		size = initialCatchStack
	}
	for size < n {
		size *= 2
	}
	grown := make([]Catcher, size)
	copy(grown, t.Catches[:t.CatchTop])
	t.Catches = grown
}

// pushActivation reserves a new call frame starting at idxBottom with
// nregs registers, growing both the call stack and the register stack
// as needed. The new window's registers are zeroed to Undefined so a
// callee never observes stale values left by an earlier, deeper call.
func (t *Thread) pushActivation(callee value.Value, fn *CFun, idxBottom, idxRetval int, nregs int) *Activation {
	t.growCalls(t.CallTop + 1)
	t.growRegs(idxBottom + nregs)

	for i := idxBottom; i < idxBottom+nregs; i++ {
		t.Regs[i] = value.Undefined()
	}
	if idxBottom+nregs > t.RegTop {
		t.RegTop = idxBottom + nregs
	}

	t.Calls[t.CallTop] = Activation{
		Callee:    callee,
		Fn:        fn,
		IdxBottom: idxBottom,
		IdxRetval: idxRetval,
	}
	act := &t.Calls[t.CallTop]
	t.CallTop++
	return act
}

// popActivation removes the topmost activation and restores RegTop to
// the caller's window, the "reconfigure the value stack on return"
// step every RETURN/uncaught-throw/coroutine-terminate path needs.
func (t *Thread) popActivation() {
	if t.Calls[t.CallTop-1].RecursionCounted {
		t.Heap.CallRecursionDepth--
	}
	t.CallTop--
	if t.CallTop == 0 {
		t.RegTop = 0
		return
	}
	caller := &t.Calls[t.CallTop-1]
	callerFn := caller.Fn
	if callerFn != nil {
		t.RegTop = caller.IdxBottom + callerFn.NRegs
	} else {
		t.RegTop = caller.IdxBottom
	}
}

// reg/setReg give bounds-checked access to the current activation's
// register window, always indexing relative to IdxBottom the way every
// opcode operand does.
func (t *Thread) reg(act *Activation, i uint32) value.Value {
	return t.Regs[act.IdxBottom+int(i)]
}

func (t *Thread) setReg(act *Activation, i uint32, v value.Value) {
	slot := &t.Regs[act.IdxBottom+int(i)]
	value.AssignSlot(slot, v)
}
