package vm

import "corevm/pkg/value"

// Heap is the process-wide state every thread shares: which thread is
// currently running, the collaborator interfaces from §6, the single
// longjmp-state slot the unwinder reads and clears, and the shared
// call-recursion budget that RangeError's "too much recursion" draws
// from. The name follows the original executor's convention where this
// struct also owned string/object allocation; here allocation is the
// embedder's job, so Heap is mostly a coordination point.
type Heap struct {
	CurrentThread *Thread

	Objects ObjectOps
	Envs    EnvOps
	Calls   CallOps

	Lj LongjmpState

	CallRecursionDepth int
	CallRecursionLimit int

	// InterruptHook, if set, is invoked whenever a thread's
	// InterruptCounter reaches zero. Returning an error aborts
	// execution as if the script had thrown it (used for execution
	// time/step budgets and host-requested cancellation).
	InterruptHook     func(t *Thread) error
	InterruptInterval int32
}

const defaultCallRecursionLimit = 1000
const defaultInterruptInterval = 1 << 20

// NewHeap wires the three collaborator interfaces together into a
// running process. A nil InterruptHook disables interrupt checking.
func NewHeap(objects ObjectOps, envs EnvOps, calls CallOps) *Heap {
	return &Heap{
		Objects:            objects,
		Envs:               envs,
		Calls:              calls,
		CallRecursionLimit: defaultCallRecursionLimit,
		InterruptInterval:  defaultInterruptInterval,
	}
}

// NewThread creates a coroutine on this heap and sets it as current if
// none is running yet.
func (h *Heap) NewThread() *Thread {
	t := NewThread(h)
	if h.CurrentThread == nil {
		h.CurrentThread = t
	}
	return t
}

// throwValue arms the longjmp state with a script-visible exception
// value, the uniform way every throw site in the dispatcher raises an
// error regardless of whether it originated from OpTHROW or an
// internal invariant check that got promoted to a catchable Error.
func (h *Heap) throwValue(v value.Value) {
	h.Lj = LongjmpState{Type: LjThrow, Value1: v}
}

// throwKind constructs a host Error object of the given kind via
// ObjectOps and arms it as a throw, the path every RuntimeError/
// RangeError/ReferenceError/InternalError takes once it needs to be
// visible to script-level catch clauses.
func (h *Heap) throwKind(kind, msg string) {
	h.throwValue(h.Objects.NewError(kind, msg))
}
