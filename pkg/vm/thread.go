package vm

import (
	"corevm/pkg/errors"
	"corevm/pkg/value"
)

// ThreadState tracks a coroutine's lifecycle for the RESUME/YIELD
// longjmp types.
type ThreadState uint8

const (
	StateInactive ThreadState = iota
	StateRunning
	StateResumed
	StateYielded
	StateTerminated
)

func (s ThreadState) String() string {
	switch s {
	case StateInactive:
		return "inactive"
	case StateRunning:
		return "running"
	case StateResumed:
		return "resumed"
	case StateYielded:
		return "yielded"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// Thread is a cooperative coroutine: its own register stack, call
// stack and catch stack, switched in and out of by RESUME/YIELD. The
// initial thread created by NewThread has no Resumer and is the one
// Execute is normally called on.
type Thread struct {
	Heap    *Heap
	State   ThreadState
	Resumer *Thread

	Regs    []value.Value
	RegTop  int

	Calls   []Activation
	CallTop int

	Catches   []Catcher
	CatchTop  int

	// InterruptCounter counts down opcodes executed; when it reaches
	// zero the dispatcher invokes Heap.InterruptHook, the same
	// mechanism a long-running script's execution budget rides on.
	InterruptCounter int32
}

const (
	initialRegStack   = 64
	initialCallStack  = 16
	initialCatchStack = 8
)

// NewThread creates a fresh coroutine rooted at heap, not yet running.
func NewThread(heap *Heap) *Thread {
	return &Thread{
		Heap:    heap,
		State:   StateInactive,
		Regs:    make([]value.Value, initialRegStack),
		Calls:   make([]Activation, initialCallStack),
		Catches: make([]Catcher, initialCatchStack),

		InterruptCounter: heap.InterruptInterval,
	}
}

// CurrentActivation returns the topmost activation, or nil if the
// call stack is empty (a thread with no activation hasn't started).
func (t *Thread) CurrentActivation() *Activation {
	if t.CallTop == 0 {
		return nil
	}
	return &t.Calls[t.CallTop-1]
}

// --- value.Host implementation: lets pkg/value's coercions reenter
// the executor for valueOf/toString/GetProp without pkg/value needing
// to know anything about activations or call stacks. ---

func (t *Thread) GetProp(obj value.Value, key string) (value.Value, error) {
	return t.Heap.Objects.GetProp(t, obj, value.Str(key))
}

func (t *Thread) Call(fn value.Value, this value.Value, args []value.Value) (value.Value, error) {
	return t.Heap.Calls.HandleCall(t, fn, this, args, 0)
}

func (t *Thread) IsCallable(fn value.Value) bool {
	if fn.IsCallable() {
		return true
	}
	if _, ok := AsClosure(fn); ok {
		return true
	}
	return t.Heap.Calls.IsCallable(fn)
}

// runtimeError builds a Go error positioned at the current
// activation's source line, the same convenience the teacher's
// runtimeError helper provided for the old bytecode interpreter.
func (t *Thread) runtimeError(kind string, msg string) error {
	line := 0
	if act := t.CurrentActivation(); act != nil && act.Fn != nil {
		line = act.Fn.GetLine(act.PC)
	}
	pos := errors.Position{Line: line}
	switch kind {
	case "Range":
		return &errors.RangeError{Position: pos, Msg: msg}
	case "Reference":
		return &errors.ReferenceError{Position: pos, Msg: msg}
	case "Internal":
		return &errors.InternalError{Position: pos, Msg: msg}
	default:
		return &errors.RuntimeError{Position: pos, Msg: msg}
	}
}
