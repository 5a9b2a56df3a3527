package vm

import "corevm/pkg/value"

// Closure is the core's own notion of a callable: a compiled function
// template plus the lexical environment captured at CLOSURE-time. This
// mirrors the original executor's model directly — closures carry an
// environment-record reference, not a flat upvalue array — which is
// why there is no separate upvalue-capture machinery anywhere in this
// package: GETVAR/PUTVAR walk the captured chain like any other
// variable access.
type Closure struct {
	Fn       *CFun
	Env      EnvRef
	refcount int32
}

func NewClosure(fn *CFun, env EnvRef) *Closure {
	return &Closure{Fn: fn, Env: env, refcount: 1}
}

func (c *Closure) IncRef() { c.refcount++ }
func (c *Closure) DecRef() bool {
	c.refcount--
	return c.refcount <= 0
}

// AsClosure extracts the Closure payload from an object-tagged Value,
// if that's what it actually holds. Property access, calls through
// non-closure values (native functions, bound functions not yet
// flattened) always go through CallOps/ObjectOps instead.
func AsClosure(v value.Value) (*Closure, bool) {
	if !v.IsObject() {
		return nil, false
	}
	c, ok := v.AsRef().(*Closure)
	return c, ok
}

func ClosureValue(c *Closure) value.Value { return value.Obj(c) }

// BoundFunction is the core's notion of a Function.prototype.bind
// result: enough structure that the call-setup path can flatten a
// chain of them without reentering the object system, per the
// original executor's bound-function unwrapping loop. Everything else
// about a bound function (its own properties, .length, .name) is the
// object system's concern.
type BoundFunction struct {
	Target   value.Value
	This     value.Value
	Args     []value.Value
	refcount int32
}

func NewBoundFunction(target, this value.Value, args []value.Value) *BoundFunction {
	return &BoundFunction{Target: target, This: this, Args: args, refcount: 1}
}

func (b *BoundFunction) IncRef() { b.refcount++ }
func (b *BoundFunction) DecRef() bool {
	b.refcount--
	return b.refcount <= 0
}

func AsBoundFunction(v value.Value) (*BoundFunction, bool) {
	if !v.IsObject() {
		return nil, false
	}
	b, ok := v.AsRef().(*BoundFunction)
	return b, ok
}

func BoundFunctionValue(b *BoundFunction) value.Value { return value.Obj(b) }

// CoroutineHandle wraps a *Thread so a coroutine created by NewCoroutine
// can be passed around script-side as an ordinary value.Value — the
// "spawn" intrinsic's return value and the "resume" intrinsic's first
// argument. The wrapped Thread owns no resources DecRef would need to
// release; dropping the last handle just lets the Thread and its
// register/call stacks get collected like anything else unreferenced.
type CoroutineHandle struct {
	Thread   *Thread
	refcount int32
}

func NewCoroutineHandle(t *Thread) *CoroutineHandle {
	return &CoroutineHandle{Thread: t, refcount: 1}
}

func (c *CoroutineHandle) IncRef() { c.refcount++ }
func (c *CoroutineHandle) DecRef() bool {
	c.refcount--
	return c.refcount <= 0
}

func AsCoroutineHandle(v value.Value) (*CoroutineHandle, bool) {
	if !v.IsObject() {
		return nil, false
	}
	c, ok := v.AsRef().(*CoroutineHandle)
	return c, ok
}

func CoroutineHandleValue(c *CoroutineHandle) value.Value { return value.Obj(c) }
