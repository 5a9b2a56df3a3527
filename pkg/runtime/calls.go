package runtime

import (
	"corevm/pkg/value"
	"corevm/pkg/vm"
)

// Calls is the reference CallOps implementation: it only has to handle
// whatever prepareCall didn't already resolve itself, which is every
// lightfunc (builtins, host intrinsics) and any "Function"-classed
// PlainObject a builtin installed as a constructor with its own
// properties (Array, Object, RegExp and friends all need callable
// constructors that also carry static methods, which a bare lightfunc
// value has no room for).
type Calls struct{}

func NewCallOps() *Calls { return &Calls{} }

func (c *Calls) HandleCall(t *vm.Thread, callee, this value.Value, args []value.Value, flags vm.CallFlags) (value.Value, error) {
	if callee.IsLightFunc() {
		lf := callee.AsLightFunc()
		return lf.Impl(t, this, args)
	}
	if o, ok := asObject(callee); ok && o.class == "Function" && o.nativeCtor != nil {
		return o.nativeCtor(t, this, args)
	}
	if cl, ok := vm.AsClosure(callee); ok {
		// A closure reaches CallOps whenever something bypasses the
		// CALL opcode's fast path: a builtin invoking a callable, or a
		// coercion calling a script valueOf/toString/getter through
		// t.Call (value.Host), which forwards here directly. CallOps has
		// no access to the dispatcher loop, so compiled closures are not
		// run on these paths; every such call fails with this TypeError.
		_ = cl
		return value.Undefined(), newErr(t, "TypeError", "internal: closure reached CallOps.HandleCall")
	}
	return value.Undefined(), newErr(t, "TypeError", "value is not callable")
}

func (c *Calls) IsCallable(v value.Value) bool {
	if v.IsLightFunc() {
		return true
	}
	if o, ok := asObject(v); ok && o.class == "Function" {
		return o.nativeCtor != nil
	}
	return false
}
