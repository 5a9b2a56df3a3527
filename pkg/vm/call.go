package vm

import "corevm/pkg/value"

// flattenBound walks a chain of BoundFunction wrappers, accumulating
// the innermost bound `this` and concatenating bound arguments in
// order, the way a single recursive unwrap cannot: bind(bind(f, a, [1]), b, [2])
// must call f with this=a (the FIRST bound this wins) and args [1, 2, ...].
// The original executor does this with a loop rather than a single
// unwrap precisely so chains of arbitrary depth don't recurse on the
// host stack.
func flattenBound(fn value.Value, extraArgs []value.Value) (target, this value.Value, args []value.Value) {
	args = extraArgs
	this = value.Undefined()
	for {
		b, ok := AsBoundFunction(fn)
		if !ok {
			return fn, this, args
		}
		this = b.This
		args = append(append([]value.Value{}, b.Args...), args...)
		fn = b.Target
	}
}

// prepareCall implements CALL/CALLI/NEW/NEWI's call-setup contract:
// decide between the ecma-to-ecma fast path (push or, for a tail call,
// reuse an activation and let runLoop keep dispatching) and delegating
// to CallOps for anything that isn't a compiled closure. pushed==true
// means the caller's runLoop should re-fetch CurrentActivation and
// keep going without touching destReg itself.
func (t *Thread) prepareCall(caller *Activation, destReg, base, argCount uint32, flags CallFlags) (pushed bool, err error) {
	fnReg := caller.IdxBottom + int(base)
	funcVal := t.Regs[fnReg]
	thisVal := t.Regs[fnReg+1]
	argv := make([]value.Value, argCount)
	copy(argv, t.Regs[fnReg+2:fnReg+2+int(argCount)])

	if _, isBound := AsBoundFunction(funcVal); isBound {
		target, boundThis, args := flattenBound(funcVal, argv)
		funcVal, thisVal, argv = target, boundThis, args
	}
	target := funcVal

	if flags&CallConstruct != 0 {
		return t.prepareConstruct(caller, destReg, target, argv)
	}

	closure, isClosure := AsClosure(target)
	if !isClosure {
		t.Heap.CallRecursionDepth++
		defer func() { t.Heap.CallRecursionDepth-- }()
		result, cerr := t.Heap.Calls.HandleCall(t, target, thisVal, argv, flags)
		if cerr != nil {
			return false, cerr
		}
		// A native callee (e.g. "yield"/"resume") may have armed a
		// non-local transfer on t.Heap.Lj instead of just returning a
		// value; in that case destReg is not this call's business
		// anymore — runLoop must stop so Execute's Dispatch can carry
		// the transfer out, the same as the ecma-call paths below.
		if t.Heap.Lj.Type != LjNormal {
			return true, nil
		}
		t.setReg(caller, destReg, result)
		return false, nil
	}

	if t.Heap.CallRecursionDepth >= t.Heap.CallRecursionLimit {
		return false, t.runtimeError("Range", "call recursion too deep")
	}

	if flags&CallTail != 0 && t.canTailCallInto(caller) {
		t.reuseActivationForTailCall(caller, value.Obj(closure), closure.Fn, thisVal, argv)
		return true, nil
	}

	t.Heap.CallRecursionDepth++
	idxBottom := t.RegTop
	t.growRegs(idxBottom + closure.Fn.NRegs)
	copy(t.Regs[idxBottom:], argv)
	for i := len(argv); i < closure.Fn.NRegs; i++ {
		t.Regs[idxBottom+i] = value.Undefined()
	}
	if idxBottom+closure.Fn.NRegs > t.RegTop {
		t.RegTop = idxBottom + closure.Fn.NRegs
	}
	act := t.pushActivation(value.Obj(closure), closure.Fn, idxBottom, caller.IdxBottom+int(destReg), closure.Fn.NRegs)
	act.This = thisVal
	act.Strict = closure.Fn.Strict
	act.LexEnv = closure.Env
	act.VarEnv = closure.Env
	act.RecursionCounted = true
	copy(t.Regs[idxBottom:], argv)
	return true, nil
}

// canTailCallInto reports whether caller's own activation may be
// overwritten by a tail call instead of pushed as a new frame: per
// the call-setup contract, a CALLTAIL must fall back to a normal push
// whenever the current frame has active catchers of its own (an
// in-flight try/catch/finally or with would be stranded — its
// CallstackIndex would suddenly point at the wrong frame), is itself
// a constructor call, or carries any PreventCount (a pending finally
// completion that still needs this exact frame to resume into).
func (t *Thread) canTailCallInto(caller *Activation) bool {
	if caller.PreventCount != 0 || caller.IsConstructor {
		return false
	}
	callerIdx := t.CallTop - 1
	return t.CatchTop == 0 || t.Catches[t.CatchTop-1].CallstackIndex != callerIdx
}

// reuseActivationForTailCall overwrites the caller's own activation in
// place instead of pushing a new one, so a tail-recursive ecma
// function runs in O(1) host frames no matter how deep the logical
// recursion goes. IdxRetval is deliberately left untouched: it still
// points at whichever frame originally called into this tail chain.
func (t *Thread) reuseActivationForTailCall(act *Activation, callee value.Value, fn *CFun, this value.Value, args []value.Value) {
	t.growRegs(act.IdxBottom + fn.NRegs)
	copy(t.Regs[act.IdxBottom:], args)
	for i := len(args); i < fn.NRegs; i++ {
		t.Regs[act.IdxBottom+i] = value.Undefined()
	}
	if act.IdxBottom+fn.NRegs > t.RegTop {
		t.RegTop = act.IdxBottom + fn.NRegs
	}
	closure, _ := AsClosure(callee)
	act.Callee = callee
	act.Fn = fn
	act.PC = 0
	act.LexEnv = closure.Env
	act.VarEnv = closure.Env
	act.This = this
	act.Strict = fn.Strict
	act.IsConstructor = false
}

// prepareConstruct implements NEW/NEWI: allocate a fresh object (via
// ObjectOps so prototype linkage is the object system's concern),
// invoke the constructor with that object as `this`, and use the
// constructor's return value only if it's itself an object — the
// ES5 §13.2.2 [[Construct]] contract.
func (t *Thread) prepareConstruct(caller *Activation, destReg uint32, target value.Value, args []value.Value) (bool, error) {
	obj := t.Heap.Objects.NewPlainObject()
	closure, isClosure := AsClosure(target)
	if !isClosure {
		result, err := t.Heap.Calls.HandleCall(t, target, obj, args, CallConstruct)
		if err != nil {
			return false, err
		}
		if result.IsObject() {
			t.setReg(caller, destReg, result)
		} else {
			t.setReg(caller, destReg, obj)
		}
		return false, nil
	}

	idxBottom := t.RegTop
	t.growRegs(idxBottom + closure.Fn.NRegs)
	copy(t.Regs[idxBottom:], args)
	for i := len(args); i < closure.Fn.NRegs; i++ {
		t.Regs[idxBottom+i] = value.Undefined()
	}
	if idxBottom+closure.Fn.NRegs > t.RegTop {
		t.RegTop = idxBottom + closure.Fn.NRegs
	}
	act := t.pushActivation(target, closure.Fn, idxBottom, caller.IdxBottom+int(destReg), closure.Fn.NRegs)
	act.This = obj
	act.IsConstructor = true
	act.PreventCount++ // held for the whole lifetime of a constructor frame
	act.Strict = closure.Fn.Strict
	act.LexEnv = closure.Env
	act.VarEnv = closure.Env
	copy(t.Regs[idxBottom:], args)
	return true, nil
}

// --- Coroutine setup ---

// NewCoroutine creates a thread whose first activation is already
// prepared to run fn(args...); it starts StateInactive and only begins
// executing once Resume delivers its first value.
func (h *Heap) NewCoroutine(fn *Closure, args []value.Value) *Thread {
	t := NewThread(h)
	idxBottom := 0
	t.growRegs(idxBottom + fn.Fn.NRegs)
	copy(t.Regs[idxBottom:], args)
	for i := len(args); i < fn.Fn.NRegs; i++ {
		t.Regs[idxBottom+i] = value.Undefined()
	}
	t.RegTop = idxBottom + fn.Fn.NRegs
	act := t.pushActivation(value.Obj(fn), fn.Fn, idxBottom, 0, fn.Fn.NRegs)
	act.This = value.Undefined()
	act.LexEnv = fn.Env
	act.VarEnv = fn.Env
	act.Strict = fn.Fn.Strict
	copy(t.Regs[idxBottom:], args)
	return t
}

// Yield arms the YIELD transfer; called by a native "yield" intrinsic
// running on behalf of the currently executing thread. The intrinsic
// must return immediately afterward so runLoop notices the armed
// transfer before executing another instruction.
func (h *Heap) Yield(v value.Value) {
	h.Lj = LongjmpState{Type: LjYield, Value1: v}
}

// Resume arms the RESUME transfer; called by a native "resume"
// intrinsic. isErr delivers the value as a thrown exception at
// target's yield point instead of as yield's return value.
func (h *Heap) Resume(target *Thread, v value.Value, isErr bool) {
	h.Lj = LongjmpState{Type: LjResume, ResumeThread: target, ResumeValue: v, ResumeError: isErr}
}
