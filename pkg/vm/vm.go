package vm

import (
	"corevm/pkg/errors"
	"corevm/pkg/value"
)

// ctrlSignal tells Execute's outer loop what runLoop decided.
type ctrlSignal uint8

const (
	sigNone     ctrlSignal = iota // runLoop keeps going; never actually returned, only used internally by op helpers
	sigTransfer                   // a longjmp state was armed; Execute must call Dispatch
)

// Execute runs thread from its current activation until that
// activation's call completes, returning its result. This is the
// core's single entry point: every ecma-to-ecma call, tail call,
// coroutine resume and yield happens inside runLoop/Dispatch without
// Execute ever being called recursively, which is what lets tail
// recursion and generator pipelines run in O(1) host stack frames.
func Execute(thread *Thread) (value.Value, error) {
	heap := thread.Heap
	heap.CurrentThread = thread
	entryThread := thread
	entryFloor := thread.CallTop - 1
	if entryFloor < 0 {
		entryFloor = 0
	}

	for {
		cur := heap.CurrentThread
		cur.State = StateRunning
		err := cur.runLoop()
		if err != nil {
				heap.Lj = LongjmpState{Type: LjThrow, Value1: promoteError(heap, err)}
		}

		sig, result, derr := Dispatch(heap, entryThread, entryFloor)
		switch sig {
		case URFinished:
			return result, nil
		case URRethrow:
			return value.Undefined(), derr
		case URRestart:
			continue
		}
	}
}

// promoteError turns a Go error from a coercion or arithmetic helper
// into a script-visible exception value, the uniform path every
// RuntimeError/RangeError/ReferenceError/InternalError takes so
// try/catch in script can see it.
func promoteError(heap *Heap, err error) value.Value {
	if se, ok := err.(*ScriptError); ok {
		return se.Value
	}
	if ce, ok := err.(errors.CoreError); ok {
		return heap.Objects.NewError(ce.Kind(), ce.Message())
	}
	return heap.Objects.NewError("Runtime", err.Error())
}

// runLoop executes instructions on t starting at its current
// activation's PC until a non-local transfer is armed. It never
// recurses into Execute; ecma-to-ecma calls push (or, for tail calls,
// reuse) an Activation and the for-loop simply continues against the
// new one.
func (t *Thread) runLoop() error {
	for {
		act := t.CurrentActivation()
		if act == nil || act.Fn == nil {
			return nil
		}
		if t.InterruptCounter--; t.InterruptCounter <= 0 {
			t.InterruptCounter = t.Heap.InterruptInterval
			if t.Heap.InterruptHook != nil {
				if err := t.Heap.InterruptHook(t); err != nil {
					return err
				}
			}
		}

		code := act.Fn.Code
		if act.PC < 0 || act.PC >= len(code) {
			return t.runtimeError("Internal", "program counter out of range")
		}
		ins := code[act.PC]
		act.PC++

		transfer, err := t.step(act, ins)
		if err != nil {
			return err
		}
		if transfer {
			return nil
		}
	}
}

// step executes one instruction. It returns transfer=true when a
// non-local control transfer has been armed on t.Heap.Lj and runLoop
// must stop so Execute can call Dispatch.
func (t *Thread) step(act *Activation, ins Instruction) (transfer bool, err error) {
	h := t.Heap
	switch ins.Op() {

	case OpLDREG:
		t.setReg(act, ins.A(), t.reg(act, ins.B()))
	case OpLDCONST:
		t.setReg(act, ins.A(), act.Fn.Constants[ins.BC()])
	case OpLDINT:
		t.setReg(act, ins.A(), value.Number(float64(ins.BCSigned())))
	case OpLDINTX:
		prev := t.reg(act, ins.A())
		combined := prev.AsNumber()*262144 + float64(ins.BC())
		t.setReg(act, ins.A(), value.Number(combined))
	case OpCLOSURE:
		tmpl := act.Fn.InnerFuncs[ins.BC()]
		t.setReg(act, ins.A(), value.Obj(NewClosure(tmpl, act.LexEnv)))
	case OpLDTHIS:
		t.setReg(act, ins.A(), act.This)
	case OpLDUNDEF:
		t.setReg(act, ins.A(), value.Undefined())
	case OpLDNULL:
		t.setReg(act, ins.A(), value.Null())
	case OpLDTRUE:
		t.setReg(act, ins.A(), value.Boolean(true))
	case OpLDFALSE:
		t.setReg(act, ins.A(), value.Boolean(false))

	case OpGETVAR:
		name := act.Fn.Constants[ins.BC()].AsString()
		val, ok, gerr := h.Envs.GetVar(t, act.LexEnv, name)
		if gerr != nil {
			return t.arm(gerr)
		}
		if !ok {
			return t.arm(t.runtimeError("Reference", name+" is not defined"))
		}
		t.setReg(act, ins.A(), val)
	case OpPUTVAR:
		name := act.Fn.Constants[ins.BC()].AsString()
		if perr := h.Envs.PutVar(t, act.LexEnv, name, t.reg(act, ins.A()), act.Strict); perr != nil {
			return t.arm(perr)
		}
	case OpDECLVAR:
		name := act.Fn.Constants[ins.BC()].AsString()
		if derr := h.Envs.DeclVar(t, act.VarEnv, name, t.reg(act, ins.A()), DeclFlags(ins.B())); derr != nil {
			return t.arm(derr)
		}
	case OpDELVAR:
		name := act.Fn.Constants[ins.BC()].AsString()
		ok, derr := h.Envs.DelVar(t, act.LexEnv, name)
		if derr != nil {
			return t.arm(derr)
		}
		t.setReg(act, ins.A(), value.Boolean(ok))

	case OpGETPROP:
		obj := t.reg(act, ins.B())
		key := t.reg(act, ins.C())
		v, gerr := h.Objects.GetProp(t, obj, key)
		if gerr != nil {
			return t.arm(gerr)
		}
		t.setReg(act, ins.A(), v)
	case OpPUTPROP:
		obj := t.reg(act, ins.A())
		key := t.reg(act, ins.B())
		val := t.reg(act, ins.C())
		if perr := h.Objects.PutProp(t, obj, key, val, act.Strict); perr != nil {
			return t.arm(perr)
		}
	case OpDELPROP:
		obj := t.reg(act, ins.B())
		key := t.reg(act, ins.C())
		ok, derr := h.Objects.DelProp(t, obj, key, act.Strict)
		if derr != nil {
			return t.arm(derr)
		}
		t.setReg(act, ins.A(), value.Boolean(ok))

	case OpCSREG:
		base := int(ins.A())
		fn := t.reg(act, ins.B())
		t.setReg(act, uint32(base), fn)
		t.setReg(act, uint32(base+1), value.Undefined())
	case OpCSREGI:
		base := int(ins.A())
		idx := int(t.reg(act, ins.B()).AsNumber())
		fn := t.reg(act, uint32(idx))
		t.setReg(act, uint32(base), fn)
		t.setReg(act, uint32(base+1), value.Undefined())
	case OpCSVAR, OpCSVARI:
		base := int(ins.A())
		var name string
		if ins.Op() == OpCSVAR {
			name = act.Fn.Constants[ins.BC()].AsString()
		} else {
			idx := int(t.reg(act, ins.B()).AsNumber())
			name = act.Fn.Constants[idx].AsString()
		}
		fn, this, rerr := h.Envs.ResolveCallee(t, act.LexEnv, name)
		if rerr != nil {
			return t.arm(rerr)
		}
		t.setReg(act, uint32(base), fn)
		t.setReg(act, uint32(base+1), this)
	case OpCSPROP, OpCSPROPI:
		base := int(ins.A())
		obj := t.reg(act, ins.B())
		var key value.Value
		if ins.Op() == OpCSPROP {
			key = t.reg(act, ins.C())
		} else {
			idx := int(t.reg(act, ins.C()).AsNumber())
			key = t.reg(act, uint32(idx))
		}
		fn, gerr := h.Objects.GetProp(t, obj, key)
		if gerr != nil {
			return t.arm(gerr)
		}
		t.setReg(act, uint32(base), fn)
		t.setReg(act, uint32(base+1), obj)

	case OpMPUTOBJ, OpMPUTOBJI:
		obj := t.reg(act, ins.A())
		first := ins.B()
		count := int(ins.C())
		if ins.Op() == OpMPUTOBJI {
			count = int(t.reg(act, ins.C()).AsNumber())
		}
		pairs := make([]KVPair, count)
		for i := 0; i < count; i++ {
			pairs[i] = KVPair{
				Key: t.reg(act, first+uint32(i*2)),
				Val: t.reg(act, first+uint32(i*2+1)),
			}
		}
		if perr := h.Objects.DefineDataProperties(t, obj, pairs, PropWritable|PropEnumerable|PropConfigurable); perr != nil {
			return t.arm(perr)
		}
	case OpMPUTARR:
		arr := t.reg(act, ins.A())
		first := ins.B()
		count := int(ins.C())
		elems := make([]value.Value, count)
		for i := 0; i < count; i++ {
			elems[i] = t.reg(act, first+uint32(i))
		}
		if perr := h.Objects.DefineArrayElements(t, arr, -1, elems); perr != nil {
			return t.arm(perr)
		}
	case OpNEWOBJ:
		t.setReg(act, ins.A(), h.Objects.NewPlainObject())
	case OpNEWARR:
		t.setReg(act, ins.A(), h.Objects.NewArray(nil))
	case OpSETALEN:
		arr := t.reg(act, ins.A())
		length := t.reg(act, ins.B())
		if serr := h.Objects.SetLength(t, arr, length); serr != nil {
			return t.arm(serr)
		}
	case OpINITSET, OpINITGET:
		obj := t.reg(act, ins.A())
		key := t.reg(act, ins.B())
		fn := t.reg(act, ins.C())
		var getter, setter value.Value
		if ins.Op() == OpINITGET {
			getter = fn
			setter = value.Undefined()
		} else {
			getter = value.Undefined()
			setter = fn
		}
		if derr := h.Objects.DefineAccessor(t, obj, key, getter, setter); derr != nil {
			return t.arm(derr)
		}
	case OpREGEXP:
		lit := act.Fn.Constants[ins.BC()].AsString()
		pattern, flags := splitRegexpLiteral(lit)
		v, rerr := h.Objects.NewRegExp(pattern, flags)
		if rerr != nil {
			return t.arm(rerr)
		}
		t.setReg(act, ins.A(), v)

	case OpADD:
		return t.arithBinOp(act, ins, value.Add)
	case OpSUB:
		return t.arithBinOp(act, ins, value.Sub)
	case OpMUL:
		return t.arithBinOp(act, ins, value.Mul)
	case OpDIV:
		return t.arithBinOp(act, ins, value.Div)
	case OpMOD:
		return t.arithBinOp(act, ins, value.Mod)
	case OpBAND:
		return t.arithBinOp(act, ins, value.BitAnd)
	case OpBOR:
		return t.arithBinOp(act, ins, value.BitOr)
	case OpBXOR:
		return t.arithBinOp(act, ins, value.BitXor)
	case OpSHL:
		return t.arithBinOp(act, ins, value.ShiftLeft)
	case OpSHR:
		return t.arithBinOp(act, ins, value.ShiftRight)
	case OpUSHR:
		return t.arithBinOp(act, ins, value.ShiftRightUnsigned)
	case OpBNOT:
		v, berr := value.BitwiseNot(t.reg(act, ins.B()), t)
		if berr != nil {
			return t.arm(berr)
		}
		t.setReg(act, ins.A(), v)
	case OpLNOT:
		t.setReg(act, ins.A(), value.LogicalNot(t.reg(act, ins.B())))

	case OpEQ, OpNEQ:
		eq, eerr := value.AbstractEquals(t.reg(act, ins.B()), t.reg(act, ins.C()), t)
		if eerr != nil {
			return t.arm(eerr)
		}
		if ins.Op() == OpNEQ {
			eq = !eq
		}
		t.setReg(act, ins.A(), value.Boolean(eq))
	case OpSEQ, OpSNEQ:
		eq := value.StrictEquals(t.reg(act, ins.B()), t.reg(act, ins.C()))
		if ins.Op() == OpSNEQ {
			eq = !eq
		}
		t.setReg(act, ins.A(), value.Boolean(eq))
	case OpGT, OpGE, OpLT, OpLE:
		return t.relOp(act, ins)
	case OpIN:
		obj := t.reg(act, ins.C())
		key := t.reg(act, ins.B())
		ok, ierr := h.Objects.HasProp(t, obj, key)
		if ierr != nil {
			return t.arm(ierr)
		}
		t.setReg(act, ins.A(), value.Boolean(ok))
	case OpINSTOF:
		obj := t.reg(act, ins.B())
		ctor := t.reg(act, ins.C())
		ok, ierr := h.Objects.InstanceOf(t, obj, ctor)
		if ierr != nil {
			return t.arm(ierr)
		}
		t.setReg(act, ins.A(), value.Boolean(ok))
	case OpTYPEOF:
		t.setReg(act, ins.A(), value.Str(h.Objects.TypeOf(t.reg(act, ins.B()))))
	case OpTYPEOFID:
		name := act.Fn.Constants[ins.BC()].AsString()
		val, ok, _ := h.Envs.GetVar(t, act.LexEnv, name)
		if !ok {
			t.setReg(act, ins.A(), value.Str("undefined"))
		} else {
			t.setReg(act, ins.A(), value.Str(h.Objects.TypeOf(val)))
		}

	case OpIF:
		cond := value.ToBoolean(t.reg(act, ins.A()))
		match := ins.B() != 0
		if cond != match {
			act.PC++
		}
	case OpJUMP:
		act.PC += int(ins.BCSigned())
	case OpBREAK:
		return t.arm2(LjBreak, value.Number(float64(ins.BC())))
	case OpCONTINUE:
		return t.arm2(LjContinue, value.Number(float64(ins.BC())))

	case OpCALL, OpCALLI, OpCALLTAIL, OpCALLITAIL:
		argCount := ins.C()
		if ins.Op() == OpCALLI || ins.Op() == OpCALLITAIL {
			argCount = uint32(t.reg(act, ins.C()).AsNumber())
		}
		flags := CallFlags(0)
		if ins.Op() == OpCALLTAIL || ins.Op() == OpCALLITAIL {
			flags |= CallTail
			assertTailPositionFollowedByReturn(act, ins)
		}
		pushed, cerr := t.prepareCall(act, ins.A(), ins.B(), argCount, flags)
		if cerr != nil {
			return t.arm(cerr)
		}
		// prepareCall's host-call branch may have armed a transfer
		// (a "yield"/"resume" intrinsic suspending this thread)
		// instead of just computing a value; runLoop must stop so
		// Execute's Dispatch can carry it out. An ecma push leaves
		// h.Lj untouched and pushed==true, so this falls through and
		// runLoop's next iteration simply re-fetches CurrentActivation.
		if h.Lj.Type != LjNormal {
			return true, nil
		}
		_ = pushed
	case OpNEW, OpNEWI:
		argCount := ins.C()
		if ins.Op() == OpNEWI {
			argCount = uint32(t.reg(act, ins.C()).AsNumber())
		}
		_, cerr := t.prepareCall(act, ins.A(), ins.B(), argCount, CallConstruct)
		if cerr != nil {
			return t.arm(cerr)
		}
	case OpRETURN:
		var result value.Value
		if ins.A() != 0 {
			result = t.reg(act, ins.B())
		} else {
			result = value.Undefined()
		}
		return t.arm2(LjReturn, result)

	case OpLABEL:
		t.opLabel(act, ins)
	case OpENDLABEL:
		t.opEndLabel()
	case OpTRYCATCH:
		t.opTryCatchFinally(act, ins)
	case OpENDTRY:
		t.opEndTry(act)
	case OpENDCATCH:
		t.opEndCatch(act)
	case OpENDFIN:
		if t.opEndFinally() == sigTransfer {
			return true, nil
		}
	case OpENTERWITH:
		t.opEnterWith(act, ins, h.Envs)
	case OpLEAVEWITH:
		t.opLeaveWith(act)

	case OpINITENUM:
		src := t.reg(act, ins.B())
		if src.IsNullOrUndefined() {
			t.setReg(act, ins.A(), value.Obj(&enumeratorRef{e: emptyEnumerator{}}))
		} else {
			e, eerr := h.Objects.Enumerate(t, src, EnumOwnOnly)
			if eerr != nil {
				return t.arm(eerr)
			}
			t.setReg(act, ins.A(), value.Obj(&enumeratorRef{e: e}))
		}
	case OpNEXTENUM:
		er, _ := t.reg(act, ins.B()).AsRef().(*enumeratorRef)
		key, ok := er.e.Next()
		if !ok {
			act.PC++
			break
		}
		t.setReg(act, ins.A(), key)

	case OpINVLHS:
		return t.arm(t.runtimeError("Reference", "Invalid left-hand side"))
	case OpTHROW:
		return t.arm2(LjThrow, t.reg(act, ins.A()))
	case OpNOP:
		// nothing
	case OpINVALID:
		return t.arm(t.runtimeError("Internal", "invalid opcode"))
	default:
		return t.arm(t.runtimeError("Internal", "unimplemented opcode"))
	}
	return false, nil
}

// arm stages a Go error as a THROW transfer and tells step to stop.
func (t *Thread) arm(err error) (bool, error) {
	t.Heap.Lj = LongjmpState{Type: LjThrow, Value1: promoteError(t.Heap, err)}
	return true, nil
}

// arm2 stages an already-constructed transfer value.
func (t *Thread) arm2(kind LjType, v value.Value) (bool, error) {
	t.Heap.Lj = LongjmpState{Type: kind, Value1: v}
	return true, nil
}

func (t *Thread) arithBinOp(act *Activation, ins Instruction, op func(value.Value, value.Value, value.Host) (value.Value, error)) (bool, error) {
	v, err := op(t.reg(act, ins.B()), t.reg(act, ins.C()), t)
	if err != nil {
		return t.arm(err)
	}
	t.setReg(act, ins.A(), v)
	return false, nil
}

func (t *Thread) relOp(act *Activation, ins Instruction) (bool, error) {
	x := t.reg(act, ins.B())
	y := t.reg(act, ins.C())
	var r value.RelResult
	var err error
	var result bool
	switch ins.Op() {
	case OpLT:
		r, err = value.LessThan(x, y, true, t)
		result = r == value.RelTrue
	case OpGT:
		r, err = value.LessThan(y, x, false, t)
		result = r == value.RelTrue
	case OpLE:
		r, err = value.LessThan(y, x, false, t)
		result = r == value.RelFalse
	case OpGE:
		r, err = value.LessThan(x, y, true, t)
		result = r == value.RelFalse
	}
	if err != nil {
		return t.arm(err)
	}
	t.setReg(act, ins.A(), value.Boolean(result))
	return false, nil
}

// debugAssertTailCalls gates assertTailPositionFollowedByReturn; flip
// to true in a debug build. Off by default since it inspects every
// CALLTAIL site's successor on every single call.
const debugAssertTailCalls = false

// assertTailPositionFollowedByReturn enforces the contract a tail call
// relies on: the compiler must only ever emit CALLTAIL/CALLITAIL
// immediately before a RETURN of its result, never mid-expression,
// since the activation a tail call reuses is gone by the time any
// other instruction after it would otherwise run.
func assertTailPositionFollowedByReturn(act *Activation, ins Instruction) {
	if !debugAssertTailCalls {
		return
	}
	next := act.PC // already advanced past the CALLTAIL/CALLITAIL itself
	if next >= len(act.Fn.Code) || act.Fn.Code[next].Op() != OpRETURN {
		panic("tail call not immediately followed by RETURN")
	}
}

// splitRegexpLiteral separates a packed "/pattern/flags" constant-pool
// entry into its two parts; the lexical form is a compiler concern,
// but the packed literal still has to be unpacked somewhere on this
// side of the ObjectOps boundary.
func splitRegexpLiteral(lit string) (pattern, flags string) {
	if len(lit) == 0 || lit[0] != '/' {
		return lit, ""
	}
	for i := len(lit) - 1; i > 0; i-- {
		if lit[i] == '/' {
			return lit[1:i], lit[i+1:]
		}
	}
	return lit[1:], ""
}

// enumeratorRef wraps an Enumerator so it can live in a register as a
// TagObject value without the object system needing to know about
// for-in enumeration state.
type enumeratorRef struct {
	e        Enumerator
	refcount int32
}

func (r *enumeratorRef) IncRef()      { r.refcount++ }
func (r *enumeratorRef) DecRef() bool { r.refcount--; return r.refcount <= 0 }

type emptyEnumerator struct{}

func (emptyEnumerator) Next() (value.Value, bool) { return value.Undefined(), false }
