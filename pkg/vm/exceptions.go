package vm

import "corevm/pkg/value"

// This file implements the try/catch/finally and loop-label opcode
// family: pushing and popping Catchers on the normal fall-through
// path. Non-local transfers that jump INTO a catch or finally clause
// out of sequence (a THROW, RETURN, BREAK or CONTINUE) are handled by
// the Unwinder instead — this file only covers a try block, catch
// block or finally block running off the end of itself normally.

func (t *Thread) opLabel(act *Activation, ins Instruction) {
	t.growCatches(t.CatchTop + 1)
	t.Catches[t.CatchTop] = Catcher{
		Type:           CatLabel,
		CallstackIndex: t.CallTop - 1,
		PCBase:         act.PC, // the two jump-slot instructions immediately follow LABEL
		LabelID:        int32(ins.BC()),
	}
	t.CatchTop++
	act.PC += 2 // skip the break-target and continue-target jump slots
}

func (t *Thread) opEndLabel() {
	t.CatchTop--
}

func (t *Thread) opTryCatchFinally(act *Activation, ins Instruction) {
	flags := CatcherFlags(0)
	raw := ins.A()
	if raw&1 != 0 {
		flags |= CatHasCatch
	}
	if raw&2 != 0 {
		flags |= CatHasFinally
	}
	if raw&4 != 0 {
		flags |= CatHasBinding
	}
	catchVarName := ""
	if flags&CatHasBinding != 0 {
		name := act.Fn.Constants[ins.B()]
		catchVarName = name.AsString()
	}

	t.growCatches(t.CatchTop + 1)
	t.Catches[t.CatchTop] = Catcher{
		Type:           CatTryCatchFinally,
		Flags:          flags,
		CallstackIndex: t.CallTop - 1,
		PCBase:         act.PC, // the two jump-slot instructions immediately follow, same as LABEL
		CatchVarName:   catchVarName,
	}
	t.CatchTop++
	act.PC += 2 // skip the catch-target and finally-target jump slots; the try body starts right after them
}

// opEndTry runs when the try block completes without a non-local
// transfer: if there's a finally clause that hasn't run yet, fall into
// it (staging a "no pending completion" resume); otherwise just pop
// the catcher.
func (t *Thread) opEndTry(act *Activation) {
	c := &t.Catches[t.CatchTop-1]
	if c.Flags&CatHasFinally != 0 && c.Flags&CatInFinally == 0 {
		c.Flags |= CatInFinally
		c.HasPending = false
		act.PC = c.PCBase + 1
		act.PreventCount++
		return
	}
	t.CatchTop--
}

// opEndCatch mirrors opEndTry for the catch clause completing
// normally.
func (t *Thread) opEndCatch(act *Activation) {
	c := &t.Catches[t.CatchTop-1]
	if c.Flags&CatHasFinally != 0 && c.Flags&CatInFinally == 0 {
		c.Flags |= CatInFinally
		c.HasPending = false
		act.PC = c.PCBase + 1
		act.PreventCount++
		return
	}
	t.CatchTop--
}

// opEnterWith splices an object environment record for obj onto
// act.LexEnv, the way the original executor pushes a DUK_CAT_TYPE_WITH
// catcher: a catcher that exists purely to remember the pre-with
// lex_env so it can be restored, never a throw/break/continue target.
func (t *Thread) opEnterWith(act *Activation, ins Instruction, envs EnvOps) {
	obj := t.reg(act, ins.A())
	t.growCatches(t.CatchTop + 1)
	t.Catches[t.CatchTop] = Catcher{
		Type:           CatWith,
		CallstackIndex: t.CallTop - 1,
		SavedLexEnv:    act.LexEnv,
	}
	t.CatchTop++
	act.LexEnv = envs.NewObjectEnv(act.LexEnv, obj)
}

// opLeaveWith restores the lex_env saved by the innermost with-catcher
// when the with-block runs off its own end normally.
func (t *Thread) opLeaveWith(act *Activation) {
	c := t.Catches[t.CatchTop-1]
	t.CatchTop--
	act.LexEnv = c.SavedLexEnv
}

// opEndFinally runs when the finally clause itself completes
// normally: if a completion was pending when the finally was entered,
// resume it now by arming the corresponding longjmp type (the
// Unwinder then continues the search for this completion's real
// target, starting just outside the catcher this function pops).
func (t *Thread) opEndFinally() ctrlSignal {
	c := t.Catches[t.CatchTop-1]
	t.CatchTop--
	t.Calls[c.CallstackIndex].PreventCount--
	if !c.HasPending {
		return sigNone
	}
	switch c.PendingType {
	case LjReturn:
		t.Heap.Lj = LongjmpState{Type: LjReturn, Value1: c.PendingValue}
	case LjThrow:
		t.Heap.Lj = LongjmpState{Type: LjThrow, Value1: c.PendingValue}
	case LjBreak, LjContinue:
		t.Heap.Lj = LongjmpState{Type: c.PendingType, Value1: value.Number(float64(c.PendingLabel))}
	default:
		return sigNone
	}
	return sigTransfer
}
