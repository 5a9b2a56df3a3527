package vm

import "corevm/pkg/value"

// findCatcher scans t's catch stack from the top down for the first
// entry that can intercept the given kind of transfer within frames at
// or above floor (the activation index below which this search must
// not look — the boundary of the current Execute call, or of a
// still-unwinding outer activation). It returns the catcher's index or
// -1.
func findCatcher(t *Thread, floor int, match func(c *Catcher) bool) int {
	for i := t.CatchTop - 1; i >= 0; i-- {
		c := &t.Catches[i]
		if c.CallstackIndex < floor {
			return -1
		}
		if match(c) {
			return i
		}
	}
	return -1
}

// popCatchersTo discards the catcher at idx and every catcher above
// it, leaving CatchTop == idx. Any with-catchers being discarded spliced act.LexEnv
// on entry and must splice it back out again; the outermost one in the
// discarded range holds the lex_env from before any of them ran.
func (t *Thread) popCatchersTo(idx int) {
	if act := t.CurrentActivation(); act != nil {
		for i := idx; i < t.CatchTop; i++ {
			if t.Catches[i].Type == CatWith {
				act.LexEnv = t.Catches[i].SavedLexEnv
				break
			}
		}
	}
	t.CatchTop = idx
}

// popCatchersToBelow discards every catcher belonging to actIdx or any
// deeper, already-returned-from activation. actIdx is a call-stack
// index, a different index space than popCatchersTo's catch-stack
// index — this scans the catch stack from the top down for the first
// entry whose CallstackIndex is still < actIdx and pops down to there,
// instead of (wrongly) reusing actIdx as if it were already a
// catch-stack position.
func (t *Thread) popCatchersToBelow(actIdx int) {
	i := t.CatchTop
	for i > 0 && t.Catches[i-1].CallstackIndex >= actIdx {
		i--
	}
	t.popCatchersTo(i)
}

// enterFinally stages a jump into catcher's finally clause and records
// the completion that should resume once ENDFIN runs, the mechanism
// that lets a pending return/break/continue/throw survive a finally
// block that completes normally.
func enterFinally(t *Thread, c *Catcher, pendType LjType, v1, v2 value.Value, label int32) {
	c.HasPending = true
	c.PendingType = pendType
	c.PendingValue = v1
	c.PendingLabel = label
	c.Flags |= CatInFinally
	act := &t.Calls[c.CallstackIndex]
	act.PC = c.PCBase + 1
	act.PreventCount++
	_ = v2
}

// Dispatch consumes heap.Lj and keeps transferring control —
// searching catch stacks, hopping across coroutine boundaries, staging
// finally blocks — until it reaches one of three stable outcomes:
// resume opcode dispatch somewhere (URRestart, after possibly
// switching heap.CurrentThread), the entry call has produced its
// result (URFinished), or the transfer has escaped the entry call
// entirely (URRethrow). This single loop is the core's whole
// non-local control-flow story: THROW, RETURN, BREAK, CONTINUE, YIELD
// and RESUME are all just different arguments to it.
func Dispatch(heap *Heap, entryThread *Thread, entryFloor int) (UnwindResult, value.Value, error) {
	for {
		lj := heap.Lj
		t := heap.CurrentThread

		switch lj.Type {
		case LjNormal:
			heap.Lj = LongjmpState{}
			return URRestart, value.Undefined(), nil

		case LjThrow:
			floor := 0
			if t == entryThread {
				floor = entryFloor
			}
			idx := findCatcher(t, floor, func(c *Catcher) bool {
				if c.Type != CatTryCatchFinally {
					return false
				}
				if c.Flags&CatHasCatch != 0 && c.Flags&CatInCatch == 0 {
					return true
				}
				if c.Flags&CatHasFinally != 0 && c.Flags&CatInFinally == 0 {
					return true
				}
				return false
			})
			if idx < 0 {
				if t.Resumer != nil {
					t.State = StateTerminated
					heap.CurrentThread = t.Resumer
					heap.CurrentThread.State = StateRunning
					continue
				}
				if t == entryThread {
					heap.Lj = LongjmpState{}
					return URRethrow, value.Undefined(), t.runtimeError("", "uncaught exception")
				}
				return URRethrow, value.Undefined(), t.runtimeError("Internal", "uncaught exception escaped nested thread")
			}
			c := &t.Catches[idx]
			for t.CallTop > c.CallstackIndex+1 {
				t.popActivation()
			}
			act := &t.Calls[c.CallstackIndex]
			if c.Flags&CatHasCatch != 0 && c.Flags&CatInCatch == 0 {
				t.popCatchersTo(idx + 1)
				c.Flags |= CatInCatch
				act.PC = c.PCBase
				if c.Flags&CatHasBinding != 0 {
					act.LexEnv = heap.Envs.BindCatchVar(act.LexEnv, c.CatchVarName, lj.Value1)
				}
				heap.Lj = LongjmpState{}
				return URRestart, value.Undefined(), nil
			}
			t.popCatchersTo(idx + 1)
			enterFinally(t, c, LjThrow, lj.Value1, value.Undefined(), 0)
			heap.Lj = LongjmpState{}
			return URRestart, value.Undefined(), nil

		case LjReturn:
			actIdx := t.CallTop - 1
			idx := findCatcher(t, actIdx, func(c *Catcher) bool {
				return c.CallstackIndex == actIdx && c.Type == CatTryCatchFinally &&
					c.Flags&CatHasFinally != 0 && c.Flags&CatInFinally == 0
			})
			if idx >= 0 {
				c := &t.Catches[idx]
				t.popCatchersTo(idx + 1)
				enterFinally(t, c, LjReturn, lj.Value1, value.Undefined(), 0)
				heap.Lj = LongjmpState{}
				return URRestart, value.Undefined(), nil
			}
			// IdxRetval is an absolute value-stack index (set by
			// prepareCall/prepareConstruct as caller.IdxBottom+destReg),
			// not a register offset into any particular window — capture
			// it before popActivation discards the returning frame, and
			// write through it directly rather than via setReg, which
			// would re-base it through some other activation's IdxBottom.
			retSlot := t.Calls[actIdx].IdxRetval
			t.popCatchersToBelow(actIdx)
			result := lj.Value1
			t.popActivation()
			heap.Lj = LongjmpState{}
			if t.CallTop == 0 {
				if t == entryThread {
					return URFinished, result, nil
				}
				t.State = StateTerminated
				if t.Resumer != nil {
					heap.CurrentThread = t.Resumer
					t.Resumer.State = StateRunning
				}
				deliverToResumer(heap, t, result, false)
				continue
			}
			value.AssignSlot(&t.Regs[retSlot], result)
			return URRestart, value.Undefined(), nil

		case LjBreak, LjContinue:
			actIdx := t.CallTop - 1
			label := int32(lj.Value1.AsNumber())
			idx := findCatcher(t, actIdx, func(c *Catcher) bool {
				if c.CallstackIndex != actIdx {
					return false
				}
				if c.Type == CatLabel && (c.LabelID == label || label == 0) {
					return true
				}
				return c.Type == CatTryCatchFinally && c.Flags&CatHasFinally != 0 && c.Flags&CatInFinally == 0
			})
			if idx < 0 {
				heap.Lj = LongjmpState{Type: LjThrow, Value1: heap.Objects.NewError("Internal", "no matching label for break/continue")}
				continue
			}
			c := &t.Catches[idx]
			if c.Type == CatTryCatchFinally {
				t.popCatchersTo(idx + 1)
				enterFinally(t, c, lj.Type, lj.Value1, value.Undefined(), label)
				heap.Lj = LongjmpState{}
				return URRestart, value.Undefined(), nil
			}
			act := &t.Calls[actIdx]
			if lj.Type == LjBreak {
				t.popCatchersTo(idx)
				act.PC = c.PCBase
			} else {
				t.popCatchersTo(idx + 1)
				act.PC = c.PCBase + 1
			}
			heap.Lj = LongjmpState{}
			return URRestart, value.Undefined(), nil

		case LjYield:
			if t.Resumer == nil {
				heap.Lj = LongjmpState{Type: LjThrow, Value1: heap.Objects.NewError("Range", "yield from a thread with no resumer")}
				continue
			}
			if t.hasPreventedFrame() {
				heap.Lj = LongjmpState{Type: LjThrow, Value1: heap.Objects.NewError("Range", "cannot yield through a constructor call or a pending finally")}
				continue
			}
			t.State = StateYielded
			resumer := t.Resumer
			resumer.State = StateRunning
			heap.CurrentThread = resumer
			deliverToResumer(heap, t, lj.Value1, false)
			continue

		case LjResume:
			target := lj.ResumeThread
			if target.State != StateYielded && target.State != StateInactive {
				heap.Lj = LongjmpState{Type: LjThrow, Value1: heap.Objects.NewError("Range", "thread is not resumable")}
				continue
			}
			t.State = StateResumed
			target.Resumer = t
			target.State = StateRunning
			heap.CurrentThread = target
			if target.CallTop == 0 {
				// Target has no activation at all: nothing to deliver
				// the value into, so only CurrentThread switches. A
				// thread built by NewCoroutine already has its entry
				// activation (CallTop 1) and takes the path below.
				heap.Lj = LongjmpState{}
				continue
			}
			if lj.ResumeError {
				heap.Lj = LongjmpState{Type: LjThrow, Value1: lj.ResumeValue}
				continue
			}
			deliverCallResult(t, target, lj.ResumeValue)
			heap.Lj = LongjmpState{}
			return URRestart, value.Undefined(), nil

		default:
			heap.Lj = LongjmpState{Type: LjThrow, Value1: heap.Objects.NewError("Internal", "unknown longjmp type")}
			continue
		}
	}
}

// hasPreventedFrame reports whether any live activation on t — the
// yielding one or any frame it's nested under — carries a nonzero
// PreventCount: a constructor call in progress or a finally clause
// with a completion still pending. Yielding through either would
// leave that frame's in-flight state with no way to resume correctly.
func (t *Thread) hasPreventedFrame() bool {
	for i := 0; i < t.CallTop; i++ {
		if t.Calls[i].PreventCount != 0 {
			return true
		}
	}
	return false
}

// deliverToResumer hands a yielded or coroutine-completion value back
// to whichever activation in the resumer issued the resume call,
// recovering that call's destination register by decoding the
// call-setup instruction just behind the resumer's current PC.
func deliverToResumer(heap *Heap, finished *Thread, v value.Value, isErr bool) {
	resumer := finished.Resumer
	if resumer == nil {
		return
	}
	if isErr {
		heap.Lj = LongjmpState{Type: LjThrow, Value1: v}
		return
	}
	deliverCallResult(finished, resumer, v)
	heap.Lj = LongjmpState{}
}

func deliverCallResult(from, to *Thread, v value.Value) {
	act := to.CurrentActivation()
	if act == nil || act.Fn == nil || act.PC == 0 {
		return
	}
	ins := act.Fn.Code[act.PC-1]
	dest := ins.A()
	to.setReg(act, dest, v)
	_ = from
}
