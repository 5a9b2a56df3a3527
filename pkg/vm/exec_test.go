package vm_test

// Hand-assembled bytecode exercising the executor end to end against
// the reference runtime collaborators, the way the teacher's
// cmd/vm smoke-tested a compiled chunk before there was a test suite
// for the dispatcher itself. Nothing here goes through a compiler —
// every CFun below is built directly with vm.MakeABC / MakeABbc /
// MakeABbcSigned, the same primitives a compiler or chunkfile loader
// would use.

import (
	"testing"

	"corevm/pkg/runtime"
	"corevm/pkg/value"
	"corevm/pkg/vm"
)

func TestExecuteArithmetic(t *testing.T) {
	fn := &vm.CFun{
		Name:  "arith",
		NRegs: 3,
		Code: []vm.Instruction{
			vm.MakeABbcSigned(vm.OpLDINT, 0, 2),    // r0 = 2
			vm.MakeABbcSigned(vm.OpLDINT, 1, 3),    // r1 = 3
			vm.MakeABC(vm.OpADD, 2, 0, 1),          // r2 = r0 + r1 (5)
			vm.MakeABbcSigned(vm.OpLDINT, 0, 4),    // r0 = 4
			vm.MakeABC(vm.OpMUL, 2, 2, 0),          // r2 = r2 * r0 (20)
			vm.MakeABC(vm.OpRETURN, 1, 2, 0),       // return r2
		},
	}

	heap, global := runtime.NewStandardHeap()
	closure := vm.NewClosure(fn, global)
	thread := heap.NewCoroutine(closure, nil)

	result, err := vm.Execute(thread)
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	if result.AsNumber() != 20 {
		t.Errorf("(2+3)*4 = %v, want 20", result.AsNumber())
	}
}

// TestExecuteTryCatchFinally throws inside a try block, lets the catch
// clause bind the thrown value and accumulate into it, then checks the
// finally clause still runs before the function returns — the three
// phases of one TRYCATCH catcher sharing the same PCBase trampoline
// LABEL uses for its break/continue targets.
func TestExecuteTryCatchFinally(t *testing.T) {
	fn := &vm.CFun{
		Name:      "trycatch",
		NRegs:     2,
		Constants: []value.Value{value.Str("e")},
		Code: []vm.Instruction{
			vm.MakeABbcSigned(vm.OpLDINT, 0, 0),        // 0: r0 = 0
			vm.MakeABC(vm.OpTRYCATCH, 7, 0, 0),         // 1: flags=hasCatch|hasFinally|hasBinding, catchVar=Constants[0]
			vm.MakeABbcSigned(vm.OpJUMP, 0, 3),         // 2: -> catch body (pc 6, landed on via PCBase)
			vm.MakeABbcSigned(vm.OpJUMP, 0, 6),         // 3: -> finally body (pc 10, landed on via PCBase+1)
			vm.MakeABbcSigned(vm.OpLDINT, 0, 1),        // 4: try body: r0 = 1
			vm.MakeABC(vm.OpTHROW, 0, 0, 0),            // 5: throw r0
			vm.MakeABbc(vm.OpGETVAR, 0, 0),             // 6: catch body: r0 = e
			vm.MakeABbcSigned(vm.OpLDINT, 1, 100),      // 7: r1 = 100
			vm.MakeABC(vm.OpADD, 0, 0, 1),              // 8: r0 += r1 (101)
			vm.MakeABC(vm.OpENDCATCH, 0, 0, 0),         // 9: falls into finally
			vm.MakeABbcSigned(vm.OpLDINT, 1, 1000),     // 10: finally body: r1 = 1000
			vm.MakeABC(vm.OpADD, 0, 0, 1),              // 11: r0 += r1 (1101)
			vm.MakeABC(vm.OpENDFIN, 0, 0, 0),           // 12: no pending completion, fall through
			vm.MakeABC(vm.OpRETURN, 1, 0, 0),           // 13: return r0
		},
	}

	heap, global := runtime.NewStandardHeap()
	closure := vm.NewClosure(fn, global)
	thread := heap.NewCoroutine(closure, nil)

	result, err := vm.Execute(thread)
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	if result.AsNumber() != 1101 {
		t.Errorf("try/catch/finally result = %v, want 1101", result.AsNumber())
	}
}

// TestExecuteWithStatement splices an object environment onto lex_env,
// assigns through it via PUTVAR, and checks the assignment landed on
// the with-object's own property rather than creating an implicit
// global; LEAVEWITH runs before the final read, which goes through r0
// directly rather than through the environment.
func TestExecuteWithStatement(t *testing.T) {
	fn := &vm.CFun{
		Name:      "withstmt",
		NRegs:     5,
		Constants: []value.Value{value.Str("x")},
		Code: []vm.Instruction{
			vm.MakeABC(vm.OpNEWOBJ, 0, 0, 0),       // r0 = {}
			vm.MakeABbc(vm.OpLDCONST, 1, 0),        // r1 = "x"
			vm.MakeABbcSigned(vm.OpLDINT, 2, 7),    // r2 = 7
			vm.MakeABC(vm.OpPUTPROP, 0, 1, 2),      // r0.x = 7
			vm.MakeABC(vm.OpENTERWITH, 0, 0, 0),    // with (r0) {
			vm.MakeABbcSigned(vm.OpLDINT, 3, 99),   //   r3 = 99
			vm.MakeABbc(vm.OpPUTVAR, 3, 0),         //   x = r3  (resolves through the with-object)
			vm.MakeABC(vm.OpLEAVEWITH, 0, 0, 0),    // }
			vm.MakeABC(vm.OpGETPROP, 4, 0, 1),      // r4 = r0.x
			vm.MakeABC(vm.OpRETURN, 1, 4, 0),       // return r4
		},
	}

	heap, global := runtime.NewStandardHeap()
	closure := vm.NewClosure(fn, global)
	thread := heap.NewCoroutine(closure, nil)

	result, err := vm.Execute(thread)
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	if result.AsNumber() != 99 {
		t.Errorf("with-statement assignment result = %v, want 99", result.AsNumber())
	}
}

// TestExecuteTailCallConstantStack runs a tail-recursive countdown
// 100000 levels deep. The function carries its own closure value as an
// explicit argument (no global lookup involved) so the only thing
// under test is whether CALLTAIL actually reuses the activation:
// a naive recursive Go implementation of this dispatcher would blow
// the host stack at this depth, runLoop's flat loop does not.
func TestExecuteTailCallConstantStack(t *testing.T) {
	fn := &vm.CFun{
		Name:       "countdown",
		NRegs:      8,
		ParamCount: 2, // self, n
		Code: []vm.Instruction{
			vm.MakeABbcSigned(vm.OpLDINT, 2, 0),     // 0: r2 = 0
			vm.MakeABC(vm.OpLE, 3, 1, 2),             // 1: r3 = (n <= 0)
			vm.MakeABC(vm.OpIF, 3, 1, 0),             // 2: skip next unless r3 == true
			vm.MakeABC(vm.OpRETURN, 1, 1, 0),         // 3: base case: return n
			vm.MakeABC(vm.OpCSREG, 4, 0, 0),          // 4: reg4=self, reg5=undefined
			vm.MakeABC(vm.OpLDREG, 6, 0, 0),          // 5: reg6 = self (arg0)
			vm.MakeABbcSigned(vm.OpLDINT, 2, 1),      // 6: r2 = 1
			vm.MakeABC(vm.OpSUB, 7, 1, 2),            // 7: reg7 = n - 1 (arg1)
			vm.MakeABC(vm.OpCALLTAIL, 1, 4, 2),       // 8: tail call countdown(self, n-1)
			vm.MakeABC(vm.OpRETURN, 1, 1, 0),         // 9: unreachable; compiler contract placeholder
		},
	}

	closure := vm.NewClosure(fn, nil)
	self := value.Obj(closure)

	heap, _ := runtime.NewStandardHeap()
	thread := heap.NewCoroutine(closure, []value.Value{self, value.Number(100000)})

	result, err := vm.Execute(thread)
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	if result.AsNumber() != 0 {
		t.Errorf("countdown(100000) = %v, want 0", result.AsNumber())
	}
	if thread.CallTop != 0 {
		t.Errorf("CallTop after deep tail recursion = %d, want 0 (activation reused, never pushed; the final RETURN pops it)", thread.CallTop)
	}
}

// TestExecuteNonTailCallReturnValue runs a two-level non-tail call
// chain — f calls g via plain CALL (not CALLTAIL) and uses its result —
// the case where LjReturn's unwind path must write the callee's result
// into the caller's own register window rather than some other frame's.
func TestExecuteNonTailCallReturnValue(t *testing.T) {
	inner := &vm.CFun{
		Name:  "g",
		NRegs: 1,
		Code: []vm.Instruction{
			vm.MakeABbcSigned(vm.OpLDINT, 0, 5), // 0: r0 = 5
			vm.MakeABC(vm.OpRETURN, 1, 0, 0),    // 1: return r0
		},
	}
	innerClosure := vm.NewClosure(inner, nil)

	outer := &vm.CFun{
		Name:      "f",
		NRegs:     6,
		Constants: []value.Value{value.Obj(innerClosure)},
		Code: []vm.Instruction{
			vm.MakeABbc(vm.OpLDCONST, 0, 0),      // 0: r0 = g (closure constant)
			vm.MakeABC(vm.OpCSREG, 1, 0, 0),      // 1: r1 = g, r2 = undefined (this)
			vm.MakeABC(vm.OpCALL, 3, 1, 0),       // 2: r3 = g() -- non-tail call
			vm.MakeABbcSigned(vm.OpLDINT, 4, 1),  // 3: r4 = 1
			vm.MakeABC(vm.OpADD, 5, 3, 4),        // 4: r5 = r3 + r4 (6)
			vm.MakeABC(vm.OpRETURN, 1, 5, 0),     // 5: return r5
		},
	}

	heap, global := runtime.NewStandardHeap()
	outerClosure := vm.NewClosure(outer, global)
	thread := heap.NewCoroutine(outerClosure, nil)

	result, err := vm.Execute(thread)
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	if result.AsNumber() != 6 {
		t.Errorf("f() = %v, want 6 (g()+1, g() non-tail-called and its result landing in f's own registers)", result.AsNumber())
	}
}

// TestExecuteCoroutineYieldResume spawns a coroutine that yields once
// before returning, and drives it from the main thread with resume,
// checking both the value handed across the yield and the value
// handed back across the resume that lets the coroutine finish — the
// suspension path prepareCall's host-call branch must stop the
// caller's runLoop instead of silently writing a call result over a
// pending transfer.
func TestExecuteCoroutineYieldResume(t *testing.T) {
	heap, global := runtime.NewStandardHeap()

	yieldVar, ok, _ := heap.Envs.GetVar(nil, global, "yield")
	if !ok {
		t.Fatalf("global \"yield\" intrinsic not found")
	}
	resumeVar, ok, _ := heap.Envs.GetVar(nil, global, "resume")
	if !ok {
		t.Fatalf("global \"resume\" intrinsic not found")
	}
	spawnVar, ok, _ := heap.Envs.GetVar(nil, global, "spawn")
	if !ok {
		t.Fatalf("global \"spawn\" intrinsic not found")
	}

	// co(): r0 = yield(42); return r0  -- r0 holds whatever the matching
	// resume call later delivers, once this thread is resumed again.
	co := &vm.CFun{
		Name:      "co",
		NRegs:     4,
		Constants: []value.Value{yieldVar},
		Code: []vm.Instruction{
			vm.MakeABbc(vm.OpLDCONST, 0, 0),      // 0: r0 = yield
			vm.MakeABC(vm.OpCSREG, 1, 0, 0),      // 1: r1 = yield, r2 = undefined
			vm.MakeABbcSigned(vm.OpLDINT, 3, 42), // 2: r3 = 42
			vm.MakeABC(vm.OpCALL, 0, 1, 1),       // 3: r0 = yield(42)  -- suspends here
			vm.MakeABC(vm.OpRETURN, 1, 0, 0),     // 4: return r0
		},
	}
	coClosure := vm.NewClosure(co, global)

	// driver(): handle = spawn(co); a = resume(handle); b = resume(handle, 100); return a*1000+b
	driver := &vm.CFun{
		Name:      "driver",
		NRegs:     10,
		Constants: []value.Value{spawnVar, resumeVar, value.Obj(coClosure)},
		Code: []vm.Instruction{
			vm.MakeABbc(vm.OpLDCONST, 0, 0),      // 0: r0 = spawn
			vm.MakeABC(vm.OpCSREG, 1, 0, 0),      // 1: r1 = spawn, r2 = undefined
			vm.MakeABbc(vm.OpLDCONST, 3, 2),      // 2: r3 = co closure (spawn's arg)
			vm.MakeABC(vm.OpCALL, 9, 1, 1),       // 3: r9 = spawn(co)  -- coroutine handle
			vm.MakeABbc(vm.OpLDCONST, 0, 1),      // 4: r0 = resume
			vm.MakeABC(vm.OpCSREG, 1, 0, 0),      // 5: r1 = resume, r2 = undefined
			vm.MakeABC(vm.OpLDREG, 3, 9, 0),      // 6: r3 = handle (resume's only arg)
			vm.MakeABC(vm.OpCALL, 5, 1, 1),       // 7: r5 = resume(handle)  -- suspends, resumes with co's first yield value
			vm.MakeABbc(vm.OpLDCONST, 0, 1),      // 8: r0 = resume
			vm.MakeABC(vm.OpCSREG, 1, 0, 0),      // 9: r1 = resume, r2 = undefined
			vm.MakeABC(vm.OpLDREG, 3, 9, 0),      // 10: r3 = handle
			vm.MakeABbcSigned(vm.OpLDINT, 4, 100), // 11: r4 = 100 (resume's value arg)
			vm.MakeABC(vm.OpCALL, 6, 1, 2),        // 12: r6 = resume(handle, 100)  -- co returns 100
			vm.MakeABbcSigned(vm.OpLDINT, 7, 1000), // 13: r7 = 1000
			vm.MakeABC(vm.OpMUL, 8, 5, 7),          // 14: r8 = r5 * 1000 (42000)
			vm.MakeABC(vm.OpADD, 8, 8, 6),          // 15: r8 = r8 + r6 (42100)
			vm.MakeABC(vm.OpRETURN, 1, 8, 0),       // 16: return r8
		},
	}
	driverClosure := vm.NewClosure(driver, global)
	thread := heap.NewCoroutine(driverClosure, nil)

	result, err := vm.Execute(thread)
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	if result.AsNumber() != 42100 {
		t.Errorf("driver() = %v, want 42100 (yield value 42, resumed return value 100)", result.AsNumber())
	}
}
