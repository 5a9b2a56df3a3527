package vm

import "corevm/pkg/value"

// Activation is one call frame: a window into the thread's register
// stack plus the bookkeeping the dispatcher needs to resume the
// caller correctly. Environment records are created lazily — most
// activations never declare a var or close over anything, so
// LexEnv/VarEnv stay nil until EnvOps actually needs them.
type Activation struct {
	Callee value.Value // a Closure value, a native/lightfunc value, or anything CallOps accepts
	Fn     *CFun       // non-nil only when Callee is a Closure; cached to avoid re-deriving it every dispatch iteration
	PC     int

	IdxBottom int // register-stack index of register 0 for this activation
	IdxRetval int // register-stack index, in the CALLER's window, to receive the return value

	LexEnv EnvRef
	VarEnv EnvRef

	This          value.Value
	IsConstructor bool
	Strict        bool

	// PreventCount temporarily disables tail-call frame reuse and
	// coroutine yield while nonzero: set while a finally block's
	// cleanup is pending completion, so a yield mid-finally can't strand
	// the pending throw/return/break/continue it is supposed to resume.
	// Also held nonzero for the whole lifetime of a constructor frame.
	PreventCount int

	// RecursionCounted marks a frame that incremented
	// Heap.CallRecursionDepth when it was pushed, so popActivation
	// knows to balance it back out. Tail-call reuse and host-call
	// frames manage the counter themselves and leave this false.
	RecursionCounted bool
}

// CatcherType distinguishes the three catcher shapes the dispatcher
// pushes: a LABEL catcher (break/continue target bookkeeping only, no
// exception handling), a full try/catch/finally catcher, and a
// with-statement catcher.
type CatcherType uint8

const (
	CatLabel CatcherType = iota
	CatTryCatchFinally
	CatWith // a with-statement's lex_env splice; never a throw/break/continue target
)

// CatcherFlags records which clauses a try/catch/finally catcher has
// and which phase it's currently in.
type CatcherFlags uint16

const (
	CatHasCatch CatcherFlags = 1 << iota
	CatHasFinally
	CatHasBinding // catch(e) binds e; absent means catch with no parameter
	CatInCatch    // currently executing the catch clause
	CatInFinally   // currently executing the finally clause
)

// Catcher is one entry on the catch stack: a loop/switch LABEL
// (break/continue target), a try/catch/finally region, or a with
// region's saved lex_env. The two jump
// targets for LABEL, and the catch/finally entry points for TCF
// catchers, are read directly from instructions at PCBase/PCBase+1 —
// catchers don't store PCs for those, only the base.
type Catcher struct {
	Type  CatcherType
	Flags CatcherFlags

	CallstackIndex int // which activation this catcher belongs to; popped along with it
	PCBase         int
	LabelID        int32

	CatchVarName string
	SavedLexEnv  EnvRef // with-statement / catch-binding restore point

	// The Pending* fields stash a THROW/RETURN/BREAK/CONTINUE that was
	// in flight when a finally clause needed to run, so ENDFIN can
	// resume it once the finally clause completes normally.
	HasPending       bool
	PendingType      LjType
	PendingValue     value.Value
	PendingLabel     int32
}
