package vm

import "corevm/pkg/value"

// EnvRef is an opaque handle to a lexical or variable environment
// record. The core never looks inside one; it only threads the handle
// through EnvOps calls and stores it on activations and catchers. The
// environment-record system itself is an external collaborator.
type EnvRef interface{}

// DeclFlags controls DECLVAR semantics (ES5 §10.5's var/function
// declaration instantiation rules, reified as opcode operand bits
// since the binding-instantiation pass itself is a compiler concern).
type DeclFlags uint8

const (
	DeclMutable DeclFlags = 1 << iota // otherwise immutable once initialized (catch/const-like bindings)
	DeclDeletable                      // configurable:true, as eval-introduced vars require
	DeclFuncDecl                       // overwrite-on-redeclare semantics for function declarations
)

// CallFlags controls CALL/NEW/CALLI/NEWI semantics.
type CallFlags uint8

const (
	CallTail      CallFlags = 1 << iota // callee may reuse the caller's activation slot
	CallConstruct                        // invoked via `new`
	CallDirectEval                       // identifier callee resolved to the eval intrinsic directly
)

// PropFlags mirrors ES5 property attributes for MPUTOBJ-defined
// properties.
type PropFlags uint8

const (
	PropWritable PropFlags = 1 << iota
	PropEnumerable
	PropConfigurable
)

// KVPair is one (key, value) entry bulk-installed by MPUTOBJ.
type KVPair struct {
	Key   value.Value
	Val   value.Value
}

// Enumerator drives INITENUM/NEXTENUM. An embedder's object system
// returns one from ObjectOps.Enumerate; the core just calls Next until
// it reports exhaustion.
type Enumerator interface {
	Next() (key value.Value, ok bool)
}

// EnumFlags selects which properties INITENUM walks.
type EnumFlags uint8

const (
	EnumOwnOnly EnumFlags = 1 << iota
	EnumIncludeNonEnumerable
)

// ObjectOps is the object-system collaborator (§6): property access,
// literal construction, and the handful of object operations the
// dispatcher cannot perform without knowing what an "object" is.
type ObjectOps interface {
	GetProp(t *Thread, obj, key value.Value) (value.Value, error)
	PutProp(t *Thread, obj, key, val value.Value, strict bool) error
	DelProp(t *Thread, obj, key value.Value, strict bool) (bool, error)
	HasProp(t *Thread, obj, key value.Value) (bool, error)
	InstanceOf(t *Thread, obj, ctor value.Value) (bool, error)
	SetLength(t *Thread, arr value.Value, length value.Value) error
	Enumerate(t *Thread, obj value.Value, flags EnumFlags) (Enumerator, error)

	NewPlainObject() value.Value
	NewArray(elems []value.Value) value.Value
	NewRegExp(pattern, flags string) (value.Value, error)
	NewError(kind string, msg string) value.Value

	DefineDataProperties(t *Thread, obj value.Value, pairs []KVPair, flags PropFlags) error
	DefineArrayElements(t *Thread, arr value.Value, start int, elems []value.Value) error
	DefineAccessor(t *Thread, obj, key, getter, setter value.Value) error

	TypeOf(v value.Value) string
}

// EnvOps is the environment-record collaborator (§6): identifier
// resolution, declaration instantiation, and the lexical/variable
// environment chain that activations and with-statement catchers
// reference through EnvRef handles.
type EnvOps interface {
	// GetVar resolves name starting at env. ok reports whether it was
	// found; if not, the caller decides: GETVAR raises a ReferenceError,
	// TYPEOFID treats the result as undefined.
	GetVar(t *Thread, env EnvRef, name string) (val value.Value, ok bool, err error)
	PutVar(t *Thread, env EnvRef, name string, val value.Value, strict bool) error
	DeclVar(t *Thread, env EnvRef, name string, val value.Value, flags DeclFlags) error
	DelVar(t *Thread, env EnvRef, name string) (bool, error)

	// ResolveCallee implements CSVAR's ES5 §10.4.3 identifier
	// resolution: the callee value plus the "this" it carries (the
	// environment's with-object when resolved through a with-binding,
	// otherwise undefined).
	ResolveCallee(t *Thread, env EnvRef, name string) (callee, this value.Value, err error)

	NewDeclarativeEnv(parent EnvRef) EnvRef
	NewObjectEnv(parent EnvRef, target value.Value) EnvRef
	BindCatchVar(env EnvRef, name string, val value.Value) EnvRef
}

// CallOps is the call-dispatch collaborator (§6): invoking a value
// that is not a compiled closure (native functions, bound functions
// the core doesn't already flatten, proxies, anything host-defined).
type CallOps interface {
	HandleCall(t *Thread, callee, this value.Value, args []value.Value, flags CallFlags) (value.Value, error)
	IsCallable(v value.Value) bool
}
