// Package value implements the tagged-value kernel described in the
// execution core's data model: a small sum type over number, boolean,
// null, undefined, string, object, buffer and lightfunc, plus the ES5
// coercion and arithmetic contracts that operate on it.
//
// This package is a leaf: it knows nothing about activations, stacks
// or threads. Operations that may re-enter user code (valueOf/toString
// during ToPrimitive, string coercion of an object during '+') do so
// through the Host interface, which pkg/vm's Thread implements. That
// keeps the Value Kernel exactly as independent as §2 describes it.
package value

import (
	"fmt"
	"math"
	"strconv"
)

// Tag identifies which variant of Value is populated.
type Tag uint8

const (
	TagUndefined Tag = iota
	TagNull
	TagBoolean
	TagNumber
	TagString
	TagObject
	TagBuffer
	TagLightFunc
)

func (t Tag) String() string {
	switch t {
	case TagUndefined:
		return "undefined"
	case TagNull:
		return "null"
	case TagBoolean:
		return "boolean"
	case TagNumber:
		return "number"
	case TagString:
		return "string"
	case TagObject:
		return "object"
	case TagBuffer:
		return "buffer"
	case TagLightFunc:
		return "lightfunc"
	default:
		return "unknown"
	}
}

// Ref is the refcount contract every heap-allocated payload (string,
// object, buffer) satisfies. IncRef/DecRef exist so that slot writes
// can follow "save old, overwrite, incref new, decref old" in that
// order even though Go's GC would reclaim memory correctly on its own —
// the ordering, not the counting, is what callers that reenter during
// a decref depend on (see the design note on finalizer reentrance).
type Ref interface {
	IncRef()
	// DecRef drops the strong count and returns true if it reached
	// zero this call (the finalizer, if any, has already run).
	DecRef() bool
}

// stringRef is the core's own ref-counted string payload. Strings are
// in scope for the Value Kernel (§3); the external "string table"
// collaborator is about interning for identity comparisons, not about
// owning the Value representation itself.
type stringRef struct {
	s     string
	count int32
}

func (r *stringRef) IncRef() { r.count++ }
func (r *stringRef) DecRef() bool {
	r.count--
	return r.count <= 0
}

// LightFuncImpl is a native callable with no heap allocation and no
// refcount, mirroring Duktape's "lightfunc": a bare function pointer
// plus flags. Host lets it reenter the executor (e.g. a lightfunc that
// itself invokes a compiled callback argument).
type LightFuncImpl func(h Host, this Value, args []Value) (Value, error)

// LightFunc is the payload of a TagLightFunc value.
type LightFunc struct {
	Impl  LightFuncImpl
	Name  string
	Flags uint16
}

// Value is the tagged union. It is small enough to pass by value, as
// every register slot in the stack manager does.
type Value struct {
	tag   Tag
	num   float64 // number payload; 0/1 for boolean
	ref   Ref     // non-nil for TagString; embedder-owned for TagObject/TagBuffer
	light *LightFunc
}

// Host is the reentry surface the Value Kernel needs from the rest of
// the core. pkg/vm's *Thread implements it.
type Host interface {
	// GetProp fetches a named property, used by ToPrimitive to look up
	// valueOf/toString.
	GetProp(obj Value, key string) (Value, error)
	// Call invokes a callable value with the given this/args.
	Call(fn Value, this Value, args []Value) (Value, error)
	// IsCallable reports whether a value can be passed to Call.
	IsCallable(fn Value) bool
}

// --- Constructors ---

func Undefined() Value { return Value{tag: TagUndefined} }
func Null() Value       { return Value{tag: TagNull} }

func Boolean(b bool) Value {
	v := Value{tag: TagBoolean}
	if b {
		v.num = 1
	}
	return v
}

// Number normalizes NaN payloads to a single canonical bit pattern so
// that NaN-tagging schemes downstream (not used by this Go
// reimplementation, but load-bearing for anything that compares NaN
// bits) stay valid, and so that two different NaN-producing operations
// never accidentally appear distinguishable.
func Number(f float64) Value {
	if math.IsNaN(f) {
		f = math.NaN()
	}
	return Value{tag: TagNumber, num: f}
}

func Str(s string) Value {
	return Value{tag: TagString, ref: &stringRef{s: s, count: 1}}
}

// Obj wraps an embedder-owned object handle. The core treats ref
// opaquely; callers reach the concrete object system through ObjectOps
// (§6), never by inspecting this Value.
func Obj(ref Ref) Value {
	return Value{tag: TagObject, ref: ref}
}

func Buf(ref Ref) Value {
	return Value{tag: TagBuffer, ref: ref}
}

func LightFn(lf *LightFunc) Value {
	return Value{tag: TagLightFunc, light: lf}
}

// --- Predicates ---

func (v Value) Tag() Tag          { return v.tag }
func (v Value) IsUndefined() bool { return v.tag == TagUndefined }
func (v Value) IsNull() bool      { return v.tag == TagNull }
func (v Value) IsNullOrUndefined() bool {
	return v.tag == TagNull || v.tag == TagUndefined
}
func (v Value) IsBoolean() bool  { return v.tag == TagBoolean }
func (v Value) IsNumber() bool   { return v.tag == TagNumber }
func (v Value) IsString() bool   { return v.tag == TagString }
func (v Value) IsObject() bool   { return v.tag == TagObject }
func (v Value) IsBuffer() bool   { return v.tag == TagBuffer }
func (v Value) IsLightFunc() bool { return v.tag == TagLightFunc }

// IsCallable is a cheap syntactic check; the authoritative answer for
// objects comes from the embedder's CallOps/ObjectOps, since only they
// know whether an object is a function.
func (v Value) IsCallable() bool { return v.tag == TagLightFunc }

// --- Accessors ---

func (v Value) AsBoolean() bool { return v.num != 0 }
func (v Value) AsNumber() float64 { return v.num }

func (v Value) AsString() string {
	if sr, ok := v.ref.(*stringRef); ok {
		return sr.s
	}
	return ""
}

func (v Value) AsRef() Ref { return v.ref }

func (v Value) AsLightFunc() *LightFunc { return v.light }

// Is reports reference identity for ref-counted payloads and value
// equality for primitives (same shape as SameValue minus the ±0/NaN
// carve-outs).
func (a Value) Is(b Value) bool {
	if a.tag != b.tag {
		return false
	}
	switch a.tag {
	case TagUndefined, TagNull:
		return true
	case TagBoolean, TagNumber:
		return a.num == b.num
	case TagString:
		return a.AsString() == b.AsString()
	case TagObject, TagBuffer:
		return a.ref == b.ref
	case TagLightFunc:
		return a.light == b.light
	default:
		return false
	}
}

func (v Value) String() string {
	switch v.tag {
	case TagUndefined:
		return "undefined"
	case TagNull:
		return "null"
	case TagBoolean:
		return strconv.FormatBool(v.AsBoolean())
	case TagNumber:
		return formatNumber(v.num)
	case TagString:
		return v.AsString()
	case TagObject:
		return "[object]"
	case TagBuffer:
		return "[buffer]"
	case TagLightFunc:
		name := ""
		if v.light != nil {
			name = v.light.Name
		}
		return fmt.Sprintf("function %s() { [light] }", name)
	default:
		return "<invalid value>"
	}
}

func formatNumber(f float64) string {
	if math.IsNaN(f) {
		return "NaN"
	}
	if math.IsInf(f, 1) {
		return "Infinity"
	}
	if math.IsInf(f, -1) {
		return "-Infinity"
	}
	return strconv.FormatFloat(f, 'g', -1, 64)
}

// --- Slot assignment discipline ---

// AssignSlot implements the required write order from §3: copy old,
// overwrite with new, incref new, decref old — in that order, because
// decref may reenter (a finalizer running user code that reads other
// slots must never observe this slot already clobbered).
func AssignSlot(slot *Value, next Value) {
	old := *slot
	*slot = next
	if next.ref != nil {
		next.ref.IncRef()
	}
	if old.ref != nil {
		old.ref.DecRef()
	}
}
