package runtime

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/dlclark/regexp2"
	"golang.org/x/text/unicode/norm"

	"corevm/pkg/value"
	"corevm/pkg/vm"
)

// property is one slot of a PlainObject: either a data value or an
// accessor pair, plus the ES5 attribute trio.
type property struct {
	val          value.Value
	getter       value.Value
	setter       value.Value
	isAccessor   bool
	writable     bool
	enumerable   bool
	configurable bool
}

// PlainObject is the reference object representation: a prototype link
// plus an ordered map of string-keyed properties. The original
// executor backs objects with a shape-transition table for constant-
// time lookups under a JIT; nothing here is performance critical in
// the same way, so a plain map keeps the reference collaborator small
// and easy to read against.
type PlainObject struct {
	prototype  value.Value
	props      map[string]*property
	keys       []string // insertion order, for enumeration and for-in
	class      string   // TypeOf/toString tag: "Object", "Array", "Error", "RegExp", "Function"
	extensible bool
	refcount   int32

	// arrayLength is only meaningful when class == "Array".
	arrayLength uint32

	// regexp, if non-nil, backs a RegExp-classed object.
	regexp *regexpData

	// errKind/errMsg stash the fields NewError populated, read back by
	// the property accessors below so `.name`/`.message` work without a
	// generic property being installed for them.
	errKind string
	errMsg  string

	// nativeCtor, when non-nil, makes this a "Function"-classed callable
	// that also carries its own properties (Array, Object, RegExp and
	// the rest of the global constructors), something a bare
	// value.LightFunc can't do since it has no property storage.
	nativeCtor NativeFunc
}

// NativeFunc is the signature every builtin and host intrinsic
// implements when it needs its own static properties; plain functions
// with no properties of their own are better represented as a
// value.LightFunc instead.
type NativeFunc func(t *vm.Thread, this value.Value, args []value.Value) (value.Value, error)

// NewNativeFunction wraps fn as a callable "Function"-classed object,
// installs name/length the way every builtin constructor exposes them,
// and returns it ready to hang off the global object or a prototype.
func NewNativeFunction(objs *Objects, name string, length int, fn NativeFunc) value.Value {
	o := newPlainObject("Function")
	if proto, ok := objs.protos["Function"]; ok {
		o.prototype = proto
	}
	o.nativeCtor = fn
	o.props["name"] = &property{val: value.Str(name), configurable: true}
	o.props["length"] = &property{val: value.Number(float64(length)), configurable: true}
	o.keys = append(o.keys, "name", "length")
	return value.Obj(o)
}

// SetPrototype registers the well-known prototype object for class,
// used by the global bootstrap to wire Object.prototype, Array.prototype
// and friends before any instances get created.
func (objs *Objects) SetPrototype(class string, proto value.Value) {
	objs.protos[class] = proto
}

type regexpData struct {
	pattern string
	flags   string
	re      *regexp2.Regexp
}

func (o *PlainObject) IncRef() { o.refcount++ }
func (o *PlainObject) DecRef() bool {
	o.refcount--
	return o.refcount <= 0
}

func newPlainObject(class string) *PlainObject {
	return &PlainObject{
		props:      make(map[string]*property),
		class:      class,
		extensible: true,
		refcount:   1,
		prototype:  value.Null(),
	}
}

func asObject(v value.Value) (*PlainObject, bool) {
	if !v.IsObject() {
		return nil, false
	}
	o, ok := v.AsRef().(*PlainObject)
	return o, ok
}

// Objects is the reference ObjectOps implementation: a map-based
// property model, array-index fast paths over the same map, and
// RegExp objects backed by regexp2's ECMAScript-compatible engine.
type Objects struct {
	protos map[string]value.Value // well-known prototypes, keyed by class tag
}

func NewObjects() *Objects {
	return &Objects{protos: make(map[string]value.Value)}
}

// propertyKey normalizes a Value used as a property key the way the
// original string table does: numbers format through the standard
// numeric-to-string algorithm, everything else goes through NFC so
// that visually identical keys typed with different Unicode
// normalization forms collide the way script authors expect.
func propertyKey(key value.Value) string {
	if key.IsString() {
		return norm.NFC.String(key.AsString())
	}
	return key.String()
}

func (objs *Objects) GetProp(t *vm.Thread, obj, key value.Value) (value.Value, error) {
	o, ok := asObject(obj)
	if !ok {
		return value.Undefined(), nil
	}
	name := propertyKey(key)
	if o.class == "Array" && name == "length" {
		return value.Number(float64(o.arrayLength)), nil
	}
	if o.class == "Error" {
		switch name {
		case "name":
			return value.Str(o.errKind), nil
		case "message":
			return value.Str(o.errMsg), nil
		}
	}
	for cur := o; cur != nil; {
		if p, found := cur.props[name]; found {
			if p.isAccessor {
				if p.getter.IsUndefined() {
					return value.Undefined(), nil
				}
				return t.Heap.Calls.HandleCall(t, p.getter, obj, nil, 0)
			}
			return p.val, nil
		}
		next, ok := asObject(cur.prototype)
		if !ok {
			break
		}
		cur = next
	}
	return value.Undefined(), nil
}

func (objs *Objects) PutProp(t *vm.Thread, obj, key, val value.Value, strict bool) error {
	o, ok := asObject(obj)
	if !ok {
		if strict {
			return newErr(t, "TypeError", "cannot set property on non-object")
		}
		return nil
	}
	name := propertyKey(key)
	if o.class == "Array" && name == "length" {
		n, err := value.ToUint32(val, t)
		if err != nil {
			return err
		}
		return objs.SetLength(t, obj, value.Number(float64(n)))
	}
	// Walk the prototype chain first: an inherited accessor must run its
	// setter rather than shadow itself with an own data property.
	for cur := o; cur != nil; {
		if p, found := cur.props[name]; found && p.isAccessor {
			if p.setter.IsUndefined() {
				return nil
			}
			_, err := t.Heap.Calls.HandleCall(t, p.setter, obj, []value.Value{val}, 0)
			return err
		}
		if _, found := cur.props[name]; found && cur != o {
			break
		}
		next, ok := asObject(cur.prototype)
		if !ok {
			break
		}
		cur = next
	}
	if p, found := o.props[name]; found {
		if !p.writable {
			if strict {
				return newErr(t, "TypeError", "cannot assign to read only property '"+name+"'")
			}
			return nil
		}
		p.val = val
		if o.class == "Array" {
			bumpArrayLength(o, name)
		}
		return nil
	}
	if !o.extensible {
		if strict {
			return newErr(t, "TypeError", "cannot add property '"+name+"', object is not extensible")
		}
		return nil
	}
	o.props[name] = &property{val: val, writable: true, enumerable: true, configurable: true}
	o.keys = append(o.keys, name)
	if o.class == "Array" {
		bumpArrayLength(o, name)
	}
	return nil
}

func bumpArrayLength(o *PlainObject, name string) {
	idx, err := strconv.ParseUint(name, 10, 32)
	if err != nil {
		return
	}
	if uint32(idx)+1 > o.arrayLength {
		o.arrayLength = uint32(idx) + 1
	}
}

func (objs *Objects) DelProp(t *vm.Thread, obj, key value.Value, strict bool) (bool, error) {
	o, ok := asObject(obj)
	if !ok {
		return true, nil
	}
	name := propertyKey(key)
	p, found := o.props[name]
	if !found {
		return true, nil
	}
	if !p.configurable {
		if strict {
			return false, newErr(t, "TypeError", "cannot delete property '"+name+"'")
		}
		return false, nil
	}
	delete(o.props, name)
	for i, k := range o.keys {
		if k == name {
			o.keys = append(o.keys[:i], o.keys[i+1:]...)
			break
		}
	}
	return true, nil
}

func (objs *Objects) HasProp(t *vm.Thread, obj, key value.Value) (bool, error) {
	o, ok := asObject(obj)
	if !ok {
		return false, nil
	}
	name := propertyKey(key)
	if o.class == "Array" && name == "length" {
		return true, nil
	}
	for cur := o; cur != nil; {
		if _, found := cur.props[name]; found {
			return true, nil
		}
		next, ok := asObject(cur.prototype)
		if !ok {
			break
		}
		cur = next
	}
	return false, nil
}

func (objs *Objects) InstanceOf(t *vm.Thread, obj, ctor value.Value) (bool, error) {
	target, ok := asObject(obj)
	if !ok {
		return false, nil
	}
	protoVal, err := objs.GetProp(t, ctor, value.Str("prototype"))
	if err != nil {
		return false, err
	}
	proto, ok := asObject(protoVal)
	if !ok {
		return false, nil
	}
	for cur, ok := asObject(target.prototype); ok; cur, ok = asObject(cur.prototype) {
		if cur == proto {
			return true, nil
		}
	}
	return false, nil
}

func (objs *Objects) SetLength(t *vm.Thread, arr value.Value, length value.Value) error {
	o, ok := asObject(arr)
	if !ok {
		return nil
	}
	n, err := value.ToUint32(length, t)
	if err != nil {
		return err
	}
	if n < o.arrayLength {
		for i := n; i < o.arrayLength; i++ {
			name := strconv.FormatUint(uint64(i), 10)
			delete(o.props, name)
		}
		filtered := o.keys[:0:0]
		for _, k := range o.keys {
			if idx, err := strconv.ParseUint(k, 10, 32); err == nil && uint32(idx) >= n {
				continue
			}
			filtered = append(filtered, k)
		}
		o.keys = filtered
	}
	o.arrayLength = n
	return nil
}

// objectEnumerator implements vm.Enumerator (for arrays and plain
// objects alike) over a
// snapshot of keys taken at INITENUM time, matching ES5's requirement
// that for-in iterate a fixed key set even if the loop body adds or
// removes properties mid-iteration.
type objectEnumerator struct {
	keys []string
	pos  int
}

func (e *objectEnumerator) Next() (value.Value, bool) {
	if e.pos >= len(e.keys) {
		return value.Undefined(), false
	}
	k := e.keys[e.pos]
	e.pos++
	return value.Str(k), true
}

func (objs *Objects) Enumerate(t *vm.Thread, obj value.Value, flags vm.EnumFlags) (vm.Enumerator, error) {
	o, ok := asObject(obj)
	if !ok {
		return &objectEnumerator{}, nil
	}
	seen := make(map[string]bool)
	var keys []string
	for cur := o; cur != nil; {
		for _, k := range ownKeysSorted(cur) {
			if seen[k] {
				continue
			}
			seen[k] = true
			p := cur.props[k]
			if p.enumerable || flags&vm.EnumIncludeNonEnumerable != 0 {
				keys = append(keys, k)
			}
		}
		if flags&vm.EnumOwnOnly != 0 {
			break
		}
		next, ok := asObject(cur.prototype)
		if !ok {
			break
		}
		cur = next
	}
	return &objectEnumerator{keys: keys}, nil
}

func (objs *Objects) NewPlainObject() value.Value {
	o := newPlainObject("Object")
	if proto, ok := objs.protos["Object"]; ok {
		o.prototype = proto
	}
	return value.Obj(o)
}

func (objs *Objects) NewArray(elems []value.Value) value.Value {
	o := newPlainObject("Array")
	if proto, ok := objs.protos["Array"]; ok {
		o.prototype = proto
	}
	for i, v := range elems {
		name := strconv.Itoa(i)
		o.props[name] = &property{val: v, writable: true, enumerable: true, configurable: true}
		o.keys = append(o.keys, name)
	}
	o.arrayLength = uint32(len(elems))
	return value.Obj(o)
}

// NewRegExp compiles pattern/flags through regexp2, the backtracking
// engine that actually implements ECMAScript regexp semantics
// (backreferences, lookahead, lazy quantifiers) that Go's RE2-derived
// regexp package cannot express.
func (objs *Objects) NewRegExp(pattern, flags string) (value.Value, error) {
	opts := regexp2.None
	if containsRune(flags, 'i') {
		opts |= regexp2.IgnoreCase
	}
	if containsRune(flags, 'm') {
		opts |= regexp2.Multiline
	}
	if containsRune(flags, 's') {
		opts |= regexp2.Singleline
	}
	re, err := regexp2.Compile(pattern, opts)
	if err != nil {
		return value.Undefined(), vm.NewScriptError(objs.NewError("SyntaxError", "invalid regular expression: "+err.Error()))
	}
	o := newPlainObject("RegExp")
	if proto, ok := objs.protos["RegExp"]; ok {
		o.prototype = proto
	}
	o.regexp = &regexpData{pattern: pattern, flags: flags, re: re}
	o.props["source"] = &property{val: value.Str(pattern)}
	o.props["flags"] = &property{val: value.Str(flags)}
	o.props["global"] = &property{val: value.Boolean(containsRune(flags, 'g'))}
	o.props["lastIndex"] = &property{val: value.Number(0), writable: true}
	o.keys = append(o.keys, "source", "flags", "global", "lastIndex")
	return value.Obj(o), nil
}

func containsRune(s string, r rune) bool {
	for _, c := range s {
		if c == r {
			return true
		}
	}
	return false
}

// RegExpMatch runs a RegExp-classed object's pattern against s starting
// at pos, the primitive every String.prototype.match/replace/split and
// RegExp.prototype.exec native build on.
func RegExpMatch(v value.Value, s string, pos int) (m *regexp2.Match, err error) {
	o, ok := asObject(v)
	if !ok || o.regexp == nil {
		return nil, fmt.Errorf("not a regular expression")
	}
	return o.regexp.re.FindStringMatchStartingAt(s, pos)
}

func (objs *Objects) NewError(kind string, msg string) value.Value {
	o := newPlainObject("Error")
	if proto, ok := objs.protos["Error"]; ok {
		o.prototype = proto
	}
	o.errKind = kind
	o.errMsg = msg
	o.props["stack"] = &property{val: value.Str(kind + ": " + msg)}
	o.keys = append(o.keys, "stack")
	return value.Obj(o)
}

func (objs *Objects) DefineDataProperties(t *vm.Thread, obj value.Value, pairs []vm.KVPair, flags vm.PropFlags) error {
	o, ok := asObject(obj)
	if !ok {
		return newErr(t, "TypeError", "cannot define properties on non-object")
	}
	for _, kv := range pairs {
		name := propertyKey(kv.Key)
		if _, exists := o.props[name]; !exists {
			o.keys = append(o.keys, name)
		}
		o.props[name] = &property{
			val:          kv.Val,
			writable:     flags&vm.PropWritable != 0,
			enumerable:   flags&vm.PropEnumerable != 0,
			configurable: flags&vm.PropConfigurable != 0,
		}
		if o.class == "Array" {
			bumpArrayLength(o, name)
		}
	}
	return nil
}

func (objs *Objects) DefineArrayElements(t *vm.Thread, arr value.Value, start int, elems []value.Value) error {
	o, ok := asObject(arr)
	if !ok {
		return newErr(t, "TypeError", "cannot define elements on non-array")
	}
	if start < 0 {
		start = int(o.arrayLength)
	}
	for i, v := range elems {
		name := strconv.Itoa(start + i)
		if _, exists := o.props[name]; !exists {
			o.keys = append(o.keys, name)
		}
		o.props[name] = &property{val: v, writable: true, enumerable: true, configurable: true}
	}
	bumpArrayLength(o, strconv.Itoa(start+len(elems)-1))
	return nil
}

func (objs *Objects) DefineAccessor(t *vm.Thread, obj, key, getter, setter value.Value) error {
	o, ok := asObject(obj)
	if !ok {
		return newErr(t, "TypeError", "cannot define accessor on non-object")
	}
	name := propertyKey(key)
	p, exists := o.props[name]
	if !exists {
		p = &property{enumerable: true, configurable: true}
		o.props[name] = p
		o.keys = append(o.keys, name)
	}
	p.isAccessor = true
	if !getter.IsUndefined() {
		p.getter = getter
	}
	if !setter.IsUndefined() {
		p.setter = setter
	}
	return nil
}

func (objs *Objects) TypeOf(v value.Value) string {
	switch v.Tag() {
	case value.TagUndefined:
		return "undefined"
	case value.TagNull:
		return "object"
	case value.TagBoolean:
		return "boolean"
	case value.TagNumber:
		return "number"
	case value.TagString:
		return "string"
	case value.TagLightFunc:
		return "function"
	case value.TagObject:
		if _, ok := vm.AsClosure(v); ok {
			return "function"
		}
		if _, ok := vm.AsBoundFunction(v); ok {
			return "function"
		}
		if o, ok := asObject(v); ok && o.class == "Function" {
			return "function"
		}
		return "object"
	default:
		return "object"
	}
}

// ownKeysSorted returns all of o's own keys (enumerable or not; the
// caller filters) with array indices
// first in ascending numeric order followed by the rest in insertion
// order, the ES5 enumeration order every Object.keys/for-in caller
// expects.
func ownKeysSorted(o *PlainObject) []string {
	var idx []int
	var rest []string
	for _, k := range o.keys {
		if n, err := strconv.ParseUint(k, 10, 32); err == nil {
			idx = append(idx, int(n))
			continue
		}
		rest = append(rest, k)
	}
	sort.Ints(idx)
	out := make([]string, 0, len(idx)+len(rest))
	for _, n := range idx {
		out = append(out, strconv.Itoa(n))
	}
	return append(out, rest...)
}
