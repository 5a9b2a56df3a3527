// Package runtime is a reference implementation of the executor's
// external collaborators (object system, environment records, call
// dispatch) good enough to run real scripts end to end. None of this
// package is part of the execution core itself — pkg/vm only ever
// talks to it through the ObjectOps/EnvOps/CallOps interfaces.
package runtime

import (
	"corevm/pkg/value"
	"corevm/pkg/vm"
)

// binding is one slot in a declarative environment record.
type binding struct {
	val      value.Value
	mutable  bool
	deletable bool
	initialized bool
}

// Env is a lexical environment record: either declarative (function
// scopes, catch blocks, block scopes) or an object environment record
// splicing an object's properties in as bindings (with-statements, and
// the global object for the outermost scope).
type Env struct {
	outer *Env

	// Declarative record.
	bindings map[string]*binding

	// Object environment record; non-nil only for with-statement and
	// global scopes. When set, GetVar/PutVar/DeclVar/DelVar consult obj's
	// properties through the same ObjectOps the rest of the runtime
	// uses, instead of the bindings map.
	withObject value.Value
	isWith     bool

	objects *Objects
}

func newEnv(outer *Env, objs *Objects) *Env {
	return &Env{outer: outer, bindings: make(map[string]*binding), objects: objs}
}

// NewGlobalEnv creates the outermost environment, backed by globalObj
// as an object environment record the way the original global object
// works: `var x` at top level is really a property of the global
// object, not a declarative binding.
func NewGlobalEnv(objs *Objects, globalObj value.Value) *Env {
	e := newEnv(nil, objs)
	e.withObject = globalObj
	e.isWith = true
	return e
}

// Envs implements vm.EnvOps against the Env chain.
type Envs struct {
	objects *Objects
}

func NewEnvOps(objects *Objects) *Envs { return &Envs{objects: objects} }

func (e *Envs) GetVar(t *vm.Thread, env vm.EnvRef, name string) (value.Value, bool, error) {
	for cur := asEnv(env); cur != nil; cur = cur.outer {
		if cur.isWith {
			has, err := e.objects.HasProp(t, cur.withObject, value.Str(name))
			if err != nil {
				return value.Undefined(), false, err
			}
			if has {
				v, err := e.objects.GetProp(t, cur.withObject, value.Str(name))
				return v, true, err
			}
			continue
		}
		if b, ok := cur.bindings[name]; ok {
			if !b.initialized {
				return value.Undefined(), false, nil
			}
			return b.val, true, nil
		}
	}
	return value.Undefined(), false, nil
}

func (e *Envs) PutVar(t *vm.Thread, env vm.EnvRef, name string, val value.Value, strict bool) error {
	for cur := asEnv(env); cur != nil; cur = cur.outer {
		if cur.isWith {
			has, err := e.objects.HasProp(t, cur.withObject, value.Str(name))
			if err != nil {
				return err
			}
			if has {
				return e.objects.PutProp(t, cur.withObject, value.Str(name), val, strict)
			}
			continue
		}
		if b, ok := cur.bindings[name]; ok {
			if !b.mutable && b.initialized {
				return newErr(t, "TypeError", "assignment to constant variable")
			}
			b.val = val
			b.initialized = true
			return nil
		}
	}
	if strict {
		return newErr(t, "ReferenceError", name+" is not defined")
	}
	// Non-strict implicit global: create the binding at the outermost
	// (global, object-backed) environment.
	root := asEnv(env)
	for root.outer != nil {
		root = root.outer
	}
	return e.objects.PutProp(t, root.withObject, value.Str(name), val, false)
}

func (e *Envs) DeclVar(t *vm.Thread, env vm.EnvRef, name string, val value.Value, flags vm.DeclFlags) error {
	cur := asEnv(env)
	if cur.isWith {
		return e.objects.PutProp(t, cur.withObject, value.Str(name), val, false)
	}
	if b, ok := cur.bindings[name]; ok {
		if flags&vm.DeclFuncDecl != 0 {
			b.val = val
			b.initialized = true
		} else if !b.initialized {
			b.val = val
			b.initialized = true
		}
		return nil
	}
	cur.bindings[name] = &binding{
		val:         val,
		mutable:     flags&vm.DeclMutable != 0,
		deletable:   flags&vm.DeclDeletable != 0,
		initialized: true,
	}
	return nil
}

func (e *Envs) DelVar(t *vm.Thread, env vm.EnvRef, name string) (bool, error) {
	for cur := asEnv(env); cur != nil; cur = cur.outer {
		if cur.isWith {
			return e.objects.DelProp(t, cur.withObject, value.Str(name), false)
		}
		if b, ok := cur.bindings[name]; ok {
			if !b.deletable {
				return false, nil
			}
			delete(cur.bindings, name)
			return true, nil
		}
	}
	return true, nil
}

// ResolveCallee implements CSVAR's identifier-resolution contract:
// the callee value plus the `this` the call should carry, which is
// the with-object when the name resolved through a with-binding and
// undefined otherwise.
func (e *Envs) ResolveCallee(t *vm.Thread, env vm.EnvRef, name string) (value.Value, value.Value, error) {
	for cur := asEnv(env); cur != nil; cur = cur.outer {
		if cur.isWith {
			has, err := e.objects.HasProp(t, cur.withObject, value.Str(name))
			if err != nil {
				return value.Undefined(), value.Undefined(), err
			}
			if has {
				v, err := e.objects.GetProp(t, cur.withObject, value.Str(name))
				return v, cur.withObject, err
			}
			continue
		}
		if b, ok := cur.bindings[name]; ok && b.initialized {
			return b.val, value.Undefined(), nil
		}
	}
	return value.Undefined(), value.Undefined(), newErr(t, "ReferenceError", name+" is not defined")
}

func (e *Envs) NewDeclarativeEnv(parent vm.EnvRef) vm.EnvRef {
	return newEnv(asEnv(parent), e.objects)
}

func (e *Envs) NewObjectEnv(parent vm.EnvRef, target value.Value) vm.EnvRef {
	env := newEnv(asEnv(parent), e.objects)
	env.withObject = target
	env.isWith = true
	return env
}

func (e *Envs) BindCatchVar(env vm.EnvRef, name string, val value.Value) vm.EnvRef {
	child := newEnv(asEnv(env), e.objects)
	child.bindings[name] = &binding{val: val, mutable: true, deletable: true, initialized: true}
	return child
}

func asEnv(r vm.EnvRef) *Env {
	if r == nil {
		return nil
	}
	return r.(*Env)
}
