package runtime

import (
	"fmt"
	"os"

	"corevm/pkg/value"
	"corevm/pkg/vm"
)

// NewStandardHeap wires a complete collaborator set: the map-based
// object system, the environment-record chain rooted at a fresh global
// object, and the native-call dispatcher, then installs the handful of
// host intrinsics (console.log, print, spawn, yield, resume) an embedder expects to already
// exist. This is the reference setup every cmd/corerun invocation and
// every pkg/runtime test builds on, mirroring how the teacher's
// builtins.InitBuiltins wires its global object before any script runs.
func NewStandardHeap() (*vm.Heap, *Env) {
	objects := NewObjects()
	envs := NewEnvOps(objects)
	calls := NewCallOps()

	heap := vm.NewHeap(objects, envs, calls)

	globalObj := objects.NewPlainObject()
	installGlobals(objects, globalObj)

	global := NewGlobalEnv(objects, globalObj)
	return heap, global
}

func installGlobals(objects *Objects, globalObj value.Value) {
	console := objects.NewPlainObject()
	setOwn(console, "log", NewNativeFunction(objects, "log", 0, consoleLog))
	setOwn(globalObj, "console", console)
	setOwn(globalObj, "print", NewNativeFunction(objects, "print", 1, consoleLog))
	setOwn(globalObj, "spawn", NewNativeFunction(objects, "spawn", 1, spawnCoroutine))
	setOwn(globalObj, "yield", NewNativeFunction(objects, "yield", 1, yieldCoroutine))
	setOwn(globalObj, "resume", NewNativeFunction(objects, "resume", 2, resumeCoroutine))
}

// spawnCoroutine implements the global "spawn" intrinsic: wrap fn, plus
// any trailing arguments to deliver on its first resume, as a fresh
// coroutine thread and hand back an opaque handle for "resume" to
// target later.
func spawnCoroutine(t *vm.Thread, this value.Value, args []value.Value) (value.Value, error) {
	if len(args) == 0 {
		return value.Undefined(), newErr(t, "Type", "spawn requires a function argument")
	}
	closure, ok := vm.AsClosure(args[0])
	if !ok {
		return value.Undefined(), newErr(t, "Type", "spawn argument is not a function")
	}
	co := t.Heap.NewCoroutine(closure, args[1:])
	return vm.CoroutineHandleValue(vm.NewCoroutineHandle(co)), nil
}

// yieldCoroutine implements the global "yield" intrinsic: suspend the
// calling thread, handing v back to whatever thread resumed it. This
// call's own return value is never observed — prepareCall discards it
// once it sees the armed transfer — the value yield "returns" to
// script is whatever the matching resume call later passes in.
func yieldCoroutine(t *vm.Thread, this value.Value, args []value.Value) (value.Value, error) {
	v := value.Undefined()
	if len(args) > 0 {
		v = args[0]
	}
	t.Heap.Yield(v)
	return value.Undefined(), nil
}

// resumeCoroutine implements the global "resume" intrinsic: deliver v
// to the coroutine behind handle and switch execution to it until it
// yields, returns, or throws.
func resumeCoroutine(t *vm.Thread, this value.Value, args []value.Value) (value.Value, error) {
	if len(args) == 0 {
		return value.Undefined(), newErr(t, "Type", "resume requires a coroutine handle argument")
	}
	handle, ok := vm.AsCoroutineHandle(args[0])
	if !ok {
		return value.Undefined(), newErr(t, "Type", "resume argument is not a coroutine")
	}
	v := value.Undefined()
	if len(args) > 1 {
		v = args[1]
	}
	t.Heap.Resume(handle.Thread, v, false)
	return value.Undefined(), nil
}

// setOwn installs a writable, enumerable, configurable own property
// without routing through PutProp, which needs a *vm.Thread for its
// strict-mode and accessor paths that bootstrap-time globals never hit.
func setOwn(obj value.Value, name string, v value.Value) {
	o, ok := asObject(obj)
	if !ok {
		return
	}
	if _, exists := o.props[name]; !exists {
		o.keys = append(o.keys, name)
	}
	o.props[name] = &property{val: v, writable: true, enumerable: true, configurable: true}
}

// consoleLog formats args the way the teacher's console.log does: space
// separated ToString conversions, trailing newline, written to stdout.
func consoleLog(t *vm.Thread, this value.Value, args []value.Value) (value.Value, error) {
	parts := make([]interface{}, len(args))
	for i, a := range args {
		s, err := value.ToString(a, t)
		if err != nil {
			return value.Undefined(), err
		}
		parts[i] = s
	}
	fmt.Fprintln(os.Stdout, parts...)
	return value.Undefined(), nil
}
