package runtime

import (
	"testing"

	"corevm/pkg/value"
	"corevm/pkg/vm"
)

func newTestHeap() (*vm.Heap, *Objects, *Envs) {
	objs := NewObjects()
	envs := NewEnvOps(objs)
	heap := vm.NewHeap(objs, envs, NewCallOps())
	return heap, objs, envs
}

func TestDeclVarThenGetVarInDeclarativeEnv(t *testing.T) {
	heap, _, envs := newTestHeap()
	thread := &vm.Thread{Heap: heap}
	env := envs.NewDeclarativeEnv(nil)

	if err := envs.DeclVar(thread, env, "x", value.Number(1), vm.DeclMutable); err != nil {
		t.Fatalf("DeclVar: %v", err)
	}
	got, ok, err := envs.GetVar(thread, env, "x")
	if err != nil || !ok || got.AsNumber() != 1 {
		t.Errorf("GetVar(x) = %v, %v, %v, want 1, true, nil", got, ok, err)
	}
}

func TestGetVarWalksOuterEnvChain(t *testing.T) {
	heap, _, envs := newTestHeap()
	thread := &vm.Thread{Heap: heap}
	outer := envs.NewDeclarativeEnv(nil)
	envs.DeclVar(thread, outer, "x", value.Number(7), vm.DeclMutable)
	inner := envs.NewDeclarativeEnv(outer)

	got, ok, err := envs.GetVar(thread, inner, "x")
	if err != nil || !ok || got.AsNumber() != 7 {
		t.Errorf("GetVar(x) from inner scope = %v, %v, %v, want 7, true, nil", got, ok, err)
	}
}

func TestPutVarToImmutableBindingFails(t *testing.T) {
	heap, _, envs := newTestHeap()
	thread := &vm.Thread{Heap: heap}
	env := envs.NewDeclarativeEnv(nil)
	envs.DeclVar(thread, env, "x", value.Number(1), 0) // immutable: DeclMutable not set

	if err := envs.PutVar(thread, env, "x", value.Number(2), false); err == nil {
		t.Error("PutVar to an immutable binding should fail")
	}
}

func TestPutVarUnresolvedInStrictModeThrows(t *testing.T) {
	heap, _, envs := newTestHeap()
	thread := &vm.Thread{Heap: heap}
	env := envs.NewDeclarativeEnv(nil)

	if err := envs.PutVar(thread, env, "neverDeclared", value.Number(1), true); err == nil {
		t.Error("PutVar to an unresolved name in strict mode should throw")
	}
}

func TestPutVarUnresolvedNonStrictCreatesGlobal(t *testing.T) {
	heap, objs, envs := newTestHeap()
	thread := &vm.Thread{Heap: heap}
	globalObj := objs.NewPlainObject()
	global := NewGlobalEnv(objs, globalObj)
	inner := envs.NewDeclarativeEnv(global)

	if err := envs.PutVar(thread, inner, "implicit", value.Number(5), false); err != nil {
		t.Fatalf("PutVar: %v", err)
	}
	v, err := objs.GetProp(thread, globalObj, value.Str("implicit"))
	if err != nil || v.AsNumber() != 5 {
		t.Errorf("implicit global landed on globalObj as %v, %v, want 5, nil", v, err)
	}
}

func TestResolveCalleeThroughWithBindingCarriesThis(t *testing.T) {
	heap, objs, envs := newTestHeap()
	thread := &vm.Thread{Heap: heap}
	withObj := objs.NewPlainObject()
	fn := NewNativeFunction(objs, "greet", 0, func(t *vm.Thread, this value.Value, args []value.Value) (value.Value, error) {
		return value.Undefined(), nil
	})
	objs.PutProp(thread, withObj, value.Str("greet"), fn, false)
	env := envs.NewObjectEnv(nil, withObj)

	callee, this, err := envs.ResolveCallee(thread, env, "greet")
	if err != nil {
		t.Fatalf("ResolveCallee: %v", err)
	}
	if !value.StrictEquals(this, withObj) {
		t.Errorf("ResolveCallee this = %v, want the with-object", this)
	}
	if callee.IsUndefined() {
		t.Error("ResolveCallee should have found greet on the with-object")
	}
}

func TestBindCatchVarShadowsOuterBinding(t *testing.T) {
	heap, _, envs := newTestHeap()
	thread := &vm.Thread{Heap: heap}
	outer := envs.NewDeclarativeEnv(nil)
	envs.DeclVar(thread, outer, "e", value.Number(1), vm.DeclMutable)

	caught := envs.BindCatchVar(outer, "e", value.Str("boom"))
	got, ok, err := envs.GetVar(thread, caught, "e")
	if err != nil || !ok || got.AsString() != "boom" {
		t.Errorf("GetVar(e) in catch scope = %v, %v, %v, want boom, true, nil", got, ok, err)
	}

	outerVal, _, _ := envs.GetVar(thread, outer, "e")
	if outerVal.AsNumber() != 1 {
		t.Errorf("outer binding e = %v, want unaffected value 1", outerVal)
	}
}

func TestDelVarRespectsDeletableFlag(t *testing.T) {
	heap, _, envs := newTestHeap()
	thread := &vm.Thread{Heap: heap}
	env := envs.NewDeclarativeEnv(nil)
	envs.DeclVar(thread, env, "permanent", value.Number(1), vm.DeclMutable)
	envs.DeclVar(thread, env, "temp", value.Number(2), vm.DeclMutable|vm.DeclDeletable)

	ok, err := envs.DelVar(thread, env, "permanent")
	if err != nil || ok {
		t.Errorf("DelVar(permanent) = %v, %v, want false, nil", ok, err)
	}
	ok, err = envs.DelVar(thread, env, "temp")
	if err != nil || !ok {
		t.Errorf("DelVar(temp) = %v, %v, want true, nil", ok, err)
	}
	if _, found, _ := envs.GetVar(thread, env, "temp"); found {
		t.Error("temp binding should be gone after DelVar")
	}
}
