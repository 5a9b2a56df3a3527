package runtime

import (
	"testing"

	"corevm/pkg/value"
	"corevm/pkg/vm"
)

func TestHandleCallDispatchesLightFunc(t *testing.T) {
	objs := NewObjects()
	calls := NewCallOps()
	heap := vm.NewHeap(objs, NewEnvOps(objs), calls)
	thread := &vm.Thread{Heap: heap}

	fn := value.LightFn(&value.LightFunc{
		Name: "double",
		Impl: func(h value.Host, this value.Value, args []value.Value) (value.Value, error) {
			return value.Number(args[0].AsNumber() * 2), nil
		},
	})

	result, err := calls.HandleCall(thread, fn, value.Undefined(), []value.Value{value.Number(21)}, 0)
	if err != nil {
		t.Fatalf("HandleCall: %v", err)
	}
	if result.AsNumber() != 42 {
		t.Errorf("HandleCall(double, 21) = %v, want 42", result.AsNumber())
	}
	if !calls.IsCallable(fn) {
		t.Error("IsCallable(lightfunc) = false, want true")
	}
}

func TestHandleCallDispatchesNativeConstructor(t *testing.T) {
	objs := NewObjects()
	calls := NewCallOps()
	heap := vm.NewHeap(objs, NewEnvOps(objs), calls)
	thread := &vm.Thread{Heap: heap}

	ctor := NewNativeFunction(objs, "Point", 2, func(t *vm.Thread, this value.Value, args []value.Value) (value.Value, error) {
		objs.PutProp(t, this, value.Str("x"), args[0], false)
		return this, nil
	})
	obj := objs.NewPlainObject()

	result, err := calls.HandleCall(thread, ctor, obj, []value.Value{value.Number(3)}, vm.CallConstruct)
	if err != nil {
		t.Fatalf("HandleCall: %v", err)
	}
	x, _ := objs.GetProp(thread, result, value.Str("x"))
	if x.AsNumber() != 3 {
		t.Errorf("constructed object's x = %v, want 3", x.AsNumber())
	}
	if !calls.IsCallable(ctor) {
		t.Error("IsCallable(native constructor) = false, want true")
	}
}

func TestHandleCallOnNonCallableReturnsTypeError(t *testing.T) {
	objs := NewObjects()
	calls := NewCallOps()
	heap := vm.NewHeap(objs, NewEnvOps(objs), calls)
	thread := &vm.Thread{Heap: heap}

	_, err := calls.HandleCall(thread, value.Number(5), value.Undefined(), nil, 0)
	if err == nil {
		t.Error("HandleCall on a number should fail")
	}
	if calls.IsCallable(value.Number(5)) {
		t.Error("IsCallable(5) = true, want false")
	}
}
