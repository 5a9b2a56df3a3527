package runtime

import (
	"testing"

	"corevm/pkg/value"
	"corevm/pkg/vm"
)

func TestNewStandardHeapInstallsConsoleAndPrint(t *testing.T) {
	heap, global := NewStandardHeap()
	thread := &vm.Thread{Heap: heap}
	envs := heap.Envs

	console, ok, err := envs.GetVar(thread, global, "console")
	if err != nil || !ok || console.IsUndefined() {
		t.Fatalf("GetVar(console) = %v, %v, %v, want a value, true, nil", console, ok, err)
	}

	logFn, err := heap.Objects.GetProp(thread, console, value.Str("log"))
	if err != nil || logFn.IsUndefined() || !heap.Calls.IsCallable(logFn) {
		t.Errorf("console.log = %v, %v, want a callable", logFn, err)
	}

	printFn, ok, err := envs.GetVar(thread, global, "print")
	if err != nil || !ok || printFn.IsUndefined() {
		t.Fatalf("GetVar(print) = %v, %v, %v, want a callable, true, nil", printFn, ok, err)
	}
	if !heap.Calls.IsCallable(printFn) {
		t.Error("print should be callable through CallOps")
	}
}
