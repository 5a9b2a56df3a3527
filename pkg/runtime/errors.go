package runtime

import "corevm/pkg/vm"

// newErr builds a Go error wrapping a freshly constructed script error
// object, the shape every EnvOps/ObjectOps method needs when it has to
// report a failure back through an error return instead of arming a
// throw on the heap directly.
func newErr(t *vm.Thread, kind, msg string) error {
	return vm.NewScriptError(t.Heap.Objects.NewError(kind, msg))
}
