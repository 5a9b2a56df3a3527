package vm

import (
	"fmt"

	"corevm/pkg/errors"
	"corevm/pkg/value"
)

// ScriptError wraps an arbitrary thrown value so Go code outside the
// executor (an ObjectOps/EnvOps implementation building an error to
// hand back to the dispatcher, or an embedder inspecting Execute's
// returned error) can use the normal Go error interface without
// losing the original value — a script can `throw 42` just as validly
// as `throw new Error(...)`.
type ScriptError struct {
	Value    value.Value
	Position errors.Position
}

func NewScriptError(v value.Value) *ScriptError { return &ScriptError{Value: v} }

func (e *ScriptError) Error() string        { return fmt.Sprintf("uncaught exception: %s", e.Value.String()) }
func (e *ScriptError) Pos() errors.Position { return e.Position }
func (e *ScriptError) Kind() string         { return "Script" }
func (e *ScriptError) Message() string      { return e.Value.String() }
func (e *ScriptError) Unwrap() error        { return nil }
