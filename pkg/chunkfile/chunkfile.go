// Package chunkfile describes a compiled function in JSON so cmd/corerun
// can load and run a chunk without a compiler in the loop. This lives
// outside pkg/vm deliberately: §6 draws "no file formats... the core is
// a library" as a hard boundary, so the wire format for a hand-assembled
// or generated chunk is an embedder concern, not the core's.
package chunkfile

import (
	"encoding/json"
	"fmt"

	"corevm/pkg/value"
	"corevm/pkg/vm"
)

// Const is one constant-pool entry, tagged so json.Unmarshal knows
// which Go type to expect in Value.
type Const struct {
	Type  string          `json:"type"` // "number", "string", "bool", "null", "undefined"
	Value json.RawMessage `json:"value,omitempty"`
}

// Instr is one instruction, named rather than numerically encoded.
// Only one of ABC, BC or Rel should be set alongside A/B/C as the
// opcode's operand format calls for: BC is the raw unsigned bc:18
// field (constant/name indices), Rel is a signed displacement that
// gets bias-encoded into bc:18 the way JUMP/LDINT expect (BREAK,
// CONTINUE and LABEL take their label id in BC), and ABC is the raw unsigned abc:26 field.
type Instr struct {
	Op  string `json:"op"`
	A   uint32 `json:"a,omitempty"`
	B   uint32 `json:"b,omitempty"`
	C   uint32 `json:"c,omitempty"`
	BC  *uint32 `json:"bc,omitempty"`
	Rel *int32  `json:"rel,omitempty"`
	ABC *uint32 `json:"abc,omitempty"`
}

// Chunk is the on-disk shape of a CFun, recursively: InnerFuncs holds
// the function templates OpCLOSURE indexes into.
type Chunk struct {
	Name       string  `json:"name"`
	NRegs      int     `json:"nregs"`
	Strict     bool    `json:"strict,omitempty"`
	ParamCount int     `json:"paramCount,omitempty"`
	Constants  []Const `json:"constants,omitempty"`
	Code       []Instr `json:"code"`
	Lines      []int32 `json:"lines,omitempty"`
	InnerFuncs []Chunk `json:"innerFuncs,omitempty"`
}

// Decode parses JSON chunk description into *vm.CFun.
func Decode(data []byte) (*vm.CFun, error) {
	var c Chunk
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("chunkfile: %w", err)
	}
	return build(&c)
}

func build(c *Chunk) (*vm.CFun, error) {
	fn := &vm.CFun{
		Name:       c.Name,
		NRegs:      c.NRegs,
		Strict:     c.Strict,
		ParamCount: c.ParamCount,
		Lines:      c.Lines,
	}

	for _, cst := range c.Constants {
		v, err := buildConst(cst)
		if err != nil {
			return nil, err
		}
		fn.Constants = append(fn.Constants, v)
	}

	for _, inner := range c.InnerFuncs {
		innerFn, err := build(&inner)
		if err != nil {
			return nil, err
		}
		fn.InnerFuncs = append(fn.InnerFuncs, innerFn)
	}

	for i, ins := range c.Code {
		op, ok := vm.LookupOp(ins.Op)
		if !ok {
			return nil, fmt.Errorf("chunkfile: %s: unknown opcode %q at index %d", c.Name, ins.Op, i)
		}
		switch {
		case ins.ABC != nil:
			fn.Code = append(fn.Code, vm.MakeAbc(op, *ins.ABC))
		case ins.Rel != nil:
			fn.Code = append(fn.Code, vm.MakeABbcSigned(op, ins.A, *ins.Rel))
		case ins.BC != nil:
			fn.Code = append(fn.Code, vm.MakeABbc(op, ins.A, *ins.BC))
		default:
			fn.Code = append(fn.Code, vm.MakeABC(op, ins.A, ins.B, ins.C))
		}
	}
	return fn, nil
}

func buildConst(c Const) (value.Value, error) {
	switch c.Type {
	case "number":
		var f float64
		if err := json.Unmarshal(c.Value, &f); err != nil {
			return value.Undefined(), err
		}
		return value.Number(f), nil
	case "string":
		var s string
		if err := json.Unmarshal(c.Value, &s); err != nil {
			return value.Undefined(), err
		}
		return value.Str(s), nil
	case "bool":
		var b bool
		if err := json.Unmarshal(c.Value, &b); err != nil {
			return value.Undefined(), err
		}
		return value.Boolean(b), nil
	case "null":
		return value.Null(), nil
	case "undefined", "":
		return value.Undefined(), nil
	default:
		return value.Undefined(), fmt.Errorf("chunkfile: unknown constant type %q", c.Type)
	}
}
