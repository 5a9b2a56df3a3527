package value

import "math"

// Add implements the '+' contract from §4.1, mirroring the original
// executor's fast/slow split (see duk__vm_arith_add in
// original_source/): numbers add directly with NaN normalization;
// otherwise both operands go through ToPrimitive(NONE) and then either
// string concatenation (if either side is string-or-buffer) or numeric
// addition.
func Add(x, y Value, h Host) (Value, error) {
	if x.tag == TagNumber && y.tag == TagNumber {
		return Number(x.AsNumber() + y.AsNumber()), nil
	}

	px, err := ToPrimitive(x, "", h)
	if err != nil {
		return Undefined(), err
	}
	py, err := ToPrimitive(y, "", h)
	if err != nil {
		return Undefined(), err
	}

	if isStringlike(px) || isStringlike(py) {
		sx, err := ToString(px, h)
		if err != nil {
			return Undefined(), err
		}
		sy, err := ToString(py, h)
		if err != nil {
			return Undefined(), err
		}
		return Str(sx + sy), nil
	}

	nx, err := ToNumber(px, h)
	if err != nil {
		return Undefined(), err
	}
	ny, err := ToNumber(py, h)
	if err != nil {
		return Undefined(), err
	}
	return Number(nx + ny), nil
}

func isStringlike(v Value) bool {
	return v.tag == TagString || v.tag == TagBuffer
}

// Sub, Mul, Div implement §4.1's ToNumber-both contract.
func Sub(x, y Value, h Host) (Value, error) { return numericBinOp(x, y, h, func(a, b float64) float64 { return a - b }) }
func Mul(x, y Value, h Host) (Value, error) { return numericBinOp(x, y, h, func(a, b float64) float64 { return a * b }) }
func Div(x, y Value, h Host) (Value, error) { return numericBinOp(x, y, h, func(a, b float64) float64 { return a / b }) }

// Mod implements '%' with C fmod semantics per §4.1 and the original's
// duk__compute_mod, not IEEE 754 remainder: -0 % 1 == -0, 1 % 0 == NaN.
func Mod(x, y Value, h Host) (Value, error) {
	return numericBinOp(x, y, h, math.Mod)
}

func numericBinOp(x, y Value, h Host, op func(a, b float64) float64) (Value, error) {
	nx, err := ToNumber(x, h)
	if err != nil {
		return Undefined(), err
	}
	ny, err := ToNumber(y, h)
	if err != nil {
		return Undefined(), err
	}
	return Number(op(nx, ny)), nil
}

// Neg, Pos implement the unary arithmetic operators: ToNumber first.
func Neg(x Value, h Host) (Value, error) {
	n, err := ToNumber(x, h)
	if err != nil {
		return Undefined(), err
	}
	return Number(-n), nil
}

func Pos(x Value, h Host) (Value, error) {
	n, err := ToNumber(x, h)
	if err != nil {
		return Undefined(), err
	}
	return Number(n), nil
}

// LogicalNot implements '!': ToBoolean then complement. Side-effect-free.
func LogicalNot(x Value) Value {
	return Boolean(!ToBoolean(x))
}

// BitwiseNot implements '~': ToInt32 then invert.
func BitwiseNot(x Value, h Host) (Value, error) {
	i, err := ToInt32(x, h)
	if err != nil {
		return Undefined(), err
	}
	return Number(float64(^i)), nil
}

// BitAnd, BitOr, BitXor: ToInt32 both, result expressed as a double
// (the bitwise result of two int32s is always representable exactly,
// so the result is never NaN as §4.1 requires).
func BitAnd(x, y Value, h Host) (Value, error) { return bitBinOp(x, y, h, func(a, b int32) int32 { return a & b }) }
func BitOr(x, y Value, h Host) (Value, error)  { return bitBinOp(x, y, h, func(a, b int32) int32 { return a | b }) }
func BitXor(x, y Value, h Host) (Value, error) { return bitBinOp(x, y, h, func(a, b int32) int32 { return a ^ b }) }

func bitBinOp(x, y Value, h Host, op func(a, b int32) int32) (Value, error) {
	ix, err := ToInt32(x, h)
	if err != nil {
		return Undefined(), err
	}
	iy, err := ToInt32(y, h)
	if err != nil {
		return Undefined(), err
	}
	return Number(float64(op(ix, iy))), nil
}

// ShiftLeft, ShiftRight, ShiftRightUnsigned implement §4.1's shift
// contracts. The shift count is ToUint32(rhs) & 0x1f in every case.
// ShiftLeft's result is re-masked to 32 bits (so e.g. 0xFFFFFFFF << 1
// wraps to a negative int32, not a >32-bit double).
func ShiftLeft(x, y Value, h Host) (Value, error) {
	lx, err := ToInt32(x, h)
	if err != nil {
		return Undefined(), err
	}
	ry, err := ToUint32(y, h)
	if err != nil {
		return Undefined(), err
	}
	shift := ry & 0x1f
	result := int32(uint32(lx) << shift)
	return Number(float64(result)), nil
}

func ShiftRight(x, y Value, h Host) (Value, error) {
	lx, err := ToInt32(x, h)
	if err != nil {
		return Undefined(), err
	}
	ry, err := ToUint32(y, h)
	if err != nil {
		return Undefined(), err
	}
	shift := ry & 0x1f
	return Number(float64(lx >> shift)), nil
}

func ShiftRightUnsigned(x, y Value, h Host) (Value, error) {
	ux, err := ToUint32(x, h)
	if err != nil {
		return Undefined(), err
	}
	ry, err := ToUint32(y, h)
	if err != nil {
		return Undefined(), err
	}
	shift := ry & 0x1f
	return Number(float64(ux >> shift)), nil
}

// AbstractEquals implements ES5 §11.9.3 loose equality.
func AbstractEquals(x, y Value, h Host) (bool, error) {
	if x.tag == y.tag {
		return strictEquals(x, y), nil
	}
	if (x.tag == TagNull && y.tag == TagUndefined) || (x.tag == TagUndefined && y.tag == TagNull) {
		return true, nil
	}
	if x.tag == TagNumber && y.tag == TagString {
		ny, _ := ToNumber(y, h)
		return x.AsNumber() == ny, nil
	}
	if x.tag == TagString && y.tag == TagNumber {
		nx, _ := ToNumber(x, h)
		return nx == y.AsNumber(), nil
	}
	if x.tag == TagBoolean {
		nx, err := ToNumber(x, h)
		if err != nil {
			return false, err
		}
		return AbstractEquals(Number(nx), y, h)
	}
	if y.tag == TagBoolean {
		ny, err := ToNumber(y, h)
		if err != nil {
			return false, err
		}
		return AbstractEquals(x, Number(ny), h)
	}
	if (x.tag == TagNumber || x.tag == TagString) && (y.tag == TagObject || y.tag == TagBuffer) {
		py, err := ToPrimitive(y, "", h)
		if err != nil {
			return false, err
		}
		return AbstractEquals(x, py, h)
	}
	if (x.tag == TagObject || x.tag == TagBuffer) && (y.tag == TagNumber || y.tag == TagString) {
		px, err := ToPrimitive(x, "", h)
		if err != nil {
			return false, err
		}
		return AbstractEquals(px, y, h)
	}
	return false, nil
}

// StrictEquals implements ES5 §11.9.6.
func StrictEquals(x, y Value) bool { return strictEquals(x, y) }

func strictEquals(x, y Value) bool {
	if x.tag != y.tag {
		return false
	}
	switch x.tag {
	case TagUndefined, TagNull:
		return true
	case TagBoolean, TagNumber:
		return x.num == y.num
	case TagString:
		return x.AsString() == y.AsString()
	case TagObject, TagBuffer:
		return x.ref == y.ref
	case TagLightFunc:
		return x.light == y.light
	default:
		return false
	}
}

// RelResult is the three-valued outcome of the Abstract Relational
// Comparison (ES5 §11.8.5): comparisons against NaN are Undefined,
// which is why LT/GE cannot be derived from each other by negation —
// tested explicitly by §8's boundary behaviors.
type RelResult uint8

const (
	RelFalse RelResult = iota
	RelTrue
	RelUndefined
)

// LessThan implements the Abstract Relational Comparison with an
// explicit left-first/right-first evaluation order flag, matching the
// LT/LE/GT/GE opcode family's need to evaluate operands in source
// order regardless of which operand ends up on the left of `<`.
func LessThan(x, y Value, leftFirst bool, h Host) (RelResult, error) {
	var px, py Value
	var err error
	if leftFirst {
		px, err = ToPrimitive(x, "Number", h)
		if err != nil {
			return RelFalse, err
		}
		py, err = ToPrimitive(y, "Number", h)
	} else {
		py, err = ToPrimitive(y, "Number", h)
		if err != nil {
			return RelFalse, err
		}
		px, err = ToPrimitive(x, "Number", h)
	}
	if err != nil {
		return RelFalse, err
	}

	if px.tag == TagString && py.tag == TagString {
		if px.AsString() < py.AsString() {
			return RelTrue, nil
		}
		return RelFalse, nil
	}

	nx, err := ToNumber(px, h)
	if err != nil {
		return RelFalse, err
	}
	ny, err := ToNumber(py, h)
	if err != nil {
		return RelFalse, err
	}
	if math.IsNaN(nx) || math.IsNaN(ny) {
		return RelUndefined, nil
	}
	if nx < ny {
		return RelTrue, nil
	}
	return RelFalse, nil
}
