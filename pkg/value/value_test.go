package value

import (
	"math"
	"testing"
)

// nullHost is a Host that never needs to reenter; used for tests that
// only exercise primitive operands.
type nullHost struct{}

func (nullHost) GetProp(obj Value, key string) (Value, error) { return Undefined(), nil }
func (nullHost) Call(fn Value, this Value, args []Value) (Value, error) { return Undefined(), nil }
func (nullHost) IsCallable(fn Value) bool                               { return false }

func TestToInt32Idempotent(t *testing.T) {
	cases := []float64{0, 1, -1, 2147483647, 2147483648, 4294967295, 4294967296, -4294967296.5, math.NaN(), math.Inf(1)}
	for _, c := range cases {
		once := Int32FromFloat(c)
		twice := Int32FromFloat(float64(once))
		if once != twice {
			t.Errorf("ToInt32 not idempotent for %v: once=%d twice=%d", c, once, twice)
		}
	}
}

func TestToUint32Idempotent(t *testing.T) {
	cases := []float64{0, 1, -1, 4294967295, 4294967296, -1.5}
	for _, c := range cases {
		once := Uint32FromFloat(c)
		twice := Uint32FromFloat(float64(once))
		if once != twice {
			t.Errorf("ToUint32 not idempotent for %v: once=%d twice=%d", c, once, twice)
		}
	}
}

func TestShiftLeftBoundary(t *testing.T) {
	h := nullHost{}
	v, err := ShiftLeft(Number(1), Number(31), h)
	if err != nil {
		t.Fatal(err)
	}
	if v.AsNumber() != -2147483648 {
		t.Errorf("1 << 31 = %v, want -2147483648", v.AsNumber())
	}

	v, err = ShiftLeft(Number(4294967295), Number(1), h)
	if err != nil {
		t.Fatal(err)
	}
	if v.AsNumber() != -2 {
		t.Errorf("4294967295 << 1 = %v, want -2", v.AsNumber())
	}
}

func TestModBoundary(t *testing.T) {
	h := nullHost{}
	v, _ := Mod(Number(math.Copysign(0, -1)), Number(1), h)
	if !(v.AsNumber() == 0 && math.Signbit(v.AsNumber())) {
		t.Errorf("-0 %% 1 = %v, want -0", v.AsNumber())
	}

	v, _ = Mod(Number(1), Number(0), h)
	if !math.IsNaN(v.AsNumber()) {
		t.Errorf("1 %% 0 = %v, want NaN", v.AsNumber())
	}
}

func TestRelationalNaN(t *testing.T) {
	h := nullHost{}
	nan := Number(math.NaN())
	one := Number(1)

	if r, _ := LessThan(nan, one, true, h); r != RelUndefined {
		t.Errorf("NaN < 1 should be Undefined, got %v", r)
	}
	if r, _ := LessThan(one, nan, true, h); r != RelUndefined {
		t.Errorf("1 < NaN should be Undefined, got %v", r)
	}
	// GE is "not (x < y)", but both directions against NaN must
	// independently read as false; a naive negation of LessThan would
	// turn RelUndefined into "true".
	ge := func(x, y Value) bool {
		r, _ := LessThan(x, y, true, h)
		return r == RelFalse // RelUndefined must NOT satisfy >=
	}
	if ge(nan, one) {
		t.Errorf("NaN >= 1 should be false")
	}
	if ge(one, nan) {
		t.Errorf("1 >= NaN should be false")
	}
}

func TestAddStringNumberConcat(t *testing.T) {
	h := nullHost{}
	v, err := Add(Str("x="), Number(3), h)
	if err != nil {
		t.Fatal(err)
	}
	if v.AsString() != "x=3" {
		t.Errorf("got %q, want %q", v.AsString(), "x=3")
	}
}

func TestAddNumberFastPath(t *testing.T) {
	h := nullHost{}
	v, err := Add(Number(2), Number(3), h)
	if err != nil {
		t.Fatal(err)
	}
	if v.AsNumber() != 5 {
		t.Errorf("got %v, want 5", v.AsNumber())
	}
}

func TestStrictVsAbstractEquality(t *testing.T) {
	h := nullHost{}
	if StrictEquals(Number(1), Str("1")) {
		t.Error("1 === '1' should be false")
	}
	if eq, _ := AbstractEquals(Number(1), Str("1"), h); !eq {
		t.Error("1 == '1' should be true")
	}
	if eq, _ := AbstractEquals(Null(), Undefined(), h); !eq {
		t.Error("null == undefined should be true")
	}
	if StrictEquals(Null(), Undefined()) {
		t.Error("null === undefined should be false")
	}
}

func TestNaNNormalized(t *testing.T) {
	v := Number(math.Float64frombits(0x7FF0000000000002))
	if !math.IsNaN(v.AsNumber()) {
		t.Error("expected NaN payload to remain NaN")
	}
	if math.Float64bits(v.AsNumber()) != math.Float64bits(math.NaN()) {
		t.Errorf("NaN payload not normalized: %#x", math.Float64bits(v.AsNumber()))
	}
}

func TestIsFalsey(t *testing.T) {
	cases := []struct {
		v    Value
		want bool
	}{
		{Undefined(), false},
		{Null(), false},
		{Boolean(false), false},
		{Boolean(true), true},
		{Number(0), false},
		{Number(math.NaN()), false},
		{Number(1), true},
		{Str(""), false},
		{Str("a"), true},
	}
	for _, c := range cases {
		if got := ToBoolean(c.v); got != c.want {
			t.Errorf("ToBoolean(%v) = %v, want %v", c.v, got, c.want)
		}
	}
}
