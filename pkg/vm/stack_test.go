package vm

import (
	"testing"

	"corevm/pkg/value"
)

func TestGrowRegsDoubles(t *testing.T) {
	th := &Thread{Regs: make([]value.Value, 4)}
	th.RegTop = 4
	th.growRegs(5)
	if len(th.Regs) != 8 {
		t.Errorf("growRegs(5) from 4 = %d, want 8", len(th.Regs))
	}
	th.growRegs(3)
	if len(th.Regs) != 8 {
		t.Errorf("growRegs(3) should be a no-op once capacity already covers it, got %d", len(th.Regs))
	}
}

func TestPushPopActivationRestoresRegTop(t *testing.T) {
	th := &Thread{}
	callerFn := &CFun{NRegs: 3}
	th.pushActivation(value.Undefined(), callerFn, 0, 0, 3)

	calleeFn := &CFun{NRegs: 5}
	th.pushActivation(value.Undefined(), calleeFn, th.RegTop, 0, 5)
	if th.RegTop != 8 {
		t.Fatalf("RegTop after pushing callee = %d, want 8", th.RegTop)
	}

	th.popActivation()
	if th.RegTop != 3 {
		t.Errorf("RegTop after popActivation = %d, want caller's window size 3", th.RegTop)
	}
	if th.CallTop != 1 {
		t.Errorf("CallTop after pop = %d, want 1", th.CallTop)
	}
}

func TestSetRegAssignsThroughWindow(t *testing.T) {
	th := &Thread{Regs: make([]value.Value, 4)}
	act := &Activation{IdxBottom: 1}
	th.setReg(act, 2, value.Number(42))
	if th.Regs[3].AsNumber() != 42 {
		t.Errorf("setReg(act, 2, 42) with IdxBottom=1 wrote to wrong slot: got %v", th.Regs[3])
	}
	if th.reg(act, 2).AsNumber() != 42 {
		t.Errorf("reg(act, 2) = %v, want 42", th.reg(act, 2).AsNumber())
	}
}

func TestInstructionEncodingRoundTrip(t *testing.T) {
	ins := MakeABC(OpADD, 7, 200, 300)
	if ins.Op() != OpADD || ins.A() != 7 || ins.B() != 200 || ins.C() != 300 {
		t.Errorf("MakeABC round trip failed: op=%v a=%d b=%d c=%d", ins.Op(), ins.A(), ins.B(), ins.C())
	}

	j := MakeABbcSigned(OpJUMP, 0, -5)
	if j.BCSigned() != -5 {
		t.Errorf("MakeABbcSigned(-5) decoded as %d, want -5", j.BCSigned())
	}

	j2 := MakeABbcSigned(OpJUMP, 0, 5)
	if j2.BCSigned() != 5 {
		t.Errorf("MakeABbcSigned(5) decoded as %d, want 5", j2.BCSigned())
	}

	c := MakeABbc(OpLDCONST, 3, 12345)
	if c.A() != 3 || c.BC() != 12345 {
		t.Errorf("MakeABbc round trip failed: a=%d bc=%d", c.A(), c.BC())
	}
}

func TestLookupOpInverse(t *testing.T) {
	for op := OpLDREG; op < opCodeCount; op++ {
		name := op.String()
		got, ok := LookupOp(name)
		if !ok {
			t.Errorf("LookupOp(%q) not found for op %d", name, op)
			continue
		}
		if got != op {
			t.Errorf("LookupOp(%q) = %d, want %d", name, got, op)
		}
	}
}
