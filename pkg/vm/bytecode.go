package vm

import (
	"fmt"
	"strings"

	"corevm/pkg/value"
)

// OpCode is the 6-bit primary opcode field of an instruction word.
// Mnemonics follow the opcode families directly: loads, variable
// access, property access, call setup, literal helpers, arithmetic,
// branches, function control, try/catch/finally, iteration, misc.
type OpCode uint8

const (
	// --- Loads ---
	OpLDREG  OpCode = iota // a=dest, b=src: reg[a] = reg[b]
	OpLDCONST              // a=dest, bc=const index
	OpLDINT                // a=dest, bc=biased signed 18-bit integer literal
	OpLDINTX               // a=dest/accum, bc=high bits merged into reg[a], which must already hold a number literal half
	OpCLOSURE              // a=dest, bc=inner-function-template index
	OpLDTHIS               // a=dest: load the current activation's this-binding
	OpLDUNDEF              // a=dest
	OpLDNULL               // a=dest
	OpLDTRUE               // a=dest
	OpLDFALSE              // a=dest

	// --- Variable access via environment ---
	OpGETVAR  // a=dest, bc=name-const index
	OpPUTVAR  // a=src, bc=name-const index
	OpDECLVAR // a=value reg, b=flags, bc=name-const index
	OpDELVAR  // a=dest(bool), bc=name-const index

	// --- Property access ---
	OpGETPROP // a=dest, b=obj, c=key reg
	OpPUTPROP // a=obj, b=key reg, c=value reg
	OpDELPROP // a=dest(bool), b=obj, c=key reg

	// --- Call setup: place [func, this] at consecutive registers ---
	OpCSREG   // a=base, b=funcReg: base=func, base+1=undefined
	OpCSVAR   // a=base, bc=name-const index: resolves identifier per ES5 §10.4.3
	OpCSPROP  // a=base, b=objReg, c=keyReg: base=obj[key], base+1=obj
	OpCSREGI  // indirect twin of CSREG: b holds the register naming the real func register
	OpCSVARI  // indirect twin of CSVAR: b holds the register naming the name-const index
	OpCSPROPI // indirect twin of CSPROP: c holds the register naming the real key register

	// --- Object/array literal helpers ---
	OpMPUTOBJ  // a=obj, b=firstKeyReg, c=pairCount: bulk-define enumerable/writable/configurable own props
	OpMPUTOBJI // indirect twin: c holds the register naming pairCount
	OpMPUTARR  // a=arr, b=firstValReg, c=count: bulk-append dense elements at current length
	OpNEWOBJ   // a=dest
	OpNEWARR   // a=dest, bc=initial-capacity hint
	OpSETALEN  // a=arr, b=lengthReg
	OpINITSET  // a=obj, b=keyReg, c=setterReg
	OpINITGET  // a=obj, b=keyReg, c=getterReg
	OpREGEXP   // a=dest, bc=pattern-and-flags const index

	// --- Arithmetic / bitwise / logical / compare ---
	OpADD
	OpSUB
	OpMUL
	OpDIV
	OpMOD
	OpBAND
	OpBOR
	OpBXOR
	OpSHL
	OpSHR
	OpUSHR
	OpBNOT // a=dest, b=src
	OpLNOT // a=dest, b=src
	OpEQ
	OpNEQ
	OpSEQ
	OpSNEQ
	OpGT
	OpGE
	OpLT
	OpLE
	OpIN
	OpINSTOF
	OpTYPEOF   // a=dest, b=src
	OpTYPEOFID // a=dest, bc=name-const index: typeof of an identifier, never throws on unresolved

	// --- Branches ---
	OpIF       // a=src, b=matchBit: skip next instruction unless ToBoolean(src)==matchBit
	OpJUMP     // bc=biased signed displacement
	OpBREAK    // bc=label id
	OpCONTINUE // bc=label id

	// --- Function control ---
	OpCALL     // a=dest, b=baseReg (func,this,args...), c=argCount
	OpCALLI    // indirect twin: c names the register holding argCount
	OpCALLTAIL // same as CALL, but the callee may reuse this activation's slot (the compiler emits this only when the CALL is immediately followed by a RETURN of its result)
	OpCALLITAIL // indirect twin of CALLTAIL
	OpNEW    // a=dest, b=baseReg, c=argCount
	OpNEWI   // indirect twin of NEW
	OpRETURN // a=flags (have-return-value), b=src register when set

	// --- Try/catch/finally ---
	OpLABEL    // bc=label id; two jump-slot instructions follow (break target, continue target)
	OpENDLABEL // closes the innermost LABEL catcher
	OpTRYCATCH // a=flags, b=catchVarNameConstIdx (when the has-binding flag bit is set); two jump-slot instructions follow (catch target, finally target), the same trampoline convention LABEL uses for its break/continue targets
	OpENDTRY   // closes the try phase of the innermost try/catch/finally catcher
	OpENDCATCH // closes the catch phase
	OpENDFIN   // closes the finally phase: reads the stashed completion and continues/re-raises/returns
	OpENTERWITH // a=objReg: splices an object environment record for objReg onto lex_env
	OpLEAVEWITH // restores the lex_env saved by the innermost ENTERWITH

	// --- Iteration ---
	OpINITENUM // a=dest(enumerator), b=src: null/undefined yields a sentinel exhausted enumerator
	OpNEXTENUM // a=destKey, b=enumeratorReg: on exhaustion, skips the instruction that follows

	// --- Misc ---
	OpINVLHS  // throws ReferenceError("Invalid left-hand side")
	OpTHROW   // a=src
	OpNOP
	OpINVALID // reserved; decoding this is always an internal error

	opCodeCount
)

var opNames = [...]string{
	"LDREG", "LDCONST", "LDINT", "LDINTX", "CLOSURE", "LDTHIS", "LDUNDEF", "LDNULL", "LDTRUE", "LDFALSE",
	"GETVAR", "PUTVAR", "DECLVAR", "DELVAR",
	"GETPROP", "PUTPROP", "DELPROP",
	"CSREG", "CSVAR", "CSPROP", "CSREGI", "CSVARI", "CSPROPI",
	"MPUTOBJ", "MPUTOBJI", "MPUTARR", "NEWOBJ", "NEWARR", "SETALEN", "INITSET", "INITGET", "REGEXP",
	"ADD", "SUB", "MUL", "DIV", "MOD", "BAND", "BOR", "BXOR", "SHL", "SHR", "USHR", "BNOT", "LNOT",
	"EQ", "NEQ", "SEQ", "SNEQ", "GT", "GE", "LT", "LE", "IN", "INSTOF", "TYPEOF", "TYPEOFID",
	"IF", "JUMP", "BREAK", "CONTINUE",
	"CALL", "CALLI", "CALLTAIL", "CALLITAIL", "NEW", "NEWI", "RETURN",
	"LABEL", "ENDLABEL", "TRYCATCH", "ENDTRY", "ENDCATCH", "ENDFIN", "ENTERWITH", "LEAVEWITH",
	"INITENUM", "NEXTENUM",
	"INVLHS", "THROW", "NOP", "INVALID",
}

// LookupOp resolves an opcode's mnemonic back to its OpCode, the
// inverse of String(), for assemblers and chunk loaders that describe
// instructions by name rather than numeric encoding.
func LookupOp(name string) (OpCode, bool) {
	for i, n := range opNames {
		if n == name {
			return OpCode(i), true
		}
	}
	return 0, false
}

func (op OpCode) String() string {
	if int(op) < len(opNames) {
		return opNames[op]
	}
	return fmt.Sprintf("OpCode(%d)", op)
}

// --- Instruction encoding ---
//
// Every instruction is a 32-bit word. The default field layout is
// op:6, a:8, b:9, c:9. Two variants reuse the b/c or a/b/c fields as a
// single wider operand: bc:18 (an unsigned field with a fixed bias,
// used for constant indices and biased signed displacements) and
// abc:26 (unsigned, used when an opcode needs one very large operand
// and no registers at all).
const (
	opShift = 26
	aShift  = 18
	bShift  = 9
	cShift  = 0

	aMask   = 0xFF
	bMask   = 0x1FF
	cMask   = 0x1FF
	bcMask  = 0x3FFFF
	abcMask = 0x3FFFFFF

	bcBias = 1 << 17 // bc:18 bias, giving a signed range of [-131072, 131071]
)

type Instruction uint32

func MakeABC(op OpCode, a, b, c uint32) Instruction {
	return Instruction(uint32(op)<<opShift | (a&aMask)<<aShift | (b&bMask)<<bShift | (c & cMask))
}

func MakeABbc(op OpCode, a uint32, bc uint32) Instruction {
	return Instruction(uint32(op)<<opShift | (a&aMask)<<aShift | (bc & bcMask))
}

func MakeAbc(op OpCode, abc uint32) Instruction {
	return Instruction(uint32(op)<<opShift | (abc & abcMask))
}

func (ins Instruction) Op() OpCode  { return OpCode(uint32(ins) >> opShift) }
func (ins Instruction) A() uint32   { return (uint32(ins) >> aShift) & aMask }
func (ins Instruction) B() uint32   { return (uint32(ins) >> bShift) & bMask }
func (ins Instruction) C() uint32   { return uint32(ins) & cMask }
func (ins Instruction) BC() uint32  { return uint32(ins) & bcMask }
func (ins Instruction) ABC() uint32 { return uint32(ins) & abcMask }

// BCSigned interprets the bc:18 field as a biased signed integer, used
// for JUMP displacements and LDINT literals.
func (ins Instruction) BCSigned() int32 {
	return int32(ins.BC()) - bcBias
}

func MakeABbcSigned(op OpCode, a uint32, bc int32) Instruction {
	return MakeABbc(op, a, uint32(bc+bcBias))
}

// --- Compiled function ---

// CFun is the compiled-function contract: produced and owned by the
// compiler (an external collaborator, out of scope for this core),
// immutable after compilation, with stable addresses for the
// instruction array and constant pool for the function's entire
// lifetime so the executor may cache raw pointers into them.
type CFun struct {
	Code       []Instruction
	Constants  []value.Value
	InnerFuncs []*CFun
	NRegs      int
	Strict     bool
	Name       string
	ParamCount int
	Lines      []int32 // parallel to Code; 0 means "unknown"
}

// GetLine resolves an instruction index to a source line for
// diagnostics, the way a compiler-maintained line table would.
func (f *CFun) GetLine(pc int) int {
	if f.Lines == nil || pc < 0 || pc >= len(f.Lines) {
		return 0
	}
	return int(f.Lines[pc])
}

// Disassemble renders the function's code for debugging.
func (f *CFun) Disassemble() string {
	var b strings.Builder
	fmt.Fprintf(&b, "== %s (%d regs) ==\n", displayName(f.Name), f.NRegs)
	for i, ins := range f.Code {
		fmt.Fprintf(&b, "%04d  %-10s a=%d b=%d c=%d\n", i, ins.Op(), ins.A(), ins.B(), ins.C())
	}
	return b.String()
}

func displayName(name string) string {
	if name == "" {
		return "<anonymous>"
	}
	return name
}
