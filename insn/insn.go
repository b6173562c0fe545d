// Package insn defines the decoded-instruction model that the scheduling
// core consumes from the decode front end.
package insn

// Op identifies the operation that an instruction performs.
type Op int

// Operations understood by the scheduling core.
const (
	OpInvalid Op = iota

	// Integer ALU
	OpAdd
	OpSub
	OpAnd
	OpOr
	OpXor
	OpSll
	OpSrl
	OpSra
	OpSlt
	OpSltu
	OpLui
	OpAuipc

	// Integer multiply/divide
	OpMul
	OpMulh
	OpMulhsu
	OpMulhu
	OpDiv
	OpDivu
	OpRem
	OpRemu

	// Control transfer
	OpBeq
	OpBne
	OpBlt
	OpBge
	OpBltu
	OpBgeu
	OpJal
	OpJalr

	// Memory
	OpLoad
	OpStore
	OpLoadFP
	OpStoreFP
	OpLR
	OpSC
	OpAMO

	// Floating point, add-class
	OpFAdd
	OpFSub
	OpFMin
	OpFMax
	OpFCmp
	OpFCvt
	OpFSgnj
	OpFClass
	OpFMvToInt
	OpFMvFromInt

	// Floating point, multiply-class
	OpFMul
	OpFMadd
	OpFMsub
	OpFNMAdd
	OpFNMSub

	// Floating point, divide-class
	OpFDiv
	OpFSqrt

	// System
	OpCSRRW
	OpCSRRS
	OpCSRRC
	OpFence
	OpFenceI
	OpWFI
	OpMRet
	OpECall
	OpEBreak
)

// RegFile selects one of the two architectural register files.
type RegFile int

// The two register files.
const (
	RegFileInt RegFile = iota
	RegFileFP
)

// MemSize encodes the access width of a memory operation.
type MemSize int

// Access widths.
const (
	MemSizeByte MemSize = iota
	MemSizeHalf
	MemSizeWord
	MemSizeDouble
)

// NumBytes returns the number of bytes that the size covers.
func (s MemSize) NumBytes() uint64 {
	switch s {
	case MemSizeByte:
		return 1
	case MemSizeHalf:
		return 2
	case MemSizeWord:
		return 4
	case MemSizeDouble:
		return 8
	}

	panic("invalid memory size")
}

// RoundingMode is the IEEE-754 rounding mode carried by FP instructions.
type RoundingMode int

// RISC-V rounding-mode encodings.
const (
	RoundNearestEven RoundingMode = iota
	RoundTowardZero
	RoundDown
	RoundUp
	RoundNearestMaxMagnitude
	RoundDynamic RoundingMode = 7
)

// ExcCause is a RISC-V mcause exception encoding.
type ExcCause int

// Exception causes raised by the core or its functional units.
const (
	ExcInstAddrMisaligned ExcCause = 0
	ExcIllegalInst        ExcCause = 2
	ExcBreakpoint         ExcCause = 3
	ExcLoadAddrMisaligned ExcCause = 4
	ExcLoadAccessFault    ExcCause = 5
	ExcStoreMisaligned    ExcCause = 6
	ExcStoreAccessFault   ExcCause = 7
	ExcECallM             ExcCause = 11
	ExcFPError            ExcCause = 16
)

// FPFlags is the accrued floating-point exception flag bitset (fflags).
type FPFlags uint8

// Individual fflags bits.
const (
	FPFlagNX FPFlags = 1 << iota // inexact
	FPFlagUF                     // underflow
	FPFlagOF                     // overflow
	FPFlagDZ                     // divide by zero
	FPFlagNV                     // invalid operation
)

// RSKind identifies which reservation station an operation dispatches to.
type RSKind int

// Reservation station classes.
const (
	RSInt RSKind = iota
	RSMulDiv
	RSMem
	RSFPAdd
	RSFPMul
	RSFPDiv
	NumRSKinds
)

// FUKind identifies the functional unit class that executes an operation.
type FUKind int

// Functional unit classes. The order matters: the CDB arbiter grants the
// longest-latency class first.
const (
	FUFPDiv FUKind = iota
	FUDiv
	FUFPMul
	FUMul
	FUFPAdd
	FUMem
	FUALU
	NumFUKinds
)

var opToRSKind = map[Op]RSKind{
	OpAdd: RSInt, OpSub: RSInt, OpAnd: RSInt, OpOr: RSInt, OpXor: RSInt,
	OpSll: RSInt, OpSrl: RSInt, OpSra: RSInt, OpSlt: RSInt, OpSltu: RSInt,
	OpLui: RSInt, OpAuipc: RSInt,
	OpBeq: RSInt, OpBne: RSInt, OpBlt: RSInt, OpBge: RSInt,
	OpBltu: RSInt, OpBgeu: RSInt, OpJal: RSInt, OpJalr: RSInt,
	OpCSRRW: RSInt, OpCSRRS: RSInt, OpCSRRC: RSInt,

	OpMul: RSMulDiv, OpMulh: RSMulDiv, OpMulhsu: RSMulDiv, OpMulhu: RSMulDiv,
	OpDiv: RSMulDiv, OpDivu: RSMulDiv, OpRem: RSMulDiv, OpRemu: RSMulDiv,

	OpLoad: RSMem, OpStore: RSMem, OpLoadFP: RSMem, OpStoreFP: RSMem,
	OpLR: RSMem, OpSC: RSMem, OpAMO: RSMem,

	OpFAdd: RSFPAdd, OpFSub: RSFPAdd, OpFMin: RSFPAdd, OpFMax: RSFPAdd,
	OpFCmp: RSFPAdd, OpFCvt: RSFPAdd, OpFSgnj: RSFPAdd, OpFClass: RSFPAdd,
	OpFMvToInt: RSFPAdd, OpFMvFromInt: RSFPAdd,

	OpFMul: RSFPMul, OpFMadd: RSFPMul, OpFMsub: RSFPMul,
	OpFNMAdd: RSFPMul, OpFNMSub: RSFPMul,

	OpFDiv: RSFPDiv, OpFSqrt: RSFPDiv,
}

var opToFUKind = map[Op]FUKind{
	OpAdd: FUALU, OpSub: FUALU, OpAnd: FUALU, OpOr: FUALU, OpXor: FUALU,
	OpSll: FUALU, OpSrl: FUALU, OpSra: FUALU, OpSlt: FUALU, OpSltu: FUALU,
	OpLui: FUALU, OpAuipc: FUALU,
	OpBeq: FUALU, OpBne: FUALU, OpBlt: FUALU, OpBge: FUALU,
	OpBltu: FUALU, OpBgeu: FUALU, OpJal: FUALU, OpJalr: FUALU,
	OpCSRRW: FUALU, OpCSRRS: FUALU, OpCSRRC: FUALU,

	OpMul: FUMul, OpMulh: FUMul, OpMulhsu: FUMul, OpMulhu: FUMul,
	OpDiv: FUDiv, OpDivu: FUDiv, OpRem: FUDiv, OpRemu: FUDiv,

	OpLoad: FUMem, OpStore: FUMem, OpLoadFP: FUMem, OpStoreFP: FUMem,
	OpLR: FUMem, OpSC: FUMem, OpAMO: FUMem,

	OpFAdd: FUFPAdd, OpFSub: FUFPAdd, OpFMin: FUFPAdd, OpFMax: FUFPAdd,
	OpFCmp: FUFPAdd, OpFCvt: FUFPAdd, OpFSgnj: FUFPAdd, OpFClass: FUFPAdd,
	OpFMvToInt: FUFPAdd, OpFMvFromInt: FUFPAdd,

	OpFMul: FUFPMul, OpFMadd: FUFPMul, OpFMsub: FUFPMul,
	OpFNMAdd: FUFPMul, OpFNMSub: FUFPMul,

	OpFDiv: FUFPDiv, OpFSqrt: FUFPDiv,
}

// RSKindOf returns the reservation station class for the operation.
func RSKindOf(op Op) (RSKind, bool) {
	k, ok := opToRSKind[op]
	return k, ok
}

// FUKindOf returns the functional unit class for the operation.
func FUKindOf(op Op) (FUKind, bool) {
	k, ok := opToFUKind[op]
	return k, ok
}

// IsBranch returns true for conditional branches.
func (op Op) IsBranch() bool {
	switch op {
	case OpBeq, OpBne, OpBlt, OpBge, OpBltu, OpBgeu:
		return true
	}
	return false
}

// IsJump returns true for JAL and JALR.
func (op Op) IsJump() bool {
	return op == OpJal || op == OpJalr
}

// IsLoad returns true for operations that read memory.
func (op Op) IsLoad() bool {
	switch op {
	case OpLoad, OpLoadFP, OpLR:
		return true
	}
	return false
}

// IsStore returns true for operations that write memory.
func (op Op) IsStore() bool {
	switch op {
	case OpStore, OpStoreFP, OpSC:
		return true
	}
	return false
}

// IsCSR returns true for CSR read-modify-write operations.
func (op Op) IsCSR() bool {
	switch op {
	case OpCSRRW, OpCSRRS, OpCSRRC:
		return true
	}
	return false
}

// IsFMA returns true for the fused multiply-add family that carries a
// third source operand.
func (op Op) IsFMA() bool {
	switch op {
	case OpFMadd, OpFMsub, OpFNMAdd, OpFNMSub:
		return true
	}
	return false
}

// An Inst is a decoded instruction as delivered by the decode front end.
// The core only schedules and retires it; computation belongs to the
// functional units.
type Inst struct {
	PC uint64
	Op Op

	Src1      int
	Src1RF    RegFile
	Src1Valid bool
	Src2      int
	Src2RF    RegFile
	Src2Valid bool
	Src3      int // FMA only
	Src3Valid bool

	Dest      int
	DestRF    RegFile
	DestValid bool

	Imm    uint64
	UseImm bool

	Rounding RoundingMode

	// FPDouble selects the double-precision format for FP computation;
	// single-precision operands are NaN-boxed in the upper half.
	FPDouble bool

	// Branch prediction metadata from the front end.
	PredictedTaken  bool
	PredictedTarget uint64
	BranchTarget    uint64
	IsCall          bool
	IsReturn        bool

	// Memory metadata.
	MemSize     MemSize
	MemUnsigned bool
	MemIsFP     bool
	IsMMIO      bool

	// CSR metadata.
	CSRAddr uint32
	CSRImm  uint32
}
