package fu

import (
	"math"

	"github.com/frostlab/tomasim/insn"
)

// FP operand helpers. Double-precision values occupy the full 64 bits;
// single-precision values are NaN-boxed in the low half. An improperly
// boxed single reads as the canonical NaN, as the architecture requires.

const canonicalNaN32 = 0x7FC00000

func unboxSingle(v uint64) float32 {
	if v>>32 != 0xFFFFFFFF {
		return math.Float32frombits(canonicalNaN32)
	}

	return math.Float32frombits(uint32(v))
}

func boxSingle(f float32) uint64 {
	return 0xFFFFFFFF00000000 | uint64(math.Float32bits(f))
}

// Sub-operation selectors carried in the immediate field by the decode
// front end for ops whose RISC-V encoding has several variants.
const (
	CmpEQ = 0
	CmpLT = 1
	CmpLE = 2

	SgnJ  = 0
	SgnJN = 1
	SgnJX = 2
)

// FPAdd executes the FP add class: add/sub, min/max, compares, format
// conversion, sign injection, classification, and the raw bit moves.
type FPAdd struct{}

func (FPAdd) Execute(req Request) Result {
	switch req.Op {
	case insn.OpFSgnj:
		return signInject(req)
	case insn.OpFClass:
		return classify(req)
	case insn.OpFMvToInt:
		return Result{Value: req.A & 0xFFFFFFFF}
	case insn.OpFMvFromInt:
		return Result{Value: boxSingle(math.Float32frombits(uint32(req.A)))}
	case insn.OpFCvt:
		return convert(req)
	case insn.OpFCmp:
		return compare(req)
	}

	if req.FPDouble {
		a := math.Float64frombits(req.A)
		b := math.Float64frombits(req.B)

		var v float64
		switch req.Op {
		case insn.OpFAdd:
			v = a + b
		case insn.OpFSub:
			v = a - b
		case insn.OpFMin:
			v = math.Min(a, b)
		case insn.OpFMax:
			v = math.Max(a, b)
		default:
			return Result{Exception: true, Cause: insn.ExcIllegalInst}
		}

		return fpResult64(v, a, b)
	}

	a := unboxSingle(req.A)
	b := unboxSingle(req.B)

	var v float32
	switch req.Op {
	case insn.OpFAdd:
		v = a + b
	case insn.OpFSub:
		v = a - b
	case insn.OpFMin:
		v = float32(math.Min(float64(a), float64(b)))
	case insn.OpFMax:
		v = float32(math.Max(float64(a), float64(b)))
	default:
		return Result{Exception: true, Cause: insn.ExcIllegalInst}
	}

	return fpResult32(v, a, b)
}

// FPMul executes multiplies and the fused multiply-add family.
type FPMul struct{}

func (FPMul) Execute(req Request) Result {
	if req.FPDouble {
		a := math.Float64frombits(req.A)
		b := math.Float64frombits(req.B)
		c := math.Float64frombits(req.C)

		var v float64
		switch req.Op {
		case insn.OpFMul:
			v = a * b
		case insn.OpFMadd:
			v = math.FMA(a, b, c)
		case insn.OpFMsub:
			v = math.FMA(a, b, -c)
		case insn.OpFNMAdd:
			v = math.FMA(-a, b, -c)
		case insn.OpFNMSub:
			v = math.FMA(-a, b, c)
		default:
			return Result{Exception: true, Cause: insn.ExcIllegalInst}
		}

		return fpResult64(v, a, b)
	}

	a := unboxSingle(req.A)
	b := unboxSingle(req.B)
	c := unboxSingle(req.C)

	var v float32
	switch req.Op {
	case insn.OpFMul:
		v = a * b
	case insn.OpFMadd:
		v = float32(math.FMA(float64(a), float64(b), float64(c)))
	case insn.OpFMsub:
		v = float32(math.FMA(float64(a), float64(b), -float64(c)))
	case insn.OpFNMAdd:
		v = float32(math.FMA(-float64(a), float64(b), -float64(c)))
	case insn.OpFNMSub:
		v = float32(math.FMA(-float64(a), float64(b), float64(c)))
	default:
		return Result{Exception: true, Cause: insn.ExcIllegalInst}
	}

	return fpResult32(v, a, b)
}

// FPDiv executes divides and square roots.
type FPDiv struct{}

func (FPDiv) Execute(req Request) Result {
	if req.FPDouble {
		a := math.Float64frombits(req.A)
		b := math.Float64frombits(req.B)

		switch req.Op {
		case insn.OpFDiv:
			if b == 0 && a != 0 && !math.IsNaN(a) {
				return Result{
					Value:   math.Float64bits(a / b),
					FPFlags: insn.FPFlagDZ,
				}
			}
			return fpResult64(a/b, a, b)
		case insn.OpFSqrt:
			if a < 0 {
				return Result{
					Value:   math.Float64bits(math.NaN()),
					FPFlags: insn.FPFlagNV,
				}
			}
			return fpResult64(math.Sqrt(a), a, 0)
		}

		return Result{Exception: true, Cause: insn.ExcIllegalInst}
	}

	a := unboxSingle(req.A)
	b := unboxSingle(req.B)

	switch req.Op {
	case insn.OpFDiv:
		if b == 0 && a != 0 && !isNaN32(a) {
			return Result{Value: boxSingle(a / b), FPFlags: insn.FPFlagDZ}
		}
		return fpResult32(a/b, a, b)
	case insn.OpFSqrt:
		if a < 0 {
			return Result{
				Value:   boxSingle(math.Float32frombits(canonicalNaN32)),
				FPFlags: insn.FPFlagNV,
			}
		}
		return fpResult32(float32(math.Sqrt(float64(a))), a, 0)
	}

	return Result{Exception: true, Cause: insn.ExcIllegalInst}
}

func isNaN32(f float32) bool {
	return f != f
}

// fpResult64 boxes a double result and derives the accrued flags.
func fpResult64(v, a, b float64) Result {
	var flags insn.FPFlags
	if math.IsNaN(v) && !math.IsNaN(a) && !math.IsNaN(b) {
		flags |= insn.FPFlagNV
	}
	if math.IsInf(v, 0) && !math.IsInf(a, 0) && !math.IsInf(b, 0) {
		flags |= insn.FPFlagOF | insn.FPFlagNX
	}

	return Result{Value: math.Float64bits(v), FPFlags: flags}
}

// fpResult32 boxes a single result and derives the accrued flags.
func fpResult32(v, a, b float32) Result {
	var flags insn.FPFlags
	if isNaN32(v) && !isNaN32(a) && !isNaN32(b) {
		flags |= insn.FPFlagNV
	}
	if isInf32(v) && !isInf32(a) && !isInf32(b) {
		flags |= insn.FPFlagOF | insn.FPFlagNX
	}

	return Result{Value: boxSingle(v), FPFlags: flags}
}

func isInf32(f float32) bool {
	return math.IsInf(float64(f), 0)
}

func compare(req Request) Result {
	var a, b float64
	if req.FPDouble {
		a = math.Float64frombits(req.A)
		b = math.Float64frombits(req.B)
	} else {
		a = float64(unboxSingle(req.A))
		b = float64(unboxSingle(req.B))
	}

	if math.IsNaN(a) || math.IsNaN(b) {
		// Comparisons with NaN yield 0; LT and LE signal invalid.
		var flags insn.FPFlags
		if req.Imm != CmpEQ {
			flags = insn.FPFlagNV
		}
		return Result{Value: 0, FPFlags: flags}
	}

	var taken bool
	switch req.Imm {
	case CmpEQ:
		taken = a == b
	case CmpLT:
		taken = a < b
	case CmpLE:
		taken = a <= b
	}

	if taken {
		return Result{Value: 1}
	}
	return Result{Value: 0}
}

// convert moves a value between the two FP formats. FPDouble names the
// destination format.
func convert(req Request) Result {
	if req.FPDouble {
		v := float64(unboxSingle(req.A))
		return Result{Value: math.Float64bits(v)}
	}

	v := float32(math.Float64frombits(req.A))
	return Result{Value: boxSingle(v)}
}

func signInject(req Request) Result {
	if req.FPDouble {
		a := req.A
		b := req.B
		const signBit = uint64(1) << 63

		var sign uint64
		switch req.Imm {
		case SgnJ:
			sign = b & signBit
		case SgnJN:
			sign = ^b & signBit
		case SgnJX:
			sign = (a ^ b) & signBit
		}

		return Result{Value: a&^signBit | sign}
	}

	a := uint64(math.Float32bits(unboxSingle(req.A)))
	b := uint64(math.Float32bits(unboxSingle(req.B)))
	const signBit = uint64(1) << 31

	var sign uint64
	switch req.Imm {
	case SgnJ:
		sign = b & signBit
	case SgnJN:
		sign = ^b & signBit
	case SgnJX:
		sign = (a ^ b) & signBit
	}

	return Result{Value: boxSingle(math.Float32frombits(uint32(a&^signBit | sign)))}
}

// classify returns the RISC-V FCLASS.S/D bit for the operand.
func classify(req Request) Result {
	var f float64
	var signaling, subnormal bool

	if req.FPDouble {
		bits := req.A
		f = math.Float64frombits(bits)
		signaling = math.IsNaN(f) && bits&(1<<51) == 0
		subnormal = bits&(0x7FF<<52) == 0 && bits&(1<<52-1) != 0
	} else {
		bits := math.Float32bits(unboxSingle(req.A))
		f = float64(math.Float32frombits(bits))
		signaling = isNaN32(float32(f)) && bits&(1<<22) == 0
		subnormal = bits&(0xFF<<23) == 0 && bits&(1<<23-1) != 0
	}

	var bit uint
	switch {
	case math.IsInf(f, -1):
		bit = 0
	case math.IsNaN(f) && signaling:
		bit = 8
	case math.IsNaN(f):
		bit = 9
	case math.IsInf(f, 1):
		bit = 7
	case f == 0 && math.Signbit(f):
		bit = 3
	case f == 0:
		bit = 4
	case subnormal && math.Signbit(f):
		bit = 2
	case subnormal:
		bit = 5
	case math.Signbit(f):
		bit = 1
	default:
		bit = 6
	}

	return Result{Value: 1 << bit}
}
