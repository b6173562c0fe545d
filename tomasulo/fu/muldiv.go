package fu

import (
	"math"

	"github.com/frostlab/tomasim/insn"
)

// MulDiv executes the RV32M multiply and divide operations, including the
// architectural divide-by-zero and overflow results.
type MulDiv struct{}

func (MulDiv) Execute(req Request) Result {
	a := uint32(req.A)
	b := uint32(req.B)

	var v uint32
	switch req.Op {
	case insn.OpMul:
		v = a * b
	case insn.OpMulh:
		v = uint32(int64(int32(a)) * int64(int32(b)) >> 32)
	case insn.OpMulhsu:
		v = uint32(int64(int32(a)) * int64(b) >> 32)
	case insn.OpMulhu:
		v = uint32(uint64(a) * uint64(b) >> 32)

	case insn.OpDiv:
		switch {
		case b == 0:
			v = 0xFFFFFFFF
		case int32(a) == math.MinInt32 && int32(b) == -1:
			v = 0x80000000
		default:
			v = uint32(int32(a) / int32(b))
		}
	case insn.OpDivu:
		if b == 0 {
			v = 0xFFFFFFFF
		} else {
			v = a / b
		}
	case insn.OpRem:
		switch {
		case b == 0:
			v = a
		case int32(a) == math.MinInt32 && int32(b) == -1:
			v = 0
		default:
			v = uint32(int32(a) % int32(b))
		}
	case insn.OpRemu:
		if b == 0 {
			v = a
		} else {
			v = a % b
		}

	default:
		return Result{Exception: true, Cause: insn.ExcIllegalInst}
	}

	return Result{Value: uint64(v)}
}
