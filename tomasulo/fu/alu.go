package fu

import (
	"github.com/frostlab/tomasim/insn"
)

// ALU executes the RV32 integer operations, resolves branch and JALR
// outcomes, and passes CSR write operands through unmodified.
type ALU struct{}

func (ALU) Execute(req Request) Result {
	a := uint32(req.A)
	b := uint32(req.B)
	if req.UseImm {
		b = uint32(req.Imm)
	}

	if req.Op.IsBranch() || req.Op == insn.OpJalr {
		return resolveControl(req, a, uint32(req.B))
	}

	var v uint32
	switch req.Op {
	case insn.OpAdd:
		v = a + b
	case insn.OpSub:
		v = a - b
	case insn.OpAnd:
		v = a & b
	case insn.OpOr:
		v = a | b
	case insn.OpXor:
		v = a ^ b
	case insn.OpSll:
		v = a << (b & 31)
	case insn.OpSrl:
		v = a >> (b & 31)
	case insn.OpSra:
		v = uint32(int32(a) >> (b & 31))
	case insn.OpSlt:
		if int32(a) < int32(b) {
			v = 1
		}
	case insn.OpSltu:
		if a < b {
			v = 1
		}
	case insn.OpLui:
		v = uint32(req.Imm)
	case insn.OpAuipc:
		v = uint32(req.PC) + uint32(req.Imm)
	case insn.OpCSRRW, insn.OpCSRRS, insn.OpCSRRC:
		// The CSR file consumes the operand at commit; the unit only
		// carries it to the reorder buffer.
		v = a
		if req.UseImm {
			v = uint32(req.Imm)
		}
	default:
		return Result{
			Exception: true,
			Cause:     insn.ExcIllegalInst,
		}
	}

	return Result{Value: uint64(v)}
}

// resolveControl computes the branch outcome. JALR's target comes from
// the register operand; conditional branches carry a decode-time target.
func resolveControl(req Request, a, b uint32) Result {
	var taken bool
	target := req.BranchTarget

	switch req.Op {
	case insn.OpBeq:
		taken = a == b
	case insn.OpBne:
		taken = a != b
	case insn.OpBlt:
		taken = int32(a) < int32(b)
	case insn.OpBge:
		taken = int32(a) >= int32(b)
	case insn.OpBltu:
		taken = a < b
	case insn.OpBgeu:
		taken = a >= b
	case insn.OpJalr:
		taken = true
		target = uint64(a+uint32(req.Imm)) &^ 1
	}

	mispredicted := taken != req.PredictedTaken ||
		(taken && target != req.PredictedTarget)

	return Result{
		IsBranch:     true,
		Taken:        taken,
		Target:       target,
		Mispredicted: mispredicted,
	}
}
