package core

import (
	"github.com/frostlab/tomasim/insn"
	"github.com/frostlab/tomasim/tomasulo/fu"
	"github.com/frostlab/tomasim/tomasulo/resstation"
)

// issueMiddleware moves ready reservation-station entries into their
// functional units, one per station per cycle. The memory station does
// not feed a value unit; it computes the effective address and hands it
// to the load or store queue.
type issueMiddleware struct {
	*Comp
}

func (m *issueMiddleware) Tick() bool {
	madeProgress := false

	for _, unit := range m.units {
		if unit != nil {
			unit.Tick()
		}
	}

	for kind := insn.RSKind(0); kind < insn.NumRSKinds; kind++ {
		if kind == insn.RSMem {
			madeProgress = m.issueMem() || madeProgress
			continue
		}

		madeProgress = m.issueToUnit(m.stations[kind]) || madeProgress
	}

	return madeProgress
}

func (m *issueMiddleware) issueToUnit(station *resstation.Station) bool {
	entry, ok := station.PeekIssue()
	if !ok {
		return false
	}

	fuKind, ok := insn.FUKindOf(entry.Op)
	if !ok {
		return false
	}

	unit := m.units[fuKind]
	if unit.Busy() {
		return false
	}

	unit.Start(fu.Request{
		Tag:             entry.Tag,
		Op:              entry.Op,
		PC:              entry.PC,
		A:               entry.Src[0].Value,
		B:               entry.Src[1].Value,
		C:               entry.Src[2].Value,
		Imm:             entry.Imm,
		UseImm:          entry.UseImm,
		Rounding:        m.fcsr.Resolve(entry.Rounding),
		FPDouble:        entry.FPDouble,
		PredictedTaken:  entry.PredictedTaken,
		PredictedTarget: entry.PredictedTarget,
		BranchTarget:    entry.BranchTarget,
	})
	station.ConsumeIssue(entry.Tag)

	return true
}

// issueMem resolves one memory operation's effective address per cycle.
func (m *issueMiddleware) issueMem() bool {
	station := m.stations[insn.RSMem]

	entry, ok := station.PeekIssue()
	if !ok {
		return false
	}

	addr := uint64(uint32(entry.Src[0].Value) + uint32(entry.Imm))
	if entry.Op == insn.OpAMO {
		// The immediate selects the atomic function, not an offset.
		addr = uint64(uint32(entry.Src[0].Value))
	}

	// Doubles move as two word reads, so word alignment is enough.
	align := entry.MemSize.NumBytes()
	if align > 4 {
		align = 4
	}
	if addr%align != 0 {
		cause := insn.ExcLoadAddrMisaligned
		if entry.Op.IsStore() {
			cause = insn.ExcStoreMisaligned
		}
		m.rob.WriteResult(entry.Tag, 0, true, cause, 0)
		station.ConsumeIssue(entry.Tag)

		return true
	}

	switch entry.Op {
	case insn.OpLoad, insn.OpLoadFP:
		m.lq.UpdateAddr(entry.Tag, addr, entry.MemMMIO)

	case insn.OpLR:
		m.lq.UpdateAddr(entry.Tag, addr, entry.MemMMIO)
		m.reservationValid = true
		m.reservationAddr = addr

	case insn.OpStore, insn.OpStoreFP:
		m.sq.UpdateAddr(entry.Tag, addr)
		m.sq.UpdateData(entry.Tag, entry.Src[1].Value)
		// A store is complete once address and data are in the queue;
		// the write itself happens after commit.
		m.rob.WriteResult(entry.Tag, 0, false, 0, 0)

	case insn.OpSC:
		m.sq.UpdateAddr(entry.Tag, addr)
		m.sq.UpdateData(entry.Tag, entry.Src[1].Value)
		m.meta[entry.Tag].addr = addr
		m.meta[entry.Tag].addrKnown = true

	case insn.OpAMO:
		// One atomic at a time; a second waits in its station.
		if m.amo.pending {
			return false
		}
		m.amo = amoState{
			pending: true,
			tag:     entry.Tag,
			addr:    addr,
			operand: uint32(entry.Src[1].Value),
			fn:      entry.Imm,
		}
	}

	station.ConsumeIssue(entry.Tag)

	return true
}
