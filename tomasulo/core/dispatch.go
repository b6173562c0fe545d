package core

import (
	"github.com/frostlab/tomasim/insn"
	"github.com/frostlab/tomasim/tomasulo/resstation"
	"github.com/frostlab/tomasim/tomasulo/rob"
)

// dispatchMiddleware admits at most one decoded instruction per cycle:
// it allocates the reorder-buffer entry, renames the destination, reads
// or names the sources, and routes the instruction to its reservation
// station and, for memory operations, the load or store queue.
type dispatchMiddleware struct {
	*Comp
}

func (m *dispatchMiddleware) Tick() bool {
	madeProgress := m.processCtrl()

	// Anything already buffered on the dispatch port was fetched on the
	// squashed path; the front end retracts it after the redirect.
	if m.flushedThisTick {
		return madeProgress
	}

	item := m.dispatchPort.PeekIncoming()
	if item == nil {
		return madeProgress
	}

	msg := item.(*DispatchMsg)
	m.frontEnd = msg.Src

	if !m.tryDispatch(msg.Inst) {
		return madeProgress
	}

	m.dispatchPort.RetrieveIncoming()

	return true
}

func (m *dispatchMiddleware) processCtrl() bool {
	madeProgress := false

	for {
		item := m.ctrlPort.PeekIncoming()
		if item == nil {
			break
		}

		if msg, ok := item.(*InterruptMsg); ok {
			m.interruptPending = msg.Pending
		}

		m.ctrlPort.RetrieveIncoming()
		madeProgress = true
	}

	return madeProgress
}

// tryDispatch admits one instruction, or returns false to stall it at
// the port. Every structural check runs before any state changes so a
// stalled instruction leaves no trace.
func (m *dispatchMiddleware) tryDispatch(inst insn.Inst) bool {
	if m.rob.Full() {
		return false
	}

	station := m.station(inst.Op)
	if inst.Op == insn.OpJal {
		// JAL completes at allocation; there is nothing to execute.
		station = nil
	}
	if station != nil && station.Full() {
		return false
	}

	if inst.Op.IsLoad() && m.lq.Full() {
		return false
	}
	if inst.Op.IsStore() && m.sq.Full() {
		return false
	}

	if inst.Op.IsCSR() &&
		m.csrs.Policy(inst.CSRAddr) == CSRDrainBeforeDispatch &&
		!m.rob.Empty() {
		return false
	}

	needsCheckpoint := inst.Op.IsBranch() || inst.Op == insn.OpJalr
	checkpointID := 0
	if needsCheckpoint {
		id, ok := m.rat.CheckpointAvailable()
		if !ok {
			return false
		}
		checkpointID = id
	}

	tag, ok := m.rob.Allocate(rob.AllocReq{
		PC:              inst.PC,
		DestRF:          inst.DestRF,
		Dest:            inst.Dest,
		DestValid:       inst.DestValid,
		Flags:           classify(inst),
		PredictedTaken:  inst.PredictedTaken,
		PredictedTarget: inst.PredictedTarget,
		BranchTarget:    inst.BranchTarget,
	})
	if !ok {
		return false
	}

	m.meta[tag] = &instMeta{
		op:      inst.Op,
		pc:      inst.PC,
		csrAddr: inst.CSRAddr,
		imm:     inst.Imm,
	}

	// The snapshot captures the tables before this instruction's own
	// rename, so a restore replays the branch's view of the world.
	if needsCheckpoint {
		m.rat.CheckpointSave(checkpointID, tag, m.ras.State())
		m.rob.SetCheckpoint(tag, checkpointID)
	}

	srcs := m.readSources(inst)

	if inst.DestValid {
		m.rat.Rename(inst.DestRF, inst.Dest, tag)
	}

	if inst.IsCall {
		m.ras.Push(inst.PC + 4)
	}
	if inst.IsReturn {
		m.ras.Pop()
	}

	switch inst.Op {
	case insn.OpECall:
		m.rob.WriteResult(tag, 0, true, insn.ExcECallM, 0)
	case insn.OpEBreak:
		m.rob.WriteResult(tag, 0, true, insn.ExcBreakpoint, 0)
	}

	m.route(tag, inst, srcs, station)

	return true
}

// readSources resolves each valid source operand: an architectural value,
// a done in-flight value read from the reorder buffer, or a tag to wait
// for on the common data bus. Unused slots dispatch ready.
func (m *dispatchMiddleware) readSources(
	inst insn.Inst,
) [3]resstation.Source {
	srcs := [3]resstation.Source{
		{Ready: true}, {Ready: true}, {Ready: true},
	}

	if inst.Src1Valid {
		srcs[0] = m.readOperand(inst.Src1RF, inst.Src1)
	}
	if inst.Src2Valid {
		srcs[1] = m.readOperand(inst.Src2RF, inst.Src2)
	}
	if inst.Src3Valid {
		srcs[2] = m.readOperand(insn.RegFileFP, inst.Src3)
	}

	return srcs
}

func (m *dispatchMiddleware) readOperand(
	rf insn.RegFile,
	reg int,
) resstation.Source {
	mapping := m.rat.Lookup(rf, reg)
	if mapping.Renamed {
		e := m.rob.Entry(mapping.Tag)
		if e.Valid && e.Done {
			return resstation.Source{Ready: true, Value: e.Value}
		}

		return resstation.Source{Tag: mapping.Tag}
	}

	if rf == insn.RegFileFP {
		return resstation.Source{Ready: true, Value: m.fpFile.Read(reg)}
	}

	return resstation.Source{Ready: true, Value: uint64(m.intFile.Read(reg))}
}

// route hands the instruction to its station and opens its load- or
// store-queue entry. Serializing classes carry no operands; the reorder
// buffer alone takes them to commit.
func (m *dispatchMiddleware) route(
	tag int,
	inst insn.Inst,
	srcs [3]resstation.Source,
	station *resstation.Station,
) {
	if station == nil {
		return
	}

	station.Dispatch(resstation.Entry{
		Tag:             tag,
		Op:              inst.Op,
		PC:              inst.PC,
		Src:             srcs,
		Imm:             inst.Imm,
		UseImm:          inst.UseImm,
		Rounding:        inst.Rounding,
		FPDouble:        inst.FPDouble,
		PredictedTaken:  inst.PredictedTaken,
		PredictedTarget: inst.PredictedTarget,
		BranchTarget:    inst.BranchTarget,
		MemSize:         inst.MemSize,
		MemUnsigned:     inst.MemUnsigned,
		MemIsFP:         inst.MemIsFP,
		MemIsStore:      inst.Op.IsStore(),
		MemMMIO:         inst.IsMMIO,
		CSRAddr:         inst.CSRAddr,
		CSRImm:          inst.CSRImm,
	})

	if inst.Op.IsLoad() {
		m.lq.Allocate(tag, inst.MemIsFP, inst.MemSize, inst.MemUnsigned)
	}
	if inst.Op.IsStore() {
		m.sq.Allocate(tag, inst.MemIsFP, inst.MemSize)
	}
}
