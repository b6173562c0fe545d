package core

import (
	"github.com/frostlab/tomasim/insn"
	"github.com/frostlab/tomasim/sim"
	"github.com/frostlab/tomasim/tomasulo/rob"
)

// commitMiddleware retires at most one instruction per cycle from the
// reorder buffer head and applies its architectural effects.
type commitMiddleware struct {
	*Comp
}

func (m *commitMiddleware) Tick() bool {
	if m.pendingRedirect != nil {
		if m.ctrlPort.Send(m.pendingRedirect) != nil {
			return false
		}
		m.pendingRedirect = nil
	}

	tag, entry, ok := m.rob.PeekCommit()
	if !ok {
		return false
	}

	gates := m.buildGates(tag, entry)

	res, committed := m.rob.Commit(gates)
	if !committed {
		return false
	}

	m.InvokeHook(sim.HookCtx{
		Domain: m.Comp,
		Pos:    HookPosCommit,
		Item:   res,
	})

	if res.Trap {
		m.takeTrap(res)
		return true
	}

	m.applyCommit(res)

	return true
}

// buildGates evaluates the serialization conditions for the head entry.
// CSR and MRET side effects run here, once, so that the gate they report
// reflects work already done.
func (m *commitMiddleware) buildGates(tag int, entry *rob.Entry) rob.Gates {
	gates := rob.Gates{
		SQEmpty:          m.sq.Drained(),
		InterruptPending: m.interruptPending,
		TrapTaken:        true,
	}

	if entry.Flags.IsCSR {
		if m.csrExecTag != tag {
			meta := m.meta[tag]
			m.csrOldValue = m.csrs.Apply(
				meta.op, meta.csrAddr, uint32(entry.Value))
			m.csrExecTag = tag
			m.syncFCSR(meta.csrAddr)
		}
		gates.CSRDone = true
	}

	if entry.Flags.IsMRet {
		gates.MRetDone = true
	}

	// An atomic operation holds commit until its memory round trip is
	// over, on top of the store-queue drain the flags already demand.
	if entry.Flags.IsAMO && !entry.Done {
		gates.SQEmpty = false
	}

	return gates
}

// syncFCSR mirrors writes of the FP control CSRs into the FCSR the FP
// commit path reads.
func (m *commitMiddleware) syncFCSR(addr uint32) {
	switch addr {
	case CSRFFlags:
		m.fcsr.ClearFlags()
		m.fcsr.AccumulateFlags(insn.FPFlags(m.csrs.Read(CSRFFlags)))
	case CSRFRM:
		m.fcsr.SetRoundingMode(insn.RoundingMode(m.csrs.Read(CSRFRM)))
	case CSRFCSR:
		v := m.csrs.Read(CSRFCSR)
		m.fcsr.ClearFlags()
		m.fcsr.AccumulateFlags(insn.FPFlags(v & 0x1F))
		m.fcsr.SetRoundingMode(insn.RoundingMode(v >> 5 & 0x7))
	}
}

// takeTrap implements precise-exception recovery: the faulting entry's
// effects are discarded, everything younger is squashed, the alias
// tables reset to the architectural files, and the front end redirects
// to the trap vector.
func (m *commitMiddleware) takeTrap(res rob.Result) {
	m.csrs.Write(CSRMEPC, uint32(res.Entry.PC))
	m.csrs.Write(CSRMCause, uint32(res.Entry.Cause))

	m.flushPipeline()
	m.rat.FlushAll()
	m.ras.FlushAll()

	m.sendRedirect(RedirectTrap, uint64(m.csrs.Read(CSRMTVec)),
		res.Entry.Cause, res.Entry.PC)
}

func (m *commitMiddleware) applyCommit(res rob.Result) {
	entry := res.Entry
	tag := res.Tag

	if entry.DestValid {
		value := entry.Value
		if entry.Flags.IsCSR {
			value = uint64(m.csrOldValue)
		}

		if entry.DestRF == insn.RegFileFP {
			m.fpFile.Write(entry.Dest, value)
		} else {
			m.intFile.Write(entry.Dest, uint32(value))
		}

		m.rat.CommitClear(entry.DestRF, entry.Dest, tag)
	}

	m.fcsr.AccumulateFlags(entry.FPFlags)

	if entry.Flags.IsStore {
		m.commitStore(tag, entry.Flags)
	}

	if entry.Flags.IsSC {
		// SC always clears the reservation, success or not.
		m.reservationValid = false
	}

	switch {
	case entry.Flags.IsBranch || entry.Flags.IsJALR:
		m.commitBranch(res)

	case entry.Flags.IsMRet:
		m.flushPipeline()
		m.rat.FlushAll()
		m.sendRedirect(RedirectMRet, uint64(m.csrs.Read(CSRMEPC)), 0, 0)

	case entry.Flags.IsFenceI:
		// Everything fetched past the fence is stale.
		m.flushPipeline()
		m.rat.FlushAll()
		m.ras.FlushAll()
		m.sendRedirect(RedirectFenceI, res.RedirectPC, 0, 0)
	}

	delete(m.meta, tag)
}

func (m *commitMiddleware) commitStore(tag int, flags rob.Flags) {
	if flags.IsSC && !m.meta[tag].scSuccess {
		// The failed store-conditional was already cancelled in the
		// store queue; nothing reaches memory.
		return
	}

	m.sq.MarkCommitted(tag)
}

// commitBranch frees or consumes the branch's checkpoint. A mispredicted
// branch squashes everything younger than itself, which at the head is
// the entire remaining pipeline.
func (m *commitMiddleware) commitBranch(res rob.Result) {
	entry := res.Entry

	if !res.Mispredicted {
		if entry.HasCheckpoint {
			m.rat.CheckpointFree(entry.CheckpointID)
		}
		return
	}

	var restored bool
	if entry.HasCheckpoint {
		rasState := m.rat.CheckpointRestore(entry.CheckpointID)
		m.ras.Restore(rasState)
		restored = true
	}

	m.flushPipeline()
	m.freeAllCheckpoints()

	if restored {
		// The snapshot can name producers that retired after the save.
		m.rat.ClearStale(func(tag int) bool {
			return m.rob.Entry(tag).Valid
		})
	}

	if !restored {
		// No snapshot to rewind to; the architectural file is ground
		// truth once the pipeline is empty.
		m.rat.FlushAll()
		m.ras.FlushAll()
	}

	m.sendRedirect(RedirectMispredict, res.RedirectPC, 0, 0)
}
