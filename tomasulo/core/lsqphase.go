package core

import (
	"encoding/binary"
	"log"

	"github.com/frostlab/tomasim/insn"
	"github.com/frostlab/tomasim/mem"
	"github.com/frostlab/tomasim/tomasulo/cdb"
)

// lsqMiddleware runs the memory side of the core: it consumes responses
// from the memory controller, drains committed stores in program order,
// disambiguates and issues loads, and serializes store-conditional and
// atomic operations at the reorder-buffer head.
type lsqMiddleware struct {
	*Comp
}

func (m *lsqMiddleware) Tick() bool {
	madeProgress := false

	madeProgress = m.processRsps() || madeProgress
	madeProgress = m.retryAtomicWrite() || madeProgress
	madeProgress = m.resolveStoreConditional() || madeProgress
	madeProgress = m.runAtomic() || madeProgress
	madeProgress = m.drainStores() || madeProgress
	madeProgress = m.serveLoads() || madeProgress

	return madeProgress
}

func (m *lsqMiddleware) processRsps() bool {
	madeProgress := false

	for {
		item := m.memPort.PeekIncoming()
		if item == nil {
			break
		}

		switch rsp := item.(type) {
		case *mem.DataReadyRsp:
			m.handleDataReady(rsp)
		case *mem.WriteDoneRsp:
			m.handleWriteDone(rsp)
		}

		m.memPort.RetrieveIncoming()
		madeProgress = true
	}

	return madeProgress
}

func (m *lsqMiddleware) handleDataReady(rsp *mem.DataReadyRsp) {
	word := binary.LittleEndian.Uint32(rsp.Data)

	switch rsp.RespondTo {
	case m.lqReadID:
		m.lqReadID = ""
		m.lq.MemResponse(word)

	case m.amo.readID:
		m.amo.readID = ""
		m.amo.old = word
		m.amo.needWrite = true
		m.retryAtomicWrite()
	}
}

func (m *lsqMiddleware) handleWriteDone(rsp *mem.WriteDoneRsp) {
	if m.amo.pending && rsp.RespondTo == m.amo.writeID {
		// The round trip is over; the old value goes out over the
		// memory adapter and marks the entry done.
		m.memSideResult = &cdb.Result{
			Valid: true,
			Tag:   m.amo.tag,
			Value: uint64(m.amo.old),
		}
		m.amo = amoState{}
	}
}

// retryAtomicWrite sends the atomic's modified value back to memory,
// retrying across cycles while the port is full.
func (m *lsqMiddleware) retryAtomicWrite() bool {
	if !m.amo.needWrite || !m.memPort.CanSend() {
		return false
	}

	data := make([]byte, 4)
	binary.LittleEndian.PutUint32(data, amoCompute(m.amo.fn, m.amo.old,
		m.amo.operand))

	req := mem.WriteReqBuilder{}.
		WithSrc(m.memPort.AsRemote()).
		WithDst(m.memCtrl).
		WithAddress(m.amo.addr &^ 3).
		WithData(data).
		Build()

	if m.memPort.Send(req) != nil {
		return false
	}

	m.amo.needWrite = false
	m.amo.writeID = req.Meta().ID

	return true
}

// amoCompute applies the atomic function. The decode front end encodes
// the function in the instruction immediate.
func amoCompute(fn uint64, old, operand uint32) uint32 {
	switch fn {
	case 0: // swap
		return operand
	case 1: // add
		return old + operand
	case 2: // xor
		return old ^ operand
	case 3: // and
		return old & operand
	case 4: // or
		return old | operand
	case 5: // min
		if int32(operand) < int32(old) {
			return operand
		}
		return old
	case 6: // max
		if int32(operand) > int32(old) {
			return operand
		}
		return old
	case 7: // minu
		if operand < old {
			return operand
		}
		return old
	default: // maxu
		if operand > old {
			return operand
		}
		return old
	}
}

// resolveStoreConditional decides a store-conditional once it is the
// oldest instruction and its address is known. Failure cancels the queue
// entry; either way the result broadcasts so dependents wake.
func (m *lsqMiddleware) resolveStoreConditional() bool {
	if m.rob.Empty() || m.memSideResult != nil {
		return false
	}

	tag := m.rob.HeadTag()
	meta, ok := m.meta[tag]
	if !ok || meta.op != insn.OpSC || meta.scResolved || !meta.addrKnown {
		return false
	}

	success := m.reservationValid && m.reservationAddr == meta.addr
	meta.scResolved = true
	meta.scSuccess = success

	value := uint64(1)
	if success {
		value = 0
	} else {
		m.sq.Cancel(tag)
	}

	m.memSideResult = &cdb.Result{Valid: true, Tag: tag, Value: value}

	return true
}

// runAtomic serializes the pending atomic operation: it starts only at
// the head, with the store queue drained and the load path quiet.
func (m *lsqMiddleware) runAtomic() bool {
	if !m.amo.pending || m.amo.started {
		return false
	}
	if m.amo.tag != m.rob.HeadTag() || !m.sq.Drained() || !m.lq.Empty() {
		return false
	}
	if m.lqReadID != "" || !m.memPort.CanSend() {
		return false
	}

	req := mem.ReadReqBuilder{}.
		WithSrc(m.memPort.AsRemote()).
		WithDst(m.memCtrl).
		WithAddress(m.amo.addr &^ 3).
		WithByteSize(4).
		Build()

	if m.memPort.Send(req) != nil {
		return false
	}

	m.amo.started = true
	m.amo.readID = req.Meta().ID

	return true
}

// drainStores sends one committed store to memory per cycle, strictly
// from the head of the store queue.
func (m *lsqMiddleware) drainStores() bool {
	w, ok := m.sq.PeekWrite()
	if !ok || !m.memPort.CanSend() {
		return false
	}

	n := w.Size.NumBytes()
	data := make([]byte, n)
	switch n {
	case 1:
		data[0] = byte(w.Data)
	case 2:
		binary.LittleEndian.PutUint16(data, uint16(w.Data))
	case 4:
		binary.LittleEndian.PutUint32(data, uint32(w.Data))
	default:
		binary.LittleEndian.PutUint64(data, w.Data)
	}

	req := mem.WriteReqBuilder{}.
		WithSrc(m.memPort.AsRemote()).
		WithDst(m.memCtrl).
		WithAddress(w.Addr).
		WithData(data).
		Build()

	if m.memPort.Send(req) != nil {
		return false
	}

	// A store that aliases the reservation breaks it.
	if m.reservationValid &&
		w.Addr < m.reservationAddr+4 && m.reservationAddr < w.Addr+n {
		m.reservationValid = false
	}

	m.sq.ConsumeWrite()

	return true
}

// serveLoads disambiguates the load queue's candidate against the store
// queue and either forwards or issues one memory read.
func (m *lsqMiddleware) serveLoads() bool {
	if m.lqReadID != "" {
		return false
	}

	cand, ok := m.lq.Candidate(m.rob.HeadTag())
	if !ok {
		return false
	}

	age := m.rob.AgeOf(cand.Tag)
	if !m.sq.OlderStoresKnown(age) {
		return false
	}

	fwd := m.sq.Forward(cand.Addr, cand.Size, age)
	if fwd.CanForward {
		m.lq.ApplyForward(fwd.Data)
		return true
	}

	if !m.memPort.CanSend() {
		return false
	}

	addr, ok := m.lq.IssueToMemory(true, fwd.Match)
	if !ok {
		return false
	}

	req := mem.ReadReqBuilder{}.
		WithSrc(m.memPort.AsRemote()).
		WithDst(m.memCtrl).
		WithAddress(addr).
		WithByteSize(4).
		Build()

	// CanSend held above, so the outgoing buffer has room.
	if err := m.memPort.Send(req); err != nil {
		log.Panic("memory port rejected a send after CanSend")
	}

	m.lqReadID = req.Meta().ID

	return true
}
