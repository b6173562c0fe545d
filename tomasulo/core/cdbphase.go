package core

import (
	"github.com/frostlab/tomasim/insn"
	"github.com/frostlab/tomasim/tomasulo/cdb"
)

// cdbMiddleware collects completions from the functional units and the
// memory path, arbitrates one broadcast, and delivers it to the reorder
// buffer and every reservation station. Branch outcomes bypass the bus
// and go straight to the reorder buffer.
type cdbMiddleware struct {
	*Comp
}

func (m *cdbMiddleware) Tick() bool {
	madeProgress := false

	var fresh [insn.NumFUKinds]cdb.Result
	var requests [insn.NumFUKinds]cdb.Result

	for kind := insn.FUKind(0); kind < insn.NumFUKinds; kind++ {
		unit := m.units[kind]
		if unit == nil {
			continue
		}

		out, ok := unit.Output()
		if ok && out.IsBranch {
			m.rob.ResolveBranch(out.Tag, out.Taken, out.Target,
				out.Mispredicted)
			unit.ConsumeOutput()
			madeProgress = true
		} else if ok {
			fresh[kind] = cdb.Result{
				Valid:     true,
				Tag:       out.Tag,
				Value:     out.Value,
				Exception: out.Exception,
				Cause:     out.Cause,
				FPFlags:   out.FPFlags,
			}
		}

		requests[kind] = m.adapters[kind].Offer(fresh[kind])
	}

	fromLQ := false
	if comp, ok := m.lq.PeekComplete(); ok {
		fresh[insn.FUMem] = cdb.Result{
			Valid: true,
			Tag:   comp.Tag,
			Value: comp.Value,
		}
		fromLQ = true
	} else if m.memSideResult != nil {
		fresh[insn.FUMem] = *m.memSideResult
	}
	requests[insn.FUMem] = m.adapters[insn.FUMem].Offer(fresh[insn.FUMem])

	broadcast, grants := cdb.Arbitrate(requests)

	for kind := insn.FUKind(0); kind < insn.NumFUKinds; kind++ {
		adapter := m.adapters[kind]
		wasPending := adapter.Busy()
		adapter.Step(fresh[kind], grants[kind])

		// A fresh result is absorbed when the adapter was free, or when
		// a grant emptied it this cycle and the fresh result latched
		// back-to-back. An ungranted pending adapter leaves the source
		// holding.
		if fresh[kind].Valid && (!wasPending || grants[kind]) {
			switch {
			case kind == insn.FUMem && fromLQ:
				m.lq.ConsumeComplete()
			case kind == insn.FUMem:
				m.memSideResult = nil
			default:
				m.units[kind].ConsumeOutput()
			}
		}
	}

	if broadcast.Valid {
		m.rob.WriteResult(broadcast.Tag, broadcast.Value,
			broadcast.Exception, broadcast.Cause, broadcast.FPFlags)
		for _, s := range m.stations {
			s.Snoop(broadcast.Tag, broadcast.Value)
		}
		madeProgress = true
	}

	return madeProgress
}
