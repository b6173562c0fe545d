// Package cdb implements the common data bus: one holding adapter per
// function unit and a fixed-priority arbiter that grants exactly one
// broadcast per cycle.
package cdb

import (
	"github.com/frostlab/tomasim/insn"
)

// A Result is one completion offered to the bus.
type Result struct {
	Valid bool
	Tag   int
	Value uint64

	Exception bool
	Cause     insn.ExcCause
	FPFlags   insn.FPFlags
}

// A Broadcast is the granted result as every listener sees it.
type Broadcast struct {
	Result
	FU insn.FUKind
}

// An Adapter decouples a function unit from bus contention. When idle it
// passes the unit's result straight through; when the arbiter does not
// grant, the result is latched and re-offered until it wins.
type Adapter struct {
	pending bool
	held    Result
}

// NewAdapter creates an idle adapter.
func NewAdapter() *Adapter {
	return &Adapter{}
}

// Busy returns true while a latched result waits for a grant. The
// function unit must hold its output stage while Busy.
func (a *Adapter) Busy() bool {
	return a.pending
}

// Offer returns what the adapter presents to the arbiter this cycle: the
// held result if one is pending, the unit's fresh result otherwise.
func (a *Adapter) Offer(fresh Result) Result {
	if a.pending {
		return a.held
	}

	return fresh
}

// Step advances the holding register by one cycle, given the unit's fresh
// result and the arbiter's decision for this adapter.
func (a *Adapter) Step(fresh Result, granted bool) {
	switch {
	case a.pending && granted:
		// Back-to-back: the held result went out, latch the fresh one.
		if fresh.Valid {
			a.held = fresh
		} else {
			a.pending = false
		}

	case !a.pending && fresh.Valid && !granted:
		a.held = fresh
		a.pending = true
	}
}

// Flush drops any held result.
func (a *Adapter) Flush() {
	a.pending = false
	a.held = Result{}
}

// Arbitrate picks the single result to broadcast this cycle. Requests are
// indexed by FU kind; priority follows the kind order, longest-latency
// unit first, so a divider never loses its single completion slot to a
// stream of single-cycle results. The returned grant vector has exactly
// one bit set when a broadcast happens.
func Arbitrate(requests [insn.NumFUKinds]Result) (Broadcast, [insn.NumFUKinds]bool) {
	var grants [insn.NumFUKinds]bool

	for fu := insn.FUKind(0); fu < insn.NumFUKinds; fu++ {
		if !requests[fu].Valid {
			continue
		}

		grants[fu] = true

		return Broadcast{Result: requests[fu], FU: fu}, grants
	}

	return Broadcast{}, grants
}
