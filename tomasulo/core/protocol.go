package core

import (
	"github.com/frostlab/tomasim/insn"
	"github.com/frostlab/tomasim/sim"
)

var ctrlMsgByteOverhead = 4

// A DispatchMsg carries one decoded instruction from the front end into
// the core.
type DispatchMsg struct {
	sim.MsgMeta

	Inst insn.Inst
}

// Meta returns the message meta.
func (m *DispatchMsg) Meta() *sim.MsgMeta {
	return &m.MsgMeta
}

// Clone creates a copy of the message with a new ID.
func (m *DispatchMsg) Clone() sim.Msg {
	cloneMsg := *m
	cloneMsg.ID = sim.GetIDGenerator().Generate()

	return &cloneMsg
}

// DispatchMsgBuilder can build dispatch messages.
type DispatchMsgBuilder struct {
	src, dst sim.RemotePort
	inst     insn.Inst
}

// WithSrc sets the source of the message to build.
func (b DispatchMsgBuilder) WithSrc(src sim.RemotePort) DispatchMsgBuilder {
	b.src = src
	return b
}

// WithDst sets the destination of the message to build.
func (b DispatchMsgBuilder) WithDst(dst sim.RemotePort) DispatchMsgBuilder {
	b.dst = dst
	return b
}

// WithInst sets the instruction the message carries.
func (b DispatchMsgBuilder) WithInst(inst insn.Inst) DispatchMsgBuilder {
	b.inst = inst
	return b
}

// Build creates a new DispatchMsg.
func (b DispatchMsgBuilder) Build() *DispatchMsg {
	m := &DispatchMsg{}
	m.ID = sim.GetIDGenerator().Generate()
	m.Src = b.src
	m.Dst = b.dst
	m.TrafficBytes = ctrlMsgByteOverhead
	m.Inst = b.inst

	return m
}

// RedirectReason classifies a front-end redirect.
type RedirectReason int

// Redirect reasons.
const (
	RedirectMispredict RedirectReason = iota
	RedirectTrap
	RedirectFenceI
	RedirectMRet
)

func (r RedirectReason) String() string {
	switch r {
	case RedirectMispredict:
		return "mispredict"
	case RedirectTrap:
		return "trap"
	case RedirectFenceI:
		return "fence.i"
	case RedirectMRet:
		return "mret"
	}

	return "unknown"
}

// A RedirectMsg tells the front end to discard fetched instructions and
// restart from PC.
type RedirectMsg struct {
	sim.MsgMeta

	Reason RedirectReason
	PC     uint64

	// Trap details, valid when Reason is RedirectTrap.
	Cause   insn.ExcCause
	TrapPC  uint64
}

// Meta returns the message meta.
func (m *RedirectMsg) Meta() *sim.MsgMeta {
	return &m.MsgMeta
}

// Clone creates a copy of the message with a new ID.
func (m *RedirectMsg) Clone() sim.Msg {
	cloneMsg := *m
	cloneMsg.ID = sim.GetIDGenerator().Generate()

	return &cloneMsg
}

// RedirectMsgBuilder can build redirect messages.
type RedirectMsgBuilder struct {
	src, dst sim.RemotePort
	reason   RedirectReason
	pc       uint64
	cause    insn.ExcCause
	trapPC   uint64
}

// WithSrc sets the source of the message to build.
func (b RedirectMsgBuilder) WithSrc(src sim.RemotePort) RedirectMsgBuilder {
	b.src = src
	return b
}

// WithDst sets the destination of the message to build.
func (b RedirectMsgBuilder) WithDst(dst sim.RemotePort) RedirectMsgBuilder {
	b.dst = dst
	return b
}

// WithReason sets the redirect reason.
func (b RedirectMsgBuilder) WithReason(r RedirectReason) RedirectMsgBuilder {
	b.reason = r
	return b
}

// WithPC sets the redirect target.
func (b RedirectMsgBuilder) WithPC(pc uint64) RedirectMsgBuilder {
	b.pc = pc
	return b
}

// WithTrap sets the trap details.
func (b RedirectMsgBuilder) WithTrap(
	cause insn.ExcCause,
	trapPC uint64,
) RedirectMsgBuilder {
	b.cause = cause
	b.trapPC = trapPC
	return b
}

// Build creates a new RedirectMsg.
func (b RedirectMsgBuilder) Build() *RedirectMsg {
	m := &RedirectMsg{}
	m.ID = sim.GetIDGenerator().Generate()
	m.Src = b.src
	m.Dst = b.dst
	m.TrafficBytes = ctrlMsgByteOverhead
	m.Reason = b.reason
	m.PC = b.pc
	m.Cause = b.cause
	m.TrapPC = b.trapPC

	return m
}

// An InterruptMsg asserts or clears the external interrupt-pending line
// that releases a WFI at the head of the reorder buffer.
type InterruptMsg struct {
	sim.MsgMeta

	Pending bool
}

// Meta returns the message meta.
func (m *InterruptMsg) Meta() *sim.MsgMeta {
	return &m.MsgMeta
}

// Clone creates a copy of the message with a new ID.
func (m *InterruptMsg) Clone() sim.Msg {
	cloneMsg := *m
	cloneMsg.ID = sim.GetIDGenerator().Generate()

	return &cloneMsg
}

// InterruptMsgBuilder can build interrupt messages.
type InterruptMsgBuilder struct {
	src, dst sim.RemotePort
	pending  bool
}

// WithSrc sets the source of the message to build.
func (b InterruptMsgBuilder) WithSrc(src sim.RemotePort) InterruptMsgBuilder {
	b.src = src
	return b
}

// WithDst sets the destination of the message to build.
func (b InterruptMsgBuilder) WithDst(dst sim.RemotePort) InterruptMsgBuilder {
	b.dst = dst
	return b
}

// WithPending sets the interrupt-pending level.
func (b InterruptMsgBuilder) WithPending(p bool) InterruptMsgBuilder {
	b.pending = p
	return b
}

// Build creates a new InterruptMsg.
func (b InterruptMsgBuilder) Build() *InterruptMsg {
	m := &InterruptMsg{}
	m.ID = sim.GetIDGenerator().Generate()
	m.Src = b.src
	m.Dst = b.dst
	m.TrafficBytes = ctrlMsgByteOverhead
	m.Pending = b.pending

	return m
}
