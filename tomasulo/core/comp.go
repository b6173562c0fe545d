// Package core composes the reorder buffer, alias tables, reservation
// stations, load/store queues, functional units, and the common data bus
// into one ticking scheduling core. Each tick is one cycle: at most one
// instruction dispatched, one result broadcast, one instruction committed.
package core

import (
	"github.com/frostlab/tomasim/insn"
	"github.com/frostlab/tomasim/sim"
	"github.com/frostlab/tomasim/tomasulo/cdb"
	"github.com/frostlab/tomasim/tomasulo/fu"
	"github.com/frostlab/tomasim/tomasulo/lsq"
	"github.com/frostlab/tomasim/tomasulo/rat"
	"github.com/frostlab/tomasim/tomasulo/regfile"
	"github.com/frostlab/tomasim/tomasulo/resstation"
	"github.com/frostlab/tomasim/tomasulo/rob"
)

// HookPosCommit triggers when an instruction retires. The hook item is
// the commit result.
var HookPosCommit = &sim.HookPos{Name: "Commit"}

// HookPosRedirect triggers when the core redirects the front end. The
// hook item is the redirect message.
var HookPosRedirect = &sim.HookPos{Name: "Redirect"}

// instMeta is the per-tag dispatch metadata the commit and memory paths
// need after the instruction left the front end.
type instMeta struct {
	op      insn.Op
	pc      uint64
	csrAddr uint32
	imm     uint64

	addr      uint64
	addrKnown bool

	scResolved bool
	scSuccess  bool
}

// amoState tracks the single atomic operation the core serializes on.
type amoState struct {
	pending   bool
	started   bool
	needWrite bool

	tag     int
	addr    uint64
	operand uint32
	fn      uint64

	readID  string
	writeID string
	old     uint32
}

// Comp is the scheduling core component. It consumes decoded instructions
// on the Dispatch port, talks to a memory controller on the Mem port, and
// reports redirects on the Ctrl port.
type Comp struct {
	*sim.TickingComponent
	sim.MiddlewareHolder

	dispatchPort sim.Port
	ctrlPort     sim.Port
	memPort      sim.Port

	frontEnd sim.RemotePort
	memCtrl  sim.RemotePort

	rob      *rob.ROB
	rat      *rat.Table
	stations [insn.NumRSKinds]*resstation.Station
	lq       *lsq.LoadQueue
	sq       *lsq.StoreQueue
	units    [insn.NumFUKinds]*fu.Unit
	adapters [insn.NumFUKinds]*cdb.Adapter

	intFile *regfile.IntFile
	fpFile  *regfile.FPFile
	fcsr    *regfile.FCSR
	csrs    *CSRFile
	ras     *ReturnAddressStack

	meta map[int]*instMeta

	interruptPending bool

	lqReadID string
	amo      amoState

	// Completions that reach the bus through the memory adapter but do
	// not come from the load queue.
	memSideResult *cdb.Result

	reservationValid bool
	reservationAddr  uint64

	csrExecTag  int
	csrOldValue uint32

	pendingRedirect *RedirectMsg

	flushedThisTick bool
}

// DispatchPort returns the port decoded instructions arrive on.
func (c *Comp) DispatchPort() sim.Port {
	return c.dispatchPort
}

// CtrlPort returns the port redirects leave on.
func (c *Comp) CtrlPort() sim.Port {
	return c.ctrlPort
}

// MemPort returns the port memory traffic runs on.
func (c *Comp) MemPort() sim.Port {
	return c.memPort
}

// CSRs exposes the CSR file for configuration and inspection.
func (c *Comp) CSRs() *CSRFile {
	return c.csrs
}

// IntReg returns the committed value of an integer register.
func (c *Comp) IntReg(reg int) uint32 {
	return c.intFile.Read(reg)
}

// FPReg returns the committed value of an FP register.
func (c *Comp) FPReg(reg int) uint64 {
	return c.fpFile.Read(reg)
}

// FPFlags returns the accrued floating-point exception flags.
func (c *Comp) FPFlags() insn.FPFlags {
	return c.fcsr.Flags()
}

// Drained returns true when nothing is in flight anywhere in the core.
func (c *Comp) Drained() bool {
	return c.rob.Empty() && c.lq.Empty() && c.sq.Empty()
}

// Tick runs one cycle.
func (c *Comp) Tick() bool {
	c.flushedThisTick = false

	madeProgress := c.MiddlewareHolder.Tick()

	c.rat.EndCycle()

	return madeProgress
}

// station returns the reservation station serving the operation.
func (c *Comp) station(op insn.Op) *resstation.Station {
	kind, ok := insn.RSKindOf(op)
	if !ok {
		return nil
	}

	return c.stations[kind]
}

// classify derives the reorder-buffer flags from the decoded instruction.
func classify(inst insn.Inst) rob.Flags {
	return rob.Flags{
		IsBranch: inst.Op.IsBranch(),
		IsJAL:    inst.Op == insn.OpJal,
		IsJALR:   inst.Op == insn.OpJalr,
		IsCall:   inst.IsCall,
		IsReturn: inst.IsReturn,

		IsStore:   inst.Op.IsStore(),
		IsFPStore: inst.Op == insn.OpStoreFP,

		IsCSR:    inst.Op.IsCSR(),
		IsFence:  inst.Op == insn.OpFence,
		IsFenceI: inst.Op == insn.OpFenceI,
		IsWFI:    inst.Op == insn.OpWFI,
		IsMRet:   inst.Op == insn.OpMRet,
		IsAMO:    inst.Op == insn.OpAMO,
		IsLR:     inst.Op == insn.OpLR,
		IsSC:     inst.Op == insn.OpSC,
	}
}

// flushPipeline squashes every speculative structure. Committed stores
// keep draining; the reorder buffer, stations, load queue, functional
// units, and bus adapters all empty.
func (c *Comp) flushPipeline() {
	c.rob.FlushAll()
	for _, s := range c.stations {
		s.FlushAll()
	}
	c.lq.FlushAll()
	c.sq.FlushAll()
	for _, u := range c.units {
		if u != nil {
			u.FlushAll()
		}
	}
	for _, a := range c.adapters {
		if a != nil {
			a.Flush()
		}
	}

	c.memSideResult = nil
	c.amo = amoState{}
	c.csrExecTag = -1
	c.meta = make(map[int]*instMeta)
	c.flushedThisTick = true

	// The reservation may belong to a squashed LR; a store-conditional
	// that finds it cleared simply fails, which is always permitted.
	c.reservationValid = false
}

// freeAllCheckpoints releases every checkpoint slot. Used after a flush
// that discards all in-flight branches.
func (c *Comp) freeAllCheckpoints() {
	for id := 0; id < NumCheckpoints; id++ {
		if _, ok := c.rat.CheckpointBranchTag(id); ok {
			c.rat.CheckpointFree(id)
		}
	}
}

// sendRedirect posts a redirect on the Ctrl port. The front end address
// is learned from dispatch traffic; a core that never dispatched has
// nobody to redirect. A redirect the port cannot take this cycle is held
// and retried before the next commit.
func (c *Comp) sendRedirect(reason RedirectReason, pc uint64,
	cause insn.ExcCause, trapPC uint64,
) {
	if c.frontEnd == "" {
		return
	}

	msg := RedirectMsgBuilder{}.
		WithSrc(c.ctrlPort.AsRemote()).
		WithDst(c.frontEnd).
		WithReason(reason).
		WithPC(pc).
		WithTrap(cause, trapPC).
		Build()

	c.InvokeHook(sim.HookCtx{
		Domain: c,
		Pos:    HookPosRedirect,
		Item:   msg,
	})

	if c.ctrlPort.Send(msg) != nil {
		c.pendingRedirect = msg
	}
}
