// Package frontend provides a scripted instruction feeder that stands in
// for a fetch and decode front end. It streams a pre-decoded program into
// the scheduling core, one instruction per cycle, and follows the core's
// redirects.
package frontend

import (
	"github.com/frostlab/tomasim/insn"
	"github.com/frostlab/tomasim/sim"
	"github.com/frostlab/tomasim/tomasulo/core"
)

// Comp is the feeder component. Instructions leave on the ToCore port;
// redirect messages come back on the same port.
type Comp struct {
	*sim.TickingComponent

	toCore   sim.Port
	corePort sim.RemotePort

	program map[uint64]insn.Inst
	pc      uint64
	stalled bool

	dispatched int
	redirects  []*core.RedirectMsg
}

// ToCore returns the port the instruction stream leaves on.
func (c *Comp) ToCore() sim.Port {
	return c.toCore
}

// Dispatched returns the number of instructions sent so far.
func (c *Comp) Dispatched() int {
	return c.dispatched
}

// Redirects returns the redirect messages received so far.
func (c *Comp) Redirects() []*core.RedirectMsg {
	return c.redirects
}

// Tick processes redirects and feeds the next instruction.
func (c *Comp) Tick() bool {
	madeProgress := c.processRedirects()
	madeProgress = c.feed() || madeProgress

	return madeProgress
}

func (c *Comp) processRedirects() bool {
	madeProgress := false

	for {
		item := c.toCore.PeekIncoming()
		if item == nil {
			return madeProgress
		}

		if msg, ok := item.(*core.RedirectMsg); ok {
			c.pc = msg.PC
			c.stalled = false
			c.redirects = append(c.redirects, msg)
		}

		c.toCore.RetrieveIncoming()
		madeProgress = true
	}
}

// feed sends the instruction at the current PC. The stream stalls when
// the program has no instruction there; only a redirect restarts it.
func (c *Comp) feed() bool {
	if c.stalled {
		return false
	}

	inst, ok := c.program[c.pc]
	if !ok {
		c.stalled = true
		return false
	}

	msg := core.DispatchMsgBuilder{}.
		WithSrc(c.toCore.AsRemote()).
		WithDst(c.corePort).
		WithInst(inst).
		Build()

	if c.toCore.Send(msg) != nil {
		return false
	}

	c.dispatched++
	c.pc = c.nextPC(inst)

	return true
}

// nextPC follows the front end's own prediction. The core corrects any
// wrong guess with a redirect at commit.
func (c *Comp) nextPC(inst insn.Inst) uint64 {
	if inst.Op == insn.OpJal {
		return inst.BranchTarget
	}

	if inst.PredictedTaken {
		return inst.PredictedTarget
	}

	return inst.PC + 4
}
