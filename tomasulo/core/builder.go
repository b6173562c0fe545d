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

// NumCheckpoints is the number of renaming checkpoints, bounding the
// branches in flight at once.
const NumCheckpoints = 4

// Builder can build scheduling cores.
type Builder struct {
	engine  sim.Engine
	freq    sim.Freq
	memCtrl sim.RemotePort

	robDepth   int
	lqDepth    int
	sqDepth    int
	portBufCap int

	stationDepths [insn.NumRSKinds]int
	csrPolicies   map[uint32]CSRPolicy
}

// MakeBuilder returns a new Builder with default structure sizes.
func MakeBuilder() Builder {
	return Builder{
		freq:       1 * sim.GHz,
		robDepth:   32,
		lqDepth:    8,
		sqDepth:    8,
		portBufCap: 4,
		stationDepths: [insn.NumRSKinds]int{
			insn.RSInt:    8,
			insn.RSMulDiv: 4,
			insn.RSMem:    8,
			insn.RSFPAdd:  6,
			insn.RSFPMul:  4,
			insn.RSFPDiv:  2,
		},
	}
}

// WithEngine sets the engine that drives the core.
func (b Builder) WithEngine(engine sim.Engine) Builder {
	b.engine = engine
	return b
}

// WithFreq sets the frequency of the core.
func (b Builder) WithFreq(freq sim.Freq) Builder {
	b.freq = freq
	return b
}

// WithMemCtrl sets the memory controller port the core sends its loads
// and stores to.
func (b Builder) WithMemCtrl(memCtrl sim.RemotePort) Builder {
	b.memCtrl = memCtrl
	return b
}

// WithROBDepth sets the reorder buffer depth. It must be a power of two.
func (b Builder) WithROBDepth(depth int) Builder {
	b.robDepth = depth
	return b
}

// WithLoadQueueDepth sets the load queue depth.
func (b Builder) WithLoadQueueDepth(depth int) Builder {
	b.lqDepth = depth
	return b
}

// WithStoreQueueDepth sets the store queue depth.
func (b Builder) WithStoreQueueDepth(depth int) Builder {
	b.sqDepth = depth
	return b
}

// WithStationDepth sets the number of slots in one reservation station.
func (b Builder) WithStationDepth(kind insn.RSKind, depth int) Builder {
	b.stationDepths[kind] = depth
	return b
}

// WithCSRPolicy overrides the admission policy for one CSR address.
func (b Builder) WithCSRPolicy(addr uint32, p CSRPolicy) Builder {
	if b.csrPolicies == nil {
		b.csrPolicies = make(map[uint32]CSRPolicy)
	}
	b.csrPolicies[addr] = p

	return b
}

// Build builds a new core.
func (b Builder) Build(name string) *Comp {
	c := &Comp{
		csrExecTag: -1,
		meta:       make(map[int]*instMeta),
		memCtrl:    b.memCtrl,
	}
	c.TickingComponent = sim.NewTickingComponent(name, b.engine, b.freq, c)

	c.dispatchPort = sim.NewPort(c, b.portBufCap, b.portBufCap,
		name+".Dispatch")
	c.ctrlPort = sim.NewPort(c, b.portBufCap, b.portBufCap, name+".Ctrl")
	c.memPort = sim.NewPort(c, b.portBufCap, b.portBufCap, name+".Mem")
	c.AddPort("Dispatch", c.dispatchPort)
	c.AddPort("Ctrl", c.ctrlPort)
	c.AddPort("Mem", c.memPort)

	c.rob = rob.New(b.robDepth)
	c.rat = rat.New(NumCheckpoints)
	ageOf := c.rob.AgeOf

	stationNames := map[insn.RSKind]string{
		insn.RSInt:    "Int",
		insn.RSMulDiv: "MulDiv",
		insn.RSMem:    "Mem",
		insn.RSFPAdd:  "FPAdd",
		insn.RSFPMul:  "FPMul",
		insn.RSFPDiv:  "FPDiv",
	}
	for kind := insn.RSKind(0); kind < insn.NumRSKinds; kind++ {
		c.stations[kind] = resstation.New(
			name+".RS."+stationNames[kind], b.stationDepths[kind], ageOf)
	}

	c.lq = lsq.NewLoadQueue(b.lqDepth, ageOf)
	c.sq = lsq.NewStoreQueue(b.sqDepth, ageOf)

	c.units[insn.FUALU] = fu.NewUnit(insn.FUALU, fu.LatencyALU, fu.ALU{})
	c.units[insn.FUMul] = fu.NewUnit(insn.FUMul, fu.LatencyMul, fu.MulDiv{})
	c.units[insn.FUDiv] = fu.NewUnit(insn.FUDiv, fu.LatencyDiv, fu.MulDiv{})
	c.units[insn.FUFPAdd] = fu.NewUnit(
		insn.FUFPAdd, fu.LatencyFPAdd, fu.FPAdd{})
	c.units[insn.FUFPMul] = fu.NewUnit(
		insn.FUFPMul, fu.LatencyFPMul, fu.FPMul{})
	c.units[insn.FUFPDiv] = fu.NewUnit(
		insn.FUFPDiv, fu.LatencyFPDiv, fu.FPDiv{})

	for kind := insn.FUKind(0); kind < insn.NumFUKinds; kind++ {
		c.adapters[kind] = cdb.NewAdapter()
	}

	c.intFile = &regfile.IntFile{}
	c.fpFile = &regfile.FPFile{}
	c.fcsr = &regfile.FCSR{}
	c.csrs = NewCSRFile()
	for addr, p := range b.csrPolicies {
		c.csrs.SetPolicy(addr, p)
	}
	c.ras = NewReturnAddressStack(16)

	c.AddMiddleware(&commitMiddleware{Comp: c})
	c.AddMiddleware(&cdbMiddleware{Comp: c})
	c.AddMiddleware(&issueMiddleware{Comp: c})
	c.AddMiddleware(&lsqMiddleware{Comp: c})
	c.AddMiddleware(&dispatchMiddleware{Comp: c})

	return c
}
