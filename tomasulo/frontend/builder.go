package frontend

import (
	"github.com/frostlab/tomasim/insn"
	"github.com/frostlab/tomasim/sim"
)

// Builder can build feeder components.
type Builder struct {
	engine   sim.Engine
	freq     sim.Freq
	corePort sim.RemotePort
	program  map[uint64]insn.Inst
	entryPC  uint64
}

// MakeBuilder creates a Builder with default parameters.
func MakeBuilder() Builder {
	return Builder{
		freq: 1 * sim.GHz,
	}
}

// WithEngine sets the engine that drives the feeder.
func (b Builder) WithEngine(engine sim.Engine) Builder {
	b.engine = engine
	return b
}

// WithFreq sets the frequency the feeder works at.
func (b Builder) WithFreq(freq sim.Freq) Builder {
	b.freq = freq
	return b
}

// WithCorePort sets the dispatch port of the core to feed.
func (b Builder) WithCorePort(port sim.RemotePort) Builder {
	b.corePort = port
	return b
}

// WithProgram sets the instructions to stream, keyed by PC, and the PC
// to start from.
func (b Builder) WithProgram(program []insn.Inst, entryPC uint64) Builder {
	b.program = make(map[uint64]insn.Inst, len(program))
	for _, inst := range program {
		b.program[inst.PC] = inst
	}
	b.entryPC = entryPC

	return b
}

// Build creates a feeder component with the given name.
func (b Builder) Build(name string) *Comp {
	c := &Comp{
		corePort: b.corePort,
		program:  b.program,
		pc:       b.entryPC,
	}

	c.TickingComponent = sim.NewTickingComponent(name, b.engine, b.freq, c)

	c.toCore = sim.NewPort(c, 4, 4, name+".ToCore")
	c.AddPort("ToCore", c.toCore)

	return c
}
