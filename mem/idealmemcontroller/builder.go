package idealmemcontroller

import (
	"github.com/frostlab/tomasim/mem"
	"github.com/frostlab/tomasim/sim"
)

// Builder can build ideal memory controllers.
type Builder struct {
	width      int
	latency    int
	freq       sim.Freq
	capacity   uint64
	engine     sim.Engine
	topBufSize int
	storage    *mem.Storage
}

// MakeBuilder returns a new Builder
func MakeBuilder() Builder {
	return Builder{
		latency:    100,
		freq:       1 * sim.GHz,
		capacity:   1 << 32,
		width:      1,
		topBufSize: 16,
	}
}

// WithWidth sets the number of requests the controller accepts per cycle.
func (b Builder) WithWidth(width int) Builder {
	b.width = width
	return b
}

// WithLatency sets the latency of the memory controller, in cycles.
func (b Builder) WithLatency(latency int) Builder {
	b.latency = latency
	return b
}

// WithFreq sets the frequency of the memory controller.
func (b Builder) WithFreq(freq sim.Freq) Builder {
	b.freq = freq
	return b
}

// WithNewStorage sets the capacity of the storage to create.
func (b Builder) WithNewStorage(capacity uint64) Builder {
	b.capacity = capacity
	return b
}

// WithEngine sets the engine that drives the memory controller.
func (b Builder) WithEngine(engine sim.Engine) Builder {
	b.engine = engine
	return b
}

// WithTopBufSize sets the size of the top port buffers.
func (b Builder) WithTopBufSize(topBufSize int) Builder {
	b.topBufSize = topBufSize
	return b
}

// WithStorage sets the storage that backs the memory controller.
func (b Builder) WithStorage(storage *mem.Storage) Builder {
	b.storage = storage
	return b
}

// Build builds a new Comp
func (b Builder) Build(name string) *Comp {
	c := &Comp{
		Latency: b.latency,
		width:   b.width,
	}

	c.TickingComponent = sim.NewTickingComponent(name, b.engine, b.freq, c)

	if b.storage == nil {
		c.Storage = mem.NewStorage(b.capacity)
	} else {
		c.Storage = b.storage
	}

	c.topPort = sim.NewPort(c, b.topBufSize, b.topBufSize, name+".TopPort")
	c.AddPort("Top", c.topPort)

	return c
}
