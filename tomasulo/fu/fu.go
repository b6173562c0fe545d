// Package fu implements the functional units: pure executors that compute
// results and latency pipelines that deliver them to the common data bus
// after a fixed number of cycles.
package fu

import (
	"log"

	"github.com/frostlab/tomasim/insn"
)

// Default per-class latencies in cycles. Functional placeholders, not
// timing claims about any particular implementation.
const (
	LatencyALU   = 1
	LatencyMul   = 3
	LatencyDiv   = 16
	LatencyFPAdd = 4
	LatencyFPMul = 5
	LatencyFPDiv = 20
)

// A Request is one operation entering a functional unit.
type Request struct {
	Tag int
	Op  insn.Op
	PC  uint64

	A, B, C uint64

	Imm    uint64
	UseImm bool

	Rounding insn.RoundingMode
	FPDouble bool

	PredictedTaken  bool
	PredictedTarget uint64
	BranchTarget    uint64
}

// A Result is the computed outcome of a request.
type Result struct {
	Value uint64

	Exception bool
	Cause     insn.ExcCause
	FPFlags   insn.FPFlags

	// Branch outcome, reported to the reorder buffer instead of the CDB.
	IsBranch     bool
	Taken        bool
	Target       uint64
	Mispredicted bool
}

// A Completion pairs a result with the tag it belongs to.
type Completion struct {
	Tag int
	Result
}

// An Executor is the pure computation behind a functional unit. The
// scheduling core never computes values itself.
type Executor interface {
	Execute(req Request) Result
}

type stage struct {
	valid bool
	tag   int
	res   Result
}

// A Unit is a fixed-latency pipeline wrapping an Executor. One request
// may enter per cycle; the result emerges latency cycles later and stays
// in the output stage until consumed, backing up the pipe behind it.
type Unit struct {
	kind   insn.FUKind
	exec   Executor
	stages []stage
}

// NewUnit creates a pipeline of the given latency.
func NewUnit(kind insn.FUKind, latency int, exec Executor) *Unit {
	if latency <= 0 {
		log.Panicf("functional unit latency %d must be positive", latency)
	}

	return &Unit{
		kind:   kind,
		exec:   exec,
		stages: make([]stage, latency),
	}
}

// Kind returns the unit's class.
func (u *Unit) Kind() insn.FUKind {
	return u.kind
}

// Busy returns true when the unit cannot accept a request this cycle.
func (u *Unit) Busy() bool {
	return u.stages[0].valid
}

// Start accepts a request into the first stage. Starting a busy unit is a
// scheduling bug.
func (u *Unit) Start(req Request) {
	if u.Busy() {
		log.Panicf("functional unit %d started while busy", u.kind)
	}

	u.stages[0] = stage{
		valid: true,
		tag:   req.Tag,
		res:   u.exec.Execute(req),
	}
}

// Tick advances the pipeline one cycle. Stages only move into free slots,
// so a held output stage stalls everything behind it.
func (u *Unit) Tick() {
	for i := len(u.stages) - 1; i > 0; i-- {
		if !u.stages[i].valid && u.stages[i-1].valid {
			u.stages[i] = u.stages[i-1]
			u.stages[i-1] = stage{}
		}
	}
}

// Output returns the completion sitting in the output stage, if any.
func (u *Unit) Output() (Completion, bool) {
	last := &u.stages[len(u.stages)-1]
	if !last.valid {
		return Completion{}, false
	}

	return Completion{Tag: last.tag, Result: last.res}, true
}

// ConsumeOutput frees the output stage.
func (u *Unit) ConsumeOutput() {
	u.stages[len(u.stages)-1] = stage{}
}

// FlushWhere squashes every in-flight operation the predicate selects.
func (u *Unit) FlushWhere(drop func(tag int) bool) {
	for i := range u.stages {
		if u.stages[i].valid && drop(u.stages[i].tag) {
			u.stages[i] = stage{}
		}
	}
}

// FlushAll squashes everything in flight.
func (u *Unit) FlushAll() {
	for i := range u.stages {
		u.stages[i] = stage{}
	}
}
