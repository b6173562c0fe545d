// Package resstation implements a parameterized reservation station. One
// instance sits in front of each function-unit class; entries wait here
// until every source operand is available, then issue oldest-first.
package resstation

import (
	"log"

	"github.com/frostlab/tomasim/insn"
)

// A Source is one operand slot. When Ready is false the value is produced
// by the in-flight instruction under Tag and arrives over the common data
// bus.
type Source struct {
	Ready bool
	Tag   int
	Value uint64
}

// An Entry is one waiting instruction. Src holds up to three operands;
// unused slots are dispatched ready with a zero value.
type Entry struct {
	Tag int
	Op  insn.Op
	PC  uint64

	Src [3]Source

	Imm    uint64
	UseImm bool

	Rounding insn.RoundingMode
	FPDouble bool

	PredictedTaken  bool
	PredictedTarget uint64
	BranchTarget    uint64

	MemSize     insn.MemSize
	MemUnsigned bool
	MemIsFP     bool
	MemIsStore  bool
	MemMMIO     bool

	CSRAddr uint32
	CSRImm  uint32
}

func (e *Entry) ready() bool {
	return e.Src[0].Ready && e.Src[1].Ready && e.Src[2].Ready
}

// A Station holds entries for one function-unit class. Issue order among
// ready entries follows program order, which the station recovers from the
// reorder-buffer age of each tag.
type Station struct {
	name    string
	valid   []bool
	entries []Entry
	ageOf   func(tag int) int
}

// New creates a station with the given number of slots. The ageOf function
// maps a tag to its age relative to the reorder-buffer head.
func New(name string, depth int, ageOf func(tag int) int) *Station {
	if depth <= 0 {
		log.Panicf("station %s must have at least one slot", name)
	}

	return &Station{
		name:    name,
		valid:   make([]bool, depth),
		entries: make([]Entry, depth),
		ageOf:   ageOf,
	}
}

// Name returns the station name.
func (s *Station) Name() string {
	return s.name
}

// Count returns the number of occupied slots.
func (s *Station) Count() int {
	n := 0
	for _, v := range s.valid {
		if v {
			n++
		}
	}

	return n
}

// Full returns true when no slot is free.
func (s *Station) Full() bool {
	for _, v := range s.valid {
		if !v {
			return false
		}
	}

	return true
}

// Dispatch places an entry into a free slot. It returns false when the
// station is full; the caller stalls and retries.
func (s *Station) Dispatch(e Entry) bool {
	for i, v := range s.valid {
		if v {
			continue
		}

		s.valid[i] = true
		s.entries[i] = e

		return true
	}

	return false
}

// Snoop wakes every source waiting for the tag. Broadcast and dispatch in
// the same cycle both reach a new entry: dispatch happens after the
// broadcast, so the core applies the bypass before calling Dispatch.
func (s *Station) Snoop(tag int, value uint64) {
	for i := range s.entries {
		if !s.valid[i] {
			continue
		}

		e := &s.entries[i]
		for j := range e.Src {
			src := &e.Src[j]
			if !src.Ready && src.Tag == tag {
				src.Ready = true
				src.Value = value
			}
		}
	}
}

// PeekIssue returns the oldest entry whose operands are all available.
func (s *Station) PeekIssue() (Entry, bool) {
	best := -1
	bestAge := 0

	for i := range s.entries {
		if !s.valid[i] || !s.entries[i].ready() {
			continue
		}

		age := s.ageOf(s.entries[i].Tag)
		if best < 0 || age < bestAge {
			best = i
			bestAge = age
		}
	}

	if best < 0 {
		return Entry{}, false
	}

	return s.entries[best], true
}

// ConsumeIssue frees the slot holding the tag. Consuming a tag that is not
// in the station is a control-logic bug.
func (s *Station) ConsumeIssue(tag int) {
	for i := range s.entries {
		if s.valid[i] && s.entries[i].Tag == tag {
			s.valid[i] = false
			return
		}
	}

	log.Panicf("station %s does not hold tag %d", s.name, tag)
}

// FlushYounger drops every entry younger than the given age. The entry at
// the age itself survives; on a branch flush that is the branch.
func (s *Station) FlushYounger(age int) {
	for i := range s.entries {
		if s.valid[i] && s.ageOf(s.entries[i].Tag) > age {
			s.valid[i] = false
		}
	}
}

// FlushAll empties the station.
func (s *Station) FlushAll() {
	for i := range s.valid {
		s.valid[i] = false
	}
}
