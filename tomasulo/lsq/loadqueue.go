// Package lsq implements the load queue and the store queue. Loads issue
// to memory out of order once disambiguated against older stores; stores
// write to memory in program order after commit.
package lsq

import (
	"log"

	"github.com/frostlab/tomasim/insn"
)

// A LoadEntry is one in-flight load.
type LoadEntry struct {
	valid bool

	Tag      int
	IsFP     bool
	Size     insn.MemSize
	Unsigned bool

	AddrValid bool
	Addr      uint64
	MMIO      bool

	// FLD reads memory twice, one word per phase.
	fp64Phase int

	issued    bool
	dataValid bool
	data      uint64
	forwarded bool
}

// A MemCandidate describes the load the queue wants to disambiguate and
// possibly send to memory this cycle.
type MemCandidate struct {
	Tag  int
	Addr uint64
	Size insn.MemSize
}

// A Completion is a finished load ready for the common data bus.
type Completion struct {
	Tag   int
	Value uint64
}

// LoadQueue is a circular buffer of in-flight loads. At most one memory
// read is outstanding at a time.
type LoadQueue struct {
	depth   int
	entries []LoadEntry

	head int
	tail int

	memOutstanding bool
	issuedIdx      int

	ageOf func(tag int) int
}

// NewLoadQueue creates a load queue. The ageOf function maps a tag to its
// age relative to the reorder-buffer head.
func NewLoadQueue(depth int, ageOf func(tag int) int) *LoadQueue {
	if depth <= 0 {
		log.Panic("load queue must have at least one entry")
	}

	return &LoadQueue{
		depth:   depth,
		entries: make([]LoadEntry, depth),
		ageOf:   ageOf,
	}
}

// Count returns the number of in-flight loads.
func (q *LoadQueue) Count() int {
	n := 0
	for i := range q.entries {
		if q.entries[i].valid {
			n++
		}
	}

	return n
}

// Full returns true when no load can be allocated.
func (q *LoadQueue) Full() bool {
	return q.Count() == q.depth
}

// Empty returns true when no load is in flight.
func (q *LoadQueue) Empty() bool {
	return q.Count() == 0
}

// Allocate opens an entry at the tail. The address arrives later through
// UpdateAddr. It returns false when the queue is full.
func (q *LoadQueue) Allocate(
	tag int,
	isFP bool,
	size insn.MemSize,
	unsigned bool,
) bool {
	if q.Full() {
		return false
	}

	q.entries[q.tail%q.depth] = LoadEntry{
		valid:    true,
		Tag:      tag,
		IsFP:     isFP,
		Size:     size,
		Unsigned: unsigned,
	}
	q.tail = (q.tail + 1) % (2 * q.depth)

	return true
}

// UpdateAddr records the computed address of the load under the tag.
func (q *LoadQueue) UpdateAddr(tag int, addr uint64, mmio bool) {
	for i := range q.entries {
		e := &q.entries[i]
		if e.valid && !e.AddrValid && e.Tag == tag {
			e.AddrValid = true
			e.Addr = addr
			e.MMIO = mmio
		}
	}
}

// issueScan walks from head to tail and picks the oldest completed load
// for the CDB and the oldest address-ready, not-yet-issued load for the
// memory path.
func (q *LoadQueue) issueScan() (cdbIdx, memIdx int) {
	cdbIdx = -1
	memIdx = -1

	for i := 0; i < q.depth; i++ {
		idx := (q.head + i) % q.depth
		e := &q.entries[idx]
		if !e.valid {
			continue
		}

		if cdbIdx < 0 && e.dataValid {
			cdbIdx = idx
		}
		if memIdx < 0 && e.AddrValid && !e.issued && !e.dataValid {
			memIdx = idx
		}
	}

	return cdbIdx, memIdx
}

// Candidate returns the load to disambiguate this cycle. There is none
// while a memory read is outstanding, and an MMIO load only becomes a
// candidate once it is the oldest in-flight instruction.
func (q *LoadQueue) Candidate(robHeadTag int) (MemCandidate, bool) {
	_, memIdx := q.issueScan()
	if memIdx < 0 || q.memOutstanding {
		return MemCandidate{}, false
	}

	e := &q.entries[memIdx]
	if e.MMIO && e.Tag != robHeadTag {
		return MemCandidate{}, false
	}

	return MemCandidate{Tag: e.Tag, Addr: e.Addr, Size: e.Size}, true
}

// ApplyForward completes the current candidate with bytes forwarded from
// the store queue, bypassing memory entirely. The data carries the load's
// bytes, aligned to bit 0 and not yet extended.
func (q *LoadQueue) ApplyForward(data uint64) {
	_, memIdx := q.issueScan()
	if memIdx < 0 {
		return
	}

	e := &q.entries[memIdx]
	if e.IsFP && e.Size == insn.MemSizeDouble {
		e.data = data
	} else {
		e.data = extend(data, e.Size, e.Unsigned)
	}
	e.dataValid = true
	e.forwarded = true
}

// IssueToMemory sends the current candidate to memory when every older
// store address is known and no older store overlaps it. The returned
// address is word aligned; FLD issues its second word on the next pass.
func (q *LoadQueue) IssueToMemory(allOlderKnown, overlap bool) (uint64, bool) {
	_, memIdx := q.issueScan()
	if memIdx < 0 || q.memOutstanding {
		return 0, false
	}
	if !allOlderKnown || overlap {
		return 0, false
	}

	e := &q.entries[memIdx]
	addr := e.Addr
	if e.IsFP && e.Size == insn.MemSizeDouble && e.fp64Phase == 1 {
		addr += 4
	}

	e.issued = true
	q.memOutstanding = true
	q.issuedIdx = memIdx

	return addr &^ 3, true
}

// MemResponse consumes the outstanding read's word. A response for an
// entry that a flush invalidated is drained here, not cancelled earlier.
func (q *LoadQueue) MemResponse(word uint32) {
	if !q.memOutstanding {
		return
	}
	q.memOutstanding = false

	e := &q.entries[q.issuedIdx]
	if !e.valid {
		return
	}

	switch {
	case e.IsFP && e.Size == insn.MemSizeDouble && e.fp64Phase == 0:
		e.data = uint64(word)
		e.fp64Phase = 1
		e.issued = false

	case e.IsFP && e.Size == insn.MemSizeDouble:
		e.data = e.data&0xFFFFFFFF | uint64(word)<<32
		e.dataValid = true

	default:
		e.data = loadUnit(e.Size, e.Unsigned, e.Addr, word)
		e.dataValid = true
	}
}

// PeekComplete returns the oldest finished load for broadcast. FLW results
// are NaN-boxed; integer results are extended to 64 bits as stored.
func (q *LoadQueue) PeekComplete() (Completion, bool) {
	cdbIdx, _ := q.issueScan()
	if cdbIdx < 0 {
		return Completion{}, false
	}

	e := &q.entries[cdbIdx]
	value := e.data
	if e.IsFP && e.Size != insn.MemSizeDouble {
		value = 0xFFFFFFFF00000000 | e.data&0xFFFFFFFF
	}

	return Completion{Tag: e.Tag, Value: value}, true
}

// ConsumeComplete frees the entry returned by PeekComplete and advances
// the head past freed slots.
func (q *LoadQueue) ConsumeComplete() {
	cdbIdx, _ := q.issueScan()
	if cdbIdx < 0 {
		return
	}
	q.entries[cdbIdx].valid = false

	for q.head != q.tail && !q.entries[q.head%q.depth].valid {
		q.head = (q.head + 1) % (2 * q.depth)
	}
}

// FlushYounger invalidates every load younger than the tag and retracts
// the tail. An outstanding memory read is left to complete; MemResponse
// discards its data when the entry is gone.
func (q *LoadQueue) FlushYounger(tag int) {
	flushAge := q.ageOf(tag)

	for i := range q.entries {
		e := &q.entries[i]
		if e.valid && q.ageOf(e.Tag) > flushAge {
			e.valid = false
		}
	}

	for q.tail != q.head && !q.entries[(q.tail-1+2*q.depth)%q.depth].valid {
		q.tail = (q.tail - 1 + 2*q.depth) % (2 * q.depth)
	}
}

// FlushAll empties the queue. An outstanding read drains on arrival; the
// caller's response routing discards it.
func (q *LoadQueue) FlushAll() {
	for i := range q.entries {
		q.entries[i].valid = false
	}
	q.head = 0
	q.tail = 0
	q.memOutstanding = false
}

// loadUnit extracts the addressed bytes from the aligned memory word and
// extends them.
func loadUnit(size insn.MemSize, unsigned bool, addr uint64, word uint32) uint64 {
	switch size {
	case insn.MemSizeByte:
		b := word >> ((addr & 3) * 8) & 0xFF
		return extend(uint64(b), size, unsigned)
	case insn.MemSizeHalf:
		h := word >> ((addr >> 1 & 1) * 16) & 0xFFFF
		return extend(uint64(h), size, unsigned)
	default:
		return uint64(word)
	}
}

// extend sign- or zero-extends the low bytes of the value to 32 bits.
func extend(v uint64, size insn.MemSize, unsigned bool) uint64 {
	switch size {
	case insn.MemSizeByte:
		v &= 0xFF
		if !unsigned && v&0x80 != 0 {
			v |= 0xFFFFFF00
		}
	case insn.MemSizeHalf:
		v &= 0xFFFF
		if !unsigned && v&0x8000 != 0 {
			v |= 0xFFFF0000
		}
	default:
		v &= 0xFFFFFFFF
	}

	return v
}
