package lsq

import (
	"log"

	"github.com/frostlab/tomasim/insn"
)

// A StoreEntry is one in-flight store. Address and data arrive
// independently; the entry leaves only after its write reaches memory.
type StoreEntry struct {
	valid bool

	Tag  int
	IsFP bool
	Size insn.MemSize

	AddrValid bool
	Addr      uint64

	DataValid bool
	Data      uint64

	Committed bool
}

// A ForwardResult answers a load's disambiguation query. Match means an
// older store overlaps the load's bytes; CanForward means one such store
// fully covers them and its data is available.
type ForwardResult struct {
	Match      bool
	CanForward bool
	Data       uint64
}

// A WriteRequest is a committed store ready to go to memory.
type WriteRequest struct {
	Tag  int
	Addr uint64
	Size insn.MemSize
	Data uint64
}

// StoreQueue is a circular buffer of in-flight stores. Writes drain from
// the head strictly in program order, and only after commit.
type StoreQueue struct {
	depth   int
	entries []StoreEntry

	head int
	tail int

	ageOf func(tag int) int
}

// NewStoreQueue creates a store queue. The ageOf function maps a tag to
// its age relative to the reorder-buffer head.
func NewStoreQueue(depth int, ageOf func(tag int) int) *StoreQueue {
	if depth <= 0 {
		log.Panic("store queue must have at least one entry")
	}

	return &StoreQueue{
		depth:   depth,
		entries: make([]StoreEntry, depth),
		ageOf:   ageOf,
	}
}

// Count returns the number of in-flight stores.
func (q *StoreQueue) Count() int {
	n := 0
	for i := range q.entries {
		if q.entries[i].valid {
			n++
		}
	}

	return n
}

// Full returns true when no store can be allocated.
func (q *StoreQueue) Full() bool {
	return q.Count() == q.depth
}

// Empty returns true when no store is in flight.
func (q *StoreQueue) Empty() bool {
	return q.Count() == 0
}

// Drained returns true when no committed store is still waiting to reach
// memory. This is the gate FENCE-class commits wait on.
func (q *StoreQueue) Drained() bool {
	for i := range q.entries {
		if q.entries[i].valid && q.entries[i].Committed {
			return false
		}
	}

	return true
}

// Allocate opens an entry at the tail. It returns false when the queue is
// full.
func (q *StoreQueue) Allocate(tag int, isFP bool, size insn.MemSize) bool {
	if q.Full() {
		return false
	}

	q.entries[q.tail%q.depth] = StoreEntry{
		valid: true,
		Tag:   tag,
		IsFP:  isFP,
		Size:  size,
	}
	q.tail = (q.tail + 1) % (2 * q.depth)

	return true
}

// UpdateAddr records the computed address of the store under the tag.
func (q *StoreQueue) UpdateAddr(tag int, addr uint64) {
	for i := range q.entries {
		e := &q.entries[i]
		if e.valid && !e.AddrValid && e.Tag == tag {
			e.AddrValid = true
			e.Addr = addr
		}
	}
}

// UpdateData records the value the store will write.
func (q *StoreQueue) UpdateData(tag int, data uint64) {
	for i := range q.entries {
		e := &q.entries[i]
		if e.valid && !e.DataValid && e.Tag == tag {
			e.DataValid = true
			e.Data = data
		}
	}
}

// MarkCommitted records that the store retired from the reorder buffer.
// From here on it must reach memory; no flush may touch it.
func (q *StoreQueue) MarkCommitted(tag int) {
	for i := range q.entries {
		e := &q.entries[i]
		if e.valid && e.Tag == tag {
			if !e.AddrValid || !e.DataValid {
				log.Panicf("store %d committed without address or data", tag)
			}
			e.Committed = true
			return
		}
	}

	log.Panicf("store queue does not hold tag %d", tag)
}

// olderThan reports whether the store precedes an instruction of the
// given reorder-buffer age. A committed store retired already, so it is
// older than anything still in flight; its tag must not be aged, since
// the reorder buffer may have reused it.
func (q *StoreQueue) olderThan(e *StoreEntry, age int) bool {
	if e.Committed {
		return true
	}

	return q.ageOf(e.Tag) < age
}

// OlderStoresKnown reports whether every store older than the given age
// has a known address. Loads must not pass a store whose address could
// still alias theirs.
func (q *StoreQueue) OlderStoresKnown(age int) bool {
	for i := range q.entries {
		e := &q.entries[i]
		if e.valid && !e.AddrValid && q.olderThan(e, age) {
			return false
		}
	}

	return true
}

// Forward answers a load's disambiguation query against every older store
// with a known address. The walk runs from the head in program order, so
// the youngest overlapping store decides: full coverage with data in hand
// forwards, anything less blocks the load until the store drains.
func (q *StoreQueue) Forward(addr uint64, size insn.MemSize, age int) ForwardResult {
	loadLo := addr
	loadHi := addr + size.NumBytes()

	res := ForwardResult{}

	for k := 0; k < q.depth; k++ {
		e := &q.entries[(q.head+k)%q.depth]
		if !e.valid || !e.AddrValid || !q.olderThan(e, age) {
			continue
		}

		storeLo := e.Addr
		storeHi := e.Addr + e.Size.NumBytes()
		if loadHi <= storeLo || storeHi <= loadLo {
			continue
		}

		res.Match = true

		covers := storeLo <= loadLo && loadHi <= storeHi
		if covers && e.DataValid {
			res.CanForward = true
			res.Data = e.Data >> ((loadLo - storeLo) * 8) & sizeMask(size)
		} else {
			res.CanForward = false
		}
	}

	return res
}

// PeekWrite returns the head store if it is committed and complete.
func (q *StoreQueue) PeekWrite() (WriteRequest, bool) {
	if q.Empty() {
		return WriteRequest{}, false
	}

	e := &q.entries[q.head%q.depth]
	if !e.valid || !e.Committed {
		return WriteRequest{}, false
	}

	return WriteRequest{
		Tag:  e.Tag,
		Addr: e.Addr,
		Size: e.Size,
		Data: e.Data,
	}, true
}

// ConsumeWrite frees the head entry once its write is handed to the
// memory interface.
func (q *StoreQueue) ConsumeWrite() {
	e := &q.entries[q.head%q.depth]
	if !e.valid || !e.Committed {
		log.Panic("consuming a store that is not ready to write")
	}

	e.valid = false
	for q.head != q.tail && !q.entries[q.head%q.depth].valid {
		q.head = (q.head + 1) % (2 * q.depth)
	}
}

// Cancel drops an uncommitted store, address and data notwithstanding.
// A failed store-conditional leaves the queue this way.
func (q *StoreQueue) Cancel(tag int) {
	for i := range q.entries {
		e := &q.entries[i]
		if e.valid && e.Tag == tag {
			if e.Committed {
				log.Panicf("cancelling committed store %d", tag)
			}
			e.valid = false
			q.retractTail()
			for q.head != q.tail && !q.entries[q.head%q.depth].valid {
				q.head = (q.head + 1) % (2 * q.depth)
			}
			return
		}
	}
}

// FlushYounger invalidates every uncommitted store younger than the tag
// and retracts the tail. Committed stores are architectural state and
// always survive.
func (q *StoreQueue) FlushYounger(tag int) {
	flushAge := q.ageOf(tag)

	for i := range q.entries {
		e := &q.entries[i]
		if e.valid && !e.Committed && q.ageOf(e.Tag) > flushAge {
			e.valid = false
		}
	}

	q.retractTail()
}

// FlushAll drops every uncommitted store. Committed stores still drain to
// memory; their effects are already architectural.
func (q *StoreQueue) FlushAll() {
	for i := range q.entries {
		if q.entries[i].valid && !q.entries[i].Committed {
			q.entries[i].valid = false
		}
	}

	q.retractTail()
}

func (q *StoreQueue) retractTail() {
	for q.tail != q.head && !q.entries[(q.tail-1+2*q.depth)%q.depth].valid {
		q.tail = (q.tail - 1 + 2*q.depth) % (2 * q.depth)
	}
}

func sizeMask(size insn.MemSize) uint64 {
	n := size.NumBytes()
	if n >= 8 {
		return ^uint64(0)
	}

	return 1<<(n*8) - 1
}
