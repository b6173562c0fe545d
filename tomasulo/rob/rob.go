// Package rob implements the reorder buffer, the ordering backbone of the
// scheduling core. Entries are allocated at the tail in program order and
// committed from the head in program order. Every other structure refers to
// an entry by its tag, the physical index into the buffer.
package rob

import (
	"log"

	"github.com/frostlab/tomasim/insn"
)

// Flags classifies an entry for commit-time handling.
type Flags struct {
	IsBranch bool
	IsJAL    bool
	IsJALR   bool
	IsCall   bool
	IsReturn bool

	IsStore   bool
	IsFPStore bool

	IsCSR    bool
	IsFence  bool
	IsFenceI bool
	IsWFI    bool
	IsMRet   bool
	IsAMO    bool
	IsLR     bool
	IsSC     bool
}

// serializing reports whether the entry must wait for the store queue to
// drain before its side effect may happen.
func (f Flags) waitsForSQDrain() bool {
	return f.IsFence || f.IsFenceI || f.IsAMO || f.IsLR || f.IsSC
}

// An Entry is one in-flight instruction.
type Entry struct {
	Valid bool
	Done  bool

	PC        uint64
	DestRF    insn.RegFile
	Dest      int
	DestValid bool
	Value     uint64

	Exception bool
	Cause     insn.ExcCause
	FPFlags   insn.FPFlags

	Flags Flags

	PredictedTaken  bool
	PredictedTarget uint64
	BranchTarget    uint64
	ActualTaken     bool
	Mispredicted    bool

	HasCheckpoint bool
	CheckpointID  int
}

// AllocReq carries everything the buffer needs to open an entry.
type AllocReq struct {
	PC              uint64
	DestRF          insn.RegFile
	Dest            int
	DestValid       bool
	Flags           Flags
	PredictedTaken  bool
	PredictedTarget uint64
	BranchTarget    uint64
}

// SerialState is the state of the commit-side serialization machine.
type SerialState int

// Serialization states. The machine leaves Idle only when the head entry
// belongs to a serializing class or carries an exception.
const (
	SerialIdle SerialState = iota
	SerialWaitSQ
	SerialCSRExec
	SerialMRetExec
	SerialWFIWait
	SerialTrapWait
)

// Gates are the external conditions that release a serialized commit.
type Gates struct {
	SQEmpty          bool
	CSRDone          bool
	MRetDone         bool
	TrapTaken        bool
	InterruptPending bool
}

// A Result describes one committed entry.
type Result struct {
	Tag   int
	Entry Entry

	// Mispredicted branch: the front end must redirect to RedirectPC.
	Mispredicted bool
	RedirectPC   uint64

	// Trap: the entry's effects are discarded and control transfers to
	// the trap handler. Cause and PC are in Entry.
	Trap bool
}

// ROB is a fixed-depth circular reorder buffer. Head and tail pointers run
// modulo 2*depth so that a full buffer is distinguishable from an empty one.
type ROB struct {
	depth   int
	mask    int
	entries []Entry

	head int
	tail int

	serial SerialState
}

// New creates a reorder buffer. The depth must be a power of two.
func New(depth int) *ROB {
	if depth <= 0 || depth&(depth-1) != 0 {
		log.Panicf("reorder buffer depth %d is not a power of two", depth)
	}

	return &ROB{
		depth:   depth,
		mask:    depth - 1,
		entries: make([]Entry, depth),
	}
}

// Depth returns the number of entries the buffer can hold.
func (r *ROB) Depth() int {
	return r.depth
}

// Count returns the number of in-flight entries.
func (r *ROB) Count() int {
	return (r.tail - r.head) & (2*r.depth - 1)
}

// Full returns true when no entry can be allocated.
func (r *ROB) Full() bool {
	return (r.tail^r.head) == r.depth
}

// Empty returns true when no instruction is in flight.
func (r *ROB) Empty() bool {
	return r.head == r.tail
}

// HeadTag returns the tag of the oldest in-flight entry.
func (r *ROB) HeadTag() int {
	return r.head & r.mask
}

// SerialStateNow returns the current serialization state.
func (r *ROB) SerialStateNow() SerialState {
	return r.serial
}

// AgeOf returns the age of the tag relative to the head. Age 0 is the
// oldest in-flight instruction. Ages stay correct across slot reuse
// because they are computed from the head, never from the raw index.
func (r *ROB) AgeOf(tag int) int {
	return (tag - (r.head & r.mask)) & r.mask
}

// Allocate opens an entry at the tail and returns its tag. It returns
// ok=false when the buffer is full; the caller stalls and retries.
func (r *ROB) Allocate(req AllocReq) (int, bool) {
	if r.Full() {
		return 0, false
	}

	tag := r.tail & r.mask
	e := &r.entries[tag]

	*e = Entry{
		Valid:           true,
		PC:              req.PC,
		DestRF:          req.DestRF,
		Dest:            req.Dest,
		DestValid:       req.DestValid,
		Flags:           req.Flags,
		PredictedTaken:  req.PredictedTaken,
		PredictedTarget: req.PredictedTarget,
		BranchTarget:    req.BranchTarget,
	}

	// JAL needs no execution: the link value is known here. JALR also
	// knows its link value but still waits for target resolution.
	if req.Flags.IsJAL || req.Flags.IsJALR {
		e.Value = req.PC + 4
	}
	if req.Flags.IsJAL {
		e.Done = true
	}

	// Commit-gated classes complete at allocation; their side effects
	// happen when they reach the head.
	if req.Flags.IsWFI || req.Flags.IsFence || req.Flags.IsFenceI ||
		req.Flags.IsMRet {
		e.Done = true
	}

	r.tail = (r.tail + 1) & (2*r.depth - 1)

	return tag, true
}

// Entry returns the entry stored under the tag.
func (r *ROB) Entry(tag int) *Entry {
	return &r.entries[tag]
}

// WriteResult records a CDB broadcast. A result never overwrites an entry
// that is already done (JAL and commit-gated classes complete at
// allocation).
func (r *ROB) WriteResult(
	tag int,
	value uint64,
	exception bool,
	cause insn.ExcCause,
	fpFlags insn.FPFlags,
) {
	e := &r.entries[tag]
	if !e.Valid || e.Done {
		return
	}

	// JALR keeps the link value computed at allocation.
	if !e.Flags.IsJALR {
		e.Value = value
	}
	e.Exception = exception
	e.Cause = cause
	e.FPFlags = fpFlags
	e.Done = true
}

// ResolveBranch records the actual outcome of a branch or JALR. It is
// mutually exclusive with a CDB write to the same tag in the same cycle.
func (r *ROB) ResolveBranch(tag int, taken bool, target uint64,
	mispredicted bool,
) {
	e := &r.entries[tag]
	if !e.Valid {
		return
	}

	e.ActualTaken = taken
	e.BranchTarget = target
	e.Mispredicted = mispredicted

	if !e.Flags.IsJAL {
		e.Done = true
	}
}

// SetCheckpoint associates a renaming checkpoint with a branch entry.
func (r *ROB) SetCheckpoint(tag, checkpointID int) {
	e := &r.entries[tag]
	e.HasCheckpoint = true
	e.CheckpointID = checkpointID
}

// PeekCommit returns the head entry if it is ready to leave the buffer
// this cycle, ignoring serialization gates.
func (r *ROB) PeekCommit() (int, *Entry, bool) {
	if r.Empty() {
		return 0, nil, false
	}

	tag := r.head & r.mask
	e := &r.entries[tag]
	if !e.Valid || !e.Done {
		return 0, nil, false
	}

	return tag, e, true
}

// Commit retires at most one entry from the head. Serializing classes and
// exceptions hold the head until the corresponding gate opens; the
// serialization state is visible through SerialStateNow so the surrounding
// control can drive the gates.
func (r *ROB) Commit(g Gates) (Result, bool) {
	tag, e, ok := r.PeekCommit()
	if !ok {
		return Result{}, false
	}

	if stalled := r.updateSerialState(e, g); stalled {
		return Result{}, false
	}

	res := Result{Tag: tag, Entry: *e}

	if e.Exception {
		res.Trap = true
	} else if e.Mispredicted {
		res.Mispredicted = true
		if e.ActualTaken {
			res.RedirectPC = e.BranchTarget
		} else {
			res.RedirectPC = e.PC + 4
		}
	} else if e.Flags.IsFenceI {
		// FENCE.I discards everything fetched ahead of it.
		res.Mispredicted = true
		res.RedirectPC = e.PC + 4
	}

	e.Valid = false
	r.head = (r.head + 1) & (2*r.depth - 1)
	r.serial = SerialIdle

	return res, true
}

// updateSerialState advances the serialization machine for the head entry
// and reports whether commit must hold this cycle.
func (r *ROB) updateSerialState(e *Entry, g Gates) bool {
	switch {
	case e.Exception:
		r.serial = SerialTrapWait
		return !g.TrapTaken

	case e.Flags.IsWFI:
		r.serial = SerialWFIWait
		return !g.InterruptPending

	case e.Flags.waitsForSQDrain():
		r.serial = SerialWaitSQ
		return !g.SQEmpty

	case e.Flags.IsCSR:
		r.serial = SerialCSRExec
		return !g.CSRDone

	case e.Flags.IsMRet:
		r.serial = SerialMRetExec
		return !g.MRetDone
	}

	r.serial = SerialIdle

	return false
}

// FlushPartial invalidates every entry younger than the given tag and
// retracts the tail so that the tag becomes the newest in-flight entry.
func (r *ROB) FlushPartial(tag int) {
	flushAge := r.AgeOf(tag)
	count := r.Count()

	for age := flushAge + 1; age < count; age++ {
		idx := (r.head + age) & r.mask
		r.entries[idx] = Entry{}
	}

	r.tail = (r.head + flushAge + 1) & (2*r.depth - 1)
}

// FlushAll empties the buffer. Used on exceptions, where the architectural
// state is ground truth and nothing in flight survives.
func (r *ROB) FlushAll() {
	for i := range r.entries {
		r.entries[i] = Entry{}
	}

	r.head = 0
	r.tail = 0
	r.serial = SerialIdle
}
