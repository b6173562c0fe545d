// Package rat implements the integer and floating-point register alias
// tables, with a small checkpoint pool for branch-speculation recovery.
package rat

import (
	"log"

	"github.com/frostlab/tomasim/insn"
)

// NumRegs is the number of architectural registers per file.
const NumRegs = 32

// A Mapping describes one architectural register. When Renamed is true the
// register's value is produced by the in-flight instruction under Tag;
// otherwise the architectural file holds the value.
type Mapping struct {
	Renamed bool
	Tag     int
}

// RASState is the return-address-stack restore point carried by a
// checkpoint. The stack content itself is not speculated away; top and
// count are enough to undo pushes and pops.
type RASState struct {
	Top   int
	Count int
}

type checkpoint struct {
	valid     bool
	branchTag int
	intTable  [NumRegs]Mapping
	fpTable   [NumRegs]Mapping
	ras       RASState
}

// Table holds both alias tables and the checkpoint pool.
type Table struct {
	intTable [NumRegs]Mapping
	fpTable  [NumRegs]Mapping

	checkpoints []checkpoint

	savedThisCycle    bool
	restoredThisCycle bool
}

// New creates alias tables with the given number of checkpoint slots.
func New(numCheckpoints int) *Table {
	if numCheckpoints <= 0 {
		log.Panic("checkpoint pool must not be empty")
	}

	return &Table{
		checkpoints: make([]checkpoint, numCheckpoints),
	}
}

func (t *Table) table(rf insn.RegFile) *[NumRegs]Mapping {
	if rf == insn.RegFileFP {
		return &t.fpTable
	}
	return &t.intTable
}

// Lookup returns the mapping of the register. Integer x0 is never renamed.
func (t *Table) Lookup(rf insn.RegFile, reg int) Mapping {
	if rf == insn.RegFileInt && reg == 0 {
		return Mapping{}
	}

	return t.table(rf)[reg]
}

// Rename records that the register will be produced by the instruction
// under the tag. Renaming integer x0 is silently dropped.
func (t *Table) Rename(rf insn.RegFile, reg, tag int) {
	if rf == insn.RegFileInt && reg == 0 {
		return
	}

	t.table(rf)[reg] = Mapping{Renamed: true, Tag: tag}
}

// CommitClear removes the mapping of the register, but only when the
// recorded tag still matches the committing tag. A newer rename to the
// same register must survive an older instruction's commit.
func (t *Table) CommitClear(rf insn.RegFile, reg, tag int) {
	if rf == insn.RegFileInt && reg == 0 {
		return
	}

	m := &t.table(rf)[reg]
	if m.Renamed && m.Tag == tag {
		*m = Mapping{}
	}
}

// CheckpointAvailable returns the lowest free checkpoint slot.
func (t *Table) CheckpointAvailable() (int, bool) {
	for id := range t.checkpoints {
		if !t.checkpoints[id].valid {
			return id, true
		}
	}

	return 0, false
}

// CheckpointSave clones both tables and the RAS restore point into the
// slot. Saving into an occupied slot, or saving and restoring in the same
// cycle, is a control-logic bug.
func (t *Table) CheckpointSave(id, branchTag int, ras RASState) {
	if t.restoredThisCycle {
		log.Panic("checkpoint save and restore in the same cycle")
	}

	cp := &t.checkpoints[id]
	if cp.valid {
		log.Panicf("checkpoint %d is already in use", id)
	}

	cp.valid = true
	cp.branchTag = branchTag
	cp.intTable = t.intTable
	cp.fpTable = t.fpTable
	cp.ras = ras

	t.savedThisCycle = true
}

// CheckpointRestore replaces the live tables with the snapshot and frees
// the slot. It returns the RAS restore point.
func (t *Table) CheckpointRestore(id int) RASState {
	if t.savedThisCycle {
		log.Panic("checkpoint save and restore in the same cycle")
	}

	cp := &t.checkpoints[id]
	if !cp.valid {
		log.Panicf("restoring unallocated checkpoint %d", id)
	}

	t.intTable = cp.intTable
	t.fpTable = cp.fpTable
	ras := cp.ras
	*cp = checkpoint{}

	t.restoredThisCycle = true

	return ras
}

// CheckpointFree releases the slot when its branch commits without
// misprediction.
func (t *Table) CheckpointFree(id int) {
	t.checkpoints[id] = checkpoint{}
}

// CheckpointBranchTag returns the branch tag a valid checkpoint belongs to.
func (t *Table) CheckpointBranchTag(id int) (int, bool) {
	cp := &t.checkpoints[id]
	if !cp.valid {
		return 0, false
	}

	return cp.branchTag, true
}

// ClearStale drops every mapping whose producing instruction is no longer
// in flight. A restored snapshot can name producers that committed or were
// squashed after the save; their registers read from the architectural
// file again.
func (t *Table) ClearStale(inFlight func(tag int) bool) {
	for _, table := range []*[NumRegs]Mapping{&t.intTable, &t.fpTable} {
		for reg := range table {
			if table[reg].Renamed && !inFlight(table[reg].Tag) {
				table[reg] = Mapping{}
			}
		}
	}
}

// EndCycle resets the same-cycle save/restore exclusion tracking. The core
// calls it once per tick.
func (t *Table) EndCycle() {
	t.savedThisCycle = false
	t.restoredThisCycle = false
}

// FlushAll clears every rename and frees every checkpoint. Used on
// exceptions: the architectural file is ground truth, so no mapping
// survives and no snapshot is worth restoring.
func (t *Table) FlushAll() {
	t.intTable = [NumRegs]Mapping{}
	t.fpTable = [NumRegs]Mapping{}

	for i := range t.checkpoints {
		t.checkpoints[i] = checkpoint{}
	}
}
