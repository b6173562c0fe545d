package core

import (
	"github.com/frostlab/tomasim/insn"
)

// Machine-mode CSR addresses the core touches itself.
const (
	CSRMStatus = 0x300
	CSRMTVec   = 0x305
	CSRMEPC    = 0x341
	CSRMCause  = 0x342
	CSRFFlags  = 0x001
	CSRFRM     = 0x002
	CSRFCSR    = 0x003
)

// CSRPolicy selects how the core admits an instruction touching a CSR.
type CSRPolicy int

// The two admission policies. ExecuteAtCommit dispatches the instruction
// normally and applies the read-modify-write when it reaches the head.
// DrainBeforeDispatch additionally holds dispatch until the reorder
// buffer is empty, for CSRs whose value feeds decisions elsewhere in the
// pipeline.
const (
	CSRExecuteAtCommit CSRPolicy = iota
	CSRDrainBeforeDispatch
)

// CSRFile holds the control and status registers and the per-CSR
// admission policy table.
type CSRFile struct {
	regs     map[uint32]uint32
	policies map[uint32]CSRPolicy
}

// NewCSRFile creates an empty CSR file where every CSR defaults to the
// execute-at-commit policy.
func NewCSRFile() *CSRFile {
	return &CSRFile{
		regs:     make(map[uint32]uint32),
		policies: make(map[uint32]CSRPolicy),
	}
}

// Read returns the CSR value. Unwritten CSRs read as zero.
func (f *CSRFile) Read(addr uint32) uint32 {
	return f.regs[addr]
}

// Write replaces the CSR value.
func (f *CSRFile) Write(addr uint32, value uint32) {
	f.regs[addr] = value
}

// SetPolicy overrides the admission policy for one CSR.
func (f *CSRFile) SetPolicy(addr uint32, p CSRPolicy) {
	f.policies[addr] = p
}

// Policy returns the admission policy for the CSR.
func (f *CSRFile) Policy(addr uint32) CSRPolicy {
	return f.policies[addr]
}

// Apply performs the architectural read-modify-write for a CSR operation
// and returns the old value that goes to the destination register.
func (f *CSRFile) Apply(op insn.Op, addr uint32, operand uint32) uint32 {
	old := f.regs[addr]

	switch op {
	case insn.OpCSRRW:
		f.regs[addr] = operand
	case insn.OpCSRRS:
		if operand != 0 {
			f.regs[addr] = old | operand
		}
	case insn.OpCSRRC:
		if operand != 0 {
			f.regs[addr] = old &^ operand
		}
	}

	return old
}
