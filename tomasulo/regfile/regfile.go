// Package regfile implements the architectural register files and the
// floating-point control and status register. The files hold committed
// state only; speculative values live in the reorder buffer.
package regfile

import (
	"github.com/frostlab/tomasim/insn"
)

// NumRegs is the number of registers in each file.
const NumRegs = 32

// IntFile is the 32-entry integer register file. x0 is hardwired to zero.
type IntFile struct {
	regs [NumRegs]uint32
}

// Read returns the committed value of the register.
func (f *IntFile) Read(reg int) uint32 {
	return f.regs[reg]
}

// Write commits a value. Writes to x0 are dropped.
func (f *IntFile) Write(reg int, value uint32) {
	if reg == 0 {
		return
	}

	f.regs[reg] = value
}

// FPFile is the 32-entry floating-point register file. Registers are 64
// bits wide; single-precision values are stored NaN-boxed.
type FPFile struct {
	regs [NumRegs]uint64
}

// Read returns the committed value of the register.
func (f *FPFile) Read(reg int) uint64 {
	return f.regs[reg]
}

// Write commits a value. The caller boxes singles before writing.
func (f *FPFile) Write(reg int, value uint64) {
	f.regs[reg] = value
}

// FCSR is the floating-point control and status register: the dynamic
// rounding mode and the accrued exception flags.
type FCSR struct {
	rounding insn.RoundingMode
	flags    insn.FPFlags
}

// RoundingMode returns the dynamic rounding mode.
func (c *FCSR) RoundingMode() insn.RoundingMode {
	return c.rounding
}

// SetRoundingMode sets the dynamic rounding mode.
func (c *FCSR) SetRoundingMode(rm insn.RoundingMode) {
	c.rounding = rm
}

// Flags returns the accrued exception flags.
func (c *FCSR) Flags() insn.FPFlags {
	return c.flags
}

// AccumulateFlags ORs an instruction's flags into fflags at commit.
func (c *FCSR) AccumulateFlags(flags insn.FPFlags) {
	c.flags |= flags
}

// ClearFlags resets fflags, as a CSR write to it would.
func (c *FCSR) ClearFlags() {
	c.flags = 0
}

// Resolve maps an instruction's rounding mode to the effective one,
// substituting the dynamic mode for RoundDynamic.
func (c *FCSR) Resolve(rm insn.RoundingMode) insn.RoundingMode {
	if rm == insn.RoundDynamic {
		return c.rounding
	}

	return rm
}
