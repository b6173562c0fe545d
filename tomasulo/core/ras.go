package core

import (
	"github.com/frostlab/tomasim/tomasulo/rat"
)

// ReturnAddressStack predicts return targets for the front end. The core
// maintains it at dispatch and rewinds it on checkpoint restore. Entries
// are never erased on rewind; top and count are enough, because a slot
// overwritten after the save can only belong to a squashed call.
type ReturnAddressStack struct {
	entries []uint64
	top     int
	count   int
}

// NewReturnAddressStack creates a stack with the given number of slots.
func NewReturnAddressStack(depth int) *ReturnAddressStack {
	return &ReturnAddressStack{
		entries: make([]uint64, depth),
	}
}

// Push records a call's return address, overwriting the oldest entry when
// the stack is full.
func (s *ReturnAddressStack) Push(addr uint64) {
	s.top = (s.top + 1) % len(s.entries)
	s.entries[s.top] = addr
	if s.count < len(s.entries) {
		s.count++
	}
}

// Pop removes and returns the predicted return address.
func (s *ReturnAddressStack) Pop() (uint64, bool) {
	if s.count == 0 {
		return 0, false
	}

	addr := s.entries[s.top]
	s.top = (s.top - 1 + len(s.entries)) % len(s.entries)
	s.count--

	return addr, true
}

// State captures the rewind point a checkpoint stores.
func (s *ReturnAddressStack) State() rat.RASState {
	return rat.RASState{Top: s.top, Count: s.count}
}

// Restore rewinds to a previously captured state.
func (s *ReturnAddressStack) Restore(state rat.RASState) {
	s.top = state.Top
	s.count = state.Count
}

// FlushAll empties the stack.
func (s *ReturnAddressStack) FlushAll() {
	s.top = 0
	s.count = 0
}
