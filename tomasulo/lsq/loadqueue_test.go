package lsq

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/frostlab/tomasim/insn"
)

var _ = Describe("Load Queue", func() {
	var (
		q    *LoadQueue
		ages map[int]int
	)

	BeforeEach(func() {
		ages = make(map[int]int)
		q = NewLoadQueue(8, func(tag int) int { return ages[tag] })
	})

	It("should reject an allocation when full", func() {
		for tag := 0; tag < 8; tag++ {
			Expect(q.Allocate(tag, false, insn.MemSizeWord, false)).
				To(BeTrue())
		}

		Expect(q.Full()).To(BeTrue())
		Expect(q.Allocate(8, false, insn.MemSizeWord, false)).To(BeFalse())
	})

	It("should not offer a candidate before the address arrives", func() {
		q.Allocate(1, false, insn.MemSizeWord, false)

		_, ok := q.Candidate(1)
		Expect(ok).To(BeFalse())

		q.UpdateAddr(1, 0x100, false)

		c, ok := q.Candidate(1)
		Expect(ok).To(BeTrue())
		Expect(c.Tag).To(Equal(1))
		Expect(c.Addr).To(Equal(uint64(0x100)))
	})

	It("should complete a word load through memory", func() {
		q.Allocate(1, false, insn.MemSizeWord, false)
		q.UpdateAddr(1, 0x100, false)

		addr, ok := q.IssueToMemory(true, false)
		Expect(ok).To(BeTrue())
		Expect(addr).To(Equal(uint64(0x100)))

		_, ok = q.Candidate(1)
		Expect(ok).To(BeFalse(), "only one read may be outstanding")

		q.MemResponse(0xDEADBEEF)

		c, ok := q.PeekComplete()
		Expect(ok).To(BeTrue())
		Expect(c.Tag).To(Equal(1))
		Expect(c.Value).To(Equal(uint64(0xDEADBEEF)))

		q.ConsumeComplete()
		Expect(q.Empty()).To(BeTrue())
	})

	It("should sign-extend a negative byte load", func() {
		q.Allocate(1, false, insn.MemSizeByte, false)
		q.UpdateAddr(1, 0x102, false)

		addr, _ := q.IssueToMemory(true, false)
		Expect(addr).To(Equal(uint64(0x100)), "reads are word aligned")

		q.MemResponse(0x00F00000) // byte at offset 2 is 0xF0

		c, _ := q.PeekComplete()
		Expect(c.Value).To(Equal(uint64(0xFFFFFFF0)))
	})

	It("should zero-extend an unsigned halfword load", func() {
		q.Allocate(1, false, insn.MemSizeHalf, true)
		q.UpdateAddr(1, 0x102, false)

		q.IssueToMemory(true, false)
		q.MemResponse(0x8001_0000)

		c, _ := q.PeekComplete()
		Expect(c.Value).To(Equal(uint64(0x8001)))
	})

	It("should NaN-box a single-precision FP load", func() {
		q.Allocate(1, true, insn.MemSizeWord, false)
		q.UpdateAddr(1, 0x100, false)

		q.IssueToMemory(true, false)
		q.MemResponse(0x3F800000)

		c, _ := q.PeekComplete()
		Expect(c.Value).To(Equal(uint64(0xFFFFFFFF3F800000)))
	})

	It("should read a double-precision FP load in two phases", func() {
		q.Allocate(1, true, insn.MemSizeDouble, false)
		q.UpdateAddr(1, 0x100, false)

		addr, ok := q.IssueToMemory(true, false)
		Expect(ok).To(BeTrue())
		Expect(addr).To(Equal(uint64(0x100)))
		q.MemResponse(0x11111111)

		_, ok = q.PeekComplete()
		Expect(ok).To(BeFalse(), "low word alone is not a result")

		addr, ok = q.IssueToMemory(true, false)
		Expect(ok).To(BeTrue())
		Expect(addr).To(Equal(uint64(0x104)))
		q.MemResponse(0x22222222)

		c, ok := q.PeekComplete()
		Expect(ok).To(BeTrue())
		Expect(c.Value).To(Equal(uint64(0x2222222211111111)))
	})

	It("should hold an MMIO load until its tag reaches the head", func() {
		q.Allocate(5, false, insn.MemSizeWord, false)
		q.UpdateAddr(5, 0x1000_0000, true)

		_, ok := q.Candidate(3)
		Expect(ok).To(BeFalse())

		_, ok = q.Candidate(5)
		Expect(ok).To(BeTrue())
	})

	It("should not issue while older store addresses are unknown", func() {
		q.Allocate(1, false, insn.MemSizeWord, false)
		q.UpdateAddr(1, 0x100, false)

		_, ok := q.IssueToMemory(false, false)
		Expect(ok).To(BeFalse())

		_, ok = q.IssueToMemory(true, true)
		Expect(ok).To(BeFalse(), "overlap blocks the load")

		_, ok = q.IssueToMemory(true, false)
		Expect(ok).To(BeTrue())
	})

	It("should complete through forwarding without touching memory", func() {
		q.Allocate(1, false, insn.MemSizeByte, false)
		q.UpdateAddr(1, 0x100, false)

		q.ApplyForward(0x80)

		c, ok := q.PeekComplete()
		Expect(ok).To(BeTrue())
		Expect(c.Value).To(Equal(uint64(0xFFFFFF80)), "forwarded bytes are extended")

		_, ok = q.Candidate(1)
		Expect(ok).To(BeFalse(), "nothing left for the memory path")
	})

	It("should serve loads from the head first", func() {
		ages[1] = 0
		ages[2] = 1
		q.Allocate(1, false, insn.MemSizeWord, false)
		q.Allocate(2, false, insn.MemSizeWord, false)
		q.UpdateAddr(2, 0x200, false)
		q.UpdateAddr(1, 0x100, false)

		c, _ := q.Candidate(1)
		Expect(c.Tag).To(Equal(1))
	})

	It("should drain a stale response after a flush", func() {
		ages[1] = 0
		ages[2] = 1
		q.Allocate(1, false, insn.MemSizeWord, false)
		q.Allocate(2, false, insn.MemSizeWord, false)
		q.UpdateAddr(2, 0x200, false)

		_, ok := q.IssueToMemory(true, false)
		Expect(ok).To(BeTrue())

		q.FlushYounger(1)
		Expect(q.Count()).To(Equal(1))

		q.MemResponse(0x12345678)

		_, ok = q.PeekComplete()
		Expect(ok).To(BeFalse(), "flushed load must not broadcast")

		// The drained response released the outstanding-read slot.
		q.UpdateAddr(1, 0x100, false)
		_, ok = q.IssueToMemory(true, false)
		Expect(ok).To(BeTrue())
	})

	It("should retract the tail on a partial flush", func() {
		for tag := 0; tag < 4; tag++ {
			ages[tag] = tag
			q.Allocate(tag, false, insn.MemSizeWord, false)
		}

		q.FlushYounger(1)
		Expect(q.Count()).To(Equal(2))

		Expect(q.Allocate(9, false, insn.MemSizeWord, false)).To(BeTrue())
		Expect(q.Count()).To(Equal(3))
	})

	It("should empty on a full flush", func() {
		q.Allocate(1, false, insn.MemSizeWord, false)
		q.Allocate(2, false, insn.MemSizeWord, false)

		q.FlushAll()

		Expect(q.Empty()).To(BeTrue())
		Expect(q.Allocate(3, false, insn.MemSizeWord, false)).To(BeTrue())
	})
})
