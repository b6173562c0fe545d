package cdb

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/frostlab/tomasim/insn"
)

var _ = Describe("Adapter", func() {
	var a *Adapter

	res := func(tag int) Result {
		return Result{Valid: true, Tag: tag, Value: uint64(tag) * 10}
	}

	BeforeEach(func() {
		a = NewAdapter()
	})

	It("should pass a fresh result through when idle", func() {
		out := a.Offer(res(1))
		Expect(out.Valid).To(BeTrue())
		Expect(out.Tag).To(Equal(1))
		Expect(a.Busy()).To(BeFalse())
	})

	It("should latch a result the arbiter did not grant", func() {
		a.Step(res(1), false)
		Expect(a.Busy()).To(BeTrue())

		// The held result wins over anything fresh.
		out := a.Offer(res(2))
		Expect(out.Tag).To(Equal(1))
	})

	It("should go idle once the held result is granted", func() {
		a.Step(res(1), false)
		a.Step(Result{}, true)

		Expect(a.Busy()).To(BeFalse())
	})

	It("should latch a fresh result in the cycle its held one is granted",
		func() {
			a.Step(res(1), false)
			a.Step(res(2), true)

			Expect(a.Busy()).To(BeTrue())
			out := a.Offer(Result{})
			Expect(out.Tag).To(Equal(2))
		})

	It("should not latch a granted pass-through", func() {
		a.Step(res(1), true)
		Expect(a.Busy()).To(BeFalse())
	})

	It("should drop the held result on a flush", func() {
		a.Step(res(1), false)
		a.Flush()

		Expect(a.Busy()).To(BeFalse())
		out := a.Offer(Result{})
		Expect(out.Valid).To(BeFalse())
	})
})

var _ = Describe("Arbiter", func() {
	It("should grant nothing when no unit completes", func() {
		var requests [insn.NumFUKinds]Result

		b, grants := Arbitrate(requests)
		Expect(b.Valid).To(BeFalse())
		for _, g := range grants {
			Expect(g).To(BeFalse())
		}
	})

	It("should prefer the longest-latency unit", func() {
		var requests [insn.NumFUKinds]Result
		requests[insn.FUALU] = Result{Valid: true, Tag: 1}
		requests[insn.FUDiv] = Result{Valid: true, Tag: 2}
		requests[insn.FUMul] = Result{Valid: true, Tag: 3}

		b, grants := Arbitrate(requests)
		Expect(b.Tag).To(Equal(2))
		Expect(b.FU).To(Equal(insn.FUDiv))
		Expect(grants[insn.FUDiv]).To(BeTrue())
		Expect(grants[insn.FUALU]).To(BeFalse())
		Expect(grants[insn.FUMul]).To(BeFalse())
	})

	It("should grant exactly one unit per cycle", func() {
		var requests [insn.NumFUKinds]Result
		for fu := insn.FUKind(0); fu < insn.NumFUKinds; fu++ {
			requests[fu] = Result{Valid: true, Tag: int(fu)}
		}

		b, grants := Arbitrate(requests)
		Expect(b.FU).To(Equal(insn.FUFPDiv))

		n := 0
		for _, g := range grants {
			if g {
				n++
			}
		}
		Expect(n).To(Equal(1))
	})

	It("should keep a contended result alive through its adapter", func() {
		alu := NewAdapter()
		div := NewAdapter()

		aluRes := Result{Valid: true, Tag: 1}
		divRes := Result{Valid: true, Tag: 2}

		var requests [insn.NumFUKinds]Result
		requests[insn.FUALU] = alu.Offer(aluRes)
		requests[insn.FUDiv] = div.Offer(divRes)

		b, grants := Arbitrate(requests)
		Expect(b.Tag).To(Equal(2))

		alu.Step(aluRes, grants[insn.FUALU])
		div.Step(divRes, grants[insn.FUDiv])
		Expect(alu.Busy()).To(BeTrue())

		// Next cycle the divider is quiet and the held ALU result wins.
		requests = [insn.NumFUKinds]Result{}
		requests[insn.FUALU] = alu.Offer(Result{})

		b, grants = Arbitrate(requests)
		Expect(b.Tag).To(Equal(1))

		alu.Step(Result{}, grants[insn.FUALU])
		Expect(alu.Busy()).To(BeFalse())
	})
})
