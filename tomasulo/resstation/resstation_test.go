package resstation

import (
	ginkgo "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/frostlab/tomasim/insn"
)

func readyEntry(tag int) Entry {
	return Entry{
		Tag: tag,
		Op:  insn.OpAdd,
		Src: [3]Source{{Ready: true}, {Ready: true}, {Ready: true}},
	}
}

var _ = ginkgo.Describe("Reservation Station", func() {
	var (
		s    *Station
		ages map[int]int
	)

	ginkgo.BeforeEach(func() {
		ages = make(map[int]int)
		s = New("Int", 4, func(tag int) int { return ages[tag] })
	})

	ginkgo.It("should reject a dispatch when full", func() {
		for i := 0; i < 4; i++ {
			Expect(s.Dispatch(readyEntry(i))).To(BeTrue())
		}

		Expect(s.Full()).To(BeTrue())
		Expect(s.Dispatch(readyEntry(4))).To(BeFalse())
	})

	ginkgo.It("should not offer an entry whose operands are missing", func() {
		e := readyEntry(0)
		e.Src[1] = Source{Tag: 7}
		s.Dispatch(e)

		_, ok := s.PeekIssue()
		Expect(ok).To(BeFalse())
	})

	ginkgo.It("should wake a waiting source on a matching broadcast", func() {
		e := readyEntry(0)
		e.Src[0] = Source{Tag: 7}
		e.Src[2] = Source{Tag: 7}
		s.Dispatch(e)

		s.Snoop(9, 111)
		_, ok := s.PeekIssue()
		Expect(ok).To(BeFalse(), "wrong tag must not wake the entry")

		s.Snoop(7, 42)
		got, ok := s.PeekIssue()
		Expect(ok).To(BeTrue())
		Expect(got.Src[0].Value).To(Equal(uint64(42)))
		Expect(got.Src[2].Value).To(Equal(uint64(42)))
	})

	ginkgo.It("should issue ready entries oldest-first", func() {
		ages[3] = 0
		ages[5] = 1
		ages[1] = 2

		s.Dispatch(readyEntry(5))
		s.Dispatch(readyEntry(1))
		s.Dispatch(readyEntry(3))

		got, ok := s.PeekIssue()
		Expect(ok).To(BeTrue())
		Expect(got.Tag).To(Equal(3))

		s.ConsumeIssue(3)
		got, _ = s.PeekIssue()
		Expect(got.Tag).To(Equal(5))
	})

	ginkgo.It("should keep oldest-first order across slot reuse", func() {
		ages[0] = 0
		ages[1] = 1
		s.Dispatch(readyEntry(0))
		s.Dispatch(readyEntry(1))
		s.ConsumeIssue(0)

		// The freed slot is physically first, but the entry placed in it
		// is younger than the survivor.
		ages[2] = 2
		s.Dispatch(readyEntry(2))

		got, ok := s.PeekIssue()
		Expect(ok).To(BeTrue())
		Expect(got.Tag).To(Equal(1))
	})

	ginkgo.It("should skip a ready young entry blocked only by order", func() {
		ages[0] = 0
		ages[1] = 1

		older := readyEntry(0)
		older.Src[0] = Source{Tag: 9}
		s.Dispatch(older)
		s.Dispatch(readyEntry(1))

		// The younger entry may issue; there is no order requirement
		// across entries, only among ready ones.
		got, ok := s.PeekIssue()
		Expect(ok).To(BeTrue())
		Expect(got.Tag).To(Equal(1))
	})

	ginkgo.It("should panic when consuming a tag it does not hold", func() {
		Expect(func() { s.ConsumeIssue(3) }).To(Panic())
	})

	ginkgo.It("should flush entries younger than the branch", func() {
		ages[0] = 0
		ages[1] = 1
		ages[2] = 2
		for tag := 0; tag < 3; tag++ {
			s.Dispatch(readyEntry(tag))
		}

		s.FlushYounger(1)

		Expect(s.Count()).To(Equal(2))
		got, _ := s.PeekIssue()
		Expect(got.Tag).To(Equal(0))
		s.ConsumeIssue(0)
		got, _ = s.PeekIssue()
		Expect(got.Tag).To(Equal(1))
	})

	ginkgo.It("should empty on a full flush", func() {
		for tag := 0; tag < 3; tag++ {
			s.Dispatch(readyEntry(tag))
		}

		s.FlushAll()

		Expect(s.Count()).To(Equal(0))
		_, ok := s.PeekIssue()
		Expect(ok).To(BeFalse())
	})
})
