package frontend

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	gomock "go.uber.org/mock/gomock"

	"github.com/frostlab/tomasim/insn"
	"github.com/frostlab/tomasim/sim"
	"github.com/frostlab/tomasim/tomasulo/core"
)

var _ = Describe("Frontend", func() {
	var (
		mockCtrl *gomock.Controller
		engine   *MockEngine
		port     *MockPort

		incoming []sim.Msg
		sent     []sim.Msg
		sendFail bool

		fe *Comp
	)

	build := func(program []insn.Inst, entryPC uint64) {
		fe = MakeBuilder().
			WithEngine(engine).
			WithCorePort(sim.RemotePort("Core.Dispatch")).
			WithProgram(program, entryPC).
			Build("FrontEnd")
		fe.toCore = port
	}

	sentPCs := func() []uint64 {
		var pcs []uint64
		for _, msg := range sent {
			pcs = append(pcs, msg.(*core.DispatchMsg).Inst.PC)
		}
		return pcs
	}

	run := func(cycles int) {
		for i := 0; i < cycles; i++ {
			fe.Tick()
		}
	}

	BeforeEach(func() {
		mockCtrl = gomock.NewController(GinkgoT())

		engine = NewMockEngine(mockCtrl)
		engine.EXPECT().CurrentTime().Return(sim.VTimeInSec(0)).AnyTimes()
		engine.EXPECT().Schedule(gomock.Any()).AnyTimes()

		incoming = nil
		sent = nil
		sendFail = false

		port = NewMockPort(mockCtrl)
		port.EXPECT().PeekIncoming().DoAndReturn(func() sim.Msg {
			if len(incoming) == 0 {
				return nil
			}
			return incoming[0]
		}).AnyTimes()
		port.EXPECT().RetrieveIncoming().DoAndReturn(func() sim.Msg {
			msg := incoming[0]
			incoming = incoming[1:]
			return msg
		}).AnyTimes()
		port.EXPECT().
			AsRemote().
			Return(sim.RemotePort("FrontEnd.ToCore")).
			AnyTimes()
		port.EXPECT().Send(gomock.Any()).
			DoAndReturn(func(msg sim.Msg) *sim.SendError {
				if sendFail {
					return &sim.SendError{}
				}
				sent = append(sent, msg)
				return nil
			}).AnyTimes()
	})

	AfterEach(func() {
		mockCtrl.Finish()
	})

	It("should stream the program in order", func() {
		build([]insn.Inst{
			{PC: 0, Op: insn.OpAdd},
			{PC: 4, Op: insn.OpSub},
			{PC: 8, Op: insn.OpAnd},
		}, 0)

		run(5)

		Expect(sentPCs()).To(Equal([]uint64{0, 4, 8}))
		Expect(fe.Dispatched()).To(Equal(3))
	})

	It("should follow a predicted-taken branch", func() {
		build([]insn.Inst{
			{PC: 0, Op: insn.OpBeq, PredictedTaken: true,
				PredictedTarget: 0x40},
			{PC: 4, Op: insn.OpAdd},
			{PC: 0x40, Op: insn.OpSub},
		}, 0)

		run(3)

		Expect(sentPCs()).To(Equal([]uint64{0, 0x40}))
	})

	It("should follow an unconditional jump", func() {
		build([]insn.Inst{
			{PC: 0, Op: insn.OpJal, BranchTarget: 0x20},
			{PC: 0x20, Op: insn.OpAdd},
		}, 0)

		run(3)

		Expect(sentPCs()).To(Equal([]uint64{0, 0x20}))
	})

	It("should restart from a redirect", func() {
		build([]insn.Inst{
			{PC: 0, Op: insn.OpAdd},
			{PC: 0x100, Op: insn.OpSub},
		}, 0)

		run(3)
		Expect(sentPCs()).To(Equal([]uint64{0}))

		incoming = append(incoming, core.RedirectMsgBuilder{}.
			WithSrc(sim.RemotePort("Core.Ctrl")).
			WithDst(sim.RemotePort("FrontEnd.ToCore")).
			WithReason(core.RedirectMispredict).
			WithPC(0x100).
			Build())

		run(3)

		Expect(sentPCs()).To(Equal([]uint64{0, 0x100}))
		Expect(fe.Redirects()).To(HaveLen(1))
	})

	It("should not lose an instruction on a rejected send", func() {
		build([]insn.Inst{
			{PC: 0, Op: insn.OpAdd},
		}, 0)

		sendFail = true
		run(2)
		Expect(sent).To(BeEmpty())

		sendFail = false
		run(2)
		Expect(sentPCs()).To(Equal([]uint64{0}))
	})
})
