package trace

import (
	"fmt"

	"github.com/frostlab/tomasim/insn"
	"github.com/frostlab/tomasim/sim"
	"github.com/frostlab/tomasim/tomasulo/core"
	"github.com/frostlab/tomasim/tomasulo/rob"
)

// A CommitRecord is one retired instruction.
type CommitRecord struct {
	Time  float64
	Core  string
	Tag   int
	PC    uint64
	Dest  string
	Value uint64
	Trap  bool
	Cause uint32
}

// A RedirectRecord is one front-end redirect.
type RedirectRecord struct {
	Time   float64
	Core   string
	Reason string
	PC     uint64
}

// A Tracer is a hook that records the commit and redirect stream of a
// scheduling core.
type Tracer struct {
	timeTeller sim.TimeTeller
	recorder   Recorder
}

// NewTracer creates a Tracer writing into the recorder. Attach it to a
// core with AcceptHook.
func NewTracer(timeTeller sim.TimeTeller, recorder Recorder) *Tracer {
	recorder.CreateTable("commits", CommitRecord{})
	recorder.CreateTable("redirects", RedirectRecord{})

	return &Tracer{
		timeTeller: timeTeller,
		recorder:   recorder,
	}
}

// Func records the hooked item.
func (t *Tracer) Func(ctx sim.HookCtx) {
	switch ctx.Pos {
	case core.HookPosCommit:
		t.recordCommit(ctx)
	case core.HookPosRedirect:
		t.recordRedirect(ctx)
	}
}

func (t *Tracer) recordCommit(ctx sim.HookCtx) {
	res := ctx.Item.(rob.Result)
	entry := res.Entry

	rec := CommitRecord{
		Time:  float64(t.timeTeller.CurrentTime()),
		Core:  domainName(ctx.Domain),
		Tag:   res.Tag,
		PC:    entry.PC,
		Value: entry.Value,
		Trap:  res.Trap,
		Cause: uint32(entry.Cause),
	}

	if entry.DestValid {
		rec.Dest = regName(entry)
	}

	t.recorder.InsertData("commits", rec)
}

func (t *Tracer) recordRedirect(ctx sim.HookCtx) {
	msg := ctx.Item.(*core.RedirectMsg)

	t.recorder.InsertData("redirects", RedirectRecord{
		Time:   float64(t.timeTeller.CurrentTime()),
		Core:   domainName(ctx.Domain),
		Reason: msg.Reason.String(),
		PC:     msg.PC,
	})
}

func domainName(domain sim.Hookable) string {
	if named, ok := domain.(sim.Named); ok {
		return named.Name()
	}

	return ""
}

func regName(entry rob.Entry) string {
	prefix := "x"
	if entry.DestRF == insn.RegFileFP {
		prefix = "f"
	}

	return fmt.Sprintf("%s%d", prefix, entry.Dest)
}
