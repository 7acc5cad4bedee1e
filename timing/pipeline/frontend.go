package pipeline

import (
	"github.com/sarchlab/rv5sim/isa"
	"github.com/sarchlab/rv5sim/timing/cache"
)

// FetchFrontend produces the stream of {valid, pc, instruction} triples the
// rest of the pipeline consumes, per spec section 4.2: a 3-cycle
// predicted-PC pipeline (IF1 selects next PC, IF2 presents it to the
// icache, IF3 observes the icache's S2 response) feeding a direct-mapped
// BTB, a return-address stack, and a pluggable branch predictor.
type FetchFrontend struct {
	icache    *cache.Cache
	btb       *BTB
	ras       *RAS
	predictor BranchPredictor

	pc uint64

	// if2/if3 mirror the icache's internal S1/S2 occupancy so that once a
	// response arrives we know which PC it belongs to.
	if2, if3 IFLatch
}

// NewFetchFrontend constructs a frontend wired to icache, with BTB and RAS
// sized per the configuration.
func NewFetchFrontend(icache *cache.Cache, btbSize, rasSize int) *FetchFrontend {
	return &FetchFrontend{
		icache:    icache,
		btb:       NewBTB(btbSize),
		ras:       NewRAS(rasSize),
		predictor: NewAlwaysTakenPredictor(),
	}
}

// SetPC sets the fetch PC (used at reset / construction).
func (f *FetchFrontend) SetPC(pc uint64) { f.pc = pc }

// PC returns the current fetch PC.
func (f *FetchFrontend) PC() uint64 { return f.pc }

// FetchOutput is the result of one cycle's frontend step.
type FetchOutput struct {
	Valid           bool
	PC              uint64
	Inst            uint32
	PredictedNextPC uint64
	MissStall       bool
	// Advanced is true only on the cycle IF3's instruction is actually
	// handed off and the internal if2/if3 shift happens. While a downstream
	// stall holds the frontend in place, the same instruction is reported
	// again each cycle with Advanced false — callers must gate any
	// one-shot side effect (the RAS push/pop) on this flag so it fires
	// exactly once per instruction.
	Advanced bool
}

// Step advances the frontend by one cycle. correction carries a resolved
// misprediction (if any) from the BranchUnit; stall is the downstream
// freeze signal (dcache miss or load-use hazard). An icache miss is
// detected here and reported through FetchOutput.MissStall. The RAS is not
// driven here: the caller applies the handed-off instruction's push/pop.
func (f *FetchFrontend) Step(correction Misprediction, stall bool) FetchOutput {
	if correction.Valid {
		f.pc = correction.Target
		f.if2.Clear()
		f.if3.Clear()
	}

	if1PC := f.computeIF1PC()

	resp, missStall := f.icache.Step(cache.Request{
		Valid:      true,
		Addr:       if1PC,
		AccessType: isa.AccessWU,
	}, stall)

	out := FetchOutput{MissStall: missStall}
	if f.if3.Valid && !missStall {
		out.Valid = true
		out.PC = f.if3.PC
		out.Inst = uint32(resp.Data)
		out.PredictedNextPC = f.if2.PC
	}

	if stall || missStall {
		return out
	}

	f.if3 = f.if2
	f.if2 = IFLatch{Valid: true, PC: if1PC}

	f.pc = if1PC + 4

	out.Advanced = true
	return out
}

// computeIF1PC implements spec section 4.2's prediction rule: default is
// the current PC; a BTB hit for a non-return branch predicted taken
// redirects to the BTB target; a BTB hit flagged is_return redirects to
// the RAS top. The BTB is looked up with the PC fetched last cycle (now in
// IF2), so a predicted branch is itself fetched and its target follows it.
func (f *FetchFrontend) computeIF1PC() uint64 {
	pc := f.pc
	if !f.if2.Valid {
		return pc
	}

	entry, hit := f.btb.Lookup(f.if2.PC)
	if !hit {
		return pc
	}

	if entry.IsReturn {
		return f.ras.Top()
	}

	if f.predictor.Predict(pc) {
		return entry.Target
	}

	return pc
}

// Correct installs a BTB entry for a resolved branch/jump and updates the
// direction predictor, per spec section 4.2's "updates on misprediction
// install the full entry."
func (f *FetchFrontend) Correct(pc, target uint64, taken, isReturn bool) {
	if taken {
		f.btb.Update(pc, target, isReturn)
	}
	f.predictor.Update(pc, taken)
}

// RAS exposes the return-address stack so decode can drive its push/pop
// signal (computed from the instruction currently in IF/ID, one cycle
// behind what the frontend itself observes at IF3).
func (f *FetchFrontend) RAS() *RAS { return f.ras }

// probe reports the frontend's internal IF1/IF2/IF3 latch state for
// Pipeline.Probe(), mirroring amethyst's if1_pc/if2_valid/if3_valid debug
// signals.
func (f *FetchFrontend) probe() FrontendProbe {
	return FrontendProbe{
		IF1PC:    f.pc,
		IF2Valid: f.if2.Valid,
		IF2PC:    f.if2.PC,
		IF3Valid: f.if3.Valid,
		IF3PC:    f.if3.PC,
	}
}

// FrontendProbe is the frontend's slice of a Pipeline.Probe() snapshot.
type FrontendProbe struct {
	IF1PC    uint64
	IF2Valid bool
	IF2PC    uint64
	IF3Valid bool
	IF3PC    uint64
}

// Reset clears the frontend's PC, latches, BTB, and RAS.
func (f *FetchFrontend) Reset(resetPC uint64) {
	f.pc = resetPC
	f.if2 = IFLatch{}
	f.if3 = IFLatch{}
	f.btb.Reset()
	f.ras.Reset()
}
