package pipeline

import (
	"github.com/sarchlab/rv5sim/config"
	"github.com/sarchlab/rv5sim/emu"
	"github.com/sarchlab/rv5sim/isa"
	"github.com/sarchlab/rv5sim/timing/cache"
)

// Pipeline wires the fetch frontend, the four decode/execute/mem/writeback
// stages, their latches, and the icache/dcache into the single-issue
// 5-stage in-order machine described in spec sections 3-5.
type Pipeline struct {
	frontend       *FetchFrontend
	decodeStage    *DecodeStage
	executeStage   *ExecuteStage
	memStage       *MemStage
	writebackStage *WritebackStage

	hazardUnit  *HazardUnit
	forwardUnit *ForwardUnit
	branchUnit  *BranchUnit

	dcache *cache.Cache

	ifid  IFIDLatch
	idex  IDEXLatch
	exmem EXMEMLatch
	memwb MEMWBLatch

	nextIfid  IFIDLatch
	nextIdex  IDEXLatch
	nextExmem EXMEMLatch
	nextMemwb MEMWBLatch

	regFile *emu.RegFile
	memory  *emu.Memory
	width   int

	cycleCount       uint64
	instructionCount uint64
	stallCount       uint64
	flushCount       uint64

	halted   bool
	exitCode int64

	resetAddr uint64
}

// memPortLatency is the fixed per-request latency (in cycles) the direct
// memory ports behind both caches impose, standing in for the "external
// memory mock" spec section 6 leaves as a configuration detail.
const memPortLatency = 4

// NewPipeline constructs a pipeline over regFile/memory, sized and wired
// per cfg: icache/dcache geometry, BTB/RAS sizing, the core's register/ALU
// width, and the reset PC.
func NewPipeline(regFile *emu.RegFile, memory *emu.Memory, cfg *config.Config) *Pipeline {
	icache := cache.New(cache.Config{
		NumSets:   cfg.ICache.NumSets,
		NumWays:   cfg.ICache.NumWays,
		LineWidth: cfg.ICache.LineWidth,
		AddrWidth: cfg.PAddrWidth,
	}, cache.NewDirectMemoryPort(memory, memPortLatency, cfg.ICache.LineWidth))

	dcache := cache.New(cache.Config{
		NumSets:   cfg.DCache.NumSets,
		NumWays:   cfg.DCache.NumWays,
		LineWidth: cfg.DCache.LineWidth,
		AddrWidth: cfg.PAddrWidth,
	}, cache.NewDirectMemoryPort(memory, memPortLatency, cfg.DCache.LineWidth))

	frontend := NewFetchFrontend(icache, cfg.BTBSize, cfg.RASSize)
	frontend.SetPC(cfg.ResetAddr)

	return &Pipeline{
		frontend:       frontend,
		decodeStage:    NewDecodeStage(regFile),
		executeStage:   NewExecuteStage(cfg.CoreWidth),
		memStage:       NewMemStage(),
		writebackStage: NewWritebackStage(regFile),
		hazardUnit:     NewHazardUnit(),
		forwardUnit:    NewForwardUnit(),
		branchUnit:     NewBranchUnit(),
		dcache:         dcache,
		regFile:        regFile,
		memory:         memory,
		width:          cfg.CoreWidth,
		resetAddr:      cfg.ResetAddr,
	}
}

// SetPC sets the fetch PC, e.g. to a loaded program's entry point.
func (p *Pipeline) SetPC(pc uint64) {
	p.frontend.SetPC(pc)
}

// PC returns the frontend's current fetch PC.
func (p *Pipeline) PC() uint64 {
	return p.frontend.PC()
}

// Halted reports whether the pipeline has retired a self-targeting taken
// jump or branch (e.g. `jal x0, .` / `beq x0, x0, .`), the bare-metal
// convention this design uses in place of a syscall-based exit: with no
// ecall/ebreak in scope, a program signals completion by spinning on its
// own address.
func (p *Pipeline) Halted() bool {
	return p.halted
}

// ExitCode returns the value of x10 (the RISC-V calling convention's a0/
// first return-value register) latched at the moment Halted became true.
func (p *Pipeline) ExitCode() int64 {
	return p.exitCode
}

// Stats holds the pipeline's cycle-level performance counters.
type Stats struct {
	Cycles       uint64
	Instructions uint64
	Stalls       uint64
	Flushes      uint64
	CPI          float64
}

// Stats returns the pipeline's current performance counters, including the
// derived cycles-per-instruction.
func (p *Pipeline) Stats() Stats {
	s := Stats{
		Cycles:       p.cycleCount,
		Instructions: p.instructionCount,
		Stalls:       p.stallCount,
		Flushes:      p.flushCount,
	}
	if s.Instructions > 0 {
		s.CPI = float64(s.Cycles) / float64(s.Instructions)
	}
	return s
}

// Tick advances every stage by one cycle, per spec section 4.9's stall and
// flush policy: a resolved misprediction always takes precedence over any
// stall; otherwise a dcache miss freezes the whole pipeline behind (and
// including) EX/MEM, a load-use hazard freezes IF/ID and bubbles ID/EX, and
// an icache miss simply yields no new fetch this cycle.
func (p *Pipeline) Tick() {
	if p.halted {
		return
	}
	p.cycleCount++

	p.doWriteback()
	dcacheStall := p.doMemory()
	outcome := p.doExecute()
	hazardStall := p.hazardUnit.DetectLoadUse(&p.idex, isa.Rs1(p.ifid.Inst), isa.Rs2(p.ifid.Inst))

	isReturn := isa.HandleRasCtrl(p.exmem.Ctrl.Inst).Pop
	p.branchUnit.Evaluate(outcome.Valid, outcome.Target, outcome.Taken, isReturn, p.exmem.Ctrl.PC, p.exmem.Ctrl.PredictedNextPC)
	correction := p.branchUnit.Pending()

	switch {
	case correction.Valid:
		// A resolved misprediction always wins: redirect the frontend,
		// and squash every younger in-flight instruction (the ones moving
		// into EX/MEM and ID/EX, and whatever IF was about to present)
		// since they were all fetched down the wrong path; the resolving
		// branch itself moves on to MEM/WB.
		p.flushCount++
		p.frontend.Correct(p.exmem.Ctrl.PC, correction.Target, correction.Taken, correction.IsReturn)
		p.branchUnit.Clear()

		if correction.Taken && correction.Target == correction.PC {
			p.halted = true
		}

		p.nextExmem.Clear()
		p.nextIdex.Clear()
		p.doFetch(correction, false)

	case dcacheStall:
		// The instruction in EX/MEM is still waiting on a refill: hold
		// EX/MEM, ID/EX, and IF/ID in place, force MEM/WB to a bubble, and
		// freeze the frontend entirely.
		p.stallCount++
		p.nextExmem = p.exmem
		p.nextIdex = p.idex
		p.nextMemwb.Clear()
		p.doFetch(Misprediction{}, true)
		p.nextIfid = p.ifid

	case hazardStall:
		// The instruction in ID/EX is a load whose result ID needs: bubble
		// ID/EX for one cycle and hold IF/ID (and the frontend) so the
		// same instruction is decoded again once the hazard clears.
		p.stallCount++
		p.nextIdex.Clear()
		p.doFetch(Misprediction{}, true)
		p.nextIfid = p.ifid

	default:
		p.doFetch(Misprediction{}, false)
		p.doDecode()
	}

	p.ifid = p.nextIfid
	p.idex = p.nextIdex
	p.exmem = p.nextExmem
	p.memwb = p.nextMemwb
}

// doWriteback commits memwb's result to the register file and counts the
// retiring instruction.
func (p *Pipeline) doWriteback() {
	if !p.memwb.Ctrl.Valid {
		return
	}
	p.writebackStage.Writeback(&p.memwb)
	p.instructionCount++

	if p.memwb.Ctrl.Wb.WriteReg && p.memwb.Rd == 10 {
		p.exitCode = int64(p.regFile.Read(10))
	}
}

// doMemory drives the dcache for exmem's access (if any) and produces
// nextMemwb. It returns whether MEM is still waiting on its own request —
// true for every cycle of a genuine miss's refill, but also for the
// cache's ordinary S0/S1/S2 fill latency on what will turn out to be a
// hit: MEM issues one request at a time and waits for it, unlike the
// fetch frontend, which pipelines a new request every cycle, so it goes
// through dcache.Access rather than Step directly.
func (p *Pipeline) doMemory() bool {
	if !p.exmem.Ctrl.Valid {
		p.dcache.Access(cache.Request{})
		p.nextMemwb.Clear()
		return false
	}

	mem := p.exmem.Ctrl.Mem
	req := cache.Request{
		Valid:      mem.MemRead || mem.MemWrite,
		Addr:       p.exmem.ALUResult,
		AccessType: mem.AccessType,
		IsWrite:    mem.MemWrite,
		WriteData:  p.exmem.Rs2Value,
	}

	resp, busy := p.dcache.Access(req)
	if req.Valid && busy {
		return true
	}

	p.nextMemwb = MEMWBLatch{
		Ctrl:      p.exmem.Ctrl,
		ALUResult: p.exmem.ALUResult,
		MemData:   resp.Data,
		Rd:        p.exmem.Rd,
	}
	return false
}

// executeOutcome bundles what doExecute hands back to Tick to drive the
// branch unit, since the EX/MEM latch itself isn't committed until the
// cycle's end.
type executeOutcome struct {
	Valid  bool
	Taken  bool
	Target uint64
}

// doExecute runs forwarding and the EX stage for idex, and resolves the
// branch outcome for whatever instruction is sitting in EX/MEM from last
// cycle (per spec section 4.5, branch resolution happens in MEM, one stage
// behind EX itself).
func (p *Pipeline) doExecute() executeOutcome {
	resolved := p.memStage.Resolve(&p.exmem)

	if !p.idex.Ctrl.Valid {
		p.nextExmem.Clear()
	} else {
		rs1Src := p.forwardUnit.Select(p.idex.Rs1, &p.exmem, &p.memwb)
		rs2Src := p.forwardUnit.Select(p.idex.Rs2, &p.exmem, &p.memwb)
		rs1Value := p.forwardUnit.Value(rs1Src, p.idex.Rs1Value, &p.exmem, &p.memwb)
		rs2Value := p.forwardUnit.Value(rs2Src, p.idex.Rs2Value, &p.exmem, &p.memwb)

		op0 := rs1Value
		op1 := rs2Value
		if p.idex.Ctrl.Ex.AluSrc == isa.AluSrcImm {
			op1 = uint64(p.idex.Imm)
		}

		out := p.executeStage.Execute(&p.idex, op0, op1, rs1Value)

		p.nextExmem = EXMEMLatch{
			Ctrl:         p.idex.Ctrl,
			BranchTarget: out.BranchTarget,
			Rs2Value:     rs2Value,
			ALUResult:    out.ALUResult,
			Flags:        ALUFlagsLatch{Zero: out.Flags.Zero, Sign: out.Flags.Sign, Overflow: out.Flags.Overflow},
			Rd:           p.idex.Rd,
		}
	}

	return executeOutcome{Valid: resolved.Valid, Taken: resolved.Taken, Target: resolved.Target}
}

// doDecode runs the decode stage against ifid's CURRENT content (the
// instruction occupying ID this cycle, fetched and latched last cycle) and
// installs the result into nextIdex. Only called when neither a flush nor
// a hazard bubble applies this cycle.
func (p *Pipeline) doDecode() {
	if !p.ifid.Valid {
		p.nextIdex.Clear()
		return
	}

	wbValid := p.memwb.Ctrl.Valid && p.memwb.Ctrl.Wb.WriteReg
	wbData := p.memwb.ALUResult
	if p.memwb.Ctrl.Wb.MemToReg {
		wbData = p.memwb.MemData
	}

	out := p.decodeStage.Decode(p.ifid.Inst, p.ifid.PC, p.ifid.PredictedNextPC, wbValid, p.memwb.Rd, wbData)

	p.nextIdex = IDEXLatch{
		Ctrl:     out.Ctrl,
		Imm:      out.Imm,
		Rs1:      out.Rs1,
		Rs2:      out.Rs2,
		Rd:       out.Rd,
		Rs1Value: out.Rs1Value,
		Rs2Value: out.Rs2Value,
	}
}

// doFetch steps the frontend by one cycle and installs its output into
// nextIfid, and drives the return-address stack exactly once per
// instruction actually handed off (gated on Advanced so a held instruction
// during a stall never double-pushes/pops). correction must be captured by
// the caller before clearing the branch unit's pending record.
func (p *Pipeline) doFetch(correction Misprediction, stall bool) {
	out := p.frontend.Step(correction, stall)

	if out.Valid && out.Advanced {
		ras := isa.HandleRasCtrl(out.Inst)
		p.frontend.RAS().Step(ras.Push, ras.Pop, out.PC+4)
	}

	if !out.Valid {
		p.nextIfid.Clear()
		return
	}
	p.nextIfid = IFIDLatch{Valid: true, PC: out.PC, Inst: out.Inst, PredictedNextPC: out.PredictedNextPC}
}

// Run executes the pipeline until it halts.
func (p *Pipeline) Run() int64 {
	for !p.halted {
		p.Tick()
	}
	return p.exitCode
}

// RunCycles executes at most n cycles, stopping early if the pipeline
// halts. Returns true if still running (not halted) afterward.
func (p *Pipeline) RunCycles(n uint64) bool {
	for i := uint64(0); i < n && !p.halted; i++ {
		p.Tick()
	}
	return !p.halted
}

// ProbeSnapshot is a point-in-time view of the pipeline's internal
// per-stage signals, supplementing the architectural Stats with the kind
// of mid-pipeline visibility amethyst's debug probe wiring exposes
// (if1_pc, if2_valid, ex_pc, dcache_cpu_req_valid, icache_stall,
// dcache_stall, ...). Returned as a plain snapshot struct rather than a
// channel or callback so sampling it never perturbs simulation timing.
type ProbeSnapshot struct {
	Frontend FrontendProbe

	IFIDValid bool
	IFIDPC    uint64

	IDEXValid bool
	IDEXPC    uint64

	EXMEMValid bool
	EXMEMPC    uint64

	MEMWBValid bool
	MEMWBPC    uint64

	DCacheReqValid bool
	ICacheStall    bool
	DCacheStall    bool

	Halted bool
}

// Probe samples the pipeline's current latch contents and cache stall
// signals without altering any state.
func (p *Pipeline) Probe() ProbeSnapshot {
	mem := p.exmem.Ctrl.Mem
	return ProbeSnapshot{
		Frontend: p.frontend.probe(),

		IFIDValid: p.ifid.Valid,
		IFIDPC:    p.ifid.PC,

		IDEXValid: p.idex.Ctrl.Valid,
		IDEXPC:    p.idex.Ctrl.PC,

		EXMEMValid: p.exmem.Ctrl.Valid,
		EXMEMPC:    p.exmem.Ctrl.PC,

		MEMWBValid: p.memwb.Ctrl.Valid,
		MEMWBPC:    p.memwb.Ctrl.PC,

		DCacheReqValid: p.exmem.Ctrl.Valid && (mem.MemRead || mem.MemWrite),
		ICacheStall:    p.frontend.icache.MissStall(),
		DCacheStall:    p.dcache.MissStall(),

		Halted: p.halted,
	}
}

// Reset clears every latch, the frontend, both caches, and all counters,
// returning the pipeline to its post-construction state at resetAddr.
func (p *Pipeline) Reset() {
	p.ifid.Clear()
	p.idex.Clear()
	p.exmem.Clear()
	p.memwb.Clear()
	p.nextIfid.Clear()
	p.nextIdex.Clear()
	p.nextExmem.Clear()
	p.nextMemwb.Clear()

	p.frontend.Reset(p.resetAddr)
	p.dcache.Reset()
	p.branchUnit.Clear()

	p.cycleCount = 0
	p.instructionCount = 0
	p.stallCount = 0
	p.flushCount = 0
	p.halted = false
	p.exitCode = 0
}
