package pipeline

import (
	"github.com/sarchlab/rv5sim/emu"
	"github.com/sarchlab/rv5sim/isa"
)

// DecodeStage parses the fetched instruction word, generates its immediate,
// looks up its control bundles, and reads the register file (with
// write-before-read bypass against this cycle's committing writeback).
type DecodeStage struct {
	regFile *emu.RegFile
}

// NewDecodeStage constructs a decode stage bound to regFile.
func NewDecodeStage(regFile *emu.RegFile) *DecodeStage {
	return &DecodeStage{regFile: regFile}
}

// DecodeOutput is everything decode hands to the ID/EX latch.
type DecodeOutput struct {
	Ctrl     Ctrl
	Imm      int64
	Rs1, Rs2 uint32
	Rd       uint32
	Rs1Value uint64
	Rs2Value uint64
	RasCtrl  isa.RasCtrl
}

// Decode runs the decode stage combinationally for one fetched word at pc,
// with wbValid/wbAddr/wbData describing this cycle's in-flight writeback
// for the bypass rule.
func (s *DecodeStage) Decode(inst uint32, pc, predictedNext uint64, wbValid bool, wbAddr uint32, wbData uint64) DecodeOutput {
	ctrl := isa.Decode(inst)
	rs1 := isa.Rs1(inst)
	rs2 := isa.Rs2(inst)
	rd := isa.Rd(inst)

	out := DecodeOutput{
		Ctrl: Ctrl{
			Valid:           true,
			Inst:            inst,
			PC:              pc,
			Name:            ctrl.Name,
			Ex:              ctrl.Ex,
			Mem:             ctrl.Mem,
			Wb:              ctrl.Wb,
			PredictedNextPC: predictedNext,
		},
		Imm:      isa.Immediate(inst, ctrl.Format),
		Rs1:      rs1,
		Rs2:      rs2,
		Rd:       rd,
		Rs1Value: s.regFile.ReadBypassed(rs1, wbValid, wbAddr, wbData),
		Rs2Value: s.regFile.ReadBypassed(rs2, wbValid, wbAddr, wbData),
		RasCtrl:  isa.HandleRasCtrl(inst),
	}
	return out
}

// ExecuteStage resolves the ALU control, applies the already-forwarded
// operands, computes the branch target, and decides dcache issue.
type ExecuteStage struct {
	alu   *emu.ALU
	width int
}

// NewExecuteStage constructs an execute stage operating at the given
// architectural width (32 or 64).
func NewExecuteStage(width int) *ExecuteStage {
	return &ExecuteStage{alu: emu.NewALU(), width: width}
}

// ExecuteOutput is everything execute hands to the EX/MEM latch.
type ExecuteOutput struct {
	ALUResult    uint64
	Flags        emu.ALUFlags
	BranchTarget uint64
}

// Execute runs the execute stage combinationally. op0/op1 are the
// already-forwarded source values; rs1Value is additionally needed
// separately from op0 because jalr's branch target is always rs1+imm
// regardless of which alu_src the control bundle selects.
func (s *ExecuteStage) Execute(idex *IDEXLatch, op0, op1, rs1Value uint64) ExecuteOutput {
	ex := idex.Ctrl.Ex

	var out ExecuteOutput

	switch {
	case ex.Lui:
		out.ALUResult = uint64(idex.Imm)
	case ex.Auipc:
		out.ALUResult = idex.Ctrl.PC + uint64(idex.Imm)
	default:
		inst := isa.AluControl(ex.AluOp, ex.Funct3, ex.Funct7)
		result, flags := s.alu.Compute(op0, op1, inst, s.width)
		out.ALUResult = result
		out.Flags = flags
	}

	// jal and jalr write their link address, pc+4, to rd.
	if idex.Ctrl.Mem.Jal {
		out.ALUResult = idex.Ctrl.PC + 4
	}

	if ex.Jalr {
		out.BranchTarget = (rs1Value + uint64(idex.Imm)) &^ 1
	} else {
		out.BranchTarget = idex.Ctrl.PC + uint64(idex.Imm)
	}

	return out
}

// MemStage resolves the branch outcome and sequences the dcache access,
// per spec section 4.5.
type MemStage struct{}

// NewMemStage constructs a mem stage. It is stateless; the dcache itself is
// driven directly by the top pipeline since its ready/valid handshake spans
// multiple cycles.
func NewMemStage() *MemStage { return &MemStage{} }

// BranchOutcome is MEM's branch-resolution result.
type BranchOutcome struct {
	Valid  bool
	Taken  bool
	Target uint64
}

// Resolve implements spec section 4.5's branch.valid/taken/target logic.
func (m *MemStage) Resolve(exmem *EXMEMLatch) BranchOutcome {
	mem := exmem.Ctrl.Mem
	valid := exmem.Ctrl.Valid && (mem.Branch || mem.Jal)
	if !valid {
		return BranchOutcome{}
	}

	taken := mem.Jal
	if mem.Branch {
		taken = isa.BranchResolve(mem.BranchType, exmem.Flags.Zero, exmem.Flags.Sign, exmem.Flags.Overflow)
	}

	target := exmem.Ctrl.PC + 4
	if (mem.Branch && taken) || mem.Jal {
		target = exmem.BranchTarget
	}

	return BranchOutcome{Valid: true, Taken: taken, Target: target}
}

// WritebackStage selects the writeback value and drives the register file.
type WritebackStage struct {
	regFile *emu.RegFile
}

// NewWritebackStage constructs a writeback stage bound to regFile.
func NewWritebackStage(regFile *emu.RegFile) *WritebackStage {
	return &WritebackStage{regFile: regFile}
}

// Writeback commits memwb's result, per spec section 4.6:
// w_addr = rd, w_data = mem_read_data if mem_to_reg else alu_result,
// w_en = write_reg ∧ ctrl.valid.
func (w *WritebackStage) Writeback(memwb *MEMWBLatch) {
	if !memwb.Ctrl.Valid || !memwb.Ctrl.Wb.WriteReg {
		return
	}

	value := memwb.ALUResult
	if memwb.Ctrl.Wb.MemToReg {
		value = memwb.MemData
	}

	w.regFile.Write(memwb.Rd, value)
}
