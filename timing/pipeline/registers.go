// Package pipeline implements the 5-stage in-order RISC-V pipeline: its
// latches, hazard/forwarding machinery, branch prediction frontend, and
// set-associative instruction/data caches, wired per the core's stall and
// flush policy.
package pipeline

import "github.com/sarchlab/rv5sim/isa"

// IFLatch is one of the frontend's up-to-three in-flight fetch latches
// (IF1/IF2/IF3), per spec section 3: {valid, pc}.
type IFLatch struct {
	Valid bool
	PC    uint64
}

// Clear resets the latch to a bubble.
func (l *IFLatch) Clear() { *l = IFLatch{} }

// IFIDLatch is the IF/ID pipeline register: {valid, pc}, plus the
// frontend's predicted-next-PC for this instruction (carried forward so
// decode can stamp it onto Ctrl without re-deriving it from frontend state
// a cycle late).
type IFIDLatch struct {
	Valid           bool
	PC              uint64
	Inst            uint32
	PredictedNextPC uint64
}

// Clear resets the latch to a bubble.
func (l *IFIDLatch) Clear() { *l = IFIDLatch{} }

// Ctrl bundles everything decode hands downstream for one instruction:
// {valid, raw instruction word, pc, ex_ctrl, mem_ctrl, wb_ctrl}.
type Ctrl struct {
	Valid bool
	Inst  uint32
	PC    uint64
	Name  string
	Ex    isa.ExCtrl
	Mem   isa.MemCtrl
	Wb    isa.WbCtrl

	// PredictedNextPC is the address the frontend actually fetched after
	// this instruction, carried alongside it through every latch so the
	// BranchUnit can compare it against the resolved target in MEM without
	// needing a second, laggingly-indexed lookup into frontend state.
	PredictedNextPC uint64
}

// IDEXLatch is the ID/EX pipeline register: {ctrl, imm} plus the register
// values and source/destination addresses decode has already resolved.
type IDEXLatch struct {
	Ctrl Ctrl
	Imm  int64

	Rs1, Rs2, Rd uint32
	Rs1Value     uint64
	Rs2Value     uint64
}

// Clear resets the latch to a bubble.
func (l *IDEXLatch) Clear() { *l = IDEXLatch{} }

// EXMEMLatch is the EX/MEM pipeline register: {ctrl, branch_target,
// rs2_data, alu_result, alu_flags}.
type EXMEMLatch struct {
	Ctrl         Ctrl
	BranchTarget uint64
	Rs2Value     uint64
	ALUResult    uint64
	Flags        ALUFlagsLatch
	Rd           uint32
}

// ALUFlagsLatch mirrors emu.ALUFlags without importing emu into the
// latch-only package boundary that registers.go otherwise keeps free of
// stage logic.
type ALUFlagsLatch struct {
	Zero, Sign, Overflow bool
}

// Clear resets the latch to a bubble.
func (l *EXMEMLatch) Clear() { *l = EXMEMLatch{} }

// MEMWBLatch is the MEM/WB pipeline register: {ctrl, alu_result}, plus the
// data a load produced (if any) and the destination register.
type MEMWBLatch struct {
	Ctrl      Ctrl
	ALUResult uint64
	MemData   uint64
	Rd        uint32
}

// Clear resets the latch to a bubble.
func (l *MEMWBLatch) Clear() { *l = MEMWBLatch{} }
