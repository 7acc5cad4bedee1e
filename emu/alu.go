package emu

import (
	"math/bits"

	"github.com/sarchlab/rv5sim/isa"
)

// ALUFlags are the condition flags produced alongside an ALU result, used
// by MemStage's branch-resolution table.
type ALUFlags struct {
	// Zero is true when the result is all-zero bits.
	Zero bool
	// Sign is the result's most-significant bit.
	Sign bool
	// Overflow is, for SUB, the unsigned less-than indicator (op0 < op1);
	// for ADD, the unsigned carry-out. Branch resolution only ever reads
	// this after a SUB (alu_op==BRANCH always selects SUB), where it
	// doubles as the unsigned comparison result feeding BranchLTU/BranchGEQU.
	Overflow bool
}

// ALU is the pure combinational arithmetic/logic unit described in
// spec.md §4.4: (op0, op1, alu_inst) -> (result, flags). It carries no
// state and is safe to share across calls.
type ALU struct{}

// NewALU constructs an ALU. It holds no state; the constructor exists to
// match the stage-constructor idiom used throughout the rest of the pipeline.
func NewALU() *ALU { return &ALU{} }

func maskFor(width int) uint64 {
	if width >= 64 {
		return ^uint64(0)
	}
	return (uint64(1) << uint(width)) - 1
}

// Compute evaluates the ALU for the given operation at the given
// architectural width (32 or 64). Shift amounts use the low 6 bits of op1
// (the RV64 encoding; RV32 shift-amount immediates naturally have the high
// bit clear).
func (a *ALU) Compute(op0, op1 uint64, inst isa.AluInstruction, width int) (uint64, ALUFlags) {
	mask := maskFor(width)
	shamt := uint(op1 & 0x3f)

	var raw uint64
	switch inst {
	case isa.AluAND:
		raw = op0 & op1
	case isa.AluOR:
		raw = op0 | op1
	case isa.AluXOR:
		raw = op0 ^ op1
	case isa.AluADD:
		raw = op0 + op1
	case isa.AluSUB:
		raw = op0 - op1
	case isa.AluSLL:
		raw = op0 << shamt
	case isa.AluSRL:
		raw = (op0 & mask) >> shamt
	default:
		raw = op0 + op1
	}

	result := raw & mask

	flags := ALUFlags{
		Zero: result == 0,
		Sign: (result>>uint(width-1))&1 == 1,
	}

	switch inst {
	case isa.AluSUB:
		flags.Overflow = (op0 & mask) < (op1 & mask)
	case isa.AluADD:
		if width >= 64 {
			_, carry := bits.Add64(op0, op1, 0)
			flags.Overflow = carry == 1
		} else {
			wide := (op0 & mask) + (op1 & mask)
			flags.Overflow = (wide>>uint(width))&1 == 1
		}
	}

	return result, flags
}
