// Package isa provides the static RV32I/RV64I instruction and ALU-control
// tables, bit-field extraction, and immediate generation.
//
// The tables are declarative: each row is a Pattern (opcode, and optionally
// funct3/funct7) paired with the control bundles it produces. Decoding is a
// linear scan for the unique matching row; an encoding matching no row
// decodes to nop.
package isa

// Opcode extracts inst[6:0].
func Opcode(inst uint32) uint32 { return inst & 0x7f }

// Rd extracts inst[11:7], the destination register.
func Rd(inst uint32) uint32 { return (inst >> 7) & 0x1f }

// Funct3 extracts inst[14:12].
func Funct3(inst uint32) uint32 { return (inst >> 12) & 0x7 }

// Rs1 extracts inst[19:15], the first source register.
func Rs1(inst uint32) uint32 { return (inst >> 15) & 0x1f }

// Rs2 extracts inst[24:20], the second source register.
func Rs2(inst uint32) uint32 { return (inst >> 20) & 0x1f }

// Funct7 extracts inst[31:25].
func Funct7(inst uint32) uint32 { return (inst >> 25) & 0x7f }

// Opcode values used by the supported instruction subset.
const (
	OpcodeLoad   uint32 = 0b0000011
	OpcodeStore  uint32 = 0b0100011
	OpcodeBranch uint32 = 0b1100011
	OpcodeJALR   uint32 = 0b1100111
	OpcodeJAL    uint32 = 0b1101111
	OpcodeOpImm  uint32 = 0b0010011
	OpcodeOp     uint32 = 0b0110011
	OpcodeLUI    uint32 = 0b0110111
	OpcodeAUIPC  uint32 = 0b0010111
)

// AluSrc selects the second ALU operand source at decode time.
type AluSrc uint8

const (
	// AluSrcRS2 selects the decoded rs2 value (register-register ops).
	AluSrcRS2 AluSrc = iota
	// AluSrcImm selects the generated immediate (register-immediate ops).
	AluSrcImm
)

// AluOp is the coarse ALU-control-table selector.
type AluOp uint8

const (
	AluOpImm    AluOp = 0b00
	AluOpReg    AluOp = 0b01
	AluOpBranch AluOp = 0b10
)

// BranchType selects the branch-resolution predicate in MemStage.
type BranchType uint8

const (
	BranchEQ   BranchType = 0b000
	BranchNEQ  BranchType = 0b001
	BranchLT   BranchType = 0b100
	BranchGEQ  BranchType = 0b101
	BranchLTU  BranchType = 0b110
	BranchGEQU BranchType = 0b111
)

// AluInstruction selects the concrete ALU operation.
type AluInstruction uint8

const (
	AluAND AluInstruction = 0b0000
	AluOR  AluInstruction = 0b0001
	AluADD AluInstruction = 0b0010
	AluSUB AluInstruction = 0b0110
	AluXOR AluInstruction = 0b0101
	AluSRL AluInstruction = 0b1000
	AluSLL AluInstruction = 0b1001
)

// Format is the RISC-V instruction encoding format, used only to select
// immediate generation; it has no other effect on control.
type Format uint8

const (
	FormatR Format = iota
	FormatI
	FormatS
	FormatB
	FormatU
	FormatJ
)

// ExCtrl is the execute-stage control bundle.
type ExCtrl struct {
	AluSrc  AluSrc
	AluOp   AluOp
	Lui     bool
	Auipc   bool
	Jalr    bool
	Funct3  uint32
	Funct7  uint32
}

// MemCtrl is the mem-stage control bundle.
type MemCtrl struct {
	Branch     bool
	BranchType BranchType
	Jal        bool
	MemWrite   bool
	MemRead    bool
	// AccessType selects the aligner lane/extension for loads and stores.
	AccessType AccessType
}

// WbCtrl is the writeback-stage control bundle.
type WbCtrl struct {
	MemToReg bool
	WriteReg bool
}

// AccessType mirrors amethyst's access_rtype enum for the Aligner.
type AccessType uint8

const (
	AccessB AccessType = iota
	AccessH
	AccessW
	AccessD
	AccessBU
	AccessHU
	AccessWU
)

// MemCtrlNop is the all-zero mem_ctrl bundle (no memory access, no branch).
var MemCtrlNop = MemCtrl{}

// MemCtrlLoad builds a mem_ctrl bundle for a load of the given access type.
func MemCtrlLoad(at AccessType) MemCtrl {
	return MemCtrl{MemRead: true, AccessType: at}
}

// MemCtrlStore builds a mem_ctrl bundle for a store of the given access type.
func MemCtrlStore(at AccessType) MemCtrl {
	return MemCtrl{MemWrite: true, AccessType: at}
}

// MemCtrlJal builds a mem_ctrl bundle for jal (always taken, no branch compare).
func MemCtrlJal() MemCtrl {
	return MemCtrl{Jal: true}
}

// MemCtrlBranchOf builds a mem_ctrl bundle for a conditional branch of the given type.
func MemCtrlBranchOf(bt BranchType) MemCtrl {
	return MemCtrl{Branch: true, BranchType: bt}
}

// WbCtrlNop is the all-zero wb_ctrl bundle.
var WbCtrlNop = WbCtrl{}

// WbCtrlReg builds a wb_ctrl bundle for an ALU-result write.
var WbCtrlReg = WbCtrl{WriteReg: true}

// WbCtrlLoad builds a wb_ctrl bundle for a memory-result write.
var WbCtrlLoad = WbCtrl{WriteReg: true, MemToReg: true}

// Pattern matches an instruction encoding. A zero-value *uint32 field member
// (nil) means "wildcard"; Match evaluates opcode equality and funct3/funct7
// match-or-wildcard.
type Pattern struct {
	Opcode uint32
	Funct3 *uint32
	Funct7 *uint32
}

// Match reports whether inst's opcode/funct3/funct7 fields satisfy p.
func (p Pattern) Match(inst uint32) bool {
	if Opcode(inst) != p.Opcode {
		return false
	}
	if p.Funct3 != nil && Funct3(inst) != *p.Funct3 {
		return false
	}
	if p.Funct7 != nil && Funct7(inst) != *p.Funct7 {
		return false
	}
	return true
}

func f3(v uint32) *uint32 { return &v }
func f7(v uint32) *uint32 { return &v }

// InstRow is one row of the static instruction table.
type InstRow struct {
	Name   string
	Format Format
	Pat    Pattern
	Ex     ExCtrl
	Mem    MemCtrl
	Wb     WbCtrl
}

// InstructionTable is the static {opcode,funct3,funct7} -> control mapping
// reproducing the RV32I base integer subset plus jalr, jal, lui, per
// amethyst/support/instructions.py.
var InstructionTable = []InstRow{
	// R-type register-register arithmetic.
	{"add", FormatR, Pattern{OpcodeOp, f3(0b000), f7(0b0000000)}, ExCtrl{AluSrc: AluSrcRS2, AluOp: AluOpReg}, MemCtrlNop, WbCtrlReg},
	{"sub", FormatR, Pattern{OpcodeOp, f3(0b000), f7(0b0100000)}, ExCtrl{AluSrc: AluSrcRS2, AluOp: AluOpReg}, MemCtrlNop, WbCtrlReg},
	{"sll", FormatR, Pattern{OpcodeOp, f3(0b001), nil}, ExCtrl{AluSrc: AluSrcRS2, AluOp: AluOpReg}, MemCtrlNop, WbCtrlReg},
	{"xor", FormatR, Pattern{OpcodeOp, f3(0b100), nil}, ExCtrl{AluSrc: AluSrcRS2, AluOp: AluOpReg}, MemCtrlNop, WbCtrlReg},
	{"srl", FormatR, Pattern{OpcodeOp, f3(0b101), nil}, ExCtrl{AluSrc: AluSrcRS2, AluOp: AluOpReg}, MemCtrlNop, WbCtrlReg},
	{"or", FormatR, Pattern{OpcodeOp, f3(0b110), nil}, ExCtrl{AluSrc: AluSrcRS2, AluOp: AluOpReg}, MemCtrlNop, WbCtrlReg},
	{"and", FormatR, Pattern{OpcodeOp, f3(0b111), nil}, ExCtrl{AluSrc: AluSrcRS2, AluOp: AluOpReg}, MemCtrlNop, WbCtrlReg},

	// I-type loads.
	{"lb", FormatI, Pattern{OpcodeLoad, f3(0b000), nil}, ExCtrl{AluSrc: AluSrcImm, AluOp: AluOpImm}, MemCtrlLoad(AccessB), WbCtrlLoad},
	{"lh", FormatI, Pattern{OpcodeLoad, f3(0b001), nil}, ExCtrl{AluSrc: AluSrcImm, AluOp: AluOpImm}, MemCtrlLoad(AccessH), WbCtrlLoad},
	{"lw", FormatI, Pattern{OpcodeLoad, f3(0b010), nil}, ExCtrl{AluSrc: AluSrcImm, AluOp: AluOpImm}, MemCtrlLoad(AccessW), WbCtrlLoad},
	{"ld", FormatI, Pattern{OpcodeLoad, f3(0b011), nil}, ExCtrl{AluSrc: AluSrcImm, AluOp: AluOpImm}, MemCtrlLoad(AccessD), WbCtrlLoad},
	{"lbu", FormatI, Pattern{OpcodeLoad, f3(0b100), nil}, ExCtrl{AluSrc: AluSrcImm, AluOp: AluOpImm}, MemCtrlLoad(AccessBU), WbCtrlLoad},
	{"lhu", FormatI, Pattern{OpcodeLoad, f3(0b101), nil}, ExCtrl{AluSrc: AluSrcImm, AluOp: AluOpImm}, MemCtrlLoad(AccessHU), WbCtrlLoad},
	{"lwu", FormatI, Pattern{OpcodeLoad, f3(0b110), nil}, ExCtrl{AluSrc: AluSrcImm, AluOp: AluOpImm}, MemCtrlLoad(AccessWU), WbCtrlLoad},

	// I-type register-immediate arithmetic.
	{"addi", FormatI, Pattern{OpcodeOpImm, f3(0b000), nil}, ExCtrl{AluSrc: AluSrcImm, AluOp: AluOpImm}, MemCtrlNop, WbCtrlReg},
	{"slli", FormatI, Pattern{OpcodeOpImm, f3(0b001), nil}, ExCtrl{AluSrc: AluSrcImm, AluOp: AluOpImm}, MemCtrlNop, WbCtrlReg},
	{"xori", FormatI, Pattern{OpcodeOpImm, f3(0b100), nil}, ExCtrl{AluSrc: AluSrcImm, AluOp: AluOpImm}, MemCtrlNop, WbCtrlReg},
	{"srli", FormatI, Pattern{OpcodeOpImm, f3(0b101), nil}, ExCtrl{AluSrc: AluSrcImm, AluOp: AluOpImm}, MemCtrlNop, WbCtrlReg},
	{"ori", FormatI, Pattern{OpcodeOpImm, f3(0b110), nil}, ExCtrl{AluSrc: AluSrcImm, AluOp: AluOpImm}, MemCtrlNop, WbCtrlReg},
	{"andi", FormatI, Pattern{OpcodeOpImm, f3(0b111), nil}, ExCtrl{AluSrc: AluSrcImm, AluOp: AluOpImm}, MemCtrlNop, WbCtrlReg},

	// jalr.
	{"jalr", FormatI, Pattern{OpcodeJALR, f3(0b000), nil}, ExCtrl{AluSrc: AluSrcImm, AluOp: AluOpImm, Jalr: true}, MemCtrlJal(), WbCtrlReg},

	// S-type stores.
	{"sb", FormatS, Pattern{OpcodeStore, f3(0b000), nil}, ExCtrl{AluSrc: AluSrcImm, AluOp: AluOpImm}, MemCtrlStore(AccessB), WbCtrlNop},
	{"sh", FormatS, Pattern{OpcodeStore, f3(0b001), nil}, ExCtrl{AluSrc: AluSrcImm, AluOp: AluOpImm}, MemCtrlStore(AccessH), WbCtrlNop},
	{"sw", FormatS, Pattern{OpcodeStore, f3(0b010), nil}, ExCtrl{AluSrc: AluSrcImm, AluOp: AluOpImm}, MemCtrlStore(AccessW), WbCtrlNop},
	{"sd", FormatS, Pattern{OpcodeStore, f3(0b011), nil}, ExCtrl{AluSrc: AluSrcImm, AluOp: AluOpImm}, MemCtrlStore(AccessD), WbCtrlNop},

	// B-type conditional branches.
	{"beq", FormatB, Pattern{OpcodeBranch, f3(0b000), nil}, ExCtrl{AluOp: AluOpBranch}, MemCtrlBranchOf(BranchEQ), WbCtrlNop},
	{"bne", FormatB, Pattern{OpcodeBranch, f3(0b001), nil}, ExCtrl{AluOp: AluOpBranch}, MemCtrlBranchOf(BranchNEQ), WbCtrlNop},
	{"blt", FormatB, Pattern{OpcodeBranch, f3(0b100), nil}, ExCtrl{AluOp: AluOpBranch}, MemCtrlBranchOf(BranchLT), WbCtrlNop},
	{"bge", FormatB, Pattern{OpcodeBranch, f3(0b101), nil}, ExCtrl{AluOp: AluOpBranch}, MemCtrlBranchOf(BranchGEQ), WbCtrlNop},
	{"bltu", FormatB, Pattern{OpcodeBranch, f3(0b110), nil}, ExCtrl{AluOp: AluOpBranch}, MemCtrlBranchOf(BranchLTU), WbCtrlNop},
	{"bgeu", FormatB, Pattern{OpcodeBranch, f3(0b111), nil}, ExCtrl{AluOp: AluOpBranch}, MemCtrlBranchOf(BranchGEQU), WbCtrlNop},

	// U-type.
	{"lui", FormatU, Pattern{OpcodeLUI, nil, nil}, ExCtrl{Lui: true}, MemCtrlNop, WbCtrlReg},
	{"auipc", FormatU, Pattern{OpcodeAUIPC, nil, nil}, ExCtrl{Auipc: true}, MemCtrlNop, WbCtrlReg},

	// J-type.
	{"jal", FormatJ, Pattern{OpcodeJAL, nil, nil}, ExCtrl{}, MemCtrlJal(), WbCtrlReg},
}

// AluControlRow is one row of the ALU-control table.
type AluControlRow struct {
	AluOp  AluOp
	Funct3 *uint32
	Funct7 *uint32
	Inst   AluInstruction
}

// AluControlTable maps {alu_op, funct3?, funct7?} to the concrete ALU
// operation, per amethyst/backend/execute.go's AluControl. alu_op==BRANCH
// always selects SUB so the comparison flags fall out of the subtraction.
// Rows are scanned in order; the first match wins.
var AluControlTable = []AluControlRow{
	{AluOpBranch, nil, nil, AluSUB},

	{AluOpReg, f3(0b000), f7(0b0100000), AluSUB},
	{AluOpReg, f3(0b000), f7(0b0000000), AluADD},
	{AluOpReg, f3(0b001), nil, AluSLL},
	{AluOpReg, f3(0b100), nil, AluXOR},
	{AluOpReg, f3(0b101), nil, AluSRL},
	{AluOpReg, f3(0b110), nil, AluOR},
	{AluOpReg, f3(0b111), nil, AluAND},

	{AluOpImm, f3(0b000), nil, AluADD},
	{AluOpImm, f3(0b001), nil, AluSLL},
	{AluOpImm, f3(0b100), nil, AluXOR},
	{AluOpImm, f3(0b101), nil, AluSRL},
	{AluOpImm, f3(0b110), nil, AluOR},
	{AluOpImm, f3(0b111), nil, AluAND},
}

// AluControl resolves the concrete ALU operation for an execute-stage
// control bundle carrying the given alu_op/funct3/funct7.
func AluControl(aluOp AluOp, funct3, funct7 uint32) AluInstruction {
	for _, row := range AluControlTable {
		if row.AluOp != aluOp {
			continue
		}
		if row.Funct3 != nil && *row.Funct3 != funct3 {
			continue
		}
		if row.Funct7 != nil && *row.Funct7 != funct7 {
			continue
		}
		return row.Inst
	}
	return AluADD
}

// BranchResolve evaluates the branch-resolution table from spec.md §4.5:
// the SUB-flags table EQ:zero, NEQ:!zero, LT:sign, GEQ:!sign, LTU:overflow,
// GEQU:!overflow. overflow here is the unsigned-subtract borrow indicator
// (see ALUFlags in the emu package).
func BranchResolve(bt BranchType, zero, sign, overflow bool) bool {
	switch bt {
	case BranchEQ:
		return zero
	case BranchNEQ:
		return !zero
	case BranchLT:
		return sign
	case BranchGEQ:
		return !sign
	case BranchLTU:
		return overflow
	case BranchGEQU:
		return !overflow
	default:
		return false
	}
}
