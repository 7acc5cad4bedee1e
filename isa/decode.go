package isa

// Control is the full decode result for one instruction: the three
// pre-packaged control bundles, the instruction's format (used only to pick
// immediate generation), and its name (for debug/trace, not used by the
// pipeline's control flow).
type Control struct {
	Name   string
	Format Format
	Ex     ExCtrl
	Mem    MemCtrl
	Wb     WbCtrl
}

// nop is the control emitted for any encoding matching no table row:
// all-zero bundles, which drive no ALU side effect, no memory access, and
// no register write.
var nop = Control{
	Name:   "nop",
	Format: FormatI,
	Ex:     ExCtrl{},
	Mem:    MemCtrlNop,
	Wb:     WbCtrlNop,
}

// Decode looks up inst's control bundle in the static instruction table.
// An encoding matching no row silently decodes to nop, per spec.
func Decode(inst uint32) Control {
	for _, row := range InstructionTable {
		if row.Pat.Match(inst) {
			// Register-register and register-immediate arithmetic select
			// their ALU operation by funct3/funct7; loads, stores and jumps
			// always add.
			ex := row.Ex
			if row.Pat.Opcode == OpcodeOp || row.Pat.Opcode == OpcodeOpImm {
				ex.Funct3 = Funct3(inst)
				ex.Funct7 = Funct7(inst)
			}
			return Control{
				Name:   row.Name,
				Format: row.Format,
				Ex:     ex,
				Mem:    row.Mem,
				Wb:     row.Wb,
			}
		}
	}
	return nop
}

// Immediate composes the sign-extended immediate for inst according to
// format, by the bit-ranges of the RISC-V R/I/S/B/U/J encodings.
func Immediate(inst uint32, format Format) int64 {
	switch format {
	case FormatI:
		return signExtend(inst>>20, 12)
	case FormatS:
		imm := (inst>>7)&0x1f | ((inst >> 25) & 0x7f << 5)
		return signExtend(imm, 12)
	case FormatB:
		imm := ((inst >> 8) & 0xf << 1) |
			((inst >> 25) & 0x3f << 5) |
			((inst >> 7) & 0x1 << 11) |
			((inst >> 31) & 0x1 << 12)
		return signExtend(imm, 13)
	case FormatU:
		return int64(int32(inst & 0xfffff000))
	case FormatJ:
		imm := ((inst >> 21) & 0x3ff << 1) |
			((inst >> 20) & 0x1 << 11) |
			((inst >> 12) & 0xff << 12) |
			((inst >> 31) & 0x1 << 20)
		return signExtend(imm, 21)
	default:
		return 0
	}
}

// signExtend treats v's low `bits` bits as a two's-complement value and
// sign-extends to int64 using bit (bits-1) as the sign.
func signExtend(v uint32, bits uint) int64 {
	shift := 32 - bits
	return int64(int32(v<<shift)) >> shift
}

// RasCtrl is the frontend's push/pop request, derived purely from the
// instruction's opcode and its rd/rs1 fields per the RISC-V calling
// convention's link-register rules (x1=ra, x5=alt-link).
type RasCtrl struct {
	Push bool
	Pop  bool
}

func isLinkReg(r uint32) bool { return r == 1 || r == 5 }

// HandleRasCtrl computes the RAS push/pop request for a jalr instruction at
// decode time: push if rd is a link register; pop if rs1 is a link register
// and either push is not also asserted, or rs1 differs from rd (a
// call-and-return via the same register, e.g. `jalr x1,0(x1)`, only pushes).
func HandleRasCtrl(inst uint32) RasCtrl {
	if Opcode(inst) != OpcodeJALR {
		return RasCtrl{}
	}

	rd := Rd(inst)
	rs1 := Rs1(inst)

	push := isLinkReg(rd)
	pop := false
	if !push {
		pop = isLinkReg(rs1)
	} else {
		pop = isLinkReg(rs1) && rs1 != rd
	}

	return RasCtrl{Push: push, Pop: pop}
}
