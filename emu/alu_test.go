package emu_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/rv5sim/emu"
	"github.com/sarchlab/rv5sim/isa"
)

var _ = Describe("ALU", func() {
	var alu *emu.ALU

	BeforeEach(func() {
		alu = emu.NewALU()
	})

	It("adds two 32-bit operands and masks to width", func() {
		result, flags := alu.Compute(1, 2, isa.AluADD, 32)
		Expect(result).To(Equal(uint64(3)))
		Expect(flags.Zero).To(BeFalse())
	})

	It("sets Zero when the result is zero", func() {
		result, flags := alu.Compute(5, 5, isa.AluSUB, 32)
		Expect(result).To(Equal(uint64(0)))
		Expect(flags.Zero).To(BeTrue())
	})

	It("sets Sign from the result's top bit at the given width", func() {
		_, flags := alu.Compute(0, 1, isa.AluSUB, 32)
		Expect(flags.Sign).To(BeTrue())
	})

	It("computes unsigned-less-than as SUB's overflow flag", func() {
		_, flagsLT := alu.Compute(1, 2, isa.AluSUB, 32)
		Expect(flagsLT.Overflow).To(BeTrue())

		_, flagsGE := alu.Compute(2, 1, isa.AluSUB, 32)
		Expect(flagsGE.Overflow).To(BeFalse())
	})

	It("masks a 32-bit result so upper bits don't leak", func() {
		result, _ := alu.Compute(0xffffffff, 1, isa.AluADD, 32)
		Expect(result).To(Equal(uint64(0)))
	})

	It("does not mask a 64-bit result to 32 bits", func() {
		result, _ := alu.Compute(0xffffffff, 1, isa.AluADD, 64)
		Expect(result).To(Equal(uint64(0x100000000)))
	})

	It("shifts left using the low bits of op1 as the shift amount", func() {
		result, _ := alu.Compute(1, 4, isa.AluSLL, 32)
		Expect(result).To(Equal(uint64(16)))
	})

	It("shifts right logically, ignoring sign", func() {
		result, _ := alu.Compute(0x80000000, 31, isa.AluSRL, 32)
		Expect(result).To(Equal(uint64(1)))
	})

	It("computes bitwise AND, OR, and XOR", func() {
		and, _ := alu.Compute(0b1100, 0b1010, isa.AluAND, 32)
		or, _ := alu.Compute(0b1100, 0b1010, isa.AluOR, 32)
		xor, _ := alu.Compute(0b1100, 0b1010, isa.AluXOR, 32)
		Expect(and).To(Equal(uint64(0b1000)))
		Expect(or).To(Equal(uint64(0b1110)))
		Expect(xor).To(Equal(uint64(0b0110)))
	})

	It("reports carry-out as Overflow for a 64-bit ADD", func() {
		_, flags := alu.Compute(^uint64(0), 1, isa.AluADD, 64)
		Expect(flags.Overflow).To(BeTrue())
	})
})
