package pipeline_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/rv5sim/config"
	"github.com/sarchlab/rv5sim/emu"
	"github.com/sarchlab/rv5sim/isa"
	"github.com/sarchlab/rv5sim/timing/pipeline"
)

func rType(funct7, rs2, rs1, funct3, rd, opcode uint32) uint32 {
	return funct7<<25 | rs2<<20 | rs1<<15 | funct3<<12 | rd<<7 | opcode
}

func iType(imm int32, rs1, funct3, rd, opcode uint32) uint32 {
	return uint32(imm)<<20 | rs1<<15 | funct3<<12 | rd<<7 | opcode
}

func sType(imm int32, rs2, rs1, funct3, opcode uint32) uint32 {
	u := uint32(imm)
	return (u>>5&0x7f)<<25 | rs2<<20 | rs1<<15 | funct3<<12 | (u&0x1f)<<7 | opcode
}

func bType(imm int32, rs2, rs1, funct3, opcode uint32) uint32 {
	u := uint32(imm)
	return (u>>12&0x1)<<31 | (u>>5&0x3f)<<25 | rs2<<20 | rs1<<15 | funct3<<12 |
		(u>>1&0xf)<<8 | (u>>11&0x1)<<7 | opcode
}

func jType(imm int32, rd, opcode uint32) uint32 {
	u := uint32(imm)
	return (u>>20&0x1)<<31 | (u>>1&0x3ff)<<21 | (u>>11&0x1)<<20 | (u>>12&0xff)<<12 | rd<<7 | opcode
}

func addi(rd, rs1 uint32, imm int32) uint32 { return iType(imm, rs1, 0b000, rd, isa.OpcodeOpImm) }
func add(rd, rs1, rs2 uint32) uint32        { return rType(0, rs2, rs1, 0b000, rd, isa.OpcodeOp) }
func lw(rd, rs1 uint32, imm int32) uint32   { return iType(imm, rs1, 0b010, rd, isa.OpcodeLoad) }
func sw(rs2, rs1 uint32, imm int32) uint32  { return sType(imm, rs2, rs1, 0b010, isa.OpcodeStore) }
func bne(rs1, rs2 uint32, imm int32) uint32 { return bType(imm, rs2, rs1, 0b001, isa.OpcodeBranch) }

const jalSelf = isa.OpcodeJAL // jal x0, . : rd=0, offset=0 -> self-targeting halt

var _ = Describe("Pipeline", func() {
	var (
		regFile *emu.RegFile
		memory  *emu.Memory
		p       *pipeline.Pipeline
	)

	BeforeEach(func() {
		regFile = &emu.RegFile{}
		memory = emu.NewMemory()
		p = pipeline.NewPipeline(regFile, memory, config.Default())
		p.SetPC(0x1000)
	})

	It("runs a straight-line program and forwards results through add", func() {
		memory.Write32(0x1000, addi(1, 0, 10))
		memory.Write32(0x1004, addi(2, 0, 20))
		memory.Write32(0x1008, add(3, 1, 2))
		memory.Write32(0x100c, addi(10, 3, 0))
		memory.Write32(0x1010, jalSelf)

		exitCode := p.Run()

		Expect(p.Halted()).To(BeTrue())
		Expect(regFile.Read(3)).To(Equal(uint64(30)))
		Expect(exitCode).To(Equal(int64(30)))
	})

	It("resolves a load-use hazard between a load and its very next consumer", func() {
		memory.Write32(0x100, 7)

		memory.Write32(0x1000, addi(5, 0, 0x100))
		memory.Write32(0x1004, lw(6, 5, 0))
		memory.Write32(0x1008, add(7, 6, 6))
		memory.Write32(0x100c, addi(10, 7, 0))
		memory.Write32(0x1010, jalSelf)

		exitCode := p.Run()

		Expect(regFile.Read(7)).To(Equal(uint64(14)))
		Expect(exitCode).To(Equal(int64(14)))
	})

	It("round-trips a store followed by a load to the same address", func() {
		memory.Write32(0x1000, addi(5, 0, 0x200))
		memory.Write32(0x1004, addi(6, 0, 99))
		memory.Write32(0x1008, sw(6, 5, 0))
		memory.Write32(0x100c, lw(7, 5, 0))
		memory.Write32(0x1010, addi(10, 7, 0))
		memory.Write32(0x1014, jalSelf)

		exitCode := p.Run()

		Expect(exitCode).To(Equal(int64(99)))
	})

	It("resolves a backward-taken branch loop correctly across mispredictions", func() {
		// sum = 5 + 4 + 3 + 2 + 1
		memory.Write32(0x1000, addi(1, 0, 5))  // counter
		memory.Write32(0x1004, addi(2, 0, 0))  // sum
		memory.Write32(0x1008, add(2, 2, 1))   // loop: sum += counter
		memory.Write32(0x100c, addi(1, 1, -1)) // counter--
		memory.Write32(0x1010, bne(1, 0, -8))  // loop while counter != 0
		memory.Write32(0x1014, addi(10, 2, 0))
		memory.Write32(0x1018, jalSelf)

		exitCode := p.Run()

		Expect(regFile.Read(2)).To(Equal(uint64(15)))
		Expect(exitCode).To(Equal(int64(15)))
	})

	It("reports exact cycle counts for a non-branching, non-stalling instruction stream", func() {
		for i := uint64(0); i < 20; i++ {
			memory.Write32(0x1000+i*4, addi(0, 0, 0))
		}

		running := p.RunCycles(10)

		Expect(running).To(BeTrue())
		Expect(p.Stats().Cycles).To(Equal(uint64(10)))
	})

	It("stops ticking once halted, even if Tick is called again", func() {
		memory.Write32(0x1000, addi(10, 0, 5))
		memory.Write32(0x1004, jalSelf)

		p.Run()
		cyclesAtHalt := p.Stats().Cycles

		p.Tick()
		p.Tick()

		Expect(p.Stats().Cycles).To(Equal(cyclesAtHalt))
	})

	It("resets all latches, caches, counters, and halted state", func() {
		memory.Write32(0x1000, addi(10, 0, 1))
		memory.Write32(0x1004, jalSelf)

		p.Run()
		Expect(p.Halted()).To(BeTrue())

		p.Reset()

		Expect(p.Halted()).To(BeFalse())
		Expect(p.Stats().Cycles).To(Equal(uint64(0)))
		Expect(p.Stats().Instructions).To(Equal(uint64(0)))
		Expect(p.PC()).To(Equal(uint64(0x1000)))
	})
})
