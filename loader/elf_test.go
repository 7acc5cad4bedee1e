package loader_test

import (
	"encoding/binary"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/rv5sim/loader"
)

var _ = Describe("ELF Loader", func() {
	var tempDir string

	BeforeEach(func() {
		var err error
		tempDir, err = os.MkdirTemp("", "elf-loader-test")
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		_ = os.RemoveAll(tempDir)
	})

	Describe("Load", func() {
		Context("with a valid RV64I ELF binary", func() {
			var elfPath string

			BeforeEach(func() {
				elfPath = filepath.Join(tempDir, "test.elf")
				createMinimalRISCVELF(elfPath, true, 0x400000, 0x400080, []byte{
					// addi a0, zero, 42; jal x0, . (self-loop halt)
					0x13, 0x05, 0xa0, 0x02,
					0x6f, 0x00, 0x00, 0x00,
				})
			})

			It("should load without error", func() {
				prog, err := loader.Load(elfPath)
				Expect(err).NotTo(HaveOccurred())
				Expect(prog).NotTo(BeNil())
			})

			It("should extract the correct entry point", func() {
				prog, err := loader.Load(elfPath)
				Expect(err).NotTo(HaveOccurred())
				Expect(prog.EntryPoint).To(Equal(uint64(0x400080)))
			})

			It("should load segments into memory", func() {
				prog, err := loader.Load(elfPath)
				Expect(err).NotTo(HaveOccurred())
				Expect(len(prog.Segments)).To(BeNumerically(">", 0))
			})

			It("should report 64-bit and set a 64-bit stack top", func() {
				prog, err := loader.Load(elfPath)
				Expect(err).NotTo(HaveOccurred())
				Expect(prog.Is64Bit).To(BeTrue())
				Expect(prog.InitialSP).To(Equal(uint64(loader.DefaultStackTop64)))
			})
		})

		Context("with a valid RV32I ELF binary", func() {
			It("should report 32-bit and set a 32-bit stack top", func() {
				elfPath := filepath.Join(tempDir, "rv32.elf")
				createMinimalRISCVELF(elfPath, false, 0x10000, 0x10000, []byte{0x13, 0x00, 0x00, 0x00})

				prog, err := loader.Load(elfPath)
				Expect(err).NotTo(HaveOccurred())
				Expect(prog.Is64Bit).To(BeFalse())
				Expect(prog.InitialSP).To(Equal(uint64(loader.DefaultStackTop32)))
			})
		})

		Context("with segment data", func() {
			It("should correctly load segment contents", func() {
				elfPath := filepath.Join(tempDir, "code.elf")
				codeData := []byte{0x13, 0x05, 0xa0, 0x02, 0x6f, 0x00, 0x00, 0x00}
				createMinimalRISCVELF(elfPath, true, 0x400000, 0x400000, codeData)

				prog, err := loader.Load(elfPath)
				Expect(err).NotTo(HaveOccurred())

				var foundSegment *loader.Segment
				for i := range prog.Segments {
					if prog.Segments[i].VirtAddr == 0x400000 {
						foundSegment = &prog.Segments[i]
						break
					}
				}
				Expect(foundSegment).NotTo(BeNil())
				Expect(foundSegment.Data).To(HaveLen(len(codeData)))
			})
		})

		Context("with an invalid file", func() {
			It("should return error for non-existent file", func() {
				_, err := loader.Load("/nonexistent/path/to/file.elf")
				Expect(err).To(HaveOccurred())
				Expect(err.Error()).To(ContainSubstring("failed to open"))
			})

			It("should return error for non-ELF file", func() {
				notElfPath := filepath.Join(tempDir, "not-elf.bin")
				err := os.WriteFile(notElfPath, []byte("not an elf file"), 0644)
				Expect(err).NotTo(HaveOccurred())

				_, err = loader.Load(notElfPath)
				Expect(err).To(HaveOccurred())
				Expect(err.Error()).To(ContainSubstring("ELF"))
			})

			It("should return error for empty file", func() {
				emptyPath := filepath.Join(tempDir, "empty.elf")
				err := os.WriteFile(emptyPath, []byte{}, 0644)
				Expect(err).NotTo(HaveOccurred())

				_, err = loader.Load(emptyPath)
				Expect(err).To(HaveOccurred())
			})
		})

		Context("with a non-RISC-V ELF", func() {
			It("should return error for an x86-64 ELF", func() {
				elfPath := filepath.Join(tempDir, "x86.elf")
				createMinimalx86ELF(elfPath)

				_, err := loader.Load(elfPath)
				Expect(err).To(HaveOccurred())
				Expect(err.Error()).To(ContainSubstring("not a RISC-V"))
			})
		})
	})

	Describe("Program", func() {
		It("allows iterating segments to sum loadable bytes", func() {
			elfPath := filepath.Join(tempDir, "test.elf")
			codeData := []byte{0x13, 0x05, 0xa0, 0x02, 0x6f, 0x00, 0x00, 0x00}
			createMinimalRISCVELF(elfPath, true, 0x400000, 0x400000, codeData)

			prog, err := loader.Load(elfPath)
			Expect(err).NotTo(HaveOccurred())

			totalBytes := uint64(0)
			for _, seg := range prog.Segments {
				totalBytes += seg.MemSize
			}
			Expect(totalBytes).To(BeNumerically(">", 0))
		})
	})

	Describe("Segment", func() {
		It("should have the correct virtual address", func() {
			elfPath := filepath.Join(tempDir, "test.elf")
			createMinimalRISCVELF(elfPath, true, 0x500000, 0x500000, []byte{0x13, 0x00, 0x00, 0x00})

			prog, err := loader.Load(elfPath)
			Expect(err).NotTo(HaveOccurred())

			found := false
			for _, seg := range prog.Segments {
				if seg.VirtAddr == 0x500000 {
					found = true
					break
				}
			}
			Expect(found).To(BeTrue())
		})

		It("should correctly report permissions", func() {
			elfPath := filepath.Join(tempDir, "test.elf")
			createMinimalRISCVELF(elfPath, true, 0x400000, 0x400000, []byte{0x13, 0x00, 0x00, 0x00})

			prog, err := loader.Load(elfPath)
			Expect(err).NotTo(HaveOccurred())

			hasExecutable := false
			for _, seg := range prog.Segments {
				if seg.Flags&loader.SegmentFlagExecute != 0 {
					hasExecutable = true
					break
				}
			}
			Expect(hasExecutable).To(BeTrue())
		})
	})

	Describe("Multi-segment ELFs", func() {
		It("should load multiple PT_LOAD segments", func() {
			elfPath := filepath.Join(tempDir, "multi-segment.elf")
			codeData := []byte{0x13, 0x05, 0xa0, 0x02, 0x6f, 0x00, 0x00, 0x00}
			dataData := []byte{0x01, 0x02, 0x03, 0x04}
			createMultiSegmentRISCVELF(elfPath, 0x400000, 0x400000, codeData, 0x600000, dataData)

			prog, err := loader.Load(elfPath)
			Expect(err).NotTo(HaveOccurred())
			Expect(prog.Segments).To(HaveLen(2))

			var codeSeg, dataSeg *loader.Segment
			for i := range prog.Segments {
				if prog.Segments[i].VirtAddr == 0x400000 {
					codeSeg = &prog.Segments[i]
				}
				if prog.Segments[i].VirtAddr == 0x600000 {
					dataSeg = &prog.Segments[i]
				}
			}

			Expect(codeSeg).NotTo(BeNil())
			Expect(codeSeg.Data).To(Equal(codeData))
			Expect(codeSeg.Flags & loader.SegmentFlagExecute).NotTo(BeZero())

			Expect(dataSeg).NotTo(BeNil())
			Expect(dataSeg.Data).To(Equal(dataData))
			Expect(dataSeg.Flags & loader.SegmentFlagWrite).NotTo(BeZero())
		})
	})

	Describe("BSS segments", func() {
		It("should handle BSS segments where Memsz > Filesz", func() {
			elfPath := filepath.Join(tempDir, "bss.elf")
			initialData := []byte{0x01, 0x02, 0x03, 0x04}
			memSize := uint64(1024)
			createBSSSegmentELF(elfPath, 0x600000, 0x400000, initialData, memSize)

			prog, err := loader.Load(elfPath)
			Expect(err).NotTo(HaveOccurred())

			var bssSeg *loader.Segment
			for i := range prog.Segments {
				if prog.Segments[i].VirtAddr == 0x600000 {
					bssSeg = &prog.Segments[i]
					break
				}
			}

			Expect(bssSeg).NotTo(BeNil())
			Expect(bssSeg.Data).To(Equal(initialData))
			Expect(bssSeg.MemSize).To(Equal(memSize))
			Expect(bssSeg.MemSize).To(BeNumerically(">", uint64(len(bssSeg.Data))))
		})
	})

	Describe("Zero Filesz segments", func() {
		It("should handle segments with zero file size", func() {
			elfPath := filepath.Join(tempDir, "zero-filesz.elf")
			memSize := uint64(4096)
			createZeroFileszELF(elfPath, 0x700000, 0x400000, memSize)

			prog, err := loader.Load(elfPath)
			Expect(err).NotTo(HaveOccurred())

			var zeroSeg *loader.Segment
			for i := range prog.Segments {
				if prog.Segments[i].VirtAddr == 0x700000 {
					zeroSeg = &prog.Segments[i]
					break
				}
			}

			Expect(zeroSeg).NotTo(BeNil())
			Expect(zeroSeg.Data).To(HaveLen(0))
			Expect(zeroSeg.MemSize).To(Equal(memSize))
		})
	})

	Describe("ELFs with no loadable segments", func() {
		It("should return an empty segments list for an ELF with no PT_LOAD", func() {
			elfPath := filepath.Join(tempDir, "no-load.elf")
			createNoLoadableSegmentsELF(elfPath, 0x400000)

			prog, err := loader.Load(elfPath)
			Expect(err).NotTo(HaveOccurred())
			Expect(prog.Segments).To(BeEmpty())
			Expect(prog.EntryPoint).To(Equal(uint64(0x400000)))
		})
	})
})

// elfMachineRISCV is EM_RISCV (243).
const elfMachineRISCV = 243

// createMinimalRISCVELF creates a minimal valid RISC-V ELF binary, 32- or
// 64-bit class depending on is64.
func createMinimalRISCVELF(path string, is64 bool, loadAddr, entryPoint uint64, code []byte) {
	if is64 {
		writeELF64(path, elfMachineRISCV, loadAddr, entryPoint, code, 0x5)
		return
	}
	writeELF32(path, elfMachineRISCV, loadAddr, entryPoint, code, 0x5)
}

// createMinimalx86ELF creates a minimal x86-64 ELF to test rejection.
func createMinimalx86ELF(path string) {
	const elfMachineX86_64 = 62
	writeELF64(path, elfMachineX86_64, 0, 0, nil, 0x5)
}

// createMultiSegmentRISCVELF creates a 64-bit RISC-V ELF with two PT_LOAD
// segments: a code segment (RX) and a data segment (RW).
func createMultiSegmentRISCVELF(path string, codeAddr, entryPoint uint64, code []byte, dataAddr uint64, data []byte) {
	elfHeader := make([]byte, 64)
	fillELF64Header(elfHeader, elfMachineRISCV, entryPoint, 2)

	progHeader1 := make([]byte, 56)
	fillProgHeader(progHeader1, 1, 0x5, 64+56*2, codeAddr, uint64(len(code)))

	progHeader2 := make([]byte, 56)
	fillProgHeader(progHeader2, 1, 0x6, 64+56*2+uint64(len(code)), dataAddr, uint64(len(data)))

	file, _ := os.Create(path)
	defer func() { _ = file.Close() }()
	_, _ = file.Write(elfHeader)
	_, _ = file.Write(progHeader1)
	_, _ = file.Write(progHeader2)
	_, _ = file.Write(code)
	_, _ = file.Write(data)
}

// createBSSSegmentELF creates a RISC-V ELF with a BSS-like segment where
// Memsz > Filesz.
func createBSSSegmentELF(path string, segAddr, entryPoint uint64, data []byte, memSize uint64) {
	elfHeader := make([]byte, 64)
	fillELF64Header(elfHeader, elfMachineRISCV, entryPoint, 1)

	progHeader := make([]byte, 56)
	fillProgHeader(progHeader, 1, 0x6, 120, segAddr, uint64(len(data)))
	binary.LittleEndian.PutUint64(progHeader[40:48], memSize) // memsz > filesz

	file, _ := os.Create(path)
	defer func() { _ = file.Close() }()
	_, _ = file.Write(elfHeader)
	_, _ = file.Write(progHeader)
	_, _ = file.Write(data)
}

// createZeroFileszELF creates a RISC-V ELF with a segment that has zero
// Filesz but non-zero Memsz.
func createZeroFileszELF(path string, segAddr, entryPoint uint64, memSize uint64) {
	elfHeader := make([]byte, 64)
	fillELF64Header(elfHeader, elfMachineRISCV, entryPoint, 1)

	progHeader := make([]byte, 56)
	fillProgHeader(progHeader, 1, 0x6, 120, segAddr, 0)
	binary.LittleEndian.PutUint64(progHeader[40:48], memSize) // memsz > 0, filesz = 0

	file, _ := os.Create(path)
	defer func() { _ = file.Close() }()
	_, _ = file.Write(elfHeader)
	_, _ = file.Write(progHeader)
}

// createNoLoadableSegmentsELF creates a RISC-V ELF with no PT_LOAD segments
// (only PT_NOTE).
func createNoLoadableSegmentsELF(path string, entryPoint uint64) {
	elfHeader := make([]byte, 64)
	fillELF64Header(elfHeader, elfMachineRISCV, entryPoint, 1)

	progHeader := make([]byte, 56)
	fillProgHeader(progHeader, 4, 0x4, 120, 0, 0) // PT_NOTE, not PT_LOAD

	file, _ := os.Create(path)
	defer func() { _ = file.Close() }()
	_, _ = file.Write(elfHeader)
	_, _ = file.Write(progHeader)
}

func fillELF64Header(elfHeader []byte, machine uint16, entryPoint uint64, phnum uint16) {
	copy(elfHeader[0:4], []byte{0x7f, 'E', 'L', 'F'})
	elfHeader[4] = 2 // ELFCLASS64
	elfHeader[5] = 1 // little endian
	elfHeader[6] = 1 // version
	binary.LittleEndian.PutUint16(elfHeader[16:18], 2)
	binary.LittleEndian.PutUint16(elfHeader[18:20], machine)
	binary.LittleEndian.PutUint32(elfHeader[20:24], 1)
	binary.LittleEndian.PutUint64(elfHeader[24:32], entryPoint)
	binary.LittleEndian.PutUint64(elfHeader[32:40], 64) // phoff
	binary.LittleEndian.PutUint16(elfHeader[52:54], 64) // ehsize
	binary.LittleEndian.PutUint16(elfHeader[54:56], 56) // phentsize
	binary.LittleEndian.PutUint16(elfHeader[56:58], phnum)
}

func fillProgHeader(progHeader []byte, ptype uint32, flags uint32, offset, vaddr, size uint64) {
	binary.LittleEndian.PutUint32(progHeader[0:4], ptype)
	binary.LittleEndian.PutUint32(progHeader[4:8], flags)
	binary.LittleEndian.PutUint64(progHeader[8:16], offset)
	binary.LittleEndian.PutUint64(progHeader[16:24], vaddr)
	binary.LittleEndian.PutUint64(progHeader[24:32], vaddr)
	binary.LittleEndian.PutUint64(progHeader[32:40], size)
	binary.LittleEndian.PutUint64(progHeader[40:48], size)
	binary.LittleEndian.PutUint64(progHeader[48:56], 0x1000)
}

func writeELF64(path string, machine uint16, loadAddr, entryPoint uint64, code []byte, flags uint32) {
	elfHeader := make([]byte, 64)
	fillELF64Header(elfHeader, machine, entryPoint, 1)

	progHeader := make([]byte, 56)
	fillProgHeader(progHeader, 1, flags, 120, loadAddr, uint64(len(code)))

	file, _ := os.Create(path)
	defer func() { _ = file.Close() }()
	_, _ = file.Write(elfHeader)
	_, _ = file.Write(progHeader)
	_, _ = file.Write(code)
}

func writeELF32(path string, machine uint16, loadAddr, entryPoint uint64, code []byte, flags uint32) {
	elfHeader := make([]byte, 52)
	copy(elfHeader[0:4], []byte{0x7f, 'E', 'L', 'F'})
	elfHeader[4] = 1 // ELFCLASS32
	elfHeader[5] = 1 // little endian
	elfHeader[6] = 1 // version
	binary.LittleEndian.PutUint16(elfHeader[16:18], 2)
	binary.LittleEndian.PutUint16(elfHeader[18:20], machine)
	binary.LittleEndian.PutUint32(elfHeader[20:24], 1)
	binary.LittleEndian.PutUint32(elfHeader[24:28], uint32(entryPoint))
	binary.LittleEndian.PutUint32(elfHeader[28:32], 52) // phoff
	binary.LittleEndian.PutUint16(elfHeader[40:42], 52) // ehsize
	binary.LittleEndian.PutUint16(elfHeader[42:44], 32) // phentsize
	binary.LittleEndian.PutUint16(elfHeader[44:46], 1)  // phnum

	progHeader := make([]byte, 32)
	binary.LittleEndian.PutUint32(progHeader[0:4], 1) // PT_LOAD
	binary.LittleEndian.PutUint32(progHeader[4:8], 52+32)
	binary.LittleEndian.PutUint32(progHeader[8:12], uint32(loadAddr))
	binary.LittleEndian.PutUint32(progHeader[12:16], uint32(loadAddr))
	binary.LittleEndian.PutUint32(progHeader[16:20], uint32(len(code)))
	binary.LittleEndian.PutUint32(progHeader[20:24], uint32(len(code)))
	binary.LittleEndian.PutUint32(progHeader[24:28], flags)
	binary.LittleEndian.PutUint32(progHeader[28:32], 0x1000)

	file, _ := os.Create(path)
	defer func() { _ = file.Close() }()
	_, _ = file.Write(elfHeader)
	_, _ = file.Write(progHeader)
	_, _ = file.Write(code)
}
