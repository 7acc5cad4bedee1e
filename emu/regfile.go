// Package emu provides the architectural building blocks shared by the
// pipeline stages: the register file, the ALU, and the memory-mapped
// backing store the caches fetch from and write back to.
package emu

// RegCount is the fixed architectural register count (spec requires 32).
const RegCount = 32

// RegFile is the 32-entry architectural register file. x0 is hardwired to
// zero: reads always return 0 and writes are silently dropped.
type RegFile struct {
	x [RegCount]uint64
}

// Read returns the value of register addr, or 0 for x0 or any address
// outside the register count.
func (rf *RegFile) Read(addr uint32) uint64 {
	if addr == 0 || addr >= RegCount {
		return 0
	}
	return rf.x[addr]
}

// Write stores value into register addr. A write to x0 is silently
// suppressed (invariant 1: the register file never observes a write to x0).
func (rf *RegFile) Write(addr uint32, value uint64) {
	if addr == 0 || addr >= RegCount {
		return
	}
	rf.x[addr] = value
}

// ReadBypassed reads register addr the way the decode stage does: if a
// writeback is committing this same cycle to the same address, the new
// value is observed instead of the pre-commit one (write-before-read
// bypass). x0 is still always zero regardless of any in-flight write.
func (rf *RegFile) ReadBypassed(addr uint32, writeEnable bool, writeAddr uint32, writeData uint64) uint64 {
	if addr == 0 {
		return 0
	}
	if writeEnable && writeAddr == addr {
		return writeData
	}
	return rf.Read(addr)
}

// Snapshot returns a copy of all 32 register values, for tests and tracing.
func (rf *RegFile) Snapshot() [RegCount]uint64 {
	return rf.x
}
