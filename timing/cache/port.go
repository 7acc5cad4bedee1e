// Package cache implements the set-associative, 3-stage pipelined cache
// described by the core: a tag/valid MetaArray, a per-way DataArray, an
// Aligner for sub-word extraction, and the miss state machine that drives
// refills and write-back evictions through a ready/valid memory port.
package cache

import "github.com/sarchlab/rv5sim/emu"

// ReadRequest is the read half of the memory bundle's three sub-channels.
type ReadRequest struct {
	Valid bool
	Addr  uint64
}

// WriteRequest is the write half of the memory bundle.
type WriteRequest struct {
	Valid bool
	Addr  uint64
	Data  []byte
}

// ReadResponse is returned by the memory port once a read completes.
type ReadResponse struct {
	Valid bool
	Addr  uint64
	Data  []byte
}

// MemoryPort is the external collaborator a Cache drives its miss state
// machine against: a ready/valid handshake on each of the three
// sub-channels, per spec section 6. A transfer happens on the cycle both
// sides assert valid/ready; this lets a memory model impose a controllable
// delay before asserting ready, independent from the cache's own logic.
type MemoryPort interface {
	// Step advances the port by one cycle, presenting this cycle's read and
	// write requests, and returns whether each was accepted (ready) along
	// with any completed read response.
	Step(read ReadRequest, write WriteRequest) (readReady, writeReady bool, resp ReadResponse)
}

// DirectMemoryPort is a MemoryPort backed directly by an emu.Memory, with a
// configurable fixed latency before a request's response is asserted ready.
// A latency of 0 completes every request the same cycle it is issued,
// matching "design the external memory mock as a function returning ready
// and resp.valid flags each cycle" from the design notes.
type DirectMemoryPort struct {
	memory   *emu.Memory
	latency  int
	lineSize int

	readCountdown  int
	readPending    ReadRequest
	writeCountdown int
	writePending   WriteRequest
}

// NewDirectMemoryPort creates a memory port with the given fixed per-request
// latency in cycles. lineSize is the number of bytes a read response
// delivers (mem_width >= line_width per spec section 6; this model
// delivers exactly one line per refill).
func NewDirectMemoryPort(memory *emu.Memory, latency, lineSize int) *DirectMemoryPort {
	return &DirectMemoryPort{memory: memory, latency: latency, lineSize: lineSize}
}

// Step implements MemoryPort.
func (p *DirectMemoryPort) Step(read ReadRequest, write WriteRequest) (bool, bool, ReadResponse) {
	readReady := false
	var resp ReadResponse

	if read.Valid {
		if !p.readPending.Valid || p.readPending.Addr != read.Addr {
			p.readPending = read
			p.readCountdown = p.latency
		}
		if p.readCountdown <= 0 {
			readReady = true
			resp = ReadResponse{Valid: true, Addr: read.Addr, Data: p.memory.ReadLine(read.Addr, p.lineSize)}
			p.readPending = ReadRequest{}
		} else {
			p.readCountdown--
		}
	}

	writeReady := false
	if write.Valid {
		if !p.writePending.Valid || p.writePending.Addr != write.Addr {
			p.writePending = write
			p.writeCountdown = p.latency
		}
		if p.writeCountdown <= 0 {
			writeReady = true
			p.memory.WriteLine(write.Addr, write.Data)
			p.writePending = WriteRequest{}
		} else {
			p.writeCountdown--
		}
	}

	return readReady, writeReady, resp
}
