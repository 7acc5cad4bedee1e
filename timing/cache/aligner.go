package cache

import "github.com/sarchlab/rv5sim/isa"

// Aligner splits a cache line into byte/half/word/dword lanes, selects a
// lane by the low-order address bits, and sign- or zero-extends by access
// type. For the icache, the caller always requests a 32-bit extraction
// (zero-extended to core width), per spec section 4.1.
type Aligner struct{}

// NewAligner constructs an Aligner. It is stateless.
func NewAligner() *Aligner { return &Aligner{} }

func accessBytes(at isa.AccessType) int {
	switch at {
	case isa.AccessB, isa.AccessBU:
		return 1
	case isa.AccessH, isa.AccessHU:
		return 2
	case isa.AccessW, isa.AccessWU:
		return 4
	case isa.AccessD:
		return 8
	default:
		return 4
	}
}

func signed(at isa.AccessType) bool {
	switch at {
	case isa.AccessB, isa.AccessH, isa.AccessW:
		return true
	default:
		return false
	}
}

// Extract pulls nbytes from line at the given lane offset and sign- or
// zero-extends the result to a uint64 per at.
func (a *Aligner) Extract(line []byte, laneOffset int, at isa.AccessType) uint64 {
	n := accessBytes(at)

	var raw uint64
	for i := 0; i < n; i++ {
		raw |= uint64(line[laneOffset+i]) << (8 * i)
	}

	if !signed(at) || n == 8 {
		return raw
	}

	shift := uint(64 - 8*n)
	return uint64(int64(raw<<shift) >> shift)
}
