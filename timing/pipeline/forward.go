package pipeline

// ForwardSource selects which value an EX-stage operand mux should use.
type ForwardSource uint8

const (
	// ForwardRegFile means use the value decode read from the register file.
	ForwardRegFile ForwardSource = iota
	// ForwardMEM means use the EX/MEM latch's ALU result.
	ForwardMEM
	// ForwardWB means use the MEM/WB latch's writeback value.
	ForwardWB
)

// ForwardUnit selects, for each EX source register, among
// {regfile read, MEM stage result, WB stage result}, per spec section 4.4.
// MEM takes priority over WB as the freshest value.
type ForwardUnit struct{}

// NewForwardUnit constructs a forward unit. It is stateless.
func NewForwardUnit() *ForwardUnit { return &ForwardUnit{} }

// Select returns the forwarding source for one EX source register rs,
// given the EX/MEM and MEM/WB latches.
func (f *ForwardUnit) Select(rs uint32, exmem *EXMEMLatch, memwb *MEMWBLatch) ForwardSource {
	if rs == 0 {
		return ForwardRegFile
	}
	if exmem.Ctrl.Valid && exmem.Ctrl.Wb.WriteReg && exmem.Rd != 0 && exmem.Rd == rs {
		return ForwardMEM
	}
	if memwb.Ctrl.Valid && memwb.Ctrl.Wb.WriteReg && memwb.Rd != 0 && memwb.Rd == rs {
		return ForwardWB
	}
	return ForwardRegFile
}

// Value resolves a forwarding decision to an actual operand value.
func (f *ForwardUnit) Value(src ForwardSource, regValue uint64, exmem *EXMEMLatch, memwb *MEMWBLatch) uint64 {
	switch src {
	case ForwardMEM:
		return exmem.ALUResult
	case ForwardWB:
		if memwb.Ctrl.Wb.MemToReg {
			return memwb.MemData
		}
		return memwb.ALUResult
	default:
		return regValue
	}
}
