package pipeline

// HazardUnit detects the single hazard class forwarding cannot resolve: a
// load whose result is needed by the very next instruction, per spec
// section 4.7.
type HazardUnit struct{}

// NewHazardUnit constructs a hazard unit. It is stateless.
func NewHazardUnit() *HazardUnit { return &HazardUnit{} }

// DetectLoadUse reports whether the instruction in ID/EX is a memory read
// whose destination matches either source register of the instruction
// currently being decoded.
func (h *HazardUnit) DetectLoadUse(idex *IDEXLatch, decodeRs1, decodeRs2 uint32) bool {
	if !idex.Ctrl.Valid || !idex.Ctrl.Mem.MemRead {
		return false
	}
	if idex.Rd == 0 {
		return false
	}
	return idex.Rd == decodeRs1 || idex.Rd == decodeRs2
}
