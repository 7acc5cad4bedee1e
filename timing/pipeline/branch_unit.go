package pipeline

// Misprediction is the latched record a mispredicted branch/jump produces,
// per spec section 4.8.
type Misprediction struct {
	Valid    bool
	PC       uint64
	Target   uint64
	Taken    bool
	IsReturn bool
}

// BranchUnit compares the branch target arriving from MEM against the next
// PC the frontend predicted for that branch. On mismatch, AND the MEM
// result is a valid branch/jump, AND the unit is not already
// mid-misprediction, it latches a Misprediction record, which the top
// pipeline reads back and acts on in the same cycle.
type BranchUnit struct {
	pending Misprediction
}

// NewBranchUnit constructs a branch unit with no pending misprediction.
func NewBranchUnit() *BranchUnit { return &BranchUnit{} }

// Evaluate compares the branch target MEM resolved this cycle against the
// PC the frontend actually fetched next (predictedNext, carried alongside
// the instruction since fetch). A mismatch while valid, with no
// misprediction already pending, latches the correction.
func (b *BranchUnit) Evaluate(valid bool, target uint64, taken bool, isReturn bool, exPC uint64, predictedNext uint64) {
	if b.pending.Valid {
		return
	}
	if !valid {
		return
	}
	if target == predictedNext {
		return
	}
	b.pending = Misprediction{Valid: true, PC: exPC, Target: target, Taken: taken, IsReturn: isReturn}
}

// Pending returns the currently latched misprediction, if any.
func (b *BranchUnit) Pending() Misprediction {
	return b.pending
}

// Clear drops the latched misprediction once the top pipeline has acted on
// it (flushed the younger latches and redirected the frontend).
func (b *BranchUnit) Clear() {
	b.pending = Misprediction{}
}
