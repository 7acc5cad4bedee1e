package pipeline

// BTBEntry is one direct-mapped branch target buffer slot: {tag, is_return
// flag, target}, per spec section 4.2.
type BTBEntry struct {
	Valid    bool
	Tag      uint64
	IsReturn bool
	Target   uint64
}

// BTB is a direct-mapped branch target buffer. Prediction is valid when the
// indexed entry is valid and its tag matches pc. Lookup itself is a plain
// combinational tag match; FetchFrontend calls it once per cycle with the
// PC it fetched the previous cycle, so a hit redirects the fetch that
// follows the branch rather than replacing the branch's own fetch.
type BTB struct {
	entries []BTBEntry
	size    uint64
}

// NewBTB constructs a BTB with the given number of entries (should be a
// power of two; the index mask degrades gracefully otherwise via modulo).
func NewBTB(size int) *BTB {
	return &BTB{entries: make([]BTBEntry, size), size: uint64(size)}
}

func (b *BTB) index(pc uint64) uint64 {
	return (pc >> 2) % b.size
}

// Lookup returns the entry for pc and whether it hits: valid and tagged
// with this exact pc.
func (b *BTB) Lookup(pc uint64) (entry BTBEntry, hit bool) {
	idx := b.index(pc)
	e := b.entries[idx]
	hit = e.Valid && e.Tag == pc
	return e, hit
}

// Update installs the full entry at the hashed index on misprediction, per
// spec section 4.2.
func (b *BTB) Update(pc, target uint64, isReturn bool) {
	idx := b.index(pc)
	b.entries[idx] = BTBEntry{Valid: true, Tag: pc, IsReturn: isReturn, Target: target}
}

// Reset clears all entries.
func (b *BTB) Reset() {
	for i := range b.entries {
		b.entries[i] = BTBEntry{}
	}
}

// RAS is the return-address stack: a circular buffer of size ras_size with
// a push pointer, per spec section 4.2.
type RAS struct {
	stack []uint64
	push  int
	size  int
}

// NewRAS constructs a RAS with the given capacity.
func NewRAS(size int) *RAS {
	return &RAS{stack: make([]uint64, size), size: size}
}

func (r *RAS) wrap(i int) int {
	return ((i % r.size) + r.size) % r.size
}

// Top returns rstack[push-1], the predicted return target.
func (r *RAS) Top() uint64 {
	return r.stack[r.wrap(r.push-1)]
}

// Step applies the push/pop request for this cycle with linkAddr = pc+4 as
// the value a push writes:
//   - push ∧ ¬pop: write at push, push++.
//   - push ∧ pop: overwrite at top (tail-call semantics).
//   - pop ∧ ¬push: push--.
func (r *RAS) Step(push, pop bool, linkAddr uint64) {
	switch {
	case push && !pop:
		r.stack[r.wrap(r.push)] = linkAddr
		r.push = r.wrap(r.push + 1)
	case push && pop:
		r.stack[r.wrap(r.push-1)] = linkAddr
	case pop && !push:
		r.push = r.wrap(r.push - 1)
	}
}

// Reset empties the stack.
func (r *RAS) Reset() {
	for i := range r.stack {
		r.stack[i] = 0
	}
	r.push = 0
}

// BranchPredictor provides the frontend's taken/not-taken direction guess.
// Per spec section 4.2 and the design notes, the initial implementation
// always predicts taken; a richer predictor can be swapped in behind this
// same interface without changing the frontend's wiring.
type BranchPredictor interface {
	Predict(pc uint64) bool
	Update(pc uint64, taken bool)
}

// AlwaysTakenPredictor is the stub predictor spec section 4.2 calls for.
type AlwaysTakenPredictor struct{}

// NewAlwaysTakenPredictor constructs the stub predictor.
func NewAlwaysTakenPredictor() *AlwaysTakenPredictor { return &AlwaysTakenPredictor{} }

// Predict always returns true.
func (p *AlwaysTakenPredictor) Predict(pc uint64) bool { return true }

// Update is a no-op: the stub carries no state to learn from outcomes, but
// still exposes the interface so a smarter predictor can be dropped in.
func (p *AlwaysTakenPredictor) Update(pc uint64, taken bool) {}
