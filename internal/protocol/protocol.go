// Package protocol implements the phase sequencer of spec.md §4.6: an
// ordered list of phases run in lockstep across participating workers,
// with a supervisor-side state machine (spec.md §4.1's transition
// table) driven once per tick from the workers' observed states.
package protocol

import (
	"fmt"
	"time"
)

// Phase is one segment of a Protocol, per spec.md §3.
type Phase struct {
	Duration      time.Duration
	VisualClassID string
	VisualParams  map[string]any
	ActionID      string
	ActionParams  map[string]any
}

// Protocol is an ordered, finite list of phases, indexed 0..P-1.
type Protocol struct {
	ID     string
	Phases []Phase
}

// PhaseCount returns P, the number of phases.
func (p *Protocol) PhaseCount() int { return len(p.Phases) }

// FetchPhaseDuration returns phase i's duration, per spec.md §6's
// Protocol collaborator interface.
func (p *Protocol) FetchPhaseDuration(i int) (time.Duration, error) {
	if i < 0 || i >= len(p.Phases) {
		return 0, fmt.Errorf("protocol %q: phase index %d out of range [0,%d)", p.ID, i, len(p.Phases))
	}
	return p.Phases[i].Duration, nil
}
