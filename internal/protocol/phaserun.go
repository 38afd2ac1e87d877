package protocol

import "time"

// PhaseRun is the at-most-one active phase run of spec.md §3:
// {start, stop, phase_id}, with start < stop and every worker
// observing RUNNING agreeing on the same start.
type PhaseRun struct {
	PhaseID int
	Start   time.Time
	Stop    time.Time
}

// Active reports whether a phase run has actually been scheduled
// (the zero value is not a valid run).
func (r PhaseRun) Active() bool { return !r.Start.IsZero() }
