package protocol

import (
	"sync"
	"time"

	"vxcore/internal/wstate"
)

// Responder is a worker's protocol-responder state machine, per
// spec.md §4.2's table — independent of, and driven by observing, the
// supervisor's Engine state. In the true multi-process design the
// supervisor's state and PhaseRun reach the worker over its control
// channel (an UpdateProperty message); since workers here are
// in-process goroutines sharing the Engine, Tick takes that state
// directly rather than round-tripping it through a message.
type Responder struct {
	mu         sync.Mutex
	cell       *wstate.Cell
	phaseStart time.Time

	OnPrepareProtocol func()
	OnPreparePhase    func()
	OnCleanupProtocol func()
}

// NewResponder binds a responder to a worker's own state cell. The
// cell must already be Idle.
func NewResponder(cell *wstate.Cell) *Responder {
	return &Responder{cell: cell}
}

// Tick evaluates one step of spec.md §4.2's table. run is the
// supervisor's current PhaseRun; phaseLogic, when the worker is
// RUNNING, is invoked with the elapsed phase_time (now - phase_start)
// per spec.md §4.2's "publishes phase_time" note.
func (r *Responder) Tick(now time.Time, supervisorState wstate.State, run PhaseRun, phaseLogic func(phaseTime time.Duration)) {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch r.cell.Load() {
	case wstate.Idle:
		if supervisorState == wstate.PrepareProtocol {
			if r.OnPrepareProtocol != nil {
				r.OnPrepareProtocol()
			}
			r.cell.Store(wstate.WaitForPhase)
		}
	case wstate.WaitForPhase:
		if supervisorState == wstate.PreparePhase {
			if r.OnPreparePhase != nil {
				r.OnPreparePhase()
			}
			r.cell.Store(wstate.Ready)
		}
	case wstate.Ready:
		if supervisorState == wstate.Running && run.Active() && !now.Before(run.Start) {
			r.phaseStart = now
			r.cell.Store(wstate.Running)
		}
	case wstate.Running:
		if phaseLogic != nil {
			phaseLogic(now.Sub(r.phaseStart))
		}
		if now.After(run.Stop) {
			r.cell.Store(wstate.PhaseEnd)
		}
	case wstate.PhaseEnd:
		switch supervisorState {
		case wstate.PreparePhase:
			r.cell.Store(wstate.WaitForPhase)
		case wstate.ProtocolEnd:
			if r.OnCleanupProtocol != nil {
				r.OnCleanupProtocol()
			}
			r.cell.Store(wstate.Idle)
		}
	}
}

// PhaseStart returns the wall-clock time this responder last entered
// RUNNING, the zero time if it never has.
func (r *Responder) PhaseStart() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.phaseStart
}
