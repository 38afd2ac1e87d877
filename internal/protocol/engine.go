package protocol

import (
	"fmt"
	"sync"
	"time"

	"vxcore/internal/wstate"
)

// Engine is the supervisor-side protocol state machine of
// spec.md §4.1's transition table, generalized from
// `vxpy/core/protocol.py`'s `AbstractProtocol`/`StaticPhasicProtocol`
// run loop into a pure, pollable state machine the supervisor drives
// once per tick. It never touches worker channels directly; it only
// observes participant state cells through a PhaseBarrier and exposes
// Transitions for the supervisor to broadcast.
type Engine struct {
	mu      sync.Mutex
	delta   time.Duration
	barrier *PhaseBarrier

	state    wstate.State
	protocol *Protocol
	phaseID  int
	run      PhaseRun

	// OnProtocolEnd fires the moment the state machine enters
	// PROTOCOL_END (spec.md §4.1's "stop recording" effect for
	// abort_protocol and the natural last-phase path alike).
	OnProtocolEnd func()
	// OnReturnToIdle fires on PROTOCOL_END -> IDLE, after the protocol
	// name has already been cleared.
	OnReturnToIdle func()
}

// NewEngine returns an Engine starting in IDLE. delta is the fixed
// phase-start propagation delay (spec.md §4.6, default 100ms).
func NewEngine(delta time.Duration, barrier *PhaseBarrier) *Engine {
	return &Engine{delta: delta, barrier: barrier, state: wstate.Idle, phaseID: -1}
}

// State returns the current supervisor protocol state.
func (e *Engine) State() wstate.State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Active returns the currently running protocol, or nil if idle.
func (e *Engine) Active() *Protocol {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.protocol
}

// PhaseID returns the current phase index, or -1 before the first
// phase has been entered.
func (e *Engine) PhaseID() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.phaseID
}

// CurrentRun returns the active (or most recently active) PhaseRun.
func (e *Engine) CurrentRun() PhaseRun {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.run
}

// StartProtocol implements spec.md §4.1's start_protocol contract:
// refuses unless every participant is IDLE and the engine itself is
// idle; otherwise sets the protocol and enters PREPARE_PROTOCOL.
func (e *Engine) StartProtocol(p *Protocol) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != wstate.Idle {
		return fmt.Errorf("protocol: start_protocol rejected, supervisor is %s not IDLE", e.state)
	}
	if !e.barrier.AllIn(wstate.Idle) {
		return fmt.Errorf("protocol: start_protocol rejected, not every participant is IDLE")
	}
	if p.PhaseCount() == 0 {
		return fmt.Errorf("protocol %q: has no phases", p.ID)
	}
	e.protocol = p
	e.phaseID = -1
	e.run = PhaseRun{}
	e.state = wstate.PrepareProtocol
	return nil
}

// AbortProtocol implements spec.md §4.1's abort_protocol: sets stop to
// now and transitions straight to PROTOCOL_END. A no-op if already
// idle or already ended.
func (e *Engine) AbortProtocol(now time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == wstate.Idle || e.state == wstate.ProtocolEnd {
		return
	}
	e.run.Stop = now
	e.state = wstate.ProtocolEnd
	cb := e.OnProtocolEnd
	e.mu.Unlock()
	if cb != nil {
		cb()
	}
	e.mu.Lock()
}

// Transition records one state-machine step, for the supervisor to
// react to (broadcast signals, start/stop recording) and for tests to
// assert on.
type Transition struct {
	From, To wstate.State
	PhaseID  int
	Run      PhaseRun
}

// Tick evaluates spec.md §4.1's transition table once, using now as
// the wall-clock reference for the RUNNING -> PHASE_END condition.
// Returns the transition taken, if any.
func (e *Engine) Tick(now time.Time) (Transition, bool) {
	e.mu.Lock()
	from := e.state

	switch e.state {
	case wstate.PrepareProtocol:
		if e.barrier.AllIn(wstate.WaitForPhase) {
			e.phaseID++
			e.state = wstate.PreparePhase
		}
	case wstate.PreparePhase:
		if e.barrier.AllIn(wstate.Ready) {
			dur, err := e.protocol.FetchPhaseDuration(e.phaseID)
			if err != nil {
				break
			}
			start := now.Add(e.delta)
			e.run = PhaseRun{PhaseID: e.phaseID, Start: start, Stop: start.Add(dur)}
			e.state = wstate.Running
		}
	case wstate.Running:
		if now.After(e.run.Stop) {
			e.state = wstate.PhaseEnd
		}
	case wstate.PhaseEnd:
		if e.phaseID+1 < e.protocol.PhaseCount() {
			e.phaseID++
			e.state = wstate.PreparePhase
		} else {
			e.state = wstate.ProtocolEnd
		}
	case wstate.ProtocolEnd:
		if e.barrier.AllIn(wstate.Idle) {
			e.protocol = nil
			e.phaseID = -1
			e.run = PhaseRun{}
			e.state = wstate.Idle
		}
	}

	to := e.state
	phaseID := e.phaseID
	run := e.run
	var endCb, idleCb func()
	if to != from && to == wstate.ProtocolEnd {
		endCb = e.OnProtocolEnd
	}
	if to != from && to == wstate.Idle && from == wstate.ProtocolEnd {
		idleCb = e.OnReturnToIdle
	}
	e.mu.Unlock()

	if endCb != nil {
		endCb()
	}
	if idleCb != nil {
		idleCb()
	}
	if to == from {
		return Transition{}, false
	}
	return Transition{From: from, To: to, PhaseID: phaseID, Run: run}, true
}
