package protocol

import (
	"testing"
	"time"

	"vxcore/internal/wstate"
)

// TestResponderFullCycle drives a single Responder through every row
// of spec.md §4.2's table in order, checking both the state
// transition and that each hook fires exactly once at the right step.
func TestResponderFullCycle(t *testing.T) {
	cell := wstate.NewCell(wstate.Idle)
	r := NewResponder(cell)

	var prepProtocol, prepPhase, cleanup int
	r.OnPrepareProtocol = func() { prepProtocol++ }
	r.OnPreparePhase = func() { prepPhase++ }
	r.OnCleanupProtocol = func() { cleanup++ }

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	run := PhaseRun{PhaseID: 0, Start: now.Add(100 * time.Millisecond), Stop: now.Add(600 * time.Millisecond)}

	r.Tick(now, wstate.PrepareProtocol, PhaseRun{}, nil)
	if cell.Load() != wstate.WaitForPhase || prepProtocol != 1 {
		t.Fatalf("after IDLE step: cell=%s prepProtocol=%d", cell.Load(), prepProtocol)
	}

	r.Tick(now, wstate.PreparePhase, PhaseRun{}, nil)
	if cell.Load() != wstate.Ready || prepPhase != 1 {
		t.Fatalf("after WAIT_FOR_PHASE step: cell=%s prepPhase=%d", cell.Load(), prepPhase)
	}

	// Not yet at scheduled start: must not jump to RUNNING early.
	r.Tick(run.Start.Add(-time.Millisecond), wstate.Running, run, nil)
	if cell.Load() != wstate.Ready {
		t.Fatalf("responder entered RUNNING before scheduled start")
	}

	r.Tick(run.Start, wstate.Running, run, nil)
	if cell.Load() != wstate.Running {
		t.Fatalf("after READY step: cell=%s, want RUNNING", cell.Load())
	}
	if !r.PhaseStart().Equal(run.Start) {
		t.Fatalf("phase_start = %v, want %v", r.PhaseStart(), run.Start)
	}

	var observedPhaseTime time.Duration
	mid := run.Start.Add(200 * time.Millisecond)
	r.Tick(mid, wstate.Running, run, func(pt time.Duration) { observedPhaseTime = pt })
	if cell.Load() != wstate.Running {
		t.Fatalf("responder left RUNNING before stop")
	}
	if observedPhaseTime != 200*time.Millisecond {
		t.Fatalf("phase_time = %v, want 200ms", observedPhaseTime)
	}

	afterStop := run.Stop.Add(time.Millisecond)
	r.Tick(afterStop, wstate.Running, run, nil)
	if cell.Load() != wstate.PhaseEnd {
		t.Fatalf("after RUNNING step: cell=%s, want PHASE_END", cell.Load())
	}

	// PHASE_END -> WAIT_FOR_PHASE (another phase follows).
	r.Tick(afterStop, wstate.PreparePhase, run, nil)
	if cell.Load() != wstate.WaitForPhase {
		t.Fatalf("PHASE_END did not return to WAIT_FOR_PHASE for the next phase")
	}

	// Drive back around once more, then finish via PROTOCOL_END.
	r.Tick(afterStop, wstate.PreparePhase, run, nil)
	if cell.Load() != wstate.Ready {
		t.Fatalf("second WAIT_FOR_PHASE step failed")
	}
	cell.Store(wstate.PhaseEnd) // skip straight to the cleanup row being tested
	r.Tick(afterStop, wstate.ProtocolEnd, run, nil)
	if cell.Load() != wstate.Idle || cleanup != 1 {
		t.Fatalf("after final PHASE_END step: cell=%s cleanup=%d", cell.Load(), cleanup)
	}
}
