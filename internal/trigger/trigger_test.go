package trigger

import (
	"testing"

	"vxcore/internal/attribute"
	"vxcore/internal/message"
	"vxcore/internal/wstate"
)

// recordingSender captures every Send call in order, standing in for
// a message.Endpoint in tests.
type recordingSender struct {
	sent []struct {
		to  wstate.Kind
		msg message.ControlMessage
	}
}

func (r *recordingSender) Send(to wstate.Kind, msg message.ControlMessage) {
	r.sent = append(r.sent, struct {
		to  wstate.Kind
		msg message.ControlMessage
	}{to, msg})
}

func newGateAttr(t *testing.T, capacity int) (*attribute.Store, *attribute.ArrayHandle[int32]) {
	t.Helper()
	store := attribute.NewStore()
	h, err := attribute.DeclareArray[int32](store, "gate", []int{1}, capacity)
	if err != nil {
		t.Fatalf("DeclareArray: %v", err)
	}
	return store, h
}

// TestRisingEdgeFiresOnceAt documents spec.md §8 scenario 3: writes
// 0,0,1,1,0,1 should fire the rising-edge trigger exactly at indices
// 2 and 5, each exactly once.
func TestRisingEdgeFiresOnceAt(t *testing.T) {
	_, h := newGateAttr(t, 100)
	tr := New("gate-rise", h.Raw(), RisingEdge, Callback{Target: wstate.Display, Key: "Display.OnGate"})

	for _, v := range []int32{0, 0, 1, 1, 0, 1} {
		if err := h.Write([]int32{v}); err != nil {
			t.Fatalf("Write: %v", err)
		}
	}

	sender := &recordingSender{}
	if err := tr.Evaluate(sender); err != nil {
		t.Fatalf("Evaluate: %v", err)
	}

	var fired []int64
	for _, s := range sender.sent {
		fired = append(fired, s.msg.Args[0].(int64))
	}
	want := []int64{2, 5}
	if len(fired) != len(want) {
		t.Fatalf("fired = %v, want %v", fired, want)
	}
	for i := range want {
		if fired[i] != want[i] {
			t.Errorf("fired[%d] = %d, want %d", i, fired[i], want[i])
		}
	}

	// A second Evaluate with no new writes must not refire anything.
	sender2 := &recordingSender{}
	if err := tr.Evaluate(sender2); err != nil {
		t.Fatalf("second Evaluate: %v", err)
	}
	if len(sender2.sent) != 0 {
		t.Errorf("second Evaluate fired %d callbacks, want 0", len(sender2.sent))
	}
}

// TestFallingEdge mirrors the rising-edge scenario with the opposite
// condition kind.
func TestFallingEdge(t *testing.T) {
	_, h := newGateAttr(t, 100)
	tr := New("gate-fall", h.Raw(), FallingEdge, Callback{Target: wstate.Io, Key: "Io.OnFall"})

	for _, v := range []int32{1, 1, 0, 0, 1, 0} {
		h.Write([]int32{v})
	}

	sender := &recordingSender{}
	tr.Evaluate(sender)

	var fired []int64
	for _, s := range sender.sent {
		fired = append(fired, s.msg.Args[0].(int64))
	}
	want := []int64{2, 5}
	if len(fired) != len(want) {
		t.Fatalf("fired = %v, want %v", fired, want)
	}
	for i := range want {
		if fired[i] != want[i] {
			t.Errorf("fired[%d] = %d, want %d", i, fired[i], want[i])
		}
	}
}

// TestLevelHighFiresEveryNonzeroSample checks the level condition,
// which (unlike the edge conditions) fires on every entry satisfying
// the predicate, not just transitions.
func TestLevelHighFiresEveryNonzeroSample(t *testing.T) {
	_, h := newGateAttr(t, 100)
	tr := New("gate-level", h.Raw(), LevelHigh, Callback{Target: wstate.Worker, Key: "Worker.OnHigh"})

	for _, v := range []int32{0, 1, 1, 0, 1} {
		h.Write([]int32{v})
	}

	sender := &recordingSender{}
	tr.Evaluate(sender)

	if len(sender.sent) != 3 {
		t.Fatalf("fired %d times, want 3", len(sender.sent))
	}
}

// TestFewerThanTwoEntriesIsNoOp matches spec.md §4.5's tie-break rule:
// a single pending write never fires and never advances last_read_idx.
func TestFewerThanTwoEntriesIsNoOp(t *testing.T) {
	_, h := newGateAttr(t, 100)
	tr := New("gate-single", h.Raw(), RisingEdge, Callback{Target: wstate.Display, Key: "Display.OnGate"})

	h.Write([]int32{1})
	sender := &recordingSender{}
	tr.Evaluate(sender)
	if len(sender.sent) != 0 {
		t.Fatalf("expected no-op with one pending entry, got %d callbacks", len(sender.sent))
	}

	h.Write([]int32{1})
	sender2 := &recordingSender{}
	tr.Evaluate(sender2)
	// Now two entries (1, 1) are pending: no rising edge between them.
	if len(sender2.sent) != 0 {
		t.Fatalf("expected no rising edge between two equal entries, got %d callbacks", len(sender2.sent))
	}
}

// TestInactiveTriggerDoesNotEvaluate verifies that a disabled trigger
// neither fires nor advances its read position.
func TestInactiveTriggerDoesNotEvaluate(t *testing.T) {
	_, h := newGateAttr(t, 100)
	tr := New("gate-inactive", h.Raw(), RisingEdge, Callback{Target: wstate.Display, Key: "Display.OnGate"})
	tr.SetActive(false)

	for _, v := range []int32{0, 1, 0, 1} {
		h.Write([]int32{v})
	}
	sender := &recordingSender{}
	tr.Evaluate(sender)
	if len(sender.sent) != 0 {
		t.Fatalf("inactive trigger fired %d callbacks, want 0", len(sender.sent))
	}

	tr.SetActive(true)
	sender2 := &recordingSender{}
	tr.Evaluate(sender2)
	if len(sender2.sent) != 2 {
		t.Fatalf("reactivated trigger fired %d callbacks, want 2", len(sender2.sent))
	}
}

// TestComputeMaskIsIdempotent is the pure-function idempotence check:
// evaluating the same data slice twice always yields the same mask.
func TestComputeMaskIsIdempotent(t *testing.T) {
	data := []float64{0, 0, 1, 1, 0, 1, 1, 1, 0}
	for _, kind := range []ConditionKind{LevelHigh, RisingEdge, FallingEdge} {
		m1 := computeMask(kind, data)
		m2 := computeMask(kind, data)
		if len(m1) != len(m2) {
			t.Fatalf("%s: mask length changed between calls", kind)
		}
		for i := range m1 {
			if m1[i] != m2[i] {
				t.Errorf("%s: mask[%d] differs between identical calls: %v vs %v", kind, i, m1[i], m2[i])
			}
		}
	}
}

// TestMultipleCallbacksAllFired checks that every registered callback
// receives every fired index, independently.
func TestMultipleCallbacksAllFired(t *testing.T) {
	_, h := newGateAttr(t, 100)
	tr := New("gate-multi", h.Raw(), RisingEdge,
		Callback{Target: wstate.Display, Key: "Display.OnGate"},
		Callback{Target: wstate.Io, Key: "Io.OnGate"},
	)
	for _, v := range []int32{0, 1} {
		h.Write([]int32{v})
	}
	sender := &recordingSender{}
	tr.Evaluate(sender)
	if len(sender.sent) != 2 {
		t.Fatalf("expected 2 sends (one per callback), got %d", len(sender.sent))
	}
	if sender.sent[0].to != wstate.Display || sender.sent[1].to != wstate.Io {
		t.Errorf("callback targets = %v, %v; want Display, Io", sender.sent[0].to, sender.sent[1].to)
	}
}
