package message

import (
	"testing"

	"vxcore/internal/wstate"
)

// TestRPCFIFO is spec.md §8's RPC FIFO invariant: for any sender,
// receiver pair, the received RPC sequence equals the sent sequence.
func TestRPCFIFO(t *testing.T) {
	bus := NewBus()
	camera := bus.Register(wstate.Camera)
	display := bus.Register(wstate.Display)

	const n = 50
	for i := 0; i < n; i++ {
		camera.Send(wstate.Display, ControlMessage{Signal: RPC, Callable: "Display.SetVisual", Args: []any{i}})
	}

	bus.Forward(wstate.Controller, func(wstate.Kind, ControlMessage) {
		t.Fatalf("no message should have addressed the supervisor")
	})

	got := display.Drain()
	if len(got) != n {
		t.Fatalf("got %d messages, want %d", len(got), n)
	}
	for i, m := range got {
		if m.Args[0].(int) != i {
			t.Errorf("message %d out of order: got arg %v, want %d", i, m.Args[0], i)
		}
	}
}

// TestForwardRoutesToSupervisor checks that envelopes addressed to the
// supervisor's own kind are handled locally rather than forwarded.
func TestForwardRoutesToSupervisor(t *testing.T) {
	bus := NewBus()
	io := bus.Register(wstate.Io)

	io.Send(wstate.Controller, ControlMessage{Signal: ConfirmShutdown})

	var handled []ControlMessage
	bus.Forward(wstate.Controller, func(from wstate.Kind, msg ControlMessage) {
		if from != wstate.Io {
			t.Errorf("handleLocal from = %s, want Io", from)
		}
		handled = append(handled, msg)
	})
	if len(handled) != 1 || handled[0].Signal != ConfirmShutdown {
		t.Fatalf("expected exactly one ConfirmShutdown handled locally, got %v", handled)
	}
}

// TestPushToWorkerFullInboxDrops verifies the supervisor never blocks
// pushing to a stalled worker's inbox (spec.md §5).
func TestPushToWorkerFullInboxDrops(t *testing.T) {
	bus := NewBus()
	bus.Register(wstate.Gui)

	for i := 0; i < DefaultInboxCapacity+10; i++ {
		_ = bus.PushToWorker(wstate.Gui, ControlMessage{Signal: UpdateProperty})
	}
	// Should not have blocked or panicked; capacity is enforced.
}

func TestDispatchUnknownCallableIsDropped(t *testing.T) {
	d := NewDispatcher()
	called := false
	d.Register("Display.Known", func(args []any, kwargs map[string]any) error {
		called = true
		return nil
	})

	d.Dispatch(ControlMessage{Callable: "Display.Unknown"})
	if called {
		t.Errorf("unknown callable should not have invoked Known's handler")
	}

	d.Dispatch(ControlMessage{Callable: "Display.Known"})
	if !called {
		t.Errorf("known callable was not invoked")
	}
}
