package worker

import (
	"context"
	"testing"
	"time"

	"vxcore/internal/message"
	"vxcore/internal/wstate"
)

// TestRunConfirmsShutdown checks the tick kernel's graceful-exit path:
// a Shutdown control message causes the worker to transition to
// STOPPED and send exactly one ConfirmShutdown to the supervisor.
func TestRunConfirmsShutdown(t *testing.T) {
	bus := message.NewBus()
	controller := bus.Register(wstate.Controller)
	camera := bus.Register(wstate.Camera)
	dispatcher := message.NewDispatcher()

	w := New(Options{
		Kind:       wstate.Camera,
		Endpoint:   camera,
		Dispatcher: dispatcher,
		Period:     time.Millisecond,
		MinSleep:   time.Microsecond,
	})

	controller.Send(wstate.Camera, message.ControlMessage{Signal: message.Shutdown})
	bus.Forward(wstate.Controller, func(wstate.Kind, message.ControlMessage) {})

	done := make(chan error, 1)
	go func() { done <- w.Run(context.Background()) }()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned %v, want nil", err)
		}
	case <-time.After(time.Second):
		t.Fatal("worker did not exit after Shutdown")
	}

	if w.State().Load() != wstate.Stopped {
		t.Fatalf("state = %s, want STOPPED", w.State().Load())
	}

	bus.Forward(wstate.Controller, func(from wstate.Kind, msg message.ControlMessage) {
		if from != wstate.Camera || msg.Signal != message.ConfirmShutdown {
			t.Errorf("unexpected message forwarded to supervisor: %+v from %s", msg, from)
		}
	})
	_ = controller
}

// TestRunInvokesMainEachTick verifies the worker's own logic actually
// runs once per tick.
func TestRunInvokesMainEachTick(t *testing.T) {
	bus := message.NewBus()
	bus.Register(wstate.Controller)
	camera := bus.Register(wstate.Camera)
	dispatcher := message.NewDispatcher()

	ticks := 0
	ctx, cancel := context.WithCancel(context.Background())
	w := New(Options{
		Kind:       wstate.Camera,
		Endpoint:   camera,
		Dispatcher: dispatcher,
		Period:     time.Millisecond,
		MinSleep:   time.Microsecond,
		Main: func() error {
			ticks++
			if ticks >= 5 {
				cancel()
			}
			return nil
		},
	})

	err := w.Run(ctx)
	if ticks < 5 {
		t.Fatalf("main invoked %d times, want at least 5", ticks)
	}
	if err == nil {
		t.Fatalf("Run returned nil, want context.Canceled")
	}
}
