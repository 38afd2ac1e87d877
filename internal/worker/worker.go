// Package worker implements the tick-loop kernel of spec.md §4.2: a
// worker drains its inbox, runs one iteration of its own logic, steps
// its protocol-responder state machine, evaluates any triggers it
// owns, then sleeps to its target period using the clock package's
// calibrated precision sleep.
//
// Per SPEC_FULL.md §4.10's redesign note, a Worker here is an
// in-process goroutine rather than an OS process; it is written
// against the same Inbox/Outbox-shaped surface (message.Endpoint,
// protocol.Responder) that a real process-per-worker implementation
// would use over pipes, so the substitution is confined to this
// package and cmd/vxcore, which starts the workers.
package worker

import (
	"context"
	"time"

	"go.uber.org/zap"

	"vxcore/internal/clock"
	"vxcore/internal/message"
	"vxcore/internal/protocol"
	"vxcore/internal/trigger"
	"vxcore/internal/wstate"
)

// Options configures a new Worker.
type Options struct {
	Kind       wstate.Kind
	Endpoint   *message.Endpoint
	Dispatcher *message.Dispatcher
	// Engine, if non-nil, makes this worker a protocol participant: its
	// Responder steps against Engine's observed state every tick.
	Engine   *protocol.Engine
	Period   time.Duration
	MinSleep time.Duration
	// Cell, if non-nil, is used as the worker's state cell instead of a
	// freshly allocated one — lets the caller register the same cell
	// with both the supervisor's shutdown-readiness check and the
	// protocol barrier before the worker itself exists.
	Cell *wstate.Cell
	// Main is the worker's own per-tick logic (sampling a frame,
	// pumping a display's event loop, polling I/O pins, ...).
	Main              func() error
	OnPrepareProtocol func()
	OnPreparePhase    func()
	OnCleanupProtocol func()
	// PublishPhaseTime, if set, is called every tick the worker
	// observes itself RUNNING, with phase_time = now - phase_start
	// (spec.md §4.2).
	PublishPhaseTime func(phaseTime time.Duration)
	// OnTick, if set, is called once per iteration with the time spent
	// in drain+main+protocol+triggers, before the tail sleep — the hook
	// an observability layer uses to record a tick-duration histogram
	// without this package importing one.
	OnTick func(time.Duration)
	Logger *zap.SugaredLogger
}

// Worker is one participant in a session: a state cell, a message
// endpoint, an optional protocol responder, and zero or more triggers
// evaluated at the tail of every tick.
type Worker struct {
	kind       wstate.Kind
	cell       *wstate.Cell
	endpoint   *message.Endpoint
	dispatcher *message.Dispatcher
	engine     *protocol.Engine
	responder  *protocol.Responder
	triggers   []*trigger.Trigger

	period           time.Duration
	minSleep         time.Duration
	main             func() error
	publishPhaseTime func(time.Duration)
	onTick           func(time.Duration)
	logger           *zap.SugaredLogger
}

// New constructs a Worker in state IDLE.
func New(opts Options) *Worker {
	cell := opts.Cell
	if cell == nil {
		cell = wstate.NewCell(wstate.Idle)
	}
	responder := protocol.NewResponder(cell)
	responder.OnPrepareProtocol = opts.OnPrepareProtocol
	responder.OnPreparePhase = opts.OnPreparePhase
	responder.OnCleanupProtocol = opts.OnCleanupProtocol

	return &Worker{
		kind:             opts.Kind,
		cell:             cell,
		endpoint:         opts.Endpoint,
		dispatcher:       opts.Dispatcher,
		engine:           opts.Engine,
		responder:        responder,
		period:           opts.Period,
		minSleep:         opts.MinSleep,
		main:             opts.Main,
		publishPhaseTime: opts.PublishPhaseTime,
		onTick:           opts.OnTick,
		logger:           opts.Logger,
	}
}

// Kind returns the worker's fixed role.
func (w *Worker) Kind() wstate.Kind { return w.kind }

// State exposes the worker's own state cell (read-only for everyone
// but the worker itself and the supervisor's spawn/force-stop path).
func (w *Worker) State() *wstate.Cell { return w.cell }

// AddTrigger installs tr to be evaluated at the tail of every tick.
func (w *Worker) AddTrigger(tr *trigger.Trigger) { w.triggers = append(w.triggers, tr) }

// Run executes the tick loop until a Shutdown signal is observed or
// ctx is cancelled. It returns nil after sending ConfirmShutdown, and
// the ctx error otherwise — shaped to compose directly with
// errgroup.Group.Go in the supervisor.
func (w *Worker) Run(ctx context.Context) error {
	w.cell.Store(wstate.Starting)
	w.cell.Store(wstate.Idle)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		tickStart := time.Now()
		deadline := tickStart.Add(w.period)

		if w.drainAndCheckShutdown() {
			w.cell.Store(wstate.Stopped)
			w.endpoint.Send(wstate.Controller, message.ControlMessage{Signal: message.ConfirmShutdown})
			if w.logger != nil {
				w.logger.Infow("worker confirmed shutdown", "kind", w.kind)
			}
			return nil
		}

		if w.main != nil {
			if err := w.main(); err != nil && w.logger != nil {
				w.logger.Errorw("tick main failed", "kind", w.kind, "error", err)
			}
		}

		w.stepProtocol()
		w.evaluateTriggers()

		if w.onTick != nil {
			w.onTick(time.Since(tickStart))
		}

		clock.SleepUntil(deadline, w.minSleep)
	}
}

func (w *Worker) drainAndCheckShutdown() bool {
	for _, m := range w.endpoint.Drain() {
		switch m.Signal {
		case message.Shutdown:
			return true
		case message.RPC, message.UpdateProperty:
			w.dispatcher.Dispatch(m)
		}
	}
	return false
}

func (w *Worker) stepProtocol() {
	if w.engine == nil {
		return
	}
	now := time.Now()
	wasRunning := w.cell.Load() == wstate.Running
	w.responder.Tick(now, w.engine.State(), w.engine.CurrentRun(), func(pt time.Duration) {
		if w.publishPhaseTime != nil {
			w.publishPhaseTime(pt)
		}
	})
	if !wasRunning && w.cell.Load() == wstate.Running && w.logger != nil {
		w.logger.Infow("phase started", "kind", w.kind, "phase_start", w.responder.PhaseStart())
	}
}

func (w *Worker) evaluateTriggers() {
	for _, tr := range w.triggers {
		if err := tr.Evaluate(w.endpoint); err != nil && w.logger != nil {
			w.logger.Warnw("trigger evaluation failed", "trigger", tr.Name(), "error", err)
		}
	}
}
