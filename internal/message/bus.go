package message

import (
	"fmt"
	"log"

	"go.uber.org/zap"

	"vxcore/internal/wstate"
)

// DefaultFanInCapacity bounds the central fan-in queue. The supervisor
// drains it every tick; a full queue means the supervisor has fallen
// far behind, at which point dropping (with a loud log) is preferable
// to blocking a worker's tick loop indefinitely (spec.md §5: workers
// must never suspend on anything but their own tail-sleep).
const DefaultFanInCapacity = 4096

// DefaultInboxCapacity bounds each worker's inbox (one per worker,
// shared by every sender).
const DefaultInboxCapacity = 256

// Bus owns every worker's inbox and the single fan-in queue that all
// worker-to-worker and worker-to-supervisor traffic passes through.
// The supervisor is the sole consumer of FanIn(); the zero value is
// not usable, use NewBus.
type Bus struct {
	fanIn   chan Envelope
	inboxes map[wstate.Kind]chan ControlMessage
	logger  *zap.SugaredLogger
}

// NewBus creates an empty bus. Call Register once per participating
// worker kind before starting any workers.
func NewBus() *Bus {
	return &Bus{
		fanIn:   make(chan Envelope, DefaultFanInCapacity),
		inboxes: make(map[wstate.Kind]chan ControlMessage),
	}
}

// SetLogger attaches the session logger so dropped/unroutable messages
// go through the session logger (and its websocket sink) instead of the
// standard log package.
func (b *Bus) SetLogger(logger *zap.SugaredLogger) { b.logger = logger }

// Register creates kind's inbox and returns the Endpoint that worker
// uses to drain it and to send outgoing traffic.
func (b *Bus) Register(kind wstate.Kind) *Endpoint {
	inbox := make(chan ControlMessage, DefaultInboxCapacity)
	b.inboxes[kind] = inbox
	return &Endpoint{kind: kind, inbox: inbox, fanIn: b.fanIn, logger: b.logger}
}

// FanIn exposes the fan-in channel for the supervisor's drain loop.
func (b *Bus) FanIn() <-chan Envelope { return b.fanIn }

// PushToWorker implements spec.md §4.3's "Supervisor -> worker X: push
// onto X's channel" rule. It is non-blocking: if the inbox is full the
// message is dropped and logged, since the supervisor must never block
// on a stalled worker.
func (b *Bus) PushToWorker(to wstate.Kind, msg ControlMessage) error {
	inbox, ok := b.inboxes[to]
	if !ok {
		return fmt.Errorf("message: no registered worker %s", to)
	}
	select {
	case inbox <- msg:
		return nil
	default:
		b.logf("message: inbox for %s is full, dropping %s message from %s", to, msg.Signal, msg.Sender)
		return fmt.Errorf("message: inbox for %s is full", to)
	}
}

// Forward drains the fan-in queue once, routing each envelope either
// to the supervisor's own handler (when To == selfKind) or to the
// addressed worker's inbox, per spec.md §4.3. It returns after the
// queue is empty, never blocking.
func (b *Bus) Forward(selfKind wstate.Kind, handleLocal func(from wstate.Kind, msg ControlMessage)) {
	for {
		select {
		case env := <-b.fanIn:
			if env.To == selfKind {
				handleLocal(env.From, env.Msg)
				continue
			}
			if err := b.PushToWorker(env.To, env.Msg); err != nil {
				b.logf("message: forwarding %s->%s failed: %v", env.From, env.To, err)
			}
		default:
			return
		}
	}
}

func (b *Bus) logf(format string, args ...any) {
	if b.logger != nil {
		b.logger.Warnf(format, args...)
		return
	}
	log.Printf(format, args...)
}

// Endpoint is a single worker's view of the bus: its own inbox to
// drain, and a way to send traffic to any other kind (including the
// supervisor) via the fan-in queue.
type Endpoint struct {
	kind   wstate.Kind
	inbox  chan ControlMessage
	fanIn  chan<- Envelope
	logger *zap.SugaredLogger
}

// Kind returns the worker kind this endpoint belongs to.
func (e *Endpoint) Kind() wstate.Kind { return e.kind }

// SetLogger overrides the logger this endpoint reports drops with —
// used when a worker's own named logger should tag the message rather
// than the bus-wide one it was registered with.
func (e *Endpoint) SetLogger(logger *zap.SugaredLogger) { e.logger = logger }

// Send implements spec.md §4.3's worker-to-worker and
// worker-to-supervisor publish rule: push {sender, receiver, msg} onto
// the fan-in queue. RPC is fire-and-forget, so a full queue is logged
// and dropped rather than blocking the caller's tick.
func (e *Endpoint) Send(to wstate.Kind, msg ControlMessage) {
	msg.Sender = e.kind
	msg.Receiver = to
	select {
	case e.fanIn <- Envelope{From: e.kind, To: to, Msg: msg}:
	default:
		if e.logger != nil {
			e.logger.Warnf("message: fan-in queue full, dropping %s message %s->%s", msg.Signal, e.kind, to)
			return
		}
		log.Printf("message: fan-in queue full, dropping %s message %s->%s", msg.Signal, e.kind, to)
	}
}

// Drain removes and returns every message currently queued in this
// worker's inbox, without blocking. This is the "drain the inbox" step
// of the worker tick kernel (spec.md §4.2).
func (e *Endpoint) Drain() []ControlMessage {
	var out []ControlMessage
	for {
		select {
		case m := <-e.inbox:
			out = append(out, m)
		default:
			return out
		}
	}
}
