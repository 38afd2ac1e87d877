// Package wstate defines the fixed set of worker kinds and the
// per-worker lifecycle/protocol states shared by the supervisor,
// worker, protocol, and message packages. Kept separate so those
// packages can refer to states without importing each other.
package wstate

import "sync/atomic"

// Kind identifies one of the fixed worker roles in a session.
type Kind int

const (
	Controller Kind = iota
	Camera
	Display
	Io
	Gui
	Worker
)

var kindNames = [...]string{"Controller", "Camera", "Display", "Io", "Gui", "Worker"}

func (k Kind) String() string {
	if int(k) < 0 || int(k) >= len(kindNames) {
		return "Unknown"
	}
	return kindNames[k]
}

// ParseKind resolves a worker kind by its case-sensitive name, as used
// in session config sections and RPC arguments.
func ParseKind(s string) (Kind, bool) {
	for i, n := range kindNames {
		if n == s {
			return Kind(i), true
		}
	}
	return 0, false
}

// State is a lifecycle/protocol-responder state. Values follow
// spec.md's {NA, STOPPED, STARTING, IDLE, PREPARE_PROTOCOL,
// WAIT_FOR_PHASE, PREPARE_PHASE, READY, RUNNING, PHASE_END,
// PROTOCOL_END} set exactly.
type State int32

const (
	NA State = iota
	Stopped
	Starting
	Idle
	PrepareProtocol
	WaitForPhase
	PreparePhase
	Ready
	Running
	PhaseEnd
	ProtocolEnd
)

var stateNames = [...]string{
	"NA", "STOPPED", "STARTING", "IDLE", "PREPARE_PROTOCOL",
	"WAIT_FOR_PHASE", "PREPARE_PHASE", "READY", "RUNNING",
	"PHASE_END", "PROTOCOL_END",
}

func (s State) String() string {
	if int(s) < 0 || int(s) >= len(stateNames) {
		return "UNKNOWN"
	}
	return stateNames[s]
}

// Cell is an atomic state cell. Per spec.md §3 it is owned by the
// worker; the supervisor writes to it only during spawn and
// force-stop.
type Cell struct {
	v atomic.Int32
}

// NewCell returns a Cell initialized to the given state.
func NewCell(initial State) *Cell {
	c := &Cell{}
	c.v.Store(int32(initial))
	return c
}

// Load reads the current state.
func (c *Cell) Load() State {
	return State(c.v.Load())
}

// Store sets the state unconditionally.
func (c *Cell) Store(s State) {
	c.v.Store(int32(s))
}

// CompareAndSwap sets the state to next only if it currently equals
// want, returning whether the swap happened.
func (c *Cell) CompareAndSwap(want, next State) bool {
	return c.v.CompareAndSwap(int32(want), int32(next))
}
