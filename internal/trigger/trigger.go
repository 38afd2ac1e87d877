// Package trigger implements the edge-detect trigger system of
// spec.md §4.5, layered over the attribute store: rising/falling/level
// conditions evaluated over a named attribute's pending updates,
// firing RPC callbacks into any worker's dispatch table.
package trigger

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/davecgh/go-spew/spew"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"

	"vxcore/internal/attribute"
	"vxcore/internal/message"
	"vxcore/internal/wstate"
)

// ConditionKind is one of spec.md §3's three trigger condition kinds.
type ConditionKind int

const (
	LevelHigh ConditionKind = iota
	RisingEdge
	FallingEdge
)

func (k ConditionKind) String() string {
	switch k {
	case LevelHigh:
		return "LevelHigh"
	case RisingEdge:
		return "RisingEdge"
	case FallingEdge:
		return "FallingEdge"
	default:
		return "Unknown"
	}
}

// Callback names the (target_worker, callback_key) pair a fired
// trigger entry is delivered to, per spec.md §3.
type Callback struct {
	Target wstate.Kind
	Key    string
}

// Sender is the minimal surface Trigger needs to deliver a callback;
// *message.Endpoint satisfies it.
type Sender interface {
	Send(to wstate.Kind, msg message.ControlMessage)
}

// Trigger is one installed condition over one attribute, per
// spec.md §3: (attribute, condition_kind, callback_list,
// last_read_index, active?).
type Trigger struct {
	mu          sync.Mutex
	name        string
	attr        attribute.Attribute
	kind        ConditionKind
	callbacks   []Callback
	lastReadIdx int64 // -1 means "never evaluated"
	active      atomic.Bool

	logger *zap.SugaredLogger
	onFire func(name string, idx int64, ts time.Time, value float64)
}

// SetLogger attaches a logger used only for debug-level dumps of the
// evaluated window when the trigger fires, matching the teacher's own
// spew.Sdump(state) logging in ConfigureTriggers.
func (t *Trigger) SetLogger(logger *zap.SugaredLogger) { t.logger = logger }

// SetOnFire installs a hook called once per fired entry, after
// callbacks are sent — used to mirror firings onto an external
// publisher without coupling Trigger to any particular transport.
func (t *Trigger) SetOnFire(fn func(name string, idx int64, ts time.Time, value float64)) {
	t.onFire = fn
}

// New installs a trigger on attr. The trigger starts active.
func New(name string, attr attribute.Attribute, kind ConditionKind, callbacks ...Callback) *Trigger {
	t := &Trigger{name: name, attr: attr, kind: kind, callbacks: callbacks, lastReadIdx: -1}
	t.active.Store(true)
	return t
}

// SetActive enables or disables the trigger. A disabled trigger is a
// no-op on Evaluate starting with the next call; per spec.md §4.5, an
// Evaluate already in progress still flushes its pending emissions.
func (t *Trigger) SetActive(v bool) { t.active.Store(v) }

// Active reports whether the trigger is currently enabled.
func (t *Trigger) Active() bool { return t.active.Load() }

// Name returns the trigger's identifying name (for logging/metrics).
func (t *Trigger) Name() string { return t.name }

// Evaluate performs one tick's worth of trigger evaluation, per
// spec.md §4.5:
//  1. read pending entries since last_read_idx
//  2. compute the condition mask
//  3. emit an RPC message per fired entry per callback via send
//  4. advance last_read_idx past every entry just evaluated
//
// If fewer than two entries are pending, Evaluate is a no-op and
// last_read_idx does not advance (spec.md §4.5's tie-break rule).
func (t *Trigger) Evaluate(send Sender) error {
	if !t.Active() {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	from := t.lastReadIdx + 1
	read, err := t.attr.ReadFromErased(from)
	if err != nil {
		if err == attribute.ErrNoData {
			return nil
		}
		return err
	}
	if read.Floats == nil {
		return fmt.Errorf("trigger %q: attribute %q is not an array attribute", t.name, t.attr.Name())
	}
	if read.Len() < 2 {
		return nil
	}

	data := make([]float64, read.Len())
	for i, row := range read.Floats {
		if len(row) > 0 {
			data[i] = row[0]
		}
	}
	mask := computeMask(t.kind, data)

	for i, fired := range mask {
		if !fired {
			continue
		}
		if t.logger != nil {
			t.logger.Debugw("trigger fired", "trigger", t.name, "condition", t.kind.String(), "state", spew.Sdump(data))
		}
		for _, cb := range t.callbacks {
			send.Send(cb.Target, message.ControlMessage{
				Signal:   message.RPC,
				Callable: cb.Key,
				Args:     []any{read.Indices[i], read.Timestamps[i], data[i]},
			})
		}
		if t.onFire != nil {
			t.onFire(t.name, read.Indices[i], read.Timestamps[i], data[i])
		}
	}

	t.lastReadIdx = read.Indices[len(read.Indices)-1]
	return nil
}

// computeMask is the pure condition-evaluation step, factored out of
// Evaluate so it can be tested for idempotence independent of the
// attribute store. Edge conditions are computed as a vectorized
// backward difference via gonum's mat.VecDense rather than a
// hand-rolled element-by-element loop: mask[i] means "the transition
// ending at i is a rise/fall", so a trigger fires at the first index
// that already carries the new value, matching the teacher's own
// trigFrame convention (triggering_test.go) of naming the index of
// the first high sample, not the one before it. mask[0] is always
// false — there is no prior sample to diff against.
func computeMask(kind ConditionKind, data []float64) []bool {
	n := len(data)
	mask := make([]bool, n)
	if n == 0 {
		return mask
	}

	switch kind {
	case LevelHigh:
		level := mat.NewVecDense(n, append([]float64(nil), data...))
		for i := 0; i < n; i++ {
			mask[i] = level.AtVec(i) != 0
		}
	case RisingEdge, FallingEdge:
		if n < 2 {
			return mask
		}
		prev := mat.NewVecDense(n-1, append([]float64(nil), data[:n-1]...))
		cur := mat.NewVecDense(n-1, append([]float64(nil), data[1:]...))
		diff := mat.NewVecDense(n-1, nil)
		diff.SubVec(cur, prev)
		for i := 1; i < n; i++ {
			d := diff.AtVec(i - 1)
			if kind == RisingEdge {
				mask[i] = d > 0
			} else {
				mask[i] = d < 0
			}
		}
	}
	return mask
}
