// Package attribute implements the named, time-indexed ring buffers
// that form the data plane of spec.md §3-§4.4: a single producer
// writes monotonically-indexed samples, any number of consumers read
// by index range with lock-free, wait-free semantics, and a reader
// that falls behind loses the samples that fell off the back of the
// ring.
//
// Declaration (DeclareArray/DeclareObject) is generalized from the
// original system's runtime, reflection-based attribute setup
// (spec.md §9, Design Notes): each handle is a typed Go value carrying
// its own Descriptor, resolved once at setup and cached by the caller.
package attribute

import (
	"log"
	"time"

	"go.uber.org/zap"
)

// logger is the session-wide sink for loss warnings raised while
// reading from any declared attribute. There is exactly one Store per
// session, so a package-level logger (set once via SetLogger, before
// any worker starts ticking) reaches every attribute without plumbing
// a logger through DeclareArray/DeclareObject's generic signatures.
var logger *zap.SugaredLogger

// SetLogger attaches the session logger so "samples lost" warnings
// also reach the logger's sink (the websocket clients), not only stderr.
func SetLogger(l *zap.SugaredLogger) { logger = l }

// RecordEvent is pushed to a recording channel (spec.md §4.4's
// "recording hook") on every successful write to an attribute marked
// for recording.
type RecordEvent struct {
	AttrName  string
	Index     int64
	Timestamp time.Time
}

// Attribute is the type-erased view every consumer (trigger engine,
// recorder, protocol engine) programs against. Typed producers use the
// generic ArrayHandle/ObjectHandle returned by Declare*, not this
// interface, since Write requires the concrete element type.
type Attribute interface {
	Name() string
	Descriptor() Descriptor
	// Count returns the number of writes published so far (the "w" of
	// spec.md §3; the most recently written index is Count()-1).
	Count() int64
	// MarkForRecording installs (or replaces) the channel that
	// receives a RecordEvent after every write. Passing nil disables
	// recording for this attribute.
	MarkForRecording(ch chan<- RecordEvent)
	// ReadFromErased and ReadLatestErased give the trigger engine and
	// recorder a type-erased view of either attribute variant, since
	// both need to operate over arbitrary declared attributes without
	// knowing their element type at compile time.
	ReadFromErased(fromIdx int64) (ErasedRead, error)
	ReadLatestErased(count int) (ErasedRead, error)
}

// ErasedRead is the type-erased form of ArrayRead/ObjectRead. Exactly
// one of Floats or Objects is populated, matching the attribute's Kind.
type ErasedRead struct {
	Indices    []int64
	Timestamps []time.Time
	Floats     [][]float64 // populated for KindArray
	Objects    []any       // populated for KindObject
	Lost       bool
}

func (r ErasedRead) Len() int { return len(r.Indices) }

// clampWindow applies spec.md §3's invariant that a reader observing
// w may read entries in [max(0, w-N), w-1] (w here is the
// "next index to write", i.e. Count()). It reports whether the
// originally requested lower bound had to be raised (a loss). A
// fromIdx at or past w yields lo > hi, an empty window.
func clampWindow(fromIdx, w int64, capacity int) (lo, hi int64, lost bool) {
	if w <= 0 {
		return 0, -1, false
	}
	hi = w - 1
	floor := w - int64(capacity)
	if floor < 0 {
		floor = 0
	}
	lo = fromIdx
	if lo < floor {
		lo = floor
		lost = fromIdx >= 0 && fromIdx < floor
	}
	return lo, hi, lost
}

func logLoss(name string, requested, resyncedFrom int64) {
	const format = "attribute %q: consumer requested from_idx=%d but samples were overwritten, resyncing from %d (samples lost)"
	if logger != nil {
		logger.Warnf(format, name, requested, resyncedFrom)
		return
	}
	log.Printf(format, name, requested, resyncedFrom)
}
