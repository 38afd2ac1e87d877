package attribute

import (
	"bytes"
	"encoding/gob"
	"sync/atomic"
	"time"
)

// InlineSizeThreshold is the largest gob-encoded payload an object
// attribute will hold inline, per spec.md §9's design note on
// shared-memory object attributes: "serializing to a bounded inline
// buffer when small, or... through the control channel for large
// payloads; document the size threshold and fail loudly above it."
// 64 KiB comfortably holds detection results (bounding boxes, small
// feature vectors) while forcing genuinely large payloads (frames,
// model checkpoints) through an explicit out-of-band path instead of
// silently ballooning the ring.
const InlineSizeThreshold = 64 * 1024

// Disposable is implemented by object-attribute payloads that own a
// resource (a file handle, a native buffer) that must be released when
// the slot holding them is overwritten.
type Disposable interface {
	Dispose()
}

type objectSlot struct {
	value any
	valid bool
}

// ObjectAttribute is the object variant of spec.md §3: arbitrary
// payloads with per-cell ownership, intended for only the most recent
// few entries to be read (detection results, trigger metadata, and the
// like) rather than long-window numeric series.
type ObjectAttribute struct {
	desc  Descriptor
	slots []objectSlot
	times []int64
	w     atomic.Int64

	recordCh atomic.Pointer[chan<- RecordEvent]
}

func newObjectAttribute(name string, capacity int) *ObjectAttribute {
	return &ObjectAttribute{
		desc:  Descriptor{Name: name, Kind: KindObject, Capacity: capacity},
		slots: make([]objectSlot, capacity),
		times: make([]int64, capacity),
	}
}

func (a *ObjectAttribute) Name() string           { return a.desc.Name }
func (a *ObjectAttribute) Descriptor() Descriptor { return a.desc }
func (a *ObjectAttribute) Count() int64           { return a.w.Load() }

func (a *ObjectAttribute) MarkForRecording(ch chan<- RecordEvent) {
	if ch == nil {
		a.recordCh.Store(nil)
		return
	}
	a.recordCh.Store(&ch)
}

// checkInline estimates the gob-encoded size of value and reports
// whether it fits under InlineSizeThreshold. Values that aren't
// gob-encodable (channels, funcs) are treated as always fitting,
// since they're typically small handles rather than bulk data.
func checkInline(value any) bool {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(value); err != nil {
		return true
	}
	return buf.Len() <= InlineSizeThreshold
}

// Write stores value in the next slot, disposing of whatever occupied
// that slot previously (spec.md §4.4: "For object attributes the
// previous occupant of the slot is dropped"). It returns
// ErrPayloadTooLarge if value's encoded size exceeds
// InlineSizeThreshold; callers that expect large payloads should route
// them through a control-channel message instead of this store.
func (a *ObjectAttribute) Write(value any) error {
	return a.WriteAt(value, time.Now())
}

func (a *ObjectAttribute) WriteAt(value any, ts time.Time) error {
	if !checkInline(value) {
		return ErrPayloadTooLarge
	}
	idx := a.w.Load()
	slot := int(idx % int64(a.desc.Capacity))
	if a.slots[slot].valid {
		if d, ok := a.slots[slot].value.(Disposable); ok {
			d.Dispose()
		}
	}
	a.slots[slot] = objectSlot{value: value, valid: true}
	a.times[slot] = ts.UnixNano()
	a.w.Add(1)

	if chp := a.recordCh.Load(); chp != nil {
		select {
		case *chp <- RecordEvent{AttrName: a.desc.Name, Index: idx, Timestamp: ts}:
		default:
		}
	}
	return nil
}

// ObjectRead mirrors ArrayRead for the object variant.
type ObjectRead struct {
	Indices    []int64
	Timestamps []time.Time
	Values     []any
	Lost       bool
}

func (a *ObjectAttribute) ReadLatest(count int) (ObjectRead, error) {
	w := a.w.Load()
	if w <= 0 {
		return ObjectRead{}, ErrNoData
	}
	return a.readRange(w-int64(count), w-1)
}

func (a *ObjectAttribute) Latest() (idx int64, ts time.Time, value any, err error) {
	r, err := a.ReadLatest(1)
	if err != nil {
		return 0, time.Time{}, nil, err
	}
	n := len(r.Indices)
	return r.Indices[n-1], r.Timestamps[n-1], r.Values[n-1], nil
}

func (a *ObjectAttribute) ReadFrom(fromIdx int64) (ObjectRead, error) {
	w := a.w.Load()
	if w <= 0 {
		return ObjectRead{}, ErrNoData
	}
	return a.readRange(fromIdx, w-1)
}

func (a *ObjectAttribute) readRange(fromIdx, hiIdx int64) (ObjectRead, error) {
	w := a.w.Load()
	lo, hi, lost := clampWindow(fromIdx, w, a.desc.Capacity)
	if hiIdx < hi {
		hi = hiIdx
	}
	if lo > hi {
		return ObjectRead{}, ErrNoData
	}
	if lost {
		logLoss(a.desc.Name, fromIdx, lo)
	}
	n := int(hi - lo + 1)
	out := ObjectRead{
		Indices:    make([]int64, n),
		Timestamps: make([]time.Time, n),
		Values:     make([]any, n),
		Lost:       lost,
	}
	for i := 0; i < n; i++ {
		idx := lo + int64(i)
		slot := int(idx % int64(a.desc.Capacity))
		out.Indices[i] = idx
		out.Timestamps[i] = time.Unix(0, a.times[slot])
		out.Values[i] = a.slots[slot].value
	}
	return out, nil
}

// ReadFromErased implements the type-erased Attribute interface.
func (a *ObjectAttribute) ReadFromErased(fromIdx int64) (ErasedRead, error) {
	r, err := a.ReadFrom(fromIdx)
	if err != nil {
		return ErasedRead{}, err
	}
	return ErasedRead{Indices: r.Indices, Timestamps: r.Timestamps, Objects: r.Values, Lost: r.Lost}, nil
}

// ReadLatestErased implements the type-erased Attribute interface.
func (a *ObjectAttribute) ReadLatestErased(count int) (ErasedRead, error) {
	r, err := a.ReadLatest(count)
	if err != nil {
		return ErasedRead{}, err
	}
	return ErasedRead{Indices: r.Indices, Timestamps: r.Timestamps, Objects: r.Values, Lost: r.Lost}, nil
}

// ObjectHandle is the typed handle returned by DeclareObject.
type ObjectHandle struct {
	attr *ObjectAttribute
}

func (h *ObjectHandle) Name() string                               { return h.attr.Name() }
func (h *ObjectHandle) Descriptor() Descriptor                     { return h.attr.Descriptor() }
func (h *ObjectHandle) Count() int64                               { return h.attr.Count() }
func (h *ObjectHandle) Write(value any) error                      { return h.attr.Write(value) }
func (h *ObjectHandle) ReadLatest(count int) (ObjectRead, error)    { return h.attr.ReadLatest(count) }
func (h *ObjectHandle) ReadFrom(fromIdx int64) (ObjectRead, error)  { return h.attr.ReadFrom(fromIdx) }
func (h *ObjectHandle) Latest() (int64, time.Time, any, error)      { return h.attr.Latest() }
func (h *ObjectHandle) Raw() Attribute                             { return h.attr }
