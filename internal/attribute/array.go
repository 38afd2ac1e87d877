package attribute

import (
	"fmt"
	"sync/atomic"
	"time"

	"gonum.org/v1/gonum/mat"
)

// ArrayRead is the result of a ranged read on an array attribute: one
// entry per published index in the range, in ascending index order.
type ArrayRead[T Numeric] struct {
	Indices    []int64
	Timestamps []time.Time
	Values     [][]T // each of length prod(shape)
	Lost       bool  // true if the requested lower bound had been overwritten
}

// ArrayAttribute is the array variant of spec.md §3: a fixed element
// shape and numeric dtype backed by a flat buffer of size
// capacity*prod(shape), indexable without copy on the write side.
type ArrayAttribute[T Numeric] struct {
	desc      Descriptor
	elemCount int
	data      []T // flat, length capacity*elemCount
	times     []int64
	w         atomic.Int64 // next index to be written; Count() == w
	recordCh  atomic.Pointer[chan<- RecordEvent]
}

func newArrayAttribute[T Numeric](name string, shape []int, capacity int) *ArrayAttribute[T] {
	desc := Descriptor{Name: name, Kind: KindArray, Shape: append([]int(nil), shape...), Dtype: dtypeOf[T](), Capacity: capacity}
	ec := desc.elemCount()
	return &ArrayAttribute[T]{
		desc:      desc,
		elemCount: ec,
		data:      make([]T, capacity*ec),
		times:     make([]int64, capacity),
	}
}

func (a *ArrayAttribute[T]) Name() string          { return a.desc.Name }
func (a *ArrayAttribute[T]) Descriptor() Descriptor { return a.desc }
func (a *ArrayAttribute[T]) Count() int64          { return a.w.Load() }

func (a *ArrayAttribute[T]) MarkForRecording(ch chan<- RecordEvent) {
	if ch == nil {
		a.recordCh.Store(nil)
		return
	}
	a.recordCh.Store(&ch)
}

// Write appends value as the next entry, using now() as its
// timestamp, then publishes the new write index with release
// semantics (spec.md §3/§4.4). ArrayAttribute is single-producer: the
// caller is responsible for ensuring only one goroutine ever calls
// Write on a given handle.
func (a *ArrayAttribute[T]) Write(value []T) error {
	return a.WriteAt(value, time.Now())
}

// WriteAt is Write with an explicit timestamp, used by tests and by
// producers that timestamp at acquisition rather than at publish.
func (a *ArrayAttribute[T]) WriteAt(value []T, ts time.Time) error {
	if len(value) != a.elemCount {
		return fmt.Errorf("attribute %q: write of %d elements, want %d", a.desc.Name, len(value), a.elemCount)
	}
	idx := a.w.Load()
	slot := int(idx % int64(a.desc.Capacity))
	copy(a.data[slot*a.elemCount:(slot+1)*a.elemCount], value)
	a.times[slot] = ts.UnixNano()
	a.w.Add(1) // release: publishes idx to readers

	if chp := a.recordCh.Load(); chp != nil {
		select {
		case *chp <- RecordEvent{AttrName: a.desc.Name, Index: idx, Timestamp: ts}:
		default:
			// Bounded recording queue: drop rather than block the
			// producer, per spec.md §5 ("Triggers never block the
			// producer" generalizes to the recording hook as well).
		}
	}
	return nil
}

// ReadLatest returns the most recent count entries, ending at the
// latest published index. If fewer than count entries have ever been
// written, it returns however many exist.
func (a *ArrayAttribute[T]) ReadLatest(count int) (ArrayRead[T], error) {
	w := a.w.Load()
	if w <= 0 {
		return ArrayRead[T]{}, ErrNoData
	}
	from := w - int64(count)
	return a.readRange(from, w-1)
}

// Latest is the single-entry convenience form of ReadLatest.
func (a *ArrayAttribute[T]) Latest() (idx int64, ts time.Time, value []T, err error) {
	r, err := a.ReadLatest(1)
	if err != nil {
		return 0, time.Time{}, nil, err
	}
	n := len(r.Indices)
	return r.Indices[n-1], r.Timestamps[n-1], r.Values[n-1], nil
}

// ReadFrom returns entries in [fromIdx, w-1]. If part of that window
// has already been overwritten, it logs the loss and returns the
// largest available suffix instead, per spec.md §4.4.
func (a *ArrayAttribute[T]) ReadFrom(fromIdx int64) (ArrayRead[T], error) {
	w := a.w.Load()
	if w <= 0 {
		return ArrayRead[T]{}, ErrNoData
	}
	return a.readRange(fromIdx, w-1)
}

func (a *ArrayAttribute[T]) readRange(fromIdx, hiIdx int64) (ArrayRead[T], error) {
	w := a.w.Load()
	lo, hi, lost := clampWindow(fromIdx, w, a.desc.Capacity)
	if hiIdx < hi {
		hi = hiIdx
	}
	if lo > hi {
		return ArrayRead[T]{}, ErrNoData
	}
	if lost {
		logLoss(a.desc.Name, fromIdx, lo)
	}

	n := int(hi - lo + 1)
	out := ArrayRead[T]{
		Indices:    make([]int64, n),
		Timestamps: make([]time.Time, n),
		Values:     make([][]T, n),
		Lost:       lost,
	}
	for i := 0; i < n; i++ {
		idx := lo + int64(i)
		slot := int(idx % int64(a.desc.Capacity))
		rec := make([]T, a.elemCount)
		copy(rec, a.data[slot*a.elemCount:(slot+1)*a.elemCount])
		out.Indices[i] = idx
		out.Timestamps[i] = time.Unix(0, a.times[slot])
		out.Values[i] = rec
	}

	// Re-check: if the writer lapped us while we copied, the slots we
	// just read may already hold newer data than what we attributed to
	// idx. Spec.md §4.4/§5: "a reader that observes index k is
	// guaranteed to see the timestamp and value stored at k provided
	// w - k <= N at the moment it completes its read." If that's been
	// violated for our earliest index, shrink to what's still valid.
	w2 := a.w.Load()
	floor2 := w2 - int64(a.desc.Capacity)
	if floor2 < 0 {
		floor2 = 0
	}
	if lo < floor2 {
		logLoss(a.desc.Name, fromIdx, floor2)
		return a.readRange(floor2, hiIdx)
	}
	return out, nil
}

// ReadFromErased implements the type-erased Attribute interface.
func (a *ArrayAttribute[T]) ReadFromErased(fromIdx int64) (ErasedRead, error) {
	r, err := a.ReadFrom(fromIdx)
	if err != nil {
		return ErasedRead{}, err
	}
	return toErased(r), nil
}

// ReadLatestErased implements the type-erased Attribute interface.
func (a *ArrayAttribute[T]) ReadLatestErased(count int) (ErasedRead, error) {
	r, err := a.ReadLatest(count)
	if err != nil {
		return ErasedRead{}, err
	}
	return toErased(r), nil
}

func toErased[T Numeric](r ArrayRead[T]) ErasedRead {
	floats := make([][]float64, len(r.Values))
	for i, v := range r.Values {
		row := make([]float64, len(v))
		for j, x := range v {
			row[j] = toFloat64(x)
		}
		floats[i] = row
	}
	return ErasedRead{Indices: r.Indices, Timestamps: r.Timestamps, Floats: floats, Lost: r.Lost}
}

// Dense returns every entry of the read as a gonum matrix with
// one row per entry and prod(shape) columns, for routines/triggers
// that prefer vectorized arithmetic over per-record loops (SPEC_FULL
// §9's gonum wiring).
func (r ArrayRead[T]) Dense() *mat.Dense {
	if len(r.Values) == 0 {
		return mat.NewDense(0, 0, nil)
	}
	rows := len(r.Values)
	cols := len(r.Values[0])
	flat := make([]float64, rows*cols)
	for i, v := range r.Values {
		for j, x := range v {
			flat[i*cols+j] = toFloat64(x)
		}
	}
	return mat.NewDense(rows, cols, flat)
}

func toFloat64[T Numeric](v T) float64 {
	switch x := any(v).(type) {
	case bool:
		if x {
			return 1
		}
		return 0
	default:
		return anyToFloat64(any(v))
	}
}

func anyToFloat64(v any) float64 {
	switch x := v.(type) {
	case int8:
		return float64(x)
	case int16:
		return float64(x)
	case int32:
		return float64(x)
	case int64:
		return float64(x)
	case uint8:
		return float64(x)
	case uint16:
		return float64(x)
	case uint32:
		return float64(x)
	case uint64:
		return float64(x)
	case float32:
		return float64(x)
	case float64:
		return x
	default:
		return 0
	}
}

// ArrayHandle is the typed handle returned by DeclareArray. It is safe
// to cache once and share with every consumer; Write must only ever be
// called by the declaring producer (spec.md §4.4: "write is
// single-producer per attribute").
type ArrayHandle[T Numeric] struct {
	attr *ArrayAttribute[T]
}

func (h *ArrayHandle[T]) Name() string                    { return h.attr.Name() }
func (h *ArrayHandle[T]) Descriptor() Descriptor          { return h.attr.Descriptor() }
func (h *ArrayHandle[T]) Count() int64                    { return h.attr.Count() }
func (h *ArrayHandle[T]) Write(value []T) error           { return h.attr.Write(value) }
func (h *ArrayHandle[T]) WriteAt(value []T, ts time.Time) error { return h.attr.WriteAt(value, ts) }
func (h *ArrayHandle[T]) ReadLatest(count int) (ArrayRead[T], error) { return h.attr.ReadLatest(count) }
func (h *ArrayHandle[T]) ReadFrom(fromIdx int64) (ArrayRead[T], error) {
	return h.attr.ReadFrom(fromIdx)
}
func (h *ArrayHandle[T]) Latest() (int64, time.Time, []T, error) { return h.attr.Latest() }

// Raw exposes the underlying Attribute for registries/consumers that
// only need the type-erased view (e.g. the trigger engine, recorder).
func (h *ArrayHandle[T]) Raw() Attribute { return h.attr }
