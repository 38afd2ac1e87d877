package attribute

import "fmt"

// Dtype enumerates the numeric element types an array attribute may
// hold, per spec.md §4.4: int8/16/32/64, uint8/16/32/64, float32/64, bool.
type Dtype int

const (
	Int8 Dtype = iota
	Int16
	Int32
	Int64
	Uint8
	Uint16
	Uint32
	Uint64
	Float32
	Float64
	Bool
)

func (d Dtype) String() string {
	switch d {
	case Int8:
		return "int8"
	case Int16:
		return "int16"
	case Int32:
		return "int32"
	case Int64:
		return "int64"
	case Uint8:
		return "uint8"
	case Uint16:
		return "uint16"
	case Uint32:
		return "uint32"
	case Uint64:
		return "uint64"
	case Float32:
		return "float32"
	case Float64:
		return "float64"
	case Bool:
		return "bool"
	default:
		return fmt.Sprintf("dtype(%d)", int(d))
	}
}

// ByteSize returns the on-the-wire size of one scalar of this dtype,
// used by the recorder to lay out shuffle-filtered chunks.
func (d Dtype) ByteSize() int {
	switch d {
	case Int8, Uint8, Bool:
		return 1
	case Int16, Uint16:
		return 2
	case Int32, Uint32, Float32:
		return 4
	case Int64, Uint64, Float64:
		return 8
	default:
		return 1
	}
}

// Numeric constrains the Go types an ArrayAttribute[T] may be
// instantiated with. bool is included because spec.md explicitly
// allows a bool dtype (the "gate" attribute of scenario 3).
type Numeric interface {
	~int8 | ~int16 | ~int32 | ~int64 |
		~uint8 | ~uint16 | ~uint32 | ~uint64 |
		~float32 | ~float64 | ~bool
}

// dtypeOf maps a Go type parameter to its Dtype tag, used so a
// Descriptor can be compared across differently-typed handles without
// reflection at the hot path.
func dtypeOf[T Numeric]() Dtype {
	var zero T
	switch any(zero).(type) {
	case int8:
		return Int8
	case int16:
		return Int16
	case int32:
		return Int32
	case int64:
		return Int64
	case uint8:
		return Uint8
	case uint16:
		return Uint16
	case uint32:
		return Uint32
	case uint64:
		return Uint64
	case float32:
		return Float32
	case float64:
		return Float64
	case bool:
		return Bool
	default:
		panic("attribute: unreachable dtype")
	}
}
