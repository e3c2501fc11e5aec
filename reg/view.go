package reg

import (
	"math/bits"

	"golang.org/x/exp/constraints"
)

// UintField is a numeric field whose value type T is fixed when the
// descriptor is built. Construction panics if T cannot hold Width bits.
type UintField[T constraints.Unsigned] struct {
	Field
}

// Uint builds a numeric field view.
func Uint[T constraints.Unsigned](offset, width uint8) UintField[T] {
	f := NewField(offset, width)
	if bits.Len64(uint64(^T(0))) < int(width) {
		panic("reg: field wider than its value type")
	}
	return UintField[T]{Field: f}
}

// Get extracts the field from a captured word.
func (f UintField[T]) Get(r R) T { return T(f.Extract(r.bits)) }

// Set inserts v, truncated to the field width.
func (f UintField[T]) Set(w *W, v T) *W {
	w.bits = f.Insert(w.bits, uint32(v))
	return w
}

// BoolField is a single-bit flag.
type BoolField struct {
	Field
}

// Flag builds a width-1 boolean view at bit n.
func Flag(n uint8) BoolField { return BoolField{Field: Bit(n)} }

// Get reports whether the bit is set.
func (f BoolField) Get(r R) bool { return f.Extract(r.bits) != 0 }

// Set writes the bit.
func (f BoolField) Set(w *W, on bool) *W {
	var v uint32
	if on {
		v = 1
	}
	w.bits = f.Insert(w.bits, v)
	return w
}

// SetBit writes a one.
func (f BoolField) SetBit(w *W) *W { return f.Set(w, true) }

// ClearBit writes a zero.
func (f BoolField) ClearBit(w *W) *W { return f.Set(w, false) }

// EnumField is a field holding one of a closed set of named values of type T.
type EnumField[T ~uint8 | ~uint16 | ~uint32] struct {
	Field
}

// Enum builds an enumerated field view.
func Enum[T ~uint8 | ~uint16 | ~uint32](offset, width uint8) EnumField[T] {
	f := NewField(offset, width)
	if bits.Len64(uint64(^T(0))) < int(width) {
		panic("reg: field wider than its value type")
	}
	return EnumField[T]{Field: f}
}

// Get extracts the enumerated value.
func (f EnumField[T]) Get(r R) T { return T(f.Extract(r.bits)) }

// Set inserts v, truncated to the field width.
func (f EnumField[T]) Set(w *W, v T) *W {
	w.bits = f.Insert(w.bits, uint32(v))
	return w
}

// Is reports whether the field currently holds v.
func (f EnumField[T]) Is(r R, v T) bool { return f.Get(r) == v }
