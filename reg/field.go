package reg

import (
	"strconv"

	"hwreg-go/errcode"
)

// Field describes a sub-range of a 32-bit word: Width bits starting at bit
// Offset. Valid descriptors satisfy 1 <= Width <= 32 and Offset+Width <= 32.
type Field struct {
	Offset uint8
	Width  uint8
}

// NewField validates and returns a descriptor. An invalid layout is a
// construction-time contract violation and panics.
func NewField(offset, width uint8) Field {
	if err := CheckLayout(int(offset), int(width)); err != nil {
		panic("reg: " + err.Error())
	}
	return Field{Offset: offset, Width: width}
}

// Bit returns the width-1 field at bit n.
func Bit(n uint8) Field { return NewField(n, 1) }

// CheckLayout reports whether offset/width describe a field of a 32-bit word.
func CheckLayout(offset, width int) error {
	if width < 1 || width > 32 {
		return errcode.New(errcode.InvalidField, "layout", "width "+strconv.Itoa(width)+" not in [1,32]")
	}
	if offset < 0 || offset+width > 32 {
		return errcode.New(errcode.InvalidField, "layout",
			"bits ["+strconv.Itoa(offset)+","+strconv.Itoa(offset+width)+") exceed 32")
	}
	return nil
}

// Max returns the largest value the field holds, 2^Width - 1.
func (f Field) Max() uint32 { return uint32(uint64(1)<<f.Width - 1) }

// Mask returns the field's bits in word position.
func (f Field) Mask() uint32 { return f.Max() << f.Offset }

// Extract returns (word >> Offset) & (2^Width - 1).
func (f Field) Extract(word uint32) uint32 {
	return word >> f.Offset & f.Max()
}

// Insert returns word with the field replaced by v. Bits of v above the
// field width are discarded silently; bits of word outside the field are
// preserved.
func (f Field) Insert(word, v uint32) uint32 {
	return word&^f.Mask() | (v&f.Max())<<f.Offset
}

// InsertChecked is Insert with an errcode.OutOfRange error instead of
// truncation, for values that come from an operator rather than the program.
func (f Field) InsertChecked(word, v uint32) (uint32, error) {
	if v > f.Max() {
		return word, errcode.New(errcode.OutOfRange, "insert",
			strconv.FormatUint(uint64(v), 10)+" exceeds "+strconv.Itoa(int(f.Width))+"-bit field")
	}
	return f.Insert(word, v), nil
}

// Overlaps reports whether f and g share any bit.
func (f Field) Overlaps(g Field) bool { return f.Mask()&g.Mask() != 0 }

// String renders the bit range as "[hi:lo]".
func (f Field) String() string {
	hi := int(f.Offset) + int(f.Width) - 1
	if f.Width == 1 {
		return "[" + strconv.Itoa(hi) + "]"
	}
	return "[" + strconv.Itoa(hi) + ":" + strconv.Itoa(int(f.Offset)) + "]"
}
