// Package reg provides typed access to memory-mapped 32-bit hardware
// registers.
//
// A Register32 is one hardware word at a fixed address. Every Get is exactly
// one volatile load and every Set exactly one volatile store; nothing is
// cached, merged or split. Field descriptors (Field, UintField, BoolField,
// EnumField) extract and insert bounded-width sub-ranges of a word without
// touching the bits outside their mask.
//
// Read-modify-write helpers (Modify, Update, SetBits, ClearBits, ReplaceBits)
// are two bus transactions. They are NOT atomic with respect to interrupt
// handlers; wrap them in a critical.Section when another context may write the
// same register.
package reg

import "unsafe"

// Register32 is a RegisterCell: one 32-bit hardware word. It is never copied
// once mapped; peripherals hand out pointers to their cells.
type Register32 struct {
	Reg uint32
}

// At maps a cell over a hardware address. The address must map to a real
// 32-bit register; anything else is undefined behaviour on the target and a
// crash on the host.
func At(addr uintptr) *Register32 {
	return (*Register32)(unsafe.Pointer(addr))
}

// Addr returns the address of the cell.
func (r *Register32) Addr() uintptr { return uintptr(unsafe.Pointer(&r.Reg)) }

// Get performs a single volatile load.
func (r *Register32) Get() uint32 { return load32(&r.Reg) }

// Set performs a single volatile store.
func (r *Register32) Set(value uint32) { store32(&r.Reg, value) }

// Modify reads the word, applies fn and writes the result back.
func (r *Register32) Modify(fn func(uint32) uint32) {
	r.Set(fn(r.Get()))
}

// SetBits sets the bits in mask, leaving the rest untouched.
func (r *Register32) SetBits(mask uint32) { r.Set(r.Get() | mask) }

// ClearBits clears the bits in mask, leaving the rest untouched.
func (r *Register32) ClearBits(mask uint32) { r.Set(r.Get() &^ mask) }

// HasBits reports whether any bit of mask is set.
func (r *Register32) HasBits(mask uint32) bool { return r.Get()&mask != 0 }

// ReplaceBits replaces the bits selected by mask<<pos with value<<pos.
// value is truncated to mask.
func (r *Register32) ReplaceBits(value, mask uint32, pos uint8) {
	r.Set(r.Get()&^(mask<<pos) | (value&mask)<<pos)
}

// Read captures the current word for field extraction.
func (r *Register32) Read() R { return R{bits: r.Get()} }

// Write composes a word starting from zero and stores it once.
func (r *Register32) Write(fn func(w *W)) {
	var w W
	fn(&w)
	r.Set(w.bits)
}

// Update reads the word once, lets fn compose field writes on top of it and
// stores the result once. Bits no field write touches keep their value.
func (r *Register32) Update(fn func(cur R, w *W)) {
	cur := r.Get()
	w := W{bits: cur}
	fn(R{bits: cur}, &w)
	r.Set(w.bits)
}

// R is a captured register word.
type R struct{ bits uint32 }

// ReaderOf wraps a word value that did not come from a cell (decoding logs,
// tests, register dumps).
func ReaderOf(word uint32) R { return R{bits: word} }

// Bits returns the raw word.
func (r R) Bits() uint32 { return r.bits }

// Field extracts f from the captured word.
func (r R) Field(f Field) uint32 { return f.Extract(r.bits) }

// Bit reports bit n of the captured word. n above 31 panics, as Bit does.
func (r R) Bit(n uint8) bool { return Bit(n).Extract(r.bits) != 0 }

// W is a word under composition.
type W struct{ bits uint32 }

// WriterOf starts composition from an explicit word.
func WriterOf(word uint32) W { return W{bits: word} }

// Bits returns the composed word.
func (w *W) Bits() uint32 { return w.bits }

// SetBitsRaw replaces the whole word. No field layout is checked.
func (w *W) SetBitsRaw(word uint32) *W {
	w.bits = word
	return w
}

// Field inserts v into f, truncating v to the field width.
func (w *W) Field(f Field, v uint32) *W {
	w.bits = f.Insert(w.bits, v)
	return w
}
