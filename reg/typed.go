package reg

import "unsafe"

// R32 is a register whose whole word is a value of a named type, usually an
// enumeration of commands or states.
type R32[T ~uint32] struct {
	Register32
}

// As reinterprets an existing cell as a typed register.
func As[T ~uint32](r *Register32) *R32[T] {
	return (*R32[T])(unsafe.Pointer(r))
}

// Load performs a single volatile load.
func (r *R32[T]) Load() T { return T(r.Get()) }

// Store performs a single volatile store.
func (r *R32[T]) Store(v T) { r.Set(uint32(v)) }
