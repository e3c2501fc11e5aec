// Package shared holds state touched by both thread mode and interrupt
// handlers.
//
// Flag is a single relaxed word and may be read or written from anywhere.
// Cell guards a value behind a critical section: every accessor takes the
// critical.Token that proves interrupts are masked, so the value cannot be
// reached without one.
package shared

import (
	"sync/atomic"

	"hwreg-go/critical"
)

// Flag is a relaxed boolean. Readers observe a set eventually; no ordering
// with other memory is implied.
type Flag struct {
	v atomic.Bool
}

func (f *Flag) Set()        { f.v.Store(true) }
func (f *Flag) IsSet() bool { return f.v.Load() }
func (f *Flag) Clear()      { f.v.Store(false) }

// Take reports whether the flag was set and clears it.
func (f *Flag) Take() bool { return f.v.Swap(false) }

// Cell is an optional value owned jointly by thread mode and handlers.
// It starts empty.
type Cell[T any] struct {
	v   T
	set bool
}

func must(tok critical.Token) {
	if !tok.Valid() {
		panic("shared: access without a critical section")
	}
}

// Set stores v.
func (c *Cell[T]) Set(tok critical.Token, v T) {
	must(tok)
	c.v, c.set = v, true
}

// Get returns the value and whether one is present.
func (c *Cell[T]) Get(tok critical.Token) (T, bool) {
	must(tok)
	return c.v, c.set
}

// Take empties the cell and returns what it held.
func (c *Cell[T]) Take(tok critical.Token) (T, bool) {
	must(tok)
	v, ok := c.v, c.set
	var zero T
	c.v, c.set = zero, false
	return v, ok
}

// With calls fn with a pointer to the value when one is present and
// reports whether it did. The pointer must not outlive fn.
func (c *Cell[T]) With(tok critical.Token, fn func(*T)) bool {
	must(tok)
	if !c.set {
		return false
	}
	fn(&c.v)
	return true
}

// Lock enters sec and runs fn on the value.
func (c *Cell[T]) Lock(sec *critical.Section, fn func(*T)) (ok bool) {
	sec.Do(func(tok critical.Token) { ok = c.With(tok, fn) })
	return ok
}
