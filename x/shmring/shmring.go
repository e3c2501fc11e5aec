// Package shmring is a single-producer, single-consumer byte ring. The
// producer and consumer may run on different goroutines without locks; each
// index is written by one side only.
package shmring

import "sync/atomic"

// Ring buffers bytes between one producer and one consumer.
type Ring struct {
	buf  []byte
	mask uint32
	rd   atomic.Uint32 // consumer index (monotonic)
	wr   atomic.Uint32 // producer index (monotonic)

	readable chan struct{} // empty -> non-empty edge
	writable chan struct{} // full -> non-full edge
}

// New allocates a ring of size bytes. size must be a power of two >= 2.
func New(size int) *Ring {
	if size < 2 || size&(size-1) != 0 {
		panic("shmring: size must be power of two >= 2")
	}
	return &Ring{
		buf:      make([]byte, size),
		mask:     uint32(size - 1),
		readable: make(chan struct{}, 1),
		writable: make(chan struct{}, 1),
	}
}

func (r *Ring) size() uint32 { return uint32(len(r.buf)) }

// Cap is the ring size in bytes.
func (r *Ring) Cap() int { return len(r.buf) }

// Len is the number of buffered bytes.
func (r *Ring) Len() int { return int(r.wr.Load() - r.rd.Load()) }

// Space is the number of bytes a write would accept now.
func (r *Ring) Space() int { return int(r.size() - (r.wr.Load() - r.rd.Load())) }

func notify(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}

// TryWriteFrom copies as much of src as fits and returns the count.
// Producer side only.
func (r *Ring) TryWriteFrom(src []byte) int {
	rd, wr := r.rd.Load(), r.wr.Load()
	used := wr - rd
	n := int(r.size() - used)
	if n > len(src) {
		n = len(src)
	}
	if n == 0 {
		return 0
	}
	i := wr & r.mask
	first := copy(r.buf[i:], src[:n])
	copy(r.buf, src[first:n])
	r.wr.Store(wr + uint32(n))
	if used == 0 {
		notify(r.readable)
	}
	return n
}

// TryReadInto moves up to len(dst) buffered bytes into dst.
// Consumer side only.
func (r *Ring) TryReadInto(dst []byte) int {
	n := r.Peek(dst)
	if n == 0 {
		return 0
	}
	r.Discard(n)
	return n
}

// Peek copies buffered bytes into dst without consuming them.
func (r *Ring) Peek(dst []byte) int {
	rd, wr := r.rd.Load(), r.wr.Load()
	n := int(wr - rd)
	if n > len(dst) {
		n = len(dst)
	}
	if n == 0 {
		return 0
	}
	i := rd & r.mask
	end := i + uint32(n)
	if end <= r.size() {
		copy(dst, r.buf[i:end])
	} else {
		first := copy(dst, r.buf[i:])
		copy(dst[first:n], r.buf)
	}
	return n
}

// Discard drops up to n buffered bytes and returns how many were dropped.
func (r *Ring) Discard(n int) int {
	rd, wr := r.rd.Load(), r.wr.Load()
	avail := int(wr - rd)
	if n > avail {
		n = avail
	}
	if n <= 0 {
		return 0
	}
	r.rd.Store(rd + uint32(n))
	if avail == len(r.buf) {
		notify(r.writable)
	}
	return n
}

// Readable fires on the empty to non-empty transition. Edges coalesce.
func (r *Ring) Readable() <-chan struct{} { return r.readable }

// Writable fires on the full to non-full transition. Edges coalesce.
func (r *Ring) Writable() <-chan struct{} { return r.writable }
