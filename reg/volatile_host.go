//go:build !tinygo

package reg

import "sync/atomic"

// On the host a cell is ordinary memory shared between goroutines that stand
// in for thread mode, interrupt handlers and simulated hardware. 32-bit atomic
// loads and stores are single, non-elided and never reordered against each
// other, which is what a volatile access promises on the target.

func load32(p *uint32) uint32     { return atomic.LoadUint32(p) }
func store32(p *uint32, v uint32) { atomic.StoreUint32(p, v) }
