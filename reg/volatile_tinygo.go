//go:build tinygo

package reg

import "runtime/volatile"

func load32(p *uint32) uint32     { return volatile.LoadUint32(p) }
func store32(p *uint32, v uint32) { volatile.StoreUint32(p, v) }
