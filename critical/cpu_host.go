//go:build !tinygo

package critical

import (
	"sync"
	"sync/atomic"
)

// hostMask stands in for PRIMASK when no simulated core is installed. The
// lock is held from the outermost Disable to the matching Restore.
//
// Like irq.Core, it serves one thread-mode context: a Disable that finds the
// mask set is taken as a nested entry by the holder. Code that needs other
// contexts excluded (interrupt handlers) installs a simulated core with
// SetCPU and runs those contexts through it.
type hostMask struct {
	exec   sync.Mutex
	masked atomic.Bool
}

func (h *hostMask) Disable() State {
	if h.masked.Load() {
		return Masked
	}
	h.exec.Lock()
	h.masked.Store(true)
	return Enabled
}

func (h *hostMask) Restore(s State) {
	if s == Enabled {
		h.masked.Store(false)
		h.exec.Unlock()
	}
}

var (
	cpuMu sync.RWMutex
	cpu   = New(&hostMask{})
)

// CPU returns the section for the processor's interrupt-enable flag.
func CPU() *Section {
	cpuMu.RLock()
	defer cpuMu.RUnlock()
	return cpu
}

// SetCPU installs the masker CPU uses, normally a simulated core. It returns
// the previous masker so callers can put it back.
func SetCPU(m Masker) Masker {
	cpuMu.Lock()
	defer cpuMu.Unlock()
	prev := cpu.m
	cpu = New(m)
	return prev
}
