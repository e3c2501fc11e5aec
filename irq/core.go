// Package irq models the interrupt side of a single-core microcontroller:
// named vectors, a vector table of handlers, and on the host a simulated
// core that dispatches pended lines the way an NVIC does.
//
// Execution model: one thread-mode flow plus handlers. A handler runs to
// completion before another handler starts, and never while thread mode holds
// a critical section. Handlers receive a critical.Token proving they run with
// interrupts masked; shared state is accessed through that token, never by
// entering the thread-mode section from inside a handler.
package irq

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"

	"hwreg-go/critical"
)

// Handler services one interrupt line.
type Handler func(tok critical.Token)

type line struct {
	h        Handler
	enabled  bool
	pending  bool
	priority uint8
}

// Stats are dispatch counters.
type Stats struct {
	Fired     uint32 // handler invocations
	Coalesced uint32 // pends absorbed by an already-pending line
	Spurious  uint32 // lines that fired with no handler, or pends beyond the table
}

// Core is a simulated processor core. It is the critical.Masker for thread
// mode: exactly one goroutine plays thread mode and enters sections through
// Section(); simulated peripherals call Pend from any goroutine.
type Core struct {
	exec   sync.Mutex  // held by thread mode while masked, or by a running handler
	masked atomic.Bool // thread-mode PRIMASK

	handlerSec *critical.Section
	threadSec  *critical.Section

	mu    sync.Mutex
	lines [NumVectors]line
	kick  chan struct{}

	fired, coalesced, spurious atomic.Uint32
}

// NewCore returns a core with every line disabled and no handlers.
func NewCore() *Core {
	c := &Core{
		handlerSec: critical.New(critical.Nop{}),
		kick:       make(chan struct{}, 1),
	}
	c.threadSec = critical.New(c)
	return c
}

// Section returns the thread-mode critical section of this core.
func (c *Core) Section() *critical.Section { return c.threadSec }

// Disable implements critical.Masker for thread mode.
func (c *Core) Disable() critical.State {
	if c.masked.Load() {
		return critical.Masked
	}
	c.exec.Lock()
	c.masked.Store(true)
	return critical.Enabled
}

// Restore implements critical.Masker for thread mode.
func (c *Core) Restore(s critical.State) {
	if s != critical.Enabled {
		return
	}
	c.masked.Store(false)
	c.exec.Unlock()
	c.signal()
}

// Masked reports the thread-mode interrupt-enable state.
func (c *Core) Masked() bool { return c.masked.Load() }

// setup checks a vector passed to a configuration call. Configuring a line
// the table does not have is a wiring error.
func setup(v Vector) {
	if int(v) >= NumVectors {
		panic("irq: vector " + v.String() + " outside the vector table")
	}
}

// Register installs h in the vector table. The handler closure is where the
// driver's owned context is captured. It panics for a vector beyond
// NumVectors, as do EnableLine, DisableLine and SetPriority.
func (c *Core) Register(v Vector, h Handler) {
	setup(v)
	c.mu.Lock()
	c.lines[v].h = h
	c.mu.Unlock()
}

// EnableLine unmasks a line at the interrupt controller.
func (c *Core) EnableLine(v Vector) {
	setup(v)
	c.mu.Lock()
	c.lines[v].enabled = true
	pending := c.lines[v].pending
	c.mu.Unlock()
	if pending {
		c.signal()
	}
}

// DisableLine masks a line at the interrupt controller. Pends are kept.
func (c *Core) DisableLine(v Vector) {
	setup(v)
	c.mu.Lock()
	c.lines[v].enabled = false
	c.mu.Unlock()
}

// SetPriority orders lines pending at the same time; lower runs first.
// Handlers never preempt each other in this model.
func (c *Core) SetPriority(v Vector, p uint8) {
	setup(v)
	c.mu.Lock()
	c.lines[v].priority = p
	c.mu.Unlock()
}

// Pend raises a line, as hardware does when a peripheral event occurs.
// A line already pending absorbs the event. A vector beyond the table is
// counted as spurious.
func (c *Core) Pend(v Vector) {
	if int(v) >= NumVectors {
		c.spurious.Add(1)
		return
	}
	c.mu.Lock()
	if c.lines[v].pending {
		c.mu.Unlock()
		c.coalesced.Add(1)
		return
	}
	c.lines[v].pending = true
	c.mu.Unlock()
	c.signal()
}

// Pending reports whether a line is waiting for service.
func (c *Core) Pending(v Vector) bool {
	if int(v) >= NumVectors {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lines[v].pending
}

func (c *Core) signal() {
	select {
	case c.kick <- struct{}{}:
	default:
	}
}

// next claims the highest-priority runnable line.
func (c *Core) next() (Vector, Handler, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var ready []int
	for i := range c.lines {
		if c.lines[i].pending && c.lines[i].enabled {
			ready = append(ready, i)
		}
	}
	if len(ready) == 0 {
		return 0, nil, false
	}
	sort.SliceStable(ready, func(a, b int) bool {
		return c.lines[ready[a]].priority < c.lines[ready[b]].priority
	})
	v := ready[0]
	c.lines[v].pending = false
	return Vector(v), c.lines[v].h, true
}

// dispatch runs one handler with the core exclusively held.
func (c *Core) dispatch(h Handler) {
	c.exec.Lock()
	defer c.exec.Unlock()
	tok := c.handlerSec.Enter()
	defer c.handlerSec.Exit(tok)
	h(tok)
}

// Service runs every runnable pending handler in the caller's goroutine and
// returns how many ran. It blocks while thread mode is masked.
func (c *Core) Service() int {
	n := 0
	for {
		_, h, ok := c.next()
		if !ok {
			return n
		}
		if h == nil {
			c.spurious.Add(1)
			continue
		}
		c.dispatch(h)
		c.fired.Add(1)
		n++
	}
}

// Run dispatches pended lines until ctx is done.
func (c *Core) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.kick:
			c.Service()
		}
	}
}

// Stats returns a snapshot of the dispatch counters.
func (c *Core) Stats() Stats {
	return Stats{
		Fired:     c.fired.Load(),
		Coalesced: c.coalesced.Load(),
		Spurious:  c.spurious.Load(),
	}
}
