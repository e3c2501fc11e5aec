// Package latency measures how long interrupts stay masked.
//
// Masked time is a jitter budget: while a section is active the interrupt
// handler cannot run. A Probe wraps a critical.Masker, timestamps every
// outermost disable/restore pair and summarises the durations.
package latency

import (
	"sort"
	"sync"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"hwreg-go/critical"
)

// Probe is a critical.Masker that records masked durations of the masker it
// wraps. Nested sections are counted once, from the outermost entry.
type Probe struct {
	inner critical.Masker
	now   func() time.Time

	mu      sync.Mutex
	since   time.Time
	samples []float64 // microseconds
	limit   int
}

// New wraps m. limit bounds the number of retained samples (oldest dropped);
// zero means 4096.
func New(m critical.Masker, limit int) *Probe {
	if limit <= 0 {
		limit = 4096
	}
	return &Probe{inner: m, now: time.Now, limit: limit}
}

func (p *Probe) Disable() critical.State {
	s := p.inner.Disable()
	if s == critical.Enabled {
		t := p.now()
		p.mu.Lock()
		p.since = t
		p.mu.Unlock()
	}
	return s
}

func (p *Probe) Restore(s critical.State) {
	if s == critical.Enabled {
		t := p.now()
		p.mu.Lock()
		us := float64(t.Sub(p.since)) / float64(time.Microsecond)
		if len(p.samples) == p.limit {
			copy(p.samples, p.samples[1:])
			p.samples = p.samples[:len(p.samples)-1]
		}
		p.samples = append(p.samples, us)
		p.mu.Unlock()
	}
	p.inner.Restore(s)
}

// Summary of masked durations in microseconds.
type Summary struct {
	Count  int
	Mean   float64
	StdDev float64
	P99    float64
	Max    float64
}

// Summary computes statistics over the retained samples.
func (p *Probe) Summary() Summary {
	p.mu.Lock()
	xs := append([]float64(nil), p.samples...)
	p.mu.Unlock()
	if len(xs) == 0 {
		return Summary{}
	}
	sort.Float64s(xs)
	mean, std := stat.MeanStdDev(xs, nil)
	if len(xs) == 1 {
		std = 0
	}
	return Summary{
		Count:  len(xs),
		Mean:   mean,
		StdDev: std,
		P99:    stat.Quantile(0.99, stat.Empirical, xs, nil),
		Max:    floats.Max(xs),
	}
}

// Reset drops all samples.
func (p *Probe) Reset() {
	p.mu.Lock()
	p.samples = p.samples[:0]
	p.mu.Unlock()
}
