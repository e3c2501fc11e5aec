package latency

import (
	"math"
	"testing"
	"time"

	"hwreg-go/critical"
)

type flag struct{ masked bool }

func (f *flag) Disable() critical.State {
	if f.masked {
		return critical.Masked
	}
	f.masked = true
	return critical.Enabled
}
func (f *flag) Restore(s critical.State) {
	if s == critical.Enabled {
		f.masked = false
	}
}

// steppingClock advances by a scripted amount on every read.
type steppingClock struct {
	t     time.Time
	steps []time.Duration
}

func (c *steppingClock) now() time.Time {
	if len(c.steps) > 0 {
		c.t = c.t.Add(c.steps[0])
		c.steps = c.steps[1:]
	}
	return c.t
}

func TestProbeCountsOutermostSectionsOnly(t *testing.T) {
	clk := &steppingClock{t: time.Unix(0, 0), steps: []time.Duration{
		0, 10 * time.Microsecond, // first section: 10us
		0, 30 * time.Microsecond, // second section: 30us
	}}
	p := New(&flag{}, 0)
	p.now = clk.now
	sec := critical.New(p)

	sec.Do(func(critical.Token) {
		sec.Do(func(critical.Token) {}) // nested, not sampled
	})
	sec.Do(func(critical.Token) {})

	s := p.Summary()
	if s.Count != 2 {
		t.Fatalf("count = %d, want 2", s.Count)
	}
	if s.Max != 30 || math.Abs(s.Mean-20) > 1e-9 {
		t.Fatalf("summary = %+v", s)
	}
	if s.StdDev <= 0 {
		t.Fatalf("stddev = %v", s.StdDev)
	}
}

func TestProbeLimitDropsOldest(t *testing.T) {
	p := New(&flag{}, 2)
	sec := critical.New(p)
	for i := 0; i < 5; i++ {
		sec.Do(func(critical.Token) {})
	}
	if got := p.Summary().Count; got != 2 {
		t.Fatalf("count = %d, want 2", got)
	}
	p.Reset()
	if got := p.Summary(); got.Count != 0 {
		t.Fatalf("after reset: %+v", got)
	}
}
