package critical

import (
	"errors"
	"testing"
)

// fakePrimask models a single interrupt-enable bit and counts transitions.
type fakePrimask struct {
	masked   bool
	disables int
	enables  int
}

func (f *fakePrimask) Disable() State {
	prior := Enabled
	if f.masked {
		prior = Masked
	}
	f.masked = true
	f.disables++
	return prior
}

func (f *fakePrimask) Restore(s State) {
	if s == Enabled {
		f.masked = false
		f.enables++
	}
}

func TestNestingRestoresPriorState(t *testing.T) {
	for _, startMasked := range []bool{false, true} {
		for n := 1; n <= 8; n++ {
			m := &fakePrimask{masked: startMasked}
			s := New(m)
			toks := make([]Token, 0, n)
			for i := 0; i < n; i++ {
				toks = append(toks, s.Enter())
				if !m.masked {
					t.Fatalf("n=%d: not masked after enter %d", n, i)
				}
			}
			for i := n - 1; i >= 0; i-- {
				s.Exit(toks[i])
				if i > 0 && !m.masked {
					t.Fatalf("n=%d: inner exit %d re-enabled interrupts", n, i)
				}
			}
			if m.masked != startMasked {
				t.Fatalf("n=%d start=%v: ended masked=%v", n, startMasked, m.masked)
			}
			wantEnables := 1
			if startMasked {
				wantEnables = 0
			}
			if m.enables != wantEnables {
				t.Fatalf("n=%d: %d re-enables, want %d", n, m.enables, wantEnables)
			}
		}
	}
}

func TestDoRestoresOnPanic(t *testing.T) {
	m := &fakePrimask{}
	s := New(m)
	func() {
		defer func() { _ = recover() }()
		s.Do(func(tok Token) {
			if !tok.Valid() || !tok.Outermost() {
				t.Fatal("expected a valid outermost token")
			}
			panic("handler bug")
		})
	}()
	if m.masked {
		t.Fatal("interrupts left masked after panic")
	}
}

func TestDoErrRestoresOnEarlyReturn(t *testing.T) {
	m := &fakePrimask{}
	s := New(m)
	errStop := errors.New("stop")
	err := s.DoErr(func(outer Token) error {
		return s.DoErr(func(inner Token) error {
			if inner.Outermost() {
				t.Fatal("inner token must not be outermost")
			}
			return errStop
		})
	})
	if !errors.Is(err, errStop) {
		t.Fatalf("DoErr returned %v", err)
	}
	if m.masked || m.enables != 1 {
		t.Fatalf("masked=%v enables=%d", m.masked, m.enables)
	}
}

func TestZeroTokenIsNotProof(t *testing.T) {
	var tok Token
	if tok.Valid() {
		t.Fatal("zero token must not be valid")
	}
}

func TestExitWithForeignTokenPanics(t *testing.T) {
	a, b := New(&fakePrimask{}), New(&fakePrimask{})
	tok := a.Enter()
	defer a.Exit(tok)
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic")
		}
	}()
	b.Exit(tok)
}

func TestNopMasker(t *testing.T) {
	s := New(Nop{})
	tok := s.Enter()
	if tok.Outermost() {
		t.Fatal("Nop section reports already masked")
	}
	s.Exit(tok)
}
