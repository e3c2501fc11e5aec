// Package critical masks interrupts around a code region so that it runs
// without being interleaved by interrupt handlers.
//
// Entering captures the prior interrupt-enable state and exiting restores
// exactly that state, so sections nest: an inner exit never re-enables
// interrupts while an outer section is still active. Do and DoErr restore the
// state on every exit path, panics included.
package critical

// State is the interrupt-enable state captured on entry.
type State uintptr

const (
	// Enabled means interrupts were unmasked before entry.
	Enabled State = 0
	// Masked means interrupts were already masked before entry.
	Masked State = 1
)

// Masker is the processor's global interrupt-enable switch.
type Masker interface {
	// Disable masks interrupts and returns the state before the call.
	Disable() State
	// Restore puts back a state returned by Disable.
	Restore(State)
}

// Section is a critical-section primitive bound to one Masker.
type Section struct {
	m Masker
}

// New binds a Section to a Masker.
func New(m Masker) *Section { return &Section{m: m} }

// Token is proof that interrupts are masked. Guarded accessors demand one.
// The zero Token is not proof of anything.
type Token struct {
	sec   *Section
	prior State
}

// Valid reports whether the token came from Enter.
func (t Token) Valid() bool { return t.sec != nil }

// Outermost reports whether this token's section unmasked interrupts on exit.
func (t Token) Outermost() bool { return t.prior == Enabled }

// Enter masks interrupts. It cannot fail.
func (s *Section) Enter() Token {
	return Token{sec: s, prior: s.m.Disable()}
}

// Exit restores the state captured by the matching Enter.
func (s *Section) Exit(t Token) {
	if t.sec != s {
		panic("critical: token from another section")
	}
	s.m.Restore(t.prior)
}

// Do runs fn with interrupts masked.
func (s *Section) Do(fn func(Token)) {
	t := s.Enter()
	defer s.Exit(t)
	fn(t)
}

// DoErr runs fn with interrupts masked and returns its error.
func (s *Section) DoErr(fn func(Token) error) error {
	t := s.Enter()
	defer s.Exit(t)
	return fn(t)
}

// Nop is a Masker for contexts that are already exclusive (interrupt
// handlers on a single-priority core). Disable reports Masked and changes
// nothing.
type Nop struct{}

func (Nop) Disable() State { return Masked }
func (Nop) Restore(State)  {}
