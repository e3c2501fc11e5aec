//go:build tinygo

package critical

import "runtime/interrupt"

// primask is the global interrupt-enable flag of the running core.
type primask struct{}

func (primask) Disable() State  { return State(interrupt.Disable()) }
func (primask) Restore(s State) { interrupt.Restore(interrupt.State(s)) }

var cpu = New(primask{})

// CPU returns the section for the processor's interrupt-enable flag.
func CPU() *Section { return cpu }
