//go:build !tinygo

package critical_test

import (
	"sync/atomic"
	"testing"
	"time"

	"hwreg-go/critical"
	"hwreg-go/irq"
)

func TestCPUWithInstalledCoreExcludesHandlers(t *testing.T) {
	core := irq.NewCore()
	prev := critical.SetCPU(core)
	t.Cleanup(func() { critical.SetCPU(prev) })

	var inside, overlapped atomic.Bool
	ran := make(chan struct{})
	core.Register(irq.USB, func(critical.Token) {
		if inside.Load() {
			overlapped.Store(true)
		}
		close(ran)
	})
	core.EnableLine(irq.USB)

	tok := critical.CPU().Enter()
	inside.Store(true)
	core.Pend(irq.USB)
	go core.Service()
	select {
	case <-ran:
		t.Fatal("handler ran while CPU() was held")
	case <-time.After(30 * time.Millisecond):
	}
	inside.Store(false)
	critical.CPU().Exit(tok)

	select {
	case <-ran:
	case <-time.After(time.Second):
		t.Fatal("handler never ran after the section exited")
	}
	if overlapped.Load() {
		t.Fatal("handler overlapped the section")
	}
}
