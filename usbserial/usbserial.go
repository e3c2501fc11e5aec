// Package usbserial drives a USB CDC serial port from its interrupt handler.
//
// The handler owns nothing global: the device and port live in a Context
// built by the caller, installed during setup and captured by the handler
// closure. Thread mode learns about received data through Context.Received
// and writes through a Writer that holds the critical section per chunk.
package usbserial

import (
	"sync/atomic"

	"hwreg-go/critical"
	"hwreg-go/errcode"
	"hwreg-go/irq"
	"hwreg-go/shared"
	"hwreg-go/x/mathx"
)

// RxBufferSize is the most the handler reads per interrupt.
const RxBufferSize = 16

// Port is a serial class endpoint pair.
type Port interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
}

// Device is the USB device stack. Poll services pending bus events for the
// given class ports and reports whether any of them may have data.
type Device interface {
	Poll(ports ...Port) bool
}

// Descriptor is the device identity presented to the host.
type Descriptor struct {
	VID, PID     uint16
	Manufacturer string
	Product      string
	Serial       string
	Class        uint8
}

// ClassCDC is the communications device class code.
const ClassCDC = 0x02

// DefaultDescriptor is the identity the logger enumerates with.
var DefaultDescriptor = Descriptor{
	VID:          0x16c0,
	PID:          0x27dd,
	Manufacturer: "Fake company",
	Product:      "Serial port",
	Serial:       "TEST",
	Class:        ClassCDC,
}

// Context is the state shared between thread mode and the USB handler.
type Context struct {
	sec *critical.Section

	dev  shared.Cell[Device]
	port shared.Cell[Port]

	// Received is set by the handler once any byte arrives. It is never
	// cleared by the handler.
	Received shared.Flag

	rxLen int

	nerr atomic.Uint32
	errc chan error
}

// NewContext returns an empty context guarded by sec.
func NewContext(sec *critical.Section) *Context {
	return &Context{sec: sec, rxLen: RxBufferSize, errc: make(chan error, 4)}
}

// SetReadSize limits how many bytes the handler reads per interrupt, clamped
// to 1..RxBufferSize. Call before Handler or Attach.
func (c *Context) SetReadSize(n int) {
	c.rxLen = mathx.Clamp(n, 1, RxBufferSize)
}

// ReadSize is the per-interrupt read limit.
func (c *Context) ReadSize() int { return c.rxLen }

// Section is the critical section guarding the context.
func (c *Context) Section() *critical.Section { return c.sec }

// Install populates the device and port cells. Call once during setup, before
// the interrupt line is unmasked.
func (c *Context) Install(tok critical.Token, dev Device, port Port) {
	c.dev.Set(tok, dev)
	c.port.Set(tok, port)
}

// Errors delivers port errors seen by the handler and writer. Errors that
// find the channel full are only counted.
func (c *Context) Errors() <-chan error { return c.errc }

// ErrorCount is the total number of port errors.
func (c *Context) ErrorCount() uint32 { return c.nerr.Load() }

func (c *Context) fault(err error) {
	c.nerr.Add(1)
	select {
	case c.errc <- err:
	default:
	}
}

// Handler returns the USB interrupt handler for ctx.
func Handler(ctx *Context) irq.Handler {
	var buf [RxBufferSize]byte
	rx := buf[:ctx.rxLen]
	return func(tok critical.Token) {
		dev, ok := ctx.dev.Get(tok)
		if !ok {
			return
		}
		port, ok := ctx.port.Get(tok)
		if !ok {
			return
		}
		if !dev.Poll(port) {
			return
		}
		n, err := port.Read(rx)
		if err != nil {
			ctx.fault(errcode.Wrap(errcode.ReadFailed, "usbserial.Handler", err))
			return
		}
		if n > 0 {
			ctx.Received.Set()
		}
	}
}

// LineController is the part of an interrupt controller Attach needs.
type LineController interface {
	Register(v irq.Vector, h irq.Handler)
	EnableLine(v irq.Vector)
}

// Attach installs the handler for ctx on vector v and unmasks the line.
func Attach(ic LineController, v irq.Vector, ctx *Context) {
	ic.Register(v, Handler(ctx))
	ic.EnableLine(v)
}
