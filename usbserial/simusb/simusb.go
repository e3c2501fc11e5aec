// Package simusb simulates a USB device controller and the host on the
// other end of the cable. The controller state lives in a simulated register
// block using the usbserial layout; the host writes OUT packets, the device
// side drains them through usbserial.Port, and the USB line is pended the
// way the hardware raises it.
package simusb

import (
	"sync"

	"hwreg-go/errcode"
	"hwreg-go/irq"
	"hwreg-go/reg"
	"hwreg-go/usbserial"
	"hwreg-go/x/shmring"
)

const (
	// DataEP carries the CDC bulk data: bank 0 OUT, bank 1 IN.
	DataEP = 2
	// MaxPacket is the bulk packet size.
	MaxPacket = 64

	ctrlBase = 0x4100_5000
	descBase = 0x2000_0000
)

// Pender raises an interrupt line.
type Pender interface {
	Pend(v irq.Vector)
}

// Controller is a simulated USB device controller with its host.
type Controller struct {
	regs usbserial.Regs
	ic   Pender
	vec  irq.Vector
	desc usbserial.Descriptor

	mu          sync.Mutex // one bus master at a time on the register block
	readFaults  int
	writeFaults int

	out *shmring.Ring // host -> device
	in  *shmring.Ring // device -> host
}

// New powers up a controller in device mode with the data endpoint
// configured. Nothing happens on the bus until the host connects.
func New(ic Pender, v irq.Vector, d usbserial.Descriptor) *Controller {
	c := &Controller{
		regs: usbserial.NewRegs(
			reg.NewBlock("USB", ctrlBase, usbserial.BlockWords),
			reg.NewBlock("USBDESC", descBase, usbserial.DescWords),
		),
		ic:   ic,
		vec:  v,
		desc: d,
		out:  shmring.New(256),
		in:   shmring.New(1024),
	}
	c.regs.DESCADD().Set(descBase)
	c.regs.CTRLA().Write(func(w *reg.W) {
		usbserial.CTRLA.ENABLE.SetBit(w)
		usbserial.CTRLA.MODE.Set(w, usbserial.ModeDevice)
	})
	c.regs.INTENSET().Write(func(w *reg.W) { usbserial.INT.EORST.SetBit(w) })
	c.regs.EPCFG(DataEP).Write(func(w *reg.W) {
		usbserial.EPCFG.EPTYPE0.Set(w, usbserial.EPBulk)
		usbserial.EPCFG.EPTYPE1.Set(w, usbserial.EPBulk)
	})
	for bank := 0; bank < 2; bank++ {
		c.regs.PCKSIZE(DataEP, bank).Write(func(w *reg.W) {
			usbserial.PCKSIZE.SIZE.Set(w, usbserial.Size64)
		})
	}
	return c
}

// Regs exposes the simulated registers.
func (c *Controller) Regs() usbserial.Regs { return c.regs }

// Descriptor is the identity the device enumerates with.
func (c *Controller) Descriptor() usbserial.Descriptor { return c.desc }

// Device is the device-stack side of the controller.
func (c *Controller) Device() usbserial.Device { return device{c} }

// Port is the CDC data port of the controller.
func (c *Controller) Port() usbserial.Port { return port{c} }

// ack emulates a write-one-to-clear of f.
func ack(cell *reg.Register32, f reg.BoolField) { cell.ClearBits(f.Mask()) }

// Connect simulates bus reset and address assignment by the host.
func (c *Controller) Connect(addr uint8) {
	c.mu.Lock()
	c.regs.CTRLB().Update(func(_ reg.R, w *reg.W) {
		usbserial.CTRLB.DADD.Set(w, addr)
		usbserial.CTRLB.ADDEN.SetBit(w)
	})
	c.regs.INTFLAG().SetBits(usbserial.INT.EORST.Mask())
	c.mu.Unlock()
	c.ic.Pend(c.vec)
}

// Connected reports whether the host has assigned an address.
func (c *Controller) Connected() bool {
	return usbserial.CTRLB.ADDEN.Get(c.regs.CTRLB().Read())
}

// Send queues host OUT data and returns how much fit.
func (c *Controller) Send(p []byte) int {
	n := c.out.TryWriteFrom(p)
	if n == 0 {
		return 0
	}
	c.mu.Lock()
	staged := c.stageLocked()
	c.mu.Unlock()
	if staged {
		c.ic.Pend(c.vec)
	}
	return n
}

// stageLocked presents the next OUT packet in bank 0 unless one is already
// waiting.
func (c *Controller) stageLocked() bool {
	st := c.regs.EPSTATUS(DataEP)
	if usbserial.EPSTATUS.BK0RDY.Get(st.Read()) {
		return true
	}
	cnt := c.out.Len()
	if cnt == 0 {
		return false
	}
	if cnt > MaxPacket {
		cnt = MaxPacket
	}
	c.regs.PCKSIZE(DataEP, 0).Update(func(_ reg.R, w *reg.W) {
		usbserial.PCKSIZE.BYTE_COUNT.Set(w, uint16(cnt))
	})
	st.Update(func(_ reg.R, w *reg.W) {
		usbserial.EPSTATUS.BK0RDY.SetBit(w)
		usbserial.EPINTFLAG.TRCPT0.SetBit(w)
	})
	return true
}

// Recv takes device IN data seen by the host.
func (c *Controller) Recv(p []byte) int {
	n := c.in.TryReadInto(p)
	if c.in.Len() == 0 {
		c.mu.Lock()
		ack(c.regs.EPSTATUS(DataEP), usbserial.EPSTATUS.BK1RDY)
		c.mu.Unlock()
	}
	return n
}

// Readable fires when IN data becomes available to Recv.
func (c *Controller) Readable() <-chan struct{} { return c.in.Readable() }

// FailReads makes the next n port reads fail.
func (c *Controller) FailReads(n int) {
	c.mu.Lock()
	c.readFaults += n
	c.mu.Unlock()
}

// FailWrites makes the next n port writes fail.
func (c *Controller) FailWrites(n int) {
	c.mu.Lock()
	c.writeFaults += n
	c.mu.Unlock()
}

type device struct{ c *Controller }

// Poll acknowledges bus events and reports pending OUT data.
func (d device) Poll(ports ...usbserial.Port) bool {
	c := d.c
	c.mu.Lock()
	defer c.mu.Unlock()
	flags := c.regs.INTFLAG()
	if usbserial.INT.EORST.Get(flags.Read()) {
		ack(flags, usbserial.INT.EORST)
	}
	if len(ports) == 0 {
		return false
	}
	return usbserial.EPINTFLAG.TRCPT0.Get(c.regs.EPSTATUS(DataEP).Read())
}

type port struct{ c *Controller }

func (p port) Read(b []byte) (int, error) {
	c := p.c
	c.mu.Lock()
	if c.readFaults > 0 {
		c.readFaults--
		c.mu.Unlock()
		return 0, errcode.New(errcode.ReadFailed, "simusb.Read", "injected fault")
	}
	st := c.regs.EPSTATUS(DataEP)
	if !usbserial.EPSTATUS.BK0RDY.Get(st.Read()) {
		c.mu.Unlock()
		return 0, nil
	}
	pck := c.regs.PCKSIZE(DataEP, 0)
	cnt := int(usbserial.PCKSIZE.BYTE_COUNT.Get(pck.Read()))
	if len(b) > cnt {
		b = b[:cnt]
	}
	n := c.out.TryReadInto(b)
	left := cnt - n
	more := true
	if left > 0 {
		pck.Update(func(_ reg.R, w *reg.W) { usbserial.PCKSIZE.BYTE_COUNT.Set(w, uint16(left)) })
	} else {
		ack(st, usbserial.EPSTATUS.BK0RDY)
		ack(st, usbserial.EPINTFLAG.TRCPT0)
		more = c.stageLocked()
	}
	c.mu.Unlock()
	if more {
		// The flag is still up, so the line stays asserted.
		c.ic.Pend(c.vec)
	}
	return n, nil
}

func (p port) Write(b []byte) (int, error) {
	c := p.c
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.writeFaults > 0 {
		c.writeFaults--
		return 0, errcode.New(errcode.WriteFailed, "simusb.Write", "injected fault")
	}
	if !usbserial.CTRLB.ADDEN.Get(c.regs.CTRLB().Read()) {
		return 0, nil
	}
	if len(b) > MaxPacket {
		b = b[:MaxPacket]
	}
	n := c.in.TryWriteFrom(b)
	if n == 0 {
		return 0, nil
	}
	c.regs.PCKSIZE(DataEP, 1).Update(func(_ reg.R, w *reg.W) {
		usbserial.PCKSIZE.BYTE_COUNT.Set(w, uint16(n))
	})
	c.regs.EPSTATUS(DataEP).Update(func(_ reg.R, w *reg.W) {
		usbserial.EPSTATUS.BK1RDY.SetBit(w)
		usbserial.EPINTFLAG.TRCPT1.SetBit(w)
	})
	return n, nil
}
