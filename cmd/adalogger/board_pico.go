//go:build tinygo && rp2040

package main

import (
	"context"
	"machine"

	uartx "github.com/jangala-dev/tinygo-uartx/uartx"

	"hwreg-go/drivers/sdspi"
	"hwreg-go/usbserial"
	"hwreg-go/x/shmring"
)

const boardName = "pico"

// uartConsole puts the console on UART0. A reader goroutine moves received
// bytes into a ring so that Read never blocks inside a critical section.
type uartConsole struct {
	u  *uartx.UART
	rx *shmring.Ring
}

func newUARTConsole(baud uint32) *uartConsole {
	c := &uartConsole{u: uartx.UART0, rx: shmring.New(256)}
	_ = c.u.Configure(uartx.UARTConfig{
		BaudRate: baud,
		TX:       machine.UART0_TX_PIN,
		RX:       machine.UART0_RX_PIN,
	})
	go c.pump()
	return c
}

func (c *uartConsole) pump() {
	buf := make([]byte, 32)
	for {
		n, err := c.u.RecvSomeContext(context.Background(), buf)
		if err != nil {
			println("[usb] uart:", err.Error())
			continue
		}
		for off := 0; off < n; {
			w := c.rx.TryWriteFrom(buf[off:n])
			if w == 0 {
				<-c.rx.Writable()
			}
			off += w
		}
	}
}

func (c *uartConsole) Poll(ports ...usbserial.Port) bool { return len(ports) > 0 && c.rx.Len() > 0 }
func (c *uartConsole) Read(p []byte) (int, error)        { return c.rx.TryReadInto(p), nil }
func (c *uartConsole) Write(p []byte) (int, error)       { return c.u.Write(p) }

func setupBoard() *board {
	con := newUARTConsole(115200)
	b := &board{
		led:      machine.LED,
		cd:       machine.GP22,
		cdActive: false,
		spi:      machine.SPI0,
		cs:       machine.GP17,
		device:   con,
		port:     con,
	}
	b.configurePins()
	b.configureSPI(sdspi.InitKHz)
	return b
}

func (b *board) configureSPI(khz uint32) {
	b.spi.Configure(machine.SPIConfig{
		Frequency: khz * 1000,
		SCK:       machine.GP18,
		SDO:       machine.GP19,
		SDI:       machine.GP16,
	})
}
