//go:build tinygo

package main

import (
	"machine"

	"hwreg-go/usbserial"
)

// board is the pin and bus wiring shared by every target.
type board struct {
	led      machine.Pin
	ledOn    bool
	cd       machine.Pin
	cdActive bool // level of cd while a card is seated
	spi      *machine.SPI
	cs       machine.Pin
	device   usbserial.Device
	port     usbserial.Port
}

func (b *board) ToggleLED() {
	b.ledOn = !b.ledOn
	b.led.Set(b.ledOn)
}

func (b *board) CardDetect() bool { return b.cd.Get() == b.cdActive }

func (b *board) configurePins() {
	b.led.Configure(machine.PinConfig{Mode: machine.PinOutput})
	b.cd.Configure(machine.PinConfig{Mode: machine.PinInputPullup})
	b.cs.Configure(machine.PinConfig{Mode: machine.PinOutput})
	b.cs.High()
}
