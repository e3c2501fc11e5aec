//go:build tinygo && atsamd21

package main

import (
	"machine"

	"hwreg-go/drivers/sdspi"
	"hwreg-go/usbserial"
)

const boardName = "feather_m0"

// cdcDevice adapts the runtime's USB CDC endpoint. The runtime services the
// USB interrupt itself and buffers OUT data; Poll reports whether any is
// waiting.
type cdcDevice struct{}

func (cdcDevice) Poll(ports ...usbserial.Port) bool {
	return len(ports) > 0 && machine.Serial.Buffered() > 0
}

type cdcPort struct{}

func (cdcPort) Read(p []byte) (int, error) {
	n := 0
	for n < len(p) && machine.Serial.Buffered() > 0 {
		c, err := machine.Serial.ReadByte()
		if err != nil {
			return n, err
		}
		p[n] = c
		n++
	}
	return n, nil
}

func (cdcPort) Write(p []byte) (int, error) { return machine.Serial.Write(p) }

func setupBoard() *board {
	b := &board{
		led:      machine.LED,
		cd:       machine.D7,
		cdActive: true,
		spi:      machine.SPI0,
		cs:       machine.D4,
		device:   cdcDevice{},
		port:     cdcPort{},
	}
	b.configurePins()
	b.configureSPI(sdspi.InitKHz)
	return b
}

func (b *board) configureSPI(khz uint32) {
	b.spi.Configure(machine.SPIConfig{
		Frequency: khz * 1000,
		SCK:       machine.SPI0_SCK_PIN,
		SDO:       machine.SPI0_SDO_PIN,
		SDI:       machine.SPI0_SDI_PIN,
	})
}
