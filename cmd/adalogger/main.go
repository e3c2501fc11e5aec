//go:build tinygo

// Command adalogger is the card-listing firmware. It blinks until the USB
// host sends a byte, then lists the SD card's volumes on the console.
//
//	tinygo flash -target feather-m0 ./cmd/adalogger
//	tinygo flash -target pico ./cmd/adalogger
package main

import (
	"context"
	"time"

	"hwreg-go/bus"
	"hwreg-go/critical"
	"hwreg-go/drivers/sdspi"
	"hwreg-go/services/config"
	"hwreg-go/services/logger"
	"hwreg-go/storage/fat"
	"hwreg-go/usbserial"
)

// consolePoll is how often the console is serviced. The USB interrupt
// belongs to the TinyGo runtime, so the handler runs from a goroutine
// inside the CPU critical section instead.
const consolePoll = 5 * time.Millisecond

func main() {
	time.Sleep(1500 * time.Millisecond)
	println("[adalogger] boot", boardName)

	cfg, err := config.Lookup(boardName)
	if err != nil {
		println("[adalogger] config:", err.Error())
		cfg = config.Defaults()
	}

	b := bus.NewBus(8)
	conn := b.NewConnection("adalogger")

	hw := setupBoard()
	sec := critical.CPU()
	uctx := usbserial.NewContext(sec)
	uctx.SetReadSize(cfg.RxBuffer)
	sec.Do(func(tok critical.Token) {
		uctx.Install(tok, hw.device, hw.port)
	})
	go serviceConsole(uctx)

	card := sdspi.New(hw.spi, hw.cs.Set)
	card.Configure(sdspi.Config{
		AfterInit: func() { hw.configureSPI(cfg.SPIKHz) },
	})

	lg := logger.New(hw, usbserial.NewWriter(uctx), fat.New(card), &uctx.Received, conn, cfg.Logger)
	err = lg.Run(context.Background())
	println("[adalogger] stopped:", err.Error())
}

func serviceConsole(uctx *usbserial.Context) {
	h := usbserial.Handler(uctx)
	sec := uctx.Section()
	for {
		sec.Do(func(tok critical.Token) { h(tok) })
		time.Sleep(consolePoll)
	}
}
