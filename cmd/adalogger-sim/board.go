package main

import (
	"hwreg-go/reg"
	"hwreg-go/reg/regmap"
	"hwreg-go/storage/memcard"
)

const (
	pinLED        = 17 // PA17, red LED
	pinCardDetect = 21 // PA21, high while a card is seated
)

// simBoard drives a simulated PORTA the way the firmware drives the real one:
// the LED through OUTTGL, card detect through IN.
type simBoard struct {
	port *regmap.Instance
	out  *reg.Register32
	tgl  *reg.Register32
	in   *reg.Register32
	card *memcard.Card
}

func newSimBoard(card *memcard.Card) (*simBoard, error) {
	dev, err := regmap.Builtin("samd21_port")
	if err != nil {
		return nil, err
	}
	p, err := dev.Peripheral("PORTA")
	if err != nil {
		return nil, err
	}
	b := &simBoard{port: p.Simulate(), card: card}
	for name, cell := range map[string]**reg.Register32{"OUT": &b.out, "OUTTGL": &b.tgl, "IN": &b.in} {
		if *cell, err = b.port.Cell(name); err != nil {
			return nil, err
		}
	}
	dir, err := b.port.Cell("DIRSET")
	if err != nil {
		return nil, err
	}
	dir.Set(1 << pinLED)
	return b, nil
}

// ToggleLED writes OUTTGL; the write-only register is folded into OUT as the
// port hardware does.
func (b *simBoard) ToggleLED() {
	b.tgl.Set(1 << pinLED)
	b.out.Modify(func(v uint32) uint32 { return v ^ b.tgl.Get() })
	b.tgl.Set(0)
}

func (b *simBoard) LED() bool { return b.out.HasBits(1 << pinLED) }

// CardDetect samples the card-detect pin after refreshing it from the card.
func (b *simBoard) CardDetect() bool {
	if b.card.Present() {
		b.in.SetBits(1 << pinCardDetect)
	} else {
		b.in.ClearBits(1 << pinCardDetect)
	}
	return b.in.HasBits(1 << pinCardDetect)
}
