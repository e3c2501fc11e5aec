package main

import (
	"testing"

	"hwreg-go/storage/memcard"
)

func TestSimBoardPins(t *testing.T) {
	card := memcard.New(1 << 20)
	b, err := newSimBoard(card)
	if err != nil {
		t.Fatal(err)
	}
	if b.LED() {
		t.Fatal("LED lit at reset")
	}
	b.ToggleLED()
	if !b.LED() || b.tgl.Get() != 0 {
		t.Fatalf("after toggle: LED=%v OUTTGL=%#x", b.LED(), b.tgl.Get())
	}
	b.ToggleLED()
	if b.LED() {
		t.Fatal("second toggle left the LED on")
	}

	if !b.CardDetect() {
		t.Fatal("new card not detected")
	}
	card.Remove()
	if b.CardDetect() || b.in.HasBits(1<<pinCardDetect) {
		t.Fatal("removed card still detected")
	}
}
