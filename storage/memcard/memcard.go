// Package memcard is an in-memory card for host runs and tests: a sparse
// block store with a card-detect switch, injectable failures and a
// formatter that lays down an MBR with FAT16 or FAT32 volumes.
package memcard

import (
	"sync"

	"hwreg-go/errcode"
	"hwreg-go/storage"
)

// Card is a simulated SD card. It implements storage.BlockDevice.
type Card struct {
	mu      sync.Mutex
	blocks  map[uint32][]byte
	size    uint64
	present bool
	ready   bool

	initErr   error
	readFails map[uint32]error
}

// New returns an inserted, blank card of size bytes.
func New(size uint64) *Card {
	return &Card{
		blocks:    map[uint32][]byte{},
		size:      size,
		present:   true,
		readFails: map[uint32]error{},
	}
}

// Present reports the card-detect switch.
func (c *Card) Present() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.present
}

// Insert closes the card-detect switch.
func (c *Card) Insert() {
	c.mu.Lock()
	c.present = true
	c.mu.Unlock()
}

// Remove opens the card-detect switch and drops the card out of its
// initialised state.
func (c *Card) Remove() {
	c.mu.Lock()
	c.present, c.ready = false, false
	c.mu.Unlock()
}

// FailInit makes Init return err until cleared with nil.
func (c *Card) FailInit(err error) {
	c.mu.Lock()
	c.initErr = err
	c.mu.Unlock()
}

// FailRead makes reads of lba return err until cleared with nil.
func (c *Card) FailRead(lba uint32, err error) {
	c.mu.Lock()
	if err == nil {
		delete(c.readFails, lba)
	} else {
		c.readFails[lba] = err
	}
	c.mu.Unlock()
}

func (c *Card) Init() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.present {
		return errcode.New(errcode.NoCard, "memcard.Init", "no card")
	}
	if c.initErr != nil {
		return c.initErr
	}
	c.ready = true
	return nil
}

func (c *Card) SizeBytes() (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.ready {
		return 0, errcode.New(errcode.NoCard, "memcard.SizeBytes", "card not initialised")
	}
	return c.size, nil
}

func (c *Card) blockCount() uint32 { return uint32(c.size / storage.BlockSize) }

func (c *Card) ReadBlock(lba uint32, dst []byte) error {
	const op = "memcard.ReadBlock"
	c.mu.Lock()
	defer c.mu.Unlock()
	switch {
	case !c.ready:
		return errcode.New(errcode.NoCard, op, "card not initialised")
	case len(dst) < storage.BlockSize:
		return errcode.New(errcode.InvalidParams, op, "short buffer")
	case lba >= c.blockCount():
		return errcode.New(errcode.OutOfRange, op, "block beyond end of card")
	}
	if err := c.readFails[lba]; err != nil {
		return err
	}
	if b, ok := c.blocks[lba]; ok {
		copy(dst, b)
	} else {
		clear(dst[:storage.BlockSize])
	}
	return nil
}

// WriteBlock stores one block. Formatting uses it; the logger never writes.
func (c *Card) WriteBlock(lba uint32, src []byte) error {
	const op = "memcard.WriteBlock"
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(src) < storage.BlockSize {
		return errcode.New(errcode.InvalidParams, op, "short buffer")
	}
	if lba >= c.blockCount() {
		return errcode.New(errcode.OutOfRange, op, "block beyond end of card")
	}
	b := make([]byte, storage.BlockSize)
	copy(b, src)
	c.blocks[lba] = b
	return nil
}
