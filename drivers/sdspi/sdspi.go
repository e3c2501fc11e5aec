// Package sdspi drives an SD or SDHC card in SPI mode.
//
// The bus must already be configured (mode 0, at most InitKHz until Init
// returns). Config.AfterInit is the place to raise the clock. Chip select is driven through the Select callback; the driver
// keeps it low only for the duration of a command.
//
//	d := sdspi.New(spi, func(high bool) { csPin.Set(high) })
//	if err := d.Init(); err != nil { ... }
//	err = d.ReadBlock(0, buf[:])
package sdspi

import (
	"tinygo.org/x/drivers"

	"hwreg-go/errcode"
	"hwreg-go/storage"
)

// Commands used in SPI mode.
const (
	cmdGoIdle      = 0
	cmdSendIfCond  = 8
	cmdSendCSD     = 9
	cmdSetBlockLen = 16
	cmdReadSingle  = 17
	cmdAppCmd      = 55
	cmdReadOCR     = 58
	acmdSendOpCond = 41
)

// R1 status bits.
const (
	r1Idle       = 0x01
	r1IllegalCmd = 0x04
	r1Busy       = 0x80 // MSB set: no response yet

	tokenStartBlock = 0xFE
	ocrCCS          = 0x40 // byte 0 of OCR, bit 30
	ifCondPattern   = 0x1AA
)

// InitKHz is the bus clock the card is initialised at.
const InitKHz = 100

// Config controls retry budgets and the post-init hook. All fields are
// optional.
type Config struct {
	// InitRetries bounds ACMD41 attempts while the card leaves idle. Default 2000.
	InitRetries int
	// TokenPolls bounds the bytes clocked while waiting for a data token. Default 4096.
	TokenPolls int
	// AfterInit runs once Init succeeds, with chip select released.
	AfterInit func()
}

// Device is an SD card on an SPI bus.
type Device struct {
	bus   drivers.SPI
	sel   func(high bool)
	cfg   Config
	sdhc  bool
	ready bool
	csd   [16]byte
	ff    [storage.BlockSize]byte
	frame [6]byte
}

// New creates a Device. It does not touch the bus.
func New(bus drivers.SPI, sel func(high bool)) *Device {
	d := &Device{bus: bus, sel: sel}
	for i := range d.ff {
		d.ff[i] = 0xFF
	}
	d.Configure()
	return d
}

// Configure applies optional config.
func (d *Device) Configure(cfgs ...Config) {
	c := Config{}
	if len(cfgs) > 0 {
		c = cfgs[0]
	}
	if c.InitRetries <= 0 {
		c.InitRetries = 2000
	}
	if c.TokenPolls <= 0 {
		c.TokenPolls = 4096
	}
	d.cfg = c
}

// SDHC reports whether the card uses block addressing.
func (d *Device) SDHC() bool { return d.sdhc }

func (d *Device) xfer(b byte) byte {
	r, err := d.bus.Transfer(b)
	if err != nil {
		return 0xFF
	}
	return r
}

// command sends one frame and returns R1.
func (d *Device) command(cmd byte, arg uint32) byte {
	f := d.frame[:]
	f[0] = 0x40 | cmd
	f[1], f[2], f[3], f[4] = byte(arg>>24), byte(arg>>16), byte(arg>>8), byte(arg)
	switch cmd {
	case cmdGoIdle:
		f[5] = 0x95
	case cmdSendIfCond:
		f[5] = 0x87
	default:
		f[5] = 0x01 // CRC ignored once in SPI mode
	}
	d.xfer(0xFF)
	for _, b := range f {
		d.xfer(b)
	}
	for i := 0; i < 10; i++ {
		if r := d.xfer(0xFF); r&r1Busy == 0 {
			return r
		}
	}
	return 0xFF
}

func (d *Device) appCommand(cmd byte, arg uint32) byte {
	d.command(cmdAppCmd, 0)
	return d.command(cmd, arg)
}

func (d *Device) deselect() {
	d.sel(true)
	d.xfer(0xFF)
}

// Init runs the SPI-mode power-up sequence and reads the CSD.
func (d *Device) Init() error {
	if err := d.powerUp(); err != nil {
		return err
	}
	if d.cfg.AfterInit != nil {
		d.cfg.AfterInit()
	}
	return nil
}

func (d *Device) powerUp() error {
	const op = "sdspi.Init"
	d.ready = false
	d.sel(true)
	for i := 0; i < 10; i++ {
		d.xfer(0xFF) // >= 74 clocks with CS high
	}
	d.sel(false)
	defer d.deselect()

	if r := d.command(cmdGoIdle, 0); r != r1Idle {
		return errcode.New(errcode.NoCard, op, "no response to CMD0")
	}

	v2 := false
	if r := d.command(cmdSendIfCond, ifCondPattern); r&r1IllegalCmd == 0 {
		var r7 [4]byte
		for i := range r7 {
			r7[i] = d.xfer(0xFF)
		}
		if r7[2]&0x0F != 0x01 || r7[3] != 0xAA {
			return errcode.New(errcode.InitFailed, op, "CMD8 echo mismatch")
		}
		v2 = true
	}

	var hcs uint32
	if v2 {
		hcs = 1 << 30
	}
	ready := false
	for i := 0; i < d.cfg.InitRetries; i++ {
		if d.appCommand(acmdSendOpCond, hcs) == 0 {
			ready = true
			break
		}
	}
	if !ready {
		return errcode.New(errcode.Timeout, op, "card stayed idle")
	}

	d.sdhc = false
	if v2 {
		if d.command(cmdReadOCR, 0) != 0 {
			return errcode.New(errcode.InitFailed, op, "CMD58 rejected")
		}
		ocr := d.xfer(0xFF)
		d.xfer(0xFF)
		d.xfer(0xFF)
		d.xfer(0xFF)
		d.sdhc = ocr&ocrCCS != 0
	}
	if !d.sdhc {
		if d.command(cmdSetBlockLen, storage.BlockSize) != 0 {
			return errcode.New(errcode.InitFailed, op, "CMD16 rejected")
		}
	}

	if d.command(cmdSendCSD, 0) != 0 {
		return errcode.New(errcode.InitFailed, op, "CMD9 rejected")
	}
	if err := d.readData(d.csd[:], op); err != nil {
		return err
	}
	d.ready = true
	return nil
}

// readData waits for the start token and reads len(dst) bytes plus CRC.
func (d *Device) readData(dst []byte, op string) error {
	tok := byte(0xFF)
	for i := 0; i < d.cfg.TokenPolls && tok == 0xFF; i++ {
		tok = d.xfer(0xFF)
	}
	if tok != tokenStartBlock {
		return errcode.New(errcode.ReadFailed, op, "no data token")
	}
	if err := d.bus.Tx(d.ff[:len(dst)], dst); err != nil {
		return errcode.Wrap(errcode.ReadFailed, op, err)
	}
	d.xfer(0xFF)
	d.xfer(0xFF)
	return nil
}

// csdBits extracts CSD bits hi..lo; bit 127 is the MSB of byte 0.
func (d *Device) csdBits(hi, lo int) uint32 {
	var v uint32
	for b := hi; b >= lo; b-- {
		v = v<<1 | uint32(d.csd[(127-b)/8]>>(b%8))&1
	}
	return v
}

// SizeBytes decodes the capacity from the CSD read during Init.
func (d *Device) SizeBytes() (uint64, error) {
	if !d.ready {
		return 0, errcode.New(errcode.NoCard, "sdspi.SizeBytes", "card not initialised")
	}
	switch d.csdBits(127, 126) {
	case 0:
		blLen := d.csdBits(83, 80)
		cSize := d.csdBits(73, 62)
		mult := d.csdBits(49, 47)
		return uint64(cSize+1) << (mult + 2) << blLen, nil
	case 1:
		return uint64(d.csdBits(69, 48)+1) * 512 * 1024, nil
	}
	return 0, errcode.New(errcode.Unsupported, "sdspi.SizeBytes", "unknown CSD structure")
}

// ReadBlock reads one 512-byte block.
func (d *Device) ReadBlock(lba uint32, dst []byte) error {
	const op = "sdspi.ReadBlock"
	if !d.ready {
		return errcode.New(errcode.NoCard, op, "card not initialised")
	}
	if len(dst) < storage.BlockSize {
		return errcode.New(errcode.InvalidParams, op, "short buffer")
	}
	addr := lba
	if !d.sdhc {
		addr = lba * storage.BlockSize
	}
	d.sel(false)
	defer d.deselect()
	if r := d.command(cmdReadSingle, addr); r != 0 {
		return errcode.New(errcode.ReadFailed, op, "CMD17 rejected")
	}
	return d.readData(dst[:storage.BlockSize], op)
}
