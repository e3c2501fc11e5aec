package usbserial

import (
	"errors"
	"testing"

	"hwreg-go/critical"
	"hwreg-go/errcode"
	"hwreg-go/irq"
	"hwreg-go/reg"
	"hwreg-go/reg/regmap"
)

type countingMasker struct{ enters, masked int }

func (m *countingMasker) Disable() critical.State {
	m.enters++
	m.masked++
	if m.masked > 1 {
		return critical.Masked
	}
	return critical.Enabled
}

func (m *countingMasker) Restore(critical.State) { m.masked-- }

type fakeDevice struct {
	ready bool
	polls int
}

func (d *fakeDevice) Poll(ports ...Port) bool {
	d.polls++
	return d.ready && len(ports) == 1
}

type fakePort struct {
	rx      []byte
	readErr error

	tx        []byte
	chunk     int
	writeErrs int
}

func (p *fakePort) Read(b []byte) (int, error) {
	if p.readErr != nil {
		return 0, p.readErr
	}
	n := copy(b, p.rx)
	p.rx = p.rx[n:]
	return n, nil
}

func (p *fakePort) Write(b []byte) (int, error) {
	if p.writeErrs > 0 {
		p.writeErrs--
		return 3, errors.New("stall")
	}
	if len(b) > p.chunk {
		b = b[:p.chunk]
	}
	p.tx = append(p.tx, b...)
	return len(b), nil
}

func newCtx() (*Context, *critical.Section) {
	sec := critical.New(&countingMasker{})
	return NewContext(sec), sec
}

func TestHandlerBeforeInstallIsIdle(t *testing.T) {
	ctx, sec := newCtx()
	h := Handler(ctx)
	sec.Do(h)
	if ctx.Received.IsSet() {
		t.Fatal("flag set with nothing installed")
	}
}

func TestHandlerSetsFlagOnData(t *testing.T) {
	ctx, sec := newCtx()
	dev := &fakeDevice{}
	p := &fakePort{rx: make([]byte, 40)}
	sec.Do(func(tok critical.Token) { ctx.Install(tok, dev, p) })
	h := Handler(ctx)

	sec.Do(h)
	if ctx.Received.IsSet() || len(p.rx) != 40 {
		t.Fatal("read without a device event")
	}
	dev.ready = true
	sec.Do(h)
	if !ctx.Received.IsSet() {
		t.Fatal("flag not set after data")
	}
	if len(p.rx) != 40-RxBufferSize {
		t.Fatalf("handler read %d bytes, want %d", 40-len(p.rx), RxBufferSize)
	}
	// The handler never clears the flag.
	p.rx = nil
	sec.Do(h)
	if !ctx.Received.IsSet() {
		t.Fatal("flag cleared by handler")
	}
}

func TestHandlerHonoursReadSize(t *testing.T) {
	ctx, sec := newCtx()
	ctx.SetReadSize(4)
	p := &fakePort{rx: make([]byte, 10)}
	sec.Do(func(tok critical.Token) { ctx.Install(tok, &fakeDevice{ready: true}, p) })
	h := Handler(ctx)

	for _, left := range []int{6, 2, 0} {
		sec.Do(h)
		if len(p.rx) != left {
			t.Fatalf("remaining = %d, want %d", len(p.rx), left)
		}
	}
	if !ctx.Received.IsSet() {
		t.Fatal("flag not set")
	}
}

func TestSetReadSizeClamps(t *testing.T) {
	ctx, _ := newCtx()
	if ctx.ReadSize() != RxBufferSize {
		t.Fatalf("default = %d", ctx.ReadSize())
	}
	ctx.SetReadSize(0)
	if ctx.ReadSize() != 1 {
		t.Fatalf("ReadSize(0) = %d", ctx.ReadSize())
	}
	ctx.SetReadSize(500)
	if ctx.ReadSize() != RxBufferSize {
		t.Fatalf("ReadSize(500) = %d", ctx.ReadSize())
	}
}

func TestHandlerSwallowsReadErrors(t *testing.T) {
	ctx, sec := newCtx()
	p := &fakePort{readErr: errors.New("crc")}
	sec.Do(func(tok critical.Token) { ctx.Install(tok, &fakeDevice{ready: true}, p) })
	h := Handler(ctx)
	for i := 0; i < 6; i++ {
		sec.Do(h)
	}
	if ctx.Received.IsSet() {
		t.Fatal("error treated as data")
	}
	if ctx.ErrorCount() != 6 {
		t.Fatalf("error count = %d", ctx.ErrorCount())
	}
	select {
	case err := <-ctx.Errors():
		if !errors.Is(err, errcode.ReadFailed) {
			t.Fatalf("error = %v", err)
		}
	default:
		t.Fatal("no error delivered")
	}
}

func TestWriterChunksAndCountsErrorsAsZero(t *testing.T) {
	m := &countingMasker{}
	sec := critical.New(m)
	ctx := NewContext(sec)
	p := &fakePort{chunk: 4, writeErrs: 1}
	sec.Do(func(tok critical.Token) { ctx.Install(tok, &fakeDevice{}, p) })
	m.enters = 0

	msg := "Listing root directory:\r\n"
	n, err := NewWriter(ctx).WriteString(msg)
	if err != nil || n != len(msg) {
		t.Fatalf("Write = %d, %v", n, err)
	}
	if string(p.tx) != msg {
		t.Fatalf("port got %q", p.tx)
	}
	// One failed attempt plus ceil(len/4) accepted chunks, one section each.
	want := 1 + (len(msg)+3)/4
	if m.enters != want {
		t.Fatalf("sections entered = %d, want %d", m.enters, want)
	}
	if m.masked != 0 {
		t.Fatal("writer left interrupts masked")
	}
	if ctx.ErrorCount() != 1 {
		t.Fatalf("error count = %d", ctx.ErrorCount())
	}
}

func TestWriterWithoutPort(t *testing.T) {
	ctx, _ := newCtx()
	if _, err := NewWriter(ctx).Write([]byte("x")); !errors.Is(err, errcode.NoDevice) {
		t.Fatalf("err = %v", err)
	}
}

type fakeLines struct {
	h       map[irq.Vector]irq.Handler
	enabled []irq.Vector
}

func (f *fakeLines) Register(v irq.Vector, h irq.Handler) { f.h[v] = h }
func (f *fakeLines) EnableLine(v irq.Vector)             { f.enabled = append(f.enabled, v) }

func TestAttach(t *testing.T) {
	ctx, _ := newCtx()
	f := &fakeLines{h: map[irq.Vector]irq.Handler{}}
	Attach(f, irq.USB, ctx)
	if f.h[irq.USB] == nil || len(f.enabled) != 1 || f.enabled[0] != irq.USB {
		t.Fatalf("attach: %+v", f)
	}
}

func TestRegisterLayout(t *testing.T) {
	r := NewRegs(reg.NewBlock("USB", 0x4100_5000, BlockWords), reg.NewBlock("DESC", 0, DescWords))
	r.PCKSIZE(2, 1).Write(func(w *reg.W) {
		PCKSIZE.SIZE.Set(w, Size64)
		PCKSIZE.BYTE_COUNT.Set(w, 17)
		PCKSIZE.AUTO_ZLP.SetBit(w)
	})
	if got := r.PCKSIZE(2, 1).Get(); got != 0xB000_0011 {
		t.Fatalf("PCKSIZE = %#x", got)
	}
	if r.PCKSIZE(2, 0).Get() != 0 {
		t.Fatal("bank 0 touched")
	}
	r.CTRLB().Update(func(_ reg.R, w *reg.W) { CTRLB.DADD.Set(w, 0x7F); CTRLB.ADDEN.SetBit(w) })
	if got := r.CTRLB().Get(); got != 0x00FF_0000 {
		t.Fatalf("CTRLB = %#x", got)
	}
	if Size64.Bytes() != 64 || Size1023.Bytes() != 1023 {
		t.Fatal("packet size codes")
	}
	if r.EPSTATUS(7) == r.EPSTATUS(6) {
		t.Fatal("endpoint stride")
	}
	defer func() {
		if recover() == nil {
			t.Fatal("endpoint 8 did not panic")
		}
	}()
	r.EPSTATUS(NumEndpoints)
}

// The built-in register map and the compiled layout describe the same bits.
func TestLayoutMatchesBuiltinMap(t *testing.T) {
	d, err := regmap.Builtin("samd21_usb")
	if err != nil {
		t.Fatal(err)
	}
	checks := []struct {
		path, field string
		want        reg.Field
	}{
		{"USB.CTRLA", "ENABLE", CTRLA.ENABLE.Field},
		{"USB.CTRLA", "MODE", CTRLA.MODE.Field},
		{"USB.CTRLB", "DADD", CTRLB.DADD.Field},
		{"USB.CTRLB", "ADDEN", CTRLB.ADDEN.Field},
		{"USB.INTFLAG", "EORST", INT.EORST.Field},
		{"USB.EPCFG2", "EPTYPE1", EPCFG.EPTYPE1.Field},
		{"USB.EPSTATUS2", "BK0RDY", EPSTATUS.BK0RDY.Field},
		{"USB.EPSTATUS2", "TRCPT0", EPINTFLAG.TRCPT0.Field},
		{"USBDESC.EP2_PCKSIZE0", "BYTE_COUNT", PCKSIZE.BYTE_COUNT.Field},
		{"USBDESC.EP2_PCKSIZE1", "SIZE", PCKSIZE.SIZE.Field},
	}
	for _, c := range checks {
		_, r, err := d.Lookup(c.path)
		if err != nil {
			t.Fatal(err)
		}
		f, err := r.Field(c.field)
		if err != nil {
			t.Fatal(err)
		}
		if f.Layout() != c.want {
			t.Fatalf("%s.%s: map %v, code %v", c.path, c.field, f.Layout(), c.want)
		}
	}

	ctrl := reg.NewBlock("USB", 0x4100_5000, BlockWords)
	desc := reg.NewBlock("USBDESC", 0x2000_0000, DescWords)
	r := NewRegs(ctrl, desc)
	offsets := []struct {
		path string
		cell *reg.Register32
		blk  *reg.Block
	}{
		{"USB.INTFLAG", r.INTFLAG(), ctrl},
		{"USB.EPCFG2", r.EPCFG(2), ctrl},
		{"USB.EPSTATUS2", r.EPSTATUS(2), ctrl},
		{"USBDESC.EP2_PCKSIZE1", r.PCKSIZE(2, 1), desc},
	}
	for _, o := range offsets {
		_, mr, _ := d.Lookup(o.path)
		if o.cell != o.blk.Reg(uintptr(mr.Offset)) {
			t.Fatalf("%s: offset %#x does not match the code", o.path, uint32(mr.Offset))
		}
	}
}
