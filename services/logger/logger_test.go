package logger

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"hwreg-go/bus"
	"hwreg-go/critical"
	"hwreg-go/errcode"
	"hwreg-go/irq"
	"hwreg-go/services/config"
	"hwreg-go/shared"
	"hwreg-go/storage"
	"hwreg-go/storage/fat"
	"hwreg-go/storage/memcard"
	"hwreg-go/usbserial"
	"hwreg-go/usbserial/simusb"
)

type fakeBoard struct {
	toggles atomic.Int32
	card    atomic.Bool
}

func (b *fakeBoard) ToggleLED()       { b.toggles.Add(1) }
func (b *fakeBoard) CardDetect() bool { return b.card.Load() }

type console struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (c *console) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.buf.Write(p)
}

func (c *console) String() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.buf.String()
}

func fastConfig() config.Logger {
	return config.Logger{PollMS: 10, IdleMS: 20, MessageLimit: 256}
}

func formattedCard(t *testing.T) *memcard.Card {
	t.Helper()
	mc := memcard.New(32 << 20)
	err := memcard.Format(mc, memcard.Partition{
		Kind:    storage.KindFAT16,
		Sectors: 32768,
		Label:   "LOGS",
		Files: []memcard.File{
			{Name: "readme.txt", Size: 120},
			{Name: "data", Dir: true},
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	return mc
}

// waitState blocks until the retained logger/state reaches want.
func waitState(t *testing.T, sub *bus.Subscription, want Phase, within time.Duration) {
	t.Helper()
	deadline := time.After(within)
	for {
		select {
		case m := <-sub.Channel():
			if m.Payload == want.String() {
				return
			}
		case <-deadline:
			t.Fatalf("logger never reached %s", want)
		}
	}
}

func start(t *testing.T, s *Service) (context.CancelFunc, <-chan error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	t.Cleanup(cancel)
	return cancel, done
}

func TestListsCardThenIdles(t *testing.T) {
	b := bus.NewBus(16)
	conn := b.NewConnection("test")
	states := conn.Subscribe(bus.T("logger/state"))

	board := &fakeBoard{}
	board.card.Store(true)
	out := &console{}
	var rx shared.Flag
	rx.Set()

	s := New(board, out, fat.New(formattedCard(t)), &rx, conn, fastConfig())
	cancel, done := start(t, s)
	waitState(t, states, Idle, 2*time.Second)

	got := out.String()
	for _, want := range []string{
		"Card inserted!\r\n",
		"OK!\r\nCard size...\r\n",
		"33554432 bytes\r\n",
		"volume 0: FAT16 start 2048 sectors 32768 label LOGS\r\n",
		"Listing root directory:\r\n",
		"\tFound: README.TXT 120 bytes\r\n",
		"\tFound: DATA <DIR>\r\n",
		"volume 1: ",
		"Done!\r\n",
	} {
		if !strings.Contains(got, want) {
			t.Fatalf("console missing %q:\n%s", want, got)
		}
	}
	if strings.Contains(got, "No card detected") {
		t.Fatal("card was present from the start")
	}

	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("Run = %v", err)
	}
}

func TestInitFailureReportsAndKeepsBlinking(t *testing.T) {
	board := &fakeBoard{}
	board.card.Store(true)
	mc := formattedCard(t)
	mc.FailInit(errors.New("no response"))
	out := &console{}
	var rx shared.Flag
	rx.Set()

	conn := bus.NewBus(8).NewConnection("test")
	states := conn.Subscribe(bus.T("logger/state"))
	s := New(board, out, fat.New(mc), &rx, conn, fastConfig())
	start(t, s)
	waitState(t, states, Idle, 2*time.Second)

	got := out.String()
	if !strings.Contains(got, "Init err: ") || !strings.Contains(got, "no response!\r\n") {
		t.Fatalf("console = %q", got)
	}
	if !strings.HasSuffix(got, "Done!\r\n") || strings.Contains(got, "Card size") {
		t.Fatalf("console = %q", got)
	}

	// The idle loop stays observable through the LED.
	before := board.toggles.Load()
	deadline := time.Now().Add(time.Second)
	for board.toggles.Load() < before+3 {
		if time.Now().After(deadline) {
			t.Fatal("LED stopped toggling after init failure")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestWaitsForCard(t *testing.T) {
	board := &fakeBoard{}
	out := &console{}
	var rx shared.Flag
	rx.Set()
	conn := bus.NewBus(8).NewConnection("test")
	states := conn.Subscribe(bus.T("logger/#"))

	s := New(board, out, fat.New(formattedCard(t)), &rx, conn, fastConfig())
	start(t, s)
	waitState(t, states, WaitCard, time.Second)
	time.Sleep(30 * time.Millisecond)
	if got := out.String(); got != "No card detected. Waiting...\r\n" {
		t.Fatalf("console = %q", got)
	}
	board.card.Store(true)
	waitState(t, states, Idle, 2*time.Second)
}

func TestOversizedMessageHalts(t *testing.T) {
	board := &fakeBoard{}
	out := &console{}
	var rx shared.Flag
	rx.Set()

	cfg := fastConfig()
	cfg.MessageLimit = 16
	s := New(board, out, fat.New(formattedCard(t)), &rx, nil, cfg)
	halted := make(chan struct{})
	s.Halt = func(ctx context.Context) {
		close(halted)
		<-ctx.Done()
	}
	cancel, done := start(t, s)

	select {
	case <-halted:
	case <-time.After(time.Second):
		t.Fatal("logger did not halt")
	}
	if out.String() != "" {
		t.Fatalf("partial message written: %q", out.String())
	}
	toggles := board.toggles.Load()
	time.Sleep(50 * time.Millisecond)
	if board.toggles.Load() != toggles {
		t.Fatal("halted logger kept blinking")
	}
	cancel()
	if err := <-done; errcode.Of(err) != errcode.OutOfMemory {
		t.Fatalf("Run = %v", err)
	}
}

func TestHostByteObservedWithinOnePollInterval(t *testing.T) {
	core := irq.NewCore()
	ctrl := simusb.New(core, irq.USB, usbserial.DefaultDescriptor)
	uctx := usbserial.NewContext(core.Section())
	core.Section().Do(func(tok critical.Token) {
		uctx.Install(tok, ctrl.Device(), ctrl.Port())
	})
	usbserial.Attach(core, irq.USB, uctx)

	rctx, stop := context.WithCancel(context.Background())
	defer stop()
	go core.Run(rctx)
	ctrl.Connect(3)

	// Drain the IN endpoint like a terminal would.
	var host console
	go func() {
		buf := make([]byte, 64)
		for {
			select {
			case <-rctx.Done():
				return
			case <-ctrl.Readable():
			case <-time.After(5 * time.Millisecond):
			}
			for n := ctrl.Recv(buf); n > 0; n = ctrl.Recv(buf) {
				host.Write(buf[:n])
			}
		}
	}()

	board := &fakeBoard{}
	board.card.Store(true)
	cfg := config.Logger{PollMS: 250, IdleMS: 20, MessageLimit: 256}
	conn := bus.NewBus(8).NewConnection("test")
	states := conn.Subscribe(bus.T("logger/state"))
	s := New(board, usbserial.NewWriter(uctx), fat.New(formattedCard(t)), &uctx.Received, conn, cfg)
	start(t, s)
	waitState(t, states, WaitHost, time.Second)

	time.Sleep(100 * time.Millisecond)
	ctrl.Send([]byte("k"))
	sent := time.Now()
	for !strings.Contains(host.String(), "Card inserted!") {
		if time.Since(sent) > cfg.PollInterval()+150*time.Millisecond {
			t.Fatal("keystroke not observed within one poll interval")
		}
		time.Sleep(2 * time.Millisecond)
	}
	waitState(t, states, Idle, 2*time.Second)

	deadline := time.Now().Add(time.Second)
	for !strings.HasSuffix(host.String(), "Done!\r\n") {
		if time.Now().After(deadline) {
			t.Fatalf("host saw %q", host.String())
		}
		time.Sleep(2 * time.Millisecond)
	}
	if uctx.ErrorCount() != 0 {
		t.Fatalf("%d port errors", uctx.ErrorCount())
	}
}
