// Command adalogger-sim runs the card logger on the host. Keystrokes typed in
// the terminal reach the firmware as USB OUT data through a simulated
// interrupt controller; everything the firmware prints comes back the same
// way. Ctrl-C or Ctrl-D quits.
package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log"
	"os"
	"strings"
	"time"

	tty "github.com/mattn/go-tty"
	"github.com/spf13/cobra"

	"hwreg-go/bus"
	"hwreg-go/critical"
	"hwreg-go/critical/latency"
	"hwreg-go/irq"
	"hwreg-go/services/config"
	"hwreg-go/services/logger"
	"hwreg-go/storage"
	"hwreg-go/storage/fat"
	"hwreg-go/storage/memcard"
	"hwreg-go/usbserial"
	"hwreg-go/usbserial/simusb"
)

var simOpts = struct {
	board       string
	noCard      bool
	insertAfter time.Duration
	initFail    bool
	cardMB      int
}{}

// crlf keeps log lines readable while the terminal is in raw mode.
type crlf struct{ w io.Writer }

func (c crlf) Write(p []byte) (int, error) {
	if _, err := c.w.Write(bytes.ReplaceAll(p, []byte("\n"), []byte("\r\n"))); err != nil {
		return 0, err
	}
	return len(p), nil
}

func main() {
	log.SetFlags(log.Ltime)
	log.SetPrefix("[sim] ")

	root := &cobra.Command{
		Use:          "adalogger-sim",
		Short:        "Run the SD card logger against simulated USB and card hardware",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run()
		},
	}
	f := root.Flags()
	f.StringVar(&simOpts.board, "board", "sim", "embedded board configuration: "+strings.Join(config.Names(), ", "))
	f.BoolVar(&simOpts.noCard, "no-card", false, "start with the card slot empty")
	f.DurationVar(&simOpts.insertAfter, "insert-after", 5*time.Second, "with --no-card, insert the card after this long")
	f.BoolVar(&simOpts.initFail, "init-fail", false, "make card initialisation fail")
	f.IntVar(&simOpts.cardMB, "card-mb", 64, "card capacity in MiB")
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// sampleCard builds a card with a FAT16 logging partition and a FAT32 data
// partition.
func sampleCard(mb int) (*memcard.Card, error) {
	card := memcard.New(uint64(mb) << 20)
	err := memcard.Format(card,
		memcard.Partition{
			Kind:    storage.KindFAT16,
			Sectors: 32768,
			Label:   "ADALOGGER",
			Files: []memcard.File{
				{Name: "readme.txt", Size: 312},
				{Name: "log00001.csv", Size: 18_432},
				{Name: "log00002.csv", Size: 2_048},
				{Name: "archive", Dir: true},
			},
		},
		memcard.Partition{
			Kind:    storage.KindFAT32,
			Sectors: 70000,
			Label:   "DATA",
			Files:   []memcard.File{{Name: "firmware.bin", Size: 65_536}},
		},
	)
	return card, err
}

func run() error {
	cfg, err := config.Lookup(simOpts.board)
	if err != nil {
		return err
	}

	t, err := tty.Open()
	if err != nil {
		return err
	}
	defer t.Close()
	restore := t.MustRaw()
	defer restore()
	log.SetOutput(crlf{os.Stderr})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Bus and configuration.
	b := bus.NewBus(32)
	conn := b.NewConnection("sim")
	cfgCtx := context.WithValue(ctx, config.CtxBoardKey, cfg.Name)
	config.NewService().Start(cfgCtx, conn)
	go watchState(ctx, conn.Subscribe(bus.T("logger/#")))

	// Interrupt controller and USB.
	core := irq.NewCore()
	core.SetPriority(irq.USB, 1)
	ctrl := simusb.New(core, irq.USB, cfg.USB.Descriptor())
	probe := latency.New(core, 0)
	prevCPU := critical.SetCPU(probe)
	defer critical.SetCPU(prevCPU)
	sec := critical.CPU()
	defer func() {
		sum := probe.Summary()
		log.Printf("masked %d times: mean %.1fus p99 %.1fus max %.1fus", sum.Count, sum.Mean, sum.P99, sum.Max)
	}()
	uctx := usbserial.NewContext(sec)
	uctx.SetReadSize(cfg.RxBuffer)
	sec.Do(func(tok critical.Token) {
		uctx.Install(tok, ctrl.Device(), ctrl.Port())
	})
	usbserial.Attach(core, irq.USB, uctx)
	go core.Run(ctx)
	go hostOutput(ctx, ctrl, t.Output())
	go watchErrors(ctx, uctx)
	ctrl.Connect(1)

	// Card and pins.
	card, err := sampleCard(simOpts.cardMB)
	if err != nil {
		return err
	}
	if simOpts.initFail {
		card.FailInit(errors.New("card did not leave idle state"))
	}
	if simOpts.noCard {
		card.Remove()
		time.AfterFunc(simOpts.insertAfter, func() {
			log.Println("card inserted")
			card.Insert()
		})
	}
	board, err := newSimBoard(card)
	if err != nil {
		return err
	}

	lg := logger.New(board, usbserial.NewWriter(uctx), fat.New(card), &uctx.Received, conn, cfg.Logger)
	done := make(chan error, 1)
	go func() { done <- lg.Run(ctx) }()

	log.Printf("%s %04x:%04x ready; type to wake the logger", cfg.USB.Product, cfg.USB.VID, cfg.USB.PID)
	keys := make(chan rune)
	go func() {
		for {
			r, err := t.ReadRune()
			if err != nil {
				close(keys)
				return
			}
			keys <- r
		}
	}()
	for {
		select {
		case err := <-done:
			return err
		case r, ok := <-keys:
			if !ok || r == 3 || r == 4 {
				cancel()
				<-done
				return nil
			}
			ctrl.Send([]byte(string(r)))
		}
	}
}

// hostOutput plays the terminal program on the other end of the cable.
func hostOutput(ctx context.Context, ctrl *simusb.Controller, w io.Writer) {
	buf := make([]byte, simusb.MaxPacket)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ctrl.Readable():
		case <-time.After(20 * time.Millisecond):
		}
		for n := ctrl.Recv(buf); n > 0; n = ctrl.Recv(buf) {
			w.Write(buf[:n])
		}
	}
}

func watchState(ctx context.Context, sub *bus.Subscription) {
	for {
		select {
		case <-ctx.Done():
			return
		case m := <-sub.Channel():
			log.Printf("%s = %v", m.Topic, m.Payload)
		}
	}
}

func watchErrors(ctx context.Context, uctx *usbserial.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case err := <-uctx.Errors():
			log.Printf("usb: %v (%d total)", err, uctx.ErrorCount())
		}
	}
}
