// Package logger is the card-listing application: it waits for the USB host
// to send a byte, waits for a card, prints the card's capacity and every
// volume's root directory to the console, then blinks forever.
package logger

import (
	"context"
	"errors"
	"io"
	"time"

	"hwreg-go/bus"
	"hwreg-go/errcode"
	"hwreg-go/services/config"
	"hwreg-go/shared"
	"hwreg-go/storage"
	"hwreg-go/x/conv"
)

var (
	topicState = bus.Topic{"logger", "state"}
	topicCard  = bus.Topic{"logger", "card"}
)

// Board is the GPIO the logger drives.
type Board interface {
	ToggleLED()
	// CardDetect reports whether a card is seated.
	CardDetect() bool
}

// Phase is the logger's progress.
type Phase uint8

const (
	WaitHost Phase = iota
	WaitCard
	Listing
	Idle
	Halted
)

func (p Phase) String() string {
	switch p {
	case WaitHost:
		return "wait_host"
	case WaitCard:
		return "wait_card"
	case Listing:
		return "listing"
	case Idle:
		return "idle"
	case Halted:
		return "halted"
	}
	return "unknown"
}

// Service runs the logger. Sleep and Halt default to timer waits and to
// parking until ctx ends; firmware never cancels ctx, so Halt never returns
// there.
type Service struct {
	board   Board
	console io.Writer
	card    storage.Device
	rx      *shared.Flag
	conn    *bus.Connection
	cfg     config.Logger

	Sleep func(ctx context.Context, d time.Duration) bool
	Halt  func(ctx context.Context)

	phase Phase
	msg   []byte
	over  bool
}

// New wires a logger. conn may be nil when nothing listens for status.
func New(board Board, console io.Writer, card storage.Device, rx *shared.Flag, conn *bus.Connection, cfg config.Logger) *Service {
	return &Service{
		board:   board,
		console: console,
		card:    card,
		rx:      rx,
		conn:    conn,
		cfg:     cfg,
		Sleep:   sleep,
		Halt:    park,
		msg:     make([]byte, 0, cfg.MessageLimit),
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func park(ctx context.Context) { <-ctx.Done() }

// Phase returns the current phase. Only the goroutine running Run may call it
// while Run is active.
func (s *Service) Phase() Phase { return s.phase }

func (s *Service) enter(p Phase) {
	s.phase = p
	println("[logger]", p.String())
	if s.conn != nil {
		s.conn.Publish(s.conn.NewMessage(topicState, p.String(), true))
	}
}

// Run blocks until ctx ends. A console message over the configured limit
// halts the logger and Run returns errcode.OutOfMemory once ctx ends.
func (s *Service) Run(ctx context.Context) error {
	s.enter(WaitHost)
	for !s.rx.IsSet() {
		if !s.Sleep(ctx, s.cfg.PollInterval()) {
			return ctx.Err()
		}
		s.board.ToggleLED()
	}

	if err := s.report(ctx); err != nil {
		if errors.Is(err, errcode.OutOfMemory) {
			s.enter(Halted)
			println("[logger]", err.Error())
			s.Halt(ctx)
		}
		return err
	}

	s.enter(Idle)
	for {
		if !s.Sleep(ctx, s.cfg.IdleInterval()) {
			return ctx.Err()
		}
		s.board.ToggleLED()
	}
}

// report walks the card and prints everything it finds. Storage errors are
// printed and the walk carries on; only console and context errors end it.
func (s *Service) report(ctx context.Context) error {
	if !s.board.CardDetect() {
		s.enter(WaitCard)
		if err := s.say("No card detected. Waiting...\r\n"); err != nil {
			return err
		}
		for !s.board.CardDetect() {
			if !s.Sleep(ctx, s.cfg.PollInterval()) {
				return ctx.Err()
			}
		}
	}
	if err := s.say("Card inserted!\r\n"); err != nil {
		return err
	}
	if !s.Sleep(ctx, s.cfg.PollInterval()) {
		return ctx.Err()
	}

	s.enter(Listing)
	if err := s.card.Init(); err != nil {
		s.publishCard(err.Error())
		s.begin().str("Init err: ").str(err.Error()).str("!\r\n")
		if err := s.flush(); err != nil {
			return err
		}
		return s.say("Done!\r\n")
	}

	if err := s.say("OK!\r\nCard size...\r\n"); err != nil {
		return err
	}
	size, err := s.card.SizeBytes()
	if err != nil {
		s.begin().str("Err: ").str(err.Error()).str("\r\n")
	} else {
		s.publishCard(size)
		s.begin().num(size).str(" bytes\r\n")
	}
	if err := s.flush(); err != nil {
		return err
	}

	for i := 0; i < storage.MaxVolumes; i++ {
		if err := s.volume(i); err != nil {
			return err
		}
	}
	return s.say("Done!\r\n")
}

func (s *Service) volume(idx int) error {
	v, err := s.card.OpenVolume(idx)
	s.begin().str("volume ").num(uint64(idx)).str(": ")
	if err != nil {
		s.str(err.Error()).str("\r\n")
		return s.flush()
	}
	s.str(v.Kind.String()).str(" start ").num(uint64(v.StartLBA)).
		str(" sectors ").num(uint64(v.Sectors))
	if v.Label != "" {
		s.str(" label ").str(v.Label)
	}
	s.str("\r\n")
	if err := s.flush(); err != nil {
		return err
	}

	if err := s.say("Listing root directory:\r\n"); err != nil {
		return err
	}
	var werr error
	err = s.card.IterateDir(v, func(e storage.DirEntry) {
		if werr != nil {
			return
		}
		s.begin().str("\tFound: ").str(e.Name)
		if e.IsDir() {
			s.str(" <DIR>")
		} else {
			s.str(" ").num(uint64(e.Size)).str(" bytes")
		}
		s.str("\r\n")
		werr = s.flush()
	})
	if werr != nil {
		return werr
	}
	if err != nil {
		s.begin().str("Err: ").str(err.Error()).str("\r\n")
		return s.flush()
	}
	return nil
}

func (s *Service) publishCard(v any) {
	if s.conn != nil {
		s.conn.Publish(s.conn.NewMessage(topicCard, v, true))
	}
}

// Messages are built in one buffer sized by MessageLimit; nothing grows it.

func (s *Service) begin() *Service {
	s.msg = s.msg[:0]
	s.over = false
	return s
}

func (s *Service) fits(n int) bool {
	if len(s.msg)+n > cap(s.msg) {
		s.over = true
	}
	return !s.over
}

func (s *Service) str(v string) *Service {
	if s.fits(len(v)) {
		s.msg = append(s.msg, v...)
	}
	return s
}

func (s *Service) num(n uint64) *Service {
	var tmp [20]byte
	d := conv.AppendUint(tmp[:0], n)
	if s.fits(len(d)) {
		s.msg = append(s.msg, d...)
	}
	return s
}

func (s *Service) say(v string) error {
	s.begin().str(v)
	return s.flush()
}

// flush writes the built message. Console errors are reported and dropped:
// a missing host must not stop the listing.
func (s *Service) flush() error {
	if s.over {
		return errcode.New(errcode.OutOfMemory, "logger", "console message exceeds limit")
	}
	if _, err := s.console.Write(s.msg); err != nil {
		println("[logger] console:", err.Error())
	}
	return nil
}
