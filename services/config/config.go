package config

import (
	"bytes"
	"context"
	"embed"
	"io"
	"path"
	"strings"
	"time"

	"hwreg-go/bus"
	"hwreg-go/errcode"
	"hwreg-go/usbserial"
	"hwreg-go/x/mathx"

	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
	"gopkg.in/yaml.v3"
)

const (
	serviceName  = "config"
	configPrefix = "config"
	CtxBoardKey  = "board" // context key carrying the board name
)

//go:embed boards/*.yaml
var boards embed.FS

// USB is the device descriptor the console enumerates with.
type USB struct {
	VID          uint16 `yaml:"vid"`
	PID          uint16 `yaml:"pid"`
	Manufacturer string `yaml:"manufacturer"`
	Product      string `yaml:"product"`
	Serial       string `yaml:"serial"`
}

// Descriptor converts to the driver's descriptor type.
func (u USB) Descriptor() usbserial.Descriptor {
	return usbserial.Descriptor{
		VID:          u.VID,
		PID:          u.PID,
		Manufacturer: u.Manufacturer,
		Product:      u.Product,
		Serial:       u.Serial,
		Class:        usbserial.ClassCDC,
	}
}

// Logger tunes the logger service.
type Logger struct {
	PollMS       int `yaml:"poll_ms"`
	IdleMS       int `yaml:"idle_ms"`
	MessageLimit int `yaml:"message_limit"` // longest console message, in bytes
}

func (l Logger) PollInterval() time.Duration { return time.Duration(l.PollMS) * time.Millisecond }
func (l Logger) IdleInterval() time.Duration { return time.Duration(l.IdleMS) * time.Millisecond }

// Board is one board's configuration.
type Board struct {
	Name     string `yaml:"-"`
	USB      USB    `yaml:"usb"`
	Logger   Logger `yaml:"logger"`
	RxBuffer int    `yaml:"rx_buffer"`
	SPIKHz   uint32 `yaml:"spi_khz"`
}

// Defaults returns the values used for keys a board file leaves out.
func Defaults() Board {
	d := usbserial.DefaultDescriptor
	return Board{
		USB: USB{
			VID:          d.VID,
			PID:          d.PID,
			Manufacturer: d.Manufacturer,
			Product:      d.Product,
			Serial:       d.Serial,
		},
		Logger:   Logger{PollMS: 250, IdleMS: 1000, MessageLimit: 256},
		RxBuffer: usbserial.RxBufferSize,
		SPIKHz:   4000,
	}
}

// Load parses a board file over Defaults. Unknown keys are rejected;
// out-of-range numbers are clamped.
func Load(raw []byte) (Board, error) {
	b := Defaults()
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&b); err != nil && err != io.EOF {
		return Board{}, &errcode.E{C: errcode.InvalidParams, Op: "config.Load", Err: err}
	}
	b.normalise()
	return b, nil
}

func (b *Board) normalise() {
	b.Logger.PollMS = mathx.Clamp(b.Logger.PollMS, 10, 5000)
	b.Logger.IdleMS = mathx.Clamp(b.Logger.IdleMS, 50, 10000)
	b.Logger.MessageLimit = mathx.Clamp(b.Logger.MessageLimit, 32, 4096)
	b.RxBuffer = mathx.Clamp(b.RxBuffer, 1, usbserial.RxBufferSize)
	b.SPIKHz = mathx.Clamp(b.SPIKHz, 100, 24000)
}

// Lookup loads the embedded file of a board.
func Lookup(board string) (Board, error) {
	raw, err := boards.ReadFile(path.Join("boards", board+".yaml"))
	if err != nil {
		return Board{}, errcode.New(errcode.InvalidParams, "config.Lookup", "no embedded config for board "+board)
	}
	b, err := Load(raw)
	b.Name = board
	return b, err
}

// Names lists the embedded boards.
func Names() []string {
	ents, _ := boards.ReadDir("boards")
	out := make([]string, 0, len(ents))
	for _, e := range ents {
		out = append(out, strings.TrimSuffix(e.Name(), ".yaml"))
	}
	return out
}

// Sections splits a board into the retained messages published under
// config/<key>.
func (b Board) Sections() map[string]any {
	return map[string]any{
		"board":     b.Name,
		"usb":       b.USB,
		"logger":    b.Logger,
		"rx_buffer": b.RxBuffer,
		"spi_khz":   b.SPIKHz,
	}
}

// -----------------------------------------------------------------------------
// Config Service
// -----------------------------------------------------------------------------

type Service struct {
	Name string
}

func NewService() *Service { return &Service{Name: serviceName} }

// Publish loads the board named in ctx and publishes every section as a
// retained message, in key order.
func (s *Service) Publish(ctx context.Context, conn *bus.Connection) (Board, error) {
	name, _ := ctx.Value(CtxBoardKey).(string)
	if name == "" {
		return Board{}, errcode.New(errcode.InvalidParams, "config", "missing board name in context")
	}
	b, err := Lookup(name)
	if err != nil {
		return Board{}, err
	}
	secs := b.Sections()
	keys := maps.Keys(secs)
	slices.Sort(keys)
	for _, k := range keys {
		conn.Publish(conn.NewMessage(bus.Topic{configPrefix, k}, secs[k], true))
	}
	return b, nil
}

// Start publishes in the background.
func (s *Service) Start(ctx context.Context, conn *bus.Connection) {
	go func() {
		if _, err := s.Publish(ctx, conn); err != nil {
			println("[config]", err.Error())
		}
	}()
}
