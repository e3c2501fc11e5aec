package usbserial

import (
	"hwreg-go/critical"
	"hwreg-go/errcode"
)

// Writer sends bytes to the port of a Context. Each chunk the port accepts
// is written inside its own critical section, so the handler can run
// between chunks.
type Writer struct {
	ctx *Context
}

// NewWriter returns a writer over ctx.
func NewWriter(ctx *Context) *Writer { return &Writer{ctx: ctx} }

// Write blocks until every byte of p has been accepted. Port errors count
// as zero bytes written and are reported on the context, not returned.
// The only error is errcode.NoDevice when no port was installed.
func (w *Writer) Write(p []byte) (int, error) {
	written := 0
	for written < len(p) {
		var err error
		w.ctx.sec.Do(func(tok critical.Token) {
			port, ok := w.ctx.port.Get(tok)
			if !ok {
				err = errcode.New(errcode.NoDevice, "usbserial.Write", "no port installed")
				return
			}
			n, werr := port.Write(p[written:])
			if werr != nil {
				w.ctx.fault(errcode.Wrap(errcode.WriteFailed, "usbserial.Write", werr))
				n = 0
			}
			written += n
		})
		if err != nil {
			return written, err
		}
	}
	return written, nil
}

// WriteString writes s.
func (w *Writer) WriteString(s string) (int, error) { return w.Write([]byte(s)) }
