package errcode

// Code is a stable, operator-facing error identifier.
// It is a string newtype, comparable, allocation-free, and implements error.
type Code string

func (c Code) Error() string { return string(c) }

// Canonical codes (short, stable).
const (
	OK            Code = "ok"
	InvalidParams Code = "invalid_params"
	Unsupported   Code = "unsupported"
	Timeout       Code = "timeout"

	// Register layer and register maps.
	OutOfRange      Code = "out_of_range"
	InvalidField    Code = "invalid_field"
	OverlappingBits Code = "overlapping_bits"
	Misaligned      Code = "misaligned"
	Duplicate       Code = "duplicate"
	ReadOnly        Code = "read_only"
	UnknownRegister Code = "unknown_register"
	UnknownField    Code = "unknown_field"
	UnknownPeriph   Code = "unknown_peripheral"
	InvalidMap      Code = "invalid_map"

	// Peripherals (transient; reported, execution continues).
	NoDevice    Code = "no_device"
	NoCard      Code = "no_card"
	InitFailed  Code = "init_failed"
	ReadFailed  Code = "read_failed"
	WriteFailed Code = "write_failed"
	NoVolume    Code = "no_volume"
	Unformatted Code = "unformatted"

	// Fatal.
	OutOfMemory Code = "out_of_memory"

	Error Code = "error" // generic fallback
)

// E keeps context and a cause alongside a Code.
type E struct {
	C   Code
	Op  string
	Msg string
	Err error
}

func (e *E) Error() string {
	s := string(e.C)
	if e.Op != "" {
		s = e.Op + ": " + s
	}
	if e.Msg != "" {
		s += ": " + e.Msg
	}
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}
func (e *E) Unwrap() error { return e.Err }
func (e *E) Code() Code    { return e.C }

// Is lets errors.Is(err, code) match a wrapped Code.
func (e *E) Is(target error) bool {
	c, ok := target.(Code)
	return ok && c == e.C
}

// New builds an *E.
func New(c Code, op, msg string) *E { return &E{C: c, Op: op, Msg: msg} }

// Wrap builds an *E around a cause. A nil cause yields nil.
func Wrap(c Code, op string, err error) error {
	if err == nil {
		return nil
	}
	return &E{C: c, Op: op, Err: err}
}

// Of extracts a Code from an error, defaulting to Error.
func Of(err error) Code {
	if err == nil {
		return OK
	}
	if c, ok := err.(Code); ok {
		return c
	}
	type coder interface{ Code() Code }
	if x, ok := err.(coder); ok {
		return x.Code()
	}
	type unwrapper interface{ Unwrap() error }
	if u, ok := err.(unwrapper); ok {
		if inner := u.Unwrap(); inner != nil {
			return Of(inner)
		}
	}
	return Error
}
