package usbserial

import "hwreg-go/reg"

// Controller register offsets, SAMD21 USB in device mode. Byte registers
// that share a word are described as fields of that word.
const (
	offCTRLA     = 0x00 // CTRLA, SYNCBUSY
	offCTRLB     = 0x08 // CTRLB, DADD
	offINTENSET  = 0x18
	offINTFLAG   = 0x1C
	offEPINTSMRY = 0x20
	offDESCADD   = 0x24

	offEPCFG    = 0x100
	offEPSTATUS = 0x104 // EPSTATUSCLR, EPSTATUSSET, EPSTATUS, EPINTFLAG
	offEPINTEN  = 0x108 // EPINTENCLR, EPINTENSET
	epStride    = 0x20

	// Endpoint descriptor table in RAM, two banks per endpoint.
	descStride = 0x20
	bankStride = 0x10
	offPCKSIZE = 0x04
)

// NumEndpoints is the endpoint count of the controller.
const NumEndpoints = 8

// Words spanned by the register block and the descriptor table.
const (
	BlockWords = (offEPCFG + NumEndpoints*epStride) / 4
	DescWords  = NumEndpoints * descStride / 4
)

// Mode is CTRLA.MODE.
type Mode uint8

const (
	ModeDevice Mode = 0
	ModeHost   Mode = 1
)

// Speed is CTRLB.SPDCONF.
type Speed uint8

const (
	SpeedFull Speed = 0
	SpeedLow  Speed = 1
)

// PacketSize is PCKSIZE.SIZE: 8 << n bytes, 1023 for the largest code.
type PacketSize uint8

const (
	Size8 PacketSize = iota
	Size16
	Size32
	Size64
	Size128
	Size256
	Size512
	Size1023
)

// Bytes is the maximum packet length the code selects.
func (s PacketSize) Bytes() int {
	if s == Size1023 {
		return 1023
	}
	return 8 << s
}

// EPType is one bank's endpoint type in EPCFG.
type EPType uint8

const (
	EPDisabled EPType = iota
	EPControl
	EPIsochronous
	EPBulk
	EPInterrupt
	EPDualBank
)

// Field layout. Pure data; cells are reached through Regs.
var (
	CTRLA = struct {
		SWRST, ENABLE, RUNSTDBY reg.BoolField
		MODE                    reg.EnumField[Mode]
		SYNCBUSY                reg.UintField[uint8]
	}{reg.Flag(0), reg.Flag(1), reg.Flag(2), reg.Enum[Mode](7, 1), reg.Uint[uint8](16, 8)}

	CTRLB = struct {
		DETACH, UPRSM, NREPLY, GNAK reg.BoolField
		SPDCONF                     reg.EnumField[Speed]
		DADD                        reg.UintField[uint8]
		ADDEN                       reg.BoolField
	}{reg.Flag(0), reg.Flag(1), reg.Flag(4), reg.Flag(9), reg.Enum[Speed](2, 2), reg.Uint[uint8](16, 7), reg.Flag(23)}

	// INTFLAG and INTENSET share a layout.
	INT = struct {
		SUSPEND, SOF, EORST, WAKEUP, EORSM, UPRSM, RAMACER, LPMNYET, LPMSUSP reg.BoolField
	}{reg.Flag(0), reg.Flag(2), reg.Flag(3), reg.Flag(4), reg.Flag(5), reg.Flag(6), reg.Flag(7), reg.Flag(8), reg.Flag(9)}

	EPCFG = struct {
		EPTYPE0, EPTYPE1 reg.EnumField[EPType]
	}{reg.Enum[EPType](0, 3), reg.Enum[EPType](4, 3)}

	EPSTATUS = struct {
		CLR, SET                                                   reg.UintField[uint8]
		DTGLOUT, DTGLIN, CURBK, STALLRQ0, STALLRQ1, BK0RDY, BK1RDY reg.BoolField
	}{
		reg.Uint[uint8](0, 8), reg.Uint[uint8](8, 8),
		reg.Flag(16), reg.Flag(17), reg.Flag(18), reg.Flag(20), reg.Flag(21), reg.Flag(22), reg.Flag(23),
	}

	EPINTFLAG = struct {
		TRCPT0, TRCPT1, TRFAIL0, TRFAIL1, RXSTP, STALL0, STALL1 reg.BoolField
	}{reg.Flag(24), reg.Flag(25), reg.Flag(26), reg.Flag(27), reg.Flag(28), reg.Flag(29), reg.Flag(30)}

	PCKSIZE = struct {
		BYTE_COUNT, MULTI_PACKET_SIZE reg.UintField[uint16]
		SIZE                          reg.EnumField[PacketSize]
		AUTO_ZLP                      reg.BoolField
	}{reg.Uint[uint16](0, 14), reg.Uint[uint16](14, 14), reg.Enum[PacketSize](28, 3), reg.Flag(31)}
)

// Regs addresses one controller: its register block and the endpoint
// descriptor table the controller reads from RAM.
type Regs struct {
	ctrl *reg.Block
	desc *reg.Block
}

// NewRegs binds the layout to memory.
func NewRegs(ctrl, desc *reg.Block) Regs { return Regs{ctrl: ctrl, desc: desc} }

// Block returns the controller register block.
func (r Regs) Block() *reg.Block { return r.ctrl }

func (r Regs) CTRLA() *reg.Register32     { return r.ctrl.Reg(offCTRLA) }
func (r Regs) CTRLB() *reg.Register32     { return r.ctrl.Reg(offCTRLB) }
func (r Regs) INTENSET() *reg.Register32  { return r.ctrl.Reg(offINTENSET) }
func (r Regs) INTFLAG() *reg.Register32   { return r.ctrl.Reg(offINTFLAG) }
func (r Regs) EPINTSMRY() *reg.Register32 { return r.ctrl.Reg(offEPINTSMRY) }
func (r Regs) DESCADD() *reg.Register32   { return r.ctrl.Reg(offDESCADD) }

func ep(n int) uintptr {
	if n < 0 || n >= NumEndpoints {
		panic("usbserial: endpoint out of range")
	}
	return uintptr(n) * epStride
}

// EPCFG is the configuration word of endpoint n.
func (r Regs) EPCFG(n int) *reg.Register32 { return r.ctrl.Reg(offEPCFG + ep(n)) }

// EPSTATUS is the status/interrupt-flag word of endpoint n.
func (r Regs) EPSTATUS(n int) *reg.Register32 { return r.ctrl.Reg(offEPSTATUS + ep(n)) }

// EPINTEN is the interrupt-enable word of endpoint n.
func (r Regs) EPINTEN(n int) *reg.Register32 { return r.ctrl.Reg(offEPINTEN + ep(n)) }

// PCKSIZE is the packet-size word of bank 0 (OUT) or 1 (IN) of endpoint n.
func (r Regs) PCKSIZE(n, bank int) *reg.Register32 {
	return r.desc.Reg(ep(n)/epStride*descStride + uintptr(bank&1)*bankStride + offPCKSIZE)
}
