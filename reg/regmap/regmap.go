// Package regmap loads register maps: the YAML description of a device's
// peripherals, their registers and the bit fields inside them. Maps are data
// read at run time; nothing is generated from them.
package regmap

import (
	"bytes"
	"io"
	"os"
	"strconv"
	"strings"

	"golang.org/x/exp/slices"
	"gopkg.in/yaml.v3"

	"hwreg-go/errcode"
	"hwreg-go/reg"
)

// Access is the direction a register or field may be used in.
type Access string

const (
	ReadWrite Access = "rw"
	ReadOnly  Access = "ro"
	WriteOnly Access = "wo"
)

// Number is a 32-bit value written in decimal or 0x hex, with optional _
// separators.
type Number uint32

func (n *Number) UnmarshalYAML(node *yaml.Node) error {
	v, err := ParseNumber(node.Value)
	if err != nil {
		return errcode.Wrap(errcode.InvalidMap, "regmap.Number", err)
	}
	*n = Number(v)
	return nil
}

// ParseNumber parses a map number.
func ParseNumber(s string) (uint32, error) {
	v, err := strconv.ParseUint(strings.ReplaceAll(strings.TrimSpace(s), "_", ""), 0, 32)
	return uint32(v), err
}

// Device is a whole register map file.
type Device struct {
	Name        string        `yaml:"device"`
	Description string        `yaml:"description"`
	Peripherals []*Peripheral `yaml:"peripherals"`
}

// Peripheral is a block of registers at a base address.
type Peripheral struct {
	Name        string      `yaml:"name"`
	Base        Number      `yaml:"base"`
	Description string      `yaml:"description"`
	Registers   []*Register `yaml:"registers"`
}

// Register is one 32-bit word of a peripheral.
type Register struct {
	Name        string   `yaml:"name"`
	Offset      Number   `yaml:"offset"`
	Access      Access   `yaml:"access"`
	Reset       Number   `yaml:"reset"`
	Description string   `yaml:"description"`
	Fields      []*Field `yaml:"fields"`
}

// Field is a bit range of a register. Values names its enumerated settings.
type Field struct {
	Name        string            `yaml:"name"`
	Offset      uint8             `yaml:"offset"`
	Width       uint8             `yaml:"width"`
	Access      Access            `yaml:"access"`
	Description string            `yaml:"description"`
	Values      map[string]Number `yaml:"values"`
}

// Load decodes and validates a map.
func Load(r io.Reader) (*Device, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var d Device
	if err := dec.Decode(&d); err != nil {
		return nil, errcode.Wrap(errcode.InvalidMap, "regmap.Load", err)
	}
	d.inherit()
	if err := d.Validate(); err != nil {
		return nil, err
	}
	return &d, nil
}

// Parse loads a map held in memory.
func Parse(b []byte) (*Device, error) { return Load(bytes.NewReader(b)) }

// LoadFile loads a map from disk.
func LoadFile(path string) (*Device, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errcode.Wrap(errcode.InvalidMap, "regmap.LoadFile", err)
	}
	defer f.Close()
	return Load(f)
}

// inherit fills defaulted access modes: registers default to rw and fields
// take their register's mode.
func (d *Device) inherit() {
	for _, p := range d.Peripherals {
		for _, r := range p.Registers {
			if r.Access == "" {
				r.Access = ReadWrite
			}
			for _, f := range r.Fields {
				if f.Access == "" {
					f.Access = r.Access
				}
			}
		}
	}
}

// Peripheral finds a peripheral by name, case-insensitively.
func (d *Device) Peripheral(name string) (*Peripheral, error) {
	for _, p := range d.Peripherals {
		if strings.EqualFold(p.Name, name) {
			return p, nil
		}
	}
	return nil, errcode.New(errcode.UnknownPeriph, "regmap.Peripheral", name)
}

// PeripheralNames lists peripherals sorted by name.
func (d *Device) PeripheralNames() []string {
	names := make([]string, 0, len(d.Peripherals))
	for _, p := range d.Peripherals {
		names = append(names, p.Name)
	}
	slices.Sort(names)
	return names
}

// Lookup resolves "PERIPH.REG".
func (d *Device) Lookup(path string) (*Peripheral, *Register, error) {
	pn, rn, ok := strings.Cut(path, ".")
	if !ok {
		return nil, nil, errcode.New(errcode.InvalidParams, "regmap.Lookup", "want PERIPHERAL.REGISTER, got "+path)
	}
	p, err := d.Peripheral(pn)
	if err != nil {
		return nil, nil, err
	}
	r, err := p.Register(rn)
	if err != nil {
		return nil, nil, err
	}
	return p, r, nil
}

// Register finds a register by name, case-insensitively.
func (p *Peripheral) Register(name string) (*Register, error) {
	for _, r := range p.Registers {
		if strings.EqualFold(r.Name, name) {
			return r, nil
		}
	}
	return nil, errcode.New(errcode.UnknownRegister, "regmap.Register", p.Name+"."+name)
}

// Size is the extent of the peripheral in bytes: one past its last register.
func (p *Peripheral) Size() uintptr {
	var end uintptr
	for _, r := range p.Registers {
		if e := uintptr(r.Offset) + 4; e > end {
			end = e
		}
	}
	return end
}

// SortedRegisters returns registers in offset order.
func (p *Peripheral) SortedRegisters() []*Register {
	rs := slices.Clone(p.Registers)
	slices.SortFunc(rs, func(a, b *Register) bool { return a.Offset < b.Offset })
	return rs
}

// Field finds a field by name, case-insensitively.
func (r *Register) Field(name string) (*Field, error) {
	for _, f := range r.Fields {
		if strings.EqualFold(f.Name, name) {
			return f, nil
		}
	}
	return nil, errcode.New(errcode.UnknownField, "regmap.Field", r.Name+"."+name)
}

// SortedFields returns fields from the least significant bit up.
func (r *Register) SortedFields() []*Field {
	fs := slices.Clone(r.Fields)
	slices.SortFunc(fs, func(a, b *Field) bool { return a.Offset < b.Offset })
	return fs
}

// Layout is the field as a reg descriptor. Valid only after Validate.
func (f *Field) Layout() reg.Field { return reg.Field{Offset: f.Offset, Width: f.Width} }
