package regmap

import (
	"strconv"

	"hwreg-go/errcode"
	"hwreg-go/reg"
)

func invalid(c errcode.Code, where, msg string) error {
	return errcode.New(c, "regmap.Validate", where+": "+msg)
}

// Validate checks the structural rules of a map: unique names, aligned and
// distinct register offsets, field layouts inside 32 bits that do not
// overlap, and enumerated values that fit their field.
func (d *Device) Validate() error {
	if d.Name == "" {
		return invalid(errcode.InvalidMap, "map", "missing device name")
	}
	periphs := map[string]bool{}
	for _, p := range d.Peripherals {
		if p.Name == "" {
			return invalid(errcode.InvalidMap, d.Name, "peripheral without a name")
		}
		if periphs[p.Name] {
			return invalid(errcode.Duplicate, p.Name, "duplicate peripheral")
		}
		periphs[p.Name] = true
		if err := p.validate(); err != nil {
			return err
		}
	}
	return nil
}

func validAccess(a Access) bool { return a == ReadWrite || a == ReadOnly || a == WriteOnly }

func (p *Peripheral) validate() error {
	names := map[string]bool{}
	offsets := map[Number]string{}
	for _, r := range p.Registers {
		where := p.Name + "." + r.Name
		switch {
		case r.Name == "":
			return invalid(errcode.InvalidMap, p.Name, "register without a name")
		case names[r.Name]:
			return invalid(errcode.Duplicate, where, "duplicate register")
		case r.Offset%4 != 0:
			return invalid(errcode.Misaligned, where, "offset 0x"+strconv.FormatUint(uint64(r.Offset), 16)+" not word aligned")
		case offsets[r.Offset] != "":
			return invalid(errcode.Duplicate, where, "offset shared with "+offsets[r.Offset])
		case !validAccess(r.Access):
			return invalid(errcode.InvalidMap, where, "access "+string(r.Access))
		}
		names[r.Name] = true
		offsets[r.Offset] = r.Name
		if err := r.validate(where); err != nil {
			return err
		}
	}
	return nil
}

func (r *Register) validate(where string) error {
	names := map[string]bool{}
	for i, f := range r.Fields {
		fw := where + "." + f.Name
		if f.Name == "" {
			return invalid(errcode.InvalidMap, where, "field without a name")
		}
		if names[f.Name] {
			return invalid(errcode.Duplicate, fw, "duplicate field")
		}
		names[f.Name] = true
		if !validAccess(f.Access) {
			return invalid(errcode.InvalidMap, fw, "access "+string(f.Access))
		}
		if err := reg.CheckLayout(int(f.Offset), int(f.Width)); err != nil {
			return invalid(errcode.InvalidField, fw, err.Error())
		}
		for _, g := range r.Fields[:i] {
			if f.Layout().Overlaps(g.Layout()) {
				return invalid(errcode.OverlappingBits, fw, "overlaps "+g.Name+" "+g.Layout().String())
			}
		}
		limit := f.Layout().Max()
		for sym, v := range f.Values {
			if uint32(v) > limit {
				return invalid(errcode.OutOfRange, fw+"="+sym, "value does not fit the field")
			}
		}
	}
	return nil
}
