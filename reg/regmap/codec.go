package regmap

import (
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"

	"hwreg-go/errcode"
	"hwreg-go/reg"
)

// FieldValue is one decoded field.
type FieldValue struct {
	Field  *Field
	Value  uint32
	Symbol string // enumerated name, when Value has one
}

// Symbol returns the enumerated name of v, if any.
func (f *Field) Symbol(v uint32) (string, bool) {
	for sym, n := range f.Values {
		if uint32(n) == v {
			return sym, true
		}
	}
	return "", false
}

// Symbols lists the enumerated names in value order.
func (f *Field) Symbols() []string {
	syms := maps.Keys(f.Values)
	slices.SortFunc(syms, func(a, b string) bool {
		if f.Values[a] != f.Values[b] {
			return f.Values[a] < f.Values[b]
		}
		return a < b
	})
	return syms
}

// Resolve turns a symbol or a number into a field value.
func (f *Field) Resolve(s string) (uint32, error) {
	for sym, n := range f.Values {
		if sym == s {
			return uint32(n), nil
		}
	}
	v, err := ParseNumber(s)
	if err != nil {
		return 0, errcode.New(errcode.InvalidParams, "regmap.Resolve", f.Name+": not a value or symbol: "+s)
	}
	return v, nil
}

// Decode splits word into its fields, least significant first. Write-only
// fields read back as nothing meaningful and are skipped.
func (r *Register) Decode(word uint32) []FieldValue {
	out := make([]FieldValue, 0, len(r.Fields))
	for _, f := range r.SortedFields() {
		if f.Access == WriteOnly {
			continue
		}
		v := f.Layout().Extract(word)
		sym, _ := f.Symbol(v)
		out = append(out, FieldValue{Field: f, Value: v, Symbol: sym})
	}
	return out
}

// Encode sets one field of word. Values wider than the field are rejected
// rather than truncated, and read-only fields cannot be written.
func (r *Register) Encode(word uint32, field string, value uint32) (uint32, error) {
	f, err := r.Field(field)
	if err != nil {
		return word, err
	}
	if f.Access == ReadOnly || r.Access == ReadOnly {
		return word, errcode.New(errcode.ReadOnly, "regmap.Encode", r.Name+"."+f.Name+" is read-only")
	}
	return f.Layout().InsertChecked(word, value)
}

// Instance is a peripheral bound to memory.
type Instance struct {
	P     *Peripheral
	Block *reg.Block
}

// Bind attaches the peripheral layout to a block.
func (p *Peripheral) Bind(b *reg.Block) *Instance { return &Instance{P: p, Block: b} }

// Simulate allocates a block for the peripheral and loads reset values.
func (p *Peripheral) Simulate() *Instance {
	in := p.Bind(reg.NewBlock(p.Name, uintptr(p.Base), int((p.Size()+3)/4)))
	in.Reset()
	return in
}

// Cell returns the register cell named name.
func (in *Instance) Cell(name string) (*reg.Register32, error) {
	r, err := in.P.Register(name)
	if err != nil {
		return nil, err
	}
	if uintptr(r.Offset)+4 > in.Block.Size {
		return nil, errcode.New(errcode.OutOfRange, "regmap.Cell", r.Name+" outside bound block")
	}
	return in.Block.Reg(uintptr(r.Offset)), nil
}

// Reset stores every register's reset value.
func (in *Instance) Reset() {
	for _, r := range in.P.Registers {
		if uintptr(r.Offset)+4 <= in.Block.Size {
			in.Block.Reg(uintptr(r.Offset)).Set(uint32(r.Reset))
		}
	}
}
