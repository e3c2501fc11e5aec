package regmap

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"hwreg-go/errcode"
)

const tiny = `
device: test
peripherals:
  - name: TC
    base: 0x4200_2C00
    registers:
      - name: CTRL
        offset: 0x0
        reset: 0x0000_00FF
        fields:
          - {name: LO, offset: 0, width: 4}
          - {name: HI, offset: 4, width: 4}
          - name: MODE
            offset: 8
            width: 2
            values: {COUNT16: 0, COUNT8: 1, COUNT32: 2}
          - {name: BUSY, offset: 31, width: 1, access: ro}
      - name: STATUS
        offset: 0x4
        access: ro
        fields:
          - {name: OVF, offset: 0, width: 1}
      - name: CLR
        offset: 0x8
        access: wo
        fields:
          - {name: CLR, offset: 0, width: 8}
`

func mustParse(t *testing.T, src string) *Device {
	t.Helper()
	d, err := Parse([]byte(src))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	return d
}

func TestDecodeNamesEnumeratedValues(t *testing.T) {
	d := mustParse(t, tiny)
	_, r, err := d.Lookup("tc.ctrl")
	if err != nil {
		t.Fatal(err)
	}
	fv := r.Decode(0x8000_02FF)
	if len(fv) != 4 {
		t.Fatalf("decoded %d fields", len(fv))
	}
	want := []struct {
		name string
		v    uint32
		sym  string
	}{{"LO", 0xF, ""}, {"HI", 0xF, ""}, {"MODE", 2, "COUNT32"}, {"BUSY", 1, ""}}
	for i, w := range want {
		if fv[i].Field.Name != w.name || fv[i].Value != w.v || fv[i].Symbol != w.sym {
			t.Fatalf("field %d = %s=%d(%s), want %+v", i, fv[i].Field.Name, fv[i].Value, fv[i].Symbol, w)
		}
	}
}

func TestEncode(t *testing.T) {
	d := mustParse(t, tiny)
	_, r, _ := d.Lookup("TC.CTRL")

	// The nibble scenario: HI <- 3 on 0xFF gives 0x3F.
	word, err := r.Encode(0x0000_00FF, "HI", 0x3)
	if err != nil || word != 0x3F {
		t.Fatalf("Encode = %#x, %v", word, err)
	}
	if _, err := r.Encode(0, "HI", 0x10); !errors.Is(err, errcode.OutOfRange) {
		t.Fatalf("too wide: %v", err)
	}
	if _, err := r.Encode(0, "BUSY", 1); !errors.Is(err, errcode.ReadOnly) {
		t.Fatalf("read-only field: %v", err)
	}
	if _, err := r.Encode(0, "NOPE", 1); !errors.Is(err, errcode.UnknownField) {
		t.Fatalf("unknown field: %v", err)
	}
	_, st, _ := d.Lookup("TC.STATUS")
	if _, err := st.Encode(0, "OVF", 1); !errors.Is(err, errcode.ReadOnly) {
		t.Fatalf("read-only register: %v", err)
	}
	f, _ := r.Field("mode")
	if v, err := f.Resolve("COUNT8"); err != nil || v != 1 {
		t.Fatalf("Resolve symbol = %d, %v", v, err)
	}
	if v, err := f.Resolve("0b10"); err != nil || v != 2 {
		t.Fatalf("Resolve number = %d, %v", v, err)
	}
	if strings.Join(f.Symbols(), ",") != "COUNT16,COUNT8,COUNT32" {
		t.Fatalf("Symbols = %v", f.Symbols())
	}
}

func TestWriteOnlyFieldsAreNotDecoded(t *testing.T) {
	d := mustParse(t, tiny)
	_, r, _ := d.Lookup("TC.CLR")
	if fv := r.Decode(0xFF); len(fv) != 0 {
		t.Fatalf("decoded write-only field: %+v", fv)
	}
}

func TestSimulateLoadsResetValues(t *testing.T) {
	d := mustParse(t, tiny)
	p, _ := d.Peripheral("TC")
	in := p.Simulate()
	c, err := in.Cell("CTRL")
	if err != nil || c.Get() != 0xFF {
		t.Fatalf("CTRL reset = %v, %v", c, err)
	}
	if in.Block.Base != 0x4200_2C00 || p.Size() != 12 {
		t.Fatalf("base %#x size %d", in.Block.Base, p.Size())
	}
	if _, err := in.Cell("MISSING"); !errors.Is(err, errcode.UnknownRegister) {
		t.Fatalf("missing register: %v", err)
	}
}

func TestValidateRejects(t *testing.T) {
	cases := []struct {
		name string
		regs string
		want errcode.Code
	}{
		{"misaligned", `[{name: A, offset: 0x2}]`, errcode.Misaligned},
		{"same offset", `[{name: A, offset: 0x4}, {name: B, offset: 0x4}]`, errcode.Duplicate},
		{"same name", `[{name: A, offset: 0x0}, {name: A, offset: 0x4}]`, errcode.Duplicate},
		{"too wide", `[{name: A, offset: 0, fields: [{name: F, offset: 30, width: 3}]}]`, errcode.InvalidField},
		{"zero width", `[{name: A, offset: 0, fields: [{name: F, offset: 0, width: 0}]}]`, errcode.InvalidField},
		{"overlap", `[{name: A, offset: 0, fields: [{name: F, offset: 0, width: 4}, {name: G, offset: 3, width: 2}]}]`, errcode.OverlappingBits},
		{"dup field", `[{name: A, offset: 0, fields: [{name: F, offset: 0, width: 1}, {name: F, offset: 1, width: 1}]}]`, errcode.Duplicate},
		{"enum too big", `[{name: A, offset: 0, fields: [{name: F, offset: 0, width: 1, values: {TWO: 2}}]}]`, errcode.OutOfRange},
		{"bad access", `[{name: A, offset: 0, access: rx}]`, errcode.InvalidMap},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			src := "device: x\nperipherals:\n  - name: P\n    base: 0\n    registers: " + tc.regs + "\n"
			_, err := Parse([]byte(src))
			if errcode.Of(err) != tc.want {
				t.Fatalf("err = %v, want %s", err, tc.want)
			}
		})
	}
}

func TestLoadRejectsUnknownKeysAndBadNumbers(t *testing.T) {
	if _, err := Parse([]byte("device: x\nbogus: 1\n")); !errors.Is(err, errcode.InvalidMap) {
		t.Fatalf("unknown key: %v", err)
	}
	if _, err := Parse([]byte("device: x\nperipherals: [{name: P, base: 0xZZ}]\n")); !errors.Is(err, errcode.InvalidMap) {
		t.Fatalf("bad number: %v", err)
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tc.yaml")
	if err := os.WriteFile(path, []byte(tiny), 0o644); err != nil {
		t.Fatal(err)
	}
	d, err := LoadFile(path)
	if err != nil || d.Name != "test" {
		t.Fatalf("LoadFile: %v", err)
	}
	if _, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("missing file loaded")
	}
}

func TestBuiltinCatalog(t *testing.T) {
	names := CatalogNames()
	if strings.Join(names, ",") != "samd21_port,samd21_usb" {
		t.Fatalf("catalog = %v", names)
	}
	d, err := Builtin("samd21_usb")
	if err != nil {
		t.Fatal(err)
	}
	_, r, err := d.Lookup("USB.INTFLAG")
	if err != nil {
		t.Fatal(err)
	}
	f, err := r.Field("EORST")
	if err != nil || f.Offset != 3 || f.Access != ReadWrite {
		t.Fatalf("EORST = %+v, %v", f, err)
	}
	if _, err := Builtin("nope"); !errors.Is(err, errcode.InvalidParams) {
		t.Fatalf("unknown builtin: %v", err)
	}
}
