package fat

import (
	"errors"
	"strconv"
	"testing"

	"hwreg-go/errcode"
	"hwreg-go/storage"
	"hwreg-go/storage/memcard"
)

func formatted(t *testing.T, parts ...memcard.Partition) (*memcard.Card, *Card) {
	t.Helper()
	mc := memcard.New(64 << 20)
	if err := memcard.Format(mc, parts...); err != nil {
		t.Fatalf("Format: %v", err)
	}
	c := New(mc)
	if err := c.Init(); err != nil {
		t.Fatalf("Init: %v", err)
	}
	return mc, c
}

func list(t *testing.T, c *Card, v storage.Volume) []storage.DirEntry {
	t.Helper()
	var got []storage.DirEntry
	if err := c.IterateDir(v, func(e storage.DirEntry) { got = append(got, e) }); err != nil {
		t.Fatalf("IterateDir: %v", err)
	}
	return got
}

func TestFAT16RootListing(t *testing.T) {
	_, c := formatted(t, memcard.Partition{
		Kind:    storage.KindFAT16,
		Sectors: 32768,
		Label:   "LOGS",
		Files: []memcard.File{
			{Name: "readme.txt", Size: 120},
			{Name: "data", Dir: true},
			{Name: "LOG00001.CSV", Size: 4096},
		},
	})
	v, err := c.OpenVolume(0)
	if err != nil {
		t.Fatalf("OpenVolume: %v", err)
	}
	if v.Kind != storage.KindFAT16 || v.StartLBA != 2048 || v.Sectors != 32768 || v.Label != "LOGS" {
		t.Fatalf("volume = %+v", v)
	}
	got := list(t, c, v)
	want := []string{"README.TXT", "DATA", "LOG00001.CSV"}
	if len(got) != len(want) {
		t.Fatalf("entries = %+v", got)
	}
	for i, w := range want {
		if got[i].Name != w {
			t.Fatalf("entry %d = %q, want %q", i, got[i].Name, w)
		}
	}
	if !got[1].IsDir() || got[0].IsDir() || got[2].Size != 4096 {
		t.Fatalf("attributes wrong: %+v", got)
	}
}

func TestFAT32RootFollowsClusterChain(t *testing.T) {
	var files []memcard.File
	for i := 0; i < 40; i++ {
		files = append(files, memcard.File{Name: "F" + strconv.Itoa(i) + ".BIN", Size: uint32(i)})
	}
	_, c := formatted(t,
		memcard.Partition{Kind: storage.KindFAT16, Sectors: 16384},
		memcard.Partition{Kind: storage.KindFAT32, Sectors: 70000, Label: "BIG", Files: files},
	)
	v, err := c.OpenVolume(1)
	if err != nil {
		t.Fatalf("OpenVolume: %v", err)
	}
	if v.Kind != storage.KindFAT32 || v.StartLBA != 2048+16384 {
		t.Fatalf("volume = %+v", v)
	}
	got := list(t, c, v)
	if len(got) != 40 {
		t.Fatalf("listed %d entries, want 40", len(got))
	}
	if got[39].Name != "F39.BIN" || got[39].Size != 39 {
		t.Fatalf("last entry = %+v", got[39])
	}
}

func TestMissingVolumes(t *testing.T) {
	_, c := formatted(t, memcard.Partition{Kind: storage.KindFAT16, Sectors: 16384})
	for idx := 1; idx < storage.MaxVolumes; idx++ {
		if _, err := c.OpenVolume(idx); !errors.Is(err, errcode.NoVolume) {
			t.Fatalf("volume %d: %v", idx, err)
		}
	}
	if _, err := c.OpenVolume(4); !errors.Is(err, errcode.InvalidParams) {
		t.Fatalf("volume 4: %v", err)
	}
	if err := c.IterateDir(storage.Volume{Index: 2}, func(storage.DirEntry) {}); !errors.Is(err, errcode.NoVolume) {
		t.Fatalf("IterateDir on unopened volume: %v", err)
	}
}

func TestBlankCardIsUnformatted(t *testing.T) {
	mc := memcard.New(1 << 20)
	c := New(mc)
	if err := c.Init(); err != nil {
		t.Fatal(err)
	}
	if _, err := c.OpenVolume(0); !errors.Is(err, errcode.Unformatted) {
		t.Fatalf("err = %v", err)
	}
}

func TestInitAndReadFailures(t *testing.T) {
	mc := memcard.New(64 << 20)
	if err := memcard.Format(mc, memcard.Partition{Kind: storage.KindFAT16, Sectors: 16384}); err != nil {
		t.Fatal(err)
	}
	mc.FailInit(errors.New("CMD0 no response"))
	c := New(mc)
	err := c.Init()
	if !errors.Is(err, errcode.InitFailed) {
		t.Fatalf("Init err = %v", err)
	}
	mc.FailInit(nil)
	if err := c.Init(); err != nil {
		t.Fatal(err)
	}
	mc.FailRead(2048, errors.New("crc"))
	if _, err := c.OpenVolume(0); !errors.Is(err, errcode.ReadFailed) {
		t.Fatalf("OpenVolume err = %v", err)
	}
}

func TestShortNameKanjiEscape(t *testing.T) {
	raw := []byte{0x05, 'A', 'B', ' ', ' ', ' ', ' ', ' ', 'T', 'X', 'T'}
	if got := shortName(raw); got != "\xe5AB.TXT" {
		t.Fatalf("shortName = %q", got)
	}
}
