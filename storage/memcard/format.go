package memcard

import (
	"encoding/binary"
	"strings"

	"hwreg-go/errcode"
	"hwreg-go/storage"
)

// File is a root directory entry to create. Files get a size but no data.
type File struct {
	Name string // 8.3, case-insensitive
	Size uint32
	Dir  bool
}

// Partition describes one volume to lay down.
type Partition struct {
	Kind    storage.Kind
	Sectors uint32
	Label   string
	Files   []File
}

const (
	firstPartitionLBA = 2048
	numFATs           = 2
	fat16RootEntries  = 512
	fat16SPC          = 4
	fat32SPC          = 1
	fat32Reserved     = 32
	entriesPerSector  = storage.BlockSize / 32

	typeFAT16LBA = 0x0E
	typeFAT32LBA = 0x0C
)

// Format writes an MBR and up to four volumes, back to back from LBA 2048.
func Format(c *Card, parts ...Partition) error {
	const op = "memcard.Format"
	if len(parts) > storage.MaxVolumes {
		return errcode.New(errcode.InvalidParams, op, "more than four partitions")
	}
	mbr := make([]byte, storage.BlockSize)
	lba := uint32(firstPartitionLBA)
	for i, p := range parts {
		if uint64(lba+p.Sectors)*storage.BlockSize > c.size {
			return errcode.New(errcode.OutOfRange, op, "partition beyond end of card")
		}
		ptype := byte(typeFAT32LBA)
		if p.Kind == storage.KindFAT16 {
			ptype = typeFAT16LBA
		}
		e := mbr[446+i*16:]
		e[4] = ptype
		binary.LittleEndian.PutUint32(e[8:], lba)
		binary.LittleEndian.PutUint32(e[12:], p.Sectors)
		if err := formatVolume(c, lba, p); err != nil {
			return err
		}
		lba += p.Sectors
	}
	binary.LittleEndian.PutUint16(mbr[510:], 0xAA55)
	return c.WriteBlock(0, mbr)
}

func formatVolume(c *Card, start uint32, p Partition) error {
	fat16 := p.Kind == storage.KindFAT16
	spc, reserved := uint32(fat32SPC), uint32(fat32Reserved)
	entryBytes := uint32(4)
	if fat16 {
		spc, reserved, entryBytes = fat16SPC, 1, 2
	}
	clusters := p.Sectors / spc
	spf := (clusters*entryBytes+storage.BlockSize-1)/storage.BlockSize + 1

	b := make([]byte, storage.BlockSize)
	b[0], b[1], b[2] = 0xEB, 0x3C, 0x90
	copy(b[3:11], "HWREGGO ")
	binary.LittleEndian.PutUint16(b[0x0B:], storage.BlockSize)
	b[0x0D] = byte(spc)
	binary.LittleEndian.PutUint16(b[0x0E:], uint16(reserved))
	b[0x10] = numFATs
	b[0x15] = 0xF8
	binary.LittleEndian.PutUint32(b[0x1C:], start)
	binary.LittleEndian.PutUint32(b[0x20:], p.Sectors)
	label := pad(p.Label, 11)
	fatStart := start + reserved
	var rootLBAs []uint32

	if fat16 {
		binary.LittleEndian.PutUint16(b[0x11:], fat16RootEntries)
		binary.LittleEndian.PutUint16(b[0x16:], uint16(spf))
		b[0x26] = 0x29
		copy(b[0x2B:], label)
		copy(b[0x36:], "FAT16   ")
		rootStart := fatStart + numFATs*spf
		for s := uint32(0); s < fat16RootEntries*32/storage.BlockSize; s++ {
			rootLBAs = append(rootLBAs, rootStart+s)
		}
	} else {
		binary.LittleEndian.PutUint32(b[0x24:], spf)
		binary.LittleEndian.PutUint32(b[0x2C:], 2)
		binary.LittleEndian.PutUint16(b[0x30:], 1)
		b[0x42] = 0x29
		copy(b[0x47:], label)
		copy(b[0x52:], "FAT32   ")
		// Root directory: one cluster per sector's worth of entries, chained.
		need := (uint32(len(p.Files)) + 1 + entriesPerSector) / entriesPerSector
		dataStart := fatStart + numFATs*spf
		chain := make([]uint32, need)
		for i := range chain {
			chain[i] = 2 + uint32(i)
			rootLBAs = append(rootLBAs, dataStart+uint32(i)*spc)
		}
		if err := writeFAT32(c, fatStart, spf, chain); err != nil {
			return err
		}
	}
	binary.LittleEndian.PutUint16(b[510:], 0xAA55)
	if err := c.WriteBlock(start, b); err != nil {
		return err
	}
	return writeRoot(c, rootLBAs, label, p.Files)
}

func writeFAT32(c *Card, fatStart, spf uint32, chain []uint32) error {
	entries := map[uint32]uint32{0: 0x0FFFFFF8, 1: 0x0FFFFFFF}
	for i, cl := range chain {
		next := uint32(0x0FFFFFFF)
		if i+1 < len(chain) {
			next = chain[i+1]
		}
		entries[cl] = next
	}
	for copyN := uint32(0); copyN < numFATs; copyN++ {
		sectors := map[uint32][]byte{}
		for cl, v := range entries {
			s := cl * 4 / storage.BlockSize
			if sectors[s] == nil {
				sectors[s] = make([]byte, storage.BlockSize)
			}
			binary.LittleEndian.PutUint32(sectors[s][cl*4%storage.BlockSize:], v)
		}
		for s, buf := range sectors {
			if err := c.WriteBlock(fatStart+copyN*spf+s, buf); err != nil {
				return err
			}
		}
	}
	return nil
}

func writeRoot(c *Card, lbas []uint32, label string, files []File) error {
	recs := make([][]byte, 0, len(files)+1)
	if strings.TrimSpace(label) != "" {
		r := make([]byte, 32)
		copy(r, label)
		r[11] = storage.AttrVolumeID
		recs = append(recs, r)
	}
	for i, f := range files {
		r := make([]byte, 32)
		copy(r, shortName(f.Name))
		r[11] = storage.AttrArchive
		if f.Dir {
			r[11] = storage.AttrDirectory
		}
		binary.LittleEndian.PutUint16(r[26:], uint16(3+i))
		binary.LittleEndian.PutUint32(r[28:], f.Size)
		recs = append(recs, r)
	}
	for _, lba := range lbas {
		b := make([]byte, storage.BlockSize)
		for i := 0; i < entriesPerSector && len(recs) > 0; i++ {
			copy(b[i*32:], recs[0])
			recs = recs[1:]
		}
		if err := c.WriteBlock(lba, b); err != nil {
			return err
		}
	}
	if len(recs) > 0 {
		return errcode.New(errcode.OutOfRange, "memcard.Format", "root directory full")
	}
	return nil
}

func pad(s string, n int) string {
	s = strings.ToUpper(s)
	if len(s) > n {
		return s[:n]
	}
	return s + strings.Repeat(" ", n-len(s))
}

func shortName(name string) string {
	base, ext, _ := strings.Cut(name, ".")
	return pad(base, 8) + pad(ext, 3)
}
