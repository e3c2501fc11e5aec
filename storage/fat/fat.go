// Package fat reads MBR partition tables and FAT16/FAT32 root directories
// from a block device. It is read-only and lists 8.3 names; long file name
// records are skipped.
package fat

import (
	"encoding/binary"
	"strings"

	"hwreg-go/errcode"
	"hwreg-go/storage"
)

const (
	mbrPartitionTable  = 446
	partitionEntrySize = 0x10
	signatureOffset    = 510
	signature          = 0xAA55

	dirEntrySize    = 0x20
	dirEnd          = 0x00
	dirDeleted      = 0xE5
	dirKanjiE5      = 0x05
	attrLongName    = 0x0F
	fat32EOC        = 0x0FFFFFF8 // at or above is end of chain
	fat32Mask       = 0x0FFFFFFF
	bootSigExtended = 0x29
)

// bpb is the part of the BIOS parameter block the reader needs.
type bpb struct {
	bytesPerSector    uint16
	sectorsPerCluster uint8
	reservedSectors   uint16
	numFATs           uint8
	rootEntries       uint16
	totalSectors16    uint16
	sectorsPerFAT16   uint16
	totalSectors32    uint32

	// FAT32 extension
	sectorsPerFAT32 uint32
	rootCluster     uint32

	label string
}

func parseBPB(b []byte) (bpb, bool) {
	if b[0] != 0xEB && b[0] != 0xE9 {
		return bpb{}, false
	}
	if binary.LittleEndian.Uint16(b[signatureOffset:]) != signature {
		return bpb{}, false
	}
	p := bpb{
		bytesPerSector:    binary.LittleEndian.Uint16(b[0x0B:]),
		sectorsPerCluster: b[0x0D],
		reservedSectors:   binary.LittleEndian.Uint16(b[0x0E:]),
		numFATs:           b[0x10],
		rootEntries:       binary.LittleEndian.Uint16(b[0x11:]),
		totalSectors16:    binary.LittleEndian.Uint16(b[0x13:]),
		sectorsPerFAT16:   binary.LittleEndian.Uint16(b[0x16:]),
		totalSectors32:    binary.LittleEndian.Uint32(b[0x20:]),
	}
	if p.isFAT16() {
		if b[0x26] == bootSigExtended {
			p.label = trimName(b[0x2B : 0x2B+11])
		}
	} else {
		p.sectorsPerFAT32 = binary.LittleEndian.Uint32(b[0x24:])
		p.rootCluster = binary.LittleEndian.Uint32(b[0x2C:])
		if b[0x42] == bootSigExtended {
			p.label = trimName(b[0x47 : 0x47+11])
		}
	}
	return p, true
}

// A FAT16 volume has a fixed root directory region; FAT32 keeps the root in
// a cluster chain and reports zero root entries.
func (p bpb) isFAT16() bool { return p.sectorsPerFAT16 != 0 && p.rootEntries != 0 }

func (p bpb) sectorsPerFAT() uint32 {
	if p.isFAT16() {
		return uint32(p.sectorsPerFAT16)
	}
	return p.sectorsPerFAT32
}

func (p bpb) totalSectors() uint32 {
	if p.totalSectors16 != 0 {
		return uint32(p.totalSectors16)
	}
	return p.totalSectors32
}

// volume is the geometry of an opened partition, in absolute LBAs.
type volume struct {
	info storage.Volume

	fatStart     uint32
	rootStart    uint32 // FAT16 only
	rootSectors  uint32 // FAT16 only
	dataStart    uint32
	spc          uint32
	rootCluster  uint32 // FAT32 only
	clusterCount uint32
}

func (v *volume) clusterLBA(cl uint32) uint32 { return v.dataStart + (cl-2)*v.spc }

// Card lists volumes on a block device. It implements storage.Device.
type Card struct {
	dev  storage.BlockDevice
	buf  [storage.BlockSize]byte
	vols [storage.MaxVolumes]*volume
}

// New wraps dev. Nothing is read until Init.
func New(dev storage.BlockDevice) *Card { return &Card{dev: dev} }

// Init initialises the underlying card.
func (c *Card) Init() error {
	if err := c.dev.Init(); err != nil {
		return errcode.Wrap(errcode.InitFailed, "fat.Init", err)
	}
	return nil
}

// SizeBytes reports the card capacity.
func (c *Card) SizeBytes() (uint64, error) { return c.dev.SizeBytes() }

func (c *Card) read(lba uint32, op string) error {
	if err := c.dev.ReadBlock(lba, c.buf[:]); err != nil {
		return errcode.Wrap(errcode.ReadFailed, op, err)
	}
	return nil
}

// OpenVolume reads partition idx from the MBR and its boot sector.
func (c *Card) OpenVolume(idx int) (storage.Volume, error) {
	const op = "fat.OpenVolume"
	if idx < 0 || idx >= storage.MaxVolumes {
		return storage.Volume{}, errcode.New(errcode.InvalidParams, op, "volume index out of range")
	}
	if err := c.read(0, op); err != nil {
		return storage.Volume{}, err
	}
	if binary.LittleEndian.Uint16(c.buf[signatureOffset:]) != signature {
		return storage.Volume{}, errcode.New(errcode.Unformatted, op, "no MBR signature")
	}
	e := c.buf[mbrPartitionTable+idx*partitionEntrySize:]
	ptype := e[4]
	start := binary.LittleEndian.Uint32(e[8:])
	sectors := binary.LittleEndian.Uint32(e[12:])
	if ptype == 0 || sectors == 0 {
		return storage.Volume{}, errcode.New(errcode.NoVolume, op, "partition "+string(rune('0'+idx))+" unused")
	}

	if err := c.read(start, op); err != nil {
		return storage.Volume{}, err
	}
	p, ok := parseBPB(c.buf[:])
	if !ok {
		return storage.Volume{}, errcode.New(errcode.Unformatted, op, "no boot sector")
	}
	if p.bytesPerSector != storage.BlockSize {
		return storage.Volume{}, errcode.New(errcode.Unsupported, op, "sector size is not 512")
	}
	if p.sectorsPerCluster == 0 || p.numFATs == 0 || p.sectorsPerFAT() == 0 {
		return storage.Volume{}, errcode.New(errcode.Unformatted, op, "bad BIOS parameter block")
	}

	v := &volume{
		fatStart: start + uint32(p.reservedSectors),
		spc:      uint32(p.sectorsPerCluster),
	}
	fats := uint32(p.numFATs) * p.sectorsPerFAT()
	kind := storage.KindFAT32
	if p.isFAT16() {
		kind = storage.KindFAT16
		v.rootStart = v.fatStart + fats
		v.rootSectors = (uint32(p.rootEntries)*dirEntrySize + storage.BlockSize - 1) / storage.BlockSize
		v.dataStart = v.rootStart + v.rootSectors
	} else {
		v.dataStart = v.fatStart + fats
		v.rootCluster = p.rootCluster
	}
	used := v.dataStart - start
	if total := p.totalSectors(); total > used {
		v.clusterCount = (total - used) / v.spc
	}
	v.info = storage.Volume{
		Index:    idx,
		PartType: ptype,
		Kind:     kind,
		StartLBA: start,
		Sectors:  sectors,
		Label:    p.label,
	}
	c.vols[idx] = v
	return v.info, nil
}

// IterateDir walks the root directory of an opened volume.
func (c *Card) IterateDir(vol storage.Volume, fn func(storage.DirEntry)) error {
	const op = "fat.IterateDir"
	if vol.Index < 0 || vol.Index >= storage.MaxVolumes || c.vols[vol.Index] == nil {
		return errcode.New(errcode.NoVolume, op, "volume not open")
	}
	v := c.vols[vol.Index]

	if vol.Kind == storage.KindFAT16 {
		for s := uint32(0); s < v.rootSectors; s++ {
			if err := c.read(v.rootStart+s, op); err != nil {
				return err
			}
			if walkSector(c.buf[:], fn) {
				return nil
			}
		}
		return nil
	}

	cl := v.rootCluster
	for hops := uint32(0); cl >= 2 && cl < fat32EOC; hops++ {
		if hops > v.clusterCount {
			return errcode.New(errcode.ReadFailed, op, "cluster chain loops")
		}
		for s := uint32(0); s < v.spc; s++ {
			if err := c.read(v.clusterLBA(cl)+s, op); err != nil {
				return err
			}
			if walkSector(c.buf[:], fn) {
				return nil
			}
		}
		next, err := c.nextCluster(v, cl)
		if err != nil {
			return err
		}
		cl = next
	}
	return nil
}

func (c *Card) nextCluster(v *volume, cl uint32) (uint32, error) {
	off := cl * 4
	if err := c.read(v.fatStart+off/storage.BlockSize, "fat.nextCluster"); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(c.buf[off%storage.BlockSize:]) & fat32Mask, nil
}

// walkSector reports entries in one directory sector and whether the end
// marker was reached.
func walkSector(b []byte, fn func(storage.DirEntry)) bool {
	for i := 0; i+dirEntrySize <= len(b); i += dirEntrySize {
		e := b[i : i+dirEntrySize]
		switch {
		case e[0] == dirEnd:
			return true
		case e[0] == dirDeleted:
			continue
		case e[11]&attrLongName == attrLongName:
			continue
		case e[11]&storage.AttrVolumeID != 0:
			continue
		}
		fn(storage.DirEntry{
			Name:    shortName(e[0:11]),
			Attr:    e[11],
			Size:    binary.LittleEndian.Uint32(e[28:]),
			Cluster: uint32(binary.LittleEndian.Uint16(e[20:]))<<16 | uint32(binary.LittleEndian.Uint16(e[26:])),
		})
	}
	return false
}

func shortName(raw []byte) string {
	var n [11]byte
	copy(n[:], raw)
	if n[0] == dirKanjiE5 {
		n[0] = dirDeleted
	}
	name := trimName(n[0:8])
	if ext := trimName(n[8:11]); ext != "" {
		return name + "." + ext
	}
	return name
}

func trimName(b []byte) string { return strings.TrimRight(string(b), " \x00") }
