// Package storage describes the block storage the logger lists: a card that
// is initialised once, reports its capacity, and exposes up to four
// partitions whose root directories can be walked.
package storage

// MaxVolumes is the number of primary partitions an MBR can describe.
const MaxVolumes = 4

// BlockSize is the addressable unit of a card.
const BlockSize = 512

// Device is an initialised-on-demand card with a partition table.
type Device interface {
	// Init brings the card to a state where it answers reads.
	Init() error
	// SizeBytes is the raw capacity of the card.
	SizeBytes() (uint64, error)
	// OpenVolume opens partition idx, 0 through MaxVolumes-1.
	OpenVolume(idx int) (Volume, error)
	// IterateDir calls fn for each entry of the volume's root directory.
	IterateDir(v Volume, fn func(DirEntry)) error
}

// BlockDevice reads fixed-size blocks. Card drivers implement it; the fat
// package turns one into a Device.
type BlockDevice interface {
	Init() error
	SizeBytes() (uint64, error)
	ReadBlock(lba uint32, dst []byte) error
}

// Kind is the filesystem found on a volume.
type Kind uint8

const (
	KindUnknown Kind = iota
	KindFAT16
	KindFAT32
)

func (k Kind) String() string {
	switch k {
	case KindFAT16:
		return "FAT16"
	case KindFAT32:
		return "FAT32"
	}
	return "unknown"
}

// Volume is an opened partition.
type Volume struct {
	Index    int
	PartType uint8 // MBR partition type byte
	Kind     Kind
	StartLBA uint32
	Sectors  uint32
	Label    string
}

// Attribute bits of a directory entry.
const (
	AttrReadOnly  = 0x01
	AttrHidden    = 0x02
	AttrSystem    = 0x04
	AttrVolumeID  = 0x08
	AttrDirectory = 0x10
	AttrArchive   = 0x20
)

// DirEntry is one root directory record, 8.3 name only.
type DirEntry struct {
	Name    string
	Size    uint32
	Attr    uint8
	Cluster uint32
}

// IsDir reports whether the entry is a subdirectory.
func (e DirEntry) IsDir() bool { return e.Attr&AttrDirectory != 0 }
