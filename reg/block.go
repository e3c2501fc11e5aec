package reg

import "strconv"

// Block is a peripheral: a named, word-addressed window of registers at a
// base address.
type Block struct {
	Name string
	Base uintptr
	Size uintptr // bytes

	mem []Register32 // non-nil when the block is backed by allocated memory
}

// Map describes a peripheral at a hardware base address.
func Map(name string, base, size uintptr) *Block {
	return &Block{Name: name, Base: base, Size: size}
}

// NewBlock allocates memory for a peripheral of the given number of words.
// Base is only reported, never dereferenced; cells live in the allocation.
// Used for simulated peripherals and register maps on the host.
func NewBlock(name string, base uintptr, words int) *Block {
	return &Block{Name: name, Base: base, Size: uintptr(words) * 4, mem: make([]Register32, words)}
}

// Reg returns the cell at a byte offset from the base. offset must be word
// aligned and inside the block; anything else is a contract violation.
func (b *Block) Reg(offset uintptr) *Register32 {
	if offset&3 != 0 || offset+4 > b.Size {
		panic("reg: " + b.Name + " offset 0x" + strconv.FormatUint(uint64(offset), 16) + " outside block or misaligned")
	}
	if b.mem != nil {
		return &b.mem[offset/4]
	}
	return At(b.Base + offset)
}

// Simulated reports whether the block is backed by allocated memory.
func (b *Block) Simulated() bool { return b.mem != nil }

// Reset stores reset into every word of a simulated block.
func (b *Block) Reset(reset uint32) {
	for i := range b.mem {
		b.mem[i].Set(reset)
	}
}
