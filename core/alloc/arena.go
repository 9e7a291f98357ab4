package alloc

import (
	"fmt"

	"github.com/gogpu/framegraph/hal"
	"github.com/gogpu/framegraph/types"
)

// BufferAlignment is the fixed alignment of arena buffer handouts.
const BufferAlignment = 256

// arenaBlock is one fixed-size backing buffer with a bump cursor.
type arenaBlock struct {
	buffer hal.Buffer
	cursor uint64
}

// TransientArena bump-allocates CPU-visible bytes from a list of blocks.
// Nothing is ever freed individually: Cycle moves every block back to the
// available list, implicitly releasing all handouts at once.
type TransientArena struct {
	device    hal.Device
	storage   types.StorageMode
	cache     types.CacheMode
	blockSize uint64

	current   *arenaBlock
	used      []*arenaBlock
	available []*arenaBlock

	serial int
}

// NewTransientArena creates an arena whose blocks default to blockSize
// bytes in the given storage class.
func NewTransientArena(device hal.Device, storage types.StorageMode, cache types.CacheMode, blockSize uint64) *TransientArena {
	return &TransientArena{
		device:    device,
		storage:   storage,
		cache:     cache,
		blockSize: blockSize,
	}
}

// Allocate returns a buffer and an offset within it covering length bytes
// at the requested alignment (at least BufferAlignment).
func (a *TransientArena) Allocate(length, alignment uint64) (hal.Buffer, uint64, error) {
	if alignment < BufferAlignment {
		alignment = BufferAlignment
	}

	if a.current != nil {
		offset := alignUp(a.current.cursor, alignment)
		if offset+length <= a.current.buffer.Length() {
			a.current.cursor = offset + length
			return a.current.buffer, offset, nil
		}
		a.used = append(a.used, a.current)
		a.current = nil
	}

	block, err := a.nextBlock(length)
	if err != nil {
		return nil, 0, err
	}
	a.current = block
	block.cursor = length
	return block.buffer, 0, nil
}

// nextBlock pops an available block large enough for length, or creates one
// sized max(length, blockSize).
func (a *TransientArena) nextBlock(length uint64) (*arenaBlock, error) {
	for i, b := range a.available {
		if b.buffer.Length() >= length {
			last := len(a.available) - 1
			a.available[i] = a.available[last]
			a.available = a.available[:last]
			b.cursor = 0
			return b, nil
		}
	}

	size := a.blockSize
	if length > size {
		size = length
	}
	a.serial++
	buf, err := a.device.NewBuffer(types.BufferDescriptor{
		Label:       fmt.Sprintf("transient-arena-block-%d", a.serial),
		Length:      size,
		StorageMode: a.storage,
		CacheMode:   a.cache,
	})
	if err != nil {
		return nil, err
	}
	return &arenaBlock{buffer: buf}, nil
}

// Cycle moves every block back to the available list. No block is freed.
func (a *TransientArena) Cycle() {
	if a.current != nil {
		a.used = append(a.used, a.current)
		a.current = nil
	}
	a.available = append(a.available, a.used...)
	a.used = a.used[:0]
}

// BlockCount returns the number of blocks the arena owns.
func (a *TransientArena) BlockCount() int {
	n := len(a.used) + len(a.available)
	if a.current != nil {
		n++
	}
	return n
}

// TransientArenaRing is a ring of numFrames arenas. Allocation targets the
// current arena; CycleFrames advances the ring and recycles the blocks of
// the arena it lands on, whose handouts are by then at least numFrames old.
type TransientArenaRing struct {
	arenas []*TransientArena
	index  int
}

// NewTransientArenaRing creates a ring of numFrames arenas.
func NewTransientArenaRing(device hal.Device, numFrames int, storage types.StorageMode, cache types.CacheMode, blockSize uint64) *TransientArenaRing {
	arenas := make([]*TransientArena, numFrames)
	for i := range arenas {
		arenas[i] = NewTransientArena(device, storage, cache, blockSize)
	}
	return &TransientArenaRing{arenas: arenas}
}

// Allocate bump-allocates from the current frame's arena.
func (r *TransientArenaRing) Allocate(length, alignment uint64) (hal.Buffer, uint64, error) {
	return r.arenas[r.index].Allocate(length, alignment)
}

// CycleFrames advances the ring index and recycles the new arena's blocks.
func (r *TransientArenaRing) CycleFrames() {
	r.index = (r.index + 1) % len(r.arenas)
	r.arenas[r.index].Cycle()
}

func alignUp(v, alignment uint64) uint64 {
	return (v + alignment - 1) &^ (alignment - 1)
}
