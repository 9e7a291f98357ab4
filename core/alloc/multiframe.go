package alloc

import (
	"fmt"
	"log/slog"

	"github.com/gogpu/framegraph/hal"
	"github.com/gogpu/framegraph/types"
)

// MultiFrameHeapAllocator rotates through N independent single-frame heap
// allocators, one per in-flight frame. A slot is only reused once the ring
// has gone all the way around, by which point the GPU has drained the work
// that last touched it, so collections carry no fence waits from earlier
// frames; only deposits made earlier in the same frame can add waits. This trades
// memory for eliminating intra-stream hazards on small private resources.
type MultiFrameHeapAllocator struct {
	allocators []*HeapAllocator
	index      int
}

// NewMultiFrameHeapAllocator creates numFrames rotating heap allocators.
func NewMultiFrameHeapAllocator(device hal.Device, pool *FencePool, label string, numFrames int, heapSize uint64, storage types.StorageMode, cache types.CacheMode) *MultiFrameHeapAllocator {
	if numFrames < 1 {
		numFrames = 1
	}
	allocators := make([]*HeapAllocator, numFrames)
	for i := range allocators {
		allocators[i] = NewHeapAllocator(device, pool,
			fmt.Sprintf("%s-%d", label, i), heapSize, storage, cache)
	}
	return &MultiFrameHeapAllocator{allocators: allocators}
}

// CollectBuffer allocates from the current frame's allocator. Waits recorded
// in earlier frames have been expired by the rotation.
func (a *MultiFrameHeapAllocator) CollectBuffer(desc types.BufferDescriptor) (hal.Buffer, []*Fence, error) {
	return a.allocators[a.index].CollectBuffer(desc)
}

// CollectTexture allocates from the current frame's allocator.
func (a *MultiFrameHeapAllocator) CollectTexture(desc types.TextureDescriptor) (hal.Texture, []*Fence, error) {
	return a.allocators[a.index].CollectTexture(desc)
}

// DepositBuffer returns a buffer to the current frame's allocator.
func (a *MultiFrameHeapAllocator) DepositBuffer(b hal.Buffer, writeWait []*Fence) error {
	return a.allocators[a.index].DepositBuffer(b, writeWait)
}

// DepositTexture returns a texture to the current frame's allocator.
func (a *MultiFrameHeapAllocator) DepositTexture(t hal.Texture, writeWait []*Fence) error {
	return a.allocators[a.index].DepositTexture(t, writeWait)
}

// SetPurgeableState applies to every rotating allocator.
func (a *MultiFrameHeapAllocator) SetPurgeableState(s hal.PurgeableState) {
	for _, inner := range a.allocators {
		inner.SetPurgeableState(s)
	}
}

// SetLogger applies to every rotating allocator.
func (a *MultiFrameHeapAllocator) SetLogger(l *slog.Logger) {
	for _, inner := range a.allocators {
		inner.SetLogger(l)
	}
}

// CycleFrames rotates to the next allocator. The work the new allocator's
// fences covered is at least numFrames old, so they are expired rather than
// waited on.
func (a *MultiFrameHeapAllocator) CycleFrames() {
	a.index = (a.index + 1) % len(a.allocators)
	a.allocators[a.index].expireFences()
	a.allocators[a.index].CycleFrames()
}

// FrameCount returns the ring depth.
func (a *MultiFrameHeapAllocator) FrameCount() int { return len(a.allocators) }

// Index returns the current ring position, for tests.
func (a *MultiFrameHeapAllocator) Index() int { return a.index }
