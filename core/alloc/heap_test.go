package alloc

import (
	"testing"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/framegraph/hal/noop"
	"github.com/gogpu/framegraph/types"
)

func testTexDesc(w, h uint32) types.TextureDescriptor {
	return types.TextureDescriptor{
		TextureDescriptor: gputypes.TextureDescriptor{
			Size:          gputypes.Extent3D{Width: w, Height: h, DepthOrArrayLayers: 1},
			MipLevelCount: 1,
			SampleCount:   1,
			Dimension:     gputypes.TextureDimension2D,
			Format:        gputypes.TextureFormatRGBA8Unorm,
			Usage:         gputypes.TextureUsageRenderAttachment,
		},
		StorageMode: types.StoragePrivate,
	}
}

func privateBuffer(length uint64) types.BufferDescriptor {
	return types.BufferDescriptor{Length: length, StorageMode: types.StoragePrivate}
}

func newTestHeapAllocator(t *testing.T) (*HeapAllocator, *FencePool) {
	t.Helper()
	dev := noop.NewDevice()
	pool := NewFencePool(dev)
	return NewHeapAllocator(dev, pool, "test", 1<<20, types.StoragePrivate, types.CacheDefault), pool
}

func TestHeapAllocator_ReusesAliasableMemory(t *testing.T) {
	a, _ := newTestHeapAllocator(t)

	b1, waits, err := a.CollectBuffer(privateBuffer(4096))
	if err != nil {
		t.Fatalf("CollectBuffer() error = %v", err)
	}
	if len(waits) != 0 {
		t.Errorf("fresh allocation returned %d waits, want 0", len(waits))
	}

	if err := a.DepositBuffer(b1, nil); err != nil {
		t.Fatalf("DepositBuffer() error = %v", err)
	}

	// Same descriptor, nothing in flight: the deposited buffer is legal
	// to reuse.
	b2, _, err := a.CollectBuffer(privateBuffer(4096))
	if err != nil {
		t.Fatalf("CollectBuffer() error = %v", err)
	}
	if b2 != b1 {
		t.Error("expected reuse of the deposited buffer")
	}
}

func TestHeapAllocator_InFlightIntervalsStayDisjoint(t *testing.T) {
	a, _ := newTestHeapAllocator(t)

	// Allocate three overlapping-lifetime buffers, then cycle them
	// through deposits and reuses in a pattern that exercises interval
	// assignment.
	var live []interface {
		Length() uint64
		Contents() []byte
	}
	for i := 0; i < 3; i++ {
		b, _, err := a.CollectBuffer(privateBuffer(4096))
		if err != nil {
			t.Fatalf("CollectBuffer() error = %v", err)
		}
		live = append(live, b)
		assertDisjointIntervals(t, a)
	}

	if err := a.DepositBuffer(live[1], nil); err != nil {
		t.Fatalf("DepositBuffer() error = %v", err)
	}
	assertDisjointIntervals(t, a)

	// live[1] cannot be reused while live[0] and live[2] are in flight:
	// its interval overlaps theirs. A fresh buffer must be materialised
	// instead.
	b, _, err := a.CollectBuffer(privateBuffer(4096))
	if err != nil {
		t.Fatalf("CollectBuffer() error = %v", err)
	}
	if b == live[1] {
		t.Fatal("reused a buffer whose interval overlaps in-flight resources")
	}
	assertDisjointIntervals(t, a)
}

func assertDisjointIntervals(t *testing.T, a *HeapAllocator) {
	t.Helper()
	intervals := a.InUseIntervals()
	for i := 0; i < len(intervals); i++ {
		for j := i + 1; j < len(intervals); j++ {
			x, y := intervals[i], intervals[j]
			if !(x[0] > y[1] || y[0] > x[1]) {
				t.Fatalf("in-use intervals overlap: %v and %v", x, y)
			}
		}
	}
}

func TestHeapAllocator_FencesTravelThroughAliasing(t *testing.T) {
	a, pool := newTestHeapAllocator(t)

	// Two resources with overlapping lifetimes in frame 0.
	bufA, _, err := a.CollectBuffer(privateBuffer(4096))
	if err != nil {
		t.Fatalf("CollectBuffer(A) error = %v", err)
	}
	bufB, _, err := a.CollectBuffer(privateBuffer(8192))
	if err != nil {
		t.Fatalf("CollectBuffer(B) error = %v", err)
	}

	fenceA, fenceB := pool.Allocate(), pool.Allocate()
	if err := a.DepositBuffer(bufA, []*Fence{fenceA}); err != nil {
		t.Fatalf("DepositBuffer(A) error = %v", err)
	}
	if err := a.DepositBuffer(bufB, []*Fence{fenceB}); err != nil {
		t.Fatalf("DepositBuffer(B) error = %v", err)
	}
	// The aliasing lists took their own retains.
	if fenceB.RetainCount() < 2 {
		t.Fatalf("RetainCount() = %d after deposit, want >= 2", fenceB.RetainCount())
	}

	// Next frame: reusing A must wait on B's writers (B deposited into
	// A's index range) but never on A's own deposit fence.
	a.CycleFrames()
	got, waits, err := a.CollectBuffer(privateBuffer(4096))
	if err != nil {
		t.Fatalf("CollectBuffer() error = %v", err)
	}
	if got != bufA {
		t.Fatal("expected reuse of buffer A")
	}
	foundB := false
	for _, f := range waits {
		if f == fenceA {
			t.Error("resource waits on its own deposit fence")
		}
		if f == fenceB {
			foundB = true
		}
	}
	if !foundB {
		t.Error("reuse did not inherit the other depositor's write fence")
	}
}

func TestHeapAllocator_OwnFencesAreSkipped(t *testing.T) {
	a, pool := newTestHeapAllocator(t)

	b1, _, err := a.CollectBuffer(privateBuffer(4096))
	if err != nil {
		t.Fatalf("CollectBuffer() error = %v", err)
	}
	writeFence := pool.Allocate()
	if err := a.DepositBuffer(b1, []*Fence{writeFence}); err != nil {
		t.Fatalf("DepositBuffer() error = %v", err)
	}

	// Reuse within the same frame: the resource's own deposit fences are
	// already known to its user and are skipped.
	b2, waits, err := a.CollectBuffer(privateBuffer(4096))
	if err != nil {
		t.Fatalf("CollectBuffer() error = %v", err)
	}
	if b2 != b1 {
		t.Fatal("expected same-frame reuse")
	}
	for _, f := range waits {
		if f == writeFence {
			t.Error("resource waits on its own deposit fence")
		}
	}
}

func TestHeapAllocator_GrowsOnExhaustion(t *testing.T) {
	dev := noop.NewDevice()
	pool := NewFencePool(dev)
	a := NewHeapAllocator(dev, pool, "tiny", 8192, types.StoragePrivate, types.CacheDefault)

	b1, _, err := a.CollectBuffer(privateBuffer(8192))
	if err != nil {
		t.Fatalf("CollectBuffer() error = %v", err)
	}
	_ = b1

	// Heap full and b1 in flight: exhaustion is handled by adding a
	// heap, never surfaced.
	if _, _, err := a.CollectBuffer(privateBuffer(8192)); err != nil {
		t.Fatalf("CollectBuffer() on full heap error = %v", err)
	}
	if a.HeapCount() != 2 {
		t.Errorf("HeapCount() = %d, want 2", a.HeapCount())
	}
}

func TestHeapAllocator_DepositForeignResourceFails(t *testing.T) {
	a, _ := newTestHeapAllocator(t)
	dev := noop.NewDevice()
	foreign, err := dev.NewBuffer(privateBuffer(64))
	if err != nil {
		t.Fatalf("NewBuffer() error = %v", err)
	}

	if err := a.DepositBuffer(foreign, nil); err == nil {
		t.Error("expected ErrNotFromAllocator for foreign deposit")
	}
}

func TestMultiFrameHeapAllocator_RoundRobinWithoutFences(t *testing.T) {
	dev := noop.NewDevice()
	pool := NewFencePool(dev)
	a := NewMultiFrameHeapAllocator(dev, pool, "small-private", 3, 1<<20, types.StoragePrivate, types.CacheDefault)

	desc := privateBuffer(1 << 20) // 1 MiB small-allocation case

	var firstFrameBuffer interface {
		Length() uint64
		Contents() []byte
	}

	// Four frames: allocation round-robins across the three rotating
	// allocators; frame 4 lands back on frame 1's bucket and reuses its
	// buffer with no fence waits.
	for frame := 0; frame < 4; frame++ {
		b, waits, err := a.CollectBuffer(desc)
		if err != nil {
			t.Fatalf("frame %d: CollectBuffer() error = %v", frame, err)
		}
		if len(waits) != 0 {
			t.Errorf("frame %d: got %d fence waits, want 0", frame, len(waits))
		}
		if frame == 0 {
			firstFrameBuffer = b
		}
		if frame == 3 && b != firstFrameBuffer {
			t.Error("frame 4 should reuse the buffer first seen in frame 1")
		}

		f := pool.Allocate()
		if err := a.DepositBuffer(b, []*Fence{f}); err != nil {
			t.Fatalf("frame %d: DepositBuffer() error = %v", frame, err)
		}
		pool.Release(f)
		a.CycleFrames()
		pool.CycleFrames()
	}
}
