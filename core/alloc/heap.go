package alloc

import (
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/gogpu/framegraph/hal"
	"github.com/gogpu/framegraph/types"
)

// ErrNotFromAllocator is returned when a resource is deposited to an
// allocator that did not hand it out. The registry treats this as fatal.
var ErrNotFromAllocator = errors.New("alloc: resource was not collected from this allocator")

// aliasingIndexNever marks a resource that has never been deposited: its
// memory cannot yet alias anything, so its interval starts at infinity.
const aliasingIndexNever = int64(math.MaxInt64)

// aliasingEntry tracks one resource handed out by an aliasing heap.
//
// The interval (aliasedFrom, aliasesThrough) is fixed after the resource's
// first cycle: aliasesThrough is stamped at first use with the then-current
// aliasing index, aliasedFrom at first deposit with the index the deposit
// consumed. Interval disjointness between two entries proves their
// lifetimes cannot overlap in the command stream.
type aliasingEntry struct {
	resource hal.Resource
	size     uint64

	aliasedFrom    int64 // aliasingIndexNever until first deposit
	aliasesThrough int64
	frame          uint64 // frame of the last deposit

	isBuffer bool
	bufDesc  types.BufferDescriptor
	texDesc  types.TextureDescriptor
}

// fenceRef is one entry of a per-aliasing-index wait list, tagged with the
// identity of the deposit that inserted it so that stale entries from
// previous frames can be replaced and a resource never waits on itself.
// The identity index is the depositor's aliasedFrom, which is unique per
// resource.
type fenceRef struct {
	fence         *Fence
	aliasingIndex int64
	frame         uint64
}

// aliasingHeap suballocates from one backend heap and owns its aliasing
// algebra.
type aliasingHeap struct {
	heap hal.Heap
	next int64 // nextAliasingIndex, monotonic

	inUse []*aliasingEntry
	free  []*aliasingEntry

	// rangeFrom/rangeThrough summarise the intervals of all in-use
	// entries: rangeFrom is the minimum aliasedFrom, rangeThrough the
	// maximum aliasesThrough. Empty heap: (MaxInt64, -1).
	rangeFrom    int64
	rangeThrough int64

	// aliasingFences[k] holds the fences a next user of aliasing index k
	// must wait on.
	aliasingFences [][]fenceRef
}

func newAliasingHeap(heap hal.Heap) *aliasingHeap {
	return &aliasingHeap{
		heap:         heap,
		rangeFrom:    aliasingIndexNever,
		rangeThrough: -1,
	}
}

// canReuse reports whether the candidate's aliasing interval is disjoint
// from every currently in-use interval.
func (h *aliasingHeap) canReuse(e *aliasingEntry) bool {
	return h.rangeFrom > e.aliasesThrough && e.aliasedFrom > h.rangeThrough
}

// canMaterialise reports whether a brand-new allocation could be assigned
// an interval disjoint from all in-flight intervals.
func (h *aliasingHeap) canMaterialise() bool {
	return h.next < h.rangeFrom
}

// take moves an entry into the in-use set, expands the aliasing range, and
// returns the fences the new user must wait on. Returned fences are
// retained for the caller.
func (h *aliasingHeap) take(e *aliasingEntry, pool *FencePool, frame uint64) []*Fence {
	h.inUse = append(h.inUse, e)
	if e.aliasedFrom < h.rangeFrom {
		h.rangeFrom = e.aliasedFrom
	}
	if e.aliasesThrough > h.rangeThrough {
		h.rangeThrough = e.aliasesThrough
	}

	var waits []*Fence
	if e.aliasesThrough < int64(len(h.aliasingFences)) {
		for _, ref := range h.aliasingFences[e.aliasesThrough] {
			if ref.aliasingIndex == e.aliasedFrom && ref.frame == e.frame {
				// The resource's own deposit fences; already known.
				continue
			}
			pool.Retain(ref.fence)
			waits = append(waits, ref.fence)
		}
	}
	return waits
}

// give returns an entry to the free set, recomputes the aliasing range, and
// merges the resource's write-wait fences into the affected index lists.
func (h *aliasingHeap) give(e *aliasingEntry, writeWait []*Fence, pool *FencePool, frame uint64) {
	for i, candidate := range h.inUse {
		if candidate == e {
			last := len(h.inUse) - 1
			h.inUse[i] = h.inUse[last]
			h.inUse = h.inUse[:last]
			break
		}
	}
	h.recomputeRange()

	if e.aliasedFrom == aliasingIndexNever {
		e.aliasedFrom = h.next
		h.next++
		h.heap.MakeAliasable(e.resource)
	}
	e.frame = frame

	for int64(len(h.aliasingFences)) < h.next {
		h.aliasingFences = append(h.aliasingFences, nil)
	}

	// A user of index k must wait on this resource's writers when the
	// intervals could overlap: k at or before aliasesThrough, or at or
	// after aliasedFrom.
	for k := int64(0); k < h.next; k++ {
		if k > e.aliasesThrough && k < e.aliasedFrom {
			continue
		}
		h.mergeFences(k, e, writeWait, pool, frame)
	}

	h.free = append(h.free, e)
}

// mergeFences replaces stale refs from previous frames with the depositing
// resource's current write-wait fences, adjusting retain counts.
func (h *aliasingHeap) mergeFences(k int64, e *aliasingEntry, writeWait []*Fence, pool *FencePool, frame uint64) {
	list := h.aliasingFences[k]

	n := 0
	for _, ref := range list {
		if ref.aliasingIndex == e.aliasedFrom && ref.frame < frame {
			pool.Release(ref.fence)
			continue
		}
		list[n] = ref
		n++
	}
	list = list[:n]

	for _, f := range writeWait {
		pool.Retain(f)
		f.AliasingIndex = e.aliasedFrom
		f.Frame = frame
		list = append(list, fenceRef{fence: f, aliasingIndex: e.aliasedFrom, frame: frame})
	}
	h.aliasingFences[k] = list
}

func (h *aliasingHeap) recomputeRange() {
	h.rangeFrom = aliasingIndexNever
	h.rangeThrough = -1
	for _, e := range h.inUse {
		if e.aliasedFrom < h.rangeFrom {
			h.rangeFrom = e.aliasedFrom
		}
		if e.aliasesThrough > h.rangeThrough {
			h.rangeThrough = e.aliasesThrough
		}
	}
}

// expireFences releases every recorded wait. Called when rotation
// guarantees the GPU has drained all work the fences covered.
func (h *aliasingHeap) expireFences(pool *FencePool) {
	for k, list := range h.aliasingFences {
		for _, ref := range list {
			pool.Release(ref.fence)
		}
		h.aliasingFences[k] = nil
	}
}

// HeapAllocator suballocates transient resources from one or more aliasing
// heaps of a single storage class. Resource exhaustion inside a heap is
// handled by adding a new heap; it is never surfaced.
type HeapAllocator struct {
	device hal.Device
	pool   *FencePool
	log    *slog.Logger

	label    string
	heapSize uint64
	storage  types.StorageMode
	cache    types.CacheMode
	purge    hal.PurgeableState

	heaps []*aliasingHeap
	// owner maps a live resource to the heap that handed it out.
	owner map[hal.Resource]*aliasingHeap
	entry map[hal.Resource]*aliasingEntry

	frame uint64
}

// NewHeapAllocator creates a heap allocator whose heaps default to heapSize
// bytes in the given storage class.
func NewHeapAllocator(device hal.Device, pool *FencePool, label string, heapSize uint64, storage types.StorageMode, cache types.CacheMode) *HeapAllocator {
	return &HeapAllocator{
		device:   device,
		pool:     pool,
		log:      slog.New(slog.DiscardHandler),
		label:    label,
		heapSize: heapSize,
		storage:  storage,
		cache:    cache,
		purge:    hal.PurgeableNonVolatile,
		owner:    make(map[hal.Resource]*aliasingHeap),
		entry:    make(map[hal.Resource]*aliasingEntry),
	}
}

// SetPurgeableState selects the purgeable-state transition applied to every
// heap on CycleFrames.
func (a *HeapAllocator) SetPurgeableState(s hal.PurgeableState) { a.purge = s }

// SetLogger installs the logger heap-growth diagnostics go to.
func (a *HeapAllocator) SetLogger(l *slog.Logger) {
	if l != nil {
		a.log = l
	}
}

// CollectBuffer returns a buffer for the descriptor along with the fences
// its first writer must wait on.
func (a *HeapAllocator) CollectBuffer(desc types.BufferDescriptor) (hal.Buffer, []*Fence, error) {
	r, waits, err := a.collect(desc.Length, func(e *aliasingEntry) bool {
		return e.isBuffer && e.bufDesc.Length == desc.Length &&
			e.bufDesc.StorageMode == desc.StorageMode &&
			e.bufDesc.CacheMode == desc.CacheMode &&
			e.bufDesc.Usage == desc.Usage
	}, func(h *aliasingHeap) (hal.Resource, uint64, error) {
		b, err := h.heap.NewBuffer(desc)
		return b, desc.Length, err
	}, func(e *aliasingEntry) {
		e.isBuffer = true
		e.bufDesc = desc
	})
	if err != nil {
		return nil, nil, err
	}
	return r.(hal.Buffer), waits, nil
}

// CollectTexture returns a texture for the descriptor along with the fences
// its first writer must wait on.
func (a *HeapAllocator) CollectTexture(desc types.TextureDescriptor) (hal.Texture, []*Fence, error) {
	size := textureFootprint(desc)
	r, waits, err := a.collect(size, func(e *aliasingEntry) bool {
		return !e.isBuffer && e.texDesc.EqualLayout(desc)
	}, func(h *aliasingHeap) (hal.Resource, uint64, error) {
		t, err := h.heap.NewTexture(desc)
		return t, size, err
	}, func(e *aliasingEntry) {
		e.isBuffer = false
		e.texDesc = desc
	})
	if err != nil {
		return nil, nil, err
	}
	return r.(hal.Texture), waits, nil
}

func (a *HeapAllocator) collect(
	size uint64,
	fits func(*aliasingEntry) bool,
	create func(*aliasingHeap) (hal.Resource, uint64, error),
	init func(*aliasingEntry),
) (hal.Resource, []*Fence, error) {
	// Reuse an aliasable resource whose interval is disjoint from every
	// in-flight interval.
	for _, h := range a.heaps {
		for i, e := range h.free {
			if !fits(e) || !h.canReuse(e) {
				continue
			}
			last := len(h.free) - 1
			h.free[i] = h.free[last]
			h.free = h.free[:last]
			waits := h.take(e, a.pool, a.frame)
			return e.resource, waits, nil
		}
	}

	// Materialise a new resource where a disjoint interval is guaranteed
	// and bytes are available.
	for _, h := range a.heaps {
		if !h.canMaterialise() || h.heap.MaxAvailableSize(BufferAlignment) < size {
			continue
		}
		return a.materialise(h, create, init)
	}

	// Exhaustion: add a heap.
	heapSize := a.heapSize
	if size > heapSize {
		heapSize = size
	}
	backing, err := a.device.NewHeap(hal.HeapDescriptor{
		Label:       fmt.Sprintf("%s-heap-%d", a.label, len(a.heaps)),
		Size:        heapSize,
		StorageMode: a.storage,
		CacheMode:   a.cache,
	})
	if err != nil {
		return nil, nil, err
	}
	h := newAliasingHeap(backing)
	a.heaps = append(a.heaps, h)
	a.log.Debug("framegraph: heap allocator grew",
		"allocator", a.label, "heaps", len(a.heaps), "size", heapSize)
	return a.materialise(h, create, init)
}

func (a *HeapAllocator) materialise(
	h *aliasingHeap,
	create func(*aliasingHeap) (hal.Resource, uint64, error),
	init func(*aliasingEntry),
) (hal.Resource, []*Fence, error) {
	r, size, err := create(h)
	if err != nil {
		return nil, nil, err
	}
	e := &aliasingEntry{
		resource:       r,
		size:           size,
		aliasedFrom:    aliasingIndexNever,
		aliasesThrough: h.next,
		frame:          a.frame,
	}
	init(e)
	waits := h.take(e, a.pool, a.frame)
	a.owner[r] = h
	a.entry[r] = e
	return r, waits, nil
}

// DepositBuffer returns a buffer to its heap for aliasing, recording the
// fences its next user must wait on.
func (a *HeapAllocator) DepositBuffer(b hal.Buffer, writeWait []*Fence) error {
	return a.deposit(b, writeWait)
}

// DepositTexture returns a texture to its heap for aliasing.
func (a *HeapAllocator) DepositTexture(t hal.Texture, writeWait []*Fence) error {
	return a.deposit(t, writeWait)
}

func (a *HeapAllocator) deposit(r hal.Resource, writeWait []*Fence) error {
	h, ok := a.owner[r]
	if !ok {
		return fmt.Errorf("%w: %s allocator", ErrNotFromAllocator, a.label)
	}
	e := a.entry[r]
	h.give(e, writeWait, a.pool, a.frame)
	return nil
}

// CycleFrames advances the allocator's frame counter and applies the
// purgeable-state transition.
func (a *HeapAllocator) CycleFrames() {
	a.frame++
	for _, h := range a.heaps {
		h.heap.SetPurgeableState(a.purge)
	}
}

// expireFences drops every recorded aliasing wait. The multi-frame wrapper
// calls this when rotation guarantees the covered work has drained.
func (a *HeapAllocator) expireFences() {
	for _, h := range a.heaps {
		h.expireFences(a.pool)
	}
}

// InUseIntervals returns the (aliasedFrom, aliasesThrough) pairs of every
// in-flight resource, for property tests over interval disjointness.
func (a *HeapAllocator) InUseIntervals() [][2]int64 {
	var out [][2]int64
	for _, h := range a.heaps {
		for _, e := range h.inUse {
			out = append(out, [2]int64{e.aliasedFrom, e.aliasesThrough})
		}
	}
	return out
}

// HeapCount returns the number of backend heaps the allocator owns.
func (a *HeapAllocator) HeapCount() int { return len(a.heaps) }

func textureFootprint(desc types.TextureDescriptor) uint64 {
	size := desc.Size
	texels := uint64(size.Width) * uint64(size.Height) * uint64(size.DepthOrArrayLayers)
	samples := uint64(desc.SampleCount)
	if samples == 0 {
		samples = 1
	}
	// A conservative four bytes per texel; backends report the exact
	// placement size through Heap.MaxAvailableSize before creation.
	return texels * 4 * samples
}
