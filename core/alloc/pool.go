package alloc

import (
	"github.com/gogpu/framegraph/hal"
	"github.com/gogpu/framegraph/types"
)

// poolEvictAge is the number of times an entry's bucket may come round
// unused before the entry is evicted.
const poolEvictAge = 2

// poolEntry pairs a pooled resource with its idle age.
type poolEntry[R any] struct {
	resource     R
	framesUnused int
}

// Pool recycles whole resources across frames. Deposits land in a staging
// list; CycleFrames ages the bucket about to become current, evicts stale
// entries, and folds the staged list into it, so an entry deposited in one
// frame can be collected from the next frame on.
type Pool[R any] struct {
	buckets [][]poolEntry[R]
	staged  []R
	index   int
}

// NewPool creates a pool with one bucket per in-flight frame. frameCount of
// one gives a single-bucket pool (history buffers).
func NewPool[R any](frameCount int) *Pool[R] {
	if frameCount < 1 {
		frameCount = 1
	}
	return &Pool[R]{buckets: make([][]poolEntry[R], frameCount)}
}

// Collect removes and returns the best-fit entry from the current bucket:
// the fitting entry with the smallest size. Order within the bucket is not
// preserved (swap-remove).
func (p *Pool[R]) Collect(fits func(R) bool, size func(R) uint64) (R, bool) {
	bucket := p.buckets[p.index]
	best := -1
	var bestSize uint64
	for i := range bucket {
		if !fits(bucket[i].resource) {
			continue
		}
		s := size(bucket[i].resource)
		if best < 0 || s < bestSize {
			best = i
			bestSize = s
		}
	}
	if best < 0 {
		var zero R
		return zero, false
	}

	r := bucket[best].resource
	last := len(bucket) - 1
	bucket[best] = bucket[last]
	p.buckets[p.index] = bucket[:last]
	return r, true
}

// Deposit stages a resource used this frame for future reuse.
func (p *Pool[R]) Deposit(r R) {
	p.staged = append(p.staged, r)
}

// CycleFrames ages the bucket about to become current, evicts entries idle
// for more than poolEvictAge frames (calling evict on each, if non-nil),
// appends the staged list, then advances the bucket index.
func (p *Pool[R]) CycleFrames(evict func(R)) {
	next := (p.index + 1) % len(p.buckets)
	bucket := p.buckets[next]

	n := 0
	for i := range bucket {
		bucket[i].framesUnused++
		if bucket[i].framesUnused > poolEvictAge {
			if evict != nil {
				evict(bucket[i].resource)
			}
			continue
		}
		bucket[n] = bucket[i]
		n++
	}
	bucket = bucket[:n]

	for _, r := range p.staged {
		bucket = append(bucket, poolEntry[R]{resource: r})
	}
	p.staged = p.staged[:0]

	p.buckets[next] = bucket
	p.index = next
}

// Len returns the number of entries across all buckets plus staging.
func (p *Pool[R]) Len() int {
	n := len(p.staged)
	for _, b := range p.buckets {
		n += len(b)
	}
	return n
}

// PooledBuffer is a pool entry for whole buffers.
type PooledBuffer struct {
	Buffer hal.Buffer
	Desc   types.BufferDescriptor
}

// PooledTexture is a pool entry for whole textures.
type PooledTexture struct {
	Texture hal.Texture
	Desc    types.TextureDescriptor
}

// BufferFits returns a fit predicate for buffer collection: the pooled
// buffer must be at least as long as requested with matching storage and
// cache bits.
func BufferFits(desc types.BufferDescriptor) func(PooledBuffer) bool {
	return func(b PooledBuffer) bool {
		return b.Desc.Length >= desc.Length &&
			b.Desc.StorageMode == desc.StorageMode &&
			b.Desc.CacheMode == desc.CacheMode
	}
}

// BufferSize is the size function for buffer best-fit selection.
func BufferSize(b PooledBuffer) uint64 { return b.Desc.Length }

// TextureFits returns a fit predicate for texture collection: layouts must
// match exactly.
func TextureFits(desc types.TextureDescriptor) func(PooledTexture) bool {
	return func(t PooledTexture) bool {
		return t.Desc.EqualLayout(desc)
	}
}

// TextureSize is the size function for texture best-fit selection.
func TextureSize(t PooledTexture) uint64 {
	size := t.Desc.Size
	return uint64(size.Width) * uint64(size.Height) * uint64(size.DepthOrArrayLayers)
}
