package hal

import (
	"github.com/gogpu/gputypes"

	"github.com/gogpu/framegraph/types"
)

// Buffer is a backend buffer object.
type Buffer interface {
	// Length returns the size of the buffer in bytes.
	Length() uint64

	// Contents returns the CPU-visible bytes of the buffer, or nil for
	// private storage.
	Contents() []byte
}

// Texture is a backend texture object.
type Texture interface {
	// Descriptor returns the descriptor the texture was created with.
	Descriptor() types.TextureDescriptor
}

// Resource is either a Buffer or a Texture. It appears where the core hands
// heterogeneous resources to an encoder (useResource, memory barriers).
type Resource any

// Fence is a GPU-side synchronisation primitive updated by a producer
// encoder and waited on by a consumer encoder. The handle stays valid for
// the lifetime of the device; content validity across frames is tracked by
// the owner.
type Fence interface {
	// Label returns the debug label assigned at creation.
	Label() string
}

// PurgeableState is the residency priority applied to heap memory.
type PurgeableState uint8

const (
	// PurgeableNonVolatile keeps the contents resident.
	PurgeableNonVolatile PurgeableState = iota

	// PurgeableVolatile allows the system to discard the contents under
	// memory pressure.
	PurgeableVolatile

	// PurgeableEmpty marks the contents as discardable immediately.
	PurgeableEmpty
)

// HeapDescriptor describes a GPU heap for suballocation.
type HeapDescriptor struct {
	// Label is an optional debug name.
	Label string

	// Size is the heap capacity in bytes.
	Size uint64

	// StorageMode selects the memory domain for all resources placed in
	// the heap.
	StorageMode types.StorageMode

	// CacheMode selects the CPU caching behaviour for CPU-visible modes.
	CacheMode types.CacheMode
}

// Heap is a region of GPU memory the core suballocates resources from.
// Resources created on a heap may physically alias once MakeAliasable has
// been called on them; the core's aliasing allocator guarantees that two
// overlapping lifetimes never share bytes.
type Heap interface {
	// Size returns the heap capacity in bytes.
	Size() uint64

	// UsedSize returns the bytes currently consumed by live allocations.
	UsedSize() uint64

	// MaxAvailableSize returns the largest allocation the heap could
	// satisfy at the given alignment.
	MaxAvailableSize(alignment uint64) uint64

	// NewBuffer places a buffer on the heap.
	NewBuffer(desc types.BufferDescriptor) (Buffer, error)

	// NewTexture places a texture on the heap.
	NewTexture(desc types.TextureDescriptor) (Texture, error)

	// MakeAliasable declares that the resource's memory may be reused by
	// allocations made after this call.
	MakeAliasable(r Resource)

	// SetPurgeableState applies a residency priority to the whole heap.
	SetPurgeableState(s PurgeableState)
}

// Drawable is a presentable texture acquired from the presentation layer.
type Drawable interface {
	// Texture returns the texture backing this drawable for the current
	// frame.
	Texture() Texture
}

// DrawableSource acquires drawables. Acquisition may block on the
// presentation layer and may fail when no drawable is available in time.
type DrawableSource interface {
	// NextDrawable acquires the next drawable. The frame driver calls it
	// on the installed main thread, if any, and inline on the frame
	// thread otherwise.
	NextDrawable() (Drawable, error)
}

// Device creates the backend objects the frame graph materialises resources
// from.
type Device interface {
	// NewBuffer creates a standalone buffer.
	NewBuffer(desc types.BufferDescriptor) (Buffer, error)

	// DestroyBuffer destroys a buffer created by NewBuffer or a Heap.
	DestroyBuffer(b Buffer)

	// NewTexture creates a standalone texture.
	NewTexture(desc types.TextureDescriptor) (Texture, error)

	// DestroyTexture destroys a texture created by NewTexture or a Heap.
	DestroyTexture(t Texture)

	// NewTextureView creates a typed view over a texture's storage with a
	// different pixel format.
	NewTextureView(t Texture, format gputypes.TextureFormat) (Texture, error)

	// NewHeap creates a heap for suballocation.
	NewHeap(desc HeapDescriptor) (Heap, error)

	// DestroyHeap destroys a heap. All resources placed on it must have
	// been destroyed first.
	DestroyHeap(h Heap)

	// NewFence creates a fence.
	NewFence(label string) Fence

	// DestroyFence destroys a fence.
	DestroyFence(f Fence)

	// NewCommandBuffer begins a command buffer for one frame.
	NewCommandBuffer(label string) (CommandBuffer, error)
}
