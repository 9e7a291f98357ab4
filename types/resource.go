package types

import (
	"github.com/gogpu/gputypes"
)

// ResourceKind identifies whether a resource handle names a buffer or a
// texture.
type ResourceKind uint8

const (
	// ResourceKindBuffer is a linear allocation of bytes.
	ResourceKindBuffer ResourceKind = iota

	// ResourceKindTexture is a formatted image resource.
	ResourceKindTexture
)

// String returns a human-readable representation of the kind.
func (k ResourceKind) String() string {
	switch k {
	case ResourceKindBuffer:
		return "Buffer"
	case ResourceKindTexture:
		return "Texture"
	default:
		return "Unknown"
	}
}

// ResourceFlags describe lifetime and materialisation properties of a
// resource handle. They are set at handle creation and never change.
type ResourceFlags uint8

const (
	// FlagPersistent marks a resource whose backing outlives frames until
	// explicit disposal. Persistent resources are never suballocated from
	// the transient arena or a heap aliasing allocator.
	FlagPersistent ResourceFlags = 1 << iota

	// FlagHistoryBuffer marks a transient-on-allocation resource that
	// survives exactly one frame boundary so the next frame can read it.
	FlagHistoryBuffer

	// FlagWindowHandle marks a texture whose backing is acquired from the
	// presentation layer inside the frame. Window textures are never
	// recycled through allocators.
	FlagWindowHandle

	// FlagImmutableOnceInitialised forbids any write usage once the
	// resource has been initialised. Violations abort the frame.
	FlagImmutableOnceInitialised

	// FlagPixelFormatView requests a typed view with a different pixel
	// format over the texture's storage; materialisation goes through
	// texture-view creation.
	FlagPixelFormatView

	// FlagArgumentBuffer marks a buffer materialised lazily through an
	// argument encoder into the per-frame argument arena.
	FlagArgumentBuffer
)

// Has reports whether all bits of other are set in f.
func (f ResourceFlags) Has(other ResourceFlags) bool {
	return f&other == other
}

// Intersects reports whether any bit of other is set in f.
func (f ResourceFlags) Intersects(other ResourceFlags) bool {
	return f&other != 0
}

// StateFlags track per-resource state that changes over the resource's
// lifetime.
type StateFlags uint8

const (
	// StateInitialised is set once the resource's contents have been
	// produced; it gates history-buffer rematerialisation and the
	// immutable-once-initialised write check.
	StateInitialised StateFlags = 1 << iota
)

// Has reports whether all bits of other are set in s.
func (s StateFlags) Has(other StateFlags) bool {
	return s&other == other
}

// StorageMode selects where a resource's bytes live and who can see them.
type StorageMode uint8

const (
	// StorageShared memory is visible to both CPU and GPU.
	StorageShared StorageMode = iota

	// StorageManaged memory keeps a CPU copy synchronised explicitly.
	StorageManaged

	// StoragePrivate memory is GPU-only.
	StoragePrivate

	// StorageMemoryless contents exist only for the duration of a render
	// pass (tile memory); no backing allocation is addressable.
	StorageMemoryless
)

// String returns a human-readable representation of the storage mode.
func (m StorageMode) String() string {
	switch m {
	case StorageShared:
		return "Shared"
	case StorageManaged:
		return "Managed"
	case StoragePrivate:
		return "Private"
	case StorageMemoryless:
		return "Memoryless"
	default:
		return "Unknown"
	}
}

// CacheMode selects the CPU cache behaviour for CPU-visible storage.
type CacheMode uint8

const (
	// CacheDefault is write-back cached memory.
	CacheDefault CacheMode = iota

	// CacheWriteCombined is uncached write-combined memory; fast for
	// streaming CPU writes, very slow to read back.
	CacheWriteCombined
)

// BufferDescriptor describes a buffer resource.
type BufferDescriptor struct {
	// Label is an optional debug name.
	Label string

	// Length is the size in bytes.
	Length uint64

	// Usage hints how the buffer will be bound.
	Usage gputypes.BufferUsage

	// StorageMode selects the memory domain.
	StorageMode StorageMode

	// CacheMode selects the CPU caching behaviour for CPU-visible modes.
	CacheMode CacheMode
}

// TextureDescriptor describes a texture resource. The embedded gputypes
// descriptor carries the dimensional and format information; StorageMode and
// CacheMode extend it with the memory-domain selection the allocators key on.
type TextureDescriptor struct {
	gputypes.TextureDescriptor

	// StorageMode selects the memory domain.
	StorageMode StorageMode

	// CacheMode selects the CPU caching behaviour for CPU-visible modes.
	CacheMode CacheMode
}

// EqualLayout reports whether two texture descriptors describe identical
// allocations. Labels are ignored.
func (d TextureDescriptor) EqualLayout(other TextureDescriptor) bool {
	return d.Size == other.Size &&
		d.MipLevelCount == other.MipLevelCount &&
		d.SampleCount == other.SampleCount &&
		d.Dimension == other.Dimension &&
		d.Format == other.Format &&
		d.Usage == other.Usage &&
		d.StorageMode == other.StorageMode &&
		d.CacheMode == other.CacheMode
}

// ResourceUse is the residency mask accumulated for use-resource commands.
type ResourceUse uint8

const (
	// ResourceUseRead marks the resource as read within the encoder.
	ResourceUseRead ResourceUse = 1 << iota

	// ResourceUseWrite marks the resource as written within the encoder.
	ResourceUseWrite

	// ResourceUseSample marks a texture as sampled within the encoder.
	ResourceUseSample
)

// Has reports whether all bits of other are set in u.
func (u ResourceUse) Has(other ResourceUse) bool {
	return u&other == other
}
