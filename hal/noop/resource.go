package noop

import (
	"fmt"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/framegraph/hal"
	"github.com/gogpu/framegraph/types"
)

// Buffer implements hal.Buffer. Shared and managed buffers carry host bytes.
type Buffer struct {
	desc types.BufferDescriptor
	data []byte
}

// Length returns the size of the buffer in bytes.
func (b *Buffer) Length() uint64 { return b.desc.Length }

// Contents returns the host bytes, or nil for private storage.
func (b *Buffer) Contents() []byte { return b.data }

// BufferDescriptor returns the descriptor the buffer was created with.
func (b *Buffer) BufferDescriptor() types.BufferDescriptor { return b.desc }

// Texture implements hal.Texture.
type Texture struct {
	desc types.TextureDescriptor

	// viewOf is the parent texture for pixel-format views, nil otherwise.
	viewOf *Texture
}

// Descriptor returns the descriptor the texture was created with.
func (t *Texture) Descriptor() types.TextureDescriptor { return t.desc }

// ViewOf returns the parent texture for pixel-format views, nil otherwise.
func (t *Texture) ViewOf() *Texture { return t.viewOf }

// Fence implements hal.Fence.
type Fence struct {
	label string
}

// Label returns the debug label assigned at creation.
func (f *Fence) Label() string { return f.label }

// Heap implements hal.Heap with byte-accurate accounting. MakeAliasable
// returns a resource's bytes to the available pool without destroying the
// resource object, mirroring how a real heap lets later allocations overlap
// aliasable memory.
type Heap struct {
	desc      hal.HeapDescriptor
	used      uint64
	sizes     map[hal.Resource]uint64
	aliasable map[hal.Resource]bool
}

// Size returns the heap capacity in bytes.
func (h *Heap) Size() uint64 { return h.desc.Size }

// UsedSize returns the bytes consumed by live, non-aliasable allocations.
func (h *Heap) UsedSize() uint64 { return h.used }

// MaxAvailableSize returns the largest allocation the heap could satisfy.
func (h *Heap) MaxAvailableSize(alignment uint64) uint64 {
	free := h.desc.Size - h.used
	if alignment == 0 {
		return free
	}
	return free - free%alignment
}

// NewBuffer places a buffer on the heap.
func (h *Heap) NewBuffer(desc types.BufferDescriptor) (hal.Buffer, error) {
	if err := h.reserve(desc.Length); err != nil {
		return nil, err
	}
	b := newBuffer(desc)
	h.sizes[b] = desc.Length
	return b, nil
}

// NewTexture places a texture on the heap.
func (h *Heap) NewTexture(desc types.TextureDescriptor) (hal.Texture, error) {
	size := TextureAllocationSize(desc)
	if err := h.reserve(size); err != nil {
		return nil, err
	}
	t := &Texture{desc: desc}
	h.sizes[t] = size
	return t, nil
}

// MakeAliasable declares the resource's memory reusable by later
// allocations.
func (h *Heap) MakeAliasable(r hal.Resource) {
	if h.aliasable[r] {
		return
	}
	if size, ok := h.sizes[r]; ok {
		h.aliasable[r] = true
		h.used -= size
	}
}

// SetPurgeableState is ignored by the noop backend; nothing is recorded.
func (h *Heap) SetPurgeableState(hal.PurgeableState) {}

func (h *Heap) reserve(size uint64) error {
	if h.used+size > h.desc.Size {
		return fmt.Errorf("noop: heap %q exhausted: %d used of %d, need %d",
			h.desc.Label, h.used, h.desc.Size, size)
	}
	h.used += size
	return nil
}

func newBuffer(desc types.BufferDescriptor) *Buffer {
	b := &Buffer{desc: desc}
	if desc.StorageMode != types.StoragePrivate && desc.StorageMode != types.StorageMemoryless {
		b.data = make([]byte, desc.Length)
	}
	return b
}

// TextureAllocationSize estimates the bytes a texture allocation consumes.
// Mip chains are ignored; the estimate only needs to be stable and
// proportional for heap accounting.
func TextureAllocationSize(desc types.TextureDescriptor) uint64 {
	size := desc.Size
	texels := uint64(size.Width) * uint64(size.Height) * uint64(size.DepthOrArrayLayers)
	samples := uint64(desc.SampleCount)
	if samples == 0 {
		samples = 1
	}
	return texels * formatSize(desc.Format) * samples
}

func formatSize(f gputypes.TextureFormat) uint64 {
	switch f {
	case gputypes.TextureFormatR8Unorm:
		return 1
	case gputypes.TextureFormatRG8Unorm, gputypes.TextureFormatR16Float,
		gputypes.TextureFormatDepth16Unorm:
		return 2
	case gputypes.TextureFormatRGBA16Float, gputypes.TextureFormatRG32Float:
		return 8
	case gputypes.TextureFormatRGBA32Float:
		return 16
	default:
		// RGBA8, BGRA8, Depth32Float, packed 32-bit formats.
		return 4
	}
}

// Drawable implements hal.Drawable over a noop texture.
type Drawable struct {
	tex       *Texture
	presented bool
}

// Texture returns the texture backing this drawable.
func (d *Drawable) Texture() hal.Texture { return d.tex }

// Presented reports whether the drawable was presented.
func (d *Drawable) Presented() bool { return d.presented }

// DrawableSource implements hal.DrawableSource for tests. When Fail is set,
// NextDrawable reports an unavailable drawable, exercising the frame
// driver's pass-skip path.
type DrawableSource struct {
	Desc types.TextureDescriptor
	Fail bool

	acquired []*Drawable
}

// NextDrawable acquires the next drawable.
func (s *DrawableSource) NextDrawable() (hal.Drawable, error) {
	if s.Fail {
		return nil, fmt.Errorf("noop: no drawable available")
	}
	d := &Drawable{tex: &Texture{desc: s.Desc}}
	s.acquired = append(s.acquired, d)
	return d, nil
}

// Acquired returns every drawable handed out so far.
func (s *DrawableSource) Acquired() []*Drawable { return s.acquired }
