package core

import (
	"github.com/gogpu/framegraph/core/alloc"
	"github.com/gogpu/framegraph/hal"
)

// allocatorClass routes a backing reference to the allocator that produced
// it; depositing to any other allocator is fatal.
type allocatorClass uint8

const (
	allocNone allocatorClass = iota
	allocPersistent
	allocStagingPool
	allocHistoryPool
	allocMemorylessPool
	allocSmallHeap
	allocPrivateHeap
	allocColorHeap
	allocDepthHeap
	allocArena
	allocArgumentArena
	allocTextureView
	allocWindow
)

// BackingReference bundles a materialised resource's backing object with
// its synchronisation state.
type BackingReference struct {
	// Buffer or Texture is the native object, by resource kind.
	Buffer  hal.Buffer
	Texture hal.Texture

	// Offset is non-zero only when the resource is suballocated from an
	// arena.
	Offset uint64

	// Usage holds the fences future readers and writers must wait on.
	Usage alloc.FenceSet

	// Disposal is staged during the frame and becomes next frame's Usage
	// on cycle.
	Disposal alloc.FenceSet

	// UsedThisFrame is set the first time the frame touches the
	// resource.
	UsedThisFrame bool

	// Drawable is the presentation object backing a window texture.
	Drawable hal.Drawable

	source    allocatorClass
	deposited bool // backing returned to its allocator this frame
	keepAlive bool // history buffer surviving the frame boundary

	// fencesReleased records that release-multiframe-fences already
	// dropped the retain counts of Usage; the set itself stays readable
	// until the frame cycles.
	fencesReleased bool
}

// Resource returns the backing as a heterogeneous encoder resource.
func (r *BackingReference) Resource() hal.Resource {
	if r.Buffer != nil {
		return r.Buffer
	}
	return r.Texture
}
