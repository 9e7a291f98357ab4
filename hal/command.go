package hal

import (
	"github.com/gogpu/framegraph/types"
)

// Encoder is the synchronisation surface shared by all encoder kinds. The
// dependency compiler's resource commands are dispatched through these
// methods; pass-kind-specific commands go through the concrete encoder
// interfaces below.
type Encoder interface {
	// SetLabel assigns a debug name to the encoder.
	SetLabel(label string)

	// PushDebugGroup opens a named debug region.
	PushDebugGroup(label string)

	// PopDebugGroup closes the innermost debug region.
	PopDebugGroup()

	// UpdateFence signals the fence once all work up to and including the
	// given stages has completed.
	UpdateFence(f Fence, afterStages types.Stages)

	// WaitForFence blocks work at the given stages until the fence has
	// been updated. Implementations skip waits on fences this encoder has
	// itself updated, and duplicate (fence, stages) waits.
	WaitForFence(f Fence, beforeStages types.Stages)

	// UseResource declares residency for a resource referenced indirectly
	// (through an argument buffer) for the remainder of the encoder.
	UseResource(r Resource, mask types.ResourceUse)

	// MemoryBarrier orders writes to the listed resources at afterStages
	// before reads at beforeStages within this encoder.
	MemoryBarrier(resources []Resource, afterStages, beforeStages types.Stages)

	// TextureBarrier is the render-target coherence fallback for
	// platforms without fine-grained memory barriers.
	TextureBarrier()

	// EndEncoding finishes the encoder. No further methods may be called.
	EndEncoding()
}

// RenderEncoder records draw commands into a render pass.
type RenderEncoder interface {
	Encoder

	// Draw draws instanced primitives.
	Draw(vertexCount, instanceCount uint32)

	// DrawIndexed draws indexed primitives using the bound index buffer.
	DrawIndexed(indexCount, instanceCount uint32)

	// SetVertexBuffer binds a buffer region to a vertex slot.
	SetVertexBuffer(slot uint32, b Buffer, offset uint64)

	// SetFragmentBuffer binds a buffer region to a fragment slot.
	SetFragmentBuffer(slot uint32, b Buffer, offset uint64)

	// SetFragmentTexture binds a texture to a fragment slot.
	SetFragmentTexture(slot uint32, t Texture)
}

// ComputeEncoder records dispatches.
type ComputeEncoder interface {
	Encoder

	// SetBuffer binds a buffer region to a compute slot.
	SetBuffer(slot uint32, b Buffer, offset uint64)

	// SetTexture binds a texture to a compute slot.
	SetTexture(slot uint32, t Texture)

	// DispatchThreadgroups dispatches a grid of threadgroups.
	DispatchThreadgroups(x, y, z uint32)
}

// BlitEncoder records copy operations.
type BlitEncoder interface {
	Encoder

	// CopyBufferToBuffer copies size bytes between buffer regions.
	CopyBufferToBuffer(src Buffer, srcOffset uint64, dst Buffer, dstOffset, size uint64)

	// CopyBufferToTexture uploads buffer bytes into a texture.
	CopyBufferToTexture(src Buffer, srcOffset uint64, dst Texture)

	// CopyTextureToBuffer reads a texture back into a buffer.
	CopyTextureToBuffer(src Texture, dst Buffer, dstOffset uint64)

	// FillBuffer fills a buffer region with a byte value.
	FillBuffer(b Buffer, offset, size uint64, value uint8)
}

// CommandBuffer batches the frame's encoders and closes the frame.
type CommandBuffer interface {
	// BeginRenderEncoder opens a render encoder over the given
	// attachments. It fails when a render-target view cannot be created.
	BeginRenderEncoder(desc *RenderPassDescriptor) (RenderEncoder, error)

	// BeginComputeEncoder opens a compute encoder.
	BeginComputeEncoder(label string) ComputeEncoder

	// BeginBlitEncoder opens a blit encoder.
	BeginBlitEncoder(label string) BlitEncoder

	// Present enqueues presentation of a drawable after the frame's
	// commands complete.
	Present(d Drawable)

	// Commit submits the frame. onComplete runs once the GPU has finished
	// all of the frame's work; it may be called from any thread.
	Commit(onComplete func())
}
