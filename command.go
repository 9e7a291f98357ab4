package framegraph

import (
	"fmt"

	"github.com/gogpu/framegraph/core"
	"github.com/gogpu/framegraph/hal"
)

// EncodeContext is handed to every pass command. Exactly one of the
// encoder fields matching the pass kind is non-nil; external passes get
// the command buffer instead.
type EncodeContext struct {
	Render  hal.RenderEncoder
	Compute hal.ComputeEncoder
	Blit    hal.BlitEncoder

	CommandBuffer hal.CommandBuffer

	registry *core.ResourceRegistry
}

// BufferBacking resolves a buffer handle to its materialised backing and
// arena offset.
func (ctx *EncodeContext) BufferBacking(id core.BufferID) (hal.Buffer, uint64, error) {
	ref, ok := ctx.registry.Reference(core.BufferResource(id))
	if !ok || ref.Buffer == nil {
		return nil, 0, fmt.Errorf("%w: %v", core.ErrNotMaterialised, id)
	}
	return ref.Buffer, ref.Offset, nil
}

// TextureBacking resolves a texture handle to its materialised backing.
func (ctx *EncodeContext) TextureBacking(id core.TextureID) (hal.Texture, error) {
	ref, ok := ctx.registry.Reference(core.TextureResource(id))
	if !ok || ref.Texture == nil {
		return nil, fmt.Errorf("%w: %v", core.ErrNotMaterialised, id)
	}
	return ref.Texture, nil
}

// PassCommand is one entry of the frame's flat command stream. Pass records
// reference their commands by index range; the driver interleaves the
// compiled resource commands around them.
type PassCommand interface {
	// Encode applies the command to the pass's encoder.
	Encode(ctx *EncodeContext) error
}

// Draw draws instanced primitives in a draw pass.
type Draw struct {
	VertexCount, InstanceCount uint32
}

// Encode implements PassCommand.
func (c Draw) Encode(ctx *EncodeContext) error {
	if ctx.Render == nil {
		return fmt.Errorf("framegraph: draw outside a render encoder")
	}
	ctx.Render.Draw(c.VertexCount, c.InstanceCount)
	return nil
}

// DrawIndexed draws indexed primitives in a draw pass.
type DrawIndexed struct {
	IndexCount, InstanceCount uint32
}

// Encode implements PassCommand.
func (c DrawIndexed) Encode(ctx *EncodeContext) error {
	if ctx.Render == nil {
		return fmt.Errorf("framegraph: indexed draw outside a render encoder")
	}
	ctx.Render.DrawIndexed(c.IndexCount, c.InstanceCount)
	return nil
}

// BindVertexBuffer binds a buffer region to a vertex slot.
type BindVertexBuffer struct {
	Slot   uint32
	Buffer core.BufferID
	Offset uint64
}

// Encode implements PassCommand.
func (c BindVertexBuffer) Encode(ctx *EncodeContext) error {
	if ctx.Render == nil {
		return fmt.Errorf("framegraph: vertex binding outside a render encoder")
	}
	b, base, err := ctx.BufferBacking(c.Buffer)
	if err != nil {
		return err
	}
	ctx.Render.SetVertexBuffer(c.Slot, b, base+c.Offset)
	return nil
}

// BindFragmentTexture binds a texture to a fragment slot.
type BindFragmentTexture struct {
	Slot    uint32
	Texture core.TextureID
}

// Encode implements PassCommand.
func (c BindFragmentTexture) Encode(ctx *EncodeContext) error {
	if ctx.Render == nil {
		return fmt.Errorf("framegraph: fragment binding outside a render encoder")
	}
	t, err := ctx.TextureBacking(c.Texture)
	if err != nil {
		return err
	}
	ctx.Render.SetFragmentTexture(c.Slot, t)
	return nil
}

// Dispatch dispatches compute threadgroups.
type Dispatch struct {
	X, Y, Z uint32
}

// Encode implements PassCommand.
func (c Dispatch) Encode(ctx *EncodeContext) error {
	if ctx.Compute == nil {
		return fmt.Errorf("framegraph: dispatch outside a compute encoder")
	}
	ctx.Compute.DispatchThreadgroups(c.X, c.Y, c.Z)
	return nil
}

// BindComputeBuffer binds a buffer region to a compute slot.
type BindComputeBuffer struct {
	Slot   uint32
	Buffer core.BufferID
	Offset uint64
}

// Encode implements PassCommand.
func (c BindComputeBuffer) Encode(ctx *EncodeContext) error {
	if ctx.Compute == nil {
		return fmt.Errorf("framegraph: compute binding outside a compute encoder")
	}
	b, base, err := ctx.BufferBacking(c.Buffer)
	if err != nil {
		return err
	}
	ctx.Compute.SetBuffer(c.Slot, b, base+c.Offset)
	return nil
}

// BindComputeTexture binds a texture to a compute slot.
type BindComputeTexture struct {
	Slot    uint32
	Texture core.TextureID
}

// Encode implements PassCommand.
func (c BindComputeTexture) Encode(ctx *EncodeContext) error {
	if ctx.Compute == nil {
		return fmt.Errorf("framegraph: compute binding outside a compute encoder")
	}
	t, err := ctx.TextureBacking(c.Texture)
	if err != nil {
		return err
	}
	ctx.Compute.SetTexture(c.Slot, t)
	return nil
}

// CopyBuffer copies bytes between buffer regions in a blit pass.
type CopyBuffer struct {
	Src, Dst             core.BufferID
	SrcOffset, DstOffset uint64
	Size                 uint64
}

// Encode implements PassCommand.
func (c CopyBuffer) Encode(ctx *EncodeContext) error {
	if ctx.Blit == nil {
		return fmt.Errorf("framegraph: copy outside a blit encoder")
	}
	src, srcBase, err := ctx.BufferBacking(c.Src)
	if err != nil {
		return err
	}
	dst, dstBase, err := ctx.BufferBacking(c.Dst)
	if err != nil {
		return err
	}
	ctx.Blit.CopyBufferToBuffer(src, srcBase+c.SrcOffset, dst, dstBase+c.DstOffset, c.Size)
	return nil
}

// FillBuffer fills a buffer region with a byte value in a blit pass.
type FillBuffer struct {
	Buffer       core.BufferID
	Offset, Size uint64
	Value        uint8
}

// Encode implements PassCommand.
func (c FillBuffer) Encode(ctx *EncodeContext) error {
	if ctx.Blit == nil {
		return fmt.Errorf("framegraph: fill outside a blit encoder")
	}
	b, base, err := ctx.BufferBacking(c.Buffer)
	if err != nil {
		return err
	}
	ctx.Blit.FillBuffer(b, base+c.Offset, c.Size, c.Value)
	return nil
}

// External hands the context to code outside the frame graph.
type External struct {
	Run func(ctx *EncodeContext) error
}

// Encode implements PassCommand.
func (c External) Encode(ctx *EncodeContext) error {
	if c.Run == nil {
		return nil
	}
	return c.Run(ctx)
}

// HostAccess runs host-side work ordered within the frame (CPU passes).
type HostAccess struct {
	Run func() error
}

// Encode implements PassCommand.
func (c HostAccess) Encode(*EncodeContext) error {
	if c.Run == nil {
		return nil
	}
	return c.Run()
}
