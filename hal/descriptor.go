package hal

import (
	"github.com/gogpu/gputypes"

	"github.com/gogpu/framegraph/types"
)

// ColorAttachment binds one colour render target for a render encoder.
type ColorAttachment struct {
	// Texture receives the rendering.
	Texture Texture

	// Slice, Level, and DepthPlane address the subresource.
	Slice, Level, DepthPlane uint32

	// LoadAction selects the contents at encoder start.
	LoadAction types.LoadAction

	// StoreAction selects whether contents are written back.
	StoreAction types.StoreAction

	// ClearColor is used when LoadAction is clear.
	ClearColor gputypes.Color
}

// DepthAttachment binds the depth render target.
type DepthAttachment struct {
	Texture      Texture
	Slice, Level uint32
	LoadAction   types.LoadAction
	StoreAction  types.StoreAction

	// ClearDepth is used when LoadAction is clear.
	ClearDepth float64
}

// StencilAttachment binds the stencil render target.
type StencilAttachment struct {
	Texture      Texture
	Slice, Level uint32
	LoadAction   types.LoadAction
	StoreAction  types.StoreAction

	// ClearStencil is used when LoadAction is clear.
	ClearStencil uint32
}

// RenderPassDescriptor describes the attachments of one render encoder. It
// is produced by the frame driver from the merged render-target descriptor
// after all attachment textures have been materialised.
type RenderPassDescriptor struct {
	// Label is an optional debug name for the encoder.
	Label string

	// ColorAttachments are the bound colour targets; nil entries are
	// unbound slots.
	ColorAttachments []*ColorAttachment

	// Depth and Stencil are optional.
	Depth   *DepthAttachment
	Stencil *StencilAttachment

	// VisibilityResultBuffer receives occlusion query results, if any.
	VisibilityResultBuffer Buffer

	// RenderTargetArrayLength is the number of layers for layered
	// rendering; zero means non-layered.
	RenderTargetArrayLength uint32
}
