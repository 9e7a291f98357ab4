package core

import (
	"github.com/gogpu/gputypes"

	"github.com/gogpu/framegraph/types"
)

// Attachment names one render-target subresource and how it enters the
// pass.
type Attachment struct {
	// Texture is the attached texture handle.
	Texture TextureID

	// Slice, Level, and DepthPlane address the subresource.
	Slice, Level, DepthPlane uint32

	// WantsClear requests a clear at the start of the pass.
	WantsClear bool

	// Clear values; only the one matching the attachment slot is used.
	ClearColor   gputypes.Color
	ClearDepth   float64
	ClearStencil uint32
}

// sameTarget reports whether two attachments address the same subresource.
func (a *Attachment) sameTarget(b *Attachment) bool {
	return a.Texture == b.Texture && a.Slice == b.Slice &&
		a.Level == b.Level && a.DepthPlane == b.DepthPlane
}

// RenderTargetDescriptor describes the attachments a draw pass renders
// into, as declared by the client.
type RenderTargetDescriptor struct {
	// ColorAttachments are the colour slots; nil entries are unbound.
	ColorAttachments []*Attachment

	// Depth and Stencil are optional.
	Depth   *Attachment
	Stencil *Attachment

	// VisibilityResultBuffer receives occlusion query results, if any.
	VisibilityResultBuffer BufferID

	// ArrayLength is the layer count for layered rendering; zero means
	// non-layered.
	ArrayLength uint32
}

// PassRecord is one recorded pass. Records are consumed in order; the
// passIndex must match the record's position in the frame's pass list.
type PassRecord struct {
	// Kind is the unit of GPU work.
	Kind types.PassKind

	// Name labels the pass's encoder for debugging.
	Name string

	// Active passes participate in the frame; inactive passes are
	// assumed pre-culled and are skipped entirely.
	Active bool

	// Index is the pass's stable position in the frame.
	Index int

	// Commands is the pass's slice of the frame's flat command stream.
	Commands Range

	// RenderTarget is required for draw passes, nil otherwise.
	RenderTarget *RenderTargetDescriptor
}
