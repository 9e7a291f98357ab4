package types

// UsageType classifies how a pass touches a resource. The recording layer
// produces one usage record per (pass, resource) access pattern; the
// dependency compiler consumes them read-only.
type UsageType uint8

const (
	// UsageRead is a plain shader or blit read.
	UsageRead UsageType = iota

	// UsageWrite is a plain shader or blit write.
	UsageWrite

	// UsageReadWrite is a combined read-modify-write access.
	UsageReadWrite

	// UsageReadWriteRenderTarget is a render-target attachment that both
	// loads and stores (blending, depth test with write).
	UsageReadWriteRenderTarget

	// UsageWriteOnlyRenderTarget is a render-target attachment that is
	// only written.
	UsageWriteOnlyRenderTarget

	// UsageInputAttachmentRenderTarget reads the attachment within the
	// same render pass (framebuffer fetch).
	UsageInputAttachmentRenderTarget

	// UsageUnusedRenderTarget is an attachment bound but never touched by
	// any draw in the pass.
	UsageUnusedRenderTarget

	// UsageUnusedArgumentBuffer is a resource referenced by an argument
	// buffer but unused by the pass's pipelines.
	UsageUnusedArgumentBuffer
)

// IsRead reports whether the usage reads the resource's previous contents.
func (t UsageType) IsRead() bool {
	switch t {
	case UsageRead, UsageReadWrite, UsageReadWriteRenderTarget, UsageInputAttachmentRenderTarget:
		return true
	default:
		return false
	}
}

// IsWrite reports whether the usage produces new contents.
func (t UsageType) IsWrite() bool {
	switch t {
	case UsageWrite, UsageReadWrite, UsageReadWriteRenderTarget, UsageWriteOnlyRenderTarget:
		return true
	default:
		return false
	}
}

// IsRenderTarget reports whether the usage is a render-target attachment
// access.
func (t UsageType) IsRenderTarget() bool {
	switch t {
	case UsageReadWriteRenderTarget, UsageWriteOnlyRenderTarget,
		UsageInputAttachmentRenderTarget, UsageUnusedRenderTarget:
		return true
	default:
		return false
	}
}

// IsActive reports whether the usage actually touches the resource. Unused
// usages exist so that residency and attachment bookkeeping can see the
// binding, but they never generate synchronisation.
func (t UsageType) IsActive() bool {
	switch t {
	case UsageUnusedRenderTarget, UsageUnusedArgumentBuffer:
		return false
	default:
		return true
	}
}

// String returns a human-readable representation of the usage type.
func (t UsageType) String() string {
	switch t {
	case UsageRead:
		return "Read"
	case UsageWrite:
		return "Write"
	case UsageReadWrite:
		return "ReadWrite"
	case UsageReadWriteRenderTarget:
		return "ReadWriteRenderTarget"
	case UsageWriteOnlyRenderTarget:
		return "WriteOnlyRenderTarget"
	case UsageInputAttachmentRenderTarget:
		return "InputAttachmentRenderTarget"
	case UsageUnusedRenderTarget:
		return "UnusedRenderTarget"
	case UsageUnusedArgumentBuffer:
		return "UnusedArgumentBuffer"
	default:
		return "Unknown"
	}
}
