package core

import (
	"github.com/gogpu/gputypes"

	"github.com/gogpu/framegraph/types"
)

// The caches below are collaborators: the core consults them but does not
// own them. Implementations typically live next to the concrete backend;
// tests supply fakes.

// FunctionConstantsKey is a hash over a shader function's specialisation
// constants, used as part of cache keys.
type FunctionConstantsKey uint64

// RenderTargetFormats captures the attachment formats a render pipeline is
// specialised against.
type RenderTargetFormats struct {
	Color       [8]gputypes.TextureFormat
	Depth       gputypes.TextureFormat
	Stencil     gputypes.TextureFormat
	SampleCount uint32
}

// RenderPipelineDescriptor keys a render pipeline-state lookup.
type RenderPipelineDescriptor struct {
	Label            string
	VertexFunction   string
	FragmentFunction string
	Constants        FunctionConstantsKey
}

// PipelineState is an opaque compiled pipeline.
type PipelineState interface {
	Label() string
}

// PipelineStateCache resolves pipeline descriptors to compiled state.
type PipelineStateCache interface {
	// RenderPipelineState returns the pipeline for a descriptor
	// specialised to the given render-target formats.
	RenderPipelineState(desc RenderPipelineDescriptor, formats RenderTargetFormats) (PipelineState, error)

	// ComputePipelineState returns the pipeline for a compute function.
	ComputePipelineState(function string, constants FunctionConstantsKey) (PipelineState, error)
}

// SamplerKey keys a sampler-state lookup. It is comparable.
type SamplerKey struct {
	MinFilter, MagFilter gputypes.FilterMode
	AddressU, AddressV   gputypes.AddressMode
	AddressW             gputypes.AddressMode
	Compare              gputypes.CompareFunction
	NormalizedCoords     bool
}

// SamplerState is an opaque sampler object.
type SamplerState interface {
	Label() string
}

// SamplerStateCache resolves sampler descriptors to sampler state.
type SamplerStateCache interface {
	SamplerState(key SamplerKey) (SamplerState, error)
}

// DepthStencilKey keys a depth-stencil-state lookup. It is comparable.
type DepthStencilKey struct {
	DepthCompare     gputypes.CompareFunction
	DepthWriteEnabled bool
	StencilReadMask  uint32
	StencilWriteMask uint32
}

// DepthStencilState is an opaque depth-stencil object.
type DepthStencilState interface {
	Label() string
}

// DepthStencilStateCache resolves depth-stencil descriptors to state.
type DepthStencilStateCache interface {
	DepthStencilState(key DepthStencilKey) (DepthStencilState, error)
}

// ArgumentEncoder writes one argument buffer's contents into a reserved
// arena slice during lazy materialisation.
type ArgumentEncoder interface {
	// EncodedLength returns the bytes the encoded arguments occupy.
	EncodedLength() uint64

	// Alignment returns the required placement alignment.
	Alignment() uint64

	// Encode writes the encoded arguments into dst, which is exactly
	// EncodedLength bytes of CPU-visible arena memory.
	Encode(dst []byte) error
}

// ArgumentEncoderCache resolves (function, constants, buffer index) to the
// encoder that lays out that argument buffer.
type ArgumentEncoderCache interface {
	ArgumentEncoder(function string, constants FunctionConstantsKey, argumentBufferIndex int) (ArgumentEncoder, error)
}

// ArgumentReflection describes one bound argument as reported by shader
// reflection.
type ArgumentReflection struct {
	Path     types.ResourceBindingPath
	Usage    types.UsageType
	Stages   gputypes.ShaderStages
	IsActive bool
}

// PipelineReflection resolves argument names to binding paths and binding
// paths to reflection records.
type PipelineReflection interface {
	// BindingPath resolves an argument name and array index, optionally
	// nested under a parent argument-buffer path.
	BindingPath(argumentName string, arrayIndex uint32, parent *types.ResourceBindingPath) (types.ResourceBindingPath, bool)

	// ArgumentReflection returns the reflection record for a path.
	ArgumentReflection(path types.ResourceBindingPath) (ArgumentReflection, bool)
}
