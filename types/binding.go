package types

import (
	"fmt"

	"github.com/gogpu/gputypes"
)

// BindingType identifies the kind of pipeline binding a path addresses.
type BindingType uint8

const (
	// BindingTexture is a texture binding slot.
	BindingTexture BindingType = iota

	// BindingBuffer is a buffer binding slot.
	BindingBuffer

	// BindingSampler is a sampler binding slot.
	BindingSampler
)

// ResourceBindingPath is a packed 64-bit handle addressing one binding slot
// in a pipeline's argument table, possibly nested within an argument buffer.
//
// Wire layout:
//
//	bits [0..32)   arrayIndex
//	bits [32..54)  index
//	bits [54..59)  argumentBufferIndex (all-ones sentinel = none)
//	bits [59..62)  type flag: texture, buffer, sampler
//	bits [62..64)  stage flags: fragment, vertex
//
// Equality is bitwise; a ResourceBindingPath is a valid map key.
type ResourceBindingPath uint64

const (
	bindingPathArrayIndexBits = 32
	bindingPathIndexShift     = 32
	bindingPathIndexBits      = 22
	bindingPathArgBufferShift = 54
	bindingPathArgBufferBits  = 5

	bindingPathTextureBit  ResourceBindingPath = 1 << 59
	bindingPathBufferBit   ResourceBindingPath = 1 << 60
	bindingPathSamplerBit  ResourceBindingPath = 1 << 61
	bindingPathFragmentBit ResourceBindingPath = 1 << 62
	bindingPathVertexBit   ResourceBindingPath = 1 << 63

	bindingPathArrayIndexMask = ResourceBindingPath(1)<<bindingPathArrayIndexBits - 1
	bindingPathIndexMask      = ResourceBindingPath(1)<<bindingPathIndexBits - 1
	bindingPathArgBufferMask  = ResourceBindingPath(1)<<bindingPathArgBufferBits - 1

	// NoArgumentBuffer is the argumentBufferIndex sentinel for bindings at
	// the pipeline's top level.
	NoArgumentBuffer = int(bindingPathArgBufferMask)
)

// MakeBindingPath packs a binding path. argumentBufferIndex should be
// NoArgumentBuffer for top-level bindings. vertex and fragment select the
// stage visibility flags.
func MakeBindingPath(t BindingType, index, arrayIndex uint32, argumentBufferIndex int, vertex, fragment bool) ResourceBindingPath {
	p := ResourceBindingPath(arrayIndex) |
		(ResourceBindingPath(index)&bindingPathIndexMask)<<bindingPathIndexShift |
		(ResourceBindingPath(argumentBufferIndex)&bindingPathArgBufferMask)<<bindingPathArgBufferShift
	switch t {
	case BindingTexture:
		p |= bindingPathTextureBit
	case BindingBuffer:
		p |= bindingPathBufferBit
	case BindingSampler:
		p |= bindingPathSamplerBit
	}
	if fragment {
		p |= bindingPathFragmentBit
	}
	if vertex {
		p |= bindingPathVertexBit
	}
	return p
}

// ArrayIndex returns the array element addressed by the path.
func (p ResourceBindingPath) ArrayIndex() uint32 {
	return uint32(p & bindingPathArrayIndexMask)
}

// Index returns the binding slot index.
func (p ResourceBindingPath) Index() uint32 {
	return uint32((p >> bindingPathIndexShift) & bindingPathIndexMask)
}

// ArgumentBufferIndex returns the enclosing argument buffer slot and whether
// the path is nested inside an argument buffer at all.
func (p ResourceBindingPath) ArgumentBufferIndex() (int, bool) {
	idx := int((p >> bindingPathArgBufferShift) & bindingPathArgBufferMask)
	return idx, idx != NoArgumentBuffer
}

// Type returns the binding kind addressed by the path.
func (p ResourceBindingPath) Type() BindingType {
	switch {
	case p&bindingPathBufferBit != 0:
		return BindingBuffer
	case p&bindingPathSamplerBit != 0:
		return BindingSampler
	default:
		return BindingTexture
	}
}

// Stages returns the shader stages that can see the binding.
func (p ResourceBindingPath) Stages() gputypes.ShaderStages {
	var s gputypes.ShaderStages
	if p&bindingPathVertexBit != 0 {
		s |= gputypes.ShaderStageVertex
	}
	if p&bindingPathFragmentBit != 0 {
		s |= gputypes.ShaderStageFragment
	}
	return s
}

// WithArrayIndex returns a copy of the path addressing a different array
// element.
func (p ResourceBindingPath) WithArrayIndex(arrayIndex uint32) ResourceBindingPath {
	return p&^bindingPathArrayIndexMask | ResourceBindingPath(arrayIndex)
}

// String returns a human-readable representation of the path.
func (p ResourceBindingPath) String() string {
	arg, nested := p.ArgumentBufferIndex()
	if nested {
		return fmt.Sprintf("BindingPath(%v index=%d array=%d argBuffer=%d)", p.Type(), p.Index(), p.ArrayIndex(), arg)
	}
	return fmt.Sprintf("BindingPath(%v index=%d array=%d)", p.Type(), p.Index(), p.ArrayIndex())
}

// String returns a human-readable representation of the binding type.
func (t BindingType) String() string {
	switch t {
	case BindingTexture:
		return "Texture"
	case BindingBuffer:
		return "Buffer"
	case BindingSampler:
		return "Sampler"
	default:
		return "Unknown"
	}
}
