package noop

import (
	"github.com/gogpu/framegraph/hal"
	"github.com/gogpu/framegraph/types"
)

// CommandKind names a recorded encoder or command-buffer operation.
type CommandKind string

// Recorded command kinds.
const (
	KindBeginRender   CommandKind = "beginRenderEncoder"
	KindBeginCompute  CommandKind = "beginComputeEncoder"
	KindBeginBlit     CommandKind = "beginBlitEncoder"
	KindEndEncoding   CommandKind = "endEncoding"
	KindUpdateFence   CommandKind = "updateFence"
	KindWaitForFence  CommandKind = "waitForFence"
	KindUseResource   CommandKind = "useResource"
	KindMemoryBarrier CommandKind = "memoryBarrier"
	KindTextureBarrier CommandKind = "textureBarrier"
	KindDraw          CommandKind = "draw"
	KindDrawIndexed   CommandKind = "drawIndexed"
	KindDispatch      CommandKind = "dispatchThreadgroups"
	KindCopy          CommandKind = "copy"
	KindFill          CommandKind = "fillBuffer"
	KindSetBuffer     CommandKind = "setBuffer"
	KindSetTexture    CommandKind = "setTexture"
	KindPushDebug     CommandKind = "pushDebugGroup"
	KindPopDebug      CommandKind = "popDebugGroup"
	KindPresent       CommandKind = "present"
	KindCommit        CommandKind = "commit"
)

// Command is one recorded operation. Only the fields relevant to Kind are
// populated.
type Command struct {
	// Encoder is the label of the encoder that recorded the command;
	// empty for command-buffer-level operations.
	Encoder string

	Kind CommandKind

	Fence         hal.Fence
	After, Before types.Stages
	Resource      hal.Resource
	Resources     []hal.Resource
	Mask          types.ResourceUse
	Pass          *hal.RenderPassDescriptor
	Drawable      hal.Drawable
	Label         string

	Vertices, Instances uint32
	X, Y, Z             uint32
	Size                uint64
}

// CommandBuffer implements hal.CommandBuffer, recording everything.
type CommandBuffer struct {
	dev       *Device
	label     string
	commands  []Command
	presented []hal.Drawable
	committed bool
	encoders  int
}

// Commands returns the recorded command log.
func (cb *CommandBuffer) Commands() []Command { return cb.commands }

// CommandsOfKind returns the recorded commands of one kind, in order.
func (cb *CommandBuffer) CommandsOfKind(kind CommandKind) []Command {
	var out []Command
	for _, c := range cb.commands {
		if c.Kind == kind {
			out = append(out, c)
		}
	}
	return out
}

// Presented returns the drawables enqueued for presentation.
func (cb *CommandBuffer) Presented() []hal.Drawable { return cb.presented }

// Committed reports whether Commit was called.
func (cb *CommandBuffer) Committed() bool { return cb.committed }

// EncoderCount returns the number of encoders opened on this buffer.
func (cb *CommandBuffer) EncoderCount() int { return cb.encoders }

func (cb *CommandBuffer) record(c Command) { cb.commands = append(cb.commands, c) }

// BeginRenderEncoder opens a recording render encoder.
func (cb *CommandBuffer) BeginRenderEncoder(desc *hal.RenderPassDescriptor) (hal.RenderEncoder, error) {
	cb.encoders++
	cb.record(Command{Kind: KindBeginRender, Encoder: desc.Label, Pass: desc})
	return &renderEncoder{encoder: newEncoder(cb, desc.Label)}, nil
}

// BeginComputeEncoder opens a recording compute encoder.
func (cb *CommandBuffer) BeginComputeEncoder(label string) hal.ComputeEncoder {
	cb.encoders++
	cb.record(Command{Kind: KindBeginCompute, Encoder: label})
	return &computeEncoder{encoder: newEncoder(cb, label)}
}

// BeginBlitEncoder opens a recording blit encoder.
func (cb *CommandBuffer) BeginBlitEncoder(label string) hal.BlitEncoder {
	cb.encoders++
	cb.record(Command{Kind: KindBeginBlit, Encoder: label})
	return &blitEncoder{encoder: newEncoder(cb, label)}
}

// Present enqueues a drawable for presentation.
func (cb *CommandBuffer) Present(d hal.Drawable) {
	cb.presented = append(cb.presented, d)
	if nd, ok := d.(*Drawable); ok {
		nd.presented = true
	}
	cb.record(Command{Kind: KindPresent, Drawable: d})
}

// Commit marks the buffer committed and runs the completion callback
// synchronously.
func (cb *CommandBuffer) Commit(onComplete func()) {
	cb.committed = true
	cb.record(Command{Kind: KindCommit})
	if onComplete != nil {
		onComplete()
	}
}

// fenceWait keys the per-encoder wait dedup set.
type fenceWait struct {
	fence  hal.Fence
	stages types.Stages
}

// encoder implements the shared hal.Encoder surface with the dedup contract:
// no duplicate (fence, stages) wait, and no wait on a fence this encoder has
// updated.
type encoder struct {
	cb      *CommandBuffer
	label   string
	updated map[hal.Fence]bool
	waited  map[fenceWait]bool
	ended   bool
}

func newEncoder(cb *CommandBuffer, label string) encoder {
	return encoder{
		cb:      cb,
		label:   label,
		updated: make(map[hal.Fence]bool),
		waited:  make(map[fenceWait]bool),
	}
}

func (e *encoder) record(c Command) {
	c.Encoder = e.label
	e.cb.record(c)
}

// SetLabel renames the encoder for subsequent commands.
func (e *encoder) SetLabel(label string) { e.label = label }

// PushDebugGroup opens a named debug region.
func (e *encoder) PushDebugGroup(label string) {
	e.record(Command{Kind: KindPushDebug, Label: label})
}

// PopDebugGroup closes the innermost debug region.
func (e *encoder) PopDebugGroup() {
	e.record(Command{Kind: KindPopDebug})
}

// UpdateFence records a fence signal.
func (e *encoder) UpdateFence(f hal.Fence, afterStages types.Stages) {
	e.updated[f] = true
	e.record(Command{Kind: KindUpdateFence, Fence: f, After: afterStages})
}

// WaitForFence records a fence wait unless the dedup contract drops it.
func (e *encoder) WaitForFence(f hal.Fence, beforeStages types.Stages) {
	if e.updated[f] {
		return
	}
	key := fenceWait{fence: f, stages: beforeStages}
	if e.waited[key] {
		return
	}
	e.waited[key] = true
	e.record(Command{Kind: KindWaitForFence, Fence: f, Before: beforeStages})
}

// UseResource records a residency declaration.
func (e *encoder) UseResource(r hal.Resource, mask types.ResourceUse) {
	e.record(Command{Kind: KindUseResource, Resource: r, Mask: mask})
}

// MemoryBarrier records a stage-qualified barrier.
func (e *encoder) MemoryBarrier(resources []hal.Resource, afterStages, beforeStages types.Stages) {
	e.record(Command{Kind: KindMemoryBarrier, Resources: resources, After: afterStages, Before: beforeStages})
}

// TextureBarrier records a render-target coherence barrier.
func (e *encoder) TextureBarrier() {
	e.record(Command{Kind: KindTextureBarrier})
}

// EndEncoding finishes the encoder.
func (e *encoder) EndEncoding() {
	e.ended = true
	e.record(Command{Kind: KindEndEncoding})
}

type renderEncoder struct {
	encoder
}

// Draw records an instanced draw.
func (e *renderEncoder) Draw(vertexCount, instanceCount uint32) {
	e.record(Command{Kind: KindDraw, Vertices: vertexCount, Instances: instanceCount})
}

// DrawIndexed records an indexed draw.
func (e *renderEncoder) DrawIndexed(indexCount, instanceCount uint32) {
	e.record(Command{Kind: KindDrawIndexed, Vertices: indexCount, Instances: instanceCount})
}

// SetVertexBuffer records a vertex buffer binding.
func (e *renderEncoder) SetVertexBuffer(slot uint32, b hal.Buffer, offset uint64) {
	e.record(Command{Kind: KindSetBuffer, Resource: b, X: slot, Size: offset})
}

// SetFragmentBuffer records a fragment buffer binding.
func (e *renderEncoder) SetFragmentBuffer(slot uint32, b hal.Buffer, offset uint64) {
	e.record(Command{Kind: KindSetBuffer, Resource: b, X: slot, Size: offset})
}

// SetFragmentTexture records a fragment texture binding.
func (e *renderEncoder) SetFragmentTexture(slot uint32, t hal.Texture) {
	e.record(Command{Kind: KindSetTexture, Resource: t, X: slot})
}

type computeEncoder struct {
	encoder
}

// SetBuffer records a compute buffer binding.
func (e *computeEncoder) SetBuffer(slot uint32, b hal.Buffer, offset uint64) {
	e.record(Command{Kind: KindSetBuffer, Resource: b, X: slot, Size: offset})
}

// SetTexture records a compute texture binding.
func (e *computeEncoder) SetTexture(slot uint32, t hal.Texture) {
	e.record(Command{Kind: KindSetTexture, Resource: t, X: slot})
}

// DispatchThreadgroups records a dispatch.
func (e *computeEncoder) DispatchThreadgroups(x, y, z uint32) {
	e.record(Command{Kind: KindDispatch, X: x, Y: y, Z: z})
}

type blitEncoder struct {
	encoder
}

// CopyBufferToBuffer records a buffer copy.
func (e *blitEncoder) CopyBufferToBuffer(src hal.Buffer, srcOffset uint64, dst hal.Buffer, dstOffset, size uint64) {
	e.record(Command{Kind: KindCopy, Resource: src, Resources: []hal.Resource{src, dst}, Size: size})
}

// CopyBufferToTexture records an upload.
func (e *blitEncoder) CopyBufferToTexture(src hal.Buffer, srcOffset uint64, dst hal.Texture) {
	e.record(Command{Kind: KindCopy, Resources: []hal.Resource{src, dst}})
}

// CopyTextureToBuffer records a readback.
func (e *blitEncoder) CopyTextureToBuffer(src hal.Texture, dst hal.Buffer, dstOffset uint64) {
	e.record(Command{Kind: KindCopy, Resources: []hal.Resource{src, dst}})
}

// FillBuffer records a fill.
func (e *blitEncoder) FillBuffer(b hal.Buffer, offset, size uint64, value uint8) {
	e.record(Command{Kind: KindFill, Resource: b, Size: size})
}
