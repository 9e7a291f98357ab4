package framegraph

import (
	"fmt"
	"log/slog"

	"github.com/gogpu/framegraph/core"
	"github.com/gogpu/framegraph/core/alloc"
	"github.com/gogpu/framegraph/hal"
	"github.com/gogpu/framegraph/internal/thread"
	"github.com/gogpu/framegraph/types"
)

// FrameGraph drives declaratively described frames against a HAL device.
//
// Execute must be called from one frame thread; the resource table and the
// registry tolerate concurrent handle creation and argument-buffer
// materialisation from recording threads.
type FrameGraph struct {
	device   hal.Device
	opts     Options
	log      *slog.Logger
	table    *core.ResourceTable
	fences   *alloc.FencePool
	registry *core.ResourceRegistry

	// mainThread, when set, services drawable acquisition off the frame
	// thread.
	mainThread *thread.Main

	frameIndex uint64
}

// New creates a frame graph over the device.
func New(device hal.Device, opts Options) *FrameGraph {
	log := opts.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	table := core.NewResourceTable()
	fences := alloc.NewFencePool(device)
	return &FrameGraph{
		device:   device,
		opts:     opts,
		log:      log,
		table:    table,
		fences:   fences,
		registry: core.NewResourceRegistry(device, table, fences, opts.registryOptions()),
	}
}

// Resources returns the handle table for declaring resources.
func (g *FrameGraph) Resources() *core.ResourceTable { return g.table }

// Registry returns the resource registry.
func (g *FrameGraph) Registry() *core.ResourceRegistry { return g.registry }

// SetMainThread installs the thread drawable acquisition is serviced on.
// Without one, acquisition runs inline on the frame thread.
func (g *FrameGraph) SetMainThread(t *thread.Main) { g.mainThread = t }

// MaterialisePersistent gives a persistent resource its backing.
func (g *FrameGraph) MaterialisePersistent(r core.Resource) error {
	return g.registry.MaterialisePersistent(r)
}

// DisposePersistent releases a persistent resource's backing.
func (g *FrameGraph) DisposePersistent(r core.Resource) error {
	return g.registry.DisposePersistent(r)
}

// Frame is one frame submission.
type Frame struct {
	// Passes are the recorded pass list; each record's Index must match
	// its position.
	Passes []core.PassRecord

	// Usages is the per-resource usage log produced by recording.
	Usages *core.UsageLog

	// Commands is the flat command stream pass records reference.
	Commands []PassCommand

	// OnComplete runs once the GPU has finished the frame's work.
	OnComplete func()
}

// Execute compiles and submits one frame: merge render targets, compile
// resource commands, execute the pre-frame registry stream, walk the passes
// interleaving resource commands with pass commands, present, commit, and
// cycle the allocator rings.
func (g *FrameGraph) Execute(frame Frame) error {
	for i := range frame.Passes {
		if frame.Passes[i].Index != i {
			return &core.InvariantError{Op: "execute",
				Message: fmt.Sprintf("pass %q index %d does not match position %d",
					frame.Passes[i].Name, frame.Passes[i].Index, i)}
		}
	}
	if frame.Usages == nil {
		frame.Usages = core.NewUsageLog()
	}

	merge, err := core.MergeRenderTargets(g.table, frame.Passes, frame.Usages)
	if err != nil {
		return err
	}
	compiled, err := core.CompileFrame(g.table, g.registry, g.fences, frame.Passes, merge,
		frame.Usages, core.CompilerOptions{SupportsMemoryBarriers: g.opts.SupportsMemoryBarriers})
	if err != nil {
		return err
	}
	if err := g.registry.ExecutePreFrame(compiled.PreFrame); err != nil {
		return err
	}

	cb, err := g.device.NewCommandBuffer(fmt.Sprintf("frame-%d", g.frameIndex))
	if err != nil {
		return err
	}

	enc := &frameEncoder{
		graph:        g,
		cb:           cb,
		commands:     compiled.Commands,
		encoderIndex: -1,
	}
	for i := range frame.Passes {
		p := &frame.Passes[i]
		if !p.Active {
			continue
		}
		if err := enc.beginPass(p, compiled.PassEncoderIndex[i], merge.PassTargets[i]); err != nil {
			return err
		}
		ctx := enc.context()
		if enc.current != nil && p.Name != "" {
			enc.current.PushDebugGroup(p.Name)
		}
		for ci := p.Commands.Lower; ci < p.Commands.Upper; ci++ {
			enc.advanceTo(ci, core.OrderBefore)
			if !enc.skipped && ci >= 0 && ci < len(frame.Commands) && frame.Commands[ci] != nil {
				if err := frame.Commands[ci].Encode(ctx); err != nil {
					return err
				}
			}
			enc.advanceTo(ci, core.OrderAfter)
		}
		if enc.current != nil && p.Name != "" {
			enc.current.PopDebugGroup()
		}
	}
	enc.finish()

	for _, d := range g.registry.TakeDrawables() {
		cb.Present(d)
	}
	cb.Commit(frame.OnComplete)

	g.registry.CycleFrames()
	g.frameIndex++
	return nil
}

// frameEncoder walks the pass list, opening and closing encoders on slot
// changes and dispatching the compiled resource-command stream at the right
// command indexes.
type frameEncoder struct {
	graph    *FrameGraph
	cb       hal.CommandBuffer
	commands []core.ResourceCommand
	cursor   int

	encoderIndex int
	current      hal.Encoder
	render       hal.RenderEncoder
	compute      hal.ComputeEncoder
	blit         hal.BlitEncoder

	// skipped marks a draw encoder dropped because its drawable or
	// render-target view could not be acquired; its pass commands and
	// encoder-side resource commands are discarded.
	skipped bool
}

func (e *frameEncoder) context() *EncodeContext {
	return &EncodeContext{
		Render:        e.render,
		Compute:       e.compute,
		Blit:          e.blit,
		CommandBuffer: e.cb,
		registry:      e.graph.registry,
	}
}

func (e *frameEncoder) beginPass(p *core.PassRecord, slot int, target *core.MergedRenderTarget) error {
	if slot == e.encoderIndex {
		return nil
	}
	e.closeCurrent()
	e.encoderIndex = slot
	e.skipped = false

	switch p.Kind {
	case types.PassDraw:
		desc, err := e.graph.buildRenderPassDescriptor(target)
		if err != nil {
			e.graph.log.Warn("framegraph: draw pass skipped",
				"pass", p.Name, "error", err)
			e.skipped = true
			return nil
		}
		render, err := e.cb.BeginRenderEncoder(desc)
		if err != nil {
			e.graph.log.Warn("framegraph: draw pass skipped",
				"pass", p.Name, "error", err)
			e.skipped = true
			return nil
		}
		e.render = render
		e.current = render
	case types.PassCompute:
		e.compute = e.cb.BeginComputeEncoder(p.Name)
		e.current = e.compute
	case types.PassBlit:
		e.blit = e.cb.BeginBlitEncoder(p.Name)
		e.current = e.blit
	case types.PassExternal, types.PassCPU:
		// No encoder; commands see the command buffer only.
	}
	return nil
}

func (e *frameEncoder) closeCurrent() {
	if e.current != nil {
		e.current.EndEncoding()
	}
	e.current = nil
	e.render = nil
	e.compute = nil
	e.blit = nil
}

// advanceTo dispatches every pending resource command up to the given
// command index and phase.
func (e *frameEncoder) advanceTo(index int, phase core.CommandOrder) {
	for e.cursor < len(e.commands) {
		c := &e.commands[e.cursor]
		if c.Index > index {
			return
		}
		if c.Index == index && phase == core.OrderBefore && c.Order == core.OrderAfter {
			return
		}
		e.dispatch(c)
		e.cursor++
	}
}

// finish closes the last encoder after draining the remaining commands.
func (e *frameEncoder) finish() {
	for e.cursor < len(e.commands) {
		e.dispatch(&e.commands[e.cursor])
		e.cursor++
	}
	e.closeCurrent()
	e.encoderIndex = -1
}

func (e *frameEncoder) dispatch(c *core.ResourceCommand) {
	if e.current == nil {
		// Skipped draw pass or CPU/external region: materialise
		// without draw is harmless, encoder-side sync has nothing to
		// order.
		e.graph.log.Debug("framegraph: resource command dropped without encoder",
			"kind", c.Kind.String(), "index", c.Index)
		return
	}

	switch c.Kind {
	case core.CommandUseResource:
		if ref, ok := e.graph.registry.Reference(c.Resource); ok {
			e.current.UseResource(ref.Resource(), c.Mask)
		}
	case core.CommandMemoryBarrier:
		var resources []hal.Resource
		if ref, ok := e.graph.registry.Reference(c.Resource); ok {
			resources = append(resources, ref.Resource())
		}
		e.current.MemoryBarrier(resources, c.AfterStages, c.BeforeStages)
	case core.CommandTextureBarrier:
		e.current.TextureBarrier()
	case core.CommandUpdateFence:
		e.current.UpdateFence(c.Fence.Hal(), c.AfterStages)
	case core.CommandWaitForFence:
		e.current.WaitForFence(c.Fence.Hal(), c.BeforeStages)
	case core.CommandWaitForMultiframeFence:
		ref, ok := e.graph.registry.Reference(c.Resource)
		if !ok {
			return
		}
		waits := ref.Usage.ReadWait
		if c.Role == core.RoleWrite {
			waits = ref.Usage.WriteWait
		}
		for _, f := range waits {
			e.current.WaitForFence(f.Hal(), c.BeforeStages)
		}
	default:
		e.graph.log.Debug("framegraph: registry command in encoder stream",
			"kind", c.Kind.String())
	}
}

// buildRenderPassDescriptor resolves a merged render target's attachments
// to their materialised backings, acquiring window drawables on the way.
func (g *FrameGraph) buildRenderPassDescriptor(m *core.MergedRenderTarget) (*hal.RenderPassDescriptor, error) {
	if m == nil {
		return nil, &core.InvariantError{Op: "buildRenderPassDescriptor",
			Message: "draw pass without a merged render target"}
	}
	desc := &hal.RenderPassDescriptor{
		Label:                   m.Label,
		RenderTargetArrayLength: m.ArrayLength,
	}

	for i, att := range m.Color {
		if att == nil {
			desc.ColorAttachments = append(desc.ColorAttachments, nil)
			continue
		}
		tex, err := g.attachmentTexture(att.Texture)
		if err != nil {
			return nil, err
		}
		desc.ColorAttachments = append(desc.ColorAttachments, &hal.ColorAttachment{
			Texture:     tex,
			Slice:       att.Slice,
			Level:       att.Level,
			DepthPlane:  att.DepthPlane,
			LoadAction:  m.ColorActions[i].Load,
			StoreAction: m.ColorActions[i].Store,
			ClearColor:  att.ClearColor,
		})
	}
	if att := m.Depth; att != nil {
		tex, err := g.attachmentTexture(att.Texture)
		if err != nil {
			return nil, err
		}
		desc.Depth = &hal.DepthAttachment{
			Texture:     tex,
			Slice:       att.Slice,
			Level:       att.Level,
			LoadAction:  m.DepthActions.Load,
			StoreAction: m.DepthActions.Store,
			ClearDepth:  att.ClearDepth,
		}
	}
	if att := m.Stencil; att != nil {
		tex, err := g.attachmentTexture(att.Texture)
		if err != nil {
			return nil, err
		}
		desc.Stencil = &hal.StencilAttachment{
			Texture:      tex,
			Slice:        att.Slice,
			Level:        att.Level,
			LoadAction:   m.StencilActions.Load,
			StoreAction:  m.StencilActions.Store,
			ClearStencil: att.ClearStencil,
		}
	}
	if !m.VisibilityResultBuffer.IsZero() {
		if ref, ok := g.registry.Reference(core.BufferResource(m.VisibilityResultBuffer)); ok {
			desc.VisibilityResultBuffer = ref.Buffer
		}
	}
	return desc, nil
}

func (g *FrameGraph) attachmentTexture(id core.TextureID) (hal.Texture, error) {
	res := core.TextureResource(id)
	if g.table.Flags(res).Has(types.FlagWindowHandle) {
		return g.acquireDrawableTexture(id)
	}
	ref, ok := g.registry.Reference(res)
	if !ok || ref.Texture == nil {
		return nil, fmt.Errorf("%w: attachment %v", core.ErrNotMaterialised, id)
	}
	return ref.Texture, nil
}

// acquireDrawableTexture backs a window texture with the next drawable,
// servicing the acquisition on the main thread when one is installed.
func (g *FrameGraph) acquireDrawableTexture(id core.TextureID) (hal.Texture, error) {
	if ref, ok := g.registry.Reference(core.TextureResource(id)); ok && ref.Texture != nil {
		return ref.Texture, nil
	}
	source := g.table.DrawableSourceFor(id)
	if source == nil {
		return nil, &core.InvariantError{Op: "acquireDrawable",
			Resource: core.TextureResource(id), Message: "window texture without a drawable source"}
	}

	var (
		d   hal.Drawable
		err error
	)
	if g.mainThread != nil {
		d, err = g.mainThread.Acquire(source)
	} else {
		d, err = source.NextDrawable()
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrDrawableUnavailable, err)
	}
	g.registry.AttachDrawable(id, d)
	return d.Texture(), nil
}
