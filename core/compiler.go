package core

import (
	"sort"

	"github.com/gogpu/framegraph/core/alloc"
	"github.com/gogpu/framegraph/types"
)

// CompilerOptions gate platform-dependent command selection.
type CompilerOptions struct {
	// SupportsMemoryBarriers selects fine-grained memory barriers for
	// same-encoder hazards; when false, texture hazards fall back to
	// texture barriers.
	SupportsMemoryBarriers bool
}

// RegistryView is the registry surface the compiler consults. It is an
// interface so compiler tests can fake materialisation state.
type RegistryView interface {
	// IsMaterialised reports whether the resource entered the frame with
	// a live backing (persistent, or a history buffer's second frame).
	IsMaterialised(r Resource) bool

	// NeedsWaitFencesOnFrameCompletion reports whether disposal fences
	// must be staged for the resource.
	NeedsWaitFencesOnFrameCompletion(r Resource) bool
}

// CompiledFrame is the dependency compiler's output.
type CompiledFrame struct {
	// Commands are the encoder-side resource commands, sorted by
	// (commandIndex, order, priority), to interleave with pass commands.
	Commands []ResourceCommand

	// PreFrame are the registry-side commands (materialise, dispose,
	// fence retain/release, disposal staging), sorted separately and
	// executed before encoding begins. Their indices preserve command
	// order so allocator aliasing sees materialise/dispose in stream
	// order.
	PreFrame []ResourceCommand

	// PassEncoderIndex maps each pass to its encoder slot; -1 for
	// inactive passes.
	PassEncoderIndex []int

	// EncoderCount is the number of encoder slots.
	EncoderCount int
}

// encoderPair keys a cross-encoder fence group.
type encoderPair struct {
	from, to int
}

// fenceGroup accumulates the dependencies between one encoder pair: the
// update index widens to the latest source command, the wait index shrinks
// to the earliest dependent command, and the stages merge by union.
type fenceGroup struct {
	updateIndex int
	waitIndex   int
	after       types.Stages
	before      types.Stages
}

// CompileFrame runs the per-frame linear scan over every resource's usage
// list, producing the ordered resource commands and cross-encoder fence
// pairs.
func CompileFrame(
	table *ResourceTable,
	reg RegistryView,
	fences *alloc.FencePool,
	passes []PassRecord,
	merge *MergeResult,
	log *UsageLog,
	opts CompilerOptions,
) (*CompiledFrame, error) {
	encoderIndex, encoderCount := passEncoderIndexes(passes, merge.PassTargets)

	c := &CompiledFrame{
		PassEncoderIndex: encoderIndex,
		EncoderCount:     encoderCount,
	}
	groups := make(map[encoderPair]*fenceGroup)

	var firstErr error
	log.ForEach(func(r Resource, usages []ResourceUsage) bool {
		if err := compileResource(c, groups, table, reg, fences, passes, encoderIndex, r, usages, opts); err != nil {
			firstErr = err
			return false
		}
		return true
	})
	if firstErr != nil {
		return nil, firstErr
	}

	emitFenceGroups(c, groups, fences)

	SortResourceCommands(c.Commands)
	SortResourceCommands(c.PreFrame)
	return c, nil
}

// passEncoderIndexes assigns an encoder slot to every active pass: a new
// encoder begins on a kind change, or between draw passes whose merged
// render targets differ.
func passEncoderIndexes(passes []PassRecord, targets []*MergedRenderTarget) ([]int, int) {
	out := make([]int, len(passes))
	for i := range out {
		out[i] = -1
	}

	index := -1
	var prev *PassRecord
	var prevTarget *MergedRenderTarget
	for i := range passes {
		p := &passes[i]
		if !p.Active {
			continue
		}
		var target *MergedRenderTarget
		if p.Kind == types.PassDraw && targets != nil {
			target = targets[i]
		}
		if prev == nil || p.Kind != prev.Kind || (p.Kind == types.PassDraw && target != prevTarget) {
			index++
		}
		out[i] = index
		prev = p
		prevTarget = target
	}
	return out, index + 1
}

// usageAt pairs a usage with its encoder slot during the dependency scan.
type usageAt struct {
	u       ResourceUsage
	encoder int
}

func compileResource(
	c *CompiledFrame,
	groups map[encoderPair]*fenceGroup,
	table *ResourceTable,
	reg RegistryView,
	fences *alloc.FencePool,
	passes []PassRecord,
	encoderIndex []int,
	r Resource,
	usages []ResourceUsage,
	opts CompilerOptions,
) error {
	flags := table.Flags(r)
	state := table.State(r)

	var active []ResourceUsage
	for _, u := range usages {
		if !u.Type.IsActive() {
			continue
		}
		if u.PassIndex < 0 || u.PassIndex >= len(passes) || !passes[u.PassIndex].Active {
			continue
		}
		active = append(active, u)
	}
	if len(active) == 0 {
		return nil
	}

	if flags.Has(types.FlagImmutableOnceInitialised) && state.Has(types.StateInitialised) {
		for _, u := range active {
			if u.Type.IsWrite() {
				return &InvariantError{Op: "compileFrame", Resource: r,
					Message: "write usage on an immutable resource that is already initialised"}
			}
		}
	}

	first, last := active[0], active[len(active)-1]
	materialised := reg.IsMaterialised(r)
	transient := !flags.Has(types.FlagPersistent) || flags.Has(types.FlagWindowHandle)

	if transient {
		if !materialised {
			c.PreFrame = append(c.PreFrame, ResourceCommand{
				Kind:     materialiseKind(r, flags),
				Index:    first.CommandRange.Lower,
				Order:    OrderBefore,
				Resource: r,
			})
		}
		c.PreFrame = append(c.PreFrame, ResourceCommand{
			Kind:     CommandDisposeResource,
			Index:    last.CommandRange.Upper - 1,
			Order:    OrderAfter,
			Resource: r,
		})
	}
	if materialised {
		// Fences attached by a previous frame are released once this
		// frame's last use has been fenced.
		c.PreFrame = append(c.PreFrame, ResourceCommand{
			Kind:     CommandReleaseMultiframeFences,
			Index:    last.CommandRange.Upper - 1,
			Order:    OrderAfter,
			Resource: r,
		})
	}

	emitResidency(c, encoderIndex, r, active)

	// Per-resource dependency pass.
	var previousWrite *usageAt
	var readsSinceLastWrite []usageAt
	waitedEncoders := make(map[int]bool)

	for _, u := range active {
		if u.Stages.IsCPUBeforeRender() {
			continue
		}
		e := encoderIndex[u.PassIndex]

		// First usage in an encoder with no prior write this frame:
		// honour the fences attached by the previous frame's disposal.
		if previousWrite == nil && !waitedEncoders[e] {
			role := RoleRead
			if u.Type.IsWrite() {
				role = RoleWrite
			}
			c.Commands = append(c.Commands, ResourceCommand{
				Kind:         CommandWaitForMultiframeFence,
				Index:        u.CommandRange.Lower,
				Order:        OrderBefore,
				Resource:     r,
				Role:         role,
				BeforeStages: u.Stages.First(),
			})
			waitedEncoders[e] = true
		}

		if u.Type.IsRead() && previousWrite != nil {
			if previousWrite.encoder != e {
				addDependency(groups, previousWrite, usageAt{u, e})
			} else if !(u.Type.IsRenderTarget() && previousWrite.u.Type.IsRenderTarget()) {
				// Same-encoder read after write: the render pass
				// orders attachment accesses itself, everything
				// else needs an explicit barrier.
				emitSameEncoderBarrier(c, r, previousWrite.u, u, opts)
			}
		}

		if u.Type.IsWrite() {
			for _, rd := range readsSinceLastWrite {
				if rd.encoder != e {
					addDependency(groups, &rd, usageAt{u, e})
				}
			}
			if previousWrite != nil && previousWrite.encoder != e {
				addDependency(groups, previousWrite, usageAt{u, e})
			}
			previousWrite = &usageAt{u, e}
			readsSinceLastWrite = readsSinceLastWrite[:0]
		} else if u.Type.IsRead() {
			readsSinceLastWrite = append(readsSinceLastWrite, usageAt{u, e})
		}
	}

	// Disposal fencing: stage the fences next frame's users wait on.
	if reg.NeedsWaitFencesOnFrameCompletion(r) {
		emitDisposalFences(c, fences, r, flags, previousWrite, readsSinceLastWrite, last)
	}

	return nil
}

func materialiseKind(r Resource, flags types.ResourceFlags) ResourceCommandKind {
	if r.Kind() == types.ResourceKindBuffer {
		if flags.Has(types.FlagArgumentBuffer) {
			return CommandMaterialiseArgumentBuffer
		}
		return CommandMaterialiseBuffer
	}
	if flags.Has(types.FlagPixelFormatView) {
		return CommandMaterialiseTextureView
	}
	return CommandMaterialiseTexture
}

// emitResidency collapses contiguous argument-buffer usages within one
// encoder into a single use-resource command at the stretch's first command
// index.
func emitResidency(c *CompiledFrame, encoderIndex []int, r Resource, active []ResourceUsage) {
	var (
		inRun    bool
		runStart int
		runEnc   int
		mask     types.ResourceUse
	)
	flushRun := func() {
		if !inRun {
			return
		}
		c.Commands = append(c.Commands, ResourceCommand{
			Kind:     CommandUseResource,
			Index:    runStart,
			Order:    OrderBefore,
			Resource: r,
			Mask:     mask,
		})
		inRun = false
		mask = 0
	}

	for _, u := range active {
		if !u.InArgumentBuffer || u.Stages.IsCPUBeforeRender() {
			flushRun()
			continue
		}
		e := encoderIndex[u.PassIndex]
		if inRun && e != runEnc {
			flushRun()
		}
		if !inRun {
			inRun = true
			runStart = u.CommandRange.Lower
			runEnc = e
		}
		if u.Type.IsRead() {
			mask |= types.ResourceUseRead
			if r.Kind() == types.ResourceKindTexture {
				mask |= types.ResourceUseSample
			}
		}
		if u.Type.IsWrite() {
			mask |= types.ResourceUseWrite
		}
	}
	flushRun()
}

func emitSameEncoderBarrier(c *CompiledFrame, r Resource, write, read ResourceUsage, opts CompilerOptions) {
	if opts.SupportsMemoryBarriers || r.Kind() == types.ResourceKindBuffer {
		c.Commands = append(c.Commands, ResourceCommand{
			Kind:         CommandMemoryBarrier,
			Index:        read.CommandRange.Lower,
			Order:        OrderBefore,
			Resource:     r,
			AfterStages:  write.Stages,
			BeforeStages: read.Stages,
		})
		return
	}
	c.Commands = append(c.Commands, ResourceCommand{
		Kind:     CommandTextureBarrier,
		Index:    read.CommandRange.Lower,
		Order:    OrderBefore,
		Resource: r,
	})
}

func addDependency(groups map[encoderPair]*fenceGroup, src *usageAt, dst usageAt) {
	key := encoderPair{from: src.encoder, to: dst.encoder}
	g, ok := groups[key]
	if !ok {
		g = &fenceGroup{
			updateIndex: src.u.CommandRange.Upper - 1,
			waitIndex:   dst.u.CommandRange.Lower,
		}
		groups[key] = g
	}
	if idx := src.u.CommandRange.Upper - 1; idx > g.updateIndex {
		g.updateIndex = idx
	}
	if idx := dst.u.CommandRange.Lower; idx < g.waitIndex {
		g.waitIndex = idx
	}
	g.after = g.after.Union(src.u.Stages)
	g.before = g.before.Union(dst.u.Stages)
}

// emitFenceGroups allocates one fence per dependent encoder pair and emits
// the update/wait commands plus the pre-frame release of the compiler's
// allocation reference.
func emitFenceGroups(c *CompiledFrame, groups map[encoderPair]*fenceGroup, fences *alloc.FencePool) {
	keys := make([]encoderPair, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].from != keys[j].from {
			return keys[i].from < keys[j].from
		}
		return keys[i].to < keys[j].to
	})

	for _, key := range keys {
		g := groups[key]
		f := fences.Allocate()
		c.Commands = append(c.Commands, ResourceCommand{
			Kind:        CommandUpdateFence,
			Index:       g.updateIndex,
			Order:       OrderAfter,
			Fence:       f,
			AfterStages: g.after,
		})
		c.Commands = append(c.Commands, ResourceCommand{
			Kind:         CommandWaitForFence,
			Index:        g.waitIndex,
			Order:        OrderBefore,
			Fence:        f,
			BeforeStages: g.before,
		})
		c.PreFrame = append(c.PreFrame, ResourceCommand{
			Kind:  CommandReleaseFence,
			Index: g.updateIndex,
			Order: OrderAfter,
			Fence: f,
		})
	}
}

// emitDisposalFences allocates the read-side fence after the last write and
// one write-side fence per outstanding read, then stages them for the next
// frame at the resource's last command index.
func emitDisposalFences(
	c *CompiledFrame,
	fences *alloc.FencePool,
	r Resource,
	flags types.ResourceFlags,
	previousWrite *usageAt,
	readsSinceLastWrite []usageAt,
	last ResourceUsage,
) {
	var readFence *alloc.Fence
	var writeFences []*alloc.Fence
	index := last.CommandRange.Upper - 1

	if previousWrite != nil {
		readFence = fences.Allocate()
		c.Commands = append(c.Commands, ResourceCommand{
			Kind:        CommandUpdateFence,
			Index:       previousWrite.u.CommandRange.Upper - 1,
			Order:       OrderAfter,
			Fence:       readFence,
			AfterStages: previousWrite.u.Stages,
		})
	}

	if !flags.Has(types.FlagImmutableOnceInitialised) {
		for _, rd := range readsSinceLastWrite {
			f := fences.Allocate()
			c.Commands = append(c.Commands, ResourceCommand{
				Kind:        CommandUpdateFence,
				Index:       rd.u.CommandRange.Upper - 1,
				Order:       OrderAfter,
				Fence:       f,
				AfterStages: rd.u.Stages,
			})
			writeFences = append(writeFences, f)
		}
		// A future writer must also order against the last write.
		if readFence != nil {
			writeFences = append(writeFences, readFence)
		}
	}

	if readFence == nil && len(writeFences) == 0 {
		return
	}

	staged := alloc.FenceSet{WriteWait: writeFences}
	if readFence != nil {
		staged.ReadWait = []*alloc.Fence{readFence}
	}
	for _, f := range staged.All() {
		// One retain per distinct fence for the reference's hold, and
		// one release dropping the compiler's allocation reference.
		c.PreFrame = append(c.PreFrame, ResourceCommand{
			Kind: CommandRetainFence, Index: index, Order: OrderAfter, Fence: f,
		})
		c.PreFrame = append(c.PreFrame, ResourceCommand{
			Kind: CommandReleaseFence, Index: index, Order: OrderAfter, Fence: f,
		})
	}
	c.PreFrame = append(c.PreFrame, ResourceCommand{
		Kind:        CommandSetDisposalFences,
		Index:       index,
		Order:       OrderAfter,
		Resource:    r,
		ReadFence:   readFence,
		WriteFences: writeFences,
	})
}
