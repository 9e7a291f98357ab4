package core

import (
	"testing"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/framegraph/core/alloc"
	"github.com/gogpu/framegraph/hal/noop"
	"github.com/gogpu/framegraph/types"
)

// fakeRegistry fakes materialisation state for compiler tests.
type fakeRegistry struct {
	materialised map[Resource]bool
	needsFences  map[Resource]bool
}

func (f *fakeRegistry) IsMaterialised(r Resource) bool { return f.materialised[r] }
func (f *fakeRegistry) NeedsWaitFencesOnFrameCompletion(r Resource) bool {
	return f.needsFences[r]
}

func newFakeRegistry() *fakeRegistry {
	return &fakeRegistry{
		materialised: make(map[Resource]bool),
		needsFences:  make(map[Resource]bool),
	}
}

func compileTestFrame(t *testing.T, table *ResourceTable, reg RegistryView, passes []PassRecord, log *UsageLog) *CompiledFrame {
	t.Helper()
	merge, err := MergeRenderTargets(table, passes, log)
	if err != nil {
		t.Fatalf("MergeRenderTargets() error = %v", err)
	}
	fences := alloc.NewFencePool(noop.NewDevice())
	compiled, err := CompileFrame(table, reg, fences, passes, merge, log,
		CompilerOptions{SupportsMemoryBarriers: true})
	if err != nil {
		t.Fatalf("CompileFrame() error = %v", err)
	}
	return compiled
}

func findCommands(cmds []ResourceCommand, kind ResourceCommandKind) []ResourceCommand {
	var out []ResourceCommand
	for _, c := range cmds {
		if c.Kind == kind {
			out = append(out, c)
		}
	}
	return out
}

func TestCompileFrame_ComputeWritesDrawReads(t *testing.T) {
	// Scenario: compute writes buffer B, draw reads B in the vertex
	// stage. One fence with afterStages=compute, beforeStages=vertex;
	// use-resource(B, read) at the draw's first command index.
	table := NewResourceTable()
	buf := table.NewBuffer(types.BufferDescriptor{
		Length: 4096, StorageMode: types.StoragePrivate}, 0)
	res := BufferResource(buf)
	rt := table.NewTexture(rtTextureDesc(64, 64, gputypes.TextureFormatRGBA8Unorm), 0) // format irrelevant

	log := NewUsageLog()
	log.Record(res, ResourceUsage{PassIndex: 0, CommandRange: Range{0, 1},
		Type: types.UsageWrite, Stages: types.StageCompute})
	log.Record(res, ResourceUsage{PassIndex: 1, CommandRange: Range{1, 2},
		Type: types.UsageRead, Stages: types.StageVertex, InArgumentBuffer: true})

	passes := []PassRecord{
		{Kind: types.PassCompute, Active: true, Index: 0, Commands: Range{0, 1}},
		drawPass(1, Range{1, 2}, &RenderTargetDescriptor{
			ColorAttachments: []*Attachment{{Texture: rt}},
		}),
	}

	compiled := compileTestFrame(t, table, newFakeRegistry(), passes, log)

	if compiled.EncoderCount != 2 {
		t.Fatalf("EncoderCount = %d, want 2", compiled.EncoderCount)
	}

	updates := findCommands(compiled.Commands, CommandUpdateFence)
	waits := findCommands(compiled.Commands, CommandWaitForFence)
	if len(updates) != 1 || len(waits) != 1 {
		t.Fatalf("got %d updates, %d waits, want 1 and 1", len(updates), len(waits))
	}
	if updates[0].Fence != waits[0].Fence {
		t.Error("update and wait must share one fence")
	}
	if updates[0].AfterStages != types.StageCompute {
		t.Errorf("afterStages = %v, want Compute", updates[0].AfterStages)
	}
	if waits[0].BeforeStages != types.StageVertex {
		t.Errorf("beforeStages = %v, want Vertex", waits[0].BeforeStages)
	}
	if updates[0].Index != 0 || updates[0].Order != OrderAfter {
		t.Errorf("update placed at (%d,%v), want (0,After)", updates[0].Index, updates[0].Order)
	}
	if waits[0].Index != 1 || waits[0].Order != OrderBefore {
		t.Errorf("wait placed at (%d,%v), want (1,Before)", waits[0].Index, waits[0].Order)
	}

	uses := findCommands(compiled.Commands, CommandUseResource)
	if len(uses) != 1 {
		t.Fatalf("got %d use-resource commands, want 1", len(uses))
	}
	if uses[0].Index != 1 || !uses[0].Mask.Has(types.ResourceUseRead) {
		t.Errorf("use-resource at %d mask %v, want index 1 with read", uses[0].Index, uses[0].Mask)
	}
	if uses[0].Mask.Has(types.ResourceUseWrite) {
		t.Error("read-only stretch must not carry a write mask")
	}
}

func TestCompileFrame_SameEncoderBarrier(t *testing.T) {
	// Scenario: two compute dispatches write then read the same texture
	// within one encoder: no fence, one memory barrier at the read's
	// first command index.
	table := NewResourceTable()
	tex := table.NewTexture(rtTextureDesc(64, 64, gputypes.TextureFormatRGBA8Unorm), 0)
	res := TextureResource(tex)

	log := NewUsageLog()
	log.Record(res, ResourceUsage{PassIndex: 0, CommandRange: Range{0, 1},
		Type: types.UsageWrite, Stages: types.StageCompute})
	log.Record(res, ResourceUsage{PassIndex: 1, CommandRange: Range{1, 2},
		Type: types.UsageRead, Stages: types.StageCompute})

	passes := []PassRecord{
		{Kind: types.PassCompute, Active: true, Index: 0, Commands: Range{0, 1}},
		{Kind: types.PassCompute, Active: true, Index: 1, Commands: Range{1, 2}},
	}

	compiled := compileTestFrame(t, table, newFakeRegistry(), passes, log)

	if compiled.EncoderCount != 1 {
		t.Fatalf("EncoderCount = %d, want 1 (consecutive compute passes share)", compiled.EncoderCount)
	}
	if got := len(findCommands(compiled.Commands, CommandUpdateFence)); got != 0 {
		t.Errorf("got %d fences within one encoder, want 0", got)
	}
	barriers := findCommands(compiled.Commands, CommandMemoryBarrier)
	if len(barriers) != 1 {
		t.Fatalf("got %d memory barriers, want 1", len(barriers))
	}
	b := barriers[0]
	if b.Index != 1 || b.Order != OrderBefore {
		t.Errorf("barrier at (%d,%v), want (1,Before)", b.Index, b.Order)
	}
	if b.AfterStages != types.StageCompute || b.BeforeStages != types.StageCompute {
		t.Errorf("barrier stages = %v→%v, want Compute→Compute", b.AfterStages, b.BeforeStages)
	}
}

func TestCompileFrame_TextureBarrierFallback(t *testing.T) {
	table := NewResourceTable()
	tex := table.NewTexture(rtTextureDesc(64, 64, gputypes.TextureFormatRGBA8Unorm), 0)
	res := TextureResource(tex)

	log := NewUsageLog()
	log.Record(res, ResourceUsage{PassIndex: 0, CommandRange: Range{0, 1},
		Type: types.UsageWrite, Stages: types.StageCompute})
	log.Record(res, ResourceUsage{PassIndex: 1, CommandRange: Range{1, 2},
		Type: types.UsageRead, Stages: types.StageCompute})

	passes := []PassRecord{
		{Kind: types.PassCompute, Active: true, Index: 0, Commands: Range{0, 1}},
		{Kind: types.PassCompute, Active: true, Index: 1, Commands: Range{1, 2}},
	}

	merge, err := MergeRenderTargets(table, passes, log)
	if err != nil {
		t.Fatalf("MergeRenderTargets() error = %v", err)
	}
	fences := alloc.NewFencePool(noop.NewDevice())
	compiled, err := CompileFrame(table, newFakeRegistry(), fences, passes, merge, log,
		CompilerOptions{SupportsMemoryBarriers: false})
	if err != nil {
		t.Fatalf("CompileFrame() error = %v", err)
	}

	if got := len(findCommands(compiled.Commands, CommandMemoryBarrier)); got != 0 {
		t.Errorf("got %d memory barriers without platform support, want 0", got)
	}
	if got := len(findCommands(compiled.Commands, CommandTextureBarrier)); got != 1 {
		t.Errorf("got %d texture barriers, want 1", got)
	}
}

func TestCompileFrame_MaterialiseDisposePlacement(t *testing.T) {
	table := NewResourceTable()
	buf := table.NewBuffer(types.BufferDescriptor{
		Length: 4096, StorageMode: types.StoragePrivate}, 0)
	res := BufferResource(buf)

	log := NewUsageLog()
	log.Record(res, ResourceUsage{PassIndex: 0, CommandRange: Range{2, 4},
		Type: types.UsageWrite, Stages: types.StageCompute})
	log.Record(res, ResourceUsage{PassIndex: 1, CommandRange: Range{5, 7},
		Type: types.UsageRead, Stages: types.StageCompute})

	passes := []PassRecord{
		{Kind: types.PassCompute, Active: true, Index: 0, Commands: Range{0, 4}},
		{Kind: types.PassCompute, Active: true, Index: 1, Commands: Range{4, 8}},
	}

	compiled := compileTestFrame(t, table, newFakeRegistry(), passes, log)

	mats := findCommands(compiled.PreFrame, CommandMaterialiseBuffer)
	disposes := findCommands(compiled.PreFrame, CommandDisposeResource)
	if len(mats) != 1 || len(disposes) != 1 {
		t.Fatalf("got %d materialise, %d dispose, want 1 each", len(mats), len(disposes))
	}
	if mats[0].Index != 2 || mats[0].Order != OrderBefore {
		t.Errorf("materialise at (%d,%v), want (2,Before)", mats[0].Index, mats[0].Order)
	}
	if disposes[0].Index != 6 || disposes[0].Order != OrderAfter {
		t.Errorf("dispose at (%d,%v), want (6,After)", disposes[0].Index, disposes[0].Order)
	}
}

func TestCompileFrame_PersistentSkipsMaterialise(t *testing.T) {
	table := NewResourceTable()
	buf := table.NewBuffer(types.BufferDescriptor{
		Length: 4096, StorageMode: types.StoragePrivate}, types.FlagPersistent)
	res := BufferResource(buf)

	log := NewUsageLog()
	log.Record(res, ResourceUsage{PassIndex: 0, CommandRange: Range{0, 1},
		Type: types.UsageRead, Stages: types.StageCompute})

	passes := []PassRecord{
		{Kind: types.PassCompute, Active: true, Index: 0, Commands: Range{0, 1}},
	}

	reg := newFakeRegistry()
	reg.materialised[res] = true
	compiled := compileTestFrame(t, table, reg, passes, log)

	if got := len(findCommands(compiled.PreFrame, CommandMaterialiseBuffer)); got != 0 {
		t.Errorf("persistent resource got %d materialise commands, want 0", got)
	}
	if got := len(findCommands(compiled.PreFrame, CommandDisposeResource)); got != 0 {
		t.Errorf("persistent resource got %d dispose commands, want 0", got)
	}
	if got := len(findCommands(compiled.PreFrame, CommandReleaseMultiframeFences)); got != 1 {
		t.Errorf("got %d release-multiframe-fences, want 1", got)
	}
}

func TestCompileFrame_ImmutableWriteFails(t *testing.T) {
	table := NewResourceTable()
	buf := table.NewBuffer(types.BufferDescriptor{
		Length: 64, StorageMode: types.StoragePrivate}, types.FlagImmutableOnceInitialised)
	res := BufferResource(buf)
	table.MarkInitialised(res)

	log := NewUsageLog()
	log.Record(res, ResourceUsage{PassIndex: 0, CommandRange: Range{0, 1},
		Type: types.UsageWrite, Stages: types.StageCompute})

	passes := []PassRecord{
		{Kind: types.PassCompute, Active: true, Index: 0, Commands: Range{0, 1}},
	}

	merge, err := MergeRenderTargets(table, passes, log)
	if err != nil {
		t.Fatalf("MergeRenderTargets() error = %v", err)
	}
	fences := alloc.NewFencePool(noop.NewDevice())
	_, err = CompileFrame(table, newFakeRegistry(), fences, passes, merge, log, CompilerOptions{})
	if err == nil {
		t.Fatal("expected invariant violation for write to initialised immutable resource")
	}
	if !IsInvariantViolation(err) {
		t.Errorf("error = %v, want InvariantError", err)
	}
}

func TestCompileFrame_WaitForPrevFrameFence(t *testing.T) {
	table := NewResourceTable()
	buf := table.NewBuffer(types.BufferDescriptor{
		Length: 8 << 20, StorageMode: types.StoragePrivate}, 0)
	res := BufferResource(buf)

	log := NewUsageLog()
	log.Record(res, ResourceUsage{PassIndex: 0, CommandRange: Range{0, 1},
		Type: types.UsageWrite, Stages: types.StageCompute | types.StageBlit})

	passes := []PassRecord{
		{Kind: types.PassCompute, Active: true, Index: 0, Commands: Range{0, 1}},
	}

	reg := newFakeRegistry()
	reg.needsFences[res] = true
	compiled := compileTestFrame(t, table, reg, passes, log)

	prevWaits := findCommands(compiled.Commands, CommandWaitForMultiframeFence)
	if len(prevWaits) != 1 {
		t.Fatalf("got %d wait-for-prev-frame-fence, want 1", len(prevWaits))
	}
	w := prevWaits[0]
	if w.Role != RoleWrite {
		t.Errorf("role = %v, want write (first usage writes)", w.Role)
	}
	if w.BeforeStages != types.StageCompute {
		t.Errorf("beforeStages = %v, want first stage (Compute)", w.BeforeStages)
	}

	// Disposal fencing: the write stages a read-side fence; the fence is
	// also part of the write-side set.
	sets := findCommands(compiled.PreFrame, CommandSetDisposalFences)
	if len(sets) != 1 {
		t.Fatalf("got %d set-disposal-fences, want 1", len(sets))
	}
	if sets[0].ReadFence == nil {
		t.Error("read-side disposal fence missing after a write")
	}
	if len(sets[0].WriteFences) == 0 {
		t.Error("write-side disposal set must cover the last write")
	}
	if sets[0].Index != 0 || sets[0].Order != OrderAfter {
		t.Errorf("set-disposal at (%d,%v), want (0,After)", sets[0].Index, sets[0].Order)
	}
}

func TestCompileFrame_FenceRetainClosure(t *testing.T) {
	alloc.SetDebugMode(true)
	defer alloc.SetDebugMode(false)
	alloc.ResetFenceAudit()

	table := NewResourceTable()
	buf := table.NewBuffer(types.BufferDescriptor{
		Length: 4096, StorageMode: types.StoragePrivate}, 0)
	res := BufferResource(buf)

	log := NewUsageLog()
	log.Record(res, ResourceUsage{PassIndex: 0, CommandRange: Range{0, 1},
		Type: types.UsageWrite, Stages: types.StageCompute})
	log.Record(res, ResourceUsage{PassIndex: 1, CommandRange: Range{1, 2},
		Type: types.UsageRead, Stages: types.StageVertex})

	passes := []PassRecord{
		{Kind: types.PassCompute, Active: true, Index: 0, Commands: Range{0, 1}},
		{Kind: types.PassBlit, Active: true, Index: 1, Commands: Range{1, 2}},
	}

	merge, err := MergeRenderTargets(table, passes, log)
	if err != nil {
		t.Fatalf("MergeRenderTargets() error = %v", err)
	}
	dev := noop.NewDevice()
	fences := alloc.NewFencePool(dev)
	compiled, err := CompileFrame(table, newFakeRegistry(), fences, passes, merge, log, CompilerOptions{})
	if err != nil {
		t.Fatalf("CompileFrame() error = %v", err)
	}

	// Execute the fence bookkeeping of the pre-frame stream directly:
	// every allocation the compiler made is balanced by the release
	// commands it scheduled.
	for _, c := range compiled.PreFrame {
		switch c.Kind {
		case CommandRetainFence:
			fences.Retain(c.Fence)
		case CommandReleaseFence:
			fences.Release(c.Fence)
		}
	}
	if got := fences.LiveCount(); got != 0 {
		t.Errorf("LiveCount() = %d after balanced retain/release, want 0", got)
	}
	if report := alloc.ReportFenceLeaks(); report != nil {
		t.Errorf("fence leaks: %v", report)
	}
}
