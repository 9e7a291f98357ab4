package core

import (
	"testing"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/framegraph/core/alloc"
	"github.com/gogpu/framegraph/hal/noop"
	"github.com/gogpu/framegraph/types"
)

func newTestRegistry(t *testing.T) (*ResourceRegistry, *ResourceTable, *noop.Device) {
	t.Helper()
	dev := noop.NewDevice()
	table := NewResourceTable()
	fences := alloc.NewFencePool(dev)
	reg := NewResourceRegistry(dev, table, fences, DefaultRegistryOptions())
	return reg, table, dev
}

func materialise(t *testing.T, reg *ResourceRegistry, r Resource, kind ResourceCommandKind) {
	t.Helper()
	if err := reg.Execute(&ResourceCommand{Kind: kind, Resource: r}); err != nil {
		t.Fatalf("materialise %v: %v", r, err)
	}
}

func TestRegistry_SmallPrivateBufferRouting(t *testing.T) {
	reg, table, _ := newTestRegistry(t)
	buf := table.NewBuffer(types.BufferDescriptor{
		Length: 1 << 20, StorageMode: types.StoragePrivate}, 0)
	res := BufferResource(buf)

	if got := reg.classify(res); got != allocSmallHeap {
		t.Errorf("classify(1MiB private) = %d, want small heap", got)
	}
	if reg.NeedsWaitFencesOnFrameCompletion(res) {
		t.Error("small private buffers ride the multi-frame heap: no disposal fences")
	}

	materialise(t, reg, res, CommandMaterialiseBuffer)
	ref, ok := reg.Reference(res)
	if !ok || ref.Buffer == nil {
		t.Fatal("backing missing after materialise")
	}
}

func TestRegistry_LargePrivateBufferRouting(t *testing.T) {
	reg, table, _ := newTestRegistry(t)
	buf := table.NewBuffer(types.BufferDescriptor{
		Length: 8 << 20, StorageMode: types.StoragePrivate}, 0)
	res := BufferResource(buf)

	if got := reg.classify(res); got != allocPrivateHeap {
		t.Errorf("classify(8MiB private) = %d, want private heap", got)
	}
	if !reg.NeedsWaitFencesOnFrameCompletion(res) {
		t.Error("large private buffers need disposal fences")
	}
}

func TestRegistry_RenderTargetHeapSplit(t *testing.T) {
	reg, table, _ := newTestRegistry(t)

	color := table.NewTexture(rtTextureDesc(2048, 2048, gputypes.TextureFormatRGBA8Unorm), 0)
	depth := table.NewTexture(rtTextureDesc(2048, 2048, gputypes.TextureFormatDepth32Float), 0)

	if got := reg.classify(TextureResource(color)); got != allocColorHeap {
		t.Errorf("classify(color RT) = %d, want color heap", got)
	}
	if got := reg.classify(TextureResource(depth)); got != allocDepthHeap {
		t.Errorf("classify(depth RT) = %d, want depth heap", got)
	}
}

func TestRegistry_WindowTextureRouting(t *testing.T) {
	reg, table, _ := newTestRegistry(t)
	src := &noop.DrawableSource{Desc: rtTextureDesc(64, 64, gputypes.TextureFormatBGRA8Unorm)}
	win := table.NewWindowTexture(rtTextureDesc(64, 64, gputypes.TextureFormatBGRA8Unorm), src)
	res := TextureResource(win)

	if reg.NeedsWaitFencesOnFrameCompletion(res) {
		t.Error("window textures never need disposal fences")
	}

	materialise(t, reg, res, CommandMaterialiseTexture)
	ref, ok := reg.Reference(res)
	if !ok {
		t.Fatal("window reference missing after materialise")
	}
	if ref.Texture != nil {
		t.Error("window backing must stay pending until drawable acquisition")
	}

	d, err := src.NextDrawable()
	if err != nil {
		t.Fatalf("NextDrawable() error = %v", err)
	}
	reg.AttachDrawable(win, d)
	ref, _ = reg.Reference(res)
	if ref.Texture == nil || ref.Drawable != d {
		t.Error("AttachDrawable must install the drawable's texture")
	}

	// Dispose is a no-op for window textures; the entry drops on cycle.
	if err := reg.Execute(&ResourceCommand{Kind: CommandDisposeResource, Resource: res}); err != nil {
		t.Fatalf("dispose: %v", err)
	}
	reg.CycleFrames()
	if _, ok := reg.Reference(res); ok {
		t.Error("window reference must drop on cycle")
	}
}

func TestRegistry_ArgumentBufferMaterialisation(t *testing.T) {
	reg, table, _ := newTestRegistry(t)

	enc := &fakeArgumentEncoder{length: 512, align: 256, fill: 0xAB}
	ab := table.NewArgumentBuffer("args", enc, 0)
	res := BufferResource(ab)

	if got := reg.classify(res); got != allocArgumentArena {
		t.Errorf("classify(argument buffer) = %d, want argument arena", got)
	}

	materialise(t, reg, res, CommandMaterialiseArgumentBuffer)
	ref, ok := reg.Reference(res)
	if !ok || ref.Buffer == nil {
		t.Fatal("argument buffer backing missing")
	}
	if !enc.encoded {
		t.Error("argument encoder was not invoked")
	}
	contents := ref.Buffer.Contents()
	if contents == nil {
		t.Fatal("argument arena must be CPU-visible")
	}
	if contents[ref.Offset] != 0xAB || contents[ref.Offset+511] != 0xAB {
		t.Error("encoded bytes not written to the reserved slice")
	}

	// Transient argument buffers leave the registry on cycle without a
	// deposit.
	reg.CycleFrames()
	if _, ok := reg.Reference(res); ok {
		t.Error("argument buffer reference must drop on cycle")
	}
}

type fakeArgumentEncoder struct {
	length  uint64
	align   uint64
	fill    byte
	encoded bool
}

func (f *fakeArgumentEncoder) EncodedLength() uint64 { return f.length }
func (f *fakeArgumentEncoder) Alignment() uint64     { return f.align }
func (f *fakeArgumentEncoder) Encode(dst []byte) error {
	for i := range dst {
		dst[i] = f.fill
	}
	f.encoded = true
	return nil
}

func TestRegistry_ArenaRouting(t *testing.T) {
	reg, table, _ := newTestRegistry(t)

	tests := []struct {
		name string
		desc types.BufferDescriptor
		want allocatorClass
	}{
		{"small shared streams through the arena",
			types.BufferDescriptor{Length: 4 << 10, StorageMode: types.StorageShared},
			allocArena},
		{"small managed streams through the arena",
			types.BufferDescriptor{Length: 256 << 10, StorageMode: types.StorageManaged},
			allocArena},
		{"write-combined streams through the arena",
			types.BufferDescriptor{Length: 1 << 20, StorageMode: types.StorageShared,
				CacheMode: types.CacheWriteCombined},
			allocArena},
		{"oversized shared cycles through the pool",
			types.BufferDescriptor{Length: 4 << 20, StorageMode: types.StorageShared},
			allocStagingPool},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := table.NewBuffer(tt.desc, 0)
			if got := reg.classify(BufferResource(buf)); got != tt.want {
				t.Errorf("classify() = %d, want %d", got, tt.want)
			}
		})
	}

	// Arena-backed buffers come with CPU-visible bytes and a 256-byte
	// aligned offset; two in one frame share a block.
	a := table.NewBuffer(types.BufferDescriptor{Length: 100, StorageMode: types.StorageShared}, 0)
	b := table.NewBuffer(types.BufferDescriptor{Length: 100, StorageMode: types.StorageShared}, 0)
	materialise(t, reg, BufferResource(a), CommandMaterialiseBuffer)
	materialise(t, reg, BufferResource(b), CommandMaterialiseBuffer)
	refA, _ := reg.Reference(BufferResource(a))
	refB, _ := reg.Reference(BufferResource(b))
	if refA.Buffer != refB.Buffer {
		t.Error("same-frame arena allocations should share a block")
	}
	if refB.Offset%256 != 0 || refB.Offset == refA.Offset {
		t.Errorf("offsets %d/%d: want distinct 256-byte aligned offsets", refA.Offset, refB.Offset)
	}
	if refA.Buffer.Contents() == nil {
		t.Error("arena blocks must be CPU-visible")
	}
}

func TestRegistry_MemorylessRouting(t *testing.T) {
	dev := noop.NewDevice()
	table := NewResourceTable()
	opts := DefaultRegistryOptions()
	opts.MemorylessRenderTargets = true
	reg := NewResourceRegistry(dev, table, alloc.NewFencePool(dev), opts)

	desc := rtTextureDesc(64, 64, gputypes.TextureFormatDepth32Float)
	desc.StorageMode = types.StorageMemoryless
	tex := table.NewTexture(desc, 0)
	res := TextureResource(tex)

	if got := reg.classify(res); got != allocMemorylessPool {
		t.Errorf("classify(memoryless) = %d, want memoryless pool", got)
	}
	if reg.NeedsWaitFencesOnFrameCompletion(res) {
		t.Error("memoryless textures need no disposal fences")
	}
}

func TestRegistry_HistoryBufferLifecycle(t *testing.T) {
	reg, table, _ := newTestRegistry(t)
	tex := table.NewTexture(rtTextureDesc(64, 64, gputypes.TextureFormatRGBA8Unorm),
		types.FlagHistoryBuffer)
	res := TextureResource(tex)

	if !reg.NeedsWaitFencesOnFrameCompletion(res) {
		t.Fatal("history buffer first use needs disposal fences")
	}

	// Frame 1: materialise, dispose stores instead of depositing.
	materialise(t, reg, res, CommandMaterialiseTexture)
	backing1, _ := reg.Reference(res)
	if err := reg.Execute(&ResourceCommand{Kind: CommandDisposeResource, Resource: res}); err != nil {
		t.Fatalf("dispose: %v", err)
	}
	reg.CycleFrames()

	if !reg.IsMaterialised(res) {
		t.Fatal("history buffer must survive its first frame boundary")
	}
	if reg.NeedsWaitFencesOnFrameCompletion(res) {
		t.Error("second use of a history buffer needs no disposal fences")
	}

	// Frame 2: no materialise; dispose deposits, cycle drops the entry.
	backing2, _ := reg.Reference(res)
	if backing2.Texture != backing1.Texture {
		t.Error("history backing must be identical across the boundary")
	}
	if err := reg.Execute(&ResourceCommand{Kind: CommandDisposeResource, Resource: res}); err != nil {
		t.Fatalf("dispose: %v", err)
	}
	reg.CycleFrames()
	if reg.IsMaterialised(res) {
		t.Error("history buffer must leave the registry after its second frame")
	}
}

func TestRegistry_PersistentLifecycle(t *testing.T) {
	reg, table, dev := newTestRegistry(t)
	buf := table.NewBuffer(types.BufferDescriptor{
		Length: 4096, StorageMode: types.StoragePrivate}, types.FlagPersistent)
	res := BufferResource(buf)

	if err := reg.MaterialisePersistent(res); err != nil {
		t.Fatalf("MaterialisePersistent() error = %v", err)
	}
	if !reg.IsMaterialised(res) {
		t.Fatal("persistent resource must be materialised on request")
	}

	// Cycling never drops persistent entries.
	reg.CycleFrames()
	reg.CycleFrames()
	if !reg.IsMaterialised(res) {
		t.Fatal("persistent entry dropped by cycle")
	}

	if err := reg.DisposePersistent(res); err != nil {
		t.Fatalf("DisposePersistent() error = %v", err)
	}
	if reg.IsMaterialised(res) {
		t.Error("persistent entry must drop on explicit dispose")
	}
	if dev.LiveBuffers() != 0 {
		t.Errorf("LiveBuffers() = %d after dispose, want 0", dev.LiveBuffers())
	}
}

func TestRegistry_DisposeUnknownHandleIsFatal(t *testing.T) {
	reg, table, _ := newTestRegistry(t)
	buf := table.NewBuffer(types.BufferDescriptor{
		Length: 64, StorageMode: types.StoragePrivate}, 0)

	err := reg.Execute(&ResourceCommand{Kind: CommandDisposeResource, Resource: BufferResource(buf)})
	if err == nil || !IsInvariantViolation(err) {
		t.Errorf("dispose of unmaterialised handle = %v, want InvariantError", err)
	}
}

func TestRegistry_DisposalFenceStaging(t *testing.T) {
	reg, table, dev := newTestRegistry(t)

	buf := table.NewBuffer(types.BufferDescriptor{
		Length: 8 << 20, StorageMode: types.StoragePrivate}, 0)
	res := BufferResource(buf)

	materialise(t, reg, res, CommandMaterialiseBuffer)

	f := alloc.NewFencePool(dev).Allocate()
	if err := reg.Execute(&ResourceCommand{
		Kind: CommandSetDisposalFences, Resource: res,
		ReadFence: f, WriteFences: []*alloc.Fence{f},
	}); err != nil {
		t.Fatalf("setDisposalFences: %v", err)
	}

	ref, _ := reg.Reference(res)
	if len(ref.Disposal.ReadWait) != 1 || len(ref.Disposal.WriteWait) != 1 {
		t.Error("disposal fence set not staged on the reference")
	}
}
