package core

import (
	"testing"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/framegraph/types"
)

func rtTextureDesc(w, h uint32, format gputypes.TextureFormat) types.TextureDescriptor {
	return types.TextureDescriptor{
		TextureDescriptor: gputypes.TextureDescriptor{
			Size:          gputypes.Extent3D{Width: w, Height: h, DepthOrArrayLayers: 1},
			MipLevelCount: 1,
			SampleCount:   1,
			Dimension:     gputypes.TextureDimension2D,
			Format:        format,
			Usage:         gputypes.TextureUsageRenderAttachment,
		},
		StorageMode: types.StoragePrivate,
	}
}

func drawPass(index int, commands Range, rt *RenderTargetDescriptor) PassRecord {
	return PassRecord{Kind: types.PassDraw, Active: true, Index: index, Commands: commands, RenderTarget: rt}
}

func TestMergeRenderTargets_CoalescesCompatibleDraws(t *testing.T) {
	table := NewResourceTable()
	tex := table.NewTexture(rtTextureDesc(64, 64, gputypes.TextureFormatRGBA8Unorm), 0)

	passes := []PassRecord{
		drawPass(0, Range{0, 1}, &RenderTargetDescriptor{
			ColorAttachments: []*Attachment{{Texture: tex}},
		}),
		drawPass(1, Range{1, 2}, &RenderTargetDescriptor{
			ColorAttachments: []*Attachment{{Texture: tex}},
		}),
	}
	passes[1].Index = 1

	res, err := MergeRenderTargets(table, passes, NewUsageLog())
	if err != nil {
		t.Fatalf("MergeRenderTargets() error = %v", err)
	}
	if res.PassTargets[0] == nil || res.PassTargets[0] != res.PassTargets[1] {
		t.Fatal("compatible consecutive draws must share a merged descriptor")
	}
	if got := res.PassTargets[0].Passes; len(got) != 2 {
		t.Errorf("merged passes = %v, want both", got)
	}
}

func TestMergeRenderTargets_SecondClearRefusesMerge(t *testing.T) {
	table := NewResourceTable()
	tex := table.NewTexture(rtTextureDesc(64, 64, gputypes.TextureFormatRGBA8Unorm), 0)

	// Scenario: two draws share a colour target, the second clears.
	log := NewUsageLog()
	res0 := TextureResource(tex)
	log.Record(res0, ResourceUsage{PassIndex: 0, CommandRange: Range{0, 1},
		Type: types.UsageWriteOnlyRenderTarget, Stages: types.StageFragment})
	log.Record(res0, ResourceUsage{PassIndex: 1, CommandRange: Range{1, 2},
		Type: types.UsageReadWriteRenderTarget, Stages: types.StageFragment})

	passes := []PassRecord{
		drawPass(0, Range{0, 1}, &RenderTargetDescriptor{
			ColorAttachments: []*Attachment{{Texture: tex}},
		}),
		drawPass(1, Range{1, 2}, &RenderTargetDescriptor{
			ColorAttachments: []*Attachment{{Texture: tex, WantsClear: true}},
		}),
	}
	passes[1].Index = 1

	res, err := MergeRenderTargets(table, passes, log)
	if err != nil {
		t.Fatalf("MergeRenderTargets() error = %v", err)
	}
	first, second := res.PassTargets[0], res.PassTargets[1]
	if first == nil || second == nil || first == second {
		t.Fatal("clearing draw must land in its own encoder")
	}

	// First encoder: texture's first use, uninitialised: dontCare load.
	// Second encoder reads it, so the first must store.
	if got := first.ColorActions[0].Load; got != types.LoadActionDontCare {
		t.Errorf("first load = %v, want DontCare", got)
	}
	if got := first.ColorActions[0].Store; got != types.StoreActionStore {
		t.Errorf("first store = %v, want Store (second encoder reads)", got)
	}
	if got := second.ColorActions[0].Load; got != types.LoadActionClear {
		t.Errorf("second load = %v, want Clear", got)
	}
}

func TestMergeRenderTargets_ArityMismatchRefusesMerge(t *testing.T) {
	table := NewResourceTable()
	texA := table.NewTexture(rtTextureDesc(64, 64, gputypes.TextureFormatRGBA8Unorm), 0)
	texB := table.NewTexture(rtTextureDesc(64, 64, gputypes.TextureFormatRGBA8Unorm), 0)

	passes := []PassRecord{
		drawPass(0, Range{0, 1}, &RenderTargetDescriptor{
			ColorAttachments: []*Attachment{{Texture: texA}},
		}),
		drawPass(1, Range{1, 2}, &RenderTargetDescriptor{
			ColorAttachments: []*Attachment{{Texture: texA}, {Texture: texB}},
		}),
	}
	passes[1].Index = 1

	res, err := MergeRenderTargets(table, passes, NewUsageLog())
	if err != nil {
		t.Fatalf("MergeRenderTargets() error = %v", err)
	}
	if res.PassTargets[0] == res.PassTargets[1] {
		t.Error("differing colour arity must not merge")
	}
}

func TestMergeRenderTargets_InheritsMissingSlots(t *testing.T) {
	table := NewResourceTable()
	color := table.NewTexture(rtTextureDesc(64, 64, gputypes.TextureFormatRGBA8Unorm), 0)
	depth := table.NewTexture(rtTextureDesc(64, 64, gputypes.TextureFormatDepth32Float), 0)

	passes := []PassRecord{
		drawPass(0, Range{0, 1}, &RenderTargetDescriptor{
			ColorAttachments: []*Attachment{{Texture: color}},
		}),
		drawPass(1, Range{1, 2}, &RenderTargetDescriptor{
			ColorAttachments: []*Attachment{{Texture: color}},
			Depth:            &Attachment{Texture: depth},
		}),
	}
	passes[1].Index = 1

	res, err := MergeRenderTargets(table, passes, NewUsageLog())
	if err != nil {
		t.Fatalf("MergeRenderTargets() error = %v", err)
	}
	m := res.PassTargets[0]
	if m != res.PassTargets[1] {
		t.Fatal("adding a depth attachment to a nil slot must merge")
	}
	if m.Depth == nil || m.Depth.Texture != depth {
		t.Error("merged descriptor must inherit the depth attachment")
	}
}

func TestMergeRenderTargets_VisibilityBufferAdoption(t *testing.T) {
	table := NewResourceTable()
	tex := table.NewTexture(rtTextureDesc(64, 64, gputypes.TextureFormatRGBA8Unorm), 0)
	visA := table.NewBuffer(types.BufferDescriptor{Length: 256, StorageMode: types.StorageShared}, 0)
	visB := table.NewBuffer(types.BufferDescriptor{Length: 256, StorageMode: types.StorageShared}, 0)

	newPasses := func(second BufferID) []PassRecord {
		passes := []PassRecord{
			drawPass(0, Range{0, 1}, &RenderTargetDescriptor{
				ColorAttachments: []*Attachment{{Texture: tex}},
			}),
			drawPass(1, Range{1, 2}, &RenderTargetDescriptor{
				ColorAttachments:       []*Attachment{{Texture: tex}},
				VisibilityResultBuffer: second,
			}),
		}
		passes[1].Index = 1
		return passes
	}

	// Adoption from nil merges.
	res, err := MergeRenderTargets(table, newPasses(visA), NewUsageLog())
	if err != nil {
		t.Fatalf("MergeRenderTargets() error = %v", err)
	}
	if res.PassTargets[0] != res.PassTargets[1] {
		t.Fatal("visibility buffer adoption from nil must merge")
	}
	if res.PassTargets[0].VisibilityResultBuffer != visA {
		t.Error("merged descriptor must adopt the visibility buffer")
	}

	// Conflicting buffers refuse.
	passes := newPasses(visB)
	passes[0].RenderTarget.VisibilityResultBuffer = visA
	res, err = MergeRenderTargets(table, passes, NewUsageLog())
	if err != nil {
		t.Fatalf("MergeRenderTargets() error = %v", err)
	}
	if res.PassTargets[0] == res.PassTargets[1] {
		t.Error("conflicting visibility buffers must not merge")
	}
}

func TestDeriveActions_StoreHeuristics(t *testing.T) {
	tests := []struct {
		name        string
		flags       types.ResourceFlags
		initialised bool
		later       *ResourceUsage // usage after the encoder, if any
		laterClears bool
		wantLoad    types.LoadAction
		wantStore   types.StoreAction
	}{
		{
			name:      "no later use, plain transient: discard",
			wantLoad:  types.LoadActionDontCare,
			wantStore: types.StoreActionDontCare,
		},
		{
			name:      "no later use, persistent: store",
			flags:     types.FlagPersistent,
			wantLoad:  types.LoadActionDontCare,
			wantStore: types.StoreActionStore,
		},
		{
			name:      "no later use, uninitialised history: store",
			flags:     types.FlagHistoryBuffer,
			wantLoad:  types.LoadActionDontCare,
			wantStore: types.StoreActionStore,
		},
		{
			name:        "initialised texture loads",
			initialised: true,
			wantLoad:    types.LoadActionLoad,
			wantStore:   types.StoreActionDontCare,
		},
		{
			name: "later read: store",
			later: &ResourceUsage{PassIndex: 1, CommandRange: Range{1, 2},
				Type: types.UsageRead, Stages: types.StageFragment},
			wantLoad:  types.LoadActionDontCare,
			wantStore: types.StoreActionStore,
		},
		{
			name: "later write-only clear: discard",
			later: &ResourceUsage{PassIndex: 1, CommandRange: Range{1, 2},
				Type: types.UsageWriteOnlyRenderTarget, Stages: types.StageFragment},
			laterClears: true,
			wantLoad:    types.LoadActionDontCare,
			wantStore:   types.StoreActionDontCare,
		},
		{
			name: "later reading clear: conservative store",
			later: &ResourceUsage{PassIndex: 1, CommandRange: Range{1, 2},
				Type: types.UsageReadWriteRenderTarget, Stages: types.StageFragment},
			laterClears: true,
			wantLoad:    types.LoadActionDontCare,
			wantStore:   types.StoreActionStore,
		},
		{
			name: "later bare write: ambiguous, discard",
			later: &ResourceUsage{PassIndex: 1, CommandRange: Range{1, 2},
				Type: types.UsageWrite, Stages: types.StageCompute},
			wantLoad:  types.LoadActionDontCare,
			wantStore: types.StoreActionDontCare,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			table := NewResourceTable()
			tex := table.NewTexture(rtTextureDesc(64, 64, gputypes.TextureFormatRGBA8Unorm), tt.flags)
			res := TextureResource(tex)
			if tt.initialised {
				table.MarkInitialised(res)
			}

			log := NewUsageLog()
			log.Record(res, ResourceUsage{PassIndex: 0, CommandRange: Range{0, 1},
				Type: types.UsageWriteOnlyRenderTarget, Stages: types.StageFragment})

			passes := []PassRecord{
				drawPass(0, Range{0, 1}, &RenderTargetDescriptor{
					ColorAttachments: []*Attachment{{Texture: tex}},
				}),
			}
			if tt.later != nil {
				log.Record(res, *tt.later)
				var rt *RenderTargetDescriptor
				kind := types.PassCompute
				if tt.later.Type.IsRenderTarget() {
					kind = types.PassDraw
					rt = &RenderTargetDescriptor{ColorAttachments: []*Attachment{
						{Texture: tex, WantsClear: tt.laterClears},
					}}
				}
				passes = append(passes, PassRecord{
					Kind: kind, Active: true, Index: 1, Commands: Range{1, 2}, RenderTarget: rt,
				})
			}

			mergeRes, err := MergeRenderTargets(table, passes, log)
			if err != nil {
				t.Fatalf("MergeRenderTargets() error = %v", err)
			}
			m := mergeRes.PassTargets[0]
			if got := m.ColorActions[0].Load; got != tt.wantLoad {
				t.Errorf("load = %v, want %v", got, tt.wantLoad)
			}
			if got := m.ColorActions[0].Store; got != tt.wantStore {
				t.Errorf("store = %v, want %v", got, tt.wantStore)
			}
		})
	}
}
