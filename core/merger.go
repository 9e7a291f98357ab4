package core

import (
	"github.com/gogpu/framegraph/types"
)

// ActionPair is the derived load/store action of one attachment slot.
type ActionPair struct {
	Load  types.LoadAction
	Store types.StoreAction
}

// MergedRenderTarget is the shared render-target descriptor of one render
// encoder. Passes pointing at the same MergedRenderTarget share an encoder;
// identity comparison is pointer equality.
type MergedRenderTarget struct {
	// Color, Depth, and Stencil are the merged attachments.
	Color   []*Attachment
	Depth   *Attachment
	Stencil *Attachment

	// VisibilityResultBuffer is adopted from the first pass that sets
	// one.
	VisibilityResultBuffer BufferID

	// ArrayLength is max-reduced over the merged passes.
	ArrayLength uint32

	// Passes are the indexes of the draw passes merged into this
	// encoder, in order.
	Passes []int

	// Derived load/store actions, populated at finalisation.
	ColorActions   []ActionPair
	DepthActions   ActionPair
	StencilActions ActionPair

	// Label is the merged encoder's debug name.
	Label string
}

// FirstPass returns the index of the earliest merged pass.
func (m *MergedRenderTarget) FirstPass() int { return m.Passes[0] }

// LastPass returns the index of the latest merged pass.
func (m *MergedRenderTarget) LastPass() int { return m.Passes[len(m.Passes)-1] }

// MergeResult is the merger's per-frame output.
type MergeResult struct {
	// PassTargets holds, per pass, the merged descriptor the pass
	// renders into; nil for non-draw and inactive passes.
	PassTargets []*MergedRenderTarget

	// StoredTextures are the attachments whose store action resolved to
	// store; the registry uses them for memoryless eligibility.
	StoredTextures []TextureID
}

// MergeRenderTargets walks the passes in order, greedily coalescing
// consecutive draw passes whose attachments are compatible, and derives
// load/store actions for every merged descriptor.
func MergeRenderTargets(table *ResourceTable, passes []PassRecord, log *UsageLog) (*MergeResult, error) {
	res := &MergeResult{PassTargets: make([]*MergedRenderTarget, len(passes))}

	var current *MergedRenderTarget
	flush := func() {
		if current != nil {
			finaliseRenderTarget(current, table, passes, log, res)
			current = nil
		}
	}

	for i := range passes {
		p := &passes[i]
		if !p.Active {
			continue
		}
		if p.Kind != types.PassDraw {
			flush()
			continue
		}
		if p.RenderTarget == nil {
			return nil, &InvariantError{Op: "mergeRenderTargets",
				Message: "draw pass without a render-target descriptor"}
		}

		if current != nil && tryMerge(current, p) {
			res.PassTargets[i] = current
			continue
		}
		flush()
		current = newMergedRenderTarget(p)
		res.PassTargets[i] = current
	}
	flush()

	return res, nil
}

func newMergedRenderTarget(p *PassRecord) *MergedRenderTarget {
	desc := p.RenderTarget
	m := &MergedRenderTarget{
		Color:                  append([]*Attachment(nil), desc.ColorAttachments...),
		Depth:                  desc.Depth,
		Stencil:                desc.Stencil,
		VisibilityResultBuffer: desc.VisibilityResultBuffer,
		ArrayLength:            desc.ArrayLength,
		Passes:                 []int{p.Index},
		Label:                  p.Name,
	}
	return m
}

// tryMerge attempts to fold a draw pass into the current descriptor. It
// checks every slot before mutating anything, so a failed merge leaves the
// descriptor untouched.
func tryMerge(m *MergedRenderTarget, p *PassRecord) bool {
	desc := p.RenderTarget

	// Colour-attachment arity must match.
	if len(desc.ColorAttachments) != len(m.Color) {
		return false
	}

	for i, next := range desc.ColorAttachments {
		if !attachmentsCompatible(m.Color[i], next) {
			return false
		}
	}
	if !attachmentsCompatible(m.Depth, desc.Depth) {
		return false
	}
	if !attachmentsCompatible(m.Stencil, desc.Stencil) {
		return false
	}

	// The visibility buffer either matches or is adopted from nil.
	if !m.VisibilityResultBuffer.IsZero() && !desc.VisibilityResultBuffer.IsZero() &&
		m.VisibilityResultBuffer != desc.VisibilityResultBuffer {
		return false
	}

	// Merge: inherit any slot the current descriptor lacks.
	for i, next := range desc.ColorAttachments {
		if m.Color[i] == nil {
			m.Color[i] = next
		}
	}
	if m.Depth == nil {
		m.Depth = desc.Depth
	}
	if m.Stencil == nil {
		m.Stencil = desc.Stencil
	}
	if m.VisibilityResultBuffer.IsZero() {
		m.VisibilityResultBuffer = desc.VisibilityResultBuffer
	}
	if desc.ArrayLength > m.ArrayLength {
		m.ArrayLength = desc.ArrayLength
	}
	m.Passes = append(m.Passes, p.Index)
	return true
}

// attachmentsCompatible applies the per-slot merge rule: an established
// attachment cannot be cleared again within the same encoder, and both
// sides must address the same subresource.
func attachmentsCompatible(current, next *Attachment) bool {
	if current == nil || next == nil {
		return true
	}
	if next.WantsClear {
		// Clearing an attachment another pass has already rendered to
		// is impossible within one encoder.
		return false
	}
	return current.sameTarget(next)
}

// finaliseRenderTarget derives the load and store action of every
// attachment from the per-texture usage log.
func finaliseRenderTarget(m *MergedRenderTarget, table *ResourceTable, passes []PassRecord, log *UsageLog, res *MergeResult) {
	m.ColorActions = make([]ActionPair, len(m.Color))
	for i, att := range m.Color {
		if att == nil {
			continue
		}
		m.ColorActions[i] = deriveActions(att, m, table, passes, log)
		if m.ColorActions[i].Store == types.StoreActionStore {
			res.addStoredTexture(att.Texture)
		}
	}
	if m.Depth != nil {
		m.DepthActions = deriveActions(m.Depth, m, table, passes, log)
		if m.DepthActions.Store == types.StoreActionStore {
			res.addStoredTexture(m.Depth.Texture)
		}
	}
	if m.Stencil != nil {
		m.StencilActions = deriveActions(m.Stencil, m, table, passes, log)
		if m.StencilActions.Store == types.StoreActionStore {
			res.addStoredTexture(m.Stencil.Texture)
		}
	}
}

func deriveActions(att *Attachment, m *MergedRenderTarget, table *ResourceTable, passes []PassRecord, log *UsageLog) ActionPair {
	resource := TextureResource(att.Texture)
	usages := log.Usages(resource)
	flags := table.Flags(resource)
	initialised := table.State(resource).Has(types.StateInitialised)

	var pair ActionPair

	// Load action.
	switch {
	case att.WantsClear:
		pair.Load = types.LoadActionClear
	case firstActiveUsageWithin(usages, m) && !initialised:
		pair.Load = types.LoadActionDontCare
	default:
		pair.Load = types.LoadActionLoad
	}

	// Store action: scan usages after the merged passes for a read that
	// is not preceded by a clear. Writes alone are ambiguous and are
	// skipped.
	store, conclusive := scanSubsequentReaders(att.Texture, usages, m, passes)
	if !conclusive {
		store = flags.Intersects(types.FlagPersistent|types.FlagWindowHandle) ||
			(flags.Has(types.FlagHistoryBuffer) && !initialised)
	}
	if store {
		pair.Store = types.StoreActionStore
	} else {
		pair.Store = types.StoreActionDontCare
	}
	return pair
}

// firstActiveUsageWithin reports whether the texture's first active usage
// of the frame lies within the merged passes.
func firstActiveUsageWithin(usages []ResourceUsage, m *MergedRenderTarget) bool {
	for _, u := range usages {
		if !u.Type.IsActive() {
			continue
		}
		return u.PassIndex >= m.FirstPass() && u.PassIndex <= m.LastPass()
	}
	return false
}

// scanSubsequentReaders returns (store, conclusive). A read demands a
// store — conservatively even when the reading pass also clears. A
// write-only render-target usage that clears replaces the contents, so
// scanning stops without a store. Bare writes are ambiguous and skipped.
func scanSubsequentReaders(tex TextureID, usages []ResourceUsage, m *MergedRenderTarget, passes []PassRecord) (bool, bool) {
	for _, u := range usages {
		if u.PassIndex <= m.LastPass() || !u.Type.IsActive() {
			continue
		}
		if u.Type.IsRead() {
			return true, true
		}
		if u.Type.IsRenderTarget() && passClearsTexture(passes, u.PassIndex, tex) {
			return false, true
		}
	}
	return false, false
}

func passClearsTexture(passes []PassRecord, passIndex int, tex TextureID) bool {
	if passIndex < 0 || passIndex >= len(passes) {
		return false
	}
	desc := passes[passIndex].RenderTarget
	if desc == nil {
		return false
	}
	for _, att := range desc.ColorAttachments {
		if att != nil && att.Texture == tex {
			return att.WantsClear
		}
	}
	if desc.Depth != nil && desc.Depth.Texture == tex {
		return desc.Depth.WantsClear
	}
	if desc.Stencil != nil && desc.Stencil.Texture == tex {
		return desc.Stencil.WantsClear
	}
	return false
}

func (r *MergeResult) addStoredTexture(id TextureID) {
	for _, t := range r.StoredTextures {
		if t == id {
			return
		}
	}
	r.StoredTextures = append(r.StoredTextures, id)
}
