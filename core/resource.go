package core

import (
	"sync"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/framegraph/hal"
	"github.com/gogpu/framegraph/types"
)

// bufferSlot holds the client-visible state of one buffer handle.
type bufferSlot struct {
	desc    types.BufferDescriptor
	flags   types.ResourceFlags
	state   types.StateFlags
	encoder ArgumentEncoder // non-nil for argument buffers
	epoch   Epoch
	valid   bool
}

// textureSlot holds the client-visible state of one texture handle.
type textureSlot struct {
	desc       types.TextureDescriptor
	flags      types.ResourceFlags
	state      types.StateFlags
	base       TextureID                 // parent for pixel-format views
	viewFormat gputypes.TextureFormat    // view target format
	drawables  hal.DrawableSource        // window-handle acquisition
	epoch      Epoch
	valid      bool
}

// ResourceTable owns the handle space: descriptors, flags, and state for
// every resource the client has declared. Handles are stable and outlive
// the backing objects, which live in the registry.
//
// Thread-safe: handles may be created from recording threads while the
// frame thread reads descriptors.
type ResourceTable struct {
	mu sync.RWMutex

	buffers     []bufferSlot
	freeBuffers []Index

	textures     []textureSlot
	freeTextures []Index
}

// NewResourceTable creates an empty resource table.
func NewResourceTable() *ResourceTable {
	return &ResourceTable{}
}

// NewBuffer declares a buffer resource.
func (t *ResourceTable) NewBuffer(desc types.BufferDescriptor, flags types.ResourceFlags) BufferID {
	t.mu.Lock()
	defer t.mu.Unlock()
	index, epoch := t.allocBufferSlot()
	t.buffers[index] = bufferSlot{desc: desc, flags: flags, epoch: epoch, valid: true}
	return NewID[bufferMarker](index, epoch)
}

// NewArgumentBuffer declares a buffer materialised lazily through an
// argument encoder into the per-frame argument arena.
func (t *ResourceTable) NewArgumentBuffer(label string, encoder ArgumentEncoder, flags types.ResourceFlags) BufferID {
	t.mu.Lock()
	defer t.mu.Unlock()
	index, epoch := t.allocBufferSlot()
	t.buffers[index] = bufferSlot{
		desc: types.BufferDescriptor{
			Label:       label,
			Length:      encoder.EncodedLength(),
			StorageMode: types.StorageShared,
		},
		flags:   flags | types.FlagArgumentBuffer,
		encoder: encoder,
		epoch:   epoch,
		valid:   true,
	}
	return NewID[bufferMarker](index, epoch)
}

// NewTexture declares a texture resource.
func (t *ResourceTable) NewTexture(desc types.TextureDescriptor, flags types.ResourceFlags) TextureID {
	t.mu.Lock()
	defer t.mu.Unlock()
	index, epoch := t.allocTextureSlot()
	t.textures[index] = textureSlot{desc: desc, flags: flags, epoch: epoch, valid: true}
	return NewID[textureMarker](index, epoch)
}

// NewWindowTexture declares a texture whose backing is acquired from the
// presentation layer inside the frame.
func (t *ResourceTable) NewWindowTexture(desc types.TextureDescriptor, source hal.DrawableSource) TextureID {
	t.mu.Lock()
	defer t.mu.Unlock()
	index, epoch := t.allocTextureSlot()
	t.textures[index] = textureSlot{
		desc:      desc,
		flags:     types.FlagWindowHandle,
		drawables: source,
		epoch:     epoch,
		valid:     true,
	}
	return NewID[textureMarker](index, epoch)
}

// NewTextureView declares a pixel-format view over an existing texture.
func (t *ResourceTable) NewTextureView(base TextureID, format gputypes.TextureFormat, flags types.ResourceFlags) TextureID {
	t.mu.Lock()
	defer t.mu.Unlock()
	var desc types.TextureDescriptor
	if s := t.textureSlotLocked(base); s != nil {
		desc = s.desc
		desc.Format = format
	}
	index, epoch := t.allocTextureSlot()
	t.textures[index] = textureSlot{
		desc:       desc,
		flags:      flags | types.FlagPixelFormatView,
		base:       base,
		viewFormat: format,
		epoch:      epoch,
		valid:      true,
	}
	return NewID[textureMarker](index, epoch)
}

// DisposeBuffer releases a buffer handle. The registry must have disposed
// the backing first (or never materialised one).
func (t *ResourceTable) DisposeBuffer(id BufferID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	index, epoch := id.Unzip()
	if int(index) < len(t.buffers) && t.buffers[index].valid && t.buffers[index].epoch == epoch {
		t.buffers[index].valid = false
		t.buffers[index].encoder = nil
		t.freeBuffers = append(t.freeBuffers, index)
	}
}

// DisposeTexture releases a texture handle.
func (t *ResourceTable) DisposeTexture(id TextureID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	index, epoch := id.Unzip()
	if int(index) < len(t.textures) && t.textures[index].valid && t.textures[index].epoch == epoch {
		t.textures[index].valid = false
		t.textures[index].drawables = nil
		t.freeTextures = append(t.freeTextures, index)
	}
}

// BufferDescriptor returns the descriptor for a buffer handle.
func (t *ResourceTable) BufferDescriptor(id BufferID) (types.BufferDescriptor, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if s := t.bufferSlotLocked(id); s != nil {
		return s.desc, true
	}
	return types.BufferDescriptor{}, false
}

// TextureDescriptor returns the descriptor for a texture handle.
func (t *ResourceTable) TextureDescriptor(id TextureID) (types.TextureDescriptor, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if s := t.textureSlotLocked(id); s != nil {
		return s.desc, true
	}
	return types.TextureDescriptor{}, false
}

// Flags returns the resource flags for a handle, or zero for a dead handle.
func (t *ResourceTable) Flags(r Resource) types.ResourceFlags {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if id, ok := r.AsBuffer(); ok {
		if s := t.bufferSlotLocked(id); s != nil {
			return s.flags
		}
	}
	if id, ok := r.AsTexture(); ok {
		if s := t.textureSlotLocked(id); s != nil {
			return s.flags
		}
	}
	return 0
}

// State returns the state flags for a handle.
func (t *ResourceTable) State(r Resource) types.StateFlags {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if id, ok := r.AsBuffer(); ok {
		if s := t.bufferSlotLocked(id); s != nil {
			return s.state
		}
	}
	if id, ok := r.AsTexture(); ok {
		if s := t.textureSlotLocked(id); s != nil {
			return s.state
		}
	}
	return 0
}

// MarkInitialised sets the initialised state bit for a handle.
func (t *ResourceTable) MarkInitialised(r Resource) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if id, ok := r.AsBuffer(); ok {
		if s := t.bufferSlotLocked(id); s != nil {
			s.state |= types.StateInitialised
		}
	}
	if id, ok := r.AsTexture(); ok {
		if s := t.textureSlotLocked(id); s != nil {
			s.state |= types.StateInitialised
		}
	}
}

// ArgumentEncoderFor returns the argument encoder bound to a buffer handle.
func (t *ResourceTable) ArgumentEncoderFor(id BufferID) ArgumentEncoder {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if s := t.bufferSlotLocked(id); s != nil {
		return s.encoder
	}
	return nil
}

// DrawableSourceFor returns the drawable source of a window texture.
func (t *ResourceTable) DrawableSourceFor(id TextureID) hal.DrawableSource {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if s := t.textureSlotLocked(id); s != nil {
		return s.drawables
	}
	return nil
}

// ViewInfo returns the base texture and target format of a pixel-format
// view.
func (t *ResourceTable) ViewInfo(id TextureID) (TextureID, gputypes.TextureFormat, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if s := t.textureSlotLocked(id); s != nil && s.flags.Has(types.FlagPixelFormatView) {
		return s.base, s.viewFormat, true
	}
	return TextureID{}, gputypes.TextureFormatUndefined, false
}

// Valid reports whether the handle refers to a live resource.
func (t *ResourceTable) Valid(r Resource) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if id, ok := r.AsBuffer(); ok {
		return t.bufferSlotLocked(id) != nil
	}
	if id, ok := r.AsTexture(); ok {
		return t.textureSlotLocked(id) != nil
	}
	return false
}

func (t *ResourceTable) allocBufferSlot() (Index, Epoch) {
	if n := len(t.freeBuffers); n > 0 {
		index := t.freeBuffers[n-1]
		t.freeBuffers = t.freeBuffers[:n-1]
		t.buffers[index].epoch++
		return index, t.buffers[index].epoch
	}
	t.buffers = append(t.buffers, bufferSlot{})
	return Index(len(t.buffers) - 1), 1
}

func (t *ResourceTable) allocTextureSlot() (Index, Epoch) {
	if n := len(t.freeTextures); n > 0 {
		index := t.freeTextures[n-1]
		t.freeTextures = t.freeTextures[:n-1]
		t.textures[index].epoch++
		return index, t.textures[index].epoch
	}
	t.textures = append(t.textures, textureSlot{})
	return Index(len(t.textures) - 1), 1
}

func (t *ResourceTable) bufferSlotLocked(id BufferID) *bufferSlot {
	index, epoch := id.Unzip()
	if int(index) >= len(t.buffers) {
		return nil
	}
	s := &t.buffers[index]
	if !s.valid || s.epoch != epoch {
		return nil
	}
	return s
}

func (t *ResourceTable) textureSlotLocked(id TextureID) *textureSlot {
	index, epoch := id.Unzip()
	if int(index) >= len(t.textures) {
		return nil
	}
	s := &t.textures[index]
	if !s.valid || s.epoch != epoch {
		return nil
	}
	return s
}
