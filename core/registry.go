package core

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/framegraph/core/alloc"
	"github.com/gogpu/framegraph/hal"
	"github.com/gogpu/framegraph/types"
)

// RegistryOptions configure the registry's allocator routing.
type RegistryOptions struct {
	// NumInflightFrames is the depth of the per-frame rings.
	NumInflightFrames int

	// SmallAllocationThreshold is the private-resource cut-off below
	// which the multi-frame small heap services the allocation.
	SmallAllocationThreshold uint64

	// Default arena block sizes per storage class.
	SharedBlockSize        uint64
	ManagedBlockSize       uint64
	WriteCombinedBlockSize uint64
	ArgumentBlockSize      uint64

	// HeapSize is the default backing size of aliasing heaps.
	HeapSize uint64

	// FramePurgeability is the heap purgeable-state transition applied
	// on cycle.
	FramePurgeability hal.PurgeableState

	// MemorylessRenderTargets enables the memoryless pool for eligible
	// textures on tile-based platforms.
	MemorylessRenderTargets bool

	// Logger receives materialisation diagnostics. Nil discards all
	// output.
	Logger *slog.Logger
}

// DefaultRegistryOptions returns the standard configuration.
func DefaultRegistryOptions() RegistryOptions {
	return RegistryOptions{
		NumInflightFrames:        2,
		SmallAllocationThreshold: 2 << 20, // 2 MiB
		SharedBlockSize:          256 << 10,
		ManagedBlockSize:         1 << 20,
		WriteCombinedBlockSize:   2 << 20,
		ArgumentBlockSize:        2 << 20,
		HeapSize:                 64 << 20,
		FramePurgeability:        hal.PurgeableNonVolatile,
	}
}

// ResourceRegistry maps stable resource handles to backing objects and
// routes materialisation and disposal to the right allocator. It owns the
// fence attachments that survive frame boundaries.
//
// The hash maps are guarded by a single serialising mutex because argument
// buffers materialise from the recording thread while the frame thread
// accesses and disposes resources.
type ResourceRegistry struct {
	mu sync.Mutex

	device hal.Device
	table  *ResourceTable
	fences *alloc.FencePool
	opts   RegistryOptions
	log    *slog.Logger

	buffers         map[BufferID]*BackingReference
	textures        map[TextureID]*BackingReference
	argumentBuffers map[BufferID]*BackingReference

	persistent      *alloc.PersistentAllocator
	stagingBuffers  *alloc.Pool[alloc.PooledBuffer]
	stagingTextures *alloc.Pool[alloc.PooledTexture]
	historyBuffers  *alloc.Pool[alloc.PooledBuffer]
	historyTextures *alloc.Pool[alloc.PooledTexture]
	memoryless      *alloc.Pool[alloc.PooledTexture]
	smallPrivate    *alloc.MultiFrameHeapAllocator
	privateHeap     *alloc.HeapAllocator
	colorHeap       *alloc.HeapAllocator
	depthHeap       *alloc.HeapAllocator

	sharedArena        *alloc.TransientArenaRing
	managedArena       *alloc.TransientArenaRing
	writeCombinedArena *alloc.TransientArenaRing
	argumentArena      *alloc.TransientArenaRing

	// Per-frame scratch: arena-backed CPU buffers disposed without
	// fences, and transient argument buffers removed without deposit.
	cpuBuffers         []BufferID
	transientArguments []BufferID

	drawables []hal.Drawable
}

// NewResourceRegistry creates the registry and its allocators.
func NewResourceRegistry(device hal.Device, table *ResourceTable, fences *alloc.FencePool, opts RegistryOptions) *ResourceRegistry {
	if opts.NumInflightFrames < 2 {
		opts.NumInflightFrames = 2
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	n := opts.NumInflightFrames
	r := &ResourceRegistry{
		device: device,
		table:  table,
		fences: fences,
		opts:   opts,
		log:    opts.Logger,

		buffers:         make(map[BufferID]*BackingReference),
		textures:        make(map[TextureID]*BackingReference),
		argumentBuffers: make(map[BufferID]*BackingReference),

		persistent:      alloc.NewPersistentAllocator(device),
		stagingBuffers:  alloc.NewPool[alloc.PooledBuffer](n),
		stagingTextures: alloc.NewPool[alloc.PooledTexture](n),
		historyBuffers:  alloc.NewPool[alloc.PooledBuffer](1),
		historyTextures: alloc.NewPool[alloc.PooledTexture](1),
		memoryless:      alloc.NewPool[alloc.PooledTexture](n),
		smallPrivate: alloc.NewMultiFrameHeapAllocator(device, fences, "small-private",
			n+1, opts.HeapSize, types.StoragePrivate, types.CacheDefault),
		privateHeap: alloc.NewHeapAllocator(device, fences, "private",
			opts.HeapSize, types.StoragePrivate, types.CacheDefault),
		colorHeap: alloc.NewHeapAllocator(device, fences, "color-rt",
			opts.HeapSize, types.StoragePrivate, types.CacheDefault),
		depthHeap: alloc.NewHeapAllocator(device, fences, "depth-rt",
			opts.HeapSize, types.StoragePrivate, types.CacheDefault),

		sharedArena: alloc.NewTransientArenaRing(device, n,
			types.StorageShared, types.CacheDefault, opts.SharedBlockSize),
		managedArena: alloc.NewTransientArenaRing(device, n,
			types.StorageManaged, types.CacheDefault, opts.ManagedBlockSize),
		writeCombinedArena: alloc.NewTransientArenaRing(device, n,
			types.StorageShared, types.CacheWriteCombined, opts.WriteCombinedBlockSize),
		argumentArena: alloc.NewTransientArenaRing(device, n,
			types.StorageShared, types.CacheDefault, opts.ArgumentBlockSize),
	}
	r.privateHeap.SetPurgeableState(opts.FramePurgeability)
	r.colorHeap.SetPurgeableState(opts.FramePurgeability)
	r.depthHeap.SetPurgeableState(opts.FramePurgeability)
	r.smallPrivate.SetLogger(opts.Logger)
	r.privateHeap.SetLogger(opts.Logger)
	r.colorHeap.SetLogger(opts.Logger)
	r.depthHeap.SetLogger(opts.Logger)
	return r
}

// IsMaterialised reports whether the handle currently has a live backing.
func (r *ResourceRegistry) IsMaterialised(res Resource) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	ref := r.referenceLocked(res)
	return ref != nil && !ref.deposited
}

// Reference returns the backing reference for a materialised resource.
func (r *ResourceRegistry) Reference(res Resource) (*BackingReference, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ref := r.referenceLocked(res)
	if ref == nil {
		return nil, false
	}
	return ref, true
}

func (r *ResourceRegistry) referenceLocked(res Resource) *BackingReference {
	if id, ok := res.AsBuffer(); ok {
		if r.table.Flags(res).Has(types.FlagArgumentBuffer) {
			return r.argumentBuffers[id]
		}
		return r.buffers[id]
	}
	if id, ok := res.AsTexture(); ok {
		return r.textures[id]
	}
	return nil
}

func (r *ResourceRegistry) setReferenceLocked(res Resource, ref *BackingReference) {
	if id, ok := res.AsBuffer(); ok {
		if r.table.Flags(res).Has(types.FlagArgumentBuffer) {
			r.argumentBuffers[id] = ref
		} else {
			r.buffers[id] = ref
		}
		return
	}
	if id, ok := res.AsTexture(); ok {
		r.textures[id] = ref
	}
}

// NeedsWaitFencesOnFrameCompletion reports whether disposal fences must be
// staged for the resource: window textures never, persistent and large
// private resources always, history buffers only on their first use.
func (r *ResourceRegistry) NeedsWaitFencesOnFrameCompletion(res Resource) bool {
	flags := r.table.Flags(res)
	switch {
	case flags.Has(types.FlagWindowHandle):
		return false
	case flags.Has(types.FlagPersistent):
		return true
	case flags.Has(types.FlagHistoryBuffer):
		return !r.table.State(res).Has(types.StateInitialised)
	}
	switch r.classify(res) {
	case allocPrivateHeap, allocColorHeap, allocDepthHeap:
		return true
	default:
		return false
	}
}

// classify picks the allocator class for a transient resource.
func (r *ResourceRegistry) classify(res Resource) allocatorClass {
	flags := r.table.Flags(res)
	switch {
	case flags.Has(types.FlagWindowHandle):
		return allocWindow
	case flags.Has(types.FlagArgumentBuffer):
		return allocArgumentArena
	case flags.Has(types.FlagPersistent):
		return allocPersistent
	case flags.Has(types.FlagPixelFormatView):
		return allocTextureView
	}

	if id, ok := res.AsBuffer(); ok {
		desc, _ := r.table.BufferDescriptor(id)
		if flags.Has(types.FlagHistoryBuffer) && desc.StorageMode == types.StoragePrivate {
			return allocHistoryPool
		}
		if desc.StorageMode != types.StoragePrivate {
			// Small CPU-visible frame data streams through the bump
			// arenas; anything bigger than a block cycles through
			// the staging pool.
			if desc.CacheMode == types.CacheWriteCombined && desc.Length <= r.opts.WriteCombinedBlockSize {
				return allocArena
			}
			if desc.StorageMode == types.StorageShared && desc.CacheMode == types.CacheDefault &&
				desc.Length <= r.opts.SharedBlockSize {
				return allocArena
			}
			if desc.StorageMode == types.StorageManaged && desc.CacheMode == types.CacheDefault &&
				desc.Length <= r.opts.ManagedBlockSize {
				return allocArena
			}
			return allocStagingPool
		}
		if desc.Length <= r.opts.SmallAllocationThreshold {
			return allocSmallHeap
		}
		return allocPrivateHeap
	}

	id, _ := res.AsTexture()
	desc, _ := r.table.TextureDescriptor(id)
	switch {
	case desc.StorageMode == types.StorageMemoryless && r.opts.MemorylessRenderTargets:
		return allocMemorylessPool
	case flags.Has(types.FlagHistoryBuffer) && desc.StorageMode == types.StoragePrivate:
		return allocHistoryPool
	case desc.StorageMode != types.StoragePrivate && desc.StorageMode != types.StorageMemoryless:
		return allocStagingPool
	case desc.Usage&gputypes.TextureUsageRenderAttachment != 0:
		if isDepthStencilFormat(desc.Format) {
			return allocDepthHeap
		}
		return allocColorHeap
	case textureFootprintSize(desc) <= r.opts.SmallAllocationThreshold:
		return allocSmallHeap
	default:
		return allocPrivateHeap
	}
}

// ExecutePreFrame runs the registry-side command stream in order.
func (r *ResourceRegistry) ExecutePreFrame(cmds []ResourceCommand) error {
	for i := range cmds {
		if err := r.Execute(&cmds[i]); err != nil {
			return err
		}
	}
	return nil
}

// Execute applies one registry-side resource command.
func (r *ResourceRegistry) Execute(cmd *ResourceCommand) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch cmd.Kind {
	case CommandMaterialiseBuffer, CommandMaterialiseArgumentBuffer:
		id, ok := cmd.Resource.AsBuffer()
		if !ok {
			return &InvariantError{Op: "materialiseBuffer", Resource: cmd.Resource, Message: "not a buffer handle"}
		}
		return r.materialiseBufferLocked(id)

	case CommandMaterialiseTexture, CommandMaterialiseTextureView:
		id, ok := cmd.Resource.AsTexture()
		if !ok {
			return &InvariantError{Op: "materialiseTexture", Resource: cmd.Resource, Message: "not a texture handle"}
		}
		return r.materialiseTextureLocked(id)

	case CommandDisposeResource:
		return r.disposeLocked(cmd.Resource)

	case CommandSetDisposalFences:
		ref := r.referenceLocked(cmd.Resource)
		if ref == nil {
			return fmt.Errorf("%w: %v", ErrNotMaterialised, cmd.Resource)
		}
		ref.Disposal = alloc.FenceSet{WriteWait: cmd.WriteFences}
		if cmd.ReadFence != nil {
			ref.Disposal.ReadWait = []*alloc.Fence{cmd.ReadFence}
		}
		return nil

	case CommandReleaseMultiframeFences:
		// Retain counts drop now; reclaim is deferred to the pool's
		// cycle, so encoder-time waits can still read the set.
		ref := r.referenceLocked(cmd.Resource)
		if ref == nil || ref.fencesReleased {
			return nil
		}
		for _, f := range ref.Usage.All() {
			r.fences.Release(f)
		}
		ref.fencesReleased = true
		return nil

	case CommandRetainFence:
		r.fences.Retain(cmd.Fence)
		return nil

	case CommandReleaseFence:
		r.fences.Release(cmd.Fence)
		return nil

	default:
		return &InvariantError{Op: "executePreFrame",
			Message: fmt.Sprintf("encoder command %v in registry stream", cmd.Kind)}
	}
}

func (r *ResourceRegistry) materialiseBufferLocked(id BufferID) error {
	res := BufferResource(id)
	if ref := r.referenceLocked(res); ref != nil && !ref.deposited {
		ref.UsedThisFrame = true
		return nil
	}
	desc, ok := r.table.BufferDescriptor(id)
	if !ok {
		return fmt.Errorf("%w: %v", ErrUnknownResource, res)
	}

	ref := &BackingReference{UsedThisFrame: true}
	switch class := r.classify(res); class {
	case allocArgumentArena:
		enc := r.table.ArgumentEncoderFor(id)
		if enc == nil {
			return &InvariantError{Op: "materialiseArgumentBuffer", Resource: res,
				Message: "argument buffer without an argument encoder"}
		}
		buf, offset, err := r.argumentArena.Allocate(enc.EncodedLength(), enc.Alignment())
		if err != nil {
			return err
		}
		if contents := buf.Contents(); contents != nil {
			if err := enc.Encode(contents[offset : offset+enc.EncodedLength()]); err != nil {
				return err
			}
		}
		ref.Buffer, ref.Offset, ref.source = buf, offset, class
		r.transientArguments = append(r.transientArguments, id)

	case allocArena:
		arena := r.sharedArena
		switch {
		case desc.CacheMode == types.CacheWriteCombined:
			arena = r.writeCombinedArena
		case desc.StorageMode == types.StorageManaged:
			arena = r.managedArena
		}
		buf, offset, err := arena.Allocate(desc.Length, alloc.BufferAlignment)
		if err != nil {
			return err
		}
		ref.Buffer, ref.Offset, ref.source = buf, offset, class
		r.cpuBuffers = append(r.cpuBuffers, id)

	case allocStagingPool:
		if pooled, ok := r.stagingBuffers.Collect(alloc.BufferFits(desc), alloc.BufferSize); ok {
			ref.Buffer = pooled.Buffer
		} else {
			buf, err := r.device.NewBuffer(desc)
			if err != nil {
				return err
			}
			ref.Buffer = buf
		}
		ref.source = class

	case allocHistoryPool:
		if pooled, ok := r.historyBuffers.Collect(alloc.BufferFits(desc), alloc.BufferSize); ok {
			ref.Buffer = pooled.Buffer
		} else {
			buf, err := r.device.NewBuffer(desc)
			if err != nil {
				return err
			}
			ref.Buffer = buf
		}
		ref.source = class

	case allocSmallHeap:
		buf, waits, err := r.smallPrivate.CollectBuffer(desc)
		if err != nil {
			return err
		}
		ref.Buffer, ref.source = buf, class
		ref.Usage.WriteWait = waits

	case allocPrivateHeap:
		buf, waits, err := r.privateHeap.CollectBuffer(desc)
		if err != nil {
			return err
		}
		ref.Buffer, ref.source = buf, class
		ref.Usage.WriteWait = waits

	case allocPersistent:
		return &InvariantError{Op: "materialiseBuffer", Resource: res,
			Message: "persistent resource materialised through the frame stream"}

	default:
		return &InvariantError{Op: "materialiseBuffer", Resource: res,
			Message: fmt.Sprintf("unroutable allocator class %d", class)}
	}

	r.setReferenceLocked(res, ref)
	return nil
}

func (r *ResourceRegistry) materialiseTextureLocked(id TextureID) error {
	res := TextureResource(id)
	if ref := r.referenceLocked(res); ref != nil && !ref.deposited {
		ref.UsedThisFrame = true
		return nil
	}
	desc, ok := r.table.TextureDescriptor(id)
	if !ok {
		return fmt.Errorf("%w: %v", ErrUnknownResource, res)
	}

	ref := &BackingReference{UsedThisFrame: true}
	switch class := r.classify(res); class {
	case allocWindow:
		// The drawable is acquired at encoder open; the reference is
		// created pending.
		ref.source = class

	case allocTextureView:
		base, format, ok := r.table.ViewInfo(id)
		if !ok {
			return &InvariantError{Op: "materialiseTextureView", Resource: res,
				Message: "view texture without view info"}
		}
		baseRef := r.referenceLocked(TextureResource(base))
		if baseRef == nil || baseRef.Texture == nil {
			return fmt.Errorf("%w: view base %v", ErrNotMaterialised, base)
		}
		view, err := r.device.NewTextureView(baseRef.Texture, format)
		if err != nil {
			r.log.Warn("framegraph: render-target view creation failed",
				"texture", res.String(), "error", err)
			return err
		}
		ref.Texture, ref.source = view, class

	case allocMemorylessPool:
		if pooled, ok := r.memoryless.Collect(alloc.TextureFits(desc), alloc.TextureSize); ok {
			ref.Texture = pooled.Texture
		} else {
			tex, err := r.device.NewTexture(desc)
			if err != nil {
				return err
			}
			ref.Texture = tex
		}
		ref.source = class

	case allocStagingPool:
		if pooled, ok := r.stagingTextures.Collect(alloc.TextureFits(desc), alloc.TextureSize); ok {
			ref.Texture = pooled.Texture
		} else {
			tex, err := r.device.NewTexture(desc)
			if err != nil {
				return err
			}
			ref.Texture = tex
		}
		ref.source = class

	case allocHistoryPool:
		if pooled, ok := r.historyTextures.Collect(alloc.TextureFits(desc), alloc.TextureSize); ok {
			ref.Texture = pooled.Texture
		} else {
			tex, err := r.device.NewTexture(desc)
			if err != nil {
				return err
			}
			ref.Texture = tex
		}
		ref.source = class

	case allocSmallHeap:
		tex, waits, err := r.smallPrivate.CollectTexture(desc)
		if err != nil {
			return err
		}
		ref.Texture, ref.source = tex, class
		ref.Usage.WriteWait = waits

	case allocColorHeap:
		tex, waits, err := r.colorHeap.CollectTexture(desc)
		if err != nil {
			return err
		}
		ref.Texture, ref.source = tex, class
		ref.Usage.WriteWait = waits

	case allocDepthHeap:
		tex, waits, err := r.depthHeap.CollectTexture(desc)
		if err != nil {
			return err
		}
		ref.Texture, ref.source = tex, class
		ref.Usage.WriteWait = waits

	case allocPrivateHeap:
		tex, waits, err := r.privateHeap.CollectTexture(desc)
		if err != nil {
			return err
		}
		ref.Texture, ref.source = tex, class
		ref.Usage.WriteWait = waits

	case allocPersistent:
		return &InvariantError{Op: "materialiseTexture", Resource: res,
			Message: "persistent resource materialised through the frame stream"}

	default:
		return &InvariantError{Op: "materialiseTexture", Resource: res,
			Message: fmt.Sprintf("unroutable allocator class %d", class)}
	}

	r.setReferenceLocked(res, ref)
	return nil
}

func (r *ResourceRegistry) disposeLocked(res Resource) error {
	ref := r.referenceLocked(res)
	if ref == nil {
		return &InvariantError{Op: "dispose", Resource: res, Message: "disposing an unknown handle"}
	}
	flags := r.table.Flags(res)

	// A history buffer's first frame ends with a store: the backing
	// survives exactly one frame boundary.
	if flags.Has(types.FlagHistoryBuffer) && !r.table.State(res).Has(types.StateInitialised) {
		r.table.MarkInitialised(res)
		ref.keepAlive = true
		return nil
	}

	switch ref.source {
	case allocWindow:
		// Never reused by allocators; the reference is dropped on
		// cycle.
	case allocArena, allocArgumentArena:
		// Arena bytes are implicitly freed when the ring cycles.
	case allocTextureView:
		r.device.DestroyTexture(ref.Texture)
	case allocStagingPool:
		if ref.Buffer != nil {
			id, _ := res.AsBuffer()
			desc, _ := r.table.BufferDescriptor(id)
			r.stagingBuffers.Deposit(alloc.PooledBuffer{Buffer: ref.Buffer, Desc: desc})
		} else {
			id, _ := res.AsTexture()
			desc, _ := r.table.TextureDescriptor(id)
			r.stagingTextures.Deposit(alloc.PooledTexture{Texture: ref.Texture, Desc: desc})
		}
	case allocHistoryPool:
		if ref.Buffer != nil {
			id, _ := res.AsBuffer()
			desc, _ := r.table.BufferDescriptor(id)
			r.historyBuffers.Deposit(alloc.PooledBuffer{Buffer: ref.Buffer, Desc: desc})
		} else {
			id, _ := res.AsTexture()
			desc, _ := r.table.TextureDescriptor(id)
			r.historyTextures.Deposit(alloc.PooledTexture{Texture: ref.Texture, Desc: desc})
		}
	case allocMemorylessPool:
		id, _ := res.AsTexture()
		desc, _ := r.table.TextureDescriptor(id)
		r.memoryless.Deposit(alloc.PooledTexture{Texture: ref.Texture, Desc: desc})
	case allocSmallHeap:
		if err := r.depositHeap(r.smallPrivate, ref); err != nil {
			return &InvariantError{Op: "dispose", Resource: res, Message: err.Error()}
		}
	case allocPrivateHeap:
		if err := r.depositHeapAllocator(r.privateHeap, ref); err != nil {
			return &InvariantError{Op: "dispose", Resource: res, Message: err.Error()}
		}
	case allocColorHeap:
		if err := r.depositHeapAllocator(r.colorHeap, ref); err != nil {
			return &InvariantError{Op: "dispose", Resource: res, Message: err.Error()}
		}
	case allocDepthHeap:
		if err := r.depositHeapAllocator(r.depthHeap, ref); err != nil {
			return &InvariantError{Op: "dispose", Resource: res, Message: err.Error()}
		}
	default:
		return &InvariantError{Op: "dispose", Resource: res, Message: "backing from an unknown allocator"}
	}

	ref.deposited = true
	return nil
}

func (r *ResourceRegistry) depositHeap(a *alloc.MultiFrameHeapAllocator, ref *BackingReference) error {
	if ref.Buffer != nil {
		return a.DepositBuffer(ref.Buffer, ref.Disposal.WriteWait)
	}
	return a.DepositTexture(ref.Texture, ref.Disposal.WriteWait)
}

func (r *ResourceRegistry) depositHeapAllocator(a *alloc.HeapAllocator, ref *BackingReference) error {
	if ref.Buffer != nil {
		return a.DepositBuffer(ref.Buffer, ref.Disposal.WriteWait)
	}
	return a.DepositTexture(ref.Texture, ref.Disposal.WriteWait)
}

// MaterialisePersistent gives a persistent resource its backing on explicit
// client request, outside the frame stream.
func (r *ResourceRegistry) MaterialisePersistent(res Resource) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.table.Flags(res).Has(types.FlagPersistent) {
		return &InvariantError{Op: "materialisePersistent", Resource: res,
			Message: "resource is not persistent"}
	}
	if r.referenceLocked(res) != nil {
		return nil
	}

	ref := &BackingReference{source: allocPersistent}
	if id, ok := res.AsBuffer(); ok {
		desc, ok := r.table.BufferDescriptor(id)
		if !ok {
			return fmt.Errorf("%w: %v", ErrUnknownResource, res)
		}
		buf, err := r.persistent.CollectBuffer(desc)
		if err != nil {
			return err
		}
		ref.Buffer = buf
	} else if id, ok := res.AsTexture(); ok {
		desc, ok := r.table.TextureDescriptor(id)
		if !ok {
			return fmt.Errorf("%w: %v", ErrUnknownResource, res)
		}
		tex, err := r.persistent.CollectTexture(desc)
		if err != nil {
			return err
		}
		ref.Texture = tex
	}
	r.setReferenceLocked(res, ref)
	return nil
}

// DisposePersistent releases a persistent resource's backing on explicit
// client request.
func (r *ResourceRegistry) DisposePersistent(res Resource) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	ref := r.referenceLocked(res)
	if ref == nil {
		return &InvariantError{Op: "disposePersistent", Resource: res,
			Message: "disposing an unknown handle"}
	}
	if ref.source != allocPersistent {
		return &InvariantError{Op: "disposePersistent", Resource: res,
			Message: "backing does not belong to the persistent allocator"}
	}
	for _, f := range ref.Usage.All() {
		r.fences.Release(f)
	}
	for _, f := range ref.Disposal.All() {
		r.fences.Release(f)
	}
	if ref.Buffer != nil {
		r.persistent.DepositBuffer(ref.Buffer)
	} else if ref.Texture != nil {
		r.persistent.DepositTexture(ref.Texture)
	}
	if id, ok := res.AsBuffer(); ok {
		delete(r.buffers, id)
	} else if id, ok := res.AsTexture(); ok {
		delete(r.textures, id)
	}
	return nil
}

// AttachDrawable installs an acquired drawable as a window texture's
// backing for this frame.
func (r *ResourceRegistry) AttachDrawable(id TextureID, d hal.Drawable) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ref := r.textures[id]
	if ref == nil {
		ref = &BackingReference{source: allocWindow, UsedThisFrame: true}
		r.textures[id] = ref
	}
	ref.Drawable = d
	ref.Texture = d.Texture()
	r.drawables = append(r.drawables, d)
}

// TakeDrawables returns and clears the drawables acquired this frame.
func (r *ResourceRegistry) TakeDrawables() []hal.Drawable {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.drawables
	r.drawables = nil
	return out
}

// CycleFrames drops transient entries, promotes staged disposal fences to
// usage fences on surviving entries, and advances every allocator's ring.
func (r *ResourceRegistry) CycleFrames() {
	r.mu.Lock()
	defer r.mu.Unlock()

	cycleMap(r, r.buffers)
	cycleMap(r, r.textures)
	for _, id := range r.transientArguments {
		delete(r.argumentBuffers, id)
	}
	r.transientArguments = r.transientArguments[:0]
	r.cpuBuffers = r.cpuBuffers[:0]

	destroyBuffer := func(b alloc.PooledBuffer) { r.device.DestroyBuffer(b.Buffer) }
	destroyTexture := func(t alloc.PooledTexture) { r.device.DestroyTexture(t.Texture) }
	r.stagingBuffers.CycleFrames(destroyBuffer)
	r.stagingTextures.CycleFrames(destroyTexture)
	r.historyBuffers.CycleFrames(destroyBuffer)
	r.historyTextures.CycleFrames(destroyTexture)
	r.memoryless.CycleFrames(destroyTexture)
	r.smallPrivate.CycleFrames()
	r.privateHeap.CycleFrames()
	r.colorHeap.CycleFrames()
	r.depthHeap.CycleFrames()
	r.sharedArena.CycleFrames()
	r.managedArena.CycleFrames()
	r.writeCombinedArena.CycleFrames()
	r.argumentArena.CycleFrames()
	r.fences.CycleFrames()
}

func cycleMap[K comparable](r *ResourceRegistry, m map[K]*BackingReference) {
	for id, ref := range m {
		if ref.source == allocPersistent || ref.keepAlive {
			// Staged disposal fences become next frame's usage
			// fences.
			if !ref.Disposal.Empty() {
				if !ref.fencesReleased {
					for _, f := range ref.Usage.All() {
						r.fences.Release(f)
					}
				}
				ref.Usage = ref.Disposal
				ref.Disposal = alloc.FenceSet{}
			} else if ref.fencesReleased {
				ref.Usage = alloc.FenceSet{}
			}
			ref.fencesReleased = false
			ref.UsedThisFrame = false
			if ref.keepAlive && ref.deposited {
				// A history buffer deposited after its second
				// frame leaves the registry.
				delete(m, id)
			}
			ref.keepAlive = ref.keepAlive && !ref.deposited
			continue
		}
		// Transient entry: release this frame's remaining fence holds
		// and drop.
		if !ref.fencesReleased {
			for _, f := range ref.Usage.All() {
				r.fences.Release(f)
			}
		}
		for _, f := range ref.Disposal.All() {
			r.fences.Release(f)
		}
		delete(m, id)
	}
}

func isDepthStencilFormat(f gputypes.TextureFormat) bool {
	switch f {
	case gputypes.TextureFormatDepth16Unorm, gputypes.TextureFormatDepth24Plus,
		gputypes.TextureFormatDepth24PlusStencil8, gputypes.TextureFormatDepth32Float,
		gputypes.TextureFormatDepth32FloatStencil8, gputypes.TextureFormatStencil8:
		return true
	default:
		return false
	}
}

func textureFootprintSize(desc types.TextureDescriptor) uint64 {
	size := desc.Size
	texels := uint64(size.Width) * uint64(size.Height) * uint64(size.DepthOrArrayLayers)
	samples := uint64(desc.SampleCount)
	if samples == 0 {
		samples = 1
	}
	return texels * 4 * samples
}
