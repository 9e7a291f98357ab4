package framegraph

import (
	"log/slog"

	"github.com/gogpu/framegraph/core"
	"github.com/gogpu/framegraph/hal"
)

// Options configure a FrameGraph.
type Options struct {
	// NumInflightFrames is the depth of the per-frame ring. Minimum 2.
	NumInflightFrames int

	// SmallAllocationThreshold is the private-resource cut-off for the
	// multi-frame small heap.
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

	// SupportsMemoryBarriers selects fine-grained barriers for
	// same-encoder hazards; when false texture hazards use texture
	// barriers.
	SupportsMemoryBarriers bool

	// MemorylessRenderTargets enables the memoryless pool for eligible
	// textures on tile-based platforms.
	MemorylessRenderTargets bool

	// Logger receives frame diagnostics: skipped passes and drawable
	// failures at Warn, allocator and command routing at Debug. Nil
	// discards all output.
	//
	// Example:
	//
	//	opts := framegraph.DefaultOptions()
	//	opts.Logger = slog.Default()
	Logger *slog.Logger
}

// DefaultOptions returns the standard configuration.
func DefaultOptions() Options {
	reg := core.DefaultRegistryOptions()
	return Options{
		NumInflightFrames:        reg.NumInflightFrames,
		SmallAllocationThreshold: reg.SmallAllocationThreshold,
		SharedBlockSize:          reg.SharedBlockSize,
		ManagedBlockSize:         reg.ManagedBlockSize,
		WriteCombinedBlockSize:   reg.WriteCombinedBlockSize,
		ArgumentBlockSize:        reg.ArgumentBlockSize,
		HeapSize:                 reg.HeapSize,
		FramePurgeability:        reg.FramePurgeability,
		SupportsMemoryBarriers:   true,
	}
}

func (o Options) registryOptions() core.RegistryOptions {
	return core.RegistryOptions{
		NumInflightFrames:        o.NumInflightFrames,
		SmallAllocationThreshold: o.SmallAllocationThreshold,
		SharedBlockSize:          o.SharedBlockSize,
		ManagedBlockSize:         o.ManagedBlockSize,
		WriteCombinedBlockSize:   o.WriteCombinedBlockSize,
		ArgumentBlockSize:        o.ArgumentBlockSize,
		HeapSize:                 o.HeapSize,
		FramePurgeability:        o.FramePurgeability,
		MemorylessRenderTargets:  o.MemorylessRenderTargets,
		Logger:                   o.Logger,
	}
}
