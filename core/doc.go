// Package core implements the per-frame compilation pipeline of the frame
// graph: it turns a recorded pass list plus a resource-usage log into a
// sorted stream of resource commands, and owns the registry that routes
// materialisation to the allocator state machine.
//
// Architecture:
//
//	types/      → Data structures (no logic)
//	core/       → Merger, dependency compiler, registry (this package)
//	core/alloc/ → Allocators and the fence pool
//	hal/        → Hardware abstraction layer
//
// Compilation happens in two stages per frame. MergeRenderTargets coalesces
// consecutive draw passes that share attachments into one render encoder
// each and derives load/store actions so unused data is not written back to
// memory. CompileFrame then scans every resource's usage list once,
// deriving:
//
//   - materialise/dispose placement around the first and last use;
//   - cross-encoder fence pairs for read-after-write, write-after-write,
//     and write-after-read hazards, coalesced per encoder pair;
//   - same-encoder memory or texture barriers;
//   - residency declarations for argument-buffer accesses;
//   - disposal fences that the next frame's users wait on.
//
// Handle System:
//
// Resources are identified by type-safe IDs combining an index and an
// epoch:
//
//	type BufferID = ID[bufferMarker]
//	id := NewID[bufferMarker](index, epoch)
//
// The epoch prevents use-after-free when handle slots are recycled. A
// handle's backing reference exists iff the resource is materialised;
// disposal returns the backing to an allocator while the handle stays
// valid.
//
// Thread Safety:
//
// The ResourceTable and ResourceRegistry serialise access internally;
// everything else in this package is driven from the frame thread only.
package core
