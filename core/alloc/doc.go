// Package alloc implements the allocator state machine that services
// resource materialisation for the frame graph.
//
// Allocators trade reuse latency against synchronisation cost:
//
//   - TransientArena: O(1) bump suballocation of ring-buffered CPU-visible
//     bytes. Everything handed out in a frame is implicitly freed when the
//     ring returns to the same arena.
//   - Pool: LRU reuse of whole buffers or textures for a fixed descriptor;
//     entries left unused for more than two rounds of their bucket are
//     evicted.
//   - HeapAllocator: suballocation from GPU heaps in which resources may
//     physically alias; an interval algebra over aliasing indices decides
//     reuse legality, and per-index fence lists carry the waits a next user
//     must honour.
//   - MultiFrameHeapAllocator: N rotating single-frame heap allocators;
//     spends memory to eliminate intra-stream hazards on small private
//     resources.
//   - PersistentAllocator: a thin wrapper over the device for resources
//     that outlive frames.
//
// The FencePool owns the synchronisation primitives all of the above attach
// to resources. Fences are retain-counted; a count of zero returns the
// fence to the pool at the end of the frame.
//
// # Thread safety
//
// Allocator internals are not thread-safe and must be touched only from the
// frame thread. The registry serialises access.
package alloc
