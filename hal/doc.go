// Package hal defines the hardware abstraction layer consumed by the frame
// graph core.
//
// The core never talks to a GPU API directly: it compiles a frame into
// resource commands and pass commands, then drives the interfaces declared
// here. A backend implements Device, CommandBuffer, and the Encoder family;
// the core guarantees that every cross-encoder hazard has been expressed as
// an UpdateFence/WaitForFence pair or a barrier before any encoder method is
// called.
//
// # Encoder contract
//
// Concrete encoders deduplicate synchronisation: an encoder must not issue
// the same (fence, stages) wait twice, and must not wait on a fence it has
// itself updated. Backends that fan pass encoding out over a thread pool
// (parallel render encoders) give each per-thread encoder its own dedup
// sets; no ordering guarantee is weakened by that, because the compiler has
// already established the only valid order via fences.
//
// # Thread safety
//
// Device implementations must be safe for concurrent resource creation.
// Encoders and command buffers are driven from the frame thread only.
package hal
