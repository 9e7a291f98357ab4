// Package noop provides a no-GPU backend for the frame graph HAL.
//
// The noop backend implements all HAL interfaces without touching hardware.
// It is useful for:
//   - Testing frame compilation without GPU hardware
//   - CI/CD environments without GPU access
//   - Reference implementation showing minimal HAL requirements
//
// Unlike a pure stub, the backend records every encoder call into its
// command buffer's command log so tests can assert on the exact ordering of
// fences, barriers, residency declarations, and pass commands the frame
// driver emits. Shared and managed buffers are backed by host byte slices.
//
// Commit invokes the completion callback synchronously; there is no GPU to
// wait for.
package noop
