package noop

import (
	"fmt"
	"sync"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/framegraph/hal"
	"github.com/gogpu/framegraph/types"
)

// Device implements hal.Device for the noop backend.
//
// Thread-safe. Creation counters let tests assert that every object created
// during a frame is eventually destroyed.
type Device struct {
	mu sync.Mutex

	liveBuffers  int
	liveTextures int
	liveHeaps    int
	liveFences   int
	fenceSerial  int

	commandBuffers []*CommandBuffer
}

// NewDevice creates a noop device.
func NewDevice() *Device {
	return &Device{}
}

// NewBuffer creates a host-backed buffer.
func (d *Device) NewBuffer(desc types.BufferDescriptor) (hal.Buffer, error) {
	d.mu.Lock()
	d.liveBuffers++
	d.mu.Unlock()
	return newBuffer(desc), nil
}

// DestroyBuffer releases a buffer.
func (d *Device) DestroyBuffer(hal.Buffer) {
	d.mu.Lock()
	d.liveBuffers--
	d.mu.Unlock()
}

// NewTexture creates a texture.
func (d *Device) NewTexture(desc types.TextureDescriptor) (hal.Texture, error) {
	d.mu.Lock()
	d.liveTextures++
	d.mu.Unlock()
	return &Texture{desc: desc}, nil
}

// DestroyTexture releases a texture.
func (d *Device) DestroyTexture(hal.Texture) {
	d.mu.Lock()
	d.liveTextures--
	d.mu.Unlock()
}

// NewTextureView creates a pixel-format view over a texture.
func (d *Device) NewTextureView(t hal.Texture, format gputypes.TextureFormat) (hal.Texture, error) {
	parent, ok := t.(*Texture)
	if !ok {
		return nil, fmt.Errorf("noop: texture view over foreign texture %T", t)
	}
	desc := parent.desc
	desc.Format = format
	return &Texture{desc: desc, viewOf: parent}, nil
}

// NewHeap creates a heap with byte-accurate accounting.
func (d *Device) NewHeap(desc hal.HeapDescriptor) (hal.Heap, error) {
	d.mu.Lock()
	d.liveHeaps++
	d.mu.Unlock()
	return &Heap{
		desc:      desc,
		sizes:     make(map[hal.Resource]uint64),
		aliasable: make(map[hal.Resource]bool),
	}, nil
}

// DestroyHeap releases a heap.
func (d *Device) DestroyHeap(hal.Heap) {
	d.mu.Lock()
	d.liveHeaps--
	d.mu.Unlock()
}

// NewFence creates a fence.
func (d *Device) NewFence(label string) hal.Fence {
	d.mu.Lock()
	d.liveFences++
	d.fenceSerial++
	if label == "" {
		label = fmt.Sprintf("fence-%d", d.fenceSerial)
	}
	d.mu.Unlock()
	return &Fence{label: label}
}

// DestroyFence releases a fence.
func (d *Device) DestroyFence(hal.Fence) {
	d.mu.Lock()
	d.liveFences--
	d.mu.Unlock()
}

// NewCommandBuffer begins a recording command buffer. The device keeps a
// reference so tests can inspect the log after the frame completes.
func (d *Device) NewCommandBuffer(label string) (hal.CommandBuffer, error) {
	cb := &CommandBuffer{dev: d, label: label}
	d.mu.Lock()
	d.commandBuffers = append(d.commandBuffers, cb)
	d.mu.Unlock()
	return cb, nil
}

// CommandBuffers returns every command buffer created on this device.
func (d *Device) CommandBuffers() []*CommandBuffer {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*CommandBuffer(nil), d.commandBuffers...)
}

// LastCommandBuffer returns the most recently created command buffer, or
// nil.
func (d *Device) LastCommandBuffer() *CommandBuffer {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.commandBuffers) == 0 {
		return nil
	}
	return d.commandBuffers[len(d.commandBuffers)-1]
}

// LiveFences returns the number of fences created and not yet destroyed.
func (d *Device) LiveFences() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.liveFences
}

// LiveBuffers returns the number of buffers created and not yet destroyed.
func (d *Device) LiveBuffers() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.liveBuffers
}
