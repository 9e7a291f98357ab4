package alloc

import (
	"github.com/gogpu/framegraph/hal"
	"github.com/gogpu/framegraph/types"
)

// PersistentAllocator is a thin wrapper over the native device for
// resources whose backing outlives frames. There is no recycling: collect
// creates, deposit destroys.
type PersistentAllocator struct {
	device hal.Device
}

// NewPersistentAllocator creates a persistent allocator over the device.
func NewPersistentAllocator(device hal.Device) *PersistentAllocator {
	return &PersistentAllocator{device: device}
}

// CollectBuffer creates a buffer.
func (a *PersistentAllocator) CollectBuffer(desc types.BufferDescriptor) (hal.Buffer, error) {
	return a.device.NewBuffer(desc)
}

// DepositBuffer destroys a buffer.
func (a *PersistentAllocator) DepositBuffer(b hal.Buffer) {
	a.device.DestroyBuffer(b)
}

// CollectTexture creates a texture.
func (a *PersistentAllocator) CollectTexture(desc types.TextureDescriptor) (hal.Texture, error) {
	return a.device.NewTexture(desc)
}

// DepositTexture destroys a texture.
func (a *PersistentAllocator) DepositTexture(t hal.Texture) {
	a.device.DestroyTexture(t)
}
