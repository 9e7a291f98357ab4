package core

import (
	"fmt"

	"github.com/gogpu/framegraph/types"
)

// Index is the index component of a resource handle.
// It identifies the slot in the resource table.
type Index = uint32

// Epoch is the generation component of a resource handle.
// It prevents use-after-free by invalidating old handles.
type Epoch = uint32

// RawID is the underlying 64-bit representation of a resource handle.
// Layout: lower 32 bits = index, upper 32 bits = epoch.
type RawID uint64

// Zip combines an index and epoch into a RawID.
func Zip(index Index, epoch Epoch) RawID {
	return RawID(index) | (RawID(epoch) << 32)
}

// Unzip extracts the index and epoch from a RawID.
func (id RawID) Unzip() (Index, Epoch) {
	return Index(id & 0xFFFFFFFF), Epoch(id >> 32)
}

// Index returns the index component of the RawID.
func (id RawID) Index() Index {
	return Index(id & 0xFFFFFFFF)
}

// Epoch returns the epoch component of the RawID.
func (id RawID) Epoch() Epoch {
	return Epoch(id >> 32)
}

// IsZero returns true if both index and epoch are zero.
func (id RawID) IsZero() bool {
	return id == 0
}

// Marker is a constraint for marker types used to distinguish handle types.
// Marker types are empty structs that provide compile-time type safety.
type Marker interface {
	marker() // unexported method prevents external implementation
}

// ID is a type-safe resource handle parameterized by a marker type, so a
// BufferID can never be passed where a TextureID is expected.
type ID[T Marker] struct {
	raw RawID
}

// NewID creates a new ID from index and epoch components.
func NewID[T Marker](index Index, epoch Epoch) ID[T] {
	return ID[T]{raw: Zip(index, epoch)}
}

// Raw returns the underlying RawID.
func (id ID[T]) Raw() RawID {
	return id.raw
}

// Unzip extracts the index and epoch from the ID.
func (id ID[T]) Unzip() (Index, Epoch) {
	return id.raw.Unzip()
}

// IsZero returns true if the ID is zero (invalid).
func (id ID[T]) IsZero() bool {
	return id.raw.IsZero()
}

// String returns a string representation of the ID.
func (id ID[T]) String() string {
	index, epoch := id.Unzip()
	return fmt.Sprintf("ID(%d,%d)", index, epoch)
}

type bufferMarker struct{}

func (bufferMarker) marker() {}

type textureMarker struct{}

func (textureMarker) marker() {}

// BufferID identifies a buffer resource.
type BufferID = ID[bufferMarker]

// TextureID identifies a texture resource.
type TextureID = ID[textureMarker]

// Resource is a kind-tagged resource handle. It is comparable and used as a
// map key wherever buffers and textures flow through the same code path.
type Resource struct {
	kind types.ResourceKind
	raw  RawID
}

// BufferResource wraps a buffer handle.
func BufferResource(id BufferID) Resource {
	return Resource{kind: types.ResourceKindBuffer, raw: id.Raw()}
}

// TextureResource wraps a texture handle.
func TextureResource(id TextureID) Resource {
	return Resource{kind: types.ResourceKindTexture, raw: id.Raw()}
}

// Kind returns the resource kind.
func (r Resource) Kind() types.ResourceKind { return r.kind }

// Raw returns the underlying RawID.
func (r Resource) Raw() RawID { return r.raw }

// IsZero reports whether the handle is invalid.
func (r Resource) IsZero() bool { return r.raw.IsZero() }

// AsBuffer returns the buffer handle, if the resource is a buffer.
func (r Resource) AsBuffer() (BufferID, bool) {
	if r.kind != types.ResourceKindBuffer {
		return BufferID{}, false
	}
	return ID[bufferMarker]{raw: r.raw}, true
}

// AsTexture returns the texture handle, if the resource is a texture.
func (r Resource) AsTexture() (TextureID, bool) {
	if r.kind != types.ResourceKindTexture {
		return TextureID{}, false
	}
	return ID[textureMarker]{raw: r.raw}, true
}

// String returns a human-readable representation of the handle.
func (r Resource) String() string {
	index, epoch := r.raw.Unzip()
	return fmt.Sprintf("%s(%d,%d)", r.kind, index, epoch)
}
