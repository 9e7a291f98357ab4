package core

import (
	"sort"

	"github.com/gogpu/framegraph/core/alloc"
	"github.com/gogpu/framegraph/types"
)

// ResourceCommandKind names one compiled resource command.
type ResourceCommandKind uint8

const (
	// CommandMaterialiseBuffer acquires a buffer backing.
	CommandMaterialiseBuffer ResourceCommandKind = iota

	// CommandMaterialiseTexture acquires a texture backing.
	CommandMaterialiseTexture

	// CommandMaterialiseTextureView acquires a pixel-format view over an
	// already-materialised base texture.
	CommandMaterialiseTextureView

	// CommandMaterialiseArgumentBuffer reserves and encodes an argument
	// buffer in the argument arena.
	CommandMaterialiseArgumentBuffer

	// CommandDisposeResource returns a backing to its allocator.
	CommandDisposeResource

	// CommandUseResource declares indirect residency to the encoder.
	CommandUseResource

	// CommandTextureBarrier orders texture writes before reads within an
	// encoder on platforms without fine-grained memory barriers.
	CommandTextureBarrier

	// CommandMemoryBarrier orders writes before reads within an encoder.
	CommandMemoryBarrier

	// CommandUpdateFence signals a fence after the source stages.
	CommandUpdateFence

	// CommandWaitForFence blocks the dependent stages on a fence.
	CommandWaitForFence

	// CommandWaitForMultiframeFence waits on the fences a previous frame
	// attached to the resource's backing.
	CommandWaitForMultiframeFence

	// CommandSetDisposalFences stages next frame's usage fences.
	CommandSetDisposalFences

	// CommandReleaseMultiframeFences releases the fences the previous
	// frame attached to the resource's backing.
	CommandReleaseMultiframeFences

	// CommandRetainFence increments a fence's retain count.
	CommandRetainFence

	// CommandReleaseFence decrements a fence's retain count.
	CommandReleaseFence
)

// String returns a human-readable representation of the command kind.
func (k ResourceCommandKind) String() string {
	switch k {
	case CommandMaterialiseBuffer:
		return "materialiseBuffer"
	case CommandMaterialiseTexture:
		return "materialiseTexture"
	case CommandMaterialiseTextureView:
		return "materialiseTextureView"
	case CommandMaterialiseArgumentBuffer:
		return "materialiseArgumentBuffer"
	case CommandDisposeResource:
		return "disposeResource"
	case CommandUseResource:
		return "useResource"
	case CommandTextureBarrier:
		return "textureBarrier"
	case CommandMemoryBarrier:
		return "memoryBarrier"
	case CommandUpdateFence:
		return "updateFence"
	case CommandWaitForFence:
		return "waitForFence"
	case CommandWaitForMultiframeFence:
		return "waitForMultiframeFence"
	case CommandSetDisposalFences:
		return "setDisposalFences"
	case CommandReleaseMultiframeFences:
		return "releaseMultiframeFences"
	case CommandRetainFence:
		return "retainFence"
	case CommandReleaseFence:
		return "releaseFence"
	default:
		return "unknown"
	}
}

// CommandOrder places a resource command before or after the pass command
// at its index.
type CommandOrder uint8

const (
	// OrderBefore runs the resource command before the pass command.
	OrderBefore CommandOrder = iota

	// OrderAfter runs the resource command after the pass command.
	OrderAfter
)

// FenceDependencyRole selects which multiframe wait set applies.
type FenceDependencyRole uint8

const (
	// RoleRead waits on the fences protecting reads of prior contents.
	RoleRead FenceDependencyRole = iota

	// RoleWrite waits on the fences protecting overwrites.
	RoleWrite
)

// ResourceCommand is one compiled command interleaved with the frame's pass
// commands. Only the fields relevant to Kind are populated.
type ResourceCommand struct {
	Kind  ResourceCommandKind
	Index int
	Order CommandOrder

	Resource Resource
	Fence    *alloc.Fence

	// ReadFence and WriteFences carry the disposal staging sets.
	ReadFence   *alloc.Fence
	WriteFences []*alloc.Fence

	AfterStages  types.Stages
	BeforeStages types.Stages
	Mask         types.ResourceUse
	Role         FenceDependencyRole
}

// priority orders commands that share an index and order phase: allocation
// strictly before first use, fence retains before the encoder can observe
// the fence, disposal strictly after last use and after fence staging.
func (k ResourceCommandKind) priority() int {
	switch k {
	case CommandMaterialiseBuffer, CommandMaterialiseTexture,
		CommandMaterialiseTextureView, CommandMaterialiseArgumentBuffer:
		return 0
	case CommandRetainFence:
		return 2
	case CommandReleaseFence, CommandReleaseMultiframeFences:
		return 3
	case CommandSetDisposalFences:
		return 4
	case CommandDisposeResource:
		return 5
	default:
		return 1
	}
}

// SortResourceCommands sorts a command stream by (commandIndex, order,
// priority). The sort is stable so that commands tied on all three keys
// keep emission order.
func SortResourceCommands(cmds []ResourceCommand) {
	sort.SliceStable(cmds, func(i, j int) bool {
		a, b := &cmds[i], &cmds[j]
		if a.Index != b.Index {
			return a.Index < b.Index
		}
		if a.Order != b.Order {
			return a.Order < b.Order
		}
		return a.Kind.priority() < b.Kind.priority()
	})
}
