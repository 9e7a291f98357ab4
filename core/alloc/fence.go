package alloc

import (
	"fmt"

	"github.com/gogpu/framegraph/hal"
)

// Fence is a retain-counted handle over a backend fence. The handle is
// always valid; content validity across frames is tracked by the owner
// through AliasingIndex and Frame.
//
// Resources hold fence handles, never owning pointers, which breaks the
// resource↔fence reference cycles: releasing a handle only decrements the
// count.
type Fence struct {
	fence       hal.Fence
	retainCount int32

	// AliasingIndex and Frame identify the deposit that last gave the
	// fence meaning. Owners compare them to decide whether a recorded
	// wait is stale.
	AliasingIndex int64
	Frame         uint64
}

// Hal returns the backend fence.
func (f *Fence) Hal() hal.Fence { return f.fence }

// RetainCount returns the current retain count.
func (f *Fence) RetainCount() int32 { return f.retainCount }

// FenceSet is the pair of wait sets attached to a backing reference:
// fences future readers must wait on, and fences future writers must wait
// on.
type FenceSet struct {
	ReadWait  []*Fence
	WriteWait []*Fence
}

// Empty reports whether the set carries no fences.
func (s FenceSet) Empty() bool {
	return len(s.ReadWait) == 0 && len(s.WriteWait) == 0
}

// All returns every distinct fence in the set.
func (s FenceSet) All() []*Fence {
	out := append([]*Fence(nil), s.ReadWait...)
	for _, f := range s.WriteWait {
		seen := false
		for _, g := range out {
			if g == f {
				seen = true
				break
			}
		}
		if !seen {
			out = append(out, f)
		}
	}
	return out
}

// FencePool hands out retain-counted fences, recycling backend fences
// across frames.
//
// Release is deferred: a fence whose count reaches zero moves to a staging
// list and only becomes allocatable again on CycleFrames, so mid-frame
// retain/release pairs need not be strictly ordered.
type FencePool struct {
	device hal.Device

	unused         []*Fence
	frameEndUnused []*Fence

	allocated int
	serial    int
}

// NewFencePool creates a fence pool over the device.
func NewFencePool(device hal.Device) *FencePool {
	return &FencePool{device: device}
}

// Allocate returns a fence with retain count 1, taken from the unused LIFO
// or freshly created.
func (p *FencePool) Allocate() *Fence {
	var f *Fence
	if n := len(p.unused); n > 0 {
		f = p.unused[n-1]
		p.unused = p.unused[:n-1]
	} else {
		p.serial++
		f = &Fence{fence: p.device.NewFence(fmt.Sprintf("framegraph-fence-%d", p.serial))}
	}
	f.retainCount = 1
	f.AliasingIndex = 0
	f.Frame = 0
	p.allocated++
	trackFence(f, fenceEventAllocate)
	return f
}

// Retain increments the fence's retain count.
func (p *FencePool) Retain(f *Fence) {
	if f.retainCount <= 0 {
		panic(fmt.Sprintf("alloc: retain of dead fence %q", f.fence.Label()))
	}
	f.retainCount++
	trackFence(f, fenceEventRetain)
}

// Release decrements the fence's retain count. On zero the fence moves to
// the frame-end staging list.
func (p *FencePool) Release(f *Fence) {
	if f.retainCount <= 0 {
		panic(fmt.Sprintf("alloc: release of dead fence %q", f.fence.Label()))
	}
	f.retainCount--
	trackFence(f, fenceEventRelease)
	if f.retainCount == 0 {
		p.frameEndUnused = append(p.frameEndUnused, f)
		p.allocated--
	}
}

// CycleFrames returns the frame's released fences to the unused LIFO.
func (p *FencePool) CycleFrames() {
	p.unused = append(p.unused, p.frameEndUnused...)
	p.frameEndUnused = p.frameEndUnused[:0]
}

// LiveCount returns the number of fences currently retained somewhere.
func (p *FencePool) LiveCount() int { return p.allocated }
