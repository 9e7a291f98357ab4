package types

import (
	"math/bits"
	"strings"
)

// Stages is a set of pipeline stages. Fence updates and waits are qualified
// by the stages after which the update fires and before which the wait
// blocks.
type Stages uint8

const (
	// StageVertex covers vertex fetch and vertex shading.
	StageVertex Stages = 1 << iota

	// StageFragment covers rasterisation and fragment shading.
	StageFragment

	// StageCompute covers compute dispatches.
	StageCompute

	// StageBlit covers copy and blit operations.
	StageBlit

	// StageCPUBeforeRender is a sentinel: the access happens on the CPU
	// before the frame's GPU work is submitted. Usages carrying it never
	// participate in GPU synchronisation.
	StageCPUBeforeRender Stages = 1 << 7
)

// IsCPUBeforeRender reports whether the set is the CPU-side sentinel.
func (s Stages) IsCPUBeforeRender() bool {
	return s&StageCPUBeforeRender != 0
}

// First returns the earliest stage in the set, or zero for an empty set.
// Stage constants are declared in pipeline order, so the lowest set bit is
// the earliest stage.
func (s Stages) First() Stages {
	if s == 0 {
		return 0
	}
	return Stages(1) << uint(bits.TrailingZeros8(uint8(s)))
}

// Last returns the latest stage in the set, or zero for an empty set.
func (s Stages) Last() Stages {
	if s == 0 {
		return 0
	}
	return Stages(1) << uint(7-bits.LeadingZeros8(uint8(s)))
}

// Union returns the combined stage set.
func (s Stages) Union(other Stages) Stages {
	return s | other
}

// String returns a human-readable representation such as "Vertex|Fragment".
func (s Stages) String() string {
	if s == 0 {
		return "None"
	}
	var parts []string
	if s&StageVertex != 0 {
		parts = append(parts, "Vertex")
	}
	if s&StageFragment != 0 {
		parts = append(parts, "Fragment")
	}
	if s&StageCompute != 0 {
		parts = append(parts, "Compute")
	}
	if s&StageBlit != 0 {
		parts = append(parts, "Blit")
	}
	if s&StageCPUBeforeRender != 0 {
		parts = append(parts, "CPUBeforeRender")
	}
	return strings.Join(parts, "|")
}
