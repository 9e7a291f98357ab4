package core

import (
	"github.com/gogpu/framegraph/types"
)

// Range is a half-open index range into the frame's flat command stream.
type Range struct {
	Lower, Upper int
}

// Empty reports whether the range covers no commands.
func (r Range) Empty() bool { return r.Upper <= r.Lower }

// Len returns the number of commands covered.
func (r Range) Len() int {
	if r.Empty() {
		return 0
	}
	return r.Upper - r.Lower
}

// Contains reports whether the command index lies within the range.
func (r Range) Contains(i int) bool { return i >= r.Lower && i < r.Upper }

// ResourceUsage records one access pattern of a pass to a resource. Usage
// records are produced by command recording and consumed read-only by the
// merger and the dependency compiler.
type ResourceUsage struct {
	// PassIndex is the owning pass's stable position.
	PassIndex int

	// CommandRange is the half-open range of command indexes the access
	// spans within the frame's flat command stream.
	CommandRange Range

	// Type classifies the access.
	Type types.UsageType

	// Stages is the pipeline-stage set of the access, or the
	// CPU-before-render sentinel.
	Stages types.Stages

	// InArgumentBuffer marks accesses made indirectly through an
	// argument buffer; they need explicit residency declarations.
	InArgumentBuffer bool
}

// UsageLog is the per-resource ordered usage list for one frame. Iteration
// order is the order resources were first recorded, which keeps compilation
// deterministic.
type UsageLog struct {
	order  []Resource
	usages map[Resource][]ResourceUsage
}

// NewUsageLog creates an empty usage log.
func NewUsageLog() *UsageLog {
	return &UsageLog{usages: make(map[Resource][]ResourceUsage)}
}

// Record appends a usage for a resource. Usages must be recorded in
// ascending command order per resource.
func (l *UsageLog) Record(r Resource, u ResourceUsage) {
	if _, ok := l.usages[r]; !ok {
		l.order = append(l.order, r)
	}
	l.usages[r] = append(l.usages[r], u)
}

// Usages returns the ordered usage list for a resource.
func (l *UsageLog) Usages(r Resource) []ResourceUsage {
	return l.usages[r]
}

// ForEach visits every resource in first-recorded order.
func (l *UsageLog) ForEach(fn func(Resource, []ResourceUsage) bool) {
	for _, r := range l.order {
		if !fn(r, l.usages[r]) {
			return
		}
	}
}

// Resources returns the resources in first-recorded order.
func (l *UsageLog) Resources() []Resource {
	return l.order
}
