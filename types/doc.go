// Package types provides the data structures shared by the frame graph
// compiler, its allocators, and the hardware abstraction layer.
//
// This package contains no logic beyond small accessor methods; it exists so
// that core/ and hal/ can exchange descriptors, flags, and stage sets without
// importing each other.
//
// Architecture:
//
//	types/  → Data structures (this package)
//	hal/    → Hardware abstraction layer (abstract encoders, devices)
//	core/   → Frame compilation and resource state machine
//
// Scalar GPU vocabulary (texture formats, usage hints, filter and compare
// modes) comes from github.com/gogpu/gputypes; this package layers the
// frame-graph-specific notions on top: resource flags, pipeline stage sets,
// usage classification, render-target load/store actions, and the packed
// resource binding path.
package types
