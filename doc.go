// Package framegraph executes declaratively described GPU frames.
//
// Client code declares render passes that read and write transient or
// persistent resources. Per frame, the graph decides which transient
// resources to materialise and from which allocator, how to pack adjacent
// draw passes into shared render-target encoders, what inter-encoder
// synchronisation preserves ordering, which load/store actions avoid
// needless memory traffic, and how physical storage aliases across
// non-overlapping transient lifetimes.
//
// # Quick Start
//
//	dev := noop.NewDevice() // or any hal.Device backend
//	graph := framegraph.New(dev, framegraph.DefaultOptions())
//
//	color := graph.Resources().NewTexture(colorDesc, 0)
//	// record passes, usages, and commands ...
//
//	err := graph.Execute(framegraph.Frame{
//	    Passes:   passes,
//	    Usages:   usages,
//	    Commands: commands,
//	})
//
// # Resource Lifecycle
//
// Transient resources materialise lazily before their first use and return
// to their allocator after their last. Persistent resources are
// materialised and disposed on explicit request. History buffers survive
// exactly one frame boundary so the next frame can read them. Window
// textures are acquired from the presentation layer inside the frame; when
// acquisition fails the owning draw pass is skipped with a diagnostic.
//
// # Thread Safety
//
// Execute must be called from one frame thread. Handle creation and
// argument-buffer materialisation may happen from recording threads.
package framegraph
