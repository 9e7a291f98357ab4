// Package thread pins presentation-layer calls to one OS thread.
//
// The frame pipeline is single-threaded and suspends nowhere except where a
// window drawable must be acquired: presentation layers require that call on
// the main UI thread, and it may block. Main owns a goroutine locked to an
// OS thread and services acquisition requests over a typed request/reply
// channel, so the frame thread never touches the presentation layer
// directly.
package thread

import (
	"errors"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/gogpu/framegraph/hal"
)

// ErrStopped is returned by Acquire after Stop.
var ErrStopped = errors.New("thread: main thread stopped")

// request asks the main thread to pull the next drawable from a source.
type request struct {
	source hal.DrawableSource
	reply  chan result
}

type result struct {
	drawable hal.Drawable
	err      error
}

// Main services drawable acquisition on a single locked OS thread.
// Requests are serialised in arrival order; concurrent callers block until
// their reply arrives.
type Main struct {
	requests chan request
	done     chan struct{}
	running  atomic.Bool
}

// NewMain starts the acquisition thread. The servicing goroutine is locked
// to an OS thread for its lifetime.
func NewMain() *Main {
	m := &Main{
		requests: make(chan request),
		done:     make(chan struct{}),
	}
	m.running.Store(true)

	var ready sync.WaitGroup
	ready.Add(1)

	go func() {
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()

		ready.Done()

		for {
			select {
			case req := <-m.requests:
				d, err := req.source.NextDrawable()
				req.reply <- result{drawable: d, err: err}
			case <-m.done:
				return
			}
		}
	}()

	ready.Wait()
	return m
}

// Acquire runs source.NextDrawable on the main thread and waits for the
// outcome. Acquisition failures from the source pass through unchanged.
func (m *Main) Acquire(source hal.DrawableSource) (hal.Drawable, error) {
	if !m.running.Load() {
		return nil, ErrStopped
	}

	reply := make(chan result, 1)
	select {
	case m.requests <- request{source: source, reply: reply}:
	case <-m.done:
		return nil, ErrStopped
	}
	res := <-reply
	return res.drawable, res.err
}

// Stop shuts the acquisition thread down. In-flight requests complete; later
// Acquire calls return ErrStopped.
func (m *Main) Stop() {
	if m.running.Swap(false) {
		close(m.done)
	}
}

// IsRunning reports whether the thread is accepting requests.
func (m *Main) IsRunning() bool {
	return m.running.Load()
}
