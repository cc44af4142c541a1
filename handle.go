package asyncprim

import "sync/atomic"

// Handle is the scoped release capability returned by every granted
// acquire operation. Release is idempotent: the owner's release callback
// runs at most once, regardless of how many times or from how many
// goroutines Release is called. A zero Handle is not valid; always obtain
// one from an acquire operation.
type Handle struct {
	state *handleState
}

type handleState struct {
	released atomic.Bool
	release  func()
}

// newHandle wraps release in a [Handle] that guarantees release runs at
// most once. Uses an atomic compare-and-swap rather than a sync.Once, since
// a sync.Once here would block a second concurrent Release call until the
// first completes; compare-and-swap lets the second caller return
// immediately having learned it was a no-op.
func newHandle(release func()) Handle {
	return Handle{state: &handleState{release: release}}
}

// Release returns the resource to its owning primitive. Safe to call more
// than once, and concurrently, from any goroutine holding the handle; only
// the first call has any effect. Calling Release on a [Handle] whose owning
// primitive has already been discarded (no live references remain) is a
// documented no-op.
func (h Handle) Release() {
	if h.state == nil {
		return
	}
	if h.state.released.CompareAndSwap(false, true) {
		if h.state.release != nil {
			h.state.release()
		}
	}
}

// Active reports whether Release has not yet been called (or the handle is
// the zero value, in which case it reports false).
func (h Handle) Active() bool {
	return h.state != nil && !h.state.released.Load()
}
