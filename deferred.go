package asyncprim

import "sync"

// Deferred is a settle-once future: a cell transitioning from pending to
// exactly one of resolved-with-value or rejected-with-error. First writer
// wins; every later Resolve/Reject call silently no-ops. Awaiters block on
// Wait and receive exactly one outcome.
//
// It carries neither Then/Catch chaining nor microtask-scheduled handlers —
// every primitive in this package settles a Deferred from within a
// dispatcher turn and the blocked goroutine simply wakes up — so Deferred
// keeps only the plain promise shape plus optional [CancelToken] wiring.
type Deferred[T any] struct {
	mu       sync.Mutex
	done     chan struct{}
	value    T
	err      error
	settled  bool
	onCancel func()
}

// NewDeferred creates a pending [Deferred]. If token is non-nil, the
// deferred is rejected with [ErrDeferredAborted] should token cancel before
// the deferred is otherwise settled; resolving or rejecting first disarms
// the cancellation hook.
func NewDeferred[T any](token CancelToken) *Deferred[T] {
	d := &Deferred[T]{done: make(chan struct{})}
	if token != nil {
		release := token.OnCancel(func(reason any) {
			d.settle(*new(T), wrapCancel(ErrDeferredAborted, "Deferred"))
		})
		d.onCancel = release
	}
	return d
}

// Resolve settles the deferred with value, if still pending. Returns
// whether this call was the one that settled it.
func (d *Deferred[T]) Resolve(value T) bool {
	return d.settle(value, nil)
}

// Reject settles the deferred with err, if still pending. Returns whether
// this call was the one that settled it.
func (d *Deferred[T]) Reject(err error) bool {
	return d.settle(*new(T), err)
}

func (d *Deferred[T]) settle(value T, err error) bool {
	d.mu.Lock()
	if d.settled {
		d.mu.Unlock()
		return false
	}
	d.settled = true
	d.value = value
	d.err = err
	onCancel := d.onCancel
	d.onCancel = nil
	d.mu.Unlock()

	close(d.done)
	if onCancel != nil {
		onCancel()
	}
	return true
}

// Done returns a channel closed once the deferred settles, allowing it to
// be combined with select statements (e.g. alongside a context's Done
// channel).
func (d *Deferred[T]) Done() <-chan struct{} { return d.done }

// Wait blocks until the deferred settles and returns its outcome.
func (d *Deferred[T]) Wait() (T, error) {
	<-d.done
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.value, d.err
}

// Peek returns the current outcome without blocking, and whether the
// deferred has settled yet.
func (d *Deferred[T]) Peek() (value T, err error, settled bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.value, d.err, d.settled
}
