package asyncprim

import (
	"sync"

	"github.com/kekyo/go-async-primitives/internal/fifo"
)

// Mutex is an exclusive async lock: exactly one outstanding handle at any
// time. The handoff follows the same settle-once discipline as [Deferred],
// and the slow path shares the fair-queue/batch-scheduler discipline
// common to every acquire-style primitive in this package.
type Mutex struct {
	mu             sync.Mutex
	locked         bool
	queue          *fifo.Queue[*acquireWaiter]
	dispatcher     Dispatcher
	maxConsecutive int
	consecutive    int
	metricsEnabled bool
}

// NewMutex constructs a [Mutex]. See [WithMaxConsecutive], [WithDispatcher],
// and [WithMetrics] for the applicable options.
func NewMutex(opts ...Option) (*Mutex, error) {
	c, err := resolveCommonOptions(opts)
	if err != nil {
		return nil, err
	}
	return &Mutex{
		queue:          fifo.New[*acquireWaiter](),
		dispatcher:     c.dispatcher,
		maxConsecutive: c.maxConsecutive,
		metricsEnabled: c.metrics,
	}, nil
}

// Lock acquires the mutex, suspending the caller if it is already held.
//
// Immediate path: if the mutex is free and token isn't already cancelled,
// Lock returns a granted [Handle] synchronously. Slow path: the caller is
// enqueued FIFO behind any existing waiters, and Lock blocks until either
// it is granted (Release of the current holder drains the queue) or token
// cancels, in which case Lock returns [ErrAcquireCancelled].
//
// Cancellation races: if token cancels at the same logical instant the
// waiter would be granted, the grant wins — Lock returns a valid handle,
// and the caller is then responsible for releasing it.
func (m *Mutex) Lock(token CancelToken) (Handle, error) {
	token = tokenOrDefault(token)

	m.mu.Lock()
	// Checked before enqueueing (and before the immediate-path check) so
	// that an already-cancelled token never reaches enqueueAcquire's
	// OnCancel registration while m.mu is held — OnCancel would otherwise
	// invoke its callback synchronously and deadlock re-entering m.mu.
	if token.Cancelled() {
		m.mu.Unlock()
		return Handle{}, wrapCancel(ErrAcquireCancelled, "Mutex.Lock")
	}
	if !m.locked && m.queue.Len() == 0 {
		m.locked = true
		m.mu.Unlock()
		return newHandle(m.release), nil
	}

	w := enqueueAcquire(m.queue, token, m.mu.Lock, m.mu.Unlock, func(*acquireWaiter) {
		m.mu.Lock()
		m.drain()
		m.mu.Unlock()
	})
	m.mu.Unlock()

	return w.deferred.Wait()
}

// release is the Handle callback delivered by Lock; it always transitions
// locked back to false and re-enters the drain step.
func (m *Mutex) release() {
	m.mu.Lock()
	m.locked = false
	m.drain()
	m.mu.Unlock()
}

// drain must be called with m.mu held.
func (m *Mutex) drain() {
	runDrain(&m.consecutive, m.maxConsecutive, m.dispatcher, m.drainStep, m.resumeDrain)
}

func (m *Mutex) resumeDrain() {
	m.mu.Lock()
	m.drain()
	m.mu.Unlock()
}

func (m *Mutex) drainStep() drainStepResult {
	front, ok := m.queue.Front()
	if !ok {
		return drainStop
	}
	if front.token.Cancelled() {
		m.queue.PopFront()
		front.rejectCancelled()
		return drainProgressed
	}
	if m.locked {
		return drainStop
	}
	m.queue.PopFront()
	m.locked = true
	front.grant(m.release)
	return drainProgressed
}

// prepare implements [preparableWaiter] for [Condition.TriggerAndWait]: it
// reserves the lock synchronously, without suspending, committing the
// reservation immediately so the caller can defer the externally-visible
// grant to commit time. cleanup undoes the reservation on the abort path.
func (m *Mutex) prepare(token CancelToken) (execute func() Handle, cleanup func(), ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if token.Cancelled() || m.locked || m.queue.Len() != 0 {
		return nil, nil, false
	}
	m.locked = true
	return func() Handle { return newHandle(m.release) },
		func() {
			m.mu.Lock()
			m.locked = false
			m.drain()
			m.mu.Unlock()
		}, true
}

// fallbackAcquire implements [preparableWaiter]'s non-atomic fallback path.
func (m *Mutex) fallbackAcquire(token CancelToken) (Handle, error) { return m.Lock(token) }

// TryLock attempts to acquire the mutex without suspending. It never
// enqueues: on failure it returns immediately with ok=false, leaving FIFO
// ordering for Lock callers untouched.
func (m *Mutex) TryLock() (h Handle, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.locked || m.queue.Len() != 0 {
		return Handle{}, false
	}
	m.locked = true
	return newHandle(m.release), true
}

// IsLocked reports whether the mutex is currently held.
func (m *Mutex) IsLocked() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.locked
}

// PendingCount returns the number of callers currently queued on Lock.
func (m *Mutex) PendingCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.queue.Len()
}

// MutexStats is the Stats() snapshot for [Mutex].
type MutexStats struct {
	Locked  bool
	Pending int
}

// Stats returns a point-in-time snapshot of the mutex's state. Returns the
// zero value unless the mutex was constructed with [WithMetrics](true).
func (m *Mutex) Stats() MutexStats {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.metricsEnabled {
		return MutexStats{}
	}
	return MutexStats{Locked: m.locked, Pending: m.queue.Len()}
}
