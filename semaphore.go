package asyncprim

import (
	"sync"

	"github.com/kekyo/go-async-primitives/internal/fifo"
)

// Semaphore is a counting async lock: up to capacity outstanding handles
// at any time. Structurally identical to [Mutex] (shares its wait queue
// and batch scheduler) except the boolean locked state becomes an
// available counter, and a single release may grant more than one queued
// waiter in the same drain episode.
type Semaphore struct {
	mu             sync.Mutex
	capacity       int
	available      int
	queue          *fifo.Queue[*acquireWaiter]
	dispatcher     Dispatcher
	maxConsecutive int
	consecutive    int
	metricsEnabled bool
}

// NewSemaphore constructs a [Semaphore] with the given capacity, which must
// be >= 1 ([ErrInvalidCapacity] otherwise). See [WithMaxConsecutive],
// [WithDispatcher], and [WithMetrics] for the applicable options.
func NewSemaphore(capacity int, opts ...Option) (*Semaphore, error) {
	if capacity < 1 {
		return nil, ErrInvalidCapacity
	}
	c, err := resolveCommonOptions(opts)
	if err != nil {
		return nil, err
	}
	return &Semaphore{
		capacity:       capacity,
		available:      capacity,
		queue:          fifo.New[*acquireWaiter](),
		dispatcher:     c.dispatcher,
		maxConsecutive: c.maxConsecutive,
		metricsEnabled: c.metrics,
	}, nil
}

// Acquire obtains one of the semaphore's permits, suspending the caller if
// none are currently available. See [Mutex.Lock] for the immediate-path /
// slow-path split and cancellation-race resolution, which apply identically
// here.
func (s *Semaphore) Acquire(token CancelToken) (Handle, error) {
	token = tokenOrDefault(token)

	s.mu.Lock()
	if token.Cancelled() {
		s.mu.Unlock()
		return Handle{}, wrapCancel(ErrAcquireCancelled, "Semaphore.Acquire")
	}
	if s.available > 0 && s.queue.Len() == 0 {
		s.available--
		s.mu.Unlock()
		return newHandle(s.release), nil
	}

	w := enqueueAcquire(s.queue, token, s.mu.Lock, s.mu.Unlock, func(*acquireWaiter) {
		s.mu.Lock()
		s.drain()
		s.mu.Unlock()
	})
	s.mu.Unlock()

	return w.deferred.Wait()
}

// release is the Handle callback delivered by Acquire; it returns one
// permit and re-enters the drain step, which may grant it straight back out
// to the next queued waiter.
func (s *Semaphore) release() {
	s.mu.Lock()
	s.available++
	s.drain()
	s.mu.Unlock()
}

// drain must be called with s.mu held.
func (s *Semaphore) drain() {
	runDrain(&s.consecutive, s.maxConsecutive, s.dispatcher, s.drainStep, s.resumeDrain)
}

func (s *Semaphore) resumeDrain() {
	s.mu.Lock()
	s.drain()
	s.mu.Unlock()
}

func (s *Semaphore) drainStep() drainStepResult {
	front, ok := s.queue.Front()
	if !ok {
		return drainStop
	}
	if front.token.Cancelled() {
		s.queue.PopFront()
		front.rejectCancelled()
		return drainProgressed
	}
	if s.available <= 0 {
		return drainStop
	}
	s.queue.PopFront()
	s.available--
	front.grant(s.release)
	return drainProgressed
}

// prepare implements [preparableWaiter] for [Condition.TriggerAndWait]; see
// [Mutex.prepare] for the shared reserve/commit/abort rationale.
func (s *Semaphore) prepare(token CancelToken) (execute func() Handle, cleanup func(), ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if token.Cancelled() || s.available <= 0 || s.queue.Len() != 0 {
		return nil, nil, false
	}
	s.available--
	return func() Handle { return newHandle(s.release) },
		func() {
			s.mu.Lock()
			s.available++
			s.drain()
			s.mu.Unlock()
		}, true
}

// fallbackAcquire implements [preparableWaiter]'s non-atomic fallback path.
func (s *Semaphore) fallbackAcquire(token CancelToken) (Handle, error) { return s.Acquire(token) }

// TryAcquire attempts to obtain a permit without suspending. It never
// enqueues: on failure it returns immediately with ok=false, leaving FIFO
// ordering for Acquire callers untouched.
func (s *Semaphore) TryAcquire() (h Handle, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.available <= 0 || s.queue.Len() != 0 {
		return Handle{}, false
	}
	s.available--
	return newHandle(s.release), true
}

// AvailableCount returns the number of permits currently unclaimed.
func (s *Semaphore) AvailableCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.available
}

// PendingCount returns the number of callers currently queued on Acquire.
func (s *Semaphore) PendingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queue.Len()
}

// Capacity returns the semaphore's fixed total permit count.
func (s *Semaphore) Capacity() int { return s.capacity }

// SemaphoreStats is the Stats() snapshot for [Semaphore].
type SemaphoreStats struct {
	Capacity  int
	Available int
	Pending   int
}

// Stats returns a point-in-time snapshot of the semaphore's state. Returns
// the zero value unless the semaphore was constructed with
// [WithMetrics](true).
func (s *Semaphore) Stats() SemaphoreStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.metricsEnabled {
		return SemaphoreStats{}
	}
	return SemaphoreStats{Capacity: s.capacity, Available: s.available, Pending: s.queue.Len()}
}
