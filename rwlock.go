package asyncprim

import (
	"sync"

	"github.com/kekyo/go-async-primitives/internal/fifo"
)

// Policy selects which queue a [RWMutex] prefers when both a reader and a
// writer are eligible to be granted.
type Policy int

const (
	// WritePreferring grants a waiting writer before any queued reader,
	// starving new readers while a writer is queued. The default.
	WritePreferring Policy = iota
	// ReadPreferring grants every queued non-cancelled reader before the
	// next writer, starving a queued writer while readers keep arriving.
	ReadPreferring
)

// rwMutexOptions holds [RWMutex]-specific configuration, applied via
// [WithPolicy].
type rwMutexOptions struct {
	policy Policy
}

// WithPolicy selects a [RWMutex]'s drain preference between queued readers
// and a queued writer. Has no effect on any other primitive's constructor.
func WithPolicy(p Policy) Option {
	return optionFunc{rwMutex: func(o *rwMutexOptions) { o.policy = p }}
}

func resolveRWMutexOptions(opts []Option) *rwMutexOptions {
	o := &rwMutexOptions{policy: WritePreferring}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt.applyRWMutex(o)
	}
	return o
}

// RWMutex is a reader/writer lock with a selectable fairness policy:
// shared reads, exclusive write. Readers and writers each have their own
// FIFO wait queue; [Policy] decides which queue the drain step prefers
// when both are eligible.
//
// There is no reentrancy and no read→write upgrade path: a goroutine
// already holding a read handle that calls WriteLock will deadlock against
// itself. This is by design, not an oversight — implementing an upgrade
// path safely would require tracking caller identity, which this package
// deliberately doesn't do.
type RWMutex struct {
	mu             sync.Mutex
	readers        int
	writerActive   bool
	readQueue      *fifo.Queue[*acquireWaiter]
	writeQueue     *fifo.Queue[*acquireWaiter]
	policy         Policy
	dispatcher     Dispatcher
	maxConsecutive int
	consecutive    int
	metricsEnabled bool
}

// NewRWMutex constructs an [RWMutex]. See [WithPolicy], [WithMaxConsecutive],
// [WithDispatcher], and [WithMetrics] for the applicable options.
func NewRWMutex(opts ...Option) (*RWMutex, error) {
	c, err := resolveCommonOptions(opts)
	if err != nil {
		return nil, err
	}
	rw := resolveRWMutexOptions(opts)
	return &RWMutex{
		readQueue:      fifo.New[*acquireWaiter](),
		writeQueue:     fifo.New[*acquireWaiter](),
		policy:         rw.policy,
		dispatcher:     c.dispatcher,
		maxConsecutive: c.maxConsecutive,
		metricsEnabled: c.metrics,
	}, nil
}

// ReadLock acquires a shared read handle. Under [WritePreferring] (the
// default) a read request is suspended whenever a writer is active or
// queued; under [ReadPreferring] it is only suspended while a writer is
// active. See [Mutex.Lock] for the cancellation-race resolution, which
// applies identically here.
func (rw *RWMutex) ReadLock(token CancelToken) (Handle, error) {
	token = tokenOrDefault(token)

	rw.mu.Lock()
	if token.Cancelled() {
		rw.mu.Unlock()
		return Handle{}, wrapCancel(ErrAcquireCancelled, "RWMutex.ReadLock")
	}
	if rw.readGrantable() {
		rw.readers++
		rw.mu.Unlock()
		return newHandle(rw.releaseRead), nil
	}

	w := enqueueAcquire(rw.readQueue, token, rw.mu.Lock, rw.mu.Unlock, func(*acquireWaiter) {
		rw.mu.Lock()
		rw.drain()
		rw.mu.Unlock()
	})
	rw.mu.Unlock()

	return w.deferred.Wait()
}

func (rw *RWMutex) readGrantable() bool {
	if rw.writerActive {
		return false
	}
	if rw.policy == WritePreferring && rw.writeQueue.Len() != 0 {
		return false
	}
	return true
}

// WriteLock acquires an exclusive write handle, suspending the caller
// unless the lock is currently Idle (no readers, no active writer). See
// [Mutex.Lock] for the cancellation-race resolution, which applies
// identically here.
func (rw *RWMutex) WriteLock(token CancelToken) (Handle, error) {
	token = tokenOrDefault(token)

	rw.mu.Lock()
	if token.Cancelled() {
		rw.mu.Unlock()
		return Handle{}, wrapCancel(ErrAcquireCancelled, "RWMutex.WriteLock")
	}
	if !rw.writerActive && rw.readers == 0 && rw.writeQueue.Len() == 0 {
		rw.writerActive = true
		rw.mu.Unlock()
		return newHandle(rw.releaseWrite), nil
	}

	w := enqueueAcquire(rw.writeQueue, token, rw.mu.Lock, rw.mu.Unlock, func(*acquireWaiter) {
		rw.mu.Lock()
		rw.drain()
		rw.mu.Unlock()
	})
	rw.mu.Unlock()

	return w.deferred.Wait()
}

// releaseRead is the read Handle callback. A drain is only scheduled once
// the last reader departs — while readers remain, no new grant can
// possibly become eligible.
func (rw *RWMutex) releaseRead() {
	rw.mu.Lock()
	rw.readers--
	if rw.readers == 0 {
		rw.drain()
	}
	rw.mu.Unlock()
}

func (rw *RWMutex) releaseWrite() {
	rw.mu.Lock()
	rw.writerActive = false
	rw.drain()
	rw.mu.Unlock()
}

// drain must be called with rw.mu held.
func (rw *RWMutex) drain() {
	runDrain(&rw.consecutive, rw.maxConsecutive, rw.dispatcher, rw.drainStep, rw.resumeDrain)
}

func (rw *RWMutex) resumeDrain() {
	rw.mu.Lock()
	rw.drain()
	rw.mu.Unlock()
}

// drainStep settles at most one waiter, preferring whichever queue
// rw.policy favors. Granting every non-cancelled reader "in one batch"
// falls out of repeatedly calling drainStep via runDrain: each call grants
// exactly one reader and, so long as no writer becomes eligible in
// between, the next call grants the next one.
func (rw *RWMutex) drainStep() drainStepResult {
	if rw.policy == ReadPreferring {
		if r := rw.tryDrainRead(); r != drainStop {
			return r
		}
		return rw.tryDrainWrite()
	}
	if r := rw.tryDrainWrite(); r != drainStop {
		return r
	}
	return rw.tryDrainRead()
}

func (rw *RWMutex) tryDrainWrite() drainStepResult {
	front, ok := rw.writeQueue.Front()
	if !ok {
		return drainStop
	}
	if front.token.Cancelled() {
		rw.writeQueue.PopFront()
		front.rejectCancelled()
		return drainProgressed
	}
	if rw.writerActive || rw.readers != 0 {
		return drainStop
	}
	rw.writeQueue.PopFront()
	rw.writerActive = true
	front.grant(rw.releaseWrite)
	return drainProgressed
}

func (rw *RWMutex) tryDrainRead() drainStepResult {
	front, ok := rw.readQueue.Front()
	if !ok {
		return drainStop
	}
	if front.token.Cancelled() {
		rw.readQueue.PopFront()
		front.rejectCancelled()
		return drainProgressed
	}
	if rw.writerActive {
		return drainStop
	}
	if rw.policy == WritePreferring && rw.writeQueue.Len() != 0 {
		return drainStop
	}
	rw.readQueue.PopFront()
	rw.readers++
	front.grant(rw.releaseRead)
	return drainProgressed
}

// AsReadWaiter adapts rw's read side to [preparableWaiter], for use as the
// target of [Condition.TriggerAndWait].
func (rw *RWMutex) AsReadWaiter() preparableWaiter { return rwReadWaiter{rw: rw} }

// AsWriteWaiter adapts rw's write side to [preparableWaiter], for use as
// the target of [Condition.TriggerAndWait].
func (rw *RWMutex) AsWriteWaiter() preparableWaiter { return rwWriteWaiter{rw: rw} }

type rwReadWaiter struct{ rw *RWMutex }

func (w rwReadWaiter) prepare(token CancelToken) (execute func() Handle, cleanup func(), ok bool) {
	rw := w.rw
	rw.mu.Lock()
	defer rw.mu.Unlock()
	if token.Cancelled() || !rw.readGrantable() {
		return nil, nil, false
	}
	rw.readers++
	return func() Handle { return newHandle(rw.releaseRead) },
		func() {
			rw.mu.Lock()
			rw.readers--
			if rw.readers == 0 {
				rw.drain()
			}
			rw.mu.Unlock()
		}, true
}

func (w rwReadWaiter) fallbackAcquire(token CancelToken) (Handle, error) { return w.rw.ReadLock(token) }

type rwWriteWaiter struct{ rw *RWMutex }

func (w rwWriteWaiter) prepare(token CancelToken) (execute func() Handle, cleanup func(), ok bool) {
	rw := w.rw
	rw.mu.Lock()
	defer rw.mu.Unlock()
	if token.Cancelled() || rw.writerActive || rw.readers != 0 || rw.writeQueue.Len() != 0 {
		return nil, nil, false
	}
	rw.writerActive = true
	return func() Handle { return newHandle(rw.releaseWrite) },
		func() {
			rw.mu.Lock()
			rw.writerActive = false
			rw.drain()
			rw.mu.Unlock()
		}, true
}

func (w rwWriteWaiter) fallbackAcquire(token CancelToken) (Handle, error) { return w.rw.WriteLock(token) }

// CurrentReaders returns the number of currently held read handles.
func (rw *RWMutex) CurrentReaders() int {
	rw.mu.Lock()
	defer rw.mu.Unlock()
	return rw.readers
}

// HasWriter reports whether a write handle is currently held.
func (rw *RWMutex) HasWriter() bool {
	rw.mu.Lock()
	defer rw.mu.Unlock()
	return rw.writerActive
}

// PendingReaders returns the number of callers currently queued on
// ReadLock.
func (rw *RWMutex) PendingReaders() int {
	rw.mu.Lock()
	defer rw.mu.Unlock()
	return rw.readQueue.Len()
}

// PendingWriters returns the number of callers currently queued on
// WriteLock.
func (rw *RWMutex) PendingWriters() int {
	rw.mu.Lock()
	defer rw.mu.Unlock()
	return rw.writeQueue.Len()
}

// RWMutexStats is the Stats() snapshot for [RWMutex].
type RWMutexStats struct {
	Readers        int
	HasWriter      bool
	PendingReaders int
	PendingWriters int
}

// Stats returns a point-in-time snapshot of the lock's state. Returns the
// zero value unless the lock was constructed with [WithMetrics](true).
func (rw *RWMutex) Stats() RWMutexStats {
	rw.mu.Lock()
	defer rw.mu.Unlock()
	if !rw.metricsEnabled {
		return RWMutexStats{}
	}
	return RWMutexStats{
		Readers:        rw.readers,
		HasWriter:      rw.writerActive,
		PendingReaders: rw.readQueue.Len(),
		PendingWriters: rw.writeQueue.Len(),
	}
}
