package asyncprim

import (
	"fmt"
	"sync"

	"github.com/kekyo/go-async-primitives/internal/fifo"
)

// conditionOptions holds [Condition]/[ManualCondition]-specific
// configuration, applied via [WithInitialRaised].
type conditionOptions struct {
	initialRaised bool
}

// WithInitialRaised sets a [ManualCondition]'s raised flag at construction
// time. Has no effect on [NewCondition] (the auto variant has no raised
// flag).
func WithInitialRaised(raised bool) Option {
	return optionFunc{condition: func(c *conditionOptions) { c.initialRaised = raised }}
}

func resolveConditionOptions(opts []Option) *conditionOptions {
	c := &conditionOptions{}
	for _, o := range opts {
		if o == nil {
			continue
		}
		o.applyCondition(c)
	}
	return c
}

// noopRelease is the Handle release callback for waiters woken by a
// condition: there is no resource to give back, only a wake-up to deliver.
func noopRelease() {}

// Condition is the auto-reset (edge-triggered) condition variable.
// NotifyOne wakes at most one waiter; if no one is waiting, the
// notification is lost — there is no "raised" memory, unlike
// [ManualCondition].
type Condition struct {
	mu    sync.Mutex
	queue *fifo.Queue[*acquireWaiter]
}

// NewCondition constructs an auto-reset [Condition].
func NewCondition(opts ...Option) (*Condition, error) {
	if _, err := resolveCommonOptions(opts); err != nil {
		return nil, err
	}
	return &Condition{queue: fifo.New[*acquireWaiter]()}, nil
}

// Wait suspends the caller until the next NotifyOne call picks it, or until
// token cancels. The returned [Handle] carries no resource (Release is a
// no-op) — it exists only so Condition's surface matches every other
// primitive's uniform "wait(token?) → handle" shape.
func (c *Condition) Wait(token CancelToken) (Handle, error) {
	token = tokenOrDefault(token)

	c.mu.Lock()
	if token.Cancelled() {
		c.mu.Unlock()
		return Handle{}, wrapCancel(ErrWaitCancelled, "Condition.Wait")
	}
	w := enqueueAcquire(c.queue, token, c.mu.Lock, c.mu.Unlock, func(*acquireWaiter) {})
	c.mu.Unlock()

	return w.deferred.Wait()
}

// NotifyOne wakes the head waiter, if any. If no one is waiting the call is
// a no-op — edge-triggered, the wake-up is simply lost.
func (c *Condition) NotifyOne() {
	c.mu.Lock()
	w, ok := c.queue.PopFront()
	c.mu.Unlock()
	if !ok {
		return
	}
	w.grant(noopRelease)
}

// reserveNotify tentatively claims whichever waiter NotifyOne would wake,
// without resolving it yet, so [Condition.TriggerAndWait] can commit or
// abort the notification in lockstep with the target acquire's own
// prepare/commit.
func (c *Condition) reserveNotify() (resolve func(), abort func()) {
	c.mu.Lock()
	w, ok := c.queue.PopFront()
	c.mu.Unlock()
	if !ok {
		return func() {}, func() {}
	}
	return func() { w.grant(noopRelease) },
		func() {
			c.mu.Lock()
			w.entry = c.queue.PushFront(w)
			c.mu.Unlock()
		}
}

// PendingCount returns the number of callers currently queued on Wait.
func (c *Condition) PendingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.queue.Len()
}

// TriggerAndWait atomically notifies c and acquires target — composing "C
// is notified" with "W is acquired" as a single, indivisible step. See
// [runTriggerAndWait] for the two-phase protocol and its non-atomic
// fallback.
func (c *Condition) TriggerAndWait(target preparableWaiter, token CancelToken) (Handle, error) {
	return runTriggerAndWait(c.reserveNotify, c.NotifyOne, target, token)
}

// ManualCondition is the level-held condition variable: it adds a `raised`
// flag to [Condition]'s edge-triggered behaviour. While raised, Wait
// returns a dummy granted handle immediately instead of enqueueing.
type ManualCondition struct {
	mu     sync.Mutex
	raised bool
	queue  *fifo.Queue[*acquireWaiter]
}

// NewManualCondition constructs a [ManualCondition]. See [WithInitialRaised]
// for the applicable option.
func NewManualCondition(opts ...Option) (*ManualCondition, error) {
	if _, err := resolveCommonOptions(opts); err != nil {
		return nil, err
	}
	co := resolveConditionOptions(opts)
	return &ManualCondition{queue: fifo.New[*acquireWaiter](), raised: co.initialRaised}, nil
}

// Wait returns immediately with a dummy granted handle if the condition is
// currently raised; otherwise it behaves exactly like [Condition.Wait].
func (mc *ManualCondition) Wait(token CancelToken) (Handle, error) {
	token = tokenOrDefault(token)

	mc.mu.Lock()
	if token.Cancelled() {
		mc.mu.Unlock()
		return Handle{}, wrapCancel(ErrWaitCancelled, "ManualCondition.Wait")
	}
	if mc.raised {
		mc.mu.Unlock()
		return newHandle(noopRelease), nil
	}
	w := enqueueAcquire(mc.queue, token, mc.mu.Lock, mc.mu.Unlock, func(*acquireWaiter) {})
	mc.mu.Unlock()

	return w.deferred.Wait()
}

// Raise sets the condition's raised flag and resolves every waiter
// currently queued. Waiters that arrive after Raise see the flag already
// set and return immediately without ever enqueueing.
func (mc *ManualCondition) Raise() {
	mc.mu.Lock()
	mc.raised = true
	var woken []*acquireWaiter
	for {
		w, ok := mc.queue.PopFront()
		if !ok {
			break
		}
		woken = append(woken, w)
	}
	mc.mu.Unlock()

	for _, w := range woken {
		w.grant(noopRelease)
	}
}

// Drop clears the raised flag. Queued waiters, if any, are left queued.
func (mc *ManualCondition) Drop() {
	mc.mu.Lock()
	mc.raised = false
	mc.mu.Unlock()
}

// NotifyOne clears the raised flag and resolves at most one waiter.
func (mc *ManualCondition) NotifyOne() {
	mc.mu.Lock()
	mc.raised = false
	w, ok := mc.queue.PopFront()
	mc.mu.Unlock()
	if !ok {
		return
	}
	w.grant(noopRelease)
}

// Raised reports whether the condition is currently raised.
func (mc *ManualCondition) Raised() bool {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	return mc.raised
}

// PendingCount returns the number of callers currently queued on Wait.
func (mc *ManualCondition) PendingCount() int {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	return mc.queue.Len()
}

func (mc *ManualCondition) reserveNotify() (resolve func(), abort func()) {
	mc.mu.Lock()
	prevRaised := mc.raised
	w, ok := mc.queue.PopFront()
	mc.mu.Unlock()
	if !ok {
		return func() { mc.Drop() }, func() {}
	}
	return func() {
			mc.mu.Lock()
			mc.raised = false
			mc.mu.Unlock()
			w.grant(noopRelease)
		}, func() {
			mc.mu.Lock()
			w.entry = mc.queue.PushFront(w)
			mc.raised = prevRaised
			mc.mu.Unlock()
		}
}

// TriggerAndWait atomically notifies mc and acquires target; see
// [Condition.TriggerAndWait].
func (mc *ManualCondition) TriggerAndWait(target preparableWaiter, token CancelToken) (Handle, error) {
	return runTriggerAndWait(mc.reserveNotify, mc.NotifyOne, target, token)
}

// preparableWaiter is implemented by the primitives that can serve as the
// target of a [Condition.TriggerAndWait] / [ManualCondition.TriggerAndWait]:
// [Mutex], [Semaphore], and [RWMutex]'s read/write sides (via
// [RWMutex.AsReadWaiter]/[RWMutex.AsWriteWaiter]). Kept unexported: this
// composes only this package's own acquire-style primitives, so there's no
// case for letting external types implement the two-phase protocol.
type preparableWaiter interface {
	// prepare attempts to synchronously reserve a grant for token without
	// suspending. ok is false if token is already cancelled, or if no
	// grant can be reserved right now without suspending — the latter is
	// read as "cannot prepare", since a reservation that itself needs to
	// suspend can't be undone atomically across phases.
	prepare(token CancelToken) (execute func() Handle, cleanup func(), ok bool)
	// fallbackAcquire performs the primitive's normal, possibly-suspending
	// acquire; used only by the non-atomic fallback path.
	fallbackAcquire(token CancelToken) (Handle, error)
}

// runTriggerAndWait implements the shared two-phase prepare/commit/abort
// protocol behind trigger-and-wait:
//
//  1. Prepare on target: reserve a grant without suspending, or report it
//     cannot.
//  2. If target could not prepare, fall back to the non-atomic sequential
//     path, logging that atomicity is not guaranteed on this branch.
//  3. Otherwise, reserve which waiter of the condition the notify would
//     wake (without resolving it yet). If token cancelled in the interim,
//     run the abort path on both sides and reject. Otherwise commit both:
//     resolve the condition's waiter, then call Execute() for the handle.
func runTriggerAndWait(reserve func() (resolve func(), abort func()), simpleNotify func(), target preparableWaiter, token CancelToken) (Handle, error) {
	token = tokenOrDefault(token)

	execute, cleanup, ok := target.prepare(token)
	if !ok {
		logNonAtomicFallback(fmt.Sprintf("%T", target))
		simpleNotify()
		return target.fallbackAcquire(token)
	}

	resolve, abort := reserve()
	if token.Cancelled() {
		cleanup()
		abort()
		return Handle{}, wrapCancel(ErrWaitCancelled, "TriggerAndWait")
	}
	resolve()
	return execute(), nil
}
