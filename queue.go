package asyncprim

import (
	"github.com/kekyo/go-async-primitives/internal/fifo"
)

// drainStepResult is returned by a primitive's per-entry drain step: it
// inspects the queue head, and if cancelled pops and rejects it (still
// counted against the batch), else if resources permit, pops and grants it,
// also counted.
type drainStepResult int

const (
	// drainStop means the queue is empty, or its head is neither
	// cancelled nor grantable: the drain episode ends here.
	drainStop drainStepResult = iota
	// drainProgressed means exactly one entry was popped — either
	// granted, or skipped because it was already cancelled — and counts
	// against the batch budget.
	drainProgressed
)

// runDrain is the shared batch scheduler: it repeatedly calls step (which
// must attempt to settle at most one queue entry, reporting what happened)
// until step reports drainStop, or until consecutive reaches max, at which
// point the remainder of the drain is deferred to the next dispatcher turn
// via resume and runDrain returns immediately. This bounds how many grants
// occur synchronously in one drain episode.
//
// Callers must hold their own primitive lock for the duration of the call;
// resume is expected to re-acquire that lock before calling back into
// runDrain, the same way every primitive's own resumeDrain method does.
func runDrain(consecutive *int, max int, dispatcher Dispatcher, step func() drainStepResult, resume func()) {
	for {
		if step() == drainStop {
			*consecutive = 0
			return
		}
		*consecutive++
		if *consecutive >= max {
			*consecutive = 0
			dispatcher.Defer(resume)
			return
		}
	}
}

// acquireWaiter is the common wait-queue entry shared by Mutex, Semaphore,
// RWMutex's read/write queues, and the Condition/ManualCondition wait
// queues: a pending [Deferred] plus the bookkeeping needed to remove itself
// from its queue on cancellation. Condition waiters are granted with a
// no-op release, since there is no resource behind them.
type acquireWaiter struct {
	deferred      *Deferred[Handle]
	token         CancelToken
	cancelRelease func()
	entry         *fifo.Entry[*acquireWaiter]
	// settled marks that this waiter has already been popped and resolved
	// by one path (drain's grant/reject-cancelled, or the token's own
	// OnCancel firing); whichever of those two paths gets the primitive's
	// lock first wins, the other observes settled==true and no-ops. This is
	// the concrete mechanism guaranteeing that a waiter is resolved exactly
	// once — either a handle is produced, or the cancellation error is
	// raised, never both.
	settled bool
}

// enqueueAcquire appends a new waiter to q for an acquire-style operation:
// every such operation shares the same slow path, enqueue a wait entry, and
// if the token cancels before grant, remove the entry and reject.
// onCancelled is invoked (from within the token's own cancellation
// dispatch, after the primitive's lock has been released again, so it may
// take that lock itself) only if the waiter was still queued when the token
// fired; it's used by the caller to kick off a drain after the cancelled
// entry has been removed.
func enqueueAcquire(q *fifo.Queue[*acquireWaiter], token CancelToken, lock func(), unlock func(), onCancelled func(w *acquireWaiter)) *acquireWaiter {
	w := &acquireWaiter{
		deferred: NewDeferred[Handle](nil),
		token:    token,
	}
	w.entry = q.PushBack(w)

	w.cancelRelease = token.OnCancel(func(reason any) {
		lock()
		already := w.settled
		if !already {
			w.settled = true
			w.entry.Remove()
			w.entry = nil
		}
		unlock()
		if already {
			return
		}
		w.deferred.Reject(wrapCancel(ErrAcquireCancelled, "acquire"))
		onCancelled(w)
	})

	return w
}

// grant settles w with a handle built from release, removing its pending
// cancellation hook (it no longer needs to observe the token once
// granted). Callers must have already popped w from its queue and must
// hold the primitive's lock.
func (w *acquireWaiter) grant(release func()) {
	w.settled = true
	w.entry = nil
	if w.cancelRelease != nil {
		w.cancelRelease()
	}
	w.deferred.Resolve(newHandle(release))
}

// rejectCancelled settles w as cancelled; used by the drain loop when it
// discovers a head entry whose token already fired before the token's own
// OnCancel callback got a chance to pop it itself (both paths run under
// the primitive's lock, so exactly one of them observes settled==false and
// acts). Callers must have already popped w from its queue and must hold
// the primitive's lock.
func (w *acquireWaiter) rejectCancelled() {
	w.settled = true
	w.entry = nil
	if w.cancelRelease != nil {
		w.cancelRelease()
	}
	w.deferred.Reject(wrapCancel(ErrAcquireCancelled, "acquire"))
}
