// Package asyncprim provides a coherent family of cooperatively-scheduled
// asynchronous synchronization primitives: [Mutex], [Semaphore], [RWMutex],
// [Condition] (auto and manual reset), a two-phase [Condition.TriggerAndWait]
// handoff, and a producer-driven [Generator].
//
// # Architecture
//
// Every primitive acquires a resource through the same shared discipline:
// an immediate grant when the resource is free, otherwise an entry appended
// to an ordered [internal/fifo] wait queue owned by the primitive. Queued
// entries are granted by a drain step, which is subject to a per-primitive
// batch counter (see [WithMaxConsecutive]) bounding how many synchronous
// grants occur before the next drain is deferred to the next turn of the
// host [Dispatcher]. Granting a request hands back a [Handle] whose Release
// returns the resource and re-enters the drain step.
//
// Requests accept an optional [CancelToken] (see [NewCancelSource] and
// [FromContext]): a request already cancelled at call time never enqueues,
// a request cancelled while queued is removed and rejected, and a request
// whose cancellation races with its grant resolves in favor of the grant
// (the caller is handed the handle, and is responsible for releasing it —
// see the "Cancellation races" section of [Mutex.Lock]).
//
// # Scheduling model
//
// The package assumes a single logical task dispatcher: all primitive state
// is mutated only while running a continuation of that dispatcher (the
// caller's goroutine for immediate grants, or a [Dispatcher]-scheduled
// continuation for deferred grants). [Dispatcher] is intentionally minimal
// — it models "run this on the next turn", nothing more; it carries no
// timers, no I/O polling, and no runtime bridging. [DefaultDispatcher]
// implements it with a single background goroutine draining a task channel,
// so a program using only this package's default dispatcher gets FIFO
// single-threaded semantics without having to build an event loop of its
// own.
//
// # Deferred and Handle
//
// [Deferred] is a settle-once future: [NewDeferred] returns a pending cell
// settled through its Resolve/Reject methods, mirroring a Promise/A+ shape but trimmed to
// the single producer/single consumer case this package needs (no chaining,
// no microtask scheduling — a cancelled or settled Deferred resolves
// synchronously for whichever goroutine observes it first).
//
// [Handle] is the idempotent release capability returned by every acquire
// operation; its Release is safe to call multiple times and from any
// goroutine holding the handle, and will run its owner's release callback
// at most once.
//
// # Logging
//
// Two failure modes must never propagate to the caller: a panicking
// cancellation-hook callback, and the non-atomic fallback branch of
// [Condition.TriggerAndWait] (where atomicity can't be guaranteed and is
// instead logged). Both are reported through a package-level, swappable
// [logiface.Logger], defaulting to a no-op writer until one is installed —
// see [SetLogger].
package asyncprim
