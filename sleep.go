package asyncprim

import "time"

// Sleep suspends the caller for d, or until token cancels first, whichever
// happens first, returning [ErrSleepCancelled] on the latter. Built against
// a plain time.Timer rather than any timer heap, since this package has no
// I/O-driven scheduler of its own.
func Sleep(d time.Duration, token CancelToken) error {
	token = tokenOrDefault(token)
	if token.Cancelled() {
		return wrapCancel(ErrSleepCancelled, "Sleep")
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	done := make(chan struct{})
	release := token.OnCancel(func(reason any) { close(done) })
	defer release()

	select {
	case <-timer.C:
		return nil
	case <-done:
		return wrapCancel(ErrSleepCancelled, "Sleep")
	}
}

// Defer schedules fn to run on d's next turn. A thin exported wrapper around
// [Dispatcher.Defer] for callers that don't otherwise need to hold a
// reference to the dispatcher.
func Defer(d Dispatcher, fn func()) {
	if d == nil {
		d = DefaultDispatcher()
	}
	d.Defer(fn)
}
