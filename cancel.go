package asyncprim

import "sync"

// CancelToken is the cooperative cancellation capability consumed by every
// acquire/wait operation in this package. It is a read-only view: token
// identity and lifecycle belong to whoever holds the matching
// [CancelSource].
type CancelToken interface {
	// Cancelled reports whether the token has transitioned to the
	// cancelled state. Once true, it is true forever.
	Cancelled() bool

	// Reason returns the value passed to [CancelSource.Cancel], or nil if
	// not yet cancelled or no reason was given.
	Reason() any

	// OnCancel registers a one-shot callback to run when the token
	// cancels. If the token is already cancelled, callback runs
	// synchronously before OnCancel returns. The returned release func is
	// idempotent and safe to call even after the callback has already
	// fired: exactly one of {callback, release} has any effect, the other
	// is a no-op. A panicking callback is recovered and reported via
	// [logSwallowedPanic] — it must never propagate into the caller of
	// [CancelSource.Cancel].
	OnCancel(callback func(reason any)) (release func())
}

// CancelSource owns a [CancelToken] and can cancel it. Token identity is
// not owned by this package — callers construct a [CancelSource] per
// logical operation or compose one with [FromContext] or [CancelAny].
type CancelSource struct {
	mu       sync.Mutex
	handlers []*cancelHandler
	reason   any
	aborted  bool
}

type cancelHandler struct {
	fn      func(reason any)
	removed bool
}

// NewCancelSource creates a fresh, live [CancelSource].
func NewCancelSource() *CancelSource {
	return &CancelSource{}
}

// Token returns the [CancelToken] view of this source. Always the same
// value for a given source.
func (s *CancelSource) Token() CancelToken { return (*cancelToken)(s) }

// Cancel transitions the source's token to the cancelled state and fires
// every registered hook exactly once, in registration order. Subsequent
// calls are no-ops — cancellation is edge-triggered. If reason is nil it
// remains nil for [CancelToken.Reason].
func (s *CancelSource) Cancel(reason any) {
	s.mu.Lock()
	if s.aborted {
		s.mu.Unlock()
		return
	}
	s.aborted = true
	s.reason = reason
	handlers := s.handlers
	s.handlers = nil
	s.mu.Unlock()

	for _, h := range handlers {
		s.mu.Lock()
		already := h.removed
		h.removed = true
		s.mu.Unlock()
		if already {
			continue
		}
		runHookSafely("CancelSource.Cancel", h.fn, reason)
	}
}

func runHookSafely(op string, fn func(reason any), reason any) {
	defer func() {
		if r := recover(); r != nil {
			logSwallowedPanic(op, r)
		}
	}()
	fn(reason)
}

// cancelToken is the [CancelToken] view over a [CancelSource]; kept as a
// distinct named type (rather than exposing *CancelSource directly) so the
// read and write capabilities stay separated.
type cancelToken CancelSource

func (t *cancelToken) src() *CancelSource { return (*CancelSource)(t) }

func (t *cancelToken) Cancelled() bool {
	s := t.src()
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.aborted
}

func (t *cancelToken) Reason() any {
	s := t.src()
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reason
}

func (t *cancelToken) OnCancel(callback func(reason any)) (release func()) {
	if callback == nil {
		return func() {}
	}
	s := t.src()

	s.mu.Lock()
	if s.aborted {
		reason := s.reason
		s.mu.Unlock()
		runHookSafely("CancelToken.OnCancel", callback, reason)
		return func() {}
	}

	h := &cancelHandler{fn: callback}
	s.handlers = append(s.handlers, h)
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if h.removed {
			return
		}
		h.removed = true
		for i, existing := range s.handlers {
			if existing == h {
				s.handlers = append(s.handlers[:i], s.handlers[i+1:]...)
				break
			}
		}
	}
}

// neverCancelled is a [CancelToken] that is never cancelled and whose
// OnCancel registration is always a real, permanently-live no-op release.
// Used as the default when acquire/wait operations are called with a nil
// token, since passing one is always optional, avoiding a nil-check at
// every call site.
type neverCancelled struct{}

func (neverCancelled) Cancelled() bool                             { return false }
func (neverCancelled) Reason() any                                 { return nil }
func (neverCancelled) OnCancel(func(reason any)) (release func()) { return func() {} }

// NoCancel is the shared [CancelToken] used when an operation is called
// without one; it is never cancelled.
var NoCancel CancelToken = neverCancelled{}

func tokenOrDefault(t CancelToken) CancelToken {
	if t == nil {
		return NoCancel
	}
	return t
}

// CancelAny returns a [CancelToken] that cancels as soon as any of the
// given tokens cancel, adopting the first cancellation's reason. An empty
// or all-nil input yields a token that is never cancelled.
func CancelAny(tokens ...CancelToken) CancelToken {
	composite := NewCancelSource()

	for _, t := range tokens {
		if t == nil {
			continue
		}
		if t.Cancelled() {
			composite.Cancel(t.Reason())
			return composite.Token()
		}
	}

	for _, t := range tokens {
		if t == nil {
			continue
		}
		t.OnCancel(func(reason any) {
			composite.Cancel(reason)
		})
	}

	return composite.Token()
}
