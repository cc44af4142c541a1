package asyncprim

import "sync"

// generatorOptions holds [Generator]-specific configuration, applied via
// [WithMaxItems] and [WithGeneratorToken].
type generatorOptions struct {
	maxItems int
	token    CancelToken
}

// WithMaxItems bounds a [Generator]'s internal buffer. Once maxItems items
// are queued and unconsumed, producer operations (Yield/Complete/Fail)
// suspend until the consumer makes room. A value <= 0 means unbounded (the
// default).
func WithMaxItems(n int) Option {
	return optionFunc{generator: func(c *generatorOptions) { c.maxItems = n }}
}

// WithGeneratorToken sets the [CancelToken] shared by a [Generator]'s
// producer and consumer sides. Cancelling it aborts any blocked producer
// call and the consumer's iteration with [ErrGeneratorAborted].
func WithGeneratorToken(token CancelToken) Option {
	return optionFunc{generator: func(c *generatorOptions) { c.token = token }}
}

func resolveGeneratorOptions(opts []Option) *generatorOptions {
	c := &generatorOptions{}
	for _, o := range opts {
		if o == nil {
			continue
		}
		o.applyGenerator(c)
	}
	return c
}

// itemKind tags a queued [Generator] item.
type itemKind int

const (
	itemValue itemKind = iota
	itemCompleted
	itemError
)

type item[T any] struct {
	kind itemKind
	val  T
	err  error
}

// Generator is the producer/consumer deferred sequence. The producer calls
// Yield/Complete/Fail; the consumer drains it with Next (an async-iterator
// shape, returning one item per call rather than using range-over-func, so
// it composes with a plain loop regardless of target Go version).
//
// Internally it's coordinated with two [ManualCondition]s: `arrived`,
// raised on the empty→non-empty transition, wakes a blocked consumer; in
// bounded mode, `canReserve`, raised whenever the buffer has spare room,
// unblocks a suspended producer.
type Generator[T any] struct {
	mu         sync.Mutex
	buf        []item[T]
	maxItems   int
	token      CancelToken
	closed     bool
	terminated bool
	termErr    error
	arrived    *ManualCondition
	canReserve *ManualCondition
}

// NewGenerator constructs a [Generator]. See [WithMaxItems] and
// [WithGeneratorToken] for the applicable options.
func NewGenerator[T any](opts ...Option) (*Generator[T], error) {
	if _, err := resolveCommonOptions(opts); err != nil {
		return nil, err
	}
	g := resolveGeneratorOptions(opts)

	arrived, err := NewManualCondition()
	if err != nil {
		return nil, err
	}
	canReserve, err := NewManualCondition(WithInitialRaised(true))
	if err != nil {
		return nil, err
	}

	gen := &Generator[T]{
		maxItems:   g.maxItems,
		token:      tokenOrDefault(g.token),
		arrived:    arrived,
		canReserve: canReserve,
	}
	return gen, nil
}

// bounded reports whether this generator enforces a maxItems buffer cap.
func (g *Generator[T]) bounded() bool { return g.maxItems > 0 }

// reserveSpace blocks (if bounded and full) until there's room to enqueue
// one more item, or the shared token cancels.
func (g *Generator[T]) reserveSpace() error {
	if g.token.Cancelled() {
		return wrapCancel(ErrGeneratorAborted, "Generator")
	}
	for {
		g.mu.Lock()
		if !g.bounded() || len(g.buf) < g.maxItems {
			g.mu.Unlock()
			return nil
		}
		g.mu.Unlock()

		h, err := g.canReserve.Wait(g.token)
		if err != nil {
			return wrapCancel(ErrGeneratorAborted, "Generator")
		}
		h.Release()

		g.mu.Lock()
		full := g.bounded() && len(g.buf) >= g.maxItems
		g.mu.Unlock()
		if !full {
			return nil
		}
		// canReserve was raised by a consumer pop but another producer
		// beat us to the freed slot; loop and wait again.
	}
}

// enqueue appends it to the buffer and updates the arrived/canReserve
// conditions. Accepts items after close — the caller doesn't check
// g.closed first, so a second Complete/Fail (or a Yield racing one) is
// buffered but never observed, since Next stops popping once it has
// delivered a terminating item.
func (g *Generator[T]) enqueue(it item[T]) {
	g.mu.Lock()
	defer g.mu.Unlock()
	wasEmpty := len(g.buf) == 0
	g.buf = append(g.buf, it)
	full := g.bounded() && len(g.buf) >= g.maxItems
	if it.kind != itemValue {
		g.closed = true
	}

	// Raise/Drop while g.mu is still held, serializing them against Next's
	// own pop+Raise/Drop below through the same lock — otherwise a
	// pop-to-empty racing an enqueue could have the Drop of the former
	// clobber the Raise of the latter, stranding a consumer mid-Wait on an
	// item that's actually already buffered.
	if wasEmpty {
		g.arrived.Raise()
	}
	if full {
		g.canReserve.Drop()
	}
}

// Yield enqueues v for the consumer, suspending if the generator is bounded
// and currently full. A call after Complete or Fail already closed the
// generator is silently accepted: v is buffered but Next will never
// observe it, since a terminating item already precedes it.
func (g *Generator[T]) Yield(v T, token CancelToken) error {
	token = tokenOrDefault(token)
	if token.Cancelled() {
		return wrapCancel(ErrAcquireCancelled, "Generator.Yield")
	}
	if err := g.reserveSpace(); err != nil {
		return err
	}
	g.enqueue(item[T]{kind: itemValue, val: v})
	return nil
}

// Complete enqueues a terminating Completed marker. The consumer's
// iteration ends cleanly once it reaches this item. A redundant call after
// the generator is already closed is silently accepted; the extra marker
// is buffered but never observed.
func (g *Generator[T]) Complete(token CancelToken) error {
	token = tokenOrDefault(token)
	if token.Cancelled() {
		return wrapCancel(ErrAcquireCancelled, "Generator.Complete")
	}
	if err := g.reserveSpace(); err != nil {
		return err
	}
	g.enqueue(item[T]{kind: itemCompleted})
	return nil
}

// Fail enqueues a terminating error marker; the consumer's iteration ends
// by propagating err. A redundant call after the generator is already
// closed is silently accepted; the extra marker is buffered but never
// observed.
func (g *Generator[T]) Fail(err error, token CancelToken) error {
	token = tokenOrDefault(token)
	if token.Cancelled() {
		return wrapCancel(ErrAcquireCancelled, "Generator.Fail")
	}
	if cancelErr := g.reserveSpace(); cancelErr != nil {
		return cancelErr
	}
	g.enqueue(item[T]{kind: itemError, err: err})
	return nil
}

// Next pops the next item for the consumer, suspending until one arrives.
// It returns (value, true, nil) for a normal item expecting further calls
// (ok indicates "more to come"), (zero, false, nil) once Complete is
// reached, or a non-nil error once Fail is reached or the shared token
// cancels. Once Next has returned a terminating result, all subsequent
// calls return the same terminating result — anything enqueued after a
// terminating item stays buffered and is never returned.
func (g *Generator[T]) Next() (value T, ok bool, err error) {
	for {
		g.mu.Lock()
		if g.terminated {
			termErr := g.termErr
			g.mu.Unlock()
			var zero T
			return zero, false, termErr
		}
		if len(g.buf) > 0 {
			it := g.buf[0]
			g.buf = g.buf[1:]

			// See enqueue's matching comment: Raise/Drop happen here,
			// under g.mu, so a concurrent enqueue can never race this pop.
			if g.bounded() && len(g.buf) < g.maxItems {
				g.canReserve.Raise()
			}
			if len(g.buf) == 0 {
				g.arrived.Drop()
			}

			if it.kind != itemValue {
				g.terminated = true
				g.termErr = it.err
			}
			g.mu.Unlock()

			switch it.kind {
			case itemValue:
				return it.val, true, nil
			case itemCompleted:
				var zero T
				return zero, false, nil
			case itemError:
				var zero T
				return zero, false, it.err
			}
		}
		g.mu.Unlock()

		h, waitErr := g.arrived.Wait(g.token)
		if waitErr != nil {
			var zero T
			return zero, false, wrapCancel(ErrGeneratorAborted, "Generator.Next")
		}
		h.Release()
	}
}

// PendingCount returns the number of items currently buffered and
// unconsumed.
func (g *Generator[T]) PendingCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.buf)
}

// Closed reports whether the producer has called Complete or Fail (even if
// the consumer hasn't drained up to that item yet).
func (g *Generator[T]) Closed() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.closed
}
