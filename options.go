package asyncprim

// defaultMaxConsecutive is the default batch-scheduler bound: at most this
// many synchronous grants occur in one drain episode before the next drain
// is deferred to the next dispatcher turn.
const defaultMaxConsecutive = 20

// commonOptions holds the configuration shared by every primitive
// constructor: a small private struct mutated by functional options,
// resolved once at construction time.
type commonOptions struct {
	maxConsecutive int
	dispatcher     Dispatcher
	metrics        bool
}

// Option configures a primitive constructor ([NewMutex], [NewSemaphore],
// [NewRWMutex], [NewCondition], [NewManualCondition], [NewGenerator]).
//
// Unknown/inapplicable options are silently ignored by constructors that
// don't use them (e.g. [WithPolicy] has no effect on [NewMutex]).
type Option interface {
	applyCommon(*commonOptions)
	applyRWMutex(*rwMutexOptions)
	applyGenerator(*generatorOptions)
	applyCondition(*conditionOptions)
}

// optionFunc adapts four closures into an [Option]. Most options only need
// one of the four; the others are no-ops.
type optionFunc struct {
	common    func(*commonOptions)
	rwMutex   func(*rwMutexOptions)
	generator func(*generatorOptions)
	condition func(*conditionOptions)
}

func (o optionFunc) applyCommon(c *commonOptions) {
	if o.common != nil {
		o.common(c)
	}
}

func (o optionFunc) applyRWMutex(c *rwMutexOptions) {
	if o.rwMutex != nil {
		o.rwMutex(c)
	}
}

func (o optionFunc) applyGenerator(c *generatorOptions) {
	if o.generator != nil {
		o.generator(c)
	}
}

func (o optionFunc) applyCondition(c *conditionOptions) {
	if o.condition != nil {
		o.condition(c)
	}
}

// WithMaxConsecutive bounds the number of synchronous grants a primitive's
// drain step performs before deferring the rest to the next [Dispatcher]
// turn. Values < 1 are rejected by the constructor with
// [ErrInvalidMaxConsecutive]. Defaults to 20.
func WithMaxConsecutive(n int) Option {
	return optionFunc{common: func(c *commonOptions) { c.maxConsecutive = n }}
}

// WithDispatcher overrides the [Dispatcher] a primitive uses to schedule
// deferred drains (the remainder of a drain episode past the batch bound).
// Cancellation callbacks do not go through it; they run on the goroutine
// that cancels the token. Defaults to [DefaultDispatcher].
func WithDispatcher(d Dispatcher) Option {
	return optionFunc{common: func(c *commonOptions) { c.dispatcher = d }}
}

// WithMetrics enables the primitive's Stats() snapshot (see e.g.
// [Mutex.Stats]) as an opt-in, rather than always paying for the
// bookkeeping.
func WithMetrics(enabled bool) Option {
	return optionFunc{common: func(c *commonOptions) { c.metrics = enabled }}
}

func resolveCommonOptions(opts []Option) (*commonOptions, error) {
	c := &commonOptions{
		maxConsecutive: defaultMaxConsecutive,
		dispatcher:     DefaultDispatcher(),
	}
	for _, o := range opts {
		if o == nil {
			continue
		}
		o.applyCommon(c)
	}
	if c.maxConsecutive < 1 {
		return nil, ErrInvalidMaxConsecutive
	}
	return c, nil
}
