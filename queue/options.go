package queue

// Option configures a Ring or StateRing at construction, the same
// functional-options shape as eventloop.LoopOption (options.go):
// an interface wrapping an apply closure, rather than a bare
// func(*config), so a future option can report a construction error
// without breaking the signature of every existing option.
type Option interface {
	apply(*config) error
}

type optionFunc struct {
	fn func(*config) error
}

func (o *optionFunc) apply(c *config) error { return o.fn(c) }

type config struct {
	powerOfTwo         bool
	indexRemap         bool
	maximizeThroughput bool
	totalOrder         bool
	spsc               bool
}

// WithPowerOfTwoCapacity rounds the requested capacity up to the next
// power of two, per spec.md §4.D's "capacity is optionally rounded up
// to a power of two."
func WithPowerOfTwoCapacity() Option {
	return &optionFunc{func(c *config) error {
		c.powerOfTwo = true
		return nil
	}}
}

// WithIndexRemap enables the cache-line-scattering bit-swap remap
// (internal/cacheline.Remap). Implies WithPowerOfTwoCapacity, since the
// remap is only defined for a power-of-two slot count.
func WithIndexRemap() Option {
	return &optionFunc{func(c *config) error {
		c.indexRemap = true
		c.powerOfTwo = true
		return nil
	}}
}

// WithMaximizeThroughput widens the busy-wait backoff's local-spin
// budget before yielding to the scheduler, trading latency for fewer
// read-for-ownership-generating retries under contention.
func WithMaximizeThroughput() Option {
	return &optionFunc{func(c *config) error {
		c.maximizeThroughput = true
		return nil
	}}
}

// WithTotalOrder requests a single global FIFO order across every
// observer rather than per-producer/consumer-pair FIFO only. Go's
// atomics already give every operation here sequentially consistent
// ordering, so this is currently documentation of intent rather than a
// distinct code path — the same stance shared.MemOrder takes.
func WithTotalOrder() Option {
	return &optionFunc{func(c *config) error {
		c.totalOrder = true
		return nil
	}}
}

// WithSPSC declares a single-producer/single-consumer usage contract,
// letting index advances use a plain load/store pair instead of a CAS
// loop. The caller is responsible for actually using only one producer
// and one consumer goroutine; violating that is a data race, not a
// detected error.
func WithSPSC() Option {
	return &optionFunc{func(c *config) error {
		c.spsc = true
		return nil
	}}
}

func resolveOptions(opts []Option) (*config, error) {
	c := &config{}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt.apply(c); err != nil {
			return nil, err
		}
	}
	return c, nil
}
