package cmap

// Option configures a Map at construction, the same functional-options
// shape queue.Option and eventloop.LoopOption use.
type Option interface {
	apply(*config) error
}

type optionFunc struct {
	fn func(*config) error
}

func (o *optionFunc) apply(c *config) error { return o.fn(c) }

type config struct {
	levels    int
	occupancy float64
	maxCells  int
}

// WithLevels overrides the default level count of 13.
func WithLevels(n int) Option {
	return &optionFunc{func(c *config) error {
		c.levels = n
		return nil
	}}
}

// WithOccupancy overrides the default target per-level occupancy of
// approximately 0.989.
func WithOccupancy(rho float64) Option {
	return &optionFunc{func(c *config) error {
		c.occupancy = rho
		return nil
	}}
}

// WithMaxCells bounds the total number of live key/value cells the Map
// will allocate; once reached, Set returns errs.ErrAllocation instead
// of allocating further. The default, zero, is unbounded. This budget
// is what gives spec.md's "allocation failure" kind a genuine trigger
// instead of leaving it unreachable (Go's allocator fails by panicking,
// not by returning an error).
func WithMaxCells(n int) Option {
	return &optionFunc{func(c *config) error {
		c.maxCells = n
		return nil
	}}
}

func resolveOptions(opts []Option) (*config, error) {
	c := &config{levels: defaultLevels, occupancy: defaultOccupancy}
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
