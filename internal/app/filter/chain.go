package filter

import (
	"context"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
)

// Spec names a filter to build and the settings to configure it with.
type Spec struct {
	Name     string
	Settings map[string]any
}

// Chain executes filters in sequence.
type Chain struct {
	filters []Filter
}

// NewChain creates a new filter chain.
func NewChain() *Chain {
	return &Chain{
		filters: make([]Filter, 0),
	}
}

// BuildChain creates a chain from registered filters in the given order.
func BuildChain(specs []Spec) (*Chain, error) {
	chain := NewChain()
	for _, spec := range specs {
		factory, ok := registry[spec.Name]
		if !ok {
			return nil, errors.Newf("unknown filter: %s", spec.Name)
		}
		f := factory()
		if err := f.ValidateConfig(spec.Settings); err != nil {
			return nil, errors.Wrapf(err, "filter %s", spec.Name)
		}
		chain.Add(f)
		zlog.Info().Msgf("filter enabled: name=%s", spec.Name)
	}
	return chain, nil
}

// Add adds a filter to the chain.
func (c *Chain) Add(f Filter) {
	c.filters = append(c.filters, f)
}

// Execute runs all filters in sequence.
// Returns immediately if any filter rejects the request.
// A nil chain accepts everything.
func (c *Chain) Execute(ctx context.Context, req Request, q QueueView) Result {
	if c == nil {
		return Accept()
	}
	for _, f := range c.filters {
		result := f.Check(ctx, req, q)
		if !result.Accepted {
			result.Filter = f.Name()
			return result
		}
	}
	return Accept()
}

// Filters returns all filters in the chain.
func (c *Chain) Filters() []Filter {
	return c.filters
}
