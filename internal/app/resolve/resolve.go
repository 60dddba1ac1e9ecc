// Package resolve turns user queries into playable tracks.
package resolve

import (
	"context"
	"strings"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/guildbox/internal/domain/track"
)

var (
	// ErrNotFound is returned when a query matched nothing.
	ErrNotFound = errors.New("no results")
	// ErrNoStream is returned when a result carries no playable stream.
	ErrNoStream = errors.New("no playable stream")
)

// Resolver maps a query to a single playable track.
type Resolver interface {
	Resolve(ctx context.Context, query string) (track.Track, error)
}

// Rewriter turns queries a Resolver cannot search for (e.g. links to other
// services) into plain search text.
type Rewriter interface {
	// Name returns the rewriter name for logging.
	Name() string
	// Match reports whether the rewriter handles the query.
	Match(query string) bool
	// Rewrite returns the replacement query.
	Rewrite(ctx context.Context, query string) (string, error)
}

// Chain applies the first matching rewriter and hands the result to the
// underlying resolver.
type Chain struct {
	rewriters []Rewriter
	resolver  Resolver
}

// NewChain creates a new resolver chain.
func NewChain(resolver Resolver, rewriters ...Rewriter) *Chain {
	return &Chain{
		rewriters: rewriters,
		resolver:  resolver,
	}
}

// Resolve implements Resolver.
func (c *Chain) Resolve(ctx context.Context, query string) (track.Track, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return track.Track{}, errors.Wrap(ErrNotFound, "empty query")
	}

	for _, rw := range c.rewriters {
		if !rw.Match(query) {
			continue
		}
		rewritten, err := rw.Rewrite(ctx, query)
		if err != nil {
			// Fall through with the original text; the resolver may still
			// handle it as a generic URL.
			zlog.Warn().Msgf("resolve: rewrite failed, using original query: rewriter=%s error=%v", rw.Name(), err)
			break
		}
		zlog.Debug().Msgf("resolve: query rewritten: rewriter=%s from=%q to=%q", rw.Name(), query, rewritten)
		query = rewritten
		break
	}

	t, err := c.resolver.Resolve(ctx, query)
	if err != nil {
		return track.Track{}, err
	}
	if !t.IsPlayable() {
		return track.Track{}, errors.Wrapf(ErrNoStream, "query %q", query)
	}
	return t, nil
}
