package resolve

import (
	"context"
	"strings"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/guildbox/internal/domain/track"
)

type recordingResolver struct {
	queries []string
	result  track.Track
	err     error
}

func (r *recordingResolver) Resolve(ctx context.Context, query string) (track.Track, error) {
	r.queries = append(r.queries, query)
	return r.result, r.err
}

type prefixRewriter struct {
	prefix string
	out    string
	err    error
}

func (p prefixRewriter) Name() string { return "prefix" }

func (p prefixRewriter) Match(query string) bool { return strings.HasPrefix(query, p.prefix) }

func (p prefixRewriter) Rewrite(ctx context.Context, query string) (string, error) {
	return p.out, p.err
}

func TestChain_Resolve(t *testing.T) {
	playable := track.New("https://cdn/a.webm", "A")

	tests := []struct {
		name        string
		query       string
		rewriters   []Rewriter
		result      track.Track
		resolverErr error
		wantQuery   string
		wantErr     error
	}{
		{
			name:      "plain search",
			query:     "  lofi beats ",
			result:    playable,
			wantQuery: "lofi beats",
		},
		{
			name:      "rewritten link",
			query:     "spotify:track:1",
			rewriters: []Rewriter{prefixRewriter{prefix: "spotify:", out: "song artist"}},
			result:    playable,
			wantQuery: "song artist",
		},
		{
			name:      "rewrite failure keeps original",
			query:     "spotify:track:1",
			rewriters: []Rewriter{prefixRewriter{prefix: "spotify:", err: errors.New("boom")}},
			result:    playable,
			wantQuery: "spotify:track:1",
		},
		{
			name:      "first matching rewriter only",
			query:     "x:1",
			rewriters: []Rewriter{prefixRewriter{prefix: "x:", out: "one"}, prefixRewriter{prefix: "x:", out: "two"}},
			result:    playable,
			wantQuery: "one",
		},
		{
			name:        "not found",
			query:       "nothing",
			resolverErr: errors.Wrap(ErrNotFound, "search"),
			wantQuery:   "nothing",
			wantErr:     ErrNotFound,
		},
		{
			name:      "missing stream",
			query:     "song",
			result:    track.New("", "Song"),
			wantQuery: "song",
			wantErr:   ErrNoStream,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &recordingResolver{result: tt.result, err: tt.resolverErr}
			chain := NewChain(r, tt.rewriters...)

			got, err := chain.Resolve(context.Background(), tt.query)
			require.Len(t, r.queries, 1)
			assert.Equal(t, tt.wantQuery, r.queries[0])

			if tt.wantErr != nil {
				require.Error(t, err)
				assert.True(t, errors.Is(err, tt.wantErr), "unexpected error: %v", err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.result, got)
		})
	}
}

func TestChain_EmptyQuery(t *testing.T) {
	r := &recordingResolver{}
	_, err := NewChain(r).Resolve(context.Background(), "   ")
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.Empty(t, r.queries)
}
