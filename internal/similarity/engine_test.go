package similarity

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/blackbox/pkg/types"
)

// tableProvider serves hand-built unit vectors for known texts. The
// vectors are placed so that pairwise cosines model a plausible
// "semantic closeness" between city names:
//
//	cos(london, paris)  = 0.46
//	cos(madrid, tokyo)  = 0.55
//	cos(milan,  tokyo)  = 0.20
//
// and every other cross pair is orthogonal.
type tableProvider struct {
	calls atomic.Int64
	err   error
}

var cityVectors = map[string][]float32{
	"milan":  {1, 0, 0, 0},
	"madrid": {0, 1, 0, 0},
	"london": {0, 0, 1, 0},
	"paris":  {0, 0, 0.46, 0.888},
	"tokyo":  {0.2, 0.55, 0, 0.811},
}

func (p *tableProvider) Embed(_ context.Context, text string) ([]float32, error) {
	p.calls.Add(1)
	if p.err != nil {
		return nil, p.err
	}
	vec, ok := cityVectors[text]
	if !ok {
		return nil, fmt.Errorf("no fixture vector for %q", text)
	}
	return vec, nil
}

func (p *tableProvider) Model() string { return "fixture" }

func cities(names ...string) any {
	out := make([]any, len(names))
	for i, n := range names {
		out[i] = n
	}
	return out
}

func TestScoreScalarIdentical(t *testing.T) {
	engine := NewEngine(&tableProvider{}, 4)
	score, err := engine.Score(context.Background(), "milan", "milan", types.ListUnordered)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, score, 1e-6)
}

func TestScoreScalarUnrelated(t *testing.T) {
	engine := NewEngine(&tableProvider{}, 4)
	score, err := engine.Score(context.Background(), "milan", "london", types.ListUnordered)
	require.NoError(t, err)
	assert.InDelta(t, 0.0, score, 1e-6)
}

func TestScoreListPermutationInvariant(t *testing.T) {
	engine := NewEngine(&tableProvider{}, 4)
	score, err := engine.Score(context.Background(),
		cities("milan", "madrid", "london"),
		cities("london", "milan", "madrid"),
		types.ListUnordered)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, score, 1e-6)
}

func TestScoreListMonotonicDegradation(t *testing.T) {
	engine := NewEngine(&tableProvider{}, 4)
	expected := cities("milan", "madrid", "london")

	cases := []struct {
		name   string
		actual any
		want   float64
	}{
		{"identical", cities("milan", "madrid", "london"), 1.0},
		{"one element close substitute", cities("milan", "madrid", "paris"), 0.82},
		{"one element missing", cities("milan", "madrid"), 0.67},
		{"mostly different", cities("paris", "tokyo"), 0.34},
	}

	prev := 2.0
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			score, err := engine.Score(context.Background(), expected, tc.actual, types.ListUnordered)
			require.NoError(t, err)
			assert.InDelta(t, tc.want, score, 0.05)
			assert.Less(t, score, prev+1e-9, "scores must not increase as outputs degrade")
			prev = score
		})
	}
}

func TestScoreListSymmetric(t *testing.T) {
	engine := NewEngine(&tableProvider{}, 4)
	a := cities("milan", "madrid", "london")
	b := cities("paris", "tokyo")

	ab, err := engine.Score(context.Background(), a, b, types.ListUnordered)
	require.NoError(t, err)
	ba, err := engine.Score(context.Background(), b, a, types.ListUnordered)
	require.NoError(t, err)
	assert.InDelta(t, ab, ba, 1e-9)
}

func TestScoreListEmpty(t *testing.T) {
	engine := NewEngine(&tableProvider{}, 4)

	score, err := engine.Score(context.Background(), cities(), cities(), types.ListUnordered)
	require.NoError(t, err)
	assert.Equal(t, 1.0, score, "two empty lists agree perfectly")

	score, err = engine.Score(context.Background(), cities("milan"), cities(), types.ListUnordered)
	require.NoError(t, err)
	assert.Equal(t, 0.0, score, "empty versus non-empty is total disagreement")
}

func TestScoreListEmptyNoEmbedding(t *testing.T) {
	provider := &tableProvider{}
	engine := NewEngine(provider, 4)

	_, err := engine.Score(context.Background(), cities(), cities("milan"), types.ListUnordered)
	require.NoError(t, err)
	assert.Equal(t, int64(0), provider.calls.Load(), "degenerate lists must not hit the provider")
}

func TestScoreRankedOrderSensitive(t *testing.T) {
	engine := NewEngine(&tableProvider{}, 4)
	a := cities("milan", "madrid", "london")
	b := cities("london", "madrid", "milan")

	unordered, err := engine.Score(context.Background(), a, b, types.ListUnordered)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, unordered, 1e-6)

	ranked, err := engine.Score(context.Background(), a, b, types.ListRanked)
	require.NoError(t, err)
	assert.Less(t, ranked, 0.9, "swapped head elements must cost under ranked policy")

	same, err := engine.Score(context.Background(), a, a, types.ListRanked)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, same, 1e-6)
}

func TestScoreRankedShorterActual(t *testing.T) {
	engine := NewEngine(&tableProvider{}, 4)
	score, err := engine.Score(context.Background(),
		cities("milan", "madrid", "london"),
		cities("milan", "madrid"),
		types.ListRanked)
	require.NoError(t, err)
	assert.Greater(t, score, 0.5)
	assert.Less(t, score, 1.0)
}

func TestScoreProviderFailure(t *testing.T) {
	engine := NewEngine(&tableProvider{err: errors.New("model offline")}, 4)
	_, err := engine.Score(context.Background(),
		cities("milan", "madrid"), cities("milan"), types.ListUnordered)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSimilarityUnavailable)
}

func TestScoreContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	engine := NewEngine(&tableProvider{err: ctx.Err()}, 4)
	_, err := engine.Score(ctx, "milan", "madrid", types.ListUnordered)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, ErrSimilarityUnavailable)
}

func TestScoreBounded(t *testing.T) {
	engine := NewEngine(&tableProvider{}, 4)
	lists := []any{
		cities(),
		cities("milan"),
		cities("tokyo", "paris"),
		cities("milan", "madrid", "london"),
	}
	for _, a := range lists {
		for _, b := range lists {
			score, err := engine.Score(context.Background(), a, b, types.ListUnordered)
			require.NoError(t, err)
			assert.GreaterOrEqual(t, score, 0.0)
			assert.LessOrEqual(t, score, 1.0)
		}
	}
}
