package similarity

import (
	"context"
	"errors"
	"fmt"
	"math"
	"reflect"

	"golang.org/x/sync/errgroup"

	"github.com/scrypster/blackbox/internal/embedding"
	"github.com/scrypster/blackbox/pkg/types"
)

// ErrSimilarityUnavailable indicates the embedding provider could not
// produce vectors for a comparison. Callers should surface it rather
// than substitute a default score.
var ErrSimilarityUnavailable = errors.New("similarity unavailable")

const defaultMaxConcurrentEmbeds = 8

// Engine scores semantic similarity between function outputs using an
// embedding provider. Scores are in [0, 1] where 1 is semantically
// identical.
type Engine struct {
	provider            embedding.Provider
	maxConcurrentEmbeds int
}

// NewEngine creates an Engine over the given provider. maxConcurrentEmbeds
// bounds in-flight embedding calls during list comparisons; values <= 0
// select the default.
func NewEngine(provider embedding.Provider, maxConcurrentEmbeds int) *Engine {
	if maxConcurrentEmbeds <= 0 {
		maxConcurrentEmbeds = defaultMaxConcurrentEmbeds
	}
	return &Engine{
		provider:            provider,
		maxConcurrentEmbeds: maxConcurrentEmbeds,
	}
}

// Score compares two values of the same declared shape. Lists are
// compared element-wise under the given policy; everything else is
// serialized and compared as a single embedded text.
func (e *Engine) Score(ctx context.Context, expected, actual any, policy types.ListPolicy) (float64, error) {
	le, eIsList := asList(expected)
	la, aIsList := asList(actual)
	if eIsList && aIsList {
		if policy == types.ListRanked {
			return e.scoreRanked(ctx, le, la)
		}
		return e.scoreUnordered(ctx, le, la)
	}
	return e.scorePair(ctx, expected, actual)
}

func (e *Engine) scorePair(ctx context.Context, expected, actual any) (float64, error) {
	var ve, va []float32
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		ve, err = e.embed(gctx, expected)
		return err
	})
	g.Go(func() error {
		var err error
		va, err = e.embed(gctx, actual)
		return err
	})
	if err := g.Wait(); err != nil {
		return 0, err
	}
	return Cosine(ve, va), nil
}

// scoreUnordered treats both lists as sets: elements are matched
// one-to-one so that total pairwise similarity is maximal, and the
// matched total is normalized by the longer list's length. Unmatched
// elements on either side therefore pull the score down.
func (e *Engine) scoreUnordered(ctx context.Context, expected, actual []any) (float64, error) {
	n, m := len(expected), len(actual)
	if n == 0 && m == 0 {
		return 1.0, nil
	}
	if n == 0 || m == 0 {
		return 0.0, nil
	}

	sims, err := e.pairwise(ctx, expected, actual)
	if err != nil {
		return 0, err
	}

	size := n
	if m > size {
		size = m
	}
	padded := make([][]float64, size)
	for i := range padded {
		padded[i] = make([]float64, size)
		if i < n {
			copy(padded[i], sims[i])
		}
	}

	_, total := MaxWeightAssignment(padded)
	return clampUnit(total / float64(size)), nil
}

// scoreRanked compares lists positionally with logarithmically decaying
// position weights, so disagreement near the head of the list costs more
// than disagreement in the tail. Length mismatch is penalized through
// the weights of the uncovered positions.
func (e *Engine) scoreRanked(ctx context.Context, expected, actual []any) (float64, error) {
	n, m := len(expected), len(actual)
	if n == 0 && m == 0 {
		return 1.0, nil
	}
	if n == 0 || m == 0 {
		return 0.0, nil
	}

	pairs := n
	if m < pairs {
		pairs = m
	}
	longest := n
	if m > longest {
		longest = m
	}

	ve, err := e.embedAll(ctx, expected[:pairs])
	if err != nil {
		return 0, err
	}
	va, err := e.embedAll(ctx, actual[:pairs])
	if err != nil {
		return 0, err
	}

	var weighted, norm float64
	for i := 0; i < longest; i++ {
		w := 1.0 / math.Log2(float64(i)+2)
		norm += w
		if i < pairs {
			weighted += w * Cosine(ve[i], va[i])
		}
	}
	return clampUnit(weighted / norm), nil
}

// pairwise embeds every element of both lists once and returns the full
// n×m cosine matrix.
func (e *Engine) pairwise(ctx context.Context, expected, actual []any) ([][]float64, error) {
	var ve, va [][]float32
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		ve, err = e.embedAll(gctx, expected)
		return err
	})
	g.Go(func() error {
		var err error
		va, err = e.embedAll(gctx, actual)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sims := make([][]float64, len(ve))
	for i := range ve {
		sims[i] = make([]float64, len(va))
		for j := range va {
			sims[i][j] = Cosine(ve[i], va[j])
		}
	}
	return sims, nil
}

func (e *Engine) embedAll(ctx context.Context, values []any) ([][]float32, error) {
	vecs := make([][]float32, len(values))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.maxConcurrentEmbeds)
	for i, v := range values {
		i, v := i, v
		g.Go(func() error {
			vec, err := e.embed(gctx, v)
			if err != nil {
				return err
			}
			vecs[i] = vec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return vecs, nil
}

func (e *Engine) embed(ctx context.Context, value any) ([]float32, error) {
	vec, err := e.provider.Embed(ctx, Serialize(value))
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", ErrSimilarityUnavailable, err)
	}
	return vec, nil
}

func clampUnit(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// asList reports whether v is a list value and, if so, returns its
// elements as []any.
func asList(v any) ([]any, bool) {
	if l, ok := v.([]any); ok {
		return l, true
	}
	rv := reflect.ValueOf(v)
	if !rv.IsValid() || (rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array) {
		return nil, false
	}
	if rv.Type().Elem().Kind() == reflect.Uint8 {
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}
