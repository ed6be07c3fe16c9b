package evaluator

import (
	"context"
	"errors"
	"fmt"
	"log"

	"golang.org/x/sync/errgroup"

	"github.com/scrypster/blackbox/internal/storage"
	"github.com/scrypster/blackbox/pkg/types"
)

// ErrInsufficientLabeledData indicates that a correlation was requested
// for a version with too few labeled examples, or too few spot-labeled
// candidates, to produce a meaningful coefficient. The evaluator refuses
// rather than reporting a misleading number.
var ErrInsufficientLabeledData = errors.New("insufficient labeled data")

const defaultMaxConcurrentCandidates = 4

// Scorer computes a bounded similarity score between two values of the
// same declared shape. Satisfied by *similarity.Engine.
type Scorer interface {
	Score(ctx context.Context, expected, actual any, policy types.ListPolicy) (float64, error)
}

// Store is the storage surface the evaluator reads from.
type Store interface {
	storage.SignatureStore
	storage.ExampleStore
}

// Candidate is one output under evaluation together with an independent
// quality judgment for it (a spot label from review, or a reused label
// when replaying a prior version's outputs).
type Candidate struct {
	Output any
	Label  float64
}

// VersionComparison reports correlation for two versions of the same
// function over a common candidate set. Delta > 0 means version B's
// similarity signal tracks quality better than version A's.
type VersionComparison struct {
	A     *types.CorrelationResult
	B     *types.CorrelationResult
	Delta float64
}

// Evaluator scores candidate outputs against the labeled examples of a
// signature version and reports how well similarity predicts quality.
type Evaluator struct {
	store                   Store
	scorer                  Scorer
	maxConcurrentCandidates int
}

// NewEvaluator creates an Evaluator. maxConcurrentCandidates bounds how
// many candidates are scored in parallel; values <= 0 select the default.
func NewEvaluator(store Store, scorer Scorer, maxConcurrentCandidates int) *Evaluator {
	if maxConcurrentCandidates <= 0 {
		maxConcurrentCandidates = defaultMaxConcurrentCandidates
	}
	return &Evaluator{
		store:                   store,
		scorer:                  scorer,
		maxConcurrentCandidates: maxConcurrentCandidates,
	}
}

// Evaluate computes the correlation between predicted and observed
// quality for a batch of candidates against one signature version.
//
// Each candidate's predicted quality is its nearest labeled neighbor's
// label weighted by the similarity to that neighbor. The returned
// coefficient is the Pearson correlation between those predictions and
// the candidates' own labels. The whole batch fails if any similarity
// computation fails; partial coefficients are never reported.
//
// Returns ErrInsufficientLabeledData, without issuing any embedding
// calls, when the version has no labeled examples or fewer than two
// candidates were supplied.
func (e *Evaluator) Evaluate(ctx context.Context, functionName string, version int, candidates []Candidate) (*types.CorrelationResult, error) {
	if len(candidates) < 2 {
		return nil, fmt.Errorf("%w: correlation needs at least 2 candidates, got %d",
			ErrInsufficientLabeledData, len(candidates))
	}

	sig, err := e.store.GetSignature(ctx, functionName, version)
	if err != nil {
		return nil, fmt.Errorf("loading signature %s v%d: %w", functionName, version, err)
	}
	policy := sig.ListPolicy
	if policy == "" {
		policy = types.ListUnordered
	}

	labeled, err := e.store.ListExamples(ctx, functionName, storage.ListOptions{
		Version:     version,
		LabeledOnly: true,
		Limit:       1000,
	})
	if err != nil {
		return nil, fmt.Errorf("loading labeled examples for %s v%d: %w", functionName, version, err)
	}
	if len(labeled) == 0 {
		return nil, fmt.Errorf("%w: no labeled examples for %s v%d",
			ErrInsufficientLabeledData, functionName, version)
	}

	predicted := make([]float64, len(candidates))
	observed := make([]float64, len(candidates))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.maxConcurrentCandidates)
	for i, cand := range candidates {
		i, cand := i, cand
		g.Go(func() error {
			p, err := e.predict(gctx, cand.Output, labeled, policy)
			if err != nil {
				return err
			}
			predicted[i] = p
			observed[i] = cand.Label
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	result := &types.CorrelationResult{
		FunctionName:     functionName,
		Version:          version,
		SampleSize:       len(labeled),
		Coefficient:      Pearson(predicted, observed),
		LowSampleWarning: len(labeled) < types.MinLabeledForConfidence,
	}
	if result.LowSampleWarning {
		log.Printf("evaluator: %s v%d correlated over %d labeled examples, below the %d recommended",
			functionName, version, result.SampleSize, types.MinLabeledForConfidence)
	}
	return result, nil
}

// predict scores one candidate against every labeled example and returns
// the nearest neighbor's label weighted by the similarity to it.
func (e *Evaluator) predict(ctx context.Context, output any, labeled []*types.Example, policy types.ListPolicy) (float64, error) {
	var bestSim, bestLabel float64
	found := false

	for _, ex := range labeled {
		sim, err := e.scorer.Score(ctx, ex.Output, output, policy)
		if err != nil {
			return 0, err
		}
		if !found || sim > bestSim {
			bestSim = sim
			bestLabel = *ex.Label
			found = true
		}
	}

	return bestSim * bestLabel, nil
}

// CompareVersions evaluates two versions of the same function over a
// common candidate set. A positive Delta means the newer instantiation's
// similarity signal aligns better with the quality labels.
func (e *Evaluator) CompareVersions(ctx context.Context, functionName string, versionA, versionB int, candidates []Candidate) (*VersionComparison, error) {
	a, err := e.Evaluate(ctx, functionName, versionA, candidates)
	if err != nil {
		return nil, fmt.Errorf("evaluating %s v%d: %w", functionName, versionA, err)
	}
	b, err := e.Evaluate(ctx, functionName, versionB, candidates)
	if err != nil {
		return nil, fmt.Errorf("evaluating %s v%d: %w", functionName, versionB, err)
	}
	return &VersionComparison{A: a, B: b, Delta: b.Coefficient - a.Coefficient}, nil
}
