package tracker

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/blackbox/internal/storage"
	"github.com/scrypster/blackbox/internal/storage/sqlite"
	"github.com/scrypster/blackbox/pkg/types"
)

func newTestTracker(t *testing.T) *Tracker {
	t.Helper()
	store, err := sqlite.NewStore(filepath.Join(t.TempDir(), "blackbox.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return New(store)
}

func observedV1() Observed {
	return Observed{
		Input: types.ObjectDescriptor(
			types.Field{Name: "query", Type: types.ScalarDescriptor(types.ScalarString)},
		),
		Return: types.ListDescriptor(types.ScalarDescriptor(types.ScalarString)),
	}
}

func observedV2() Observed {
	o := observedV1()
	o.Return = types.ListDescriptor(types.ObjectDescriptor(
		types.Field{Name: "city", Type: types.ScalarDescriptor(types.ScalarString)},
		types.Field{Name: "score", Type: types.ScalarDescriptor(types.ScalarNumber)},
	))
	return o
}

func TestResolveCreatesVersionOne(t *testing.T) {
	tr := newTestTracker(t)

	sig, err := tr.Resolve(context.Background(), "recommend_cities", observedV1())
	require.NoError(t, err)
	assert.Equal(t, 1, sig.Version)
	assert.NotEmpty(t, sig.DescriptorHash)
	assert.False(t, sig.CreatedAt.IsZero())
}

func TestResolveSameDescriptorIsNoOp(t *testing.T) {
	tr := newTestTracker(t)
	ctx := context.Background()

	first, err := tr.Resolve(ctx, "fn", observedV1())
	require.NoError(t, err)

	second, err := tr.Resolve(ctx, "fn", observedV1())
	require.NoError(t, err)

	assert.Equal(t, first.Version, second.Version)
	assert.Equal(t, first.DescriptorHash, second.DescriptorHash)

	history, err := tr.History(ctx, "fn")
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestResolveReorderedFieldsIsNoOp(t *testing.T) {
	tr := newTestTracker(t)
	ctx := context.Background()

	a := Observed{
		Input: types.ObjectDescriptor(
			types.Field{Name: "a", Type: types.ScalarDescriptor(types.ScalarString)},
			types.Field{Name: "b", Type: types.ScalarDescriptor(types.ScalarInteger)},
		),
		Return: types.ScalarDescriptor(types.ScalarString),
	}
	b := Observed{
		Input: types.ObjectDescriptor(
			types.Field{Name: "b", Type: types.ScalarDescriptor(types.ScalarInteger)},
			types.Field{Name: "a", Type: types.ScalarDescriptor(types.ScalarString)},
		),
		Return: types.ScalarDescriptor(types.ScalarString),
	}

	first, err := tr.Resolve(ctx, "fn", a)
	require.NoError(t, err)
	second, err := tr.Resolve(ctx, "fn", b)
	require.NoError(t, err)
	assert.Equal(t, first.Version, second.Version)
}

func TestResolveChangedDescriptorBumpsVersion(t *testing.T) {
	tr := newTestTracker(t)
	ctx := context.Background()

	v1, err := tr.Resolve(ctx, "fn", observedV1())
	require.NoError(t, err)
	v2, err := tr.Resolve(ctx, "fn", observedV2())
	require.NoError(t, err)

	assert.Equal(t, 1, v1.Version)
	assert.Equal(t, 2, v2.Version)
	assert.NotEqual(t, v1.DescriptorHash, v2.DescriptorHash)

	// Re-resolving the old shape returns the old version, not version 3.
	again, err := tr.Resolve(ctx, "fn", observedV1())
	require.NoError(t, err)
	assert.Equal(t, 1, again.Version)

	history, err := tr.History(ctx, "fn")
	require.NoError(t, err)
	assert.Len(t, history, 2)
}

func TestResolveConcurrentIdenticalChange(t *testing.T) {
	tr := newTestTracker(t)
	ctx := context.Background()

	_, err := tr.Resolve(ctx, "fn", observedV1())
	require.NoError(t, err)

	const callers = 16
	versions := make([]int, callers)
	errs := make([]error, callers)

	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sig, err := tr.Resolve(ctx, "fn", observedV2())
			if err != nil {
				errs[i] = err
				return
			}
			versions[i] = sig.Version
		}(i)
	}
	wg.Wait()

	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, 2, versions[i], "caller %d got a different version", i)
	}

	history, err := tr.History(ctx, "fn")
	require.NoError(t, err)
	assert.Len(t, history, 2, "exactly one new version despite %d concurrent proposals", callers)
}

func TestResolveOpenListElementReusesVersion(t *testing.T) {
	tr := newTestTracker(t)
	ctx := context.Background()

	v1, err := tr.Resolve(ctx, "fn", observedV1())
	require.NoError(t, err)
	require.Equal(t, 1, v1.Version)

	// An empty list infers an open element, which must resolve to the
	// established concrete-element version instead of a new one.
	open := observedV1()
	open.Return = types.ListDescriptor(types.ScalarDescriptor(types.ScalarAny))

	sig, err := tr.Resolve(ctx, "fn", open)
	require.NoError(t, err)
	assert.Equal(t, 1, sig.Version)

	history, err := tr.History(ctx, "fn")
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestResolveOpenListElementFirstThenConcrete(t *testing.T) {
	tr := newTestTracker(t)
	ctx := context.Background()

	open := observedV1()
	open.Return = types.ListDescriptor(types.ScalarDescriptor(types.ScalarAny))

	v1, err := tr.Resolve(ctx, "fn", open)
	require.NoError(t, err)
	require.Equal(t, 1, v1.Version)

	sig, err := tr.Resolve(ctx, "fn", observedV1())
	require.NoError(t, err)
	assert.Equal(t, 1, sig.Version)

	history, err := tr.History(ctx, "fn")
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

// racingStore injects a rival version with a different descriptor just
// before the wrapped create runs, simulating a cross-process writer
// claiming the same version number for an unrelated shape change.
type racingStore struct {
	storage.SignatureStore
	once sync.Once
}

func (s *racingStore) CreateSignature(ctx context.Context, sig *types.FunctionSignature) error {
	s.once.Do(func() {
		input := types.ObjectDescriptor(
			types.Field{Name: "flag", Type: types.ScalarDescriptor(types.ScalarBoolean)},
		).Canonicalize()
		ret := types.ScalarDescriptor(types.ScalarInteger).Canonicalize()
		rival := &types.FunctionSignature{
			FunctionName:   sig.FunctionName,
			Version:        sig.Version,
			DescriptorHash: types.SignatureHash(sig.FunctionName, input, ret),
			Input:          input,
			Return:         ret,
			CreatedAt:      sig.CreatedAt,
		}
		if err := s.SignatureStore.CreateSignature(ctx, rival); err != nil {
			panic(err)
		}
	})
	return s.SignatureStore.CreateSignature(ctx, sig)
}

func TestResolveRetriesWhenRaceLosesToDifferentDescriptor(t *testing.T) {
	store, err := sqlite.NewStore(filepath.Join(t.TempDir(), "blackbox.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	tr := New(&racingStore{SignatureStore: store})
	ctx := context.Background()

	// The rival takes version 1, so this insert conflicts on the version
	// key. The conflicting hash is absent from the store, which must end
	// in a retried insert, never in a not-found error.
	sig, err := tr.Resolve(ctx, "fn", observedV1())
	require.NoError(t, err)
	assert.Equal(t, 2, sig.Version)

	history, err := tr.History(ctx, "fn")
	require.NoError(t, err)
	assert.Len(t, history, 2)
}

func TestResolveIndependentFunctions(t *testing.T) {
	tr := newTestTracker(t)
	ctx := context.Background()

	a, err := tr.Resolve(ctx, "fn_a", observedV1())
	require.NoError(t, err)
	b, err := tr.Resolve(ctx, "fn_b", observedV1())
	require.NoError(t, err)

	// Independent version sequences per function name.
	assert.Equal(t, 1, a.Version)
	assert.Equal(t, 1, b.Version)
	assert.NotEqual(t, a.DescriptorHash, b.DescriptorHash)
}
