package cache

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/smallbiznis/valora-verify/internal/domain/verification"
	"github.com/smallbiznis/valora-verify/internal/repository"
)

type countingRegistry struct {
	repository.Registry
	identityReads atomic.Int32
	metricsReads  atomic.Int32
	failReads     bool
}

func (c *countingRegistry) GetIdentity(ctx context.Context, identity verification.IdentityRef) (*verification.VerifiedIdentityRecord, error) {
	c.identityReads.Add(1)
	if c.failReads {
		return nil, errors.New("registry down")
	}
	return c.Registry.GetIdentity(ctx, identity)
}

func (c *countingRegistry) GetMetrics(ctx context.Context, channelID string) (*verification.Metrics, error) {
	c.metricsReads.Add(1)
	if c.failReads {
		return nil, errors.New("registry down")
	}
	return c.Registry.GetMetrics(ctx, channelID)
}

func newCachedRegistry(t *testing.T) (*CachedRegistry, *countingRegistry) {
	t.Helper()
	backing := &countingRegistry{Registry: repository.NewMemoryRegistry(nil)}
	cached, err := NewCachedRegistry(context.Background(), backing, time.Minute, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = cached.Close() })
	return cached, backing
}

func storeRequest(subscribers uint64) verification.StoreProofRequest {
	return verification.StoreProofRequest{
		Identity:        "user-1",
		ProofBytes:      []byte{1},
		ChannelID:       "UC1",
		ClaimTypeCode:   1,
		SubscriberCount: subscribers,
	}
}

func mustStore(t *testing.T, r *CachedRegistry, req verification.StoreProofRequest) *verification.VerifiedIdentityRecord {
	t.Helper()
	record, err := r.StoreProof(context.Background(), req)
	require.NoError(t, err)
	require.NotNil(t, record)
	return record
}

func TestCachedRegistry_MissesAreNotCached(t *testing.T) {
	cached, backing := newCachedRegistry(t)
	ctx := context.Background()

	record, err := cached.GetIdentity(ctx, "user-1")
	require.NoError(t, err)
	require.Nil(t, record)

	mustStore(t, cached, storeRequest(100))

	record, err = cached.GetIdentity(ctx, "user-1")
	require.NoError(t, err)
	require.NotNil(t, record)
	require.EqualValues(t, 2, backing.identityReads.Load())
}

func TestCachedRegistry_HitsSkipBackend(t *testing.T) {
	cached, backing := newCachedRegistry(t)
	ctx := context.Background()
	mustStore(t, cached, storeRequest(100))

	for i := 0; i < 3; i++ {
		record, err := cached.GetIdentity(ctx, "user-1")
		require.NoError(t, err)
		require.Equal(t, verification.ClaimSubscriberCount, record.ClaimType)

		m, err := cached.GetMetrics(ctx, "UC1")
		require.NoError(t, err)
		require.EqualValues(t, 100, m.SubscriberCount)
	}
	require.EqualValues(t, 1, backing.identityReads.Load())
	require.EqualValues(t, 1, backing.metricsReads.Load())
	require.Equal(t, 2, cached.Len())
}

func TestCachedRegistry_WriteEvicts(t *testing.T) {
	cached, _ := newCachedRegistry(t)
	ctx := context.Background()
	mustStore(t, cached, storeRequest(100))

	m, err := cached.GetMetrics(ctx, "UC1")
	require.NoError(t, err)
	require.EqualValues(t, 100, m.SubscriberCount)

	mustStore(t, cached, storeRequest(250))

	m, err = cached.GetMetrics(ctx, "UC1")
	require.NoError(t, err)
	require.EqualValues(t, 250, m.SubscriberCount)

	record, err := cached.GetIdentity(ctx, "user-1")
	require.NoError(t, err)
	require.EqualValues(t, 250, record.SubscriberCount)
}

func TestCachedRegistry_RejectedWriteKeepsEntries(t *testing.T) {
	cached, _ := newCachedRegistry(t)
	ctx := context.Background()
	mustStore(t, cached, storeRequest(100))
	_, err := cached.GetIdentity(ctx, "user-1")
	require.NoError(t, err)

	bad := storeRequest(999)
	bad.ChannelID = ""
	_, err = cached.StoreProof(ctx, bad)
	require.ErrorIs(t, err, verification.ErrSubmissionRejected)
	require.Equal(t, 1, cached.Len())
}

func TestCachedRegistry_ErrorsPassThrough(t *testing.T) {
	cached, backing := newCachedRegistry(t)
	backing.failReads = true

	_, err := cached.GetIdentity(context.Background(), "user-1")
	require.Error(t, err)
	_, err = cached.GetMetrics(context.Background(), "UC1")
	require.Error(t, err)
	require.Equal(t, 0, cached.Len())
}

func TestNewCachedRegistry_RequiresTTL(t *testing.T) {
	_, err := NewCachedRegistry(context.Background(), repository.NewMemoryRegistry(nil), 0, nil)
	require.Error(t, err)
}
