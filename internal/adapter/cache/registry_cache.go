package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/allegro/bigcache/v3"
	"go.uber.org/zap"

	"github.com/smallbiznis/valora-verify/internal/domain/verification"
	"github.com/smallbiznis/valora-verify/internal/repository"
)

var _ repository.Registry = (*CachedRegistry)(nil)

// CachedRegistry keeps recent registry reads in process memory. Writes go
// straight through and evict the identity and channel they touch. Misses are
// never cached, so a first verification is visible immediately.
type CachedRegistry struct {
	next   repository.Registry
	cache  *bigcache.BigCache
	logger *zap.Logger
}

// NewCachedRegistry wraps next with a read cache whose entries live for ttl.
func NewCachedRegistry(ctx context.Context, next repository.Registry, ttl time.Duration, logger *zap.Logger) (*CachedRegistry, error) {
	if ttl <= 0 {
		return nil, fmt.Errorf("registry cache ttl must be positive")
	}
	cfg := bigcache.DefaultConfig(ttl)
	cfg.CleanWindow = ttl
	cfg.Shards = 64
	cfg.MaxEntriesInWindow = 10_000
	cfg.MaxEntrySize = 512
	cfg.HardMaxCacheSize = 64
	cfg.Verbose = false

	c, err := bigcache.New(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create registry cache: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CachedRegistry{next: next, cache: c, logger: logger}, nil
}

func (r *CachedRegistry) StoreProof(ctx context.Context, req verification.StoreProofRequest) (*verification.VerifiedIdentityRecord, error) {
	record, err := r.next.StoreProof(ctx, req)
	if err != nil {
		return nil, err
	}
	r.evict(identityCacheKey(req.Identity))
	r.evict(metricsCacheKey(req.ChannelID))
	return record, nil
}

func (r *CachedRegistry) GetIdentity(ctx context.Context, identity verification.IdentityRef) (*verification.VerifiedIdentityRecord, error) {
	key := identityCacheKey(identity)
	var record verification.VerifiedIdentityRecord
	if r.load(key, &record) {
		return &record, nil
	}
	found, err := r.next.GetIdentity(ctx, identity)
	if err != nil || found == nil {
		return found, err
	}
	r.store(key, found)
	return found, nil
}

func (r *CachedRegistry) GetMetrics(ctx context.Context, channelID string) (*verification.Metrics, error) {
	key := metricsCacheKey(channelID)
	var m verification.Metrics
	if r.load(key, &m) {
		return &m, nil
	}
	found, err := r.next.GetMetrics(ctx, channelID)
	if err != nil || found == nil {
		return found, err
	}
	r.store(key, found)
	return found, nil
}

// Len reports the number of cached entries.
func (r *CachedRegistry) Len() int {
	return r.cache.Len()
}

// Close releases the cache's background cleaner.
func (r *CachedRegistry) Close() error {
	return r.cache.Close()
}

func (r *CachedRegistry) load(key string, out any) bool {
	raw, err := r.cache.Get(key)
	if err != nil {
		if !errors.Is(err, bigcache.ErrEntryNotFound) {
			r.logger.Debug("registry cache read failed", zap.String("key", key), zap.Error(err))
		}
		return false
	}
	if err := json.Unmarshal(raw, out); err != nil {
		r.evict(key)
		return false
	}
	return true
}

func (r *CachedRegistry) store(key string, value any) {
	raw, err := json.Marshal(value)
	if err != nil {
		return
	}
	if err := r.cache.Set(key, raw); err != nil {
		r.logger.Debug("registry cache write failed", zap.String("key", key), zap.Error(err))
	}
}

func (r *CachedRegistry) evict(key string) {
	if err := r.cache.Delete(key); err != nil && !errors.Is(err, bigcache.ErrEntryNotFound) {
		r.logger.Debug("registry cache evict failed", zap.String("key", key), zap.Error(err))
	}
}

func identityCacheKey(identity verification.IdentityRef) string {
	return "identity:" + identity.String()
}

func metricsCacheKey(channelID string) string {
	return "metrics:" + channelID
}
