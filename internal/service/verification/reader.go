package verification

import (
	"context"
	"strings"

	"go.uber.org/zap"

	domain "github.com/smallbiznis/valora-verify/internal/domain/verification"
	"github.com/smallbiznis/valora-verify/internal/metrics"
	"github.com/smallbiznis/valora-verify/internal/repository"
)

// Reader answers verified-identity queries. Lookups never fail loudly: any
// registry error reads as "not verified".
type Reader struct {
	registry repository.Registry
	recorder *metrics.Recorder
	logger   *zap.Logger
}

// NewReader builds a reader over registry.
func NewReader(registry repository.Registry, recorder *metrics.Recorder, logger *zap.Logger) *Reader {
	return &Reader{registry: registry, recorder: recorder, logger: logger}
}

// Lookup returns the record proven for identity, if any.
func (r *Reader) Lookup(ctx context.Context, identity domain.IdentityRef) (*domain.VerifiedIdentityRecord, bool) {
	if identity.IsZero() {
		return nil, false
	}
	record, err := r.registry.GetIdentity(ctx, identity)
	if err != nil {
		r.log().Warn("identity lookup failed", zap.String("identity", identity.String()), zap.Error(err))
		r.recorder.RegistryRead("identity", "error")
		return nil, false
	}
	if record == nil {
		r.recorder.RegistryRead("identity", "miss")
		return nil, false
	}
	r.recorder.RegistryRead("identity", "hit")
	return record, true
}

// Metrics returns the public counters recorded for channelID, if any.
func (r *Reader) Metrics(ctx context.Context, channelID string) (*domain.Metrics, bool) {
	channelID = strings.TrimSpace(channelID)
	if channelID == "" {
		return nil, false
	}
	m, err := r.registry.GetMetrics(ctx, channelID)
	if err != nil {
		r.log().Warn("metrics lookup failed", zap.String("channel_id", channelID), zap.Error(err))
		r.recorder.RegistryRead("metrics", "error")
		return nil, false
	}
	if m == nil {
		r.recorder.RegistryRead("metrics", "miss")
		return nil, false
	}
	r.recorder.RegistryRead("metrics", "hit")
	return m, true
}

// Status renders identity's standing as a UI result. Identities without a
// record are pending.
func (r *Reader) Status(ctx context.Context, identity domain.IdentityRef) domain.VerificationResult {
	record, ok := r.Lookup(ctx, identity)
	if !ok {
		return domain.VerificationResult{Status: domain.StatusPending}
	}
	m := record.Metrics()
	return domain.VerificationResult{
		IsVerified: true,
		Status:     domain.StatusVerified,
		Identity:   record,
		Metrics:    &m,
	}
}

func (r *Reader) log() *zap.Logger {
	if r != nil && r.logger != nil {
		return r.logger
	}
	return zap.L()
}
