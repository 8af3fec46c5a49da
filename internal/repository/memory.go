package repository

import (
	"context"
	"sync"
	"time"

	"github.com/smallbiznis/valora-verify/internal/domain/verification"
)

var _ Registry = (*MemoryRegistry)(nil)

type registryKey struct {
	identity  verification.IdentityRef
	channelID string
}

// MemoryRegistry keeps verified identities in process memory. It is meant for
// development and tests.
type MemoryRegistry struct {
	mu       sync.RWMutex
	records  map[registryKey]verification.VerifiedIdentityRecord
	verifier ProofVerifier
	now      func() time.Time
}

// NewMemoryRegistry builds an empty registry. A nil verifier skips proof
// verification.
func NewMemoryRegistry(verifier ProofVerifier) *MemoryRegistry {
	return &MemoryRegistry{
		records:  make(map[registryKey]verification.VerifiedIdentityRecord),
		verifier: verifier,
		now:      time.Now,
	}
}

func (m *MemoryRegistry) StoreProof(_ context.Context, req verification.StoreProofRequest) (*verification.VerifiedIdentityRecord, error) {
	if err := CheckProof(m.verifier, req); err != nil {
		return nil, err
	}
	claim, _ := verification.ClaimTypeFromWireCode(req.ClaimTypeCode)

	var name *string
	if req.ChannelTitle != nil {
		n := *req.ChannelTitle
		name = &n
	}

	record := verification.VerifiedIdentityRecord{
		Identity:        req.Identity,
		ChannelID:       req.ChannelID,
		ChannelName:     name,
		ClaimType:       claim,
		SubscriberCount: req.SubscriberCount,
		ViewCount:       req.ViewCount,
		VideoCount:      req.VideoCount,
		PublishedAt:     req.PublishedAt,
		ProvenAt:        m.now().UTC(),
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[registryKey{identity: req.Identity, channelID: req.ChannelID}] = record
	return &record, nil
}

// GetIdentity returns the most recently proven record for identity.
func (m *MemoryRegistry) GetIdentity(_ context.Context, identity verification.IdentityRef) (*verification.VerifiedIdentityRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var latest *verification.VerifiedIdentityRecord
	for key, record := range m.records {
		if key.identity != identity {
			continue
		}
		if latest == nil || record.ProvenAt.After(latest.ProvenAt) {
			r := record
			latest = &r
		}
	}
	return latest, nil
}

// GetMetrics returns the most recently proven counters for channelID.
func (m *MemoryRegistry) GetMetrics(_ context.Context, channelID string) (*verification.Metrics, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var latest *verification.VerifiedIdentityRecord
	for key, record := range m.records {
		if key.channelID != channelID {
			continue
		}
		if latest == nil || record.ProvenAt.After(latest.ProvenAt) {
			r := record
			latest = &r
		}
	}
	if latest == nil {
		return nil, nil
	}
	metrics := latest.Metrics()
	return &metrics, nil
}

// Len returns the number of stored records.
func (m *MemoryRegistry) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records)
}
