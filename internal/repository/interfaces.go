package repository

import (
	"context"
	"time"

	"github.com/smallbiznis/valora-verify/internal/domain/verification"
)

// SessionStore persists short-lived OAuth correlation state.
type SessionStore interface {
	// SaveSession stores the session and drops any other live session held by
	// the same identity.
	SaveSession(ctx context.Context, session verification.OAuthSession, ttl time.Duration) error
	// ConsumeSession atomically loads and deletes the session for token. It
	// returns nil when no live session exists.
	ConsumeSession(ctx context.Context, token string) (*verification.OAuthSession, error)
}

// Registry is the narrow contract of the external verified-identity registry.
// Reads return nil without error when nothing is recorded.
type Registry interface {
	// StoreProof records req, replacing any record for the same identity and
	// channel, and returns the record as stored. Refusals are
	// *verification.SubmissionRejectedError.
	StoreProof(ctx context.Context, req verification.StoreProofRequest) (*verification.VerifiedIdentityRecord, error)
	GetIdentity(ctx context.Context, identity verification.IdentityRef) (*verification.VerifiedIdentityRecord, error)
	GetMetrics(ctx context.Context, channelID string) (*verification.Metrics, error)
}
