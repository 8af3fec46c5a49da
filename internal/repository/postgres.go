package repository

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/smallbiznis/valora-verify/internal/domain/verification"
)

// Compile-time interface assertion.
var _ Registry = (*PostgresRegistry)(nil)

// DB is the subset of pgxpool.Pool the registry needs.
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresRegistry stores verified identities in Postgres. Proofs are verified
// before they are written.
type PostgresRegistry struct {
	db       DB
	node     *snowflake.Node
	verifier ProofVerifier
	logger   *zap.Logger
}

func NewPostgresRegistry(db DB, node *snowflake.Node, verifier ProofVerifier, logger *zap.Logger) *PostgresRegistry {
	return &PostgresRegistry{db: db, node: node, verifier: verifier, logger: logger}
}

const upsertIdentitySQL = `INSERT INTO verified_identities (
	id, identity_ref, channel_id, channel_name, claim_type,
	subscriber_count, view_count, video_count, published_at,
	proof_bytes, public_inputs, proven_at
)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
ON CONFLICT (identity_ref, channel_id) DO UPDATE SET
	channel_name = EXCLUDED.channel_name,
	claim_type = EXCLUDED.claim_type,
	subscriber_count = EXCLUDED.subscriber_count,
	view_count = EXCLUDED.view_count,
	video_count = EXCLUDED.video_count,
	published_at = EXCLUDED.published_at,
	proof_bytes = EXCLUDED.proof_bytes,
	public_inputs = EXCLUDED.public_inputs,
	proven_at = EXCLUDED.proven_at
RETURNING proven_at`

func (r *PostgresRegistry) StoreProof(ctx context.Context, req verification.StoreProofRequest) (*verification.VerifiedIdentityRecord, error) {
	if err := CheckProof(r.verifier, req); err != nil {
		return nil, err
	}
	claim, err := verification.ClaimTypeFromWireCode(req.ClaimTypeCode)
	if err != nil {
		return nil, &verification.SubmissionRejectedError{Reason: "unknown claim type"}
	}
	subs, views, videos, err := signedCounts(req.SubscriberCount, req.ViewCount, req.VideoCount)
	if err != nil {
		return nil, err
	}

	var provenAt time.Time
	err = r.db.QueryRow(ctx, upsertIdentitySQL,
		r.node.Generate().Int64(),
		req.Identity.String(),
		req.ChannelID,
		req.ChannelTitle,
		int16(req.ClaimTypeCode),
		subs,
		views,
		videos,
		req.PublishedAt,
		req.ProofBytes,
		req.PublicInputs,
		time.Now().UTC(),
	).Scan(&provenAt)
	if err != nil {
		return nil, fmt.Errorf("store proof: %w", err)
	}
	if r.logger != nil {
		r.logger.Debug("proof stored",
			zap.String("identity", req.Identity.String()),
			zap.String("channel_id", req.ChannelID),
			zap.Uint8("claim_code", req.ClaimTypeCode),
		)
	}
	return &verification.VerifiedIdentityRecord{
		Identity:        req.Identity,
		ChannelID:       req.ChannelID,
		ChannelName:     req.ChannelTitle,
		ClaimType:       claim,
		SubscriberCount: req.SubscriberCount,
		ViewCount:       req.ViewCount,
		VideoCount:      req.VideoCount,
		PublishedAt:     req.PublishedAt,
		ProvenAt:        provenAt.UTC(),
	}, nil
}

const selectIdentitySQL = `SELECT identity_ref, channel_id, channel_name, claim_type,
	subscriber_count, view_count, video_count, published_at, proven_at
FROM verified_identities
WHERE identity_ref = $1
ORDER BY proven_at DESC
LIMIT 1`

func (r *PostgresRegistry) GetIdentity(ctx context.Context, identity verification.IdentityRef) (*verification.VerifiedIdentityRecord, error) {
	var (
		identityRef string
		channelID   string
		channelName *string
		claimCode   int16
		subs        int64
		views       int64
		videos      int64
		publishedAt *time.Time
		provenAt    time.Time
	)
	err := r.db.QueryRow(ctx, selectIdentitySQL, identity.String()).Scan(
		&identityRef,
		&channelID,
		&channelName,
		&claimCode,
		&subs,
		&views,
		&videos,
		&publishedAt,
		&provenAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get identity: %w", err)
	}

	claim, err := verification.ClaimTypeFromWireCode(uint8(claimCode))
	if err != nil {
		return nil, fmt.Errorf("get identity: %w", err)
	}
	return &verification.VerifiedIdentityRecord{
		Identity:        verification.IdentityRef(identityRef),
		ChannelID:       channelID,
		ChannelName:     channelName,
		ClaimType:       claim,
		SubscriberCount: uint64(subs),
		ViewCount:       uint64(views),
		VideoCount:      uint64(videos),
		PublishedAt:     publishedAt,
		ProvenAt:        provenAt,
	}, nil
}

const selectMetricsSQL = `SELECT subscriber_count, view_count, video_count
FROM verified_identities
WHERE channel_id = $1
ORDER BY proven_at DESC
LIMIT 1`

func (r *PostgresRegistry) GetMetrics(ctx context.Context, channelID string) (*verification.Metrics, error) {
	var subs, views, videos int64
	err := r.db.QueryRow(ctx, selectMetricsSQL, channelID).Scan(&subs, &views, &videos)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get metrics: %w", err)
	}
	return &verification.Metrics{
		SubscriberCount: uint64(subs),
		ViewCount:       uint64(views),
		VideoCount:      uint64(videos),
	}, nil
}

func signedCounts(values ...uint64) (int64, int64, int64, error) {
	out := make([]int64, len(values))
	for i, v := range values {
		if v > math.MaxInt64 {
			return 0, 0, 0, &verification.SubmissionRejectedError{Reason: "metric out of range"}
		}
		out[i] = int64(v)
	}
	return out[0], out[1], out[2], nil
}
