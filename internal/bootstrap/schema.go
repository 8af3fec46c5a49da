package bootstrap

import (
	"context"
	"fmt"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/smallbiznis/valora-verify/internal/repository"
)

const createVerifiedIdentitiesSQL = `CREATE TABLE IF NOT EXISTS verified_identities (
	id BIGINT PRIMARY KEY,
	identity_ref TEXT NOT NULL,
	channel_id TEXT NOT NULL,
	channel_name TEXT,
	claim_type SMALLINT NOT NULL CHECK (claim_type BETWEEN 0 AND 4),
	subscriber_count BIGINT NOT NULL DEFAULT 0,
	view_count BIGINT NOT NULL DEFAULT 0,
	video_count BIGINT NOT NULL DEFAULT 0,
	published_at TIMESTAMPTZ,
	proof_bytes BYTEA NOT NULL,
	public_inputs BYTEA[] NOT NULL,
	proven_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`

var schemaStatements = []string{
	createVerifiedIdentitiesSQL,
	`CREATE UNIQUE INDEX IF NOT EXISTS verified_identities_identity_channel_idx
	ON verified_identities (identity_ref, channel_id)`,
	`CREATE INDEX IF NOT EXISTS verified_identities_channel_proven_idx
	ON verified_identities (channel_id, proven_at DESC)`,
}

// EnsureSchema creates the registry tables on start.
func EnsureSchema(lc fx.Lifecycle, db repository.DB, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return ensureSchema(ctx, db, logger)
		},
	})
}

func ensureSchema(ctx context.Context, db repository.DB, logger *zap.Logger) error {
	for _, stmt := range schemaStatements {
		if _, err := db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("bootstrap schema: %w", err)
		}
	}
	logger.Info("registry schema ready", zap.Int("statements", len(schemaStatements)))
	return nil
}
