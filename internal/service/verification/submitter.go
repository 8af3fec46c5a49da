package verification

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	domain "github.com/smallbiznis/valora-verify/internal/domain/verification"
	"github.com/smallbiznis/valora-verify/internal/repository"
	"github.com/smallbiznis/valora-verify/internal/zk"
)

// SubmitInput is everything the registry stores for one proven claim.
type SubmitInput struct {
	Identity     domain.IdentityRef
	Claim        domain.ClaimType
	Proof        domain.ProofBlob
	Declared     domain.Metrics
	ChannelID    string
	ChannelTitle string
	PublishedAt  *time.Time
}

// ProofSubmitter checks a proof's shape and writes it to the registry.
type ProofSubmitter struct {
	registry repository.Registry
	logger   *zap.Logger
}

// NewProofSubmitter builds a submitter over registry.
func NewProofSubmitter(registry repository.Registry, logger *zap.Logger) *ProofSubmitter {
	return &ProofSubmitter{registry: registry, logger: logger}
}

// Submit validates in and stores it. Registry refusals and local shape
// failures both surface as *SubmissionRejectedError.
func (s *ProofSubmitter) Submit(ctx context.Context, in SubmitInput) (*domain.VerifiedIdentityRecord, error) {
	code, err := in.Claim.WireCode()
	if err != nil {
		return nil, reject("unknown claim type")
	}
	if err := checkProofShape(in, code); err != nil {
		return nil, err
	}

	var title *string
	if in.ChannelTitle != "" {
		t := in.ChannelTitle
		title = &t
	}

	req := domain.StoreProofRequest{
		Identity:        in.Identity,
		ProofBytes:      in.Proof.Bytes,
		PublicInputs:    in.Proof.PublicInputs,
		ChannelID:       in.ChannelID,
		ChannelTitle:    title,
		ClaimTypeCode:   code,
		SubscriberCount: in.Declared.SubscriberCount,
		ViewCount:       in.Declared.ViewCount,
		VideoCount:      in.Declared.VideoCount,
		PublishedAt:     in.PublishedAt,
	}
	record, err := s.registry.StoreProof(ctx, req)
	if err != nil {
		if errors.Is(err, domain.ErrSubmissionRejected) {
			return nil, err
		}
		s.log().Warn("registry store failed", zap.String("claim", in.Claim.String()), zap.Error(err))
		return nil, fmt.Errorf("%w: %w", &domain.SubmissionRejectedError{Reason: "registry unavailable"}, err)
	}
	if record == nil {
		return nil, fmt.Errorf("%w: registry returned no record", &domain.SubmissionRejectedError{Reason: "registry unavailable"})
	}
	return record, nil
}

func checkProofShape(in SubmitInput, code uint8) error {
	if in.Identity.IsZero() {
		return reject("identity missing")
	}
	if in.ChannelID == "" {
		return reject("channel id missing")
	}
	if len(in.Proof.Bytes) == 0 {
		return reject("empty proof")
	}
	inputs, err := zk.DecodePublicInputs(in.Proof.PublicInputs)
	if err != nil {
		return reject("malformed public inputs")
	}
	if inputs.ClaimCode != code {
		return reject("claim type does not match proof")
	}
	if inputs.Thresholds != in.Declared {
		return reject("declared metrics do not match proof")
	}
	if inputs.IdentityHash.Cmp(zk.IdentityHash(in.Identity)) != 0 {
		return reject("proof is bound to another identity")
	}
	if inputs.ChannelHash.Cmp(zk.ChannelHash(in.ChannelID)) != 0 {
		return reject("proof is bound to another channel")
	}
	return nil
}

func reject(reason string) error {
	return &domain.SubmissionRejectedError{Reason: reason}
}

func (s *ProofSubmitter) log() *zap.Logger {
	if s != nil && s.logger != nil {
		return s.logger
	}
	return zap.L()
}
