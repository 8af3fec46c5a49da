package repository

import (
	"errors"

	"github.com/smallbiznis/valora-verify/internal/domain/verification"
	"github.com/smallbiznis/valora-verify/internal/zk"
)

// ProofVerifier checks a proof and returns its decoded public inputs.
type ProofVerifier interface {
	Verify(proofBytes []byte, publicInputs [][]byte) (zk.PublicInputs, error)
}

// CheckProof accepts req only when the proof verifies and its public inputs
// match the identity, channel, claim and metrics being stored.
func CheckProof(v ProofVerifier, req verification.StoreProofRequest) error {
	if req.Identity.IsZero() {
		return &verification.SubmissionRejectedError{Reason: "identity missing"}
	}
	if req.ChannelID == "" {
		return &verification.SubmissionRejectedError{Reason: "channel id missing"}
	}
	if _, err := verification.ClaimTypeFromWireCode(req.ClaimTypeCode); err != nil {
		return &verification.SubmissionRejectedError{Reason: "unknown claim type"}
	}
	if v == nil {
		return nil
	}

	inputs, err := v.Verify(req.ProofBytes, req.PublicInputs)
	switch {
	case errors.Is(err, zk.ErrInvalidPublicInputs):
		return &verification.SubmissionRejectedError{Reason: "malformed public inputs"}
	case err != nil:
		return &verification.SubmissionRejectedError{Reason: "proof does not verify"}
	}

	declared := verification.Metrics{
		SubscriberCount: req.SubscriberCount,
		ViewCount:       req.ViewCount,
		VideoCount:      req.VideoCount,
	}
	switch {
	case inputs.ClaimCode != req.ClaimTypeCode:
		return &verification.SubmissionRejectedError{Reason: "claim type does not match proof"}
	case inputs.IdentityHash.Cmp(zk.IdentityHash(req.Identity)) != 0:
		return &verification.SubmissionRejectedError{Reason: "proof is bound to another identity"}
	case inputs.ChannelHash.Cmp(zk.ChannelHash(req.ChannelID)) != 0:
		return &verification.SubmissionRejectedError{Reason: "proof is bound to another channel"}
	case inputs.Thresholds != declared:
		return &verification.SubmissionRejectedError{Reason: "declared metrics do not match proof"}
	}
	return nil
}
