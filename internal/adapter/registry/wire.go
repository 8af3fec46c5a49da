package registry

import (
	"time"

	"github.com/smallbiznis/valora-verify/internal/domain/verification"
)

// ProofPayload is the JSON body of POST /v1/proofs. Byte fields travel as
// standard base64.
type ProofPayload struct {
	Identity        string     `json:"identity"`
	ProofBytes      []byte     `json:"proof_bytes"`
	PublicInputs    [][]byte   `json:"public_inputs"`
	ChannelID       string     `json:"channel_id"`
	ChannelTitle    *string    `json:"channel_title,omitempty"`
	ClaimTypeCode   uint8      `json:"claim_type_code"`
	SubscriberCount uint64     `json:"subscriber_count"`
	ViewCount       uint64     `json:"view_count"`
	VideoCount      uint64     `json:"video_count"`
	PublishedAt     *time.Time `json:"published_at,omitempty"`
}

// RejectionBody is returned with 4xx statuses.
type RejectionBody struct {
	Error  string `json:"error"`
	Reason string `json:"reason"`
}

// IdentityBody is the JSON record returned by GET /v1/identities/{id}.
type IdentityBody struct {
	Identity        string     `json:"identity"`
	ChannelID       string     `json:"channel_id"`
	ChannelName     *string    `json:"channel_name,omitempty"`
	ClaimTypeCode   uint8      `json:"claim_type_code"`
	SubscriberCount uint64     `json:"subscriber_count"`
	ViewCount       uint64     `json:"view_count"`
	VideoCount      uint64     `json:"video_count"`
	PublishedAt     *time.Time `json:"published_at,omitempty"`
	ProvenAt        time.Time  `json:"proven_at"`
}

// PayloadFromRequest converts a store request to its wire form.
func PayloadFromRequest(req verification.StoreProofRequest) ProofPayload {
	return ProofPayload{
		Identity:        req.Identity.String(),
		ProofBytes:      req.ProofBytes,
		PublicInputs:    req.PublicInputs,
		ChannelID:       req.ChannelID,
		ChannelTitle:    req.ChannelTitle,
		ClaimTypeCode:   req.ClaimTypeCode,
		SubscriberCount: req.SubscriberCount,
		ViewCount:       req.ViewCount,
		VideoCount:      req.VideoCount,
		PublishedAt:     req.PublishedAt,
	}
}

// Request converts the payload back into a store request.
func (p ProofPayload) Request() verification.StoreProofRequest {
	return verification.StoreProofRequest{
		Identity:        verification.IdentityRef(p.Identity),
		ProofBytes:      p.ProofBytes,
		PublicInputs:    p.PublicInputs,
		ChannelID:       p.ChannelID,
		ChannelTitle:    p.ChannelTitle,
		ClaimTypeCode:   p.ClaimTypeCode,
		SubscriberCount: p.SubscriberCount,
		ViewCount:       p.ViewCount,
		VideoCount:      p.VideoCount,
		PublishedAt:     p.PublishedAt,
	}
}

// IdentityBodyFromRecord renders a record for the wire.
func IdentityBodyFromRecord(r verification.VerifiedIdentityRecord) (IdentityBody, error) {
	code, err := r.ClaimType.WireCode()
	if err != nil {
		return IdentityBody{}, err
	}
	return IdentityBody{
		Identity:        r.Identity.String(),
		ChannelID:       r.ChannelID,
		ChannelName:     r.ChannelName,
		ClaimTypeCode:   code,
		SubscriberCount: r.SubscriberCount,
		ViewCount:       r.ViewCount,
		VideoCount:      r.VideoCount,
		PublishedAt:     r.PublishedAt,
		ProvenAt:        r.ProvenAt,
	}, nil
}

// Record converts the body into a domain record.
func (b IdentityBody) Record() (verification.VerifiedIdentityRecord, error) {
	claim, err := verification.ClaimTypeFromWireCode(b.ClaimTypeCode)
	if err != nil {
		return verification.VerifiedIdentityRecord{}, err
	}
	return verification.VerifiedIdentityRecord{
		Identity:        verification.IdentityRef(b.Identity),
		ChannelID:       b.ChannelID,
		ChannelName:     b.ChannelName,
		ClaimType:       claim,
		SubscriberCount: b.SubscriberCount,
		ViewCount:       b.ViewCount,
		VideoCount:      b.VideoCount,
		PublishedAt:     b.PublishedAt,
		ProvenAt:        b.ProvenAt,
	}, nil
}
