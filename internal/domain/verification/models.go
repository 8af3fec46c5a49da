package verification

import (
	"fmt"
	"strings"
	"time"
)

// IdentityRef is the stable user identifier supplied by the identity subsystem.
type IdentityRef string

// String returns the raw identifier.
func (r IdentityRef) String() string { return string(r) }

// IsZero reports whether the reference is empty.
func (r IdentityRef) IsZero() bool { return strings.TrimSpace(string(r)) == "" }

// ClaimType enumerates the assertions a proof can attest to.
type ClaimType int

const (
	ClaimChannelOwnership ClaimType = iota + 1
	ClaimSubscriberCount
	ClaimViewCount
	ClaimVideoEngagement
	ClaimCombined
)

// MetricSet selects which account counters a claim discloses.
type MetricSet uint8

const (
	MetricSubscribers MetricSet = 1 << iota
	MetricViews
	MetricVideos
)

// Has reports whether m includes every metric in other.
func (m MetricSet) Has(other MetricSet) bool { return m&other == other }

type claimSpec struct {
	code      uint8
	name      string
	discloses MetricSet
}

// claimTable is the single source of truth for registry wire codes. Codes are
// append-only: never renumber an entry.
var claimTable = map[ClaimType]claimSpec{
	ClaimChannelOwnership: {code: 0, name: "channel_ownership"},
	ClaimSubscriberCount:  {code: 1, name: "subscriber_count", discloses: MetricSubscribers},
	ClaimViewCount:        {code: 2, name: "view_count", discloses: MetricViews},
	ClaimVideoEngagement:  {code: 3, name: "video_engagement", discloses: MetricVideos | MetricViews},
	ClaimCombined:         {code: 4, name: "combined", discloses: MetricSubscribers | MetricViews | MetricVideos},
}

// AllClaimTypes lists every known claim in wire-code order.
func AllClaimTypes() []ClaimType {
	return []ClaimType{
		ClaimChannelOwnership,
		ClaimSubscriberCount,
		ClaimViewCount,
		ClaimVideoEngagement,
		ClaimCombined,
	}
}

// Valid reports whether the claim has a wire code assigned.
func (c ClaimType) Valid() bool {
	_, ok := claimTable[c]
	return ok
}

// WireCode returns the registry encoding of the claim.
func (c ClaimType) WireCode() (uint8, error) {
	spec, ok := claimTable[c]
	if !ok {
		return 0, fmt.Errorf("claim %d: %w", int(c), ErrInvalidClaim)
	}
	return spec.code, nil
}

// Discloses returns the metrics published alongside a proof of this claim.
func (c ClaimType) Discloses() MetricSet {
	return claimTable[c].discloses
}

func (c ClaimType) String() string {
	if spec, ok := claimTable[c]; ok {
		return spec.name
	}
	return fmt.Sprintf("claim(%d)", int(c))
}

// ParseClaimType resolves a claim from its text name.
func ParseClaimType(raw string) (ClaimType, error) {
	name := strings.ToLower(strings.TrimSpace(raw))
	name = strings.ReplaceAll(name, "-", "_")
	for claim, spec := range claimTable {
		if spec.name == name {
			return claim, nil
		}
	}
	return 0, fmt.Errorf("claim %q: %w", raw, ErrInvalidClaim)
}

// ClaimTypeFromWireCode maps a registry code back to its claim.
func ClaimTypeFromWireCode(code uint8) (ClaimType, error) {
	for claim, spec := range claimTable {
		if spec.code == code {
			return claim, nil
		}
	}
	return 0, fmt.Errorf("wire code %d: %w", code, ErrInvalidClaim)
}

// MarshalText encodes the claim by name.
func (c ClaimType) MarshalText() ([]byte, error) {
	if !c.Valid() {
		return nil, fmt.Errorf("claim %d: %w", int(c), ErrInvalidClaim)
	}
	return []byte(c.String()), nil
}

// UnmarshalText decodes a claim name.
func (c *ClaimType) UnmarshalText(text []byte) error {
	parsed, err := ParseClaimType(string(text))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// OAuthSession is the correlation state for one in-flight authorization.
type OAuthSession struct {
	CorrelationToken string      `json:"correlation_token"`
	Identity         IdentityRef `json:"identity"`
	RequestedClaim   ClaimType   `json:"requested_claim"`
	CreatedAt        time.Time   `json:"created_at"`
}

// Expired reports whether the session is older than ttl at now.
func (s OAuthSession) Expired(now time.Time, ttl time.Duration) bool {
	if ttl <= 0 {
		return false
	}
	return now.Sub(s.CreatedAt) > ttl
}

// AccountWitness is the private channel data backing a proof. It must not be
// persisted or logged.
type AccountWitness struct {
	ChannelID             string
	Title                 string
	SubscriberCount       uint64
	ViewCount             uint64
	VideoCount            uint64
	HiddenSubscriberCount bool
	PublishedAt           *time.Time
}

// Shape describes which fields are populated without revealing their values.
func (w AccountWitness) Shape() map[string]bool {
	return map[string]bool{
		"channel_id":        w.ChannelID != "",
		"title":             w.Title != "",
		"subscribers":       w.SubscriberCount > 0,
		"subscribers_known": !w.HiddenSubscriberCount,
		"views":             w.ViewCount > 0,
		"videos":            w.VideoCount > 0,
		"published_at":      w.PublishedAt != nil,
	}
}

// Disclosed returns the metrics published for claim, zeroing the rest.
func (w AccountWitness) Disclosed(claim ClaimType) Metrics {
	set := claim.Discloses()
	var m Metrics
	if set.Has(MetricSubscribers) {
		m.SubscriberCount = w.SubscriberCount
	}
	if set.Has(MetricViews) {
		m.ViewCount = w.ViewCount
	}
	if set.Has(MetricVideos) {
		m.VideoCount = w.VideoCount
	}
	return m
}

// ProofBlob is a portable proof with its ordered public inputs. Each public
// input is a 32-byte big-endian scalar field element.
type ProofBlob struct {
	Bytes        []byte   `json:"proof_bytes"`
	PublicInputs [][]byte `json:"public_inputs"`
}

// Metrics are the public counters stored with a verified identity.
type Metrics struct {
	SubscriberCount uint64 `json:"subscriber_count"`
	ViewCount       uint64 `json:"view_count"`
	VideoCount      uint64 `json:"video_count"`
}

// VerifiedIdentityRecord is the registry's record of a proven claim.
type VerifiedIdentityRecord struct {
	Identity        IdentityRef `json:"identity"`
	ChannelID       string      `json:"channel_id"`
	ChannelName     *string     `json:"channel_name,omitempty"`
	ClaimType       ClaimType   `json:"claim_type"`
	SubscriberCount uint64      `json:"subscriber_count"`
	ViewCount       uint64      `json:"view_count"`
	VideoCount      uint64      `json:"video_count"`
	PublishedAt     *time.Time  `json:"published_at,omitempty"`
	ProvenAt        time.Time   `json:"proven_at"`
}

// Metrics projects the record's public counters.
func (r VerifiedIdentityRecord) Metrics() Metrics {
	return Metrics{
		SubscriberCount: r.SubscriberCount,
		ViewCount:       r.ViewCount,
		VideoCount:      r.VideoCount,
	}
}

// StoreProofRequest is the registry write payload.
type StoreProofRequest struct {
	Identity        IdentityRef
	ProofBytes      []byte
	PublicInputs    [][]byte
	ChannelID       string
	ChannelTitle    *string
	ClaimTypeCode   uint8
	SubscriberCount uint64
	ViewCount       uint64
	VideoCount      uint64
	PublishedAt     *time.Time
}

// Status is the three-valued verification state shown to users.
type Status string

const (
	StatusPending  Status = "pending"
	StatusVerified Status = "verified"
	StatusFailed   Status = "failed"
)

// VerificationResult is the UI-facing outcome of a verification attempt.
type VerificationResult struct {
	IsVerified bool                    `json:"is_verified"`
	Status     Status                  `json:"status"`
	Identity   *VerifiedIdentityRecord `json:"identity,omitempty"`
	Metrics    *Metrics                `json:"metrics,omitempty"`
	Error      string                  `json:"error,omitempty"`
}
