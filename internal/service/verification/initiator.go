package verification

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	domain "github.com/smallbiznis/valora-verify/internal/domain/verification"
	"github.com/smallbiznis/valora-verify/internal/telemetry"
)

const correlationTokenBytes = 32

// AuthorizationRequest is everything the UI needs to send the user to the
// provider's consent screen.
type AuthorizationRequest struct {
	URL       string    `json:"authorization_url"`
	Endpoint  string    `json:"endpoint"`
	Scopes    []string  `json:"scopes"`
	State     string    `json:"state"`
	Claim     string    `json:"claim"`
	ExpiresAt time.Time `json:"expires_at"`
}

// StartVerification opens an authorization handshake for identity. Any live
// session the identity already holds is replaced.
func (s *Service) StartVerification(ctx context.Context, identity domain.IdentityRef, claim domain.ClaimType) (*AuthorizationRequest, error) {
	ctx, span := s.startSpan(ctx, "Verification.StartVerification")
	defer span.End()

	if identity.IsZero() {
		return nil, domain.ErrIdentityMissing
	}
	if !claim.Valid() {
		return nil, fmt.Errorf("start verification: %w", domain.ErrInvalidClaim)
	}
	span.SetAttributes(telemetry.ClaimKey.String(claim.String()))

	token, err := secureRandomString(correlationTokenBytes)
	if err != nil {
		return nil, fmt.Errorf("generate state: %w", err)
	}

	authURL, err := url.Parse(s.provider.AuthURL)
	if err != nil {
		return nil, fmt.Errorf("parse auth url: %w", err)
	}

	scopes := append([]string{}, s.provider.Scopes...)
	params := authURL.Query()
	params.Set("client_id", s.provider.ClientID)
	params.Set("redirect_uri", s.provider.RedirectURI)
	params.Set("scope", strings.Join(scopes, " "))
	params.Set("response_type", "code")
	params.Set("state", token)
	params.Set("access_type", "offline")
	params.Set("prompt", "consent")
	params.Set("include_granted_scopes", "true")
	for k, v := range s.provider.Extra {
		key := strings.TrimSpace(k)
		if key == "" || strings.TrimSpace(v) == "" {
			continue
		}
		params.Set(key, v)
	}
	authURL.RawQuery = params.Encode()

	now := s.now().UTC()
	session := domain.OAuthSession{
		CorrelationToken: token,
		Identity:         identity,
		RequestedClaim:   claim,
		CreatedAt:        now,
	}
	if err := s.sessions.SaveSession(ctx, session, s.ttl); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("persist session: %w", err)
	}

	s.recorder.Started(claim.String())
	s.log().Info("verification started",
		zap.String("identity", identity.String()),
		zap.String("claim", claim.String()),
	)

	endpoint := *authURL
	endpoint.RawQuery = ""
	return &AuthorizationRequest{
		URL:       authURL.String(),
		Endpoint:  endpoint.String(),
		Scopes:    scopes,
		State:     token,
		Claim:     claim.String(),
		ExpiresAt: now.Add(s.ttl),
	}, nil
}

func secureRandomString(size int) (string, error) {
	if size <= 0 {
		size = correlationTokenBytes
	}
	buf := make([]byte, size)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
