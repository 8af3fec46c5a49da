// Package jwt validates the bearer tokens that carry a caller's identity.
package jwt

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	gojose "github.com/go-jose/go-jose/v4"
	gojwt "github.com/go-jose/go-jose/v4/jwt"
	"github.com/google/uuid"

	"github.com/smallbiznis/valora-verify/internal/domain/verification"
)

const minSecretBytes = 32

// ErrWeakSecret rejects signing secrets shorter than minSecretBytes.
var ErrWeakSecret = errors.New("jwt: signing secret too short")

// Generator signs and validates identity tokens with a shared HS256 secret.
type Generator struct {
	secret []byte
	kid    string
	issuer string
	ttl    time.Duration
}

// NewGenerator constructs a JWT generator.
func NewGenerator(secret []byte, issuer string, ttl time.Duration) (*Generator, error) {
	if len(secret) < minSecretBytes {
		return nil, ErrWeakSecret
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Generator{
		secret: append([]byte(nil), secret...),
		kid:    uuid.NewSHA1(uuid.NameSpaceOID, secret).String(),
		issuer: issuer,
		ttl:    ttl,
	}, nil
}

// IdentityClaims represent the custom JWT payload.
type IdentityClaims struct {
	Name  string `json:"name,omitempty"`
	Scope string `json:"scope,omitempty"`
}

// Issue produces a signed token whose subject is identity.
func (g *Generator) Issue(ctx context.Context, identity verification.IdentityRef, name string) (string, error) {
	if identity.IsZero() {
		return "", verification.ErrIdentityMissing
	}
	signer, err := gojose.NewSigner(gojose.SigningKey{Algorithm: gojose.HS256, Key: g.secret}, (&gojose.SignerOptions{}).WithType("JWT").WithHeader("kid", g.kid))
	if err != nil {
		return "", fmt.Errorf("new signer: %w", err)
	}

	now := time.Now().UTC()
	stdClaims := gojwt.Claims{
		ID:        uuid.NewString(),
		Subject:   identity.String(),
		Issuer:    g.issuer,
		IssuedAt:  gojwt.NewNumericDate(now),
		Expiry:    gojwt.NewNumericDate(now.Add(g.ttl)),
		NotBefore: gojwt.NewNumericDate(now),
	}
	custom := IdentityClaims{Name: name, Scope: "verify"}

	token, err := gojwt.Signed(signer).Claims(stdClaims).Claims(custom).Serialize()
	if err != nil {
		return "", fmt.Errorf("serialize jwt: %w", err)
	}
	return token, nil
}

// Resolve validates token and returns the identity it names.
func (g *Generator) Resolve(ctx context.Context, token string) (verification.IdentityRef, *IdentityClaims, error) {
	parsed, err := gojwt.ParseSigned(strings.TrimSpace(token), []gojose.SignatureAlgorithm{gojose.HS256})
	if err != nil {
		return "", nil, fmt.Errorf("parse token: %w", err)
	}

	var std gojwt.Claims
	var custom IdentityClaims
	if err := parsed.Claims(g.secret, &std, &custom); err != nil {
		return "", nil, fmt.Errorf("verify token: %w", err)
	}
	if err := std.ValidateWithLeeway(gojwt.Expected{Issuer: g.issuer, Time: time.Now()}, 30*time.Second); err != nil {
		return "", nil, fmt.Errorf("validate claims: %w", err)
	}

	identity := verification.IdentityRef(std.Subject)
	if identity.IsZero() {
		return "", nil, verification.ErrIdentityMissing
	}
	return identity, &custom, nil
}
