package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/smallbiznis/valora-verify/internal/domain/verification"
	"github.com/smallbiznis/valora-verify/internal/jwt"
)

const (
	identityKey       = "identity"
	identityClaimsKey = "identityClaims"
)

// IdentityResolver maps a bearer token to the caller's identity.
type IdentityResolver interface {
	Resolve(ctx context.Context, token string) (verification.IdentityRef, *jwt.IdentityClaims, error)
}

// Auth validates the Authorization header and attaches the caller identity.
type Auth struct {
	Resolver IdentityResolver
}

// RequireIdentity ensures the request carries a valid identity token.
func (m *Auth) RequireIdentity(c *gin.Context) {
	header := c.GetHeader("Authorization")
	if header == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "identity_missing", "error_description": "Authorization header required."})
		return
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "identity_missing", "error_description": "Bearer token required."})
		return
	}
	identity, claims, err := m.Resolver.Resolve(c.Request.Context(), parts[1])
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "identity_missing", "error_description": "Invalid identity token."})
		return
	}
	c.Set(identityKey, identity)
	c.Set(identityClaimsKey, claims)
	c.Next()
}

// GetIdentity returns the identity attached by RequireIdentity.
func GetIdentity(c *gin.Context) (verification.IdentityRef, bool) {
	value, ok := c.Get(identityKey)
	if !ok {
		return "", false
	}
	identity, ok := value.(verification.IdentityRef)
	return identity, ok && !identity.IsZero()
}

// GetIdentityClaims returns the custom token claims.
func GetIdentityClaims(c *gin.Context) (*jwt.IdentityClaims, bool) {
	value, ok := c.Get(identityClaimsKey)
	if !ok {
		return nil, false
	}
	claims, ok := value.(*jwt.IdentityClaims)
	return claims, ok
}

// IdentityKey buckets requests by caller identity for rate limiting.
func IdentityKey(c *gin.Context) string {
	identity, _ := GetIdentity(c)
	return identity.String()
}
