package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/smallbiznis/valora-verify/internal/domain/verification"
	"github.com/smallbiznis/valora-verify/internal/jwt"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type staticResolver struct{}

func (staticResolver) Resolve(_ context.Context, token string) (verification.IdentityRef, *jwt.IdentityClaims, error) {
	if token != "good" {
		return "", nil, errors.New("bad token")
	}
	return "abc", &jwt.IdentityClaims{Name: "Creator"}, nil
}

func TestRequireIdentity(t *testing.T) {
	auth := &Auth{Resolver: staticResolver{}}
	r := gin.New()
	r.GET("/me", auth.RequireIdentity, func(c *gin.Context) {
		identity, ok := GetIdentity(c)
		require.True(t, ok)
		claims, ok := GetIdentityClaims(c)
		require.True(t, ok)
		c.JSON(http.StatusOK, gin.H{"identity": identity, "name": claims.Name, "key": IdentityKey(c)})
	})

	cases := []struct {
		header string
		status int
	}{
		{"", http.StatusUnauthorized},
		{"Basic Zm9v", http.StatusUnauthorized},
		{"Bearer nope", http.StatusUnauthorized},
		{"Bearer good", http.StatusOK},
	}
	for _, tc := range cases {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/me", nil)
		if tc.header != "" {
			req.Header.Set("Authorization", tc.header)
		}
		r.ServeHTTP(w, req)
		require.Equal(t, tc.status, w.Code, tc.header)
	}
}

func TestRequestLogger_RedactsOAuthParams(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	r := gin.New()
	r.Use(RequestLogger(zap.New(core)))
	r.GET("/verify/youtube/callback", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/verify/youtube/callback?code=4/secret&state=xyz&scope=a", nil))
	require.NotEmpty(t, w.Header().Get("X-Request-ID"))

	entries := logs.FilterMessage("http_request").All()
	require.Len(t, entries, 1)
	path := entries[0].ContextMap()["path"].(string)
	require.NotContains(t, path, "4/secret")
	require.NotContains(t, path, "xyz")
	require.Contains(t, path, "scope=a")
}

func TestRequestLogger_RecordsOutcome(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	r := gin.New()
	r.Use(RequestLogger(zap.New(core)))
	r.GET("/verify/youtube/callback", func(c *gin.Context) {
		SetOutcome(c, "view_count", "exchange_failed")
		c.Status(http.StatusBadGateway)
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/verify/youtube/callback", nil)
	req.Header.Set("X-Request-ID", "req-42")
	r.ServeHTTP(w, req)
	require.Equal(t, "req-42", w.Header().Get("X-Request-ID"))

	entries := logs.FilterMessage("http_request").All()
	require.Len(t, entries, 1)
	require.Equal(t, zap.ErrorLevel, entries[0].Level)
	fields := entries[0].ContextMap()
	require.Equal(t, "req-42", fields["request_id"])
	require.Equal(t, "view_count", fields["claim"])
	require.Equal(t, "exchange_failed", fields["outcome"])
}

func TestRequestLogger_HealthChecksAreQuiet(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	r := gin.New()
	r.Use(RequestLogger(zap.New(core)))
	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, w.Code)
	require.Zero(t, logs.Len())
}
