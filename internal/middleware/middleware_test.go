package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/smallbiznis/valora-verify/internal/config"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newLimitedRouter(limiter *RateLimiter, scope string) *gin.Engine {
	r := gin.New()
	r.Use(limiter.HandlerBy(scope, func(c *gin.Context) string { return c.GetHeader("X-Key") }))
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })
	return r
}

func hit(r http.Handler, key string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if key != "" {
		req.Header.Set("X-Key", key)
	}
	r.ServeHTTP(w, req)
	return w
}

func TestRateLimiter_ThrottlesPerKey(t *testing.T) {
	var rejected []string
	limiter := NewRateLimiter(10, WithRejectHook(func(scope string) { rejected = append(rejected, scope) }))
	r := newLimitedRouter(limiter, "start")

	require.Equal(t, http.StatusOK, hit(r, "a").Code)
	limited := hit(r, "a")
	require.Equal(t, http.StatusTooManyRequests, limited.Code)
	require.NotEmpty(t, limited.Header().Get("Retry-After"))
	require.Contains(t, limited.Body.String(), "rate_limited")
	require.Equal(t, http.StatusOK, hit(r, "b").Code)
	require.Equal(t, []string{"start"}, rejected)
}

func TestRateLimiter_ScopesAreIndependent(t *testing.T) {
	limiter := NewRateLimiter(10)
	start := newLimitedRouter(limiter, "start")
	callback := newLimitedRouter(limiter, "callback")

	require.Equal(t, http.StatusOK, hit(start, "a").Code)
	require.Equal(t, http.StatusTooManyRequests, hit(start, "a").Code)
	require.Equal(t, http.StatusOK, hit(callback, "a").Code)
	require.Equal(t, 2, limiter.Len())
}

func TestRateLimiter_EmptyKeyFallsBackToClientIP(t *testing.T) {
	limiter := NewRateLimiter(10)
	r := newLimitedRouter(limiter, "start")

	require.Equal(t, http.StatusOK, hit(r, "").Code)
	require.Equal(t, http.StatusTooManyRequests, hit(r, "").Code)
}

func TestRateLimiter_SweepsIdleBuckets(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	limiter := NewRateLimiter(60, WithIdleTimeout(time.Minute))
	limiter.now = func() time.Time { return now }
	r := newLimitedRouter(limiter, "start")

	hit(r, "a")
	hit(r, "b")
	require.Equal(t, 2, limiter.Len())

	now = now.Add(2 * time.Minute)
	hit(r, "c")
	require.Equal(t, 1, limiter.Len())
}

func TestRateLimiter_DisabledIsPassThrough(t *testing.T) {
	limiter := NewRateLimiter(0)
	require.Nil(t, limiter)
	require.Zero(t, limiter.Len())

	r := gin.New()
	r.Use(limiter.Handler("callback"))
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })
	for i := 0; i < 5; i++ {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
		require.Equal(t, http.StatusOK, w.Code)
	}
}

func corsRouter(cfg config.Config) *gin.Engine {
	r := gin.New()
	r.Use(CORS(cfg))
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.OPTIONS("/", func(c *gin.Context) { c.Status(http.StatusOK) })
	return r
}

func corsRequest(r http.Handler, method, origin string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, "/", nil)
	req.Header.Set("Origin", origin)
	r.ServeHTTP(w, req)
	return w
}

func TestCORS(t *testing.T) {
	r := corsRouter(config.Config{
		CORSAllowedOrigins: []string{"https://app.valora.test"},
		CORSAllowedMethods: []string{"GET"},
		CORSAllowedHeaders: []string{"Authorization"},
	})

	w := corsRequest(r, http.MethodGet, "https://APP.valora.test")
	require.Equal(t, "https://APP.valora.test", w.Header().Get("Access-Control-Allow-Origin"))
	require.Equal(t, "Retry-After, X-Request-ID", w.Header().Get("Access-Control-Expose-Headers"))

	w = corsRequest(r, http.MethodOptions, "https://app.valora.test")
	require.Equal(t, http.StatusNoContent, w.Code)
	require.Equal(t, "GET", w.Header().Get("Access-Control-Allow-Methods"))
	require.Equal(t, "Authorization", w.Header().Get("Access-Control-Allow-Headers"))
	require.Equal(t, "600", w.Header().Get("Access-Control-Max-Age"))

	w = corsRequest(r, http.MethodOptions, "https://evil.test")
	require.Equal(t, http.StatusNoContent, w.Code)
	require.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORS_TrustsResultRedirectOrigin(t *testing.T) {
	policy := NewCORSPolicy(config.Config{
		CORSAllowedOrigins: []string{"https://admin.valora.test"},
		ResultRedirectURL:  "https://creators.valora.test/verify/done?tab=youtube",
	})

	require.True(t, policy.Allows("https://creators.valora.test"))
	require.True(t, policy.Allows("https://admin.valora.test"))
	require.False(t, policy.Allows("https://creators.valora.test.evil"))
}

func TestCORS_WildcardWithCredentialsEchoesOrigin(t *testing.T) {
	r := corsRouter(config.Config{
		CORSAllowedOrigins:   []string{"*"},
		CORSAllowCredentials: true,
	})

	w := corsRequest(r, http.MethodGet, "https://anywhere.test")
	require.Equal(t, "https://anywhere.test", w.Header().Get("Access-Control-Allow-Origin"))
	require.Equal(t, "true", w.Header().Get("Access-Control-Allow-Credentials"))

	r = corsRouter(config.Config{CORSAllowedOrigins: []string{"*"}})
	w = corsRequest(r, http.MethodGet, "https://anywhere.test")
	require.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}
