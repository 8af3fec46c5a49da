package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"

	"github.com/smallbiznis/valora-verify/internal/config"
	"github.com/smallbiznis/valora-verify/internal/http/handler"
	httpmiddleware "github.com/smallbiznis/valora-verify/internal/http/middleware"
	"github.com/smallbiznis/valora-verify/internal/metrics"
	"github.com/smallbiznis/valora-verify/internal/middleware"
)

// RouterParams groups router dependencies. Gateway is nil unless the registry
// gateway is enabled; a nil RateLimiter disables throttling.
type RouterParams struct {
	Config      config.Config
	Verify      *handler.VerifyHandler
	Gateway     *handler.RegistryHandler
	Auth        *httpmiddleware.Auth
	RateLimiter *middleware.RateLimiter
	Recorder    *metrics.Recorder
	Logger      *zap.Logger
}

// NewRouter wires Gin routes and middleware.
func NewRouter(p RouterParams) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(otelgin.Middleware(p.Config.ServiceName))
	r.Use(httpmiddleware.RequestLogger(p.Logger))
	r.Use(middleware.CORS(p.Config))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if p.Recorder != nil {
		r.GET("/metrics", gin.WrapH(p.Recorder.Handler()))
	}

	verify := r.Group("/verify")
	{
		youtube := verify.Group("/youtube")
		{
			youtube.GET("/start", p.Auth.RequireIdentity, p.RateLimiter.HandlerBy("start", httpmiddleware.IdentityKey), p.Verify.Start)
			youtube.GET("/callback", p.RateLimiter.Handler("callback"), p.Verify.Callback)
		}

		verify.GET("/identity", p.Auth.RequireIdentity, p.Verify.Identity)
		verify.GET("/identities/:identity", p.Verify.IdentityByRef)
		verify.GET("/channels/:channel_id/metrics", p.Verify.ChannelMetrics)
		verify.GET("/zk/verifying-key", p.Verify.VerifyingKey)
	}

	if p.Gateway != nil {
		v1 := r.Group("/v1")
		{
			v1.POST("/proofs", p.Auth.RequireIdentity, p.Gateway.StoreProof)
			v1.GET("/identities/:identity", p.Gateway.Identity)
			v1.GET("/channels/:channel_id/metrics", p.Gateway.Metrics)
		}
	}

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "error_description": "Route not found."})
	})

	return r
}
