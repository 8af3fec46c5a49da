package middleware

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/smallbiznis/valora-verify/internal/config"
)

// exposedHeaders are readable by the verification UI on cross-origin calls.
var exposedHeaders = []string{"Retry-After", "X-Request-ID"}

const preflightMaxAge = 600

// CORSPolicy is the compiled cross-origin policy.
type CORSPolicy struct {
	origins     map[string]struct{}
	anyOrigin   bool
	credentials bool
	methods     string
	headers     string
	expose      string
}

// NewCORSPolicy compiles the configured policy. The origin of
// RESULT_REDIRECT_URL is always allowed.
func NewCORSPolicy(cfg config.Config) *CORSPolicy {
	p := &CORSPolicy{
		origins:     make(map[string]struct{}),
		credentials: cfg.CORSAllowCredentials,
		methods:     strings.Join(cfg.CORSAllowedMethods, ", "),
		headers:     strings.Join(cfg.CORSAllowedHeaders, ", "),
		expose:      strings.Join(exposedHeaders, ", "),
	}
	for _, origin := range cfg.CORSAllowedOrigins {
		origin = strings.TrimSpace(origin)
		if origin == "*" {
			p.anyOrigin = true
			continue
		}
		if origin != "" {
			p.origins[strings.ToLower(origin)] = struct{}{}
		}
	}
	if origin := originOf(cfg.ResultRedirectURL); origin != "" {
		p.origins[origin] = struct{}{}
	}
	return p
}

// Allows reports whether origin may call the API.
func (p *CORSPolicy) Allows(origin string) bool {
	if p.anyOrigin {
		return true
	}
	_, ok := p.origins[strings.ToLower(origin)]
	return ok
}

// Handler applies the policy. Preflights from unknown origins end with 204
// and no CORS headers.
func (p *CORSPolicy) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if origin == "" {
			c.Next()
			return
		}
		preflight := c.Request.Method == http.MethodOptions

		if !p.Allows(origin) {
			if preflight {
				c.AbortWithStatus(http.StatusNoContent)
				return
			}
			c.Next()
			return
		}

		header := c.Writer.Header()
		header.Add("Vary", "Origin")
		if p.anyOrigin && !p.credentials {
			header.Set("Access-Control-Allow-Origin", "*")
		} else {
			header.Set("Access-Control-Allow-Origin", origin)
		}
		if p.credentials {
			header.Set("Access-Control-Allow-Credentials", "true")
		}

		if preflight {
			header.Set("Access-Control-Allow-Methods", p.methods)
			header.Set("Access-Control-Allow-Headers", p.headers)
			header.Set("Access-Control-Max-Age", strconv.Itoa(preflightMaxAge))
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		header.Set("Access-Control-Expose-Headers", p.expose)
		c.Next()
	}
}

// CORS is shorthand for NewCORSPolicy(cfg).Handler().
func CORS(cfg config.Config) gin.HandlerFunc {
	return NewCORSPolicy(cfg).Handler()
}

func originOf(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return ""
	}
	return strings.ToLower(u.Scheme + "://" + u.Host)
}
