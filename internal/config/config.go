package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	domainoauth "github.com/smallbiznis/valora-verify/internal/domain/oauth"
)

// Registry backends.
const (
	RegistryPostgres = "postgres"
	RegistryHTTP     = "http"
	RegistryMemory   = "memory"
)

// Session store backends.
const (
	SessionStoreRedis  = "redis"
	SessionStoreMemory = "memory"
)

var defaultYouTubeScopes = []string{
	"https://www.googleapis.com/auth/youtube.readonly",
	"https://www.googleapis.com/auth/youtube.channel-memberships.creator",
}

// Config contains runtime configuration values.
type Config struct {
	Environment          string
	HTTPPort             string
	ServiceName          string
	NodeID               int64
	SessionStore         string
	SessionTTL           time.Duration
	RedisAddr            string
	RedisPassword        string
	RedisDB              int
	RegistryBackend      string
	DatabaseURL          string
	RegistryURL          string
	RegistryGateway      bool
	RegistryCacheTTL     time.Duration
	YouTubeClientID      string
	YouTubeClientSecret  string
	YouTubeRedirectURI   string
	YouTubeAuthURL       string
	YouTubeTokenURL      string
	YouTubeChannelsURL   string
	YouTubeScopes        []string
	ProviderTimeout      time.Duration
	ZKKeyDir             string
	ResultRedirectURL    string
	IdentityTokenSecret  string
	IdentityTokenIssuer  string
	RateLimitRPM         int
	TelemetryEndpoint    string
	TelemetryInsecure    bool
	TraceSampleRatio     float64
	CORSAllowedOrigins   []string
	CORSAllowedMethods   []string
	CORSAllowedHeaders   []string
	CORSAllowCredentials bool
}

// Load reads configuration from environment variables with sane defaults.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		Environment:          getEnv("APP_ENV", "development"),
		HTTPPort:             getEnv("HTTP_PORT", "8080"),
		ServiceName:          getEnv("SERVICE_NAME", "valora-verify"),
		NodeID:               int64(getInt("NODE_ID", 1)),
		SessionStore:         strings.ToLower(getEnv("SESSION_STORE", SessionStoreRedis)),
		SessionTTL:           getDuration("SESSION_TTL", 10*time.Minute),
		RedisAddr:            getEnv("REDIS_ADDR", "127.0.0.1:6379"),
		RedisPassword:        os.Getenv("REDIS_PASSWORD"),
		RedisDB:              getInt("REDIS_DB", 0),
		RegistryBackend:      strings.ToLower(getEnv("REGISTRY_BACKEND", RegistryPostgres)),
		DatabaseURL:          os.Getenv("DATABASE_URL"),
		RegistryURL:          os.Getenv("REGISTRY_URL"),
		RegistryGateway:      getBool("REGISTRY_GATEWAY_ENABLED", false),
		RegistryCacheTTL:     getDuration("REGISTRY_CACHE_TTL", 30*time.Second),
		YouTubeClientID:      strings.TrimSpace(os.Getenv("YOUTUBE_CLIENT_ID")),
		YouTubeClientSecret:  os.Getenv("YOUTUBE_CLIENT_SECRET"),
		YouTubeRedirectURI:   strings.TrimSpace(os.Getenv("YOUTUBE_REDIRECT_URI")),
		YouTubeAuthURL:       getEnv("YOUTUBE_AUTH_URL", "https://accounts.google.com/o/oauth2/v2/auth"),
		YouTubeTokenURL:      getEnv("YOUTUBE_TOKEN_URL", "https://oauth2.googleapis.com/token"),
		YouTubeChannelsURL:   getEnv("YOUTUBE_CHANNELS_URL", "https://www.googleapis.com/youtube/v3/channels"),
		YouTubeScopes:        getList("YOUTUBE_SCOPES", defaultYouTubeScopes),
		ProviderTimeout:      getDuration("PROVIDER_TIMEOUT", 10*time.Second),
		ZKKeyDir:             os.Getenv("ZK_KEY_DIR"),
		ResultRedirectURL:    os.Getenv("RESULT_REDIRECT_URL"),
		IdentityTokenSecret:  os.Getenv("IDENTITY_TOKEN_SECRET"),
		IdentityTokenIssuer:  getEnv("IDENTITY_TOKEN_ISSUER", "valora"),
		RateLimitRPM:         getInt("RATE_LIMIT_RPM", 600),
		TelemetryEndpoint:    os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		TelemetryInsecure:    getBool("OTEL_EXPORTER_OTLP_INSECURE", true),
		TraceSampleRatio:     getFloat("TRACE_SAMPLE_RATIO", 1),
		CORSAllowedOrigins:   getList("CORS_ALLOWED_ORIGINS", []string{"*"}),
		CORSAllowedMethods:   getList("CORS_ALLOWED_METHODS", []string{"GET", "POST", "OPTIONS"}),
		CORSAllowedHeaders:   getList("CORS_ALLOWED_HEADERS", []string{"Authorization", "Content-Type"}),
		CORSAllowCredentials: getBool("CORS_ALLOW_CREDENTIALS", false),
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Provider projects the YouTube client registration.
func (c Config) Provider() domainoauth.ProviderConfig {
	return domainoauth.ProviderConfig{
		Name:         "youtube",
		ClientID:     c.YouTubeClientID,
		ClientSecret: c.YouTubeClientSecret,
		AuthURL:      c.YouTubeAuthURL,
		TokenURL:     c.YouTubeTokenURL,
		ChannelsURL:  c.YouTubeChannelsURL,
		RedirectURI:  c.YouTubeRedirectURI,
		Scopes:       append([]string(nil), c.YouTubeScopes...),
	}
}

func (c Config) validate() error {
	if c.YouTubeClientID == "" {
		return fmt.Errorf("YOUTUBE_CLIENT_ID is required")
	}
	if c.YouTubeRedirectURI == "" {
		return fmt.Errorf("YOUTUBE_REDIRECT_URI is required")
	}
	if strings.TrimSpace(c.IdentityTokenSecret) == "" {
		return fmt.Errorf("IDENTITY_TOKEN_SECRET is required")
	}

	switch c.SessionStore {
	case SessionStoreRedis, SessionStoreMemory:
	default:
		return fmt.Errorf("SESSION_STORE must be %q or %q", SessionStoreRedis, SessionStoreMemory)
	}

	switch c.RegistryBackend {
	case RegistryPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required")
		}
	case RegistryHTTP:
		if c.RegistryURL == "" {
			return fmt.Errorf("REGISTRY_URL is required")
		}
		if c.RegistryGateway {
			return fmt.Errorf("REGISTRY_GATEWAY_ENABLED cannot proxy to another registry")
		}
	case RegistryMemory:
	default:
		return fmt.Errorf("REGISTRY_BACKEND must be one of %s, %s, %s", RegistryPostgres, RegistryHTTP, RegistryMemory)
	}

	if c.RegistryCacheTTL < 0 {
		return fmt.Errorf("REGISTRY_CACHE_TTL must not be negative")
	}
	if c.SessionTTL <= 0 {
		return fmt.Errorf("SESSION_TTL must be positive")
	}
	if c.NodeID < 0 || c.NodeID > 1023 {
		return fmt.Errorf("NODE_ID must be between 0 and 1023")
	}
	if c.TraceSampleRatio < 0 || c.TraceSampleRatio > 1 {
		return fmt.Errorf("TRACE_SAMPLE_RATIO must be between 0 and 1")
	}
	return nil
}

func getEnv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return def
}

func getDuration(key string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok {
		d, err := time.ParseDuration(v)
		if err == nil {
			return d
		}
	}
	return def
}

func getInt(key string, def int) int {
	if v, ok := os.LookupEnv(key); ok {
		n, err := strconv.Atoi(v)
		if err == nil {
			return n
		}
	}
	return def
}

func getFloat(key string, def float64) float64 {
	if v, ok := os.LookupEnv(key); ok {
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err == nil {
			return f
		}
	}
	return def
}

func getBool(key string, def bool) bool {
	if v, ok := os.LookupEnv(key); ok {
		switch strings.ToLower(v) {
		case "1", "true", "t", "yes", "y", "on":
			return true
		case "0", "false", "f", "no", "n", "off":
			return false
		}
	}
	return def
}

func getList(key string, def []string) []string {
	if v, ok := os.LookupEnv(key); ok {
		parts := strings.Split(v, ",")
		var cleaned []string
		for _, p := range parts {
			trimmed := strings.TrimSpace(p)
			if trimmed != "" {
				cleaned = append(cleaned, trimmed)
			}
		}
		if len(cleaned) > 0 {
			return cleaned
		}
	}
	return def
}
