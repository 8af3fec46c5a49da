package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("YOUTUBE_CLIENT_ID", "client-123")
	t.Setenv("YOUTUBE_REDIRECT_URI", "https://app.example/verify/youtube/callback")
	t.Setenv("IDENTITY_TOKEN_SECRET", "0123456789abcdef0123456789abcdef")
	t.Setenv("REGISTRY_BACKEND", "memory")
	t.Setenv("SESSION_STORE", "memory")
}

func TestLoad_Defaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, 10*time.Minute, cfg.SessionTTL)
	require.Equal(t, "https://oauth2.googleapis.com/token", cfg.YouTubeTokenURL)
	require.Len(t, cfg.YouTubeScopes, 2)
	require.Equal(t, RegistryMemory, cfg.RegistryBackend)
	require.Equal(t, 1.0, cfg.TraceSampleRatio)
}

func TestLoad_Overrides(t *testing.T) {
	setRequired(t)
	t.Setenv("SESSION_TTL", "2m")
	t.Setenv("YOUTUBE_SCOPES", "a, b ,,c")
	t.Setenv("REGISTRY_BACKEND", "HTTP")
	t.Setenv("REGISTRY_URL", "https://ledger.example")
	t.Setenv("TRACE_SAMPLE_RATIO", "0.25")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, 0.25, cfg.TraceSampleRatio)
	require.Equal(t, 2*time.Minute, cfg.SessionTTL)
	require.Equal(t, []string{"a", "b", "c"}, cfg.YouTubeScopes)
	require.Equal(t, RegistryHTTP, cfg.RegistryBackend)
}

func TestLoad_Validation(t *testing.T) {
	cases := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"missing client id", map[string]string{"YOUTUBE_CLIENT_ID": ""}, "YOUTUBE_CLIENT_ID"},
		{"missing secret", map[string]string{"IDENTITY_TOKEN_SECRET": " "}, "IDENTITY_TOKEN_SECRET"},
		{"postgres needs dsn", map[string]string{"REGISTRY_BACKEND": "postgres", "DATABASE_URL": ""}, "DATABASE_URL"},
		{"http needs url", map[string]string{"REGISTRY_BACKEND": "http", "REGISTRY_URL": ""}, "REGISTRY_URL"},
		{"unknown backend", map[string]string{"REGISTRY_BACKEND": "sqlite"}, "REGISTRY_BACKEND"},
		{"unknown store", map[string]string{"SESSION_STORE": "memcached"}, "SESSION_STORE"},
		{"gateway over remote registry", map[string]string{"REGISTRY_BACKEND": "http", "REGISTRY_URL": "https://ledger.example", "REGISTRY_GATEWAY_ENABLED": "true"}, "REGISTRY_GATEWAY_ENABLED"},
		{"negative cache ttl", map[string]string{"REGISTRY_CACHE_TTL": "-1s"}, "REGISTRY_CACHE_TTL"},
		{"node id out of range", map[string]string{"NODE_ID": "2048"}, "NODE_ID"},
		{"sample ratio above one", map[string]string{"TRACE_SAMPLE_RATIO": "1.5"}, "TRACE_SAMPLE_RATIO"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			setRequired(t)
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			require.ErrorContains(t, err, tc.want)
		})
	}
}

func TestProvider(t *testing.T) {
	setRequired(t)
	t.Setenv("YOUTUBE_CLIENT_SECRET", "shh")

	cfg, err := Load()
	require.NoError(t, err)
	p := cfg.Provider()
	require.Equal(t, "youtube", p.Name)
	require.Equal(t, "client-123", p.ClientID)
	require.Equal(t, "shh", p.ClientSecret)
	require.Equal(t, cfg.YouTubeRedirectURI, p.RedirectURI)
	require.Equal(t, cfg.YouTubeScopes, p.Scopes)

	p.Scopes[0] = "mutated"
	require.NotEqual(t, "mutated", cfg.YouTubeScopes[0])
}
