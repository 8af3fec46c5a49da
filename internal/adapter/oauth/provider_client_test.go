package oauth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	domainoauth "github.com/smallbiznis/valora-verify/internal/domain/oauth"
	"github.com/smallbiznis/valora-verify/internal/domain/verification"
)

func newProviderServer(t *testing.T, tokenStatus int, tokenBody string, channelsStatus int, channelsBody string) (*httptest.Server, domainoauth.ProviderConfig) {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.NoError(t, r.ParseForm())
		require.Equal(t, "authorization_code", r.PostForm.Get("grant_type"))
		require.Equal(t, "auth-code", r.PostForm.Get("code"))
		require.Equal(t, "client", r.PostForm.Get("client_id"))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(tokenStatus)
		_, _ = w.Write([]byte(tokenBody))
	})
	mux.HandleFunc("/channels", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Bearer ya29.token", r.Header.Get("Authorization"))
		require.Equal(t, "true", r.URL.Query().Get("mine"))
		require.Equal(t, "snippet,statistics", r.URL.Query().Get("part"))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(channelsStatus)
		_, _ = w.Write([]byte(channelsBody))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, domainoauth.ProviderConfig{
		Name:        "youtube",
		ClientID:    "client",
		TokenURL:    srv.URL + "/token",
		ChannelsURL: srv.URL + "/channels",
		RedirectURI: "https://app.example/callback",
	}
}

const channelsOK = `{"items":[{"id":"UC123","snippet":{"title":"Creator","publishedAt":"2015-04-01T10:00:00Z"},"statistics":{"viewCount":"15200","subscriberCount":"342","hiddenSubscriberCount":false,"videoCount":"17"}}]}`

func TestHTTPProviderClient_ExchangeAndFetch(t *testing.T) {
	_, cfg := newProviderServer(t, http.StatusOK, `{"access_token":"ya29.token","refresh_token":"1//r","expires_in":3599,"token_type":"Bearer"}`, http.StatusOK, channelsOK)
	client := NewHTTPProviderClient(nil)
	ctx := context.Background()

	token, err := client.ExchangeCode(ctx, cfg, "auth-code")
	require.NoError(t, err)
	require.Equal(t, "ya29.token", string(token.AccessToken))
	require.Equal(t, int64(3599), token.ExpiresIn)

	channel, err := client.FetchChannel(ctx, cfg, token.AccessToken)
	require.NoError(t, err)
	require.Equal(t, "UC123", channel.ID)
	require.Equal(t, uint64(342), channel.SubscriberCount)
	require.Equal(t, uint64(15200), channel.ViewCount)
	require.Equal(t, uint64(17), channel.VideoCount)
	require.NotNil(t, channel.PublishedAt)

	access := token.AccessToken
	token.Zero()
	require.Equal(t, make([]byte, len(access)), access)
}

func TestHTTPProviderClient_TokenRejected(t *testing.T) {
	_, cfg := newProviderServer(t, http.StatusBadRequest, `{"error":"invalid_grant"}`, http.StatusOK, channelsOK)
	_, err := NewHTTPProviderClient(nil).ExchangeCode(context.Background(), cfg, "auth-code")

	var rejected *verification.ProviderRejectedError
	require.True(t, errors.As(err, &rejected))
	require.Equal(t, "invalid_grant", rejected.Code)
	require.Equal(t, http.StatusBadRequest, rejected.Status)
}

func TestHTTPProviderClient_ProviderUnavailable(t *testing.T) {
	_, cfg := newProviderServer(t, http.StatusServiceUnavailable, `oops`, http.StatusOK, channelsOK)
	_, err := NewHTTPProviderClient(nil).ExchangeCode(context.Background(), cfg, "auth-code")
	require.ErrorIs(t, err, verification.ErrProviderUnavailable)

	cfg.TokenURL = "http://127.0.0.1:1/token"
	_, err = NewHTTPProviderClient(nil).ExchangeCode(context.Background(), cfg, "auth-code")
	require.ErrorIs(t, err, verification.ErrProviderUnavailable)
}

func TestHTTPProviderClient_MalformedResponses(t *testing.T) {
	_, cfg := newProviderServer(t, http.StatusOK, `{"token_type":"Bearer"}`, http.StatusOK, `{"items":[]}`)
	client := NewHTTPProviderClient(nil)

	_, err := client.ExchangeCode(context.Background(), cfg, "auth-code")
	require.ErrorIs(t, err, verification.ErrMalformedResponse)

	_, err = client.FetchChannel(context.Background(), cfg, []byte("ya29.token"))
	require.ErrorIs(t, err, verification.ErrMalformedResponse)
}

func TestHTTPProviderClient_ChannelForbidden(t *testing.T) {
	_, cfg := newProviderServer(t, http.StatusOK, `{}`, http.StatusForbidden, `{"error":{"code":403,"status":"PERMISSION_DENIED"}}`)
	_, err := NewHTTPProviderClient(nil).FetchChannel(context.Background(), cfg, []byte("ya29.token"))

	var rejected *verification.ProviderRejectedError
	require.True(t, errors.As(err, &rejected))
	require.Equal(t, "PERMISSION_DENIED", rejected.Code)
}

func TestSecretBytesEscapes(t *testing.T) {
	var s secretBytes
	require.NoError(t, s.UnmarshalJSON([]byte(`"a\/b"`)))
	require.Equal(t, "a/b", string(s))
	require.Error(t, s.UnmarshalJSON([]byte(`42`)))
}

func TestTokenPayload_WipesSecretsOnDecodeFailure(t *testing.T) {
	var payload tokenPayload
	err := payload.decode([]byte(`{"access_token":"ya29.secret","refresh_token":"1//refresh","token_type":42}`))
	require.ErrorIs(t, err, verification.ErrMalformedResponse)
	require.Len(t, payload.AccessToken, len("ya29.secret"))
	require.Equal(t, make([]byte, len("ya29.secret")), []byte(payload.AccessToken))
	require.Equal(t, make([]byte, len("1//refresh")), []byte(payload.RefreshToken))
}

func TestHTTPProviderClient_TokenTypeMismatch(t *testing.T) {
	_, cfg := newProviderServer(t, http.StatusOK, `{"access_token":"ya29.secret","expires_in":{}}`, http.StatusOK, `{"items":[]}`)

	token, err := NewHTTPProviderClient(nil).ExchangeCode(context.Background(), cfg, "auth-code")
	require.ErrorIs(t, err, verification.ErrMalformedResponse)
	require.Nil(t, token)
}
