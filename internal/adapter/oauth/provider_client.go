package oauth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	domainoauth "github.com/smallbiznis/valora-verify/internal/domain/oauth"
	"github.com/smallbiznis/valora-verify/internal/domain/verification"
)

const maxResponseBytes = 1 << 20

// ProviderClient encapsulates outbound HTTP calls to the content platform.
type ProviderClient interface {
	ExchangeCode(ctx context.Context, provider domainoauth.ProviderConfig, code string) (*domainoauth.TokenResponse, error)
	FetchChannel(ctx context.Context, provider domainoauth.ProviderConfig, accessToken []byte) (*domainoauth.Channel, error)
}

// HTTPProviderClient is the default HTTP implementation.
type HTTPProviderClient struct {
	httpClient *http.Client
}

var _ ProviderClient = (*HTTPProviderClient)(nil)

// NewHTTPProviderClient constructs the default ProviderClient.
func NewHTTPProviderClient(client *http.Client) *HTTPProviderClient {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &HTTPProviderClient{httpClient: client}
}

type tokenPayload struct {
	AccessToken  secretBytes `json:"access_token"`
	RefreshToken secretBytes `json:"refresh_token"`
	ExpiresIn    json.Number `json:"expires_in"`
	TokenType    string      `json:"token_type"`
	Scope        string      `json:"scope"`
}

// decode fills p from body. On failure every secret already decoded is wiped;
// a JSON type error still sets the other fields.
func (p *tokenPayload) decode(body []byte) error {
	if err := json.Unmarshal(body, p); err != nil {
		p.wipe()
		return fmt.Errorf("decode token response: %w", verification.ErrMalformedResponse)
	}
	if len(p.AccessToken) == 0 {
		p.wipe()
		return fmt.Errorf("token response without access_token: %w", verification.ErrMalformedResponse)
	}
	return nil
}

func (p *tokenPayload) wipe() {
	wipe(p.AccessToken)
	wipe(p.RefreshToken)
}

// ExchangeCode performs the OAuth authorization_code grant.
func (c *HTTPProviderClient) ExchangeCode(ctx context.Context, provider domainoauth.ProviderConfig, code string) (*domainoauth.TokenResponse, error) {
	if strings.TrimSpace(provider.TokenURL) == "" {
		return nil, fmt.Errorf("token url missing")
	}
	data := url.Values{}
	data.Set("grant_type", "authorization_code")
	data.Set("code", code)
	data.Set("redirect_uri", provider.RedirectURI)
	data.Set("client_id", provider.ClientID)
	if provider.ClientSecret != "" {
		data.Set("client_secret", provider.ClientSecret)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, provider.TokenURL, strings.NewReader(data.Encode()))
	if err != nil {
		return nil, fmt.Errorf("build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	body, err := c.do(req)
	defer wipe(body)
	if err != nil {
		return nil, fmt.Errorf("token exchange: %w", err)
	}

	var payload tokenPayload
	if err := payload.decode(body); err != nil {
		return nil, err
	}

	token := &domainoauth.TokenResponse{
		AccessToken:  payload.AccessToken,
		RefreshToken: payload.RefreshToken,
		TokenType:    payload.TokenType,
		Scope:        payload.Scope,
	}
	if n, err := payload.ExpiresIn.Int64(); err == nil {
		token.ExpiresIn = n
	}
	return token, nil
}

type channelsPayload struct {
	Items []struct {
		ID      string `json:"id"`
		Snippet struct {
			Title       string `json:"title"`
			PublishedAt string `json:"publishedAt"`
		} `json:"snippet"`
		Statistics struct {
			ViewCount             string `json:"viewCount"`
			SubscriberCount       string `json:"subscriberCount"`
			HiddenSubscriberCount bool   `json:"hiddenSubscriberCount"`
			VideoCount            string `json:"videoCount"`
		} `json:"statistics"`
	} `json:"items"`
}

// FetchChannel loads the authenticated user's own channel.
func (c *HTTPProviderClient) FetchChannel(ctx context.Context, provider domainoauth.ProviderConfig, accessToken []byte) (*domainoauth.Channel, error) {
	if strings.TrimSpace(provider.ChannelsURL) == "" {
		return nil, fmt.Errorf("channels url missing")
	}
	endpoint, err := url.Parse(provider.ChannelsURL)
	if err != nil {
		return nil, fmt.Errorf("parse channels url: %w", err)
	}
	q := endpoint.Query()
	q.Set("part", "snippet,statistics")
	q.Set("mine", "true")
	endpoint.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("build channels request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+string(accessToken))
	req.Header.Set("Accept", "application/json")

	body, err := c.do(req)
	if err != nil {
		return nil, fmt.Errorf("channels request: %w", err)
	}

	var payload channelsPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("decode channels: %w", verification.ErrMalformedResponse)
	}
	if len(payload.Items) == 0 || strings.TrimSpace(payload.Items[0].ID) == "" {
		return nil, fmt.Errorf("no channel for account: %w", verification.ErrMalformedResponse)
	}
	item := payload.Items[0]

	channel := &domainoauth.Channel{
		ID:                    item.ID,
		Title:                 item.Snippet.Title,
		HiddenSubscriberCount: item.Statistics.HiddenSubscriberCount,
	}
	if channel.ViewCount, err = parseCount(item.Statistics.ViewCount); err != nil {
		return nil, fmt.Errorf("view count: %w", err)
	}
	if channel.VideoCount, err = parseCount(item.Statistics.VideoCount); err != nil {
		return nil, fmt.Errorf("video count: %w", err)
	}
	if !channel.HiddenSubscriberCount {
		if channel.SubscriberCount, err = parseCount(item.Statistics.SubscriberCount); err != nil {
			return nil, fmt.Errorf("subscriber count: %w", err)
		}
	}
	if published := strings.TrimSpace(item.Snippet.PublishedAt); published != "" {
		ts, err := time.Parse(time.RFC3339, published)
		if err != nil {
			return nil, fmt.Errorf("published at: %w", verification.ErrMalformedResponse)
		}
		ts = ts.UTC()
		channel.PublishedAt = &ts
	}
	return channel, nil
}

func (c *HTTPProviderClient) do(req *http.Request) ([]byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", verification.ErrProviderUnavailable, redactURLError(err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", verification.ErrProviderUnavailable)
	}
	switch {
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("status=%d: %w", resp.StatusCode, verification.ErrProviderUnavailable)
	case resp.StatusCode >= 300:
		return nil, &verification.ProviderRejectedError{Status: resp.StatusCode, Code: providerErrorCode(body)}
	}
	return body, nil
}

// providerErrorCode extracts the error code from either the OAuth error shape
// {"error":"invalid_grant"} or the API error shape {"error":{"status":"..."}}.
func providerErrorCode(body []byte) string {
	var envelope struct {
		Error json.RawMessage `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil || len(envelope.Error) == 0 {
		return ""
	}
	var code string
	if err := json.Unmarshal(envelope.Error, &code); err == nil {
		return code
	}
	var apiErr struct {
		Status string `json:"status"`
		Code   int    `json:"code"`
	}
	if err := json.Unmarshal(envelope.Error, &apiErr); err == nil {
		if apiErr.Status != "" {
			return apiErr.Status
		}
		if apiErr.Code != 0 {
			return strconv.Itoa(apiErr.Code)
		}
	}
	return ""
}

func parseCount(raw string) (uint64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, verification.ErrMalformedResponse
	}
	return n, nil
}

// redactURLError drops the request URL from transport errors so query strings
// never reach logs.
func redactURLError(err error) string {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return urlErr.Op + ": " + urlErr.Err.Error()
	}
	return err.Error()
}

// secretBytes decodes a JSON string into a wipeable byte slice.
type secretBytes []byte

func (s *secretBytes) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		*s = nil
		return nil
	}
	if len(data) < 2 || data[0] != '"' || data[len(data)-1] != '"' {
		return fmt.Errorf("secret must be a string")
	}
	inner := data[1 : len(data)-1]
	if bytes.IndexByte(inner, '\\') < 0 {
		out := make([]byte, len(inner))
		copy(out, inner)
		*s = out
		return nil
	}
	var decoded string
	if err := json.Unmarshal(data, &decoded); err != nil {
		return err
	}
	*s = []byte(decoded)
	return nil
}

func wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
