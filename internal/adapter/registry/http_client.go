// Package registry talks to a remote verified-identity ledger over HTTP.
package registry

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/smallbiznis/valora-verify/internal/domain/verification"
	"github.com/smallbiznis/valora-verify/internal/repository"
)

const maxResponseBytes = 1 << 20

// ErrRegistryUnavailable reports a transport or 5xx failure.
var ErrRegistryUnavailable = errors.New("registry: unavailable")

var _ repository.Registry = (*HTTPClient)(nil)

// TokenIssuer mints the bearer token a write is authorized with. The gateway
// only accepts a proof for the identity named in the token.
type TokenIssuer interface {
	Issue(ctx context.Context, identity verification.IdentityRef, name string) (string, error)
}

// HTTPClient implements repository.Registry against a ledger gateway.
type HTTPClient struct {
	baseURL    string
	httpClient *http.Client
	tokens     TokenIssuer
	logger     *zap.Logger
}

// NewHTTPClient builds a client rooted at baseURL. Writes carry a token from
// tokens; without one the gateway refuses them.
func NewHTTPClient(baseURL string, client *http.Client, tokens TokenIssuer, logger *zap.Logger) *HTTPClient {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HTTPClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: client,
		tokens:     tokens,
		logger:     logger,
	}
}

func (c *HTTPClient) StoreProof(ctx context.Context, req verification.StoreProofRequest) (*verification.VerifiedIdentityRecord, error) {
	body, err := json.Marshal(PayloadFromRequest(req))
	if err != nil {
		return nil, fmt.Errorf("encode proof: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/proofs", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.tokens != nil {
		token, err := c.tokens.Issue(ctx, req.Identity, "")
		if err != nil {
			return nil, fmt.Errorf("issue registry token: %w", err)
		}
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}

	status, respBody, err := c.do(httpReq)
	if err != nil {
		return nil, err
	}
	switch {
	case status >= 200 && status < 300:
		var stored IdentityBody
		if err := json.Unmarshal(respBody, &stored); err != nil {
			return nil, fmt.Errorf("%w: decode stored record: %v", ErrRegistryUnavailable, err)
		}
		record, err := stored.Record()
		if err != nil {
			return nil, fmt.Errorf("%w: decode stored record: %v", ErrRegistryUnavailable, err)
		}
		return &record, nil
	case status >= 400 && status < 500:
		var rej RejectionBody
		_ = json.Unmarshal(respBody, &rej)
		reason := rej.Reason
		if reason == "" {
			reason = http.StatusText(status)
		}
		return nil, &verification.SubmissionRejectedError{Reason: reason}
	default:
		return nil, fmt.Errorf("%w: status=%d", ErrRegistryUnavailable, status)
	}
}

func (c *HTTPClient) GetIdentity(ctx context.Context, identity verification.IdentityRef) (*verification.VerifiedIdentityRecord, error) {
	var body IdentityBody
	found, err := c.getJSON(ctx, "/v1/identities/"+url.PathEscape(identity.String()), &body)
	if err != nil || !found {
		return nil, err
	}
	record, err := body.Record()
	if err != nil {
		return nil, fmt.Errorf("decode identity: %w", err)
	}
	return &record, nil
}

func (c *HTTPClient) GetMetrics(ctx context.Context, channelID string) (*verification.Metrics, error) {
	var body verification.Metrics
	found, err := c.getJSON(ctx, "/v1/channels/"+url.PathEscape(channelID)+"/metrics", &body)
	if err != nil || !found {
		return nil, err
	}
	return &body, nil
}

func (c *HTTPClient) getJSON(ctx context.Context, path string, out any) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return false, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	status, body, err := c.do(req)
	if err != nil {
		return false, err
	}
	switch {
	case status == http.StatusNotFound:
		return false, nil
	case status >= 300:
		return false, fmt.Errorf("%w: status=%d", ErrRegistryUnavailable, status)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return false, fmt.Errorf("decode %s: %w", path, err)
	}
	return true, nil
}

func (c *HTTPClient) do(req *http.Request) (int, []byte, error) {
	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("%w: %v", ErrRegistryUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return 0, nil, fmt.Errorf("%w: read body: %v", ErrRegistryUnavailable, err)
	}
	c.logger.Debug("registry call",
		zap.String("method", req.Method),
		zap.String("path", req.URL.Path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(start)),
	)
	return resp.StatusCode, body, nil
}
