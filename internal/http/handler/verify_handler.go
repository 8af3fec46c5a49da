package handler

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	domain "github.com/smallbiznis/valora-verify/internal/domain/verification"
	"github.com/smallbiznis/valora-verify/internal/http/middleware"
	verifysvc "github.com/smallbiznis/valora-verify/internal/service/verification"
)

// Pipeline starts and completes verification handshakes.
type Pipeline interface {
	StartVerification(ctx context.Context, identity domain.IdentityRef, claim domain.ClaimType) (*verifysvc.AuthorizationRequest, error)
	HandleCallback(ctx context.Context, in verifysvc.CallbackInput) (*verifysvc.Run, error)
}

// IdentityReader answers read-side queries.
type IdentityReader interface {
	Lookup(ctx context.Context, identity domain.IdentityRef) (*domain.VerifiedIdentityRecord, bool)
	Metrics(ctx context.Context, channelID string) (*domain.Metrics, bool)
	Status(ctx context.Context, identity domain.IdentityRef) domain.VerificationResult
}

// KeyExporter serializes the verifying key so third parties can check proofs.
type KeyExporter interface {
	WriteVerifyingKey(w io.Writer) error
}

// VerifyHandler serves the verification endpoints.
type VerifyHandler struct {
	Pipeline          Pipeline
	Reader            IdentityReader
	Keys              KeyExporter
	ResultRedirectURL string
	Logger            *zap.Logger
}

// NewVerifyHandler creates the handler set.
func NewVerifyHandler(pipeline Pipeline, reader IdentityReader, keys KeyExporter, resultRedirectURL string, logger *zap.Logger) *VerifyHandler {
	if logger == nil {
		logger = zap.L()
	}
	return &VerifyHandler{
		Pipeline:          pipeline,
		Reader:            reader,
		Keys:              keys,
		ResultRedirectURL: strings.TrimSpace(resultRedirectURL),
		Logger:            logger,
	}
}

// Start opens a handshake for the authenticated caller. With redirect=true the
// caller is sent straight to the consent screen.
func (h *VerifyHandler) Start(c *gin.Context) {
	identity, ok := middleware.GetIdentity(c)
	if !ok {
		respondVerificationError(c, domain.ErrIdentityMissing)
		return
	}

	claim, err := domain.ParseClaimType(c.DefaultQuery("claim", domain.ClaimChannelOwnership.String()))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_claim", "error_description": "Unknown claim type."})
		return
	}

	req, err := h.Pipeline.StartVerification(c.Request.Context(), identity, claim)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidClaim) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_claim", "error_description": "Unknown claim type."})
			return
		}
		h.Logger.Error("start verification failed", zap.String("identity", identity.String()), zap.Error(err))
		respondVerificationError(c, err)
		return
	}

	if c.Query("redirect") == "true" {
		c.Redirect(http.StatusFound, req.URL)
		return
	}
	c.JSON(http.StatusOK, req)
}

// Callback receives the provider redirect and runs the pipeline to completion.
func (h *VerifyHandler) Callback(c *gin.Context) {
	run, err := h.Pipeline.HandleCallback(c.Request.Context(), verifysvc.CallbackInput{
		Code:  c.Query("code"),
		State: c.Query("state"),
		Error: c.Query("error"),
	})
	recordOutcome(c, run, err)

	if h.ResultRedirectURL != "" {
		h.redirectResult(c, run, err)
		return
	}
	if err != nil {
		status := statusForReason(domain.ReasonOf(err))
		body := gin.H{"error": string(domain.ReasonOf(err)), "error_description": domain.UserMessage(err)}
		if run != nil {
			body["result"] = run.Result
		}
		c.JSON(status, body)
		return
	}
	c.JSON(http.StatusOK, run.Result)
}

func recordOutcome(c *gin.Context, run *verifysvc.Run, err error) {
	var claim string
	if run != nil && run.Claim.Valid() {
		claim = run.Claim.String()
	}
	outcome := string(domain.StatusVerified)
	if err != nil {
		outcome = string(domain.ReasonOf(err))
	}
	middleware.SetOutcome(c, claim, outcome)
}

func (h *VerifyHandler) redirectResult(c *gin.Context, run *verifysvc.Run, err error) {
	target, parseErr := url.Parse(h.ResultRedirectURL)
	if parseErr != nil {
		h.Logger.Error("invalid result redirect url", zap.Error(parseErr))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "server_error", "error_description": "Internal server error."})
		return
	}
	q := target.Query()
	if err != nil {
		q.Set("status", string(domain.StatusFailed))
		q.Set("error", string(domain.ReasonOf(err)))
	} else {
		q.Set("status", string(run.Result.Status))
		if run.Claim.Valid() {
			q.Set("claim", run.Claim.String())
		}
	}
	target.RawQuery = q.Encode()
	c.Redirect(http.StatusFound, target.String())
}

// Identity reports the caller's verification status.
func (h *VerifyHandler) Identity(c *gin.Context) {
	identity, ok := middleware.GetIdentity(c)
	if !ok {
		respondVerificationError(c, domain.ErrIdentityMissing)
		return
	}
	c.JSON(http.StatusOK, h.Reader.Status(c.Request.Context(), identity))
}

// IdentityByRef returns the public record for any identity.
func (h *VerifyHandler) IdentityByRef(c *gin.Context) {
	identity := domain.IdentityRef(strings.TrimSpace(c.Param("identity")))
	record, ok := h.Reader.Lookup(c.Request.Context(), identity)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "error_description": "Identity is not verified."})
		return
	}
	c.JSON(http.StatusOK, record)
}

// ChannelMetrics returns the public counters recorded for a channel.
func (h *VerifyHandler) ChannelMetrics(c *gin.Context) {
	m, ok := h.Reader.Metrics(c.Request.Context(), c.Param("channel_id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "error_description": "No verified metrics for channel."})
		return
	}
	c.JSON(http.StatusOK, m)
}

// VerifyingKey streams the Groth16 verifying key in binary form.
func (h *VerifyHandler) VerifyingKey(c *gin.Context) {
	if h.Keys == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "error_description": "Verifying key not available."})
		return
	}
	var buf bytes.Buffer
	if err := h.Keys.WriteVerifyingKey(&buf); err != nil {
		h.Logger.Error("export verifying key failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "server_error", "error_description": "Internal server error."})
		return
	}
	c.Data(http.StatusOK, "application/octet-stream", buf.Bytes())
}

func respondVerificationError(c *gin.Context, err error) {
	reason := domain.ReasonOf(err)
	c.JSON(statusForReason(reason), gin.H{"error": string(reason), "error_description": domain.UserMessage(err)})
}

func statusForReason(reason domain.FailureReason) int {
	switch reason {
	case domain.ReasonIdentityMissing:
		return http.StatusUnauthorized
	case domain.ReasonInvalidSession:
		return http.StatusBadRequest
	case domain.ReasonExchangeFailed:
		return http.StatusBadGateway
	case domain.ReasonSubmissionRejected:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
