package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	registryadapter "github.com/smallbiznis/valora-verify/internal/adapter/registry"
	domain "github.com/smallbiznis/valora-verify/internal/domain/verification"
	"github.com/smallbiznis/valora-verify/internal/http/middleware"
	"github.com/smallbiznis/valora-verify/internal/repository"
)

// RegistryHandler exposes the local registry over the same HTTP contract the
// registry client speaks, so other deployments can point REGISTRY_URL here.
type RegistryHandler struct {
	Registry repository.Registry
	Logger   *zap.Logger
}

// NewRegistryHandler creates the gateway handlers.
func NewRegistryHandler(registry repository.Registry, logger *zap.Logger) *RegistryHandler {
	if logger == nil {
		logger = zap.L()
	}
	return &RegistryHandler{Registry: registry, Logger: logger}
}

// StoreProof handles POST /v1/proofs. It runs behind RequireIdentity and only
// stores proofs for the authenticated identity.
func (h *RegistryHandler) StoreProof(c *gin.Context) {
	caller, ok := middleware.GetIdentity(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, registryadapter.RejectionBody{Error: "identity_missing", Reason: "authorization required"})
		return
	}
	var payload registryadapter.ProofPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, registryadapter.RejectionBody{Error: "invalid_request", Reason: "malformed payload"})
		return
	}
	if strings.TrimSpace(payload.Identity) != caller.String() {
		h.Logger.Warn("registry write for another identity refused",
			zap.String("caller", caller.String()),
			zap.String("identity", payload.Identity),
		)
		c.JSON(http.StatusForbidden, registryadapter.RejectionBody{Error: "submission_rejected", Reason: "identity does not match credentials"})
		return
	}

	record, err := h.Registry.StoreProof(c.Request.Context(), payload.Request())
	if err != nil {
		var rejected *domain.SubmissionRejectedError
		if errors.As(err, &rejected) {
			c.JSON(http.StatusUnprocessableEntity, registryadapter.RejectionBody{Error: "submission_rejected", Reason: rejected.Reason})
			return
		}
		h.Logger.Error("registry store failed", zap.String("identity", payload.Identity), zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, registryadapter.RejectionBody{Error: "registry_unavailable"})
		return
	}
	body, err := registryadapter.IdentityBodyFromRecord(*record)
	if err != nil {
		h.Logger.Error("encode stored record failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, registryadapter.RejectionBody{Error: "server_error"})
		return
	}
	c.JSON(http.StatusCreated, body)
}

// Identity handles GET /v1/identities/:identity.
func (h *RegistryHandler) Identity(c *gin.Context) {
	record, err := h.Registry.GetIdentity(c.Request.Context(), domain.IdentityRef(c.Param("identity")))
	if err != nil {
		h.Logger.Error("registry identity read failed", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, registryadapter.RejectionBody{Error: "registry_unavailable"})
		return
	}
	if record == nil {
		c.JSON(http.StatusNotFound, registryadapter.RejectionBody{Error: "not_found"})
		return
	}
	body, err := registryadapter.IdentityBodyFromRecord(*record)
	if err != nil {
		h.Logger.Error("encode identity record failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, registryadapter.RejectionBody{Error: "server_error"})
		return
	}
	c.JSON(http.StatusOK, body)
}

// Metrics handles GET /v1/channels/:channel_id/metrics.
func (h *RegistryHandler) Metrics(c *gin.Context) {
	m, err := h.Registry.GetMetrics(c.Request.Context(), c.Param("channel_id"))
	if err != nil {
		h.Logger.Error("registry metrics read failed", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, registryadapter.RejectionBody{Error: "registry_unavailable"})
		return
	}
	if m == nil {
		c.JSON(http.StatusNotFound, registryadapter.RejectionBody{Error: "not_found"})
		return
	}
	c.JSON(http.StatusOK, m)
}
