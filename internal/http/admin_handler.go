package http

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"loan-dash/internal/session"
)

type forceSignOuter interface {
	ForceSignOut(ctx context.Context, userID string) error
}

// AdminHandler agrupa las operaciones de consola admin sobre sesiones.
type AdminHandler struct {
	logger   *zap.Logger
	registry *session.Registry
	identity forceSignOuter
}

func NewAdminHandler(logger *zap.Logger, registry *session.Registry, identity forceSignOuter) *AdminHandler {
	return &AdminHandler{
		logger:   logger,
		registry: registry,
		identity: identity,
	}
}

// ListSessions maneja GET /admin/sessions.
func (h *AdminHandler) ListSessions(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"count":    h.registry.Len(),
		"sessions": h.registry.Snapshot(),
	})
}

// ForceSignOut maneja POST /admin/users/:id/signout.
func (h *AdminHandler) ForceSignOut(c *gin.Context) {
	userID := strings.TrimSpace(c.Param("id"))
	if userID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	if err := h.identity.ForceSignOut(c.Request.Context(), userID); err != nil {
		h.logger.Error("force sign-out failed", zap.Error(err), zap.String("user_id", userID))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not sign out user"})
		return
	}
	c.Status(http.StatusNoContent)
}
