package http

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"loan-dash/internal/service"
	"loan-dash/internal/session"
)

// SessionHandler expone las operaciones publicas de la máquina de sesión.
type SessionHandler struct {
	logger   *zap.Logger
	registry *session.Registry
	limiter  service.LoginLimiter
}

// NewSessionHandler acepta limiter nil (sin límite de intentos).
func NewSessionHandler(logger *zap.Logger, registry *session.Registry, limiter service.LoginLimiter) *SessionHandler {
	return &SessionHandler{
		logger:   logger,
		registry: registry,
		limiter:  limiter,
	}
}

// Login maneja POST /auth/login.
func (h *SessionHandler) Login(c *gin.Context) {
	var req struct {
		Email    string `json:"email" binding:"required,email"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid login request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	if h.limiter != nil && !h.limiter.Allow(c.Request.Context(), req.Email) {
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "too many login attempts"})
		return
	}
	m, ok := GetMachine(c)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "session not resolved"})
		return
	}

	if !m.Login(c.Request.Context(), req.Email, req.Password) {
		// Mensaje generico: no distinguimos credenciales de fallas de perfil.
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"state": m.State()})
}

// Logout maneja POST /auth/logout.
func (h *SessionHandler) Logout(c *gin.Context) {
	m, ok := GetMachine(c)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "session not resolved"})
		return
	}
	m.Logout(c.Request.Context())
	c.Status(http.StatusNoContent)
}

// GetState maneja GET /session.
func (h *SessionHandler) GetState(c *gin.Context) {
	m, ok := GetMachine(c)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "session not resolved"})
		return
	}
	resp := gin.H{"state": m.State()}
	if next := m.Timers().NextWarningAt(); !next.IsZero() {
		resp["next_warning_at"] = next
	}
	if exp := m.Timers().ExpiresAt(); !exp.IsZero() {
		resp["expires_at"] = exp
	}
	c.JSON(http.StatusOK, resp)
}

// Extend maneja POST /session/extend.
func (h *SessionHandler) Extend(c *gin.Context) {
	if m, ok := GetMachine(c); ok {
		m.ExtendSession()
	}
	c.Status(http.StatusNoContent)
}

// ResetInactivity maneja POST /session/reset.
func (h *SessionHandler) ResetInactivity(c *gin.Context) {
	if m, ok := GetMachine(c); ok {
		m.ResetInactivityTimer()
	}
	c.Status(http.StatusNoContent)
}

// Activity maneja POST /session/activity.
func (h *SessionHandler) Activity(c *gin.Context) {
	var req struct {
		Kind string `json:"kind" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	kind := session.ActivityKind(req.Kind)
	if !kind.Tracked() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown activity kind"})
		return
	}
	if m, ok := GetMachine(c); ok {
		m.RecordActivity(kind)
	}
	c.Status(http.StatusNoContent)
}

// Visibility maneja POST /session/visibility.
func (h *SessionHandler) Visibility(c *gin.Context) {
	var req struct {
		Visible *bool `json:"visible" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	if m, ok := GetMachine(c); ok {
		m.SetVisibility(*req.Visible)
	}
	c.Status(http.StatusNoContent)
}

// Teardown maneja DELETE /session: el cliente se desmonta.
func (h *SessionHandler) Teardown(c *gin.Context) {
	if clientID := c.GetString(clientIDKey); clientID != "" {
		h.registry.Remove(clientID)
	}
	c.Status(http.StatusNoContent)
}

// Events maneja GET /session/events como server-sent events.
func (h *SessionHandler) Events(c *gin.Context) {
	m, ok := GetMachine(c)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "session not resolved"})
		return
	}
	states, cancel := m.Subscribe()
	defer cancel()

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	ctx := c.Request.Context()
	c.Stream(func(w io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case state, open := <-states:
			if !open {
				return false
			}
			c.SSEvent("state", state)
			return true
		}
	})
}

// Me maneja GET /me (requiere usuario).
func (h *SessionHandler) Me(c *gin.Context) {
	m, _ := GetMachine(c)
	c.JSON(http.StatusOK, gin.H{"user": m.State().User})
}
